package fhevm

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ahwlsqja/shadow-vote/pkg/eip712"
	"github.com/ethereum/go-ethereum/common"
)

// placeholderPublicKey stands in for an absent public key when deriving a
// cache key: the 20 zero bytes of the zero address.
var placeholderPublicKey = common.Address{}.Bytes()

// ParseAddress validates a hex address string
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// ParseAddresses validates every address of list
func ParseAddresses(list []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(list))
	for _, s := range list {
		addr, err := ParseAddress(s)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// SortAddresses returns a sorted copy of addresses. Byte order equals
// case-insensitive hex order.
func SortAddresses(addresses []common.Address) []common.Address {
	sorted := make([]common.Address, len(addresses))
	copy(sorted, addresses)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})
	return sorted
}

// CacheKey derives the storage key of a decryption signature for
// (userAddress, contractAddresses, publicKey).
//
// The key is "<checksummed user>:<EIP-712 hash>" where the hash covers a
// zero-valued request (start=0, duration=0) over the sorted contract
// addresses and publicKey, or the placeholder when publicKey is empty.
// Address order does not affect the key.
func CacheKey(instance Instance, contractAddresses []common.Address, userAddress string, publicKey []byte) (string, error) {
	user, err := ParseAddress(userAddress)
	if err != nil {
		return "", err
	}
	if len(contractAddresses) == 0 {
		return "", ErrNoContractAddresses
	}

	if len(publicKey) == 0 {
		publicKey = placeholderPublicKey
	}

	empty, err := instance.CreateEIP712(publicKey, SortAddresses(contractAddresses), 0, 0)
	if err != nil {
		return "", fmt.Errorf("failed to build cache key payload: %w", err)
	}

	hash, err := eip712.DigestHex(empty)
	if err != nil {
		return "", fmt.Errorf("failed to hash cache key payload: %w", err)
	}
	return user.Hex() + ":" + hash, nil
}
