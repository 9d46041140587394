package fhevm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var uint256Type, _ = abi.NewType("uint256", "", nil)

// EncodeInputProof lays out an input proof as
// numHandles ‖ numSigners ‖ handles ‖ signatures ‖ extraData.
func EncodeInputProof(handles []common.Hash, signatures [][]byte, extraData []byte) ([]byte, error) {
	if len(handles) > 255 || len(signatures) > 255 {
		return nil, fmt.Errorf("input proof supports at most 255 handles and signers")
	}

	out := []byte{byte(len(handles)), byte(len(signatures))}
	for _, h := range handles {
		out = append(out, h.Bytes()...)
	}
	for _, sig := range signatures {
		out = append(out, sig...)
	}
	return append(out, extraData...), nil
}

// EncodeDecryptionProof lays out a decryption proof as
// numSigners ‖ signatures ‖ extraData.
func EncodeDecryptionProof(signatures [][]byte, extraData []byte) ([]byte, error) {
	if len(signatures) > 255 {
		return nil, fmt.Errorf("decryption proof supports at most 255 signers")
	}

	out := []byte{byte(len(signatures))}
	for _, sig := range signatures {
		out = append(out, sig...)
	}
	return append(out, extraData...), nil
}

func uint256Arguments(n int) abi.Arguments {
	args := make(abi.Arguments, n)
	for i := range args {
		args[i] = abi.Argument{Type: uint256Type}
	}
	return args
}

// EncodeClearValues ABI-encodes clear values as consecutive uint256 words
func EncodeClearValues(values []*big.Int) ([]byte, error) {
	vals := make([]interface{}, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return uint256Arguments(len(values)).Pack(vals...)
}

// DecodeClearValues is the inverse of EncodeClearValues
func DecodeClearValues(data []byte, n int) ([]*big.Int, error) {
	unpacked, err := uint256Arguments(n).Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode clear values: %w", err)
	}

	values := make([]*big.Int, len(unpacked))
	for i, v := range unpacked {
		b, ok := v.(*big.Int)
		if !ok {
			return nil, fmt.Errorf("clear value %d has unexpected type %T", i, v)
		}
		values[i] = b
	}
	return values, nil
}
