package eip712

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	// DomainType is the reserved type name of the domain struct
	DomainType = "EIP712Domain"

	// SignatureLength is the length of an [R || S || V] secp256k1 signature
	SignatureLength = 65
)

// Error definitions
var (
	ErrInvalidAddress      = errors.New("invalid ethereum address")
	ErrAddressMismatch     = errors.New("recovered address does not match")
	ErrInvalidSignatureLen = errors.New("signature must be 65 bytes")
	ErrMissingPrimaryType  = errors.New("typed data has no primary type")
)

// DomainSeparator hashes the typed data domain
func DomainSeparator(td apitypes.TypedData) ([]byte, error) {
	separator, err := td.HashStruct(DomainType, td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	return separator, nil
}

// Digest computes the EIP-712 signing hash of td:
// keccak256(0x19 0x01 ‖ domainSeparator ‖ hashStruct(primaryType, message))
func Digest(td apitypes.TypedData) ([]byte, error) {
	if td.PrimaryType == "" {
		return nil, ErrMissingPrimaryType
	}

	domainSeparator, err := DomainSeparator(td)
	if err != nil {
		return nil, err
	}

	messageHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// Byte-level concatenation, not hex string concat
	rawData := make([]byte, 0, 66)
	rawData = append(rawData, 0x19, 0x01)
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, messageHash...)

	return crypto.Keccak256(rawData), nil
}

// DigestHex is Digest encoded as 0x-prefixed hex
func DigestHex(td apitypes.TypedData) (string, error) {
	digest, err := Digest(td)
	if err != nil {
		return "", err
	}
	return common.BytesToHash(digest).Hex(), nil
}

// RecoverAddress recovers the address that produced signature over td
func RecoverAddress(td apitypes.TypedData, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, ErrInvalidSignatureLen
	}

	digest, err := Digest(td)
	if err != nil {
		return common.Address{}, err
	}

	// Normalize v value (27/28 -> 0/1)
	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pubKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

// VerifySignature reports whether signature over td was produced by address
func VerifySignature(address string, td apitypes.TypedData, signature []byte) error {
	if !common.IsHexAddress(address) {
		return ErrInvalidAddress
	}

	recovered, err := RecoverAddress(td, signature)
	if err != nil {
		return err
	}

	// Compare addresses (case-insensitive)
	if !strings.EqualFold(recovered.Hex(), address) {
		return ErrAddressMismatch
	}
	return nil
}
