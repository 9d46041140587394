package fhevm

import (
	"errors"
	"fmt"
	"math/big"

	ecies "github.com/ecies/go/v2"
)

// valueWidth is the serialized width of one value: 1 type byte + 32 value bytes
const valueWidth = 33

var errMalformedPayload = errors.New("malformed input payload")

// GenerateKeypair creates a secp256k1 ECIES key pair used as the ephemeral
// decryption key pair. The public key is compressed.
func GenerateKeypair() (KeyPair, error) {
	key, err := ecies.GenerateKey()
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return KeyPair{
		PublicKey:  key.PublicKey.Bytes(true),
		PrivateKey: key.Bytes(),
	}, nil
}

// Encryptor seals a batch of typed values to a network public key
type Encryptor interface {
	Encrypt(publicKey []byte, values []TypedValue) ([]byte, error)
}

// ECIESEncryptor seals inputs with ECIES over secp256k1. It stands in for
// the network's homomorphic scheme on development chains.
type ECIESEncryptor struct{}

// Compile-time interface compliance check
var _ Encryptor = ECIESEncryptor{}

func (ECIESEncryptor) Encrypt(publicKey []byte, values []TypedValue) ([]byte, error) {
	pub, err := ecies.NewPublicKeyFromBytes(publicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid network public key: %w", err)
	}

	ciphertext, err := ecies.Encrypt(pub, encodeValues(values))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt input: %w", err)
	}
	return ciphertext, nil
}

// Decrypt opens a ciphertext produced by Encrypt
func (ECIESEncryptor) Decrypt(privateKey, ciphertext []byte) ([]TypedValue, error) {
	plaintext, err := ecies.Decrypt(ecies.NewPrivateKeyFromBytes(privateKey), ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt input: %w", err)
	}
	return decodeValues(plaintext)
}

func encodeValues(values []TypedValue) []byte {
	out := make([]byte, 0, len(values)*valueWidth)
	for _, v := range values {
		word := make([]byte, 32)
		v.Value.FillBytes(word)
		out = append(out, byte(v.Type))
		out = append(out, word...)
	}
	return out
}

func decodeValues(payload []byte) ([]TypedValue, error) {
	if len(payload)%valueWidth != 0 {
		return nil, errMalformedPayload
	}
	values := make([]TypedValue, 0, len(payload)/valueWidth)
	for off := 0; off < len(payload); off += valueWidth {
		values = append(values, TypedValue{
			Type:  FheType(payload[off]),
			Value: new(big.Int).SetBytes(payload[off+1 : off+valueWidth]),
		})
	}
	return values, nil
}
