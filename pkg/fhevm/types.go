// Package fhevm implements the client side of encrypted voting: the
// decryption authorization lifecycle and the cryptographic instance
// lifecycle.
//
// An Instance is produced asynchronously by a Factory and is managed by a
// Lifecycle. An Authorizer derives, caches and validates the
// DecryptionSignature that lets a key-pair holder request plaintext
// decryption of ciphertext handles bound to a set of contracts.
package fhevm

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Error definitions
var (
	ErrInvalidAddress      = errors.New("invalid address")
	ErrNoContractAddresses = errors.New("at least one contract address is required")
	ErrInvalidSignature    = errors.New("invalid decryption signature")
	ErrAuthorizationFailed = errors.New("decryption authorization failed or was declined")
	ErrCanceled            = errors.New("instance creation canceled")
	ErrInstanceNotReady    = errors.New("fhevm instance is not ready")
	ErrTooManyInputs       = errors.New("encrypted input exceeds 2048 bits")
	ErrUnknownHandle       = errors.New("unknown ciphertext handle")
)

// KeyPair is an ephemeral decryption key pair
type KeyPair struct {
	PublicKey  hexutil.Bytes `json:"publicKey"`
	PrivateKey hexutil.Bytes `json:"privateKey"`
}

// Signer is the wallet that authorizes decryption requests
type Signer interface {
	GetAddress(ctx context.Context) (common.Address, error)
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error)
}

// Instance is a cryptographic client able to encrypt inputs and request decryptions
type Instance interface {
	// CreateEncryptedInput starts an input bound to contractAddress and userAddress
	CreateEncryptedInput(contractAddress, userAddress common.Address) InputBuilder

	// PublicDecrypt decrypts publicly decryptable handles and returns a proof
	PublicDecrypt(ctx context.Context, handles []common.Hash) (*PublicDecryptResult, error)

	// GenerateKeypair creates a fresh ephemeral key pair
	GenerateKeypair() (KeyPair, error)

	// CreateEIP712 builds the user-decrypt authorization payload
	CreateEIP712(publicKey []byte, contractAddresses []common.Address, startTimestamp, durationDays int64) (apitypes.TypedData, error)
}

// InputBuilder accumulates clear values to be encrypted in one batch
type InputBuilder interface {
	AddBool(v bool) InputBuilder
	Add8(v uint8) InputBuilder
	Add32(v uint32) InputBuilder
	Add64(v uint64) InputBuilder
	Encrypt(ctx context.Context) (*EncryptedInput, error)
}

// EncryptedInput is the result of InputBuilder.Encrypt
type EncryptedInput struct {
	Handles    []common.Hash
	InputProof []byte
}

// PublicDecryptResult carries the clear values and the proof the contract verifies
type PublicDecryptResult struct {
	ClearValues           map[common.Hash]*big.Int
	AbiEncodedClearValues []byte
	DecryptionProof       []byte
}

// CreateParams describes one instance creation attempt
type CreateParams struct {
	// Provider is the chain connection descriptor (an RPC URL)
	Provider string
	// ChainID is a hint; 0 means resolve it from Provider
	ChainID int64
	// MockChains maps chain ids to local node URLs served without a relayer
	MockChains map[int64]string
	// OnStatusChange receives creation progress steps
	OnStatusChange func(step string)
}

// Factory creates Instances. Implementations should observe ctx between
// steps but callers never rely on it stopping the work.
type Factory interface {
	CreateInstance(ctx context.Context, params CreateParams) (Instance, error)
}

// FactoryFunc adapts a function to Factory
type FactoryFunc func(ctx context.Context, params CreateParams) (Instance, error)

func (f FactoryFunc) CreateInstance(ctx context.Context, params CreateParams) (Instance, error) {
	return f(ctx, params)
}
