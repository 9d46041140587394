// Package mock provides an fhevm Instance for local development chains.
//
// It dials the dev node to confirm the chain, keeps clear values of every
// handle it produced in a local coprocessor database, and signs input and
// decryption proofs with throwaway dev keys.
package mock

import (
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ahwlsqja/shadow-vote/pkg/fhevm"
	ecies "github.com/ecies/go/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"
)

const handleVersion = 0

// Error definitions
var (
	ErrChainMismatch = errors.New("dev node reports a different chain id")
)

// ChainIDReader is the part of an RPC client the mock needs
type ChainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// Config holds the addresses and dev keys the mock signs with
type Config struct {
	ChainID           int64
	ACLAddress        common.Address
	DecryptionAddress common.Address

	// CoprocessorKey signs input proofs; generated when nil
	CoprocessorKey *ecdsa.PrivateKey
	// KMSKey signs decryption proofs; generated when nil
	KMSKey *ecdsa.PrivateKey
}

type storedValue struct {
	typ   fhevm.FheType
	value *big.Int
}

// Instance is an fhevm.Instance backed by a local coprocessor database
type Instance struct {
	cfg        Config
	logger     *zap.Logger
	networkKey *ecies.PrivateKey
	encryptor  fhevm.ECIESEncryptor

	mu sync.RWMutex
	db map[common.Hash]storedValue
}

// Compile-time interface compliance check
var _ fhevm.Instance = (*Instance)(nil)

// New builds an Instance after checking the node reports cfg.ChainID
func New(ctx context.Context, node ChainIDReader, cfg Config, logger *zap.Logger) (*Instance, error) {
	chainID, err := node.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	if chainID.Int64() != cfg.ChainID {
		return nil, fmt.Errorf("%w: expected %d, got %s", ErrChainMismatch, cfg.ChainID, chainID)
	}

	if cfg.CoprocessorKey == nil {
		if cfg.CoprocessorKey, err = crypto.GenerateKey(); err != nil {
			return nil, fmt.Errorf("failed to generate coprocessor key: %w", err)
		}
	}
	if cfg.KMSKey == nil {
		if cfg.KMSKey, err = crypto.GenerateKey(); err != nil {
			return nil, fmt.Errorf("failed to generate kms key: %w", err)
		}
	}

	networkKey, err := ecies.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate network key: %w", err)
	}

	logger.Info("mock fhevm instance created",
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("coprocessor", crypto.PubkeyToAddress(cfg.CoprocessorKey.PublicKey).Hex()),
		zap.String("kms", crypto.PubkeyToAddress(cfg.KMSKey.PublicKey).Hex()),
	)

	return &Instance{
		cfg:        cfg,
		logger:     logger,
		networkKey: networkKey,
		db:         make(map[common.Hash]storedValue),
	}, nil
}

// CoprocessorSigner returns the address that signs input proofs
func (m *Instance) CoprocessorSigner() common.Address {
	return crypto.PubkeyToAddress(m.cfg.CoprocessorKey.PublicKey)
}

// KMSSigner returns the address that signs decryption proofs
func (m *Instance) KMSSigner() common.Address {
	return crypto.PubkeyToAddress(m.cfg.KMSKey.PublicKey)
}

// NetworkPublicKey is the key inputs are sealed to
func (m *Instance) NetworkPublicKey() []byte {
	return m.networkKey.PublicKey.Bytes(true)
}

func (m *Instance) CreateEncryptedInput(contractAddress, userAddress common.Address) fhevm.InputBuilder {
	return fhevm.NewInputBuilder(contractAddress, userAddress, m.encrypt)
}

func (m *Instance) encrypt(ctx context.Context, req fhevm.EncryptRequest) (*fhevm.EncryptedInput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ciphertext, err := m.encryptor.Encrypt(m.NetworkPublicKey(), req.Values)
	if err != nil {
		return nil, err
	}

	ctHash := crypto.Keccak256(ciphertext)
	handles := make([]common.Hash, len(req.Values))

	m.mu.Lock()
	for i, v := range req.Values {
		handles[i] = m.computeHandle(ctHash, i, v.Type)
		m.db[handles[i]] = storedValue{typ: v.Type, value: new(big.Int).Set(v.Value)}
	}
	m.mu.Unlock()

	digest := inputProofDigest(handles, req.UserAddress, req.ContractAddress, m.cfg.ChainID)
	sig, err := crypto.Sign(digest, m.cfg.CoprocessorKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign input proof: %w", err)
	}

	proof, err := fhevm.EncodeInputProof(handles, [][]byte{sig}, []byte{0x00})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("mock input encrypted",
		zap.String("contract", req.ContractAddress.Hex()),
		zap.Int("values", len(req.Values)),
	)
	return &fhevm.EncryptedInput{Handles: handles, InputProof: proof}, nil
}

// computeHandle derives a handle: bytes 0-20 hash prefix, 21 index,
// 22-29 chain id, 30 type, 31 version.
func (m *Instance) computeHandle(ctHash []byte, index int, typ fhevm.FheType) common.Hash {
	chainID := make([]byte, 32)
	new(big.Int).SetInt64(m.cfg.ChainID).FillBytes(chainID)

	h := crypto.Keccak256(ctHash, []byte{byte(index)}, m.cfg.ACLAddress.Bytes(), chainID)
	h[21] = byte(index)
	binary.BigEndian.PutUint64(h[22:30], uint64(m.cfg.ChainID))
	h[30] = byte(typ)
	h[31] = handleVersion
	return common.BytesToHash(h)
}

func inputProofDigest(handles []common.Hash, user, contract common.Address, chainID int64) []byte {
	parts := make([][]byte, 0, len(handles)+3)
	for _, h := range handles {
		parts = append(parts, h.Bytes())
	}
	parts = append(parts, user.Bytes(), contract.Bytes(), common.BigToHash(big.NewInt(chainID)).Bytes())
	return crypto.Keccak256(parts...)
}

// SetClearValue records the clear value behind a handle computed on chain
func (m *Instance) SetClearValue(handle common.Hash, typ fhevm.FheType, value *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.db[handle] = storedValue{typ: typ, value: new(big.Int).Set(value)}
}

// ClearValue returns the clear value behind handle
func (m *Instance) ClearValue(handle common.Hash) (*big.Int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.db[handle]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(v.value), true
}

func (m *Instance) PublicDecrypt(ctx context.Context, handles []common.Hash) (*fhevm.PublicDecryptResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clearValues := make(map[common.Hash]*big.Int, len(handles))
	ordered := make([]*big.Int, len(handles))
	for i, h := range handles {
		v, ok := m.ClearValue(h)
		if !ok {
			return nil, fmt.Errorf("%w: %s", fhevm.ErrUnknownHandle, h.Hex())
		}
		clearValues[h] = v
		ordered[i] = v
	}

	encoded, err := fhevm.EncodeClearValues(ordered)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(DecryptionProofDigest(handles, encoded), m.cfg.KMSKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign decryption proof: %w", err)
	}
	proof, err := fhevm.EncodeDecryptionProof([][]byte{sig}, []byte{0x00})
	if err != nil {
		return nil, err
	}

	return &fhevm.PublicDecryptResult{
		ClearValues:           clearValues,
		AbiEncodedClearValues: encoded,
		DecryptionProof:       proof,
	}, nil
}

// DecryptionProofDigest is the hash the KMS key signs for a public decryption
func DecryptionProofDigest(handles []common.Hash, abiEncodedClearValues []byte) []byte {
	parts := make([][]byte, 0, len(handles)+1)
	for _, h := range handles {
		parts = append(parts, h.Bytes())
	}
	parts = append(parts, abiEncodedClearValues)
	return crypto.Keccak256(parts...)
}

func (m *Instance) GenerateKeypair() (fhevm.KeyPair, error) {
	return fhevm.GenerateKeypair()
}

func (m *Instance) CreateEIP712(publicKey []byte, contractAddresses []common.Address, startTimestamp, durationDays int64) (apitypes.TypedData, error) {
	return fhevm.NewUserDecryptEIP712(fhevm.Domain{
		ChainID:           m.cfg.ChainID,
		VerifyingContract: m.cfg.DecryptionAddress,
	}, publicKey, contractAddresses, startTimestamp, durationDays), nil
}
