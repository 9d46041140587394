package relayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ahwlsqja/shadow-vote/pkg/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

const (
	publicKeyPrefix    = "fhevm:publicKey:"
	publicParamsPrefix = "fhevm:publicParams:"
)

var errInvalidRecord = errors.New("invalid key material record")

// PublicKey is the network public key and its id
type PublicKey struct {
	ID   string        `json:"publicKeyId"`
	Data hexutil.Bytes `json:"publicKey"`
}

// PublicParams are the 2048-bit CRS parameters and their id
type PublicParams struct {
	ID   string        `json:"publicParamsId"`
	Data hexutil.Bytes `json:"publicParams"`
}

// PublicKeyStorage caches network key material per ACL address
type PublicKeyStorage struct {
	storage storage.Storage
	logger  *zap.Logger
}

// NewPublicKeyStorage creates a PublicKeyStorage on top of store
func NewPublicKeyStorage(store storage.Storage, logger *zap.Logger) *PublicKeyStorage {
	return &PublicKeyStorage{
		storage: store,
		logger:  logger,
	}
}

// Get returns the cached key material for aclAddress. Missing or
// unreadable records come back as nil.
func (s *PublicKeyStorage) Get(ctx context.Context, aclAddress common.Address) (*PublicKey, *PublicParams) {
	var pk PublicKey
	var pp PublicParams

	pkOK := s.read(ctx, publicKeyPrefix+aclAddress.Hex(), &pk, func() error {
		return checkRecord(pk.ID, pk.Data)
	})
	ppOK := s.read(ctx, publicParamsPrefix+aclAddress.Hex(), &pp, func() error {
		return checkRecord(pp.ID, pp.Data)
	})

	var outPK *PublicKey
	var outPP *PublicParams
	if pkOK {
		outPK = &pk
	}
	if ppOK {
		outPP = &pp
	}
	return outPK, outPP
}

// Set stores whichever of publicKey and publicParams is non-nil
func (s *PublicKeyStorage) Set(ctx context.Context, aclAddress common.Address, publicKey *PublicKey, publicParams *PublicParams) error {
	if publicKey != nil {
		if err := checkRecord(publicKey.ID, publicKey.Data); err != nil {
			return err
		}
	}
	if publicParams != nil {
		if err := checkRecord(publicParams.ID, publicParams.Data); err != nil {
			return err
		}
	}

	if publicKey != nil {
		if err := s.write(ctx, publicKeyPrefix+aclAddress.Hex(), publicKey); err != nil {
			return err
		}
	}
	if publicParams != nil {
		if err := s.write(ctx, publicParamsPrefix+aclAddress.Hex(), publicParams); err != nil {
			return err
		}
	}
	return nil
}

func (s *PublicKeyStorage) read(ctx context.Context, key string, out interface{}, check func() error) bool {
	raw, err := s.storage.GetItem(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to read key material", zap.String("key", key), zap.Error(err))
		}
		return false
	}

	if err := json.Unmarshal([]byte(raw), out); err == nil {
		err = check()
		if err == nil {
			return true
		}
		s.logger.Warn("ignoring invalid key material record", zap.String("key", key), zap.Error(err))
		return false
	}
	s.logger.Warn("ignoring unreadable key material record", zap.String("key", key))
	return false
}

func (s *PublicKeyStorage) write(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode key material: %w", err)
	}
	if err := s.storage.SetItem(ctx, key, string(data)); err != nil {
		return fmt.Errorf("failed to store key material: %w", err)
	}
	return nil
}

func checkRecord(id string, data []byte) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: missing id", errInvalidRecord)
	case len(data) == 0:
		return fmt.Errorf("%w: missing data", errInvalidRecord)
	}
	return nil
}
