package decryption

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/ahwlsqja/shadow-vote/internal/common/errors"
	"github.com/ahwlsqja/shadow-vote/pkg/fhevm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// InstanceSource hands out the current fhevm instance
type InstanceSource interface {
	Wait(ctx context.Context) (fhevm.Instance, error)
}

// Service issues and inspects decryption authorizations for the
// gateway's own signer.
type Service struct {
	authorizer  *fhevm.Authorizer
	instances   InstanceSource
	signer      fhevm.Signer
	waitTimeout time.Duration
	logger      *zap.Logger
}

// NewService creates a new decryption service
func NewService(authorizer *fhevm.Authorizer, instances InstanceSource, signer fhevm.Signer, waitTimeout time.Duration, logger *zap.Logger) *Service {
	if waitTimeout <= 0 {
		waitTimeout = 30 * time.Second
	}
	return &Service{
		authorizer:  authorizer,
		instances:   instances,
		signer:      signer,
		waitTimeout: waitTimeout,
		logger:      logger,
	}
}

// Authorize returns a valid authorization for the contracts, signing a new
// one only when no cached entry is usable.
func (s *Service) Authorize(ctx context.Context, req *AuthorizeRequest) (*fhevm.DecryptionSignature, string, error) {
	contracts, err := parseContracts(req.ContractAddresses)
	if err != nil {
		return nil, "", err
	}
	keyPair, err := parseKeyPair(req.PublicKey, req.PrivateKey)
	if err != nil {
		return nil, "", err
	}

	instance, err := s.instance(ctx)
	if err != nil {
		return nil, "", err
	}

	sig, err := s.authorizer.LoadOrSign(ctx, instance, contracts, s.signer, keyPair)
	if err != nil {
		if stderrors.Is(err, fhevm.ErrAuthorizationFailed) {
			return nil, "", errors.AuthorizationFailed(err)
		}
		return nil, "", errors.InvalidInput(err.Error())
	}

	var publicKey []byte
	if keyPair != nil {
		publicKey = keyPair.PublicKey
	}
	key, err := fhevm.CacheKey(instance, contracts, sig.UserAddress().Hex(), publicKey)
	if err != nil {
		return nil, "", errors.Internal("Failed to derive cache key").WithError(err)
	}
	return sig, key, nil
}

// Lookup returns the cached authorization for the query without signing
func (s *Service) Lookup(ctx context.Context, q *CacheKeyQuery) (*fhevm.DecryptionSignature, string, error) {
	instance, key, err := s.resolve(ctx, q)
	if err != nil {
		return nil, "", err
	}

	sig, err := s.authorizer.Load(ctx, instance, key.contracts, key.user, key.publicKey)
	if err != nil {
		return nil, "", errors.InvalidInput(err.Error())
	}
	if sig == nil {
		return nil, "", errors.NotFound("Decryption signature")
	}
	return sig, key.value, nil
}

// CacheKey derives the storage key the query's authorization lives under
func (s *Service) CacheKey(ctx context.Context, q *CacheKeyQuery) (string, error) {
	_, key, err := s.resolve(ctx, q)
	if err != nil {
		return "", err
	}
	return key.value, nil
}

type resolvedKey struct {
	user      string
	contracts []common.Address
	publicKey []byte
	value     string
}

func (s *Service) resolve(ctx context.Context, q *CacheKeyQuery) (fhevm.Instance, *resolvedKey, error) {
	contracts, err := parseContracts(strings.Split(q.Contracts, ","))
	if err != nil {
		return nil, nil, err
	}

	user := q.User
	if user == "" {
		addr, err := s.signer.GetAddress(ctx)
		if err != nil {
			return nil, nil, errors.Internal("Failed to resolve signer address").WithError(err)
		}
		user = addr.Hex()
	}

	var publicKey []byte
	if q.PublicKey != "" {
		if publicKey, err = hexutil.Decode(q.PublicKey); err != nil {
			return nil, nil, errors.InvalidInput("Invalid public key")
		}
	}

	instance, err := s.instance(ctx)
	if err != nil {
		return nil, nil, err
	}

	value, err := fhevm.CacheKey(instance, contracts, user, publicKey)
	if err != nil {
		return nil, nil, errors.InvalidInput(err.Error())
	}
	return instance, &resolvedKey{user: user, contracts: contracts, publicKey: publicKey, value: value}, nil
}

func (s *Service) instance(ctx context.Context) (fhevm.Instance, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.waitTimeout)
	defer cancel()

	instance, err := s.instances.Wait(waitCtx)
	if err != nil {
		s.logger.Warn("fhevm instance unavailable", zap.Error(err))
		return nil, errors.InstanceNotReady(err)
	}
	return instance, nil
}

func parseContracts(list []string) ([]common.Address, error) {
	trimmed := make([]string, 0, len(list))
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	if len(trimmed) == 0 {
		return nil, errors.InvalidInput(fhevm.ErrNoContractAddresses.Error())
	}
	contracts, err := fhevm.ParseAddresses(trimmed)
	if err != nil {
		return nil, errors.InvalidInput(err.Error())
	}
	return contracts, nil
}

func parseKeyPair(publicKey, privateKey string) (*fhevm.KeyPair, error) {
	if publicKey == "" && privateKey == "" {
		return nil, nil
	}
	if publicKey == "" || privateKey == "" {
		return nil, errors.InvalidInput("public_key and private_key must be given together")
	}

	pub, err := hexutil.Decode(publicKey)
	if err != nil {
		return nil, errors.InvalidInput("Invalid public key")
	}
	priv, err := hexutil.Decode(privateKey)
	if err != nil {
		return nil, errors.InvalidInput("Invalid private key")
	}
	return &fhevm.KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}
