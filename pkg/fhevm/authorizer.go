package fhevm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ahwlsqja/shadow-vote/pkg/storage"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultDurationDays is the lifetime of a fresh authorization
	DefaultDurationDays = 365
)

// Authorizer creates, persists and reuses decryption signatures
type Authorizer struct {
	storage      storage.Storage
	logger       *zap.Logger
	durationDays int64
	now          func() time.Time
	dedupe       bool
	inflight     singleflight.Group
}

// AuthorizerOption configures an Authorizer
type AuthorizerOption func(*Authorizer)

// WithDurationDays overrides the authorization lifetime
func WithDurationDays(days int64) AuthorizerOption {
	return func(a *Authorizer) {
		if days > 0 {
			a.durationDays = days
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) AuthorizerOption {
	return func(a *Authorizer) {
		a.now = now
	}
}

// WithDeduplication makes concurrent LoadOrSign calls for the same cache
// key share one load-or-sign run, so the wallet is prompted once.
func WithDeduplication(enabled bool) AuthorizerOption {
	return func(a *Authorizer) {
		a.dedupe = enabled
	}
}

// NewAuthorizer creates an Authorizer on top of store
func NewAuthorizer(store storage.Storage, logger *zap.Logger, opts ...AuthorizerOption) *Authorizer {
	a := &Authorizer{
		storage:      store,
		logger:       logger,
		durationDays: DefaultDurationDays,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Create asks signer to sign a fresh authorization for contractAddresses.
// Nothing is persisted. Any signer or instance failure is reported as
// ErrAuthorizationFailed wrapping the cause.
func (a *Authorizer) Create(
	ctx context.Context,
	instance Instance,
	contractAddresses []common.Address,
	publicKey, privateKey []byte,
	signer Signer,
) (*DecryptionSignature, error) {
	userAddress, err := signer.GetAddress(ctx)
	if err != nil {
		return nil, a.authorizationFailed("failed to resolve signer address", err)
	}

	startTimestamp := a.now().Unix()
	payload, err := instance.CreateEIP712(publicKey, contractAddresses, startTimestamp, a.durationDays)
	if err != nil {
		return nil, a.authorizationFailed("failed to build eip712 payload", err)
	}

	signature, err := signer.SignTypedData(ctx, payload)
	if err != nil {
		return nil, a.authorizationFailed("signer rejected decryption authorization", err)
	}

	sig, err := NewDecryptionSignature(DecryptionSignatureParams{
		PublicKey:         publicKey,
		PrivateKey:        privateKey,
		Signature:         signature,
		StartTimestamp:    startTimestamp,
		DurationDays:      a.durationDays,
		UserAddress:       userAddress,
		ContractAddresses: contractAddresses,
		EIP712:            payload,
	})
	if err != nil {
		return nil, a.authorizationFailed("signer produced an unusable authorization", err)
	}

	a.logger.Info("decryption authorization signed",
		zap.String("address", userAddress.Hex()),
		zap.Int("contracts", len(contractAddresses)),
		zap.Time("expires_at", sig.ExpiresAt()),
	)
	return sig, nil
}

func (a *Authorizer) authorizationFailed(msg string, err error) error {
	a.logger.Warn(msg, zap.Error(err))
	return fmt.Errorf("%w: %w", ErrAuthorizationFailed, err)
}

// Save writes sig under its cache key. withPublicKey selects the cache
// key flavor bound to sig's public key. Failures are logged and dropped;
// a missing entry only costs a new signature later.
func (a *Authorizer) Save(ctx context.Context, sig *DecryptionSignature, instance Instance, withPublicKey bool) {
	var publicKey []byte
	if withPublicKey {
		publicKey = sig.publicKey
	}

	key, err := CacheKey(instance, sig.contractAddresses, sig.userAddress.Hex(), publicKey)
	if err != nil {
		a.logger.Warn("failed to derive signature cache key", zap.Error(err))
		return
	}

	value, err := json.Marshal(sig)
	if err != nil {
		a.logger.Warn("failed to serialize decryption signature", zap.Error(err))
		return
	}

	if err := a.storage.SetItem(ctx, key, string(value)); err != nil {
		a.logger.Warn("failed to cache decryption signature",
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}

	a.logger.Debug("decryption signature cached", zap.String("key", key))
}

// Load returns the cached, unexpired signature for the tuple.
// A missing, unreadable, malformed or expired entry yields (nil, nil);
// expired entries are left in storage. Only invalid input is an error.
func (a *Authorizer) Load(
	ctx context.Context,
	instance Instance,
	contractAddresses []common.Address,
	userAddress string,
	publicKey []byte,
) (*DecryptionSignature, error) {
	key, err := CacheKey(instance, contractAddresses, userAddress, publicKey)
	if err != nil {
		return nil, err
	}

	value, err := a.storage.GetItem(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			a.logger.Warn("failed to read decryption signature",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return nil, nil
	}

	sig, err := ParseDecryptionSignature([]byte(value))
	if err != nil {
		a.logger.Warn("ignoring malformed cached decryption signature",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, nil
	}

	if !sig.IsValidAt(a.now()) {
		a.logger.Debug("cached decryption signature expired",
			zap.String("key", key),
			zap.Time("expired_at", sig.ExpiresAt()),
		)
		return nil, nil
	}
	return sig, nil
}

// LoadOrSign returns a cached authorization for (signer, contractAddresses)
// or signs, caches and returns a new one. Load always completes before a
// signature is requested. keyPair is optional; without it a fresh key
// pair is generated by instance.
func (a *Authorizer) LoadOrSign(
	ctx context.Context,
	instance Instance,
	contractAddresses []common.Address,
	signer Signer,
	keyPair *KeyPair,
) (*DecryptionSignature, error) {
	if len(contractAddresses) == 0 {
		return nil, ErrNoContractAddresses
	}

	userAddress, err := signer.GetAddress(ctx)
	if err != nil {
		return nil, a.authorizationFailed("failed to resolve signer address", err)
	}

	var publicKey []byte
	if keyPair != nil {
		publicKey = keyPair.PublicKey
	}

	if !a.dedupe {
		return a.loadOrSign(ctx, instance, contractAddresses, signer, userAddress, publicKey, keyPair)
	}

	key, err := CacheKey(instance, contractAddresses, userAddress.Hex(), publicKey)
	if err != nil {
		return nil, err
	}
	for {
		led := false
		ch := a.inflight.DoChan(key, func() (interface{}, error) {
			led = true
			return a.loadOrSign(ctx, instance, contractAddresses, signer, userAddress, publicKey, keyPair)
		})

		select {
		case <-ctx.Done():
			return nil, a.authorizationFailed("decryption authorization abandoned", ctx.Err())
		case res := <-ch:
			if res.Shared && !led {
				a.logger.Debug("joined in-flight decryption authorization", zap.String("key", key))
			}
			if res.Err == nil {
				return res.Val.(*DecryptionSignature), nil
			}
			// The flight ran under another caller's context. Its
			// cancellation says nothing about ours.
			if !led && ctx.Err() == nil && isContextError(res.Err) {
				a.logger.Debug("in-flight decryption authorization canceled by its leader, retrying", zap.String("key", key))
				continue
			}
			return nil, res.Err
		}
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (a *Authorizer) loadOrSign(
	ctx context.Context,
	instance Instance,
	contractAddresses []common.Address,
	signer Signer,
	userAddress common.Address,
	publicKey []byte,
	keyPair *KeyPair,
) (*DecryptionSignature, error) {
	cached, err := a.Load(ctx, instance, contractAddresses, userAddress.Hex(), publicKey)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	var pair KeyPair
	if keyPair != nil {
		pair = *keyPair
	} else {
		pair, err = instance.GenerateKeypair()
		if err != nil {
			return nil, a.authorizationFailed("failed to generate key pair", err)
		}
	}

	sig, err := a.Create(ctx, instance, SortAddresses(contractAddresses), pair.PublicKey, pair.PrivateKey, signer)
	if err != nil {
		return nil, err
	}

	a.Save(ctx, sig, instance, len(publicKey) > 0)
	return sig, nil
}
