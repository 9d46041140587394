// Package factory builds fhevm instances for a connection descriptor,
// routing configured development chains to the mock instance and every
// other chain to the relayer network.
package factory

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ahwlsqja/shadow-vote/pkg/fhevm"
	"github.com/ahwlsqja/shadow-vote/pkg/fhevm/mock"
	"github.com/ahwlsqja/shadow-vote/pkg/fhevm/relayer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// Progress steps reported through CreateParams.OnStatusChange
const (
	StepSDKLoading = "sdk-loading"
	StepSDKLoaded  = "sdk-loaded"
	StepCreating   = "creating"
)

// Error definitions
var (
	ErrUnsupportedChain = errors.New("chain is neither a mock chain nor served by the relayer")
	ErrNoProvider       = errors.New("no provider configured")
)

// ChainClient is the RPC surface the factory needs
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// Dialer opens a ChainClient for rpcURL
type Dialer func(ctx context.Context, rpcURL string) (ChainClient, error)

// MockConfig holds the addresses used on development chains
type MockConfig struct {
	ACLAddress        common.Address
	DecryptionAddress common.Address
}

// Config selects the networks the factory can build instances for
type Config struct {
	Relayer relayer.Config
	Mock    MockConfig
}

// Factory implements fhevm.Factory
type Factory struct {
	cfg       Config
	keys      *relayer.PublicKeyStorage
	encryptor fhevm.Encryptor
	logger    *zap.Logger
	dial      Dialer
	client    *relayer.Client
}

// Compile-time interface compliance check
var _ fhevm.Factory = (*Factory)(nil)

// Option configures a Factory
type Option func(*Factory)

// WithDialer replaces the ethclient dialer
func WithDialer(d Dialer) Option {
	return func(f *Factory) {
		f.dial = d
	}
}

// WithEncryptor sets the input encryptor handed to relayer instances
func WithEncryptor(e fhevm.Encryptor) Option {
	return func(f *Factory) {
		f.encryptor = e
	}
}

// WithRelayerClient replaces the relayer HTTP client
func WithRelayerClient(c *relayer.Client) Option {
	return func(f *Factory) {
		f.client = c
	}
}

// New creates a Factory. keys caches relayer key material.
func New(cfg Config, keys *relayer.PublicKeyStorage, logger *zap.Logger, opts ...Option) *Factory {
	f := &Factory{
		cfg:    cfg,
		keys:   keys,
		logger: logger,
		dial:   dialEthclient,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = relayer.NewClient(cfg.Relayer.RelayerURL, logger)
	}
	return f
}

func dialEthclient(ctx context.Context, rpcURL string) (ChainClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// CreateInstance resolves the chain behind params.Provider, unless
// params.ChainID names it already, and builds the matching instance. Cancellation of ctx is checked between steps and
// reported as fhevm.ErrCanceled.
func (f *Factory) CreateInstance(ctx context.Context, params fhevm.CreateParams) (fhevm.Instance, error) {
	if params.Provider == "" {
		return nil, ErrNoProvider
	}
	notify := params.OnStatusChange
	if notify == nil {
		notify = func(string) {}
	}

	chainID := params.ChainID
	if chainID == 0 {
		var err error
		chainID, err = f.resolveChainID(ctx, params.Provider)
		if err != nil {
			return nil, f.abortOr(ctx, err)
		}
	}
	if err := checkAbort(ctx); err != nil {
		return nil, err
	}

	if rpcURL, ok := params.MockChains[chainID]; ok {
		return f.createMock(ctx, chainID, rpcURL)
	}

	if chainID != f.cfg.Relayer.ChainID {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
	}

	notify(StepSDKLoading)
	f.logger.Debug("loading relayer network", zap.String("relayer", f.cfg.Relayer.RelayerURL))
	notify(StepSDKLoaded)
	if err := checkAbort(ctx); err != nil {
		return nil, err
	}

	notify(StepCreating)
	inst, err := relayer.New(ctx, f.cfg.Relayer, f.client, f.keys, f.encryptor, f.logger)
	if err != nil {
		return nil, f.abortOr(ctx, err)
	}
	if err := checkAbort(ctx); err != nil {
		return nil, err
	}

	f.logger.Info("relayer fhevm instance created", zap.Int64("chain_id", chainID))
	return inst, nil
}

func (f *Factory) resolveChainID(ctx context.Context, rpcURL string) (int64, error) {
	client, err := f.dial(ctx, rpcURL)
	if err != nil {
		return 0, fmt.Errorf("failed to dial provider: %w", err)
	}
	defer client.Close()

	id, err := client.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read chain id: %w", err)
	}
	return id.Int64(), nil
}

func (f *Factory) createMock(ctx context.Context, chainID int64, rpcURL string) (fhevm.Instance, error) {
	client, err := f.dial(ctx, rpcURL)
	if err != nil {
		return nil, f.abortOr(ctx, fmt.Errorf("failed to dial mock chain: %w", err))
	}
	defer client.Close()

	inst, err := mock.New(ctx, client, mock.Config{
		ChainID:           chainID,
		ACLAddress:        f.cfg.Mock.ACLAddress,
		DecryptionAddress: f.cfg.Mock.DecryptionAddress,
	}, f.logger)
	if err != nil {
		return nil, f.abortOr(ctx, err)
	}
	if err := checkAbort(ctx); err != nil {
		return nil, err
	}
	return inst, nil
}

func checkAbort(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", fhevm.ErrCanceled, err)
	}
	return nil
}

// abortOr prefers reporting cancellation over the error it caused
func (f *Factory) abortOr(ctx context.Context, err error) error {
	if abort := checkAbort(ctx); abort != nil {
		f.logger.Debug("instance creation aborted", zap.Error(err))
		return abort
	}
	return err
}
