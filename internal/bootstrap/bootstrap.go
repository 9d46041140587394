// Package bootstrap turns a loaded config into the shared components the
// gateway and the operator CLI are built from.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/ahwlsqja/shadow-vote/internal/config"
	pkgdb "github.com/ahwlsqja/shadow-vote/pkg/db"
	"github.com/ahwlsqja/shadow-vote/pkg/fhevm"
	"github.com/ahwlsqja/shadow-vote/pkg/fhevm/factory"
	"github.com/ahwlsqja/shadow-vote/pkg/fhevm/relayer"
	pkgredis "github.com/ahwlsqja/shadow-vote/pkg/redis"
	"github.com/ahwlsqja/shadow-vote/pkg/signer"
	"github.com/ahwlsqja/shadow-vote/pkg/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewLogger returns a production logger in production and a development
// logger everywhere else.
func NewLogger() (*zap.Logger, error) {
	if os.Getenv("ENVIRONMENT") == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// Stores is the configured storage backend plus the connections behind it
type Stores struct {
	Storage storage.Storage
	DB      *sql.DB
	Redis   *redis.Client
}

// Close releases the underlying connections
func (s *Stores) Close() {
	if s.DB != nil {
		_ = s.DB.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
}

// OpenStorage connects the backend named by cfg.Storage.Backend
func OpenStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory storage, authorizations are lost on restart")
		return &Stores{Storage: storage.NewMemory()}, nil

	case config.BackendRedis:
		rdb, err := pkgredis.Connect(ctx, pkgredis.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Storage: storage.NewRedisStore(rdb, cfg.Storage.KeyPrefix, logger),
			Redis:   rdb,
		}, nil

	case config.BackendMySQL:
		db, err := pkgdb.Connect(ctx, pkgdb.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Name:            cfg.Database.Name,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, err
		}
		store := storage.NewSQLStore(db, logger)
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Stores{Storage: store, DB: db}, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// RelayerConfig maps the FHEVM section onto the relayer deployment
func RelayerConfig(cfg *config.Config) relayer.Config {
	f := cfg.FHEVM
	return relayer.Config{
		RelayerURL:               f.RelayerURL,
		ChainID:                  f.RelayerChainID,
		GatewayChainID:           f.GatewayChainID,
		ACLAddress:               common.HexToAddress(f.ACLAddress),
		KMSVerifierAddress:       common.HexToAddress(f.KMSVerifierAddress),
		InputVerifierAddress:     common.HexToAddress(f.InputVerifierAddress),
		DecryptionAddress:        common.HexToAddress(f.DecryptionAddress),
		InputVerificationAddress: common.HexToAddress(f.InputVerificationAddress),
	}
}

// NewFactory builds the instance factory. Relayer key material is cached
// in store.
func NewFactory(cfg *config.Config, store storage.Storage, logger *zap.Logger, opts ...factory.Option) *factory.Factory {
	keys := relayer.NewPublicKeyStorage(store, logger)
	return factory.New(factory.Config{
		Relayer: RelayerConfig(cfg),
		Mock: factory.MockConfig{
			ACLAddress:        common.HexToAddress(cfg.FHEVM.MockACLAddress),
			DecryptionAddress: common.HexToAddress(cfg.FHEVM.MockDecryptionAddress),
		},
	}, keys, logger, opts...)
}

// LifecycleParams derives the initial lifecycle inputs
func LifecycleParams(cfg *config.Config) fhevm.LifecycleParams {
	return fhevm.LifecycleParams{
		Provider:          cfg.Chain.RPCURL,
		ChainID:           cfg.Chain.ChainID,
		Enabled:           cfg.FHEVM.Enabled,
		InitialMockChains: cfg.FHEVM.MockChains,
	}
}

// NewAuthorizer builds the decryption authorizer on store
func NewAuthorizer(cfg *config.Config, store storage.Storage, logger *zap.Logger) *fhevm.Authorizer {
	return fhevm.NewAuthorizer(store, logger,
		fhevm.WithDurationDays(cfg.Authorization.DurationDays),
		fhevm.WithDeduplication(cfg.Authorization.Deduplicate),
	)
}

// NewSigner loads the configured key, or generates a throwaway one
// outside production.
func NewSigner(cfg *config.Config, logger *zap.Logger) (*signer.KeySigner, error) {
	if cfg.Chain.SignerPrivateKey != "" {
		s, err := signer.NewKeySigner(cfg.Chain.SignerPrivateKey)
		if err != nil {
			return nil, err
		}
		logger.Info("signer loaded", zap.String("address", s.Address().Hex()))
		return s, nil
	}

	if cfg.Server.IsProduction() {
		return nil, fmt.Errorf("SIGNER_PRIVATE_KEY is required in production")
	}
	s, err := signer.GenerateKeySigner()
	if err != nil {
		return nil, err
	}
	logger.Warn("SIGNER_PRIVATE_KEY not set, using a generated key",
		zap.String("address", s.Address().Hex()),
	)
	return s, nil
}
