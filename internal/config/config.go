package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Storage       StorageConfig
	Chain         ChainConfig
	FHEVM         FHEVMConfig
	Authorization AuthorizationConfig
}

type ServerConfig struct {
	Host         string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"2m"`
	Environment  string        `envconfig:"ENVIRONMENT" default:"development"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"3306"`
	User            string        `envconfig:"DB_USER" default:"app"`
	Password        string        `envconfig:"DB_PASSWORD" default:"apppassword"`
	Name            string        `envconfig:"DB_NAME" default:"shadow_vote"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Storage backends
const (
	BackendRedis  = "redis"
	BackendMySQL  = "mysql"
	BackendMemory = "memory"
)

// StorageConfig selects where signatures, key material and question
// aliases are persisted.
type StorageConfig struct {
	Backend   string `envconfig:"STORAGE_BACKEND" default:"redis"`
	KeyPrefix string `envconfig:"STORAGE_KEY_PREFIX" default:"shadow-vote"`
}

type ChainConfig struct {
	RPCURL                string        `envconfig:"CHAIN_RPC_URL" default:"http://localhost:8545"`
	ChainID               int64         `envconfig:"CHAIN_ID" default:"31337"`
	VotingContractAddress string        `envconfig:"VOTING_CONTRACT_ADDRESS" default:""`
	SignerPrivateKey      string        `envconfig:"SIGNER_PRIVATE_KEY" default:""`
	TxTimeout             time.Duration `envconfig:"CHAIN_TX_TIMEOUT" default:"2m"`
	PollingInterval       time.Duration `envconfig:"CHAIN_POLLING_INTERVAL" default:"1s"`
}

// ChainMap decodes "31337:http://localhost:8545,1337:http://..." pairs
type ChainMap map[int64]string

// Decode implements envconfig.Decoder
func (m *ChainMap) Decode(value string) error {
	out := make(ChainMap)
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.Index(pair, ":")
		if idx <= 0 || idx == len(pair)-1 {
			return fmt.Errorf("invalid chain entry %q, want <chainId>:<rpcUrl>", pair)
		}
		id, err := strconv.ParseInt(pair[:idx], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chain id in %q: %w", pair, err)
		}
		out[id] = pair[idx+1:]
	}
	*m = out
	return nil
}

// FHEVMConfig describes the mock chains and the relayer network
type FHEVMConfig struct {
	Enabled                  bool          `envconfig:"FHEVM_ENABLED" default:"true"`
	MockChains               ChainMap      `envconfig:"FHEVM_MOCK_CHAINS" default:"31337:http://localhost:8545"`
	RelayerURL               string        `envconfig:"FHEVM_RELAYER_URL" default:"https://relayer.testnet.zama.cloud"`
	RelayerChainID           int64         `envconfig:"FHEVM_RELAYER_CHAIN_ID" default:"11155111"`
	GatewayChainID           int64         `envconfig:"FHEVM_GATEWAY_CHAIN_ID" default:"55815"`
	ACLAddress               string        `envconfig:"FHEVM_ACL_ADDRESS" default:"0x687820221192C5B662b25367F70076A37bc79b6c"`
	KMSVerifierAddress       string        `envconfig:"FHEVM_KMS_VERIFIER_ADDRESS" default:"0x1364cBBf2cDF5032C47d8226a6f6FBD2AFCDacAC"`
	InputVerifierAddress     string        `envconfig:"FHEVM_INPUT_VERIFIER_ADDRESS" default:"0xbc91f3daD1A5F19F8390c400196e58073B6a0BC4"`
	DecryptionAddress        string        `envconfig:"FHEVM_DECRYPTION_ADDRESS" default:"0xb6E160B1ff80D67Bfe90A85eE06Ce0A2613607D1"`
	InputVerificationAddress string        `envconfig:"FHEVM_INPUT_VERIFICATION_ADDRESS" default:"0x7048C39f048125eDa9d678AEbaDfB22F7900a29F"`
	MockACLAddress           string        `envconfig:"FHEVM_MOCK_ACL_ADDRESS" default:"0x50157CFfD6bBFA2DECe204a89ec419c23ef5755D"`
	MockDecryptionAddress    string        `envconfig:"FHEVM_MOCK_DECRYPTION_ADDRESS" default:"0x5ffdaAB0373E62E2ea2944776209aEf29E631A64"`
	WaitTimeout              time.Duration `envconfig:"FHEVM_WAIT_TIMEOUT" default:"30s"`
}

type AuthorizationConfig struct {
	DurationDays int64 `envconfig:"AUTHZ_DURATION_DAYS" default:"365"`
	Deduplicate  bool  `envconfig:"AUTHZ_DEDUPLICATE" default:"true"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case BackendRedis, BackendMySQL, BackendMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if c.Authorization.DurationDays <= 0 {
		return fmt.Errorf("AUTHZ_DURATION_DAYS must be positive")
	}
	return nil
}
