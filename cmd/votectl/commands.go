package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ahwlsqja/shadow-vote/internal/bootstrap"
	"github.com/ahwlsqja/shadow-vote/internal/config"
	"github.com/ahwlsqja/shadow-vote/internal/decryption"
	"github.com/ahwlsqja/shadow-vote/pkg/fhevm"
	"github.com/ahwlsqja/shadow-vote/pkg/fhevm/mock"
	"github.com/ahwlsqja/shadow-vote/pkg/fhevm/relayer"
	"github.com/ahwlsqja/shadow-vote/pkg/signer"
	"github.com/ahwlsqja/shadow-vote/pkg/storage"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/kyokomi/emoji"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

var rpcFlag = cli.StringFlag{
	Name:  "rpc",
	Usage: "chain RPC URL (defaults to CHAIN_RPC_URL)",
}

var contractsFlag = cli.StringFlag{
	Name:  "contracts, c",
	Usage: "comma-separated contract addresses",
}

var timeoutFlag = cli.DurationFlag{
	Name:  "timeout",
	Value: 30 * time.Second,
	Usage: "give up after this long",
}

func statusCmd() cli.Command {
	return cli.Command{
		Name:      "status",
		Usage:     "Create an fhevm instance for the provider and report how it was built",
		UsageText: "votectl status [--rpc URL]",
		Flags:     []cli.Flag{rpcFlag, timeoutFlag},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			inst, err := createInstance(ctx, c, cfg, func(step string) {
				emoji.Printf(":hourglass: %s\n", step)
			})
			if err != nil {
				emoji.Printf(":broken_heart: instance creation failed: %s\n", err)
				return err
			}
			emoji.Printf(":white_check_mark: %s instance ready\n", instanceKind(inst))
			return nil
		},
	}
}

func cacheKeyCmd() cli.Command {
	return cli.Command{
		Name:      "cache-key",
		Usage:     "Print the storage key of a decryption authorization",
		UsageText: "votectl cache-key --user ADDRESS --contracts A,B [--public-key HEX]",
		Flags: []cli.Flag{
			rpcFlag,
			contractsFlag,
			timeoutFlag,
			cli.StringFlag{Name: "user, u", Usage: "user address"},
			cli.StringFlag{Name: "public-key", Usage: "hex public key of a supplied key pair"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			contracts, err := fhevm.ParseAddresses(splitList(c.String("contracts")))
			if err != nil {
				return err
			}
			var publicKey []byte
			if pk := c.String("public-key"); pk != "" {
				if publicKey, err = hexutil.Decode(pk); err != nil {
					return fmt.Errorf("invalid public key: %w", err)
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			inst, err := createInstance(ctx, c, cfg, nil)
			if err != nil {
				return err
			}
			key, err := fhevm.CacheKey(inst, contracts, c.String("user"), publicKey)
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	}
}

func signCmd() cli.Command {
	return cli.Command{
		Name:      "sign",
		Usage:     "Load or sign a decryption authorization with the configured key and cache it",
		UsageText: "votectl sign --contracts A,B [--key HEX]",
		Flags: []cli.Flag{
			rpcFlag,
			contractsFlag,
			timeoutFlag,
			cli.StringFlag{Name: "key, k", Usage: "signer private key (defaults to SIGNER_PRIVATE_KEY)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(c)
			contracts, err := fhevm.ParseAddresses(splitList(c.String("contracts")))
			if err != nil {
				return err
			}

			key := c.String("key")
			if key == "" {
				key = cfg.Chain.SignerPrivateKey
			}
			if key == "" {
				return fmt.Errorf("no signer key: pass --key or set SIGNER_PRIVATE_KEY")
			}
			s, err := signer.NewKeySigner(key)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			stores, err := bootstrap.OpenStorage(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer stores.Close()

			inst, err := createInstanceWith(ctx, c, cfg, stores.Storage, logger, nil)
			if err != nil {
				return err
			}

			sig, err := bootstrap.NewAuthorizer(cfg, stores.Storage, logger).LoadOrSign(ctx, inst, contracts, s, nil)
			if err != nil {
				emoji.Printf(":no_entry: %s\n", err)
				return err
			}
			cacheKey, err := fhevm.CacheKey(inst, contracts, sig.UserAddress().Hex(), nil)
			if err != nil {
				return err
			}
			if err := sig.Verify(); err != nil {
				emoji.Fprintf(os.Stderr, ":warning: signature does not verify: %s\n", err)
			} else {
				emoji.Fprintf(os.Stderr, ":lock: authorization valid until %s\n", sig.ExpiresAt().UTC().Format(time.RFC3339))
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(decryption.ToSignatureResponse(sig, cacheKey))
		},
	}
}

func createInstance(ctx context.Context, c *cli.Context, cfg *config.Config, onStep func(string)) (fhevm.Instance, error) {
	return createInstanceWith(ctx, c, cfg, storage.NewMemory(), newLogger(c), onStep)
}

func createInstanceWith(ctx context.Context, c *cli.Context, cfg *config.Config, store storage.Storage, logger *zap.Logger, onStep func(string)) (fhevm.Instance, error) {
	rpc := c.String("rpc")
	if rpc == "" {
		rpc = cfg.Chain.RPCURL
	}
	return bootstrap.NewFactory(cfg, store, logger).CreateInstance(ctx, fhevm.CreateParams{
		Provider:       rpc,
		MockChains:     cfg.FHEVM.MockChains,
		OnStatusChange: onStep,
	})
}

func instanceKind(inst fhevm.Instance) string {
	switch inst.(type) {
	case *mock.Instance:
		return "mock"
	case *relayer.Instance:
		return "relayer"
	default:
		return fmt.Sprintf("%T", inst)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
