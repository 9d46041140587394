package relayer

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ahwlsqja/shadow-vote/pkg/fhevm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"
)

const crsBits = "2048"

// Error definitions
var (
	ErrEncryptionUnavailable = errors.New("no input encryptor configured for this network")
	ErrHandleCount           = errors.New("relayer returned an unexpected number of handles")
)

// Config describes a relayer-backed network
type Config struct {
	RelayerURL               string
	ChainID                  int64
	GatewayChainID           int64
	ACLAddress               common.Address
	KMSVerifierAddress       common.Address
	InputVerifierAddress     common.Address
	DecryptionAddress        common.Address
	InputVerificationAddress common.Address
}

// SepoliaConfig is the public testnet deployment
func SepoliaConfig() Config {
	return Config{
		RelayerURL:               "https://relayer.testnet.zama.cloud",
		ChainID:                  11155111,
		GatewayChainID:           55815,
		ACLAddress:               common.HexToAddress("0x687820221192C5B662b25367F70076A37bc79b6c"),
		KMSVerifierAddress:       common.HexToAddress("0x1364cBBf2cDF5032C47d8226a6f6FBD2AFCDacAC"),
		InputVerifierAddress:     common.HexToAddress("0xbc91f3daD1A5F19F8390c400196e58073B6a0BC4"),
		DecryptionAddress:        common.HexToAddress("0xb6E160B1ff80D67Bfe90A85eE06Ce0A2613607D1"),
		InputVerificationAddress: common.HexToAddress("0x7048C39f048125eDa9d678AEbaDfB22F7900a29F"),
	}
}

// Instance is an fhevm.Instance that delegates to a relayer
type Instance struct {
	cfg          Config
	client       *Client
	encryptor    fhevm.Encryptor
	logger       *zap.Logger
	publicKey    PublicKey
	publicParams *PublicParams
}

// Compile-time interface compliance check
var _ fhevm.Instance = (*Instance)(nil)

// New creates an Instance, reusing cached key material when keys has it.
// encryptor may be nil, in which case encrypted inputs are refused.
func New(ctx context.Context, cfg Config, client *Client, keys *PublicKeyStorage, encryptor fhevm.Encryptor, logger *zap.Logger) (*Instance, error) {
	pk, pp := keys.Get(ctx, cfg.ACLAddress)
	if pk == nil {
		var err error
		pk, pp, err = fetchKeyMaterial(ctx, client)
		if err != nil {
			return nil, err
		}
		if err := keys.Set(ctx, cfg.ACLAddress, pk, pp); err != nil {
			logger.Warn("failed to cache network key material", zap.Error(err))
		}
	} else {
		logger.Debug("using cached network public key", zap.String("public_key_id", pk.ID))
	}

	return &Instance{
		cfg:          cfg,
		client:       client,
		encryptor:    encryptor,
		logger:       logger,
		publicKey:    *pk,
		publicParams: pp,
	}, nil
}

func fetchKeyMaterial(ctx context.Context, client *Client) (*PublicKey, *PublicParams, error) {
	urls, err := client.KeyURL(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve key urls: %w", err)
	}

	info := urls.FheKeyInfo[0].FhePublicKey
	if len(info.URLs) == 0 {
		return nil, nil, fmt.Errorf("%w: no public key url", ErrEmptyResponse)
	}
	data, err := client.Download(ctx, info.URLs[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download public key: %w", err)
	}
	pk := &PublicKey{ID: info.DataID, Data: data}

	crs, ok := urls.CRS[crsBits]
	if !ok || len(crs.URLs) == 0 {
		return pk, nil, nil
	}
	params, err := client.Download(ctx, crs.URLs[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download public params: %w", err)
	}
	return pk, &PublicParams{ID: crs.DataID, Data: params}, nil
}

// PublicKeyID identifies the network key in use
func (r *Instance) PublicKeyID() string {
	return r.publicKey.ID
}

func (r *Instance) CreateEncryptedInput(contractAddress, userAddress common.Address) fhevm.InputBuilder {
	return fhevm.NewInputBuilder(contractAddress, userAddress, r.encrypt)
}

func (r *Instance) encrypt(ctx context.Context, req fhevm.EncryptRequest) (*fhevm.EncryptedInput, error) {
	if r.encryptor == nil {
		return nil, ErrEncryptionUnavailable
	}

	ciphertext, err := r.encryptor.Encrypt(r.publicKey.Data, req.Values)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.InputProof(ctx, InputProofRequest{
		ContractAddress:                 req.ContractAddress.Hex(),
		UserAddress:                     req.UserAddress.Hex(),
		CiphertextWithInputVerification: hexutil.Encode(ciphertext),
		ContractChainID:                 hexutil.EncodeUint64(uint64(r.cfg.ChainID)),
		ExtraData:                       "0x00",
	})
	if err != nil {
		return nil, err
	}

	handles, err := decodeHandles(resp.Handles)
	if err != nil {
		return nil, err
	}
	if len(handles) != len(req.Values) {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrHandleCount, len(req.Values), len(handles))
	}

	sigs, err := decodeHexList(resp.Signatures)
	if err != nil {
		return nil, err
	}

	proof, err := fhevm.EncodeInputProof(handles, sigs, []byte{0x00})
	if err != nil {
		return nil, err
	}
	return &fhevm.EncryptedInput{Handles: handles, InputProof: proof}, nil
}

func (r *Instance) PublicDecrypt(ctx context.Context, handles []common.Hash) (*fhevm.PublicDecryptResult, error) {
	hexHandles := make([]string, len(handles))
	for i, h := range handles {
		hexHandles[i] = h.Hex()
	}

	resp, err := r.client.PublicDecrypt(ctx, PublicDecryptRequest{
		CiphertextHandles: hexHandles,
		ExtraData:         "0x00",
	})
	if err != nil {
		return nil, err
	}

	encoded, err := decodeHexList([]string{resp.DecryptedValue})
	if err != nil {
		return nil, err
	}
	values, err := fhevm.DecodeClearValues(encoded[0], len(handles))
	if err != nil {
		return nil, err
	}

	sigs, err := decodeHexList(resp.Signatures)
	if err != nil {
		return nil, err
	}
	proof, err := fhevm.EncodeDecryptionProof(sigs, []byte{0x00})
	if err != nil {
		return nil, err
	}

	clearValues := make(map[common.Hash]*big.Int, len(handles))
	for i, h := range handles {
		clearValues[h] = values[i]
	}

	r.logger.Debug("public decryption completed", zap.Int("handles", len(handles)))
	return &fhevm.PublicDecryptResult{
		ClearValues:           clearValues,
		AbiEncodedClearValues: encoded[0],
		DecryptionProof:       proof,
	}, nil
}

func (r *Instance) GenerateKeypair() (fhevm.KeyPair, error) {
	return fhevm.GenerateKeypair()
}

func (r *Instance) CreateEIP712(publicKey []byte, contractAddresses []common.Address, startTimestamp, durationDays int64) (apitypes.TypedData, error) {
	return fhevm.NewUserDecryptEIP712(fhevm.Domain{
		ChainID:           r.cfg.GatewayChainID,
		VerifyingContract: r.cfg.DecryptionAddress,
	}, publicKey, contractAddresses, startTimestamp, durationDays), nil
}

func decodeHandles(values []string) ([]common.Hash, error) {
	raw, err := decodeHexList(values)
	if err != nil {
		return nil, err
	}
	handles := make([]common.Hash, len(raw))
	for i, b := range raw {
		if len(b) != common.HashLength {
			return nil, fmt.Errorf("%w: handle %d is %d bytes", ErrRelayer, i, len(b))
		}
		handles[i] = common.BytesToHash(b)
	}
	return handles, nil
}
