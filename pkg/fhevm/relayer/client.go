// Package relayer implements an fhevm Instance on top of a relayer
// network: key material is fetched from the relayer, input proofs and
// public decryptions are requested over its HTTP API.
package relayer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

const (
	keyURLPath        = "/v1/keyurl"
	inputProofPath    = "/v1/input-proof"
	publicDecryptPath = "/v1/public-decrypt"

	defaultTimeout = 30 * time.Second
	maxBodySize    = 64 << 20
)

// Error definitions
var (
	ErrRelayer       = errors.New("relayer request failed")
	ErrEmptyResponse = errors.New("relayer returned an empty response")
)

// KeyData locates one piece of key material
type KeyData struct {
	DataID string   `json:"data_id"`
	URLs   []string `json:"urls"`
}

// FheKeyInfo groups the public key descriptors
type FheKeyInfo struct {
	FhePublicKey KeyData `json:"fhe_public_key"`
}

// KeyURLResponse is the payload of GET /v1/keyurl
type KeyURLResponse struct {
	FheKeyInfo []FheKeyInfo       `json:"fhe_key_info"`
	CRS        map[string]KeyData `json:"crs"`
}

// InputProofRequest is the body of POST /v1/input-proof
type InputProofRequest struct {
	ContractAddress                 string `json:"contractAddress"`
	UserAddress                     string `json:"userAddress"`
	CiphertextWithInputVerification string `json:"ciphertextWithInputVerification"`
	ContractChainID                 string `json:"contractChainId"`
	ExtraData                       string `json:"extraData"`
}

// InputProofResponse carries handles and coprocessor signatures
type InputProofResponse struct {
	Handles    []string `json:"handles"`
	Signatures []string `json:"signatures"`
}

// PublicDecryptRequest is the body of POST /v1/public-decrypt
type PublicDecryptRequest struct {
	CiphertextHandles []string `json:"ciphertextHandles"`
	ExtraData         string   `json:"extraData"`
}

// PublicDecryptResponse carries the abi-encoded values and KMS signatures
type PublicDecryptResponse struct {
	DecryptedValue string   `json:"decrypted_value"`
	Signatures     []string `json:"signatures"`
}

type envelope[T any] struct {
	Response *T     `json:"response"`
	Message  string `json:"message,omitempty"`
}

// Client talks to the relayer HTTP API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a relayer client for baseURL
func NewClient(baseURL string, logger *zap.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KeyURL returns where the network public key and CRS can be downloaded
func (c *Client) KeyURL(ctx context.Context) (*KeyURLResponse, error) {
	var out envelope[KeyURLResponse]
	if err := c.do(ctx, http.MethodGet, c.baseURL+keyURLPath, nil, &out); err != nil {
		return nil, err
	}
	if out.Response == nil || len(out.Response.FheKeyInfo) == 0 {
		return nil, ErrEmptyResponse
	}
	return out.Response, nil
}

// InputProof asks the coprocessors to verify an encrypted input
func (c *Client) InputProof(ctx context.Context, req InputProofRequest) (*InputProofResponse, error) {
	var out envelope[InputProofResponse]
	if err := c.do(ctx, http.MethodPost, c.baseURL+inputProofPath, req, &out); err != nil {
		return nil, err
	}
	if out.Response == nil {
		return nil, ErrEmptyResponse
	}
	return out.Response, nil
}

// PublicDecrypt asks the KMS to decrypt publicly decryptable handles
func (c *Client) PublicDecrypt(ctx context.Context, req PublicDecryptRequest) (*PublicDecryptResponse, error) {
	var out envelope[[]PublicDecryptResponse]
	if err := c.do(ctx, http.MethodPost, c.baseURL+publicDecryptPath, req, &out); err != nil {
		return nil, err
	}
	if out.Response == nil || len(*out.Response) == 0 {
		return nil, ErrEmptyResponse
	}
	return &(*out.Response)[0], nil
}

// Download fetches raw key material from url
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRelayer, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: download %s: status %d", ErrRelayer, url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
}

func (c *Client) do(ctx context.Context, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRelayer, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %w", ErrRelayer, err)
	}

	c.logger.Debug("relayer request",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure envelope[json.RawMessage]
		_ = json.Unmarshal(data, &failure)
		if failure.Message != "" {
			return fmt.Errorf("%w: status %d: %s", ErrRelayer, resp.StatusCode, failure.Message)
		}
		return fmt.Errorf("%w: status %d", ErrRelayer, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %w", ErrRelayer, err)
	}
	return nil
}

func decodeHexList(values []string) ([][]byte, error) {
	out := make([][]byte, len(values))
	for i, v := range values {
		if !strings.HasPrefix(v, "0x") {
			v = "0x" + v
		}
		b, err := hexutil.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("%w: bad hex value %d: %w", ErrRelayer, i, err)
		}
		out[i] = b
	}
	return out, nil
}
