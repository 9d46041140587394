package fhevm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ahwlsqja/shadow-vote/pkg/signer"
	"github.com/ahwlsqja/shadow-vote/pkg/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var testDomain = Domain{
	ChainID:           11155111,
	VerifyingContract: common.HexToAddress("0xb6E160B1ff80D67Bfe90A85eE06Ce0A2613607D1"),
}

// fakeInstance implements the parts of Instance the authorization flow uses
type fakeInstance struct {
	keypairs atomic.Int32
}

func (f *fakeInstance) CreateEncryptedInput(contractAddress, userAddress common.Address) InputBuilder {
	return NewInputBuilder(contractAddress, userAddress, func(context.Context, EncryptRequest) (*EncryptedInput, error) {
		return &EncryptedInput{}, nil
	})
}

func (f *fakeInstance) PublicDecrypt(context.Context, []common.Hash) (*PublicDecryptResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeInstance) GenerateKeypair() (KeyPair, error) {
	f.keypairs.Add(1)
	return GenerateKeypair()
}

func (f *fakeInstance) CreateEIP712(publicKey []byte, contractAddresses []common.Address, startTimestamp, durationDays int64) (apitypes.TypedData, error) {
	return NewUserDecryptEIP712(testDomain, publicKey, contractAddresses, startTimestamp, durationDays), nil
}

// countingSigner wraps a KeySigner and counts signature prompts
type countingSigner struct {
	*signer.KeySigner
	prompts atomic.Int32
	reject  error
}

func newCountingSigner() *countingSigner {
	s, err := signer.GenerateKeySigner()
	if err != nil {
		panic(err)
	}
	return &countingSigner{KeySigner: s}
}

func (s *countingSigner) SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error) {
	s.prompts.Add(1)
	if s.reject != nil {
		return nil, s.reject
	}
	return s.KeySigner.SignTypedData(ctx, td)
}

// failingStorage fails every call
type failingStorage struct{}

var errStorageDown = errors.New("storage unavailable")

func (failingStorage) GetItem(context.Context, string) (string, error) { return "", errStorageDown }
func (failingStorage) SetItem(context.Context, string, string) error   { return errStorageDown }
func (failingStorage) RemoveItem(context.Context, string) error        { return errStorageDown }

var _ storage.Storage = failingStorage{}

// pendingAttempt is one blocked factory call
type pendingAttempt struct {
	params  CreateParams
	ctx     context.Context
	resolve chan attemptResult
}

type attemptResult struct {
	instance Instance
	err      error
}

// gatedFactory blocks every call until the test resolves it. It ignores
// ctx to model creation calls that cannot be preempted.
type gatedFactory struct {
	started chan *pendingAttempt
	mu      sync.Mutex
	calls   int
}

func newGatedFactory() *gatedFactory {
	return &gatedFactory{started: make(chan *pendingAttempt, 16)}
}

func (f *gatedFactory) CreateInstance(ctx context.Context, params CreateParams) (Instance, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	p := &pendingAttempt{params: params, ctx: ctx, resolve: make(chan attemptResult, 1)}
	f.started <- p
	r := <-p.resolve
	return r.instance, r.err
}

func (f *gatedFactory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// impostorSigner claims an address its key does not control
type impostorSigner struct {
	*signer.KeySigner
	claimed common.Address
}

func (s impostorSigner) GetAddress(context.Context) (common.Address, error) {
	return s.claimed, nil
}

// stallingSigner holds its first prompt until the caller's context ends,
// then signs every later prompt.
type stallingSigner struct {
	*signer.KeySigner
	prompts atomic.Int32
	stalled chan struct{}
}

func newStallingSigner() *stallingSigner {
	return &stallingSigner{KeySigner: newCountingSigner().KeySigner, stalled: make(chan struct{})}
}

func (s *stallingSigner) SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error) {
	if s.prompts.Add(1) == 1 {
		close(s.stalled)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.KeySigner.SignTypedData(ctx, td)
}
