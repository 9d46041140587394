package fhevm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ahwlsqja/shadow-vote/pkg/eip712"
	"github.com/ahwlsqja/shadow-vote/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAuthorizer(store storage.Storage, opts ...AuthorizerOption) *Authorizer {
	return NewAuthorizer(store, zap.NewNop(), opts...)
}

func TestAuthorizer_Create(t *testing.T) {
	a := newTestAuthorizer(storage.NewMemory(), WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) }))
	inst := &fakeInstance{}
	signer := newCountingSigner()
	pair, err := GenerateKeypair()
	require.NoError(t, err)

	sig, err := a.Create(context.Background(), inst, mustAddresses(t, addrA), pair.PublicKey, pair.PrivateKey, signer)
	require.NoError(t, err)

	assert.Equal(t, int32(1), signer.prompts.Load())
	assert.Equal(t, int64(1_700_000_000), sig.StartTimestamp())
	assert.Equal(t, int64(DefaultDurationDays), sig.DurationDays())
	assert.Equal(t, signer.Address(), sig.UserAddress())
	assert.Equal(t, UserDecryptPrimaryType, sig.EIP712().PrimaryType)
}

func TestAuthorizer_Create_SignerRejects(t *testing.T) {
	store := storage.NewMemory()
	a := newTestAuthorizer(store)
	signer := newCountingSigner()
	rejected := errors.New("user rejected the request")
	signer.reject = rejected

	sig, err := a.Create(context.Background(), &fakeInstance{}, mustAddresses(t, addrA), []byte{1}, []byte{2}, signer)
	assert.Nil(t, sig)
	assert.ErrorIs(t, err, ErrAuthorizationFailed)
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, 0, store.Len())
}

func TestAuthorizer_LoadOrSign_MissThenHit(t *testing.T) {
	store := storage.NewMemory()
	a := newTestAuthorizer(store)
	inst := &fakeInstance{}
	signer := newCountingSigner()
	ctx := context.Background()

	first, err := a.LoadOrSign(ctx, inst, mustAddresses(t, addrB, addrA), signer, nil)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, int32(1), signer.prompts.Load())
	assert.Equal(t, int32(1), inst.keypairs.Load())
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, mustAddresses(t, addrA, addrB), first.ContractAddresses(), "signed addresses are sorted")

	second, err := a.LoadOrSign(ctx, inst, mustAddresses(t, addrA, addrB), signer, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), signer.prompts.Load(), "cache hit must not prompt")
	assert.Equal(t, first.Signature(), second.Signature())
	assert.Equal(t, first.PrivateKey(), second.PrivateKey())
}

func TestAuthorizer_LoadOrSign_PrepopulatedHit(t *testing.T) {
	store := storage.NewMemory()
	a := newTestAuthorizer(store)
	inst := &fakeInstance{}
	signer := newCountingSigner()
	ctx := context.Background()

	pair, err := GenerateKeypair()
	require.NoError(t, err)
	stored, err := a.Create(ctx, inst, mustAddresses(t, addrA), pair.PublicKey, pair.PrivateKey, signer)
	require.NoError(t, err)
	a.Save(ctx, stored, inst, false)
	signer.prompts.Store(0)

	got, err := a.LoadOrSign(ctx, inst, mustAddresses(t, addrA), signer, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(0), signer.prompts.Load())
	assert.Equal(t, int32(0), inst.keypairs.Load())
	assert.Equal(t, stored.Signature(), got.Signature())
}

func TestAuthorizer_LoadOrSign_ExpiredEntry(t *testing.T) {
	store := storage.NewMemory()
	clock := time.Unix(1_700_000_000, 0)
	a := newTestAuthorizer(store, WithDurationDays(1), WithClock(func() time.Time { return clock }))
	inst := &fakeInstance{}
	signer := newCountingSigner()
	ctx := context.Background()

	first, err := a.LoadOrSign(ctx, inst, mustAddresses(t, addrA), signer, nil)
	require.NoError(t, err)

	// exactly at expiry the entry is stale
	clock = clock.Add(24 * time.Hour)
	loaded, err := a.Load(ctx, inst, mustAddresses(t, addrA), signer.Address().Hex(), nil)
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.Equal(t, 1, store.Len(), "expired entries are not deleted by Load")

	second, err := a.LoadOrSign(ctx, inst, mustAddresses(t, addrA), signer, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), signer.prompts.Load())
	assert.NotEqual(t, first.Signature(), second.Signature())
	assert.Equal(t, 1, store.Len(), "re-signing overwrites the same key")

	third, err := a.LoadOrSign(ctx, inst, mustAddresses(t, addrA), signer, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), signer.prompts.Load())
	assert.Equal(t, second.Signature(), third.Signature())
}

func TestAuthorizer_LoadOrSign_MalformedEntry(t *testing.T) {
	store := storage.NewMemory()
	a := newTestAuthorizer(store)
	inst := &fakeInstance{}
	signer := newCountingSigner()
	ctx := context.Background()

	key, err := CacheKey(inst, mustAddresses(t, addrA), signer.Address().Hex(), nil)
	require.NoError(t, err)
	require.NoError(t, store.SetItem(ctx, key, `{"publicKey":"0x01"}`))

	sig, err := a.LoadOrSign(ctx, inst, mustAddresses(t, addrA), signer, nil)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, int32(1), signer.prompts.Load())

	raw, err := store.GetItem(ctx, key)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	assert.Contains(t, m, "eip712")
}

func TestAuthorizer_LoadOrSign_DifferentContractSet(t *testing.T) {
	a := newTestAuthorizer(storage.NewMemory())
	inst := &fakeInstance{}
	signer := newCountingSigner()
	ctx := context.Background()

	_, err := a.LoadOrSign(ctx, inst, mustAddresses(t, addrA, addrB), signer, nil)
	require.NoError(t, err)
	_, err = a.LoadOrSign(ctx, inst, mustAddresses(t, addrA), signer, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(2), signer.prompts.Load())
}

func TestAuthorizer_LoadOrSign_SuppliedKeyPair(t *testing.T) {
	store := storage.NewMemory()
	a := newTestAuthorizer(store)
	inst := &fakeInstance{}
	signer := newCountingSigner()
	ctx := context.Background()

	pair, err := GenerateKeypair()
	require.NoError(t, err)

	sig, err := a.LoadOrSign(ctx, inst, mustAddresses(t, addrA), signer, &pair)
	require.NoError(t, err)
	assert.Equal(t, []byte(pair.PublicKey), sig.PublicKey())
	assert.Equal(t, int32(0), inst.keypairs.Load())

	// stored under the public-key flavored key only
	withKey, err := CacheKey(inst, mustAddresses(t, addrA), signer.Address().Hex(), pair.PublicKey)
	require.NoError(t, err)
	_, err = store.GetItem(ctx, withKey)
	require.NoError(t, err)

	withoutKey, err := CacheKey(inst, mustAddresses(t, addrA), signer.Address().Hex(), nil)
	require.NoError(t, err)
	_, err = store.GetItem(ctx, withoutKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = a.LoadOrSign(ctx, inst, mustAddresses(t, addrA), signer, &pair)
	require.NoError(t, err)
	assert.Equal(t, int32(1), signer.prompts.Load())
}

func TestAuthorizer_LoadOrSign_SignerRejects(t *testing.T) {
	store := storage.NewMemory()
	a := newTestAuthorizer(store)
	signer := newCountingSigner()
	signer.reject = errors.New("declined")

	sig, err := a.LoadOrSign(context.Background(), &fakeInstance{}, mustAddresses(t, addrA), signer, nil)
	assert.Nil(t, sig)
	assert.ErrorIs(t, err, ErrAuthorizationFailed)
	assert.Equal(t, 0, store.Len())
}

func TestAuthorizer_LoadOrSign_StorageDown(t *testing.T) {
	a := newTestAuthorizer(failingStorage{})
	inst := &fakeInstance{}
	signer := newCountingSigner()
	ctx := context.Background()

	sig, err := a.LoadOrSign(ctx, inst, mustAddresses(t, addrA), signer, nil)
	require.NoError(t, err)
	require.NotNil(t, sig)

	// nothing could be cached, so the next call signs again
	_, err = a.LoadOrSign(ctx, inst, mustAddresses(t, addrA), signer, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), signer.prompts.Load())
}

func TestAuthorizer_LoadOrSign_InvalidInput(t *testing.T) {
	a := newTestAuthorizer(storage.NewMemory())
	signer := newCountingSigner()

	_, err := a.LoadOrSign(context.Background(), &fakeInstance{}, nil, signer, nil)
	assert.ErrorIs(t, err, ErrNoContractAddresses)
	assert.Equal(t, int32(0), signer.prompts.Load())
}

func TestAuthorizer_LoadOrSign_Deduplicated(t *testing.T) {
	a := newTestAuthorizer(storage.NewMemory(), WithDeduplication(true))
	inst := &fakeInstance{}
	signer := newCountingSigner()

	var wg sync.WaitGroup
	results := make([]*DecryptionSignature, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sig, err := a.LoadOrSign(context.Background(), inst, mustAddresses(t, addrA, addrB), signer, nil)
			assert.NoError(t, err)
			results[i] = sig
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), signer.prompts.Load())
	for _, sig := range results {
		require.NotNil(t, sig)
		assert.Equal(t, results[0].Signature(), sig.Signature())
	}
}

func TestAuthorizer_LoadOrSign_DeduplicatedLeaderCanceled(t *testing.T) {
	store := storage.NewMemory()
	a := newTestAuthorizer(store, WithDeduplication(true))
	inst := &fakeInstance{}
	signer := newStallingSigner()
	contracts := mustAddresses(t, addrA)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := a.LoadOrSign(leaderCtx, inst, contracts, signer, nil)
		leaderErr <- err
	}()
	<-signer.stalled

	followerCtx, cancelFollower := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFollower()
	type result struct {
		sig *DecryptionSignature
		err error
	}
	followerDone := make(chan result, 1)
	go func() {
		sig, err := a.LoadOrSign(followerCtx, inst, contracts, signer, nil)
		followerDone <- result{sig, err}
	}()

	// Give the follower time to join the stalled flight.
	time.Sleep(50 * time.Millisecond)
	cancelLeader()

	err := <-leaderErr
	assert.ErrorIs(t, err, ErrAuthorizationFailed)
	assert.ErrorIs(t, err, context.Canceled)

	res := <-followerDone
	require.NoError(t, res.err)
	require.NotNil(t, res.sig)
	assert.NoError(t, followerCtx.Err())
	assert.Equal(t, int32(2), signer.prompts.Load())
	assert.Equal(t, 1, store.Len())
}

func TestDecryptionSignature_Verify(t *testing.T) {
	a := newTestAuthorizer(storage.NewMemory())
	ctx := context.Background()

	sig, err := a.Create(ctx, &fakeInstance{}, mustAddresses(t, addrA), []byte{1}, []byte{2}, newCountingSigner())
	require.NoError(t, err)
	assert.NoError(t, sig.Verify())

	impostor := impostorSigner{KeySigner: newCountingSigner().KeySigner, claimed: newCountingSigner().Address()}
	forged, err := a.Create(ctx, &fakeInstance{}, mustAddresses(t, addrA), []byte{1}, []byte{2}, impostor)
	require.NoError(t, err, "Create does not verify signatures")
	assert.ErrorIs(t, forged.Verify(), eip712.ErrAddressMismatch)
}
