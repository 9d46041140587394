package fhevm

import (
	"encoding/json"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSignature(t *testing.T, start, days int64) *DecryptionSignature {
	t.Helper()
	pair, err := GenerateKeypair()
	require.NoError(t, err)

	contracts := mustAddresses(t, addrA, addrB)
	sig, err := NewDecryptionSignature(DecryptionSignatureParams{
		PublicKey:         pair.PublicKey,
		PrivateKey:        pair.PrivateKey,
		Signature:         make65(),
		StartTimestamp:    start,
		DurationDays:      days,
		UserAddress:       common.HexToAddress(userAddr),
		ContractAddresses: contracts,
		EIP712:            NewUserDecryptEIP712(testDomain, pair.PublicKey, contracts, start, days),
	})
	require.NoError(t, err)
	return sig
}

func make65() []byte {
	sig := make([]byte, 65)
	for i := range sig {
		sig[i] = byte(i + 1)
	}
	return sig
}

func TestDecryptionSignature_Expiry(t *testing.T) {
	const start = int64(1_700_000_000)
	const days = int64(365)
	sig := newTestSignature(t, start, days)
	expiry := start + days*86400

	tests := []struct {
		name  string
		at    int64
		valid bool
	}{
		{"at start", start, true},
		{"one second before expiry", expiry - 1, true},
		{"at expiry", expiry, false},
		{"after expiry", expiry + 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, sig.IsValidAt(time.Unix(tt.at, 0)))
		})
	}
	assert.Equal(t, time.Unix(expiry, 0), sig.ExpiresAt())
}

func TestDecryptionSignature_IsValidNow(t *testing.T) {
	assert.True(t, newTestSignature(t, time.Now().Unix(), 1).IsValid())
	assert.False(t, newTestSignature(t, time.Now().Add(-48*time.Hour).Unix(), 1).IsValid())
}

func TestDecryptionSignature_RoundTrip(t *testing.T) {
	sig := newTestSignature(t, 1_700_000_000, 365)

	data, err := json.Marshal(sig)
	require.NoError(t, err)

	parsed, err := ParseDecryptionSignature(data)
	require.NoError(t, err)

	assert.Equal(t, sig.PublicKey(), parsed.PublicKey())
	assert.Equal(t, sig.PrivateKey(), parsed.PrivateKey())
	assert.Equal(t, sig.Signature(), parsed.Signature())
	assert.Equal(t, sig.StartTimestamp(), parsed.StartTimestamp())
	assert.Equal(t, sig.DurationDays(), parsed.DurationDays())
	assert.Equal(t, sig.UserAddress(), parsed.UserAddress())
	assert.Equal(t, sig.ContractAddresses(), parsed.ContractAddresses())

	again, err := json.Marshal(parsed)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestParseDecryptionSignature_Malformed(t *testing.T) {
	valid, err := json.Marshal(newTestSignature(t, 1_700_000_000, 365))
	require.NoError(t, err)

	mutate := func(fn func(m map[string]any)) string {
		var m map[string]any
		require.NoError(t, json.Unmarshal(valid, &m))
		fn(m)
		out, err := json.Marshal(m)
		require.NoError(t, err)
		return string(out)
	}

	tests := map[string]string{
		"not json":           "{not json",
		"not an object":      `"hello"`,
		"missing signature":  mutate(func(m map[string]any) { delete(m, "signature") }),
		"missing eip712":     mutate(func(m map[string]any) { delete(m, "eip712") }),
		"bad user address":   mutate(func(m map[string]any) { m["userAddress"] = "1234" }),
		"zero duration":      mutate(func(m map[string]any) { m["durationDays"] = 0 }),
		"no contracts":       mutate(func(m map[string]any) { m["contractAddresses"] = []string{} }),
		"short signature":    mutate(func(m map[string]any) { m["signature"] = "0x1234" }),
		"string timestamp":   mutate(func(m map[string]any) { m["startTimestamp"] = "yesterday" }),
		"bad contract entry": mutate(func(m map[string]any) { m["contractAddresses"] = []string{"0xnope"} }),
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDecryptionSignature([]byte(input))
			assert.ErrorIs(t, err, ErrInvalidSignature)
		})
	}
}

func TestDecryptionSignature_Immutable(t *testing.T) {
	sig := newTestSignature(t, 1_700_000_000, 365)

	pk := sig.PublicKey()
	pk[0] ^= 0xff
	assert.NotEqual(t, pk, sig.PublicKey())

	contracts := sig.ContractAddresses()
	contracts[0] = common.Address{}
	assert.NotEqual(t, common.Address{}, sig.ContractAddresses()[0])
}

func TestDecryptionSignature_EIP712IsCopied(t *testing.T) {
	sig := newTestSignature(t, 1_700_000_000, 365)
	want := sig.EIP712()

	td := sig.EIP712()
	td.Message["durationDays"] = "99999"
	td.Message["contractAddresses"].([]interface{})[0] = "0x0000000000000000000000000000000000000000"
	td.Types[UserDecryptPrimaryType][0].Name = "tampered"
	(*big.Int)(td.Domain.ChainId).SetInt64(1)

	assert.Equal(t, want, sig.EIP712())
	assert.Equal(t, "365", sig.EIP712().Message["durationDays"])
}

func TestNewDecryptionSignature_DurationOverflow(t *testing.T) {
	const start = 1_700_000_000
	maxDays := int64((math.MaxInt64 - start) / secondsPerDay)

	pair, err := GenerateKeypair()
	require.NoError(t, err)
	contracts := mustAddresses(t, addrA)
	params := func(days int64) DecryptionSignatureParams {
		return DecryptionSignatureParams{
			PublicKey:         pair.PublicKey,
			PrivateKey:        pair.PrivateKey,
			Signature:         make65(),
			StartTimestamp:    start,
			DurationDays:      days,
			UserAddress:       common.HexToAddress(userAddr),
			ContractAddresses: contracts,
			EIP712:            NewUserDecryptEIP712(testDomain, pair.PublicKey, contracts, start, days),
		}
	}

	_, err = NewDecryptionSignature(params(maxDays + 1))
	assert.ErrorIs(t, err, ErrInvalidSignature)
	_, err = NewDecryptionSignature(params(213503982334601))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	sig, err := NewDecryptionSignature(params(maxDays))
	require.NoError(t, err)
	assert.True(t, sig.IsValidAt(time.Unix(start, 0).AddDate(100, 0, 0)))
}

func TestDecryptionSignature_WithPrivateKey(t *testing.T) {
	sig := newTestSignature(t, 1_700_000_000, 365)

	var seen []byte
	require.NoError(t, sig.WithPrivateKey(func(key []byte) error {
		assert.Equal(t, sig.PrivateKey(), key)
		seen = key
		return nil
	}))

	assert.Equal(t, make([]byte, len(seen)), seen, "key copy must be zeroed")
	assert.NotEqual(t, make([]byte, len(seen)), sig.PrivateKey())
}
