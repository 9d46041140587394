package fhevm

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/ahwlsqja/shadow-vote/pkg/eip712"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const secondsPerDay = 24 * 60 * 60

// DecryptionSignatureParams holds the fields of a DecryptionSignature
type DecryptionSignatureParams struct {
	PublicKey         []byte
	PrivateKey        []byte
	Signature         []byte
	StartTimestamp    int64
	DurationDays      int64
	UserAddress       common.Address
	ContractAddresses []common.Address
	EIP712            apitypes.TypedData
}

// DecryptionSignature is a time-bounded, wallet-signed authorization to
// decrypt handles bound to ContractAddresses. It is immutable.
type DecryptionSignature struct {
	publicKey         []byte
	privateKey        []byte
	signature         []byte
	startTimestamp    int64
	durationDays      int64
	userAddress       common.Address
	contractAddresses []common.Address
	eip712            apitypes.TypedData
}

// NewDecryptionSignature validates p and builds a signature from a copy of it
func NewDecryptionSignature(p DecryptionSignatureParams) (*DecryptionSignature, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}
	return &DecryptionSignature{
		publicKey:         common.CopyBytes(p.PublicKey),
		privateKey:        common.CopyBytes(p.PrivateKey),
		signature:         common.CopyBytes(p.Signature),
		startTimestamp:    p.StartTimestamp,
		durationDays:      p.DurationDays,
		userAddress:       p.UserAddress,
		contractAddresses: append([]common.Address(nil), p.ContractAddresses...),
		eip712:            copyTypedData(p.EIP712),
	}, nil
}

// validateParams is the structural predicate; it does not verify the
// signature cryptographically.
func validateParams(p DecryptionSignatureParams) error {
	switch {
	case len(p.PublicKey) == 0:
		return fmt.Errorf("%w: missing public key", ErrInvalidSignature)
	case len(p.PrivateKey) == 0:
		return fmt.Errorf("%w: missing private key", ErrInvalidSignature)
	case len(p.Signature) != eip712.SignatureLength:
		return fmt.Errorf("%w: signature must be %d bytes, got %d", ErrInvalidSignature, eip712.SignatureLength, len(p.Signature))
	case p.StartTimestamp < 0:
		return fmt.Errorf("%w: negative start timestamp", ErrInvalidSignature)
	case p.DurationDays <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrInvalidSignature)
	case p.DurationDays > (math.MaxInt64-p.StartTimestamp)/secondsPerDay:
		return fmt.Errorf("%w: duration of %d days overflows the expiry", ErrInvalidSignature, p.DurationDays)
	case p.UserAddress == (common.Address{}):
		return fmt.Errorf("%w: missing user address", ErrInvalidSignature)
	case len(p.ContractAddresses) == 0:
		return fmt.Errorf("%w: %v", ErrInvalidSignature, ErrNoContractAddresses)
	case p.EIP712.PrimaryType == "" || len(p.EIP712.Types) == 0:
		return fmt.Errorf("%w: missing eip712 payload", ErrInvalidSignature)
	}
	for _, addr := range p.ContractAddresses {
		if addr == (common.Address{}) {
			return fmt.Errorf("%w: zero contract address", ErrInvalidSignature)
		}
	}
	return nil
}

func (s *DecryptionSignature) PublicKey() []byte {
	return common.CopyBytes(s.publicKey)
}

func (s *DecryptionSignature) Signature() []byte {
	return common.CopyBytes(s.signature)
}

func (s *DecryptionSignature) StartTimestamp() int64 {
	return s.startTimestamp
}

func (s *DecryptionSignature) DurationDays() int64 {
	return s.durationDays
}

func (s *DecryptionSignature) UserAddress() common.Address {
	return s.userAddress
}

func (s *DecryptionSignature) ContractAddresses() []common.Address {
	return append([]common.Address(nil), s.contractAddresses...)
}

// EIP712 returns a copy of the exact payload that was signed
func (s *DecryptionSignature) EIP712() apitypes.TypedData {
	return copyTypedData(s.eip712)
}

// Verify checks that the signature over the retained payload recovers to
// the user address. Load and LoadOrSign never call it; the relayer and the
// chain do their own verification.
func (s *DecryptionSignature) Verify() error {
	return eip712.VerifySignature(s.userAddress.Hex(), s.eip712, s.signature)
}

// PrivateKey returns a copy of the private key. Prefer WithPrivateKey.
func (s *DecryptionSignature) PrivateKey() []byte {
	return common.CopyBytes(s.privateKey)
}

// WithPrivateKey hands fn a copy of the private key and zeroes the copy
// once fn returns.
func (s *DecryptionSignature) WithPrivateKey(fn func(privateKey []byte) error) error {
	key := common.CopyBytes(s.privateKey)
	defer func() {
		for i := range key {
			key[i] = 0
		}
	}()
	return fn(key)
}

// ExpiresAt is startTimestamp + durationDays days
func (s *DecryptionSignature) ExpiresAt() time.Time {
	return time.Unix(s.startTimestamp+s.durationDays*secondsPerDay, 0)
}

// IsValid reports whether the authorization has not expired yet
func (s *DecryptionSignature) IsValid() bool {
	return s.IsValidAt(time.Now())
}

// IsValidAt reports whether the authorization is still valid at t.
// Valid strictly before the expiry second.
func (s *DecryptionSignature) IsValidAt(t time.Time) bool {
	return t.Unix() < s.startTimestamp+s.durationDays*secondsPerDay
}

// decryptionSignatureJSON is the persisted form. Pointers detect missing fields.
type decryptionSignatureJSON struct {
	PublicKey         *hexutil.Bytes      `json:"publicKey"`
	PrivateKey        *hexutil.Bytes      `json:"privateKey"`
	Signature         *hexutil.Bytes      `json:"signature"`
	StartTimestamp    *int64              `json:"startTimestamp"`
	DurationDays      *int64              `json:"durationDays"`
	UserAddress       *common.Address     `json:"userAddress"`
	ContractAddresses []common.Address    `json:"contractAddresses"`
	EIP712            *apitypes.TypedData `json:"eip712"`
}

// MarshalJSON serializes every field, private key included
func (s *DecryptionSignature) MarshalJSON() ([]byte, error) {
	publicKey := hexutil.Bytes(s.publicKey)
	privateKey := hexutil.Bytes(s.privateKey)
	signature := hexutil.Bytes(s.signature)
	return json.Marshal(decryptionSignatureJSON{
		PublicKey:         &publicKey,
		PrivateKey:        &privateKey,
		Signature:         &signature,
		StartTimestamp:    &s.startTimestamp,
		DurationDays:      &s.durationDays,
		UserAddress:       &s.userAddress,
		ContractAddresses: s.contractAddresses,
		EIP712:            &s.eip712,
	})
}

// ParseDecryptionSignature deserializes a stored signature and checks its shape
func ParseDecryptionSignature(data []byte) (*DecryptionSignature, error) {
	var raw decryptionSignatureJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if raw.PublicKey == nil || raw.PrivateKey == nil || raw.Signature == nil ||
		raw.StartTimestamp == nil || raw.DurationDays == nil ||
		raw.UserAddress == nil || raw.EIP712 == nil {
		return nil, fmt.Errorf("%w: missing field", ErrInvalidSignature)
	}

	return NewDecryptionSignature(DecryptionSignatureParams{
		PublicKey:         *raw.PublicKey,
		PrivateKey:        *raw.PrivateKey,
		Signature:         *raw.Signature,
		StartTimestamp:    *raw.StartTimestamp,
		DurationDays:      *raw.DurationDays,
		UserAddress:       *raw.UserAddress,
		ContractAddresses: raw.ContractAddresses,
		EIP712:            *raw.EIP712,
	})
}
