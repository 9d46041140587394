package fhevm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FheType tags the encrypted type of an input value
type FheType uint8

const (
	TypeBool   FheType = 0
	TypeUint8  FheType = 2
	TypeUint32 FheType = 4
	TypeUint64 FheType = 5
)

// maxInputBits bounds the total bit width of one encrypted input
const maxInputBits = 2048

// Bits returns the bit width of t
func (t FheType) Bits() int {
	switch t {
	case TypeBool:
		return 2
	case TypeUint8:
		return 8
	case TypeUint32:
		return 32
	case TypeUint64:
		return 64
	default:
		return 0
	}
}

// TypedValue is one clear value queued for encryption
type TypedValue struct {
	Type  FheType
	Value *big.Int
}

// EncryptRequest is handed to an EncryptFunc by the shared input builder
type EncryptRequest struct {
	ContractAddress common.Address
	UserAddress     common.Address
	Values          []TypedValue
}

// EncryptFunc turns an EncryptRequest into handles and an input proof
type EncryptFunc func(ctx context.Context, req EncryptRequest) (*EncryptedInput, error)

type inputBuilder struct {
	contract common.Address
	user     common.Address
	values   []TypedValue
	bits     int
	encrypt  EncryptFunc
}

// NewInputBuilder returns an InputBuilder that delegates encryption to encrypt
func NewInputBuilder(contractAddress, userAddress common.Address, encrypt EncryptFunc) InputBuilder {
	return &inputBuilder{
		contract: contractAddress,
		user:     userAddress,
		encrypt:  encrypt,
	}
}

func (b *inputBuilder) add(t FheType, v *big.Int) InputBuilder {
	b.values = append(b.values, TypedValue{Type: t, Value: v})
	b.bits += t.Bits()
	return b
}

func (b *inputBuilder) AddBool(v bool) InputBuilder {
	if v {
		return b.add(TypeBool, big.NewInt(1))
	}
	return b.add(TypeBool, big.NewInt(0))
}

func (b *inputBuilder) Add8(v uint8) InputBuilder {
	return b.add(TypeUint8, new(big.Int).SetUint64(uint64(v)))
}

func (b *inputBuilder) Add32(v uint32) InputBuilder {
	return b.add(TypeUint32, new(big.Int).SetUint64(uint64(v)))
}

func (b *inputBuilder) Add64(v uint64) InputBuilder {
	return b.add(TypeUint64, new(big.Int).SetUint64(v))
}

func (b *inputBuilder) Encrypt(ctx context.Context) (*EncryptedInput, error) {
	if b.bits > maxInputBits {
		return nil, ErrTooManyInputs
	}
	values := make([]TypedValue, len(b.values))
	copy(values, b.values)
	return b.encrypt(ctx, EncryptRequest{
		ContractAddress: b.contract,
		UserAddress:     b.user,
		Values:          values,
	})
}
