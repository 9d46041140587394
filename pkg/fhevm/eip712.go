package fhevm

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	// UserDecryptPrimaryType is the struct a user signs to authorize decryption
	UserDecryptPrimaryType = "UserDecryptRequestVerification"

	decryptionDomainName    = "Decryption"
	decryptionDomainVersion = "1"
)

// Domain identifies the decryption verifier contract a payload is bound to
type Domain struct {
	ChainID           int64
	VerifyingContract common.Address
}

// NewUserDecryptEIP712 builds the typed data a wallet signs to authorize
// decryption of handles bound to contractAddresses.
//
// Message values are kept as strings and []interface{} so the payload
// survives a JSON round trip unchanged.
func NewUserDecryptEIP712(domain Domain, publicKey []byte, contractAddresses []common.Address, startTimestamp, durationDays int64) apitypes.TypedData {
	addresses := make([]interface{}, len(contractAddresses))
	for i, addr := range contractAddresses {
		addresses[i] = addr.Hex()
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			UserDecryptPrimaryType: {
				{Name: "publicKey", Type: "bytes"},
				{Name: "contractAddresses", Type: "address[]"},
				{Name: "startTimestamp", Type: "uint256"},
				{Name: "durationDays", Type: "uint256"},
			},
		},
		PrimaryType: UserDecryptPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              decryptionDomainName,
			Version:           decryptionDomainVersion,
			ChainId:           math.NewHexOrDecimal256(domain.ChainID),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         hexutil.Encode(publicKey),
			"contractAddresses": addresses,
			"startTimestamp":    strconv.FormatInt(startTimestamp, 10),
			"durationDays":      strconv.FormatInt(durationDays, 10),
		},
	}
}

// copyTypedData deep-copies td so the copy shares no maps, slices or
// big integers with it.
func copyTypedData(td apitypes.TypedData) apitypes.TypedData {
	out := td
	if td.Types != nil {
		out.Types = make(apitypes.Types, len(td.Types))
		for name, fields := range td.Types {
			out.Types[name] = append([]apitypes.Type(nil), fields...)
		}
	}
	if td.Domain.ChainId != nil {
		out.Domain.ChainId = (*math.HexOrDecimal256)(new(big.Int).Set((*big.Int)(td.Domain.ChainId)))
	}
	if td.Message != nil {
		out.Message = copyValue(td.Message).(apitypes.TypedDataMessage)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, e := range v {
			m[k] = copyValue(e)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(v))
		for i, e := range v {
			s[i] = copyValue(e)
		}
		return s
	case []byte:
		return common.CopyBytes(v)
	case *big.Int:
		return new(big.Int).Set(v)
	default:
		return v
	}
}
