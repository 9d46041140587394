package decryption

import (
	"time"

	"github.com/ahwlsqja/shadow-vote/pkg/fhevm"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ============================================================================
// Request DTOs
// ============================================================================

// AuthorizeRequest represents the request body for a decryption authorization.
// PublicKey and PrivateKey are optional but must be given together.
type AuthorizeRequest struct {
	ContractAddresses []string `json:"contract_addresses" binding:"required,min=1,max=10,dive,len=42" example:"0x5FbDB2315678afecb367f032d93F642f64180aa3"`
	PublicKey         string   `json:"public_key,omitempty" binding:"omitempty,startswith=0x" example:"0x2000000000000000"`
	PrivateKey        string   `json:"private_key,omitempty" binding:"omitempty,startswith=0x"`
}

// CacheKeyQuery represents the query of a cache-key or lookup request
type CacheKeyQuery struct {
	User      string `form:"user" binding:"omitempty,len=42" example:"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"`
	Contracts string `form:"contracts" binding:"required" example:"0x5FbDB2315678afecb367f032d93F642f64180aa3,0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"`
	PublicKey string `form:"public_key" binding:"omitempty,startswith=0x"`
}

// ============================================================================
// Response DTOs
// ============================================================================

// SignatureResponse describes a decryption authorization. The private key
// never leaves the server.
type SignatureResponse struct {
	UserAddress       string    `json:"user_address" example:"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"`
	ContractAddresses []string  `json:"contract_addresses"`
	PublicKey         string    `json:"public_key"`
	Signature         string    `json:"signature"`
	StartTimestamp    int64     `json:"start_timestamp" example:"1767225600"`
	DurationDays      int64     `json:"duration_days" example:"365"`
	ExpiresAt         time.Time `json:"expires_at"`
	CacheKey          string    `json:"cache_key"`
}

// CacheKeyResponse represents a derived cache key
type CacheKeyResponse struct {
	CacheKey string `json:"cache_key" example:"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266:0x9a1b..."`
}

// ============================================================================
// Converters
// ============================================================================

// ToSignatureResponse converts a DecryptionSignature
func ToSignatureResponse(sig *fhevm.DecryptionSignature, cacheKey string) SignatureResponse {
	contracts := sig.ContractAddresses()
	addresses := make([]string, len(contracts))
	for i, c := range contracts {
		addresses[i] = c.Hex()
	}
	return SignatureResponse{
		UserAddress:       sig.UserAddress().Hex(),
		ContractAddresses: addresses,
		PublicKey:         hexutil.Encode(sig.PublicKey()),
		Signature:         hexutil.Encode(sig.Signature()),
		StartTimestamp:    sig.StartTimestamp(),
		DurationDays:      sig.DurationDays(),
		ExpiresAt:         sig.ExpiresAt().UTC(),
		CacheKey:          cacheKey,
	}
}
