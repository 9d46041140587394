package voting

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Question mirrors the contract's question record
type Question struct {
	ID               uint64
	Prompt           string
	CreatedBy        common.Address
	Answers          [2]string
	Image            string
	Deadline         time.Time
	ResultsOpened    bool
	ResultsFinalized bool
	EncryptedTally   [2]common.Hash
	DecryptedTally   [2]uint32
}

// CreateQuestionParams are the inputs of CreateQuestion
type CreateQuestionParams struct {
	Prompt   string
	AnswerA  string
	AnswerB  string
	Image    string
	Deadline time.Time
}

// EncryptedVote is an encrypted choice ready to submit
type EncryptedVote struct {
	Handle     common.Hash
	InputProof []byte
}

// TxResult describes a mined transaction
type TxResult struct {
	TxHash      common.Hash
	BlockNumber uint64
	QuestionID  *uint64
}

// PublishResult is a published tally
type PublishResult struct {
	TxResult
	Tally [2]uint64
}

// VoteEvent is one VoteCast log
type VoteEvent struct {
	QuestionID  uint64
	Voter       common.Address
	BlockNumber uint64
	TxHash      common.Hash
	Timestamp   time.Time
}

// ============================================================================
// Request DTOs
// ============================================================================

// CreateQuestionRequest represents the request body for question creation
type CreateQuestionRequest struct {
	Prompt   string `json:"prompt" binding:"required,max=280" example:"Pineapple on pizza?"`
	AnswerA  string `json:"answer_a" binding:"required,max=64" example:"Yes"`
	AnswerB  string `json:"answer_b" binding:"required,max=64" example:"No"`
	Image    string `json:"image,omitempty" binding:"omitempty,max=512" example:"ipfs://bafy..."`
	Deadline int64  `json:"deadline" binding:"required,gt=0" example:"1767225600"`
}

// VoteRequest represents the request body for casting a vote
type VoteRequest struct {
	Answer *uint8 `json:"answer" binding:"required,oneof=0 1" example:"1"`
}

// RecentVotesQuery holds the query parameters of the recent votes feed
type RecentVotesQuery struct {
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100" example:"10"`
	Blocks uint64 `form:"blocks" binding:"omitempty,min=1,max=100000" example:"5000"`
}

// ============================================================================
// Response DTOs
// ============================================================================

// QuestionResponse represents a question in API responses
type QuestionResponse struct {
	ID               uint64    `json:"id" example:"3"`
	Alias            string    `json:"alias,omitempty" example:"aZ3kP9qLm2Xw"`
	Prompt           string    `json:"prompt" example:"Pineapple on pizza?"`
	CreatedBy        string    `json:"created_by" example:"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"`
	Answers          [2]string `json:"answers"`
	Image            string    `json:"image,omitempty"`
	Deadline         time.Time `json:"deadline"`
	ResultsOpened    bool      `json:"results_opened" example:"false"`
	ResultsFinalized bool      `json:"results_finalized" example:"false"`
	EncryptedTally   [2]string `json:"encrypted_tally"`
	DecryptedTally   [2]uint32 `json:"decrypted_tally"`
}

// TxResponse represents a mined transaction in API responses
type TxResponse struct {
	TxHash      string  `json:"tx_hash" example:"0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"`
	BlockNumber uint64  `json:"block_number" example:"1024"`
	QuestionID  *uint64 `json:"question_id,omitempty" example:"3"`
	Alias       string  `json:"alias,omitempty" example:"aZ3kP9qLm2Xw"`
}

// PublishResponse represents a published tally
type PublishResponse struct {
	TxResponse
	Tally [2]uint64 `json:"tally"`
}

// CountResponse represents the number of questions
type CountResponse struct {
	Count uint64 `json:"count" example:"12"`
}

// HasVotedResponse reports whether an address voted
type HasVotedResponse struct {
	QuestionID uint64 `json:"question_id" example:"3"`
	Voter      string `json:"voter" example:"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"`
	HasVoted   bool   `json:"has_voted" example:"true"`
}

// EncryptedVoteResponse is an encrypted choice in hex
type EncryptedVoteResponse struct {
	Handle     string `json:"handle"`
	InputProof string `json:"input_proof"`
}

// ToQuestionResponse converts a Question
func ToQuestionResponse(q *Question, alias string) QuestionResponse {
	return QuestionResponse{
		ID:               q.ID,
		Alias:            alias,
		Prompt:           q.Prompt,
		CreatedBy:        q.CreatedBy.Hex(),
		Answers:          q.Answers,
		Image:            q.Image,
		Deadline:         q.Deadline,
		ResultsOpened:    q.ResultsOpened,
		ResultsFinalized: q.ResultsFinalized,
		EncryptedTally:   [2]string{q.EncryptedTally[0].Hex(), q.EncryptedTally[1].Hex()},
		DecryptedTally:   q.DecryptedTally,
	}
}

// ToTxResponse converts a TxResult
func ToTxResponse(r *TxResult) TxResponse {
	return TxResponse{
		TxHash:      r.TxHash.Hex(),
		BlockNumber: r.BlockNumber,
		QuestionID:  r.QuestionID,
	}
}

// ToEncryptedVoteResponse converts an EncryptedVote
func ToEncryptedVoteResponse(v *EncryptedVote) EncryptedVoteResponse {
	return EncryptedVoteResponse{
		Handle:     v.Handle.Hex(),
		InputProof: hexutil.Encode(v.InputProof),
	}
}

// VoteEventResponse represents a cast vote in the activity feed
type VoteEventResponse struct {
	QuestionID  uint64    `json:"question_id" example:"3"`
	Alias       string    `json:"alias,omitempty" example:"aZ3kP9qLm2Xw"`
	Voter       string    `json:"voter" example:"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"`
	BlockNumber uint64    `json:"block_number" example:"1024"`
	TxHash      string    `json:"tx_hash"`
	Timestamp   time.Time `json:"timestamp"`
}

// ToVoteEventResponse converts a VoteEvent
func ToVoteEventResponse(v VoteEvent, alias string) VoteEventResponse {
	return VoteEventResponse{
		QuestionID:  v.QuestionID,
		Alias:       alias,
		Voter:       v.Voter.Hex(),
		BlockNumber: v.BlockNumber,
		TxHash:      v.TxHash.Hex(),
		Timestamp:   v.Timestamp,
	}
}
