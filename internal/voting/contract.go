package voting

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

//go:embed abi/SimpleVoting.json
var simpleVotingABIJSON string

// ContractABI is the parsed SimpleVoting ABI
var ContractABI = mustParseABI(simpleVotingABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("voting: invalid contract abi: %v", err))
	}
	return parsed
}

// Contract method and event names
const (
	methodCreateQuestion    = "createQuestion"
	methodGetQuestion       = "getQuestion"
	methodGetQuestionsCount = "getQuestionsCount"
	methodHasVoted          = "hasVoted"
	methodOpenResults       = "openResults"
	methodPublishResults    = "publishResults"
	methodVote              = "vote"
	methodMinDuration       = "MIN_DURATION"

	eventQuestionCreated = "QuestionCreated"
	eventVoteCast        = "VoteCast"
)

// Activity feed window used when RecentVotes gets zero values
const (
	DefaultRecentVotesLimit    = 10
	DefaultRecentVotesLookback = 5000
)

// Error definitions
var (
	ErrAlreadyVoted             = errors.New("address already voted on this question")
	ErrDeadlineNotReached       = errors.New("question deadline has not been reached")
	ErrDeadlineTooSoon          = errors.New("question deadline is too soon")
	ErrInvalidDecryptionPayload = errors.New("invalid decryption payload")
	ErrInvalidKMSSignatures     = errors.New("invalid kms signatures")
	ErrInvalidQuestionInput     = errors.New("invalid question input")
	ErrPollClosed               = errors.New("poll is closed")
	ErrQuestionNotFound         = errors.New("question does not exist")
	ErrResultsAlreadyFinalized  = errors.New("results already published")
	ErrResultsAlreadyOpened     = errors.New("results already opened")
	ErrResultsNotOpened         = errors.New("results are still encrypted on-chain")
	ErrProtocolUnsupported      = errors.New("confidential protocol unsupported on this chain")

	ErrInvalidVote       = errors.New("vote must be 0 or 1")
	ErrTransactionFailed = errors.New("transaction reverted")
	ErrEncryptionFailed  = errors.New("encryption produced no handle")
)

var revertErrors = map[string]error{
	"AlreadyVoted":             ErrAlreadyVoted,
	"DeadlineNotReached":       ErrDeadlineNotReached,
	"DeadlineTooSoon":          ErrDeadlineTooSoon,
	"InvalidDecryptionPayload": ErrInvalidDecryptionPayload,
	"InvalidKMSSignatures":     ErrInvalidKMSSignatures,
	"InvalidQuestionInput":     ErrInvalidQuestionInput,
	"PollClosed":               ErrPollClosed,
	"QuestionDoesNotExist":     ErrQuestionNotFound,
	"ResultsAlreadyFinalized":  ErrResultsAlreadyFinalized,
	"ResultsAlreadyOpened":     ErrResultsAlreadyOpened,
	"ResultsNotOpened":         ErrResultsNotOpened,
	"ZamaProtocolUnsupported":  ErrProtocolUnsupported,
}

// decodeRevert maps a custom-error revert carried by err to its sentinel.
// Errors without revert data are returned unchanged.
func decodeRevert(err error) error {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return err
	}
	hexData, ok := dataErr.ErrorData().(string)
	if !ok {
		return err
	}
	data, decodeErr := hexutil.Decode(hexData)
	if decodeErr != nil || len(data) < 4 {
		return err
	}

	for name, abiErr := range ContractABI.Errors {
		if !bytes.Equal(abiErr.ID[:4], data[:4]) {
			continue
		}
		if sentinel, ok := revertErrors[name]; ok {
			return fmt.Errorf("%w: %w", sentinel, err)
		}
		return fmt.Errorf("contract reverted with %s: %w", name, err)
	}
	return err
}
