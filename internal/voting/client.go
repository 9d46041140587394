package voting

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ahwlsqja/shadow-vote/pkg/fhevm"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"
)

// Backend is the chain connection the client binds to; *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// TxSigner signs both decryption authorizations and transactions
type TxSigner interface {
	fhevm.Signer
	TransactOpts(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error)
}

// InstanceSource hands out the current fhevm instance
type InstanceSource interface {
	Wait(ctx context.Context) (fhevm.Instance, error)
}

type contractCaller interface {
	Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error)
	FilterLogs(opts *bind.FilterOpts, name string, query ...[]interface{}) (chan types.Log, event.Subscription, error)
}

type headerReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

type receiptWaiter func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)

// Config holds the chain parameters of the voting contract
type Config struct {
	ContractAddress common.Address
	ChainID         int64
	TxTimeout       time.Duration
	InstanceTimeout time.Duration
}

// Client drives the SimpleVoting contract: plain reads, encrypted votes,
// and publication of decrypted tallies.
type Client struct {
	cfg        Config
	contract   contractCaller
	headers    headerReader
	wait       receiptWaiter
	signer     TxSigner
	instances  InstanceSource
	authorizer *fhevm.Authorizer
	logger     *zap.Logger
}

// NewClient binds the contract at cfg.ContractAddress on backend
func NewClient(backend Backend, cfg Config, signer TxSigner, instances InstanceSource, authorizer *fhevm.Authorizer, logger *zap.Logger) *Client {
	bound := bind.NewBoundContract(cfg.ContractAddress, ContractABI, backend, backend, backend)
	wait := func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
		return bind.WaitMined(ctx, backend, tx)
	}
	return newClient(bound, backend, wait, cfg, signer, instances, authorizer, logger)
}

func newClient(contract contractCaller, headers headerReader, wait receiptWaiter, cfg Config, signer TxSigner, instances InstanceSource, authorizer *fhevm.Authorizer, logger *zap.Logger) *Client {
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 2 * time.Minute
	}
	if cfg.InstanceTimeout <= 0 {
		cfg.InstanceTimeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		contract:   contract,
		headers:    headers,
		wait:       wait,
		signer:     signer,
		instances:  instances,
		authorizer: authorizer,
		logger:     logger,
	}
}

// ContractAddress returns the bound contract address
func (c *Client) ContractAddress() common.Address {
	return c.cfg.ContractAddress
}

// GetQuestionsCount returns the number of questions created so far
func (c *Client) GetQuestionsCount(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, methodGetQuestionsCount)
	if err != nil {
		return 0, err
	}
	count := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return count.Uint64(), nil
}

// MinDuration returns the minimum time between creation and deadline
func (c *Client) MinDuration(ctx context.Context) (time.Duration, error) {
	out, err := c.call(ctx, methodMinDuration)
	if err != nil {
		return 0, err
	}
	secs := *abi.ConvertType(out[0], new(uint64)).(*uint64)
	return time.Duration(secs) * time.Second, nil
}

// GetQuestion reads one question
func (c *Client) GetQuestion(ctx context.Context, questionID uint64) (*Question, error) {
	out, err := c.call(ctx, methodGetQuestion, new(big.Int).SetUint64(questionID))
	if err != nil {
		return nil, err
	}
	if len(out) != 9 {
		return nil, fmt.Errorf("unexpected getQuestion result length %d", len(out))
	}

	q := &Question{
		ID:               questionID,
		Prompt:           *abi.ConvertType(out[0], new(string)).(*string),
		CreatedBy:        *abi.ConvertType(out[1], new(common.Address)).(*common.Address),
		Answers:          *abi.ConvertType(out[2], new([2]string)).(*[2]string),
		Image:            *abi.ConvertType(out[3], new(string)).(*string),
		ResultsOpened:    *abi.ConvertType(out[5], new(bool)).(*bool),
		ResultsFinalized: *abi.ConvertType(out[6], new(bool)).(*bool),
	}
	deadline := *abi.ConvertType(out[4], new(uint64)).(*uint64)
	q.Deadline = time.Unix(int64(deadline), 0).UTC()

	tally := *abi.ConvertType(out[7], new([2][32]byte)).(*[2][32]byte)
	q.EncryptedTally = [2]common.Hash{tally[0], tally[1]}
	q.DecryptedTally = *abi.ConvertType(out[8], new([2]uint32)).(*[2]uint32)
	return q, nil
}

// HasVoted reports whether voter already voted on questionID
func (c *Client) HasVoted(ctx context.Context, questionID uint64, voter common.Address) (bool, error) {
	out, err := c.call(ctx, methodHasVoted, new(big.Int).SetUint64(questionID), voter)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// CreateQuestion creates a two-answer question and returns its id
func (c *Client) CreateQuestion(ctx context.Context, p CreateQuestionParams) (*TxResult, error) {
	receipt, err := c.transact(ctx, methodCreateQuestion,
		p.Prompt, p.AnswerA, p.AnswerB, p.Image, uint64(p.Deadline.Unix()))
	if err != nil {
		return nil, err
	}

	result := &TxResult{TxHash: receipt.TxHash, BlockNumber: receipt.BlockNumber.Uint64()}
	if id, ok := questionIDFromLogs(receipt.Logs); ok {
		result.QuestionID = &id
	}
	return result, nil
}

func questionIDFromLogs(logs []*types.Log) (uint64, bool) {
	created := ContractABI.Events[eventQuestionCreated]
	for _, l := range logs {
		if len(l.Topics) > 1 && l.Topics[0] == created.ID {
			return new(big.Int).SetBytes(l.Topics[1].Bytes()).Uint64(), true
		}
	}
	return 0, false
}

// RecentVotes returns up to limit VoteCast events from the last lookback
// blocks, newest first, each with its block timestamp. Zero values select
// DefaultRecentVotesLimit and DefaultRecentVotesLookback.
func (c *Client) RecentVotes(ctx context.Context, limit int, lookback uint64) ([]VoteEvent, error) {
	if limit <= 0 {
		limit = DefaultRecentVotesLimit
	}
	if lookback == 0 {
		lookback = DefaultRecentVotesLookback
	}

	head, err := c.headers.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest block: %w", err)
	}
	latest := head.Number.Uint64()
	var start uint64
	if latest > lookback {
		start = latest - lookback
	}

	logs, sub, err := c.contract.FilterLogs(&bind.FilterOpts{Start: start, End: &latest, Context: ctx}, eventVoteCast)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", eventVoteCast, err)
	}
	defer sub.Unsubscribe()

	collected, err := drainLogs(ctx, logs, sub)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", eventVoteCast, err)
	}

	sort.Slice(collected, func(i, j int) bool {
		if collected[i].BlockNumber != collected[j].BlockNumber {
			return collected[i].BlockNumber > collected[j].BlockNumber
		}
		return collected[i].Index > collected[j].Index
	})

	timestamps := make(map[uint64]time.Time)
	votes := make([]VoteEvent, 0, limit)
	for _, l := range collected {
		if len(votes) == limit {
			break
		}
		vote, ok := voteFromLog(l)
		if !ok {
			continue
		}

		ts, ok := timestamps[l.BlockNumber]
		if !ok {
			header, err := c.headers.HeaderByNumber(ctx, new(big.Int).SetUint64(l.BlockNumber))
			if err != nil {
				return nil, fmt.Errorf("failed to read block %d: %w", l.BlockNumber, err)
			}
			ts = time.Unix(int64(header.Time), 0).UTC()
			timestamps[l.BlockNumber] = ts
		}
		vote.Timestamp = ts
		votes = append(votes, vote)
	}

	c.logger.Debug("recent votes fetched",
		zap.Uint64("from_block", start),
		zap.Uint64("to_block", latest),
		zap.Int("matched", len(collected)),
		zap.Int("returned", len(votes)),
	)
	return votes, nil
}

// drainLogs collects every log the filter subscription delivers
func drainLogs(ctx context.Context, logs chan types.Log, sub event.Subscription) ([]types.Log, error) {
	var out []types.Log
	for {
		select {
		case l := <-logs:
			out = append(out, l)
		case err := <-sub.Err():
			if err != nil {
				return nil, err
			}
			for {
				select {
				case l := <-logs:
					out = append(out, l)
				default:
					return out, nil
				}
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func voteFromLog(l types.Log) (VoteEvent, bool) {
	voteCast := ContractABI.Events[eventVoteCast]
	if l.Removed || len(l.Topics) < 3 || l.Topics[0] != voteCast.ID {
		return VoteEvent{}, false
	}
	return VoteEvent{
		QuestionID:  new(big.Int).SetBytes(l.Topics[1].Bytes()).Uint64(),
		Voter:       common.BytesToAddress(l.Topics[2].Bytes()),
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
	}, true
}

// EncryptVote encrypts a 0/1 choice bound to the contract and the signer
func (c *Client) EncryptVote(ctx context.Context, value uint8) (*EncryptedVote, error) {
	if value > 1 {
		return nil, ErrInvalidVote
	}

	instance, err := c.instance(ctx)
	if err != nil {
		return nil, err
	}
	user, err := c.signer.GetAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve signer address: %w", err)
	}

	enc, err := instance.CreateEncryptedInput(c.cfg.ContractAddress, user).Add8(value).Encrypt(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt vote: %w", err)
	}
	if len(enc.Handles) == 0 || len(enc.InputProof) == 0 {
		return nil, ErrEncryptionFailed
	}
	return &EncryptedVote{Handle: enc.Handles[0], InputProof: enc.InputProof}, nil
}

// Vote encrypts answer and submits it for questionID
func (c *Client) Vote(ctx context.Context, questionID uint64, answer uint8) (*TxResult, error) {
	enc, err := c.EncryptVote(ctx, answer)
	if err != nil {
		return nil, err
	}

	receipt, err := c.transact(ctx, methodVote,
		new(big.Int).SetUint64(questionID), [32]byte(enc.Handle), enc.InputProof)
	if err != nil {
		return nil, err
	}
	return &TxResult{TxHash: receipt.TxHash, BlockNumber: receipt.BlockNumber.Uint64()}, nil
}

// OpenResults makes the tally of questionID publicly decryptable
func (c *Client) OpenResults(ctx context.Context, questionID uint64) (*TxResult, error) {
	receipt, err := c.transact(ctx, methodOpenResults, new(big.Int).SetUint64(questionID))
	if err != nil {
		return nil, err
	}
	return &TxResult{TxHash: receipt.TxHash, BlockNumber: receipt.BlockNumber.Uint64()}, nil
}

// PublishResults decrypts the opened tally and submits it with its proof.
// A valid decryption authorization for the contract is required first.
func (c *Client) PublishResults(ctx context.Context, questionID uint64) (*PublishResult, error) {
	q, err := c.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if !q.ResultsOpened {
		return nil, ErrResultsNotOpened
	}
	if q.ResultsFinalized {
		return nil, ErrResultsAlreadyFinalized
	}

	instance, err := c.instance(ctx)
	if err != nil {
		return nil, err
	}

	sig, err := c.authorizer.LoadOrSign(ctx, instance, []common.Address{c.cfg.ContractAddress}, c.signer, nil)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("decryption authorization available",
		zap.Uint64("question_id", questionID),
		zap.Time("expires_at", sig.ExpiresAt()),
	)

	decrypted, err := instance.PublicDecrypt(ctx, q.EncryptedTally[:])
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt tally: %w", err)
	}

	receipt, err := c.transact(ctx, methodPublishResults,
		new(big.Int).SetUint64(questionID), decrypted.AbiEncodedClearValues, decrypted.DecryptionProof)
	if err != nil {
		return nil, err
	}

	result := &PublishResult{
		TxResult: TxResult{TxHash: receipt.TxHash, BlockNumber: receipt.BlockNumber.Uint64()},
	}
	for i, h := range q.EncryptedTally {
		if v, ok := decrypted.ClearValues[h]; ok {
			result.Tally[i] = v.Uint64()
		}
	}

	c.logger.Info("results published",
		zap.Uint64("question_id", questionID),
		zap.Uint64s("tally", result.Tally[:]),
		zap.String("tx", receipt.TxHash.Hex()),
	)
	return result, nil
}

func (c *Client) instance(ctx context.Context) (fhevm.Instance, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.InstanceTimeout)
	defer cancel()

	instance, err := c.instances.Wait(waitCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fhevm.ErrInstanceNotReady, err)
	}
	return instance, nil
}

func (c *Client) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, decodeRevert(err))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return out, nil
}

func (c *Client) transact(ctx context.Context, method string, params ...interface{}) (*types.Receipt, error) {
	opts, err := c.signer.TransactOpts(ctx, big.NewInt(c.cfg.ChainID))
	if err != nil {
		return nil, fmt.Errorf("failed to build transactor: %w", err)
	}

	tx, err := c.contract.Transact(opts, method, params...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, decodeRevert(err))
	}

	c.logger.Info("transaction sent",
		zap.String("method", method),
		zap.String("tx", tx.Hash().Hex()),
	)

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.TxTimeout)
	defer cancel()

	receipt, err := c.wait(waitCtx, tx)
	if err != nil {
		return nil, fmt.Errorf("%s: waiting for receipt: %w", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		c.logger.Warn("transaction reverted",
			zap.String("method", method),
			zap.String("tx", tx.Hash().Hex()),
		)
		return nil, fmt.Errorf("%s: %w: %s", method, ErrTransactionFailed, tx.Hash().Hex())
	}
	return receipt, nil
}
