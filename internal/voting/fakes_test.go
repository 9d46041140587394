package voting

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ahwlsqja/shadow-vote/pkg/fhevm"
	"github.com/ahwlsqja/shadow-vote/pkg/fhevm/mock"
	"github.com/ahwlsqja/shadow-vote/pkg/signer"
	"github.com/ahwlsqja/shadow-vote/pkg/storage"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testContractAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

type sentTx struct {
	method string
	params []interface{}
	tx     *types.Transaction
}

// fakeContract serves calls from an in-memory question table
type fakeContract struct {
	mu        sync.Mutex
	questions map[uint64]*Question
	voted     map[common.Address]bool
	sent      []sentTx
	logs      []types.Log
	head      uint64
	callErr   error
	sendErr   error
}

func newFakeContract() *fakeContract {
	return &fakeContract{
		questions: make(map[uint64]*Question),
		voted:     make(map[common.Address]bool),
	}
}

func (f *fakeContract) Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.callErr != nil {
		return f.callErr
	}

	switch method {
	case methodGetQuestionsCount:
		*results = []interface{}{big.NewInt(int64(len(f.questions)))}
	case methodMinDuration:
		*results = []interface{}{uint64(300)}
	case methodHasVoted:
		*results = []interface{}{f.voted[params[1].(common.Address)]}
	case methodGetQuestion:
		id := params[0].(*big.Int).Uint64()
		q, ok := f.questions[id]
		if !ok {
			return revertError("QuestionDoesNotExist")
		}
		*results = []interface{}{
			q.Prompt,
			q.CreatedBy,
			q.Answers,
			q.Image,
			uint64(q.Deadline.Unix()),
			q.ResultsOpened,
			q.ResultsFinalized,
			[2][32]uint8{q.EncryptedTally[0], q.EncryptedTally[1]},
			q.DecryptedTally,
		}
	default:
		return fmt.Errorf("unexpected call %s", method)
	}
	return nil
}

func (f *fakeContract) Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return nil, f.sendErr
	}
	tx := types.NewTx(&types.LegacyTx{Nonce: uint64(len(f.sent)), GasPrice: big.NewInt(1), Gas: 21000})
	f.sent = append(f.sent, sentTx{method: method, params: params, tx: tx})
	return tx, nil
}

func (f *fakeContract) FilterLogs(opts *bind.FilterOpts, name string, query ...[]interface{}) (chan types.Log, event.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.callErr != nil {
		return nil, nil, f.callErr
	}
	topic := ContractABI.Events[name].ID
	out := make(chan types.Log, len(f.logs))
	for _, l := range f.logs {
		if l.Topics[0] != topic || l.BlockNumber < opts.Start || (opts.End != nil && l.BlockNumber > *opts.End) {
			continue
		}
		out <- l
	}
	return out, event.NewSubscription(func(<-chan struct{}) error { return nil }), nil
}

// HeaderByNumber serves headers 12 seconds apart up to head
func (f *fakeContract) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.head
	if number != nil {
		n = number.Uint64()
	}
	return &types.Header{Number: new(big.Int).SetUint64(n), Time: blockTime(n)}, nil
}

func blockTime(n uint64) uint64 {
	return 1_700_000_000 + n*12
}

// addVote records a VoteCast log in block and moves head past it
func (f *fakeContract) addVote(questionID uint64, voter common.Address, block uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.logs = append(f.logs, types.Log{
		Address: testContractAddress,
		Topics: []common.Hash{
			ContractABI.Events[eventVoteCast].ID,
			common.BigToHash(new(big.Int).SetUint64(questionID)),
			common.BytesToHash(voter.Bytes()),
		},
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block*100 + questionID)),
	})
	if block > f.head {
		f.head = block
	}
}

func (f *fakeContract) lastSent() sentTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

// revertErr carries custom-error revert data like an RPC error does
type revertErr struct {
	data string
}

func (e revertErr) Error() string          { return "execution reverted" }
func (e revertErr) ErrorCode() int         { return 3 }
func (e revertErr) ErrorData() interface{} { return e.data }

func revertError(name string) error {
	id := ContractABI.Errors[name].ID
	return revertErr{data: hexutil.Encode(id[:4])}
}

// fixedInstances always returns the same instance or error
type fixedInstances struct {
	instance fhevm.Instance
	err      error
}

func (f fixedInstances) Wait(context.Context) (fhevm.Instance, error) {
	return f.instance, f.err
}

func successfulReceipt(logs ...*types.Log) receiptWaiter {
	return func(_ context.Context, tx *types.Transaction) (*types.Receipt, error) {
		return &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			TxHash:      tx.Hash(),
			BlockNumber: big.NewInt(42),
			Logs:        logs,
		}, nil
	}
}

type testEnv struct {
	client   *Client
	contract *fakeContract
	instance *mock.Instance
	signer   *signer.KeySigner
	store    *storage.Memory
}

type staticChain int64

func (c staticChain) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(int64(c)), nil
}

func newTestEnv(t *testing.T, wait receiptWaiter) *testEnv {
	t.Helper()

	inst, err := mock.New(context.Background(), staticChain(31337), mock.Config{
		ChainID:           31337,
		ACLAddress:        common.HexToAddress("0x50157CFfD6bBFA2DECe204a89ec419c23ef5755D"),
		DecryptionAddress: common.HexToAddress("0x5ffdaAB0373E62E2ea2944776209aEf29E631A64"),
	}, zap.NewNop())
	require.NoError(t, err)

	s, err := signer.GenerateKeySigner()
	require.NoError(t, err)

	store := storage.NewMemory()
	contract := newFakeContract()
	client := newClient(contract, contract, wait, Config{
		ContractAddress: testContractAddress,
		ChainID:         31337,
		TxTimeout:       time.Second,
		InstanceTimeout: time.Second,
	}, s, fixedInstances{instance: inst}, fhevm.NewAuthorizer(store, zap.NewNop()), zap.NewNop())

	return &testEnv{client: client, contract: contract, instance: inst, signer: s, store: store}
}

// addOpenQuestion stores a question whose tally handles decrypt to yes/no
func (e *testEnv) addOpenQuestion(id uint64, yes, no uint64) *Question {
	q := &Question{
		ID:            id,
		Prompt:        "Ship it?",
		CreatedBy:     e.signer.Address(),
		Answers:       [2]string{"Yes", "No"},
		Deadline:      time.Unix(1_700_000_000, 0).UTC(),
		ResultsOpened: true,
		EncryptedTally: [2]common.Hash{
			common.BigToHash(big.NewInt(int64(1000 + id*2))),
			common.BigToHash(big.NewInt(int64(1001 + id*2))),
		},
	}
	e.instance.SetClearValue(q.EncryptedTally[0], fhevm.TypeUint32, new(big.Int).SetUint64(yes))
	e.instance.SetClearValue(q.EncryptedTally[1], fhevm.TypeUint32, new(big.Int).SetUint64(no))
	e.contract.questions[id] = q
	return q
}

var errNodeDown = errors.New("dial tcp 127.0.0.1:8545: connection refused")
