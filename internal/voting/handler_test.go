package voting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/ahwlsqja/shadow-vote/internal/common/errors"
	"github.com/ahwlsqja/shadow-vote/internal/common/middleware"
	"github.com/ahwlsqja/shadow-vote/internal/questionid"
	"github.com/ahwlsqja/shadow-vote/pkg/fhevm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, env *testEnv) (*gin.Engine, *questionid.Mapper) {
	t.Helper()

	mapper := questionid.New(env.store, zap.NewNop())
	mapper.Init(context.Background())

	r := gin.New()
	r.Use(middleware.RequestID())
	NewHandler(env.client, mapper, zap.NewNop()).RegisterRoutes(r.Group("/api/v1"))
	return r, mapper
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorBody {
	t.Helper()
	var resp middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestHandler_GetQuestion(t *testing.T) {
	env := newTestEnv(t, successfulReceipt())
	env.addOpenQuestion(3, 0, 0)
	r, mapper := newTestRouter(t, env)

	w := doRequest(r, http.MethodGet, "/api/v1/questions/3", "")
	require.Equal(t, http.StatusOK, w.Code)

	var q QuestionResponse
	decodeData(t, w, &q)
	assert.Equal(t, uint64(3), q.ID)
	assert.Equal(t, "Ship it?", q.Prompt)
	assert.Len(t, q.Alias, questionid.AliasLength)

	id, ok := mapper.Resolve(context.Background(), q.Alias)
	require.True(t, ok)
	assert.Equal(t, uint64(3), id)

	t.Run("by alias", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/questions/alias/"+q.Alias, "")
		require.Equal(t, http.StatusOK, w.Code)

		var byAlias QuestionResponse
		decodeData(t, w, &byAlias)
		assert.Equal(t, q, byAlias)
	})

	t.Run("unknown alias", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/questions/alias/nope", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing question", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/questions/77", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, apperrors.CodeNotFound, decodeError(t, w).Code)
	})

	t.Run("bad id", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/questions/abc", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_Count(t *testing.T) {
	env := newTestEnv(t, successfulReceipt())
	env.addOpenQuestion(0, 0, 0)
	env.addOpenQuestion(1, 0, 0)
	r, _ := newTestRouter(t, env)

	w := doRequest(r, http.MethodGet, "/api/v1/questions/count", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp CountResponse
	decodeData(t, w, &resp)
	assert.Equal(t, uint64(2), resp.Count)
}

func TestHandler_Vote(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		sendErr    error
		instErr    error
		wantStatus int
		wantCode   string
	}{
		{name: "yes", body: `{"answer":1}`, wantStatus: http.StatusCreated},
		{name: "no", body: `{"answer":0}`, wantStatus: http.StatusCreated},
		{name: "out of range", body: `{"answer":2}`, wantStatus: http.StatusBadRequest, wantCode: apperrors.CodeInvalidInput},
		{name: "missing answer", body: `{}`, wantStatus: http.StatusBadRequest, wantCode: apperrors.CodeInvalidInput},
		{name: "already voted", body: `{"answer":1}`, sendErr: revertError("AlreadyVoted"), wantStatus: http.StatusConflict, wantCode: apperrors.CodeConflict},
		{name: "poll closed", body: `{"answer":1}`, sendErr: revertError("PollClosed"), wantStatus: http.StatusConflict, wantCode: apperrors.CodeInvalidState},
		{name: "node down", body: `{"answer":1}`, sendErr: errNodeDown, wantStatus: http.StatusServiceUnavailable, wantCode: apperrors.CodeChainError},
		{name: "instance not ready", body: `{"answer":1}`, instErr: context.DeadlineExceeded, wantStatus: http.StatusServiceUnavailable, wantCode: apperrors.CodeInstanceNotReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, successfulReceipt())
			env.contract.sendErr = tt.sendErr
			if tt.instErr != nil {
				env.client.instances = fixedInstances{err: tt.instErr}
			}
			r, _ := newTestRouter(t, env)

			w := doRequest(r, http.MethodPost, "/api/v1/questions/5/votes", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, w).Code)
				return
			}
			var resp TxResponse
			decodeData(t, w, &resp)
			assert.NotEmpty(t, resp.TxHash)
		})
	}
}

func TestHandler_CreateQuestion(t *testing.T) {
	event := ContractABI.Events[eventQuestionCreated]
	env := newTestEnv(t, successfulReceipt(
		&types.Log{Topics: []common.Hash{event.ID, common.BigToHash(common.Big1)}},
	))
	r, mapper := newTestRouter(t, env)

	body := `{"prompt":"Pineapple on pizza?","answer_a":"Yes","answer_b":"No","deadline":1800000000}`
	w := doRequest(r, http.MethodPost, "/api/v1/questions", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp TxResponse
	decodeData(t, w, &resp)
	require.NotNil(t, resp.QuestionID)
	assert.Equal(t, uint64(1), *resp.QuestionID)
	assert.True(t, mapper.Has(context.Background(), resp.Alias))

	t.Run("invalid body", func(t *testing.T) {
		w := doRequest(r, http.MethodPost, "/api/v1/questions", `{"prompt":""}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("deadline too soon", func(t *testing.T) {
		env.contract.sendErr = revertError("DeadlineTooSoon")
		defer func() { env.contract.sendErr = nil }()

		w := doRequest(r, http.MethodPost, "/api/v1/questions", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_PublishResults(t *testing.T) {
	env := newTestEnv(t, successfulReceipt())
	env.addOpenQuestion(9, 12, 4)
	closed := env.addOpenQuestion(10, 0, 0)
	closed.ResultsOpened = false
	r, _ := newTestRouter(t, env)

	w := doRequest(r, http.MethodPost, "/api/v1/questions/9/publish", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp PublishResponse
	decodeData(t, w, &resp)
	assert.Equal(t, [2]uint64{12, 4}, resp.Tally)

	w = doRequest(r, http.MethodPost, "/api/v1/questions/10/publish", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, apperrors.CodeInvalidState, body.Code)
	assert.EqualValues(t, 10, body.Details["question_id"])
}

func TestHandler_HasVoted(t *testing.T) {
	env := newTestEnv(t, successfulReceipt())
	voter := common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	env.contract.voted[voter] = true
	r, _ := newTestRouter(t, env)

	w := doRequest(r, http.MethodGet, "/api/v1/questions/1/voters/"+voter.Hex(), "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HasVotedResponse
	decodeData(t, w, &resp)
	assert.True(t, resp.HasVoted)
	assert.Equal(t, voter.Hex(), resp.Voter)

	w = doRequest(r, http.MethodGet, "/api/v1/questions/1/voters/not-an-address", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{ErrQuestionNotFound, apperrors.CodeNotFound},
		{ErrInvalidVote, apperrors.CodeInvalidInput},
		{ErrDeadlineNotReached, apperrors.CodeInvalidState},
		{ErrResultsAlreadyOpened, apperrors.CodeInvalidState},
		{fhevm.ErrAuthorizationFailed, apperrors.CodeAuthorizationFailed},
		{context.DeadlineExceeded, apperrors.CodeChainTimeout},
		{errNodeDown, apperrors.CodeChainError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			var appErr *apperrors.AppError
			require.ErrorAs(t, toAppError(tt.err, 1), &appErr)
			assert.Equal(t, tt.code, appErr.Code)
		})
	}
}

func TestHandler_RecentVotes(t *testing.T) {
	env := newTestEnv(t, successfulReceipt())
	voter := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	env.contract.addVote(3, voter, 10)
	env.contract.addVote(4, voter, 11)
	r, mapper := newTestRouter(t, env)

	w := doRequest(r, http.MethodGet, "/api/v1/questions/votes/recent?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var votes []VoteEventResponse
	decodeData(t, w, &votes)
	require.Len(t, votes, 1)
	assert.Equal(t, uint64(4), votes[0].QuestionID)
	assert.Equal(t, voter.Hex(), votes[0].Voter)
	assert.Equal(t, uint64(11), votes[0].BlockNumber)

	id, ok := mapper.Resolve(context.Background(), votes[0].Alias)
	require.True(t, ok)
	assert.Equal(t, uint64(4), id)

	w = doRequest(r, http.MethodGet, "/api/v1/questions/votes/recent", "")
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &votes)
	assert.Len(t, votes, 2)

	w = doRequest(r, http.MethodGet, "/api/v1/questions/votes/recent?limit=500", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.contract.callErr = errNodeDown
	w = doRequest(r, http.MethodGet, "/api/v1/questions/votes/recent", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
