package voting

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"github.com/ahwlsqja/shadow-vote/internal/common/errors"
	"github.com/ahwlsqja/shadow-vote/internal/common/middleware"
	"github.com/ahwlsqja/shadow-vote/internal/questionid"
	"github.com/ahwlsqja/shadow-vote/pkg/fhevm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for questions and votes
type Handler struct {
	client  *Client
	aliases *questionid.Mapper
	logger  *zap.Logger
}

// NewHandler creates a new voting handler
func NewHandler(client *Client, aliases *questionid.Mapper, logger *zap.Logger) *Handler {
	return &Handler{
		client:  client,
		aliases: aliases,
		logger:  logger,
	}
}

// RegisterRoutes registers question routes on the router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	questions := rg.Group("/questions")
	{
		questions.POST("", h.CreateQuestion)
		questions.GET("/count", h.CountQuestions)
		questions.GET("/votes/recent", h.RecentVotes)
		questions.GET("/alias/:alias", h.GetQuestionByAlias)
		questions.GET("/:id", h.GetQuestion)
		questions.POST("/:id/votes", h.Vote)
		questions.POST("/:id/open", h.OpenResults)
		questions.POST("/:id/publish", h.PublishResults)
		questions.GET("/:id/voters/:address", h.HasVoted)
	}
}

func parseQuestionID(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errors.InvalidInput("Invalid question id")
	}
	return id, nil
}

// toAppError maps client errors onto the API error taxonomy
func toAppError(err error, questionID uint64) error {
	var appErr *errors.AppError
	switch {
	case stderrors.As(err, &appErr):
		return appErr
	case stderrors.Is(err, ErrQuestionNotFound):
		return errors.NotFound("question")
	case stderrors.Is(err, ErrInvalidVote),
		stderrors.Is(err, ErrInvalidQuestionInput),
		stderrors.Is(err, ErrDeadlineTooSoon):
		return errors.InvalidInput(err.Error())
	case stderrors.Is(err, ErrAlreadyVoted):
		return errors.Conflict("Address already voted on this question")
	case stderrors.Is(err, ErrResultsNotOpened),
		stderrors.Is(err, ErrResultsAlreadyOpened),
		stderrors.Is(err, ErrResultsAlreadyFinalized),
		stderrors.Is(err, ErrPollClosed),
		stderrors.Is(err, ErrDeadlineNotReached):
		return errors.InvalidQuestionState(questionID, err.Error()).WithError(err)
	case stderrors.Is(err, fhevm.ErrAuthorizationFailed):
		return errors.AuthorizationFailed(err)
	case stderrors.Is(err, fhevm.ErrInstanceNotReady):
		return errors.InstanceNotReady(err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.ChainTimeout(err)
	default:
		return errors.ChainError("Voting contract call failed").WithError(err)
	}
}

func (h *Handler) alias(c *gin.Context, id uint64) string {
	alias, err := h.aliases.Alias(c.Request.Context(), id)
	if err != nil {
		h.logger.Warn("failed to assign question alias", zap.Uint64("question_id", id), zap.Error(err))
		return ""
	}
	return alias
}

// CountQuestions godoc
// @Summary Count questions
// @Description Returns the number of questions created on the contract
// @Tags questions
// @Produce json
// @Success 200 {object} middleware.SuccessResponse{data=CountResponse}
// @Failure 503 {object} middleware.ErrorResponse "Chain unavailable"
// @Router /api/v1/questions/count [get]
func (h *Handler) CountQuestions(c *gin.Context) {
	count, err := h.client.GetQuestionsCount(c.Request.Context())
	if err != nil {
		middleware.RespondError(c, toAppError(err, 0))
		return
	}
	middleware.RespondOK(c, CountResponse{Count: count})
}

// GetQuestion godoc
// @Summary Get question
// @Description Reads a question and its share alias
// @Tags questions
// @Produce json
// @Param id path int true "Question id"
// @Success 200 {object} middleware.SuccessResponse{data=QuestionResponse}
// @Failure 400 {object} middleware.ErrorResponse "Invalid question id"
// @Failure 404 {object} middleware.ErrorResponse "Question not found"
// @Router /api/v1/questions/{id} [get]
func (h *Handler) GetQuestion(c *gin.Context) {
	id, err := parseQuestionID(c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	h.respondQuestion(c, id)
}

// GetQuestionByAlias godoc
// @Summary Get question by alias
// @Description Resolves a share-link alias and reads the question
// @Tags questions
// @Produce json
// @Param alias path string true "Question alias"
// @Success 200 {object} middleware.SuccessResponse{data=QuestionResponse}
// @Failure 404 {object} middleware.ErrorResponse "Unknown alias"
// @Router /api/v1/questions/alias/{alias} [get]
func (h *Handler) GetQuestionByAlias(c *gin.Context) {
	id, ok := h.aliases.Resolve(c.Request.Context(), c.Param("alias"))
	if !ok {
		middleware.RespondError(c, errors.NotFound("question alias"))
		return
	}
	h.respondQuestion(c, id)
}

func (h *Handler) respondQuestion(c *gin.Context, id uint64) {
	q, err := h.client.GetQuestion(c.Request.Context(), id)
	if err != nil {
		middleware.RespondError(c, toAppError(err, id))
		return
	}
	middleware.RespondOK(c, ToQuestionResponse(q, h.alias(c, id)))
}

// CreateQuestion godoc
// @Summary Create question
// @Description Creates a two-answer question with a deadline
// @Tags questions
// @Accept json
// @Produce json
// @Param request body CreateQuestionRequest true "Question"
// @Success 201 {object} middleware.SuccessResponse{data=TxResponse}
// @Failure 400 {object} middleware.ErrorResponse "Invalid input"
// @Failure 503 {object} middleware.ErrorResponse "Chain unavailable"
// @Router /api/v1/questions [post]
func (h *Handler) CreateQuestion(c *gin.Context) {
	var req CreateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, errors.InvalidInput(err.Error()))
		return
	}

	result, err := h.client.CreateQuestion(c.Request.Context(), CreateQuestionParams{
		Prompt:   req.Prompt,
		AnswerA:  req.AnswerA,
		AnswerB:  req.AnswerB,
		Image:    req.Image,
		Deadline: time.Unix(req.Deadline, 0),
	})
	if err != nil {
		middleware.RespondError(c, toAppError(err, 0))
		return
	}

	resp := ToTxResponse(result)
	if result.QuestionID != nil {
		resp.Alias = h.alias(c, *result.QuestionID)
	}
	middleware.RespondCreated(c, resp)
}

// Vote godoc
// @Summary Cast vote
// @Description Encrypts the answer (0 or 1) and submits it
// @Tags questions
// @Accept json
// @Produce json
// @Param id path int true "Question id"
// @Param request body VoteRequest true "Answer"
// @Success 201 {object} middleware.SuccessResponse{data=TxResponse}
// @Failure 400 {object} middleware.ErrorResponse "Invalid input"
// @Failure 409 {object} middleware.ErrorResponse "Already voted or poll closed"
// @Failure 503 {object} middleware.ErrorResponse "Instance not ready"
// @Router /api/v1/questions/{id}/votes [post]
func (h *Handler) Vote(c *gin.Context) {
	id, err := parseQuestionID(c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, errors.InvalidInput(err.Error()))
		return
	}

	result, err := h.client.Vote(c.Request.Context(), id, *req.Answer)
	if err != nil {
		middleware.RespondError(c, toAppError(err, id))
		return
	}
	middleware.RespondCreated(c, ToTxResponse(result))
}

// OpenResults godoc
// @Summary Open results
// @Description Makes the encrypted tally publicly decryptable after the deadline
// @Tags questions
// @Produce json
// @Param id path int true "Question id"
// @Success 200 {object} middleware.SuccessResponse{data=TxResponse}
// @Failure 409 {object} middleware.ErrorResponse "Deadline not reached or already opened"
// @Router /api/v1/questions/{id}/open [post]
func (h *Handler) OpenResults(c *gin.Context) {
	id, err := parseQuestionID(c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	result, err := h.client.OpenResults(c.Request.Context(), id)
	if err != nil {
		middleware.RespondError(c, toAppError(err, id))
		return
	}
	middleware.RespondOK(c, ToTxResponse(result))
}

// PublishResults godoc
// @Summary Publish results
// @Description Decrypts the opened tally and publishes it with its proof
// @Tags questions
// @Produce json
// @Param id path int true "Question id"
// @Success 200 {object} middleware.SuccessResponse{data=PublishResponse}
// @Failure 403 {object} middleware.ErrorResponse "Decryption authorization failed"
// @Failure 409 {object} middleware.ErrorResponse "Results not opened or already published"
// @Failure 503 {object} middleware.ErrorResponse "Instance not ready"
// @Router /api/v1/questions/{id}/publish [post]
func (h *Handler) PublishResults(c *gin.Context) {
	id, err := parseQuestionID(c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	result, err := h.client.PublishResults(c.Request.Context(), id)
	if err != nil {
		middleware.RespondError(c, toAppError(err, id))
		return
	}
	middleware.RespondOK(c, PublishResponse{
		TxResponse: ToTxResponse(&result.TxResult),
		Tally:      result.Tally,
	})
}

// HasVoted godoc
// @Summary Check voter
// @Description Reports whether an address voted on a question
// @Tags questions
// @Produce json
// @Param id path int true "Question id"
// @Param address path string true "Voter address"
// @Success 200 {object} middleware.SuccessResponse{data=HasVotedResponse}
// @Failure 400 {object} middleware.ErrorResponse "Invalid input"
// @Router /api/v1/questions/{id}/voters/{address} [get]
func (h *Handler) HasVoted(c *gin.Context) {
	id, err := parseQuestionID(c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		middleware.RespondError(c, errors.InvalidInput("Invalid voter address"))
		return
	}
	voter := common.HexToAddress(address)

	voted, err := h.client.HasVoted(c.Request.Context(), id, voter)
	if err != nil {
		middleware.RespondError(c, toAppError(err, id))
		return
	}
	middleware.RespondOK(c, HasVotedResponse{QuestionID: id, Voter: voter.Hex(), HasVoted: voted})
}

// RecentVotes godoc
// @Summary Recent votes
// @Description Lists the latest VoteCast events, newest first, with block timestamps
// @Tags questions
// @Produce json
// @Param limit query int false "Maximum number of votes (default 10)"
// @Param blocks query int false "Number of blocks to look back (default 5000)"
// @Success 200 {object} middleware.SuccessResponse{data=[]VoteEventResponse}
// @Failure 400 {object} middleware.ErrorResponse "Invalid input"
// @Failure 503 {object} middleware.ErrorResponse "Chain unavailable"
// @Router /api/v1/questions/votes/recent [get]
func (h *Handler) RecentVotes(c *gin.Context) {
	var q RecentVotesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.RespondError(c, errors.InvalidInput(err.Error()))
		return
	}

	votes, err := h.client.RecentVotes(c.Request.Context(), q.Limit, q.Blocks)
	if err != nil {
		middleware.RespondError(c, toAppError(err, 0))
		return
	}

	resp := make([]VoteEventResponse, len(votes))
	for i, v := range votes {
		resp[i] = ToVoteEventResponse(v, h.alias(c, v.QuestionID))
	}
	middleware.RespondOK(c, resp)
}
