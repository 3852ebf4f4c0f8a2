package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/deliberation/dsm-engine/internal/apierror"
	"github.com/deliberation/dsm-engine/internal/deliberation"
	"github.com/deliberation/dsm-engine/internal/middleware"
	"github.com/deliberation/dsm-engine/internal/models"
)

// DeliberationService is the subset of deliberation.Service the HTTP layer
// depends on.
type DeliberationService interface {
	Create(ctx context.Context, createdBy, question string, maxParticipants *int, numCritiqueRounds int, metadata map[string]interface{}) (*models.Deliberation, error)
	Get(ctx context.Context, id string) (*models.Deliberation, error)
	List(ctx context.Context, stage *models.Stage, limit, offset int) ([]*models.Deliberation, error)
	GetCurrentStatements(ctx context.Context, id string) ([]*models.Statement, error)
	SubmitOpinion(ctx context.Context, deliberationID, participantID, text string) (*models.Opinion, error)
	SubmitRanking(ctx context.Context, deliberationID, participantID string, entries []models.RankedStatement) (*models.Ranking, error)
	SubmitCritique(ctx context.Context, deliberationID, participantID, text string) (*models.Critique, error)
	SubmitFeedback(ctx context.Context, deliberationID, participantID string, agreement int, text string) (*models.HumanFeedback, error)
	GetResult(ctx context.Context, id string) (*deliberation.ResultView, error)
	CheckTransition(ctx context.Context, deliberationID string) error
}

// DeliberationHandler implements the /deliberations endpoint group.
type DeliberationHandler struct {
	svc DeliberationService
	log *logrus.Logger
}

// NewDeliberationHandler builds a DeliberationHandler.
func NewDeliberationHandler(svc DeliberationService, log *logrus.Logger) *DeliberationHandler {
	return &DeliberationHandler{svc: svc, log: log}
}

type createDeliberationRequest struct {
	Question          string                 `json:"question" binding:"required"`
	MaxParticipants   *int                   `json:"max_participants"`
	NumCritiqueRounds int                    `json:"num_critique_rounds" binding:"required"`
	Metadata          map[string]interface{} `json:"metadata"`
}

// Create handles POST /deliberations.
func (h *DeliberationHandler) Create(c *gin.Context) {
	var req createDeliberationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION", "message": err.Error()})
		return
	}

	participant := middleware.CurrentParticipant(c)
	d, err := h.svc.Create(c.Request.Context(), participant.ID, req.Question, req.MaxParticipants, req.NumCritiqueRounds, req.Metadata)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// List handles GET /deliberations?stage=.
func (h *DeliberationHandler) List(c *gin.Context) {
	var stagePtr *models.Stage
	if raw := c.Query("stage"); raw != "" {
		stage := models.Stage(raw)
		stagePtr = &stage
	}

	limit, offset := parsePagination(c)
	deliberations, err := h.svc.List(c.Request.Context(), stagePtr, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliberations": deliberations, "total": len(deliberations)})
}

func parsePagination(c *gin.Context) (limit, offset int) {
	limit = 50
	offset = 0
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// Get handles GET /deliberations/{id}.
func (h *DeliberationHandler) Get(c *gin.Context) {
	d, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GetStatements handles GET /deliberations/{id}/statements.
func (h *DeliberationHandler) GetStatements(c *gin.Context) {
	stmts, err := h.svc.GetCurrentStatements(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"statements": stmts})
}

type submitOpinionRequest struct {
	Text string `json:"text" binding:"required"`
}

// SubmitOpinion handles POST /deliberations/{id}/opinions.
func (h *DeliberationHandler) SubmitOpinion(c *gin.Context) {
	var req submitOpinionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION", "message": err.Error()})
		return
	}
	participant := middleware.CurrentParticipant(c)
	opinion, err := h.svc.SubmitOpinion(c.Request.Context(), c.Param("id"), participant.ID, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, opinion)
}

type rankingEntryRequest struct {
	StatementID string `json:"statement_id" binding:"required"`
	Rank        int    `json:"rank" binding:"required"`
}

type submitRankingRequest struct {
	StatementRankings []rankingEntryRequest `json:"statement_rankings" binding:"required,dive"`
}

// SubmitRanking handles POST /deliberations/{id}/rankings.
func (h *DeliberationHandler) SubmitRanking(c *gin.Context) {
	var req submitRankingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": apierror.InvalidRanking, "message": err.Error()})
		return
	}

	entries := make([]models.RankedStatement, len(req.StatementRankings))
	for i, e := range req.StatementRankings {
		entries[i] = models.RankedStatement{StatementID: e.StatementID, Rank: e.Rank}
	}

	participant := middleware.CurrentParticipant(c)
	ranking, err := h.svc.SubmitRanking(c.Request.Context(), c.Param("id"), participant.ID, entries)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ranking)
}

type submitCritiqueRequest struct {
	Text string `json:"text" binding:"required"`
}

// SubmitCritique handles POST /deliberations/{id}/critiques.
func (h *DeliberationHandler) SubmitCritique(c *gin.Context) {
	var req submitCritiqueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION", "message": err.Error()})
		return
	}
	participant := middleware.CurrentParticipant(c)
	critique, err := h.svc.SubmitCritique(c.Request.Context(), c.Param("id"), participant.ID, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, critique)
}

type submitFeedbackRequest struct {
	AgreementLevel int    `json:"agreement_level" binding:"required"`
	Text           string `json:"text"`
}

// SubmitFeedback handles POST /deliberations/{id}/feedback.
func (h *DeliberationHandler) SubmitFeedback(c *gin.Context) {
	var req submitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION", "message": err.Error()})
		return
	}
	participant := middleware.CurrentParticipant(c)
	feedback, err := h.svc.SubmitFeedback(c.Request.Context(), c.Param("id"), participant.ID, req.AgreementLevel, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, feedback)
}

// GetResult handles GET /deliberations/{id}/result.
func (h *DeliberationHandler) GetResult(c *gin.Context) {
	result, err := h.svc.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"deliberation":    result.Deliberation,
		"final_statement": result.FinalStatement,
		"feedback":        result.Feedback,
	})
}

// Recheck handles POST /deliberations/{id}/recheck: the operator "re-check
// transition" action spec.md §5 names for resuming a deliberation stuck
// after a fatal round failure.
func (h *DeliberationHandler) Recheck(c *gin.Context) {
	if err := h.svc.CheckTransition(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rechecked"})
}
