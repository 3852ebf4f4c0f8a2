package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/deliberation/dsm-engine/internal/auth"
	"github.com/deliberation/dsm-engine/internal/models"
)

// ParticipantRegistrar persists a newly-registered participant.
// Satisfied by *database.ParticipantRepository.
type ParticipantRegistrar interface {
	Create(ctx context.Context, p *models.Participant) error
}

// ParticipantHandler implements POST /agents/register.
type ParticipantHandler struct {
	repo   ParticipantRegistrar
	hasher *auth.Hasher
	log    *logrus.Logger
}

// NewParticipantHandler builds a ParticipantHandler.
func NewParticipantHandler(repo ParticipantRegistrar, hasher *auth.Hasher, log *logrus.Logger) *ParticipantHandler {
	return &ParticipantHandler{repo: repo, hasher: hasher, log: log}
}

type registerRequest struct {
	Name      string `json:"name" binding:"required"`
	HumanName string `json:"human_name" binding:"required"`
}

type registerResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	HumanName string `json:"human_name"`
	Token     string `json:"token"`
	CreatedAt string `json:"created_at"`
}

// Register handles POST /agents/register: generate a credential token,
// persist only its salted hash, and return the plaintext token exactly once.
func (h *ParticipantHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION", "message": err.Error()})
		return
	}

	token, err := auth.GenerateToken()
	if err != nil {
		h.log.WithError(err).Error("failed to generate credential token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL", "message": "failed to register participant"})
		return
	}
	hash, err := h.hasher.Hash(token)
	if err != nil {
		h.log.WithError(err).Error("failed to hash credential token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL", "message": "failed to register participant"})
		return
	}

	p := &models.Participant{Name: req.Name, HumanName: req.HumanName, TokenHash: string(hash)}
	if err := h.repo.Create(c.Request.Context(), p); err != nil {
		h.log.WithError(err).Error("failed to persist participant")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL", "message": "failed to register participant"})
		return
	}

	c.JSON(http.StatusCreated, registerResponse{
		ID:        p.ID,
		Name:      p.Name,
		HumanName: p.HumanName,
		Token:     token,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	})
}
