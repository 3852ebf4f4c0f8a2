// Package middleware implements the gin middleware chain: bearer-token
// participant authentication and structured request logging.
package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/deliberation/dsm-engine/internal/auth"
	"github.com/deliberation/dsm-engine/internal/models"
)

// ParticipantLookup resolves a token hash to its owning participant.
// Satisfied by *database.ParticipantRepository.
type ParticipantLookup interface {
	GetByTokenHash(ctx context.Context, tokenHash []byte) (*models.Participant, error)
}

// participantContextKey is the gin context key the authenticated participant
// is stored under.
const participantContextKey = "participant"

// Auth validates the bearer token header, hashes it with hasher, and looks
// up the owning participant via lookup. Missing or unknown tokens fail with
// 401 (spec.md §6): "Missing/invalid token -> 401."
func Auth(hasher *auth.Hasher, lookup ParticipantLookup, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(401, gin.H{"error": "missing or invalid token"})
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" {
			c.AbortWithStatusJSON(401, gin.H{"error": "missing or invalid token"})
			return
		}

		hash, err := hasher.Hash(token)
		if err != nil {
			log.WithError(err).Error("failed to hash bearer token")
			c.AbortWithStatusJSON(401, gin.H{"error": "missing or invalid token"})
			return
		}

		participant, err := lookup.GetByTokenHash(c.Request.Context(), hash)
		if err != nil {
			c.AbortWithStatusJSON(401, gin.H{"error": "missing or invalid token"})
			return
		}

		c.Set(participantContextKey, participant)
		c.Next()
	}
}

// CurrentParticipant retrieves the authenticated participant set by Auth.
func CurrentParticipant(c *gin.Context) *models.Participant {
	v, ok := c.Get(participantContextKey)
	if !ok {
		return nil
	}
	p, _ := v.(*models.Participant)
	return p
}
