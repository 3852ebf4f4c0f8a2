package middleware

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/deliberation/dsm-engine/internal/auth"
	"github.com/deliberation/dsm-engine/internal/models"
)

type fakeLookup struct {
	hash []byte
	p    *models.Participant
}

func (f *fakeLookup) GetByTokenHash(ctx context.Context, hash []byte) (*models.Participant, error) {
	if string(hash) == string(f.hash) {
		return f.p, nil
	}
	return nil, assertNotFound{}
}

type assertNotFound struct{}

func (assertNotFound) Error() string { return "not found" }

func silentLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestAuth_MissingHeaderRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hasher := auth.NewHasher("salt")
	lookup := &fakeLookup{}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/deliberations", nil)

	Auth(hasher, lookup, silentLogger())(c)

	assert.Equal(t, 401, w.Code)
	assert.True(t, c.IsAborted())
}

func TestAuth_ValidTokenSetsParticipant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hasher := auth.NewHasher("salt")
	hash, err := hasher.Hash("mytoken")
	assert.NoError(t, err)

	participant := &models.Participant{ID: "p1", Name: "agent-1"}
	lookup := &fakeLookup{hash: hash, p: participant}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/deliberations", nil)
	c.Request.Header.Set("Authorization", "Bearer mytoken")

	Auth(hasher, lookup, silentLogger())(c)

	assert.False(t, c.IsAborted())
	assert.Equal(t, participant, CurrentParticipant(c))
}

func TestAuth_UnknownTokenRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hasher := auth.NewHasher("salt")
	lookup := &fakeLookup{hash: []byte("something-else"), p: &models.Participant{ID: "p1"}}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/deliberations", nil)
	c.Request.Header.Set("Authorization", "Bearer wrong-token")

	Auth(hasher, lookup, silentLogger())(c)

	assert.Equal(t, 401, w.Code)
	assert.True(t, c.IsAborted())
}
