package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestParsePagination_Defaults(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/deliberations", nil)

	limit, offset := parsePagination(c)
	assert.Equal(t, 50, limit)
	assert.Equal(t, 0, offset)
}

func TestParsePagination_Overrides(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/deliberations?limit=10&offset=20", nil)

	limit, offset := parsePagination(c)
	assert.Equal(t, 10, limit)
	assert.Equal(t, 20, offset)
}

func TestParsePagination_IgnoresInvalid(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/deliberations?limit=-5&offset=abc", nil)

	limit, offset := parsePagination(c)
	assert.Equal(t, 50, limit)
	assert.Equal(t, 0, offset)
}
