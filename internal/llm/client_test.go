package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deliberation/dsm-engine/internal/mediation"
)

func silentLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(nil)
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestClient_SampleText_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "rank these", req.Prompt)
		_ = json.NewEncoder(w).Encode(completionResponse{
			Choices: []struct {
				Text string `json:"text"`
			}{{Text: "<answer>reasoning<sep>C>A=D>B</answer>"}},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Model: "test-model"}, silentLogger())
	out, err := c.SampleText(context.Background(), mediation.SampleRequest{
		Prompt: "rank these", MaxTokens: 100, Temperature: 0.5, Timeout: 5,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "C>A=D>B")
}

func TestClient_SampleText_NonOKReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Model: "test-model"}, silentLogger())
	out, err := c.SampleText(context.Background(), mediation.SampleRequest{Prompt: "x", MaxTokens: 10, Timeout: 5})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestClient_SampleText_EmptyChoicesReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse{})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Model: "test-model"}, silentLogger())
	out, err := c.SampleText(context.Background(), mediation.SampleRequest{Prompt: "x", MaxTokens: 10, Timeout: 5})
	require.NoError(t, err)
	assert.Empty(t, out)
}
