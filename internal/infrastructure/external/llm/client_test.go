package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyle-hub/soyle-practice-hub/internal/application/conversation"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/shared"
)

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.APIKey = "test-key"
	cfg.CandidateModels = []string{"preferred-model", "backup-model"}
	cfg.RequestTimeout = 2 * time.Second
	return cfg
}

func modelsHandler(served ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		var resp modelsResponse
		for _, id := range served {
			resp.Data = append(resp.Data, struct {
				ID string `json:"id"`
			}{ID: id})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func completionHandler(t *testing.T, content string, wantModel string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if wantModel != "" {
			assert.Equal(t, wantModel, req.Model)
		}

		resp := chatResponse{}
		resp.Choices = append(resp.Choices, struct {
			Index   int `json:"index"`
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		}{})
		resp.Choices[0].Message.Role = "assistant"
		resp.Choices[0].Message.Content = content
		resp.Usage.TotalTokens = 42
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func TestGenerate_ReturnsCompletion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /models", modelsHandler("preferred-model"))
	mux.HandleFunc("POST /chat/completions", completionHandler(t, "Hello there!", "preferred-model"))
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(context.Background(), testConfig(server.URL), nil)

	text, err := client.Generate(context.Background(), []conversation.Message{
		{Role: conversation.RoleUser, Content: "Hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there!", text)
}

func TestNewClient_ProbesCandidatesInOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /models", modelsHandler("backup-model", "unrelated"))
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(context.Background(), testConfig(server.URL), nil)

	// The preferred model is not served, so the next candidate wins.
	assert.Equal(t, "backup-model", client.Model())
}

func TestNewClient_ProbeFailureKeepsFirstCandidate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /models", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(context.Background(), testConfig(server.URL), nil)
	assert.Equal(t, "preferred-model", client.Model())
}

func TestGenerate_Unconfigured_FailsFastDeterministically(t *testing.T) {
	client := NewClient(context.Background(), Config{}, nil)

	for i := 0; i < 3; i++ {
		_, err := client.Generate(context.Background(), []conversation.Message{{Role: "user", Content: "hi"}})
		assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	}
}

func TestGenerate_ServerErrorNormalized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /models", modelsHandler("preferred-model"))
	mux.HandleFunc("POST /chat/completions", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(context.Background(), testConfig(server.URL), nil)

	_, err := client.Generate(context.Background(), []conversation.Message{{Role: "user", Content: "hi"}})
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}

func TestGenerate_RateLimitNormalized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /models", modelsHandler("preferred-model"))
	mux.HandleFunc("POST /chat/completions", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(context.Background(), testConfig(server.URL), nil)

	_, err := client.Generate(context.Background(), []conversation.Message{{Role: "user", Content: "hi"}})
	assert.ErrorIs(t, err, shared.ErrRateLimited)
}

func TestGenerate_BadRequestNotRetried(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("GET /models", modelsHandler("preferred-model"))
	mux.HandleFunc("POST /chat/completions", func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request"}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(context.Background(), testConfig(server.URL), nil)

	_, err := client.Generate(context.Background(), []conversation.Message{{Role: "user", Content: "hi"}})
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.Equal(t, 1, calls)
}

func TestGenerate_RepeatedFailuresOpenCircuit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /models", modelsHandler("preferred-model"))
	mux.HandleFunc("POST /chat/completions", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(context.Background(), testConfig(server.URL), nil)

	msgs := []conversation.Message{{Role: "user", Content: "hi"}}
	for i := 0; i < 5; i++ {
		_, err := client.Generate(context.Background(), msgs)
		require.Error(t, err)
	}

	assert.True(t, client.breaker.IsOpen())

	// Open circuit still yields the normalized unavailable error.
	_, err := client.Generate(context.Background(), msgs)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}
