// Package llm implements the generative provider client over an
// OpenAI-compatible chat completions API.
//
// The client is constructed once at startup: it probes the configured
// candidate models in preference order and settles on the first one the
// server actually serves. Every provider failure is normalized to the shared
// error taxonomy so callers can degrade without knowing HTTP details.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/soyle-hub/soyle-practice-hub/internal/application/conversation"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/shared"
	"github.com/soyle-hub/soyle-practice-hub/pkg/circuitbreaker"
	"github.com/soyle-hub/soyle-practice-hub/pkg/retry"
)

// Config holds provider connection configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string

	// APIKey authenticates requests. Empty means the provider is not
	// configured and every Generate call fails fast with a deterministic
	// service-unavailable error.
	APIKey string

	// CandidateModels are probed in order at construction; the first model
	// the server serves becomes the session model.
	CandidateModels []string

	// RequestTimeout bounds a single completion call.
	RequestTimeout time.Duration

	// MaxTokens caps the completion length.
	MaxTokens int

	// Temperature is the sampling temperature.
	Temperature float64
}

// DefaultConfig returns provider defaults.
func DefaultConfig() Config {
	return Config{
		CandidateModels: []string{"gpt-4o-mini", "gpt-4o", "gpt-3.5-turbo"},
		RequestTimeout:  30 * time.Second,
		MaxTokens:       512,
		Temperature:     0.7,
	}
}

// Client calls an OpenAI-compatible chat completions endpoint. It implements
// conversation.Generator.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	temp       float64
	configured bool

	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger

	tracer  trace.Tracer
	latency metric.Float64Histogram
	tokens  metric.Int64Counter
}

// NewClient creates a Client and resolves the working model. Construction
// never fails: an unreachable or unconfigured provider yields a client whose
// Generate returns shared.ErrProviderUnavailable, which the orchestrator
// already degrades around.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if len(cfg.CandidateModels) == 0 {
		cfg.CandidateModels = DefaultConfig().CandidateModels
	}

	meter := otel.Meter("soyle-hub/llm")
	latency, _ := meter.Float64Histogram("llm.client.request.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of provider completion calls"),
	)
	tokens, _ := meter.Int64Counter("llm.client.tokens",
		metric.WithDescription("Tokens consumed by provider calls"),
	)

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		maxTokens:  cfg.MaxTokens,
		temp:       cfg.Temperature,
		configured: cfg.BaseURL != "" && cfg.APIKey != "",
		retrier:    retry.ProviderRetrier(),
		logger:     logger,
		tracer:     otel.Tracer("soyle-hub/llm"),
		latency:    latency,
		tokens:     tokens,
	}

	c.breaker = circuitbreaker.ProviderBreaker(func(name string, from, to circuitbreaker.State) {
		logger.Warn("circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
	})

	if !c.configured {
		logger.Warn("llm provider not configured, all generations will degrade")
		return c
	}

	c.model = c.resolveModel(ctx, cfg.CandidateModels)
	logger.Info("llm provider ready", "base_url", c.baseURL, "model", c.model)
	return c
}

// Model returns the resolved model name, empty when unconfigured.
func (c *Client) Model() string {
	return c.model
}

// Generate sends the conversation to the provider and returns the assistant
// text. All failures are normalized: timeouts to shared.ErrProviderTimeout,
// everything else to shared.ErrProviderUnavailable.
func (c *Client) Generate(ctx context.Context, messages []conversation.Message) (string, error) {
	if !c.configured {
		return "", shared.ErrProviderUnavailable
	}

	ctx, span := c.tracer.Start(ctx, "llm.generate")
	defer span.End()

	var text string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			var callErr error
			text, callErr = c.complete(ctx, messages)
			return callErr
		})
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return "", shared.ErrProviderUnavailable
		}
		return "", normalizeError(err)
	}
	return text, nil
}

// complete performs one chat completion HTTP call.
func (c *Client) complete(ctx context.Context, messages []conversation.Message) (string, error) {
	body := chatRequest{
		Model:       c.model,
		Messages:    make([]chatMessage, 0, len(messages)),
		MaxTokens:   c.maxTokens,
		Temperature: c.temp,
	}
	for _, m := range messages {
		body.Messages = append(body.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		return "", retry.Retryable(err)
	}
	defer resp.Body.Close()

	c.latency.Record(ctx, float64(duration.Milliseconds()),
		metric.WithAttributes(attribute.Int("http.status_code", resp.StatusCode)),
	)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", retry.Retryable(err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, raw)
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", retry.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if len(decoded.Choices) == 0 {
		return "", retry.Permanent(errors.New("provider returned no choices"))
	}

	c.tokens.Add(ctx, decoded.Usage.TotalTokens,
		metric.WithAttributes(attribute.String("model", c.model)),
	)

	return decoded.Choices[0].Message.Content, nil
}

// resolveModel probes candidates in preference order. It asks the server for
// its model list once; when that endpoint is unavailable it keeps the first
// candidate and lets real calls decide.
func (c *Client) resolveModel(ctx context.Context, candidates []string) string {
	served, err := c.listModels(ctx)
	if err != nil {
		c.logger.Warn("model probing failed, using first candidate",
			"model", candidates[0], "error", err)
		return candidates[0]
	}

	for _, candidate := range candidates {
		if _, ok := served[candidate]; ok {
			return candidate
		}
	}

	c.logger.Warn("no candidate model served, using first candidate", "model", candidates[0])
	return candidates[0]
}

// listModels fetches GET /models and returns the served model ids.
func (c *Client) listModels(ctx context.Context) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("models endpoint returned %d", resp.StatusCode)
	}

	var decoded modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}

	served := make(map[string]struct{}, len(decoded.Data))
	for _, m := range decoded.Data {
		served[m.ID] = struct{}{}
	}
	return served, nil
}

// classifyStatus maps an HTTP failure to retry semantics.
func classifyStatus(status int, raw []byte) error {
	var envelope apiError
	_ = json.Unmarshal(raw, &envelope)
	msg := envelope.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("provider returned status %d", status)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return retry.Retryable(shared.WrapError("provider", "Generate", shared.ErrRateLimited, msg, nil))
	case status >= 500:
		return retry.Retryable(shared.WrapError("provider", "Generate", shared.ErrServiceUnavailable, msg, nil))
	default:
		// 4xx other than 429: our request is wrong, retrying will not help.
		return retry.Permanent(shared.WrapError("provider", "Generate", shared.ErrServiceUnavailable, msg, nil))
	}
}

// normalizeError folds transport errors into the shared taxonomy.
func normalizeError(err error) error {
	if shared.IsServiceUnavailable(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return shared.ErrProviderTimeout
	}
	return shared.WrapError("provider", "Generate", shared.ErrServiceUnavailable, "provider call failed", err)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
