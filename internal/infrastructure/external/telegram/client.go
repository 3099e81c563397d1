// Package telegram implements the Telegram notification channel.
// Mentors receive session lifecycle messages through the Bot API; delivery is
// best-effort and the caller isolates failures per recipient.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/soyle-hub/soyle-practice-hub/internal/domain/notification"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/shared"
	"github.com/soyle-hub/soyle-practice-hub/pkg/circuitbreaker"
	"github.com/soyle-hub/soyle-practice-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Telegram channel.
type ClientConfig struct {
	// Token is the Telegram Bot API token.
	Token string

	// BaseURL is the Bot API base URL (default: https://api.telegram.org).
	BaseURL string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:   token,
		BaseURL: "https://api.telegram.org",
		Timeout: 15 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// API TYPES
// ══════════════════════════════════════════════════════════════════════════════

// sendMessageRequest is the Bot API sendMessage payload.
type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// apiResponse is the Bot API response envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client delivers notifications through the Telegram Bot API. It implements
// notification.Channel.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates a Telegram channel client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Client{
		token:      cfg.Token,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retrier:    retry.TelegramRetrier(),
		logger:     cfg.Logger,
	}
	c.breaker = circuitbreaker.TelegramBreaker(func(name string, from, to circuitbreaker.State) {
		cfg.Logger.Warn("circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
	})
	return c
}

// Deliver sends a rendered payload to one recipient.
func (c *Client) Deliver(ctx context.Context, recipient notification.Recipient, payload notification.Payload) error {
	if recipient.TelegramChatID == 0 {
		return shared.ErrInvalidRecipient
	}

	text := renderMessage(recipient, payload)

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.sendMessage(ctx, recipient.TelegramChatID, text)
		})
	})
	if err != nil {
		return shared.WrapError("notification", "Deliver", shared.ErrServiceUnavailable, "telegram delivery failed", err)
	}
	return nil
}

// sendMessage performs one Bot API sendMessage call.
func (c *Client) sendMessage(ctx context.Context, chatID int64, text string) error {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return retry.Permanent(err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.Retryable(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return retry.Retryable(err)
	}

	var decoded apiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return retry.Retryable(fmt.Errorf("decode response: %w", err))
	}
	if decoded.OK {
		return nil
	}

	// 429 and 5xx are worth retrying; 4xx means the chat is gone or the
	// payload is malformed.
	if decoded.ErrorCode == http.StatusTooManyRequests || decoded.ErrorCode >= 500 {
		return retry.Retryable(fmt.Errorf("telegram api error %d: %s", decoded.ErrorCode, decoded.Description))
	}
	return retry.Permanent(fmt.Errorf("telegram api error %d: %s", decoded.ErrorCode, decoded.Description))
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE RENDERING
// ══════════════════════════════════════════════════════════════════════════════

// renderMessage formats a payload as a Telegram HTML message.
func renderMessage(recipient notification.Recipient, payload notification.Payload) string {
	learner := payload.LearnerName
	if learner == "" {
		learner = payload.LearnerID
	}

	switch payload.Kind {
	case notification.KindSessionCompleted:
		text := fmt.Sprintf("✅ <b>%s</b> finished a speaking session", learner)
		if payload.Topic != "" {
			text += fmt.Sprintf(" on <i>%s</i>", payload.Topic)
		}
		if payload.Degraded {
			text += ".\nThe automatic report is unavailable; the transcript is saved for review."
		} else {
			text += fmt.Sprintf(".\nOverall score: <b>%d/100</b>", payload.OverallScore)
		}
		return text

	default:
		text := fmt.Sprintf("🎙 <b>%s</b> started a speaking session", learner)
		if payload.Topic != "" {
			text += fmt.Sprintf(" on <i>%s</i>", payload.Topic)
		}
		return text + "."
	}
}
