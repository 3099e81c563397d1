// Package conversation orchestrates turn-taking between a practice session
// and the generative provider.
//
// The orchestrator owns prompt framing and context windowing. It never lets a
// provider failure escape to the learner: a failed generation becomes a benign
// in-band fallback reply and the exchange is still recorded.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/soyle-hub/soyle-practice-hub/internal/domain/session"
)

// ContextWindowTurns bounds how many trailing transcript turns are sent to
// the provider per call. Windowing is a read-time view; storage keeps the
// full transcript.
const ContextWindowTurns = 10

// FallbackReply is returned in-band when the provider is unavailable, so the
// learner sees a coherent message instead of an error.
const FallbackReply = "Sorry, I had trouble hearing you just now. Could you say that again?"

// Message is one provider-format chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat message roles understood by the provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Generator is the capability contract over the generative provider. The
// implementation is expected to bound the call with its own timeout and to
// normalize provider failures to shared.ErrServiceUnavailable.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// Orchestrator builds bounded context from a session and invokes the
// generator once per exchange.
type Orchestrator struct {
	generator Generator
	logger    *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(generator Generator, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{generator: generator, logger: logger}
}

// Reply produces the assistant's answer to userText within the session's
// conversation. The second return value reports degraded mode: true means the
// provider failed and the fallback text was substituted. Reply never returns
// an error — fail-soft is this layer's contract.
func (o *Orchestrator) Reply(ctx context.Context, sess *session.Session, userText string) (string, bool) {
	messages := o.buildWindow(sess)
	messages = append(messages, Message{Role: RoleUser, Content: userText})

	text, err := o.generator.Generate(ctx, messages)
	if err != nil {
		o.logger.Warn("generation failed, substituting fallback reply",
			"session_id", sess.ID.String(),
			"error", err,
		)
		return FallbackReply, true
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return FallbackReply, true
	}
	return text, false
}

// Analyze asks the provider for a whole-transcript assessment and returns the
// raw analysis text. Unlike Reply, errors are returned: the finalize flow
// degrades the report itself rather than substituting chat text.
func (o *Orchestrator) Analyze(ctx context.Context, sess *session.Session) (string, error) {
	messages := []Message{
		{Role: RoleSystem, Content: analysisInstruction(sess)},
		{Role: RoleUser, Content: renderTranscript(sess)},
	}

	return o.generator.Generate(ctx, messages)
}

// buildWindow translates the session's trailing turns into provider messages,
// framed by a system instruction built from the session descriptors.
func (o *Orchestrator) buildWindow(sess *session.Session) []Message {
	window := sess.LastTurns(ContextWindowTurns)
	messages := make([]Message, 0, len(window)+1)
	messages = append(messages, Message{Role: RoleSystem, Content: systemInstruction(sess)})

	for _, turn := range window {
		role := RoleUser
		if turn.Role == session.RoleAssistant {
			role = RoleAssistant
		}
		messages = append(messages, Message{Role: role, Content: turn.Content})
	}

	return messages
}

// systemInstruction frames the chat call so the model stays on-topic.
func systemInstruction(sess *session.Session) string {
	var b strings.Builder
	b.WriteString("You are a friendly English speaking-practice partner. ")
	b.WriteString("Keep replies short and conversational, gently correct serious mistakes, and ask follow-up questions.")

	if sess.Topic != "" {
		fmt.Fprintf(&b, " The conversation topic is %q.", sess.Topic)
	}
	if sess.Scenario != "" {
		fmt.Fprintf(&b, " Roleplay scenario: %s.", sess.Scenario)
	}

	return b.String()
}

// analysisInstruction asks for the structured grading JSON the extractor
// understands.
func analysisInstruction(sess *session.Session) string {
	var b strings.Builder
	b.WriteString("You are an English speaking examiner. Assess the learner's side of the following practice conversation. ")
	b.WriteString("Respond with a single JSON object with integer fields pronunciation_score, grammar_score, vocabulary_score, fluency_score, overall_score (0-100), ")
	b.WriteString("a feedback string, and optional grammar_errors and vocabulary_suggestions string arrays.")

	if sess.Topic != "" {
		fmt.Fprintf(&b, " The conversation topic was %q.", sess.Topic)
	}

	return b.String()
}

// renderTranscript flattens the full transcript for the analysis call. The
// whole conversation is graded, not just the context window.
func renderTranscript(sess *session.Session) string {
	if len(sess.Transcript) == 0 {
		return "(the learner did not say anything)"
	}

	var b strings.Builder
	for _, turn := range sess.Transcript {
		label := "Learner"
		if turn.Role == session.RoleAssistant {
			label = "Partner"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, turn.Content)
	}
	return b.String()
}
