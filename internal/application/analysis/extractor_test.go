package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soyle-hub/soyle-practice-hub/internal/domain/session"
)

func TestExtractReport_FencedJSON(t *testing.T) {
	input := "```json\n{\"overall_score\":82,\"grammar_score\":70}\n```"

	report := ExtractReport(input)

	assert.Equal(t, 82, report.OverallScore)
	assert.Equal(t, 70, report.GrammarScore)
	assert.Equal(t, 0, report.PronunciationScore)
	assert.Equal(t, 0, report.VocabularyScore)
	assert.Equal(t, 0, report.FluencyScore)
	assert.False(t, report.Degraded)
	assert.Equal(t, session.DefaultFeedback, report.Feedback)
}

func TestExtractReport_PlainProse_Degrades(t *testing.T) {
	input := "Great job, keep practicing!"

	report := ExtractReport(input)

	assert.True(t, report.Degraded)
	assert.Equal(t, 0, report.OverallScore)
	assert.Equal(t, 0, report.PronunciationScore)
	assert.Equal(t, 0, report.GrammarScore)
	assert.Equal(t, 0, report.VocabularyScore)
	assert.Equal(t, 0, report.FluencyScore)
	assert.Equal(t, input, report.Feedback)
	assert.Nil(t, report.GrammarErrors)
	assert.Nil(t, report.VocabularySuggestions)
}

func TestExtractReport_JSONEmbeddedInProse(t *testing.T) {
	input := "Here is your assessment:\n{\"overall_score\": 64, \"fluency_score\": 58, \"feedback\": \"Work on pacing.\"}\nKeep it up!"

	report := ExtractReport(input)

	assert.False(t, report.Degraded)
	assert.Equal(t, 64, report.OverallScore)
	assert.Equal(t, 58, report.FluencyScore)
	assert.Equal(t, "Work on pacing.", report.Feedback)
}

func TestExtractReport_UntaggedFence(t *testing.T) {
	input := "```\n{\"overall_score\": 90, \"feedback\": \"Excellent.\"}\n```"

	report := ExtractReport(input)

	assert.False(t, report.Degraded)
	assert.Equal(t, 90, report.OverallScore)
	assert.Equal(t, "Excellent.", report.Feedback)
}

func TestExtractReport_FenceWithTrailingCommentary(t *testing.T) {
	input := "```json\n{\"overall_score\": 75}\n```\nLet me know if you need anything else."

	report := ExtractReport(input)

	assert.False(t, report.Degraded)
	assert.Equal(t, 75, report.OverallScore)
}

func TestExtractReport_ErrorLists(t *testing.T) {
	input := `{"overall_score": 55, "grammar_errors": ["wrong tense in sentence 2"], "vocabulary_suggestions": ["use 'journey' instead of 'trip'"]}`

	report := ExtractReport(input)

	assert.False(t, report.Degraded)
	assert.Equal(t, []string{"wrong tense in sentence 2"}, report.GrammarErrors)
	assert.Equal(t, []string{"use 'journey' instead of 'trip'"}, report.VocabularySuggestions)
}

func TestExtractReport_ScoresClamped(t *testing.T) {
	input := `{"overall_score": 140, "grammar_score": -5}`

	report := ExtractReport(input)

	assert.Equal(t, 100, report.OverallScore)
	assert.Equal(t, 0, report.GrammarScore)
}

// Totality: every input, however malformed, must yield a report and never
// panic.
func TestExtractReport_Totality(t *testing.T) {
	inputs := []string{
		"",
		"   \n\t  ",
		"{",
		"}",
		"}{",
		"{\"overall_score\": }",
		"```json",
		"``````",
		"```json\nnot json at all\n```",
		"prose with a stray { brace",
		strings.Repeat("a", 10000),
		"{\"grammar_errors\": \"not a list\"}",
	}

	for _, input := range inputs {
		report := ExtractReport(input)
		assert.GreaterOrEqual(t, report.OverallScore, 0, "input %q", input)
		assert.LessOrEqual(t, report.OverallScore, 100, "input %q", input)
	}
}

func TestExtractReport_EmptyString_Degrades(t *testing.T) {
	report := ExtractReport("")

	assert.True(t, report.Degraded)
	assert.Equal(t, "", report.Feedback)
	assert.Equal(t, 0, report.OverallScore)
}

// The original, untrimmed text must survive into degraded feedback.
func TestExtractReport_DegradedKeepsOriginalWhitespace(t *testing.T) {
	input := "  needs more practice  \n"

	report := ExtractReport(input)

	assert.True(t, report.Degraded)
	assert.Equal(t, input, report.Feedback)
}
