package session

// DefaultFeedback is used when a structured analysis carries no feedback text.
const DefaultFeedback = "Session completed."

// Report is the structured outcome of a finalized session.
//
// Scores are always present after completion: a degraded extraction still
// produces a zero-filled report, never absent scores.
type Report struct {
	PronunciationScore int `json:"pronunciation_score"`
	GrammarScore       int `json:"grammar_score"`
	VocabularyScore    int `json:"vocabulary_score"`
	FluencyScore       int `json:"fluency_score"`
	OverallScore       int `json:"overall_score"`

	Feedback string `json:"feedback"`

	GrammarErrors         []string `json:"grammar_errors,omitempty"`
	VocabularySuggestions []string `json:"vocabulary_suggestions,omitempty"`

	// Degraded marks a report produced by the raw-text fallback path. It is a
	// loggable condition, not an error, and does not block completion.
	Degraded bool `json:"degraded,omitempty"`
}

// DegradedReport builds the fallback report for an analysis text that could
// not be parsed: all scores zero, feedback carries the original text verbatim.
func DegradedReport(rawText string) Report {
	return Report{
		Feedback: rawText,
		Degraded: true,
	}
}

// ClampScore bounds a score to the valid 0-100 range.
func ClampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
