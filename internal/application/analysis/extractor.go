// Package analysis turns the provider's free-form "grade this session" text
// into a structured score report.
//
// The input is adversarial by nature: models wrap JSON in prose, in markdown
// fences, or return no JSON at all. Extraction therefore runs a tolerance
// chain and always terminates with a valid report — the degraded path
// zero-fills every score and carries the original text as feedback.
package analysis

import (
	"encoding/json"
	"strings"

	"github.com/soyle-hub/soyle-practice-hub/internal/domain/session"
)

// reportDTO mirrors the JSON shape the grading prompt asks the model for.
// Score fields default to zero when absent; list fields are decoded
// best-effort so a malformed list does not fail the whole parse.
type reportDTO struct {
	PronunciationScore    float64         `json:"pronunciation_score"`
	GrammarScore          float64         `json:"grammar_score"`
	VocabularyScore       float64         `json:"vocabulary_score"`
	FluencyScore          float64         `json:"fluency_score"`
	OverallScore          float64         `json:"overall_score"`
	Feedback              string          `json:"feedback"`
	GrammarErrors         json.RawMessage `json:"grammar_errors"`
	VocabularySuggestions json.RawMessage `json:"vocabulary_suggestions"`
}

// ExtractReport parses the analysis text into a report.
//
// Tolerance chain:
//  1. trim whitespace;
//  2. if the text contains a ``` fence (optionally tagged json), take the
//     content of the first fence;
//  3. if the result is not brace-bounded, slice from the first '{' to the
//     last '}' to recover JSON embedded in prose;
//  4. parse; on success map recognized keys with zero defaults;
//  5. on any failure return the degraded report built from the original,
//     untrimmed input.
//
// The function is pure and total: it returns a valid report for every input
// string, including the empty string.
func ExtractReport(text string) session.Report {
	candidate := strings.TrimSpace(text)

	candidate = stripFence(candidate)

	if !isBraceBounded(candidate) {
		candidate = sliceBraces(candidate)
	}

	var dto reportDTO
	if err := json.Unmarshal([]byte(candidate), &dto); err != nil {
		return session.DegradedReport(text)
	}

	report := session.Report{
		PronunciationScore: session.ClampScore(int(dto.PronunciationScore)),
		GrammarScore:       session.ClampScore(int(dto.GrammarScore)),
		VocabularyScore:    session.ClampScore(int(dto.VocabularyScore)),
		FluencyScore:       session.ClampScore(int(dto.FluencyScore)),
		OverallScore:       session.ClampScore(int(dto.OverallScore)),
		Feedback:           dto.Feedback,
	}
	if report.Feedback == "" {
		report.Feedback = session.DefaultFeedback
	}

	report.GrammarErrors = decodeStringList(dto.GrammarErrors)
	report.VocabularySuggestions = decodeStringList(dto.VocabularySuggestions)

	return report
}

// stripFence returns the content of the first ``` fence, or the input
// unchanged when no fence is present. Models sometimes forget the closing
// fence or append commentary after it; everything past the opening fence and
// before the next ``` (or end of string) is taken.
func stripFence(s string) string {
	idx := strings.Index(s, "```")
	if idx < 0 {
		return s
	}

	rest := s[idx+3:]
	if after, ok := strings.CutPrefix(rest, "json"); ok {
		rest = after
	}
	rest = strings.TrimLeft(rest, " \t\r\n")

	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}

	return strings.TrimSpace(rest)
}

// isBraceBounded reports whether s already looks like a JSON object.
func isBraceBounded(s string) bool {
	return strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")
}

// sliceBraces recovers a JSON object embedded in prose by slicing between the
// first '{' and the last '}'. Returns the input unchanged when no such pair
// exists, leaving the parse step to fail into the degraded path.
func sliceBraces(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

// decodeStringList decodes an optional list field. Entries may be plain
// strings or objects; objects are flattened to their JSON encoding so the
// information survives rather than failing extraction.
func decodeStringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var items []string
	if err := json.Unmarshal(raw, &items); err == nil {
		if len(items) == 0 {
			return nil
		}
		return items
	}

	var objects []json.RawMessage
	if err := json.Unmarshal(raw, &objects); err != nil {
		return nil
	}
	if len(objects) == 0 {
		return nil
	}

	items = make([]string, 0, len(objects))
	for _, obj := range objects {
		items = append(items, string(obj))
	}
	return items
}
