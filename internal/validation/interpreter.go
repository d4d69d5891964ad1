package validation

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var (
	similarityPattern = regexp.MustCompile(`(?i)similarity[:\s]+(\d+\.?\d*)`)
	confidencePattern = regexp.MustCompile(`(?i)confidence[:\s]+(\d+\.?\d*)`)

	validKeywords   = []string{"valid", "match", "same", "correct"}
	invalidKeywords = []string{"invalid", "different", "not match", "incorrect"}
)

// rawVerdict uses pointers so absent fields can be told apart from
// zero values and given their documented defaults.
type rawVerdict struct {
	SimilarityScore *float64 `json:"similarity_score"`
	ConfidenceScore *float64 `json:"confidence_score"`
	IsValid         *bool    `json:"is_valid"`
	Notes           *string  `json:"notes"`
	KeyMatches      []string `json:"key_matches"`
	KeyDifferences  []string `json:"key_differences"`
}

// Interpret turns the comparator's raw text into a Verdict. It never
// fails: JSON extraction first, heuristic scraping second, and the
// fail-closed fallback when neither yields anything usable.
func Interpret(raw string) (verdict Verdict) {
	defer func() {
		if r := recover(); r != nil {
			verdict = FallbackVerdict()
		}
	}()

	if v, ok := interpretJSON(raw); ok {
		return v
	}
	if v, ok := interpretText(raw); ok {
		return v
	}
	return FallbackVerdict()
}

// interpretJSON scans for the greedy brace span across the whole text,
// the same way responses wrapped in markdown fences get cleaned.
func interpretJSON(raw string) (Verdict, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return Verdict{}, false
	}

	var parsed rawVerdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return Verdict{}, false
	}

	v := Verdict{
		Notes:          "AI validation completed",
		KeyMatches:     []string{},
		KeyDifferences: []string{},
	}
	if parsed.SimilarityScore != nil {
		v.SimilarityScore = *parsed.SimilarityScore
	}
	if parsed.ConfidenceScore != nil {
		v.ConfidenceScore = *parsed.ConfidenceScore
	}
	if parsed.IsValid != nil {
		v.IsValid = *parsed.IsValid
	}
	if parsed.Notes != nil {
		v.Notes = *parsed.Notes
	}
	if parsed.KeyMatches != nil {
		v.KeyMatches = parsed.KeyMatches
	}
	if parsed.KeyDifferences != nil {
		v.KeyDifferences = parsed.KeyDifferences
	}
	return v, true
}

// interpretText scrapes scores and a validity decision out of free-form
// prose. A number above 1.0 is read as a percentage. When the text
// carries no recognizable signal at all, the caller falls back.
func interpretText(raw string) (Verdict, bool) {
	v := Verdict{
		SimilarityScore: 0.5,
		ConfidenceScore: 0.5,
		Notes:           raw,
		KeyMatches:      []string{},
		KeyDifferences:  []string{},
	}

	found := false
	if m := similarityPattern.FindStringSubmatch(raw); m != nil {
		if score, err := strconv.ParseFloat(m[1], 64); err == nil {
			if score > 1.0 {
				score = score / 100.0
			}
			v.SimilarityScore = score
			found = true
		}
	}
	if m := confidencePattern.FindStringSubmatch(raw); m != nil {
		if score, err := strconv.ParseFloat(m[1], 64); err == nil {
			if score > 1.0 {
				score = score / 100.0
			}
			v.ConfidenceScore = score
			found = true
		}
	}

	lower := strings.ToLower(raw)
	if containsAny(lower, validKeywords) {
		v.IsValid = true
		found = true
	} else if containsAny(lower, invalidKeywords) {
		v.IsValid = false
		found = true
	}

	return v, found
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
