package validation

// Verdict is the structured interpretation of the comparator's raw
// response. It is transient; its fields get copied onto the Completion
// and ValidationRecord but the Verdict itself is never persisted.
type Verdict struct {
	SimilarityScore float64  `json:"similarity_score"`
	ConfidenceScore float64  `json:"confidence_score"`
	IsValid         bool     `json:"is_valid"`
	Notes           string   `json:"notes"`
	KeyMatches      []string `json:"key_matches"`
	KeyDifferences  []string `json:"key_differences"`
}

// FallbackVerdict is returned whenever the comparator call or the
// interpretation of its output fails. An uninterpretable response must
// never be treated as an approval.
func FallbackVerdict() Verdict {
	return Verdict{
		SimilarityScore: 0.0,
		ConfidenceScore: 0.0,
		IsValid:         false,
		Notes:           "AI validation failed - manual review required",
		KeyMatches:      []string{},
		KeyDifferences:  []string{},
	}
}
