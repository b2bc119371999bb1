package grading

import "strings"

// Result is the feedback returned to a participant after answering.
type Result struct {
	IsCorrect     bool   `json:"is_correct"`
	CorrectAnswer string `json:"correct_answer"`
	Explanation   string `json:"explanation,omitempty"`
}

// IsCorrect compares an option label against the canonical one. Both sides
// are trimmed and compared case-insensitively, so "b" and " B " match "B".
func IsCorrect(correctAnswer, selectedAnswer string) bool {
	c := strings.TrimSpace(correctAnswer)
	if c == "" {
		return false
	}
	return strings.EqualFold(c, strings.TrimSpace(selectedAnswer))
}

// Check grades one selection and bundles the canonical answer and
// explanation for immediate feedback.
func Check(correctAnswer, explanation, selectedAnswer string) Result {
	return Result{
		IsCorrect:     IsCorrect(correctAnswer, selectedAnswer),
		CorrectAnswer: correctAnswer,
		Explanation:   explanation,
	}
}

// OptionLabel maps an option index to its label: 0 -> "A", 1 -> "B".
// Indexes past Z continue as "AA", "AB", ...
func OptionLabel(i int) string {
	if i < 0 {
		return ""
	}
	label := ""
	for {
		label = string(rune('A'+i%26)) + label
		i = i/26 - 1
		if i < 0 {
			return label
		}
	}
}

// NormalizeLabel is the form option labels are stored and compared in.
func NormalizeLabel(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
