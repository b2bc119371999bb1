package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCorrect(t *testing.T) {
	tests := []struct {
		correct, selected string
		want              bool
	}{
		{"B", "B", true},
		{"B", "b", true},
		{"B", " B ", true},
		{" b\t", "B", true},
		{"B", "C", false},
		{"B", "", false},
		{"", "", false},
		{"AB", "A", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsCorrect(tt.correct, tt.selected), "IsCorrect(%q, %q)", tt.correct, tt.selected)
	}
}

func TestCheck(t *testing.T) {
	res := Check("C", "because", "a")
	assert.False(t, res.IsCorrect)
	assert.Equal(t, "C", res.CorrectAnswer)
	assert.Equal(t, "because", res.Explanation)
}

func TestOptionLabel(t *testing.T) {
	assert.Equal(t, "A", OptionLabel(0))
	assert.Equal(t, "B", OptionLabel(1))
	assert.Equal(t, "Z", OptionLabel(25))
	assert.Equal(t, "AA", OptionLabel(26))
	assert.Equal(t, "AB", OptionLabel(27))
	assert.Equal(t, "", OptionLabel(-1))
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "B", NormalizeLabel("  b "))
}
