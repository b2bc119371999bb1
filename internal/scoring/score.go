package scoring

import (
	"math"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

// ScoreSummary is derived from answer rows and never stored.
type ScoreSummary struct {
	Correct    int     `json:"correct"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// ScoreOf counts correct answers against the number of questions in the
// exam. An exam without questions scores 0.
func ScoreOf(answers []exam.Answer, totalQuestions int) ScoreSummary {
	s := ScoreSummary{Total: totalQuestions}
	for _, a := range answers {
		if a.IsCorrect {
			s.Correct++
		}
	}
	s.Percentage = percent(s.Correct, s.Total)
	return s
}

// scoreFor scores only answers that belong to a question of ex.
func scoreFor(ex exam.Exam, answers []exam.Answer) ScoreSummary {
	valid := make([]exam.Answer, 0, len(answers))
	for _, a := range answers {
		if _, ok := ex.Question(a.QuestionID); ok {
			valid = append(valid, a)
		}
	}
	return ScoreOf(valid, len(ex.Questions))
}

func percent(n, of int) float64 {
	if of <= 0 {
		return 0
	}
	return round1(float64(n) / float64(of) * 100)
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }
