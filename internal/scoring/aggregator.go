package scoring

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

// Source is the read side of exam.Store the aggregator needs.
type Source interface {
	exam.Catalog
	GetAttempt(ctx context.Context, id string) (exam.Attempt, error)
	ListAttempts(ctx context.Context, f exam.AttemptFilter) ([]exam.Attempt, error)
	ListAnswers(ctx context.Context, attemptIDs ...string) ([]exam.Answer, error)
}

// Aggregator recomputes reports from attempts and answers on every call.
type Aggregator struct {
	src Source
}

func NewAggregator(src Source) *Aggregator { return &Aggregator{src: src} }

type Bucket struct {
	Label string `json:"label"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
	Count int    `json:"count"`
}

type DailyCount struct {
	Date  string `json:"date"` // YYYY-MM-DD, UTC
	Count int    `json:"count"`
}

type Statistics struct {
	Count                    int          `json:"count"`
	UniqueParticipants       int          `json:"unique_participants"`
	CompletedCount           int          `json:"completed_count"`
	AverageScore             float64      `json:"average_score"`
	HighestScore             float64      `json:"highest_score"`
	LowestScore              float64      `json:"lowest_score"`
	AverageCompletionMinutes float64      `json:"average_completion_minutes"`
	ScoreDistribution        []Bucket     `json:"score_distribution"`
	AttemptsOverTime         []DailyCount `json:"attempts_over_time"`
}

func newDistribution() []Bucket {
	return []Bucket{
		{Label: "0-19", Min: 0, Max: 19},
		{Label: "20-39", Min: 20, Max: 39},
		{Label: "40-59", Min: 40, Max: 59},
		{Label: "60-79", Min: 60, Max: 79},
		{Label: "80-100", Min: 80, Max: 100},
	}
}

// bucketOf maps a percentage onto the five 20-point buckets; 100 lands in
// the last one.
func bucketOf(p float64) int {
	i := int(p / 20)
	return max(0, min(i, 4))
}

// scored is an attempt with its answers and score resolved.
type scored struct {
	exam.Attempt
	Exam    exam.Exam
	Answers []exam.Answer
	Score   ScoreSummary
}

// load fetches the exams and their attempts concurrently, then the answers.
func (a *Aggregator) load(ctx context.Context, examIDs []string) ([]scored, error) {
	var exams map[string]exam.Exam
	var attempts []exam.Attempt

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		exams, err = a.exams(gctx, examIDs)
		return err
	})
	g.Go(func() error {
		var err error
		attempts, err = a.src.ListAttempts(gctx, exam.AttemptFilter{ExamIDs: examIDs})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ids := make([]string, len(attempts))
	for i, at := range attempts {
		ids[i] = at.ID
	}
	answers, err := a.src.ListAnswers(ctx, ids...)
	if err != nil {
		return nil, err
	}
	byAttempt := map[string][]exam.Answer{}
	for _, ans := range answers {
		byAttempt[ans.AttemptID] = append(byAttempt[ans.AttemptID], ans)
	}

	out := make([]scored, 0, len(attempts))
	for _, at := range attempts {
		ex, ok := exams[at.ExamID]
		if !ok {
			continue
		}
		rows := byAttempt[at.ID]
		out = append(out, scored{Attempt: at, Exam: ex, Answers: rows, Score: scoreFor(ex, rows)})
	}
	return out, nil
}

func (a *Aggregator) exams(ctx context.Context, ids []string) (map[string]exam.Exam, error) {
	out := map[string]exam.Exam{}
	if len(ids) == 0 {
		all, err := a.src.ListExams(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range all {
			out[e.ID] = e
		}
		return out, nil
	}
	for _, id := range ids {
		e, err := a.src.GetExam(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = e
	}
	return out, nil
}

// StatisticsFor aggregates the given exams, or every exam when none are
// named. Scores and completion figures only consider terminal attempts.
func (a *Aggregator) StatisticsFor(ctx context.Context, examIDs ...string) (Statistics, error) {
	rows, err := a.load(ctx, examIDs)
	if err != nil {
		return Statistics{}, err
	}
	st := Statistics{Count: len(rows), ScoreDistribution: newDistribution(), AttemptsOverTime: []DailyCount{}}
	participants := map[string]struct{}{}
	daily := map[string]int{}
	var scoreSum, minutesSum float64
	var timed int
	for _, r := range rows {
		participants[r.ParticipantKey] = struct{}{}
		daily[r.StartTime.UTC().Format(time.DateOnly)]++
		if !r.Status.Terminal() {
			continue
		}
		p := r.Score.Percentage
		if st.CompletedCount == 0 || p > st.HighestScore {
			st.HighestScore = p
		}
		if st.CompletedCount == 0 || p < st.LowestScore {
			st.LowestScore = p
		}
		st.CompletedCount++
		scoreSum += p
		st.ScoreDistribution[bucketOf(p)].Count++
		if r.EndTime != nil {
			minutesSum += r.EndTime.Sub(r.StartTime).Minutes()
			timed++
		}
	}
	st.UniqueParticipants = len(participants)
	if st.CompletedCount > 0 {
		st.AverageScore = round1(scoreSum / float64(st.CompletedCount))
	}
	if timed > 0 {
		st.AverageCompletionMinutes = round1(minutesSum / float64(timed))
	}
	for _, d := range slices.Sorted(maps.Keys(daily)) {
		st.AttemptsOverTime = append(st.AttemptsOverTime, DailyCount{Date: d, Count: daily[d]})
	}
	return st, nil
}

type ParticipantStat struct {
	Key       string  `json:"key"`
	Name      string  `json:"name"`
	Email     string  `json:"email,omitempty"`
	Attempts  int     `json:"attempts"`
	Completed int     `json:"completed"`
	Correct   int     `json:"correct"`
	Incorrect int     `json:"incorrect"`
	Average   float64 `json:"average"` // correct / answered, completed attempts only
}

// ParticipantStats groups attempts by participant key, ordered by name.
func (a *Aggregator) ParticipantStats(ctx context.Context, examIDs ...string) ([]ParticipantStat, error) {
	rows, err := a.load(ctx, examIDs)
	if err != nil {
		return nil, err
	}
	byKey := map[string]*ParticipantStat{}
	for _, r := range rows {
		ps, ok := byKey[r.ParticipantKey]
		if !ok {
			ps = &ParticipantStat{Key: r.ParticipantKey, Name: r.ParticipantName, Email: r.ParticipantEmail}
			byKey[r.ParticipantKey] = ps
		}
		ps.Attempts++
		if !r.Status.Terminal() {
			continue
		}
		ps.Completed++
		for _, ans := range r.Answers {
			if _, ok := r.Exam.Question(ans.QuestionID); !ok {
				continue
			}
			if ans.IsCorrect {
				ps.Correct++
			} else {
				ps.Incorrect++
			}
		}
	}
	out := make([]ParticipantStat, 0, len(byKey))
	for _, ps := range byKey {
		ps.Average = percent(ps.Correct, ps.Correct+ps.Incorrect)
		out = append(out, *ps)
	}
	slices.SortFunc(out, func(x, y ParticipantStat) int {
		if c := strings.Compare(strings.ToLower(x.Name), strings.ToLower(y.Name)); c != 0 {
			return c
		}
		return strings.Compare(x.Key, y.Key)
	})
	return out, nil
}

type QuestionStat struct {
	QuestionID    string         `json:"question_id"`
	Prompt        string         `json:"prompt"`
	Position      int            `json:"position"`
	CorrectAnswer string         `json:"correct_answer"`
	Answered      int            `json:"answered"`
	Correct       int            `json:"correct"`
	CorrectRate   float64        `json:"correct_rate"`
	Selections    map[string]int `json:"selections"`
}

// QuestionStats reports how each question of examID was answered across all
// attempts, in display order.
func (a *Aggregator) QuestionStats(ctx context.Context, examID string) ([]QuestionStat, error) {
	rows, err := a.load(ctx, []string{examID})
	if err != nil {
		return nil, err
	}
	ex, err := a.src.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	out := make([]QuestionStat, len(ex.Questions))
	index := map[string]int{}
	for i, q := range ex.Questions {
		out[i] = QuestionStat{QuestionID: q.ID, Prompt: q.Prompt, Position: q.Position, CorrectAnswer: q.Answer, Selections: map[string]int{}}
		index[q.ID] = i
	}
	for _, r := range rows {
		for _, ans := range r.Answers {
			i, ok := index[ans.QuestionID]
			if !ok {
				continue
			}
			out[i].Answered++
			out[i].Selections[ans.Selected]++
			if ans.IsCorrect {
				out[i].Correct++
			}
		}
	}
	for i := range out {
		out[i].CorrectRate = percent(out[i].Correct, out[i].Answered)
	}
	return out, nil
}

// AttemptResult is what a participant sees after finishing.
type AttemptResult struct {
	Attempt   exam.Attempt  `json:"attempt"`
	ExamTitle string        `json:"exam_title"`
	Score     ScoreSummary  `json:"score"`
	Answers   []exam.Answer `json:"answers"`
}

func (a *Aggregator) AttemptResult(ctx context.Context, attemptID string) (AttemptResult, error) {
	at, err := a.src.GetAttempt(ctx, attemptID)
	if err != nil {
		return AttemptResult{}, err
	}
	ex, err := a.src.GetExam(ctx, at.ExamID)
	if err != nil {
		return AttemptResult{}, err
	}
	answers, err := a.src.ListAnswers(ctx, attemptID)
	if err != nil {
		return AttemptResult{}, err
	}
	if answers == nil {
		answers = []exam.Answer{}
	}
	return AttemptResult{Attempt: at, ExamTitle: ex.Title, Score: scoreFor(ex, answers), Answers: answers}, nil
}
