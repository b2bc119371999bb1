package exam

import (
	"slices"
	"strings"
	"time"
)

type ExamStatus string

const (
	ExamDraft    ExamStatus = "draft"
	ExamActive   ExamStatus = "active"
	ExamArchived ExamStatus = "archived"
)

type Question struct {
	ID          string   `json:"id"`
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`                  // labelled A, B, C... by order
	Answer      string   `json:"correct_answer,omitempty"` // canonical option label, e.g. "B"
	Explanation string   `json:"explanation,omitempty"`
	Position    int      `json:"position"`
}

type Exam struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	AccessCode      string     `json:"access_code,omitempty"`
	Status          ExamStatus `json:"status"`
	Questions       []Question `json:"questions"`

	CreatedAt int64 `json:"created_at,omitempty"`
}

// ExamSummary is what a participant sees before starting: enough to confirm
// they typed the right code.
type ExamSummary struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
	QuestionCount   int    `json:"question_count"`
}

func (e Exam) Summary() ExamSummary {
	return ExamSummary{
		ID:              e.ID,
		Title:           e.Title,
		Description:     e.Description,
		DurationMinutes: e.DurationMinutes,
		QuestionCount:   len(e.Questions),
	}
}

// Public returns a participant-safe copy: no answer keys, explanations or
// access code.
func (e Exam) Public() Exam {
	out := e
	out.AccessCode = ""
	out.Questions = make([]Question, len(e.Questions))
	for i, q := range e.Questions {
		q.Answer = ""
		q.Explanation = ""
		q.Options = slices.Clone(q.Options)
		out.Questions[i] = q
	}
	return out
}

// Question looks up a question by id.
func (e Exam) Question(id string) (Question, bool) {
	for _, q := range e.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// sortQuestions orders questions by position, keeping input order for ties.
func sortQuestions(qs []Question) {
	slices.SortStableFunc(qs, func(a, b Question) int { return a.Position - b.Position })
}

// sameQuestionSet reports whether two question lists would grade the same way.
func sameQuestionSet(a, b []Question) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = slices.Clone(a), slices.Clone(b)
	sortQuestions(a)
	sortQuestions(b)
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Position != b[i].Position ||
			!strings.EqualFold(strings.TrimSpace(a[i].Answer), strings.TrimSpace(b[i].Answer)) ||
			!slices.Equal(a[i].Options, b[i].Options) {
			return false
		}
	}
	return true
}

type AttemptStatus string

const (
	StatusStarted    AttemptStatus = "STARTED"
	StatusInProgress AttemptStatus = "IN_PROGRESS"
	StatusSubmitted  AttemptStatus = "SUBMITTED"
	StatusTimedOut   AttemptStatus = "TIMED_OUT"
	StatusGraded     AttemptStatus = "GRADED"
)

// Terminal reports whether no further answers may be recorded.
func (s AttemptStatus) Terminal() bool {
	switch s {
	case StatusSubmitted, StatusTimedOut, StatusGraded:
		return true
	}
	return false
}

var (
	openStatuses     = []AttemptStatus{StatusStarted, StatusInProgress}
	terminalStatuses = []AttemptStatus{StatusSubmitted, StatusTimedOut, StatusGraded}
)

// OpenStatuses lists the non-terminal statuses.
func OpenStatuses() []AttemptStatus { return slices.Clone(openStatuses) }

// TerminalStatuses lists the statuses from which no answers are accepted.
func TerminalStatuses() []AttemptStatus { return slices.Clone(terminalStatuses) }

// StartStatus is the outcome of a start-or-resume request.
type StartStatus string

const (
	StartNew       StartStatus = "NEW"
	StartResumed   StartStatus = "RESUMED"
	StartCompleted StartStatus = "COMPLETED"
)

// FinishReason says why an attempt is being closed.
type FinishReason int

const (
	UserSubmitted FinishReason = iota
	TimedOut
)

type Attempt struct {
	ID                   string            `json:"id"`
	ExamID               string            `json:"exam_id"`
	ParticipantKey       string            `json:"participant_key"`
	ParticipantName      string            `json:"participant_name"`
	ParticipantEmail     string            `json:"participant_email,omitempty"`
	Status               AttemptStatus     `json:"status"`
	StartTime            time.Time         `json:"start_time"`
	EndTime              *time.Time        `json:"end_time,omitempty"`
	LastActivityAt       time.Time         `json:"last_activity_at"`
	CurrentQuestionIndex int               `json:"current_question_index"`
	Answers              map[string]string `json:"answers"` // questionID -> label, rebuilt from answer rows
	CreatedAt            time.Time         `json:"created_at"`
}

// Answer is one recorded response, unique per (attempt, question).
type Answer struct {
	AttemptID        string    `json:"attempt_id"`
	QuestionID       string    `json:"question_id"`
	Selected         string    `json:"selected_answer"`
	IsCorrect        bool      `json:"is_correct"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	AnsweredAt       time.Time `json:"answered_at"`
}

// answerCache projects answer rows onto the attempt's questionID -> label map.
func answerCache(answers []Answer) map[string]string {
	m := make(map[string]string, len(answers))
	for _, a := range answers {
		m[a.QuestionID] = a.Selected
	}
	return m
}

// Participant is the caller-supplied identity of the person taking an exam.
type Participant struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Key is the stable identifier attempts are grouped by: the lowercased email
// when present, the trimmed name otherwise.
func (p Participant) Key() string {
	if e := strings.ToLower(strings.TrimSpace(p.Email)); e != "" {
		return "email:" + e
	}
	return "name:" + strings.Join(strings.Fields(p.Name), " ")
}

func (p Participant) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return newError(CodeValidation, "participant name required")
	}
	return nil
}

// AttemptFilter narrows ListAttempts. Zero values mean "any".
type AttemptFilter struct {
	ExamIDs        []string
	Statuses       []AttemptStatus
	ParticipantKey string
	Limit          int
	Offset         int
}

// AttemptUpdate is applied by Store.UpdateAttempt. Nil pointers leave the
// column unchanged.
type AttemptUpdate struct {
	Status               AttemptStatus
	EndTime              *time.Time
	LastActivityAt       *time.Time
	CurrentQuestionIndex *int
}
