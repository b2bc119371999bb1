package exam

import (
	"context"
	"time"
)

// Catalog is the read side of exam definitions. GetExam returns the full
// exam, answer keys included; use Exam.Public before handing it to a
// participant.
type Catalog interface {
	GetExam(ctx context.Context, id string) (Exam, error)
	ListExams(ctx context.Context) ([]Exam, error)
	// FindExamByAccessCode returns the exam entered with code, preferring an
	// active one when several share it.
	FindExamByAccessCode(ctx context.Context, code string) (Exam, error)
}

// Store persists exams, attempts and answers. Every method returns an *Error
// with CodeNotFound for unknown ids.
type Store interface {
	Catalog

	// PutExam inserts or replaces an exam. Changing the question set of an
	// exam that still has open attempts fails with CodeConflict.
	PutExam(ctx context.Context, e Exam) error

	// CreateAttempt stores a unless an attempt already exists for
	// (a.ExamID, a.ParticipantKey); in that case the existing attempt is
	// returned with created=false.
	CreateAttempt(ctx context.Context, a Attempt) (stored Attempt, created bool, err error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	FindAttempt(ctx context.Context, examID, participantKey string) (Attempt, error)
	ListAttempts(ctx context.Context, f AttemptFilter) ([]Attempt, error)

	// UpdateAttempt applies u only while the attempt is in one of the from
	// statuses; otherwise it fails with CodeConflict.
	UpdateAttempt(ctx context.Context, id string, from []AttemptStatus, u AttemptUpdate) (Attempt, error)

	// RecordAnswer atomically upserts ans keyed by (attempt, question) and
	// moves the open attempt to IN_PROGRESS with lastActivityAt=at.
	// A terminal attempt fails with CodeConflict and nothing is written.
	RecordAnswer(ctx context.Context, ans Answer, at time.Time) (Attempt, error)
	GetAnswer(ctx context.Context, attemptID, questionID string) (Answer, error)
	ListAnswers(ctx context.Context, attemptIDs ...string) ([]Answer, error)

	DeleteAttempt(ctx context.Context, id string) error
	// DeleteAttempts removes every attempt of the pair with its answers and
	// returns how many attempts were removed.
	DeleteAttempts(ctx context.Context, examID, participantKey string) (int, error)
}

// EventSink receives lifecycle events. Failures are logged, never returned
// to the participant.
type EventSink interface {
	Publish(ctx context.Context, typ, key string, data any) error
}
