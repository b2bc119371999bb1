package exam

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mind-engage/mindengage-exams/internal/grading"
)

// Event types published to the EventSink.
const (
	EventAttemptStarted   = "AttemptStarted"
	EventAttemptResumed   = "AttemptResumed"
	EventAnswerRecorded   = "AnswerRecorded"
	EventAttemptSubmitted = "AttemptSubmitted"
	EventAttemptTimedOut  = "AttemptTimedOut"
	EventAttemptGraded    = "AttemptGraded"
	EventAttemptDeleted   = "AttemptDeleted"
)

// Manager drives attempts through their state machine:
//
//	STARTED -> IN_PROGRESS -> SUBMITTED -> GRADED
//	                       \-> TIMED_OUT
//
// Terminal attempts never change again; an administrator can only delete
// them so the participant may start over.
type Manager struct {
	store  Store
	now    func() time.Time
	newID  func() string
	events EventSink
	tracer trace.Tracer
}

type Option func(*Manager)

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithEvents publishes lifecycle transitions to sink.
func WithEvents(sink EventSink) Option { return func(m *Manager) { m.events = sink } }

// WithIDGenerator overrides the attempt id source.
func WithIDGenerator(f func() string) Option { return func(m *Manager) { m.newID = f } }

func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
		tracer: otel.Tracer("github.com/mind-engage/mindengage-exams/internal/exam"),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Session is what a participant sees after entering an exam.
type Session struct {
	Exam    Exam                      `json:"exam"` // answer keys stripped
	Attempt Attempt                   `json:"attempt"`
	Status  StartStatus               `json:"status"`
	Checks  map[string]grading.Result `json:"answer_check_results"`
}

func (m *Manager) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "exam."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (m *Manager) publish(ctx context.Context, typ, key string, data any) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ctx, typ, key, data); err != nil {
		log.Printf("exam: publish %s for %s: %v", typ, key, err)
	}
}

// StartOrResume returns the participant's attempt on examID, creating it on
// the first legitimate request. A finished attempt is returned unmodified
// with StartCompleted; it can never be re-entered through this path.
func (m *Manager) StartOrResume(ctx context.Context, examID, accessCode string, p Participant) (a Attempt, st StartStatus, err error) {
	ctx, span := m.span(ctx, "StartOrResume", attribute.String("exam.id", examID))
	defer func() { endSpan(span, err) }()

	if err := p.validate(); err != nil {
		return Attempt{}, "", err
	}
	ex, err := m.store.GetExam(ctx, examID)
	if err != nil {
		return Attempt{}, "", err
	}
	if strings.TrimSpace(accessCode) != ex.AccessCode {
		return Attempt{}, "", newError(CodeAccessDenied, "invalid access code")
	}

	now := m.now()
	key := p.Key()
	existing, err := m.store.FindAttempt(ctx, examID, key)
	switch {
	case err == nil && existing.Status.Terminal():
		// Readable after the exam is closed.
		return existing, StartCompleted, nil
	case err == nil:
		if ex.Status != ExamActive {
			return Attempt{}, "", newError(CodeAccessDenied, "exam %s is not open", examID)
		}
		a, st, err = m.resume(ctx, ex, existing, now)
		return a, st, err
	case !errors.Is(err, ErrNotFound):
		return Attempt{}, "", err
	}
	if ex.Status != ExamActive {
		return Attempt{}, "", newError(CodeAccessDenied, "exam %s is not open", examID)
	}

	fresh := Attempt{
		ID:               m.newID(),
		ExamID:           examID,
		ParticipantKey:   key,
		ParticipantName:  strings.Join(strings.Fields(p.Name), " "),
		ParticipantEmail: strings.TrimSpace(p.Email),
		Status:           StatusStarted,
		StartTime:        now,
		LastActivityAt:   now,
		CreatedAt:        now,
	}
	stored, created, err := m.store.CreateAttempt(ctx, fresh)
	if err != nil {
		return Attempt{}, "", err
	}
	if !created {
		// Lost a race with a concurrent start for the same participant.
		a, st, err = m.resume(ctx, ex, stored, now)
		return a, st, err
	}
	span.SetAttributes(attribute.String("attempt.id", stored.ID))
	m.publish(ctx, EventAttemptStarted, stored.ID, map[string]any{"exam_id": examID, "participant": key})
	return stored, StartNew, nil
}

// Lookup resolves an access code to the exam a participant is about to
// enter. Only active exams are revealed.
func (m *Manager) Lookup(ctx context.Context, accessCode string) (s ExamSummary, err error) {
	ctx, span := m.span(ctx, "Lookup")
	defer func() { endSpan(span, err) }()

	code := strings.TrimSpace(accessCode)
	if code == "" {
		return ExamSummary{}, newError(CodeValidation, "access code required")
	}
	ex, err := m.store.FindExamByAccessCode(ctx, code)
	if err != nil {
		return ExamSummary{}, err
	}
	if ex.Status != ExamActive {
		return ExamSummary{}, newError(CodeAccessDenied, "exam %s is not open", ex.ID)
	}
	span.SetAttributes(attribute.String("exam.id", ex.ID))
	return ex.Summary(), nil
}

func (m *Manager) resume(ctx context.Context, ex Exam, a Attempt, now time.Time) (Attempt, StartStatus, error) {
	if a.Status.Terminal() {
		return a, StartCompleted, nil
	}
	if IsExpired(a.StartTime, ex.DurationMinutes, now) {
		closed, err := m.expire(ctx, a.ID, now)
		if err != nil {
			return Attempt{}, "", err
		}
		return closed, StartCompleted, nil
	}
	updated, err := m.store.UpdateAttempt(ctx, a.ID, openStatuses, AttemptUpdate{
		Status:         StatusInProgress,
		LastActivityAt: &now,
	})
	if errors.Is(err, ErrConflict) {
		// Closed concurrently (sweeper or another tab).
		cur, gerr := m.store.GetAttempt(ctx, a.ID)
		if gerr != nil {
			return Attempt{}, "", gerr
		}
		return cur, StartCompleted, nil
	}
	if err != nil {
		return Attempt{}, "", err
	}
	m.publish(ctx, EventAttemptResumed, a.ID, nil)
	return updated, StartResumed, nil
}

// expire flips an open attempt to TIMED_OUT. If it was closed in the
// meantime the current record is returned instead.
func (m *Manager) expire(ctx context.Context, attemptID string, now time.Time) (Attempt, error) {
	a, err := m.store.UpdateAttempt(ctx, attemptID, openStatuses, AttemptUpdate{
		Status:  StatusTimedOut,
		EndTime: &now,
	})
	if errors.Is(err, ErrConflict) {
		return m.store.GetAttempt(ctx, attemptID)
	}
	if err != nil {
		return Attempt{}, err
	}
	m.publish(ctx, EventAttemptTimedOut, attemptID, nil)
	return a, nil
}

// Enter is StartOrResume plus everything a client needs to render the exam:
// the participant-safe exam and the feedback for answers already given.
func (m *Manager) Enter(ctx context.Context, examID, accessCode string, p Participant) (Session, error) {
	a, st, err := m.StartOrResume(ctx, examID, accessCode, p)
	if err != nil {
		return Session{}, err
	}
	ex, err := m.store.GetExam(ctx, examID)
	if err != nil {
		return Session{}, err
	}
	checks, err := m.checks(ctx, ex, a.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Exam: ex.Public(), Attempt: a, Status: st, Checks: checks}, nil
}

func (m *Manager) checks(ctx context.Context, ex Exam, attemptID string) (map[string]grading.Result, error) {
	answers, err := m.store.ListAnswers(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]grading.Result, len(answers))
	for _, ans := range answers {
		q, ok := ex.Question(ans.QuestionID)
		if !ok {
			continue
		}
		out[ans.QuestionID] = grading.Result{IsCorrect: ans.IsCorrect, CorrectAnswer: q.Answer, Explanation: q.Explanation}
	}
	return out, nil
}

// SubmitAnswer records the participant's choice for one question and returns
// immediate feedback. Re-answering before the attempt is finished overwrites
// the earlier choice.
//
// On a terminal attempt nothing is written: the previously recorded result
// for the question (zero if there is none) is returned together with a
// CodeConflict error. If the exam time ran out the attempt is closed as
// TIMED_OUT and CodeExpired is returned.
func (m *Manager) SubmitAnswer(ctx context.Context, attemptID, questionID, selected string, timeSpentSeconds int) (res grading.Result, err error) {
	ctx, span := m.span(ctx, "SubmitAnswer",
		attribute.String("attempt.id", attemptID),
		attribute.String("question.id", questionID))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(selected) == "" {
		return grading.Result{}, newError(CodeValidation, "selected answer required")
	}
	if timeSpentSeconds <= 0 {
		return grading.Result{}, newError(CodeValidation, "time spent must be positive")
	}
	a, err := m.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return grading.Result{}, err
	}
	ex, err := m.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return grading.Result{}, err
	}
	if a.Status.Terminal() {
		return m.previousResult(ctx, ex, attemptID, questionID, a.Status)
	}

	now := m.now()
	if IsExpired(a.StartTime, ex.DurationMinutes, now) {
		if _, err := m.expire(ctx, attemptID, now); err != nil {
			return grading.Result{}, err
		}
		return grading.Result{}, newError(CodeExpired, "exam time has expired")
	}

	q, ok := ex.Question(questionID)
	if !ok {
		return grading.Result{}, newError(CodeNotFound, "question %s not in exam %s", questionID, ex.ID)
	}
	res = grading.Check(q.Answer, q.Explanation, selected)
	_, err = m.store.RecordAnswer(ctx, Answer{
		AttemptID:        attemptID,
		QuestionID:       questionID,
		Selected:         grading.NormalizeLabel(selected),
		IsCorrect:        res.IsCorrect,
		TimeSpentSeconds: timeSpentSeconds,
		AnsweredAt:       now,
	}, now)
	if errors.Is(err, ErrConflict) {
		// Closed between the status check and the write.
		cur, gerr := m.store.GetAttempt(ctx, attemptID)
		if gerr != nil {
			return grading.Result{}, gerr
		}
		return m.previousResult(ctx, ex, attemptID, questionID, cur.Status)
	}
	if err != nil {
		return grading.Result{}, err
	}
	m.publish(ctx, EventAnswerRecorded, attemptID, map[string]any{"question_id": questionID, "correct": res.IsCorrect})
	return res, nil
}

func (m *Manager) previousResult(ctx context.Context, ex Exam, attemptID, questionID string, st AttemptStatus) (grading.Result, error) {
	conflict := newError(CodeConflict, "attempt %s is already %s", attemptID, st)
	ans, err := m.store.GetAnswer(ctx, attemptID, questionID)
	if errors.Is(err, ErrNotFound) {
		return grading.Result{}, conflict
	}
	if err != nil {
		return grading.Result{}, err
	}
	q, _ := ex.Question(questionID)
	return grading.Result{IsCorrect: ans.IsCorrect, CorrectAnswer: q.Answer, Explanation: q.Explanation}, conflict
}

// UpdateProgress stores the participant's position in the exam.
func (m *Manager) UpdateProgress(ctx context.Context, attemptID string, index int) (a Attempt, err error) {
	ctx, span := m.span(ctx, "UpdateProgress", attribute.String("attempt.id", attemptID))
	defer func() { endSpan(span, err) }()

	a, err = m.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status.Terminal() {
		return a, newError(CodeConflict, "attempt %s is already %s", attemptID, a.Status)
	}
	ex, err := m.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return Attempt{}, err
	}
	now := m.now()
	if IsExpired(a.StartTime, ex.DurationMinutes, now) {
		if _, err := m.expire(ctx, attemptID, now); err != nil {
			return Attempt{}, err
		}
		return Attempt{}, newError(CodeExpired, "exam time has expired")
	}
	if index < 0 || index >= len(ex.Questions) {
		return Attempt{}, newError(CodeValidation, "question index %d out of range", index)
	}
	return m.store.UpdateAttempt(ctx, attemptID, openStatuses, AttemptUpdate{
		Status:               StatusInProgress,
		LastActivityAt:       &now,
		CurrentQuestionIndex: &index,
	})
}

// Finish closes the attempt. Finishing an already-terminal attempt is a
// no-op returning the stored record. A user submission that arrives after
// the time ran out is recorded as TIMED_OUT.
func (m *Manager) Finish(ctx context.Context, attemptID string, reason FinishReason) (a Attempt, err error) {
	ctx, span := m.span(ctx, "Finish", attribute.String("attempt.id", attemptID))
	defer func() { endSpan(span, err) }()

	a, err = m.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status.Terminal() {
		return a, nil
	}
	ex, err := m.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return Attempt{}, err
	}
	now := m.now()
	if reason == TimedOut || IsExpired(a.StartTime, ex.DurationMinutes, now) {
		return m.expire(ctx, attemptID, now)
	}
	closed, err := m.store.UpdateAttempt(ctx, attemptID, openStatuses, AttemptUpdate{
		Status:  StatusSubmitted,
		EndTime: &now,
	})
	if errors.Is(err, ErrConflict) {
		return m.store.GetAttempt(ctx, attemptID)
	}
	if err != nil {
		return Attempt{}, err
	}
	m.publish(ctx, EventAttemptSubmitted, attemptID, nil)
	return closed, nil
}

// Grade marks a submitted attempt as reviewed by an administrator.
func (m *Manager) Grade(ctx context.Context, attemptID string) (a Attempt, err error) {
	ctx, span := m.span(ctx, "Grade", attribute.String("attempt.id", attemptID))
	defer func() { endSpan(span, err) }()

	a, err = m.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	switch a.Status {
	case StatusGraded:
		return a, nil
	case StatusSubmitted:
	default:
		return a, newError(CodeConflict, "only submitted attempts can be graded; attempt is %s", a.Status)
	}
	a, err = m.store.UpdateAttempt(ctx, attemptID, []AttemptStatus{StatusSubmitted}, AttemptUpdate{Status: StatusGraded})
	if err != nil {
		return Attempt{}, err
	}
	m.publish(ctx, EventAttemptGraded, attemptID, nil)
	return a, nil
}

// Restart deletes the participant's attempts on examID together with their
// answers so the participant can start afresh.
func (m *Manager) Restart(ctx context.Context, examID string, p Participant) (n int, err error) {
	ctx, span := m.span(ctx, "Restart", attribute.String("exam.id", examID))
	defer func() { endSpan(span, err) }()

	if err := p.validate(); err != nil && strings.TrimSpace(p.Email) == "" {
		return 0, err
	}
	if _, err := m.store.GetExam(ctx, examID); err != nil {
		return 0, err
	}
	key := p.Key()
	doomed, err := m.store.ListAttempts(ctx, AttemptFilter{ExamIDs: []string{examID}, ParticipantKey: key})
	if err != nil {
		return 0, err
	}
	n, err = m.store.DeleteAttempts(ctx, examID, key)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, newError(CodeNotFound, "no attempts for %s on exam %s", key, examID)
	}
	for _, a := range doomed {
		m.publish(ctx, EventAttemptDeleted, a.ID, map[string]any{"exam_id": examID, "participant": key, "reason": "restart"})
	}
	return n, nil
}

// DeleteAttempt removes a single attempt and its answers.
func (m *Manager) DeleteAttempt(ctx context.Context, attemptID string) (err error) {
	ctx, span := m.span(ctx, "DeleteAttempt", attribute.String("attempt.id", attemptID))
	defer func() { endSpan(span, err) }()

	if err := m.store.DeleteAttempt(ctx, attemptID); err != nil {
		return err
	}
	m.publish(ctx, EventAttemptDeleted, attemptID, nil)
	return nil
}

// ExpireStale times out every open attempt whose duration has elapsed and
// returns how many were closed.
func (m *Manager) ExpireStale(ctx context.Context) (n int, err error) {
	ctx, span := m.span(ctx, "ExpireStale")
	defer func() { endSpan(span, err) }()

	open, err := m.store.ListAttempts(ctx, AttemptFilter{Statuses: openStatuses})
	if err != nil {
		return 0, err
	}
	durations := map[string]int{}
	now := m.now()
	for _, a := range open {
		d, ok := durations[a.ExamID]
		if !ok {
			ex, err := m.store.GetExam(ctx, a.ExamID)
			if err != nil {
				return n, err
			}
			d = ex.DurationMinutes
			durations[a.ExamID] = d
		}
		if !IsExpired(a.StartTime, d, now) {
			continue
		}
		closed, err := m.expire(ctx, a.ID, now)
		if err != nil {
			return n, err
		}
		if closed.Status == StatusTimedOut {
			n++
		}
	}
	span.SetAttributes(attribute.Int("attempts.expired", n))
	return n, nil
}
