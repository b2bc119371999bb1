package exam

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

type memoryStore struct {
	mu       sync.RWMutex
	exams    map[string]Exam
	attempts map[string]Attempt
	byPair   map[string]string            // examID|participantKey -> attemptID
	answers  map[string]map[string]Answer // attemptID -> questionID -> answer
}

// NewInMemoryStore returns a Store kept in process memory. Used by tests and
// the offline demo mode.
func NewInMemoryStore() Store {
	return &memoryStore{
		exams:    map[string]Exam{},
		attempts: map[string]Attempt{},
		byPair:   map[string]string{},
		answers:  map[string]map[string]Answer{},
	}
}

func pairKey(examID, participantKey string) string { return examID + "|" + participantKey }

func cloneExam(e Exam) Exam {
	e.Questions = slices.Clone(e.Questions)
	for i := range e.Questions {
		e.Questions[i].Options = slices.Clone(e.Questions[i].Options)
	}
	return e
}

func (m *memoryStore) PutExam(_ context.Context, e Exam) error {
	if e.ID == "" {
		return newError(CodeValidation, "exam id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e = cloneExam(e)
	sortQuestions(e.Questions)
	if e.Status == "" {
		e.Status = ExamDraft
	}
	if prev, ok := m.exams[e.ID]; ok {
		if !sameQuestionSet(prev.Questions, e.Questions) && m.hasOpenAttemptsLocked(e.ID) {
			return newError(CodeConflict, "exam %s has attempts in progress; questions are locked", e.ID)
		}
		e.CreatedAt = prev.CreatedAt
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	m.exams[e.ID] = e
	return nil
}

func (m *memoryStore) hasOpenAttemptsLocked(examID string) bool {
	for _, a := range m.attempts {
		if a.ExamID == examID && !a.Status.Terminal() {
			return true
		}
	}
	return false
}

func (m *memoryStore) GetExam(_ context.Context, id string) (Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exams[id]
	if !ok {
		return Exam{}, newError(CodeNotFound, "exam %s not found", id)
	}
	return cloneExam(e), nil
}

func (m *memoryStore) ListExams(_ context.Context) ([]Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Exam, 0, len(m.exams))
	for _, e := range m.exams {
		out = append(out, cloneExam(e))
	}
	slices.SortFunc(out, func(a, b Exam) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

func (m *memoryStore) FindExamByAccessCode(_ context.Context, code string) (Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *Exam
	for _, id := range slices.Sorted(maps.Keys(m.exams)) {
		e := m.exams[id]
		if code == "" || e.AccessCode != code {
			continue
		}
		if e.Status == ExamActive {
			return cloneExam(e), nil
		}
		if found == nil {
			found = &e
		}
	}
	if found == nil {
		return Exam{}, newError(CodeNotFound, "no exam with that access code")
	}
	return cloneExam(*found), nil
}

func (m *memoryStore) CreateAttempt(_ context.Context, a Attempt) (Attempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[a.ExamID]; !ok {
		return Attempt{}, false, newError(CodeNotFound, "exam %s not found", a.ExamID)
	}
	pk := pairKey(a.ExamID, a.ParticipantKey)
	if id, ok := m.byPair[pk]; ok {
		return m.withAnswersLocked(m.attempts[id]), false, nil
	}
	a.Answers = nil
	m.attempts[a.ID] = a
	m.byPair[pk] = a.ID
	return m.withAnswersLocked(a), true, nil
}

func (m *memoryStore) withAnswersLocked(a Attempt) Attempt {
	rows := make([]Answer, 0, len(m.answers[a.ID]))
	for _, ans := range m.answers[a.ID] {
		rows = append(rows, ans)
	}
	a.Answers = answerCache(rows)
	if a.EndTime != nil {
		t := *a.EndTime
		a.EndTime = &t
	}
	return a
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, newError(CodeNotFound, "attempt %s not found", id)
	}
	return m.withAnswersLocked(a), nil
}

func (m *memoryStore) FindAttempt(_ context.Context, examID, participantKey string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPair[pairKey(examID, participantKey)]
	if !ok {
		return Attempt{}, newError(CodeNotFound, "no attempt for %s on exam %s", participantKey, examID)
	}
	return m.withAnswersLocked(m.attempts[id]), nil
}

func (m *memoryStore) ListAttempts(_ context.Context, f AttemptFilter) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Attempt, 0, len(m.attempts))
	for _, a := range m.attempts {
		if len(f.ExamIDs) > 0 && !slices.Contains(f.ExamIDs, a.ExamID) {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status) {
			continue
		}
		if f.ParticipantKey != "" && a.ParticipantKey != f.ParticipantKey {
			continue
		}
		out = append(out, m.withAnswersLocked(a))
	}
	slices.SortFunc(out, func(a, b Attempt) int {
		if c := b.StartTime.Compare(a.StartTime); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return paginate(out, f.Offset, f.Limit), nil
}

func paginate[T any](in []T, offset, limit int) []T {
	if offset > len(in) {
		return in[:0]
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

func (m *memoryStore) UpdateAttempt(_ context.Context, id string, from []AttemptStatus, u AttemptUpdate) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, newError(CodeNotFound, "attempt %s not found", id)
	}
	if !slices.Contains(from, a.Status) {
		return Attempt{}, newError(CodeConflict, "attempt %s is %s", id, a.Status)
	}
	applyUpdate(&a, u)
	m.attempts[id] = a
	return m.withAnswersLocked(a), nil
}

func applyUpdate(a *Attempt, u AttemptUpdate) {
	if u.Status != "" {
		a.Status = u.Status
	}
	if u.EndTime != nil {
		t := *u.EndTime
		a.EndTime = &t
	}
	if u.LastActivityAt != nil {
		a.LastActivityAt = *u.LastActivityAt
	}
	if u.CurrentQuestionIndex != nil {
		a.CurrentQuestionIndex = *u.CurrentQuestionIndex
	}
}

func (m *memoryStore) RecordAnswer(_ context.Context, ans Answer, at time.Time) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[ans.AttemptID]
	if !ok {
		return Attempt{}, newError(CodeNotFound, "attempt %s not found", ans.AttemptID)
	}
	if a.Status.Terminal() {
		return Attempt{}, newError(CodeConflict, "attempt %s is %s", a.ID, a.Status)
	}
	rows := m.answers[a.ID]
	if rows == nil {
		rows = map[string]Answer{}
		m.answers[a.ID] = rows
	}
	rows[ans.QuestionID] = ans
	a.Status = StatusInProgress
	a.LastActivityAt = at
	m.attempts[a.ID] = a
	return m.withAnswersLocked(a), nil
}

func (m *memoryStore) GetAnswer(_ context.Context, attemptID, questionID string) (Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ans, ok := m.answers[attemptID][questionID]
	if !ok {
		return Answer{}, newError(CodeNotFound, "no answer for question %s", questionID)
	}
	return ans, nil
}

func (m *memoryStore) ListAnswers(_ context.Context, attemptIDs ...string) ([]Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Answer
	for _, id := range attemptIDs {
		rows := m.answers[id]
		for _, qid := range slices.Sorted(maps.Keys(rows)) {
			out = append(out, rows[qid])
		}
	}
	return out, nil
}

func (m *memoryStore) DeleteAttempt(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return newError(CodeNotFound, "attempt %s not found", id)
	}
	m.deleteLocked(a)
	return nil
}

func (m *memoryStore) deleteLocked(a Attempt) {
	delete(m.attempts, a.ID)
	delete(m.answers, a.ID)
	if m.byPair[pairKey(a.ExamID, a.ParticipantKey)] == a.ID {
		delete(m.byPair, pairKey(a.ExamID, a.ParticipantKey))
	}
}

func (m *memoryStore) DeleteAttempts(_ context.Context, examID, participantKey string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.attempts {
		if a.ExamID == examID && a.ParticipantKey == participantKey {
			m.deleteLocked(a)
			n++
		}
	}
	return n, nil
}
