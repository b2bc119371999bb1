package exam_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/exam"
)

func openSQLite(t *testing.T) exam.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := db.Open(context.Background(), db.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return exam.NewSQLStore(conn)
}

var stores = map[string]func(t *testing.T) exam.Store{
	"memory": func(*testing.T) exam.Store { return exam.NewInMemoryStore() },
	"sqlite": openSQLite,
}

func forEachStore(t *testing.T, fn func(t *testing.T, s exam.Store)) {
	for name, open := range stores {
		t.Run(name, func(t *testing.T) { fn(t, open(t)) })
	}
}

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newAttempt(id, examID, key string, start time.Time) exam.Attempt {
	return exam.Attempt{
		ID: id, ExamID: examID, ParticipantKey: key, ParticipantName: strings.TrimPrefix(key, "name:"),
		Status: exam.StatusStarted, StartTime: start, LastActivityAt: start, CreatedAt: start,
	}
}

func TestStoreExamRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s exam.Store) {
		ctx := context.Background()
		e := sampleExam()
		e.Questions[0], e.Questions[2] = e.Questions[2], e.Questions[0]
		require.NoError(t, s.PutExam(ctx, e))

		got, err := s.GetExam(ctx, "algebra-1")
		require.NoError(t, err)
		assert.Equal(t, "Algebra I", got.Title)
		assert.Equal(t, 30, got.DurationMinutes)
		assert.Equal(t, "OPEN123", got.AccessCode)
		assert.Equal(t, exam.ExamActive, got.Status)
		require.Len(t, got.Questions, 3)
		assert.Equal(t, []string{"q1", "q2", "q3"}, []string{got.Questions[0].ID, got.Questions[1].ID, got.Questions[2].ID}, "ordered by position")
		assert.Equal(t, []string{"3", "4", "5"}, got.Questions[0].Options)
		assert.Equal(t, "B", got.Questions[0].Answer)
		assert.Equal(t, "2+2=4", got.Questions[0].Explanation)

		_, err = s.GetExam(ctx, "missing")
		assert.ErrorIs(t, err, exam.ErrNotFound)

		other := sampleExam()
		other.ID = "zz"
		other.Status = ""
		require.NoError(t, s.PutExam(ctx, other))
		list, err := s.ListExams(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "algebra-1", list[0].ID)
		assert.Equal(t, exam.ExamDraft, list[1].Status)
		assert.Len(t, list[1].Questions, 3)
	})
}

func TestStoreFindExamByAccessCode(t *testing.T) {
	forEachStore(t, func(t *testing.T, s exam.Store) {
		ctx := context.Background()
		archived := sampleExam()
		archived.ID = "aaa-old"
		archived.Status = exam.ExamArchived
		require.NoError(t, s.PutExam(ctx, archived))
		require.NoError(t, s.PutExam(ctx, sampleExam()))

		got, err := s.FindExamByAccessCode(ctx, "OPEN123")
		require.NoError(t, err)
		assert.Equal(t, "algebra-1", got.ID, "active exam wins over an archived one with the same code")
		assert.Len(t, got.Questions, 3)

		_, err = s.FindExamByAccessCode(ctx, "open123")
		assert.ErrorIs(t, err, exam.ErrNotFound)
		_, err = s.FindExamByAccessCode(ctx, "")
		assert.ErrorIs(t, err, exam.ErrNotFound)

		closed := sampleExam()
		closed.Status = exam.ExamArchived
		require.NoError(t, s.PutExam(ctx, closed))
		got, err = s.FindExamByAccessCode(ctx, "OPEN123")
		require.NoError(t, err)
		assert.Equal(t, "aaa-old", got.ID, "lowest id when none is active")
	})
}

func TestStoreCreateAttemptIsUniquePerParticipant(t *testing.T) {
	forEachStore(t, func(t *testing.T, s exam.Store) {
		ctx := context.Background()
		require.NoError(t, s.PutExam(ctx, sampleExam()))

		a, created, err := s.CreateAttempt(ctx, newAttempt("a1", "algebra-1", "name:ann", t0))
		require.NoError(t, err)
		assert.True(t, created)
		assert.True(t, t0.Equal(a.StartTime))
		assert.Nil(t, a.EndTime)

		dup, created, err := s.CreateAttempt(ctx, newAttempt("a2", "algebra-1", "name:ann", t0.Add(time.Minute)))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "a1", dup.ID)

		_, _, err = s.CreateAttempt(ctx, newAttempt("a3", "missing", "name:ann", t0))
		assert.ErrorIs(t, err, exam.ErrNotFound)

		found, err := s.FindAttempt(ctx, "algebra-1", "name:ann")
		require.NoError(t, err)
		assert.Equal(t, "a1", found.ID)
		_, err = s.FindAttempt(ctx, "algebra-1", "name:bob")
		assert.ErrorIs(t, err, exam.ErrNotFound)
	})
}

func TestStoreConcurrentCreate(t *testing.T) {
	forEachStore(t, func(t *testing.T, s exam.Store) {
		ctx := context.Background()
		require.NoError(t, s.PutExam(ctx, sampleExam()))

		var wg sync.WaitGroup
		var mu sync.Mutex
		createdCount := 0
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, created, err := s.CreateAttempt(ctx, newAttempt(fmt.Sprintf("a%d", i), "algebra-1", "name:ann", t0))
				if err == nil && created {
					mu.Lock()
					createdCount++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, createdCount)
	})
}

func TestStoreUpdateAttemptGuardsStatus(t *testing.T) {
	forEachStore(t, func(t *testing.T, s exam.Store) {
		ctx := context.Background()
		require.NoError(t, s.PutExam(ctx, sampleExam()))
		_, _, err := s.CreateAttempt(ctx, newAttempt("a1", "algebra-1", "name:ann", t0))
		require.NoError(t, err)

		end := t0.Add(10 * time.Minute)
		idx := 2
		got, err := s.UpdateAttempt(ctx, "a1", exam.OpenStatuses(), exam.AttemptUpdate{
			Status: exam.StatusSubmitted, EndTime: &end, CurrentQuestionIndex: &idx,
		})
		require.NoError(t, err)
		assert.Equal(t, exam.StatusSubmitted, got.Status)
		require.NotNil(t, got.EndTime)
		assert.True(t, end.Equal(*got.EndTime))
		assert.Equal(t, 2, got.CurrentQuestionIndex)

		_, err = s.UpdateAttempt(ctx, "a1", exam.OpenStatuses(), exam.AttemptUpdate{Status: exam.StatusTimedOut})
		assert.ErrorIs(t, err, exam.ErrConflict)
		_, err = s.UpdateAttempt(ctx, "nope", exam.OpenStatuses(), exam.AttemptUpdate{Status: exam.StatusTimedOut})
		assert.ErrorIs(t, err, exam.ErrNotFound)
	})
}

func TestStoreRecordAnswerUpserts(t *testing.T) {
	forEachStore(t, func(t *testing.T, s exam.Store) {
		ctx := context.Background()
		require.NoError(t, s.PutExam(ctx, sampleExam()))
		_, _, err := s.CreateAttempt(ctx, newAttempt("a1", "algebra-1", "name:ann", t0))
		require.NoError(t, err)

		at := t0.Add(time.Minute)
		a, err := s.RecordAnswer(ctx, exam.Answer{AttemptID: "a1", QuestionID: "q1", Selected: "A", TimeSpentSeconds: 4, AnsweredAt: at}, at)
		require.NoError(t, err)
		assert.Equal(t, exam.StatusInProgress, a.Status)
		assert.True(t, at.Equal(a.LastActivityAt))

		at2 := at.Add(time.Minute)
		a, err = s.RecordAnswer(ctx, exam.Answer{AttemptID: "a1", QuestionID: "q1", Selected: "B", IsCorrect: true, TimeSpentSeconds: 9, AnsweredAt: at2}, at2)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"q1": "B"}, a.Answers)

		_, err = s.RecordAnswer(ctx, exam.Answer{AttemptID: "a1", QuestionID: "q2", Selected: "A", IsCorrect: true, AnsweredAt: at2}, at2)
		require.NoError(t, err)

		answers, err := s.ListAnswers(ctx, "a1")
		require.NoError(t, err)
		require.Len(t, answers, 2)
		assert.Equal(t, "q1", answers[0].QuestionID)
		assert.True(t, answers[0].IsCorrect)
		assert.Equal(t, 9, answers[0].TimeSpentSeconds)
		assert.True(t, at2.Equal(answers[0].AnsweredAt))

		one, err := s.GetAnswer(ctx, "a1", "q2")
		require.NoError(t, err)
		assert.Equal(t, "A", one.Selected)
		_, err = s.GetAnswer(ctx, "a1", "q3")
		assert.ErrorIs(t, err, exam.ErrNotFound)

		_, err = s.UpdateAttempt(ctx, "a1", exam.OpenStatuses(), exam.AttemptUpdate{Status: exam.StatusSubmitted, EndTime: &at2})
		require.NoError(t, err)
		_, err = s.RecordAnswer(ctx, exam.Answer{AttemptID: "a1", QuestionID: "q3", Selected: "A", AnsweredAt: at2}, at2)
		assert.ErrorIs(t, err, exam.ErrConflict)
		answers, err = s.ListAnswers(ctx, "a1")
		require.NoError(t, err)
		assert.Len(t, answers, 2, "terminal attempts accept no answers")

		_, err = s.RecordAnswer(ctx, exam.Answer{AttemptID: "nope", QuestionID: "q1", Selected: "A", AnsweredAt: at2}, at2)
		assert.ErrorIs(t, err, exam.ErrNotFound)
	})
}

func TestStoreListAttempts(t *testing.T) {
	forEachStore(t, func(t *testing.T, s exam.Store) {
		ctx := context.Background()
		require.NoError(t, s.PutExam(ctx, sampleExam()))
		other := sampleExam()
		other.ID = "geometry"
		require.NoError(t, s.PutExam(ctx, other))

		for i, key := range []string{"name:a", "name:b", "name:c"} {
			_, _, err := s.CreateAttempt(ctx, newAttempt(fmt.Sprintf("alg-%d", i), "algebra-1", key, t0.Add(time.Duration(i)*time.Hour)))
			require.NoError(t, err)
		}
		_, _, err := s.CreateAttempt(ctx, newAttempt("geo-0", "geometry", "name:a", t0))
		require.NoError(t, err)
		_, err = s.UpdateAttempt(ctx, "alg-1", exam.OpenStatuses(), exam.AttemptUpdate{Status: exam.StatusSubmitted})
		require.NoError(t, err)

		all, err := s.ListAttempts(ctx, exam.AttemptFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 4)

		alg, err := s.ListAttempts(ctx, exam.AttemptFilter{ExamIDs: []string{"algebra-1"}})
		require.NoError(t, err)
		require.Len(t, alg, 3)
		assert.Equal(t, []string{"alg-2", "alg-1", "alg-0"}, []string{alg[0].ID, alg[1].ID, alg[2].ID}, "newest first")

		open, err := s.ListAttempts(ctx, exam.AttemptFilter{ExamIDs: []string{"algebra-1"}, Statuses: exam.OpenStatuses()})
		require.NoError(t, err)
		assert.Len(t, open, 2)

		mine, err := s.ListAttempts(ctx, exam.AttemptFilter{ParticipantKey: "name:a"})
		require.NoError(t, err)
		assert.Len(t, mine, 2)

		page, err := s.ListAttempts(ctx, exam.AttemptFilter{ExamIDs: []string{"algebra-1"}, Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "alg-1", page[0].ID)

		tail, err := s.ListAttempts(ctx, exam.AttemptFilter{ExamIDs: []string{"algebra-1"}, Offset: 2})
		require.NoError(t, err)
		require.Len(t, tail, 1)
		assert.Equal(t, "alg-0", tail[0].ID)
	})
}

func TestStoreDeleteAttempts(t *testing.T) {
	forEachStore(t, func(t *testing.T, s exam.Store) {
		ctx := context.Background()
		require.NoError(t, s.PutExam(ctx, sampleExam()))
		_, _, err := s.CreateAttempt(ctx, newAttempt("a1", "algebra-1", "name:ann", t0))
		require.NoError(t, err)
		_, _, err = s.CreateAttempt(ctx, newAttempt("a2", "algebra-1", "name:bob", t0))
		require.NoError(t, err)
		_, err = s.RecordAnswer(ctx, exam.Answer{AttemptID: "a1", QuestionID: "q1", Selected: "B", AnsweredAt: t0}, t0)
		require.NoError(t, err)

		n, err := s.DeleteAttempts(ctx, "algebra-1", "name:ann")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		answers, err := s.ListAnswers(ctx, "a1")
		require.NoError(t, err)
		assert.Empty(t, answers)

		n, err = s.DeleteAttempts(ctx, "algebra-1", "name:ann")
		require.NoError(t, err)
		assert.Zero(t, n)

		require.NoError(t, s.DeleteAttempt(ctx, "a2"))
		assert.ErrorIs(t, s.DeleteAttempt(ctx, "a2"), exam.ErrNotFound)

		_, created, err := s.CreateAttempt(ctx, newAttempt("a3", "algebra-1", "name:ann", t0))
		require.NoError(t, err)
		assert.True(t, created, "the pair is free again after a restart")
	})
}

func TestLifecycleOnSQLStore(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	require.NoError(t, s.PutExam(ctx, sampleExam()))
	clock := newClock()
	mgr := exam.NewManager(s, exam.WithClock(clock.Now))

	a, st, err := mgr.StartOrResume(ctx, "algebra-1", "OPEN123", alice)
	require.NoError(t, err)
	require.Equal(t, exam.StartNew, st)

	_, err = mgr.SubmitAnswer(ctx, a.ID, "q1", "b", 10)
	require.NoError(t, err)
	_, err = mgr.SubmitAnswer(ctx, a.ID, "q1", "b", 10)
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)
	_, err = mgr.SubmitAnswer(ctx, a.ID, "q2", "A", 10)
	require.ErrorIs(t, err, exam.ErrExpired)

	got, st, err := mgr.StartOrResume(ctx, "algebra-1", "OPEN123", alice)
	require.NoError(t, err)
	assert.Equal(t, exam.StartCompleted, st)
	assert.Equal(t, exam.StatusTimedOut, got.Status)
	assert.Equal(t, map[string]string{"q1": "B"}, got.Answers)
}
