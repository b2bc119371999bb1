package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/db"
)

// SQLStore implements Store on sqlite or postgres. Queries use $n
// placeholders, which both drivers accept.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(conn *sql.DB) *SQLStore {
	return &SQLStore{db: conn}
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// placeholders returns "$from,$from+1,..." for n arguments.
func placeholders(from, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "$%d", from+i)
	}
	return b.String()
}

func statusArgs(ss []AttemptStatus) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

/* --------------------------------- exams --------------------------------- */

func (s *SQLStore) PutExam(ctx context.Context, e Exam) error {
	if e.ID == "" {
		return newError(CodeValidation, "exam id required")
	}
	e = cloneExam(e)
	sortQuestions(e.Questions)
	if e.Status == "" {
		e.Status = ExamDraft
	}
	return db.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		prev, err := getExam(ctx, tx, e.ID)
		switch {
		case err == nil:
			if !sameQuestionSet(prev.Questions, e.Questions) {
				var open int
				if err := tx.QueryRowContext(ctx,
					`SELECT COUNT(*) FROM attempts WHERE exam_id=$1 AND status IN (`+placeholders(2, len(openStatuses))+`)`,
					append([]any{e.ID}, statusArgs(openStatuses)...)...).Scan(&open); err != nil {
					return err
				}
				if open > 0 {
					return newError(CodeConflict, "exam %s has attempts in progress; questions are locked", e.ID)
				}
			}
			e.CreatedAt = prev.CreatedAt
		case !errors.Is(err, ErrNotFound):
			return err
		}
		if e.CreatedAt == 0 {
			e.CreatedAt = time.Now().Unix()
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO exams (id,title,description,duration_minutes,access_code,status,created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, description=EXCLUDED.description,
				duration_minutes=EXCLUDED.duration_minutes, access_code=EXCLUDED.access_code, status=EXCLUDED.status`,
			e.ID, e.Title, e.Description, e.DurationMinutes, e.AccessCode, string(e.Status), e.CreatedAt); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE exam_id=$1`, e.ID); err != nil {
			return err
		}
		for _, q := range e.Questions {
			opts, err := json.Marshal(q.Options)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO questions (exam_id,id,prompt,options_json,correct_answer,explanation,position)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				e.ID, q.ID, q.Prompt, string(opts), q.Answer, q.Explanation, q.Position); err != nil {
				return fmt.Errorf("question %s: %w", q.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) GetExam(ctx context.Context, id string) (Exam, error) {
	return getExam(ctx, s.db, id)
}

func getExam(ctx context.Context, q queryer, id string) (Exam, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id,title,description,duration_minutes,access_code,status,created_at FROM exams WHERE id=$1`, id)
	var e Exam
	var status string
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.DurationMinutes, &e.AccessCode, &status, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Exam{}, newError(CodeNotFound, "exam %s not found", id)
		}
		return Exam{}, err
	}
	e.Status = ExamStatus(status)
	qs, err := listQuestions(ctx, q, `WHERE exam_id=$1`, id)
	if err != nil {
		return Exam{}, err
	}
	e.Questions = qs[id]
	return e, nil
}

func listQuestions(ctx context.Context, q queryer, where string, args ...any) (map[string][]Question, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT exam_id,id,prompt,options_json,correct_answer,explanation,position FROM questions `+where+` ORDER BY exam_id, position, id`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string][]Question{}
	for rows.Next() {
		var examID, opts string
		var qu Question
		if err := rows.Scan(&examID, &qu.ID, &qu.Prompt, &opts, &qu.Answer, &qu.Explanation, &qu.Position); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(opts), &qu.Options); err != nil {
			return nil, fmt.Errorf("question %s options: %w", qu.ID, err)
		}
		out[examID] = append(out[examID], qu)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListExams(ctx context.Context) ([]Exam, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,title,description,duration_minutes,access_code,status,created_at FROM exams ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var out []Exam
	for rows.Next() {
		var e Exam
		var status string
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.DurationMinutes, &e.AccessCode, &status, &e.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		e.Status = ExamStatus(status)
		out = append(out, e)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	qs, err := listQuestions(ctx, s.db, "")
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Questions = qs[out[i].ID]
	}
	return out, nil
}

func (s *SQLStore) FindExamByAccessCode(ctx context.Context, code string) (Exam, error) {
	if code == "" {
		return Exam{}, newError(CodeNotFound, "no exam with that access code")
	}
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM exams WHERE access_code=$1
		ORDER BY CASE WHEN status=$2 THEN 0 ELSE 1 END, id LIMIT 1`, code, string(ExamActive)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, newError(CodeNotFound, "no exam with that access code")
	}
	if err != nil {
		return Exam{}, err
	}
	return getExam(ctx, s.db, id)
}

/* -------------------------------- attempts ------------------------------- */

const attemptColumns = `id,exam_id,participant_key,participant_name,participant_email,status,start_time,end_time,last_activity_at,current_question_index,created_at`

type scanner interface{ Scan(dest ...any) error }

func scanAttempt(sc scanner) (Attempt, error) {
	var a Attempt
	var status string
	var start, last, created int64
	var end sql.NullInt64
	if err := sc.Scan(&a.ID, &a.ExamID, &a.ParticipantKey, &a.ParticipantName, &a.ParticipantEmail,
		&status, &start, &end, &last, &a.CurrentQuestionIndex, &created); err != nil {
		return Attempt{}, err
	}
	a.Status = AttemptStatus(status)
	a.StartTime = fromMillis(start)
	a.LastActivityAt = fromMillis(last)
	a.CreatedAt = fromMillis(created)
	if end.Valid {
		t := fromMillis(end.Int64)
		a.EndTime = &t
	}
	return a, nil
}

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) (Attempt, bool, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM exams WHERE id=$1`, a.ExamID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, false, newError(CodeNotFound, "exam %s not found", a.ExamID)
		}
		return Attempt{}, false, err
	}
	var end any
	if a.EndTime != nil {
		end = millis(*a.EndTime)
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO attempts (`+attemptColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (exam_id, participant_key) DO NOTHING`,
		a.ID, a.ExamID, a.ParticipantKey, a.ParticipantName, a.ParticipantEmail, string(a.Status),
		millis(a.StartTime), end, millis(a.LastActivityAt), a.CurrentQuestionIndex, millis(a.CreatedAt))
	if err != nil {
		return Attempt{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Attempt{}, false, err
	}
	if n == 0 {
		existing, err := s.FindAttempt(ctx, a.ExamID, a.ParticipantKey)
		return existing, false, err
	}
	stored, err := s.GetAttempt(ctx, a.ID)
	return stored, true, err
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return s.oneAttempt(ctx, `WHERE id=$1`, []any{id}, "attempt %s not found", id)
}

func (s *SQLStore) FindAttempt(ctx context.Context, examID, participantKey string) (Attempt, error) {
	return s.oneAttempt(ctx, `WHERE exam_id=$1 AND participant_key=$2`, []any{examID, participantKey},
		"no attempt for %s on exam %s", participantKey, examID)
}

func (s *SQLStore) oneAttempt(ctx context.Context, where string, args []any, notFound string, nfArgs ...any) (Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM attempts `+where, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, newError(CodeNotFound, notFound, nfArgs...)
		}
		return Attempt{}, err
	}
	out, err := s.withAnswers(ctx, []Attempt{a})
	if err != nil {
		return Attempt{}, err
	}
	return out[0], nil
}

// withAnswers fills each attempt's answer cache from attempt_answers.
func (s *SQLStore) withAnswers(ctx context.Context, as []Attempt) ([]Attempt, error) {
	ids := make([]string, len(as))
	for i, a := range as {
		ids[i] = a.ID
	}
	answers, err := s.ListAnswers(ctx, ids...)
	if err != nil {
		return nil, err
	}
	byAttempt := map[string][]Answer{}
	for _, ans := range answers {
		byAttempt[ans.AttemptID] = append(byAttempt[ans.AttemptID], ans)
	}
	for i := range as {
		as[i].Answers = answerCache(byAttempt[as[i].ID])
	}
	return as, nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, f AttemptFilter) ([]Attempt, error) {
	var where []string
	var args []any
	if len(f.ExamIDs) > 0 {
		where = append(where, `exam_id IN (`+placeholders(len(args)+1, len(f.ExamIDs))+`)`)
		for _, id := range f.ExamIDs {
			args = append(args, id)
		}
	}
	if len(f.Statuses) > 0 {
		where = append(where, `status IN (`+placeholders(len(args)+1, len(f.Statuses))+`)`)
		args = append(args, statusArgs(f.Statuses)...)
	}
	if f.ParticipantKey != "" {
		args = append(args, f.ParticipantKey)
		where = append(where, fmt.Sprintf(`participant_key=$%d`, len(args)))
	}
	q := `SELECT ` + attemptColumns + ` FROM attempts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY start_time DESC, id`
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = math.MaxInt32
		}
		args = append(args, limit, f.Offset)
		q += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	return s.withAnswers(ctx, out)
}

func (s *SQLStore) UpdateAttempt(ctx context.Context, id string, from []AttemptStatus, u AttemptUpdate) (Attempt, error) {
	var sets []string
	var args []any
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if u.Status != "" {
		set("status", string(u.Status))
	}
	if u.EndTime != nil {
		set("end_time", millis(*u.EndTime))
	}
	if u.LastActivityAt != nil {
		set("last_activity_at", millis(*u.LastActivityAt))
	}
	if u.CurrentQuestionIndex != nil {
		set("current_question_index", *u.CurrentQuestionIndex)
	}
	if len(sets) == 0 {
		return s.GetAttempt(ctx, id)
	}
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE attempts SET %s WHERE id=$%d AND status IN (%s)`,
		strings.Join(sets, ","), len(args), placeholders(len(args)+1, len(from)))
	args = append(args, statusArgs(from)...)

	if err := s.conditional(ctx, s.db, id, q, args...); err != nil {
		return Attempt{}, err
	}
	return s.GetAttempt(ctx, id)
}

// conditional runs a status-guarded UPDATE and translates "no rows" into
// CodeNotFound or CodeConflict.
func (s *SQLStore) conditional(ctx context.Context, q queryer, id, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var status string
	if err := q.QueryRowContext(ctx, `SELECT status FROM attempts WHERE id=$1`, id).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(CodeNotFound, "attempt %s not found", id)
		}
		return err
	}
	return newError(CodeConflict, "attempt %s is %s", id, status)
}

/* --------------------------------- answers ------------------------------- */

func (s *SQLStore) RecordAnswer(ctx context.Context, ans Answer, at time.Time) (Attempt, error) {
	err := db.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		args := append([]any{string(StatusInProgress), millis(at), ans.AttemptID}, statusArgs(openStatuses)...)
		if err := s.conditional(ctx, tx, ans.AttemptID,
			`UPDATE attempts SET status=$1, last_activity_at=$2 WHERE id=$3 AND status IN (`+placeholders(4, len(openStatuses))+`)`,
			args...); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO attempt_answers (attempt_id,question_id,selected_answer,is_correct,time_spent_seconds,answered_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (attempt_id, question_id) DO UPDATE SET selected_answer=EXCLUDED.selected_answer,
				is_correct=EXCLUDED.is_correct, time_spent_seconds=EXCLUDED.time_spent_seconds, answered_at=EXCLUDED.answered_at`,
			ans.AttemptID, ans.QuestionID, ans.Selected, ans.IsCorrect, ans.TimeSpentSeconds, millis(ans.AnsweredAt))
		return err
	})
	if err != nil {
		return Attempt{}, err
	}
	return s.GetAttempt(ctx, ans.AttemptID)
}

const answerColumns = `attempt_id,question_id,selected_answer,is_correct,time_spent_seconds,answered_at`

func scanAnswer(sc scanner) (Answer, error) {
	var a Answer
	var answered int64
	if err := sc.Scan(&a.AttemptID, &a.QuestionID, &a.Selected, &a.IsCorrect, &a.TimeSpentSeconds, &answered); err != nil {
		return Answer{}, err
	}
	a.AnsweredAt = fromMillis(answered)
	return a, nil
}

func (s *SQLStore) GetAnswer(ctx context.Context, attemptID, questionID string) (Answer, error) {
	a, err := scanAnswer(s.db.QueryRowContext(ctx,
		`SELECT `+answerColumns+` FROM attempt_answers WHERE attempt_id=$1 AND question_id=$2`, attemptID, questionID))
	if errors.Is(err, sql.ErrNoRows) {
		return Answer{}, newError(CodeNotFound, "no answer for question %s", questionID)
	}
	return a, err
}

// maxInArgs keeps IN lists well under driver parameter limits.
const maxInArgs = 500

func (s *SQLStore) ListAnswers(ctx context.Context, attemptIDs ...string) ([]Answer, error) {
	var out []Answer
	for start := 0; start < len(attemptIDs); start += maxInArgs {
		chunk := attemptIDs[start:min(start+maxInArgs, len(attemptIDs))]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+answerColumns+` FROM attempt_answers WHERE attempt_id IN (`+placeholders(1, len(chunk))+`) ORDER BY attempt_id, question_id`,
			args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			a, err := scanAnswer(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, a)
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

/* --------------------------------- deletes ------------------------------- */

func (s *SQLStore) DeleteAttempt(ctx context.Context, id string) error {
	return db.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM attempt_answers WHERE attempt_id=$1`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM attempts WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return newError(CodeNotFound, "attempt %s not found", id)
		}
		return nil
	})
}

func (s *SQLStore) DeleteAttempts(ctx context.Context, examID, participantKey string) (int, error) {
	var n int64
	err := db.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM attempt_answers WHERE attempt_id IN
			(SELECT id FROM attempts WHERE exam_id=$1 AND participant_key=$2)`, examID, participantKey); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM attempts WHERE exam_id=$1 AND participant_key=$2`, examID, participantKey)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}
