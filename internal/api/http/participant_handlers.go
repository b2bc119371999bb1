package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/grading"
	"github.com/mind-engage/mindengage-exams/internal/scoring"
)

// POST /exams/lookup  { "access_code": "..." }
func LookupHandler(mgr *exam.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AccessCode string `json:"access_code"`
		}
		if !decode(w, r, &req) {
			return
		}
		s, err := mgr.Lookup(r.Context(), req.AccessCode)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// POST /exams/{examID}/start  { "access_code": "...", "name": "...", "email": "..." }
func StartHandler(mgr *exam.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AccessCode string `json:"access_code"`
			Name       string `json:"name"`
			Email      string `json:"email"`
		}
		if !decode(w, r, &req) {
			return
		}
		sess, err := mgr.Enter(r.Context(), chi.URLParam(r, "examID"), req.AccessCode,
			exam.Participant{Name: req.Name, Email: req.Email})
		if err != nil {
			writeError(w, r, err)
			return
		}
		status := http.StatusOK
		if sess.Status == exam.StartNew {
			status = http.StatusCreated
		}
		writeJSON(w, status, sessionView(sess))
	}
}

type optionView struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

type questionView struct {
	ID       string       `json:"id"`
	Prompt   string       `json:"prompt"`
	Position int          `json:"position"`
	Options  []optionView `json:"options"`
}

type sessionResponse struct {
	Status          exam.StartStatus          `json:"status"`
	Attempt         exam.Attempt              `json:"attempt"`
	ExamID          string                    `json:"exam_id"`
	Title           string                    `json:"title"`
	Description     string                    `json:"description,omitempty"`
	DurationMinutes int                       `json:"duration_minutes"`
	Questions       []questionView            `json:"questions"`
	Checks          map[string]grading.Result `json:"answer_check_results"`
}

// sessionView labels options A, B, C... in display order.
func sessionView(s exam.Session) sessionResponse {
	qs := make([]questionView, len(s.Exam.Questions))
	for i, q := range s.Exam.Questions {
		opts := make([]optionView, len(q.Options))
		for j, text := range q.Options {
			opts[j] = optionView{Label: grading.OptionLabel(j), Text: text}
		}
		qs[i] = questionView{ID: q.ID, Prompt: q.Prompt, Position: q.Position, Options: opts}
	}
	return sessionResponse{
		Status:          s.Status,
		Attempt:         s.Attempt,
		ExamID:          s.Exam.ID,
		Title:           s.Exam.Title,
		Description:     s.Exam.Description,
		DurationMinutes: s.Exam.DurationMinutes,
		Questions:       qs,
		Checks:          s.Checks,
	}
}

// POST /attempts/{attemptID}/answers
func SubmitAnswerHandler(mgr *exam.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuestionID       string `json:"question_id"`
			SelectedAnswer   string `json:"selected_answer"`
			TimeSpentSeconds int    `json:"time_spent_seconds"`
		}
		if !decode(w, r, &req) {
			return
		}
		res, err := mgr.SubmitAnswer(r.Context(), chi.URLParam(r, "attemptID"),
			req.QuestionID, req.SelectedAnswer, req.TimeSpentSeconds)
		if err != nil {
			var prev any
			if errors.Is(err, exam.ErrConflict) && res.CorrectAnswer != "" {
				prev = res
			}
			writeErrorWith(w, r, err, prev)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// PATCH /attempts/{attemptID}/progress  { "current_question_index": 3 }
func UpdateProgressHandler(mgr *exam.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CurrentQuestionIndex *int `json:"current_question_index"`
		}
		if !decode(w, r, &req) {
			return
		}
		if req.CurrentQuestionIndex == nil {
			http.Error(w, "current_question_index required", http.StatusBadRequest)
			return
		}
		a, err := mgr.UpdateProgress(r.Context(), chi.URLParam(r, "attemptID"), *req.CurrentQuestionIndex)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// POST /attempts/{attemptID}/finish  { "timed_out": false }
// An empty body means a regular submission.
func FinishHandler(mgr *exam.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TimedOut bool `json:"timed_out"`
		}
		if !decodeOptional(w, r, &req) {
			return
		}
		reason := exam.UserSubmitted
		if req.TimedOut {
			reason = exam.TimedOut
		}
		a, err := mgr.Finish(r.Context(), chi.URLParam(r, "attemptID"), reason)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// GET /attempts/{attemptID}/result
func ResultHandler(agg *scoring.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := agg.AttemptResult(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
