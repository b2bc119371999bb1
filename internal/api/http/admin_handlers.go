package http

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
)

// PUT /admin/exams  (full exam document, answer keys included)
func PutExamHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
			return
		}
		exams, err := exam.DecodeExams(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if len(exams) != 1 {
			http.Error(w, "exactly one exam expected", http.StatusBadRequest)
			return
		}
		e := exams[0]
		if err := store.PutExam(r.Context(), e); err != nil {
			writeError(w, r, err)
			return
		}
		stored, err := store.GetExam(r.Context(), e.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stored)
	}
}

// GET /admin/exams
func ListExamsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.ListExams(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if list == nil {
			list = []exam.Exam{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /admin/exams/{examID}
func GetExamHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := store.GetExam(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// GET /admin/exams/{examID}/attempts?status=...&limit=50&offset=0
func ListAttemptsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := exam.AttemptFilter{
			ExamIDs: []string{chi.URLParam(r, "examID")},
			Limit:   parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset:  parseIntDefault(r.URL.Query().Get("offset"), 0),
		}
		for _, s := range r.URL.Query()["status"] {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				f.Statuses = append(f.Statuses, exam.AttemptStatus(s))
			}
		}
		list, err := store.ListAttempts(r.Context(), f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if list == nil {
			list = []exam.Attempt{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// POST /admin/attempts/{attemptID}/grade
func GradeHandler(mgr *exam.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := mgr.Grade(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		log.Printf("attempt %s graded by %s", a.ID, auth.ActorFromContext(r.Context()))
		writeJSON(w, http.StatusOK, a)
	}
}

// DELETE /admin/attempts/{attemptID}
func DeleteAttemptHandler(mgr *exam.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		if err := mgr.DeleteAttempt(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		log.Printf("attempt %s deleted by %s", id, auth.ActorFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /admin/exams/{examID}/restart  { "name": "...", "email": "..." }
func RestartHandler(mgr *exam.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req exam.Participant
		if !decode(w, r, &req) {
			return
		}
		n, err := mgr.Restart(r.Context(), chi.URLParam(r, "examID"), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
	}
}

// EventLister is the read side of the event log.
type EventLister interface {
	List(ctx context.Context, key string, limit int) ([]syncx.Event, error)
	Recent(ctx context.Context, limit int) ([]syncx.Event, error)
}

// GET /admin/activity?limit=20
func ActivityHandler(events EventLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := min(parseIntDefault(r.URL.Query().Get("limit"), 20), 500)
		list, err := events.Recent(r.Context(), limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if list == nil {
			list = []syncx.Event{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /admin/attempts/{attemptID}/events?limit=100
func AttemptEventsHandler(events EventLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := events.List(r.Context(), chi.URLParam(r, "attemptID"), parseIntDefault(r.URL.Query().Get("limit"), 100))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if list == nil {
			list = []syncx.Event{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}
