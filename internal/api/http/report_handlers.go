package http

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-exams/internal/scoring"
)

// examIDs reads repeated or comma separated exam_id query parameters.
func examIDs(r *http.Request) []string {
	var out []string
	for _, v := range r.URL.Query()["exam_id"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}

// GET /admin/statistics?exam_id=a&exam_id=b   (no exam_id: every exam)
func StatisticsHandler(agg *scoring.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := agg.StatisticsFor(r.Context(), examIDs(r)...)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// GET /admin/participants/stats?exam_id=...
func ParticipantStatsHandler(agg *scoring.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := agg.ParticipantStats(r.Context(), examIDs(r)...)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /admin/exams/{examID}/questions/stats
func QuestionStatsHandler(agg *scoring.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := agg.QuestionStats(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /admin/exams/{examID}/results.csv
func ResultsCSVHandler(agg *scoring.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		examID := chi.URLParam(r, "examID")
		rows, err := agg.ResultRows(r.Context(), examID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-results.csv"`, examID))
		if err := scoring.WriteResultsCSV(w, rows); err != nil {
			log.Printf("results csv %s: %v", examID, err)
		}
	}
}
