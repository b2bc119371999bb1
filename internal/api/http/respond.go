package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string    `json:"error"`
	Code  exam.Code `json:"code,omitempty"`
	// Result carries the stored answer when a terminal attempt rejects a
	// resubmission.
	Result any `json:"result,omitempty"`
}

func statusOf(code exam.Code) int {
	switch code {
	case exam.CodeNotFound:
		return http.StatusNotFound
	case exam.CodeAccessDenied:
		return http.StatusForbidden
	case exam.CodeExpired:
		return http.StatusGone
	case exam.CodeConflict:
		return http.StatusConflict
	case exam.CodeValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError maps domain errors onto HTTP statuses. Anything that is not an
// *exam.Error is logged and reported as a 500 without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorWith(w, r, err, nil)
}

func writeErrorWith(w http.ResponseWriter, r *http.Request, err error, result any) {
	var de *exam.Error
	if !errors.As(err, &de) {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}
	writeJSON(w, statusOf(de.Code), errorBody{Error: de.Error(), Code: de.Code, Result: result})
}

// decode reads a JSON body into v, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return false
	}
	return true
}

// decodeOptional is decode for endpoints whose body may be absent.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "bad json", http.StatusBadRequest)
		return false
	}
	return true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
