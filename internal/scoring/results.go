package scoring

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/storage"
)

// ResultRow is one attempt in a results export.
type ResultRow struct {
	AttemptID        string     `json:"attempt_id"`
	ExamID           string     `json:"exam_id"`
	ParticipantName  string     `json:"participant_name"`
	ParticipantEmail string     `json:"participant_email,omitempty"`
	Status           string     `json:"status"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	Correct          int        `json:"correct"`
	Total            int        `json:"total"`
	Percentage       float64    `json:"percentage"`
	Minutes          float64    `json:"minutes"`
}

// ResultRows lists every attempt on examID with its score, newest first.
func (a *Aggregator) ResultRows(ctx context.Context, examID string) ([]ResultRow, error) {
	rows, err := a.load(ctx, []string{examID})
	if err != nil {
		return nil, err
	}
	out := make([]ResultRow, 0, len(rows))
	for _, r := range rows {
		row := ResultRow{
			AttemptID:        r.ID,
			ExamID:           r.ExamID,
			ParticipantName:  r.ParticipantName,
			ParticipantEmail: r.ParticipantEmail,
			Status:           string(r.Status),
			StartTime:        r.StartTime,
			EndTime:          r.EndTime,
			Correct:          r.Score.Correct,
			Total:            r.Score.Total,
			Percentage:       r.Score.Percentage,
		}
		if r.EndTime != nil {
			row.Minutes = round1(r.EndTime.Sub(r.StartTime).Minutes())
		}
		out = append(out, row)
	}
	return out, nil
}

var csvHeader = []string{"attempt_id", "exam_id", "name", "email", "status", "start_time", "end_time", "correct", "total", "percentage", "minutes"}

// WriteResultsCSV writes rows with a header line. Times are RFC 3339 UTC;
// an unfinished attempt has an empty end_time.
func WriteResultsCSV(w io.Writer, rows []ResultRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		end := ""
		if r.EndTime != nil {
			end = r.EndTime.UTC().Format(time.RFC3339)
		}
		if err := cw.Write([]string{
			r.AttemptID,
			r.ExamID,
			cell(r.ParticipantName),
			cell(r.ParticipantEmail),
			r.Status,
			r.StartTime.UTC().Format(time.RFC3339),
			end,
			strconv.Itoa(r.Correct),
			strconv.Itoa(r.Total),
			strconv.FormatFloat(r.Percentage, 'f', 1, 64),
			strconv.FormatFloat(r.Minutes, 'f', 1, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// cell keeps participant-typed text from being read as a spreadsheet formula.
func cell(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

// ArchiveResults writes the results export for examID into blobs under
// "<examID>/results-<UTC timestamp>.csv" and returns the stored key.
func (a *Aggregator) ArchiveResults(ctx context.Context, blobs storage.BlobStore, examID string, at time.Time) (string, error) {
	rows, err := a.ResultRows(ctx, examID)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := WriteResultsCSV(&buf, rows); err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s/results-%s.csv", examID, at.UTC().Format("20060102T150405Z"))
	return blobs.Put(ctx, key, &buf)
}
