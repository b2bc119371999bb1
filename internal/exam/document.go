package exam

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const examSchemaURL = "schema://exam.json"

// examSchema describes one exam document as accepted by import and the admin
// API. Answer labels are checked against the option count separately.
const examSchema = `{
  "type": "object",
  "required": ["id", "title"],
  "properties": {
    "id": {"type": "string", "minLength": 1, "pattern": "^[A-Za-z0-9._-]+$"},
    "title": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "duration_minutes": {"type": "integer", "minimum": 0},
    "access_code": {"type": "string"},
    "status": {"enum": ["", "draft", "active", "archived"]},
    "questions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "prompt", "options", "correct_answer"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "prompt": {"type": "string", "minLength": 1},
          "options": {"type": "array", "minItems": 2, "items": {"type": "string"}},
          "correct_answer": {"type": "string", "pattern": "^\\s*[A-Za-z]{1,2}\\s*$"},
          "explanation": {"type": "string"},
          "position": {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`

var compiledExamSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal([]byte(examSchema), &doc); err != nil {
		return nil, fmt.Errorf("parse exam schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(examSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add exam schema: %w", err)
	}
	return c.Compile(examSchemaURL)
})

// DecodeExams parses a single exam document or an array of them, validating
// each against the exam schema. Invalid documents fail with CodeValidation.
func DecodeExams(raw []byte) ([]Exam, error) {
	raw = bytes.TrimSpace(raw)
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, wrapError(CodeValidation, err, "invalid json")
	}
	docs, ok := parsed.([]any)
	if !ok {
		docs = []any{parsed}
	}
	sch, err := compiledExamSchema()
	if err != nil {
		return nil, err
	}
	for i, d := range docs {
		if err := sch.Validate(d); err != nil {
			return nil, wrapError(CodeValidation, err, "exam document %d", i)
		}
	}

	var exams []Exam
	if len(raw) > 0 && raw[0] == '[' {
		err = json.Unmarshal(raw, &exams)
	} else {
		var e Exam
		err = json.Unmarshal(raw, &e)
		exams = []Exam{e}
	}
	if err != nil {
		return nil, wrapError(CodeValidation, err, "invalid exam document")
	}
	for i := range exams {
		if err := normalizeExam(&exams[i]); err != nil {
			return nil, err
		}
	}
	return exams, nil
}

// normalizeExam canonicalizes answer labels, fills missing positions from
// document order and rejects answers that name no option.
func normalizeExam(e *Exam) error {
	if e.Status == "" {
		e.Status = ExamDraft
	}
	e.AccessCode = strings.TrimSpace(e.AccessCode)
	seen := map[string]bool{}
	for i := range e.Questions {
		q := &e.Questions[i]
		if seen[q.ID] {
			return newError(CodeValidation, "exam %s: duplicate question id %s", e.ID, q.ID)
		}
		seen[q.ID] = true
		q.Answer = strings.ToUpper(strings.TrimSpace(q.Answer))
		if labelIndex(q.Answer) >= len(q.Options) {
			return newError(CodeValidation, "exam %s: question %s answer %s has no matching option", e.ID, q.ID, q.Answer)
		}
		if q.Position == 0 {
			q.Position = i + 1
		}
	}
	return nil
}

// labelIndex is the inverse of grading.OptionLabel for upper-case labels.
func labelIndex(label string) int {
	n := 0
	for _, r := range label {
		n = n*26 + int(r-'A') + 1
	}
	return n - 1
}
