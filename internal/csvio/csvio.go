// Package csvio reads and writes the question and result CSV formats.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pavelanni/examdesk/internal/model"
	"github.com/pavelanni/examdesk/internal/report"
)

// QuestionHeader lists the question columns in import/export order.
var QuestionHeader = []string{"text", "option_a", "option_b", "option_c", "option_d", "correct"}

// ResultHeader lists the result export columns.
var ResultHeader = []string{"set", "email", "index", "score", "total", "percentage", "passed", "started_at", "finished_at"}

// RowError describes one skipped import row.
type RowError struct {
	Line   int
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// ReadQuestions parses a question CSV for setID. Malformed rows are skipped
// and reported in the returned slice of RowError; only an unreadable header
// fails the whole read.
func ReadQuestions(r io.Reader, setID int64) ([]model.Question, []RowError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		cols[h] = i
	}

	var questions []model.Question
	var skipped []RowError
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				skipped = append(skipped, RowError{Line: pe.Line, Reason: pe.Err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("read row: %w", err)
		}
		line, _ := cr.FieldPos(0)

		field := func(name string) (string, bool) {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return "", false
			}
			return rec[i], true
		}
		var vals [6]string
		missing := ""
		for i, name := range QuestionHeader {
			v, ok := field(name)
			if !ok {
				missing = name
				break
			}
			vals[i] = v
		}
		if missing != "" {
			skipped = append(skipped, RowError{Line: line, Reason: "missing column " + missing})
			continue
		}

		q, err := model.QuestionInput{
			Text:    vals[0],
			OptionA: vals[1],
			OptionB: vals[2],
			OptionC: vals[3],
			OptionD: vals[4],
			Correct: vals[5],
		}.Question(setID)
		if err != nil {
			skipped = append(skipped, RowError{Line: line, Reason: err.Error()})
			continue
		}
		questions = append(questions, q)
	}

	for _, re := range skipped {
		slog.Debug("skipped import row", "set_id", setID, "line", re.Line, "reason", re.Reason)
	}
	return questions, skipped, nil
}

// WriteQuestions writes questions in the import format.
func WriteQuestions(w io.Writer, questions []model.Question) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(QuestionHeader); err != nil {
		return err
	}
	for _, q := range questions {
		rec := []string{q.Text, q.Options[0], q.Options[1], q.Options[2], q.Options[3], string(q.Correct)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteResults writes one line per finished exam.
func WriteResults(w io.Writer, rows []model.ResultRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ResultHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.SetName,
			r.Email,
			r.Index,
			strconv.Itoa(r.Score),
			strconv.Itoa(r.Total),
			report.FormatPercentage(r.Percentage),
			report.PassLabel(r.Passed),
			r.StartedAt.Format(report.TimeLayout),
			r.FinishedAt.Format(report.TimeLayout),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// QuestionInserter stores imported questions. *store.Store implements it.
type QuestionInserter interface {
	InsertQuestions(qs []model.Question) error
}

// Import reads a question CSV and stores every valid row in one batch.
func Import(r io.Reader, setID int64, dst QuestionInserter) (model.ImportReport, error) {
	questions, skipped, err := ReadQuestions(r, setID)
	if err != nil {
		return model.ImportReport{}, err
	}
	if len(questions) > 0 {
		if err := dst.InsertQuestions(questions); err != nil {
			return model.ImportReport{}, fmt.Errorf("insert questions: %w", err)
		}
	}
	rep := model.ImportReport{Imported: len(questions), Skipped: len(skipped)}
	slog.Info("imported questions", "set_id", setID, "imported", rep.Imported, "skipped", rep.Skipped)
	return rep, nil
}
