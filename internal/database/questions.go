package database

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// Question is one trivia question as imported into a snapshot.
type Question struct {
	ID               int64    `json:"id,omitempty"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

// ImportOptions controls ImportQuestions.
type ImportOptions struct {
	// UnescapeHTML decodes HTML entities, as served by the Open Trivia DB API.
	UnescapeHTML bool
}

// openTriviaEnvelope is the response shape of the Open Trivia DB API.
type openTriviaEnvelope struct {
	ResponseCode int        `json:"response_code"`
	Results      []Question `json:"results"`
}

// ErrNoQuestions is returned when an import source holds no questions.
var ErrNoQuestions = errors.New("no questions to import")

// EncodeAnswers serializes answers with the correct answer last.
func EncodeAnswers(correct string, incorrect []string) (string, error) {
	answers := make([]string, 0, len(incorrect)+1)
	answers = append(answers, incorrect...)
	answers = append(answers, correct)
	data, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("failed to encode answers: %w", err)
	}
	return string(data), nil
}

// DecodeQuestions reads either a JSON array of questions or an Open Trivia DB
// envelope ({"results": [...]}).
func DecodeQuestions(r io.Reader) ([]Question, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read questions: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrNoQuestions
	}

	var questions []Question
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &questions); err != nil {
			return nil, fmt.Errorf("failed to decode question list: %w", err)
		}
	case '{':
		var env openTriviaEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("failed to decode question envelope: %w", err)
		}
		if env.ResponseCode != 0 {
			return nil, fmt.Errorf("question envelope has response_code %d", env.ResponseCode)
		}
		questions = env.Results
	default:
		return nil, fmt.Errorf("unexpected question document starting with %q", data[0])
	}

	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	return questions, nil
}

// ImportQuestions decodes questions from r and inserts them.
func (db *DB) ImportQuestions(r io.Reader, opts ImportOptions) (int, error) {
	questions, err := DecodeQuestions(r)
	if err != nil {
		return 0, err
	}

	if opts.UnescapeHTML {
		for i := range questions {
			q := &questions[i]
			q.Question = html.UnescapeString(q.Question)
			q.CorrectAnswer = html.UnescapeString(q.CorrectAnswer)
			for j, a := range q.IncorrectAnswers {
				q.IncorrectAnswers[j] = html.UnescapeString(a)
			}
		}
	}

	if err := db.InsertQuestions(questions); err != nil {
		return 0, err
	}
	return len(questions), nil
}

// InsertQuestions inserts questions in one transaction. Questions with an ID
// keep it; others get the next rowid.
func (db *DB) InsertQuestions(questions []Question) error {
	for i, q := range questions {
		if strings.TrimSpace(q.Question) == "" {
			return fmt.Errorf("question %d: empty question text", i)
		}
		if strings.TrimSpace(q.CorrectAnswer) == "" {
			return fmt.Errorf("question %d: empty correct answer", i)
		}
	}

	err := db.Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare("INSERT INTO questions (id, question, answers) VALUES (?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, q := range questions {
			answers, err := EncodeAnswers(q.CorrectAnswer, q.IncorrectAnswers)
			if err != nil {
				return fmt.Errorf("question %d: %w", i, err)
			}
			var id any
			if q.ID > 0 {
				id = q.ID
			}
			if _, err := stmt.Exec(id, q.Question, answers); err != nil {
				return fmt.Errorf("failed to insert question %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Debug().Int("count", len(questions)).Msg("Inserted questions")
	return nil
}

// CountQuestions returns the number of stored questions.
func (db *DB) CountQuestions() (int, error) {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM questions").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return count, nil
}
