package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/triviasearch/internal/snapshot"
)

const (
	// MinQueryLength is the shortest trimmed query, in characters, that is searched.
	MinQueryLength = 3
	// MaxResults caps the rows returned by one query.
	MaxResults = 20
)

// Rows come back in whatever order the engine yields them.
const resultsQuery = `SELECT id, question, answers FROM questions WHERE question LIKE ? ESCAPE '\' LIMIT ?`

var errNoAnswers = errors.New("answers list is empty")

// Result is one trivia question with its answers split out.
type Result struct {
	ID               int64    `json:"id"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correctAnswer"`
	IncorrectAnswers []string `json:"incorrectAnswers"`
}

// Results runs a substring search for query against h. A nil handle or a
// query shorter than MinQueryLength yields an empty, non-nil slice.
// Rows with a missing or malformed answers column are skipped.
func Results(ctx context.Context, h *snapshot.Handle, query string) ([]Result, error) {
	results := []Result{}
	if h == nil {
		return results, nil
	}

	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return results, nil
	}

	rows, err := h.QueryContext(ctx, resultsQuery, "%"+EscapeLike(query)+"%", MaxResults)
	if err != nil {
		return nil, fmt.Errorf("failed to search questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id       int64
			question sql.NullString
			answers  sql.NullString
		)
		if err := rows.Scan(&id, &question, &answers); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}

		result, err := newResult(id, question.String, answers)
		if err != nil {
			log.Warn().Err(err).Int64("id", id).Msg("Skipping malformed question row")
			continue
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate questions: %w", err)
	}

	return results, nil
}

// newResult splits the stored answers: the last one is correct, the rest
// keep their order as incorrect answers.
func newResult(id int64, question string, answers sql.NullString) (Result, error) {
	if !answers.Valid {
		return Result{}, errors.New("answers column is NULL")
	}

	var list []string
	if err := json.Unmarshal([]byte(answers.String), &list); err != nil {
		return Result{}, fmt.Errorf("failed to decode answers: %w", err)
	}
	if len(list) == 0 {
		return Result{}, errNoAnswers
	}

	last := len(list) - 1
	return Result{
		ID:               id,
		Question:         question,
		CorrectAnswer:    list[last],
		IncorrectAnswers: list[:last:last],
	}, nil
}
