package database

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
)

// Build writes a fresh snapshot file at path from the question document in r.
// An existing file at path is replaced.
func Build(path string, r io.Reader, opts ImportOptions) (int, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("failed to remove existing snapshot: %w", err)
	}

	db, err := New(path)
	if err != nil {
		return 0, err
	}

	n, err := buildInto(db, r, opts)
	if closeErr := db.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("failed to close snapshot: %w", closeErr)
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}

	log.Info().Str("path", path).Int("questions", n).Msg("Snapshot built")
	return n, nil
}

func buildInto(db *DB, r io.Reader, opts ImportOptions) (int, error) {
	if err := db.Migrate(); err != nil {
		return 0, err
	}
	n, err := db.ImportQuestions(r, opts)
	if err != nil {
		return 0, err
	}
	if err := db.Compact(); err != nil {
		return 0, err
	}
	return n, nil
}
