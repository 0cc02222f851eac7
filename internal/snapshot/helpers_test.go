package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saltyorg/triviasearch/internal/database"
)

const testQuestions = `[
	{"id": 7, "question": "What color is the sky?", "correct_answer": "blue", "incorrect_answers": ["red", "green"]},
	{"id": 8, "question": "How many legs does a spider have?", "correct_answer": "8", "incorrect_answers": ["6", "10"]}
]`

// buildTestSnapshot returns the bytes of a small, valid snapshot.
func buildTestSnapshot(t *testing.T) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "db.sqlite3")
	if _, err := database.Build(path, strings.NewReader(testQuestions), database.ImportOptions{}); err != nil {
		t.Fatalf("failed to build snapshot: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read snapshot: %v", err)
	}
	return data
}

// fakeSource counts fetches, optionally fails the first few and can block
// until gate is closed.
type fakeSource struct {
	data      []byte
	failFirst int32
	gate      chan struct{}
	calls     atomic.Int32
}

func (s *fakeSource) Fetch(ctx context.Context) ([]byte, error) {
	n := s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.failFirst < 0 || n <= s.failFirst {
		return nil, errors.New("fetch failed")
	}
	return s.data, nil
}

func (s *fakeSource) String() string {
	return "fake"
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry = RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	cfg.MinAttemptInterval = 0
	return cfg
}

func snapshotFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "snapshot-*.sqlite3"))
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	return matches
}
