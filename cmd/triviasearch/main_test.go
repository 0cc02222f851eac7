package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"testing"

	"github.com/saltyorg/triviasearch/internal/search"
)

const testQuestions = `{"response_code": 0, "results": [
	{"question": "What color is the sky?", "correct_answer": "blue", "incorrect_answers": ["red", "green"]},
	{"question": "Capital of France?", "correct_answer": "Paris", "incorrect_answers": ["Lyon"]}
]}`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBuildThenSearch(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "questions.json")
	if err := os.WriteFile(input, []byte(testQuestions), 0o644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}
	snapshotPath := filepath.Join(dir, "db.sqlite3")

	out, err := execute(t, "build", "--input", input, "--output", snapshotPath)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}  `).MatchString(out) || !strings.Contains(out, snapshotPath) {
		t.Fatalf("unexpected build output %q", out)
	}
	digest := strings.Fields(out)[0]

	out, err = execute(t, "search",
		"--snapshot", snapshotPath,
		"--engine-dir", t.TempDir(),
		"--blake2b", digest,
		"the", "sky")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	var results []search.Result
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("failed to decode search output %q: %v", out, err)
	}
	if len(results) != 1 || results[0].CorrectAnswer != "blue" {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestSearch_DigestMismatchFails(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "questions.json")
	if err := os.WriteFile(input, []byte(testQuestions), 0o644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}
	snapshotPath := filepath.Join(dir, "db.sqlite3")
	if _, err := execute(t, "build", "-i", input, "-o", snapshotPath); err != nil {
		t.Fatalf("build failed: %v", err)
	}

	_, err := execute(t, "search",
		"--snapshot", snapshotPath,
		"--engine-dir", t.TempDir(),
		"--blake2b", strings.Repeat("0", 64),
		"--retry-max-attempts", "1",
		"sky")
	if err == nil {
		t.Fatal("expected search to fail on digest mismatch")
	}
}

func TestServe_RequiresPort(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("TRIVIA_SERVER_PORT", "")

	_, err := execute(t, "serve")
	if err == nil || !strings.Contains(err.Error(), "--port") {
		t.Fatalf("expected port error, got %v", err)
	}
}

func TestServe_RejectsBadSubnet(t *testing.T) {
	_, err := execute(t, "serve", "--port", "8080", "--allow-subnet", "not-a-cidr")
	if err == nil || !strings.Contains(err.Error(), "allow-subnet") {
		t.Fatalf("expected subnet error, got %v", err)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "*", want: []string{"*"}},
		{in: "http://a, http://b ,,", want: []string{"http://a", "http://b"}},
	}
	for _, tt := range tests {
		if got := splitList(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("splitList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
