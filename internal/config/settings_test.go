package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type mapSettings map[string]string

func (m mapSettings) GetSetting(key string) (string, error) {
	return m[key], nil
}

func TestLoaderDefaults(t *testing.T) {
	l := NewLoader(mapSettings{
		"int":      "42",
		"bad_int":  "forty-two",
		"bool":     "1",
		"bad_bool": "maybe",
		"dur":      "1m30s",
		"bad_dur":  "soon",
		"str":      "value",
	})

	if got := l.Int("int", 0); got != 42 {
		t.Errorf("Int = %d, want 42", got)
	}
	if got := l.Int("bad_int", 7); got != 7 {
		t.Errorf("Int on invalid value = %d, want default 7", got)
	}
	if got := l.Int("missing", 3); got != 3 {
		t.Errorf("Int on missing key = %d, want default 3", got)
	}
	if !l.Bool("bool", false) {
		t.Error("Bool(\"1\") = false, want true")
	}
	if !l.Bool("bad_bool", true) {
		t.Error("Bool on invalid value should fall back to default true")
	}
	if got := l.Duration("dur", 0); got != 90*time.Second {
		t.Errorf("Duration = %v, want 1m30s", got)
	}
	if got := l.Duration("bad_dur", time.Second); got != time.Second {
		t.Errorf("Duration on invalid value = %v, want default 1s", got)
	}
	if got := l.String("str", "x"); got != "value" {
		t.Errorf("String = %q, want value", got)
	}
	if got := l.String("missing", "x"); got != "x" {
		t.Errorf("String on missing key = %q, want default x", got)
	}
}

func TestNilLoaderUsesDefaults(t *testing.T) {
	var l *Loader
	if got := l.Int("any", 5); got != 5 {
		t.Errorf("nil loader Int = %d, want 5", got)
	}
}

func TestViperSettings_ConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trivia.yaml")
	content := "snapshot:\n  source: https://cdn.example.com/db.sqlite3\nretry:\n  max_attempts: 4\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("TRIVIA_RETRY_BASE_DELAY", "250ms")

	v, err := NewViper(path)
	if err != nil {
		t.Fatalf("NewViper returned error: %v", err)
	}
	l := NewLoader(NewViperSettings(v))

	if got := l.String(KeySnapshotSource, ""); got != "https://cdn.example.com/db.sqlite3" {
		t.Errorf("snapshot.source = %q", got)
	}
	if got := l.Int(KeyRetryMaxAttempts, 0); got != 4 {
		t.Errorf("retry.max_attempts = %d, want 4", got)
	}
	if got := l.Duration(KeyRetryBaseDelay, 0); got != 250*time.Millisecond {
		t.Errorf("retry.base_delay = %v, want 250ms from env", got)
	}

	timeouts := LoadTimeouts(l)
	if *timeouts != *DefaultTimeoutConfig() {
		t.Errorf("expected default timeouts, got %+v", timeouts)
	}
}

func TestNewViper_MissingFile(t *testing.T) {
	if _, err := NewViper(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
