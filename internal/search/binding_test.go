package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/saltyorg/triviasearch/internal/snapshot"
)

func newTestLoader(t *testing.T, rows []testRow) *snapshot.Loader {
	t.Helper()

	path := filepath.Join(t.TempDir(), "published.sqlite3")
	if err := os.WriteFile(path, buildSnapshot(t, rows), 0o644); err != nil {
		t.Fatalf("failed to write snapshot: %v", err)
	}

	cfg := snapshot.DefaultConfig()
	cfg.MinAttemptInterval = 0
	l := snapshot.NewLoader(snapshot.NewFileSource(path), snapshot.NewEngine(t.TempDir()), cfg)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestBinding_BecomesInitialized(t *testing.T) {
	l := newTestLoader(t, []testRow{{id: 7, question: "What color is the sky?", answers: `["red","green","blue"]`}})

	changed := make(chan View, 1)
	b := Bind(l, func(v View) { changed <- v })
	defer b.Release()

	select {
	case v := <-changed:
		if !v.Initialized || v.Handle == nil {
			t.Fatalf("expected initialized view, got %+v", v)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("binding never observed the handle")
	}

	if v := b.View(); !v.Initialized {
		t.Fatal("View reports not initialized after notification")
	}

	results, err := b.Results(context.Background(), "sky")
	if err != nil {
		t.Fatalf("Results returned error: %v", err)
	}
	if len(results) != 1 || results[0].CorrectAnswer != "blue" {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestBinding_LateBindSeesLoadedHandle(t *testing.T) {
	l := newTestLoader(t, []testRow{{id: 1, question: "Late binder question", answers: `["x"]`}})
	l.Trigger()
	if _, err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}

	b := Bind(l, nil)
	defer b.Release()

	if v := b.View(); !v.Initialized || v.Handle != l.Handle() {
		t.Fatalf("expected bound view of loaded handle, got %+v", v)
	}
}

func TestBinding_ReleasedBeforeLoad(t *testing.T) {
	l := newTestLoader(t, []testRow{{id: 1, question: "Released question", answers: `["x"]`}})

	called := make(chan struct{}, 1)
	b := Bind(l, func(View) { called <- struct{}{} })
	b.Release()

	if _, err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}

	if v := b.View(); v.Initialized {
		t.Fatal("released binding reports initialized")
	}
	results, err := b.Results(context.Background(), "Released")
	if err != nil {
		t.Fatalf("Results returned error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("released binding returned results %+v", results)
	}
}
