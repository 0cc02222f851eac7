package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/saltyorg/triviasearch/internal/database"
	"github.com/saltyorg/triviasearch/internal/search"
	"github.com/saltyorg/triviasearch/internal/snapshot"
)

const testQuestions = `[
	{"id": 1, "question": "What color is the sky?", "correct_answer": "blue", "incorrect_answers": ["red", "green"]},
	{"id": 2, "question": "How many legs does a spider have?", "correct_answer": "8", "incorrect_answers": ["6"]}
]`

// blockingSource never delivers, keeping the loader in the loading state.
type blockingSource struct{}

func (blockingSource) Fetch(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingSource) String() string { return "blocking" }

func buildSnapshotFile(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "db.sqlite3")
	if _, err := database.Build(path, strings.NewReader(testQuestions), database.ImportOptions{}); err != nil {
		t.Fatalf("failed to build snapshot: %v", err)
	}
	return path
}

func newLoadedHandlers(t *testing.T) (*Handlers, string) {
	t.Helper()

	path := buildSnapshotFile(t)
	cfg := snapshot.DefaultConfig()
	cfg.MinAttemptInterval = 0
	loader := snapshot.NewLoader(snapshot.NewFileSource(path), snapshot.NewEngine(t.TempDir()), cfg)
	t.Cleanup(func() { loader.Close() })

	ready := make(chan struct{}, 1)
	binding := search.Bind(loader, func(search.View) { ready <- struct{}{} })
	t.Cleanup(binding.Release)

	select {
	case <-ready:
	case <-time.After(10 * time.Second):
		t.Fatalf("snapshot never loaded: %v", loader.Err())
	}
	return New(loader, binding), path
}

func newPendingHandlers(t *testing.T) *Handlers {
	t.Helper()

	cfg := snapshot.DefaultConfig()
	cfg.FetchTimeout = 0
	loader := snapshot.NewLoader(blockingSource{}, snapshot.NewEngine(t.TempDir()), cfg)
	t.Cleanup(func() { loader.Close() })

	binding := search.Bind(loader, nil)
	t.Cleanup(binding.Release)
	return New(loader, binding)
}

func TestSearch_Loaded(t *testing.T) {
	h, _ := newLoadedHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=sky", nil)
	w := httptest.NewRecorder()
	h.Search(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Initialized {
		t.Fatal("expected initialized response")
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %+v", resp.Results)
	}
	got := resp.Results[0]
	if got.ID != 1 || got.CorrectAnswer != "blue" || len(got.IncorrectAnswers) != 2 {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestSearch_ShortQueryReturnsEmptyList(t *testing.T) {
	h, _ := newLoadedHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=sk", nil)
	w := httptest.NewRecorder()
	h.Search(w, req)

	if !strings.Contains(w.Body.String(), `"results":[]`) {
		t.Fatalf("expected empty results array, got %s", w.Body.String())
	}
}

func TestSearch_NotLoaded(t *testing.T) {
	h := newPendingHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=sky", nil)
	w := httptest.NewRecorder()
	h.Search(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"initialized":false`) || !strings.Contains(body, `"results":[]`) {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestStatus(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		h, _ := newLoadedHandlers(t)
		w := httptest.NewRecorder()
		h.Status(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))

		var resp StatusResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if !resp.Initialized || resp.State != "ready" || resp.Size == 0 || resp.LoadedAt == nil {
			t.Fatalf("unexpected status %+v", resp)
		}
	})

	t.Run("loading", func(t *testing.T) {
		h := newPendingHandlers(t)
		w := httptest.NewRecorder()
		h.Status(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))

		var resp StatusResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if resp.Initialized || resp.State != "loading" {
			t.Fatalf("unexpected status %+v", resp)
		}
	})
}

func TestHealthz(t *testing.T) {
	h := newPendingHandlers(t)
	w := httptest.NewRecorder()
	h.Healthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}
}

func TestPublishSnapshot(t *testing.T) {
	h, path := newLoadedHandlers(t)

	w := httptest.NewRecorder()
	h.PublishSnapshot(w, httptest.NewRequest(http.MethodGet, "/db.sqlite3", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 while publishing is off, got %d", w.Code)
	}

	h.SetPublishPath(path)
	w = httptest.NewRecorder()
	h.PublishSnapshot(w, httptest.NewRequest(http.MethodGet, "/db.sqlite3", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("SQLite format 3\x00")) {
		t.Fatal("published body is not a SQLite file")
	}
}

func TestSearchSocket(t *testing.T) {
	h, _ := newLoadedHandlers(t)

	srv := httptest.NewServer(http.HandlerFunc(h.SearchSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	for _, tt := range []struct {
		query string
		want  int
	}{
		{query: "spider", want: 1},
		{query: "sp", want: 0},
		{query: "nothing matches this", want: 0},
	} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.query)); err != nil {
			t.Fatalf("write failed: %v", err)
		}

		var resp SearchResponse
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if resp.Query != tt.query || !resp.Initialized || len(resp.Results) != tt.want {
			t.Fatalf("query %q: unexpected reply %+v", tt.query, resp)
		}
	}
}

func TestSearchSocket_RejectsForeignOrigin(t *testing.T) {
	h := newPendingHandlers(t)

	srv := httptest.NewServer(http.HandlerFunc(h.SearchSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{"Origin": []string{"https://elsewhere.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}

	h.SetAllowedOrigins([]string{"https://elsewhere.example"})
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial with allowed origin failed: %v", err)
	}
	conn.Close()
}
