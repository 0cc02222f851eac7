package handlers

import (
	"net/http"
	"time"

	"github.com/saltyorg/triviasearch/internal/snapshot"
)

// StatusResponse describes the loader for /api/status and SSE clients.
type StatusResponse struct {
	Initialized bool       `json:"initialized"`
	State       string     `json:"state"`
	Attempts    int        `json:"attempts"`
	Error       string     `json:"error,omitempty"`
	LoadedAt    *time.Time `json:"loadedAt,omitempty"`
	Size        int64      `json:"size,omitempty"`
}

// NewStatusResponse converts a loader status for the wire.
func NewStatusResponse(st snapshot.Status) StatusResponse {
	resp := StatusResponse{
		Initialized: st.State == snapshot.StateReady,
		State:       st.State.String(),
		Attempts:    st.Attempts,
		Size:        st.Size,
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	if !st.LoadedAt.IsZero() {
		loadedAt := st.LoadedAt
		resp.LoadedAt = &loadedAt
	}
	return resp
}

// CurrentStatus returns the loader status in wire form.
func (h *Handlers) CurrentStatus() StatusResponse {
	return NewStatusResponse(h.loader.Status())
}

// Status handles GET /api/status
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.CurrentStatus(), http.StatusOK)
}

// Healthz handles GET /healthz. The process is healthy while it serves,
// whether or not the snapshot has loaded.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// Version handles GET /api/version
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.getVersionInfo(), http.StatusOK)
}
