package handlers

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/triviasearch/internal/search"
	"github.com/saltyorg/triviasearch/internal/snapshot"
)

// VersionInfo holds application version information
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Handlers contains all HTTP handlers
type Handlers struct {
	loader      *snapshot.Loader
	binding     *search.Binding
	publishPath string
	origins     []string
	versionInfo VersionInfo
	versionMu   sync.RWMutex
}

// New creates a new Handlers instance. The binding is the server's single
// consumer of the loader; every request reads through it.
func New(loader *snapshot.Loader, binding *search.Binding) *Handlers {
	return &Handlers{
		loader:  loader,
		binding: binding,
	}
}

// SetPublishPath enables GET /db.sqlite3, serving the file at path.
func (h *Handlers) SetPublishPath(path string) {
	h.publishPath = path
}

// SetAllowedOrigins sets the origins accepted for websocket upgrades.
// An empty list only accepts same-host requests.
func (h *Handlers) SetAllowedOrigins(origins []string) {
	h.origins = origins
}

// SetVersionInfo sets the application version information
func (h *Handlers) SetVersionInfo(version, commit, date string) {
	h.versionMu.Lock()
	h.versionInfo = VersionInfo{Version: version, Commit: commit, Date: date}
	h.versionMu.Unlock()
}

func (h *Handlers) getVersionInfo() VersionInfo {
	h.versionMu.RLock()
	defer h.versionMu.RUnlock()
	return h.versionInfo
}

// jsonResponse encodes v with the given status
func (h *Handlers) jsonResponse(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

// jsonError sends a JSON error response
func (h *Handlers) jsonError(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, map[string]any{"success": false, "error": message}, status)
}
