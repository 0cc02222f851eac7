package handlers

import (
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
)

// PublishSnapshot handles GET /db.sqlite3, serving the local snapshot file
// so other instances can use this server as their source.
func (h *Handlers) PublishSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.publishPath == "" {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(h.publishPath)
	if err != nil {
		log.Error().Err(err).Str("path", h.publishPath).Msg("Failed to open published snapshot")
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.sqlite3")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
