package handlers

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/triviasearch/internal/search"
)

const (
	wsMaxMessageBytes = 4096
	wsWriteTimeout    = 10 * time.Second
	wsPongWait        = 60 * time.Second
	wsPingInterval    = (wsPongWait * 9) / 10
)

// SearchResponse is the reply to one query.
type SearchResponse struct {
	Query       string          `json:"query"`
	Initialized bool            `json:"initialized"`
	Results     []search.Result `json:"results"`
}

func (h *Handlers) runQuery(r *http.Request, query string) (SearchResponse, error) {
	view := h.binding.View()
	results, err := search.Results(r.Context(), view.Handle, query)
	if err != nil {
		return SearchResponse{}, err
	}
	return SearchResponse{Query: query, Initialized: view.Initialized, Results: results}, nil
}

// Search handles GET /api/search?q=. Before the snapshot is loaded it
// answers with initialized=false and no results.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	resp, err := h.runQuery(r, query)
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("Search failed")
		h.jsonError(w, "Search failed", http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, resp, http.StatusOK)
}

func (h *Handlers) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(h.origins, "*") || slices.Contains(h.origins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// SearchSocket handles GET /api/ws. Each text message is a query; each
// reply is a SearchResponse.
func (h *Handlers) SearchSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		log.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	conn.SetReadLimit(wsMaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	sessionID := uuid.NewString()
	logger := log.With().Str("session_id", sessionID).Logger()
	logger.Debug().Str("remote", r.RemoteAddr).Msg("WebSocket search client connected")

	done := make(chan struct{})
	writerDone := make(chan struct{})
	writes := make(chan SearchResponse, 8)

	go func() {
		defer close(writerDone)
		h.socketWriter(conn, writes, done)
	}()
	defer func() {
		close(done)
		<-writerDone
		_ = conn.Close()
	}()

	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("WebSocket read failed")
			}
			logger.Debug().Msg("WebSocket search client disconnected")
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		query := string(message)
		resp, err := h.runQuery(r, query)
		if err != nil {
			logger.Error().Err(err).Str("query", query).Msg("Search failed")
			resp = SearchResponse{Query: query, Initialized: h.binding.View().Initialized, Results: []search.Result{}}
		}

		select {
		case writes <- resp:
		case <-writerDone:
			return
		}
	}
}

// socketWriter owns all writes on conn: replies in order plus keepalive pings.
func (h *Handlers) socketWriter(conn *websocket.Conn, writes <-chan SearchResponse, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteTimeout))
			return
		case resp := <-writes:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(resp); err != nil {
				log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
