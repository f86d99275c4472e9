// Package httpapi hosts the one HTTP surface this engine owns: a WebSocket
// upgrade endpoint for the subscriber hub and a liveness probe. It is not
// an authentication surface, matching the scope the hub itself is built to.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"indexfeed-trader/internal/hub"
)

// FeedStatus reports whether the vendor feed is currently connected, for
// the /healthz probe.
type FeedStatus interface {
	Connected() bool
}

// DBPing reports whether the persistence layer is reachable.
type DBPing interface {
	Ping() error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server wires the hub's /ws endpoint and the /healthz liveness probe onto
// an http.Server, following the reference CLI's habit of a small composed
// struct carrying its wired dependencies rather than package-level state.
type Server struct {
	hub    *hub.Hub
	feed   FeedStatus
	db     DBPing
	logger zerolog.Logger
}

// New creates an httpapi.Server. feed and db may be nil if the caller wants
// /healthz to report those checks as always-up (used in tests).
func New(h *hub.Hub, feed FeedStatus, db DBPing, logger zerolog.Logger) *Server {
	return &Server{hub: h, feed: feed, db: db, logger: logger.With().Str("component", "httpapi").Logger()}
}

// Handler returns the composed http.Handler for /ws and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", s.serveHealthz)
	return mux
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.hub.Serve(conn)
}

type healthResponse struct {
	FeedConnected     bool `json:"feedConnected"`
	HubSubscriberCount int `json:"hubSubscriberCount"`
	DBOK              bool `json:"dbOk"`
}

func (s *Server) serveHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		FeedConnected:      s.feed == nil || s.feed.Connected(),
		HubSubscriberCount: s.hub.SubscriberCount(),
		DBOK:               s.db == nil || s.db.Ping() == nil,
	}
	w.Header().Set("Content-Type", "application/json")
	if !resp.FeedConnected || !resp.DBOK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}
