// Package httpapi serves the diagnostic HTTP surface supplementing the
// websocket gateway: a liveness probe and a read-only game status snapshot
// for operators and monitoring, per SPEC_FULL.md's domain-stack wiring of
// go-chi and gorilla/handlers.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"

	"github.com/teamchess/server/internal/game"
	"github.com/teamchess/server/log"
)

// StatusProvider is the narrow read-only view Core exposes for the
// /status endpoint. All fields are snapshotted under Core's own lock/loop
// discipline before being handed to the handler.
type StatusProvider interface {
	Status() StatusSnapshot
}

// StatusSnapshot is the JSON body of GET /status.
type StatusSnapshot struct {
	GameStatus    game.Status `json:"gameStatus"`
	MoveNumber    int         `json:"moveNumber"`
	SideToMove    game.Side   `json:"sideToMove"`
	WhiteTime     int         `json:"whiteTime"`
	BlackTime     int         `json:"blackTime"`
	ConnectedPIDs int         `json:"connectedPlayers"`
}

// NewRouter builds the chi router serving /healthz and /status, wrapped
// in gorilla/handlers' combined access-log middleware the way the
// teacher's HTTP surface logs every request.
func NewRouter(logger log.Logger, provider StatusProvider) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		snap := provider.Status()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			logger.Warnw("encoding status response failed", "err", err)
		}
	})

	return handlers.CombinedLoggingHandler(logWriter{logger}, r)
}

// logWriter adapts log.Logger to io.Writer for gorilla/handlers' access
// log, which expects an io.Writer rather than a structured logger.
type logWriter struct {
	log log.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	w.log.Infow("http access", "line", string(p))
	return len(p), nil
}

// NewServer wraps handler in an *http.Server with the same conservative
// header timeout the teacher's metrics server uses, to avoid slowloris
// connections pinning a goroutine indefinitely.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
