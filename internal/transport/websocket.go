package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/onexdata/stock-portfolio-analysis/internal/analysis"
	"github.com/onexdata/stock-portfolio-analysis/internal/domain"
	"github.com/onexdata/stock-portfolio-analysis/internal/session"
)

// handleWebSocket accepts the connection, mints a session id, ensures
// the backing document, and hands the connection off to a fresh Session
// Controller for the lifetime of the socket, mirroring the teacher's
// MarketStatusWebSocket pattern of driving a read loop off a
// cancellable context.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}

	connCtx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sessionID := newSessionID()
	log := s.log.With().Str("session_id", sessionID).Logger()

	if err := s.repo.Ensure(connCtx, sessionID, domain.SessionDocument{
		SessionID:    sessionID,
		Holdings:     map[string]int64{},
		LastActivity: time.Now().UTC(),
	}); err != nil {
		log.Error().Err(err).Msg("ensure session failed")
		conn.Close(websocket.StatusInternalError, "session setup failed")
		return
	}

	emit := func(ctx context.Context, frame session.OutboundFrame) error {
		payload, err := json.Marshal(frame)
		if err != nil {
			return fmt.Errorf("transport: marshal frame: %w", err)
		}
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return conn.Write(writeCtx, websocket.MessageText, payload)
	}

	engine := analysis.New(s.repo, s.kernels, s.metrics)
	controller := session.NewController(sessionID, emit, engine, s.idle, func() {
		if idle, ok := s.registry.Get(sessionID); ok {
			idle.Close()
		}
		s.registry.Remove(sessionID)
		cancel()
	}, s.log)
	s.registry.Add(controller)
	defer func() {
		controller.Close()
		s.registry.Remove(sessionID)
	}()

	log.Info().Msg("session connected")

	for {
		_, data, err := conn.Read(connCtx)
		if err != nil {
			log.Debug().Err(err).Msg("session disconnected")
			return
		}
		controller.HandleMessage(connCtx, data)
	}
}

// newSessionID mints an id of the form s-{unix_seconds}-{4 hex chars},
// matching the external session-creation interface's id grammar.
func newSessionID() string {
	var b [2]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("s-%d-%s", time.Now().Unix(), hex.EncodeToString(b[:]))
}
