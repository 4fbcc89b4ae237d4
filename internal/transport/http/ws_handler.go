package http

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pairwave/pairwave-server/internal/auth"
	"github.com/pairwave/pairwave-server/internal/core"
	"github.com/pairwave/pairwave-server/internal/presence"
	"github.com/pairwave/pairwave-server/internal/pubsub"
)

// WSHandler upgrades HTTP connections and bridges them to relay sessions.
type WSHandler struct {
	bus       pubsub.Bus
	presence  presence.Store
	router    *core.Router
	jwtCfg    *auth.JWTConfig
	heartbeat time.Duration
	log       *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(bus pubsub.Bus, pres presence.Store, router *core.Router, jwtCfg *auth.JWTConfig, heartbeat time.Duration, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		bus:       bus,
		presence:  pres,
		router:    router,
		jwtCfg:    jwtCfg,
		heartbeat: heartbeat,
		log:       logger,
	}
}

// Handle serves one websocket connection. The room identifier comes from the
// connection path; the identity from the request's token, falling back to the
// anonymous sentinel.
func (h *WSHandler) Handle(c *gin.Context) {
	room := c.Param("room")
	identity := identityFromRequest(h.jwtCfg, c.Request)

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	session := core.NewSession(uuid.NewString(), identity, room, h.bus, h.presence, h.heartbeat, h.log)
	defer session.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	if err := session.Start(ctx); err != nil {
		h.log.Warn().Err(err).Str("identity", identity).Str("room", room).Msg("session start failed")
		conn.Close(websocket.StatusInternalError, "session start failed")
		return
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, session)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	// Teardown before the close frame so presence never outlives the socket.
	session.Close()

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("session_id", session.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// readLoop processes inbound frames strictly sequentially: the next frame is
// not read until the router has fully handled the previous one.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		h.router.Handle(ctx, session, data)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	for {
		select {
		case payload := <-session.Outbound():
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
