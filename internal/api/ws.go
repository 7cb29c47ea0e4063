package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/urbanpack/offsync/internal/clients"
	"github.com/urbanpack/offsync/internal/logger"
	"github.com/urbanpack/offsync/internal/syncer"
)

const (
	wsReadLimit = 64 * 1024
	wsPongWait  = 60 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Browsers set Origin on WebSocket upgrade; non-browser clients
		// (curl, wscat) may omit it and are allowed through for local
		// tooling. A present Origin must match the request host.
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// handleWS upgrades a page connection, registers it with the hub for
// broadcasts, and serves its sync messages. Each message is handled in its
// own goroutine so syncs for different entities can interleave; every
// message still gets exactly one reply on this connection.
func (s *Server) handleWS(c echo.Context) error {
	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", logger.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	client := clients.NewWSClient(conn)
	s.hub.Register(client)
	defer s.hub.Unregister(client.ID())

	// A posted sync runs to completion even if the page disconnects
	// mid-flight; there is no cancellation channel in the protocol.
	ctx := context.WithoutCancel(c.Request().Context())
	for {
		var msg syncer.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("page connection closed unexpectedly",
					logger.String("client_id", client.ID()),
					logger.Error(err))
			}
			return nil
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		go func(msg syncer.Message) {
			outcome := s.orch.Handle(ctx, msg)
			if err := client.Send(outcome); err != nil {
				s.log.Warn("failed to deliver sync outcome",
					logger.String("client_id", client.ID()),
					logger.Error(err))
			}
		}(msg)
	}
}
