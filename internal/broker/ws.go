package broker

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/remoteview/broker/internal/broker/session"
	"github.com/remoteview/broker/pkg/wire"
)

// handleWS upgrades the connection and serves it until the peer goes away.
func (s *Server) handleWS(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade websocket connection",
			zap.String("remote_addr", c.Request.RemoteAddr),
			zap.Error(err))
		return
	}

	s.logger.Info("websocket connection established",
		zap.String("remote_addr", c.Request.RemoteAddr))

	s.serveConn(c.Request.Context(), ws, c.Request.RemoteAddr)
}

// serveConn runs the read loop for one peer. Envelopes are processed
// strictly in arrival order; the write pump starts once the peer has
// registered, so the read loop is the socket's only writer before that.
func (s *Server) serveConn(ctx context.Context, ws *websocket.Conn, remoteAddr string) {
	st := &connState{
		remoteAddr: remoteAddr,
		direct:     ws.WriteJSON,
	}
	pumpStarted := false

	defer func() {
		s.closeConn(ctx, st, ws, pumpStarted)
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				s.logger.Error("websocket read error",
					zap.String("remote_addr", remoteAddr),
					zap.Error(err))
			}
			return
		}

		s.handleEnvelope(ctx, st, raw)

		if st.sess != nil && !pumpStarted {
			pumpStarted = true
			go s.writePump(ws, st.sess)
		}
	}
}

// closeConn tears down one peer: the session leaves the registry, the
// remaining sessions learn about the departure, and controllers get a fresh
// agent directory.
func (s *Server) closeConn(ctx context.Context, st *connState, ws *websocket.Conn, pumpStarted bool) {
	if st.sess == nil {
		_ = ws.Close()
		s.logger.Info("unregistered connection closed",
			zap.String("remote_addr", st.remoteAddr))
		return
	}

	meta := st.sess.Meta()
	if err := s.sessions.Unregister(ctx, meta.ID); err != nil {
		// already removed, e.g. by shutdown
		s.logger.Debug("session already unregistered",
			zap.String("id", meta.ID))
	} else if s.metrics != nil {
		s.metrics.SessionDisconnected(meta.Role.String())
	}
	if !pumpStarted {
		_ = ws.Close()
	}

	s.logger.Info("session disconnected",
		zap.String("id", meta.ID),
		zap.String("role", meta.Role.String()),
		zap.String("hostname", meta.Hostname))

	s.broadcast(ctx, allSessions, scopeAll, wire.TypeClientDisconnected, wire.ClientDisconnected{
		ID:       meta.ID,
		Hostname: meta.Hostname,
	})
	s.broadcastDirectory(ctx)
}

// writePump drains the session's event queue onto the socket. It is the
// socket's sole writer once running, and it closes the socket when the
// queue closes or the broker shuts down.
func (s *Server) writePump(ws *websocket.Conn, conn session.Connection) {
	defer func() {
		_ = ws.Close()
	}()

	for {
		select {
		case msg, ok := <-conn.EventQueue():
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
				s.logger.Warn("websocket write failed",
					zap.String("id", conn.Meta().ID),
					zap.Error(err))
				return
			}
		case <-s.shutdownCh:
			return
		}
	}
}
