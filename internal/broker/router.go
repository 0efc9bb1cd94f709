package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/remoteview/broker/internal/broker/session"
	"github.com/remoteview/broker/pkg/wire"
)

// connState tracks one websocket peer across its envelopes. The session is
// nil until a register envelope is processed; before that the peer can only
// register or ping. direct writes straight to the socket and is only used
// while no write pump is running.
type connState struct {
	remoteAddr string
	sess       session.Connection
	direct     func(v any) error
}

// handleEnvelope classifies one inbound envelope and dispatches it. Any
// malformed or unknown envelope is discarded with a diagnostic; nothing a
// single peer sends can take the broker down.
func (s *Server) handleEnvelope(ctx context.Context, st *connState, raw []byte) {
	msgType := gjson.GetBytes(raw, "type").String()
	if msgType == "" {
		s.logger.Warn("discarding envelope without type",
			zap.String("remote_addr", st.remoteAddr))
		if s.metrics != nil {
			s.metrics.EnvelopeDone("none", "discarded", time.Now())
		}
		return
	}

	start := time.Now()
	scope := s.tracer.Start(ctx, "broker.envelope").
		WithAttrs(attribute.String("envelope.type", msgType))
	defer scope.End()
	ctx = scope.Ctx

	outcome := "ok"
	defer func() {
		if s.metrics != nil {
			s.metrics.EnvelopeDone(msgType, outcome, start)
		}
	}()

	switch msgType {
	case wire.TypeRegister:
		if !s.handleRegister(ctx, st, raw) {
			outcome = "discarded"
		}
		return
	case wire.TypePing:
		s.handlePing(ctx, st)
		return
	}

	// Everything below needs an attributed caller. A pre-register
	// connection has no session and cannot be targeted or attributed.
	if st.sess == nil {
		s.logger.Warn("discarding envelope from unregistered connection",
			zap.String("type", msgType),
			zap.String("remote_addr", st.remoteAddr))
		outcome = "discarded"
		return
	}

	switch msgType {
	case wire.TypeChatMessage:
		s.handleChatMessage(ctx, st, raw)
	case wire.TypeExecuteCommand:
		s.handleExecuteCommand(ctx, st, raw)
	case wire.TypeCommandResult:
		s.handleCommandResult(ctx, st, raw)
	case wire.TypeScreenshot, wire.TypeScreenshotChat:
		s.handleScreenshotRequest(ctx, st, raw, msgType)
	case wire.TypeScreenshotData:
		s.handleScreenshotData(ctx, st, raw)
	case wire.TypeScreenshotDataChat:
		s.handleScreenshotDataChat(ctx, st, raw)
	case wire.TypeDownloadFile:
		s.handleDownloadFile(ctx, st, raw)
	case wire.TypeDownloadResult:
		s.handleDownloadResult(ctx, st, raw)
	default:
		s.logger.Warn("discarding envelope of unknown type",
			zap.String("type", msgType),
			zap.String("remote_addr", st.remoteAddr))
		outcome = "discarded"
	}
}

// handleRegister creates the session and reports whether it succeeded.
func (s *Server) handleRegister(ctx context.Context, st *connState, raw []byte) bool {
	if st.sess != nil {
		s.logger.Warn("connection attempted to register twice",
			zap.String("id", st.sess.Meta().ID))
		return false
	}

	var req wire.RegisterRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Warn("discarding malformed register envelope",
			zap.String("remote_addr", st.remoteAddr),
			zap.Error(err))
		return false
	}

	meta := &session.Meta{
		Role:        wire.ParseRole(req.Role),
		Hostname:    req.Hostname,
		ConnectedAt: time.Now(),
	}
	conn, err := s.sessions.Register(ctx, meta)
	if err != nil {
		s.logger.Error("failed to register session",
			zap.String("hostname", meta.Hostname),
			zap.Error(err))
		return false
	}
	st.sess = conn
	if s.metrics != nil {
		s.metrics.SessionConnected(meta.Role.String())
	}

	s.logger.Info("session registered",
		zap.String("id", meta.ID),
		zap.String("role", meta.Role.String()),
		zap.String("hostname", meta.Hostname))

	if err := s.unicast(ctx, conn, wire.TypeRegistered, wire.Registered{
		ID:       meta.ID,
		Hostname: meta.Hostname,
	}); err != nil {
		s.logger.Warn("failed to confirm registration",
			zap.String("id", meta.ID),
			zap.Error(err))
	}

	// Controllers catch up on history before live traffic reaches them.
	if meta.Role == wire.RoleController {
		if err := s.unicast(ctx, conn, wire.TypeChatHistory, s.history.Snapshot()); err != nil {
			s.logger.Warn("failed to send chat history",
				zap.String("id", meta.ID),
				zap.Error(err))
		}
	}

	s.broadcastDirectory(ctx)
	return true
}

func (s *Server) handleChatMessage(ctx context.Context, st *connState, raw []byte) {
	var req wire.ChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Warn("discarding malformed chat envelope", zap.Error(err))
		return
	}

	username := req.Username
	if username == "" {
		username = st.sess.Meta().Hostname
	}

	ev := wire.ChatEvent{
		ID:        ulid.Make().String(),
		Username:  username,
		Message:   req.Message,
		Timestamp: time.Now().UTC(),
	}
	s.history.Append(ev)
	if s.metrics != nil {
		s.metrics.HistoryLen(s.history.Len())
	}

	s.broadcast(ctx, allSessions, scopeAll, wire.TypeChatMessage, ev)
}

func (s *Server) handleExecuteCommand(ctx context.Context, st *connState, raw []byte) {
	var req wire.ExecuteCommandRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Warn("discarding malformed execute_command envelope", zap.Error(err))
		return
	}
	cmdType := req.CommandType
	if cmdType == "" {
		cmdType = wire.CommandTypeCmd
	}

	target, err := s.sessions.Get(ctx, req.TargetID)
	if err == nil {
		err = s.unicast(ctx, target, wire.TypeExecuteCommand, wire.CommandDispatch{
			Command:     req.Command,
			CommandType: cmdType,
			RequestID:   req.RequestID,
		})
	}
	if err != nil {
		s.logger.Info("command target not available",
			zap.String("target_id", req.TargetID),
			zap.Error(err))
		if err := s.unicast(ctx, st.sess, wire.TypeCommandError, wire.CommandError{
			RequestID: req.RequestID,
			Error:     "client not available",
		}); err != nil {
			s.logger.Warn("failed to deliver command error", zap.Error(err))
		}
		return
	}

	s.logger.Info("command dispatched",
		zap.String("target_id", req.TargetID),
		zap.String("command_type", cmdType))
}

func (s *Server) handleCommandResult(ctx context.Context, st *connState, raw []byte) {
	var req wire.CommandResultRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Warn("discarding malformed command_result envelope", zap.Error(err))
		return
	}
	cmdType := req.CommandType
	if cmdType == "" {
		cmdType = wire.CommandTypeCmd
	}

	meta := st.sess.Meta()
	s.broadcast(ctx, controllersOnly, scopeControllers, wire.TypeCommandResult, wire.CommandResult{
		ClientID:    meta.ID,
		Hostname:    meta.Hostname,
		RequestID:   req.RequestID,
		Result:      req.Result,
		Success:     req.Success,
		CommandType: cmdType,
	})
}

// handleScreenshotRequest forwards a snapshot request to the target agent.
// Unlike the command and download flows, a missing target is dropped with a
// log line only; the caller gets no error envelope.
func (s *Server) handleScreenshotRequest(ctx context.Context, st *connState, raw []byte, msgType string) {
	var req wire.ScreenshotRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Warn("discarding malformed screenshot envelope", zap.Error(err))
		return
	}

	dispatchType := wire.TypeRequestScreenshot
	dispatch := wire.ScreenshotDispatch{RequestID: req.RequestID}
	if msgType == wire.TypeScreenshotChat {
		dispatchType = wire.TypeRequestScreenshotC
		dispatch.Username = req.Username
	}

	target, err := s.sessions.Get(ctx, req.TargetID)
	if err == nil {
		err = s.unicast(ctx, target, dispatchType, dispatch)
	}
	if err != nil {
		s.logger.Info("screenshot target not available",
			zap.String("target_id", req.TargetID),
			zap.Error(err))
	}
}

func (s *Server) handleScreenshotData(ctx context.Context, st *connState, raw []byte) {
	var req wire.ScreenshotDataRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Warn("discarding malformed screenshot_data envelope", zap.Error(err))
		return
	}

	meta := st.sess.Meta()
	if err := s.sessions.SetSnapshot(ctx, meta.ID, req.ImageData); err != nil {
		// the session raced a disconnect; the snapshot is simply dropped
		s.logger.Debug("snapshot for departed session dropped",
			zap.String("id", meta.ID))
	}

	s.broadcast(ctx, controllersOnly, scopeControllers, wire.TypeScreenshotData, wire.ScreenshotData{
		ClientID:  meta.ID,
		Hostname:  meta.Hostname,
		RequestID: req.RequestID,
		ImageData: req.ImageData,
	})
}

func (s *Server) handleScreenshotDataChat(ctx context.Context, st *connState, raw []byte) {
	var req wire.ScreenshotDataRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Warn("discarding malformed screenshot_data_chat envelope", zap.Error(err))
		return
	}

	meta := st.sess.Meta()
	s.broadcast(ctx, allSessions, scopeAll, wire.TypeScreenshotChat, wire.ScreenshotData{
		ClientID:  meta.ID,
		Hostname:  meta.Hostname,
		RequestID: req.RequestID,
		ImageData: req.ImageData,
	})
}

func (s *Server) handleDownloadFile(ctx context.Context, st *connState, raw []byte) {
	var req wire.DownloadFileRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Warn("discarding malformed download_file envelope", zap.Error(err))
		return
	}

	target, err := s.sessions.Get(ctx, req.TargetID)
	if err == nil {
		err = s.unicast(ctx, target, wire.TypeDownloadFile, wire.DownloadDispatch{
			URL:       req.URL,
			RequestID: req.RequestID,
		})
	}
	if err != nil {
		s.logger.Info("download target not available",
			zap.String("target_id", req.TargetID),
			zap.Error(err))
		if err := s.unicast(ctx, st.sess, wire.TypeDownloadResult, wire.DownloadResult{
			Success: false,
			Message: "client not available",
		}); err != nil {
			s.logger.Warn("failed to deliver download failure", zap.Error(err))
		}
		return
	}

	s.logger.Info("download dispatched",
		zap.String("target_id", req.TargetID),
		zap.String("url", req.URL))
}

func (s *Server) handleDownloadResult(ctx context.Context, st *connState, raw []byte) {
	var req wire.DownloadResultRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Warn("discarding malformed download_result envelope", zap.Error(err))
		return
	}

	meta := st.sess.Meta()
	s.broadcast(ctx, controllersOnly, scopeControllers, wire.TypeDownloadResult, wire.DownloadResult{
		ClientID: meta.ID,
		Hostname: meta.Hostname,
		Success:  req.Success,
		Message:  req.Message,
		FilePath: req.FilePath,
	})
}

// handlePing answers with a flat pong envelope. Works before registration;
// at that point the read loop is the only writer on the socket.
func (s *Server) handlePing(ctx context.Context, st *connState) {
	pong := wire.NewPong(time.Now())

	if st.sess == nil {
		if st.direct == nil {
			return
		}
		if err := st.direct(pong); err != nil {
			s.logger.Warn("failed to answer ping", zap.Error(err))
		}
		return
	}

	payload, err := json.Marshal(pong)
	if err != nil {
		s.logger.Error("failed to marshal pong", zap.Error(err))
		return
	}
	if err := st.sess.Send(ctx, &session.Message{Event: "message", Data: payload}); err != nil {
		s.logger.Warn("failed to answer ping",
			zap.String("id", st.sess.Meta().ID),
			zap.Error(err))
	}
}
