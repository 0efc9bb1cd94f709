// Package broker implements the session broker core: the connection
// registry, envelope routing, fan-out broadcasting, and the bounded chat
// history, plus the thin websocket and HTTP surfaces around them.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/remoteview/broker/internal/broker/history"
	"github.com/remoteview/broker/internal/broker/session"
	"github.com/remoteview/broker/pkg/metrics"
	"github.com/remoteview/broker/pkg/trace"
)

type (
	// Server is the session broker. All shared state (registry, history)
	// is owned here and mutated only through envelope handling.
	Server struct {
		logger *zap.Logger
		port   int
		router *gin.Engine
		// sessions is the single source of truth for connected peers
		sessions session.Store
		// history is the bounded chat event buffer
		history *history.Buffer
		metrics *metrics.Metrics
		tracer  *trace.Builder

		upgrader  websocket.Upgrader
		startedAt time.Time

		// shutdownCh is closed once to release all connection pumps
		shutdownCh   chan struct{}
		shutdownOnce sync.Once
		httpSrv      *http.Server
	}
)

// NewServer creates a new broker server listening on the given port.
func NewServer(logger *zap.Logger, port int, sessions session.Store, hist *history.Buffer, m *metrics.Metrics) *Server {
	s := &Server{
		logger:   logger,
		port:     port,
		router:   gin.New(),
		sessions: sessions,
		history:  hist,
		metrics:  m,
		tracer:   trace.Tracer("broker"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// controllers connect from arbitrary browser origins
				return true
			},
			HandshakeTimeout: 10 * time.Second,
		},
		startedAt:  time.Now(),
		shutdownCh: make(chan struct{}),
	}

	s.router.Use(s.loggerMiddleware())
	s.router.Use(s.recoveryMiddleware())
	s.router.Use(otelgin.Middleware("broker"))
	if m != nil {
		s.router.Use(m.Middleware())
	}
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health_check", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Health check passed.",
		})
	})

	s.router.GET("/", s.handleIndex)
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/ws", s.handleWS)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start runs the HTTP listener until Shutdown is called.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}
	s.logger.Info("broker listening",
		zap.Int("port", s.port))

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes every open session and stops the listener. In-flight
// broadcasts are not drained.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
	})

	conns, err := s.sessions.List(ctx)
	if err == nil {
		for _, conn := range conns {
			meta := conn.Meta()
			if err := s.sessions.Unregister(ctx, meta.ID); err != nil {
				s.logger.Debug("session already gone during shutdown",
					zap.String("id", meta.ID))
				continue
			}
			if s.metrics != nil {
				s.metrics.SessionDisconnected(meta.Role.String())
			}
		}
	}

	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
