// Package server exposes the analyst pipeline over a local HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/iyulab/siem-analyst/internal/audit"
	"github.com/iyulab/siem-analyst/internal/detection"
	"github.com/iyulab/siem-analyst/internal/nlp"
	"github.com/iyulab/siem-analyst/internal/observability"
	"github.com/iyulab/siem-analyst/internal/pipeline"
	"github.com/iyulab/siem-analyst/internal/session"
	"github.com/iyulab/siem-analyst/internal/transcript"
)

// Server is a local HTTP server over the chat pipeline.
type Server struct {
	svc      *pipeline.Services
	sink     audit.Sink
	renderer *transcript.Renderer
	logger   *zap.Logger
	router   *gin.Engine

	mu          sync.RWMutex
	assessments map[string]detection.Assessment // last analyzed turn per session
	httpServer  *http.Server
}

// New creates a Server. A nil sink discards audit records.
func New(svc *pipeline.Services, sink audit.Sink, logger *zap.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("server: services are required")
	}
	if sink == nil {
		sink = audit.Nop{}
	}
	renderer, err := transcript.New()
	if err != nil {
		return nil, err
	}

	s := &Server{
		svc:         svc,
		sink:        sink,
		renderer:    renderer,
		logger:      observability.OrNop(logger).Named("server"),
		router:      gin.New(),
		assessments: make(map[string]detection.Assessment),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery(), s.instrument())

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(s.svc.Metrics.Handler()))

	api := s.router.Group("/api/v1")
	{
		chat := api.Group("/chat")
		chat.POST("/query", s.handleQuery)
		chat.GET("/history/:session", s.handleHistory)
		chat.POST("/context/:session", s.handleContext)
		chat.DELETE("/session/:session", s.handleClear)
		chat.GET("/suggestions/:session", s.handleSuggestions)
		chat.GET("/transcript/:session", s.handleTranscript)

		api.GET("/insights", s.handleInsights)
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening on addr (":0" picks a free port). Returns "host:port".
func (s *Server) Start(ctx context.Context, addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen: %w", err)
	}

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve", zap.Error(err))
		}
	}()

	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
	return ln.Addr().String(), nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		s.svc.Metrics.ObserveHTTP(route, c.Request.Method, strconv.Itoa(c.Writer.Status()), elapsed)
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", elapsed))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req pipeline.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}

	payload, err := s.svc.Handle(c.Request.Context(), req)
	s.writeAudit(c.Request.Context(), req, payload, err)
	if err != nil {
		s.fail(c, err, payload.SessionID)
		return
	}

	if payload.Analysis != nil {
		s.mu.Lock()
		s.assessments[payload.SessionID] = payload.Analysis.Assessment
		s.mu.Unlock()
	}
	c.JSON(http.StatusOK, payload)
}

// writeAudit is best-effort; a failing sink never fails the request.
func (s *Server) writeAudit(ctx context.Context, req pipeline.Request, p pipeline.Payload, handleErr error) {
	if errors.Is(handleErr, nlp.ErrInvalidInput) {
		return
	}
	rec, err := s.sink.Write(ctx, pipeline.AuditRecord(req, p, handleErr))
	if err != nil {
		s.logger.Warn("audit write failed", zap.String("session", p.SessionID), zap.Error(err))
		return
	}
	s.logger.Debug("audit record written", zap.String("id", rec.ID), zap.String("hash", rec.Hash))
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := session.DefaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	id := c.Param("session")
	msgs, err := s.svc.History(c.Request.Context(), id, limit)
	if err != nil {
		s.fail(c, err, id)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": id,
		"messages":   msgs,
		"count":      len(msgs),
	})
}

func (s *Server) handleContext(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}

	id := c.Param("session")
	if err := s.svc.PatchContext(c.Request.Context(), id, patch); err != nil {
		s.fail(c, err, id)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "session_id": id})
}

func (s *Server) handleClear(c *gin.Context) {
	id := c.Param("session")
	if err := s.svc.ClearSession(c.Request.Context(), id); err != nil {
		s.fail(c, err, id)
		return
	}
	s.mu.Lock()
	delete(s.assessments, id)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"status": "cleared", "session_id": id})
}

func (s *Server) handleSuggestions(c *gin.Context) {
	id := c.Param("session")
	suggestions, err := s.svc.FollowUps(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err, id)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "suggestions": suggestions})
}

func (s *Server) handleTranscript(c *gin.Context) {
	id := c.Param("session")
	msgs, err := s.svc.Sessions.GetHistory(c.Request.Context(), id, 0)
	if err != nil {
		s.fail(c, err, id)
		return
	}

	data := transcript.Data{SessionID: id, Messages: msgs}
	s.mu.RLock()
	if a, ok := s.assessments[id]; ok {
		data.Assessment = &a
	}
	s.mu.RUnlock()

	html, err := s.renderer.RenderString(data)
	if err != nil {
		s.logger.Error("render transcript", zap.String("session", id), zap.Error(err))
		c.String(http.StatusInternalServerError, "render failed")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func (s *Server) handleInsights(c *gin.Context) {
	report, err := s.svc.Insights(c.Request.Context(), c.DefaultQuery("time_range", "24h"))
	if err != nil {
		s.fail(c, err, "")
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) fail(c *gin.Context, err error, sessionID string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	body := gin.H{"error": err.Error()}
	if sessionID != "" {
		body["session_id"] = sessionID
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, nlp.ErrInvalidInput),
		errors.Is(err, session.ErrInvalidSession),
		errors.Is(err, session.ErrInvalidPatch):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, pipeline.ErrSearchFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
