// Package ingest implements the collector side of the pipeline: an HTTP
// API that receives {events, session} batches from the tracking SDK,
// stamps them with server receipt context, and stores them in a warehouse
// backing the stats and report endpoints. Batches may arrive out of order
// and may repeat events a client re-sent after a failed delivery, so the
// warehouse dedups by event id.
package ingest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"streamview/telemetry/internal/logger"
	"streamview/telemetry/internal/services/reportrender"
	"streamview/telemetry/internal/shared"
)

const (
	insertTimeout = 15 * time.Second
	queryTimeout  = 10 * time.Second
)

// Config controls the HTTP surface of the collector.
type Config struct {
	// APIKey, when set, requires POST /api/v1/track callers to present it
	// as a bearer token. Read endpoints stay open.
	APIKey string

	// AllowedOrigin is echoed in CORS headers. Empty means "*", which is
	// the right default for an SDK posting from arbitrary pages.
	AllowedOrigin string
}

// Server routes collector traffic to a Warehouse.
type Server struct {
	config    Config
	warehouse Warehouse
	logger    *logger.Logger
	now       func() time.Time
	engine    *gin.Engine
}

// NewServer wires the routes. Pass a nil logger to get the default one.
func NewServer(config Config, warehouse Warehouse, log *logger.Logger) *Server {
	if log == nil {
		log = logger.New("ingest")
	}

	s := &Server{
		config:    config,
		warehouse: warehouse,
		logger:    log,
		now:       time.Now,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), corsMiddleware(config.AllowedOrigin))
	engine.GET("/healthz", s.health)

	api := engine.Group("/api/v1")
	{
		track := []gin.HandlerFunc{}
		if config.APIKey != "" {
			track = append(track, requireKey(config.APIKey))
		}
		track = append(track, s.track)
		api.POST("/track", track...)
		api.GET("/stats", s.stats)
		api.GET("/sessions/:id/report", s.sessionReport)
	}

	s.engine = engine
	return s
}

// Handler exposes the engine for http.Server and tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) track(c *gin.Context) {
	var payload shared.BatchPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		s.logger.Debugf("rejecting track payload: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	receivedAt := s.now().UnixMilli()
	remoteAddr := c.ClientIP()

	stored := make([]StoredEvent, 0, len(payload.Events))
	for _, event := range payload.Events {
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		if event.SessionID == "" {
			event.SessionID = payload.Session.ID
		}
		stored = append(stored, StoredEvent{
			Event:      event,
			ReceivedAt: receivedAt,
			RemoteAddr: remoteAddr,
		})
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), insertTimeout)
	defer cancel()

	inserted, err := s.warehouse.InsertEvents(ctx, payload.Session, stored)
	if err != nil {
		s.logger.Errorf("insert events: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record events"})
		return
	}

	s.logger.Debugf("stored %d of %d events from %s", inserted, len(stored), remoteAddr)
	c.JSON(http.StatusOK, gin.H{
		"accepted":   inserted,
		"duplicates": len(stored) - inserted,
	})
}

func (s *Server) stats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	report, err := s.warehouse.Stats(ctx)
	if err != nil {
		s.logger.Errorf("aggregate stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate statistics"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) sessionReport(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	sessionID := c.Param("id")
	session, events, err := s.warehouse.SessionEvents(ctx, sessionID)
	if errors.Is(err, ErrSessionUnknown) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}
	if err != nil {
		s.logger.Errorf("load session %s: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return
	}

	html, err := reportrender.RenderSession(session, events)
	if err != nil {
		s.logger.Errorf("render report for session %s: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render report"})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

// requireKey guards an endpoint with the static bearer key the SDK's
// collector client sends.
func requireKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format, expected 'Bearer {token}'"})
			return
		}
		if strings.TrimPrefix(header, "Bearer ") != key {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

func corsMiddleware(origin string) gin.HandlerFunc {
	if origin == "" {
		origin = "*"
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		if origin != "*" {
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
