package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"stock-streamer/src/logger"
	"stock-streamer/src/models"
	"stock-streamer/src/session"
	"stock-streamer/src/snapshot"
)

// -----------------------------------------------------------------------------
// StreamServer
// -----------------------------------------------------------------------------

// StreamServer exposes the HTTP surface: health, manual refresh and the
// WebSocket subscription endpoint. The core components behind the
// routes are the hub, the session manager and the snapshot store.
type StreamServer struct {
	Config  *models.MConfig
	Logger  *logger.Logger
	Hub     *Hub
	Session *session.Manager
	Store   *snapshot.Store

	// Refresh forces a re-authentication and an out-of-band poll cycle.
	Refresh func()

	engine *gin.Engine
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewStreamServer(cfg *models.MConfig, hub *Hub, sess *session.Manager, store *snapshot.Store, log *logger.Logger) *StreamServer {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &StreamServer{
		Config:  cfg,
		Logger:  log,
		Hub:     hub,
		Session: sess,
		Store:   store,
		engine:  gin.Default(),
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// setup web routes
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *StreamServer) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.POST("/api/refresh", s.postRefresh)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *StreamServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	go s.Hub.Run()

	return s.engine.Run(addr)
}

// -----------------------------------------------------------------------------

func (s *StreamServer) Stop() error {
	s.Hub.Stop()
	return nil
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

// getHealth reports service status. Sustained upstream unavailability
// shows up here as tokenPresent=false and a stale lastFetchTime, never
// as a crash.
func (s *StreamServer) getHealth(c *gin.Context) {
	var lastFetch int64
	if t := s.Store.LastFetchTime(); !t.IsZero() {
		lastFetch = t.Unix()
	}

	c.JSON(200, gin.H{
		"status":        "ok",
		"tokenPresent":  s.Session.TokenPresent(),
		"lastFetchTime": lastFetch,
		"totalRecords":  s.Store.TotalRecords(),
		"connections":   s.Hub.Connections(),
	})
}

// -----------------------------------------------------------------------------

func (s *StreamServer) postRefresh(c *gin.Context) {
	if s.Refresh == nil {
		c.JSON(503, gin.H{"status": "refresh unavailable"})
		return
	}

	// Runs out-of-band; it serializes against the session manager's
	// single-flight guard and the scheduler's busy flag on its own.
	go s.Refresh()

	c.JSON(202, gin.H{"status": "refresh scheduled"})
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *StreamServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		hub:  s.Hub,
		conn: conn,
		// Buffered channel to prevent blocking the Hub loop
		send: make(chan interface{}, sendBufferSize),
	}
	client.id = s.Hub.Subscribe(client)

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}
