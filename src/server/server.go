package server

import (
	"net/http"
	"strings"

	"smartguard-relay/src/fanout"
	"smartguard-relay/src/interfaces"
	"smartguard-relay/src/logger"
	"smartguard-relay/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// -----------------------------------------------------------------------------
// RelayServer
// -----------------------------------------------------------------------------

// RelayServer is the downstream HTTP surface: the websocket feed plus the
// operator REST endpoints. It does not own a listener; the relay mounts
// Handler on its own http.Server.
type RelayServer struct {
	Config *models.MConfig
	Logger *logger.Logger
	engine *gin.Engine

	hub        *fanout.Hub
	thresholds interfaces.IThresholdStore
	status     interfaces.IRelayStatus
	gatherer   prometheus.Gatherer
	upgrader   websocket.Upgrader
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

// NewRelayServer builds the gin engine. gatherer may be nil, in which case
// /metrics is not mounted.
func NewRelayServer(
	cfg *models.MConfig,
	log *logger.Logger,
	hub *fanout.Hub,
	thresholds interfaces.IThresholdStore,
	status interfaces.IRelayStatus,
	gatherer prometheus.Gatherer,
) *RelayServer {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &RelayServer{
		Config:     cfg,
		Logger:     log,
		engine:     gin.New(),
		hub:        hub,
		thresholds: thresholds,
		status:     status,
		gatherer:   gatherer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	s.engine.Use(gin.Recovery(), s.requestLogger(), corsMiddleware)
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------

func corsMiddleware(c *gin.Context) {
	origin := c.Request.Header.Get("Origin")
	if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
	}
	c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
	c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
	c.Writer.Header().Set("Access-Control-Allow-Methods", "OPTIONS, GET, PUT")

	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}

	c.Next()
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *RelayServer) setupRoutes() {
	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)

	// REST API endpoints
	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)
	api.GET("/thresholds", s.getThresholds)
	api.PUT("/thresholds", s.putThresholds)
	api.GET("/sessions", s.getSessions)

	if s.gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
}

// -----------------------------------------------------------------------------

func (s *RelayServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *RelayServer) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.Health())
}

// -----------------------------------------------------------------------------

func (s *RelayServer) getSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sessions": s.status.Sessions(),
	})
}

// -----------------------------------------------------------------------------

func (s *RelayServer) getThresholds(c *gin.Context) {
	c.JSON(http.StatusOK, s.thresholds.Thresholds())
}

// -----------------------------------------------------------------------------

func (s *RelayServer) putThresholds(c *gin.Context) {
	update, err := decodeThresholdsUpdate(c.Request.Body)
	if err != nil {
		s.Logger.Warning("Rejected threshold update from %s: %v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}

	applied, err := s.thresholds.UpdateThresholds(update)
	if err != nil {
		s.Logger.Warning("Rejected threshold update from %s: %v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}

	s.Logger.Info("Thresholds updated by %s: %+v", c.ClientIP(), applied)
	c.JSON(http.StatusOK, applied)
}
