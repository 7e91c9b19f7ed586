package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/deepmodeling/coincell-station/internal/api/websocket"
	"github.com/deepmodeling/coincell-station/internal/auth"
	"github.com/deepmodeling/coincell-station/internal/config"
	"github.com/deepmodeling/coincell-station/internal/interfaces"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.AuthService
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.AuthService) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.New(),
		lm:          lm,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Inject AuthService into Gin context
	s.router.Use(func(c *gin.Context) {
		c.Set("authService", s.authService)
		c.Next()
	})

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// ==================== AUTH ENDPOINTS (PUBLIC) ====================
		authPublic := v1.Group("/auth")
		{
			authPublic.POST("/login", s.login)
			authPublic.POST("/refresh", s.refreshToken)
		}

		// ==================== AUTH ENDPOINTS (AUTHENTICATED) ====================
		authProtected := v1.Group("/auth")
		authProtected.Use(s.authService.AuthMiddleware())
		{
			authProtected.POST("/logout", s.logout)
			authProtected.GET("/me", s.getCurrentUser)
		}

		// ==================== USER MANAGEMENT (ADMIN ONLY) ====================
		users := v1.Group("/users")
		users.Use(s.authService.AuthMiddleware())
		users.Use(auth.RequirePermission(auth.PermAdmin))
		{
			users.POST("", s.createUser)
			users.GET("", s.listUsers)
			users.PATCH("/:id", s.updateUser)
			users.DELETE("/:id", s.deleteUser)
		}

		// ==================== SYSTEM ====================
		system := v1.Group("/system")
		system.Use(s.authService.AuthMiddleware())
		{
			system.GET("/status", auth.RequirePermission(auth.PermOperator), s.getSystemStatus)
			system.POST("/shutdown", auth.RequirePermission(auth.PermAdmin), s.shutdown)
		}

		// ==================== STATION CONTROL ====================
		st := v1.Group("/station")
		st.Use(s.authService.AuthMiddleware())
		{
			// Read operations: Operator+
			st.GET("/status", auth.RequirePermission(auth.PermOperator), s.getStationStatus)
			st.GET("/environment", auth.RequirePermission(auth.PermOperator), s.getEnvironment)
			st.GET("/positions", auth.RequirePermission(auth.PermOperator), s.getPositions)
			st.GET("/checkpoint", auth.RequirePermission(auth.PermOperator), s.getCheckpoint)

			// Commands: Operator+ can run and stop batches
			st.POST("/command", auth.RequirePermission(auth.PermOperator), s.executeCommand)
			st.POST("/batch", auth.RequirePermission(auth.PermOperator), s.startBatch)

			// Discarding a resumable batch is a technician decision
			st.DELETE("/checkpoint", auth.RequirePermission(auth.PermTechnician), s.deleteCheckpoint)
		}

		// ==================== PLC NODES ====================
		nodes := v1.Group("/nodes")
		nodes.Use(s.authService.AuthMiddleware())
		{
			// Read operations: Operator+
			nodes.GET("", auth.RequirePermission(auth.PermOperator), s.listNodes)
			nodes.POST("/:name/read", auth.RequirePermission(auth.PermOperator), s.readNode)

			// Raw writes bypass the protocol: Technician+
			nodes.POST("/:name/write", auth.RequirePermission(auth.PermTechnician), s.writeNode)
		}

		// ==================== RUN HISTORY (OPERATOR+) ====================
		runs := v1.Group("/runs")
		runs.Use(s.authService.AuthMiddleware())
		runs.Use(auth.RequirePermission(auth.PermOperator))
		{
			runs.GET("", s.listRuns)
			runs.GET("/:id", s.getRun)
			runs.GET("/:id/units", s.getRunUnits)
		}

		// ==================== WEBSOCKET (PUBLIC - Auth via first message) ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", auth.RequirePermission(auth.PermOperator), s.wsStatus)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
