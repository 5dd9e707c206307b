// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"dataexplorer-comm/internal/config"
	"dataexplorer-comm/internal/handler"
	"dataexplorer-comm/internal/middleware"
	"dataexplorer-comm/internal/repository"
	"dataexplorer-comm/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config       *config.Config
	logger       *zap.Logger
	db           handler.DatabaseChecker
	ports        handler.PortController
	acquisition  handler.AcquisitionController
	sessionRepo  repository.SessionRepository
	telegramRepo repository.TelegramRepository
	wsHandler    *handler.WebSocketHandler
}

// NewRouter creates a new router instance. db and the repositories are nil
// when recording is disabled.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db handler.DatabaseChecker,
	ports handler.PortController,
	acquisition handler.AcquisitionController,
	sessionRepo repository.SessionRepository,
	telegramRepo repository.TelegramRepository,
	wsHandler *handler.WebSocketHandler,
) *Router {
	return &Router{
		config:       config,
		logger:       logger,
		db:           db,
		ports:        ports,
		acquisition:  acquisition,
		sessionRepo:  sessionRepo,
		telegramRepo: telegramRepo,
		wsHandler:    wsHandler,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RequestIDMiddleware(r.logger))
	router.Use(middleware.RecoveryMiddleware(r.logger))

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.db, r.ports, r.config, r.logger)
	portHandler := handler.NewPortHandler(r.ports, r.logger)
	acquisitionHandler := handler.NewAcquisitionHandler(r.acquisition, r.logger)
	telegramHandler := handler.NewTelegramHandler(r.sessionRepo, r.telegramRepo, r.logger)

	healthHandler.RegisterRoutes(router.Group(""))

	apiV1 := router.Group("/api/v1")
	portHandler.RegisterRoutes(apiV1)
	acquisitionHandler.RegisterRoutes(apiV1)
	telegramHandler.RegisterRoutes(apiV1)

	if r.wsHandler != nil {
		r.wsHandler.RegisterRoutes(router.Group("/ws"))
		apiV1.GET("/ws/stats", func(c *gin.Context) {
			utils.SuccessResponse(c, http.StatusOK, "WebSocket statistics", r.wsHandler.GetConnectionStats())
		})
	}

	r.addDocumentationRoutes(router)

	r.logger.Info("All routes configured successfully")
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
