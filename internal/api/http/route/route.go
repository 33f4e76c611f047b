package route

import (
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"counters-back/internal/api/http/handler"
	"counters-back/internal/api/http/middleware"
	"counters-back/internal/config"
)

func SetupRouter(
	log *zap.Logger,
	cfg *config.Config,
	healthHdl HealthHandler,
	counterHdl CounterHandler,
	eventHdl EventHandler,
	messageHdl MessageHandler,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = io.Discard

	router := gin.Default()

	// middleware
	router.Use(middleware.Logger(log))
	router.Use(middleware.RequestTimeout(cfg.HTTPServer.Timeout.Request))
	router.Use(middleware.CORS(cfg.CORS))

	router.HandleMethodNotAllowed = true
	router.NoMethod(handler.NoMethod)
	router.NoRoute(handler.NoRoute)

	basePath := router.Group(cfg.BasePath)

	healthPath := basePath.Group("/health")
	RegisterHealth(healthPath, healthHdl)

	countersPath := basePath.Group("/counters")
	RegisterCounters(countersPath, counterHdl)

	eventsPath := basePath.Group("/internal/events")
	RegisterEvents(eventsPath, eventHdl)

	messagesPath := basePath.Group("/messages")
	RegisterMessages(messagesPath, messageHdl)

	return router
}
