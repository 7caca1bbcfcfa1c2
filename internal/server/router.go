package server

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/verdantcare/verdant-backend/internal/http/handlers"
	httpMW "github.com/verdantcare/verdant-backend/internal/http/middleware"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	AuthMiddleware *httpMW.AuthMiddleware

	AuthHandler   *httpH.AuthHandler
	ChatHandler   *httpH.ChatHandler
	TriageHandler *httpH.TriageHandler
	PortalHandler *httpH.PortalHandler

	ServiceName string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.CORS())
	if cfg.AuthMiddleware != nil {
		r.Use(cfg.AuthMiddleware.Attach())
	}
	r.Use(httpMW.RequestLogger(cfg.Log))

	r.GET("/healthcheck", httpH.Healthcheck)

	api := r.Group("/api")
	{
		// Auth (public)
		if cfg.AuthHandler != nil {
			api.POST("/auth/signup", cfg.AuthHandler.Signup)
			api.POST("/auth/login", cfg.AuthHandler.Login)
		}

		// Kiosk triage: public by design, org-bound via kiosk token.
		if cfg.TriageHandler != nil {
			api.POST("/triage/turn", cfg.TriageHandler.Turn)
			api.POST("/triage/submit", cfg.TriageHandler.Submit)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.AuthHandler != nil {
			protected.POST("/auth/token/rotate", cfg.AuthHandler.RotateToken)
		}

		if cfg.ChatHandler != nil {
			protected.POST("/chat/send", cfg.ChatHandler.Send)
			protected.GET("/chat/sessions", cfg.ChatHandler.ListSessions)
			protected.POST("/chat/sessions", cfg.ChatHandler.CreateSession)
			protected.POST("/chat/clear", cfg.ChatHandler.ClearSession)
		}

		if cfg.PortalHandler != nil {
			protected.GET("/portal/encounters", cfg.PortalHandler.ListEncounters)
			protected.POST("/portal/encounters/:id/move", cfg.PortalHandler.MoveEncounter)
			protected.POST("/portal/kiosk-token", cfg.PortalHandler.MintKioskToken)
		}
	}

	return r
}
