package api

import (
	"github.com/gin-gonic/gin"

	"github.com/clinidesk/clinidesk/internal/handlers"
	"github.com/clinidesk/clinidesk/internal/middleware"
)

func registerAuthRoutes(r *gin.Engine, deps Deps) error {
	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT, deps.Directory)

	r.POST("/api/auth/login", authHandler.Login)
	r.GET("/api/auth/me", middleware.Auth(deps.JWT), authHandler.Me)
	return nil
}
