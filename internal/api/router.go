package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/clinidesk/clinidesk/internal/auth"
	"github.com/clinidesk/clinidesk/internal/handlers"
	"github.com/clinidesk/clinidesk/internal/middleware"
	"github.com/clinidesk/clinidesk/internal/notifications"
	"github.com/clinidesk/clinidesk/internal/realtime"
	"github.com/clinidesk/clinidesk/internal/services"
)

// Deps bundles the constructed services the router wires into handlers.
type Deps struct {
	DB            *gorm.DB
	JWT           *iauth.JWTService
	Hub           *realtime.Hub
	Directory     *services.DirectoryService
	Notifications *notifications.Service
	Appointments  *services.AppointmentService

	// RateLimit caps requests per client IP and path per minute. Zero
	// disables limiting.
	RateLimit int
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("realtime hub must be provided")
	}
	if deps.Directory == nil {
		return nil, fmt.Errorf("directory service must be provided")
	}
	if deps.Notifications == nil {
		return nil, fmt.Errorf("notification service must be provided")
	}
	if deps.Appointments == nil {
		return nil, fmt.Errorf("appointment service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	if deps.RateLimit > 0 {
		r.Use(middleware.RateLimit(deps.RateLimit, time.Minute))
	}

	// Health endpoint (public)
	r.GET("/health", handlers.Health(deps.DB))

	if err := registerAuthRoutes(r, deps); err != nil {
		return nil, err
	}

	// Realtime stream carries its credential in the query string, so it sits
	// outside the Auth middleware; the hub verifies during its handshake.
	realtimeHandler := handlers.NewRealtimeHandler(deps.Hub)
	r.GET("/api/realtime", realtimeHandler.Stream)

	api := r.Group("/api", middleware.Auth(deps.JWT))

	if err := registerNotificationRoutes(api, deps); err != nil {
		return nil, err
	}
	if err := registerAppointmentRoutes(api, deps); err != nil {
		return nil, err
	}

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
