package api

import (
	"github.com/gin-gonic/gin"

	"github.com/clinidesk/clinidesk/internal/handlers"
)

func registerAppointmentRoutes(api *gin.RouterGroup, deps Deps) error {
	handler, err := handlers.NewAppointmentHandler(deps.Appointments)
	if err != nil {
		return err
	}

	group := api.Group("/appointments")
	{
		group.POST("", handler.Book)
		group.POST("/:id/cancel", handler.Cancel)
		group.GET("", handler.List)
	}

	return nil
}
