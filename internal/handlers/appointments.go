package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clinidesk/clinidesk/internal/models"
	"github.com/clinidesk/clinidesk/internal/services"
	"github.com/clinidesk/clinidesk/pkg/errors"
	"github.com/clinidesk/clinidesk/pkg/response"
)

// AppointmentHandler exposes the booking endpoints.
type AppointmentHandler struct {
	service *services.AppointmentService
}

func NewAppointmentHandler(service *services.AppointmentService) (*AppointmentHandler, error) {
	if service == nil {
		return nil, errors.New("HANDLER_CONFIG", "appointment service must be provided", http.StatusInternalServerError)
	}
	return &AppointmentHandler{service: service}, nil
}

type bookAppointmentRequest struct {
	PatientID   string    `json:"patient_id" validate:"required"`
	DoctorID    string    `json:"doctor_id" validate:"required"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Reason      string    `json:"reason" validate:"max=500"`
}

// Book schedules an appointment.
// POST /api/appointments
func (h *AppointmentHandler) Book(c *gin.Context) {
	userID, role, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req bookAppointmentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	// Patients can only book for themselves.
	if role == models.RolePatient && req.PatientID != userID {
		response.Error(c, errors.ErrForbidden)
		return
	}

	appointment, err := h.service.Book(c.Request.Context(), services.BookAppointmentInput{
		PatientID:   req.PatientID,
		DoctorID:    req.DoctorID,
		ScheduledAt: req.ScheduledAt,
		Reason:      req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, appointment)
}

// Cancel cancels an appointment the caller participates in.
// POST /api/appointments/:id/cancel
func (h *AppointmentHandler) Cancel(c *gin.Context) {
	userID, role, ok := currentIdentity(c)
	if !ok {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	appointment, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	if role != models.RoleAdmin && appointment.PatientID != userID && appointment.DoctorID != userID {
		response.Error(c, errors.ErrForbidden)
		return
	}

	appointment, err = h.service.Cancel(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, appointment)
}

// List returns the caller's appointments, soonest first.
// GET /api/appointments
func (h *AppointmentHandler) List(c *gin.Context) {
	userID, role, ok := currentIdentity(c)
	if !ok {
		return
	}

	appointments, err := h.service.ListForUser(c.Request.Context(), role, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, appointments)
}
