package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/clinidesk/clinidesk/internal/models"
)

func TestBookAppointmentEndpoint(t *testing.T) {
	env := newTestEnv(t)
	patient := env.createUser(t, "pat@clinic.test", "pass-word", models.RolePatient)
	doctor := env.createUser(t, "doc@clinic.test", "pass-word", models.RoleDoctor)

	w := env.do(t, http.MethodPost, "/api/appointments", env.tokenFor(t, patient), gin.H{
		"patient_id":   patient.ID,
		"doctor_id":    doctor.ID,
		"scheduled_at": time.Now().Add(72 * time.Hour).Format(time.RFC3339),
		"reason":       "follow-up",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	appointment := decodeData[models.Appointment](t, w)
	require.Equal(t, models.AppointmentScheduled, appointment.Status)

	// Booking generated inbox entries for both parties.
	var count int64
	require.NoError(t, env.db.Model(&models.Notification{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
}

func TestPatientCannotBookForOthers(t *testing.T) {
	env := newTestEnv(t)
	patient := env.createUser(t, "pat@clinic.test", "pass-word", models.RolePatient)
	other := env.createUser(t, "other@clinic.test", "pass-word", models.RolePatient)
	doctor := env.createUser(t, "doc@clinic.test", "pass-word", models.RoleDoctor)

	w := env.do(t, http.MethodPost, "/api/appointments", env.tokenFor(t, patient), gin.H{
		"patient_id":   other.ID,
		"doctor_id":    doctor.ID,
		"scheduled_at": time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestCancelAppointmentEndpoint(t *testing.T) {
	env := newTestEnv(t)
	patient := env.createUser(t, "pat@clinic.test", "pass-word", models.RolePatient)
	stranger := env.createUser(t, "stranger@clinic.test", "pass-word", models.RolePatient)
	doctor := env.createUser(t, "doc@clinic.test", "pass-word", models.RoleDoctor)

	w := env.do(t, http.MethodPost, "/api/appointments", env.tokenFor(t, patient), gin.H{
		"patient_id":   patient.ID,
		"doctor_id":    doctor.ID,
		"scheduled_at": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	appointment := decodeData[models.Appointment](t, w)

	// A non-participant cannot cancel.
	w = env.do(t, http.MethodPost, "/api/appointments/"+appointment.ID+"/cancel", env.tokenFor(t, stranger), nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/api/appointments/"+appointment.ID+"/cancel", env.tokenFor(t, doctor), nil)
	require.Equal(t, http.StatusOK, w.Code)
	cancelled := decodeData[models.Appointment](t, w)
	require.Equal(t, models.AppointmentCancelled, cancelled.Status)
}

func TestListAppointmentsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	patient := env.createUser(t, "pat@clinic.test", "pass-word", models.RolePatient)
	doctor := env.createUser(t, "doc@clinic.test", "pass-word", models.RoleDoctor)

	w := env.do(t, http.MethodPost, "/api/appointments", env.tokenFor(t, patient), gin.H{
		"patient_id":   patient.ID,
		"doctor_id":    doctor.ID,
		"scheduled_at": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet, "/api/appointments", env.tokenFor(t, patient), nil)
	require.Equal(t, http.StatusOK, w.Code)
	appointments := decodeData[[]models.Appointment](t, w)
	require.Len(t, appointments, 1)
}
