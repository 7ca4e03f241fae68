package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clinidesk/clinidesk/internal/models"
	"github.com/clinidesk/clinidesk/internal/notifications"
	"github.com/clinidesk/clinidesk/internal/realtime"
	apperrors "github.com/clinidesk/clinidesk/pkg/errors"
	"github.com/clinidesk/clinidesk/pkg/logger"
)

// BookAppointmentInput describes a booking request.
type BookAppointmentInput struct {
	PatientID   string
	DoctorID    string
	ScheduledAt time.Time
	Reason      string
}

// AppointmentService manages the booking lifecycle. It is a calling
// collaborator of the notification core: bookings and cancellations create
// notifications, and a notification failure never fails the appointment.
type AppointmentService struct {
	db        *gorm.DB
	directory *DirectoryService
	notifier  *notifications.Service
	log       *zap.Logger
}

// NewAppointmentService constructs an AppointmentService. The notifier may be
// nil, disabling side-effect notifications.
func NewAppointmentService(db *gorm.DB, directory *DirectoryService, notifier *notifications.Service) (*AppointmentService, error) {
	if db == nil {
		return nil, errors.New("appointment service: db is required")
	}
	if directory == nil {
		return nil, errors.New("appointment service: directory is required")
	}
	return &AppointmentService{
		db:        db,
		directory: directory,
		notifier:  notifier,
		log:       logger.WithModule("appointments"),
	}, nil
}

// Book schedules an appointment and notifies both parties.
func (s *AppointmentService) Book(ctx context.Context, input BookAppointmentInput) (*models.Appointment, error) {
	patient, doctor, err := s.resolveParties(ctx, input.PatientID, input.DoctorID)
	if err != nil {
		return nil, err
	}

	if input.ScheduledAt.IsZero() || input.ScheduledAt.Before(time.Now()) {
		return nil, apperrors.NewValidation("appointment must be scheduled in the future")
	}

	appointment := models.Appointment{
		PatientID:   patient.ID,
		DoctorID:    doctor.ID,
		ScheduledAt: input.ScheduledAt.UTC(),
		Reason:      input.Reason,
		Status:      models.AppointmentScheduled,
	}
	if err := s.db.WithContext(ctx).Create(&appointment).Error; err != nil {
		return nil, fmt.Errorf("appointment service: create: %w", err)
	}

	s.notifyBooked(ctx, &appointment, patient, doctor)
	return &appointment, nil
}

// Cancel marks a scheduled appointment cancelled and notifies both parties.
func (s *AppointmentService) Cancel(ctx context.Context, id string) (*models.Appointment, error) {
	appointment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appointment.Status == models.AppointmentCancelled {
		return appointment, nil
	}

	if err := s.db.WithContext(ctx).Model(appointment).
		Update("status", models.AppointmentCancelled).Error; err != nil {
		return nil, fmt.Errorf("appointment service: cancel: %w", err)
	}
	appointment.Status = models.AppointmentCancelled

	patient, doctor, err := s.resolveParties(ctx, appointment.PatientID, appointment.DoctorID)
	if err == nil {
		s.notifyCancelled(ctx, appointment, patient, doctor)
	} else {
		s.log.Warn("skipping cancellation notices", zap.String("appointment_id", id), zap.Error(err))
	}

	return appointment, nil
}

// Get loads an appointment by id.
func (s *AppointmentService) Get(ctx context.Context, id string) (*models.Appointment, error) {
	var appointment models.Appointment
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&appointment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("appointment service: load: %w", err)
	}
	return &appointment, nil
}

// ListForUser lists appointments where the user participates, soonest first.
func (s *AppointmentService) ListForUser(ctx context.Context, role, userID string) ([]models.Appointment, error) {
	query := s.db.WithContext(ctx).Model(&models.Appointment{})
	switch role {
	case models.RolePatient:
		query = query.Where("patient_id = ?", userID)
	case models.RoleDoctor:
		query = query.Where("doctor_id = ?", userID)
	case models.RoleAdmin:
		// admins see everything
	default:
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown role %q", role))
	}

	var appointments []models.Appointment
	if err := query.Order("scheduled_at ASC").Find(&appointments).Error; err != nil {
		return nil, fmt.Errorf("appointment service: list: %w", err)
	}
	return appointments, nil
}

// DueForReminder returns scheduled appointments starting within the window
// that have not yet had a reminder sent.
func (s *AppointmentService) DueForReminder(ctx context.Context, window time.Duration) ([]models.Appointment, error) {
	now := time.Now().UTC()
	var appointments []models.Appointment
	if err := s.db.WithContext(ctx).
		Where("status = ? AND reminder_sent_at IS NULL AND scheduled_at BETWEEN ? AND ?",
			models.AppointmentScheduled, now, now.Add(window)).
		Order("scheduled_at ASC").
		Find(&appointments).Error; err != nil {
		return nil, fmt.Errorf("appointment service: reminders due: %w", err)
	}
	return appointments, nil
}

// SendReminder creates a reminder notification for the patient and stamps the
// appointment so the reminder fires once.
func (s *AppointmentService) SendReminder(ctx context.Context, appointment *models.Appointment) error {
	if s.notifier == nil {
		return nil
	}

	doctor, err := s.directory.Lookup(ctx, appointment.DoctorID)
	if err != nil {
		return fmt.Errorf("appointment service: resolve doctor: %w", err)
	}

	if _, err := s.notifier.NotifyAppointmentReminder(ctx, appointment.PatientID, doctor.FullName(), appointment.ScheduledAt); err != nil {
		return fmt.Errorf("appointment service: reminder notification: %w", err)
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(appointment).
		Update("reminder_sent_at", now).Error; err != nil {
		return fmt.Errorf("appointment service: stamp reminder: %w", err)
	}
	appointment.ReminderSentAt = &now
	return nil
}

func (s *AppointmentService) resolveParties(ctx context.Context, patientID, doctorID string) (*models.User, *models.User, error) {
	patient, err := s.directory.Lookup(ctx, patientID)
	if err != nil || patient.Role != models.RolePatient {
		return nil, nil, apperrors.NewValidation("patient does not exist")
	}

	doctor, err := s.directory.Lookup(ctx, doctorID)
	if err != nil || doctor.Role != models.RoleDoctor {
		return nil, nil, apperrors.NewValidation("doctor does not exist")
	}

	return patient, doctor, nil
}

func (s *AppointmentService) notifyBooked(ctx context.Context, appointment *models.Appointment, patient, doctor *models.User) {
	if s.notifier == nil {
		return
	}

	if _, err := s.notifier.NotifyAppointmentCreated(ctx, models.RolePatient, patient.ID, doctor.FullName(), appointment.ScheduledAt); err != nil {
		s.log.Warn("patient booking notice failed", zap.String("appointment_id", appointment.ID), zap.Error(err))
	}
	if _, err := s.notifier.NotifyAppointmentCreated(ctx, models.RoleDoctor, doctor.ID, patient.FullName(), appointment.ScheduledAt); err != nil {
		s.log.Warn("doctor booking notice failed", zap.String("appointment_id", appointment.ID), zap.Error(err))
	}

	// Live schedule boards listen on the domain channel, separately from the
	// generic inbox event.
	s.notifier.EmitDomainEvent(doctor.ID, realtime.DomainAppointment, "created", appointment)
}

func (s *AppointmentService) notifyCancelled(ctx context.Context, appointment *models.Appointment, patient, doctor *models.User) {
	if s.notifier == nil {
		return
	}

	if _, err := s.notifier.NotifyAppointmentCancelled(ctx, models.RolePatient, patient.ID, doctor.FullName(), appointment.ScheduledAt); err != nil {
		s.log.Warn("patient cancellation notice failed", zap.String("appointment_id", appointment.ID), zap.Error(err))
	}
	if _, err := s.notifier.NotifyAppointmentCancelled(ctx, models.RoleDoctor, doctor.ID, patient.FullName(), appointment.ScheduledAt); err != nil {
		s.log.Warn("doctor cancellation notice failed", zap.String("appointment_id", appointment.ID), zap.Error(err))
	}

	s.notifier.EmitDomainEvent(doctor.ID, realtime.DomainAppointment, "cancelled", appointment)
}
