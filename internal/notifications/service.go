package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clinidesk/clinidesk/internal/models"
	"github.com/clinidesk/clinidesk/internal/realtime"
	apperrors "github.com/clinidesk/clinidesk/pkg/errors"
	"github.com/clinidesk/clinidesk/pkg/logger"
)

// Pusher is the live fan-out surface the orchestrator drives. Push calls are
// fire-and-forget: zero connected recipients is never an error.
type Pusher interface {
	PushToIdentity(identity string, payload any)
	PushToRole(role string, payload any)
	PushDomainEvent(identity string, kind realtime.DomainKind, action string, payload any)
	PushMarkedRead(identity, notificationID string)
	PushAllMarkedRead(identity string, updatedCount int64)
}

// CreateInput describes a single-recipient notification request.
type CreateInput struct {
	RecipientRole string
	RecipientID   string
	Title         string
	Message       string
	Kind          string
	Metadata      map[string]any
}

// BroadcastSummary is the single payload pushed to the role room after a
// broadcast batch write, in place of one push per recipient.
type BroadcastSummary struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	Kind      string `json:"kind"`
	Delivered int    `json:"delivered"`
}

// Service is the orchestrator the rest of the system talks to. Every create
// first writes durably through the store and only then attempts a live push;
// push failures are logged and swallowed.
type Service struct {
	store     *Store
	directory DirectoryLookup
	hub       Pusher
	log       *zap.Logger
}

// NewService constructs the notification service. The hub may be nil, in
// which case notifications are durable-only.
func NewService(store *Store, directory DirectoryLookup, hub Pusher) (*Service, error) {
	if store == nil {
		return nil, errors.New("notification service: store is required")
	}
	if directory == nil {
		return nil, errors.New("notification service: directory lookup is required")
	}
	return &Service{
		store:     store,
		directory: directory,
		hub:       hub,
		log:       logger.WithModule("notifications"),
	}, nil
}

// Create appends a notification and pushes it to the recipient's identity
// room. The append is sequenced strictly before the push; a push problem
// never surfaces to the caller once the record is durable.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Notification, error) {
	record, err := s.store.Append(ctx, AppendInput{
		RecipientRole: input.RecipientRole,
		RecipientID:   input.RecipientID,
		Title:         input.Title,
		Message:       input.Message,
		Kind:          input.Kind,
		Metadata:      input.Metadata,
	})
	if err != nil {
		return nil, err
	}

	s.pushToIdentity(record)
	return record, nil
}

// BroadcastToRole writes one record per current member of the role, then
// pushes exactly one summary to the role room. Batch writes are best effort;
// the returned count is the number of records actually created.
func (s *Service) BroadcastToRole(ctx context.Context, role, title, message, kind string) (int, error) {
	if !models.ValidRole(role) {
		return 0, apperrors.NewValidation(fmt.Sprintf("unknown recipient role %q", role))
	}

	recipientIDs, err := s.directory.IDsByRole(ctx, role)
	if err != nil {
		return 0, fmt.Errorf("notification service: resolve role members: %w", err)
	}

	created, err := s.store.AppendBatch(ctx, role, recipientIDs, title, message, kind)
	if err != nil {
		return 0, err
	}

	if s.hub != nil && created > 0 {
		resolvedKind := kind
		if resolvedKind == "" {
			resolvedKind = models.KindGeneral
		}
		s.hub.PushToRole(role, BroadcastSummary{
			Title:     title,
			Message:   message,
			Kind:      resolvedKind,
			Delivered: created,
		})
	}

	return created, nil
}

// MarkRead marks a notification read and relays the change to the
// recipient's other connections.
func (s *Service) MarkRead(ctx context.Context, id string) (*models.Notification, error) {
	record, err := s.store.MarkRead(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.hub != nil {
		s.hub.PushMarkedRead(record.RecipientID, record.ID)
	}
	return record, nil
}

// MarkAllRead bulk-marks the recipient's notifications and relays the count.
func (s *Service) MarkAllRead(ctx context.Context, role, recipientID string) (int64, error) {
	updated, err := s.store.MarkAllReadForRecipient(ctx, role, recipientID)
	if err != nil {
		return 0, err
	}

	if s.hub != nil {
		s.hub.PushAllMarkedRead(recipientID, updated)
	}
	return updated, nil
}

// Get returns a single notification by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Notification, error) {
	return s.store.Get(ctx, id)
}

// List returns a page of the recipient's notifications, newest first.
func (s *Service) List(ctx context.Context, role, recipientID string, page, pageSize int) (*ListResult, error) {
	return s.store.ListByRecipient(ctx, role, recipientID, page, pageSize)
}

// CountUnread returns the recipient's unread count.
func (s *Service) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	return s.store.CountUnread(ctx, recipientID)
}

// Stats aggregates store-wide counters.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.store.Stats(ctx)
}

// Update applies an explicit patch to a notification.
func (s *Service) Update(ctx context.Context, id string, patch UpdatePatch) (*models.Notification, error) {
	return s.store.Update(ctx, id, patch)
}

// Delete removes a notification by id.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Remove(ctx, id)
}

// EmitDomainEvent pushes a domain-specific live update without touching the
// store. Callers choose explicitly whether a flow emits the generic
// notification event, a domain event, or both.
func (s *Service) EmitDomainEvent(identity string, kind realtime.DomainKind, action string, payload any) {
	if s.hub == nil {
		return
	}
	s.hub.PushDomainEvent(identity, kind, action, payload)
}

// Domain convenience wrappers. Each is sugar over Create with a fixed kind
// and formatted message, and pushes only the generic notification event so
// clients subscribed to both channels never see double delivery.

// NotifyAppointmentCreated informs a recipient about a booked appointment.
func (s *Service) NotifyAppointmentCreated(ctx context.Context, role, recipientID, withName string, scheduledAt time.Time) (*models.Notification, error) {
	return s.Create(ctx, CreateInput{
		RecipientRole: role,
		RecipientID:   recipientID,
		Title:         "Appointment confirmed",
		Message:       fmt.Sprintf("Appointment with %s on %s is confirmed", withName, scheduledAt.Format("02/01/2006 at 15:04")),
		Kind:          models.KindAppointment,
	})
}

// NotifyAppointmentCancelled informs a recipient about a cancelled appointment.
func (s *Service) NotifyAppointmentCancelled(ctx context.Context, role, recipientID, withName string, scheduledAt time.Time) (*models.Notification, error) {
	return s.Create(ctx, CreateInput{
		RecipientRole: role,
		RecipientID:   recipientID,
		Title:         "Appointment cancelled",
		Message:       fmt.Sprintf("Appointment with %s on %s was cancelled", withName, scheduledAt.Format("02/01/2006 at 15:04")),
		Kind:          models.KindAppointment,
	})
}

// NotifyAppointmentReminder reminds a patient of an upcoming appointment.
func (s *Service) NotifyAppointmentReminder(ctx context.Context, recipientID, doctorName string, scheduledAt time.Time) (*models.Notification, error) {
	return s.Create(ctx, CreateInput{
		RecipientRole: models.RolePatient,
		RecipientID:   recipientID,
		Title:         "Appointment reminder",
		Message:       fmt.Sprintf("Reminder: appointment with %s on %s", doctorName, scheduledAt.Format("02/01/2006 at 15:04")),
		Kind:          models.KindReminder,
	})
}

// NotifyDocumentUploaded informs a recipient that a document is available.
func (s *Service) NotifyDocumentUploaded(ctx context.Context, role, recipientID, documentName string) (*models.Notification, error) {
	return s.Create(ctx, CreateInput{
		RecipientRole: role,
		RecipientID:   recipientID,
		Title:         "New document available",
		Message:       fmt.Sprintf("Document %q was uploaded to your record", documentName),
		Kind:          models.KindGeneral,
	})
}

// NotifyPrescriptionIssued informs a patient about a new prescription.
func (s *Service) NotifyPrescriptionIssued(ctx context.Context, recipientID, doctorName string) (*models.Notification, error) {
	return s.Create(ctx, CreateInput{
		RecipientRole: models.RolePatient,
		RecipientID:   recipientID,
		Title:         "New prescription",
		Message:       fmt.Sprintf("%s issued you a new prescription", doctorName),
		Kind:          models.KindPrescription,
	})
}

// NotifyLabResultReady informs a patient that lab results are available.
func (s *Service) NotifyLabResultReady(ctx context.Context, recipientID, analysisName string) (*models.Notification, error) {
	return s.Create(ctx, CreateInput{
		RecipientRole: models.RolePatient,
		RecipientID:   recipientID,
		Title:         "Lab results available",
		Message:       fmt.Sprintf("Results for %q are ready to view", analysisName),
		Kind:          models.KindLabResult,
	})
}

func (s *Service) pushToIdentity(record *models.Notification) {
	if s.hub == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("push failed after durable append",
				zap.String("notification_id", record.ID), zap.Any("error", r))
		}
	}()

	s.hub.PushToIdentity(record.RecipientID, record)
}
