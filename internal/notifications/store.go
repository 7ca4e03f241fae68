package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/clinidesk/clinidesk/internal/models"
	apperrors "github.com/clinidesk/clinidesk/pkg/errors"
	"github.com/clinidesk/clinidesk/pkg/logger"
	"github.com/clinidesk/clinidesk/pkg/metrics"
)

// DirectoryLookup resolves recipient identities. The store never writes a
// notification whose recipient cannot be resolved.
type DirectoryLookup interface {
	Exists(ctx context.Context, role, id string) (bool, error)
	IDsByRole(ctx context.Context, role string) ([]string, error)
}

// AppendInput defines the attributes required to persist a notification.
type AppendInput struct {
	RecipientRole string
	RecipientID   string
	Title         string
	Message       string
	Kind          string
	Metadata      map[string]any
}

// UpdatePatch lists the only mutable notification fields. Unknown fields can
// never pass through to storage.
type UpdatePatch struct {
	Title   *string
	Message *string
	IsRead  *bool
}

// ListResult bundles a page of notifications with pagination metadata.
type ListResult struct {
	Items      []models.Notification
	Page       int
	PerPage    int
	Total      int64
	TotalPages int
}

// Stats aggregates store-wide notification counts.
type Stats struct {
	Total  int64            `json:"total"`
	Unread int64            `json:"unread"`
	Read   int64            `json:"read"`
	ByKind map[string]int64 `json:"by_kind"`
}

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

// Store is the durable notification log.
type Store struct {
	db        *gorm.DB
	directory DirectoryLookup
	log       *zap.Logger
	now       func() time.Time
}

// StoreOption customises store construction.
type StoreOption func(*Store)

// WithClock overrides the store clock, used by tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore constructs a notification store.
func NewStore(db *gorm.DB, directory DirectoryLookup, opts ...StoreOption) (*Store, error) {
	if db == nil {
		return nil, errors.New("notification store: db is required")
	}
	if directory == nil {
		return nil, errors.New("notification store: directory lookup is required")
	}

	store := &Store{
		db:        db,
		directory: directory,
		log:       logger.WithModule("notifications"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Append validates and persists a single notification record.
func (s *Store) Append(ctx context.Context, input AppendInput) (*models.Notification, error) {
	record, err := s.buildRecord(input)
	if err != nil {
		return nil, err
	}

	exists, err := s.directory.Exists(ctx, record.RecipientRole, record.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("notification store: resolve recipient: %w", err)
	}
	if !exists {
		return nil, apperrors.NewValidation(
			fmt.Sprintf("recipient %s/%s does not exist", record.RecipientRole, record.RecipientID))
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("notification store: append: %w", err)
	}

	metrics.NotificationsCreated.WithLabelValues(record.Kind).Inc()
	return record, nil
}

// AppendBatch persists one record per recipient id, best effort: a failed
// insert is logged and skipped, and the count of successful writes returned.
func (s *Store) AppendBatch(ctx context.Context, role string, recipientIDs []string, title, message, kind string) (int, error) {
	template, err := s.buildRecord(AppendInput{
		RecipientRole: role,
		RecipientID:   "batch", // placeholder, replaced per recipient below
		Title:         title,
		Message:       message,
		Kind:          kind,
	})
	if err != nil {
		return 0, err
	}

	created := 0
	for _, recipientID := range recipientIDs {
		recipientID = strings.TrimSpace(recipientID)
		if recipientID == "" {
			continue
		}

		record := models.Notification{
			RecipientRole: template.RecipientRole,
			RecipientID:   recipientID,
			Title:         template.Title,
			Message:       template.Message,
			Kind:          template.Kind,
		}
		if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
			s.log.Warn("batch append skipped recipient",
				zap.String("recipient_id", recipientID), zap.Error(err))
			continue
		}
		metrics.NotificationsCreated.WithLabelValues(record.Kind).Inc()
		created++
	}

	return created, nil
}

// Get loads a notification by id.
func (s *Store) Get(ctx context.Context, id string) (*models.Notification, error) {
	var record models.Notification
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("notification store: load: %w", err)
	}
	return &record, nil
}

// ListByRecipient returns the recipient's notifications newest first.
func (s *Store) ListByRecipient(ctx context.Context, role, recipientID string, page, pageSize int) (*ListResult, error) {
	role = strings.TrimSpace(role)
	recipientID = strings.TrimSpace(recipientID)
	if !models.ValidRole(role) || recipientID == "" {
		return nil, apperrors.NewValidation("recipient role and id are required")
	}

	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	query := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_role = ? AND recipient_id = ?", role, recipientID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("notification store: count: %w", err)
	}

	var items []models.Notification
	if err := query.
		Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("notification store: list: %w", err)
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &ListResult{
		Items:      items,
		Page:       page,
		PerPage:    pageSize,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

// MarkRead flips the record to read. Idempotent: the first call stamps ReadAt
// and later calls leave it untouched.
func (s *Store) MarkRead(ctx context.Context, id string) (*models.Notification, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if record.IsRead {
		return record, nil
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(record).
		Updates(map[string]any{"is_read": true, "read_at": now}).Error; err != nil {
		return nil, fmt.Errorf("notification store: mark read: %w", err)
	}

	record.IsRead = true
	record.ReadAt = &now
	return record, nil
}

// MarkAllReadForRecipient bulk-marks every unread record for the recipient.
func (s *Store) MarkAllReadForRecipient(ctx context.Context, role, recipientID string) (int64, error) {
	now := s.now()
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_role = ? AND recipient_id = ? AND is_read = ?", role, recipientID, false).
		Updates(map[string]any{"is_read": true, "read_at": now})
	if result.Error != nil {
		return 0, fmt.Errorf("notification store: mark all read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Update applies the explicit patch to a notification.
func (s *Store) Update(ctx context.Context, id string, patch UpdatePatch) (*models.Notification, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, apperrors.NewValidation("title must not be empty")
		}
		updates["title"] = title
		record.Title = title
	}

	if patch.Message != nil {
		message := strings.TrimSpace(*patch.Message)
		if message == "" {
			return nil, apperrors.NewValidation("message must not be empty")
		}
		updates["message"] = message
		record.Message = message
	}

	if patch.IsRead != nil && *patch.IsRead != record.IsRead {
		updates["is_read"] = *patch.IsRead
		record.IsRead = *patch.IsRead
		if *patch.IsRead {
			now := s.now()
			updates["read_at"] = now
			record.ReadAt = &now
		} else {
			updates["read_at"] = nil
			record.ReadAt = nil
		}
	}

	if len(updates) == 0 {
		return record, nil
	}

	if err := s.db.WithContext(ctx).Model(record).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("notification store: update: %w", err)
	}
	return record, nil
}

// Remove deletes a notification by id.
func (s *Store) Remove(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification store: remove: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// CountUnread returns the recipient's unread notification count.
func (s *Store) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("notification store: count unread: %w", err)
	}
	return count, nil
}

// Stats aggregates totals across the store.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByKind: make(map[string]int64)}

	if err := s.db.WithContext(ctx).Model(&models.Notification{}).Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("notification store: stats total: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("is_read = ?", false).Count(&stats.Unread).Error; err != nil {
		return nil, fmt.Errorf("notification store: stats unread: %w", err)
	}
	stats.Read = stats.Total - stats.Unread

	rows := []struct {
		Kind  string
		Count int64
	}{}
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Select("kind, COUNT(*) AS count").
		Group("kind").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification store: stats by kind: %w", err)
	}
	for _, row := range rows {
		stats.ByKind[row.Kind] = row.Count
	}

	return stats, nil
}

func (s *Store) buildRecord(input AppendInput) (*models.Notification, error) {
	role := strings.TrimSpace(input.RecipientRole)
	if !models.ValidRole(role) {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown recipient role %q", input.RecipientRole))
	}

	recipientID := strings.TrimSpace(input.RecipientID)
	if recipientID == "" {
		return nil, apperrors.NewValidation("recipient id is required")
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidation("title is required")
	}

	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, apperrors.NewValidation("message is required")
	}

	kind := strings.TrimSpace(input.Kind)
	if kind == "" {
		kind = models.KindGeneral
	}
	if !models.ValidNotificationKind(kind) {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown notification kind %q", input.Kind))
	}

	record := &models.Notification{
		RecipientRole: role,
		RecipientID:   recipientID,
		Title:         title,
		Message:       message,
		Kind:          kind,
	}

	if input.Metadata != nil {
		data, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("notification store: marshal metadata: %w", err)
		}
		record.Metadata = datatypes.JSON(data)
	}

	return record, nil
}
