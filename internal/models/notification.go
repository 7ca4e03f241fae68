package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification kinds form a closed set; unknown values are rejected at the store.
const (
	KindAppointment  = "appointment"
	KindPrescription = "prescription"
	KindLabResult    = "lab_result"
	KindGeneral      = "general"
	KindPayment      = "payment"
	KindReminder     = "reminder"
)

// ValidNotificationKind reports whether kind belongs to the closed kind set.
func ValidNotificationKind(kind string) bool {
	switch kind {
	case KindAppointment, KindPrescription, KindLabResult, KindGeneral, KindPayment, KindReminder:
		return true
	default:
		return false
	}
}

// Notification is a single durable entry in a recipient's inbox. Broadcasts
// are stored as one row per recipient, never as a single broadcast row.
type Notification struct {
	BaseModel

	RecipientRole string `gorm:"type:varchar(16);not null;index:idx_notifications_recipient" json:"recipient_role"`
	RecipientID   string `gorm:"type:uuid;not null;index:idx_notifications_recipient" json:"recipient_id"`

	Title   string `gorm:"type:varchar(255);not null" json:"title"`
	Message string `gorm:"type:text;not null" json:"message"`
	Kind    string `gorm:"type:varchar(32);not null;default:'general';index" json:"kind"`

	Metadata datatypes.JSON `json:"metadata,omitempty"`

	// IsRead and ReadAt move together: ReadAt is non-nil iff IsRead is true.
	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`
}
