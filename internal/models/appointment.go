package models

import "time"

// Appointment statuses.
const (
	AppointmentScheduled = "scheduled"
	AppointmentCancelled = "cancelled"
	AppointmentCompleted = "completed"
)

// Appointment links a patient to a doctor for a scheduled time slot. It is the
// canonical notification-originating record: booking and cancellation create
// notifications for both parties.
type Appointment struct {
	BaseModel

	PatientID string `gorm:"type:uuid;not null;index" json:"patient_id"`
	DoctorID  string `gorm:"type:uuid;not null;index" json:"doctor_id"`

	ScheduledAt time.Time `gorm:"not null;index" json:"scheduled_at"`
	Reason      string    `gorm:"type:text" json:"reason,omitempty"`
	Status      string    `gorm:"type:varchar(16);not null;default:'scheduled';index" json:"status"`

	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`
}
