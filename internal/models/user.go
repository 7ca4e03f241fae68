package models

import "time"

// Role names for clinic identities.
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

// Roles lists every valid recipient role.
func Roles() []string {
	return []string{RolePatient, RoleDoctor, RoleAdmin}
}

// ValidRole reports whether the supplied role is a known recipient class.
func ValidRole(role string) bool {
	switch role {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	default:
		return false
	}
}

// User describes a clinic identity: patient, doctor, or administrator.
type User struct {
	BaseModel

	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	Role     string `gorm:"type:varchar(16);not null;index" json:"role"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	Phone     string `json:"phone,omitempty"`
	Specialty string `json:"specialty,omitempty"` // doctors only

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// FullName returns the display name used in notification messages.
func (u User) FullName() string {
	switch {
	case u.FirstName == "" && u.LastName == "":
		return u.Email
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}
