package models

import "time"

// RelayStatus tracks forwarding of a contact submission to the form-relay provider.
type RelayStatus string

const (
	RelayPending  RelayStatus = "pending"
	RelayInFlight RelayStatus = "relaying"
	RelayDone     RelayStatus = "relayed"
	RelayFailed   RelayStatus = "failed"
)

// ContactSubmission is a message sent through the site's contact form.
type ContactSubmission struct {
	ID            int64       `json:"id,omitempty"`
	Name          string      `json:"name" validate:"required,max=200"`
	Email         string      `json:"email" validate:"required,email,max=320"`
	Company       *string     `json:"company,omitempty" validate:"omitempty,max=200"`
	Message       string      `json:"message" validate:"required,min=10,max=5000"`
	RelayStatus   RelayStatus `json:"-"`
	RelayAttempts int         `json:"-"`
	RelayError    *string     `json:"-"`
	RelayAfter    *time.Time  `json:"-"`
	WorkerID      *string     `json:"-"`
	CreatedAt     time.Time   `json:"created_at,omitempty"`
}
