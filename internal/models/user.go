package models

// Caller is the authenticated site user making a request.
type Caller struct {
	ID    int64  `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}
