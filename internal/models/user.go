package models

import (
	"github.com/google/uuid"
)

// User is the identity carried by a verified access token. It is not
// persisted; the hosted auth service owns user records.
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Role  string    `json:"role,omitempty"`
}
