package model

import (
	"time"

	"github.com/google/uuid"
)

// User rows are synced from the external identity provider; this service
// never creates credentials, it only references user ids.
type User struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Email       *string   `db:"email" json:"email,omitempty"`
	DisplayName *string   `db:"display_name" json:"display_name,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
