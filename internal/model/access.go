package model

import (
	"time"

	"github.com/google/uuid"
)

// AccessGrant is the durable patient-physician authorization edge. One row
// per pair; repeat invite redemptions reactivate the row instead of
// duplicating it.
type AccessGrant struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientUserID   uuid.UUID  `db:"patient_user_id" json:"patient_user_id"`
	PhysicianUserID uuid.UUID  `db:"physician_user_id" json:"physician_user_id"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	RevokedAt       *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

type InviteKind string

const (
	InviteKindPatientInvitesPhysician InviteKind = "patientInvitesPhysician"
	InviteKindPhysicianInvitesPatient InviteKind = "physicianInvitesPatient"
)

type InviteStatus string

const (
	InviteStatusActive   InviteStatus = "active"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusRevoked  InviteStatus = "revoked"
	InviteStatusExpired  InviteStatus = "expired"
)

// Invite stores only the sha256 hash of the token; possession of the raw
// token is the sole credential for acceptance.
type Invite struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	Kind             InviteKind `db:"kind" json:"kind"`
	InviterUserID    uuid.UUID  `db:"inviter_user_id" json:"inviter_user_id"`
	TokenHash        string     `db:"token_hash" json:"-"`
	ExpiresAt        time.Time  `db:"expires_at" json:"expires_at"`
	RevokedAt        *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	AcceptedAt       *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	AcceptedByUserID *uuid.UUID `db:"accepted_by_user_id" json:"accepted_by_user_id,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// Status derives the invite state; precedence is revoked > accepted >
// expired > active.
func (i *Invite) Status(now time.Time) InviteStatus {
	if i.RevokedAt != nil {
		return InviteStatusRevoked
	}
	if i.AcceptedAt != nil {
		return InviteStatusAccepted
	}
	if i.ExpiresAt.Before(now) {
		return InviteStatusExpired
	}
	return InviteStatusActive
}

// CreatedInvite is returned once at creation time; the raw token is never
// retrievable again.
type CreatedInvite struct {
	Invite    *Invite `json:"invite"`
	Token     string  `json:"token"`
	InviteURL string  `json:"invite_url"`
}

// AcceptedInvite reports the resolved pair after a successful redemption.
type AcceptedInvite struct {
	InviteID        uuid.UUID  `json:"invite_id"`
	Kind            InviteKind `json:"kind"`
	PatientUserID   uuid.UUID  `json:"patient_user_id"`
	PhysicianUserID uuid.UUID  `json:"physician_user_id"`
}

type CreateInviteRequest struct {
	Kind InviteKind `json:"kind" binding:"required,oneof=patientInvitesPhysician physicianInvitesPatient"`
}

type AcceptInviteRequest struct {
	Token string `json:"token" binding:"required"`
}
