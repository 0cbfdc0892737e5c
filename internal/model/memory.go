package model

import (
	"time"

	"github.com/google/uuid"
)

type ProposalStatus string

const (
	ProposalStatusProposed ProposalStatus = "proposed"
	ProposalStatusAccepted ProposalStatus = "accepted"
	ProposalStatusRejected ProposalStatus = "rejected"
)

// UserMemory is a personalization fact the model proposed about its owner.
// SubjectPatientUserID is set only for physician-mode memories, scoping them
// to one patient.
type UserMemory struct {
	ID                   uuid.UUID      `db:"id" json:"id"`
	OwnerUserID          uuid.UUID      `db:"owner_user_id" json:"owner_user_id"`
	ContextMode          ContextMode    `db:"context_mode" json:"context_mode"`
	SubjectPatientUserID *uuid.UUID     `db:"subject_patient_user_id" json:"subject_patient_user_id,omitempty"`
	Status               ProposalStatus `db:"status" json:"status"`
	MemoryText           string         `db:"memory_text" json:"memory_text"`
	Category             *string        `db:"category" json:"category,omitempty"`
	SourceThreadID       *uuid.UUID     `db:"source_thread_id" json:"source_thread_id,omitempty"`
	SourceMessageID      *uuid.UUID     `db:"source_message_id" json:"source_message_id,omitempty"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
	AcceptedAt           *time.Time     `db:"accepted_at" json:"accepted_at,omitempty"`
	RejectedAt           *time.Time     `db:"rejected_at" json:"rejected_at,omitempty"`
}

// MemoryScope identifies whose memories a retrieval is allowed to see.
type MemoryScope struct {
	OwnerUserID          uuid.UUID
	ContextMode          ContextMode
	SubjectPatientUserID *uuid.UUID
}
