package model

import (
	"time"

	"github.com/google/uuid"
)

// ContextMode partitions threads and memories so a patient's self-chat and a
// clinician's chat about that patient never share state.
type ContextMode string

const (
	ContextModePatient   ContextMode = "patient"
	ContextModePhysician ContextMode = "physician"
)

type SenderRole string

const (
	SenderRoleUser      SenderRole = "user"
	SenderRoleAssistant SenderRole = "assistant"
	SenderRoleTool      SenderRole = "tool"
)

type ChatThread struct {
	ID              uuid.UUID   `db:"id" json:"id"`
	PatientUserID   uuid.UUID   `db:"patient_user_id" json:"patient_user_id"`
	CreatedByUserID uuid.UUID   `db:"created_by_user_id" json:"created_by_user_id"`
	ContextMode     ContextMode `db:"context_mode" json:"context_mode"`
	Title           *string     `db:"title" json:"title,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

type ChatMessage struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	ThreadID   uuid.UUID  `db:"thread_id" json:"thread_id"`
	SenderRole SenderRole `db:"sender_role" json:"sender_role"`
	Content    string     `db:"content" json:"content"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// ChatTurnRequest is one inbound chat turn. PatientUserID is forced to the
// caller in patient mode and required in physician mode.
type ChatTurnRequest struct {
	Mode          ContextMode `json:"mode" binding:"required,oneof=patient physician"`
	PatientUserID *uuid.UUID  `json:"patient_user_id,omitempty"`
	ThreadID      *uuid.UUID  `json:"thread_id,omitempty"`
	Message       string      `json:"message" binding:"required,min=1,max=8000"`
	DocumentIDs   []uuid.UUID `json:"document_ids,omitempty"`
}

// ChatTurnResult carries the assistant reply plus every proposal the model
// created during the turn, for UI-driven accept/reject.
type ChatTurnResult struct {
	ThreadID            uuid.UUID                  `json:"thread_id"`
	AssistantMessage    *ChatMessage               `json:"assistant_message"`
	ProposedMemories    []*UserMemory              `json:"proposed_memories"`
	ProposedSuggestions []*PatientRecordSuggestion `json:"proposed_suggestions"`
}
