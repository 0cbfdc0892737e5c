package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// Event types relayed to the record-events channel.
const (
	EventInviteAccepted     = "INVITE_ACCEPTED"
	EventAccessRevoked      = "ACCESS_REVOKED"
	EventDocumentParsed     = "DOCUMENT_PARSED"
	EventDocumentParseError = "DOCUMENT_PARSE_ERROR"
	EventSuggestionAccepted = "SUGGESTION_ACCEPTED"
)

// OutboxEvent rows are written in the same transaction as the change they
// describe and relayed asynchronously by cmd/worker.
type OutboxEvent struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	EventType   string          `db:"event_type" json:"event_type"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	Status      OutboxStatus    `db:"status" json:"status"`
	Error       *string         `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}
