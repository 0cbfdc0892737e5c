package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medichat/records-api/internal/model"
)

// TxRunner executes a function inside one database transaction. Composite
// writes (invite acceptance, ingestion, suggestion apply) go through it so
// their repositories can share the transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// All repository interfaces in one file
type (
	// AccessRepository owns the patient-physician grant pairs.
	AccessRepository interface {
		// GetActiveGrant returns the live grant for the pair, or nil.
		GetActiveGrant(ctx context.Context, patientUserID, physicianUserID uuid.UUID) (*model.AccessGrant, error)
		// UpsertGrantTx creates the pair or reactivates a revoked one.
		UpsertGrantTx(ctx context.Context, tx *sqlx.Tx, patientUserID, physicianUserID uuid.UUID) error
		// RevokeGrant stamps revoked_at if currently null; idempotent.
		RevokeGrant(ctx context.Context, patientUserID, physicianUserID uuid.UUID, at time.Time) error
	}

	InviteRepository interface {
		Create(ctx context.Context, invite *model.Invite) error
		// GetByTokenHash returns nil when no invite matches.
		GetByTokenHash(ctx context.Context, tokenHash string) (*model.Invite, error)
		Get(ctx context.Context, id uuid.UUID) (*model.Invite, error)
		ListByInviter(ctx context.Context, inviterUserID uuid.UUID) ([]*model.Invite, error)
		// MarkAcceptedTx stamps acceptance conditioned on the invite still
		// being unaccepted and unrevoked; returns rows affected.
		MarkAcceptedTx(ctx context.Context, tx *sqlx.Tx, id, acceptorUserID uuid.UUID, at time.Time) (int64, error)
		Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
	}

	DocumentRepository interface {
		Create(ctx context.Context, doc *model.Document) error
		Get(ctx context.Context, id uuid.UUID) (*model.Document, error)
		ListForPatient(ctx context.Context, patientUserID uuid.UUID) ([]*model.Document, error)
		MarkParsedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, at time.Time) error
		MarkError(ctx context.Context, id uuid.UUID, reason string) error
		UpsertText(ctx context.Context, documentID uuid.UUID, text string) error
		InsertExtractionTx(ctx context.Context, tx *sqlx.Tx, extraction *model.DocumentExtraction) error
		// LatestExtraction returns nil when the document was never extracted.
		LatestExtraction(ctx context.Context, documentID uuid.UUID) (*model.DocumentExtraction, error)
	}

	// RecordRepository owns the clinical fact tables and the profile row.
	RecordRepository interface {
		GetProfile(ctx context.Context, patientUserID uuid.UUID) (*model.PatientProfile, error)
		// UpsertProfileTx writes only the fields set in update; unreported
		// fields keep their stored values.
		UpsertProfileTx(ctx context.Context, tx *sqlx.Tx, patientUserID uuid.UUID, update *model.ProfileUpdate, now time.Time) error

		InsertVitalTx(ctx context.Context, tx *sqlx.Tx, v *model.Vital) error
		InsertLabTx(ctx context.Context, tx *sqlx.Tx, l *model.LabResult) error
		InsertMedicationTx(ctx context.Context, tx *sqlx.Tx, m *model.Medication) error
		InsertConditionTx(ctx context.Context, tx *sqlx.Tx, c *model.Condition) error

		LatestVital(ctx context.Context, patientUserID uuid.UUID) (*model.Vital, error)
		ListLabs(ctx context.Context, patientUserID uuid.UUID, limit int) ([]*model.LabResult, error)
		ListMedications(ctx context.Context, patientUserID uuid.UUID, limit int) ([]*model.Medication, error)
		ListConditions(ctx context.Context, patientUserID uuid.UUID, limit int) ([]*model.Condition, error)

		ListVitalsByDocument(ctx context.Context, patientUserID, documentID uuid.UUID, limit int) ([]*model.Vital, error)
		ListLabsByDocument(ctx context.Context, patientUserID, documentID uuid.UUID, limit int) ([]*model.LabResult, error)
		ListMedicationsByDocument(ctx context.Context, patientUserID, documentID uuid.UUID, limit int) ([]*model.Medication, error)
		ListConditionsByDocument(ctx context.Context, patientUserID, documentID uuid.UUID, limit int) ([]*model.Condition, error)
	}

	ChatRepository interface {
		GetThread(ctx context.Context, id uuid.UUID) (*model.ChatThread, error)
		CreateThread(ctx context.Context, thread *model.ChatThread) error
		ListThreads(ctx context.Context, patientUserID uuid.UUID, mode model.ContextMode) ([]*model.ChatThread, error)
		TouchThread(ctx context.Context, id uuid.UUID, at time.Time) error
		CreateMessage(ctx context.Context, msg *model.ChatMessage) error
		// ListRecentMessages returns at most limit messages in chronological
		// order, most recent window of the thread.
		ListRecentMessages(ctx context.Context, threadID uuid.UUID, limit int) ([]*model.ChatMessage, error)
		ListMessages(ctx context.Context, threadID uuid.UUID) ([]*model.ChatMessage, error)
	}

	MemoryRepository interface {
		Create(ctx context.Context, memory *model.UserMemory) error
		ListAccepted(ctx context.Context, scope model.MemoryScope, limit int) ([]*model.UserMemory, error)
		ListByOwner(ctx context.Context, ownerUserID uuid.UUID, status *model.ProposalStatus) ([]*model.UserMemory, error)
		// Resolve flips proposed->status in one conditional statement;
		// returns rows affected (zero means already resolved or not owned).
		Resolve(ctx context.Context, id, ownerUserID uuid.UUID, status model.ProposalStatus, at time.Time) (int64, error)
	}

	SuggestionRepository interface {
		Create(ctx context.Context, s *model.PatientRecordSuggestion) error
		Get(ctx context.Context, id uuid.UUID) (*model.PatientRecordSuggestion, error)
		ListForPatient(ctx context.Context, patientUserID uuid.UUID, status *model.ProposalStatus) ([]*model.PatientRecordSuggestion, error)
		// ResolveTx flips proposed->status within the caller's transaction;
		// returns rows affected.
		ResolveTx(ctx context.Context, tx *sqlx.Tx, id, patientUserID uuid.UUID, status model.ProposalStatus, at time.Time) (int64, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		CreateTx(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMsg *string) error
	}
)
