package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medichat/records-api/internal/model"
	"github.com/medichat/records-api/internal/repository"
)

type memoryRepository struct {
	db *sqlx.DB
}

func NewMemoryRepository(db *sqlx.DB) repository.MemoryRepository {
	return &memoryRepository{db: db}
}

func (r *memoryRepository) Create(ctx context.Context, memory *model.UserMemory) error {
	query := `
		INSERT INTO user_memories (
			id, owner_user_id, context_mode, subject_patient_user_id, status,
			memory_text, category, source_thread_id, source_message_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		memory.ID,
		memory.OwnerUserID,
		memory.ContextMode,
		memory.SubjectPatientUserID,
		memory.Status,
		memory.MemoryText,
		memory.Category,
		memory.SourceThreadID,
		memory.SourceMessageID,
		memory.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create memory: %w", err)
	}
	return nil
}

// ListAccepted scopes by owner, context mode and subject patient so
// patient-mode and physician-mode memories never bleed together. A nil
// subject matches only rows with no subject.
func (r *memoryRepository) ListAccepted(ctx context.Context, scope model.MemoryScope, limit int) ([]*model.UserMemory, error) {
	query := `
		SELECT * FROM user_memories
		WHERE owner_user_id = $1
		  AND status = 'accepted'
		  AND context_mode = $2
		  AND subject_patient_user_id IS NOT DISTINCT FROM $3
		ORDER BY accepted_at DESC NULLS LAST, created_at DESC
		LIMIT $4
	`
	var memories []*model.UserMemory
	err := r.db.SelectContext(ctx, &memories, query,
		scope.OwnerUserID, scope.ContextMode, scope.SubjectPatientUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list accepted memories: %w", err)
	}
	return memories, nil
}

func (r *memoryRepository) ListByOwner(ctx context.Context, ownerUserID uuid.UUID, status *model.ProposalStatus) ([]*model.UserMemory, error) {
	query := `
		SELECT * FROM user_memories
		WHERE owner_user_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
	`
	var memories []*model.UserMemory
	err := r.db.SelectContext(ctx, &memories, query, ownerUserID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	return memories, nil
}

// Resolve conditions the transition on status = 'proposed' in the same
// statement that flips it, so concurrent accept/reject calls settle to
// exactly one winner without a lock.
func (r *memoryRepository) Resolve(ctx context.Context, id, ownerUserID uuid.UUID, status model.ProposalStatus, at time.Time) (int64, error) {
	var query string
	switch status {
	case model.ProposalStatusAccepted:
		query = `
			UPDATE user_memories SET status = 'accepted', accepted_at = $1
			WHERE id = $2 AND owner_user_id = $3 AND status = 'proposed'
		`
	case model.ProposalStatusRejected:
		query = `
			UPDATE user_memories SET status = 'rejected', rejected_at = $1
			WHERE id = $2 AND owner_user_id = $3 AND status = 'proposed'
		`
	default:
		return 0, fmt.Errorf("invalid memory resolution status: %s", status)
	}

	res, err := r.db.ExecContext(ctx, query, at, id, ownerUserID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve memory: %w", err)
	}
	return res.RowsAffected()
}
