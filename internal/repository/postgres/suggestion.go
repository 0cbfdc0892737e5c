package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medichat/records-api/internal/model"
	"github.com/medichat/records-api/internal/repository"
)

type suggestionRepository struct {
	db *sqlx.DB
}

func NewSuggestionRepository(db *sqlx.DB) repository.SuggestionRepository {
	return &suggestionRepository{db: db}
}

func (r *suggestionRepository) Create(ctx context.Context, s *model.PatientRecordSuggestion) error {
	query := `
		INSERT INTO patient_record_suggestions (
			id, patient_user_id, kind, summary_text, payload_json, status,
			source_thread_id, source_message_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.PatientUserID,
		s.Kind,
		s.SummaryText,
		s.PayloadJSON,
		s.Status,
		s.SourceThreadID,
		s.SourceMessageID,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create record suggestion: %w", err)
	}
	return nil
}

func (r *suggestionRepository) Get(ctx context.Context, id uuid.UUID) (*model.PatientRecordSuggestion, error) {
	query := `SELECT * FROM patient_record_suggestions WHERE id = $1`
	var s model.PatientRecordSuggestion
	err := r.db.GetContext(ctx, &s, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record suggestion: %w", err)
	}
	return &s, nil
}

func (r *suggestionRepository) ListForPatient(ctx context.Context, patientUserID uuid.UUID, status *model.ProposalStatus) ([]*model.PatientRecordSuggestion, error) {
	query := `
		SELECT * FROM patient_record_suggestions
		WHERE patient_user_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
	`
	var suggestions []*model.PatientRecordSuggestion
	err := r.db.SelectContext(ctx, &suggestions, query, patientUserID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list record suggestions: %w", err)
	}
	return suggestions, nil
}

// ResolveTx flips proposed to the terminal status within the caller's
// transaction; the WHERE status = 'proposed' clause makes the transition
// at-most-once under concurrent resolutions.
func (r *suggestionRepository) ResolveTx(ctx context.Context, tx *sqlx.Tx, id, patientUserID uuid.UUID, status model.ProposalStatus, at time.Time) (int64, error) {
	if status != model.ProposalStatusAccepted && status != model.ProposalStatusRejected {
		return 0, fmt.Errorf("invalid suggestion resolution status: %s", status)
	}
	query := `
		UPDATE patient_record_suggestions
		SET status = $1, updated_at = $2
		WHERE id = $3 AND patient_user_id = $4 AND status = 'proposed'
	`
	res, err := tx.ExecContext(ctx, query, status, at, id, patientUserID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve record suggestion: %w", err)
	}
	return res.RowsAffected()
}
