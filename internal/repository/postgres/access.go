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

type accessRepository struct {
	db *sqlx.DB
}

func NewAccessRepository(db *sqlx.DB) repository.AccessRepository {
	return &accessRepository{db: db}
}

func (r *accessRepository) GetActiveGrant(ctx context.Context, patientUserID, physicianUserID uuid.UUID) (*model.AccessGrant, error) {
	query := `
		SELECT * FROM patient_physician_access
		WHERE patient_user_id = $1 AND physician_user_id = $2 AND revoked_at IS NULL
	`
	var grant model.AccessGrant
	err := r.db.GetContext(ctx, &grant, query, patientUserID, physicianUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get access grant: %w", err)
	}
	return &grant, nil
}

func (r *accessRepository) UpsertGrantTx(ctx context.Context, tx *sqlx.Tx, patientUserID, physicianUserID uuid.UUID) error {
	query := `
		INSERT INTO patient_physician_access (id, patient_user_id, physician_user_id, created_at, revoked_at)
		VALUES ($1, $2, $3, $4, NULL)
		ON CONFLICT (patient_user_id, physician_user_id)
		DO UPDATE SET revoked_at = NULL
	`
	_, err := tx.ExecContext(ctx, query, uuid.New(), patientUserID, physicianUserID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert access grant: %w", err)
	}
	return nil
}

func (r *accessRepository) RevokeGrant(ctx context.Context, patientUserID, physicianUserID uuid.UUID, at time.Time) error {
	query := `
		UPDATE patient_physician_access
		SET revoked_at = $1
		WHERE patient_user_id = $2 AND physician_user_id = $3 AND revoked_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, at, patientUserID, physicianUserID)
	if err != nil {
		return fmt.Errorf("failed to revoke access grant: %w", err)
	}
	return nil
}
