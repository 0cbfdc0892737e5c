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

type inviteRepository struct {
	db *sqlx.DB
}

func NewInviteRepository(db *sqlx.DB) repository.InviteRepository {
	return &inviteRepository{db: db}
}

func (r *inviteRepository) Create(ctx context.Context, invite *model.Invite) error {
	query := `
		INSERT INTO access_invites (id, kind, inviter_user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		invite.ID,
		invite.Kind,
		invite.InviterUserID,
		invite.TokenHash,
		invite.ExpiresAt,
		invite.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create invite: %w", err)
	}
	return nil
}

func (r *inviteRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*model.Invite, error) {
	query := `SELECT * FROM access_invites WHERE token_hash = $1`
	var invite model.Invite
	err := r.db.GetContext(ctx, &invite, query, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invite by token hash: %w", err)
	}
	return &invite, nil
}

func (r *inviteRepository) Get(ctx context.Context, id uuid.UUID) (*model.Invite, error) {
	query := `SELECT * FROM access_invites WHERE id = $1`
	var invite model.Invite
	err := r.db.GetContext(ctx, &invite, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}
	return &invite, nil
}

func (r *inviteRepository) ListByInviter(ctx context.Context, inviterUserID uuid.UUID) ([]*model.Invite, error) {
	query := `SELECT * FROM access_invites WHERE inviter_user_id = $1 ORDER BY created_at DESC`
	var invites []*model.Invite
	err := r.db.SelectContext(ctx, &invites, query, inviterUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	return invites, nil
}

// MarkAcceptedTx is conditional on the invite still being open so that two
// concurrent accepts resolve to exactly one winner.
func (r *inviteRepository) MarkAcceptedTx(ctx context.Context, tx *sqlx.Tx, id, acceptorUserID uuid.UUID, at time.Time) (int64, error) {
	query := `
		UPDATE access_invites
		SET accepted_at = $1, accepted_by_user_id = $2
		WHERE id = $3 AND accepted_at IS NULL AND revoked_at IS NULL
	`
	res, err := tx.ExecContext(ctx, query, at, acceptorUserID, id)
	if err != nil {
		return 0, fmt.Errorf("failed to mark invite accepted: %w", err)
	}
	return res.RowsAffected()
}

func (r *inviteRepository) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE access_invites SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to revoke invite: %w", err)
	}
	return nil
}
