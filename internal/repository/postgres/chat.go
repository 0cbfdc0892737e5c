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

type chatRepository struct {
	db *sqlx.DB
}

func NewChatRepository(db *sqlx.DB) repository.ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) GetThread(ctx context.Context, id uuid.UUID) (*model.ChatThread, error) {
	query := `SELECT * FROM chat_threads WHERE id = $1`
	var thread model.ChatThread
	err := r.db.GetContext(ctx, &thread, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat thread: %w", err)
	}
	return &thread, nil
}

func (r *chatRepository) CreateThread(ctx context.Context, thread *model.ChatThread) error {
	query := `
		INSERT INTO chat_threads (id, patient_user_id, created_by_user_id, context_mode, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		thread.ID,
		thread.PatientUserID,
		thread.CreatedByUserID,
		thread.ContextMode,
		thread.Title,
		thread.CreatedAt,
		thread.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create chat thread: %w", err)
	}
	return nil
}

func (r *chatRepository) ListThreads(ctx context.Context, patientUserID uuid.UUID, mode model.ContextMode) ([]*model.ChatThread, error) {
	query := `
		SELECT * FROM chat_threads
		WHERE patient_user_id = $1 AND context_mode = $2
		ORDER BY updated_at DESC
	`
	var threads []*model.ChatThread
	err := r.db.SelectContext(ctx, &threads, query, patientUserID, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat threads: %w", err)
	}
	return threads, nil
}

func (r *chatRepository) TouchThread(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE chat_threads SET updated_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to touch chat thread: %w", err)
	}
	return nil
}

func (r *chatRepository) CreateMessage(ctx context.Context, msg *model.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (id, thread_id, sender_role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		msg.ID,
		msg.ThreadID,
		msg.SenderRole,
		msg.Content,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create chat message: %w", err)
	}
	return nil
}

// ListRecentMessages selects the newest window then flips it so callers get
// chronological order.
func (r *chatRepository) ListRecentMessages(ctx context.Context, threadID uuid.UUID, limit int) ([]*model.ChatMessage, error) {
	query := `
		SELECT * FROM (
			SELECT * FROM chat_messages
			WHERE thread_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`
	var messages []*model.ChatMessage
	err := r.db.SelectContext(ctx, &messages, query, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	return messages, nil
}

func (r *chatRepository) ListMessages(ctx context.Context, threadID uuid.UUID) ([]*model.ChatMessage, error) {
	query := `SELECT * FROM chat_messages WHERE thread_id = $1 ORDER BY created_at ASC`
	var messages []*model.ChatMessage
	err := r.db.SelectContext(ctx, &messages, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}
