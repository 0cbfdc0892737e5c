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

type documentRepository struct {
	db *sqlx.DB
}

func NewDocumentRepository(db *sqlx.DB) repository.DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	query := `
		INSERT INTO documents (
			id, patient_user_id, uploaded_by_user_id, original_file_name,
			content_type, size_bytes, object_key, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		doc.ID,
		doc.PatientUserID,
		doc.UploadedByUserID,
		doc.OriginalFileName,
		doc.ContentType,
		doc.SizeBytes,
		doc.ObjectKey,
		doc.Status,
		doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (r *documentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	query := `SELECT * FROM documents WHERE id = $1`
	var doc model.Document
	err := r.db.GetContext(ctx, &doc, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

func (r *documentRepository) ListForPatient(ctx context.Context, patientUserID uuid.UUID) ([]*model.Document, error) {
	query := `SELECT * FROM documents WHERE patient_user_id = $1 ORDER BY created_at DESC`
	var docs []*model.Document
	err := r.db.SelectContext(ctx, &docs, query, patientUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

func (r *documentRepository) MarkParsedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, at time.Time) error {
	query := `UPDATE documents SET status = 'parsed', parsed_at = $1, parse_error = NULL WHERE id = $2`
	_, err := tx.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark document parsed: %w", err)
	}
	return nil
}

func (r *documentRepository) MarkError(ctx context.Context, id uuid.UUID, reason string) error {
	query := `UPDATE documents SET status = 'error', parse_error = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, reason, id)
	if err != nil {
		return fmt.Errorf("failed to mark document error: %w", err)
	}
	return nil
}

// UpsertText keeps exactly one text row per document; a re-parse replaces
// the previous extraction text.
func (r *documentRepository) UpsertText(ctx context.Context, documentID uuid.UUID, text string) error {
	query := `
		INSERT INTO document_text (document_id, extracted_text, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id) DO UPDATE SET extracted_text = EXCLUDED.extracted_text
	`
	_, err := r.db.ExecContext(ctx, query, documentID, text, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert document text: %w", err)
	}
	return nil
}

func (r *documentRepository) InsertExtractionTx(ctx context.Context, tx *sqlx.Tx, extraction *model.DocumentExtraction) error {
	query := `
		INSERT INTO document_extractions (id, document_id, model, extracted_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := tx.ExecContext(ctx, query,
		extraction.ID,
		extraction.DocumentID,
		extraction.Model,
		extraction.ExtractedJSON,
		extraction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document extraction: %w", err)
	}
	return nil
}

func (r *documentRepository) LatestExtraction(ctx context.Context, documentID uuid.UUID) (*model.DocumentExtraction, error) {
	query := `
		SELECT * FROM document_extractions
		WHERE document_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var extraction model.DocumentExtraction
	err := r.db.GetContext(ctx, &extraction, query, documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest extraction: %w", err)
	}
	return &extraction, nil
}
