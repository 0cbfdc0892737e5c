package document

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medichat/records-api/internal/model"
	"github.com/medichat/records-api/internal/repository"
	"github.com/medichat/records-api/internal/service/access"
	apperrors "github.com/medichat/records-api/pkg/errors"
	"github.com/medichat/records-api/pkg/ai"
	"github.com/medichat/records-api/pkg/logger"
	"github.com/medichat/records-api/pkg/metrics"
	"github.com/medichat/records-api/pkg/storage"
)

const insightFactLimit = 100

type DocumentService interface {
	Upload(ctx context.Context, actorUserID, patientUserID uuid.UUID, fileName, contentType string, data []byte) (*model.Document, error)
	List(ctx context.Context, actorUserID, patientUserID uuid.UUID) ([]*model.Document, error)
	Download(ctx context.Context, actorUserID, documentID uuid.UUID) (*model.Document, []byte, error)
	Parse(ctx context.Context, actorUserID, documentID uuid.UUID) (*model.Document, error)
	Insights(ctx context.Context, actorUserID, documentID uuid.UUID) (*model.DocumentInsights, error)
}

type Service struct {
	docs         repository.DocumentRepository
	records      repository.RecordRepository
	outbox       repository.OutboxRepository
	store        repository.TxRunner
	gate         access.Gate
	blobs        storage.Store
	ai           ai.ChatCompleter
	extractModel string
	metrics      *metrics.Metrics
	logger       *logger.Logger
}

func NewService(
	docs repository.DocumentRepository,
	records repository.RecordRepository,
	outbox repository.OutboxRepository,
	store repository.TxRunner,
	gate access.Gate,
	blobs storage.Store,
	completer ai.ChatCompleter,
	extractModel string,
	m *metrics.Metrics,
	logger *logger.Logger,
) *Service {
	return &Service{
		docs:         docs,
		records:      records,
		outbox:       outbox,
		store:        store,
		gate:         gate,
		blobs:        blobs,
		ai:           completer,
		extractModel: extractModel,
		metrics:      m,
		logger:       logger,
	}
}

func (s *Service) Upload(ctx context.Context, actorUserID, patientUserID uuid.UUID, fileName, contentType string, data []byte) (*model.Document, error) {
	if err := s.gate.AssertPatientAccess(ctx, actorUserID, patientUserID); err != nil {
		return nil, err
	}

	doc := &model.Document{
		ID:               uuid.New(),
		PatientUserID:    patientUserID,
		UploadedByUserID: actorUserID,
		OriginalFileName: fileName,
		ContentType:      contentType,
		SizeBytes:        int64(len(data)),
		Status:           model.DocumentStatusUploaded,
		CreatedAt:        time.Now(),
	}

	key := fmt.Sprintf("documents/%s/%s", patientUserID, doc.ID)
	if err := s.blobs.PutObject(ctx, key, data, contentType); err != nil {
		return nil, fmt.Errorf("failed to store document object: %w", err)
	}
	doc.ObjectKey = &key

	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	s.logger.Info("document uploaded",
		"document_id", doc.ID.String(),
		"content_type", contentType,
		"size_bytes", doc.SizeBytes,
	)
	return doc, nil
}

func (s *Service) List(ctx context.Context, actorUserID, patientUserID uuid.UUID) ([]*model.Document, error) {
	if err := s.gate.AssertPatientAccess(ctx, actorUserID, patientUserID); err != nil {
		return nil, err
	}
	return s.docs.ListForPatient(ctx, patientUserID)
}

func (s *Service) Download(ctx context.Context, actorUserID, documentID uuid.UUID) (*model.Document, []byte, error) {
	doc, err := s.loadGated(ctx, actorUserID, documentID)
	if err != nil {
		return nil, nil, err
	}
	if doc.ObjectKey == nil {
		return nil, nil, apperrors.Newf(apperrors.KindDocumentNotFound, "document %s has no stored object", documentID)
	}
	data, err := s.blobs.GetObject(ctx, *doc.ObjectKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch document object: %w", err)
	}
	return doc, data, nil
}

// Parse runs the full ingestion pipeline for one document: text extraction,
// the structured model call, and a single transaction that writes the
// extraction audit row, the profile merge and the fact rows, then flips the
// document to parsed. Re-parsing appends new fact rows; the extraction table
// keeps every run.
func (s *Service) Parse(ctx context.Context, actorUserID, documentID uuid.UUID) (*model.Document, error) {
	doc, err := s.loadGated(ctx, actorUserID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.ObjectKey == nil {
		return nil, apperrors.Newf(apperrors.KindDocumentNotFound, "document %s has no stored object", documentID)
	}

	data, err := s.blobs.GetObject(ctx, *doc.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document object: %w", err)
	}

	text, err := extractText(doc.ContentType, data)
	if err != nil || text == "" {
		return nil, s.failParse(ctx, doc, apperrors.KindNoTextExtracted, err)
	}

	if err := s.docs.UpsertText(ctx, doc.ID, text); err != nil {
		return nil, fmt.Errorf("failed to store document text: %w", err)
	}

	extraction, raw, err := s.extractFacts(ctx, text)
	if err != nil {
		return nil, s.failParse(ctx, doc, apperrors.KindOf(err), err)
	}

	now := time.Now()
	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.docs.InsertExtractionTx(ctx, tx, &model.DocumentExtraction{
			ID:            uuid.New(),
			DocumentID:    doc.ID,
			Model:         s.extractModel,
			ExtractedJSON: raw,
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		if err := s.applyExtraction(ctx, tx, doc, extraction, now); err != nil {
			return err
		}

		if err := s.docs.MarkParsedTx(ctx, tx, doc.ID, now); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]string{
			"document_id":     doc.ID.String(),
			"patient_user_id": doc.PatientUserID.String(),
		})
		return s.outbox.CreateTx(ctx, tx, &model.OutboxEvent{
			EventType: model.EventDocumentParsed,
			Payload:   payload,
		})
	})
	if err != nil {
		return nil, s.failParse(ctx, doc, apperrors.KindInternal, err)
	}

	s.metrics.DocumentsParsed.WithLabelValues("parsed").Inc()
	s.logger.Info("document parsed",
		"document_id", doc.ID.String(),
		"labs", len(extraction.Labs),
		"medications", len(extraction.Medications),
		"conditions", len(extraction.Conditions),
		"vitals", len(extraction.Vitals),
	)

	doc.Status = model.DocumentStatusParsed
	doc.ParsedAt = &now
	doc.ParseError = nil
	return doc, nil
}

// applyExtraction writes the extracted facts inside the ingestion
// transaction. Profile fields merge into the existing row; each vital, lab,
// medication and condition becomes a new row carrying the document as its
// provenance.
func (s *Service) applyExtraction(ctx context.Context, tx *sqlx.Tx, doc *model.Document, e *model.Extraction, now time.Time) error {
	update := &model.ProfileUpdate{}
	if e.Demographics != nil {
		update.AgeYears = e.Demographics.AgeYears
		if e.Demographics.Gender != nil {
			gender := normalizeGender(*e.Demographics.Gender)
			update.Gender = &gender
		}
	}
	if e.HPI != nil {
		update.HistoryOfPresentIllness = e.HPI.HistoryOfPresentIllness
		update.SymptomOnset = e.HPI.SymptomOnset
		update.SymptomDuration = e.HPI.SymptomDuration
	}
	if !update.IsEmpty() {
		if err := s.records.UpsertProfileTx(ctx, tx, doc.PatientUserID, update, now); err != nil {
			return err
		}
	}

	for _, v := range e.Vitals {
		if err := s.records.InsertVitalTx(ctx, tx, &model.Vital{
			ID:               uuid.New(),
			PatientUserID:    doc.PatientUserID,
			MeasuredAt:       parseFactTime(v.MeasuredAt, now),
			Systolic:         v.Systolic,
			Diastolic:        v.Diastolic,
			HeartRate:        v.HeartRate,
			TemperatureC:     v.TemperatureC,
			SourceDocumentID: &doc.ID,
			CreatedAt:        now,
		}); err != nil {
			return err
		}
	}

	for _, l := range e.Labs {
		if err := s.records.InsertLabTx(ctx, tx, &model.LabResult{
			ID:               uuid.New(),
			PatientUserID:    doc.PatientUserID,
			CollectedAt:      parseFactTime(l.CollectedAt, now),
			TestName:         l.TestName,
			ValueText:        l.ValueText,
			ValueNum:         numericLabValue(l.ValueText),
			Unit:             l.Unit,
			ReferenceRange:   l.ReferenceRange,
			Flag:             l.Flag,
			SourceDocumentID: &doc.ID,
			CreatedAt:        now,
		}); err != nil {
			return err
		}
	}

	for _, m := range e.Medications {
		active := true
		if m.Active != nil {
			active = *m.Active
		}
		if err := s.records.InsertMedicationTx(ctx, tx, &model.Medication{
			ID:               uuid.New(),
			PatientUserID:    doc.PatientUserID,
			MedicationName:   m.MedicationName,
			Dose:             m.Dose,
			Frequency:        m.Frequency,
			Active:           active,
			NotedAt:          now,
			SourceDocumentID: &doc.ID,
			CreatedAt:        now,
		}); err != nil {
			return err
		}
	}

	for _, c := range e.Conditions {
		if err := s.records.InsertConditionTx(ctx, tx, &model.Condition{
			ID:               uuid.New(),
			PatientUserID:    doc.PatientUserID,
			ConditionName:    c.ConditionName,
			Status:           c.Status,
			NotedAt:          now,
			SourceDocumentID: &doc.ID,
			CreatedAt:        now,
		}); err != nil {
			return err
		}
	}

	return nil
}

// failParse records the parse failure on the document, emits the failure
// event, and returns the typed error for the caller.
func (s *Service) failParse(ctx context.Context, doc *model.Document, kind apperrors.Kind, cause error) error {
	s.metrics.DocumentsParsed.WithLabelValues("error").Inc()
	s.logger.Error(cause, "document parse failed",
		"document_id", doc.ID.String(),
		"reason", string(kind),
	)

	if err := s.docs.MarkError(ctx, doc.ID, string(kind)); err != nil {
		s.logger.Error(err, "failed to mark document parse error", "document_id", doc.ID.String())
	}

	payload, _ := json.Marshal(map[string]string{
		"document_id":     doc.ID.String(),
		"patient_user_id": doc.PatientUserID.String(),
		"reason":          string(kind),
	})
	if err := s.outbox.Create(ctx, &model.OutboxEvent{
		EventType: model.EventDocumentParseError,
		Payload:   payload,
	}); err != nil {
		s.logger.Error(err, "failed to record parse error event", "document_id", doc.ID.String())
	}

	if cause != nil {
		if apperrors.KindOf(cause) == kind {
			return cause
		}
		return apperrors.Wrap(kind, "document parse failed", cause)
	}
	return apperrors.New(kind)
}

// Insights returns the latest extraction run together with every fact row
// this document produced.
func (s *Service) Insights(ctx context.Context, actorUserID, documentID uuid.UUID) (*model.DocumentInsights, error) {
	doc, err := s.loadGated(ctx, actorUserID, documentID)
	if err != nil {
		return nil, err
	}

	extraction, err := s.docs.LatestExtraction(ctx, documentID)
	if err != nil {
		return nil, err
	}
	vitals, err := s.records.ListVitalsByDocument(ctx, doc.PatientUserID, documentID, insightFactLimit)
	if err != nil {
		return nil, err
	}
	labs, err := s.records.ListLabsByDocument(ctx, doc.PatientUserID, documentID, insightFactLimit)
	if err != nil {
		return nil, err
	}
	medications, err := s.records.ListMedicationsByDocument(ctx, doc.PatientUserID, documentID, insightFactLimit)
	if err != nil {
		return nil, err
	}
	conditions, err := s.records.ListConditionsByDocument(ctx, doc.PatientUserID, documentID, insightFactLimit)
	if err != nil {
		return nil, err
	}

	return &model.DocumentInsights{
		Document:    doc,
		Extraction:  extraction,
		Vitals:      vitals,
		Labs:        labs,
		Medications: medications,
		Conditions:  conditions,
	}, nil
}

func (s *Service) loadGated(ctx context.Context, actorUserID, documentID uuid.UUID) (*model.Document, error) {
	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperrors.New(apperrors.KindDocumentNotFound)
	}
	if err := s.gate.AssertPatientAccess(ctx, actorUserID, doc.PatientUserID); err != nil {
		return nil, err
	}
	return doc, nil
}
