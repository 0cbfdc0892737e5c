package confirmation

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medichat/records-api/internal/model"
	"github.com/medichat/records-api/internal/repository"
	apperrors "github.com/medichat/records-api/pkg/errors"
	"github.com/medichat/records-api/pkg/logger"
)

// ConfirmationService resolves model proposals. Nothing the model proposes
// touches the patient record until a human accepts it here.
type ConfirmationService interface {
	ListMemories(ctx context.Context, ownerUserID uuid.UUID, status *model.ProposalStatus) ([]*model.UserMemory, error)
	AcceptMemory(ctx context.Context, memoryID, ownerUserID uuid.UUID) error
	RejectMemory(ctx context.Context, memoryID, ownerUserID uuid.UUID) error

	ListSuggestions(ctx context.Context, patientUserID uuid.UUID, status *model.ProposalStatus) ([]*model.PatientRecordSuggestion, error)
	AcceptSuggestion(ctx context.Context, suggestionID, patientUserID uuid.UUID) error
	RejectSuggestion(ctx context.Context, suggestionID, patientUserID uuid.UUID) error
}

type Service struct {
	memories    repository.MemoryRepository
	suggestions repository.SuggestionRepository
	records     repository.RecordRepository
	outbox      repository.OutboxRepository
	store       repository.TxRunner
	logger      *logger.Logger
}

func NewService(
	memories repository.MemoryRepository,
	suggestions repository.SuggestionRepository,
	records repository.RecordRepository,
	outbox repository.OutboxRepository,
	store repository.TxRunner,
	logger *logger.Logger,
) *Service {
	return &Service{
		memories:    memories,
		suggestions: suggestions,
		records:     records,
		outbox:      outbox,
		store:       store,
		logger:      logger,
	}
}

func (s *Service) ListMemories(ctx context.Context, ownerUserID uuid.UUID, status *model.ProposalStatus) ([]*model.UserMemory, error) {
	return s.memories.ListByOwner(ctx, ownerUserID, status)
}

func (s *Service) AcceptMemory(ctx context.Context, memoryID, ownerUserID uuid.UUID) error {
	return s.resolveMemory(ctx, memoryID, ownerUserID, model.ProposalStatusAccepted)
}

func (s *Service) RejectMemory(ctx context.Context, memoryID, ownerUserID uuid.UUID) error {
	return s.resolveMemory(ctx, memoryID, ownerUserID, model.ProposalStatusRejected)
}

func (s *Service) resolveMemory(ctx context.Context, memoryID, ownerUserID uuid.UUID, status model.ProposalStatus) error {
	affected, err := s.memories.Resolve(ctx, memoryID, ownerUserID, status, time.Now())
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.New(apperrors.KindMemoryNotFound)
	}
	return nil
}

func (s *Service) ListSuggestions(ctx context.Context, patientUserID uuid.UUID, status *model.ProposalStatus) ([]*model.PatientRecordSuggestion, error) {
	return s.suggestions.ListForPatient(ctx, patientUserID, status)
}

// AcceptSuggestion validates the stored payload against the suggestion's
// kind, then applies the typed write and flips the suggestion in one
// transaction. Applied rows carry no source document: their provenance is the
// accepting human, reachable through the suggestion's thread links.
func (s *Service) AcceptSuggestion(ctx context.Context, suggestionID, patientUserID uuid.UUID) error {
	suggestion, err := s.suggestions.Get(ctx, suggestionID)
	if err != nil {
		return err
	}
	if suggestion == nil || suggestion.PatientUserID != patientUserID {
		return apperrors.New(apperrors.KindSuggestionNotFound)
	}

	now := time.Now()
	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.applySuggestion(ctx, tx, suggestion, now); err != nil {
			return err
		}

		affected, err := s.suggestions.ResolveTx(ctx, tx, suggestionID, patientUserID, model.ProposalStatusAccepted, now)
		if err != nil {
			return err
		}
		if affected == 0 {
			return apperrors.New(apperrors.KindSuggestionNotFound)
		}

		payload, _ := json.Marshal(map[string]string{
			"suggestion_id":   suggestion.ID.String(),
			"patient_user_id": patientUserID.String(),
			"kind":            string(suggestion.Kind),
		})
		return s.outbox.CreateTx(ctx, tx, &model.OutboxEvent{
			EventType: model.EventSuggestionAccepted,
			Payload:   payload,
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("record suggestion accepted",
		"suggestion_id", suggestion.ID.String(),
		"kind", string(suggestion.Kind),
	)
	return nil
}

func (s *Service) RejectSuggestion(ctx context.Context, suggestionID, patientUserID uuid.UUID) error {
	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		affected, err := s.suggestions.ResolveTx(ctx, tx, suggestionID, patientUserID, model.ProposalStatusRejected, time.Now())
		if err != nil {
			return err
		}
		if affected == 0 {
			return apperrors.New(apperrors.KindSuggestionNotFound)
		}
		return nil
	})
	return err
}

func (s *Service) applySuggestion(ctx context.Context, tx *sqlx.Tx, suggestion *model.PatientRecordSuggestion, now time.Time) error {
	switch suggestion.Kind {
	case model.SuggestionKindProfileUpdate:
		var update model.ProfileUpdate
		if err := json.Unmarshal(suggestion.PayloadJSON, &update); err != nil {
			return apperrors.Wrap(apperrors.KindBadRequest, "profile_update payload is invalid", err)
		}
		if update.IsEmpty() {
			return apperrors.Newf(apperrors.KindBadRequest, "profile_update payload changes nothing")
		}
		return s.records.UpsertProfileTx(ctx, tx, suggestion.PatientUserID, &update, now)

	case model.SuggestionKindVital:
		var p model.VitalPayload
		if err := json.Unmarshal(suggestion.PayloadJSON, &p); err != nil {
			return apperrors.Wrap(apperrors.KindBadRequest, "vital payload is invalid", err)
		}
		return s.records.InsertVitalTx(ctx, tx, &model.Vital{
			ID:            uuid.New(),
			PatientUserID: suggestion.PatientUserID,
			MeasuredAt:    payloadTime(p.MeasuredAt, now),
			Systolic:      p.Systolic,
			Diastolic:     p.Diastolic,
			HeartRate:     p.HeartRate,
			TemperatureC:  p.TemperatureC,
			CreatedAt:     now,
		})

	case model.SuggestionKindLab:
		var p model.LabPayload
		if err := json.Unmarshal(suggestion.PayloadJSON, &p); err != nil {
			return apperrors.Wrap(apperrors.KindBadRequest, "lab payload is invalid", err)
		}
		if strings.TrimSpace(p.TestName) == "" || strings.TrimSpace(p.ValueText) == "" {
			return apperrors.Newf(apperrors.KindBadRequest, "lab payload is missing testName or valueText")
		}
		return s.records.InsertLabTx(ctx, tx, &model.LabResult{
			ID:             uuid.New(),
			PatientUserID:  suggestion.PatientUserID,
			CollectedAt:    payloadTime(p.CollectedAt, now),
			TestName:       p.TestName,
			ValueText:      p.ValueText,
			ValueNum:       p.ValueNum,
			Unit:           p.Unit,
			ReferenceRange: p.ReferenceRange,
			Flag:           p.Flag,
			CreatedAt:      now,
		})

	case model.SuggestionKindMedication:
		var p model.MedicationPayload
		if err := json.Unmarshal(suggestion.PayloadJSON, &p); err != nil {
			return apperrors.Wrap(apperrors.KindBadRequest, "medication payload is invalid", err)
		}
		if strings.TrimSpace(p.MedicationName) == "" {
			return apperrors.Newf(apperrors.KindBadRequest, "medication payload is missing medicationName")
		}
		active := true
		if p.Active != nil {
			active = *p.Active
		}
		return s.records.InsertMedicationTx(ctx, tx, &model.Medication{
			ID:             uuid.New(),
			PatientUserID:  suggestion.PatientUserID,
			MedicationName: p.MedicationName,
			Dose:           p.Dose,
			Frequency:      p.Frequency,
			Active:         active,
			NotedAt:        now,
			CreatedAt:      now,
		})

	case model.SuggestionKindCondition:
		var p model.ConditionPayload
		if err := json.Unmarshal(suggestion.PayloadJSON, &p); err != nil {
			return apperrors.Wrap(apperrors.KindBadRequest, "condition payload is invalid", err)
		}
		if strings.TrimSpace(p.ConditionName) == "" {
			return apperrors.Newf(apperrors.KindBadRequest, "condition payload is missing conditionName")
		}
		return s.records.InsertConditionTx(ctx, tx, &model.Condition{
			ID:            uuid.New(),
			PatientUserID: suggestion.PatientUserID,
			ConditionName: p.ConditionName,
			Status:        p.Status,
			NotedAt:       now,
			CreatedAt:     now,
		})

	default:
		return apperrors.Newf(apperrors.KindBadRequest, "unknown suggestion kind %q", suggestion.Kind)
	}
}

func payloadTime(raw *string, now time.Time) time.Time {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return now
	}
	value := strings.TrimSpace(*raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return now
}
