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

type recordRepository struct {
	db *sqlx.DB
}

func NewRecordRepository(db *sqlx.DB) repository.RecordRepository {
	return &recordRepository{db: db}
}

func (r *recordRepository) GetProfile(ctx context.Context, patientUserID uuid.UUID) (*model.PatientProfile, error) {
	query := `SELECT * FROM patient_profiles WHERE patient_user_id = $1`
	var profile model.PatientProfile
	err := r.db.GetContext(ctx, &profile, query, patientUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient profile: %w", err)
	}
	return &profile, nil
}

// UpsertProfileTx merges only the reported fields: nil update fields keep
// the stored value on conflict and fall back to column defaults on insert.
func (r *recordRepository) UpsertProfileTx(ctx context.Context, tx *sqlx.Tx, patientUserID uuid.UUID, update *model.ProfileUpdate, now time.Time) error {
	query := `
		INSERT INTO patient_profiles (
			patient_user_id, age_years, gender, history_of_present_illness,
			symptom_onset, symptom_duration, smoking_status,
			alcohol_consumption, physical_activity_level, created_at, updated_at
		) VALUES (
			$1, $2, COALESCE($3, 'unknown'), $4, $5, $6,
			COALESCE($7, 'unknown'), COALESCE($8, 'unknown'), COALESCE($9, 'unknown'), $10, $10
		)
		ON CONFLICT (patient_user_id) DO UPDATE SET
			age_years = COALESCE(EXCLUDED.age_years, patient_profiles.age_years),
			gender = COALESCE($3, patient_profiles.gender),
			history_of_present_illness = COALESCE(EXCLUDED.history_of_present_illness, patient_profiles.history_of_present_illness),
			symptom_onset = COALESCE(EXCLUDED.symptom_onset, patient_profiles.symptom_onset),
			symptom_duration = COALESCE(EXCLUDED.symptom_duration, patient_profiles.symptom_duration),
			smoking_status = COALESCE($7, patient_profiles.smoking_status),
			alcohol_consumption = COALESCE($8, patient_profiles.alcohol_consumption),
			physical_activity_level = COALESCE($9, patient_profiles.physical_activity_level),
			updated_at = EXCLUDED.updated_at
	`
	_, err := tx.ExecContext(ctx, query,
		patientUserID,
		update.AgeYears,
		update.Gender,
		update.HistoryOfPresentIllness,
		update.SymptomOnset,
		update.SymptomDuration,
		update.SmokingStatus,
		update.AlcoholConsumption,
		update.PhysicalActivityLevel,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert patient profile: %w", err)
	}
	return nil
}

func (r *recordRepository) InsertVitalTx(ctx context.Context, tx *sqlx.Tx, v *model.Vital) error {
	query := `
		INSERT INTO patient_vitals (
			id, patient_user_id, measured_at, systolic, diastolic,
			heart_rate, temperature_c, source_document_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.ExecContext(ctx, query,
		v.ID, v.PatientUserID, v.MeasuredAt, v.Systolic, v.Diastolic,
		v.HeartRate, v.TemperatureC, v.SourceDocumentID, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert vital: %w", err)
	}
	return nil
}

func (r *recordRepository) InsertLabTx(ctx context.Context, tx *sqlx.Tx, l *model.LabResult) error {
	query := `
		INSERT INTO patient_lab_results (
			id, patient_user_id, collected_at, test_name, value_text, value_num,
			unit, reference_range, flag, source_document_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := tx.ExecContext(ctx, query,
		l.ID, l.PatientUserID, l.CollectedAt, l.TestName, l.ValueText, l.ValueNum,
		l.Unit, l.ReferenceRange, l.Flag, l.SourceDocumentID, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lab result: %w", err)
	}
	return nil
}

func (r *recordRepository) InsertMedicationTx(ctx context.Context, tx *sqlx.Tx, m *model.Medication) error {
	query := `
		INSERT INTO patient_medications (
			id, patient_user_id, medication_name, dose, frequency,
			active, noted_at, source_document_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.ExecContext(ctx, query,
		m.ID, m.PatientUserID, m.MedicationName, m.Dose, m.Frequency,
		m.Active, m.NotedAt, m.SourceDocumentID, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert medication: %w", err)
	}
	return nil
}

func (r *recordRepository) InsertConditionTx(ctx context.Context, tx *sqlx.Tx, c *model.Condition) error {
	query := `
		INSERT INTO patient_conditions (
			id, patient_user_id, condition_name, status,
			noted_at, source_document_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		c.ID, c.PatientUserID, c.ConditionName, c.Status,
		c.NotedAt, c.SourceDocumentID, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert condition: %w", err)
	}
	return nil
}

func (r *recordRepository) LatestVital(ctx context.Context, patientUserID uuid.UUID) (*model.Vital, error) {
	query := `
		SELECT * FROM patient_vitals
		WHERE patient_user_id = $1
		ORDER BY measured_at DESC
		LIMIT 1
	`
	var vital model.Vital
	err := r.db.GetContext(ctx, &vital, query, patientUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest vital: %w", err)
	}
	return &vital, nil
}

func (r *recordRepository) ListLabs(ctx context.Context, patientUserID uuid.UUID, limit int) ([]*model.LabResult, error) {
	query := `
		SELECT * FROM patient_lab_results
		WHERE patient_user_id = $1
		ORDER BY collected_at DESC
		LIMIT $2
	`
	var labs []*model.LabResult
	err := r.db.SelectContext(ctx, &labs, query, patientUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list lab results: %w", err)
	}
	return labs, nil
}

func (r *recordRepository) ListMedications(ctx context.Context, patientUserID uuid.UUID, limit int) ([]*model.Medication, error) {
	query := `
		SELECT * FROM patient_medications
		WHERE patient_user_id = $1
		ORDER BY noted_at DESC
		LIMIT $2
	`
	var meds []*model.Medication
	err := r.db.SelectContext(ctx, &meds, query, patientUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list medications: %w", err)
	}
	return meds, nil
}

func (r *recordRepository) ListConditions(ctx context.Context, patientUserID uuid.UUID, limit int) ([]*model.Condition, error) {
	query := `
		SELECT * FROM patient_conditions
		WHERE patient_user_id = $1
		ORDER BY noted_at DESC
		LIMIT $2
	`
	var conditions []*model.Condition
	err := r.db.SelectContext(ctx, &conditions, query, patientUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conditions: %w", err)
	}
	return conditions, nil
}

func (r *recordRepository) ListVitalsByDocument(ctx context.Context, patientUserID, documentID uuid.UUID, limit int) ([]*model.Vital, error) {
	query := `
		SELECT * FROM patient_vitals
		WHERE patient_user_id = $1 AND source_document_id = $2
		ORDER BY measured_at DESC
		LIMIT $3
	`
	var vitals []*model.Vital
	err := r.db.SelectContext(ctx, &vitals, query, patientUserID, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list vitals by document: %w", err)
	}
	return vitals, nil
}

func (r *recordRepository) ListLabsByDocument(ctx context.Context, patientUserID, documentID uuid.UUID, limit int) ([]*model.LabResult, error) {
	query := `
		SELECT * FROM patient_lab_results
		WHERE patient_user_id = $1 AND source_document_id = $2
		ORDER BY collected_at DESC
		LIMIT $3
	`
	var labs []*model.LabResult
	err := r.db.SelectContext(ctx, &labs, query, patientUserID, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list labs by document: %w", err)
	}
	return labs, nil
}

func (r *recordRepository) ListMedicationsByDocument(ctx context.Context, patientUserID, documentID uuid.UUID, limit int) ([]*model.Medication, error) {
	query := `
		SELECT * FROM patient_medications
		WHERE patient_user_id = $1 AND source_document_id = $2
		ORDER BY noted_at DESC
		LIMIT $3
	`
	var meds []*model.Medication
	err := r.db.SelectContext(ctx, &meds, query, patientUserID, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list medications by document: %w", err)
	}
	return meds, nil
}

func (r *recordRepository) ListConditionsByDocument(ctx context.Context, patientUserID, documentID uuid.UUID, limit int) ([]*model.Condition, error) {
	query := `
		SELECT * FROM patient_conditions
		WHERE patient_user_id = $1 AND source_document_id = $2
		ORDER BY noted_at DESC
		LIMIT $3
	`
	var conditions []*model.Condition
	err := r.db.SelectContext(ctx, &conditions, query, patientUserID, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conditions by document: %w", err)
	}
	return conditions, nil
}
