package model

import (
	"time"

	"github.com/google/uuid"
)

// PatientProfile is the single mutable profile row per patient. Pointer
// fields are nullable in the database.
type PatientProfile struct {
	PatientUserID           uuid.UUID `db:"patient_user_id" json:"patient_user_id"`
	AgeYears                *int      `db:"age_years" json:"age_years,omitempty"`
	Gender                  string    `db:"gender" json:"gender"`
	HistoryOfPresentIllness *string   `db:"history_of_present_illness" json:"history_of_present_illness,omitempty"`
	SymptomOnset            *string   `db:"symptom_onset" json:"symptom_onset,omitempty"`
	SymptomDuration         *string   `db:"symptom_duration" json:"symptom_duration,omitempty"`
	SmokingStatus           string    `db:"smoking_status" json:"smoking_status"`
	AlcoholConsumption      string    `db:"alcohol_consumption" json:"alcohol_consumption"`
	PhysicalActivityLevel   string    `db:"physical_activity_level" json:"physical_activity_level"`
	CreatedAt               time.Time `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time `db:"updated_at" json:"updated_at"`
}

// ProfileUpdate carries only the fields to change; nil fields are left
// untouched by the upsert.
type ProfileUpdate struct {
	AgeYears                *int    `json:"age_years,omitempty"`
	Gender                  *string `json:"gender,omitempty"`
	HistoryOfPresentIllness *string `json:"history_of_present_illness,omitempty"`
	SymptomOnset            *string `json:"symptom_onset,omitempty"`
	SymptomDuration         *string `json:"symptom_duration,omitempty"`
	SmokingStatus           *string `json:"smoking_status,omitempty"`
	AlcoholConsumption      *string `json:"alcohol_consumption,omitempty"`
	PhysicalActivityLevel   *string `json:"physical_activity_level,omitempty"`
}

// IsEmpty reports whether the update would touch nothing.
func (u *ProfileUpdate) IsEmpty() bool {
	return u.AgeYears == nil && u.Gender == nil && u.HistoryOfPresentIllness == nil &&
		u.SymptomOnset == nil && u.SymptomDuration == nil && u.SmokingStatus == nil &&
		u.AlcoholConsumption == nil && u.PhysicalActivityLevel == nil
}

/// Vital is one vitals measurement. SourceDocumentID is the provenance link:
// non-nil means extracted from a document, nil means entered by a human or
// applied from an accepted chat suggestion.
type Vital struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	PatientUserID    uuid.UUID  `db:"patient_user_id" json:"patient_user_id"`
	MeasuredAt       time.Time  `db:"measured_at" json:"measured_at"`
	Systolic         *int       `db:"systolic" json:"systolic,omitempty"`
	Diastolic        *int       `db:"diastolic" json:"diastolic,omitempty"`
	HeartRate        *int       `db:"heart_rate" json:"heart_rate,omitempty"`
	TemperatureC     *float64   `db:"temperature_c" json:"temperature_c,omitempty"`
	SourceDocumentID *uuid.UUID `db:"source_document_id" json:"source_document_id,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

type LabResult struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	PatientUserID    uuid.UUID  `db:"patient_user_id" json:"patient_user_id"`
	CollectedAt      time.Time  `db:"collected_at" json:"collected_at"`
	TestName         string     `db:"test_name" json:"test_name"`
	ValueText        string     `db:"value_text" json:"value_text"`
	ValueNum         *float64   `db:"value_num" json:"value_num,omitempty"`
	Unit             *string    `db:"unit" json:"unit,omitempty"`
	ReferenceRange   *string    `db:"reference_range" json:"reference_range,omitempty"`
	Flag             *string    `db:"flag" json:"flag,omitempty"`
	SourceDocumentID *uuid.UUID `db:"source_document_id" json:"source_document_id,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

type Medication struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	PatientUserID    uuid.UUID  `db:"patient_user_id" json:"patient_user_id"`
	MedicationName   string     `db:"medication_name" json:"medication_name"`
	Dose             *string    `db:"dose" json:"dose,omitempty"`
	Frequency        *string    `db:"frequency" json:"frequency,omitempty"`
	Active           bool       `db:"active" json:"active"`
	NotedAt          time.Time  `db:"noted_at" json:"noted_at"`
	SourceDocumentID *uuid.UUID `db:"source_document_id" json:"source_document_id,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

type Condition struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	PatientUserID    uuid.UUID  `db:"patient_user_id" json:"patient_user_id"`
	ConditionName    string     `db:"condition_name" json:"condition_name"`
	Status           *string    `db:"status" json:"status,omitempty"`
	NotedAt          time.Time  `db:"noted_at" json:"noted_at"`
	SourceDocumentID *uuid.UUID `db:"source_document_id" json:"source_document_id,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}
