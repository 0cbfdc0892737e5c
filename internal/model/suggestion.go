package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type SuggestionKind string

const (
	SuggestionKindProfileUpdate SuggestionKind = "profile_update"
	SuggestionKindVital         SuggestionKind = "vital"
	SuggestionKindLab           SuggestionKind = "lab"
	SuggestionKindMedication    SuggestionKind = "medication"
	SuggestionKindCondition     SuggestionKind = "condition"
)

// ValidSuggestionKind reports whether k is one of the known kinds.
func ValidSuggestionKind(k SuggestionKind) bool {
	switch k {
	case SuggestionKindProfileUpdate, SuggestionKindVital, SuggestionKindLab,
		SuggestionKindMedication, SuggestionKindCondition:
		return true
	}
	return false
}

// PatientRecordSuggestion is a record mutation the model proposed. The
// payload is free-form at proposal time and validated against the kind's
// shape only when a human accepts it.
type PatientRecordSuggestion struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	PatientUserID   uuid.UUID       `db:"patient_user_id" json:"patient_user_id"`
	Kind            SuggestionKind  `db:"kind" json:"kind"`
	SummaryText     string          `db:"summary_text" json:"summary_text"`
	PayloadJSON     json.RawMessage `db:"payload_json" json:"payload_json"`
	Status          ProposalStatus  `db:"status" json:"status"`
	SourceThreadID  *uuid.UUID      `db:"source_thread_id" json:"source_thread_id,omitempty"`
	SourceMessageID *uuid.UUID      `db:"source_message_id" json:"source_message_id,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Per-kind payload shapes, decoded at accept time. Missing date fields
// default to the acceptance time.

type VitalPayload struct {
	MeasuredAt   *string  `json:"measuredAt,omitempty"`
	Systolic     *int     `json:"systolic,omitempty"`
	Diastolic    *int     `json:"diastolic,omitempty"`
	HeartRate    *int     `json:"heartRate,omitempty"`
	TemperatureC *float64 `json:"temperatureC,omitempty"`
}

type LabPayload struct {
	CollectedAt    *string  `json:"collectedAt,omitempty"`
	TestName       string   `json:"testName"`
	ValueText      string   `json:"valueText"`
	ValueNum       *float64 `json:"valueNum,omitempty"`
	Unit           *string  `json:"unit,omitempty"`
	ReferenceRange *string  `json:"referenceRange,omitempty"`
	Flag           *string  `json:"flag,omitempty"`
}

type MedicationPayload struct {
	MedicationName string  `json:"medicationName"`
	Dose           *string `json:"dose,omitempty"`
	Frequency      *string `json:"frequency,omitempty"`
	Active         *bool   `json:"active,omitempty"`
}

type ConditionPayload struct {
	ConditionName string  `json:"conditionName"`
	Status        *string `json:"status,omitempty"`
}
