package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type DocumentStatus string

const (
	DocumentStatusUploaded DocumentStatus = "uploaded"
	DocumentStatusParsed   DocumentStatus = "parsed"
	DocumentStatusError    DocumentStatus = "error"
)

type Document struct {
	ID               uuid.UUID      `db:"id" json:"id"`
	PatientUserID    uuid.UUID      `db:"patient_user_id" json:"patient_user_id"`
	UploadedByUserID uuid.UUID      `db:"uploaded_by_user_id" json:"uploaded_by_user_id"`
	OriginalFileName string         `db:"original_file_name" json:"original_file_name"`
	ContentType      string         `db:"content_type" json:"content_type"`
	SizeBytes        int64          `db:"size_bytes" json:"size_bytes"`
	ObjectKey        *string        `db:"object_key" json:"object_key,omitempty"`
	Status           DocumentStatus `db:"status" json:"status"`
	ParsedAt         *time.Time     `db:"parsed_at" json:"parsed_at,omitempty"`
	ParseError       *string        `db:"parse_error" json:"parse_error,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}

// DocumentText holds the extracted plain text, one row per document
// (upserted on re-parse, never appended).
type DocumentText struct {
	DocumentID    uuid.UUID `db:"document_id" json:"document_id"`
	ExtractedText string    `db:"extracted_text" json:"extracted_text"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// DocumentExtraction is the append-only audit of one LLM extraction run.
type DocumentExtraction struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	DocumentID    uuid.UUID       `db:"document_id" json:"document_id"`
	Model         string          `db:"model" json:"model"`
	ExtractedJSON json.RawMessage `db:"extracted_json" json:"extracted_json"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Extraction is the structured payload the model must produce for a
// document. Every section is optional; arrays may be empty.
type Extraction struct {
	Demographics *ExtractedDemographics `json:"demographics,omitempty"`
	HPI          *ExtractedHPI          `json:"hpi,omitempty"`
	Vitals       []ExtractedVital       `json:"vitals,omitempty"`
	Labs         []ExtractedLab         `json:"labs,omitempty"`
	Medications  []ExtractedMedication  `json:"medications,omitempty"`
	Conditions   []ExtractedCondition   `json:"conditions,omitempty"`
}

type ExtractedDemographics struct {
	AgeYears *int    `json:"ageYears,omitempty"`
	Gender   *string `json:"gender,omitempty"`
}

type ExtractedHPI struct {
	HistoryOfPresentIllness *string `json:"historyOfPresentIllness,omitempty"`
	SymptomOnset            *string `json:"symptomOnset,omitempty"`
	SymptomDuration         *string `json:"symptomDuration,omitempty"`
}

type ExtractedVital struct {
	MeasuredAt   *string  `json:"measuredAt,omitempty"`
	Systolic     *int     `json:"systolic,omitempty"`
	Diastolic    *int     `json:"diastolic,omitempty"`
	HeartRate    *int     `json:"heartRate,omitempty"`
	TemperatureC *float64 `json:"temperatureC,omitempty"`
}

type ExtractedLab struct {
	CollectedAt    *string `json:"collectedAt,omitempty"`
	TestName       string  `json:"testName"`
	ValueText      string  `json:"valueText"`
	Unit           *string `json:"unit,omitempty"`
	ReferenceRange *string `json:"referenceRange,omitempty"`
	Flag           *string `json:"flag,omitempty"`
}

type ExtractedMedication struct {
	MedicationName string  `json:"medicationName"`
	Dose           *string `json:"dose,omitempty"`
	Frequency      *string `json:"frequency,omitempty"`
	Active         *bool   `json:"active,omitempty"`
}

type ExtractedCondition struct {
	ConditionName string  `json:"conditionName"`
	Status        *string `json:"status,omitempty"`
}

// DocumentInsights bundles the latest extraction with the fact rows the
// document produced; used by both the insights endpoint and the chat tool.
type DocumentInsights struct {
	Document    *Document           `json:"document"`
	Extraction  *DocumentExtraction `json:"extraction,omitempty"`
	Vitals      []*Vital            `json:"vitals"`
	Labs        []*LabResult        `json:"labs"`
	Medications []*Medication       `json:"medications"`
	Conditions  []*Condition        `json:"conditions"`
}
