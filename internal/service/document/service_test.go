package document

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medichat/records-api/internal/model"
	apperrors "github.com/medichat/records-api/pkg/errors"
	"github.com/medichat/records-api/pkg/ai"
	"github.com/medichat/records-api/pkg/logger"
	"github.com/medichat/records-api/pkg/metrics"
)

// Shared across the package's tests; prometheus collectors register globally.
var testMetrics = metrics.NewMetrics("medichat_test", "document")

type fakeStore struct{}

func (fakeStore) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

type allowAllGate struct{}

func (allowAllGate) CanAccessPatient(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return true, nil
}
func (allowAllGate) AssertPatientAccess(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

type denyAllGate struct{}

func (denyAllGate) CanAccessPatient(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return false, nil
}
func (denyAllGate) AssertPatientAccess(context.Context, uuid.UUID, uuid.UUID) error {
	return apperrors.New(apperrors.KindForbiddenPatient)
}

type fakeBlobStore struct {
	objects map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) GetObject(_ context.Context, key string) ([]byte, error) {
	return f.objects[key], nil
}

func (f *fakeBlobStore) PutObject(_ context.Context, key string, data []byte, _ string) error {
	f.objects[key] = data
	return nil
}

type fakeCompleter struct {
	responses []string
	err       error
	requests  []*ai.ChatRequest
}

func (f *fakeCompleter) ChatCompletion(_ context.Context, req *ai.ChatRequest) (*ai.ChatResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	content := ""
	if len(f.responses) > 0 {
		content = f.responses[0]
		f.responses = f.responses[1:]
	}
	return &ai.ChatResponse{
		Choices: []ai.Choice{{Message: ai.Message{Role: ai.RoleAssistant, Content: content}}},
	}, nil
}

type fakeDocRepo struct {
	docs        map[uuid.UUID]*model.Document
	texts       map[uuid.UUID]string
	extractions []*model.DocumentExtraction
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{
		docs:  make(map[uuid.UUID]*model.Document),
		texts: make(map[uuid.UUID]string),
	}
}

func (f *fakeDocRepo) Create(_ context.Context, doc *model.Document) error {
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeDocRepo) Get(_ context.Context, id uuid.UUID) (*model.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeDocRepo) ListForPatient(_ context.Context, patientUserID uuid.UUID) ([]*model.Document, error) {
	var out []*model.Document
	for _, d := range f.docs {
		if d.PatientUserID == patientUserID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeDocRepo) MarkParsedTx(_ context.Context, _ *sqlx.Tx, id uuid.UUID, at time.Time) error {
	doc := f.docs[id]
	doc.Status = model.DocumentStatusParsed
	doc.ParsedAt = &at
	doc.ParseError = nil
	return nil
}

func (f *fakeDocRepo) MarkError(_ context.Context, id uuid.UUID, reason string) error {
	doc := f.docs[id]
	doc.Status = model.DocumentStatusError
	doc.ParseError = &reason
	return nil
}

func (f *fakeDocRepo) UpsertText(_ context.Context, documentID uuid.UUID, text string) error {
	f.texts[documentID] = text
	return nil
}

func (f *fakeDocRepo) InsertExtractionTx(_ context.Context, _ *sqlx.Tx, extraction *model.DocumentExtraction) error {
	f.extractions = append(f.extractions, extraction)
	return nil
}

func (f *fakeDocRepo) LatestExtraction(_ context.Context, documentID uuid.UUID) (*model.DocumentExtraction, error) {
	for i := len(f.extractions) - 1; i >= 0; i-- {
		if f.extractions[i].DocumentID == documentID {
			return f.extractions[i], nil
		}
	}
	return nil, nil
}

type fakeRecordRepo struct {
	profiles    map[uuid.UUID]*model.ProfileUpdate
	vitals      []*model.Vital
	labs        []*model.LabResult
	medications []*model.Medication
	conditions  []*model.Condition
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{profiles: make(map[uuid.UUID]*model.ProfileUpdate)}
}

func (f *fakeRecordRepo) GetProfile(context.Context, uuid.UUID) (*model.PatientProfile, error) {
	return nil, nil
}

func (f *fakeRecordRepo) UpsertProfileTx(_ context.Context, _ *sqlx.Tx, patientUserID uuid.UUID, update *model.ProfileUpdate, _ time.Time) error {
	f.profiles[patientUserID] = update
	return nil
}

func (f *fakeRecordRepo) InsertVitalTx(_ context.Context, _ *sqlx.Tx, v *model.Vital) error {
	f.vitals = append(f.vitals, v)
	return nil
}

func (f *fakeRecordRepo) InsertLabTx(_ context.Context, _ *sqlx.Tx, l *model.LabResult) error {
	f.labs = append(f.labs, l)
	return nil
}

func (f *fakeRecordRepo) InsertMedicationTx(_ context.Context, _ *sqlx.Tx, m *model.Medication) error {
	f.medications = append(f.medications, m)
	return nil
}

func (f *fakeRecordRepo) InsertConditionTx(_ context.Context, _ *sqlx.Tx, c *model.Condition) error {
	f.conditions = append(f.conditions, c)
	return nil
}

func (f *fakeRecordRepo) LatestVital(context.Context, uuid.UUID) (*model.Vital, error) {
	return nil, nil
}

func (f *fakeRecordRepo) ListLabs(context.Context, uuid.UUID, int) ([]*model.LabResult, error) {
	return f.labs, nil
}

func (f *fakeRecordRepo) ListMedications(context.Context, uuid.UUID, int) ([]*model.Medication, error) {
	return f.medications, nil
}

func (f *fakeRecordRepo) ListConditions(context.Context, uuid.UUID, int) ([]*model.Condition, error) {
	return f.conditions, nil
}

func (f *fakeRecordRepo) ListVitalsByDocument(_ context.Context, _ uuid.UUID, documentID uuid.UUID, _ int) ([]*model.Vital, error) {
	var out []*model.Vital
	for _, v := range f.vitals {
		if v.SourceDocumentID != nil && *v.SourceDocumentID == documentID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) ListLabsByDocument(_ context.Context, _ uuid.UUID, documentID uuid.UUID, _ int) ([]*model.LabResult, error) {
	var out []*model.LabResult
	for _, l := range f.labs {
		if l.SourceDocumentID != nil && *l.SourceDocumentID == documentID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) ListMedicationsByDocument(_ context.Context, _ uuid.UUID, documentID uuid.UUID, _ int) ([]*model.Medication, error) {
	var out []*model.Medication
	for _, m := range f.medications {
		if m.SourceDocumentID != nil && *m.SourceDocumentID == documentID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) ListConditionsByDocument(_ context.Context, _ uuid.UUID, documentID uuid.UUID, _ int) ([]*model.Condition, error) {
	var out []*model.Condition
	for _, c := range f.conditions {
		if c.SourceDocumentID != nil && *c.SourceDocumentID == documentID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeOutboxRepo struct {
	events []*model.OutboxEvent
}

func (f *fakeOutboxRepo) Create(_ context.Context, e *model.OutboxEvent) error {
	f.events = append(f.events, e)
	return nil
}

func (f *fakeOutboxRepo) CreateTx(_ context.Context, _ *sqlx.Tx, e *model.OutboxEvent) error {
	f.events = append(f.events, e)
	return nil
}

func (f *fakeOutboxRepo) GetPendingEvents(context.Context, int) ([]*model.OutboxEvent, error) {
	return nil, nil
}

func (f *fakeOutboxRepo) UpdateStatus(context.Context, uuid.UUID, model.OutboxStatus, *string) error {
	return nil
}

type testEnv struct {
	svc     *Service
	docs    *fakeDocRepo
	records *fakeRecordRepo
	outbox  *fakeOutboxRepo
	blobs   *fakeBlobStore
	ai      *fakeCompleter
}

func newTestEnv(completer *fakeCompleter) *testEnv {
	docs := newFakeDocRepo()
	records := newFakeRecordRepo()
	outbox := &fakeOutboxRepo{}
	blobs := newFakeBlobStore()
	log := logger.NewLogger(&logger.Config{Output: io.Discard})

	svc := NewService(docs, records, outbox, fakeStore{}, allowAllGate{}, blobs,
		completer, "extract-model", testMetrics, log)
	return &testEnv{svc: svc, docs: docs, records: records, outbox: outbox, blobs: blobs, ai: completer}
}

const labReportExtraction = `{
	"demographics": {"ageYears": 54, "gender": "F"},
	"hpi": {"historyOfPresentIllness": "Fatigue for three months"},
	"vitals": [{"measuredAt": "2024-01-15", "systolic": 132, "diastolic": 84}],
	"labs": [{"collectedAt": "2024-01-15", "testName": "HbA1c", "valueText": "6.1", "unit": "%", "referenceRange": "4.0-5.6", "flag": "high"}],
	"medications": [{"medicationName": "Metformin", "dose": "500 mg", "frequency": "twice daily", "active": true}],
	"conditions": [{"conditionName": "Prediabetes", "status": "active"}]
}`

func TestParseDocument(t *testing.T) {
	ctx := context.Background()
	patient := uuid.New()

	t.Run("full pipeline over a lab report", func(t *testing.T) {
		env := newTestEnv(&fakeCompleter{responses: []string{labReportExtraction}})

		doc, err := env.svc.Upload(ctx, patient, patient, "labs.txt", "text/plain",
			[]byte("HbA1c 6.1 % (ref 4.0-5.6) HIGH, collected 2024-01-15"))
		require.NoError(t, err)

		parsed, err := env.svc.Parse(ctx, patient, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, model.DocumentStatusParsed, parsed.Status)
		assert.NotNil(t, parsed.ParsedAt)

		assert.NotEmpty(t, env.docs.texts[doc.ID])
		require.Len(t, env.docs.extractions, 1)
		assert.Equal(t, "extract-model", env.docs.extractions[0].Model)

		profile := env.records.profiles[patient]
		require.NotNil(t, profile)
		require.NotNil(t, profile.Gender)
		assert.Equal(t, "female", *profile.Gender, "gender must be normalized")
		require.NotNil(t, profile.AgeYears)
		assert.Equal(t, 54, *profile.AgeYears)

		require.Len(t, env.records.labs, 1)
		lab := env.records.labs[0]
		assert.Equal(t, "HbA1c", lab.TestName)
		assert.Equal(t, "6.1", lab.ValueText)
		require.NotNil(t, lab.ValueNum)
		assert.InDelta(t, 6.1, *lab.ValueNum, 0.0001)
		require.NotNil(t, lab.SourceDocumentID)
		assert.Equal(t, doc.ID, *lab.SourceDocumentID)
		assert.Equal(t, time.January, lab.CollectedAt.Month())

		require.Len(t, env.records.vitals, 1)
		require.Len(t, env.records.medications, 1)
		require.Len(t, env.records.conditions, 1)

		require.Len(t, env.outbox.events, 1)
		assert.Equal(t, model.EventDocumentParsed, env.outbox.events[0].EventType)

		// Extraction runs at temperature zero.
		require.NotEmpty(t, env.ai.requests)
		assert.Zero(t, env.ai.requests[0].Temperature)
	})

	t.Run("document with no extractable text", func(t *testing.T) {
		env := newTestEnv(&fakeCompleter{})

		doc, err := env.svc.Upload(ctx, patient, patient, "blank.txt", "text/plain", []byte("   \n  "))
		require.NoError(t, err)

		_, err = env.svc.Parse(ctx, patient, doc.ID)
		assert.Equal(t, apperrors.KindNoTextExtracted, apperrors.KindOf(err))

		stored, _ := env.docs.Get(ctx, doc.ID)
		assert.Equal(t, model.DocumentStatusError, stored.Status)
		require.NotNil(t, stored.ParseError)
		assert.Equal(t, string(apperrors.KindNoTextExtracted), *stored.ParseError)

		require.Len(t, env.outbox.events, 1)
		assert.Equal(t, model.EventDocumentParseError, env.outbox.events[0].EventType)

		// The model is never called when there is nothing to extract.
		assert.Empty(t, env.ai.requests)
	})

	t.Run("model reply without JSON", func(t *testing.T) {
		env := newTestEnv(&fakeCompleter{responses: []string{"I could not read this document."}})

		doc, err := env.svc.Upload(ctx, patient, patient, "note.txt", "text/plain", []byte("some clinical note"))
		require.NoError(t, err)

		_, err = env.svc.Parse(ctx, patient, doc.ID)
		assert.Equal(t, apperrors.KindExtractionJSONMissing, apperrors.KindOf(err))

		stored, _ := env.docs.Get(ctx, doc.ID)
		assert.Equal(t, model.DocumentStatusError, stored.Status)
	})

	t.Run("model reply failing schema validation", func(t *testing.T) {
		env := newTestEnv(&fakeCompleter{responses: []string{`{"labs": [{"valueText": "6.1"}]}`}})

		doc, err := env.svc.Upload(ctx, patient, patient, "note.txt", "text/plain", []byte("some clinical note"))
		require.NoError(t, err)

		_, err = env.svc.Parse(ctx, patient, doc.ID)
		assert.Equal(t, apperrors.KindExtractionInvalid, apperrors.KindOf(err))

		// No facts land when validation fails.
		assert.Empty(t, env.records.labs)
	})

	t.Run("reparsing appends fact rows", func(t *testing.T) {
		env := newTestEnv(&fakeCompleter{responses: []string{labReportExtraction, labReportExtraction}})

		doc, err := env.svc.Upload(ctx, patient, patient, "labs.txt", "text/plain", []byte("HbA1c 6.1 %"))
		require.NoError(t, err)

		_, err = env.svc.Parse(ctx, patient, doc.ID)
		require.NoError(t, err)
		_, err = env.svc.Parse(ctx, patient, doc.ID)
		require.NoError(t, err)

		assert.Len(t, env.records.labs, 2)
		assert.Len(t, env.docs.extractions, 2)
	})
}

func TestUploadAndDownload(t *testing.T) {
	ctx := context.Background()
	patient := uuid.New()
	env := newTestEnv(&fakeCompleter{})

	payload := []byte("file contents")
	doc, err := env.svc.Upload(ctx, patient, patient, "letter.txt", "text/plain", payload)
	require.NoError(t, err)
	require.NotNil(t, doc.ObjectKey)
	assert.Equal(t, model.DocumentStatusUploaded, doc.Status)
	assert.Equal(t, int64(len(payload)), doc.SizeBytes)

	got, data, err := env.svc.Download(ctx, patient, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, payload, data)
}

func TestDocumentAccessDenied(t *testing.T) {
	ctx := context.Background()
	docs := newFakeDocRepo()
	log := logger.NewLogger(&logger.Config{Output: io.Discard})
	svc := NewService(docs, newFakeRecordRepo(), &fakeOutboxRepo{}, fakeStore{}, denyAllGate{},
		newFakeBlobStore(), &fakeCompleter{}, "extract-model", testMetrics, log)

	_, err := svc.Upload(ctx, uuid.New(), uuid.New(), "x.txt", "text/plain", []byte("hi"))
	assert.Equal(t, apperrors.KindForbiddenPatient, apperrors.KindOf(err))
}

func TestInsights(t *testing.T) {
	ctx := context.Background()
	patient := uuid.New()
	env := newTestEnv(&fakeCompleter{responses: []string{labReportExtraction}})

	doc, err := env.svc.Upload(ctx, patient, patient, "labs.txt", "text/plain", []byte("HbA1c 6.1 %"))
	require.NoError(t, err)
	_, err = env.svc.Parse(ctx, patient, doc.ID)
	require.NoError(t, err)

	insights, err := env.svc.Insights(ctx, patient, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, insights.Document.ID)
	require.NotNil(t, insights.Extraction)

	var extracted model.Extraction
	require.NoError(t, json.Unmarshal(insights.Extraction.ExtractedJSON, &extracted))
	require.Len(t, insights.Labs, 1)
	assert.Equal(t, "HbA1c", insights.Labs[0].TestName)
	assert.Len(t, insights.Vitals, 1)
	assert.Len(t, insights.Medications, 1)
	assert.Len(t, insights.Conditions, 1)
}
