package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

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
var testMetrics = metrics.NewMetrics("medichat_test", "chat")

type scriptStep struct {
	resp *ai.ChatResponse
	err  error
}

type scriptedCompleter struct {
	steps    []scriptStep
	requests []*ai.ChatRequest
}

func (f *scriptedCompleter) ChatCompletion(_ context.Context, req *ai.ChatRequest) (*ai.ChatResponse, error) {
	f.requests = append(f.requests, req)
	if len(f.steps) == 0 {
		return &ai.ChatResponse{Choices: []ai.Choice{{Message: ai.Message{Role: ai.RoleAssistant}}}}, nil
	}
	step := f.steps[0]
	f.steps = f.steps[1:]
	return step.resp, step.err
}

func reply(content string) scriptStep {
	return scriptStep{resp: &ai.ChatResponse{Choices: []ai.Choice{{
		Message: ai.Message{Role: ai.RoleAssistant, Content: content},
	}}}}
}

func toolCall(id, name, arguments string) scriptStep {
	return scriptStep{resp: &ai.ChatResponse{Choices: []ai.Choice{{
		Message: ai.Message{
			Role: ai.RoleAssistant,
			ToolCalls: []ai.ToolCall{{
				ID:   id,
				Type: "function",
				Function: ai.ToolCallFunction{Name: name, Arguments: arguments},
			}},
		},
	}}}}
}

func toolCallWithText(content, id, name, arguments string) scriptStep {
	step := toolCall(id, name, arguments)
	step.resp.Choices[0].Message.Content = content
	return step
}

type fakeChatRepo struct {
	threads  map[uuid.UUID]*model.ChatThread
	messages []*model.ChatMessage
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{threads: make(map[uuid.UUID]*model.ChatThread)}
}

func (f *fakeChatRepo) GetThread(_ context.Context, id uuid.UUID) (*model.ChatThread, error) {
	t, ok := f.threads[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeChatRepo) CreateThread(_ context.Context, t *model.ChatThread) error {
	cp := *t
	f.threads[t.ID] = &cp
	return nil
}

func (f *fakeChatRepo) ListThreads(_ context.Context, patientUserID uuid.UUID, mode model.ContextMode) ([]*model.ChatThread, error) {
	var out []*model.ChatThread
	for _, t := range f.threads {
		if t.PatientUserID == patientUserID && t.ContextMode == mode {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeChatRepo) TouchThread(_ context.Context, id uuid.UUID, at time.Time) error {
	if t, ok := f.threads[id]; ok {
		t.UpdatedAt = at
	}
	return nil
}

func (f *fakeChatRepo) CreateMessage(_ context.Context, m *model.ChatMessage) error {
	cp := *m
	f.messages = append(f.messages, &cp)
	return nil
}

func (f *fakeChatRepo) ListRecentMessages(_ context.Context, threadID uuid.UUID, limit int) ([]*model.ChatMessage, error) {
	msgs, err := f.ListMessages(context.Background(), threadID)
	if err != nil {
		return nil, err
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (f *fakeChatRepo) ListMessages(_ context.Context, threadID uuid.UUID) ([]*model.ChatMessage, error) {
	var out []*model.ChatMessage
	for _, m := range f.messages {
		if m.ThreadID == threadID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeRecordRepo struct{}

func (fakeRecordRepo) GetProfile(context.Context, uuid.UUID) (*model.PatientProfile, error) {
	return nil, nil
}
func (fakeRecordRepo) UpsertProfileTx(context.Context, *sqlx.Tx, uuid.UUID, *model.ProfileUpdate, time.Time) error {
	return nil
}
func (fakeRecordRepo) InsertVitalTx(context.Context, *sqlx.Tx, *model.Vital) error  { return nil }
func (fakeRecordRepo) InsertLabTx(context.Context, *sqlx.Tx, *model.LabResult) error { return nil }
func (fakeRecordRepo) InsertMedicationTx(context.Context, *sqlx.Tx, *model.Medication) error {
	return nil
}
func (fakeRecordRepo) InsertConditionTx(context.Context, *sqlx.Tx, *model.Condition) error {
	return nil
}
func (fakeRecordRepo) LatestVital(context.Context, uuid.UUID) (*model.Vital, error) { return nil, nil }
func (fakeRecordRepo) ListLabs(context.Context, uuid.UUID, int) ([]*model.LabResult, error) {
	return []*model.LabResult{{
		TestName:    "HbA1c",
		ValueText:   "6.1",
		CollectedAt: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}}, nil
}
func (fakeRecordRepo) ListMedications(context.Context, uuid.UUID, int) ([]*model.Medication, error) {
	return nil, nil
}
func (fakeRecordRepo) ListConditions(context.Context, uuid.UUID, int) ([]*model.Condition, error) {
	return nil, nil
}
func (fakeRecordRepo) ListVitalsByDocument(context.Context, uuid.UUID, uuid.UUID, int) ([]*model.Vital, error) {
	return nil, nil
}
func (fakeRecordRepo) ListLabsByDocument(context.Context, uuid.UUID, uuid.UUID, int) ([]*model.LabResult, error) {
	return nil, nil
}
func (fakeRecordRepo) ListMedicationsByDocument(context.Context, uuid.UUID, uuid.UUID, int) ([]*model.Medication, error) {
	return nil, nil
}
func (fakeRecordRepo) ListConditionsByDocument(context.Context, uuid.UUID, uuid.UUID, int) ([]*model.Condition, error) {
	return nil, nil
}

type fakeDocRepo struct {
	docs map[uuid.UUID]*model.Document
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{docs: make(map[uuid.UUID]*model.Document)}
}

func (f *fakeDocRepo) Create(_ context.Context, d *model.Document) error {
	cp := *d
	f.docs[d.ID] = &cp
	return nil
}

func (f *fakeDocRepo) Get(_ context.Context, id uuid.UUID) (*model.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDocRepo) ListForPatient(context.Context, uuid.UUID) ([]*model.Document, error) {
	return nil, nil
}
func (f *fakeDocRepo) MarkParsedTx(context.Context, *sqlx.Tx, uuid.UUID, time.Time) error {
	return nil
}
func (f *fakeDocRepo) MarkError(context.Context, uuid.UUID, string) error { return nil }
func (f *fakeDocRepo) UpsertText(context.Context, uuid.UUID, string) error {
	return nil
}
func (f *fakeDocRepo) InsertExtractionTx(context.Context, *sqlx.Tx, *model.DocumentExtraction) error {
	return nil
}
func (f *fakeDocRepo) LatestExtraction(context.Context, uuid.UUID) (*model.DocumentExtraction, error) {
	return nil, nil
}

type fakeMemoryRepo struct {
	created   []*model.UserMemory
	accepted  []*model.UserMemory
	lastLimit int
}

func (f *fakeMemoryRepo) Create(_ context.Context, m *model.UserMemory) error {
	cp := *m
	f.created = append(f.created, &cp)
	return nil
}

func (f *fakeMemoryRepo) ListAccepted(_ context.Context, scope model.MemoryScope, limit int) ([]*model.UserMemory, error) {
	f.lastLimit = limit
	var out []*model.UserMemory
	for _, m := range f.accepted {
		if m.OwnerUserID != scope.OwnerUserID || m.ContextMode != scope.ContextMode {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMemoryRepo) ListByOwner(context.Context, uuid.UUID, *model.ProposalStatus) ([]*model.UserMemory, error) {
	return nil, nil
}

func (f *fakeMemoryRepo) Resolve(context.Context, uuid.UUID, uuid.UUID, model.ProposalStatus, time.Time) (int64, error) {
	return 0, nil
}

type fakeSuggestionRepo struct {
	created []*model.PatientRecordSuggestion
}

func (f *fakeSuggestionRepo) Create(_ context.Context, s *model.PatientRecordSuggestion) error {
	cp := *s
	f.created = append(f.created, &cp)
	return nil
}

func (f *fakeSuggestionRepo) Get(context.Context, uuid.UUID) (*model.PatientRecordSuggestion, error) {
	return nil, nil
}

func (f *fakeSuggestionRepo) ListForPatient(context.Context, uuid.UUID, *model.ProposalStatus) ([]*model.PatientRecordSuggestion, error) {
	return nil, nil
}

func (f *fakeSuggestionRepo) ResolveTx(context.Context, *sqlx.Tx, uuid.UUID, uuid.UUID, model.ProposalStatus, time.Time) (int64, error) {
	return 0, nil
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

type fakeInsights struct {
	insights map[uuid.UUID]*model.DocumentInsights
}

func (f *fakeInsights) Insights(_ context.Context, _ uuid.UUID, documentID uuid.UUID) (*model.DocumentInsights, error) {
	ins, ok := f.insights[documentID]
	if !ok {
		return nil, apperrors.New(apperrors.KindDocumentNotFound)
	}
	return ins, nil
}

type testEnv struct {
	svc         *Service
	threads     *fakeChatRepo
	docs        *fakeDocRepo
	memories    *fakeMemoryRepo
	suggestions *fakeSuggestionRepo
	insights    *fakeInsights
	completer   *scriptedCompleter
}

func newTestEnv(steps ...scriptStep) *testEnv {
	threads := newFakeChatRepo()
	docs := newFakeDocRepo()
	memories := &fakeMemoryRepo{}
	suggestions := &fakeSuggestionRepo{}
	insights := &fakeInsights{insights: make(map[uuid.UUID]*model.DocumentInsights)}
	completer := &scriptedCompleter{steps: steps}
	log := logger.NewLogger(&logger.Config{Output: io.Discard})

	svc := NewService(threads, fakeRecordRepo{}, docs, memories, suggestions,
		allowAllGate{}, insights, completer, "chat-model", testMetrics, log)
	return &testEnv{
		svc: svc, threads: threads, docs: docs, memories: memories,
		suggestions: suggestions, insights: insights, completer: completer,
	}
}

func TestTurn(t *testing.T) {
	ctx := context.Background()
	patient := uuid.New()

	t.Run("plain reply", func(t *testing.T) {
		env := newTestEnv(reply("Your most recent HbA1c was 6.1."))

		result, err := env.svc.Turn(ctx, patient, &model.ChatTurnRequest{
			Mode:    model.ContextModePatient,
			Message: "What was my last HbA1c?",
		})
		require.NoError(t, err)
		assert.Equal(t, "Your most recent HbA1c was 6.1.", result.AssistantMessage.Content)
		assert.Empty(t, result.ProposedMemories)
		assert.Empty(t, result.ProposedSuggestions)

		thread := env.threads.threads[result.ThreadID]
		require.NotNil(t, thread)
		assert.Equal(t, patient, thread.CreatedByUserID)
		require.NotNil(t, thread.Title)
		assert.Equal(t, "What was my last HbA1c?", *thread.Title)

		msgs, _ := env.threads.ListMessages(ctx, result.ThreadID)
		require.Len(t, msgs, 2)
		assert.Equal(t, model.SenderRoleUser, msgs[0].SenderRole)
		assert.Equal(t, model.SenderRoleAssistant, msgs[1].SenderRole)

		require.Len(t, env.completer.requests, 1)
		req := env.completer.requests[0]
		assert.Equal(t, "chat-model", req.Model)
		assert.Equal(t, "auto", req.ToolChoice)
		assert.InDelta(t, 0.4, req.Temperature, 0.0001)
		assert.Len(t, req.Tools, 4)
		require.NotEmpty(t, req.Messages)
		assert.Equal(t, ai.RoleSystem, req.Messages[0].Role)
		assert.Contains(t, req.Messages[0].Content, "PATIENT RECORD CONTEXT")
		assert.Contains(t, req.Messages[0].Content, "HbA1c")
	})

	t.Run("logMemory tool round", func(t *testing.T) {
		env := newTestEnv(
			toolCall("call_1", "logMemory", `{"memoryText": "Prefers metric units", "category": "preference"}`),
			reply("Noted, I'll remember that."),
		)

		result, err := env.svc.Turn(ctx, patient, &model.ChatTurnRequest{
			Mode:    model.ContextModePatient,
			Message: "Please use metric units from now on.",
		})
		require.NoError(t, err)
		assert.Equal(t, "Noted, I'll remember that.", result.AssistantMessage.Content)

		require.Len(t, result.ProposedMemories, 1)
		mem := result.ProposedMemories[0]
		assert.Equal(t, model.ProposalStatusProposed, mem.Status)
		assert.Equal(t, "Prefers metric units", mem.MemoryText)
		assert.Equal(t, patient, mem.OwnerUserID)
		require.NotNil(t, mem.SourceThreadID)
		assert.Equal(t, result.ThreadID, *mem.SourceThreadID)
		require.Len(t, env.memories.created, 1)

		// The second request carries the assistant tool call and the tool result.
		require.Len(t, env.completer.requests, 2)
		second := env.completer.requests[1].Messages
		last := second[len(second)-1]
		assert.Equal(t, ai.RoleTool, last.Role)
		assert.Equal(t, "call_1", last.ToolCallID)
		assert.Equal(t, "logMemory", last.Name)
		assert.Contains(t, last.Content, `"status":"proposed"`)
	})

	t.Run("proposePatientRecordSuggestion tool round", func(t *testing.T) {
		env := newTestEnv(
			toolCall("call_1", "proposePatientRecordSuggestion",
				`{"kind": "medication", "summaryText": "Add lisinopril 10 mg daily", "payload": {"medicationName": "Lisinopril", "dose": "10 mg", "frequency": "daily"}}`),
			reply("I've proposed adding lisinopril; please confirm it."),
		)

		result, err := env.svc.Turn(ctx, patient, &model.ChatTurnRequest{
			Mode:    model.ContextModePatient,
			Message: "I started lisinopril 10 mg daily last week.",
		})
		require.NoError(t, err)

		require.Len(t, result.ProposedSuggestions, 1)
		sug := result.ProposedSuggestions[0]
		assert.Equal(t, model.SuggestionKindMedication, sug.Kind)
		assert.Equal(t, model.ProposalStatusProposed, sug.Status)
		assert.Equal(t, patient, sug.PatientUserID)

		var payload model.MedicationPayload
		require.NoError(t, json.Unmarshal(sug.PayloadJSON, &payload))
		assert.Equal(t, "Lisinopril", payload.MedicationName)
	})

	t.Run("getDocumentInsights rejects another patient's document", func(t *testing.T) {
		otherDoc := uuid.New()
		env := newTestEnv(
			toolCall("call_1", "getDocumentInsights", `{"documentId": "`+otherDoc.String()+`"}`),
			reply("I can't see that document."),
		)
		env.insights.insights[otherDoc] = &model.DocumentInsights{
			Document: &model.Document{ID: otherDoc, PatientUserID: uuid.New()},
		}

		_, err := env.svc.Turn(ctx, patient, &model.ChatTurnRequest{
			Mode:    model.ContextModePatient,
			Message: "Summarize that report.",
		})
		require.NoError(t, err)

		second := env.completer.requests[1].Messages
		last := second[len(second)-1]
		assert.Equal(t, ai.RoleTool, last.Role)
		assert.Contains(t, last.Content, string(apperrors.KindDocumentNotFound))
	})

	t.Run("round budget exhausted without prose falls back", func(t *testing.T) {
		call := toolCall("call_1", "retrieveMemories", `{}`)
		env := newTestEnv(call, call, call, reply("never reached"))

		result, err := env.svc.Turn(ctx, patient, &model.ChatTurnRequest{
			Mode:    model.ContextModePatient,
			Message: "hello",
		})
		require.NoError(t, err)
		assert.Equal(t, fallbackReply, result.AssistantMessage.Content)
		assert.Len(t, env.completer.requests, 3)
	})

	t.Run("round budget exhausted keeps the last assistant prose", func(t *testing.T) {
		env := newTestEnv(
			toolCallWithText("Let me check your record.", "call_1", "retrieveMemories", `{}`),
			toolCall("call_2", "retrieveMemories", `{}`),
			toolCallWithText("Here is what I found so far: your HbA1c is 6.1%.", "call_3", "retrieveMemories", `{}`),
		)

		result, err := env.svc.Turn(ctx, patient, &model.ChatTurnRequest{
			Mode:    model.ContextModePatient,
			Message: "What do my labs say?",
		})
		require.NoError(t, err)
		assert.Equal(t, "Here is what I found so far: your HbA1c is 6.1%.", result.AssistantMessage.Content)
	})

	t.Run("empty final reply falls back to earlier prose", func(t *testing.T) {
		env := newTestEnv(
			toolCallWithText("Looking that up now.", "call_1", "retrieveMemories", `{}`),
			reply(""),
		)

		result, err := env.svc.Turn(ctx, patient, &model.ChatTurnRequest{
			Mode:    model.ContextModePatient,
			Message: "hello",
		})
		require.NoError(t, err)
		assert.Equal(t, "Looking that up now.", result.AssistantMessage.Content)
	})

	t.Run("provider failure surfaces as MODEL_NO_RESPONSE", func(t *testing.T) {
		env := newTestEnv(scriptStep{err: errors.New("upstream unavailable")})

		_, err := env.svc.Turn(ctx, patient, &model.ChatTurnRequest{
			Mode:    model.ContextModePatient,
			Message: "hello",
		})
		assert.Equal(t, apperrors.KindModelNoResponse, apperrors.KindOf(err))

		// The user message is persisted before any model call; the failed turn
		// keeps it.
		require.Len(t, env.threads.messages, 1)
		assert.Equal(t, "hello", env.threads.messages[0].Content)
		assert.Equal(t, model.SenderRoleUser, env.threads.messages[0].SenderRole)
	})

	t.Run("empty choices surface as MODEL_NO_RESPONSE", func(t *testing.T) {
		env := newTestEnv(scriptStep{resp: &ai.ChatResponse{}})

		_, err := env.svc.Turn(ctx, patient, &model.ChatTurnRequest{
			Mode:    model.ContextModePatient,
			Message: "hello",
		})
		assert.Equal(t, apperrors.KindModelNoResponse, apperrors.KindOf(err))
	})

	t.Run("retrieveMemories honors and clamps the limit argument", func(t *testing.T) {
		env := newTestEnv(
			toolCall("call_1", "retrieveMemories", `{"limit": 2}`),
			reply("done"),
		)
		_, err := env.svc.Turn(ctx, patient, &model.ChatTurnRequest{
			Mode:    model.ContextModePatient,
			Message: "hello",
		})
		require.NoError(t, err)
		assert.Equal(t, 2, env.memories.lastLimit)

		env = newTestEnv(
			toolCall("call_1", "retrieveMemories", `{"limit": 500}`),
			reply("done"),
		)
		_, err = env.svc.Turn(ctx, patient, &model.ChatTurnRequest{
			Mode:    model.ContextModePatient,
			Message: "hello",
		})
		require.NoError(t, err)
		assert.Equal(t, 50, env.memories.lastLimit)

		env = newTestEnv(
			toolCall("call_1", "retrieveMemories", `{}`),
			reply("done"),
		)
		_, err = env.svc.Turn(ctx, patient, &model.ChatTurnRequest{
			Mode:    model.ContextModePatient,
			Message: "hello",
		})
		require.NoError(t, err)
		assert.Equal(t, 20, env.memories.lastLimit)
	})

	t.Run("follow-up turn reuses the thread and history", func(t *testing.T) {
		env := newTestEnv(reply("First answer."), reply("Second answer."))

		first, err := env.svc.Turn(ctx, patient, &model.ChatTurnRequest{
			Mode:    model.ContextModePatient,
			Message: "first question",
		})
		require.NoError(t, err)

		second, err := env.svc.Turn(ctx, patient, &model.ChatTurnRequest{
			Mode:     model.ContextModePatient,
			ThreadID: &first.ThreadID,
			Message:  "second question",
		})
		require.NoError(t, err)
		assert.Equal(t, first.ThreadID, second.ThreadID)

		msgs := env.completer.requests[1].Messages
		var sawFirst bool
		for _, m := range msgs {
			if strings.Contains(m.Content, "First answer.") {
				sawFirst = true
			}
		}
		assert.True(t, sawFirst, "history must carry the earlier assistant reply")
	})
}

func TestResolvePatient(t *testing.T) {
	ctx := context.Background()

	t.Run("patient mode rejects another patient's record", func(t *testing.T) {
		env := newTestEnv()
		other := uuid.New()

		_, err := env.svc.Turn(ctx, uuid.New(), &model.ChatTurnRequest{
			Mode:          model.ContextModePatient,
			PatientUserID: &other,
			Message:       "hello",
		})
		assert.Equal(t, apperrors.KindForbiddenPatient, apperrors.KindOf(err))
	})

	t.Run("physician mode requires a patient", func(t *testing.T) {
		env := newTestEnv()

		_, err := env.svc.Turn(ctx, uuid.New(), &model.ChatTurnRequest{
			Mode:    model.ContextModePhysician,
			Message: "hello",
		})
		assert.Equal(t, apperrors.KindBadRequest, apperrors.KindOf(err))
	})

	t.Run("physician mode requires a grant", func(t *testing.T) {
		env := newTestEnv()
		log := logger.NewLogger(&logger.Config{Output: io.Discard})
		svc := NewService(env.threads, fakeRecordRepo{}, env.docs, env.memories,
			env.suggestions, denyAllGate{}, env.insights, env.completer,
			"chat-model", testMetrics, log)

		patient := uuid.New()
		_, err := svc.Turn(ctx, uuid.New(), &model.ChatTurnRequest{
			Mode:          model.ContextModePhysician,
			PatientUserID: &patient,
			Message:       "hello",
		})
		assert.Equal(t, apperrors.KindForbiddenPatient, apperrors.KindOf(err))
	})
}

func TestThreadOwnership(t *testing.T) {
	ctx := context.Background()
	patient := uuid.New()

	t.Run("someone else's thread is invisible", func(t *testing.T) {
		env := newTestEnv(reply("answer"))

		first, err := env.svc.Turn(ctx, patient, &model.ChatTurnRequest{
			Mode:    model.ContextModePatient,
			Message: "mine",
		})
		require.NoError(t, err)

		_, err = env.svc.Turn(ctx, uuid.New(), &model.ChatTurnRequest{
			Mode:     model.ContextModePatient,
			ThreadID: &first.ThreadID,
			Message:  "not mine",
		})
		assert.Equal(t, apperrors.KindThreadNotFound, apperrors.KindOf(err))
	})

	t.Run("thread messages are creator-only", func(t *testing.T) {
		env := newTestEnv(reply("answer"))

		result, err := env.svc.Turn(ctx, patient, &model.ChatTurnRequest{
			Mode:    model.ContextModePatient,
			Message: "mine",
		})
		require.NoError(t, err)

		msgs, err := env.svc.ThreadMessages(ctx, patient, result.ThreadID)
		require.NoError(t, err)
		assert.Len(t, msgs, 2)

		_, err = env.svc.ThreadMessages(ctx, uuid.New(), result.ThreadID)
		assert.Equal(t, apperrors.KindThreadNotFound, apperrors.KindOf(err))
	})

	t.Run("listing filters to the caller's own threads", func(t *testing.T) {
		env := newTestEnv(reply("a"), reply("b"))
		physician := uuid.New()

		// The physician opens a thread about the patient's record.
		other := &model.ChatThread{
			ID:              uuid.New(),
			PatientUserID:   patient,
			CreatedByUserID: physician,
			ContextMode:     model.ContextModePatient,
			CreatedAt:       time.Now(),
			UpdatedAt:       time.Now(),
		}
		require.NoError(t, env.threads.CreateThread(ctx, other))

		mine, err := env.svc.Turn(ctx, patient, &model.ChatTurnRequest{
			Mode:    model.ContextModePatient,
			Message: "mine",
		})
		require.NoError(t, err)

		threads, err := env.svc.ListThreads(ctx, patient, patient, model.ContextModePatient)
		require.NoError(t, err)
		require.Len(t, threads, 1)
		assert.Equal(t, mine.ThreadID, threads[0].ID)
	})
}

func TestThreadTitle(t *testing.T) {
	assert.Equal(t, "short", threadTitle("short"))

	long := strings.Repeat("x", 200)
	assert.Len(t, threadTitle(long), 80)

	// Three-byte runes do not divide 80 evenly; the cut must not split one.
	multibyte := strings.Repeat("語", 30)
	title := threadTitle(multibyte)
	assert.True(t, utf8.ValidString(title))
	assert.Len(t, title, 78)
}
