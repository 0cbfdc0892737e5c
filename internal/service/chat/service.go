package chat

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/medichat/records-api/internal/model"
	"github.com/medichat/records-api/internal/repository"
	"github.com/medichat/records-api/internal/service/access"
	apperrors "github.com/medichat/records-api/pkg/errors"
	"github.com/medichat/records-api/pkg/ai"
	"github.com/medichat/records-api/pkg/logger"
	"github.com/medichat/records-api/pkg/metrics"
)

const (
	// maxToolRounds bounds how many times one turn may go back to the model
	// after tool execution.
	maxToolRounds = 3

	historyLimit    = 30
	chatTemperature = 0.4

	fallbackReply = "I wasn't able to put together a response just now. Please try again."
)

// InsightsProvider is the slice of the document service the chat tools need.
type InsightsProvider interface {
	Insights(ctx context.Context, actorUserID, documentID uuid.UUID) (*model.DocumentInsights, error)
}

type ChatService interface {
	Turn(ctx context.Context, actorUserID uuid.UUID, req *model.ChatTurnRequest) (*model.ChatTurnResult, error)
	ListThreads(ctx context.Context, actorUserID, patientUserID uuid.UUID, mode model.ContextMode) ([]*model.ChatThread, error)
	ThreadMessages(ctx context.Context, actorUserID, threadID uuid.UUID) ([]*model.ChatMessage, error)
}

type Service struct {
	threads     repository.ChatRepository
	records     repository.RecordRepository
	docs        repository.DocumentRepository
	memories    repository.MemoryRepository
	suggestions repository.SuggestionRepository
	gate        access.Gate
	insights    InsightsProvider
	ai          ai.ChatCompleter
	chatModel   string
	metrics     *metrics.Metrics
	logger      *logger.Logger
}

func NewService(
	threads repository.ChatRepository,
	records repository.RecordRepository,
	docs repository.DocumentRepository,
	memories repository.MemoryRepository,
	suggestions repository.SuggestionRepository,
	gate access.Gate,
	insights InsightsProvider,
	completer ai.ChatCompleter,
	chatModel string,
	m *metrics.Metrics,
	logger *logger.Logger,
) *Service {
	return &Service{
		threads:     threads,
		records:     records,
		docs:        docs,
		memories:    memories,
		suggestions: suggestions,
		gate:        gate,
		insights:    insights,
		ai:          completer,
		chatModel:   chatModel,
		metrics:     m,
		logger:      logger,
	}
}

// Turn runs one full chat turn: resolve the patient and thread, persist the
// user message, then drive the model through up to maxToolRounds rounds of
// tool execution before persisting the assistant reply. The user message is
// written before the first model call so a provider failure never loses it.
func (s *Service) Turn(ctx context.Context, actorUserID uuid.UUID, req *model.ChatTurnRequest) (*model.ChatTurnResult, error) {
	patientUserID, err := s.resolvePatient(ctx, actorUserID, req)
	if err != nil {
		return nil, err
	}

	thread, err := s.resolveThread(ctx, actorUserID, patientUserID, req)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	userMsg := &model.ChatMessage{
		ID:         uuid.New(),
		ThreadID:   thread.ID,
		SenderRole: model.SenderRoleUser,
		Content:    req.Message,
		CreatedAt:  now,
	}
	if err := s.threads.CreateMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	recordContext, err := s.buildRecordContext(ctx, patientUserID, req.DocumentIDs)
	if err != nil {
		return nil, err
	}

	history, err := s.threads.ListRecentMessages(ctx, thread.ID, historyLimit)
	if err != nil {
		return nil, err
	}

	systemPrompt := patientSystemPrompt
	if req.Mode == model.ContextModePhysician {
		systemPrompt = physicianSystemPrompt
	}

	messages := make([]ai.Message, 0, len(history)+2)
	messages = append(messages, ai.Message{
		Role:    ai.RoleSystem,
		Content: systemPrompt + "\n\n" + recordContext,
	})
	messages = append(messages, historyMessages(history)...)

	st := &turnState{
		actorUserID:   actorUserID,
		patientUserID: patientUserID,
		mode:          req.Mode,
		threadID:      thread.ID,
		userMessageID: userMsg.ID,
	}

	reply, err := s.runToolLoop(ctx, st, messages)
	if err != nil {
		return nil, err
	}
	if reply == "" {
		reply = fallbackReply
	}

	assistantMsg := &model.ChatMessage{
		ID:         uuid.New(),
		ThreadID:   thread.ID,
		SenderRole: model.SenderRoleAssistant,
		Content:    reply,
		CreatedAt:  time.Now(),
	}
	if err := s.threads.CreateMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}
	if err := s.threads.TouchThread(ctx, thread.ID, assistantMsg.CreatedAt); err != nil {
		s.logger.Error(err, "failed to touch thread", "thread_id", thread.ID.String())
	}

	return &model.ChatTurnResult{
		ThreadID:            thread.ID,
		AssistantMessage:    assistantMsg,
		ProposedMemories:    st.proposedMemories,
		ProposedSuggestions: st.proposedSuggestions,
	}, nil
}

// runToolLoop drives the model until it produces a plain reply or the round
// budget runs out. The reply is the last non-empty assistant text seen across
// rounds, including prose that accompanied tool calls; the caller substitutes
// the fallback only when every round produced empty text.
func (s *Service) runToolLoop(ctx context.Context, st *turnState, messages []ai.Message) (string, error) {
	var lastText string
	for round := 0; round < maxToolRounds; round++ {
		started := time.Now()
		resp, err := s.ai.ChatCompletion(ctx, &ai.ChatRequest{
			Model:       s.chatModel,
			Messages:    messages,
			Tools:       chatTools(),
			ToolChoice:  "auto",
			Temperature: chatTemperature,
		})
		s.metrics.ModelLatency.WithLabelValues("chat").Observe(time.Since(started).Seconds())
		if err != nil {
			s.metrics.ModelCalls.WithLabelValues("chat", "error").Inc()
			s.logger.Error(err, "chat completion failed", "round", round)
			return "", apperrors.Wrap(apperrors.KindModelNoResponse, "chat completion failed", err)
		}
		s.metrics.ModelCalls.WithLabelValues("chat", "success").Inc()

		if len(resp.Choices) == 0 {
			return "", apperrors.New(apperrors.KindModelNoResponse)
		}
		choice := resp.Choices[0].Message
		if choice.Content != "" {
			lastText = choice.Content
		}

		if len(choice.ToolCalls) == 0 {
			return lastText, nil
		}

		messages = append(messages, ai.Message{
			Role:      ai.RoleAssistant,
			Content:   choice.Content,
			ToolCalls: choice.ToolCalls,
		})
		for _, call := range choice.ToolCalls {
			messages = append(messages, ai.Message{
				Role:       ai.RoleTool,
				ToolCallID: call.ID,
				Name:       call.Function.Name,
				Content:    s.executeTool(ctx, st, call),
			})
		}
	}

	// Round budget exhausted while the model still wants tools; whatever prose
	// it produced along the way stands.
	return lastText, nil
}

// resolvePatient pins down whose record the turn is about. Patient mode is
// always the caller's own record; physician mode requires an explicit patient
// and a live grant.
func (s *Service) resolvePatient(ctx context.Context, actorUserID uuid.UUID, req *model.ChatTurnRequest) (uuid.UUID, error) {
	switch req.Mode {
	case model.ContextModePatient:
		if req.PatientUserID != nil && *req.PatientUserID != actorUserID {
			return uuid.Nil, apperrors.New(apperrors.KindForbiddenPatient)
		}
		return actorUserID, nil
	case model.ContextModePhysician:
		if req.PatientUserID == nil {
			return uuid.Nil, apperrors.Newf(apperrors.KindBadRequest, "physician mode requires patient_user_id")
		}
		if err := s.gate.AssertPatientAccess(ctx, actorUserID, *req.PatientUserID); err != nil {
			return uuid.Nil, err
		}
		return *req.PatientUserID, nil
	default:
		return uuid.Nil, apperrors.Newf(apperrors.KindBadRequest, "unknown context mode %q", req.Mode)
	}
}

func (s *Service) resolveThread(ctx context.Context, actorUserID, patientUserID uuid.UUID, req *model.ChatTurnRequest) (*model.ChatThread, error) {
	if req.ThreadID != nil {
		thread, err := s.threads.GetThread(ctx, *req.ThreadID)
		if err != nil {
			return nil, err
		}
		if thread == nil || thread.CreatedByUserID != actorUserID ||
			thread.PatientUserID != patientUserID || thread.ContextMode != req.Mode {
			return nil, apperrors.New(apperrors.KindThreadNotFound)
		}
		return thread, nil
	}

	now := time.Now()
	title := threadTitle(req.Message)
	thread := &model.ChatThread{
		ID:              uuid.New(),
		PatientUserID:   patientUserID,
		CreatedByUserID: actorUserID,
		ContextMode:     req.Mode,
		Title:           &title,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.threads.CreateThread(ctx, thread); err != nil {
		return nil, err
	}
	return thread, nil
}

// threadTitle derives a title from the opening message, trimmed at a rune
// boundary.
func threadTitle(message string) string {
	const maxTitle = 80
	if len(message) <= maxTitle {
		return message
	}
	title := message[:maxTitle]
	for len(title) > 0 && !utf8.RuneStart(title[len(title)-1]) {
		title = title[:len(title)-1]
	}
	return title
}

func (s *Service) ListThreads(ctx context.Context, actorUserID, patientUserID uuid.UUID, mode model.ContextMode) ([]*model.ChatThread, error) {
	if err := s.gate.AssertPatientAccess(ctx, actorUserID, patientUserID); err != nil {
		return nil, err
	}

	threads, err := s.threads.ListThreads(ctx, patientUserID, mode)
	if err != nil {
		return nil, err
	}

	// A grant shares the record, not other people's conversations.
	own := threads[:0]
	for _, t := range threads {
		if t.CreatedByUserID == actorUserID {
			own = append(own, t)
		}
	}
	return own, nil
}

func (s *Service) ThreadMessages(ctx context.Context, actorUserID, threadID uuid.UUID) ([]*model.ChatMessage, error) {
	thread, err := s.threads.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil || thread.CreatedByUserID != actorUserID {
		return nil, apperrors.New(apperrors.KindThreadNotFound)
	}
	return s.threads.ListMessages(ctx, threadID)
}
