package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medichat/records-api/internal/model"
	apperrors "github.com/medichat/records-api/pkg/errors"
	"github.com/medichat/records-api/pkg/ai"
)

const (
	memoryRetrievalLimit    = 20
	maxMemoryRetrievalLimit = 50
)

func chatTools() []ai.Tool {
	return []ai.Tool{
		{
			Type: "function",
			Function: ai.ToolFunction{
				Name:        "retrieveMemories",
				Description: "Retrieve the accepted memories stored for this conversation's owner and context.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"limit": map[string]interface{}{
							"type":        "integer",
							"description": "Maximum number of memories to return, 1-50. Defaults to 20.",
						},
					},
				},
			},
		},
		{
			Type: "function",
			Function: ai.ToolFunction{
				Name:        "logMemory",
				Description: "Propose a durable memory about the user. It is stored as a proposal and becomes active only after the user accepts it.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"memoryText": map[string]interface{}{
							"type":        "string",
							"description": "The fact or preference to remember, one sentence.",
						},
						"category": map[string]interface{}{
							"type":        "string",
							"description": "Optional grouping label, e.g. preference, history, logistics.",
						},
					},
					"required": []string{"memoryText"},
				},
			},
		},
		{
			Type: "function",
			Function: ai.ToolFunction{
				Name:        "getDocumentInsights",
				Description: "Fetch the structured extraction and fact rows for one of the patient's documents.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"documentId": map[string]interface{}{
							"type":        "string",
							"description": "UUID of the document.",
						},
					},
					"required": []string{"documentId"},
				},
			},
		},
		{
			Type: "function",
			Function: ai.ToolFunction{
				Name:        "proposePatientRecordSuggestion",
				Description: "Propose one update to the patient record. Nothing is written until a human accepts the proposal.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"kind": map[string]interface{}{
							"type": "string",
							"enum": []string{"profile_update", "vital", "lab", "medication", "condition"},
						},
						"summaryText": map[string]interface{}{
							"type":        "string",
							"description": "One-sentence human-readable summary of the proposed change.",
						},
						"payload": map[string]interface{}{
							"type":        "object",
							"description": "The structured change, shaped by kind.",
						},
					},
					"required": []string{"kind", "summaryText", "payload"},
				},
			},
		},
	}
}

// turnState carries the per-turn identifiers tool executions need, plus the
// proposals accumulated across tool rounds.
type turnState struct {
	actorUserID   uuid.UUID
	patientUserID uuid.UUID
	mode          model.ContextMode
	threadID      uuid.UUID
	userMessageID uuid.UUID

	proposedMemories    []*model.UserMemory
	proposedSuggestions []*model.PatientRecordSuggestion
}

// executeTool runs one requested tool call and returns the JSON payload fed
// back to the model. Failures come back as error payloads rather than
// aborting the turn; the model decides how to proceed.
func (s *Service) executeTool(ctx context.Context, st *turnState, call ai.ToolCall) string {
	result, err := s.dispatchTool(ctx, st, call)
	if err != nil {
		s.logger.Warn("chat tool call failed",
			"tool", call.Function.Name,
			"error", err.Error(),
		)
		payload, _ := json.Marshal(map[string]string{
			"error": string(apperrors.KindOf(err)),
		})
		return string(payload)
	}
	payload, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return `{"error":"INTERNAL"}`
	}
	return string(payload)
}

func (s *Service) dispatchTool(ctx context.Context, st *turnState, call ai.ToolCall) (interface{}, error) {
	switch call.Function.Name {
	case "retrieveMemories":
		return s.toolRetrieveMemories(ctx, st, call.Function.Arguments)
	case "logMemory":
		return s.toolLogMemory(ctx, st, call.Function.Arguments)
	case "getDocumentInsights":
		return s.toolDocumentInsights(ctx, st, call.Function.Arguments)
	case "proposePatientRecordSuggestion":
		return s.toolProposeSuggestion(ctx, st, call.Function.Arguments)
	default:
		return nil, apperrors.Newf(apperrors.KindBadRequest, "unknown tool %q", call.Function.Name)
	}
}

func (s *Service) toolRetrieveMemories(ctx context.Context, st *turnState, args string) (interface{}, error) {
	var params struct {
		Limit *int `json:"limit"`
	}
	if strings.TrimSpace(args) != "" {
		if err := json.Unmarshal([]byte(args), &params); err != nil {
			return nil, apperrors.Wrap(apperrors.KindBadRequest, "retrieveMemories arguments are invalid", err)
		}
	}
	limit := memoryRetrievalLimit
	if params.Limit != nil {
		limit = *params.Limit
		if limit < 1 {
			limit = 1
		}
		if limit > maxMemoryRetrievalLimit {
			limit = maxMemoryRetrievalLimit
		}
	}

	scope := model.MemoryScope{
		OwnerUserID: st.actorUserID,
		ContextMode: st.mode,
	}
	if st.mode == model.ContextModePhysician {
		scope.SubjectPatientUserID = &st.patientUserID
	}

	memories, err := s.memories.ListAccepted(ctx, scope, limit)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]interface{}, 0, len(memories))
	for _, m := range memories {
		entry := map[string]interface{}{"memoryText": m.MemoryText}
		if m.Category != nil {
			entry["category"] = *m.Category
		}
		out = append(out, entry)
	}
	return map[string]interface{}{"memories": out}, nil
}

func (s *Service) toolLogMemory(ctx context.Context, st *turnState, args string) (interface{}, error) {
	var params struct {
		MemoryText string  `json:"memoryText"`
		Category   *string `json:"category"`
	}
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return nil, apperrors.Wrap(apperrors.KindBadRequest, "logMemory arguments are invalid", err)
	}
	if params.MemoryText == "" {
		return nil, apperrors.Newf(apperrors.KindBadRequest, "logMemory requires memoryText")
	}

	memory := &model.UserMemory{
		ID:              uuid.New(),
		OwnerUserID:     st.actorUserID,
		ContextMode:     st.mode,
		Status:          model.ProposalStatusProposed,
		MemoryText:      params.MemoryText,
		Category:        params.Category,
		SourceThreadID:  &st.threadID,
		SourceMessageID: &st.userMessageID,
		CreatedAt:       time.Now(),
	}
	if st.mode == model.ContextModePhysician {
		memory.SubjectPatientUserID = &st.patientUserID
	}

	if err := s.memories.Create(ctx, memory); err != nil {
		return nil, err
	}
	st.proposedMemories = append(st.proposedMemories, memory)

	return map[string]interface{}{
		"status":   "proposed",
		"memoryId": memory.ID.String(),
	}, nil
}

func (s *Service) toolDocumentInsights(ctx context.Context, st *turnState, args string) (interface{}, error) {
	var params struct {
		DocumentID string `json:"documentId"`
	}
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return nil, apperrors.Wrap(apperrors.KindBadRequest, "getDocumentInsights arguments are invalid", err)
	}
	docID, err := uuid.Parse(params.DocumentID)
	if err != nil {
		return nil, apperrors.Newf(apperrors.KindBadRequest, "documentId is not a UUID")
	}

	// The gate is re-checked per call: the model only ever sees documents the
	// acting user could fetch directly.
	insights, err := s.insights.Insights(ctx, st.actorUserID, docID)
	if err != nil {
		return nil, err
	}
	if insights.Document.PatientUserID != st.patientUserID {
		return nil, apperrors.New(apperrors.KindDocumentNotFound)
	}
	return insights, nil
}

func (s *Service) toolProposeSuggestion(ctx context.Context, st *turnState, args string) (interface{}, error) {
	var params struct {
		Kind        model.SuggestionKind `json:"kind"`
		SummaryText string               `json:"summaryText"`
		Payload     json.RawMessage      `json:"payload"`
	}
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return nil, apperrors.Wrap(apperrors.KindBadRequest, "proposePatientRecordSuggestion arguments are invalid", err)
	}
	if !model.ValidSuggestionKind(params.Kind) {
		return nil, apperrors.Newf(apperrors.KindBadRequest, "unknown suggestion kind %q", params.Kind)
	}
	if params.SummaryText == "" || len(params.Payload) == 0 {
		return nil, apperrors.Newf(apperrors.KindBadRequest, "suggestion requires summaryText and payload")
	}

	now := time.Now()
	suggestion := &model.PatientRecordSuggestion{
		ID:              uuid.New(),
		PatientUserID:   st.patientUserID,
		Kind:            params.Kind,
		SummaryText:     params.SummaryText,
		PayloadJSON:     params.Payload,
		Status:          model.ProposalStatusProposed,
		SourceThreadID:  &st.threadID,
		SourceMessageID: &st.userMessageID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.suggestions.Create(ctx, suggestion); err != nil {
		return nil, err
	}
	st.proposedSuggestions = append(st.proposedSuggestions, suggestion)

	return map[string]interface{}{
		"status":       "proposed",
		"suggestionId": suggestion.ID.String(),
	}, nil
}
