package suggestion

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medichat/records-api/internal/handler"
	"github.com/medichat/records-api/internal/middleware"
	"github.com/medichat/records-api/internal/model"
	"github.com/medichat/records-api/internal/service/confirmation"
)

// Handler exposes the patient-facing suggestion review surface. Suggestions
// are always resolved by the patient they belong to.
type Handler struct {
	service confirmation.ConfirmationService
}

func NewHandler(service confirmation.ConfirmationService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	suggestions := r.Group("/suggestions")
	{
		suggestions.GET("", h.List)
		suggestions.POST("/:id/accept", h.Accept)
		suggestions.POST("/:id/reject", h.Reject)
	}
}

func (h *Handler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthenticated"))
		return
	}

	status, ok := statusFilter(c)
	if !ok {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid status"))
		return
	}

	suggestions, err := h.service.ListSuggestions(c.Request.Context(), userID, status)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(suggestions))
}

func (h *Handler) Accept(c *gin.Context) {
	h.resolve(c, h.service.AcceptSuggestion)
}

func (h *Handler) Reject(c *gin.Context) {
	h.resolve(c, h.service.RejectSuggestion)
}

func (h *Handler) resolve(c *gin.Context, fn func(ctx context.Context, suggestionID, patientUserID uuid.UUID) error) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthenticated"))
		return
	}

	suggestionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid suggestion ID"))
		return
	}

	if err := fn(c.Request.Context(), suggestionID, userID); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func statusFilter(c *gin.Context) (*model.ProposalStatus, bool) {
	raw := c.Query("status")
	if raw == "" {
		return nil, true
	}
	status := model.ProposalStatus(raw)
	switch status {
	case model.ProposalStatusProposed, model.ProposalStatusAccepted, model.ProposalStatusRejected:
		return &status, true
	}
	return nil, false
}
