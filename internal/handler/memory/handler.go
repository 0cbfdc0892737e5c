package memory

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

type Handler struct {
	service confirmation.ConfirmationService
}

func NewHandler(service confirmation.ConfirmationService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	memories := r.Group("/memories")
	{
		memories.GET("", h.List)
		memories.POST("/:id/accept", h.Accept)
		memories.POST("/:id/reject", h.Reject)
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

	memories, err := h.service.ListMemories(c.Request.Context(), userID, status)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(memories))
}

func (h *Handler) Accept(c *gin.Context) {
	h.resolve(c, h.service.AcceptMemory)
}

func (h *Handler) Reject(c *gin.Context) {
	h.resolve(c, h.service.RejectMemory)
}

func (h *Handler) resolve(c *gin.Context, fn func(ctx context.Context, memoryID, ownerUserID uuid.UUID) error) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthenticated"))
		return
	}

	memoryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid memory ID"))
		return
	}

	if err := fn(c.Request.Context(), memoryID, userID); err != nil {
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
