package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medichat/records-api/internal/handler"
	"github.com/medichat/records-api/internal/middleware"
	"github.com/medichat/records-api/internal/model"
	"github.com/medichat/records-api/internal/service/chat"
)

type Handler struct {
	service chat.ChatService
}

func NewHandler(service chat.ChatService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	chats := r.Group("/chat")
	{
		chats.POST("/turns", h.Turn)
		chats.GET("/threads", h.ListThreads)
		chats.GET("/threads/:id/messages", h.ThreadMessages)
	}
}

func (h *Handler) Turn(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthenticated"))
		return
	}

	var req model.ChatTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	result, err := h.service.Turn(c.Request.Context(), userID, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) ListThreads(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthenticated"))
		return
	}

	mode := model.ContextMode(c.DefaultQuery("mode", string(model.ContextModePatient)))
	if mode != model.ContextModePatient && mode != model.ContextModePhysician {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid mode"))
		return
	}

	patientID := userID
	if raw := c.Query("patient_user_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
			return
		}
		patientID = parsed
	}

	threads, err := h.service.ListThreads(c.Request.Context(), userID, patientID, mode)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(threads))
}

func (h *Handler) ThreadMessages(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthenticated"))
		return
	}

	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid thread ID"))
		return
	}

	messages, err := h.service.ThreadMessages(c.Request.Context(), userID, threadID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(messages))
}
