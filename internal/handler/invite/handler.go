package invite

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medichat/records-api/internal/handler"
	"github.com/medichat/records-api/internal/middleware"
	"github.com/medichat/records-api/internal/model"
	"github.com/medichat/records-api/internal/service/invite"
)

var timeNow = time.Now

type Handler struct {
	service invite.InviteService
}

func NewHandler(service invite.InviteService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	invites := r.Group("/invites")
	{
		invites.POST("", h.CreateInvite)
		invites.GET("", h.ListInvites)
		invites.POST("/accept", h.AcceptInvite)
		invites.POST("/:id/revoke", h.RevokeInvite)
	}
	r.POST("/access/revoke", h.RevokeAccess)
}

func (h *Handler) CreateInvite(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthenticated"))
		return
	}

	var req model.CreateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	created, err := h.service.CreateInvite(c.Request.Context(), userID, req.Kind)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(created))
}

func (h *Handler) ListInvites(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthenticated"))
		return
	}

	invites, err := h.service.ListInvites(c.Request.Context(), userID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	// Derived status rides along so clients never compute expiry themselves.
	type inviteView struct {
		*model.Invite
		Status model.InviteStatus `json:"status"`
	}
	views := make([]inviteView, 0, len(invites))
	for _, inv := range invites {
		views = append(views, inviteView{Invite: inv, Status: inv.Status(timeNow())})
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(views))
}

func (h *Handler) AcceptInvite(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthenticated"))
		return
	}

	var req model.AcceptInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	accepted, err := h.service.AcceptInvite(c.Request.Context(), req.Token, userID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(accepted))
}

func (h *Handler) RevokeInvite(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthenticated"))
		return
	}

	inviteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid invite ID"))
		return
	}

	if err := h.service.RevokeInvite(c.Request.Context(), inviteID, userID); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

// RevokeAccess ends a grant. Either side of the pair may call it: the caller
// is pinned to their own role, so nobody can revoke a pair they are not in.
func (h *Handler) RevokeAccess(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthenticated"))
		return
	}

	var req struct {
		PatientUserID   *uuid.UUID `json:"patient_user_id,omitempty"`
		PhysicianUserID *uuid.UUID `json:"physician_user_id,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	var patientID, physicianID uuid.UUID
	switch {
	case req.PhysicianUserID != nil && req.PatientUserID == nil:
		patientID, physicianID = userID, *req.PhysicianUserID
	case req.PatientUserID != nil && req.PhysicianUserID == nil:
		patientID, physicianID = *req.PatientUserID, userID
	default:
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("exactly one of patient_user_id or physician_user_id is required"))
		return
	}

	if err := h.service.RevokeAccess(c.Request.Context(), patientID, physicianID); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}
