package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clinidesk/clinidesk/internal/middleware"
	"github.com/clinidesk/clinidesk/internal/notifications"
	"github.com/clinidesk/clinidesk/internal/realtime"
	"github.com/clinidesk/clinidesk/pkg/errors"
	"github.com/clinidesk/clinidesk/pkg/response"
)

// NotificationHandler exposes HTTP endpoints for the notification inbox.
type NotificationHandler struct {
	service *notifications.Service
	hub     *realtime.Hub
}

// NewNotificationHandler constructs a notification handler. The hub is used
// only for presence introspection; pushes go through the service.
func NewNotificationHandler(service *notifications.Service, hub *realtime.Hub) (*NotificationHandler, error) {
	if service == nil {
		return nil, errors.New("HANDLER_CONFIG", "notification service must be provided", http.StatusInternalServerError)
	}
	return &NotificationHandler{service: service, hub: hub}, nil
}

// List returns the current user's notifications, newest first.
// GET /api/notifications?page=1&per_page=25
func (h *NotificationHandler) List(c *gin.Context) {
	userID, role, ok := currentIdentity(c)
	if !ok {
		return
	}

	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 25)

	result, err := h.service.List(c.Request.Context(), role, userID, page, perPage)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, result.Items, &response.Meta{
		Page:       result.Page,
		PerPage:    result.PerPage,
		Total:      result.Total,
		TotalPages: result.TotalPages,
	})
}

// UnreadCount returns the badge count for the current user.
// GET /api/notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, _, ok := currentIdentity(c)
	if !ok {
		return
	}

	count, err := h.service.CountUnread(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unread": count})
}

// MarkRead marks one notification read.
// PATCH /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, _, ok := currentIdentity(c)
	if !ok {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	record, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if record.RecipientID != userID {
		response.Error(c, errors.ErrForbidden)
		return
	}

	record, err = h.service.MarkRead(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, record)
}

// MarkAllRead marks every unread notification of the current user read.
// POST /api/notifications/mark-all-read
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, role, ok := currentIdentity(c)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllRead(c.Request.Context(), role, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}

type createNotificationRequest struct {
	RecipientRole string         `json:"recipient_role" validate:"required,oneof=patient doctor admin"`
	RecipientID   string         `json:"recipient_id" validate:"required"`
	Title         string         `json:"title" validate:"required,max=255"`
	Message       string         `json:"message" validate:"required"`
	Kind          string         `json:"kind" validate:"omitempty,oneof=appointment prescription lab_result general payment reminder"`
	Metadata      map[string]any `json:"metadata"`
}

// Create writes a notification for a single recipient. Admin only.
// POST /api/notifications
func (h *NotificationHandler) Create(c *gin.Context) {
	var req createNotificationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	record, err := h.service.Create(c.Request.Context(), notifications.CreateInput{
		RecipientRole: req.RecipientRole,
		RecipientID:   req.RecipientID,
		Title:         req.Title,
		Message:       req.Message,
		Kind:          req.Kind,
		Metadata:      req.Metadata,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, record)
}

type broadcastRequest struct {
	Role    string `json:"role" validate:"required,oneof=patient doctor admin"`
	Title   string `json:"title" validate:"required,max=255"`
	Message string `json:"message" validate:"required"`
	Kind    string `json:"kind" validate:"omitempty,oneof=appointment prescription lab_result general payment reminder"`
}

// Broadcast fans a notification out to every member of a role. Admin only.
// POST /api/notifications/broadcast
func (h *NotificationHandler) Broadcast(c *gin.Context) {
	var req broadcastRequest
	if !bindAndValidate(c, &req) {
		return
	}

	created, err := h.service.BroadcastToRole(c.Request.Context(), req.Role, req.Title, req.Message, req.Kind)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"created": created})
}

type updateNotificationRequest struct {
	Title   *string `json:"title"`
	Message *string `json:"message"`
	IsRead  *bool   `json:"is_read"`
}

// Update patches a notification's mutable fields. Admin only.
// PATCH /api/notifications/:id
func (h *NotificationHandler) Update(c *gin.Context) {
	var req updateNotificationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	record, err := h.service.Update(c.Request.Context(), id, notifications.UpdatePatch{
		Title:   req.Title,
		Message: req.Message,
		IsRead:  req.IsRead,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, record)
}

// Delete removes a notification. Admin only.
// DELETE /api/notifications/:id
func (h *NotificationHandler) Delete(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// Stats reports store-wide counters and live presence. Admin only.
// GET /api/notifications/stats
func (h *NotificationHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := gin.H{
		"total":   stats.Total,
		"unread":  stats.Unread,
		"read":    stats.Read,
		"by_kind": stats.ByKind,
	}
	if h.hub != nil {
		payload["online"] = h.hub.CountOnline()
	}
	response.Success(c, http.StatusOK, payload)
}

// currentIdentity pulls the authenticated identity out of the request
// context, writing a 401 when it is absent.
func currentIdentity(c *gin.Context) (userID, role string, ok bool) {
	userID = strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	role = strings.TrimSpace(c.GetString(middleware.CtxRoleKey))
	if userID == "" || role == "" {
		response.Error(c, errors.ErrUnauthorized)
		return "", "", false
	}
	return userID, role, true
}
