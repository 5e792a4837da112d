package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	commonauth "social_server/server/common/auth"
	"social_server/server/common/middleware"
	"social_server/server/realtime/domain"
	"social_server/server/realtime/service"
)

type roomCreator interface {
	CreateRoom(ctx context.Context, name, roomType, createdBy string, memberIDs []string) (string, error)
}

type Handler struct {
	delivery      *service.DeliveryService
	notifications *service.NotificationService
	scheduler     *service.SchedulerService
	gateway       *service.Gateway
	rooms         roomCreator
	auth          *commonauth.Service
}

func NewHandler(
	delivery *service.DeliveryService,
	notifications *service.NotificationService,
	scheduler *service.SchedulerService,
	gateway *service.Gateway,
	rooms roomCreator,
	jwtSecret string,
	jwtTTLMinutes int,
) *Handler {
	auth := commonauth.NewService(jwtSecret, jwtTTLMinutes)
	return &Handler{
		delivery:      delivery,
		notifications: notifications,
		scheduler:     scheduler,
		gateway:       gateway,
		rooms:         rooms,
		auth:          auth,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, NewHealthResponse("ok")) })
	r.GET("/ws", h.handleWS)

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(h.auth))
	{
		api.POST("/rooms", h.createRoom)
		api.POST("/rooms/:id/messages", h.sendMessage)
		api.GET("/rooms/:id/messages", h.listRoomMessages)

		api.DELETE("/messages/:id", h.deleteMessage)
		api.POST("/messages/:id/reactions", h.toggleReaction)
		api.POST("/messages/:id/read", h.markRead)
		api.POST("/messages/:id/pin", h.togglePin)
		api.GET("/messages/:id/readers", h.listReaders)

		api.GET("/notifications", h.listNotifications)
		api.GET("/notifications/unread-count", h.unreadCount)
		api.POST("/notifications/:id/read", h.markNotificationRead)
		api.DELETE("/notifications/:id", h.deleteNotification)
		api.GET("/notification-preferences", h.getPreferences)
		api.PUT("/notification-preferences", h.updatePreferences)

		api.POST("/scheduled-posts", h.createScheduledPost)
		api.GET("/scheduled-posts/:id", h.getScheduledPost)

		ops := api.Group("/ops")
		ops.Use(middleware.RequireRoles(middleware.RoleAdmin))
		ops.POST("/sweep", h.runSweep)
	}
}

func (h *Handler) handleWS(c *gin.Context) {
	token, ok := wsAccessToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("bearer token is required"))
		return
	}
	userID, userName, role, err := h.auth.ParseAuthContext(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("invalid token"))
		return
	}
	c.Set("auth_user_id", userID)
	c.Set("auth_user_name", userName)
	c.Set("auth_role", role)
	h.gateway.HandleWS(c)
}

func wsAccessToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token != "" {
			return token, true
		}
	}
	token := strings.TrimSpace(c.Query("access_token"))
	if token == "" {
		return "", false
	}
	return token, true
}

func actorFromContext(c *gin.Context) (string, bool) {
	raw, ok := c.Get("auth_user_id")
	if !ok {
		return "", false
	}
	userID, ok := raw.(string)
	return userID, ok && userID != ""
}

func actorIsPrivileged(c *gin.Context) bool {
	raw, ok := c.Get("auth_role")
	if !ok {
		return false
	}
	role, _ := raw.(string)
	return role == middleware.RolePrivileged || role == middleware.RoleAdmin
}

func (h *Handler) createRoom(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized"))
		return
	}
	var req struct {
		Name      string   `json:"name"`
		RoomType  string   `json:"room_type"`
		MemberIDs []string `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	if req.RoomType == "" {
		req.RoomType = "direct"
	}
	id, err := h.rooms.CreateRoom(c.Request.Context(), req.Name, req.RoomType, actorID, req.MemberIDs)
	if err != nil {
		c.JSON(statusForError(err), NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, NewIDResponse(id))
}

func (h *Handler) sendMessage(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized"))
		return
	}
	var req struct {
		Text          string  `json:"text"`
		AttachmentURL *string `json:"attachment_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	created, err := h.delivery.SendMessage(c.Request.Context(), c.Param("id"), actorID, req.Text, req.AttachmentURL)
	if err != nil {
		c.JSON(statusForError(err), NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) listRoomMessages(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized"))
		return
	}
	roomID := c.Param("id")
	isMember, err := h.delivery.IsRoomMember(c.Request.Context(), roomID, actorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(err.Error()))
		return
	}
	if !isMember {
		c.JSON(http.StatusForbidden, NewErrorResponse("room access denied"))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	var cursorID *string
	if cursor := strings.TrimSpace(c.Query("cursor")); cursor != "" {
		cursorID = &cursor
	}
	items, err := h.delivery.ListRoomMessages(c.Request.Context(), roomID, limit, cursorID)
	if err != nil {
		c.JSON(statusForError(err), NewErrorResponse(err.Error()))
		return
	}
	nextCursor := ""
	if len(items) > 0 {
		nextCursor = items[len(items)-1].ID
	}
	c.JSON(http.StatusOK, NewPaginatedResponse(items, nextCursor))
}

func (h *Handler) deleteMessage(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized"))
		return
	}
	err := h.delivery.DeleteMessage(c.Request.Context(), c.Param("id"), actorID, actorIsPrivileged(c))
	if err != nil {
		c.JSON(statusForError(err), NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, NewOKResponse())
}

func (h *Handler) toggleReaction(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized"))
		return
	}
	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	messageID := c.Param("id")
	added, err := h.delivery.ToggleReaction(c.Request.Context(), messageID, actorID, req.Emoji)
	if err != nil {
		c.JSON(statusForError(err), NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, ToggleReactionResponse{MessageID: messageID, Emoji: req.Emoji, Added: added})
}

func (h *Handler) markRead(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized"))
		return
	}
	receipt, err := h.delivery.MarkRead(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		c.JSON(statusForError(err), NewErrorResponse(err.Error()))
		return
	}
	if receipt == nil {
		// Sender marking their own message; nothing recorded.
		c.JSON(http.StatusOK, NewOKResponse())
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (h *Handler) togglePin(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized"))
		return
	}
	msg, err := h.delivery.TogglePin(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		c.JSON(statusForError(err), NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) listReaders(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized"))
		return
	}
	items, err := h.delivery.ListReaders(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		c.JSON(statusForError(err), NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, NewPaginatedResponse(items, ""))
}

func (h *Handler) listNotifications(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized"))
		return
	}
	unreadOnly := c.Query("unread") == "true"
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	items, err := h.notifications.List(c.Request.Context(), actorID, unreadOnly, limit)
	if err != nil {
		c.JSON(statusForError(err), NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, NewPaginatedResponse(items, ""))
}

func (h *Handler) unreadCount(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized"))
		return
	}
	count, err := h.notifications.UnreadCount(c.Request.Context(), actorID)
	if err != nil {
		c.JSON(statusForError(err), NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, UnreadCountResponse{UserID: actorID, UnreadCount: count})
}

func (h *Handler) markNotificationRead(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized"))
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), c.Param("id"), actorID); err != nil {
		c.JSON(statusForError(err), NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, NewOKResponse())
}

func (h *Handler) deleteNotification(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized"))
		return
	}
	if err := h.notifications.Delete(c.Request.Context(), c.Param("id"), actorID); err != nil {
		c.JSON(statusForError(err), NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, NewOKResponse())
}

func (h *Handler) getPreferences(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized"))
		return
	}
	pref, err := h.notifications.Preferences(c.Request.Context(), actorID)
	if err != nil {
		c.JSON(statusForError(err), NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, pref)
}

func (h *Handler) updatePreferences(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized"))
		return
	}
	var req domain.NotificationPreference
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	req.UserID = actorID
	pref, err := h.notifications.UpdatePreferences(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusForError(err), NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, pref)
}

func (h *Handler) createScheduledPost(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized"))
		return
	}
	var req struct {
		Body  string    `json:"body" binding:"required"`
		DueAt time.Time `json:"due_at" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	post, err := h.scheduler.Schedule(c.Request.Context(), actorID, req.Body, req.DueAt)
	if err != nil {
		c.JSON(statusForError(err), NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (h *Handler) getScheduledPost(c *gin.Context) {
	if _, ok := actorFromContext(c); !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized"))
		return
	}
	post, err := h.scheduler.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *Handler) runSweep(c *gin.Context) {
	result, err := h.scheduler.RunSweepOnce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, result)
}
