package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"snapfeed/pkg/auth"
	"snapfeed/pkg/logger"
	"snapfeed/pkg/models"
	"snapfeed/pkg/store"
	"snapfeed/pkg/telemetry"
	"snapfeed/pkg/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

type pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	HasMore bool `json:"hasMore"`
}

// ListNotifications answers GET /v1/notifications?page&limit with one page
// of the subject's notifications plus the unread count.
func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := auth.SubjectFromContext(r.Context())
	if userID == "" {
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	page := 1
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	limit := defaultPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	notifs, total, err := h.store.ListNotifications(userID, page, limit)
	if err != nil {
		logger.Error("list_notifications_failed", "user", userID, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "failed to fetch notifications")
		return
	}
	unread, err := h.store.CountUnreadNotifications(userID)
	if err != nil {
		logger.Error("count_unread_notifications_failed", "user", userID, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "failed to fetch notifications")
		return
	}

	views := make([]models.NotificationView, 0, len(notifs))
	for i := range notifs {
		views = append(views, notifs[i].View())
	}
	pages := (total + limit - 1) / limit
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{
		"success":       true,
		"notifications": views,
		"pagination": pagination{
			Page:    page,
			Limit:   limit,
			Total:   total,
			Pages:   pages,
			HasMore: page*limit < total,
		},
		"unreadCount": unread,
	})
}

// CreateNotification answers POST /v1/notifications. Only backend callers
// (the write path that observed a like/comment/follow) may create rows; the
// handler also relays the event to the socket hub when one is wired.
func (h *Handlers) CreateNotification(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Role-Name") != "backend" {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	var n models.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if n.UserID == "" {
		utils.JSONError(w, http.StatusBadRequest, "recipient is required")
		return
	}
	if !models.ValidType(n.Type) {
		utils.JSONError(w, http.StatusBadRequest, "unknown notification type")
		return
	}
	if n.ID == "" {
		n.ID = utils.GenID()
	}
	if err := h.store.SaveNotification(&n); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to create notification")
		return
	}
	telemetry.NotificationsCreated.WithLabelValues(n.Type).Inc()
	logger.Info("notification_created", "user", n.UserID, "id", n.ID, "type", n.Type)

	if h.notifier != nil {
		// best-effort push; offline users catch up via the stream
		h.notifier.NotifyUser(n.UserID, n.View())
	}
	_ = utils.JSONWrite(w, http.StatusCreated, map[string]any{"success": true, "notification": n.View()})
}

// UpdateNotifications answers PATCH /v1/notifications with either
// {notificationId, markAsRead} or {markAllAsRead:true}.
func (h *Handlers) UpdateNotifications(w http.ResponseWriter, r *http.Request) {
	userID := auth.SubjectFromContext(r.Context())
	if userID == "" {
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body struct {
		NotificationID string `json:"notificationId"`
		MarkAsRead     *bool  `json:"markAsRead"`
		MarkAllAsRead  bool   `json:"markAllAsRead"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	switch {
	case body.MarkAllAsRead:
		if err := h.store.MarkAllNotificationsRead(userID); err != nil {
			utils.JSONError(w, http.StatusInternalServerError, "failed to update notifications")
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"success": true, "message": "all notifications marked as read"})
	case body.NotificationID != "":
		read := true
		if body.MarkAsRead != nil {
			read = *body.MarkAsRead
		}
		err := h.store.MarkNotificationRead(body.NotificationID, userID, read)
		if err == store.ErrNotificationNotFound {
			utils.JSONError(w, http.StatusNotFound, "notification not found")
			return
		}
		if err != nil {
			utils.JSONError(w, http.StatusInternalServerError, "failed to update notification")
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"success": true})
	default:
		utils.JSONError(w, http.StatusBadRequest, "invalid request parameters")
	}
}
