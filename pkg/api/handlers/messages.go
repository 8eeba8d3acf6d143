package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"snapfeed/pkg/auth"
	"snapfeed/pkg/logger"
	"snapfeed/pkg/models"
	"snapfeed/pkg/store"
	"snapfeed/pkg/telemetry"
	"snapfeed/pkg/utils"
)

// messageListLimit caps a conversation fetch at the most recent rows.
const messageListLimit = 100

// requireParticipant resolves the subject and the conversation from the
// request and verifies membership. It writes the error response itself when
// the check fails.
func (h *Handlers) requireParticipant(w http.ResponseWriter, r *http.Request) (string, *models.Conversation, bool) {
	userID := auth.SubjectFromContext(r.Context())
	if userID == "" {
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return "", nil, false
	}
	convID := mux.Vars(r)["conversationId"]
	conv, err := h.store.GetConversation(convID)
	if err == store.ErrConversationNotFound {
		utils.JSONError(w, http.StatusNotFound, "conversation not found")
		return "", nil, false
	}
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to load conversation")
		return "", nil, false
	}
	if !conv.HasParticipant(userID) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return "", nil, false
	}
	return userID, conv, true
}

// ListMessages answers GET /v1/conversations/{conversationId}/messages.
func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, conv, ok := h.requireParticipant(w, r)
	if !ok {
		return
	}

	cacheKey := "messages:" + conv.ID + ":" + userID
	if cached, ok := h.cache.Get(cacheKey); ok {
		telemetry.CacheHit()
		_ = utils.JSONWrite(w, http.StatusOK, cached)
		return
	}
	telemetry.CacheMiss()

	msgs, err := h.store.ListMessages(conv.ID, messageListLimit)
	if err != nil {
		logger.Error("list_messages_failed", "conversation", conv.ID, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	views := make([]models.MessageView, 0, len(msgs))
	for i := range msgs {
		views = append(views, msgs[i].View())
	}
	result := map[string]any{"messages": views}
	h.cache.Set(cacheKey, result, messagesTTLSeconds*time.Second)
	_ = utils.JSONWrite(w, http.StatusOK, result)
}

// SendMessage answers POST /v1/conversations/{conversationId}/messages.
// Empty or whitespace-only content is rejected before anything is written.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, conv, ok := h.requireParticipant(w, r)
	if !ok {
		return
	}
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	content := strings.TrimSpace(body.Content)
	if content == "" {
		utils.JSONError(w, http.StatusBadRequest, "message content is required")
		return
	}

	m := models.Message{
		ID:             utils.GenID(),
		ConversationID: conv.ID,
		SenderID:       userID,
		Content:        content,
	}
	if err := h.store.SaveMessage(&m); err != nil {
		logger.Error("send_message_failed", "conversation", conv.ID, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "failed to send message")
		return
	}
	if err := h.store.TouchConversation(conv.ID, m.CreatedTS); err != nil {
		logger.Warn("touch_conversation_failed", "conversation", conv.ID, "error", err)
	}
	h.invalidateMessaging()
	logger.Info("message_created", "conversation", conv.ID, "id", m.ID)
	_ = utils.JSONWrite(w, http.StatusCreated, map[string]any{"message": m.View()})
}

// loadOwnMessage loads the message and checks the subject sent it.
func (h *Handlers) loadOwnMessage(w http.ResponseWriter, r *http.Request) (string, *models.Message, bool) {
	userID := auth.SubjectFromContext(r.Context())
	if userID == "" {
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return "", nil, false
	}
	m, err := h.store.GetMessage(mux.Vars(r)["messageId"])
	if err == store.ErrMessageNotFound {
		utils.JSONError(w, http.StatusNotFound, "message not found")
		return "", nil, false
	}
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to load message")
		return "", nil, false
	}
	if m.SenderID != userID {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return "", nil, false
	}
	return userID, m, true
}

// EditMessage answers PATCH /v1/messages/{messageId}. Only the sender may
// edit; edits set the isEdited flag and bump updatedAt.
func (h *Handlers) EditMessage(w http.ResponseWriter, r *http.Request) {
	_, m, ok := h.loadOwnMessage(w, r)
	if !ok {
		return
	}
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	content := strings.TrimSpace(body.Content)
	if content == "" {
		utils.JSONError(w, http.StatusBadRequest, "message content is required")
		return
	}
	if m.IsDeleted {
		utils.JSONError(w, http.StatusConflict, "message was deleted")
		return
	}

	m.Content = content
	m.IsEdited = true
	m.UpdatedTS = time.Now().UTC().UnixNano()
	if err := h.store.UpdateMessage(m); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to edit message")
		return
	}
	h.invalidateMessaging()
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"message": m.View()})
}

// DeleteMessage answers DELETE /v1/messages/{messageId}. The row is kept as
// a tombstone so read-receipt history survives.
func (h *Handlers) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	_, m, ok := h.loadOwnMessage(w, r)
	if !ok {
		return
	}
	m.IsDeleted = true
	m.Content = models.TombstoneText
	m.UpdatedTS = time.Now().UTC().UnixNano()
	if err := h.store.UpdateMessage(m); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to delete message")
		return
	}
	h.invalidateMessaging()
	logger.Info("message_deleted", "id", m.ID)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"success": true})
}

// UnreadMessageCount answers GET /v1/messages/unread with the subject's
// unread total across all conversations.
func (h *Handlers) UnreadMessageCount(w http.ResponseWriter, r *http.Request) {
	userID := auth.SubjectFromContext(r.Context())
	if userID == "" {
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cacheKey := "unread:" + userID
	if cached, ok := h.cache.Get(cacheKey); ok {
		telemetry.CacheHit()
		_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"count": cached})
		return
	}
	telemetry.CacheMiss()

	count, err := h.store.CountUnreadMessages(userID)
	if err != nil {
		logger.Error("count_unread_messages_failed", "user", userID, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "failed to fetch unread count")
		return
	}
	h.cache.Set(cacheKey, count, unreadTTLSeconds*time.Second)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"count": count})
}
