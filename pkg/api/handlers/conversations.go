package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"snapfeed/pkg/auth"
	"snapfeed/pkg/logger"
	"snapfeed/pkg/models"
	"snapfeed/pkg/store"
	"snapfeed/pkg/telemetry"
	"snapfeed/pkg/utils"
)

// conversationSummary is one row of the conversation list.
type conversationSummary struct {
	ID           string              `json:"id"`
	Participants []string            `json:"participants"`
	UpdatedAt    string              `json:"updatedAt"`
	LastMessage  *models.MessageView `json:"lastMessage,omitempty"`
	UnreadCount  int                 `json:"unreadCount"`
}

// ListConversations answers GET /v1/conversations: the subject's
// conversations, most recently active first, with last message and unread
// count per row.
func (h *Handlers) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := auth.SubjectFromContext(r.Context())
	if userID == "" {
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cacheKey := "conversations:" + userID
	if cached, ok := h.cache.Get(cacheKey); ok {
		telemetry.CacheHit()
		_ = utils.JSONWrite(w, http.StatusOK, cached)
		return
	}
	telemetry.CacheMiss()

	convs, err := h.store.ListConversations(userID)
	if err != nil {
		logger.Error("list_conversations_failed", "user", userID, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "failed to fetch conversations")
		return
	}
	out := make([]conversationSummary, 0, len(convs))
	for i := range convs {
		c := &convs[i]
		row := conversationSummary{
			ID:           c.ID,
			Participants: c.Participants,
			UpdatedAt:    time.Unix(0, c.UpdatedTS).UTC().Format(time.RFC3339Nano),
		}
		if last, err := h.store.LastMessage(c.ID); err == nil && last != nil {
			v := last.View()
			row.LastMessage = &v
		}
		if n, err := h.store.CountUnreadInConversation(c.ID, userID); err == nil {
			row.UnreadCount = n
		}
		out = append(out, row)
	}

	result := map[string]any{"conversations": out}
	h.cache.Set(cacheKey, result, conversationsTTLSeconds*time.Second)
	_ = utils.JSONWrite(w, http.StatusOK, result)
}

// StartConversation answers POST /v1/conversations/start {participantId}:
// it returns the existing two-party conversation with that user or creates
// a new one.
func (h *Handlers) StartConversation(w http.ResponseWriter, r *http.Request) {
	userID := auth.SubjectFromContext(r.Context())
	if userID == "" {
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body struct {
		ParticipantID string `json:"participantId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.ParticipantID == "" || body.ParticipantID == userID {
		utils.JSONError(w, http.StatusBadRequest, "participantId is required")
		return
	}

	if existing, err := h.store.FindConversationWith(userID, body.ParticipantID); err == nil {
		_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"conversation": existing, "created": false})
		return
	} else if err != store.ErrConversationNotFound {
		utils.JSONError(w, http.StatusInternalServerError, "failed to start conversation")
		return
	}

	c := models.Conversation{
		ID:           utils.GenConversationID(),
		Participants: []string{userID, body.ParticipantID},
	}
	if err := h.store.SaveConversation(&c); err != nil {
		logger.Error("start_conversation_failed", "user", userID, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "failed to start conversation")
		return
	}
	h.cache.DeleteByPrefix("conversations:")
	logger.Info("conversation_started", "id", c.ID, "user", userID, "with", body.ParticipantID)
	_ = utils.JSONWrite(w, http.StatusCreated, map[string]any{"conversation": c, "created": true})
}

// MarkConversationRead answers POST /v1/conversations/{conversationId}/read:
// read receipts are created for every message the subject has not read.
func (h *Handlers) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	userID, conv, ok := h.requireParticipant(w, r)
	if !ok {
		return
	}
	marked, err := h.store.MarkConversationRead(conv.ID, userID)
	if err != nil {
		logger.Error("mark_conversation_read_failed", "conversation", conv.ID, "user", userID, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "failed to mark messages as read")
		return
	}
	h.invalidateMessaging()
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"success": true, "markedCount": marked})
}
