package models

import "time"

// NotificationView is the wire shape of a notification: timestamps are
// rendered as RFC3339 strings for stream envelopes and REST responses.
type NotificationView struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	Title     string           `json:"title,omitempty"`
	Message   string           `json:"message,omitempty"`
	IsRead    bool             `json:"isRead"`
	CreatedAt string           `json:"createdAt"`
	Data      NotificationData `json:"data"`
}

// View renders the notification for the wire.
func (n *Notification) View() NotificationView {
	return NotificationView{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: time.Unix(0, n.CreatedTS).UTC().Format(time.RFC3339Nano),
		Data:      n.Data,
	}
}

// MessageView is the wire shape of a message.
type MessageView struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	Content        string        `json:"content"`
	IsEdited       bool          `json:"isEdited"`
	IsDeleted      bool          `json:"isDeleted"`
	CreatedAt      string        `json:"createdAt"`
	UpdatedAt      string        `json:"updatedAt"`
	Reads          []ReadView    `json:"reads"`
}

// ReadView is the wire shape of a read receipt.
type ReadView struct {
	UserID string `json:"userId"`
	ReadAt string `json:"readAt"`
}

// View renders the message for the wire.
func (m *Message) View() MessageView {
	reads := make([]ReadView, 0, len(m.Reads))
	for _, r := range m.Reads {
		reads = append(reads, ReadView{UserID: r.UserID, ReadAt: time.Unix(0, r.ReadTS).UTC().Format(time.RFC3339Nano)})
	}
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		IsEdited:       m.IsEdited,
		IsDeleted:      m.IsDeleted,
		CreatedAt:      time.Unix(0, m.CreatedTS).UTC().Format(time.RFC3339Nano),
		UpdatedAt:      time.Unix(0, m.UpdatedTS).UTC().Format(time.RFC3339Nano),
		Reads:          reads,
	}
}
