package models

// TombstoneText replaces the content of a soft-deleted message. The row is
// never removed so read-receipt history survives deletion.
const TombstoneText = "This message was deleted"

// Message is a direct message inside a conversation.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Content        string `json:"content"`
	IsEdited       bool   `json:"isEdited"`
	IsDeleted      bool   `json:"isDeleted"`
	// CreatedTS/UpdatedTS are nanosecond timestamps.
	CreatedTS int64 `json:"created_ts"`
	UpdatedTS int64 `json:"updated_ts"`

	// Reads holds one receipt per participant who has seen the message.
	Reads []MessageRead `json:"reads"`
}

// MessageRead is a read receipt: who read the message and when (ns).
type MessageRead struct {
	UserID string `json:"userId"`
	ReadTS int64  `json:"readAt"`
}
