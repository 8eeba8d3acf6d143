package models

// Conversation is a direct-message channel between two or more participants.
// UpdatedTS is bumped on every new message and orders conversation lists.
type Conversation struct {
	ID           string   `json:"id"`
	Participants []string `json:"participants"`
	CreatedTS    int64    `json:"created_ts"`
	UpdatedTS    int64    `json:"updated_ts"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
