package models

// Notification types produced by the write path.
const (
	NotificationLike    = "like"
	NotificationComment = "comment"
	NotificationReply   = "reply"
	NotificationFollow  = "follow"
	NotificationMention = "mention"
)

// Notification is a single feed event addressed to one recipient. The
// delivery layer only ever flips IsRead; everything else is written once by
// the action that caused it.
type Notification struct {
	ID      string `json:"id"`
	UserID  string `json:"userId"`
	Type    string `json:"type"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
	IsRead  bool   `json:"isRead"`
	// CreatedTS is a nanosecond timestamp; rendered as createdAt in API
	// responses.
	CreatedTS int64 `json:"created_ts"`

	Data NotificationData `json:"data"`
}

// NotificationData carries optional references to the actor and the photo or
// comment the event is about.
type NotificationData struct {
	ActionUserID     string `json:"actionUserId,omitempty"`
	ActionUserName   string `json:"actionUserName,omitempty"`
	ActionUserAvatar string `json:"actionUserAvatar,omitempty"`
	PhotoID          string `json:"photoId,omitempty"`
	PhotoURL         string `json:"photoUrl,omitempty"`
	PhotoTitle       string `json:"photoTitle,omitempty"`
	CommentID        string `json:"commentId,omitempty"`
	CommentContent   string `json:"commentContent,omitempty"`
}

// ValidType reports whether t is one of the known notification types.
func ValidType(t string) bool {
	switch t {
	case NotificationLike, NotificationComment, NotificationReply, NotificationFollow, NotificationMention:
		return true
	}
	return false
}
