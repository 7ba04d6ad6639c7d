package models

import "time"

// Notification is the durable record pushed to live connections. The row is
// owned by the notification store; pushgate only writes it through Notify and
// reads it back for history and unread bookkeeping.
type Notification struct {
	ID          string     `json:"id"`
	RecipientID string     `json:"recipientId"`
	ActorID     string     `json:"actorId,omitempty"`
	Kind        string     `json:"kind"`
	SubjectID   string     `json:"subjectId,omitempty"`
	Body        string     `json:"body"`
	CreatedAt   time.Time  `json:"createdAt"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
}

// Notification kinds produced by the social layer.
const (
	KindLike    = "like"
	KindComment = "comment"
	KindFollow  = "follow"
	KindMention = "mention"
	KindSystem  = "system"
)

// ValidKind reports whether k is a kind this service accepts for ingress.
func ValidKind(k string) bool {
	switch k {
	case KindLike, KindComment, KindFollow, KindMention, KindSystem:
		return true
	}
	return false
}
