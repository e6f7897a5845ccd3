package types

import (
	"time"

	"github.com/npezzotti/go-dmrelay/internal/database"
)

// IdentitySummary is the public view of an identity. Credentials never leave
// the server.
type IdentitySummary struct {
	Handle    string    `json:"handle"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type Message struct {
	Id             string    `json:"id"`
	ConversationId string    `json:"conversation_id"`
	SenderId       string    `json:"sender_id"`
	RecipientId    string    `json:"recipient_id"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sent_at"`
}

// Notification is pushed to the recipient's private channel for each
// message that was just stored.
type Notification struct {
	Id          string `json:"id"`
	SenderId    string `json:"sender_id"`
	RecipientId string `json:"recipient_id"`
	Content     string `json:"content"`
}

type PresenceChange struct {
	Handle string `json:"handle"`
	Status string `json:"status"`
}

func NewIdentitySummary(i database.Identity) IdentitySummary {
	return IdentitySummary{
		Handle:    i.Handle,
		FirstName: i.FirstName,
		LastName:  i.LastName,
		Status:    string(i.Status),
		CreatedAt: i.CreatedAt,
	}
}

func NewIdentitySummaries(identities []database.Identity) []IdentitySummary {
	out := make([]IdentitySummary, 0, len(identities))
	for _, i := range identities {
		out = append(out, NewIdentitySummary(i))
	}
	return out
}

func NewMessage(m database.Message) Message {
	return Message{
		Id:             m.Id,
		ConversationId: m.ConversationId,
		SenderId:       m.SenderId,
		RecipientId:    m.RecipientId,
		Content:        m.Content,
		SentAt:         m.SentAt,
	}
}

func NewMessages(messages []database.Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, NewMessage(m))
	}
	return out
}

func NewNotification(m database.Message) Notification {
	return Notification{
		Id:          m.Id,
		SenderId:    m.SenderId,
		RecipientId: m.RecipientId,
		Content:     m.Content,
	}
}
