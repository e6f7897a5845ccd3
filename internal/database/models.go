package database

import "time"

type Status string

const (
	StatusConnected    Status = "CONNECTED"
	StatusDisconnected Status = "DISCONNECTED"
)

type Identity struct {
	Handle       string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ConversationRecord is one direction of a two-party conversation. Both
// directions of a pair reference the same ConversationId.
type ConversationRecord struct {
	ConversationId string
	SenderId       string
	RecipientId    string
	CreatedAt      time.Time
}

type Message struct {
	Id             string
	ConversationId string
	SenderId       string
	RecipientId    string
	Content        string
	SentAt         time.Time
}

type CreateIdentityParams struct {
	Handle       string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
}
