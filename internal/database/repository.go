package database

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

type RelayRepository interface {
	Ping(ctx context.Context) error
	Close() error
	CreateIdentity(ctx context.Context, params CreateIdentityParams) (Identity, error)
	GetIdentity(ctx context.Context, handle string) (Identity, error)
	UpsertPresence(ctx context.Context, handle string, status Status) (Identity, error)
	UpdatePresence(ctx context.Context, handle string, status Status) (Identity, error)
	ListIdentitiesByStatus(ctx context.Context, status Status) ([]Identity, error)
	ResetPresence(ctx context.Context) (int64, error)
	GetConversationId(ctx context.Context, senderId, recipientId string) (string, error)
	// CreateConversation writes both directed records for the pair unless the
	// pair already has a conversation, and returns the id that won.
	CreateConversation(ctx context.Context, senderId, recipientId, conversationId string) (string, error)
	CreateMessage(ctx context.Context, msg Message) error
	GetMessages(ctx context.Context, conversationId string) ([]Message, error)
}

// orderedPair returns the two handles sorted, so both directions of a pair
// map to the same key.
func orderedPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
