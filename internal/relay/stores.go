package relay

import (
	"context"

	"github.com/npezzotti/go-dmrelay/internal/database"
)

// The relay consumes the record stores through these narrow views.
// database.RelayRepository satisfies all of them.

type IdentityStore interface {
	CreateIdentity(ctx context.Context, params database.CreateIdentityParams) (database.Identity, error)
	GetIdentity(ctx context.Context, handle string) (database.Identity, error)
	UpsertPresence(ctx context.Context, handle string, status database.Status) (database.Identity, error)
	UpdatePresence(ctx context.Context, handle string, status database.Status) (database.Identity, error)
	ListIdentitiesByStatus(ctx context.Context, status database.Status) ([]database.Identity, error)
	ResetPresence(ctx context.Context) (int64, error)
}

type ConversationStore interface {
	GetConversationId(ctx context.Context, senderId, recipientId string) (string, error)
	CreateConversation(ctx context.Context, senderId, recipientId, conversationId string) (string, error)
}

type MessageStore interface {
	CreateMessage(ctx context.Context, msg database.Message) error
	GetMessages(ctx context.Context, conversationId string) ([]database.Message, error)
}
