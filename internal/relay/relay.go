package relay

import (
	"context"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/npezzotti/go-dmrelay/internal/database"
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,20}$`)

// ValidHandle reports whether s can be used as an identity handle.
func ValidHandle(s string) bool {
	return handlePattern.MatchString(s)
}

// MessageRelay persists messages under their conversation and hands them
// back for delivery to the recipient.
type MessageRelay struct {
	identities    IdentityStore
	conversations *ConversationIdentity
	messages      MessageStore
	maxLength     int
	newId         func() (uuid.UUID, error)
}

func NewMessageRelay(identities IdentityStore, conversations *ConversationIdentity, messages MessageStore, maxLength int) *MessageRelay {
	return &MessageRelay{
		identities:    identities,
		conversations: conversations,
		messages:      messages,
		maxLength:     maxLength,
		newId:         uuid.NewV7,
	}
}

// MaxLength is the largest accepted content length, in characters.
func (r *MessageRelay) MaxLength() int {
	return r.maxLength
}

func (r *MessageRelay) validate(senderId, recipientId, content string) error {
	switch {
	case !ValidHandle(senderId):
		return invalid("sender_id", "must be a valid handle")
	case !ValidHandle(recipientId):
		return invalid("recipient_id", "must be a valid handle")
	case senderId == recipientId:
		return invalid("recipient_id", "must differ from sender_id")
	case content == "":
		return invalid("content", "is required")
	case utf8.RuneCountInString(content) > r.maxLength:
		return invalid("content", fmt.Sprintf("must be at most %d characters", r.maxLength))
	}

	return nil
}

// Send stores content as a message from senderId to recipientId, creating the
// conversation on first contact. The returned message's RecipientId is the
// delivery target.
func (r *MessageRelay) Send(ctx context.Context, senderId, recipientId, content string, sentAt time.Time) (database.Message, error) {
	if err := r.validate(senderId, recipientId, content); err != nil {
		return database.Message{}, err
	}

	if _, err := r.identities.GetIdentity(ctx, recipientId); err != nil {
		return database.Message{}, storageErr("get recipient", err)
	}

	conversationId, _, err := r.conversations.Resolve(ctx, senderId, recipientId, true)
	if err != nil {
		return database.Message{}, err
	}

	id, err := r.newId()
	if err != nil {
		return database.Message{}, fmt.Errorf("generate message id: %w", err)
	}

	msg := database.Message{
		Id:             id.String(),
		ConversationId: conversationId,
		SenderId:       senderId,
		RecipientId:    recipientId,
		Content:        content,
		SentAt:         sentAt.UTC(),
	}

	if err := r.messages.CreateMessage(ctx, msg); err != nil {
		return database.Message{}, storageErr("create message", err)
	}

	return msg, nil
}

// History returns the conversation between the two handles ordered by
// sentAt. A pair that has never exchanged messages has an empty history.
func (r *MessageRelay) History(ctx context.Context, senderId, recipientId string) ([]database.Message, error) {
	conversationId, ok, err := r.conversations.Resolve(ctx, senderId, recipientId, false)
	if err != nil {
		return nil, err
	}

	if !ok {
		return []database.Message{}, nil
	}

	messages, err := r.messages.GetMessages(ctx, conversationId)
	if err != nil {
		return nil, storageErr("get messages", err)
	}

	return messages, nil
}
