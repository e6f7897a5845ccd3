package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/npezzotti/go-dmrelay/internal/database"
	"golang.org/x/sync/singleflight"
)

const conversationSeparator = ":"

// ConversationIdentity derives and lazily creates the id shared by both
// directions of a two-party conversation.
type ConversationIdentity struct {
	store    ConversationStore
	creating singleflight.Group
}

func NewConversationIdentity(store ConversationStore) *ConversationIdentity {
	return &ConversationIdentity{store: store}
}

// ConversationKey is the id proposed for a new conversation, built from the
// handles in call order. Handles cannot contain the separator.
func ConversationKey(partyA, partyB string) string {
	return partyA + conversationSeparator + partyB
}

// unorderedKey identifies the pair regardless of direction.
func unorderedKey(partyA, partyB string) string {
	if partyB < partyA {
		partyA, partyB = partyB, partyA
	}
	return partyA + "\x00" + partyB
}

// Resolve looks up the conversation for the ordered pair. When none exists it
// returns ok=false, or creates one if createIfAbsent is set. Concurrent
// creations for the same pair in this process share one store call, and the
// store itself keeps the first id written for the pair.
func (c *ConversationIdentity) Resolve(ctx context.Context, partyA, partyB string, createIfAbsent bool) (string, bool, error) {
	id, err := c.store.GetConversationId(ctx, partyA, partyB)
	if err == nil {
		return id, true, nil
	}

	if !errors.Is(err, database.ErrNotFound) {
		return "", false, storageErr("get conversation", err)
	}

	if !createIfAbsent {
		return "", false, nil
	}

	v, err, _ := c.creating.Do(unorderedKey(partyA, partyB), func() (any, error) {
		return c.store.CreateConversation(ctx, partyA, partyB, ConversationKey(partyA, partyB))
	})
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrRoomResolution, storageErr("create conversation", err))
	}

	return v.(string), true, nil
}
