package database

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRelayRepository_CreateIdentity(t *testing.T) {
	repo := NewMemoryRelayRepository()
	ctx := context.Background()

	i, err := repo.CreateIdentity(ctx, CreateIdentityParams{
		Handle:       "alice",
		FirstName:    "Alice",
		LastName:     "Smith",
		Email:        "alice@example.com",
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", i.Handle)
	assert.Equal(t, StatusDisconnected, i.Status)

	tcases := []struct {
		name   string
		params CreateIdentityParams
	}{
		{
			name:   "duplicate handle",
			params: CreateIdentityParams{Handle: "alice", Email: "other@example.com"},
		},
		{
			name:   "duplicate email",
			params: CreateIdentityParams{Handle: "bob", Email: "alice@example.com"},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := repo.CreateIdentity(ctx, tc.params)
			assert.ErrorIs(t, err, ErrConflict)
		})
	}
}

func TestMemoryRelayRepository_Presence(t *testing.T) {
	repo := NewMemoryRelayRepository()
	ctx := context.Background()

	_, err := repo.UpdatePresence(ctx, "ghost", StatusDisconnected)
	assert.ErrorIs(t, err, ErrNotFound)

	i, err := repo.UpsertPresence(ctx, "carol", StatusConnected)
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, i.Status)

	_, err = repo.UpsertPresence(ctx, "bob", StatusConnected)
	require.NoError(t, err)

	connected, err := repo.ListIdentitiesByStatus(ctx, StatusConnected)
	require.NoError(t, err)
	require.Len(t, connected, 2)
	assert.Equal(t, "bob", connected[0].Handle)
	assert.Equal(t, "carol", connected[1].Handle)

	i, err = repo.UpdatePresence(ctx, "bob", StatusDisconnected)
	require.NoError(t, err)
	assert.Equal(t, StatusDisconnected, i.Status)

	n, err := repo.ResetPresence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	connected, err = repo.ListIdentitiesByStatus(ctx, StatusConnected)
	require.NoError(t, err)
	assert.Empty(t, connected)
}

func TestMemoryRelayRepository_CreateConversation(t *testing.T) {
	repo := NewMemoryRelayRepository()
	ctx := context.Background()

	_, err := repo.GetConversationId(ctx, "alice", "bob")
	assert.ErrorIs(t, err, ErrNotFound)

	id, err := repo.CreateConversation(ctx, "alice", "bob", "alice:bob")
	require.NoError(t, err)
	assert.Equal(t, "alice:bob", id)

	id, err = repo.CreateConversation(ctx, "bob", "alice", "bob:alice")
	require.NoError(t, err)
	assert.Equal(t, "alice:bob", id, "expected the first conversation to win")

	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		got, err := repo.GetConversationId(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.Equal(t, "alice:bob", got)
	}
}

func TestMemoryRelayRepository_CreateConversationConcurrent(t *testing.T) {
	repo := NewMemoryRelayRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]string, 20)
	for n := range results {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s, r := "alice", "bob"
			if n%2 == 1 {
				s, r = r, s
			}
			id, err := repo.CreateConversation(ctx, s, r, fmt.Sprintf("%s:%s#%d", s, r, n))
			assert.NoError(t, err)
			results[n] = id
		}(n)
	}
	wg.Wait()

	for _, id := range results {
		assert.Equal(t, results[0], id)
	}
}

func TestMemoryRelayRepository_Messages(t *testing.T) {
	repo := NewMemoryRelayRepository()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	msgs := []Message{
		{Id: "3", ConversationId: "c", SentAt: base.Add(time.Second)},
		{Id: "2", ConversationId: "c", SentAt: base},
		{Id: "1", ConversationId: "c", SentAt: base},
		{Id: "4", ConversationId: "other", SentAt: base},
	}
	for _, msg := range msgs {
		require.NoError(t, repo.CreateMessage(ctx, msg))
	}

	assert.ErrorIs(t, repo.CreateMessage(ctx, msgs[0]), ErrConflict)

	got, err := repo.GetMessages(ctx, "c")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0].Id)
	assert.Equal(t, "2", got[1].Id)
	assert.Equal(t, "3", got[2].Id)

	got, err = repo.GetMessages(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
