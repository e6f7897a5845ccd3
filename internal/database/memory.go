package database

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRelayRepository keeps everything in process memory. It is used for
// local runs and tests and loses its contents on restart.
type MemoryRelayRepository struct {
	mu            sync.RWMutex
	identities    map[string]Identity
	conversations map[[2]string]string
	messages      map[string][]Message
	messageIds    map[string]struct{}
}

func NewMemoryRelayRepository() *MemoryRelayRepository {
	return &MemoryRelayRepository{
		identities:    make(map[string]Identity),
		conversations: make(map[[2]string]string),
		messages:      make(map[string][]Message),
		messageIds:    make(map[string]struct{}),
	}
}

func (m *MemoryRelayRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryRelayRepository) Close() error {
	return nil
}

func (m *MemoryRelayRepository) CreateIdentity(ctx context.Context, params CreateIdentityParams) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.identities[params.Handle]; ok {
		return Identity{}, ErrConflict
	}

	if params.Email != "" {
		for _, i := range m.identities {
			if i.Email == params.Email {
				return Identity{}, ErrConflict
			}
		}
	}

	now := time.Now().UTC()
	i := Identity{
		Handle:       params.Handle,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		Status:       StatusDisconnected,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.identities[i.Handle] = i

	return i, nil
}

func (m *MemoryRelayRepository) GetIdentity(ctx context.Context, handle string) (Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.identities[handle]
	if !ok {
		return Identity{}, ErrNotFound
	}

	return i, nil
}

func (m *MemoryRelayRepository) UpsertPresence(ctx context.Context, handle string, status Status) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	i, ok := m.identities[handle]
	if !ok {
		i = Identity{Handle: handle, CreatedAt: now}
	}
	i.Status = status
	i.UpdatedAt = now
	m.identities[handle] = i

	return i, nil
}

func (m *MemoryRelayRepository) UpdatePresence(ctx context.Context, handle string, status Status) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.identities[handle]
	if !ok {
		return Identity{}, ErrNotFound
	}
	i.Status = status
	i.UpdatedAt = time.Now().UTC()
	m.identities[handle] = i

	return i, nil
}

func (m *MemoryRelayRepository) ListIdentitiesByStatus(ctx context.Context, status Status) ([]Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	identities := make([]Identity, 0)
	for _, i := range m.identities {
		if i.Status == status {
			identities = append(identities, i)
		}
	}

	sort.Slice(identities, func(a, b int) bool {
		return identities[a].Handle < identities[b].Handle
	})

	return identities, nil
}

func (m *MemoryRelayRepository) ResetPresence(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	now := time.Now().UTC()
	for handle, i := range m.identities {
		if i.Status == StatusConnected {
			i.Status = StatusDisconnected
			i.UpdatedAt = now
			m.identities[handle] = i
			n++
		}
	}

	return n, nil
}

func (m *MemoryRelayRepository) GetConversationId(ctx context.Context, senderId, recipientId string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.conversations[[2]string{senderId, recipientId}]
	if !ok {
		return "", ErrNotFound
	}

	return id, nil
}

func (m *MemoryRelayRepository) CreateConversation(ctx context.Context, senderId, recipientId, conversationId string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	low, high := orderedPair(senderId, recipientId)
	if id, ok := m.conversations[[2]string{low, high}]; ok {
		return id, nil
	}

	m.conversations[[2]string{senderId, recipientId}] = conversationId
	m.conversations[[2]string{recipientId, senderId}] = conversationId

	return conversationId, nil
}

func (m *MemoryRelayRepository) CreateMessage(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.messageIds[msg.Id]; ok {
		return ErrConflict
	}

	m.messageIds[msg.Id] = struct{}{}
	m.messages[msg.ConversationId] = append(m.messages[msg.ConversationId], msg)

	return nil
}

func (m *MemoryRelayRepository) GetMessages(ctx context.Context, conversationId string) ([]Message, error) {
	m.mu.RLock()
	stored := m.messages[conversationId]
	messages := make([]Message, len(stored))
	copy(messages, stored)
	m.mu.RUnlock()

	sort.SliceStable(messages, func(a, b int) bool {
		if messages[a].SentAt.Equal(messages[b].SentAt) {
			return messages[a].Id < messages[b].Id
		}
		return messages[a].SentAt.Before(messages[b].SentAt)
	})

	return messages, nil
}
