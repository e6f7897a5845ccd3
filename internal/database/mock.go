package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockRelayRepository struct {
	mock.Mock
}

func (m *MockRelayRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockRelayRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRelayRepository) CreateIdentity(ctx context.Context, params CreateIdentityParams) (Identity, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Identity), args.Error(1)
}
func (m *MockRelayRepository) GetIdentity(ctx context.Context, handle string) (Identity, error) {
	args := m.Called(ctx, handle)
	return args.Get(0).(Identity), args.Error(1)
}
func (m *MockRelayRepository) UpsertPresence(ctx context.Context, handle string, status Status) (Identity, error) {
	args := m.Called(ctx, handle, status)
	return args.Get(0).(Identity), args.Error(1)
}
func (m *MockRelayRepository) UpdatePresence(ctx context.Context, handle string, status Status) (Identity, error) {
	args := m.Called(ctx, handle, status)
	return args.Get(0).(Identity), args.Error(1)
}
func (m *MockRelayRepository) ListIdentitiesByStatus(ctx context.Context, status Status) ([]Identity, error) {
	args := m.Called(ctx, status)
	if identities, ok := args.Get(0).([]Identity); ok {
		return identities, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRelayRepository) ResetPresence(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockRelayRepository) GetConversationId(ctx context.Context, senderId, recipientId string) (string, error) {
	args := m.Called(ctx, senderId, recipientId)
	return args.String(0), args.Error(1)
}
func (m *MockRelayRepository) CreateConversation(ctx context.Context, senderId, recipientId, conversationId string) (string, error) {
	args := m.Called(ctx, senderId, recipientId, conversationId)
	return args.String(0), args.Error(1)
}
func (m *MockRelayRepository) CreateMessage(ctx context.Context, msg Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
func (m *MockRelayRepository) GetMessages(ctx context.Context, conversationId string) ([]Message, error) {
	args := m.Called(ctx, conversationId)
	if messages, ok := args.Get(0).([]Message); ok {
		return messages, args.Error(1)
	}
	return nil, args.Error(1)
}
