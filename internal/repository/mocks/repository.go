// Package mocks provides a testify mock of the repository for service tests.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"pickwise/client/internal/model"
)

type MockRepository struct {
	mock.Mock
}

func NewMockRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRepository {
	m := &MockRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockRepository) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	args := m.Called(ctx, conv)
	return args.Error(0)
}

func (m *MockRepository) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	args := m.Called(ctx, conversationID)
	if conv, ok := args.Get(0).(*model.Conversation); ok {
		return conv, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error) {
	args := m.Called(ctx, userID)
	if convs, ok := args.Get(0).([]*model.Conversation); ok {
		return convs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) DeleteConversation(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

func (m *MockRepository) AddMessage(ctx context.Context, conversationID string, message *model.Message) error {
	args := m.Called(ctx, conversationID, message)
	return args.Error(0)
}

func (m *MockRepository) GetMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	args := m.Called(ctx, conversationID)
	if msgs, ok := args.Get(0).([]model.Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) CountUserMessagesSince(ctx context.Context, userID string, since time.Time) (int, error) {
	args := m.Called(ctx, userID, since)
	return args.Int(0), args.Error(1)
}
