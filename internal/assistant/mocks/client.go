// Package mocks provides a testify mock of the assistant client. A test
// scripts the stream by attaching a Run callback that writes events to the
// channel argument and closes it, mirroring the real client's contract.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"pickwise/client/internal/assistant"
	"pickwise/client/internal/stream"
)

type MockClient struct {
	mock.Mock
}

func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockClient) StreamChat(ctx context.Context, req *assistant.ChatRequest, ch chan<- stream.Event) error {
	args := m.Called(ctx, req, ch)
	return args.Error(0)
}
