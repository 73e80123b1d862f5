package jobs

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/research-brief/pkg/anthropic"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func (m *mockClient) CreateBatch(ctx context.Context, req anthropic.BatchRequest) (*anthropic.BatchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.BatchResponse), args.Error(1)
}

func (m *mockClient) GetBatch(ctx context.Context, batchID string) (*anthropic.BatchResponse, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.BatchResponse), args.Error(1)
}

func (m *mockClient) GetBatchResults(ctx context.Context, batchID string) (anthropic.BatchResultIterator, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(anthropic.BatchResultIterator), args.Error(1)
}

func (m *mockClient) CancelBatch(ctx context.Context, batchID string) (*anthropic.BatchResponse, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.BatchResponse), args.Error(1)
}

type sliceIterator struct {
	items []anthropic.BatchResultItem
	idx   int
}

func newIterator(items ...anthropic.BatchResultItem) *sliceIterator {
	return &sliceIterator{items: items, idx: -1}
}

func (s *sliceIterator) Next() bool {
	if s.idx+1 < len(s.items) {
		s.idx++
		return true
	}
	return false
}

func (s *sliceIterator) Item() anthropic.BatchResultItem { return s.items[s.idx] }
func (s *sliceIterator) Err() error                      { return nil }
func (s *sliceIterator) Close() error                    { return nil }
