package anthropic

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MessageResponse), args.Error(1)
}

func (m *MockClient) CreateBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BatchResponse), args.Error(1)
}

func (m *MockClient) GetBatch(ctx context.Context, batchID string) (*BatchResponse, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BatchResponse), args.Error(1)
}

func (m *MockClient) GetBatchResults(ctx context.Context, batchID string) (BatchResultIterator, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(BatchResultIterator), args.Error(1)
}

func (m *MockClient) CancelBatch(ctx context.Context, batchID string) (*BatchResponse, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BatchResponse), args.Error(1)
}

// sliceIterator yields a fixed set of items, then err.
type sliceIterator struct {
	items  []BatchResultItem
	idx    int
	err    error
	closed bool
}

func newSliceIterator(items []BatchResultItem, err error) *sliceIterator {
	return &sliceIterator{items: items, idx: -1, err: err}
}

func (s *sliceIterator) Next() bool {
	if s.idx+1 < len(s.items) {
		s.idx++
		return true
	}
	return false
}

func (s *sliceIterator) Item() BatchResultItem { return s.items[s.idx] }

func (s *sliceIterator) Err() error {
	if s.idx+1 >= len(s.items) {
		return s.err
	}
	return nil
}

func (s *sliceIterator) Close() error {
	s.closed = true
	return nil
}
