package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/research-brief/pkg/anthropic"
	"github.com/sells-group/research-brief/pkg/keywords"
	"github.com/sells-group/research-brief/pkg/perplexity"
)

// --- Anthropic Mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func (m *mockAnthropicClient) CreateBatch(ctx context.Context, req anthropic.BatchRequest) (*anthropic.BatchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.BatchResponse), args.Error(1)
}

func (m *mockAnthropicClient) GetBatch(ctx context.Context, batchID string) (*anthropic.BatchResponse, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.BatchResponse), args.Error(1)
}

func (m *mockAnthropicClient) GetBatchResults(ctx context.Context, batchID string) (anthropic.BatchResultIterator, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(anthropic.BatchResultIterator), args.Error(1)
}

func (m *mockAnthropicClient) CancelBatch(ctx context.Context, batchID string) (*anthropic.BatchResponse, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.BatchResponse), args.Error(1)
}

// --- Perplexity Mock ---

type mockPerplexityClient struct {
	mock.Mock
}

func (m *mockPerplexityClient) ChatCompletion(ctx context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*perplexity.ChatCompletionResponse), args.Error(1)
}

// --- Keywords Mock ---

type mockKeywordsClient struct {
	mock.Mock
}

func (m *mockKeywordsClient) Ideas(ctx context.Context, seeds []string) ([]keywords.Keyword, error) {
	args := m.Called(ctx, seeds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]keywords.Keyword), args.Error(1)
}

// --- Batch result iterator ---

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
