package anthropic

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Batch processing states reported by the API.
const (
	BatchInProgress = "in_progress"
	BatchCanceling  = "canceling"
	BatchEnded      = "ended"
)

// Result types for individual batch items.
const (
	ResultSucceeded = "succeeded"
	ResultErrored   = "errored"
	ResultCanceled  = "canceled"
	ResultExpired   = "expired"
)

// BatchFailure records a single failed batch item.
type BatchFailure struct {
	CustomID string
	Type     string // "errored", "canceled", "expired"
}

// BatchCollectResult holds both succeeded and failed items from a batch.
type BatchCollectResult struct {
	Succeeded map[string]*MessageResponse
	Failures  []BatchFailure
}

// CollectBatchResults drains a BatchResultIterator and returns both
// succeeded results keyed by custom_id and a list of failed items.
func CollectBatchResults(iter BatchResultIterator) (*BatchCollectResult, error) {
	defer iter.Close() //nolint:errcheck

	result := &BatchCollectResult{
		Succeeded: make(map[string]*MessageResponse),
	}
	for iter.Next() {
		item := iter.Item()
		if item.Type == ResultSucceeded && item.Message != nil {
			result.Succeeded[item.CustomID] = item.Message
			continue
		}
		result.Failures = append(result.Failures, BatchFailure{
			CustomID: item.CustomID,
			Type:     item.Type,
		})
		zap.L().Warn("anthropic: batch item failed",
			zap.String("custom_id", item.CustomID),
			zap.String("type", item.Type),
		)
	}
	if err := iter.Err(); err != nil {
		return nil, eris.Wrap(err, "anthropic: collect batch results")
	}

	return result, nil
}

// SingleResult fetches the results of an ended batch and returns the item
// with the given custom ID. A missing item is reported as an errored failure.
func SingleResult(ctx context.Context, client Client, batchID, customID string) (*MessageResponse, *BatchFailure, error) {
	iter, err := client.GetBatchResults(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}

	collected, err := CollectBatchResults(iter)
	if err != nil {
		return nil, nil, eris.Wrap(err, fmt.Sprintf("anthropic: results for batch %s", batchID))
	}

	if msg, ok := collected.Succeeded[customID]; ok {
		return msg, nil, nil
	}
	for _, f := range collected.Failures {
		if f.CustomID == customID {
			return nil, &f, nil
		}
	}
	return nil, &BatchFailure{CustomID: customID, Type: ResultErrored}, nil
}
