package core

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultChunkSize is how many emails are dispatched per provider call.
	DefaultChunkSize = 10
	// DefaultChunkDelay is the pacing interval between chunk dispatches.
	DefaultChunkDelay = 2 * time.Second
)

// ChunkFunc processes one chunk and folds its results into the caller's
// working set. The scheduler only inspects the returned error.
type ChunkFunc func(ctx context.Context, chunk []EmailMessage) error

// RunSummary reports how a batch run went. A fully failed batch simply
// contributes nothing; callers treat missing enrichment as "not yet
// enriched", never as "confirmed empty".
type RunSummary struct {
	Chunks      int
	Succeeded   int
	RateLimited int
	Failed      int
	Cancelled   bool
}

// BatchScheduler splits an arbitrarily large email list into fixed-size
// chunks and dispatches them strictly sequentially with inter-chunk
// pacing. This cooperative admission control trades throughput for
// staying under the provider's request-rate ceiling without knowing its
// exact value.
type BatchScheduler struct {
	chunkSize int
	delay     time.Duration
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewBatchScheduler creates a new scheduler. Non-positive arguments fall
// back to the defaults.
func NewBatchScheduler(chunkSize int, delay time.Duration, logger *zap.Logger) *BatchScheduler {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if delay < 0 {
		delay = DefaultChunkDelay
	}
	return &BatchScheduler{
		chunkSize: chunkSize,
		delay:     delay,
		logger:    logger,
		sleep:     sleepContext,
	}
}

// Run dispatches every chunk in order. A rate-limited chunk is skipped
// without retry; any other chunk failure is logged and the run continues.
// The pacing sleep happens after every chunk except the last and is bound
// to ctx, so cancelling the context aborts the run cleanly with whatever
// has already been merged.
func (s *BatchScheduler) Run(ctx context.Context, emails []EmailMessage, dispatch ChunkFunc) *RunSummary {
	summary := &RunSummary{}
	if len(emails) == 0 {
		return summary
	}

	chunks := chunkEmails(emails, s.chunkSize)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			summary.Cancelled = true
			return summary
		}

		summary.Chunks++
		err := dispatch(ctx, chunk)
		switch {
		case err == nil:
			summary.Succeeded++
		case errors.Is(err, ErrRateLimited):
			summary.RateLimited++
			s.logger.Warn("Chunk rate limited, skipping",
				zap.Int("chunk", i+1),
				zap.Int("size", len(chunk)))
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			summary.Cancelled = true
			return summary
		default:
			summary.Failed++
			s.logger.Error("Chunk failed",
				zap.Int("chunk", i+1),
				zap.Int("size", len(chunk)),
				zap.Error(err))
		}

		// Pace before the next dispatch, but never after the final chunk.
		if i < len(chunks)-1 {
			if err := s.sleep(ctx, s.delay); err != nil {
				summary.Cancelled = true
				return summary
			}
		}
	}

	return summary
}

// chunkEmails splits emails into contiguous chunks of at most size.
func chunkEmails(emails []EmailMessage, size int) [][]EmailMessage {
	chunks := make([][]EmailMessage, 0, (len(emails)+size-1)/size)
	for start := 0; start < len(emails); start += size {
		end := start + size
		if end > len(emails) {
			end = len(emails)
		}
		chunks = append(chunks, emails[start:end])
	}
	return chunks
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
