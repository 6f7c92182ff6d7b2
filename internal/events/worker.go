package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/gramlink/unfurler/internal/unfurl"
)

// DefaultWorkers is the event worker pool size.
const DefaultWorkers = 4

// Processor handles one event end to end.
type Processor interface {
	Process(ctx context.Context, event unfurl.InboundEvent) unfurl.Outcome
}

// Pool consumes the queue with a fixed set of workers.
type Pool struct {
	queue     Queue
	processor Processor
	workers   int
	logger    *zap.Logger
}

// NewPool builds a worker pool. A non-positive worker count falls back
// to the default.
func NewPool(queue Queue, processor Processor, workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{queue: queue, processor: processor, workers: workers, logger: logger}
}

// Run blocks until the context is canceled and every worker has
// drained out.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) work(ctx context.Context, id int) {
	logger := p.logger.With(zap.Int("worker", id))
	for {
		event, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			// Queue closed during shutdown.
			logger.Debug("worker stopping", zap.Error(err))
			return
		}

		outcome := p.processor.Process(ctx, event)
		fields := []zap.Field{
			zap.String("conversation_ref", event.ConversationRef),
			zap.String("message_ref", event.MessageRef),
			zap.String("status", string(outcome.Status)),
			zap.Int("unfurled", outcome.Unfurled),
			zap.Int("skipped", outcome.Skipped),
		}
		if outcome.Status == unfurl.OutcomeFailed {
			logger.Warn("event processing failed", append(fields, zap.String("error", outcome.ErrText))...)
			continue
		}
		logger.Info("event processed", fields...)
	}
}
