package worker

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/storelens/storelens/metrics"
	"github.com/storelens/storelens/models"
	"github.com/storelens/storelens/session"
)

// Pool consumes jobs and runs sessions with bounded concurrency. The
// bound limits distinct domains crawled in parallel; same-domain
// serialization is the lock coordinator's job, not the pool's.
type Pool struct {
	queue        Queue
	orchestrator *session.Orchestrator
	concurrency  int
}

// NewPool creates a Pool with the given global concurrency limit.
func NewPool(queue Queue, orch *session.Orchestrator, concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{queue: queue, orchestrator: orch, concurrency: concurrency}
}

// Run consumes jobs until the context is canceled or the queue closes.
// Job failures are logged and absorbed; only the context ends the pool.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	slog.Info("worker.pool_start", "concurrency", p.concurrency)
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrQueueClosed) {
				break
			}
			slog.Error("worker.dequeue_failed", "error", err.Error())
			continue
		}
		if n, lerr := p.queue.Len(ctx); lerr == nil {
			metrics.QueueDepth.Set(float64(n))
		}

		g.Go(func() error {
			p.runJob(ctx, job)
			return nil
		})
	}

	err := g.Wait()
	slog.Info("worker.pool_stop")
	return err
}

func (p *Pool) runJob(ctx context.Context, job models.Job) {
	slog.Info("worker.job_start", "session_id", job.SessionID.String(), "url", job.URL)
	sess, err := p.orchestrator.Run(ctx, job)
	switch {
	case err != nil:
		slog.Error("worker.job_error", "session_id", job.SessionID.String(), "error", err.Error())
	case sess != nil:
		slog.Info("worker.job_done",
			"session_id", job.SessionID.String(), "status", sess.Status)
	}
}
