// Package worker consumes audit jobs from a queue and runs them
// through the session orchestrator under a global concurrency bound.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storelens/storelens/models"
)

// dequeueBlock is the BRPOP block interval; short enough that shutdown
// is responsive without polling hot.
const dequeueBlock = 2 * time.Second

// ErrQueueClosed is returned by Dequeue after Close.
var ErrQueueClosed = errors.New("queue closed")

// Queue is the job transport between intake and workers.
type Queue interface {
	// Enqueue pushes a job.
	Enqueue(ctx context.Context, job models.Job) error
	// Dequeue blocks until a job is available, the context is done, or
	// the queue is closed.
	Dequeue(ctx context.Context) (models.Job, error)
	// Len reports the number of pending jobs.
	Len(ctx context.Context) (int, error)
	Close() error
}

// RedisQueue is a redis-list queue (LPUSH producer, BRPOP consumer).
// Multiple worker processes may consume the same list.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a queue on the given list key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job models.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("queue: lpush: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (models.Job, error) {
	for {
		res, err := q.client.BRPop(ctx, dequeueBlock, q.key).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return models.Job{}, ctx.Err()
			}
			continue
		}
		if err != nil {
			return models.Job{}, fmt.Errorf("queue: brpop: %w", err)
		}
		// res[0] is the key, res[1] the payload.
		var job models.Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return models.Job{}, fmt.Errorf("queue: unmarshal job: %w", err)
		}
		return job, nil
	}
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	return int(n), err
}

func (q *RedisQueue) Close() error {
	return nil
}

// MemQueue is an in-process queue for tests and single-node runs
// without redis.
type MemQueue struct {
	mu     sync.Mutex
	jobs   chan models.Job
	closed bool
}

// NewMemQueue creates a queue with the given buffer capacity.
func NewMemQueue(capacity int) *MemQueue {
	return &MemQueue{jobs: make(chan models.Job, capacity)}
}

func (q *MemQueue) Enqueue(ctx context.Context, job models.Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.mu.Unlock()
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemQueue) Dequeue(ctx context.Context) (models.Job, error) {
	select {
	case job, ok := <-q.jobs:
		if !ok {
			return models.Job{}, ErrQueueClosed
		}
		return job, nil
	case <-ctx.Done():
		return models.Job{}, ctx.Err()
	}
}

func (q *MemQueue) Len(ctx context.Context) (int, error) {
	return len(q.jobs), nil
}

func (q *MemQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	return nil
}
