package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/storelens/storelens/models"
)

func TestMemQueue_FIFO(t *testing.T) {
	q := NewMemQueue(4)
	ctx := context.Background()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		if err := q.Enqueue(ctx, models.Job{SessionID: id}); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := q.Len(ctx); n != 3 {
		t.Errorf("len = %d, want 3", n)
	}
	for _, want := range ids {
		job, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if job.SessionID != want {
			t.Errorf("dequeued %s, want %s", job.SessionID, want)
		}
	}
}

func TestMemQueue_DequeueRespectsContext(t *testing.T) {
	q := NewMemQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestMemQueue_CloseDrainsThenErrors(t *testing.T) {
	q := NewMemQueue(2)
	ctx := context.Background()

	pending := uuid.New()
	if err := q.Enqueue(ctx, models.Job{SessionID: pending}); err != nil {
		t.Fatal(err)
	}
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}

	// Jobs already buffered drain first.
	job, err := q.Dequeue(ctx)
	if err != nil || job.SessionID != pending {
		t.Fatalf("drain failed: %v %v", job, err)
	}
	if _, err := q.Dequeue(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
	if err := q.Enqueue(ctx, models.Job{}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("enqueue after close must fail, got %v", err)
	}
	// Double close is a no-op.
	if err := q.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
