package dispatch

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"sessions-portal/core/failure"
)

type scriptedRunner struct {
	mu    sync.Mutex
	errs  []error // returned in order; nil afterwards
	calls []Job
	done  chan struct{}
	want  int
}

func (r *scriptedRunner) Execute(ctx context.Context, assetID uint, link string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Job{AssetID: assetID, Link: link})
	var err error
	if len(r.errs) > 0 {
		err, r.errs = r.errs[0], r.errs[1:]
	}
	if len(r.calls) == r.want {
		close(r.done)
	}
	return err
}

type countingResubmitter struct {
	mu    sync.Mutex
	calls int
}

func (c *countingResubmitter) Resubmit(ctx context.Context, id uint) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return true, nil
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Step: time.Millisecond, Max: 2 * time.Millisecond}
}

func waitDone(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for runner")
	}
}

func TestRetryDelaySchedule(t *testing.T) {
	p := DefaultRetryPolicy
	want := []time.Duration{0, 200 * time.Millisecond, 400 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond}
	for n, w := range want {
		if got := p.Delay(n); got != w {
			t.Fatalf("Delay(%d): want=%s got=%s", n, w, got)
		}
	}
}

func TestDispatcherRetriesTransportOnly(t *testing.T) {
	transport := failure.New(failure.Transport, "drive.fetch", io.ErrUnexpectedEOF)
	runner := &scriptedRunner{errs: []error{transport, transport}, done: make(chan struct{}), want: 3}
	assets := &countingResubmitter{}
	d := New(NewMemoryQueue(10), runner, assets, Options{Workers: 2, Retry: fastPolicy()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	if err := d.Submit(ctx, 7, "link"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitDone(t, runner.done)
	d.Stop()

	if len(runner.calls) != 3 || assets.calls != 2 {
		t.Fatalf("calls=%d resubmits=%d", len(runner.calls), assets.calls)
	}
}

func TestDispatcherGivesUpAfterMaxRetries(t *testing.T) {
	transport := failure.New(failure.Transport, "drive.fetch", io.ErrUnexpectedEOF)
	runner := &scriptedRunner{errs: []error{transport, transport, transport, transport, transport}, done: make(chan struct{}), want: 4}
	assets := &countingResubmitter{}
	d := New(NewMemoryQueue(10), runner, assets, Options{Workers: 1, Retry: fastPolicy()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	d.Submit(ctx, 1, "link")
	waitDone(t, runner.done)
	time.Sleep(20 * time.Millisecond)
	d.Stop()

	if len(runner.calls) != 4 || assets.calls != 3 {
		t.Fatalf("want 1 run + 3 retries, got calls=%d resubmits=%d", len(runner.calls), assets.calls)
	}
}

func TestDispatcherDoesNotRetryOtherKinds(t *testing.T) {
	for _, kind := range []failure.Kind{failure.Resolution, failure.Validation, failure.Missing, failure.Conflict} {
		runner := &scriptedRunner{errs: []error{failure.New(kind, "op", errors.New("boom"))}, done: make(chan struct{}), want: 1}
		assets := &countingResubmitter{}
		d := New(NewMemoryQueue(10), runner, assets, Options{Workers: 1, Retry: fastPolicy()})

		ctx, cancel := context.WithCancel(context.Background())
		d.Start(ctx)
		d.Submit(ctx, 2, "link")
		waitDone(t, runner.done)
		d.Stop()
		cancel()

		if len(runner.calls) != 1 || assets.calls != 0 {
			t.Fatalf("%s: calls=%d resubmits=%d", kind, len(runner.calls), assets.calls)
		}
	}
}

func TestMemoryQueueFullAndClosed(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(1)
	if err := q.Enqueue(ctx, Job{AssetID: 1}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, Job{AssetID: 2}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("want ErrQueueFull, got %v", err)
	}
	q.Close()
	if err := q.Enqueue(ctx, Job{AssetID: 3}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("want ErrQueueClosed, got %v", err)
	}
	// buffered jobs drain after close
	if job, err := q.Dequeue(ctx); err != nil || job.AssetID != 1 {
		t.Fatalf("drain: job=%+v err=%v", job, err)
	}
	if _, err := q.Dequeue(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("want ErrQueueClosed after drain, got %v", err)
	}
}

// Runs against a real server when REDIS_TEST_ADDR is set.
func TestRedisQueueRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	key := "sessions:test:queue:" + time.Now().Format("150405.000000")
	defer client.Del(ctx, key)

	q := NewRedisQueue(client, key)
	if err := q.Enqueue(ctx, Job{AssetID: 11, Link: "a", Attempt: 2}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if n, _ := q.Len(ctx); n != 1 {
		t.Fatalf("Len: want=1 got=%d", n)
	}
	job, err := q.Dequeue(ctx)
	if err != nil || job.AssetID != 11 || job.Attempt != 2 {
		t.Fatalf("Dequeue: job=%+v err=%v", job, err)
	}
}
