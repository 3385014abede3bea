// Package dispatch runs ingestion jobs on a fixed worker pool and owns the
// retry policy for transient failures.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"sessions-portal/core/failure"
	"sessions-portal/logger"
)

// Runner executes one ingestion. *ingest.Task satisfies it.
type Runner interface {
	Execute(ctx context.Context, assetID uint, link string) error
}

// Resubmitter moves a finished asset back to PROCESSING before a retry.
type Resubmitter interface {
	Resubmit(ctx context.Context, id uint) (bool, error)
}

// RetryPolicy: delay(n) = min(Start + Step*n, Max), at most MaxRetries retries.
type RetryPolicy struct {
	MaxRetries int
	Start      time.Duration
	Step       time.Duration
	Max        time.Duration
}

// DefaultRetryPolicy 默认重试策略
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, Start: 0, Step: 200 * time.Millisecond, Max: 500 * time.Millisecond}

// Delay returns the wait before retry number n (0-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	d := p.Start + p.Step*time.Duration(n)
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Options configures a Dispatcher.
type Options struct {
	Workers    int
	Retry      RetryPolicy
	JobTimeout time.Duration // 0 = no per-job bound
}

// Dispatcher 任务分发器
type Dispatcher struct {
	queue   Queue
	runner  Runner
	assets  Resubmitter
	opts    Options
	wg      sync.WaitGroup
	startMu sync.Mutex
	started bool
	stop    sync.Once
}

func New(queue Queue, runner Runner, assets Resubmitter, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Dispatcher{queue: queue, runner: runner, assets: assets, opts: opts}
}

// Submit enqueues a first attempt and returns immediately. The asset must already be PROCESSING.
func (d *Dispatcher) Submit(ctx context.Context, assetID uint, link string) error {
	return d.queue.Enqueue(ctx, Job{AssetID: assetID, Link: link})
}

// Start launches the workers. They exit when ctx is done or the queue is closed and drained.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startMu.Lock()
	defer d.startMu.Unlock()
	if d.started {
		return
	}
	d.started = true

	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	logger.Info("dispatcher started", logger.Int("workers", d.opts.Workers))
}

// Run starts the workers and blocks until ctx is done, then stops.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.Start(ctx)
	<-ctx.Done()
	d.Stop()
	return nil
}

// Stop closes intake and waits for the workers.
func (d *Dispatcher) Stop() {
	d.stop.Do(func() {
		_ = d.queue.Close()
		d.wg.Wait()
		logger.Info("dispatcher stopped")
	})
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for {
		job, err := d.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			logger.Error("dequeue failed", logger.Int("worker", id), logger.ErrorField(err))
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}
		d.handle(ctx, job)
	}
}

func (d *Dispatcher) handle(ctx context.Context, job Job) {
	runCtx := ctx
	if d.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.opts.JobTimeout)
		defer cancel()
	}

	err := d.runner.Execute(runCtx, job.AssetID, job.Link)
	if err == nil {
		return
	}
	kind := failure.KindOf(err)
	logger.Warn("ingestion job failed",
		logger.Uint("assetId", job.AssetID),
		logger.Int("attempt", job.Attempt),
		logger.String("kind", kind.String()),
		logger.ErrorField(err))

	if !kind.Retryable() || job.Attempt >= d.opts.Retry.MaxRetries {
		return
	}
	d.retry(ctx, job)
}

func (d *Dispatcher) retry(ctx context.Context, job Job) {
	if !sleep(ctx, d.opts.Retry.Delay(job.Attempt)) {
		return
	}
	ok, err := d.assets.Resubmit(ctx, job.AssetID)
	if err != nil || !ok {
		logger.Warn("retry skipped, asset not resubmittable",
			logger.Uint("assetId", job.AssetID), logger.Bool("resubmitted", ok), logger.ErrorField(err))
		return
	}
	next := Job{AssetID: job.AssetID, Link: job.Link, Attempt: job.Attempt + 1}
	if err := d.queue.Enqueue(ctx, next); err != nil {
		// closed during shutdown: run inline so the asset does not stay PROCESSING
		logger.Warn("re-enqueue failed, retrying inline", logger.Uint("assetId", job.AssetID), logger.ErrorField(err))
		d.handle(ctx, next)
		return
	}
	logger.Info("ingestion job re-enqueued", logger.Uint("assetId", job.AssetID), logger.Int("attempt", next.Attempt))
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
