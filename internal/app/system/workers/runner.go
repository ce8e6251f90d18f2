// internal/app/system/workers/runner.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/bourses/internal/app/system/tasks"
	"go.uber.org/zap"
)

// Runner runs periodic jobs in the background, one goroutine per job.
type Runner struct {
	jobs    []tasks.Job
	log     *zap.Logger
	timeout time.Duration
	stopCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewRunner creates a runner for jobs. Each run gets its own context
// bounded by timeout.
func NewRunner(logger *zap.Logger, timeout time.Duration, jobs ...tasks.Job) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Runner{
		jobs:    jobs,
		log:     logger,
		timeout: timeout,
		stopCh:  make(chan struct{}),
	}
}

// Start begins one loop per job.
func (w *Runner) Start() {
	for _, job := range w.jobs {
		w.wg.Add(1)
		go w.run(job)
		w.log.Info("background job started",
			zap.String("job", job.Name),
			zap.Duration("interval", job.Interval))
	}
}

// Stop signals every loop to stop and waits for running jobs to finish.
// It is safe to call more than once.
func (w *Runner) Stop() {
	w.once.Do(func() {
		close(w.stopCh)
		w.wg.Wait()
		w.log.Info("background jobs stopped")
	})
}

func (w *Runner) run(job tasks.Job) {
	defer w.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.runOnce(job)
		}
	}
}

func (w *Runner) runOnce(job tasks.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := job.Run(ctx); err != nil {
		w.log.Error("background job failed", zap.String("job", job.Name), zap.Error(err))
	}
}
