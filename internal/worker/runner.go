package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Photoroom/dataroom/internal/metrics"
)

// Task is one periodic maintenance job. Run reports how many items it
// processed.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

// Runner drives tasks on their intervals until the context ends. Each task
// gets its own goroutine; a slow run delays only its own next tick.
type Runner struct {
	tasks  []Task
	logger *zap.Logger
}

// NewRunner creates a task runner.
func NewRunner(logger *zap.Logger, tasks ...Task) *Runner {
	return &Runner{tasks: tasks, logger: logger}
}

// Start runs every task immediately and then on its interval. It blocks
// until the context is canceled and every in-flight run has returned.
func (r *Runner) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, task := range r.tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			r.loop(ctx, task)
		}(task)
	}
	wg.Wait()
}

func (r *Runner) loop(ctx context.Context, task Task) {
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	r.runOnce(ctx, task)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx, task)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, task Task) {
	runID := uuid.NewString()
	start := time.Now()

	processed, err := task.Run(ctx)
	if err != nil {
		metrics.WorkerTasksTotal.WithLabelValues(task.Name, "error").Inc()
		r.logger.Error("task failed",
			zap.String("task", task.Name),
			zap.String("run_id", runID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return
	}

	metrics.WorkerTasksTotal.WithLabelValues(task.Name, "ok").Inc()
	metrics.WorkerImagesProcessedTotal.WithLabelValues(task.Name).Add(float64(processed))
	r.logger.Info("task completed",
		zap.String("task", task.Name),
		zap.String("run_id", runID),
		zap.Int("processed", processed),
		zap.Duration("duration", time.Since(start)),
	)
}
