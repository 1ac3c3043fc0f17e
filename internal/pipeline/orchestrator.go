package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Task is one long-running member of the pipeline. Run must honor context
// cancellation and return once its work is finished or the context ends.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Orchestrator supervises the pipeline goroutines: the feed ingest loop, the
// opportunity tracker, the daily reporter, retention, and the venue session
// keep-alives. Which tasks run depends on the mode; the app assembles the
// set. The first task failure cancels the rest.
type Orchestrator struct {
	tasks  []Task
	logger *slog.Logger
}

// NewOrchestrator creates an Orchestrator over the given tasks.
func NewOrchestrator(logger *slog.Logger, tasks ...Task) *Orchestrator {
	return &Orchestrator{
		tasks:  tasks,
		logger: logger.With(slog.String("component", "pipeline")),
	}
}

// Run starts every task in its own goroutine and blocks until all have
// returned. Context cancellation is a clean shutdown; any other task error
// stops the group and is returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	if len(o.tasks) == 0 {
		return fmt.Errorf("pipeline: no tasks configured")
	}

	names := make([]string, len(o.tasks))
	for i, t := range o.tasks {
		names[i] = t.Name
	}
	o.logger.InfoContext(ctx, "pipeline starting", slog.String("tasks", strings.Join(names, ", ")))

	g, ctx := errgroup.WithContext(ctx)
	for _, t := range o.tasks {
		g.Go(func() error {
			o.logger.InfoContext(ctx, "task starting", slog.String("task", t.Name))
			err := t.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			if err != nil {
				return fmt.Errorf("pipeline: task %s: %w", t.Name, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline stopped cleanly")
	return nil
}
