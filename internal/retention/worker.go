// Package retention enforces per-project event retention policies with a
// periodic sweep.
package retention

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/repository"
)

const (
	// DefaultInterval between sweeps.
	DefaultInterval = 5 * time.Minute

	// deleteBatch bounds each delete transaction.
	deleteBatch = 10000
)

// Worker sweeps projects and deletes events beyond their caps.
type Worker struct {
	projects repository.ProjectRepository
	events   repository.EventRepository
	interval time.Duration
	log      *zap.Logger
}

// New constructs a retention worker.
func New(projects repository.ProjectRepository, events repository.EventRepository, interval time.Duration, log *zap.Logger) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Worker{projects: projects, events: events, interval: interval, log: log}
}

// Run sweeps on a ticker until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
				w.log.Warn("retention sweep", zap.Error(err))
			}
		}
	}
}

// Sweep applies every project's retention policy once.
func (w *Worker) Sweep(ctx context.Context) error {
	projects, err := w.projects.List(ctx)
	if err != nil {
		return err
	}
	for i := range projects {
		p := &projects[i]
		if p.Retention == nil {
			continue
		}
		if err := w.sweepProject(ctx, p); err != nil {
			if ctx.Err() != nil {
				return err
			}
			w.log.Warn("sweep project",
				zap.String("project", p.ID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// sweepProject enforces the effective rule per level. A per-level rule
// overrides the project-wide rule; the project-wide rule covers only levels
// without their own entry.
func (w *Worker) sweepProject(ctx context.Context, p *model.Project) error {
	for _, level := range model.Levels() {
		rule := p.Retention.RuleFor(level)
		if rule == nil {
			continue
		}
		lvl := level
		if err := w.enforce(ctx, p, &lvl, rule); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) enforce(ctx context.Context, p *model.Project, level *model.Level, rule *model.RetentionRule) error {
	if rule.MaxAgeDays != nil {
		cutoff := time.Now().AddDate(0, 0, -*rule.MaxAgeDays)
		for {
			n, err := w.events.DeleteOlderThan(ctx, p.ID, level, cutoff, deleteBatch)
			if err != nil {
				return err
			}
			if n < deleteBatch {
				break
			}
		}
	}
	if rule.MaxCount != nil {
		for {
			n, err := w.events.DeleteOverCount(ctx, p.ID, level, *rule.MaxCount, deleteBatch)
			if err != nil {
				return err
			}
			if n < deleteBatch {
				break
			}
		}
	}
	return nil
}
