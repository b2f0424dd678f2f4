package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/logtide/logtide/internal/model"
)

// EventRepository provides persistence and querying for log events.
type EventRepository interface {
	// Insert persists a single event.
	Insert(ctx context.Context, e *model.LogEvent) error
	// InsertBatch persists events in one transaction; all or none.
	InsertBatch(ctx context.Context, events []model.LogEvent) error
	// GetByID loads an event by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.LogEvent, error)
	// List returns events matching the filter, newest accept-time first
	// (ID as tiebreaker), plus the total match count before paging.
	List(ctx context.Context, f model.EventFilter) ([]model.LogEvent, int64, error)
	// Delete removes the given events, returning how many rows went away.
	Delete(ctx context.Context, ids []uuid.UUID) (int64, error)

	// Recent returns the newest events within the given projects. An empty
	// project set means no restriction.
	Recent(ctx context.Context, projectIDs []uuid.UUID, limit int) ([]model.LogEvent, error)
	// CountByLevel aggregates totals per level within the given projects.
	CountByLevel(ctx context.Context, projectIDs []uuid.UUID) (map[model.Level]int64, error)
	// CountSince counts events accepted at or after the cutoff.
	CountSince(ctx context.Context, projectIDs []uuid.UUID, cutoff time.Time) (int64, error)
	// CountByProject aggregates totals per project.
	CountByProject(ctx context.Context, projectIDs []uuid.UUID) ([]model.ProjectCount, error)

	// DeleteOlderThan removes up to batch rows of a project accepted before
	// the cutoff, optionally restricted to one level (nil = all levels).
	// Returns the number of rows deleted.
	DeleteOlderThan(ctx context.Context, projectID uuid.UUID, level *model.Level, cutoff time.Time, batch int) (int64, error)
	// DeleteOverCount removes up to batch of the oldest rows beyond the
	// newest keep rows of a project, optionally restricted to one level.
	// Oldest-first by accept-time, ID ascending as tiebreaker.
	DeleteOverCount(ctx context.Context, projectID uuid.UUID, level *model.Level, keep, batch int) (int64, error)
}
