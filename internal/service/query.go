package service

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/logtide/logtide/internal/authz"
	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/repository"
	"github.com/logtide/logtide/internal/session"
)

const (
	// DefaultQueryLimit applies when a list request names no limit.
	DefaultQueryLimit = 100
	// MaxQueryLimit caps any single page.
	MaxQueryLimit = 1000
	// MaxRecentLimit caps the recent-events shortcut.
	MaxRecentLimit = 500
)

// QueryService answers filtered log reads scoped to the caller's projects.
type QueryService interface {
	// List returns events matching the filter plus the total match count.
	// Requested projects outside the caller's visible set are denied.
	List(ctx context.Context, p session.Principal, f model.EventFilter) ([]model.LogEvent, int64, error)
	// Get loads one event the caller may read. A missing event is
	// ErrNotFound; an existing event in a foreign project is ErrAccessDenied.
	Get(ctx context.Context, p session.Principal, id uuid.UUID) (*model.LogEvent, error)
	// Delete removes events the caller has write access to. Returns how many
	// rows were removed.
	Delete(ctx context.Context, p session.Principal, ids []uuid.UUID) (int64, error)
	// Recent returns the newest visible events.
	Recent(ctx context.Context, p session.Principal, limit int) ([]model.LogEvent, error)
	// Stats aggregates counts over the caller's visible projects.
	Stats(ctx context.Context, p session.Principal) (*model.StatsOverview, error)
	// ProjectStats aggregates counts for one readable project.
	ProjectStats(ctx context.Context, p session.Principal, projectID uuid.UUID) (*model.StatsOverview, error)
}

// QueryServiceImpl implements QueryService.
type QueryServiceImpl struct {
	events repository.EventRepository
	auth   *authz.Authorizer
	now    func() time.Time
}

// NewQueryService constructs QueryService.
func NewQueryService(events repository.EventRepository, auth *authz.Authorizer) *QueryServiceImpl {
	return &QueryServiceImpl{events: events, auth: auth, now: time.Now}
}

// clampLimit normalizes a page size.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// List scopes the filter to readable projects and pages the result.
func (s *QueryServiceImpl) List(ctx context.Context, p session.Principal, f model.EventFilter) ([]model.LogEvent, int64, error) {
	scope, err := s.auth.RequireReadable(ctx, p, f.ProjectIDs)
	if err != nil {
		return nil, 0, err
	}
	if !p.IsAdmin() && len(scope) == 0 {
		// No memberships at all: an empty result, not an unscoped query.
		return []model.LogEvent{}, 0, nil
	}
	f.ProjectIDs = scope
	f.Limit = clampLimit(f.Limit, DefaultQueryLimit, MaxQueryLimit)
	if f.Offset < 0 {
		f.Offset = 0
	}
	for _, lvl := range f.Levels {
		if !lvl.Valid() {
			return nil, 0, errs.ErrInvalid
		}
	}
	return s.events.List(ctx, f)
}

// Get distinguishes a missing event from a forbidden one: existence is
// resolved first, membership second.
func (s *QueryServiceImpl) Get(ctx context.Context, p session.Principal, id uuid.UUID) (*model.LogEvent, error) {
	e, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.auth.CanRead(ctx, p, e.ProjectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrAccessDenied
	}
	return e, nil
}

// Delete removes the named events after confirming write access on each
// event's project. One foreign event fails the whole call.
func (s *QueryServiceImpl) Delete(ctx context.Context, p session.Principal, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, errs.ErrInvalid
	}
	writable := map[uuid.UUID]bool{}
	deletable := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		e, err := s.events.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				continue // already gone; deletion is idempotent
			}
			return 0, err
		}
		if !writable[e.ProjectID] {
			ok, err := s.auth.CanWrite(ctx, p, e.ProjectID)
			if err != nil {
				return 0, err
			}
			if !ok {
				return 0, errs.ErrAccessDenied
			}
			writable[e.ProjectID] = true
		}
		deletable = append(deletable, id)
	}
	if len(deletable) == 0 {
		return 0, nil
	}
	return s.events.Delete(ctx, deletable)
}

// Recent returns the newest visible events, default 10.
func (s *QueryServiceImpl) Recent(ctx context.Context, p session.Principal, limit int) ([]model.LogEvent, error) {
	scope, err := s.auth.VisibleProjects(ctx, p)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && len(scope) == 0 {
		return []model.LogEvent{}, nil
	}
	return s.events.Recent(ctx, scope, clampLimit(limit, 10, MaxRecentLimit))
}

// Stats aggregates level totals, today's volume, the latest events, and
// per-project counts over the visible set.
func (s *QueryServiceImpl) Stats(ctx context.Context, p session.Principal) (*model.StatsOverview, error) {
	scope, err := s.auth.VisibleProjects(ctx, p)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && len(scope) == 0 {
		return &model.StatsOverview{ByLevel: map[model.Level]int64{}}, nil
	}

	byLevel, err := s.events.CountByLevel(ctx, scope)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, n := range byLevel {
		total += n
	}

	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	today, err := s.events.CountSince(ctx, scope, midnight)
	if err != nil {
		return nil, err
	}

	recent, err := s.events.Recent(ctx, scope, 10)
	if err != nil {
		return nil, err
	}

	byProject, err := s.events.CountByProject(ctx, scope)
	if err != nil {
		return nil, err
	}

	return &model.StatsOverview{
		Total:     total,
		ByLevel:   byLevel,
		Today:     today,
		Recent:    recent,
		ByProject: byProject,
	}, nil
}

// ProjectStats aggregates counts for a single project the caller may read.
func (s *QueryServiceImpl) ProjectStats(ctx context.Context, p session.Principal, projectID uuid.UUID) (*model.StatsOverview, error) {
	ok, err := s.auth.CanRead(ctx, p, projectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrAccessDenied
	}
	scope := []uuid.UUID{projectID}

	byLevel, err := s.events.CountByLevel(ctx, scope)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, n := range byLevel {
		total += n
	}

	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	today, err := s.events.CountSince(ctx, scope, midnight)
	if err != nil {
		return nil, err
	}

	recent, err := s.events.Recent(ctx, scope, 10)
	if err != nil {
		return nil, err
	}

	return &model.StatsOverview{
		Total:   total,
		ByLevel: byLevel,
		Today:   today,
		Recent:  recent,
	}, nil
}
