package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
)

// EventRepo implements EventRepository using PostgreSQL.
type EventRepo struct{ db *DB }

// NewEventRepo constructs an event repository.
func NewEventRepo(db *DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `id, project_id, level, message, metadata, source, ts, created_at`

func scanEvent(row pgx.Row) (*model.LogEvent, error) {
	var (
		e  model.LogEvent
		md []byte
	)
	err := row.Scan(&e.ID, &e.ProjectID, &e.Level, &e.Message, &md, &e.Source, &e.Timestamp, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if len(md) > 0 {
		e.Metadata = md
	}
	return &e, nil
}

const insertEvent = `
INSERT INTO logs (id, project_id, level, message, metadata, source, ts, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// Insert persists a single event.
func (r *EventRepo) Insert(ctx context.Context, e *model.LogEvent) error {
	_, err := r.db.Pool.Exec(ctx, insertEvent,
		e.ID, e.ProjectID, e.Level, e.Message, nullable(e.Metadata), e.Source, e.Timestamp, e.CreatedAt)
	return err
}

// InsertBatch persists events in a single transaction; all or none.
func (r *EventRepo) InsertBatch(ctx context.Context, events []model.LogEvent) (err error) {
	if len(events) == 0 {
		return nil
	}
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	for i := range events {
		e := &events[i]
		if _, err = tx.Exec(ctx, insertEvent,
			e.ID, e.ProjectID, e.Level, e.Message, nullable(e.Metadata), e.Source, e.Timestamp, e.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

// GetByID loads an event by ID.
func (r *EventRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.LogEvent, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM logs WHERE id=$1`, id)
	return scanEvent(row)
}

// buildFilter renders the WHERE clause and args for an event filter.
func buildFilter(f model.EventFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if len(f.ProjectIDs) > 0 {
		add(`project_id = ANY($%d)`, f.ProjectIDs)
	}
	if len(f.Levels) > 0 {
		levels := make([]string, len(f.Levels))
		for i, l := range f.Levels {
			levels[i] = string(l)
		}
		add(`level = ANY($%d)`, levels)
	}
	if f.Source != "" {
		add(`source = $%d`, f.Source)
	}
	if f.Search != "" {
		add(`message ILIKE '%%' || $%d || '%%'`, escapeLike(f.Search))
	}
	if f.From != nil {
		add(`created_at >= $%d`, *f.From)
	}
	if f.To != nil {
		add(`created_at <= $%d`, *f.To)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// escapeLike neutralizes LIKE metacharacters so search is a literal substring match.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

// List returns events matching the filter plus the total count before paging.
// Ordering is strictly newest accept-time first with ID as a stable tiebreaker.
func (r *EventRepo) List(ctx context.Context, f model.EventFilter) ([]model.LogEvent, int64, error) {
	where, args := buildFilter(f)

	var total int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf(`SELECT %s FROM logs%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		eventColumns, where, len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.LogEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *e)
	}
	return out, total, rows.Err()
}

// Delete removes the given events.
func (r *EventRepo) Delete(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM logs WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Recent returns the newest events within the given projects.
func (r *EventRepo) Recent(ctx context.Context, projectIDs []uuid.UUID, limit int) ([]model.LogEvent, error) {
	f := model.EventFilter{ProjectIDs: projectIDs, Limit: limit}
	where, args := buildFilter(f)
	q := fmt.Sprintf(`SELECT %s FROM logs%s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		eventColumns, where, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LogEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// CountByLevel aggregates totals per level within the given projects.
func (r *EventRepo) CountByLevel(ctx context.Context, projectIDs []uuid.UUID) (map[model.Level]int64, error) {
	where, args := buildFilter(model.EventFilter{ProjectIDs: projectIDs})
	rows, err := r.db.Pool.Query(ctx, `SELECT level, count(*) FROM logs`+where+` GROUP BY level`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.Level]int64)
	for rows.Next() {
		var (
			l model.Level
			n int64
		)
		if err := rows.Scan(&l, &n); err != nil {
			return nil, err
		}
		out[l] = n
	}
	return out, rows.Err()
}

// CountSince counts events accepted at or after the cutoff.
func (r *EventRepo) CountSince(ctx context.Context, projectIDs []uuid.UUID, cutoff time.Time) (int64, error) {
	f := model.EventFilter{ProjectIDs: projectIDs, From: &cutoff}
	where, args := buildFilter(f)
	var n int64
	err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM logs`+where, args...).Scan(&n)
	return n, err
}

// CountByProject aggregates totals per project, largest first.
func (r *EventRepo) CountByProject(ctx context.Context, projectIDs []uuid.UUID) ([]model.ProjectCount, error) {
	where, args := buildFilter(model.EventFilter{ProjectIDs: projectIDs})
	q := `
SELECT l.project_id, p.name, count(*)
FROM logs l
JOIN projects p ON p.id = l.project_id` + strings.Replace(where, "project_id", "l.project_id", 1) + `
GROUP BY l.project_id, p.name
ORDER BY count(*) DESC`
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ProjectCount
	for rows.Next() {
		var pc model.ProjectCount
		if err := rows.Scan(&pc.ProjectID, &pc.ProjectName, &pc.Count); err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes up to batch rows accepted before the cutoff.
func (r *EventRepo) DeleteOlderThan(ctx context.Context, projectID uuid.UUID, level *model.Level, cutoff time.Time, batch int) (int64, error) {
	q := `
DELETE FROM logs WHERE id IN (
  SELECT id FROM logs
  WHERE project_id = $1 AND created_at < $2`
	args := []any{projectID, cutoff}
	if level != nil {
		q += ` AND level = $3`
		args = append(args, string(*level))
	}
	q += fmt.Sprintf(`
  ORDER BY created_at ASC, id ASC
  LIMIT $%d)`, len(args)+1)
	args = append(args, batch)

	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteOverCount removes up to batch of the oldest rows beyond the newest
// keep rows. Tie-break on equal accept-time is ascending ID.
func (r *EventRepo) DeleteOverCount(ctx context.Context, projectID uuid.UUID, level *model.Level, keep, batch int) (int64, error) {
	q := `
DELETE FROM logs WHERE id IN (
  SELECT id FROM logs
  WHERE project_id = $1`
	args := []any{projectID}
	if level != nil {
		q += ` AND level = $2`
		args = append(args, string(*level))
	}
	q += fmt.Sprintf(`
  ORDER BY created_at DESC, id DESC
  OFFSET $%d LIMIT $%d)`, len(args)+1, len(args)+2)
	args = append(args, keep, batch)

	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// nullable maps empty raw JSON to SQL NULL.
func nullable(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
