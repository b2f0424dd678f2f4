package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
)

// ChannelRepo implements ChannelRepository using PostgreSQL.
type ChannelRepo struct{ db *DB }

// NewChannelRepo constructs a channel repository.
func NewChannelRepo(db *DB) *ChannelRepo { return &ChannelRepo{db: db} }

const channelColumns = `id, project_id, type, name, config, min_level, active, created_at`

func scanChannel(row pgx.Row) (*model.Channel, error) {
	var (
		c   model.Channel
		cfg []byte
	)
	err := row.Scan(&c.ID, &c.ProjectID, &c.Type, &c.Name, &cfg, &c.MinLevel, &c.Active, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if len(cfg) > 0 {
		c.Config = cfg
	}
	return &c, nil
}

// Create inserts a channel.
func (r *ChannelRepo) Create(ctx context.Context, c *model.Channel) error {
	const q = `
INSERT INTO channels (id, project_id, type, name, config, min_level, active)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Pool.Exec(ctx, q, c.ID, c.ProjectID, c.Type, c.Name, nullable(c.Config), c.MinLevel, c.Active)
	return err
}

// GetByID loads a channel by ID.
func (r *ChannelRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Channel, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE id=$1`, id)
	return scanChannel(row)
}

// ListByProject returns all channels of a project.
func (r *ChannelRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]model.Channel, error) {
	return r.queryChannels(ctx, `SELECT `+channelColumns+` FROM channels WHERE project_id=$1 ORDER BY created_at`, projectID)
}

// ListActiveByProject returns only active channels of a project.
func (r *ChannelRepo) ListActiveByProject(ctx context.Context, projectID uuid.UUID) ([]model.Channel, error) {
	return r.queryChannels(ctx, `SELECT `+channelColumns+` FROM channels WHERE project_id=$1 AND active ORDER BY created_at`, projectID)
}

func (r *ChannelRepo) queryChannels(ctx context.Context, q string, args ...any) ([]model.Channel, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Update persists name, config, min level, and active flag.
func (r *ChannelRepo) Update(ctx context.Context, c *model.Channel) error {
	const q = `UPDATE channels SET name=$2, config=$3, min_level=$4, active=$5 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, c.ID, c.Name, nullable(c.Config), c.MinLevel, c.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes a channel.
func (r *ChannelRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM channels WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// HistoryRepo implements HistoryRepository using PostgreSQL.
type HistoryRepo struct{ db *DB }

// NewHistoryRepo constructs a notification history repository.
func NewHistoryRepo(db *DB) *HistoryRepo { return &HistoryRepo{db: db} }

// Append inserts one delivery outcome row.
func (r *HistoryRepo) Append(ctx context.Context, rec *model.NotificationRecord) error {
	const q = `
INSERT INTO notification_history (event_id, channel_id, status, error, sent_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Pool.Exec(ctx, q, rec.EventID, rec.ChannelID, rec.Status, rec.Error, rec.SentAt)
	return err
}

// ListByChannel returns recent outcomes for a channel, newest first.
func (r *HistoryRepo) ListByChannel(ctx context.Context, channelID uuid.UUID, limit int) ([]model.NotificationRecord, error) {
	const q = `
SELECT id, event_id, channel_id, status, error, sent_at, created_at
FROM notification_history WHERE channel_id=$1
ORDER BY created_at DESC, id DESC LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.NotificationRecord
	for rows.Next() {
		var rec model.NotificationRecord
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.ChannelID, &rec.Status, &rec.Error, &rec.SentAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
