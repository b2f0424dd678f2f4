package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/logtide/logtide/internal/model"
)

// PushRepo implements PushRepository using PostgreSQL.
type PushRepo struct{ db *DB }

// NewPushRepo constructs a push subscription repository.
func NewPushRepo(db *DB) *PushRepo { return &PushRepo{db: db} }

const pushColumns = `id, user_id, project_id, endpoint, p256dh, auth, user_agent, created_at`

// Upsert inserts a subscription or replaces the row with the same endpoint.
// Resubscribing a known endpoint yields a fresh ID.
func (r *PushRepo) Upsert(ctx context.Context, s *model.PushSubscription) error {
	const q = `
INSERT INTO push_subscriptions (id, user_id, project_id, endpoint, p256dh, auth, user_agent)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (endpoint) DO UPDATE
SET id=EXCLUDED.id, user_id=EXCLUDED.user_id, project_id=EXCLUDED.project_id,
    p256dh=EXCLUDED.p256dh, auth=EXCLUDED.auth, user_agent=EXCLUDED.user_agent,
    created_at=now()`
	_, err := r.db.Pool.Exec(ctx, q, s.ID, s.UserID, s.ProjectID, s.Endpoint, s.P256dh, s.Auth, s.UserAgent)
	return err
}

// DeleteByEndpoint removes the subscription for an endpoint. Missing rows
// are not an error; dead-endpoint cleanup races with unsubscribe.
func (r *PushRepo) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint=$1`, endpoint)
	return err
}

// ListByUser returns all subscriptions of a user.
func (r *PushRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.PushSubscription, error) {
	const q = `SELECT ` + pushColumns + ` FROM push_subscriptions WHERE user_id=$1 ORDER BY created_at DESC`
	return r.querySubs(ctx, q, userID)
}

// ListForProject returns subscriptions eligible for a project's
// notifications: those of project members that are unscoped or scoped to
// this project.
func (r *PushRepo) ListForProject(ctx context.Context, projectID uuid.UUID) ([]model.PushSubscription, error) {
	const q = `
SELECT s.id, s.user_id, s.project_id, s.endpoint, s.p256dh, s.auth, s.user_agent, s.created_at
FROM push_subscriptions s
JOIN user_projects up ON up.user_id = s.user_id AND up.project_id = $1
WHERE s.project_id IS NULL OR s.project_id = $1`
	return r.querySubs(ctx, q, projectID)
}

func (r *PushRepo) querySubs(ctx context.Context, q string, args ...any) ([]model.PushSubscription, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PushSubscription
	for rows.Next() {
		s, err := scanSub(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanSub(row pgx.Row) (*model.PushSubscription, error) {
	var s model.PushSubscription
	err := row.Scan(&s.ID, &s.UserID, &s.ProjectID, &s.Endpoint, &s.P256dh, &s.Auth, &s.UserAgent, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
