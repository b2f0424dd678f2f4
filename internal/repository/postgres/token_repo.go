package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
)

// TokenRepo implements TokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

// NewTokenRepo constructs a programmatic token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

const tokenColumns = `id, name, token_hash, token_prefix, granted_projects, expires_at, active, created_by, last_used_at, created_at`

func scanToken(row pgx.Row) (*model.ToolToken, error) {
	var (
		t     model.ToolToken
		grant []byte
	)
	err := row.Scan(&t.ID, &t.Name, &t.TokenHash, &t.TokenPrefix, &grant,
		&t.ExpiresAt, &t.Active, &t.CreatedBy, &t.LastUsedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if err := unmarshalInto(grant, &t.Grant); err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a token.
func (r *TokenRepo) Create(ctx context.Context, t *model.ToolToken) error {
	grant, err := toJSON(t.Grant)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO mcp_tokens (id, name, token_hash, token_prefix, granted_projects, expires_at, active, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.db.Pool.Exec(ctx, q, t.ID, t.Name, t.TokenHash, t.TokenPrefix, grant, t.ExpiresAt, t.Active, t.CreatedBy)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID loads a token by ID.
func (r *TokenRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.ToolToken, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM mcp_tokens WHERE id=$1`, id)
	return scanToken(row)
}

// GetByHash loads a token by its fingerprint.
func (r *TokenRepo) GetByHash(ctx context.Context, hash string) (*model.ToolToken, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM mcp_tokens WHERE token_hash=$1`, hash)
	return scanToken(row)
}

// List returns all tokens, newest first.
func (r *TokenRepo) List(ctx context.Context) ([]model.ToolToken, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+tokenColumns+` FROM mcp_tokens ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ToolToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Update persists name, grant, expiry, and active flag.
func (r *TokenRepo) Update(ctx context.Context, t *model.ToolToken) error {
	grant, err := toJSON(t.Grant)
	if err != nil {
		return err
	}
	const q = `UPDATE mcp_tokens SET name=$2, granted_projects=$3, expires_at=$4, active=$5 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, t.ID, t.Name, grant, t.ExpiresAt, t.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// TouchLastUsed records a use of the token.
func (r *TokenRepo) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE mcp_tokens SET last_used_at=now() WHERE id=$1`, id)
	return err
}

// Delete removes a token; activity rows cascade via FK.
func (r *TokenRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM mcp_tokens WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ActivityRepo implements ActivityRepository using PostgreSQL.
type ActivityRepo struct{ db *DB }

// NewActivityRepo constructs a tool activity repository.
func NewActivityRepo(db *DB) *ActivityRepo { return &ActivityRepo{db: db} }

// Append inserts one activity row.
func (r *ActivityRepo) Append(ctx context.Context, a *model.ToolActivity) error {
	ids := a.ProjectIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	projects, err := toJSON(ids)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO mcp_activity_logs (token_id, tool_name, project_ids, arguments, success, error, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = r.db.Pool.Exec(ctx, q, a.TokenID, a.Tool, projects, nullable(a.Args), a.Success, a.Error, a.DurationMS)
	return err
}

// ListByToken returns recent activity for a token, newest first.
func (r *ActivityRepo) ListByToken(ctx context.Context, tokenID uuid.UUID, limit int) ([]model.ToolActivity, error) {
	const q = `
SELECT id, token_id, tool_name, project_ids, arguments, success, error, duration_ms, created_at
FROM mcp_activity_logs WHERE token_id=$1
ORDER BY created_at DESC, id DESC LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, tokenID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ToolActivity
	for rows.Next() {
		var (
			a        model.ToolActivity
			projects []byte
			args     []byte
		)
		if err := rows.Scan(&a.ID, &a.TokenID, &a.Tool, &projects, &args, &a.Success, &a.Error, &a.DurationMS, &a.CreatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalInto(projects, &a.ProjectIDs); err != nil {
			return nil, err
		}
		if len(args) > 0 {
			a.Args = args
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
