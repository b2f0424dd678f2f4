package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
)

// ProjectRepo implements ProjectRepository using PostgreSQL.
type ProjectRepo struct{ db *DB }

// NewProjectRepo constructs a project repository.
func NewProjectRepo(db *DB) *ProjectRepo { return &ProjectRepo{db: db} }

const projectColumns = `id, name, description, icon, api_key_hash, api_key_prefix, active, retention_config, created_at, updated_at`

func scanProject(row pgx.Row) (*model.Project, error) {
	var (
		p         model.Project
		icon      []byte
		retention []byte
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &icon, &p.APIKeyHash,
		&p.APIKeyPrefix, &p.Active, &retention, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if err := unmarshalInto(icon, &p.Icon); err != nil {
		return nil, err
	}
	if len(retention) > 0 && string(retention) != "null" {
		p.Retention = &model.RetentionPolicy{}
		if err := unmarshalInto(retention, p.Retention); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// Create inserts a project and the creator's OWNER membership in one transaction.
func (r *ProjectRepo) Create(ctx context.Context, p *model.Project, creator uuid.UUID) (err error) {
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

	icon, err := toJSON(p.Icon)
	if err != nil {
		return err
	}
	var retention any
	if p.Retention != nil {
		retention, err = toJSON(p.Retention)
		if err != nil {
			return err
		}
	}

	const ins = `
INSERT INTO projects (id, name, description, icon, api_key_hash, api_key_prefix, active, retention_config)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err = tx.Exec(ctx, ins, p.ID, p.Name, p.Description, icon,
		p.APIKeyHash, p.APIKeyPrefix, p.Active, retention); err != nil {
		if isUniqueViolation(err) {
			err = errs.ErrAlreadyExists
		}
		return err
	}

	const member = `INSERT INTO user_projects (user_id, project_id, role) VALUES ($1, $2, $3)`
	_, err = tx.Exec(ctx, member, creator, p.ID, model.ProjectOwner)
	return err
}

// GetByID selects a project by ID.
func (r *ProjectRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Project, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=$1`, id)
	return scanProject(row)
}

// GetByAPIKeyHash selects a project by its API key fingerprint.
func (r *ProjectRepo) GetByAPIKeyHash(ctx context.Context, hash string) (*model.Project, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE api_key_hash=$1`, hash)
	return scanProject(row)
}

// List returns all projects, newest first.
func (r *ProjectRepo) List(ctx context.Context) ([]model.Project, error) {
	return r.queryProjects(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id DESC`)
}

// ListForUser returns projects the user has a membership in.
func (r *ProjectRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.Project, error) {
	const q = `
SELECT p.id, p.name, p.description, p.icon, p.api_key_hash, p.api_key_prefix, p.active, p.retention_config, p.created_at, p.updated_at
FROM projects p
JOIN user_projects up ON up.project_id = p.id
WHERE up.user_id = $1
ORDER BY p.created_at DESC, p.id DESC`
	return r.queryProjects(ctx, q, userID)
}

func (r *ProjectRepo) queryProjects(ctx context.Context, q string, args ...any) ([]model.Project, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Update persists name, description, icon, active flag, and retention config.
func (r *ProjectRepo) Update(ctx context.Context, p *model.Project) error {
	icon, err := toJSON(p.Icon)
	if err != nil {
		return err
	}
	var retention any
	if p.Retention != nil {
		retention, err = toJSON(p.Retention)
		if err != nil {
			return err
		}
	}
	const q = `
UPDATE projects SET name=$2, description=$3, icon=$4, active=$5, retention_config=$6, updated_at=now()
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, p.ID, p.Name, p.Description, icon, p.Active, retention)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// RotateKey replaces the stored key fingerprint and display prefix.
func (r *ProjectRepo) RotateKey(ctx context.Context, id uuid.UUID, hash, prefix string) error {
	const q = `UPDATE projects SET api_key_hash=$2, api_key_prefix=$3, updated_at=now() WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, hash, prefix)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes a project; memberships, channels, and events cascade via FK.
func (r *ProjectRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM projects WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Membership loads one membership row.
func (r *ProjectRepo) Membership(ctx context.Context, userID, projectID uuid.UUID) (*model.Membership, error) {
	const q = `SELECT user_id, project_id, role, created_at FROM user_projects WHERE user_id=$1 AND project_id=$2`
	var m model.Membership
	err := r.db.Pool.QueryRow(ctx, q, userID, projectID).Scan(&m.UserID, &m.ProjectID, &m.Role, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Memberships returns all memberships of a user.
func (r *ProjectRepo) Memberships(ctx context.Context, userID uuid.UUID) ([]model.Membership, error) {
	const q = `SELECT user_id, project_id, role, created_at FROM user_projects WHERE user_id=$1`
	return r.queryMemberships(ctx, q, userID)
}

// Members returns all memberships of a project.
func (r *ProjectRepo) Members(ctx context.Context, projectID uuid.UUID) ([]model.Membership, error) {
	const q = `SELECT user_id, project_id, role, created_at FROM user_projects WHERE project_id=$1 ORDER BY created_at`
	return r.queryMemberships(ctx, q, projectID)
}

func (r *ProjectRepo) queryMemberships(ctx context.Context, q string, args ...any) ([]model.Membership, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Membership
	for rows.Next() {
		var m model.Membership
		if err := rows.Scan(&m.UserID, &m.ProjectID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddMember inserts a membership.
func (r *ProjectRepo) AddMember(ctx context.Context, m *model.Membership) error {
	const q = `INSERT INTO user_projects (user_id, project_id, role) VALUES ($1, $2, $3)`
	_, err := r.db.Pool.Exec(ctx, q, m.UserID, m.ProjectID, m.Role)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// UpdateMemberRole changes a membership role.
func (r *ProjectRepo) UpdateMemberRole(ctx context.Context, userID, projectID uuid.UUID, role model.ProjectRole) error {
	const q = `UPDATE user_projects SET role=$3 WHERE user_id=$1 AND project_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, projectID, role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// RemoveMember deletes a membership.
func (r *ProjectRepo) RemoveMember(ctx context.Context, userID, projectID uuid.UUID) error {
	const q = `DELETE FROM user_projects WHERE user_id=$1 AND project_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, projectID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
