package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, username, name, role, password_hash, totp_secret, totp_enabled, backup_codes, active, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u     model.User
		codes []byte
	)
	err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Role, &u.PasswordHash,
		&u.TOTPSecret, &u.TOTPEnabled, &codes, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if err := unmarshalInto(codes, &u.BackupCodes); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, username, name, role, password_hash, totp_secret, totp_enabled, backup_codes, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	codes, err := toJSON(orEmpty(u.BackupCodes))
	if err != nil {
		return err
	}
	_, err = r.db.Pool.Exec(ctx, q, u.ID, u.Username, u.Name, u.Role, u.PasswordHash,
		u.TOTPSecret, u.TOTPEnabled, codes, u.Active)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	return scanUser(row)
}

// GetByUsername selects a user by username. Usernames are case-sensitive.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
	return scanUser(row)
}

// List returns all users, newest first.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// Update persists display name, role, and active flag. Username is immutable.
func (r *UserRepo) Update(ctx context.Context, u *model.User) error {
	const q = `UPDATE users SET name=$2, role=$3, active=$4, updated_at=now() WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, u.ID, u.Name, u.Role, u.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the password verifier.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	const q = `UPDATE users SET password_hash=$2, updated_at=now() WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SetTOTP stores the TOTP secret, enabled flag, and backup code hashes.
func (r *UserRepo) SetTOTP(ctx context.Context, id uuid.UUID, secret string, enabled bool, backupCodes []string) error {
	const q = `UPDATE users SET totp_secret=$2, totp_enabled=$3, backup_codes=$4, updated_at=now() WHERE id=$1`
	codes, err := toJSON(orEmpty(backupCodes))
	if err != nil {
		return err
	}
	tag, err := r.db.Pool.Exec(ctx, q, id, secret, enabled, codes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// RemoveBackupCode atomically strips one code hash from the stored set.
// The single UPDATE both checks presence and removes, so a code consumed by
// a concurrent login cannot authenticate twice.
func (r *UserRepo) RemoveBackupCode(ctx context.Context, id uuid.UUID, hash string) (bool, error) {
	const q = `
UPDATE users
SET backup_codes = COALESCE(
      (SELECT jsonb_agg(c) FROM jsonb_array_elements_text(backup_codes) AS c WHERE c <> $2),
      '[]'::jsonb),
    updated_at = now()
WHERE id = $1 AND backup_codes ? $2`
	tag, err := r.db.Pool.Exec(ctx, q, id, hash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes a user.
func (r *UserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// orEmpty keeps JSONB arrays non-null for simpler scanning.
func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
