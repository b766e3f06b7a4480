package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

const userColumns = `id, username, email, password_hash, role, github_id, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u    model.User
		role string
	)
	if err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.GitHubID,
		&u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	return &u, nil
}

func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = now()
	user.UpdatedAt = user.CreatedAt
	if user.Role == "" {
		user.Role = model.RoleUser
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Username, user.Email, user.PasswordHash, string(user.Role),
		user.GitHubID, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if col, ok := uniqueViolation(err); ok {
			return apperror.Conflict("user", conflictField(col))
		}
		return fmt.Errorf("postgres: inserting user %q: %w", user.Username, err)
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("postgres: getting user %s: %w", id, err)
	}
	return u, nil
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("postgres: getting user %q: %w", username, err)
	}
	return u, nil
}

// UpsertGitHubUser inserts the account or, when github_id already exists,
// refreshes its email and returns the stored row.
func (db *DB) UpsertGitHubUser(ctx context.Context, user *model.User) error {
	if user.GitHubID == nil {
		return fmt.Errorf("postgres: upserting GitHub user: github id is required")
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	ts := now()

	stored, err := scanUser(db.pool.QueryRow(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 ON CONFLICT (github_id) DO UPDATE
		 SET email = EXCLUDED.email, updated_at = EXCLUDED.updated_at
		 RETURNING `+userColumns,
		xid.New().String(), user.Username, user.Email, user.PasswordHash, string(user.Role),
		*user.GitHubID, ts,
	))
	if err != nil {
		if col, ok := uniqueViolation(err); ok {
			return apperror.Conflict("user", conflictField(col))
		}
		return fmt.Errorf("postgres: upserting GitHub user %d: %w", *user.GitHubID, err)
	}
	*user = *stored
	return nil
}

func (db *DB) UpdateRole(ctx context.Context, id string, role model.Role) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`, string(role), now(), id)
	if err != nil {
		return fmt.Errorf("postgres: updating role of user %s: %w", id, err)
	}
	return notFoundIfNone(tag, "user", id)
}

func (db *DB) ListUsers(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	opts = opts.Normalize()
	rows, err := db.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC LIMIT $1 OFFSET $2`,
		opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, opts.Limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
