package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, username, email, password_hash, role, github_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u        model.User
		role     string
		githubID sql.NullInt64
	)
	if err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &githubID,
		&u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	if githubID.Valid {
		id := githubID.Int64
		u.GitHubID = &id
	}
	return &u, nil
}

// CreateUser inserts a new user. The UNIQUE constraints on username and
// email are the source of truth for duplicates; a violation becomes
// apperror.Conflict naming the offending field.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = now()
	user.UpdatedAt = user.CreatedAt
	if user.Role == "" {
		user.Role = model.RoleUser
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		nullableInt64(user.GitHubID),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if col, ok := uniqueViolation(err); ok {
			return apperror.Conflict("user", conflictField(col))
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}
	return nil
}

// GetUserByID retrieves a user by internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByUsername retrieves a user by exact username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqlite: getting user %q: %w", username, err)
	}
	return u, nil
}

// UpsertGitHubUser returns the account linked to user.GitHubID, creating it
// when absent. An existing account keeps its ID, username and role; only its
// email is refreshed. On return *user holds the stored record.
func (db *DB) UpsertGitHubUser(ctx context.Context, user *model.User) error {
	if user.GitHubID == nil {
		return fmt.Errorf("sqlite: upserting GitHub user: github id is required")
	}

	return db.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE github_id = ?`, *user.GitHubID))
		switch {
		case err == nil:
			existing.UpdatedAt = now()
			if _, err := tx.ExecContext(ctx,
				`UPDATE users SET email = ?, updated_at = ? WHERE id = ?`,
				user.Email, existing.UpdatedAt, existing.ID,
			); err != nil {
				if col, ok := uniqueViolation(err); ok {
					return apperror.Conflict("user", conflictField(col))
				}
				return fmt.Errorf("sqlite: updating GitHub user %s: %w", existing.ID, err)
			}
			existing.Email = user.Email
			*user = *existing
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("sqlite: looking up github_id %d: %w", *user.GitHubID, err)
		}

		user.ID = xid.New().String()
		user.CreatedAt = now()
		user.UpdatedAt = user.CreatedAt
		if user.Role == "" {
			user.Role = model.RoleUser
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (`+userColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			user.ID, user.Username, user.Email, user.PasswordHash, string(user.Role),
			*user.GitHubID, user.CreatedAt, user.UpdatedAt,
		); err != nil {
			if col, ok := uniqueViolation(err); ok {
				return apperror.Conflict("user", conflictField(col))
			}
			return fmt.Errorf("sqlite: inserting GitHub user %d: %w", *user.GitHubID, err)
		}
		return nil
	})
}

// UpdateRole sets a user's role.
func (db *DB) UpdateRole(ctx context.Context, id string, role model.Role) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), now(), id)
	if err != nil {
		return fmt.Errorf("sqlite: updating role of user %s: %w", id, err)
	}
	return notFoundIfNone(res, "user", id)
}

// ListUsers returns users oldest first.
func (db *DB) ListUsers(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	opts = opts.Normalize()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 ORDER BY created_at ASC, id ASC
		 LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, opts.Limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// conflictField maps a violated column to the client-facing field name.
func conflictField(col string) string {
	switch col {
	case "github_id":
		return "GitHub account"
	case "":
		return "username or email"
	default:
		return col
	}
}
