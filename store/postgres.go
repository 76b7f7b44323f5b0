package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register the pgx database/sql driver
	"github.com/zpatrick/rbac"
	"golang.org/x/crypto/bcrypt"

	"github.com/groundline/apigate"
)

// Postgres is a UserStore backed by a users table:
//
//	CREATE TABLE users (
//	    id            BIGSERIAL PRIMARY KEY,
//	    name          TEXT UNIQUE NOT NULL,
//	    password_hash BYTEA NOT NULL,
//	    last_login    TIMESTAMPTZ
//	);
//	CREATE TABLE user_permissions (
//	    user_id    BIGINT REFERENCES users (id),
//	    permission TEXT NOT NULL
//	);
//
// Permissions are globs over operation identifiers.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle, e.g. sql.Open("pgx", dsn).
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// FindByName implements apigate.UserStore. It resolves the user row and the
// permission set in one lookup so access checks need no further queries.
func (s *Postgres) FindByName(ctx context.Context, name string) (apigate.User, error) {
	u := &pgUser{store: s}
	query := `SELECT id, name, password_hash FROM users WHERE name = $1`
	err := s.db.QueryRowContext(ctx, query, name).Scan(&u.id, &u.name, &u.hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apigate.ErrUserNotFound
		}
		return nil, fmt.Errorf("error performing user lookup: %w", err)
	}

	globs, err := s.permissions(ctx, u.id)
	if err != nil {
		return nil, err
	}
	u.role = permissionRole(u.name, globs)

	return u, nil
}

func (s *Postgres) permissions(ctx context.Context, userID int64) ([]string, error) {
	query := `SELECT permission FROM user_permissions WHERE user_id = $1`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading permissions: %w", err)
	}
	defer rows.Close()

	var globs []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("error scanning permission: %w", err)
		}
		globs = append(globs, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error loading permissions: %w", err)
	}
	return globs, nil
}

type pgUser struct {
	store *Postgres
	id    int64
	name  string
	hash  []byte
	role  rbac.Role
}

func (u *pgUser) Name() string {
	return u.name
}

func (u *pgUser) VerifyPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(u.hash, []byte(password)) == nil
}

func (u *pgUser) HasAccess(ctx context.Context, operationID string) (bool, error) {
	return u.role.Can(accessAction, operationID)
}

func (u *pgUser) RecordLogin(ctx context.Context) error {
	query := `UPDATE users SET last_login = now() WHERE id = $1`
	if _, err := u.store.db.ExecContext(ctx, query, u.id); err != nil {
		return fmt.Errorf("error recording login: %w", err)
	}
	return nil
}
