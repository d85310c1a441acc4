package database

import (
	"context"
	"database/sql"
	"errors"
)

// ErrUserExists is returned by CreateUser when a user with the same principal
// was committed concurrently.
var ErrUserExists = errors.New("user already exists")

const userColumns = "id, principal, name, email, avatar_url, last_seen_at, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(
		&u.Id,
		&u.Principal,
		&u.Name,
		&u.Email,
		&u.AvatarUrl,
		&u.LastSeenAt,
		&u.CreatedAt,
	)
	return u, err
}

func (q *queries) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	row := q.conn.QueryRowContext(ctx,
		q.rebind("INSERT INTO users (principal, name, email, avatar_url, created_at) "+
			"VALUES (?, ?, ?, ?, ?) ON CONFLICT (principal) DO NOTHING RETURNING "+userColumns),
		params.Principal,
		params.Name,
		params.Email,
		params.AvatarUrl,
		params.CreatedAt,
	)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserExists
	}
	return u, err
}

func (q *queries) UpdateUser(ctx context.Context, params UpdateUserParams) error {
	_, err := q.conn.ExecContext(ctx,
		q.rebind("UPDATE users SET name = ?, email = ?, avatar_url = ? WHERE id = ?"),
		params.Name,
		params.Email,
		params.AvatarUrl,
		params.UserId,
	)

	return err
}

func (q *queries) UpdateUserLastSeen(ctx context.Context, userId int, at int64) error {
	_, err := q.conn.ExecContext(ctx,
		q.rebind("UPDATE users SET last_seen_at = ? WHERE id = ?"),
		at,
		userId,
	)

	return err
}

func (q *queries) GetUserById(ctx context.Context, userId int) (User, error) {
	row := q.conn.QueryRowContext(ctx,
		q.rebind("SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1"),
		userId,
	)

	return scanUser(row)
}

func (q *queries) GetUserByPrincipal(ctx context.Context, principal string) (User, error) {
	row := q.conn.QueryRowContext(ctx,
		q.rebind("SELECT "+userColumns+" FROM users WHERE principal = ? LIMIT 1"),
		principal,
	)

	return scanUser(row)
}

func (q *queries) GetUsersByIds(ctx context.Context, userIds []int) ([]User, error) {
	if len(userIds) == 0 {
		return []User{}, nil
	}

	rows, err := q.conn.QueryContext(ctx,
		q.rebind("SELECT "+userColumns+" FROM users WHERE id IN ("+placeholders(len(userIds))+") ORDER BY id"),
		intArgs(userIds)...,
	)
	if err != nil {
		return nil, err
	}

	return collectUsers(rows)
}

func (q *queries) ListUsersExcluding(ctx context.Context, userId int) ([]User, error) {
	rows, err := q.conn.QueryContext(ctx,
		q.rebind("SELECT "+userColumns+" FROM users WHERE id <> ? ORDER BY id"),
		userId,
	)
	if err != nil {
		return nil, err
	}

	return collectUsers(rows)
}

func collectUsers(rows *sql.Rows) ([]User, error) {
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}
