package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateUser inserts a local account. passwordHash may be empty for
// federated-only users. Returns ErrUsernameTaken or ErrEmailTaken on
// uniqueness violations.
func (c *Catalog) CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error) {
	var hash *string
	if passwordHash != "" {
		hash = &passwordHash
	}

	ts := now()
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)`, username, email, hash, ts)
	if err != nil {
		return nil, mapUniqueError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    ts,
	}, nil
}

// GetUserByName fetches a user by username.
func (c *Catalog) GetUserByName(ctx context.Context, username string) (*User, error) {
	return c.getUser(ctx, `username = ?`, username)
}

// GetUserByEmail fetches a user by email.
func (c *Catalog) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return c.getUser(ctx, `email = ?`, email)
}

// GetUserByID fetches a user by id.
func (c *Catalog) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return c.getUser(ctx, `id = ?`, id)
}

// SetPassword stores a new password hash for the user. Federated-only
// accounts may set a password this way.
func (c *Catalog) SetPassword(ctx context.Context, userID int64, passwordHash string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateUser soft-deletes an account. Rows are never physically removed
// while releases reference them.
func (c *Catalog) DeactivateUser(ctx context.Context, userID int64) error {
	_, err := c.db.ExecContext(ctx, `UPDATE users SET active = 0 WHERE id = ?`, userID)
	return err
}

// LinkIdentity attaches a federated (provider, provider_user_id) pair to
// the user. Returns ErrAlreadyLinked if the pair is linked anywhere.
func (c *Catalog) LinkIdentity(ctx context.Context, userID int64, provider, providerUserID, display string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO identities (user_id, provider, provider_user_id, display, created_at)
		VALUES (?, ?, ?, ?, ?)`, userID, provider, providerUserID, display, now())
	if err != nil {
		return mapUniqueError(err)
	}
	return nil
}

// GetUserByIdentity resolves a federated identity to its linked user.
func (c *Catalog) GetUserByIdentity(ctx context.Context, provider, providerUserID string) (*User, error) {
	var userID int64
	err := c.db.QueryRowContext(ctx, `
		SELECT user_id FROM identities
		WHERE provider = ? AND provider_user_id = ?`,
		provider, providerUserID).Scan(&userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return c.GetUserByID(ctx, userID)
}

// NextFreeUsername returns base if unused, otherwise base2, base3, … up to
// a sane bound. Used to derive usernames for first federated sign-ins.
func (c *Catalog) NextFreeUsername(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 2; ; i++ {
		_, err := c.GetUserByName(ctx, candidate)
		if err == ErrNotFound {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		if i > 1000 {
			return "", fmt.Errorf("catalog: no free username for %q", base)
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
}

func (c *Catalog) getUser(ctx context.Context, where string, arg interface{}) (*User, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, active, admin, created_at
		FROM users WHERE `+where, arg)

	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.Active, &u.Admin, &u.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &u, nil
}
