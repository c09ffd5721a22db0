package catalog

import (
	"context"
	"database/sql"
)

// InsertToken records an issued bearer token. The signed token itself is
// self-validating; the row exists so that logout can revoke it before its
// expiry.
func (c *Catalog) InsertToken(ctx context.Context, token string, userID int64, issuedAt int64, expiresAt *int64, scopes string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO tokens (token, user_id, issued_at, expires_at, scopes)
		VALUES (?, ?, ?, ?, ?)`, token, userID, issuedAt, expiresAt, scopes)
	return err
}

// DeleteToken revokes a token. Deleting an unknown token is not an error;
// revocation is best-effort.
func (c *Catalog) DeleteToken(ctx context.Context, token string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM tokens WHERE token = ?`, token)
	return err
}

// GetUserByToken validates a presented token against the catalog: the row
// must exist, be unexpired, and belong to an active user. The caller is
// expected to have verified the token signature first.
func (c *Catalog) GetUserByToken(ctx context.Context, token string) (*User, error) {
	var (
		userID    int64
		expiresAt sql.NullInt64
	)

	err := c.db.QueryRowContext(ctx, `
		SELECT user_id, expires_at FROM tokens WHERE token = ?`,
		token).Scan(&userID, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if expiresAt.Valid && expiresAt.Int64 <= now() {
		return nil, ErrTokenExpired
	}

	user, err := c.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, ErrUserInactive
	}

	return user, nil
}

// PurgeExpiredTokens removes rows whose expiry has passed. Called
// opportunistically; correctness never depends on it.
func (c *Catalog) PurgeExpiredTokens(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM tokens WHERE expires_at IS NOT NULL AND expires_at <= ?`, now())
	return err
}
