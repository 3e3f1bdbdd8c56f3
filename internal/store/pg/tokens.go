package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grantorhq/grantor/internal/store/core"
)

type tokenRepo struct{ pool *pgxpool.Pool }

const tokenCols = `id, access_token, refresh_token, client_id, user_id, scope, token_type, expires_at, refresh_expires_at, revoked, created_at`

func (r *tokenRepo) Create(ctx context.Context, t *core.Token) error {
	const q = `
		INSERT INTO oauth_tokens (` + tokenCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.pool.Exec(ctx, q,
		t.ID, t.AccessToken, t.RefreshToken, t.ClientID, t.UserID, t.Scope,
		t.TokenType, t.ExpiresAt, t.RefreshExpiresAt, t.Revoked, t.CreatedAt)
	if isUniqueViolation(err) {
		return core.ErrConflict
	}
	return err
}

func (r *tokenRepo) GetByAccess(ctx context.Context, accessToken string) (*core.Token, error) {
	const q = `SELECT ` + tokenCols + ` FROM oauth_tokens WHERE access_token = $1`
	return scanToken(r.pool.QueryRow(ctx, q, accessToken))
}

func (r *tokenRepo) GetByRefresh(ctx context.Context, refreshToken string) (*core.Token, error) {
	const q = `SELECT ` + tokenCols + ` FROM oauth_tokens WHERE refresh_token = $1`
	return scanToken(r.pool.QueryRow(ctx, q, refreshToken))
}

// Revoke matches either column and only flips live records, so repeated calls
// report false without erroring.
func (r *tokenRepo) Revoke(ctx context.Context, token string) (bool, error) {
	const q = `
		UPDATE oauth_tokens SET revoked = TRUE
		WHERE (access_token = $1 OR refresh_token = $1) AND revoked = FALSE`
	ct, err := r.pool.Exec(ctx, q, token)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() >= 1, nil
}

// Rotate revokes the old record and inserts its replacement in one
// transaction. If the old record is already revoked or gone, the whole
// rotation fails with ErrNotFound and nothing is written.
func (r *tokenRepo) Rotate(ctx context.Context, oldID string, replacement *core.Token) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx,
		`UPDATE oauth_tokens SET revoked = TRUE WHERE id = $1 AND revoked = FALSE`, oldID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return core.ErrNotFound
	}

	const ins = `
		INSERT INTO oauth_tokens (` + tokenCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	t := replacement
	if _, err := tx.Exec(ctx, ins,
		t.ID, t.AccessToken, t.RefreshToken, t.ClientID, t.UserID, t.Scope,
		t.TokenType, t.ExpiresAt, t.RefreshExpiresAt, t.Revoked, t.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict
		}
		return err
	}
	return tx.Commit(ctx)
}

// DeleteExpired removes records whose access token has expired and whose
// refresh token (if any) has also expired.
func (r *tokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `
		DELETE FROM oauth_tokens
		WHERE expires_at < $1 AND (refresh_expires_at IS NULL OR refresh_expires_at < $1)`
	ct, err := r.pool.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func scanToken(row pgx.Row) (*core.Token, error) {
	var t core.Token
	err := row.Scan(&t.ID, &t.AccessToken, &t.RefreshToken, &t.ClientID, &t.UserID, &t.Scope,
		&t.TokenType, &t.ExpiresAt, &t.RefreshExpiresAt, &t.Revoked, &t.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &t, nil
}
