package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grantorhq/grantor/internal/store/core"
)

type codeRepo struct{ pool *pgxpool.Pool }

func (r *codeRepo) Create(ctx context.Context, ac *core.AuthorizationCode) error {
	const q = `
		INSERT INTO oauth_authorization_codes
			(id, code, client_id, user_id, redirect_uri, scope, code_challenge, challenge_method, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.pool.Exec(ctx, q,
		ac.ID, ac.Code, ac.ClientID, ac.UserID, ac.RedirectURI, ac.Scope,
		ac.CodeChallenge, ac.ChallengeMethod, ac.ExpiresAt, ac.Used, ac.CreatedAt)
	if isUniqueViolation(err) {
		return core.ErrConflict
	}
	return err
}

func (r *codeRepo) GetByCode(ctx context.Context, code string) (*core.AuthorizationCode, error) {
	const q = `
		SELECT id, code, client_id, user_id, redirect_uri, scope, code_challenge, challenge_method, expires_at, used, created_at
		FROM oauth_authorization_codes WHERE code = $1`
	var ac core.AuthorizationCode
	err := r.pool.QueryRow(ctx, q, code).Scan(
		&ac.ID, &ac.Code, &ac.ClientID, &ac.UserID, &ac.RedirectURI, &ac.Scope,
		&ac.CodeChallenge, &ac.ChallengeMethod, &ac.ExpiresAt, &ac.Used, &ac.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &ac, nil
}

// Consume flips used from false to true. Under concurrency the WHERE clause
// guarantees at most one caller sees RowsAffected == 1.
func (r *codeRepo) Consume(ctx context.Context, code string) (bool, error) {
	const q = `UPDATE oauth_authorization_codes SET used = TRUE WHERE code = $1 AND used = FALSE`
	ct, err := r.pool.Exec(ctx, q, code)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *codeRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ct, err := r.pool.Exec(ctx, `DELETE FROM oauth_authorization_codes WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
