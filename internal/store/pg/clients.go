package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grantorhq/grantor/internal/store/core"
)

type clientRepo struct{ pool *pgxpool.Pool }

func (r *clientRepo) Create(ctx context.Context, c *core.Client) error {
	const q = `
		INSERT INTO oauth_clients
			(id, client_id, secret_hash, name, redirect_uris, scopes, grant_types, confidential, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, q,
		c.ID, c.ClientID, c.SecretHash, c.Name,
		c.RedirectURIs, c.Scopes, c.GrantTypes,
		c.Confidential, c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return core.ErrConflict
	}
	return err
}

func (r *clientRepo) GetByClientID(ctx context.Context, clientID string) (*core.Client, error) {
	const q = `
		SELECT id, client_id, secret_hash, name, redirect_uris, scopes, grant_types, confidential, created_at, updated_at
		FROM oauth_clients WHERE client_id = $1`
	row := r.pool.QueryRow(ctx, q, clientID)
	c, err := scanClient(row)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return c, nil
}

func (r *clientRepo) Update(ctx context.Context, c *core.Client) error {
	const q = `
		UPDATE oauth_clients
		SET name = $2, redirect_uris = $3, scopes = $4, grant_types = $5, updated_at = NOW()
		WHERE client_id = $1`
	ct, err := r.pool.Exec(ctx, q, c.ClientID, c.Name, c.RedirectURIs, c.Scopes, c.GrantTypes)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *clientRepo) Delete(ctx context.Context, clientID string) (bool, error) {
	ct, err := r.pool.Exec(ctx, `DELETE FROM oauth_clients WHERE client_id = $1`, clientID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *clientRepo) List(ctx context.Context) ([]core.Client, error) {
	const q = `
		SELECT id, client_id, secret_hash, name, redirect_uris, scopes, grant_types, confidential, created_at, updated_at
		FROM oauth_clients ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanClient(row pgx.Row) (*core.Client, error) {
	var c core.Client
	err := row.Scan(&c.ID, &c.ClientID, &c.SecretHash, &c.Name,
		&c.RedirectURIs, &c.Scopes, &c.GrantTypes,
		&c.Confidential, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
