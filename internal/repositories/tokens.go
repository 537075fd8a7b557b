package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/trackshift/internal/models"
	"github.com/desertthunder/trackshift/internal/shared"
)

// TokenRepository persists one credential per service in the tokens table.
type TokenRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewTokenRepository creates a new [TokenRepository] with the given database connection
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db, now: time.Now}
}

// Load returns the stored credential for service, or [shared.ErrTokenNotFound].
func (r *TokenRepository) Load(ctx context.Context, service string) (*models.StoredToken, error) {
	query := `
		SELECT service, access_token, refresh_token, subject, expires_at, updated_at
		FROM tokens
		WHERE service = ?
	`

	var (
		token     models.StoredToken
		expiresAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, service).Scan(
		&token.Service, &token.AccessToken, &token.RefreshToken, &token.Subject, &expiresAt, &token.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrTokenNotFound, service)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query token: %w", err)
	}

	if expiresAt.Valid {
		token.Expiry = expiresAt.Time
	}
	return &token, nil
}

// Save inserts or replaces the credential for token.Service.
func (r *TokenRepository) Save(ctx context.Context, token models.StoredToken) error {
	if token.Service == "" || token.AccessToken == "" {
		return fmt.Errorf("%w: token requires a service and an access token", shared.ErrInvalidInput)
	}

	now := r.now().UTC()
	var expiresAt sql.NullTime
	if !token.Expiry.IsZero() {
		expiresAt = sql.NullTime{Time: token.Expiry.UTC(), Valid: true}
	}

	query := `
		INSERT INTO tokens (service, access_token, refresh_token, subject, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(service) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			subject = excluded.subject,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		token.Service, token.AccessToken, token.RefreshToken, token.Subject, expiresAt, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Delete removes the credential for service.
func (r *TokenRepository) Delete(ctx context.Context, service string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM tokens WHERE service = ?", service)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrTokenNotFound, service)
	}
	return nil
}

// Services lists the services that currently have a stored credential.
func (r *TokenRepository) Services(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT service FROM tokens ORDER BY service")
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var services []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}
