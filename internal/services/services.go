// package services implements the TrackShift backend clients
//
// Identity (GoTrue), Spotify (OAuth + Web API), conversion (recognition backend)
package services

import (
	"context"

	"github.com/desertthunder/trackshift/internal/models"
)

// Service names used as keys in the [TokenStore].
const (
	IdentityServiceName = "identity"
	SpotifyServiceName  = "spotify"
)

// TokenStore persists one credential per service so a restarted process can resume.
//
// Load returns an error wrapping [shared.ErrTokenNotFound] when nothing is stored.
type TokenStore interface {
	Load(ctx context.Context, service string) (*models.StoredToken, error)
	Save(ctx context.Context, token models.StoredToken) error
	Delete(ctx context.Context, service string) error
}
