package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/trackshift/internal/shared"
)

const (
	// MaxConvertImages is the largest number of screenshots accepted in one conversion.
	MaxConvertImages = 5

	// DefaultPlaylistDescription is attached to every playlist created on Spotify.
	DefaultPlaylistDescription = "Créée avec TrackShift"

	spotifyTrackURIPrefix    = "spotify:track:"
	spotifyPlaylistURIPrefix = "spotify:playlist:"
	spotifyPlaylistWebPrefix = "https://open.spotify.com/playlist/"
)

// ConvertRequest is one submission to the recognition backend.
type ConvertRequest struct {
	ToPlatform Platform
	Region     string
	Images     [][]byte
}

// Validate checks the request and normalizes Region to upper case.
func (r *ConvertRequest) Validate() error {
	if !r.ToPlatform.Valid() {
		return fmt.Errorf("%w: unknown destination platform %q", shared.ErrInvalidInput, r.ToPlatform)
	}

	region := strings.ToUpper(strings.TrimSpace(r.Region))
	if len(region) != 2 || region[0] < 'A' || region[0] > 'Z' || region[1] < 'A' || region[1] > 'Z' {
		return fmt.Errorf("%w: region must be a two-letter country code, got %q", shared.ErrInvalidInput, r.Region)
	}
	r.Region = region

	if len(r.Images) == 0 || len(r.Images) > MaxConvertImages {
		return fmt.Errorf("%w: expected 1 to %d images, got %d", shared.ErrInvalidInput, MaxConvertImages, len(r.Images))
	}
	for i, img := range r.Images {
		if len(img) == 0 {
			return fmt.Errorf("%w: image %d is empty", shared.ErrInvalidInput, i)
		}
	}
	return nil
}

// ConvertedTrack is a track recognized by the backend.
//
// PlatformID is the destination platform's native identifier.
type ConvertedTrack struct {
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl"`
	PlatformID   string `json:"platformId"`
}

// SpotifyURI returns the spotify:track: URI built from PlatformID.
func (t ConvertedTrack) SpotifyURI() string {
	return SpotifyTrackURI(t.PlatformID)
}

// SpotifyTrackURI returns spotify:track:<id>.
func SpotifyTrackURI(id string) string {
	return spotifyTrackURIPrefix + id
}

// SpotifyTrackID extracts the ID from a spotify:track: URI.
func SpotifyTrackID(uri string) (string, bool) {
	id, ok := strings.CutPrefix(uri, spotifyTrackURIPrefix)
	if !ok || id == "" || strings.Contains(id, ":") {
		return "", false
	}
	return id, true
}

// SpotifyTokenPair holds the Spotify OAuth credentials.
//
// An empty RefreshToken means none is held.
type SpotifyTokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// SpotifyUser is the subset of the Spotify profile needed to create playlists.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

// SpotifyPlaylist is a playlist created on Spotify.
type SpotifyPlaylist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ExternalURL string `json:"external_url"`
}

// DeepLink returns the spotify:playlist: URI for the playlist's web URL, or the URL itself when it is not a Spotify playlist link.
func (p SpotifyPlaylist) DeepLink() string {
	return SpotifyPlaylistDeepLink(p.ExternalURL)
}

// SpotifyPlaylistDeepLink rewrites https://open.spotify.com/playlist/<id> to spotify:playlist:<id>.
func SpotifyPlaylistDeepLink(webURL string) string {
	rest, ok := strings.CutPrefix(webURL, spotifyPlaylistWebPrefix)
	if !ok || rest == "" {
		return webURL
	}
	if i := strings.IndexAny(rest, "?#/"); i >= 0 {
		rest = rest[:i]
	}
	return spotifyPlaylistURIPrefix + rest
}

// DefaultPlaylistName names a playlist after the day it was created.
func DefaultPlaylistName(t time.Time) string {
	return "TrackShift " + t.Format("2 Jan 2006")
}

// UserIdentity is the account signed in to the identity backend.
type UserIdentity struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Anonymous bool   `json:"anonymous"`
	Provider  string `json:"provider,omitempty"`
}

// StoredToken is the persisted form of a service credential.
type StoredToken struct {
	Service      string
	AccessToken  string
	RefreshToken string
	Subject      string
	Expiry       time.Time
	UpdatedAt    time.Time
}
