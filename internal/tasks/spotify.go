package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackshift/internal/models"
	"github.com/desertthunder/trackshift/internal/shared"
)

// SpotifyClient is the part of the Spotify client the playlist flows need.
type SpotifyClient interface {
	BuildAuthorizationURL() string
	IsAuthenticated() bool
	ExchangeCodeForToken(ctx context.Context, code string) (models.SpotifyTokenPair, error)
	GetCurrentUser(ctx context.Context) (*models.SpotifyUser, error)
	CreatePlaylist(ctx context.Context, userID, name, description string) (*models.SpotifyPlaylist, error)
	AddTracksToPlaylist(ctx context.Context, playlistID string, uris []string) error
}

// SpotifyTasks runs Spotify authorization and playlist creation.
type SpotifyTasks struct {
	client SpotifyClient
	logger *log.Logger
	now    func() time.Time
}

func NewSpotifyTasks(client SpotifyClient, logger *log.Logger) *SpotifyTasks {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SpotifyTasks{client: client, logger: shared.WithLogger(logger, "tasks", "spotify"), now: time.Now}
}

// AuthURL returns the authorization URL the user opens to grant access.
func (s *SpotifyTasks) AuthURL() string {
	return s.client.BuildAuthorizationURL()
}

func (s *SpotifyTasks) IsAuthenticated() bool {
	return s.client.IsAuthenticated()
}

// HandleCallback exchanges the authorization code delivered to the redirect URI.
func (s *SpotifyTasks) HandleCallback(ctx context.Context, code string) bool {
	if _, err := s.client.ExchangeCodeForToken(ctx, code); err != nil {
		s.logger.Error("authorization failed", "kind", shared.Kind(err), "error", err)
		return false
	}
	s.logger.Info("spotify authorized")
	return true
}

// CreatePlaylistWithTracks looks up the current user, creates a private playlist and adds the tracks.
//
// Each step runs only when the previous one succeeded, and the first failure is returned as is.
// A partial track insertion returns the playlist URL together with the [shared.PartialFailureError].
// Every call creates a new playlist.
func (s *SpotifyTasks) CreatePlaylistWithTracks(ctx context.Context, name string, trackIDs []string, progress chan<- ProgressUpdate) (string, error) {
	uris := make([]string, len(trackIDs))
	for i, id := range trackIDs {
		uris[i] = models.SpotifyTrackURI(id)
	}

	sendProgress(progress, fetchUserUpdate())
	user, err := s.client.GetCurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get current user: %w", err)
	}

	sendProgress(progress, createPlaylistUpdate(user, name))
	playlist, err := s.client.CreatePlaylist(ctx, user.ID, name, models.DefaultPlaylistDescription)
	if err != nil {
		return "", fmt.Errorf("failed to create playlist: %w", err)
	}

	sendProgress(progress, addTracksUpdate(playlist, len(uris)))
	if err := s.client.AddTracksToPlaylist(ctx, playlist.ID, uris); err != nil {
		if errors.Is(err, shared.ErrPartialFailure) {
			return playlist.ExternalURL, fmt.Errorf("failed to add tracks: %w", err)
		}
		return "", fmt.Errorf("failed to add tracks: %w", err)
	}

	sendProgress(progress, completedUpdate(playlist))
	return playlist.ExternalURL, nil
}

// ExportTracks creates a playlist from converted tracks and returns its web URL.
//
// Tracks without a platform ID are skipped. A blank name falls back to [models.DefaultPlaylistName].
// When only some tracks could be added the playlist URL is still returned, with ok false.
func (s *SpotifyTasks) ExportTracks(ctx context.Context, name string, tracks []models.ConvertedTrack) (string, bool) {
	ids := make([]string, 0, len(tracks))
	for _, t := range tracks {
		if t.PlatformID != "" {
			ids = append(ids, t.PlatformID)
		}
	}
	if skipped := len(tracks) - len(ids); skipped > 0 {
		s.logger.Warn("skipping tracks without a spotify id", "skipped", skipped)
	}
	if len(ids) == 0 {
		s.logger.Error("no tracks to export", "kind", "input")
		return "", false
	}

	if strings.TrimSpace(name) == "" {
		name = models.DefaultPlaylistName(s.now())
	}

	url, err := s.CreatePlaylistWithTracks(ctx, name, ids, nil)
	if err != nil {
		s.logger.Error("playlist export failed", "name", name, "kind", shared.Kind(err), "error", err)
		if errors.Is(err, shared.ErrPartialFailure) {
			return url, false
		}
		return "", false
	}
	s.logger.Info("playlist exported", "name", name, "tracks", len(ids), "url", url)
	return url, true
}

// DestinationLink returns the link to open once a conversion to platform is done.
//
// For Spotify with a created playlist this is the playlist URI; otherwise the platform app scheme.
func DestinationLink(platform models.Platform, playlistURL string) string {
	if platform == models.PlatformSpotify && playlistURL != "" {
		return models.SpotifyPlaylistDeepLink(playlistURL)
	}
	return platform.AppScheme()
}
