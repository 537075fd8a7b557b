// Spotify OAuth client and Web API calls
//
// API reference: https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackshift/internal/models"
	"github.com/desertthunder/trackshift/internal/shared"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyBaseURL = "https://api.spotify.com/v1/"

	// DefaultRedirectURI is the app callback registered with Spotify.
	DefaultRedirectURI = "trackshift://spotify-callback"

	// MaxTracksPerRequest is the Web API limit for one add-items call.
	MaxTracksPerRequest = 100
)

// SpotifyScopes are the permissions requested during authorization.
var SpotifyScopes = []string{
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopePlaylistModifyPrivate,
}

// SpotifyService runs the authorization code flow and the playlist calls used by TrackShift.
//
// The token pair is written only by [SpotifyService.ExchangeCodeForToken] and
// [SpotifyService.RefreshAccessToken]; every other call reads it.
type SpotifyService struct {
	config     *oauth2.Config
	tokens     tokenCell
	httpClient *http.Client
	apiBaseURL string
	limiter    *rate.Limiter
	store      TokenStore
	logger     *log.Logger
}

// SpotifyOption configures a [SpotifyService].
type SpotifyOption func(*SpotifyService)

// WithHTTPClient sets the client used for token and Web API requests.
func WithHTTPClient(client *http.Client) SpotifyOption {
	return func(s *SpotifyService) { s.httpClient = client }
}

// WithEndpoints overrides the accounts service URLs.
func WithEndpoints(authURL, tokenURL string) SpotifyOption {
	return func(s *SpotifyService) {
		s.config.Endpoint.AuthURL = authURL
		s.config.Endpoint.TokenURL = tokenURL
	}
}

// WithAPIBaseURL overrides the Web API base URL.
func WithAPIBaseURL(baseURL string) SpotifyOption {
	return func(s *SpotifyService) {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		s.apiBaseURL = baseURL
	}
}

// WithRateLimiter throttles Web API requests.
func WithRateLimiter(l *rate.Limiter) SpotifyOption {
	return func(s *SpotifyService) { s.limiter = l }
}

// WithTokenStore persists the token pair after every successful exchange or refresh.
func WithTokenStore(store TokenStore) SpotifyOption {
	return func(s *SpotifyService) { s.store = store }
}

func WithSpotifyLogger(l *log.Logger) SpotifyOption {
	return func(s *SpotifyService) { s.logger = l }
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
//
// Expects client_id and client_secret; redirect_uri defaults to [DefaultRedirectURI].
func NewSpotifyService(credentials map[string]string, opts ...SpotifyOption) (*SpotifyService, error) {
	clientID := credentials["client_id"]
	if clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret := credentials["client_secret"]
	if clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := credentials["redirect_uri"]
	if redirectURI == "" {
		redirectURI = DefaultRedirectURI
	}

	s := &SpotifyService{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       SpotifyScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   spotifyauth.AuthURL,
				TokenURL:  spotifyauth.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiBaseURL: spotifyBaseURL,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.httpClient == nil {
		s.httpClient = shared.NewHTTPClient(0)
	}
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if s.logger == nil {
		s.logger = shared.NewLogger(nil)
	}
	s.logger = shared.WithLogger(s.logger, "service", "spotify")

	return s, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// RedirectURI returns the configured OAuth callback.
func (s *SpotifyService) RedirectURI() string {
	return s.config.RedirectURL
}

// BuildAuthorizationURL returns the authorize URL with client_id, response_type=code, redirect_uri and scope.
//
// It performs no I/O and does not change state.
func (s *SpotifyService) BuildAuthorizationURL() string {
	return s.config.AuthCodeURL("")
}

// AuthorizationURL is [SpotifyService.BuildAuthorizationURL] with a CSRF state parameter.
func (s *SpotifyService) AuthorizationURL(state string) string {
	return s.config.AuthCodeURL(state)
}

// IsAuthenticated reports whether an access token is held.
func (s *SpotifyService) IsAuthenticated() bool {
	_, ok := s.tokens.Load()
	return ok
}

// Expired reports whether the held access token has a known expiry in the past.
func (s *SpotifyService) Expired() bool {
	pair, ok := s.tokens.Load()
	return ok && tokenExpired(pair, time.Now())
}

// Tokens returns a copy of the held pair.
func (s *SpotifyService) Tokens() (models.SpotifyTokenPair, bool) {
	return s.tokens.Load()
}

// oauthContext carries the service's HTTP client into the oauth2 package.
func (s *SpotifyService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// ExchangeCodeForToken trades an authorization code for a token pair and stores it.
//
// On failure the held pair is left untouched.
func (s *SpotifyService) ExchangeCodeForToken(ctx context.Context, code string) (models.SpotifyTokenPair, error) {
	if strings.TrimSpace(code) == "" {
		return models.SpotifyTokenPair{}, fmt.Errorf("%w: empty authorization code", shared.ErrInvalidInput)
	}

	s.tokens.writeMu.Lock()
	defer s.tokens.writeMu.Unlock()

	tok, err := s.config.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		s.logger.Warn("code exchange failed", "error", err)
		return models.SpotifyTokenPair{}, tokenError("failed to exchange authorization code", err)
	}

	pair := models.SpotifyTokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	s.tokens.store(pair)
	s.persist(ctx, pair)

	s.logger.Info("authorization code exchanged", "has_refresh_token", pair.RefreshToken != "")
	return pair, nil
}

// RefreshAccessToken obtains a new access token with the held refresh token.
//
// With no refresh token it fails with [shared.ErrNoRefreshToken] before any request is made.
// The refresh token is replaced only when Spotify returns a new one.
func (s *SpotifyService) RefreshAccessToken(ctx context.Context) (models.SpotifyTokenPair, error) {
	s.tokens.writeMu.Lock()
	defer s.tokens.writeMu.Unlock()

	current, _ := s.tokens.Load()
	if current.RefreshToken == "" {
		return models.SpotifyTokenPair{}, shared.ErrNoRefreshToken
	}

	src := s.config.TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: current.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		s.logger.Warn("token refresh failed", "error", err)
		return models.SpotifyTokenPair{}, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, tokenError("refresh request rejected", err))
	}

	next := models.SpotifyTokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: current.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	s.tokens.store(next)
	s.persist(ctx, next)

	s.logger.Debug("access token refreshed", "rotated", next.RefreshToken != current.RefreshToken)
	return next, nil
}

// Restore loads a previously persisted pair from the token store, if any.
func (s *SpotifyService) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	stored, err := s.store.Load(ctx, SpotifyServiceName)
	if errors.Is(err, shared.ErrTokenNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to restore spotify tokens: %w", err)
	}

	s.tokens.writeMu.Lock()
	defer s.tokens.writeMu.Unlock()
	s.tokens.store(models.SpotifyTokenPair{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		Expiry:       stored.Expiry,
	})
	return nil
}

// SignOut forgets the held pair and removes it from the token store.
func (s *SpotifyService) SignOut(ctx context.Context) error {
	s.tokens.writeMu.Lock()
	defer s.tokens.writeMu.Unlock()

	s.tokens.store(models.SpotifyTokenPair{})
	if s.store == nil {
		return nil
	}
	if err := s.store.Delete(ctx, SpotifyServiceName); err != nil && !errors.Is(err, shared.ErrTokenNotFound) {
		return fmt.Errorf("failed to delete spotify tokens: %w", err)
	}
	return nil
}

// persist writes pair to the token store. Failures are logged; the in-memory pair stays authoritative.
func (s *SpotifyService) persist(ctx context.Context, pair models.SpotifyTokenPair) {
	if s.store == nil {
		return
	}
	err := s.store.Save(ctx, models.StoredToken{
		Service:      SpotifyServiceName,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Expiry:       pair.Expiry,
	})
	if err != nil {
		s.logger.Warn("failed to persist spotify tokens", "error", err)
	}
}

// client builds a Web API client bound to the current access token.
//
// The token is sent as a static bearer; an expired token surfaces as [shared.ErrTokenExpired].
func (s *SpotifyService) client(ctx context.Context) (*spotify.Client, error) {
	pair, ok := s.tokens.Load()
	if !ok {
		return nil, shared.ErrNotAuthenticated
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: pair.AccessToken, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(s.oauthContext(ctx), src)
	httpClient.Timeout = s.httpClient.Timeout

	return spotify.New(httpClient, spotify.WithBaseURL(s.apiBaseURL)), nil
}

func (s *SpotifyService) wait(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", shared.ErrTimeout, err)
	}
	return nil
}

// GetCurrentUser retrieves the profile of the authenticated user.
func (s *SpotifyService) GetCurrentUser(ctx context.Context) (*models.SpotifyUser, error) {
	client, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	user, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, apiError("failed to get current user", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: profile without an id", shared.ErrProtocol)
	}

	return &models.SpotifyUser{ID: user.ID, DisplayName: user.DisplayName, Email: user.Email}, nil
}

// CreatePlaylist creates a new private playlist for userID. A new playlist is created on every call.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, userID, name, description string) (*models.SpotifyPlaylist, error) {
	if userID == "" || strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: user id and playlist name are required", shared.ErrInvalidInput)
	}

	client, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	playlist, err := client.CreatePlaylistForUser(ctx, userID, name, description, false, false)
	if err != nil {
		return nil, apiError("failed to create playlist", err)
	}
	if playlist.ID == "" {
		return nil, fmt.Errorf("%w: playlist without an id", shared.ErrProtocol)
	}

	s.logger.Info("playlist created", "id", playlist.ID, "name", playlist.Name)
	return &models.SpotifyPlaylist{
		ID:          string(playlist.ID),
		Name:        playlist.Name,
		ExternalURL: playlist.ExternalURLs["spotify"],
	}, nil
}

// AddTracksToPlaylist appends spotify:track: URIs to a playlist in order, [MaxTracksPerRequest] at a time.
//
// Chunks are sent sequentially and the first failure stops the loop. Earlier chunks are not rolled back;
// once one has succeeded the error is a [*shared.PartialFailureError].
func (s *SpotifyService) AddTracksToPlaylist(ctx context.Context, playlistID string, uris []string) error {
	if playlistID == "" {
		return fmt.Errorf("%w: playlist id is required", shared.ErrInvalidInput)
	}

	ids := make([]spotify.ID, 0, len(uris))
	for _, uri := range uris {
		id, ok := models.SpotifyTrackID(uri)
		if !ok {
			return fmt.Errorf("%w: not a spotify track uri: %q", shared.ErrInvalidInput, uri)
		}
		ids = append(ids, spotify.ID(id))
	}
	if len(ids) == 0 {
		return nil
	}

	client, err := s.client(ctx)
	if err != nil {
		return err
	}

	for start := 0; start < len(ids); start += MaxTracksPerRequest {
		end := min(start+MaxTracksPerRequest, len(ids))

		err := s.wait(ctx)
		if err == nil {
			_, err = client.AddTracksToPlaylist(ctx, spotify.ID(playlistID), ids[start:end]...)
			if err != nil {
				err = apiError("failed to add tracks", err)
			}
		}
		if err != nil {
			s.logger.Warn("track chunk failed", "playlist", playlistID, "offset", start, "error", err)
			if start == 0 {
				return err
			}
			return &shared.PartialFailureError{Added: start, Total: len(ids), Err: err}
		}

		s.logger.Debug("track chunk added", "playlist", playlistID, "offset", start, "count", end-start)
	}

	return nil
}

// tokenError classifies a failure from the accounts service.
func tokenError(msg string, err error) error {
	var re *oauth2.RetrieveError
	switch {
	case errors.As(err, &re):
		if re.Response != nil && re.Response.StatusCode >= 500 {
			return fmt.Errorf("%w: %s: %v", shared.ErrServiceUnavailable, msg, err)
		}
		return fmt.Errorf("%w: %s: %v", shared.ErrAuthFailed, msg, err)
	case isTransportError(err):
		return fmt.Errorf("%s: %w", msg, networkError(err))
	default:
		return fmt.Errorf("%w: %s: %v", shared.ErrProtocol, msg, err)
	}
}

// apiError classifies a failure from the Web API.
func apiError(msg string, err error) error {
	var se spotify.Error
	switch {
	case errors.As(err, &se):
		switch {
		case se.Status == http.StatusUnauthorized:
			return fmt.Errorf("%w: %s: %v", shared.ErrTokenExpired, msg, err)
		case se.Status == http.StatusForbidden:
			return fmt.Errorf("%w: %s: %v", shared.ErrAuthFailed, msg, err)
		case se.Status >= 500:
			return fmt.Errorf("%w: %s: %v", shared.ErrServiceUnavailable, msg, err)
		default:
			return fmt.Errorf("%w: %s: %v", shared.ErrAPIRequest, msg, err)
		}
	case isTransportError(err):
		return fmt.Errorf("%s: %w", msg, networkError(err))
	case strings.Contains(err.Error(), "HTTP "):
		return fmt.Errorf("%w: %s: %v", shared.ErrAPIRequest, msg, err)
	default:
		return fmt.Errorf("%w: %s: %v", shared.ErrProtocol, msg, err)
	}
}

// tokenExpired reports whether the pair has an expiry that has passed.
func tokenExpired(pair models.SpotifyTokenPair, now time.Time) bool {
	return !pair.Expiry.IsZero() && !now.Before(pair.Expiry)
}
