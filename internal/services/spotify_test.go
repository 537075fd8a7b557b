package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/trackshift/internal/models"
	"github.com/desertthunder/trackshift/internal/shared"
	tu "github.com/desertthunder/trackshift/internal/testing"
	"golang.org/x/time/rate"
)

// spotifyStub serves the accounts token endpoint and the Web API paths used by [SpotifyService].
type spotifyStub struct {
	mu          sync.Mutex
	chunkSizes  []int
	firstURIs   []string
	failChunk   int // 1-based chunk number that fails; 0 never fails
	meStatus    int
	rotateToken bool
	denyRefresh bool
	lastForm    url.Values
	lastCreate  map[string]any
}

func (s *spotifyStub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		s.mu.Lock()
		s.lastForm = r.PostForm
		s.mu.Unlock()

		if r.PostForm.Get("client_id") != "test_client_id" || r.PostForm.Get("client_secret") != "test_client_secret" {
			tu.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
			return
		}

		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if r.PostForm.Get("code") != "abc123" {
				tu.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
				return
			}
			tu.WriteJSON(w, http.StatusOK, map[string]any{
				"access_token": "AT1", "token_type": "Bearer", "refresh_token": "RT1", "expires_in": 3600,
			})
		case "refresh_token":
			if s.denyRefresh {
				tu.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
				return
			}
			body := map[string]any{"access_token": "AT2", "token_type": "Bearer", "expires_in": 3600}
			if s.rotateToken {
				body["refresh_token"] = "RT2"
			}
			tu.WriteJSON(w, http.StatusOK, body)
		default:
			tu.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		}
	})

	mux.HandleFunc("GET /v1/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer AT1" {
			t.Errorf("expected bearer AT1, got %q", r.Header.Get("Authorization"))
		}
		if s.meStatus != 0 {
			tu.WriteJSON(w, s.meStatus, map[string]any{"error": map[string]any{"status": s.meStatus, "message": "nope"}})
			return
		}
		tu.WriteJSON(w, http.StatusOK, map[string]any{"id": "user-1", "display_name": "Test User", "email": "t@example.com"})
	})

	mux.HandleFunc("POST /v1/users/{user}/playlists", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.lastCreate = body
		s.mu.Unlock()

		tu.WriteJSON(w, http.StatusCreated, map[string]any{
			"id":            "pl1",
			"name":          body["name"],
			"external_urls": map[string]string{"spotify": "https://open.spotify.com/playlist/pl1"},
		})
	})

	mux.HandleFunc("POST /v1/playlists/{id}/tracks", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			URIs []string `json:"uris"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		s.mu.Lock()
		s.chunkSizes = append(s.chunkSizes, len(body.URIs))
		if len(body.URIs) > 0 {
			s.firstURIs = append(s.firstURIs, body.URIs[0])
		}
		chunk := len(s.chunkSizes)
		s.mu.Unlock()

		if chunk == s.failChunk {
			tu.WriteJSON(w, http.StatusBadGateway, map[string]any{"error": map[string]any{"status": 502, "message": "bad gateway"}})
			return
		}
		tu.WriteJSON(w, http.StatusCreated, map[string]string{"snapshot_id": "snap"})
	})

	return mux
}

func newTestSpotify(t *testing.T, stub *spotifyStub, opts ...SpotifyOption) (*SpotifyService, *tu.CountingHandler) {
	t.Helper()

	counter := tu.NewCountingHandler(stub.handler(t))
	srv := httptest.NewServer(counter)
	t.Cleanup(srv.Close)

	base := []SpotifyOption{
		WithHTTPClient(srv.Client()),
		WithEndpoints(srv.URL+"/authorize", srv.URL+"/api/token"),
		WithAPIBaseURL(srv.URL + "/v1"),
		WithSpotifyLogger(shared.NewLogger(io.Discard)),
	}

	credentials := map[string]string{"client_id": "test_client_id", "client_secret": "test_client_secret"}
	s, err := NewSpotifyService(credentials, append(base, opts...)...)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return s, counter
}

// authenticated restores AT1/RT1 through a token store.
func authenticated(t *testing.T, s *SpotifyService) {
	t.Helper()
	s.store = tu.NewMemoryTokenStore(models.StoredToken{Service: SpotifyServiceName, AccessToken: "AT1", RefreshToken: "RT1"})
	if err := s.Restore(context.Background()); err != nil {
		t.Fatalf("failed to restore tokens: %v", err)
	}
}

func trackURIs(n int) []string {
	uris := make([]string, n)
	for i := range uris {
		uris[i] = models.SpotifyTrackURI(fmt.Sprintf("track%04d", i))
	}
	return uris
}

func TestSpotifyService(t *testing.T) {
	ctx := context.Background()

	t.Run("NewSpotifyService", func(t *testing.T) {
		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewSpotifyService(map[string]string{"client_secret": "s"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Missing Client Secret", func(t *testing.T) {
			_, err := NewSpotifyService(map[string]string{"client_id": "c"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Default Redirect URI", func(t *testing.T) {
			srv, err := NewSpotifyService(map[string]string{"client_id": "c", "client_secret": "s"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.RedirectURI() != DefaultRedirectURI {
				t.Errorf("expected %s, got %s", DefaultRedirectURI, srv.RedirectURI())
			}
			if srv.IsAuthenticated() {
				t.Error("new service should not be authenticated")
			}
		})
	})

	t.Run("BuildAuthorizationURL", func(t *testing.T) {
		srv, _ := NewSpotifyService(map[string]string{"client_id": "test_client_id", "client_secret": "s"})

		raw := srv.BuildAuthorizationURL()
		if raw != srv.BuildAuthorizationURL() {
			t.Error("expected a deterministic URL")
		}

		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("invalid URL: %v", err)
		}
		if u.Host != "accounts.spotify.com" || u.Path != "/authorize" {
			t.Errorf("unexpected endpoint %s%s", u.Host, u.Path)
		}

		q := u.Query()
		if q.Get("client_id") != "test_client_id" {
			t.Errorf("unexpected client_id %q", q.Get("client_id"))
		}
		if q.Get("response_type") != "code" {
			t.Errorf("unexpected response_type %q", q.Get("response_type"))
		}
		if q.Get("redirect_uri") != "trackshift://spotify-callback" {
			t.Errorf("unexpected redirect_uri %q", q.Get("redirect_uri"))
		}
		if q.Get("scope") != "playlist-modify-public playlist-modify-private" {
			t.Errorf("unexpected scope %q", q.Get("scope"))
		}
		if strings.Contains(raw, "trackshift://") {
			t.Error("redirect_uri should be URL-encoded")
		}

		withState, _ := url.Parse(srv.AuthorizationURL("xyz"))
		if withState.Query().Get("state") != "xyz" {
			t.Error("expected state parameter")
		}
	})

	t.Run("ExchangeCodeForToken", func(t *testing.T) {
		t.Run("stores both tokens", func(t *testing.T) {
			stub := &spotifyStub{}
			store := tu.NewMemoryTokenStore()
			s, _ := newTestSpotify(t, stub, WithTokenStore(store))

			pair, err := s.ExchangeCodeForToken(ctx, "abc123")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if pair.AccessToken != "AT1" || pair.RefreshToken != "RT1" {
				t.Errorf("unexpected pair %+v", pair)
			}
			if !s.IsAuthenticated() {
				t.Error("expected IsAuthenticated after exchange")
			}
			if stub.lastForm.Get("redirect_uri") != DefaultRedirectURI {
				t.Errorf("expected redirect_uri in form, got %q", stub.lastForm.Get("redirect_uri"))
			}

			saved, ok := store.Get(SpotifyServiceName)
			if !ok || saved.AccessToken != "AT1" || saved.RefreshToken != "RT1" {
				t.Errorf("expected persisted tokens, got %+v", saved)
			}
		})

		t.Run("rejected code leaves state unchanged", func(t *testing.T) {
			s, _ := newTestSpotify(t, &spotifyStub{})

			_, err := s.ExchangeCodeForToken(ctx, "wrong")
			if !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", err)
			}
			if s.IsAuthenticated() {
				t.Error("failed exchange must not authenticate")
			}
		})

		t.Run("empty code is rejected without a request", func(t *testing.T) {
			s, counter := newTestSpotify(t, &spotifyStub{})

			if _, err := s.ExchangeCodeForToken(ctx, " "); !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
			if counter.Total() != 0 {
				t.Errorf("expected no requests, got %d", counter.Total())
			}
		})

		t.Run("network failure", func(t *testing.T) {
			s, _ := newTestSpotify(t, &spotifyStub{})
			s.config.Endpoint.TokenURL = "http://127.0.0.1:1/api/token"

			if _, err := s.ExchangeCodeForToken(ctx, "abc123"); !errors.Is(err, shared.ErrNetwork) {
				t.Errorf("expected ErrNetwork, got %v", err)
			}
		})
	})

	t.Run("RefreshAccessToken", func(t *testing.T) {
		t.Run("no refresh token makes no request", func(t *testing.T) {
			s, counter := newTestSpotify(t, &spotifyStub{})

			_, err := s.RefreshAccessToken(ctx)
			if !errors.Is(err, shared.ErrNoRefreshToken) {
				t.Errorf("expected ErrNoRefreshToken, got %v", err)
			}
			if counter.Total() != 0 {
				t.Errorf("expected 0 requests, got %d", counter.Total())
			}
		})

		t.Run("keeps the refresh token when none is returned", func(t *testing.T) {
			s, _ := newTestSpotify(t, &spotifyStub{})

			if _, err := s.ExchangeCodeForToken(ctx, "abc123"); err != nil {
				t.Fatalf("exchange failed: %v", err)
			}
			if _, err := s.RefreshAccessToken(ctx); err != nil {
				t.Fatalf("refresh failed: %v", err)
			}

			pair, ok := s.Tokens()
			if !ok || pair.AccessToken != "AT2" || pair.RefreshToken != "RT1" {
				t.Errorf("expected {AT2 RT1}, got %+v", pair)
			}
		})

		t.Run("replaces a rotated refresh token", func(t *testing.T) {
			s, _ := newTestSpotify(t, &spotifyStub{rotateToken: true})
			authenticated(t, s)

			pair, err := s.RefreshAccessToken(ctx)
			if err != nil {
				t.Fatalf("refresh failed: %v", err)
			}
			if pair.RefreshToken != "RT2" {
				t.Errorf("expected RT2, got %s", pair.RefreshToken)
			}
		})

		t.Run("rejected refresh token", func(t *testing.T) {
			s, _ := newTestSpotify(t, &spotifyStub{denyRefresh: true})
			authenticated(t, s)

			_, err := s.RefreshAccessToken(ctx)
			if !errors.Is(err, shared.ErrRefreshFailed) {
				t.Errorf("expected ErrRefreshFailed, got %v", err)
			}
			if !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", err)
			}

			pair, ok := s.Tokens()
			if !ok || pair.AccessToken != "AT1" {
				t.Errorf("expected the held pair to be kept, got %+v", pair)
			}
		})

		t.Run("concurrent refreshes are serialized", func(t *testing.T) {
			s, counter := newTestSpotify(t, &spotifyStub{})
			authenticated(t, s)

			var wg sync.WaitGroup
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := s.RefreshAccessToken(ctx); err != nil {
						t.Errorf("refresh failed: %v", err)
					}
				}()
			}
			wg.Wait()

			pair, _ := s.Tokens()
			if pair.AccessToken != "AT2" || pair.RefreshToken != "RT1" {
				t.Errorf("unexpected final pair %+v", pair)
			}
			if counter.Count("/api/token") != 8 {
				t.Errorf("expected 8 token requests, got %d", counter.Count("/api/token"))
			}
		})
	})

	t.Run("SignOut", func(t *testing.T) {
		s, _ := newTestSpotify(t, &spotifyStub{})
		authenticated(t, s)

		if err := s.SignOut(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.IsAuthenticated() {
			t.Error("expected tokens to be cleared")
		}
		if err := s.Restore(ctx); err != nil || s.IsAuthenticated() {
			t.Errorf("expected nothing to restore, got %v", err)
		}
	})

	t.Run("GetCurrentUser", func(t *testing.T) {
		t.Run("requires a token", func(t *testing.T) {
			s, counter := newTestSpotify(t, &spotifyStub{})

			if _, err := s.GetCurrentUser(ctx); !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("expected ErrNotAuthenticated, got %v", err)
			}
			if counter.Total() != 0 {
				t.Errorf("expected no requests, got %d", counter.Total())
			}
		})

		t.Run("returns the profile", func(t *testing.T) {
			s, _ := newTestSpotify(t, &spotifyStub{})
			authenticated(t, s)

			user, err := s.GetCurrentUser(ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if user.ID != "user-1" || user.DisplayName != "Test User" {
				t.Errorf("unexpected user %+v", user)
			}
		})

		t.Run("401 is an expired token", func(t *testing.T) {
			s, counter := newTestSpotify(t, &spotifyStub{meStatus: http.StatusUnauthorized})
			authenticated(t, s)

			if _, err := s.GetCurrentUser(ctx); !errors.Is(err, shared.ErrTokenExpired) {
				t.Errorf("expected ErrTokenExpired, got %v", err)
			}
			if counter.Count("/api/token") != 0 {
				t.Error("expected no automatic refresh")
			}
		})
	})

	t.Run("CreatePlaylist", func(t *testing.T) {
		stub := &spotifyStub{}
		s, _ := newTestSpotify(t, stub)
		authenticated(t, s)

		playlist, err := s.CreatePlaylist(ctx, "user-1", "TrackShift 19 Oct 2026", models.DefaultPlaylistDescription)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if playlist.ID != "pl1" || playlist.ExternalURL != "https://open.spotify.com/playlist/pl1" {
			t.Errorf("unexpected playlist %+v", playlist)
		}
		if stub.lastCreate["public"] != false {
			t.Errorf("expected a private playlist, got %v", stub.lastCreate["public"])
		}
		if stub.lastCreate["description"] != models.DefaultPlaylistDescription {
			t.Errorf("unexpected description %v", stub.lastCreate["description"])
		}
	})

	t.Run("AddTracksToPlaylist", func(t *testing.T) {
		t.Run("250 URIs go out as 100, 100, 50 in order", func(t *testing.T) {
			stub := &spotifyStub{}
			s, _ := newTestSpotify(t, stub)
			authenticated(t, s)
			uris := trackURIs(250)

			if err := s.AddTracksToPlaylist(ctx, "pl1", uris); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			want := []int{100, 100, 50}
			if len(stub.chunkSizes) != len(want) {
				t.Fatalf("expected %d calls, got %v", len(want), stub.chunkSizes)
			}
			for i, n := range want {
				if stub.chunkSizes[i] != n {
					t.Errorf("chunk %d: expected %d uris, got %d", i, n, stub.chunkSizes[i])
				}
			}
			if stub.firstURIs[1] != uris[100] || stub.firstURIs[2] != uris[200] {
				t.Error("chunks were not sent in order")
			}
		})

		t.Run("stops at the first failing chunk", func(t *testing.T) {
			stub := &spotifyStub{failChunk: 2}
			s, _ := newTestSpotify(t, stub)
			authenticated(t, s)

			err := s.AddTracksToPlaylist(ctx, "pl1", trackURIs(250))

			var pf *shared.PartialFailureError
			if !errors.As(err, &pf) {
				t.Fatalf("expected PartialFailureError, got %v", err)
			}
			if pf.Added != 100 || pf.Total != 250 {
				t.Errorf("expected 100 of 250 added, got %d of %d", pf.Added, pf.Total)
			}
			if !errors.Is(err, shared.ErrServiceUnavailable) {
				t.Errorf("expected the 502 cause to be kept, got %v", err)
			}
			if len(stub.chunkSizes) != 2 {
				t.Errorf("expected no call after the failure, got %d calls", len(stub.chunkSizes))
			}
		})

		t.Run("failure on the first chunk is not partial", func(t *testing.T) {
			s, _ := newTestSpotify(t, &spotifyStub{failChunk: 1})
			authenticated(t, s)

			err := s.AddTracksToPlaylist(ctx, "pl1", trackURIs(10))
			if err == nil || errors.Is(err, shared.ErrPartialFailure) {
				t.Errorf("expected a plain failure, got %v", err)
			}
		})

		t.Run("invalid URIs are rejected before any request", func(t *testing.T) {
			s, counter := newTestSpotify(t, &spotifyStub{})
			authenticated(t, s)

			err := s.AddTracksToPlaylist(ctx, "pl1", []string{"spotify:track:ok", "spotify:album:nope"})
			if !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
			if counter.Total() != 0 {
				t.Errorf("expected no requests, got %d", counter.Total())
			}
		})

		t.Run("empty list makes no request", func(t *testing.T) {
			s, counter := newTestSpotify(t, &spotifyStub{})
			authenticated(t, s)

			if err := s.AddTracksToPlaylist(ctx, "pl1", nil); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if counter.Total() != 0 {
				t.Errorf("expected no requests, got %d", counter.Total())
			}
		})
	})

	t.Run("Rate limiting", func(t *testing.T) {
		s, counter := newTestSpotify(t, &spotifyStub{}, WithRateLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)))
		authenticated(t, s)

		if _, err := s.GetCurrentUser(ctx); err != nil {
			t.Fatalf("first call should use the burst: %v", err)
		}

		short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		if _, err := s.GetCurrentUser(short); !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
		if counter.Count("/v1/me") != 1 {
			t.Errorf("expected 1 request, got %d", counter.Count("/v1/me"))
		}
	})
}
