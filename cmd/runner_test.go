package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/trackshift/internal/models"
	"github.com/desertthunder/trackshift/internal/services"
	"github.com/desertthunder/trackshift/internal/shared"
	tu "github.com/desertthunder/trackshift/internal/testing"
)

type stubConverter struct {
	tracks []models.ConvertedTrack
	err    error
	req    models.ConvertRequest
	token  string
}

func (s *stubConverter) ConvertPlaylist(_ context.Context, authToken string, req models.ConvertRequest) ([]models.ConvertedTrack, error) {
	s.req, s.token = req, authToken
	return s.tracks, s.err
}

func testConfig(t *testing.T) *shared.Config {
	t.Helper()
	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(t.TempDir(), "trackshift.db")
	config.Conversion.Token = "service-token"
	return config
}

func newTestRunner(t *testing.T, opts RunnerOpts) (*Runner, *bytes.Buffer) {
	t.Helper()
	output := &bytes.Buffer{}
	opts.Output = output
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}
	if opts.Config == nil {
		opts.Config = testConfig(t)
	}
	r := NewRunner(opts)
	t.Cleanup(r.Close)
	return r, output
}

func run(r *Runner, args ...string) error {
	return r.app().Run(context.Background(), append([]string{"trackshift"}, args...))
}

func writeImages(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join(dir, strings.Repeat("x", i+1)+".png")
		if err := os.WriteFile(paths[i], []byte{0x89, 'P', 'N', 'G', byte(i)}, 0644); err != nil {
			t.Fatalf("failed to write image: %v", err)
		}
	}
	return paths
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			store := tu.NewMemoryTokenStore()
			converter := &stubConverter{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Store:      store,
				Converter:  converter,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.store != store {
				t.Error("expected store to be set")
			}
			if runner.converter != converter {
				t.Error("expected converter to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			if runner := NewRunner(RunnerOpts{}); runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			if runner := NewRunner(RunnerOpts{}); runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("http client follows the configured timeout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig()})
			if runner.client().Timeout != runner.config.HTTP.Timeout.Duration {
				t.Errorf("expected timeout %v, got %v", runner.config.HTTP.Timeout.Duration, runner.client().Timeout)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("returns error for unmarshalable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
			if err := runner.writeJSON(make(chan int)); err == nil {
				t.Error("expected error for unmarshalable data")
			}
		})

		t.Run("returns error when writer fails", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
			if err := runner.writeJSON(map[string]string{"key": "value"}); err == nil {
				t.Error("expected error when writer fails")
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes formatted text", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			runner.writePlain("Hello %s, count: %d", "world", 42)
			if output.String() != "Hello world, count: 42" {
				t.Errorf("unexpected output %q", output.String())
			}
		})

		t.Run("writePlainln pads with newlines", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			runner.writePlainln("Done")
			if output.String() != "\nDone\n" {
				t.Errorf("unexpected output %q", output.String())
			}
		})

		t.Run("returns error when writer fails", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
			if err := runner.writePlain("test"); err == nil {
				t.Error("expected error when writer fails")
			}
		})
	})

	t.Run("bootstrap", func(t *testing.T) {
		t.Run("loads the config file and the env overlay", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			config := shared.DefaultConfig()
			config.Conversion.URL = "https://file.example.com/analyze"
			config.Database.Path = filepath.Join(t.TempDir(), "db.sqlite")
			if err := shared.SaveConfig(path, config); err != nil {
				t.Fatalf("failed to save config: %v", err)
			}
			t.Setenv("TRACKSHIFT_CONVERSION_TOKEN", "from-env")

			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output, Logger: shared.NewLogger(io.Discard)})
			t.Cleanup(runner.Close)

			if err := run(runner, "--config", path, "setup", "init-db"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if runner.config.Conversion.URL != "https://file.example.com/analyze" {
				t.Errorf("expected file value, got %q", runner.config.Conversion.URL)
			}
			if runner.config.Conversion.Token != "from-env" {
				t.Errorf("expected env overlay, got %q", runner.config.Conversion.Token)
			}
		})

		t.Run("rejects an unreadable config", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte("[identity\nurl ="), 0644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}, Logger: shared.NewLogger(io.Discard)})
			if err := run(runner, "--config", path, "setup", "migrate"); !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("config writes the example file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		runner, output := newTestRunner(t, RunnerOpts{})

		if err := run(runner, "--config", path, "setup", "config"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertFileExists(t, path)
		if !strings.Contains(output.String(), "Config written") {
			t.Errorf("unexpected output: %s", output.String())
		}

		if err := run(runner, "--config", path, "setup", "config"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for an existing file, got %v", err)
		}
	})

	t.Run("init-db, migrate and rollback", func(t *testing.T) {
		runner, output := newTestRunner(t, RunnerOpts{})

		if err := run(runner, "setup", "init-db"); err != nil {
			t.Fatalf("init-db failed: %v", err)
		}
		tu.AssertFileExists(t, runner.config.Database.Path)

		output.Reset()
		if err := run(runner, "--json", "setup", "migrate"); err != nil {
			t.Fatalf("migrate failed: %v", err)
		}
		var status struct {
			Applied []shared.AppliedMigration `json:"applied"`
			Pending int                       `json:"pending"`
		}
		if err := json.Unmarshal(output.Bytes(), &status); err != nil {
			t.Fatalf("invalid JSON %q: %v", output.String(), err)
		}
		if len(status.Applied) == 0 || status.Pending != 0 {
			t.Errorf("unexpected status %+v", status)
		}

		output.Reset()
		if err := run(runner, "setup", "rollback"); err != nil {
			t.Fatalf("rollback failed: %v", err)
		}
		if !strings.Contains(output.String(), "1 pending") {
			t.Errorf("unexpected output: %s", output.String())
		}
	})
}

func TestConvertCommand(t *testing.T) {
	tracks := []models.ConvertedTrack{
		{Title: "Song One", Artist: "Artist One", PlatformID: "one"},
		{Title: "Song Two", Artist: "Artist Two", PlatformID: "two"},
	}

	t.Run("prints tracks and the app link", func(t *testing.T) {
		converter := &stubConverter{tracks: tracks}
		runner, output := newTestRunner(t, RunnerOpts{Converter: converter})

		args := append([]string{"convert", "--to", "deezer", "--region", "us"}, writeImages(t, 2)...)
		if err := run(runner, args...); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := output.String()
		for _, want := range []string{"1. Artist One - Song One", "2. Artist Two - Song Two", "deezer://"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q: %s", want, out)
			}
		}
		if converter.req.Region != "US" || len(converter.req.Images) != 2 || converter.req.ToPlatform != models.PlatformDeezer {
			t.Errorf("unexpected request %+v", converter.req)
		}
		if converter.token != "service-token" {
			t.Errorf("expected configured token, got %q", converter.token)
		}
	})

	t.Run("writes the chosen format to a file", func(t *testing.T) {
		runner, _ := newTestRunner(t, RunnerOpts{Converter: &stubConverter{tracks: tracks}})
		path := filepath.Join(t.TempDir(), "tracks.csv")

		args := append([]string{"convert", "--to", "youtube_music", "--format", "csv", "--output", path}, writeImages(t, 1)...)
		if err := run(runner, args...); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if content := string(tu.MustReadFile(t, path)); !strings.Contains(content, "Song Two,Artist Two") {
			t.Errorf("unexpected CSV: %s", content)
		}
	})

	t.Run("requires a screenshot", func(t *testing.T) {
		converter := &stubConverter{}
		runner, _ := newTestRunner(t, RunnerOpts{Converter: converter})

		if err := run(runner, "convert", "--to", "deezer"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("rejects more than five screenshots", func(t *testing.T) {
		converter := &stubConverter{}
		runner, _ := newTestRunner(t, RunnerOpts{Converter: converter})

		args := append([]string{"convert", "--to", "deezer"}, writeImages(t, 6)...)
		if err := run(runner, args...); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if converter.req.Images != nil {
			t.Error("converter should not be called")
		}
	})

	t.Run("rejects an unknown platform", func(t *testing.T) {
		runner, _ := newTestRunner(t, RunnerOpts{Converter: &stubConverter{}})

		args := append([]string{"convert", "--to", "napster"}, writeImages(t, 1)...)
		if err := run(runner, args...); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("backend failure", func(t *testing.T) {
		runner, _ := newTestRunner(t, RunnerOpts{Converter: &stubConverter{err: shared.ErrNetwork}})

		args := append([]string{"convert", "--to", "deezer"}, writeImages(t, 1)...)
		if err := run(runner, args...); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("creates a Spotify playlist when connected", func(t *testing.T) {
		spotify, adds := connectedSpotify(t, 0)
		runner, output := newTestRunner(t, RunnerOpts{Converter: &stubConverter{tracks: tracks}, Spotify: spotify})

		args := append([]string{"convert", "--to", "spotify", "--playlist", "Mix"}, writeImages(t, 1)...)
		if err := run(runner, args...); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := output.String()
		if !strings.Contains(out, "Playlist: https://open.spotify.com/playlist/pl1") {
			t.Errorf("expected playlist URL: %s", out)
		}
		if !strings.Contains(out, "spotify:playlist:pl1") {
			t.Errorf("expected deep link: %s", out)
		}
		if adds.Load() != 1 {
			t.Errorf("expected one add request, got %d", adds.Load())
		}
	})

	t.Run("keeps the playlist link when some tracks could not be added", func(t *testing.T) {
		many := make([]models.ConvertedTrack, 150)
		for i := range many {
			many[i] = models.ConvertedTrack{Title: fmt.Sprintf("Song %d", i), Artist: "Artist", PlatformID: fmt.Sprintf("id%d", i)}
		}
		spotify, adds := connectedSpotify(t, 2)
		runner, output := newTestRunner(t, RunnerOpts{Converter: &stubConverter{tracks: many}, Spotify: spotify})

		args := append([]string{"convert", "--to", "spotify", "--playlist", "Mix"}, writeImages(t, 1)...)
		if err := run(runner, args...); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := output.String()
		if !strings.Contains(out, "Playlist: https://open.spotify.com/playlist/pl1") {
			t.Errorf("expected playlist URL: %s", out)
		}
		if !strings.Contains(out, "Open in Spotify: spotify:playlist:pl1") {
			t.Errorf("expected deep link: %s", out)
		}
		if adds.Load() != 2 {
			t.Errorf("expected two add requests, got %d", adds.Load())
		}
	})

	t.Run("reports a failed write after saving the file", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{
			Config:    testConfig(t),
			Logger:    shared.NewLogger(io.Discard),
			Output:    &tu.FWriter{},
			Converter: &stubConverter{tracks: tracks},
		})
		t.Cleanup(runner.Close)
		path := filepath.Join(t.TempDir(), "tracks.txt")

		args := append([]string{"convert", "--to", "deezer", "--output", path}, writeImages(t, 1)...)
		if err := run(runner, args...); err == nil {
			t.Error("expected the write error to be returned")
		}
		tu.AssertFileExists(t, path)
	})
}

// connectedSpotify serves the Web API paths used for playlist creation and returns a service holding a
// restored token pair. When failAdd is non-zero, that add request (1-based) answers 500.
func connectedSpotify(t *testing.T, failAdd int32) (*services.SpotifyService, *atomic.Int32) {
	t.Helper()
	var adds atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/me", func(w http.ResponseWriter, r *http.Request) {
		tu.WriteJSON(w, http.StatusOK, map[string]any{"id": "user-1"})
	})
	mux.HandleFunc("POST /v1/users/{user}/playlists", func(w http.ResponseWriter, r *http.Request) {
		tu.WriteJSON(w, http.StatusCreated, map[string]any{
			"id":            "pl1",
			"name":          "Mix",
			"external_urls": map[string]string{"spotify": "https://open.spotify.com/playlist/pl1"},
		})
	})
	mux.HandleFunc("POST /v1/playlists/{id}/tracks", func(w http.ResponseWriter, r *http.Request) {
		if adds.Add(1) == failAdd {
			tu.WriteJSON(w, http.StatusInternalServerError, map[string]any{"error": map[string]any{"status": 500, "message": "boom"}})
			return
		}
		tu.WriteJSON(w, http.StatusCreated, map[string]string{"snapshot_id": "snap"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store := tu.NewMemoryTokenStore(models.StoredToken{Service: services.SpotifyServiceName, AccessToken: "AT1", RefreshToken: "RT1"})
	spotify, err := services.NewSpotifyService(
		map[string]string{"client_id": "id", "client_secret": "secret"},
		services.WithHTTPClient(srv.Client()),
		services.WithAPIBaseURL(srv.URL+"/v1"),
		services.WithTokenStore(store),
		services.WithSpotifyLogger(shared.NewLogger(io.Discard)),
	)
	if err != nil {
		t.Fatalf("failed to create spotify service: %v", err)
	}
	if err := spotify.Restore(context.Background()); err != nil {
		t.Fatalf("failed to restore: %v", err)
	}
	return spotify, &adds
}

func TestAuthCommands(t *testing.T) {
	gotrue := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tu.WriteJSON(w, http.StatusBadRequest, map[string]any{"code": 400, "error_code": "invalid_credentials", "msg": "Invalid login credentials"})
	}))
	defer gotrue.Close()

	newIdentity := func(t *testing.T) *services.IdentityService {
		svc, err := services.NewIdentityService(gotrue.URL, "anon-key",
			services.WithIdentityHTTPClient(gotrue.Client()),
			services.WithIdentityStore(tu.NewMemoryTokenStore()),
			services.WithIdentityLogger(shared.NewLogger(io.Discard)),
		)
		if err != nil {
			t.Fatalf("failed to create identity service: %v", err)
		}
		return svc
	}

	t.Run("status without a session", func(t *testing.T) {
		runner, output := newTestRunner(t, RunnerOpts{Identity: newIdentity(t)})

		if err := run(runner, "--json", "auth", "status"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var status authStatus
		if err := json.Unmarshal(output.Bytes(), &status); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if status.Authenticated || status.User != nil {
			t.Errorf("expected no session, got %+v", status)
		}
	})

	t.Run("rejected email sign-in", func(t *testing.T) {
		runner, _ := newTestRunner(t, RunnerOpts{Identity: newIdentity(t)})

		if err := run(runner, "auth", "email", "a@example.com", "wrong"); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("missing identity config", func(t *testing.T) {
		config := testConfig(t)
		config.Identity = shared.IdentityConfig{}
		runner, _ := newTestRunner(t, RunnerOpts{Config: config})

		if err := run(runner, "auth", "status"); !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})
}

func TestSpotifyCommands(t *testing.T) {
	newSpotify := func(t *testing.T) *services.SpotifyService {
		svc, err := services.NewSpotifyService(
			map[string]string{"client_id": "id", "client_secret": "secret", "redirect_uri": "trackshift://spotify-callback"},
			services.WithSpotifyLogger(shared.NewLogger(io.Discard)),
		)
		if err != nil {
			t.Fatalf("failed to create spotify service: %v", err)
		}
		return svc
	}

	t.Run("status when not connected", func(t *testing.T) {
		runner, output := newTestRunner(t, RunnerOpts{Spotify: newSpotify(t)})

		if err := run(runner, "spotify", "status"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output.String(), "Spotify not connected") {
			t.Errorf("unexpected output: %s", output.String())
		}
	})

	t.Run("auth-url", func(t *testing.T) {
		runner, output := newTestRunner(t, RunnerOpts{Spotify: newSpotify(t)})

		if err := run(runner, "spotify", "auth-url"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output.String(), "client_id=id") || !strings.Contains(output.String(), "response_type=code") {
			t.Errorf("unexpected output: %s", output.String())
		}
	})

	t.Run("login needs a loopback redirect", func(t *testing.T) {
		runner, _ := newTestRunner(t, RunnerOpts{Spotify: newSpotify(t)})

		if err := run(runner, "spotify", "login"); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("refresh without a refresh token", func(t *testing.T) {
		runner, _ := newTestRunner(t, RunnerOpts{Spotify: newSpotify(t)})

		if err := run(runner, "spotify", "refresh"); !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken, got %v", err)
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		config := testConfig(t)
		config.Spotify = shared.SpotifyConfig{}
		runner, _ := newTestRunner(t, RunnerOpts{Config: config})

		if err := run(runner, "spotify", "status"); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})
}
