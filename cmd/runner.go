package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackshift/internal/repositories"
	"github.com/desertthunder/trackshift/internal/services"
	"github.com/desertthunder/trackshift/internal/shared"
	"github.com/desertthunder/trackshift/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Backend clients are built on first use so that setup commands run without credentials.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	jsonOutput bool
	httpClient *http.Client
	db         *sql.DB
	store      services.TokenStore
	identity   *services.IdentityService
	spotify    *services.SpotifyService
	converter  tasks.Converter
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	HTTPClient *http.Client
	Store      services.TokenStore
	Identity   *services.IdentityService
	Spotify    *services.SpotifyService
	Converter  tasks.Converter
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		httpClient: opts.HTTPClient,
		store:      opts.Store,
		identity:   opts.Identity,
		spotify:    opts.Spotify,
		converter:  opts.Converter,
	}
}

// bootstrap applies the global flags and loads configuration: .env files, then the TOML file (or the
// embedded defaults), then TRACKSHIFT_* variables.
func (r *Runner) bootstrap(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	switch {
	case cmd.Bool("verbose"):
		shared.SetLogLevel(r.logger, log.DebugLevel)
	case cmd.Bool("quiet"):
		shared.SetLogLevel(r.logger, log.ErrorLevel)
	}
	r.jsonOutput = cmd.Bool("json")
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if r.config != nil {
		return ctx, nil
	}

	if err := shared.LoadEnvFiles(); err != nil {
		r.logger.Warn("failed to load .env", "error", err)
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(r.configPath); err == nil {
		loaded, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
		}
		config = loaded
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}

	if err := config.ApplyEnv(); err != nil {
		return ctx, err
	}
	r.config = config
	return ctx, nil
}

// Close releases the database handle, if one was opened.
func (r *Runner) Close() {
	if r.db == nil {
		return
	}
	if err := r.db.Close(); err != nil {
		r.logger.Warn("failed to close database", "error", err)
	}
	r.db = nil
}

func (r *Runner) cfg() *shared.Config {
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}
	return r.config
}

func (r *Runner) client() *http.Client {
	if r.httpClient == nil {
		r.httpClient = shared.NewHTTPClient(r.cfg().HTTP.Timeout.Duration)
	}
	return r.httpClient
}

func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	path := r.cfg().Database.Path
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := shared.ConfigureDatabase(db, r.cfg().Database); err != nil {
		db.Close()
		return nil, err
	}

	r.db = db
	return db, nil
}

// tokenStore opens the database, applies pending migrations and returns the token repository.
func (r *Runner) tokenStore() (services.TokenStore, error) {
	if r.store != nil {
		return r.store, nil
	}

	db, err := r.database()
	if err != nil {
		return nil, err
	}
	if err := shared.RunMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	r.store = repositories.NewTokenRepository(db)
	return r.store, nil
}

func (r *Runner) identityService() (*services.IdentityService, error) {
	if r.identity != nil {
		return r.identity, nil
	}

	config := r.cfg().Identity
	if config.URL == "" || config.APIKey == "" {
		return nil, fmt.Errorf("%w: set [identity] url and api_key in %s", shared.ErrMissingConfig, r.configPath)
	}

	store, err := r.tokenStore()
	if err != nil {
		return nil, err
	}

	svc, err := services.NewIdentityService(config.URL, config.APIKey,
		services.WithIdentityHTTPClient(r.client()),
		services.WithIdentityStore(store),
		services.WithSessionTimeout(config.SessionTimeout.Duration),
		services.WithIdentityLogger(r.logger),
	)
	if err != nil {
		return nil, err
	}

	r.identity = svc
	return svc, nil
}

// spotifyService builds the Spotify client and restores any persisted token pair.
func (r *Runner) spotifyService(ctx context.Context) (*services.SpotifyService, error) {
	if r.spotify != nil {
		return r.spotify, nil
	}

	config := r.cfg().Spotify
	if config.ClientID == "" || config.ClientSecret == "" {
		return nil, fmt.Errorf("%w: set [spotify] client_id and client_secret in %s", shared.ErrMissingCredentials, r.configPath)
	}

	store, err := r.tokenStore()
	if err != nil {
		return nil, err
	}

	opts := []services.SpotifyOption{
		services.WithHTTPClient(r.client()),
		services.WithTokenStore(store),
		services.WithSpotifyLogger(r.logger),
	}
	if config.RequestsPerSecond > 0 {
		opts = append(opts, services.WithRateLimiter(rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)))
	}

	svc, err := services.NewSpotifyService(config.Map(), opts...)
	if err != nil {
		return nil, err
	}
	if err := svc.Restore(ctx); err != nil {
		r.logger.Warn("failed to restore spotify session", "error", err)
	}

	r.spotify = svc
	return svc, nil
}

func (r *Runner) conversionService() (tasks.Converter, error) {
	if r.converter != nil {
		return r.converter, nil
	}

	url := r.cfg().Conversion.URL
	if url == "" {
		return nil, fmt.Errorf("%w: set [conversion] url in %s", shared.ErrMissingConfig, r.configPath)
	}

	r.converter = services.NewConversionService(url, r.client(), r.logger)
	return r.converter, nil
}

func (r *Runner) writeJSON(data any) error {
	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// result writes data as JSON under --json, otherwise runs plain.
func (r *Runner) result(data any, plain func() error) error {
	if r.jsonOutput {
		return r.writeJSON(data)
	}
	return plain()
}
