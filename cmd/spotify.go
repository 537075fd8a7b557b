package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/desertthunder/trackshift/internal/server"
	"github.com/desertthunder/trackshift/internal/shared"
	"github.com/desertthunder/trackshift/internal/tasks"
	"github.com/desertthunder/trackshift/internal/ui"
	"github.com/urfave/cli/v3"
)

const loginTimeout = 2 * time.Minute

type spotifyStatus struct {
	Connected bool      `json:"connected"`
	Expired   bool      `json:"expired"`
	Expiry    time.Time `json:"expiry,omitzero"`
}

// SpotifyAuthURL prints the authorization URL for manual flows.
func (r *Runner) SpotifyAuthURL(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.spotifyService(ctx)
	if err != nil {
		return err
	}

	url := tasks.NewSpotifyTasks(svc, r.logger).AuthURL()
	return r.result(map[string]string{"url": url, "redirect_uri": svc.RedirectURI()}, func() error {
		r.writePlain("Open this URL to connect Spotify:\n%s\n", url)
		r.writePlainln("Then run: trackshift spotify callback <code>")
		return nil
	})
}

// SpotifyLogin serves the redirect URI on a loopback listener, opens the browser and waits for the code.
//
// Only http loopback redirect URIs can be served; app-scheme URIs go through [Runner.SpotifyCallback].
func (r *Runner) SpotifyLogin(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.spotifyService(ctx)
	if err != nil {
		return err
	}

	path, err := server.CallbackPath(svc.RedirectURI())
	if err != nil {
		return fmt.Errorf("%w (use 'trackshift spotify auth-url' and 'trackshift spotify callback')", err)
	}

	state, err := shared.GenerateState()
	if err != nil {
		return fmt.Errorf("failed to generate state token: %w", err)
	}

	spotify := tasks.NewSpotifyTasks(svc, r.logger)
	handler := server.NewOAuthHandler(state, path, spotify.HandleCallback)
	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger))
	router.Handler(handler)

	config := r.cfg().Server
	addr := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	r.logger.Infof("starting OAuth server at %v", addr)

	srv, err := server.Listen(addr, router, r.logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	authURL := svc.AuthorizationURL(state)
	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("%s", ui.Warning("Could not open browser automatically."))
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	timeout := cmd.Duration("timeout")
	if timeout <= 0 {
		timeout = loginTimeout
	}
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case result := <-handler.Result():
		if result.Error() != nil {
			return fmt.Errorf("authorization failed: %w", result.Error())
		}
	case <-waitCtx.Done():
		return fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, timeout)
	}

	return r.writePlainln("%s", ui.Success("Spotify connected"))
}

// SpotifyCallback exchanges a code copied from the redirect URI.
func (r *Runner) SpotifyCallback(ctx context.Context, cmd *cli.Command) error {
	code := cmd.StringArg("code")
	if code == "" {
		return fmt.Errorf("%w: authorization code is required", shared.ErrMissingArgument)
	}

	svc, err := r.spotifyService(ctx)
	if err != nil {
		return err
	}

	if !tasks.NewSpotifyTasks(svc, r.logger).HandleCallback(ctx, code) {
		return fmt.Errorf("%w: code exchange failed", shared.ErrAuthFailed)
	}
	return r.SpotifyStatus(ctx, cmd)
}

// SpotifyRefresh exchanges the refresh token for a new access token.
func (r *Runner) SpotifyRefresh(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.spotifyService(ctx)
	if err != nil {
		return err
	}

	if _, err := svc.RefreshAccessToken(ctx); err != nil {
		return err
	}
	return r.SpotifyStatus(ctx, cmd)
}

// SpotifyStatus reports whether tokens are held and whether the access token has expired.
func (r *Runner) SpotifyStatus(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.spotifyService(ctx)
	if err != nil {
		return err
	}

	pair, ok := svc.Tokens()
	status := spotifyStatus{Connected: ok, Expired: ok && svc.Expired(), Expiry: pair.Expiry}

	return r.result(status, func() error {
		switch {
		case !status.Connected:
			return r.writePlain("%s\n", ui.Failure("Spotify not connected"))
		case status.Expired:
			return r.writePlain("%s\n", ui.Warning("Spotify token expired, run 'trackshift spotify refresh'"))
		case pair.Expiry.IsZero():
			return r.writePlain("%s\n", ui.Success("Spotify connected"))
		default:
			return r.writePlain("%s\n", ui.Success(fmt.Sprintf("Spotify connected (expires %s)", pair.Expiry.Local().Format(time.Kitchen))))
		}
	})
}

func (r *Runner) SpotifyLogout(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.spotifyService(ctx)
	if err != nil {
		return err
	}

	if err := svc.SignOut(ctx); err != nil {
		return err
	}
	return r.result(spotifyStatus{}, func() error {
		return r.writePlain("%s\n", ui.Success("Spotify disconnected"))
	})
}
