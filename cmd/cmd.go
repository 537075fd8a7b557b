// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// app builds the root command with the global flags.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "trackshift",
		Usage:   "Turn playlist screenshots into playlists on your music service",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("TRACKSHIFT_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Only log errors",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output JSON",
			},
		},
		Before:   r.bootstrap,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, spotifyCommand, convertCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// setupCommand handles configuration and database setup.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write an example config.toml",
				Action: r.SetupConfig,
			},
			{
				Name:   "init-db",
				Usage:  "Create the database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "migrate",
				Usage:  "Apply pending migrations and show their status",
				Action: r.SetupMigrate,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// authCommand handles identity backend sign-in.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Sign in to TrackShift",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show the signed-in account",
				Action: r.AuthStatus,
			},
			{
				Name:  "email",
				Usage: "Sign in with email and password, creating the account if needed",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "email"},
					&cli.StringArg{Name: "password"},
				},
				Action: r.AuthEmail,
			},
			{
				Name:    "anonymous",
				Aliases: []string{"guest"},
				Usage:   "Continue as a guest",
				Action:  r.AuthAnonymous,
			},
			{
				Name:  "apple",
				Usage: "Sign in with an Apple ID token",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id-token"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "nonce",
						Usage:    "Raw nonce used when requesting the ID token",
						Required: true,
					},
				},
				Action: r.AuthApple,
			},
			{
				Name:  "google",
				Usage: "Sign in with a Google ID token",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id-token"},
				},
				Action: r.AuthGoogle,
			},
			{
				Name:   "logout",
				Usage:  "Sign out and forget the stored session",
				Action: r.AuthLogout,
			},
		},
	}
}

// spotifyCommand handles Spotify authorization.
func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotify",
		Aliases: []string{"spot"},
		Usage:   "Connect a Spotify account",
		Commands: []*cli.Command{
			{
				Name:   "auth-url",
				Usage:  "Print the authorization URL",
				Action: r.SpotifyAuthURL,
			},
			{
				Name:  "login",
				Usage: "Authorize in the browser and receive the redirect on a loopback listener",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the redirect",
						Value: loginTimeout,
					},
				},
				Action: r.SpotifyLogin,
			},
			{
				Name:  "callback",
				Usage: "Exchange an authorization code copied from the redirect",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "code"},
				},
				Action: r.SpotifyCallback,
			},
			{
				Name:   "refresh",
				Usage:  "Refresh the access token",
				Action: r.SpotifyRefresh,
			},
			{
				Name:   "status",
				Usage:  "Show whether a Spotify account is connected",
				Action: r.SpotifyStatus,
			},
			{
				Name:   "logout",
				Usage:  "Forget the Spotify tokens",
				Action: r.SpotifyLogout,
			},
		},
	}
}

// convertCommand uploads screenshots for recognition.
func convertCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "Recognize tracks in playlist screenshots",
		ArgsUsage: "<image>...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "to",
				Aliases:  []string{"t"},
				Usage:    "Destination platform (spotify, apple_music, deezer, youtube_music)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "region",
				Aliases: []string{"r"},
				Usage:   "ISO-3166 country code of the catalogue to search",
				Value:   "FR",
			},
			&cli.StringFlag{
				Name:    "playlist",
				Aliases: []string{"p"},
				Usage:   "Spotify playlist name (defaults to today's date)",
			},
			&cli.BoolFlag{
				Name:  "no-playlist",
				Usage: "Do not create a Spotify playlist",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, csv, markdown or json",
				Value:   "text",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the result to a file",
			},
		},
		Action: r.Convert,
	}
}

// tuiCommand returns the top-level TUI command.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive terminal UI",
		Action:  r.TUI,
	}
}
