package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/trackshift/internal/formatter"
	"github.com/desertthunder/trackshift/internal/models"
	"github.com/desertthunder/trackshift/internal/shared"
	"github.com/desertthunder/trackshift/internal/tasks"
	"github.com/desertthunder/trackshift/internal/ui"
	"github.com/urfave/cli/v3"
)

// Convert uploads screenshots, prints the recognized tracks and, for Spotify, creates a playlist from them.
func (r *Runner) Convert(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("%w: at least one screenshot is required", shared.ErrMissingArgument)
	}

	platform, err := models.ParsePlatform(cmd.String("to"))
	if err != nil {
		return err
	}

	format := formatter.FormatJSON
	if !r.jsonOutput {
		if format, err = formatter.ParseFormat(cmd.String("format")); err != nil {
			return err
		}
	}

	images, err := readImages(paths)
	if err != nil {
		return err
	}

	req := models.ConvertRequest{ToPlatform: platform, Region: cmd.String("region"), Images: images}
	if err := req.Validate(); err != nil {
		return err
	}

	converter, err := r.conversionService()
	if err != nil {
		return err
	}

	r.logger.Info("converting screenshots", "images", len(images), "to", platform, "region", req.Region)
	tracks, ok := tasks.NewConversionTasks(converter, r.cfg().Conversion.Token, r.logger).ConvertPlaylist(ctx, req)
	if !ok {
		return fmt.Errorf("%w: conversion failed", shared.ErrAPIRequest)
	}

	export := &formatter.ConversionExport{Platform: platform, Region: req.Region, Tracks: tracks}
	if platform == models.PlatformSpotify && !cmd.Bool("no-playlist") {
		export.PlaylistURL = r.exportToSpotify(ctx, cmd.String("playlist"), tracks)
	}

	if output := cmd.String("output"); output != "" {
		if err := formatter.WriteExport(export, format, output); err != nil {
			return err
		}
		if err := r.writePlain("%s\n", ui.Success(fmt.Sprintf("%d tracks written to %s", len(tracks), output))); err != nil {
			return err
		}
	} else {
		data, err := formatter.Export(export, format)
		if err != nil {
			return err
		}
		if _, err := r.output.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}

	if format == formatter.FormatJSON {
		return nil
	}
	return r.writePlainln("Open in %s: %s", platform.DisplayName(), tasks.DestinationLink(platform, export.PlaylistURL))
}

// exportToSpotify creates the playlist when a Spotify account is connected and returns its URL, or "".
func (r *Runner) exportToSpotify(ctx context.Context, name string, tracks []models.ConvertedTrack) string {
	svc, err := r.spotifyService(ctx)
	if err != nil {
		r.logger.Warn("skipping playlist creation", "error", err)
		return ""
	}
	if !svc.IsAuthenticated() {
		r.logger.Warn("skipping playlist creation, run 'trackshift spotify login' first")
		return ""
	}

	url, ok := tasks.NewSpotifyTasks(svc, r.logger).ExportTracks(ctx, name, tracks)
	switch {
	case !ok && url != "":
		r.logger.Warn("playlist created but some tracks could not be added", "url", url)
	case !ok:
		r.logger.Warn("playlist creation failed, tracks are still listed")
	}
	return url
}

func readImages(paths []string) ([][]byte, error) {
	if len(paths) > models.MaxConvertImages {
		return nil, fmt.Errorf("%w: at most %d screenshots per conversion, got %d", shared.ErrInvalidInput, models.MaxConvertImages, len(paths))
	}

	images := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		images = append(images, data)
	}
	return images, nil
}
