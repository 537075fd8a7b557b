package tasks

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackshift/internal/models"
	"github.com/desertthunder/trackshift/internal/shared"
)

// Converter uploads screenshots to the recognition backend.
type Converter interface {
	ConvertPlaylist(ctx context.Context, authToken string, req models.ConvertRequest) ([]models.ConvertedTrack, error)
}

// ConversionTasks sends conversion requests with the configured backend token.
type ConversionTasks struct {
	converter Converter
	token     string
	logger    *log.Logger
}

func NewConversionTasks(converter Converter, token string, logger *log.Logger) *ConversionTasks {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &ConversionTasks{converter: converter, token: token, logger: shared.WithLogger(logger, "tasks", "conversion")}
}

// ConvertPlaylist returns the recognized tracks in backend order, or false when the conversion failed.
func (c *ConversionTasks) ConvertPlaylist(ctx context.Context, req models.ConvertRequest) ([]models.ConvertedTrack, bool) {
	tracks, err := c.converter.ConvertPlaylist(ctx, c.token, req)
	if err != nil {
		c.logger.Error("conversion failed", "to", req.ToPlatform, "kind", shared.Kind(err), "error", err)
		return nil, false
	}
	c.logger.Info("conversion complete", "to", req.ToPlatform, "tracks", len(tracks))
	return tracks, true
}
