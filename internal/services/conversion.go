// Recognition backend client
package services

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackshift/internal/models"
	"github.com/desertthunder/trackshift/internal/shared"
)

const (
	// sourcePlatform is the platform the screenshots are assumed to come from.
	sourcePlatform = "spotify"

	imagePartName    = "images[]"
	imageContentType = "image/png"
)

// ConversionService submits playlist screenshots to the recognition backend.
type ConversionService struct {
	rest   restClient
	logger *log.Logger
}

// NewConversionService creates a client posting to endpoint (the full /analyze URL).
//
// A nil client gets the default 30s timeout.
func NewConversionService(endpoint string, client *http.Client, logger *log.Logger) *ConversionService {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &ConversionService{
		rest:   newRESTClient(endpoint, client),
		logger: shared.WithLogger(logger, "service", "conversion"),
	}
}

// ConvertPlaylist uploads req in a single multipart request and returns the recognized tracks in backend order.
//
// authToken is sent verbatim in the Authorization header. Invalid requests fail before any I/O.
func (c *ConversionService) ConvertPlaylist(ctx context.Context, authToken string, req models.ConvertRequest) ([]models.ConvertedTrack, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body, contentType, err := EncodeConvertRequest(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rest.baseURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	requestID := shared.GenerateID()
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-Id", requestID)
	if authToken != "" {
		httpReq.Header.Set("Authorization", authToken)
	}

	c.logger.Debug("uploading screenshots", "request_id", requestID, "images", len(req.Images),
		"to", req.ToPlatform.APIValue(), "region", req.Region)

	resp, err := c.rest.do(httpReq)
	if err != nil {
		return nil, err
	}

	if !resp.Success() {
		return nil, fmt.Errorf("%w: analyze returned status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	var tracks []models.ConvertedTrack
	if err := resp.Decode(&tracks); err != nil {
		return nil, err
	}
	if tracks == nil {
		return nil, fmt.Errorf("%w: expected a JSON array of tracks", shared.ErrProtocol)
	}

	c.logger.Info("playlist converted", "request_id", requestID, "tracks", len(tracks))
	return tracks, nil
}

// EncodeConvertRequest builds the multipart body: fromPlatform, toPlatform and region fields,
// then one images[] part per image named image<i>.png and tagged image/png.
func EncodeConvertRequest(req models.ConvertRequest) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"fromPlatform", sourcePlatform},
		{"toPlatform", req.ToPlatform.APIValue()},
		{"region", req.Region},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}

	for i, img := range req.Images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="image%d.png"`, imagePartName, i))
		h.Set("Content-Type", imageContentType)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create image part %d: %w", i, err)
		}
		if _, err := part.Write(img); err != nil {
			return nil, "", fmt.Errorf("failed to write image part %d: %w", i, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
