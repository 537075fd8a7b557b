// package formatter renders conversion results as CSV, Markdown, JSON or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/trackshift/internal/models"
	"github.com/desertthunder/trackshift/internal/shared"
)

// ConversionExport is a finished conversion: the recognized tracks and, for Spotify, the created playlist.
type ConversionExport struct {
	Platform    models.Platform         `json:"platform"`
	Region      string                  `json:"region"`
	Tracks      []models.ConvertedTrack `json:"tracks"`
	PlaylistURL string                  `json:"playlistUrl,omitempty"`
}

// Format names an output format accepted by [Export].
type Format string

const (
	FormatText     Format = "text"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat accepts the format names and the md/txt shorthands.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
}

// ExportToCSV converts a ConversionExport to CSV format with columns: Title, Artist, URL, Platform ID, Thumbnail
func ExportToCSV(export *ConversionExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Title", "Artist", "URL", "Platform ID", "Thumbnail"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range export.Tracks {
		record := []string{track.Title, track.Artist, track.URL, track.PlatformID, track.ThumbnailURL}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a ConversionExport to Markdown with linked track titles
func ExportToMarkdown(export *ConversionExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s conversion\n\n", export.Platform.DisplayName())
	fmt.Fprintf(&buf, "**Region**: %s\n", export.Region)
	fmt.Fprintf(&buf, "**Tracks**: %d\n", len(export.Tracks))
	if export.PlaylistURL != "" {
		fmt.Fprintf(&buf, "**Playlist**: [%s](%s)\n", export.PlaylistURL, export.PlaylistURL)
	}

	buf.WriteString("\n## Tracks\n\n")
	for i, track := range export.Tracks {
		title := track.Title
		if track.URL != "" {
			title = fmt.Sprintf("[%s](%s)", track.Title, track.URL)
		}
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, track.Artist, title)
	}

	return buf.Bytes(), nil
}

// ExportToText converts a ConversionExport to plain text format
func ExportToText(export *ConversionExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Platform: %s (%s)\n", export.Platform.DisplayName(), export.Region)
	fmt.Fprintf(&buf, "Tracks: %d\n", len(export.Tracks))
	if export.PlaylistURL != "" {
		fmt.Fprintf(&buf, "Playlist: %s\n", export.PlaylistURL)
	}
	buf.WriteString("\n")

	for i, track := range export.Tracks {
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, track.Artist, track.Title)
	}

	return buf.Bytes(), nil
}

func ExportToJSON(export *ConversionExport) ([]byte, error) {
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// Export renders export in the given format.
func Export(export *ConversionExport, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(export)
	case FormatMarkdown:
		return ExportToMarkdown(export)
	case FormatJSON:
		return ExportToJSON(export)
	case FormatText, "":
		return ExportToText(export)
	}
	return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
}

// WriteExport renders export and writes it to path.
func WriteExport(export *ConversionExport, format Format, path string) error {
	if path == "" {
		return fmt.Errorf("%w: output path is required", shared.ErrMissingArgument)
	}

	data, err := Export(export, format)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
