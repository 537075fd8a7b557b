package tasks

import (
	"fmt"

	"github.com/desertthunder/trackshift/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within the chain
	Total   int    // Total steps in the chain
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchUser Phase = iota
	CreatePlaylist
	AddTracks
	Completed
)

func (p Phase) String() string {
	switch p {
	case FetchUser:
		return "fetch_user"
	case CreatePlaylist:
		return "create_playlist"
	case AddTracks:
		return "add_tracks"
	case Completed:
		return "completed"
	default:
		return ""
	}
}

const playlistSteps = 3

func fetchUserUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchUser,
		Step:    1,
		Total:   playlistSteps,
		Message: "Looking up Spotify account...",
	}
}

func createPlaylistUpdate(user *models.SpotifyUser, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    2,
		Total:   playlistSteps,
		Message: fmt.Sprintf("Creating playlist %q for %s...", name, user.ID),
		Data:    user,
	}
}

func addTracksUpdate(pl *models.SpotifyPlaylist, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AddTracks,
		Step:    3,
		Total:   playlistSteps,
		Message: fmt.Sprintf("Adding %d tracks to %s (ID: %s)...", count, pl.Name, pl.ID),
		Data:    pl,
	}
}

func completedUpdate(pl *models.SpotifyPlaylist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Completed,
		Step:    playlistSteps,
		Total:   playlistSteps,
		Message: fmt.Sprintf("✓ Playlist ready: %s", pl.ExternalURL),
		Data:    pl,
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
