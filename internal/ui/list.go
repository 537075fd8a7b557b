package ui

import (
	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/trackshift/internal/models"
)

var _ list.Item = platformItem{}

// platformItem wraps [models.Platform] to implement [list.Item].
type platformItem struct {
	platform models.Platform
}

func (i platformItem) FilterValue() string { return i.platform.DisplayName() }
func (i platformItem) Title() string       { return i.platform.DisplayName() }
func (i platformItem) Description() string {
	if i.platform == models.PlatformSpotify {
		return "Creates a playlist, then opens it"
	}
	return "Opens " + i.platform.AppScheme()
}

func platformItems() []list.Item {
	items := make([]list.Item, len(models.Platforms))
	for i, p := range models.Platforms {
		items[i] = platformItem{platform: p}
	}
	return items
}
