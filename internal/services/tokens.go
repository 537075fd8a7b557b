package services

import (
	"sync"

	"github.com/desertthunder/trackshift/internal/models"
)

// tokenCell owns the Spotify token pair.
//
// Readers take the read lock. Writers must hold writeMu for the whole exchange or refresh, so two
// concurrent writers cannot interleave their network calls and lose an update.
type tokenCell struct {
	writeMu sync.Mutex

	mu   sync.RWMutex
	pair models.SpotifyTokenPair
}

// Load returns the held pair and whether an access token is present.
func (c *tokenCell) Load() (models.SpotifyTokenPair, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pair, c.pair.AccessToken != ""
}

// store replaces the pair. Callers hold writeMu.
func (c *tokenCell) store(pair models.SpotifyTokenPair) {
	c.mu.Lock()
	c.pair = pair
	c.mu.Unlock()
}
