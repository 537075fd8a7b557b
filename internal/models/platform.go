package models

import (
	"fmt"
	"strings"

	"github.com/desertthunder/trackshift/internal/shared"
)

// Platform is a destination music service.
type Platform string

const (
	PlatformSpotify      Platform = "spotify"
	PlatformAppleMusic   Platform = "appleMusic"
	PlatformDeezer       Platform = "deezer"
	PlatformYouTubeMusic Platform = "youtubeMusic"
)

// Platforms lists every supported destination in display order.
var Platforms = []Platform{PlatformSpotify, PlatformAppleMusic, PlatformDeezer, PlatformYouTubeMusic}

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformSpotify, PlatformAppleMusic, PlatformDeezer, PlatformYouTubeMusic:
		return true
	}
	return false
}

// APIValue is the value sent to the recognition backend.
func (p Platform) APIValue() string {
	switch p {
	case PlatformAppleMusic:
		return "apple_music"
	case PlatformYouTubeMusic:
		return "youtube_music"
	default:
		return string(p)
	}
}

// AppScheme is the URL scheme that opens the platform's app.
func (p Platform) AppScheme() string {
	switch p {
	case PlatformSpotify:
		return "spotify://"
	case PlatformAppleMusic:
		return "music://"
	case PlatformDeezer:
		return "deezer://"
	case PlatformYouTubeMusic:
		return "youtubemusic://"
	}
	return ""
}

func (p Platform) DisplayName() string {
	switch p {
	case PlatformSpotify:
		return "Spotify"
	case PlatformAppleMusic:
		return "Apple Music"
	case PlatformDeezer:
		return "Deezer"
	case PlatformYouTubeMusic:
		return "YouTube Music"
	}
	return string(p)
}

// ParsePlatform accepts either the API value ("apple_music") or the platform name ("appleMusic"), case-insensitively.
func ParsePlatform(s string) (Platform, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for _, p := range Platforms {
		if needle == strings.ToLower(string(p)) || needle == p.APIValue() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown platform %q", shared.ErrInvalidArgument, s)
}

// IdentityProvider is an external identity accepted for ID-token sign-in.
type IdentityProvider string

const (
	ProviderApple  IdentityProvider = "apple"
	ProviderGoogle IdentityProvider = "google"
)

// RequiresNonce reports whether sign-in with this provider must carry a nonce.
func (p IdentityProvider) RequiresNonce() bool {
	return p == ProviderApple
}
