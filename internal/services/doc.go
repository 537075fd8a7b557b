// Package services implements the three network clients of TrackShift.
//
// # Identity
//
// [IdentityService] talks to a GoTrue (Supabase auth) backend over REST. It covers email/password,
// anonymous and ID-token (Apple, Google) sign-in, and publishes a session status that
// [IdentityService.CurrentSession] waits on with a bounded timeout.
//
// # Spotify
//
// [SpotifyService] runs the OAuth2 authorization code flow through [oauth2.Config] and owns the token
// pair. Exchange and refresh are serialized; refresh keeps the previous refresh token when Spotify
// omits one. Web API calls go through github.com/zmb3/spotify/v2 with a static bearer token; there is
// no refresh-and-retry on 401.
//
// Track insertion is chunked at 100 URIs per request and stops at the first failing chunk. Tracks
// already added stay in the playlist, and the error is a [shared.PartialFailureError] once at least
// one chunk has succeeded.
//
// # Conversion
//
// [ConversionService] uploads 1..5 screenshots as one multipart request and decodes the recognized
// tracks in backend order.
//
// # Error Handling
//
// Clients return errors wrapping the sentinels of the shared package:
//   - [shared.ErrNetwork] : transport failure or timeout
//   - [shared.ErrInvalidCredentials], [shared.ErrTokenExpired], [shared.ErrNoRefreshToken] : auth failures
//   - [shared.ErrProtocol], [shared.ErrAPIRequest] : unexpected status or body
//   - [shared.ErrInvalidInput] : rejected before any request was sent
//
// Nothing panics across the I/O boundary.
package services
