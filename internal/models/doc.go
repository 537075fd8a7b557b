// Package models defines the domain entities shared by the TrackShift backend clients, orchestrators and presentation.
//
// The package contains three groups of types:
//
// 1. Conversion: what goes to and comes back from the recognition backend
//   - [ConvertRequest] : destination platform, region and 1..5 screenshots
//   - [ConvertedTrack] : a recognized track carrying the destination platform's native ID
//   - [Platform] : destination services with their API values and deep link schemes
//
// 2. Spotify: OAuth tokens and Web API results
//   - [SpotifyTokenPair] : access token plus optional refresh token
//   - [SpotifyUser] and [SpotifyPlaylist]
//
// 3. Identity and session
//   - [UserIdentity] : the signed-in account
//   - [SessionState] : Loading, Authenticated or NotAuthenticated
//   - [StoredToken] : the persisted form of either credential
package models
