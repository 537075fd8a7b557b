// Package tasks orchestrates the use cases on top of the service clients.
//
// # Orchestrators
//
//  1. [AuthTasks] : identity sign-in flows
//     - Email sign-in, falling back to sign-up for new accounts
//     - Guest (anonymous) sign-in
//     - Apple and Google ID token sign-in
//
//  2. [ConversionTasks] : screenshot upload to the recognition backend
//
//  3. [SpotifyTasks] : Spotify authorization and playlist creation
//     - [SpotifyTasks.CreatePlaylistWithTracks] chains user lookup, playlist creation and track insertion,
//     stopping at the first failure
//     - [SpotifyTasks.ExportTracks] projects converted tracks onto Spotify IDs
//
// Each orchestrator logs the failure kind ([shared.Kind]) and collapses the outcome to a bool, so the
// presentation layer only decides what to show next.
//
// # Progress Reporting
//
// Long-running chains report [ProgressUpdate] values over an optional channel. Sends never block;
// an update is dropped when the channel is full.
package tasks
