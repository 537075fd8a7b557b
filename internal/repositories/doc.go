// Package repositories provides the sqlite persistence used by the backend clients.
//
// [TokenRepository] stores the identity session and the Spotify token pair so a restarted process
// resumes without signing in again. It satisfies the services.TokenStore interface.
package repositories
