// Package server provides the loopback HTTP listener used to receive the Spotify OAuth redirect.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # OAuth Callback Handler
//
// [OAuthHandler] receives the authorization code redirect. It validates the state parameter,
// passes the code to a [CallbackFunc] and delivers a single [OAuthResult] through a channel.
// Only the first callback is processed.
//
// # Usage
//
// When the Spotify redirect URI is an http loopback URL, `trackshift spotify login` serves the
// handler on that URI's path with [Listen], opens the browser and waits for the result.
package server
