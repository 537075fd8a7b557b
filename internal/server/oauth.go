package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/desertthunder/trackshift/internal/shared"
)

// CallbackFunc completes the authorization with the code from the redirect.
type CallbackFunc func(ctx context.Context, code string) bool

// OAuthResult contains the result of an OAuth authorization flow.
type OAuthResult struct {
	err error
}

func (o OAuthResult) Error() error {
	return o.err
}

// OAuthHandler handles the authorization code redirect.
// Implements the Handler interface for registration with a Router.
type OAuthHandler struct {
	state       string
	path        string
	callback    CallbackFunc
	resultChan  chan OAuthResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewOAuthHandler creates a handler serving path that accepts only redirects carrying state.
func NewOAuthHandler(state, path string, callback CallbackFunc) *OAuthHandler {
	if path == "" {
		path = "/callback"
	}
	return &OAuthHandler{
		state:      state,
		path:       path,
		callback:   callback,
		resultChan: make(chan OAuthResult, 1),
	}
}

// CallbackPath returns the path component of a loopback redirect URI, or an error when the URI
// cannot be served locally.
func CallbackPath(redirectURI string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("%w: redirect uri: %v", shared.ErrInvalidConfig, err)
	}
	if u.Scheme != "http" {
		return "", fmt.Errorf("%w: redirect uri %q is not an http loopback url", shared.ErrInvalidConfig, redirectURI)
	}
	if u.Path == "" {
		return "/", nil
	}
	return u.Path, nil
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{h.path}
}

// ServeHTTP validates the state parameter, hands the code to the callback and reports the outcome
// through the result channel.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	query := r.URL.Query()
	if query.Get("state") != h.state {
		h.Send(OAuthResult{err: fmt.Errorf("%w: invalid state parameter", shared.ErrAuthFailed)})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		err := fmt.Errorf("%w: %s - %s", shared.ErrAuthFailed, query.Get("error"), query.Get("error_description"))
		h.Send(OAuthResult{err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	if !h.callback(r.Context(), code) {
		h.Send(OAuthResult{err: fmt.Errorf("%w: token exchange failed", shared.ErrAuthFailed)})
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	h.Send(OAuthResult{})

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, successPage)
}

// Send sends the OAuth result through the channel (only once).
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving OAuth flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}

const successPage = `<!DOCTYPE html>
<html>
<head>
    <title>TrackShift</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ Spotify connected</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`
