// GoTrue (Supabase auth) client
//
// API reference: https://github.com/supabase/auth
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackshift/internal/models"
	"github.com/desertthunder/trackshift/internal/shared"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultSessionTimeout bounds [IdentityService.CurrentSession].
	DefaultSessionTimeout = 10 * time.Second

	// expirySkew treats tokens this close to expiry as expired.
	expirySkew = 30 * time.Second
)

// SessionStatus is the state of the identity backend session.
type SessionStatus int

const (
	StatusInitializing SessionStatus = iota
	StatusLoadingFromStorage
	StatusAuthenticated
	StatusNotAuthenticated
	StatusRefreshFailure
)

func (s SessionStatus) String() string {
	switch s {
	case StatusInitializing:
		return "Initializing"
	case StatusLoadingFromStorage:
		return "LoadingFromStorage"
	case StatusAuthenticated:
		return "Authenticated"
	case StatusNotAuthenticated:
		return "NotAuthenticated"
	case StatusRefreshFailure:
		return "RefreshFailure"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the status answers "is someone signed in".
func (s SessionStatus) Terminal() bool {
	return s == StatusAuthenticated || s == StatusNotAuthenticated
}

// identitySession is the held GoTrue session.
type identitySession struct {
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	user         models.UserIdentity
}

// sessionResponse is the body of a successful token or signup call.
type sessionResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         userResponse `json:"user"`
}

type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	IsAnonymous bool   `json:"is_anonymous"`
	AppMetadata struct {
		Provider string `json:"provider"`
	} `json:"app_metadata"`
}

func (u userResponse) identity() models.UserIdentity {
	return models.UserIdentity{
		ID:        u.ID,
		Email:     u.Email,
		Anonymous: u.IsAnonymous,
		Provider:  u.AppMetadata.Provider,
	}
}

// errorResponse covers both the current ({code, error_code, msg}) and the older ({error, error_description}) GoTrue error shapes.
type errorResponse struct {
	Code        int    `json:"code"`
	ErrorCode   string `json:"error_code"`
	Msg         string `json:"msg"`
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func (e errorResponse) message() string {
	for _, m := range []string{e.Msg, e.Description, e.Error} {
		if m != "" {
			return m
		}
	}
	return "no error message"
}

// accessClaims are the GoTrue access token claims read without verification.
type accessClaims struct {
	jwt.RegisteredClaims
	Email       string `json:"email"`
	IsAnonymous bool   `json:"is_anonymous"`
	AppMetadata struct {
		Provider string `json:"provider"`
	} `json:"app_metadata"`
}

// IdentityService is a client for the hosted identity backend.
//
// It publishes a [SessionStatus]; sign-in calls move it to Authenticated, and [IdentityService.Start]
// resolves it from the token store on launch.
type IdentityService struct {
	rest           restClient
	apiKey         string
	store          TokenStore
	sessionTimeout time.Duration
	logger         *log.Logger
	now            func() time.Time

	startOnce sync.Once

	mu      sync.Mutex
	status  SessionStatus
	session *identitySession
	changed chan struct{}
}

// IdentityOption configures an [IdentityService].
type IdentityOption func(*IdentityService)

// WithIdentityHTTPClient sets the client used for every request.
func WithIdentityHTTPClient(client *http.Client) IdentityOption {
	return func(s *IdentityService) { s.rest.httpClient = client }
}

// WithIdentityStore persists the session under the "identity" key.
func WithIdentityStore(store TokenStore) IdentityOption {
	return func(s *IdentityService) { s.store = store }
}

// WithSessionTimeout bounds [IdentityService.CurrentSession].
func WithSessionTimeout(d time.Duration) IdentityOption {
	return func(s *IdentityService) {
		if d > 0 {
			s.sessionTimeout = d
		}
	}
}

func WithIdentityLogger(l *log.Logger) IdentityOption {
	return func(s *IdentityService) { s.logger = l }
}

// NewIdentityService creates a client for the GoTrue instance at baseURL (the project URL, without /auth/v1).
func NewIdentityService(baseURL, apiKey string, opts ...IdentityOption) (*IdentityService, error) {
	if baseURL == "" || apiKey == "" {
		return nil, fmt.Errorf("%w: identity url and api key are required", shared.ErrMissingCredentials)
	}

	s := &IdentityService{
		rest:           newRESTClient(strings.TrimSuffix(baseURL, "/")+"/auth/v1", nil),
		apiKey:         apiKey,
		sessionTimeout: DefaultSessionTimeout,
		now:            time.Now,
		status:         StatusInitializing,
		changed:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rest.httpClient == nil {
		s.rest.httpClient = shared.NewHTTPClient(0)
	}
	if s.logger == nil {
		s.logger = shared.NewLogger(nil)
	}
	s.logger = shared.WithLogger(s.logger, "service", "identity")

	return s, nil
}

// Status returns the current session status.
func (s *IdentityService) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Changed returns a channel closed at the next status change.
func (s *IdentityService) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

func (s *IdentityService) setStatus(status SessionStatus, session *identitySession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = status
	s.session = session
	close(s.changed)
	s.changed = make(chan struct{})
	s.logger.Debug("session status changed", "status", status)
}

// transition sets status only while the current status is from, so a sign-in that lands during
// storage loading is not overwritten.
func (s *IdentityService) transition(from, to SessionStatus, session *identitySession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != from {
		return false
	}
	s.status = to
	s.session = session
	close(s.changed)
	s.changed = make(chan struct{})
	s.logger.Debug("session status changed", "status", to)
	return true
}

// Start resolves the session from the token store in the background. Only the first call has an effect.
func (s *IdentityService) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.loadFromStorage(context.WithoutCancel(ctx))
	})
}

func (s *IdentityService) loadFromStorage(ctx context.Context) {
	if !s.transition(StatusInitializing, StatusLoadingFromStorage, nil) {
		return
	}

	if s.store == nil {
		s.transition(StatusLoadingFromStorage, StatusNotAuthenticated, nil)
		return
	}

	stored, err := s.store.Load(ctx, IdentityServiceName)
	if err != nil {
		if !errors.Is(err, shared.ErrTokenNotFound) {
			s.logger.Warn("failed to load stored session", "error", err)
		}
		s.transition(StatusLoadingFromStorage, StatusNotAuthenticated, nil)
		return
	}

	session, err := sessionFromStored(stored)
	if err != nil {
		s.logger.Warn("discarding unreadable stored session", "error", err)
		s.forget(ctx)
		s.transition(StatusLoadingFromStorage, StatusNotAuthenticated, nil)
		return
	}

	if s.now().Add(expirySkew).Before(session.expiresAt) {
		s.transition(StatusLoadingFromStorage, StatusAuthenticated, session)
		return
	}

	if err := s.refresh(ctx, session.refreshToken); err != nil {
		if errors.Is(err, shared.ErrNetwork) || errors.Is(err, shared.ErrServiceUnavailable) {
			s.logger.Warn("session refresh failed, will stay unresolved", "error", err)
			s.transition(StatusLoadingFromStorage, StatusRefreshFailure, nil)
			return
		}
		s.logger.Info("stored session rejected", "error", err)
		if s.transition(StatusLoadingFromStorage, StatusNotAuthenticated, nil) {
			s.forget(ctx)
		}
	}
}

// sessionFromStored rebuilds a session from a persisted token, reading identity and expiry from the JWT claims.
func sessionFromStored(stored *models.StoredToken) (*identitySession, error) {
	claims, err := parseAccessClaims(stored.AccessToken)
	if err != nil {
		return nil, err
	}

	session := &identitySession{
		accessToken:  stored.AccessToken,
		refreshToken: stored.RefreshToken,
		expiresAt:    stored.Expiry,
		user: models.UserIdentity{
			ID:        claims.Subject,
			Email:     claims.Email,
			Anonymous: claims.IsAnonymous,
			Provider:  claims.AppMetadata.Provider,
		},
	}
	if claims.ExpiresAt != nil {
		session.expiresAt = claims.ExpiresAt.Time
	}
	if session.user.ID == "" {
		session.user.ID = stored.Subject
	}
	return session, nil
}

func parseAccessClaims(token string) (*accessClaims, error) {
	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("%w: malformed access token: %v", shared.ErrProtocol, err)
	}
	return &claims, nil
}

// CurrentSession waits for a terminal status and returns the signed-in identity.
//
// The wait is bounded by the session timeout. It returns nil on timeout, when nobody is signed in,
// or when ctx ends first.
func (s *IdentityService) CurrentSession(ctx context.Context) *models.UserIdentity {
	s.Start(ctx)

	ctx, cancel := context.WithTimeout(ctx, s.sessionTimeout)
	defer cancel()

	for {
		s.mu.Lock()
		status, session, changed := s.status, s.session, s.changed
		s.mu.Unlock()

		if status.Terminal() {
			if status == StatusAuthenticated && session != nil {
				user := session.user
				return &user
			}
			return nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			s.logger.Warn("timed out waiting for session", "status", status)
			return nil
		}
	}
}

// SignInWithEmail signs in with an email and password.
func (s *IdentityService) SignInWithEmail(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", shared.ErrInvalidInput)
	}
	payload := map[string]string{"email": email, "password": password}
	return s.authenticate(ctx, "/token?grant_type=password", payload)
}

// SignUpWithEmail creates an account. When the backend requires email confirmation no session is returned
// and the status is left as is.
func (s *IdentityService) SignUpWithEmail(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", shared.ErrInvalidInput)
	}
	payload := map[string]string{"email": email, "password": password}
	return s.authenticate(ctx, "/signup", payload)
}

// SignUpOrSignIn signs in, and creates the account only when the backend reports no usable account.
//
// An existing account rejected at sign-in and again at sign-up is [shared.ErrInvalidCredentials].
func (s *IdentityService) SignUpOrSignIn(ctx context.Context, email, password string) error {
	err := s.SignInWithEmail(ctx, email, password)
	if err == nil {
		return nil
	}
	if !errors.Is(err, shared.ErrInvalidCredentials) && !errors.Is(err, shared.ErrAccountNotFound) {
		return err
	}

	s.logger.Debug("sign-in rejected, trying sign-up", "error", err)
	err = s.SignUpWithEmail(ctx, email, password)
	if errors.Is(err, shared.ErrAlreadyExists) {
		return fmt.Errorf("%w: %v", shared.ErrInvalidCredentials, err)
	}
	return err
}

// SignInAnonymously resumes a held anonymous session, or creates a guest account.
func (s *IdentityService) SignInAnonymously(ctx context.Context) error {
	s.mu.Lock()
	resumable := s.status == StatusAuthenticated && s.session != nil && s.session.user.Anonymous
	s.mu.Unlock()
	if resumable {
		return nil
	}

	payload := map[string]any{"data": map[string]any{}}
	return s.authenticate(ctx, "/signup", payload)
}

// SignInWithIDToken exchanges an Apple or Google ID token for a session.
//
// Apple requires a nonce; a missing one fails before any request is sent.
func (s *IdentityService) SignInWithIDToken(ctx context.Context, idToken, nonce string, provider models.IdentityProvider) error {
	if provider != models.ProviderApple && provider != models.ProviderGoogle {
		return fmt.Errorf("%w: unsupported provider %q", shared.ErrInvalidInput, provider)
	}
	if idToken == "" {
		return fmt.Errorf("%w: id token is required", shared.ErrInvalidInput)
	}
	if provider.RequiresNonce() && nonce == "" {
		return fmt.Errorf("%w: %s sign-in requires a nonce", shared.ErrInvalidInput, provider)
	}

	payload := map[string]string{"provider": string(provider), "id_token": idToken}
	if nonce != "" {
		payload["nonce"] = nonce
	}
	return s.authenticate(ctx, "/token?grant_type=id_token", payload)
}

// SignOut revokes the current session and clears it locally, even when the backend call fails.
func (s *IdentityService) SignOut(ctx context.Context) error {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()
	if session == nil {
		return nil
	}

	headers := s.headers()
	headers.Set("Authorization", "Bearer "+session.accessToken)
	resp, err := s.rest.postJSON(ctx, "/logout", headers, struct{}{})

	s.forget(ctx)
	s.setStatus(StatusNotAuthenticated, nil)

	if err != nil {
		return err
	}
	if !resp.Success() && resp.StatusCode != http.StatusUnauthorized {
		return classifyIdentityResponse(resp)
	}
	return nil
}

func (s *IdentityService) refresh(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return shared.ErrNoRefreshToken
	}
	err := s.authenticate(ctx, "/token?grant_type=refresh_token", map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}
	return nil
}

func (s *IdentityService) headers() http.Header {
	h := make(http.Header)
	h.Set("apikey", s.apiKey)
	h.Set("Authorization", "Bearer "+s.apiKey)
	return h
}

// authenticate posts payload to path and, when the response carries a session, makes it current.
func (s *IdentityService) authenticate(ctx context.Context, path string, payload any) error {
	resp, err := s.rest.postJSON(ctx, path, s.headers(), payload)
	if err != nil {
		return err
	}
	if !resp.Success() {
		return classifyIdentityResponse(resp)
	}

	var body sessionResponse
	if err := resp.Decode(&body); err != nil {
		return err
	}

	if body.AccessToken == "" {
		// signup with email confirmation pending returns the user alone
		s.logger.Info("account created, confirmation pending")
		return nil
	}

	session := &identitySession{
		accessToken:  body.AccessToken,
		refreshToken: body.RefreshToken,
		user:         body.User.identity(),
	}
	switch {
	case body.ExpiresAt > 0:
		session.expiresAt = time.Unix(body.ExpiresAt, 0)
	case body.ExpiresIn > 0:
		session.expiresAt = s.now().Add(time.Duration(body.ExpiresIn) * time.Second)
	default:
		if claims, err := parseAccessClaims(body.AccessToken); err == nil && claims.ExpiresAt != nil {
			session.expiresAt = claims.ExpiresAt.Time
		}
	}
	if session.user.ID == "" {
		return fmt.Errorf("%w: session without a user id", shared.ErrProtocol)
	}

	s.setStatus(StatusAuthenticated, session)
	s.persist(ctx, session)
	return nil
}

func (s *IdentityService) persist(ctx context.Context, session *identitySession) {
	if s.store == nil {
		return
	}
	err := s.store.Save(ctx, models.StoredToken{
		Service:      IdentityServiceName,
		AccessToken:  session.accessToken,
		RefreshToken: session.refreshToken,
		Subject:      session.user.ID,
		Expiry:       session.expiresAt,
	})
	if err != nil {
		s.logger.Warn("failed to persist session", "error", err)
	}
}

func (s *IdentityService) forget(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.Delete(ctx, IdentityServiceName); err != nil && !errors.Is(err, shared.ErrTokenNotFound) {
		s.logger.Warn("failed to delete stored session", "error", err)
	}
}

// classifyIdentityResponse maps a non-2xx GoTrue response to the error taxonomy.
func classifyIdentityResponse(resp *APIResponse) error {
	var body errorResponse
	_ = resp.Decode(&body)
	msg := body.message()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: identity backend returned %d: %s", shared.ErrServiceUnavailable, resp.StatusCode, msg)
	case body.ErrorCode == "user_not_found":
		return fmt.Errorf("%w: %s", shared.ErrAccountNotFound, msg)
	case body.ErrorCode == "invalid_credentials" || body.Error == "invalid_grant":
		return fmt.Errorf("%w: %s", shared.ErrInvalidCredentials, msg)
	case body.ErrorCode == "user_already_exists" || body.ErrorCode == "email_exists",
		resp.StatusCode == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "already registered"):
		return fmt.Errorf("%w: %s", shared.ErrAlreadyExists, msg)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: rate limited: %s", shared.ErrAPIRequest, msg)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: %s", shared.ErrAuthFailed, msg)
	default:
		return fmt.Errorf("%w: unexpected status %d", shared.ErrProtocol, resp.StatusCode)
	}
}
