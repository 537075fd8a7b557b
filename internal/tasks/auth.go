package tasks

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackshift/internal/models"
	"github.com/desertthunder/trackshift/internal/shared"
)

// IdentityClient is the part of the identity backend client the sign-in flows need.
type IdentityClient interface {
	CurrentSession(ctx context.Context) *models.UserIdentity
	SignUpOrSignIn(ctx context.Context, email, password string) error
	SignInAnonymously(ctx context.Context) error
	SignInWithIDToken(ctx context.Context, idToken, nonce string, provider models.IdentityProvider) error
}

// AuthTasks runs the identity sign-in flows.
type AuthTasks struct {
	client IdentityClient
	logger *log.Logger
}

func NewAuthTasks(client IdentityClient, logger *log.Logger) *AuthTasks {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &AuthTasks{client: client, logger: shared.WithLogger(logger, "tasks", "auth")}
}

// IsAuthenticated reports whether a session is held, waiting for the identity client to resolve it.
func (a *AuthTasks) IsAuthenticated(ctx context.Context) bool {
	return a.client.CurrentSession(ctx) != nil
}

// AuthenticateWithEmail signs in, creating the account when it does not exist yet.
func (a *AuthTasks) AuthenticateWithEmail(ctx context.Context, email, password string) bool {
	return a.report("email", a.client.SignUpOrSignIn(ctx, email, password))
}

func (a *AuthTasks) AuthenticateAnonymously(ctx context.Context) bool {
	return a.report("anonymous", a.client.SignInAnonymously(ctx))
}

func (a *AuthTasks) AuthenticateWithAppleIDToken(ctx context.Context, idToken, nonce string) bool {
	return a.report("apple", a.client.SignInWithIDToken(ctx, idToken, nonce, models.ProviderApple))
}

func (a *AuthTasks) AuthenticateWithGoogleIDToken(ctx context.Context, idToken string) bool {
	return a.report("google", a.client.SignInWithIDToken(ctx, idToken, "", models.ProviderGoogle))
}

func (a *AuthTasks) report(method string, err error) bool {
	if err != nil {
		a.logger.Error("sign-in failed", "method", method, "kind", shared.Kind(err), "error", err)
		return false
	}
	a.logger.Info("signed in", "method", method)
	return true
}
