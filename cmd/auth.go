package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/trackshift/internal/models"
	"github.com/desertthunder/trackshift/internal/shared"
	"github.com/desertthunder/trackshift/internal/tasks"
	"github.com/desertthunder/trackshift/internal/ui"
	"github.com/urfave/cli/v3"
)

type authStatus struct {
	Authenticated bool                 `json:"authenticated"`
	User          *models.UserIdentity `json:"user,omitempty"`
}

func (r *Runner) authTasks() (*tasks.AuthTasks, error) {
	svc, err := r.identityService()
	if err != nil {
		return nil, err
	}
	return tasks.NewAuthTasks(svc, r.logger), nil
}

// AuthStatus shows the account held by the identity backend session.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.identityService()
	if err != nil {
		return err
	}

	user := svc.CurrentSession(ctx)
	return r.result(authStatus{Authenticated: user != nil, User: user}, func() error {
		if user == nil {
			return r.writePlain("%s\n", ui.Failure("Not signed in"))
		}
		return r.writePlain("%s\n", ui.Success("Signed in as "+describeUser(user)))
	})
}

// AuthEmail signs in, creating the account when the email is new.
func (r *Runner) AuthEmail(ctx context.Context, cmd *cli.Command) error {
	email, password := cmd.StringArg("email"), cmd.StringArg("password")
	if email == "" || password == "" {
		return fmt.Errorf("%w: usage: trackshift auth email <email> <password>", shared.ErrMissingArgument)
	}

	auth, err := r.authTasks()
	if err != nil {
		return err
	}
	if !auth.AuthenticateWithEmail(ctx, email, password) {
		return fmt.Errorf("%w: email sign-in failed", shared.ErrAuthFailed)
	}
	return r.printSession(ctx)
}

// AuthAnonymous resumes a stored guest session or starts a new one.
func (r *Runner) AuthAnonymous(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.identityService()
	if err != nil {
		return err
	}
	// resolve the stored session first so a held guest session is resumed
	svc.CurrentSession(ctx)

	if !tasks.NewAuthTasks(svc, r.logger).AuthenticateAnonymously(ctx) {
		return fmt.Errorf("%w: guest sign-in failed", shared.ErrAuthFailed)
	}
	return r.printSession(ctx)
}

func (r *Runner) AuthApple(ctx context.Context, cmd *cli.Command) error {
	token := cmd.StringArg("id-token")
	if token == "" {
		return fmt.Errorf("%w: id token is required", shared.ErrMissingArgument)
	}

	auth, err := r.authTasks()
	if err != nil {
		return err
	}
	if !auth.AuthenticateWithAppleIDToken(ctx, token, cmd.String("nonce")) {
		return fmt.Errorf("%w: apple sign-in failed", shared.ErrAuthFailed)
	}
	return r.printSession(ctx)
}

func (r *Runner) AuthGoogle(ctx context.Context, cmd *cli.Command) error {
	token := cmd.StringArg("id-token")
	if token == "" {
		return fmt.Errorf("%w: id token is required", shared.ErrMissingArgument)
	}

	auth, err := r.authTasks()
	if err != nil {
		return err
	}
	if !auth.AuthenticateWithGoogleIDToken(ctx, token) {
		return fmt.Errorf("%w: google sign-in failed", shared.ErrAuthFailed)
	}
	return r.printSession(ctx)
}

// AuthLogout signs out and deletes the stored session.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.identityService()
	if err != nil {
		return err
	}
	svc.CurrentSession(ctx)

	if err := svc.SignOut(ctx); err != nil {
		r.logger.Warn("sign-out request failed, session cleared locally", "error", err)
	}
	return r.result(authStatus{}, func() error {
		return r.writePlain("%s\n", ui.Success("Signed out"))
	})
}

func (r *Runner) printSession(ctx context.Context) error {
	svc, err := r.identityService()
	if err != nil {
		return err
	}
	user := svc.CurrentSession(ctx)
	return r.result(authStatus{Authenticated: user != nil, User: user}, func() error {
		if user == nil {
			return r.writePlain("%s\n", ui.Warning("Account created. Confirm your email, then sign in again."))
		}
		return r.writePlain("%s\n", ui.Success("Signed in as "+describeUser(user)))
	})
}

func describeUser(user *models.UserIdentity) string {
	switch {
	case user.Anonymous:
		return fmt.Sprintf("guest (%s)", user.ID)
	case user.Email != "":
		return fmt.Sprintf("%s (%s)", user.Email, user.ID)
	default:
		return user.ID
	}
}
