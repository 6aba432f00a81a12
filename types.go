package auth

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// IdentityProvider is the remote side of every credential operation plus the
// provider's view of the device session (the tracked user handle).
type IdentityProvider interface {
	SignUp(ctx context.Context, input SignUpInput) (*SignUpResult, error)
	ConfirmSignUp(ctx context.Context, username, code string) error
	ResendConfirmationCode(ctx context.Context, username string) (*CodeDelivery, error)

	// Authenticate returns either tokens or a new password challenge. A
	// successful authentication makes username the tracked user.
	Authenticate(ctx context.Context, username, password string) (*AuthOutcome, error)
	RespondNewPassword(ctx context.Context, challenge *NewPasswordChallenge, newPassword string, attributes Attributes) (*AuthOutcome, error)

	ForgotPassword(ctx context.Context, username string) (*CodeDelivery, error)
	ConfirmForgotPassword(ctx context.Context, username, code, newPassword string) error
	ChangePassword(ctx context.Context, accessToken, oldPassword, newPassword string) error

	GetUserAttributes(ctx context.Context, accessToken string) (Attributes, error)

	// CurrentUser reports the tracked user handle, if any.
	CurrentUser(ctx context.Context) (string, bool, error)
	// GetSession reports validity through ProviderSession.Valid and only
	// fails on unexpected errors.
	GetSession(ctx context.Context, username string) (*ProviderSession, error)
	// SignOut drops the tracked user handle.
	SignOut(ctx context.Context, username string) error
}

// Storage is the local key/value capability used for persisted tokens.
// Removing keys that do not exist must not fail.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	RemoveMany(ctx context.Context, keys ...string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
