package auth

import (
	stderrors "errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidInput          = "INVALID_INPUT"
	TextCodeInvalidParameter      = "INVALID_PARAMETER"
	TextCodeInvalidPassword       = "INVALID_PASSWORD"
	TextCodeUserExists            = "USER_EXISTS"
	TextCodeUserNotFound          = "USER_NOT_FOUND"
	TextCodeNotAuthorized         = "NOT_AUTHORIZED"
	TextCodeUserNotConfirmed      = "USER_NOT_CONFIRMED"
	TextCodePasswordResetRequired = "PASSWORD_RESET_REQUIRED"
	TextCodeCodeMismatch          = "CODE_MISMATCH"
	TextCodeCodeExpired           = "CODE_EXPIRED"
	TextCodeLimitExceeded         = "LIMIT_EXCEEDED"
	TextCodeNoCurrentUser         = "NO_CURRENT_USER"
	TextCodeSessionExpired        = "SESSION_EXPIRED"
	TextCodePersistence           = "PERSISTENCE_FAILURE"
	TextCodeInvalidTransition     = "INVALID_SESSION_STATE_TRANSITION"
)

// ErrInvalidInput is returned when a request is rejected locally, before the
// provider is contacted.
var ErrInvalidInput = goerrors.New("invalid input", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidInput).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidParameter is returned when the provider rejects a malformed field.
var ErrInvalidParameter = goerrors.New("invalid parameter", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidParameter).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidPassword is returned when a password does not meet the pool policy.
var ErrInvalidPassword = goerrors.New("password does not satisfy policy", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrUserExists is returned when registering an identity that already exists.
var ErrUserExists = goerrors.New("user already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeUserExists).
	WithCode(goerrors.CodeConflict)

// ErrUserNotFound is returned for unknown usernames.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrNotAuthorized is returned for wrong credentials or a rejected token.
var ErrNotAuthorized = goerrors.New("incorrect username or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeNotAuthorized).
	WithCode(goerrors.CodeUnauthorized)

// ErrUserNotConfirmed is returned when signing in before confirming registration.
var ErrUserNotConfirmed = goerrors.New("user is not confirmed", goerrors.CategoryAuth).
	WithTextCode(TextCodeUserNotConfirmed).
	WithCode(goerrors.CodeForbidden)

// ErrPasswordResetRequired is returned when the provider demands a reset
// through the forgot password flow.
var ErrPasswordResetRequired = goerrors.New("password reset required", goerrors.CategoryAuth).
	WithTextCode(TextCodePasswordResetRequired).
	WithCode(goerrors.CodeForbidden)

// ErrCodeMismatch is returned for a wrong confirmation or reset code.
var ErrCodeMismatch = goerrors.New("invalid verification code", goerrors.CategoryAuth).
	WithTextCode(TextCodeCodeMismatch).
	WithCode(goerrors.CodeBadRequest)

// ErrCodeExpired is returned for a confirmation or reset code past its lifetime.
var ErrCodeExpired = goerrors.New("verification code expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeCodeExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrLimitExceeded is returned when the provider throttles the request.
var ErrLimitExceeded = goerrors.New("attempt limit exceeded", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeLimitExceeded)

// ErrNoCurrentUser is returned when an operation needs a signed in user and
// the provider tracks none.
var ErrNoCurrentUser = goerrors.New("no current user", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoCurrentUser).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionExpired is returned when a user is tracked but its session is no
// longer valid.
var ErrSessionExpired = goerrors.New("session is not valid", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrPersistence is returned when local storage fails on a path that needs it.
var ErrPersistence = goerrors.New("local session storage failed", goerrors.CategoryInternal).
	WithTextCode(TextCodePersistence).
	WithCode(goerrors.CodeInternal)

// ErrInvalidTransition is returned when a session state change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid session state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// WrapError returns a copy of base carrying cause. Both base and cause stay
// reachable through errors.Is and errors.As.
func WrapError(base *goerrors.Error, cause error, metadata map[string]any) error {
	if base == nil {
		return cause
	}

	clone := base.Clone()
	if clone == nil {
		return base
	}

	if cause != nil {
		clone.Source = stderrors.Join(base, cause)
	} else {
		clone.Source = base
	}

	if len(metadata) > 0 {
		return clone.WithMetadata(metadata)
	}
	return clone
}

// IsNoSession reports whether err means there is no usable session, either
// because nobody signed in or because the session expired.
func IsNoSession(err error) bool {
	return stderrors.Is(err, ErrNoCurrentUser) || stderrors.Is(err, ErrSessionExpired)
}

// TextCode extracts the text code from a go-errors error chain.
func TextCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}
