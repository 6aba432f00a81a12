package cognito

import (
	"errors"

	"github.com/aws/smithy-go"
	goerrors "github.com/goliatone/go-errors"
	"github.com/habit-tracker/go-auth"
)

// ErrUnsupportedChallenge is returned when Cognito answers with a challenge
// other than NEW_PASSWORD_REQUIRED (MFA, custom auth).
var ErrUnsupportedChallenge = goerrors.New("unsupported authentication challenge", goerrors.CategoryAuth).
	WithTextCode("UNSUPPORTED_CHALLENGE").
	WithCode(goerrors.CodeForbidden)

// exceptionErrors maps Cognito exception codes onto the auth taxonomy.
var exceptionErrors = map[string]*goerrors.Error{
	"UsernameExistsException":        auth.ErrUserExists,
	"AliasExistsException":           auth.ErrUserExists,
	"UserNotFoundException":          auth.ErrUserNotFound,
	"NotAuthorizedException":         auth.ErrNotAuthorized,
	"UserNotConfirmedException":      auth.ErrUserNotConfirmed,
	"PasswordResetRequiredException": auth.ErrPasswordResetRequired,
	"CodeMismatchException":          auth.ErrCodeMismatch,
	"ExpiredCodeException":           auth.ErrCodeExpired,
	"InvalidPasswordException":       auth.ErrInvalidPassword,
	"InvalidParameterException":      auth.ErrInvalidParameter,
	"LimitExceededException":         auth.ErrLimitExceeded,
	"TooManyRequestsException":       auth.ErrLimitExceeded,
	"TooManyFailedAttemptsException": auth.ErrLimitExceeded,
}

// classify translates a Cognito API error into the auth taxonomy. Anything
// it does not recognise is returned unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	base, ok := exceptionErrors[apiErr.ErrorCode()]
	if !ok {
		return err
	}

	return auth.WrapError(base, err, map[string]any{
		"operation":        op,
		"provider_code":    apiErr.ErrorCode(),
		"provider_message": apiErr.ErrorMessage(),
	})
}
