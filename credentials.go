package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// ErrMissingTokens is returned when the provider reports a successful
// authentication without handing back tokens.
var ErrMissingTokens = goerrors.New("provider returned no tokens", goerrors.CategoryInternal).
	WithTextCode("MISSING_TOKENS").
	WithCode(goerrors.CodeInternal)

// Register creates a new identity with email as username. When the provider
// does not auto-confirm, the client waits for ConfirmRegistration.
func (c *Client) Register(ctx context.Context, email, password, name string) (*SignUpResult, error) {
	if err := validate("register", signUpRequest{Email: email, Password: password, Name: name}); err != nil {
		return nil, err
	}

	attributes := Attributes{AttributeEmail: email}
	if name != "" {
		attributes[AttributeName] = name
	}

	result, err := c.provider.SignUp(ctx, SignUpInput{
		Username:   email,
		Password:   password,
		Attributes: attributes,
	})
	if err != nil {
		c.logger.Error("sign up error for %s: %v", email, err)
		return nil, err
	}

	c.logger.Info("user registered: %s", result.Username)
	c.emit(ctx, ActivityEventSignUp, result.Username, result.UserSubjectID, map[string]any{
		"confirmed": result.UserConfirmed,
	})

	if !result.UserConfirmed && c.machine.Current() == StateSignedOut {
		c.transition(ctx, StateAwaitingConfirmation, result.Username, "registered")
	}

	return result, nil
}

// ConfirmRegistration submits the one-time code sent at registration. It does
// not sign the user in.
func (c *Client) ConfirmRegistration(ctx context.Context, username, code string) (string, error) {
	if err := validate("confirm_registration", codeRequest{Username: username, Code: code}); err != nil {
		return "", err
	}

	if err := c.provider.ConfirmSignUp(ctx, username, code); err != nil {
		c.logger.Error("confirmation error for %s: %v", username, err)
		return "", err
	}

	c.logger.Info("confirmation successful for %s", username)
	c.emit(ctx, ActivityEventSignUpConfirmed, username, "", nil)

	if c.machine.Current() == StateAwaitingConfirmation {
		c.transition(ctx, StateSignedOut, username, "confirmed")
	}

	return ConfirmationSuccess, nil
}

// ResendConfirmationCode asks the provider to deliver a new confirmation code.
func (c *Client) ResendConfirmationCode(ctx context.Context, username string) (*CodeDelivery, error) {
	if err := validate("resend_confirmation_code", usernameRequest{Username: username}); err != nil {
		return nil, err
	}

	delivery, err := c.provider.ResendConfirmationCode(ctx, username)
	if err != nil {
		c.logger.Error("resend code error for %s: %v", username, err)
		return nil, err
	}

	c.emit(ctx, ActivityEventCodeResent, username, "", deliveryMetadata(delivery))
	return delivery, nil
}

// SignIn authenticates and persists profile and tokens. When the provider
// demands a new password the result carries the challenge, nothing is
// persisted and the error is nil.
func (c *Client) SignIn(ctx context.Context, username, password string) (*SignInResult, error) {
	if err := validate("sign_in", credentialsRequest{Username: username, Password: password}); err != nil {
		return nil, err
	}

	outcome, err := c.provider.Authenticate(ctx, username, password)
	if err != nil {
		c.logger.Error("sign in error for %s: %v", username, err)
		c.emit(ctx, ActivityEventLoginFailure, username, "", map[string]any{
			"error": err.Error(),
			"code":  TextCode(err),
		})
		return nil, err
	}

	return c.finishAuthentication(ctx, username, outcome)
}

// CompleteNewPassword answers a new password challenge returned by SignIn.
// On success it behaves exactly like a successful SignIn.
func (c *Client) CompleteNewPassword(ctx context.Context, challenge *NewPasswordChallenge, newPassword string, attributes Attributes) (*SignInResult, error) {
	if challenge == nil {
		return nil, WrapError(ErrInvalidInput, nil, map[string]any{
			"operation": "complete_new_password",
			"field":     "challenge",
		})
	}
	if err := validate("complete_new_password", newPasswordRequest{Username: challenge.Username, NewPassword: newPassword}); err != nil {
		return nil, err
	}

	outcome, err := c.provider.RespondNewPassword(ctx, challenge, newPassword, attributes)
	if err != nil {
		c.logger.Error("new password challenge error for %s: %v", challenge.Username, err)
		c.emit(ctx, ActivityEventLoginFailure, challenge.Username, "", map[string]any{
			"error":     err.Error(),
			"code":      TextCode(err),
			"challenge": "new_password_required",
		})
		return nil, err
	}

	return c.finishAuthentication(ctx, challenge.Username, outcome)
}

func (c *Client) finishAuthentication(ctx context.Context, username string, outcome *AuthOutcome) (*SignInResult, error) {
	if outcome != nil && outcome.NewPasswordRequired != nil {
		c.logger.Info("new password required for %s", username)
		c.emit(ctx, ActivityEventNewPasswordRequired, username, "", map[string]any{
			"required_attributes": outcome.NewPasswordRequired.RequiredAttributes,
		})
		return &SignInResult{NewPasswordRequired: outcome.NewPasswordRequired}, nil
	}

	if outcome == nil || outcome.Tokens == nil {
		return nil, WrapError(ErrMissingTokens, nil, map[string]any{"username": username})
	}
	tokens := *outcome.Tokens

	attributes, err := c.provider.GetUserAttributes(ctx, tokens.AccessToken)
	if err != nil {
		c.logger.Error("get attributes error for %s: %v", username, err)
		c.emit(ctx, ActivityEventLoginFailure, username, "", map[string]any{
			"error": err.Error(),
			"stage": "attributes",
		})
		return nil, err
	}

	profile := attributes.Profile(username)

	if err := c.tokens.Save(ctx, profile, tokens.AccessToken, tokens.RefreshToken); err != nil {
		c.logger.Error("save user data error for %s: %v", username, err)
		c.emit(ctx, ActivityEventSessionPersistFailure, username, profile.SubjectID, map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	c.transition(ctx, StateSignedIn, username, "signed_in")

	c.logger.Info("user signed in: %s", profile.Email)
	c.emit(ctx, ActivityEventLoginSuccess, username, profile.SubjectID, nil)

	return &SignInResult{Profile: profile, Tokens: &tokens}, nil
}

// SignOut tells the provider to drop its tracked user and clears persisted
// tokens. Local clearing always runs; its failure is logged, not returned.
// A provider failure is returned after local state has been cleared.
func (c *Client) SignOut(ctx context.Context) (bool, error) {
	var providerErr error

	username, ok, err := c.provider.CurrentUser(ctx)
	switch {
	case err != nil:
		providerErr = err
	case ok:
		providerErr = c.provider.SignOut(ctx, username)
	}

	if err := c.tokens.ClearAll(ctx); err != nil {
		c.logger.Error("sign out storage clear error: %v", err)
	}

	c.transition(ctx, StateSignedOut, username, "signed_out")

	metadata := map[string]any{"tracked": ok}
	if providerErr != nil {
		metadata["error"] = providerErr.Error()
	}
	c.emit(ctx, ActivityEventLogout, username, "", metadata)

	if providerErr != nil {
		c.logger.Error("sign out error: %v", providerErr)
		return false, providerErr
	}

	c.logger.Info("user signed out successfully")
	return true, nil
}

// ForgotPassword asks the provider to send a password reset code.
func (c *Client) ForgotPassword(ctx context.Context, username string) (*CodeDelivery, error) {
	if err := validate("forgot_password", usernameRequest{Username: username}); err != nil {
		return nil, err
	}

	delivery, err := c.provider.ForgotPassword(ctx, username)
	if err != nil {
		c.logger.Error("forgot password error for %s: %v", username, err)
		return nil, err
	}

	c.logger.Info("password reset code sent for %s", username)
	c.emit(ctx, ActivityEventPasswordResetRequest, username, "", deliveryMetadata(delivery))
	return delivery, nil
}

// ConfirmPassword sets newPassword using the reset code from ForgotPassword.
func (c *Client) ConfirmPassword(ctx context.Context, username, code, newPassword string) error {
	if err := validate("confirm_password", confirmPasswordRequest{Username: username, Code: code, NewPassword: newPassword}); err != nil {
		return err
	}

	if err := c.provider.ConfirmForgotPassword(ctx, username, code, newPassword); err != nil {
		c.logger.Error("confirm password error for %s: %v", username, err)
		return err
	}

	c.logger.Info("password successfully reset for %s", username)
	c.emit(ctx, ActivityEventPasswordResetSuccess, username, "", nil)
	return nil
}

// ChangePassword changes the signed in user's password. It fails with
// ErrNoCurrentUser before contacting the provider when nobody is tracked.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) (string, error) {
	if err := validate("change_password", changePasswordRequest{OldPassword: oldPassword, NewPassword: newPassword}); err != nil {
		return "", err
	}

	session, err := c.liveSession(ctx, "change_password")
	if err != nil {
		return "", err
	}

	if err := c.provider.ChangePassword(ctx, session.Tokens.AccessToken, oldPassword, newPassword); err != nil {
		c.logger.Error("change password error for %s: %v", session.Username, err)
		return "", err
	}

	c.logger.Info("password changed successfully for %s", session.Username)
	c.emit(ctx, ActivityEventPasswordChanged, session.Username, "", nil)
	return ChangePasswordSuccess, nil
}

func deliveryMetadata(d *CodeDelivery) map[string]any {
	if d == nil {
		return nil
	}
	return map[string]any{
		"medium":      d.DeliveryMedium,
		"destination": d.Destination,
	}
}
