package auth

import (
	"context"
)

// GetCurrentUser derives the session from the provider and returns a fresh
// profile. ok is false, with a nil error, when nobody is tracked or the
// tracked session is no longer valid.
func (c *Client) GetCurrentUser(ctx context.Context) (*UserProfile, bool, error) {
	session, err := c.liveSession(ctx, "get_current_user")
	if err != nil {
		if IsNoSession(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	attributes, err := c.provider.GetUserAttributes(ctx, session.Tokens.AccessToken)
	if err != nil {
		c.logger.Error("get current user attributes error for %s: %v", session.Username, err)
		return nil, false, err
	}

	c.transition(ctx, StateSignedIn, session.Username, "session_valid")
	return attributes.Profile(session.Username), true, nil
}

// GetAccessToken returns the access token of the current valid session. It
// fails with ErrNoCurrentUser when nobody is tracked and with
// ErrSessionExpired when the tracked session cannot be used.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	session, err := c.liveSession(ctx, "get_access_token")
	if err != nil {
		return "", err
	}

	c.transition(ctx, StateSignedIn, session.Username, "session_valid")
	return session.Tokens.AccessToken, nil
}

// RestoreSession is called on cold start to pick up a session left by a
// previous run.
func (c *Client) RestoreSession(ctx context.Context) (*UserProfile, bool, error) {
	profile, ok, err := c.GetCurrentUser(ctx)
	switch {
	case err != nil:
		c.logger.Error("restore session error: %v", err)
	case ok:
		c.logger.Info("session restored for %s", profile.Username)
		c.emit(ctx, ActivityEventSessionRestored, profile.Username, profile.SubjectID, nil)
	default:
		c.logger.Debug("no session to restore")
	}
	return profile, ok, err
}

// SavedProfile returns the profile persisted at the last sign-in without
// contacting the provider. It may be stale. An unreadable or corrupt profile
// is logged and reported as absent.
func (c *Client) SavedProfile(ctx context.Context) (*UserProfile, bool, error) {
	profile, ok, err := c.tokens.Load(ctx)
	if err != nil {
		c.logger.Error("get saved user data error: %v", err)
		return nil, false, nil
	}
	return profile, ok, nil
}

// liveSession returns the tracked user's valid session. When there is none
// the state collapses from SignedIn to SignedOut.
func (c *Client) liveSession(ctx context.Context, op string) (*ProviderSession, error) {
	username, ok, err := c.provider.CurrentUser(ctx)
	if err != nil {
		c.logger.Error("%s current user error: %v", op, err)
		return nil, err
	}
	if !ok {
		c.collapse(ctx, "", "no_current_user")
		return nil, WrapError(ErrNoCurrentUser, nil, map[string]any{"operation": op})
	}

	session, err := c.provider.GetSession(ctx, username)
	if err != nil {
		c.logger.Error("%s get session error for %s: %v", op, username, err)
		return nil, err
	}
	if !session.IsValid() {
		c.logger.Debug("%s session not valid for %s", op, username)
		c.collapse(ctx, username, "session_invalid")
		return nil, WrapError(ErrSessionExpired, nil, map[string]any{
			"operation": op,
			"username":  username,
		})
	}

	return session, nil
}

// collapse moves SignedIn to SignedOut. AwaitingConfirmation is only known
// in memory and is kept.
func (c *Client) collapse(ctx context.Context, username, reason string) {
	if c.machine.Current() != StateSignedIn {
		return
	}
	c.transition(ctx, StateSignedOut, username, reason)
}
