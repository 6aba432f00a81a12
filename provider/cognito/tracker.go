package cognito

import (
	"context"

	"github.com/habit-tracker/go-auth"
)

const (
	keyLastAuthUser = "LastAuthUser"
	keyAccessToken  = "accessToken"
	keyIDToken      = "idToken"
	keyRefreshToken = "refreshToken"
)

// tracker remembers the last authenticated user and that user's tokens in
// the injected storage, under the same keys the Cognito JS SDK uses.
type tracker struct {
	storage auth.Storage
	prefix  string
}

func newTracker(storage auth.Storage, prefix string) *tracker {
	return &tracker{storage: storage, prefix: prefix}
}

func (t *tracker) lastUserKey() string {
	return t.prefix + "." + keyLastAuthUser
}

func (t *tracker) userKey(username, name string) string {
	return t.prefix + "." + username + "." + name
}

func (t *tracker) userKeys(username string) []string {
	return []string{
		t.userKey(username, keyIDToken),
		t.userKey(username, keyAccessToken),
		t.userKey(username, keyRefreshToken),
	}
}

func (t *tracker) lastUser(ctx context.Context) (string, bool, error) {
	username, ok, err := t.storage.Get(ctx, t.lastUserKey())
	if err != nil {
		return "", false, auth.WrapError(auth.ErrPersistence, err, map[string]any{"key": t.lastUserKey()})
	}
	if !ok || username == "" {
		return "", false, nil
	}
	return username, true, nil
}

// store writes the tokens and marks username as the tracked user. An empty
// refresh token keeps the previously stored one.
func (t *tracker) store(ctx context.Context, username string, tokens auth.TokenBundle) error {
	type entry struct{ key, value string }

	writes := []entry{
		{t.userKey(username, keyIDToken), tokens.IDToken},
		{t.userKey(username, keyAccessToken), tokens.AccessToken},
	}
	if tokens.RefreshToken != "" {
		writes = append(writes, entry{t.userKey(username, keyRefreshToken), tokens.RefreshToken})
	}
	writes = append(writes, entry{t.lastUserKey(), username})

	for _, w := range writes {
		if err := t.storage.Set(ctx, w.key, w.value); err != nil {
			return auth.WrapError(auth.ErrPersistence, err, map[string]any{"key": w.key})
		}
	}
	return nil
}

func (t *tracker) tokens(ctx context.Context, username string) (auth.TokenBundle, error) {
	var bundle auth.TokenBundle
	fields := []struct {
		name   string
		target *string
	}{
		{keyIDToken, &bundle.IDToken},
		{keyAccessToken, &bundle.AccessToken},
		{keyRefreshToken, &bundle.RefreshToken},
	}

	for _, f := range fields {
		key := t.userKey(username, f.name)
		value, _, err := t.storage.Get(ctx, key)
		if err != nil {
			return bundle, auth.WrapError(auth.ErrPersistence, err, map[string]any{"key": key})
		}
		*f.target = value
	}
	return bundle, nil
}

func (t *tracker) clear(ctx context.Context, username string) error {
	keys := append(t.userKeys(username), t.lastUserKey())
	if err := t.storage.RemoveMany(ctx, keys...); err != nil {
		return auth.WrapError(auth.ErrPersistence, err, map[string]any{"keys": keys})
	}
	return nil
}
