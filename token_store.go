package auth

import (
	"context"
	"encoding/json"
	"strings"
)

// DefaultNamespace prefixes every key the TokenStore writes.
const DefaultNamespace = "@habit_tracker"

const (
	keyUserData     = "user_data"
	keyAccessToken  = "user_token"
	keyRefreshToken = "refresh_token"
)

// TokenStore persists the signed in user's profile, access token and refresh
// token as three independent keys.
type TokenStore struct {
	storage   Storage
	namespace string
}

// NewTokenStore returns a store writing under namespace, or DefaultNamespace
// when namespace is blank.
func NewTokenStore(storage Storage, namespace string) *TokenStore {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &TokenStore{storage: storage, namespace: namespace}
}

func (s *TokenStore) key(name string) string {
	return s.namespace + ":" + name
}

// Keys lists every key the store owns.
func (s *TokenStore) Keys() []string {
	return []string{
		s.key(keyAccessToken),
		s.key(keyUserData),
		s.key(keyRefreshToken),
	}
}

// Save writes profile, accessToken and refreshToken in that order. The writes
// are not atomic: a failure leaves earlier writes in place and the caller
// must treat the persisted session as unusable.
func (s *TokenStore) Save(ctx context.Context, profile *UserProfile, accessToken, refreshToken string) error {
	if profile == nil {
		return WrapError(ErrInvalidInput, nil, map[string]any{"field": "profile"})
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return WrapError(ErrPersistence, err, map[string]any{"key": s.key(keyUserData)})
	}

	writes := []struct {
		key   string
		value string
	}{
		{s.key(keyUserData), string(data)},
		{s.key(keyAccessToken), accessToken},
		{s.key(keyRefreshToken), refreshToken},
	}

	for _, w := range writes {
		if err := s.storage.Set(ctx, w.key, w.value); err != nil {
			return WrapError(ErrPersistence, err, map[string]any{"key": w.key})
		}
	}

	return nil
}

// Load returns the persisted profile, if any.
func (s *TokenStore) Load(ctx context.Context) (*UserProfile, bool, error) {
	raw, ok, err := s.storage.Get(ctx, s.key(keyUserData))
	if err != nil {
		return nil, false, WrapError(ErrPersistence, err, map[string]any{"key": s.key(keyUserData)})
	}
	if !ok || raw == "" {
		return nil, false, nil
	}

	profile := &UserProfile{}
	if err := json.Unmarshal([]byte(raw), profile); err != nil {
		return nil, false, WrapError(ErrPersistence, err, map[string]any{"key": s.key(keyUserData)})
	}
	return profile, true, nil
}

// AccessToken returns the persisted access token, if any.
func (s *TokenStore) AccessToken(ctx context.Context) (string, bool, error) {
	return s.get(ctx, keyAccessToken)
}

// RefreshToken returns the persisted refresh token, if any.
func (s *TokenStore) RefreshToken(ctx context.Context) (string, bool, error) {
	return s.get(ctx, keyRefreshToken)
}

func (s *TokenStore) get(ctx context.Context, name string) (string, bool, error) {
	value, ok, err := s.storage.Get(ctx, s.key(name))
	if err != nil {
		return "", false, WrapError(ErrPersistence, err, map[string]any{"key": s.key(name)})
	}
	if !ok || value == "" {
		return "", false, nil
	}
	return value, true, nil
}

// ClearAll removes every key the store owns. Clearing an empty store succeeds.
func (s *TokenStore) ClearAll(ctx context.Context) error {
	if err := s.storage.RemoveMany(ctx, s.Keys()...); err != nil {
		return WrapError(ErrPersistence, err, map[string]any{"keys": s.Keys()})
	}
	return nil
}
