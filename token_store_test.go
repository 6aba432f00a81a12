package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/habit-tracker/go-auth"
	memstore "github.com/habit-tracker/go-auth/storage/memory"
)

func sampleProfile() *auth.UserProfile {
	return &auth.UserProfile{
		Username:      "a@x.com",
		Email:         "a@x.com",
		Name:          "Ann",
		EmailVerified: true,
		SubjectID:     "8d0f7a52-4c43-4b8e-9e57-3c1b0e6a1f00",
	}
}

func TestTokenStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	tokens := auth.NewTokenStore(store, "")

	require.NoError(t, tokens.Save(ctx, sampleProfile(), "access-1", "refresh-1"))

	snapshot := store.Snapshot()
	assert.Len(t, snapshot, 3)
	assert.Equal(t, "access-1", snapshot["@habit_tracker:user_token"])
	assert.Equal(t, "refresh-1", snapshot["@habit_tracker:refresh_token"])
	assert.JSONEq(t, `{
		"username": "a@x.com",
		"email": "a@x.com",
		"name": "Ann",
		"emailVerified": true,
		"sub": "8d0f7a52-4c43-4b8e-9e57-3c1b0e6a1f00"
	}`, snapshot["@habit_tracker:user_data"])

	profile, ok, err := tokens.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleProfile(), profile)

	access, ok, err := tokens.AccessToken(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "access-1", access)

	refresh, ok, err := tokens.RefreshToken(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "refresh-1", refresh)
}

func TestTokenStore_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	tokens := auth.NewTokenStore(memstore.New(), "")

	require.NoError(t, tokens.Save(ctx, sampleProfile(), "access-1", "refresh-1"))
	second := sampleProfile()
	second.Name = "Anna"
	require.NoError(t, tokens.Save(ctx, second, "access-2", "refresh-2"))

	profile, _, err := tokens.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Anna", profile.Name)

	access, _, err := tokens.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-2", access)
}

func TestTokenStore_LoadEmpty(t *testing.T) {
	tokens := auth.NewTokenStore(memstore.New(), "")

	profile, ok, err := tokens.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, profile)

	_, ok, err = tokens.AccessToken(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenStore_LoadCorrupt(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Set(ctx, "@habit_tracker:user_data", "{not json"))

	_, _, err := auth.NewTokenStore(store, "").Load(ctx)
	assert.ErrorIs(t, err, auth.ErrPersistence)
}

func TestTokenStore_ClearAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Set(ctx, "unrelated", "keep"))
	tokens := auth.NewTokenStore(store, "")

	require.NoError(t, tokens.Save(ctx, sampleProfile(), "access-1", "refresh-1"))

	require.NoError(t, tokens.ClearAll(ctx))
	assert.Equal(t, map[string]string{"unrelated": "keep"}, store.Snapshot())

	require.NoError(t, tokens.ClearAll(ctx))
	assert.Equal(t, map[string]string{"unrelated": "keep"}, store.Snapshot())
}

func TestTokenStore_Namespace(t *testing.T) {
	tokens := auth.NewTokenStore(memstore.New(), "  @tenant  ")
	assert.Equal(t, []string{
		"@tenant:user_token",
		"@tenant:user_data",
		"@tenant:refresh_token",
	}, tokens.Keys())
}

func TestTokenStore_SaveRequiresProfile(t *testing.T) {
	err := auth.NewTokenStore(memstore.New(), "").Save(context.Background(), nil, "a", "r")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestTokenStore_SaveIsNotAtomic(t *testing.T) {
	ctx := context.Background()
	storage := &MockStorage{}
	cause := errors.New("quota exceeded")
	storage.On("Set", mock.Anything, "@habit_tracker:user_data", mock.Anything).Return(nil)
	storage.On("Set", mock.Anything, "@habit_tracker:user_token", "access-1").Return(cause)

	err := auth.NewTokenStore(storage, "").Save(ctx, sampleProfile(), "access-1", "refresh-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrPersistence)
	assert.ErrorIs(t, err, cause)

	storage.AssertCalled(t, "Set", mock.Anything, "@habit_tracker:user_data", mock.Anything)
	storage.AssertNotCalled(t, "Set", mock.Anything, "@habit_tracker:refresh_token", mock.Anything)
}

func TestTokenStore_ClearAllStorageFailure(t *testing.T) {
	storage := &MockStorage{}
	storage.On("RemoveMany", mock.Anything, mock.Anything).Return(errors.New("locked"))

	err := auth.NewTokenStore(storage, "").ClearAll(context.Background())
	assert.ErrorIs(t, err, auth.ErrPersistence)
}
