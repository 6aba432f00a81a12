package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/habit-tracker/go-auth"
	"github.com/habit-tracker/go-auth/provider/memory"
)

func newTestApp(t *testing.T, cfg auth.Config) (*App, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	app, err := Build(context.Background(), cfg, zap.NewNop(), out)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app, out
}

func memoryConfig() auth.Config {
	return auth.Config{
		Provider:       auth.ProviderMemory,
		StorageBackend: auth.StorageMemory,
		Namespace:      "@habit_tracker",
	}
}

func TestRun_Demo(t *testing.T) {
	app, out := newTestApp(t, memoryConfig())

	require.NoError(t, Run(context.Background(), app, []string{"demo"}))

	var steps []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &steps))
	require.Len(t, steps, 6)
	assert.Equal(t, "register", steps[0]["step"])
	assert.Equal(t, string(auth.StateAwaitingConfirmation), steps[0]["state"])
	assert.Equal(t, string(auth.StateSignedIn), steps[2]["state"])
	assert.Equal(t, "signout", steps[4]["step"])
	assert.Equal(t, true, steps[4]["result"])
	assert.Equal(t, string(auth.StateSignedOut), steps[4]["state"])

	assert.Equal(t, "metrics", steps[5]["step"])
	counters, ok := steps[5]["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), counters[`habit_auth_events_total{event="auth.login.success"}`])
	assert.Equal(t, float64(1), counters[`habit_auth_events_total{event="auth.logout"}`])
	assert.Equal(t, float64(1), counters[`habit_auth_session_transitions_total{from="signed_in",to="signed_out"}`])
}

func TestBuild_ActivityFansOutToLogAndMetrics(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.InfoLevel)
	out := &bytes.Buffer{}
	app, err := Build(ctx, memoryConfig(), zap.New(core), out)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	err = Run(ctx, app, []string{"signin", "--username", "a@x.com", "--password", "P@ssw0rd"})
	require.Error(t, err)

	assert.Equal(t, 1, logs.FilterMessage("auth activity").Len())

	require.NoError(t, Run(ctx, app, []string{"metrics"}))
	var counters map[string]float64
	require.NoError(t, json.Unmarshal(out.Bytes(), &counters))
	assert.Equal(t, float64(1), counters[`habit_auth_events_total{event="auth.login.failure"}`])
}

func TestRun_CommandSequence(t *testing.T) {
	ctx := context.Background()
	app, out := newTestApp(t, memoryConfig())
	provider := app.Provider.(*memory.Provider)

	require.NoError(t, Run(ctx, app, []string{"register", "--email", "a@x.com", "--password", "P@ssw0rd", "--name", "Ann"}))
	out.Reset()

	code, ok := provider.ConfirmationCode("a@x.com")
	require.True(t, ok)
	require.NoError(t, Run(ctx, app, []string{"confirm", "--username", "a@x.com", "--code", code}))
	assert.JSONEq(t, `{"result":"SUCCESS"}`, out.String())
	out.Reset()

	require.NoError(t, Run(ctx, app, []string{"signin", "--username", "a@x.com", "--password", "P@ssw0rd"}))
	var signIn map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &signIn))
	assert.Contains(t, signIn, "user")
	assert.Contains(t, signIn, "tokens")
	out.Reset()

	require.NoError(t, Run(ctx, app, []string{"saved"}))
	var saved map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &saved))
	assert.Equal(t, true, saved["found"])
	out.Reset()

	require.NoError(t, Run(ctx, app, []string{"signout"}))
	assert.JSONEq(t, `{"signedOut":true}`, out.String())
	out.Reset()

	err := Run(ctx, app, []string{"token"})
	assert.ErrorIs(t, err, auth.ErrNoCurrentUser)
	assert.Equal(t, auth.TextCodeNoCurrentUser, auth.TextCode(err))
}

func TestRun_CompleteNewPassword(t *testing.T) {
	ctx := context.Background()
	app, out := newTestApp(t, memoryConfig())
	provider := app.Provider.(*memory.Provider)

	_, err := provider.AdminCreateUser(ctx, "b@x.com", "Temp0rary!", auth.Attributes{auth.AttributeEmail: "b@x.com"}, auth.AttributeName)
	require.NoError(t, err)

	require.NoError(t, Run(ctx, app, []string{
		"complete-new-password",
		"--username", "b@x.com",
		"--password", "Temp0rary!",
		"--new-password", "N3w-Passw0rd",
		"--attr", "name=Bea",
	}))

	var result map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	user, ok := result["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Bea", user["name"])
	assert.Equal(t, auth.StateSignedIn, app.Client.State())
}

func TestRun_Errors(t *testing.T) {
	ctx := context.Background()
	app, _ := newTestApp(t, memoryConfig())

	assert.ErrorIs(t, Run(ctx, app, nil), auth.ErrInvalidInput)
	assert.ErrorIs(t, Run(ctx, app, []string{"nope"}), auth.ErrInvalidInput)
	assert.ErrorIs(t, Run(ctx, app, []string{"signin", "--bogus"}), auth.ErrInvalidInput)
	assert.ErrorIs(t, Run(ctx, app, []string{"signin", "--username", "a@x.com"}), auth.ErrInvalidInput)
	assert.ErrorIs(t, Run(ctx, app, []string{"signin", "--username", "a@x.com", "--password", "nope"}), auth.ErrNotAuthorized)
}

func TestBuild_SQLiteStorage(t *testing.T) {
	cfg := memoryConfig()
	cfg.StorageBackend = auth.StorageSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "auth.db")

	app, out := newTestApp(t, cfg)
	require.NoError(t, Run(context.Background(), app, []string{"saved"}))
	assert.JSONEq(t, `{"found":false,"user":null}`, out.String())
}

func TestUsageListsCommands(t *testing.T) {
	var buf bytes.Buffer
	Usage(&buf)
	for name := range commands {
		assert.Contains(t, buf.String(), name)
	}
}
