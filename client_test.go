package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/habit-tracker/go-auth"
	"github.com/habit-tracker/go-auth/provider/memory"
	memstore "github.com/habit-tracker/go-auth/storage/memory"
)

type fixture struct {
	client   *auth.Client
	provider *memory.Provider
	store    *memstore.Store
	sink     *recordingSink
}

func newFixture(opts ...memory.Option) *fixture {
	base := []memory.Option{
		memory.WithHashCost(bcrypt.MinCost),
		memory.WithCodeGenerator(func() string { return "123456" }),
	}
	provider := memory.New(append(base, opts...)...)
	store := memstore.New()
	sink := &recordingSink{}

	client := auth.NewClient(provider, store).
		WithLogger(auth.NopLogger()).
		WithActivitySink(sink)

	return &fixture{client: client, provider: provider, store: store, sink: sink}
}

func (f *fixture) registerAndConfirm(t *testing.T, email, password, name string) *auth.SignUpResult {
	t.Helper()
	ctx := context.Background()

	res, err := f.client.Register(ctx, email, password, name)
	require.NoError(t, err)
	_, err = f.client.ConfirmRegistration(ctx, email, "123456")
	require.NoError(t, err)
	return res
}

func TestClient_RegisterConfirmSignInSignOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	registered, err := f.client.Register(ctx, "a@x.com", "P@ssw0rd", "Ann")
	require.NoError(t, err)
	assert.False(t, registered.UserConfirmed)
	assert.NotEmpty(t, registered.UserSubjectID)
	require.NotNil(t, registered.CodeDelivery)
	assert.Equal(t, "EMAIL", registered.CodeDelivery.DeliveryMedium)
	assert.Equal(t, auth.StateAwaitingConfirmation, f.client.State())

	result, err := f.client.ConfirmRegistration(ctx, "a@x.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, auth.ConfirmationSuccess, result)
	assert.Equal(t, auth.StateSignedOut, f.client.State())

	signIn, err := f.client.SignIn(ctx, "a@x.com", "P@ssw0rd")
	require.NoError(t, err)
	require.True(t, signIn.Authenticated())
	assert.Equal(t, "a@x.com", signIn.Profile.Email)
	assert.Equal(t, "Ann", signIn.Profile.Name)
	assert.True(t, signIn.Profile.EmailVerified)
	assert.NotEmpty(t, signIn.Tokens.AccessToken)
	assert.NotEmpty(t, signIn.Tokens.IDToken)
	assert.NotEmpty(t, signIn.Tokens.RefreshToken)
	assert.Equal(t, auth.StateSignedIn, f.client.State())
	assert.Equal(t, 3, f.store.Len())

	current, ok, err := f.client.GetCurrentUser(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, signIn.Profile, current)

	signedOut, err := f.client.SignOut(ctx)
	require.NoError(t, err)
	assert.True(t, signedOut)
	assert.Equal(t, auth.StateSignedOut, f.client.State())
	assert.Zero(t, f.store.Len())

	current, ok, err = f.client.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, current)

	assert.Equal(t, []auth.ActivityEventType{
		auth.ActivityEventSignUp,
		auth.ActivityEventSessionStateChanged,
		auth.ActivityEventSignUpConfirmed,
		auth.ActivityEventSessionStateChanged,
		auth.ActivityEventSessionStateChanged,
		auth.ActivityEventLoginSuccess,
		auth.ActivityEventSessionStateChanged,
		auth.ActivityEventLogout,
	}, f.sink.types())
}

func TestClient_SubjectIDIsStableAcrossSignIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	registered := f.registerAndConfirm(t, "a@x.com", "P@ssw0rd", "Ann")

	signIn, err := f.client.SignIn(ctx, "a@x.com", "P@ssw0rd")
	require.NoError(t, err)
	assert.Equal(t, registered.UserSubjectID, signIn.Profile.SubjectID)

	current, ok, err := f.client.GetCurrentUser(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, registered.UserSubjectID, current.SubjectID)
}

func TestClient_SignInWrongPasswordPersistsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.registerAndConfirm(t, "a@x.com", "P@ssw0rd", "Ann")

	result, err := f.client.SignIn(ctx, "a@x.com", "wrong-Passw0rd")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, auth.ErrNotAuthorized)
	assert.Zero(t, f.store.Len())
	assert.Equal(t, auth.StateSignedOut, f.client.State())
	assert.Contains(t, f.sink.types(), auth.ActivityEventLoginFailure)
}

func TestClient_SignInUnconfirmed(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.client.Register(ctx, "a@x.com", "P@ssw0rd", "Ann")
	require.NoError(t, err)

	_, err = f.client.SignIn(ctx, "a@x.com", "P@ssw0rd")
	assert.ErrorIs(t, err, auth.ErrUserNotConfirmed)
	assert.Equal(t, auth.StateAwaitingConfirmation, f.client.State())
}

func TestClient_RegisterAutoConfirmedStaysSignedOut(t *testing.T) {
	f := newFixture(memory.WithAutoConfirm(true))

	res, err := f.client.Register(context.Background(), "a@x.com", "P@ssw0rd", "")
	require.NoError(t, err)
	assert.True(t, res.UserConfirmed)
	assert.Nil(t, res.CodeDelivery)
	assert.Equal(t, auth.StateSignedOut, f.client.State())
}

func TestClient_RegisterValidation(t *testing.T) {
	provider := &MockIdentityProvider{}
	client := auth.NewClient(provider, memstore.New()).WithLogger(auth.NopLogger())

	_, err := client.Register(context.Background(), "not-an-email", "P@ssw0rd", "Ann")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)

	_, err = client.Register(context.Background(), "a@x.com", "", "Ann")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)

	provider.AssertNotCalled(t, "SignUp", mock.Anything, mock.Anything)
}

func TestClient_RegisterDuplicate(t *testing.T) {
	f := newFixture()
	f.registerAndConfirm(t, "a@x.com", "P@ssw0rd", "Ann")

	_, err := f.client.Register(context.Background(), "a@x.com", "P@ssw0rd", "Ann")
	assert.ErrorIs(t, err, auth.ErrUserExists)
	assert.Equal(t, auth.TextCodeUserExists, auth.TextCode(err))
}

func TestClient_ConfirmRegistrationWrongCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.client.Register(ctx, "a@x.com", "P@ssw0rd", "Ann")
	require.NoError(t, err)

	_, err = f.client.ConfirmRegistration(ctx, "a@x.com", "000000")
	assert.ErrorIs(t, err, auth.ErrCodeMismatch)
	assert.Equal(t, auth.StateAwaitingConfirmation, f.client.State())

	delivery, err := f.client.ResendConfirmationCode(ctx, "a@x.com")
	require.NoError(t, err)
	assert.NotEmpty(t, delivery.Destination)
	assert.Contains(t, f.sink.types(), auth.ActivityEventCodeResent)
}

func TestClient_NoSessionDistinguishesNoUserFromExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.client.GetAccessToken(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrNoCurrentUser)
	assert.NotErrorIs(t, err, auth.ErrSessionExpired)

	f.registerAndConfirm(t, "a@x.com", "P@ssw0rd", "Ann")
	_, err = f.client.SignIn(ctx, "a@x.com", "P@ssw0rd")
	require.NoError(t, err)

	token, err := f.client.GetAccessToken(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	require.NoError(t, f.provider.GlobalSignOut(ctx, "a@x.com"))

	_, err = f.client.GetAccessToken(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrSessionExpired)
	assert.NotErrorIs(t, err, auth.ErrNoCurrentUser)
	assert.True(t, auth.IsNoSession(err))
	assert.Equal(t, auth.StateSignedOut, f.client.State())

	current, ok, err := f.client.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, current)
}

func TestClient_SignOutClearsEvenWithUnexpiredTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.registerAndConfirm(t, "a@x.com", "P@ssw0rd", "Ann")

	signIn, err := f.client.SignIn(ctx, "a@x.com", "P@ssw0rd")
	require.NoError(t, err)
	require.NotEmpty(t, signIn.Tokens.AccessToken)

	_, err = f.client.SignOut(ctx)
	require.NoError(t, err)

	_, err = f.client.GetAccessToken(ctx)
	assert.ErrorIs(t, err, auth.ErrNoCurrentUser)

	saved, ok, err := f.client.SavedProfile(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, saved)
}

func TestClient_SignOutWithoutUser(t *testing.T) {
	f := newFixture()

	ok, err := f.client.SignOut(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, auth.StateSignedOut, f.client.State())
}

func TestClient_SignOutProviderFailureStillClearsLocally(t *testing.T) {
	ctx := context.Background()
	provider := &MockIdentityProvider{}
	storage := &MockStorage{}
	providerErr := errors.New("network unreachable")

	provider.On("CurrentUser", mock.Anything).Return("a@x.com", true, nil)
	provider.On("SignOut", mock.Anything, "a@x.com").Return(providerErr)
	storage.On("RemoveMany", mock.Anything, mock.Anything).Return(nil)

	client := auth.NewClient(provider, storage).WithLogger(auth.NopLogger())

	ok, err := client.SignOut(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, providerErr)
	assert.Equal(t, auth.StateSignedOut, client.State())

	storage.AssertCalled(t, "RemoveMany", mock.Anything, client.TokenStore().Keys())
	provider.AssertExpectations(t)
}

func TestClient_SignOutStorageFailureIsSwallowed(t *testing.T) {
	provider := &MockIdentityProvider{}
	storage := &MockStorage{}

	provider.On("CurrentUser", mock.Anything).Return("a@x.com", true, nil)
	provider.On("SignOut", mock.Anything, "a@x.com").Return(nil)
	storage.On("RemoveMany", mock.Anything, mock.Anything).Return(errors.New("locked"))

	logger := &captureLogger{}
	client := auth.NewClient(provider, storage).WithLogger(logger)

	ok, err := client.SignOut(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotEmpty(t, logger.errors)
	assert.Contains(t, logger.errors[0], "storage clear")
}

func TestClient_SignInPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.registerAndConfirm(t, "a@x.com", "P@ssw0rd", "Ann")

	storage := &MockStorage{}
	storage.On("Set", mock.Anything, "@habit_tracker:user_data", mock.Anything).Return(nil)
	storage.On("Set", mock.Anything, "@habit_tracker:user_token", mock.Anything).Return(errors.New("disk full"))

	sink := &recordingSink{}
	client := auth.NewClient(f.provider, storage).
		WithLogger(auth.NopLogger()).
		WithActivitySink(sink)

	result, err := client.SignIn(ctx, "a@x.com", "P@ssw0rd")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, auth.ErrPersistence)
	assert.Equal(t, auth.TextCodePersistence, auth.TextCode(err))
	assert.Equal(t, auth.StateSignedOut, client.State())
	assert.Contains(t, sink.types(), auth.ActivityEventSessionPersistFailure)
	assert.NotContains(t, sink.types(), auth.ActivityEventLoginSuccess)
	storage.AssertNotCalled(t, "Set", mock.Anything, "@habit_tracker:refresh_token", mock.Anything)
}

func TestClient_SignInNewPasswordRequiredPersistsNothing(t *testing.T) {
	ctx := context.Background()
	provider := &MockIdentityProvider{}
	storage := &MockStorage{}
	challenge := &auth.NewPasswordChallenge{
		Username:           "b@x.com",
		Session:            "opaque",
		RequiredAttributes: []string{auth.AttributeName},
	}

	provider.On("Authenticate", mock.Anything, "b@x.com", "Temp0rary!").
		Return(&auth.AuthOutcome{NewPasswordRequired: challenge}, nil)

	sink := &recordingSink{}
	client := auth.NewClient(provider, storage).
		WithLogger(auth.NopLogger()).
		WithActivitySink(sink)

	result, err := client.SignIn(ctx, "b@x.com", "Temp0rary!")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Authenticated())
	assert.Same(t, challenge, result.NewPasswordRequired)
	assert.Nil(t, result.Tokens)
	assert.Equal(t, auth.StateSignedOut, client.State())
	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventNewPasswordRequired}, sink.types())

	storage.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
	provider.AssertNotCalled(t, "GetUserAttributes", mock.Anything, mock.Anything)
}

func TestClient_CompleteNewPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	sub, err := f.provider.AdminCreateUser(ctx, "b@x.com", "Temp0rary!",
		auth.Attributes{auth.AttributeEmail: "b@x.com"}, auth.AttributeName)
	require.NoError(t, err)

	first, err := f.client.SignIn(ctx, "b@x.com", "Temp0rary!")
	require.NoError(t, err)
	require.NotNil(t, first.NewPasswordRequired)
	assert.Equal(t, []string{auth.AttributeName}, first.NewPasswordRequired.RequiredAttributes)
	assert.Zero(t, f.store.Len())

	_, err = f.client.CompleteNewPassword(ctx, first.NewPasswordRequired, "N3w-Passw0rd", nil)
	assert.ErrorIs(t, err, auth.ErrInvalidParameter)

	done, err := f.client.CompleteNewPassword(ctx, first.NewPasswordRequired, "N3w-Passw0rd",
		auth.Attributes{auth.AttributeName: "Bea"})
	require.NoError(t, err)
	require.True(t, done.Authenticated())
	assert.Equal(t, "Bea", done.Profile.Name)
	assert.Equal(t, sub, done.Profile.SubjectID)
	assert.Equal(t, auth.StateSignedIn, f.client.State())
	assert.Equal(t, 3, f.store.Len())

	_, err = f.client.SignOut(ctx)
	require.NoError(t, err)
	again, err := f.client.SignIn(ctx, "b@x.com", "N3w-Passw0rd")
	require.NoError(t, err)
	assert.True(t, again.Authenticated())
}

func TestClient_CompleteNewPasswordRequiresChallenge(t *testing.T) {
	f := newFixture()
	_, err := f.client.CompleteNewPassword(context.Background(), nil, "N3w-Passw0rd", nil)
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestClient_ForgotAndConfirmPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.registerAndConfirm(t, "a@x.com", "P@ssw0rd", "Ann")

	delivery, err := f.client.ForgotPassword(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, delivery)
	assert.Equal(t, "EMAIL", delivery.DeliveryMedium)

	err = f.client.ConfirmPassword(ctx, "a@x.com", "999999", "N3w-Passw0rd")
	assert.ErrorIs(t, err, auth.ErrCodeMismatch)

	require.NoError(t, f.client.ConfirmPassword(ctx, "a@x.com", "123456", "N3w-Passw0rd"))

	_, err = f.client.SignIn(ctx, "a@x.com", "P@ssw0rd")
	assert.ErrorIs(t, err, auth.ErrNotAuthorized)

	result, err := f.client.SignIn(ctx, "a@x.com", "N3w-Passw0rd")
	require.NoError(t, err)
	assert.True(t, result.Authenticated())
	assert.Contains(t, f.sink.types(), auth.ActivityEventPasswordResetSuccess)
}

func TestClient_ChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.registerAndConfirm(t, "a@x.com", "P@ssw0rd", "Ann")
	_, err := f.client.SignIn(ctx, "a@x.com", "P@ssw0rd")
	require.NoError(t, err)

	_, err = f.client.ChangePassword(ctx, "wrong-Passw0rd", "N3w-Passw0rd")
	assert.ErrorIs(t, err, auth.ErrNotAuthorized)

	result, err := f.client.ChangePassword(ctx, "P@ssw0rd", "N3w-Passw0rd")
	require.NoError(t, err)
	assert.Equal(t, auth.ChangePasswordSuccess, result)
	assert.Contains(t, f.sink.types(), auth.ActivityEventPasswordChanged)
}

func TestClient_ChangePasswordWithoutUser(t *testing.T) {
	provider := &MockIdentityProvider{}
	provider.On("CurrentUser", mock.Anything).Return("", false, nil)

	client := auth.NewClient(provider, memstore.New()).WithLogger(auth.NopLogger())

	_, err := client.ChangePassword(context.Background(), "P@ssw0rd", "N3w-Passw0rd")
	assert.ErrorIs(t, err, auth.ErrNoCurrentUser)
	provider.AssertNotCalled(t, "GetSession", mock.Anything, mock.Anything)
	provider.AssertNotCalled(t, "ChangePassword", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestClient_RestoreSessionAcrossClients(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.registerAndConfirm(t, "a@x.com", "P@ssw0rd", "Ann")
	_, err := f.client.SignIn(ctx, "a@x.com", "P@ssw0rd")
	require.NoError(t, err)

	sink := &recordingSink{}
	restarted := auth.NewClient(f.provider, f.store).
		WithLogger(auth.NopLogger()).
		WithActivitySink(sink)
	assert.Equal(t, auth.StateSignedOut, restarted.State())

	saved, ok, err := restarted.SavedProfile(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ann", saved.Name)

	profile, ok, err := restarted.RestoreSession(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a@x.com", profile.Email)
	assert.Equal(t, auth.StateSignedIn, restarted.State())
	assert.Contains(t, sink.types(), auth.ActivityEventSessionRestored)
}

func TestClient_ProviderErrorsPassThroughAccessors(t *testing.T) {
	providerErr := errors.New("keychain unavailable")
	provider := &MockIdentityProvider{}
	provider.On("CurrentUser", mock.Anything).Return("", false, providerErr)

	client := auth.NewClient(provider, memstore.New()).WithLogger(auth.NopLogger())

	_, ok, err := client.GetCurrentUser(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, providerErr)

	_, err = client.GetAccessToken(context.Background())
	assert.ErrorIs(t, err, providerErr)
}

func TestClient_StateHook(t *testing.T) {
	f := newFixture()
	var seen []auth.SessionState
	f.client.WithStateHook(func(_ context.Context, tc auth.TransitionContext) {
		seen = append(seen, tc.To)
	})

	f.registerAndConfirm(t, "a@x.com", "P@ssw0rd", "Ann")
	assert.Equal(t, []auth.SessionState{auth.StateAwaitingConfirmation, auth.StateSignedOut}, seen)
}

func TestClient_WithNamespace(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.client.WithNamespace("@other")
	f.registerAndConfirm(t, "a@x.com", "P@ssw0rd", "Ann")

	_, err := f.client.SignIn(ctx, "a@x.com", "P@ssw0rd")
	require.NoError(t, err)

	snapshot := f.store.Snapshot()
	assert.Contains(t, snapshot, "@other:user_data")
	assert.Contains(t, snapshot, "@other:user_token")
	assert.Contains(t, snapshot, "@other:refresh_token")
}

func TestClient_SavedProfileCorruptIsAbsent(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Set(ctx, "@habit_tracker:user_data", "{not json"))
	logger := &captureLogger{}

	client := auth.NewClient(&MockIdentityProvider{}, store).WithLogger(logger)

	saved, ok, err := client.SavedProfile(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, saved)
	require.Len(t, logger.errors, 1)
	assert.Contains(t, logger.errors[0], "get saved user data error")
}

func TestClient_StateHookAddedAfterConstruction(t *testing.T) {
	f := newFixture()

	var seen []auth.TransitionContext
	f.client.WithStateHook(func(_ context.Context, tc auth.TransitionContext) {
		seen = append(seen, tc)
	})
	f.client.WithStateHook(nil)

	_, err := f.client.Register(context.Background(), "a@x.com", "P@ssw0rd", "Ann")
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.Equal(t, auth.StateSignedOut, seen[0].From)
	assert.Equal(t, auth.StateAwaitingConfirmation, seen[0].To)
}
