package auth_test

import (
	"context"

	"github.com/habit-tracker/go-auth"
	"github.com/stretchr/testify/mock"
)

// MockIdentityProvider implements auth.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) SignUp(ctx context.Context, input auth.SignUpInput) (*auth.SignUpResult, error) {
	args := m.Called(ctx, input)
	res, _ := args.Get(0).(*auth.SignUpResult)
	return res, args.Error(1)
}

func (m *MockIdentityProvider) ConfirmSignUp(ctx context.Context, username, code string) error {
	args := m.Called(ctx, username, code)
	return args.Error(0)
}

func (m *MockIdentityProvider) ResendConfirmationCode(ctx context.Context, username string) (*auth.CodeDelivery, error) {
	args := m.Called(ctx, username)
	res, _ := args.Get(0).(*auth.CodeDelivery)
	return res, args.Error(1)
}

func (m *MockIdentityProvider) Authenticate(ctx context.Context, username, password string) (*auth.AuthOutcome, error) {
	args := m.Called(ctx, username, password)
	res, _ := args.Get(0).(*auth.AuthOutcome)
	return res, args.Error(1)
}

func (m *MockIdentityProvider) RespondNewPassword(ctx context.Context, challenge *auth.NewPasswordChallenge, newPassword string, attributes auth.Attributes) (*auth.AuthOutcome, error) {
	args := m.Called(ctx, challenge, newPassword, attributes)
	res, _ := args.Get(0).(*auth.AuthOutcome)
	return res, args.Error(1)
}

func (m *MockIdentityProvider) ForgotPassword(ctx context.Context, username string) (*auth.CodeDelivery, error) {
	args := m.Called(ctx, username)
	res, _ := args.Get(0).(*auth.CodeDelivery)
	return res, args.Error(1)
}

func (m *MockIdentityProvider) ConfirmForgotPassword(ctx context.Context, username, code, newPassword string) error {
	args := m.Called(ctx, username, code, newPassword)
	return args.Error(0)
}

func (m *MockIdentityProvider) ChangePassword(ctx context.Context, accessToken, oldPassword, newPassword string) error {
	args := m.Called(ctx, accessToken, oldPassword, newPassword)
	return args.Error(0)
}

func (m *MockIdentityProvider) GetUserAttributes(ctx context.Context, accessToken string) (auth.Attributes, error) {
	args := m.Called(ctx, accessToken)
	res, _ := args.Get(0).(auth.Attributes)
	return res, args.Error(1)
}

func (m *MockIdentityProvider) CurrentUser(ctx context.Context) (string, bool, error) {
	args := m.Called(ctx)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockIdentityProvider) GetSession(ctx context.Context, username string) (*auth.ProviderSession, error) {
	args := m.Called(ctx, username)
	res, _ := args.Get(0).(*auth.ProviderSession)
	return res, args.Error(1)
}

func (m *MockIdentityProvider) SignOut(ctx context.Context, username string) error {
	args := m.Called(ctx, username)
	return args.Error(0)
}

// MockStorage implements auth.Storage
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockStorage) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockStorage) RemoveMany(ctx context.Context, keys ...string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

// recordingSink collects activity events.
type recordingSink struct {
	events []auth.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) types() []auth.ActivityEventType {
	out := make([]auth.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}
