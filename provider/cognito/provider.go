package cognito

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/habit-tracker/go-auth"
)

const (
	paramUsername       = "USERNAME"
	paramPassword       = "PASSWORD"
	paramNewPassword    = "NEW_PASSWORD"
	paramRefreshToken   = "REFRESH_TOKEN"
	paramSecretHash     = "SECRET_HASH"
	paramUserAttributes = "userAttributes"
	paramRequiredAttrs  = "requiredAttributes"
	userAttributePrefix = "userAttributes."

	claimCognitoUsername = "cognito:username"
	claimSubject         = "sub"
)

// API is the subset of the Cognito user pool client the provider calls.
// *cognitoidentityprovider.Client satisfies it.
type API interface {
	SignUp(ctx context.Context, in *cip.SignUpInput, optFns ...func(*cip.Options)) (*cip.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, in *cip.ConfirmSignUpInput, optFns ...func(*cip.Options)) (*cip.ConfirmSignUpOutput, error)
	ResendConfirmationCode(ctx context.Context, in *cip.ResendConfirmationCodeInput, optFns ...func(*cip.Options)) (*cip.ResendConfirmationCodeOutput, error)
	InitiateAuth(ctx context.Context, in *cip.InitiateAuthInput, optFns ...func(*cip.Options)) (*cip.InitiateAuthOutput, error)
	RespondToAuthChallenge(ctx context.Context, in *cip.RespondToAuthChallengeInput, optFns ...func(*cip.Options)) (*cip.RespondToAuthChallengeOutput, error)
	ForgotPassword(ctx context.Context, in *cip.ForgotPasswordInput, optFns ...func(*cip.Options)) (*cip.ForgotPasswordOutput, error)
	ConfirmForgotPassword(ctx context.Context, in *cip.ConfirmForgotPasswordInput, optFns ...func(*cip.Options)) (*cip.ConfirmForgotPasswordOutput, error)
	ChangePassword(ctx context.Context, in *cip.ChangePasswordInput, optFns ...func(*cip.Options)) (*cip.ChangePasswordOutput, error)
	GetUser(ctx context.Context, in *cip.GetUserInput, optFns ...func(*cip.Options)) (*cip.GetUserOutput, error)
	GlobalSignOut(ctx context.Context, in *cip.GlobalSignOutInput, optFns ...func(*cip.Options)) (*cip.GlobalSignOutOutput, error)
}

var _ auth.IdentityProvider = (*Provider)(nil)

// Provider implements auth.IdentityProvider against a Cognito user pool
// using the public app client flows.
type Provider struct {
	config  Config
	api     API
	tracker *tracker
	logger  auth.Logger
	now     func() time.Time
}

// Option customizes a Provider.
type Option func(*Provider)

// WithLogger sets the provider logger.
func WithLogger(logger auth.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock injects the clock used to judge token expiry.
func WithClock(clock func() time.Time) Option {
	return func(p *Provider) {
		if clock != nil {
			p.now = clock
		}
	}
}

// New loads the default AWS configuration for cfg.Region and returns a
// provider tracking sessions in storage.
func New(ctx context.Context, cfg Config, storage auth.Storage, opts ...Option) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, auth.WrapError(auth.ErrInvalidInput, err, map[string]any{"provider": "cognito"})
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, err
	}

	client := cip.NewFromConfig(awsCfg, func(o *cip.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewWithAPI(cfg, client, storage, opts...)
}

// NewWithAPI returns a provider calling api. It is used with a preconfigured
// client or a test double.
func NewWithAPI(cfg Config, api API, storage auth.Storage, opts ...Option) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, auth.WrapError(auth.ErrInvalidInput, err, map[string]any{"provider": "cognito"})
	}
	if api == nil || storage == nil {
		return nil, auth.WrapError(auth.ErrInvalidInput, nil, map[string]any{
			"provider": "cognito",
			"field":    "api/storage",
		})
	}

	p := &Provider{
		config:  cfg,
		api:     api,
		tracker: newTracker(storage, cfg.keyPrefix()),
		logger:  auth.NopLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// SignUp implements auth.IdentityProvider.
func (p *Provider) SignUp(ctx context.Context, in auth.SignUpInput) (*auth.SignUpResult, error) {
	out, err := p.api.SignUp(ctx, &cip.SignUpInput{
		ClientId:       aws.String(p.config.ClientID),
		Username:       aws.String(in.Username),
		Password:       aws.String(in.Password),
		UserAttributes: toAttributeTypes(in.Attributes),
		SecretHash:     p.secretHash(in.Username),
	})
	if err != nil {
		return nil, classify("sign_up", err)
	}

	return &auth.SignUpResult{
		Username:      in.Username,
		UserConfirmed: out.UserConfirmed,
		UserSubjectID: aws.ToString(out.UserSub),
		CodeDelivery:  toCodeDelivery(out.CodeDeliveryDetails),
	}, nil
}

// ConfirmSignUp implements auth.IdentityProvider.
func (p *Provider) ConfirmSignUp(ctx context.Context, username, code string) error {
	_, err := p.api.ConfirmSignUp(ctx, &cip.ConfirmSignUpInput{
		ClientId:         aws.String(p.config.ClientID),
		Username:         aws.String(username),
		ConfirmationCode: aws.String(code),
		SecretHash:       p.secretHash(username),
	})
	return classify("confirm_sign_up", err)
}

// ResendConfirmationCode implements auth.IdentityProvider.
func (p *Provider) ResendConfirmationCode(ctx context.Context, username string) (*auth.CodeDelivery, error) {
	out, err := p.api.ResendConfirmationCode(ctx, &cip.ResendConfirmationCodeInput{
		ClientId:   aws.String(p.config.ClientID),
		Username:   aws.String(username),
		SecretHash: p.secretHash(username),
	})
	if err != nil {
		return nil, classify("resend_confirmation_code", err)
	}
	return toCodeDelivery(out.CodeDeliveryDetails), nil
}

// Authenticate runs USER_PASSWORD_AUTH.
func (p *Provider) Authenticate(ctx context.Context, username, password string) (*auth.AuthOutcome, error) {
	params := map[string]string{
		paramUsername: username,
		paramPassword: password,
	}
	p.addSecretHash(params, username)

	out, err := p.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       types.AuthFlowTypeUserPasswordAuth,
		ClientId:       aws.String(p.config.ClientID),
		AuthParameters: params,
	})
	if err != nil {
		return nil, classify("authenticate", err)
	}

	return p.outcome(ctx, username, out.ChallengeName, out.Session, out.ChallengeParameters, out.AuthenticationResult)
}

// RespondNewPassword answers NEW_PASSWORD_REQUIRED.
func (p *Provider) RespondNewPassword(ctx context.Context, challenge *auth.NewPasswordChallenge, newPassword string, attributes auth.Attributes) (*auth.AuthOutcome, error) {
	responses := map[string]string{
		paramUsername:    challenge.Username,
		paramNewPassword: newPassword,
	}
	for name, value := range attributes {
		responses[userAttributePrefix+name] = value
	}
	p.addSecretHash(responses, challenge.Username)

	out, err := p.api.RespondToAuthChallenge(ctx, &cip.RespondToAuthChallengeInput{
		ChallengeName:      types.ChallengeNameTypeNewPasswordRequired,
		ClientId:           aws.String(p.config.ClientID),
		Session:            aws.String(challenge.Session),
		ChallengeResponses: responses,
	})
	if err != nil {
		return nil, classify("respond_new_password", err)
	}

	return p.outcome(ctx, challenge.Username, out.ChallengeName, out.Session, out.ChallengeParameters, out.AuthenticationResult)
}

func (p *Provider) outcome(ctx context.Context, username string, challenge types.ChallengeNameType, session *string, params map[string]string, result *types.AuthenticationResultType) (*auth.AuthOutcome, error) {
	if result != nil {
		tokens := auth.TokenBundle{
			AccessToken:  aws.ToString(result.AccessToken),
			IDToken:      aws.ToString(result.IdToken),
			RefreshToken: aws.ToString(result.RefreshToken),
		}
		if err := p.tracker.store(ctx, username, tokens); err != nil {
			return nil, err
		}
		return &auth.AuthOutcome{Tokens: &tokens}, nil
	}

	switch challenge {
	case types.ChallengeNameTypeNewPasswordRequired:
		ch, err := newPasswordChallenge(username, aws.ToString(session), params)
		if err != nil {
			return nil, err
		}
		return &auth.AuthOutcome{NewPasswordRequired: ch}, nil
	case "":
		return nil, auth.WrapError(auth.ErrMissingTokens, nil, map[string]any{"username": username})
	default:
		return nil, auth.WrapError(ErrUnsupportedChallenge, nil, map[string]any{
			"username":  username,
			"challenge": string(challenge),
		})
	}
}

func newPasswordChallenge(username, session string, params map[string]string) (*auth.NewPasswordChallenge, error) {
	ch := &auth.NewPasswordChallenge{
		Username: username,
		Session:  session,
	}

	if raw := params[paramUserAttributes]; raw != "" {
		attrs := auth.Attributes{}
		if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
			return nil, auth.WrapError(auth.ErrInvalidParameter, err, map[string]any{"parameter": paramUserAttributes})
		}
		ch.UserAttributes = attrs
	}

	if raw := params[paramRequiredAttrs]; raw != "" {
		var required []string
		if err := json.Unmarshal([]byte(raw), &required); err != nil {
			return nil, auth.WrapError(auth.ErrInvalidParameter, err, map[string]any{"parameter": paramRequiredAttrs})
		}
		for _, name := range required {
			ch.RequiredAttributes = append(ch.RequiredAttributes, strings.TrimPrefix(name, userAttributePrefix))
		}
	}

	return ch, nil
}

// ForgotPassword implements auth.IdentityProvider.
func (p *Provider) ForgotPassword(ctx context.Context, username string) (*auth.CodeDelivery, error) {
	out, err := p.api.ForgotPassword(ctx, &cip.ForgotPasswordInput{
		ClientId:   aws.String(p.config.ClientID),
		Username:   aws.String(username),
		SecretHash: p.secretHash(username),
	})
	if err != nil {
		return nil, classify("forgot_password", err)
	}
	return toCodeDelivery(out.CodeDeliveryDetails), nil
}

// ConfirmForgotPassword implements auth.IdentityProvider.
func (p *Provider) ConfirmForgotPassword(ctx context.Context, username, code, newPassword string) error {
	_, err := p.api.ConfirmForgotPassword(ctx, &cip.ConfirmForgotPasswordInput{
		ClientId:         aws.String(p.config.ClientID),
		Username:         aws.String(username),
		ConfirmationCode: aws.String(code),
		Password:         aws.String(newPassword),
		SecretHash:       p.secretHash(username),
	})
	return classify("confirm_forgot_password", err)
}

// ChangePassword implements auth.IdentityProvider.
func (p *Provider) ChangePassword(ctx context.Context, accessToken, oldPassword, newPassword string) error {
	_, err := p.api.ChangePassword(ctx, &cip.ChangePasswordInput{
		AccessToken:      aws.String(accessToken),
		PreviousPassword: aws.String(oldPassword),
		ProposedPassword: aws.String(newPassword),
	})
	return classify("change_password", err)
}

// GetUserAttributes implements auth.IdentityProvider.
func (p *Provider) GetUserAttributes(ctx context.Context, accessToken string) (auth.Attributes, error) {
	out, err := p.api.GetUser(ctx, &cip.GetUserInput{AccessToken: aws.String(accessToken)})
	if err != nil {
		return nil, classify("get_user", err)
	}

	attrs := make(auth.Attributes, len(out.UserAttributes))
	for _, a := range out.UserAttributes {
		attrs[aws.ToString(a.Name)] = aws.ToString(a.Value)
	}
	return attrs, nil
}

// CurrentUser returns the last user that authenticated on this device.
func (p *Provider) CurrentUser(ctx context.Context) (string, bool, error) {
	return p.tracker.lastUser(ctx)
}

// GetSession checks the tracked tokens and refreshes them when they are
// stale. A refresh token Cognito rejects yields an invalid session.
func (p *Provider) GetSession(ctx context.Context, username string) (*auth.ProviderSession, error) {
	tokens, err := p.tracker.tokens(ctx, username)
	if err != nil {
		return nil, err
	}

	session := &auth.ProviderSession{Username: username, Tokens: tokens}

	if p.fresh(tokens.AccessToken) && p.fresh(tokens.IDToken) {
		session.Valid = true
		return session, nil
	}

	if tokens.RefreshToken == "" {
		return session, nil
	}

	refreshed, err := p.refresh(ctx, username, tokens)
	if err != nil {
		if errors.Is(err, auth.ErrNotAuthorized) || errors.Is(err, auth.ErrUserNotFound) {
			p.logger.Info("cognito refresh rejected for %s: %v", username, err)
			return session, nil
		}
		return nil, err
	}

	session.Tokens = refreshed
	session.Valid = true
	return session, nil
}

// refresh exchanges the refresh token. SECRET_HASH is computed over the
// pool's internal username, which differs from the sign-in alias in pools
// that accept email as username.
func (p *Provider) refresh(ctx context.Context, username string, current auth.TokenBundle) (auth.TokenBundle, error) {
	refreshToken := current.RefreshToken
	params := map[string]string{paramRefreshToken: refreshToken}
	p.addSecretHash(params, internalUsername(current.IDToken, username))

	out, err := p.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       types.AuthFlowTypeRefreshTokenAuth,
		ClientId:       aws.String(p.config.ClientID),
		AuthParameters: params,
	})
	if err != nil {
		return auth.TokenBundle{}, classify("refresh", err)
	}
	if out.AuthenticationResult == nil {
		return auth.TokenBundle{}, auth.WrapError(auth.ErrMissingTokens, nil, map[string]any{"username": username})
	}

	tokens := auth.TokenBundle{
		AccessToken:  aws.ToString(out.AuthenticationResult.AccessToken),
		IDToken:      aws.ToString(out.AuthenticationResult.IdToken),
		RefreshToken: aws.ToString(out.AuthenticationResult.RefreshToken),
	}
	if err := p.tracker.store(ctx, username, tokens); err != nil {
		return auth.TokenBundle{}, err
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}

	p.logger.Debug("cognito session refreshed for %s", username)
	return tokens, nil
}

// internalUsername reads cognito:username, then sub, from an ID token
// without verifying it. fallback is returned when neither is present.
func internalUsername(idToken, fallback string) string {
	if idToken == "" {
		return fallback
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return fallback
	}
	for _, name := range []string{claimCognitoUsername, claimSubject} {
		if value, ok := claims[name].(string); ok && value != "" {
			return value
		}
	}
	return fallback
}

// fresh reports whether token expires later than now plus the clock drift.
// The signature is not verified.
func (p *Provider) fresh(token string) bool {
	if token == "" {
		return false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}

	return p.now().Add(p.config.ClockDrift).Before(exp.Time)
}

// SignOut forgets the tracked session on this device. With GlobalSignOut
// every token issued to the user is also revoked. The tracked keys are
// removed even when reading the access token fails.
func (p *Provider) SignOut(ctx context.Context, username string) error {
	var (
		accessToken string
		readErr     error
	)
	if p.config.GlobalSignOut {
		var tokens auth.TokenBundle
		if tokens, readErr = p.tracker.tokens(ctx, username); readErr == nil {
			accessToken = tokens.AccessToken
		}
	}

	if err := p.tracker.clear(ctx, username); err != nil {
		return errors.Join(readErr, err)
	}

	if !p.config.GlobalSignOut || accessToken == "" {
		return readErr
	}

	_, err := p.api.GlobalSignOut(ctx, &cip.GlobalSignOutInput{AccessToken: aws.String(accessToken)})
	return classify("global_sign_out", err)
}

func (p *Provider) secretHash(username string) *string {
	if p.config.ClientSecret == "" {
		return nil
	}
	return aws.String(computeSecretHash(p.config.ClientSecret, username, p.config.ClientID))
}

func (p *Provider) addSecretHash(params map[string]string, username string) {
	if hash := p.secretHash(username); hash != nil {
		params[paramSecretHash] = *hash
	}
}

// computeSecretHash is Base64(HMAC_SHA256(secret, username + clientID)).
func computeSecretHash(secret, username, clientID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(username + clientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func toAttributeTypes(attrs auth.Attributes) []types.AttributeType {
	out := make([]types.AttributeType, 0, len(attrs))
	for _, name := range slices.Sorted(maps.Keys(attrs)) {
		out = append(out, types.AttributeType{
			Name:  aws.String(name),
			Value: aws.String(attrs[name]),
		})
	}
	return out
}

func toCodeDelivery(d *types.CodeDeliveryDetailsType) *auth.CodeDelivery {
	if d == nil {
		return nil
	}
	return &auth.CodeDelivery{
		AttributeName:  aws.ToString(d.AttributeName),
		DeliveryMedium: string(d.DeliveryMedium),
		Destination:    aws.ToString(d.Destination),
	}
}
