package memory

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/habit-tracker/go-auth"
	"golang.org/x/crypto/bcrypt"
)

const (
	deliveryMediumEmail = "EMAIL"
	defaultIssuer       = "habit-tracker-memory"
)

type code struct {
	value     string
	expiresAt time.Time
}

type user struct {
	username           string
	subjectID          string
	passwordHash       string
	attributes         auth.Attributes
	confirmed          bool
	mustChangePassword bool
	resetRequired      bool
	requiredAttributes []string
	challengeSession   string
	confirmationCode   *code
	resetCode          *code
	codeSends          int
	generation         int
}

var _ auth.IdentityProvider = (*Provider)(nil)

// Provider is an in-process identity provider with user pool semantics. It
// tracks one signed in user the way a device does.
type Provider struct {
	mu       sync.Mutex
	users    map[string]*user
	sessions map[string]auth.TokenBundle
	current  string

	signingKey  []byte
	issuer      string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	codeTTL     time.Duration
	codeLimit   int
	hashCost    int
	autoConfirm bool
	policy      PasswordPolicy
	codes       func() string
	now         func() time.Time
	logger      auth.Logger
}

// Option customizes a Provider.
type Option func(*Provider)

// WithSigningKey sets the HS256 key used for issued tokens.
func WithSigningKey(key []byte) Option {
	return func(p *Provider) {
		if len(key) > 0 {
			p.signingKey = key
		}
	}
}

// WithTokenTTL sets the access/ID token and refresh token lifetimes.
func WithTokenTTL(access, refresh time.Duration) Option {
	return func(p *Provider) {
		if access > 0 {
			p.accessTTL = access
		}
		if refresh > 0 {
			p.refreshTTL = refresh
		}
	}
}

// WithCodeTTL sets how long confirmation and reset codes stay usable.
func WithCodeTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.codeTTL = ttl
		}
	}
}

// WithCodeLimit caps how many codes a user may request before
// auth.ErrLimitExceeded.
func WithCodeLimit(limit int) Option {
	return func(p *Provider) {
		if limit > 0 {
			p.codeLimit = limit
		}
	}
}

// WithCodeGenerator replaces the six digit code generator.
func WithCodeGenerator(fn func() string) Option {
	return func(p *Provider) {
		if fn != nil {
			p.codes = fn
		}
	}
}

// WithHashCost sets the bcrypt cost.
func WithHashCost(cost int) Option {
	return func(p *Provider) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			p.hashCost = cost
		}
	}
}

// WithAutoConfirm confirms users at sign up.
func WithAutoConfirm(enabled bool) Option {
	return func(p *Provider) {
		p.autoConfirm = enabled
	}
}

// WithPasswordPolicy replaces DefaultPasswordPolicy.
func WithPasswordPolicy(policy PasswordPolicy) Option {
	return func(p *Provider) {
		p.policy = policy
	}
}

// WithClock injects the clock used for token and code expiry.
func WithClock(clock func() time.Time) Option {
	return func(p *Provider) {
		if clock != nil {
			p.now = clock
		}
	}
}

// WithLogger sets the provider logger.
func WithLogger(logger auth.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New returns an empty provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		users:      map[string]*user{},
		sessions:   map[string]auth.TokenBundle{},
		signingKey: []byte(uuid.NewString()),
		issuer:     defaultIssuer,
		accessTTL:  time.Hour,
		refreshTTL: 30 * 24 * time.Hour,
		codeTTL:    24 * time.Hour,
		codeLimit:  5,
		hashCost:   defaultHashCost(),
		policy:     DefaultPasswordPolicy(),
		codes:      sixDigitCode,
		now:        time.Now,
		logger:     auth.NopLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// SignUp implements auth.IdentityProvider.
func (p *Provider) SignUp(ctx context.Context, in auth.SignUpInput) (*auth.SignUpResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.users[in.Username]; exists {
		return nil, auth.WrapError(auth.ErrUserExists, nil, map[string]any{"username": in.Username})
	}
	if err := p.policy.Check(in.Password); err != nil {
		return nil, err
	}

	hash, err := p.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &user{
		username:     in.Username,
		subjectID:    uuid.NewString(),
		passwordHash: hash,
		attributes:   in.Attributes.Clone(),
		confirmed:    p.autoConfirm,
	}
	if u.attributes == nil {
		u.attributes = auth.Attributes{}
	}
	u.attributes[auth.AttributeSubject] = u.subjectID
	u.attributes[auth.AttributeEmailVerified] = "false"

	result := &auth.SignUpResult{
		Username:      u.username,
		UserConfirmed: u.confirmed,
		UserSubjectID: u.subjectID,
	}
	if !u.confirmed {
		u.confirmationCode = p.newCode()
		u.codeSends = 1
		result.CodeDelivery = p.delivery(u)
	}

	p.users[u.username] = u
	p.logger.Debug("memory provider: signed up %s", u.username)
	return result, nil
}

// ConfirmSignUp implements auth.IdentityProvider.
func (p *Provider) ConfirmSignUp(ctx context.Context, username, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	u, err := p.lookup(username)
	if err != nil {
		return err
	}
	if u.confirmed {
		return auth.WrapError(auth.ErrNotAuthorized, nil, map[string]any{
			"username": username,
			"reason":   "already confirmed",
		})
	}
	if err := p.checkCode(u.confirmationCode, value); err != nil {
		return err
	}

	u.confirmed = true
	u.confirmationCode = nil
	u.codeSends = 0
	u.attributes[auth.AttributeEmailVerified] = "true"
	return nil
}

// ResendConfirmationCode implements auth.IdentityProvider.
func (p *Provider) ResendConfirmationCode(ctx context.Context, username string) (*auth.CodeDelivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	u, err := p.lookup(username)
	if err != nil {
		return nil, err
	}
	if u.confirmed {
		return nil, auth.WrapError(auth.ErrInvalidParameter, nil, map[string]any{
			"username": username,
			"reason":   "already confirmed",
		})
	}
	if err := p.countSend(u); err != nil {
		return nil, err
	}

	u.confirmationCode = p.newCode()
	return p.delivery(u), nil
}

// Authenticate implements auth.IdentityProvider.
func (p *Provider) Authenticate(ctx context.Context, username, password string) (*auth.AuthOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.users[username]
	if !ok || !matchesPassword(u.passwordHash, password) {
		return nil, auth.WrapError(auth.ErrNotAuthorized, nil, map[string]any{"username": username})
	}
	if u.resetRequired {
		return nil, auth.WrapError(auth.ErrPasswordResetRequired, nil, map[string]any{"username": username})
	}
	if !u.confirmed {
		return nil, auth.WrapError(auth.ErrUserNotConfirmed, nil, map[string]any{"username": username})
	}

	if u.mustChangePassword {
		u.challengeSession = uuid.NewString()
		return &auth.AuthOutcome{NewPasswordRequired: &auth.NewPasswordChallenge{
			Username:           u.username,
			Session:            u.challengeSession,
			UserAttributes:     u.attributes.Clone(),
			RequiredAttributes: append([]string(nil), u.requiredAttributes...),
		}}, nil
	}

	return p.signIn(u)
}

// RespondNewPassword implements auth.IdentityProvider.
func (p *Provider) RespondNewPassword(ctx context.Context, challenge *auth.NewPasswordChallenge, newPassword string, attributes auth.Attributes) (*auth.AuthOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.users[challenge.Username]
	if !ok || !u.mustChangePassword || u.challengeSession == "" || u.challengeSession != challenge.Session {
		return nil, auth.WrapError(auth.ErrNotAuthorized, nil, map[string]any{
			"username": challenge.Username,
			"reason":   "invalid session for the user",
		})
	}
	for _, name := range u.requiredAttributes {
		if attributes[name] == "" && u.attributes[name] == "" {
			return nil, auth.WrapError(auth.ErrInvalidParameter, nil, map[string]any{
				"username":  u.username,
				"attribute": name,
			})
		}
	}
	if err := p.policy.Check(newPassword); err != nil {
		return nil, err
	}

	hash, err := p.hashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	u.passwordHash = hash
	u.mustChangePassword = false
	u.challengeSession = ""
	u.requiredAttributes = nil
	for name, value := range attributes {
		if name == auth.AttributeSubject {
			continue
		}
		u.attributes[name] = value
	}

	return p.signIn(u)
}

func (p *Provider) signIn(u *user) (*auth.AuthOutcome, error) {
	tokens, err := p.issue(u)
	if err != nil {
		return nil, err
	}
	p.sessions[u.username] = tokens
	p.current = u.username
	p.logger.Debug("memory provider: authenticated %s", u.username)
	return &auth.AuthOutcome{Tokens: &tokens}, nil
}

// ForgotPassword implements auth.IdentityProvider.
func (p *Provider) ForgotPassword(ctx context.Context, username string) (*auth.CodeDelivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	u, err := p.lookup(username)
	if err != nil {
		return nil, err
	}
	if !u.confirmed {
		return nil, auth.WrapError(auth.ErrInvalidParameter, nil, map[string]any{
			"username": username,
			"reason":   "no verified email",
		})
	}
	if err := p.countSend(u); err != nil {
		return nil, err
	}

	u.resetCode = p.newCode()
	return p.delivery(u), nil
}

// ConfirmForgotPassword implements auth.IdentityProvider.
func (p *Provider) ConfirmForgotPassword(ctx context.Context, username, value, newPassword string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	u, err := p.lookup(username)
	if err != nil {
		return err
	}
	if err := p.checkCode(u.resetCode, value); err != nil {
		return err
	}
	if err := p.policy.Check(newPassword); err != nil {
		return err
	}

	hash, err := p.hashPassword(newPassword)
	if err != nil {
		return err
	}

	u.passwordHash = hash
	u.resetCode = nil
	u.resetRequired = false
	u.mustChangePassword = false
	u.codeSends = 0
	return nil
}

// ChangePassword implements auth.IdentityProvider.
func (p *Provider) ChangePassword(ctx context.Context, accessToken, oldPassword, newPassword string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	u, err := p.verify(accessToken, tokenUseAccess)
	if err != nil {
		return err
	}
	if !matchesPassword(u.passwordHash, oldPassword) {
		return auth.WrapError(auth.ErrNotAuthorized, nil, map[string]any{
			"username": u.username,
			"reason":   "incorrect password",
		})
	}
	if err := p.policy.Check(newPassword); err != nil {
		return err
	}

	hash, err := p.hashPassword(newPassword)
	if err != nil {
		return err
	}
	u.passwordHash = hash
	return nil
}

// GetUserAttributes implements auth.IdentityProvider.
func (p *Provider) GetUserAttributes(ctx context.Context, accessToken string) (auth.Attributes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	u, err := p.verify(accessToken, tokenUseAccess)
	if err != nil {
		return nil, err
	}
	return u.attributes.Clone(), nil
}

// CurrentUser implements auth.IdentityProvider.
func (p *Provider) CurrentUser(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.current != "", nil
}

// GetSession validates the tracked tokens and refreshes them when the access
// token expired but the refresh token is still good.
func (p *Provider) GetSession(ctx context.Context, username string) (*auth.ProviderSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tokens, ok := p.sessions[username]
	session := &auth.ProviderSession{Username: username, Tokens: tokens}
	if !ok {
		return session, nil
	}

	if _, err := p.verify(tokens.AccessToken, tokenUseAccess); err == nil {
		session.Valid = true
		return session, nil
	}

	u, err := p.verify(tokens.RefreshToken, tokenUseRefresh)
	if err != nil {
		p.logger.Debug("memory provider: refresh rejected for %s: %v", username, err)
		return session, nil
	}

	access, err := p.mint(u, tokenUseAccess, p.accessTTL)
	if err != nil {
		return nil, err
	}
	id, err := p.mint(u, tokenUseID, p.accessTTL)
	if err != nil {
		return nil, err
	}

	tokens.AccessToken = access
	tokens.IDToken = id
	p.sessions[username] = tokens

	session.Tokens = tokens
	session.Valid = true
	return session, nil
}

// SignOut forgets the tracked session for username.
func (p *Provider) SignOut(ctx context.Context, username string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.sessions, username)
	if p.current == username {
		p.current = ""
	}
	return nil
}

func (p *Provider) lookup(username string) (*user, error) {
	u, ok := p.users[username]
	if !ok {
		return nil, auth.WrapError(auth.ErrUserNotFound, nil, map[string]any{"username": username})
	}
	return u, nil
}

func (p *Provider) newCode() *code {
	return &code{value: p.codes(), expiresAt: p.now().Add(p.codeTTL)}
}

func (p *Provider) checkCode(c *code, value string) error {
	if c == nil || c.value != strings.TrimSpace(value) {
		return auth.WrapError(auth.ErrCodeMismatch, nil, nil)
	}
	if !p.now().Before(c.expiresAt) {
		return auth.WrapError(auth.ErrCodeExpired, nil, nil)
	}
	return nil
}

func (p *Provider) countSend(u *user) error {
	if u.codeSends >= p.codeLimit {
		return auth.WrapError(auth.ErrLimitExceeded, nil, map[string]any{
			"username": u.username,
			"limit":    p.codeLimit,
		})
	}
	u.codeSends++
	return nil
}

func (p *Provider) delivery(u *user) *auth.CodeDelivery {
	return &auth.CodeDelivery{
		AttributeName:  auth.AttributeEmail,
		DeliveryMedium: deliveryMediumEmail,
		Destination:    maskEmail(u.attributes[auth.AttributeEmail]),
	}
}

// maskEmail renders a@example.com as a***@e***.
func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" {
		return ""
	}
	return local[:1] + "***@" + domain[:1] + "***"
}

func sixDigitCode() string {
	id := uuid.New()
	return fmt.Sprintf("%06d", binary.BigEndian.Uint64(id[:8])%1_000_000)
}
