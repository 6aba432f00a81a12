package auth

// Standard attribute names exchanged with the identity provider.
const (
	AttributeEmail         = "email"
	AttributeName          = "name"
	AttributeEmailVerified = "email_verified"
	AttributeSubject       = "sub"
)

// Results reported by operations whose provider answer is opaque.
const (
	ConfirmationSuccess   = "SUCCESS"
	ChangePasswordSuccess = "SUCCESS"
)

// UserProfile is a snapshot of the provider attributes for a user. A fresh
// fetch replaces it wholesale.
type UserProfile struct {
	Username      string `json:"username"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"emailVerified"`
	// SubjectID is stable across sign-ins and is the only field safe to use
	// as a durable reference to the user.
	SubjectID string `json:"sub"`
}

// TokenBundle holds the three opaque tokens issued on sign-in.
type TokenBundle struct {
	AccessToken  string `json:"accessToken"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
}

// Attributes is the flat name/value attribute set the provider stores for a user.
type Attributes map[string]string

// Profile builds a UserProfile for username from the attribute set.
func (a Attributes) Profile(username string) *UserProfile {
	return &UserProfile{
		Username:      username,
		Email:         a[AttributeEmail],
		Name:          a[AttributeName],
		EmailVerified: a[AttributeEmailVerified] == "true",
		SubjectID:     a[AttributeSubject],
	}
}

// Clone returns a copy safe to hand to callers.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

type SignUpInput struct {
	Username   string
	Password   string
	Attributes Attributes
}

type SignUpResult struct {
	Username      string        `json:"username"`
	UserConfirmed bool          `json:"userConfirmed"`
	UserSubjectID string        `json:"userSub"`
	CodeDelivery  *CodeDelivery `json:"codeDelivery,omitempty"`
}

// CodeDelivery describes where the provider sent a one-time code.
type CodeDelivery struct {
	AttributeName  string `json:"attributeName,omitempty"`
	DeliveryMedium string `json:"deliveryMedium,omitempty"`
	Destination    string `json:"destination,omitempty"`
}

// NewPasswordChallenge is issued when the provider requires the user to set a
// new password before a session can be established.
type NewPasswordChallenge struct {
	Username string `json:"username"`
	// Session is the provider's opaque continuation handle.
	Session            string     `json:"-"`
	UserAttributes     Attributes `json:"userAttributes,omitempty"`
	RequiredAttributes []string   `json:"requiredAttributes,omitempty"`
}

// AuthOutcome is the provider answer to an authentication attempt: exactly
// one of Tokens and NewPasswordRequired is set.
type AuthOutcome struct {
	Tokens              *TokenBundle
	NewPasswordRequired *NewPasswordChallenge
}

// ProviderSession is the provider's view of a tracked user's session.
type ProviderSession struct {
	Username string
	Tokens   TokenBundle
	Valid    bool
}

func (s *ProviderSession) IsValid() bool {
	return s != nil && s.Valid
}

// SignInResult is either an established session (Profile and Tokens) or a
// new password challenge. The challenge is not an error.
type SignInResult struct {
	Profile             *UserProfile          `json:"user,omitempty"`
	Tokens              *TokenBundle          `json:"tokens,omitempty"`
	NewPasswordRequired *NewPasswordChallenge `json:"newPasswordRequired,omitempty"`
}

// Authenticated reports whether the sign-in established a session.
func (r *SignInResult) Authenticated() bool {
	return r != nil && r.NewPasswordRequired == nil && r.Tokens != nil
}
