package cognito

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Config holds the Cognito user pool app client settings.
type Config struct {
	// Region is the AWS region hosting the user pool (e.g., "eu-north-1").
	Region string

	// UserPoolID identifies the pool (e.g., "eu-north-1_AbCdEf").
	UserPoolID string

	// ClientID is the app client id.
	ClientID string

	// ClientSecret is set only for confidential app clients. When present
	// every call carries a SECRET_HASH.
	ClientSecret string

	// GlobalSignOut revokes every issued token on SignOut instead of only
	// forgetting the local session.
	GlobalSignOut bool

	// ClockDrift is how long before expiry a token is considered stale.
	// Default: 30 seconds.
	ClockDrift time.Duration

	// Endpoint overrides the service endpoint (optional).
	Endpoint string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(region, userPoolID, clientID string) Config {
	return Config{
		Region:     region,
		UserPoolID: userPoolID,
		ClientID:   clientID,
		ClockDrift: 30 * time.Second,
	}
}

// Validate checks the required fields.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Region, validation.Required),
		validation.Field(&c.UserPoolID, validation.Required),
		validation.Field(&c.ClientID, validation.Required),
		validation.Field(&c.ClockDrift, validation.Min(time.Duration(0))),
	)
}

// keyPrefix matches the prefix the Cognito client SDKs use for their local
// session keys.
func (c Config) keyPrefix() string {
	return "CognitoIdentityServiceProvider." + strings.TrimSpace(c.ClientID)
}
