package memory

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/habit-tracker/go-auth"
)

const (
	tokenUseAccess  = "access"
	tokenUseID      = "id"
	tokenUseRefresh = "refresh"
)

// tokenClaims is the payload of every token the provider issues.
type tokenClaims struct {
	jwt.RegisteredClaims
	TokenUse   string `json:"token_use"`
	Username   string `json:"username"`
	Email      string `json:"email,omitempty"`
	Generation int    `json:"gen"`
}

func (p *Provider) mint(u *user, use string, ttl time.Duration) (string, error) {
	now := p.now()
	claims := &tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   u.subjectID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenUse:   use,
		Username:   u.username,
		Generation: u.generation,
	}
	if use == tokenUseID {
		claims.Email = u.attributes[auth.AttributeEmail]
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.signingKey)
	if err != nil {
		return "", auth.WrapError(auth.ErrMissingTokens, err, map[string]any{"token_use": use})
	}
	return signed, nil
}

func (p *Provider) issue(u *user) (auth.TokenBundle, error) {
	access, err := p.mint(u, tokenUseAccess, p.accessTTL)
	if err != nil {
		return auth.TokenBundle{}, err
	}
	id, err := p.mint(u, tokenUseID, p.accessTTL)
	if err != nil {
		return auth.TokenBundle{}, err
	}
	refresh, err := p.mint(u, tokenUseRefresh, p.refreshTTL)
	if err != nil {
		return auth.TokenBundle{}, err
	}
	return auth.TokenBundle{AccessToken: access, IDToken: id, RefreshToken: refresh}, nil
}

// verify returns the user a token was issued to. Expired, revoked, forged
// or wrongly typed tokens fail with auth.ErrNotAuthorized. Callers hold p.mu.
func (p *Provider) verify(token, use string) (*user, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return p.signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, auth.WrapError(auth.ErrNotAuthorized, err, map[string]any{"token_use": use})
	}
	if claims.TokenUse != use {
		return nil, auth.WrapError(auth.ErrNotAuthorized, nil, map[string]any{
			"token_use": use,
			"got":       claims.TokenUse,
		})
	}

	u, ok := p.users[claims.Username]
	if !ok || u.subjectID != claims.Subject {
		return nil, auth.WrapError(auth.ErrNotAuthorized, nil, map[string]any{"token_use": use})
	}
	if u.generation != claims.Generation {
		return nil, auth.WrapError(auth.ErrNotAuthorized, nil, map[string]any{
			"token_use": use,
			"reason":    "revoked",
		})
	}
	return u, nil
}
