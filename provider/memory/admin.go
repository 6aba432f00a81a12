package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/habit-tracker/go-auth"
)

// AdminCreateUser creates a confirmed user holding a temporary password. The
// first sign in answers with a new password challenge listing
// requiredAttributes.
func (p *Provider) AdminCreateUser(ctx context.Context, username, temporaryPassword string, attributes auth.Attributes, requiredAttributes ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.users[username]; exists {
		return "", auth.WrapError(auth.ErrUserExists, nil, map[string]any{"username": username})
	}

	hash, err := p.hashPassword(temporaryPassword)
	if err != nil {
		return "", err
	}

	u := &user{
		username:           username,
		subjectID:          uuid.NewString(),
		passwordHash:       hash,
		attributes:         attributes.Clone(),
		confirmed:          true,
		mustChangePassword: true,
		requiredAttributes: append([]string(nil), requiredAttributes...),
	}
	if u.attributes == nil {
		u.attributes = auth.Attributes{}
	}
	u.attributes[auth.AttributeSubject] = u.subjectID
	if _, ok := u.attributes[auth.AttributeEmailVerified]; !ok {
		u.attributes[auth.AttributeEmailVerified] = "true"
	}

	p.users[username] = u
	return u.subjectID, nil
}

// AdminConfirmSignUp confirms a user without a code.
func (p *Provider) AdminConfirmSignUp(ctx context.Context, username string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	u, err := p.lookup(username)
	if err != nil {
		return err
	}
	u.confirmed = true
	u.confirmationCode = nil
	return nil
}

// AdminResetUserPassword forces the user through the forgot password flow
// and sends a reset code.
func (p *Provider) AdminResetUserPassword(ctx context.Context, username string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	u, err := p.lookup(username)
	if err != nil {
		return err
	}
	u.resetRequired = true
	u.resetCode = p.newCode()
	return nil
}

// GlobalSignOut revokes every token issued to username so far.
func (p *Provider) GlobalSignOut(ctx context.Context, username string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	u, err := p.lookup(username)
	if err != nil {
		return err
	}
	u.generation++
	return nil
}

// ConfirmationCode returns the pending registration code for username. It
// stands in for reading the delivered email.
func (p *Provider) ConfirmationCode(username string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.users[username]
	if !ok || u.confirmationCode == nil {
		return "", false
	}
	return u.confirmationCode.value, true
}

// ResetCode returns the pending password reset code for username.
func (p *Provider) ResetCode(username string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.users[username]
	if !ok || u.resetCode == nil {
		return "", false
	}
	return u.resetCode.value, true
}
