package memory

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/habit-tracker/go-auth"
)

var (
	upperPattern  = regexp.MustCompile(`[A-Z]`)
	lowerPattern  = regexp.MustCompile(`[a-z]`)
	digitPattern  = regexp.MustCompile(`[0-9]`)
	symbolPattern = regexp.MustCompile(`[^A-Za-z0-9\s]`)
)

// PasswordPolicy mirrors a user pool password policy.
type PasswordPolicy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPasswordPolicy matches the default Cognito pool policy.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:     8,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
	}
}

// Check returns auth.ErrInvalidPassword when password breaks the policy.
func (p PasswordPolicy) Check(password string) error {
	rules := []validation.Rule{validation.Required}
	if p.MinLength > 0 {
		rules = append(rules, validation.RuneLength(p.MinLength, 0).Error("must be at least the minimum length"))
	}
	if p.RequireUpper {
		rules = append(rules, validation.Match(upperPattern).Error("must contain an uppercase letter"))
	}
	if p.RequireLower {
		rules = append(rules, validation.Match(lowerPattern).Error("must contain a lowercase letter"))
	}
	if p.RequireDigit {
		rules = append(rules, validation.Match(digitPattern).Error("must contain a number"))
	}
	if p.RequireSymbol {
		rules = append(rules, validation.Match(symbolPattern).Error("must contain a symbol"))
	}

	if err := validation.Validate(password, rules...); err != nil {
		return auth.WrapError(auth.ErrInvalidPassword, err, map[string]any{"reason": err.Error()})
	}
	return nil
}
