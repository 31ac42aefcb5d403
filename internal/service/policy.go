package service

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailPattern  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	namePattern   = regexp.MustCompile(`^[a-zA-Z\s'-]+$`)
	letterPattern = regexp.MustCompile(`[a-zA-Z]`)
	upperPattern  = regexp.MustCompile(`[A-Z]`)
	lowerPattern  = regexp.MustCompile(`[a-z]`)
	digitPattern  = regexp.MustCompile(`\d`)
	symbolPattern = regexp.MustCompile(`[@$!%*?&]`)
)

const (
	maxEmailLength = 254
	minNameLength  = 2
	maxNameLength  = 100
)

// PasswordPolicy is the externally supplied rule set for password content.
// The deployment picks a preset at startup instead of branching on the
// environment inside the service.
type PasswordPolicy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
	RequireLetter bool
	Description   string
}

// StrictPasswordPolicy mirrors the production rules: at least 8 characters
// with upper, lower, digit and one of @$!%*?&.
func StrictPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:     8,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
		Description:   "minimum 8 characters with uppercase, lowercase, number, and special character",
	}
}

// RelaxedPasswordPolicy mirrors the development rules: at least 6 characters
// with a letter and a digit.
func RelaxedPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:     6,
		RequireLetter: true,
		RequireDigit:  true,
		Description:   "minimum 6 characters with at least one letter and one number",
	}
}

// Validate checks a plaintext password against the policy.
func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, p.MinLength)
	}
	if p.RequireLetter && !letterPattern.MatchString(password) {
		return fmt.Errorf("%w: password must contain at least one letter", ErrValidation)
	}
	if p.RequireUpper && !upperPattern.MatchString(password) {
		return fmt.Errorf("%w: password must contain at least one uppercase letter", ErrValidation)
	}
	if p.RequireLower && !lowerPattern.MatchString(password) {
		return fmt.Errorf("%w: password must contain at least one lowercase letter", ErrValidation)
	}
	if p.RequireDigit && !digitPattern.MatchString(password) {
		return fmt.Errorf("%w: password must contain at least one number", ErrValidation)
	}
	if p.RequireSymbol && !symbolPattern.MatchString(password) {
		return fmt.Errorf("%w: password must contain at least one special character (@$!%%*?&)", ErrValidation)
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if len(email) > maxEmailLength {
		return fmt.Errorf("%w: email must be less than %d characters", ErrValidation, maxEmailLength+1)
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%w: valid email required", ErrValidation)
	}
	return nil
}

func validateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < minNameLength || len(trimmed) > maxNameLength {
		return fmt.Errorf("%w: name must be between %d and %d characters", ErrValidation, minNameLength, maxNameLength)
	}
	if !namePattern.MatchString(trimmed) {
		return fmt.Errorf("%w: name can only contain letters, spaces, hyphens, and apostrophes", ErrValidation)
	}
	return nil
}
