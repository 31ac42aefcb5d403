package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrictPasswordPolicy(t *testing.T) {
	policy := StrictPasswordPolicy()

	require.NoError(t, policy.Validate("Passw0rd!"))

	cases := map[string]string{
		"too short":  "Pa0!",
		"no upper":   "passw0rd!",
		"no lower":   "PASSW0RD!",
		"no digit":   "Password!",
		"no symbol":  "Passw0rdX",
		"wrong sign": "Passw0rd#",
	}
	for name, password := range cases {
		t.Run(name, func(t *testing.T) {
			err := policy.Validate(password)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestRelaxedPasswordPolicy(t *testing.T) {
	policy := RelaxedPasswordPolicy()

	require.NoError(t, policy.Validate("abc123"))
	require.NoError(t, policy.Validate("passw0rd"))

	assert.ErrorIs(t, policy.Validate("ab12"), ErrValidation)
	assert.ErrorIs(t, policy.Validate("123456"), ErrValidation)
	assert.ErrorIs(t, policy.Validate("abcdef"), ErrValidation)
}

func TestValidateEmail(t *testing.T) {
	require.NoError(t, validateEmail("ann@example.com"))

	for _, email := range []string{"", "no-at-sign", "a@b", "two@@example.com", "spaces in@example.com"} {
		assert.ErrorIs(t, validateEmail(email), ErrValidation, "email %q", email)
	}
}

func TestValidateName(t *testing.T) {
	require.NoError(t, validateName("Ann O'Neil-Smith"))

	for _, name := range []string{"", "A", "Ann42", "<script>"} {
		assert.ErrorIs(t, validateName(name), ErrValidation, "name %q", name)
	}
}
