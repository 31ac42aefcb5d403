package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ann@example.com", NormalizeEmail(" Ann@Example.COM "))
	assert.Equal(t, "a@b.com", NormalizeEmail("a@b.com"))
	assert.Equal(t, "", NormalizeEmail("   "))
}
