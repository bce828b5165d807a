package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusfair/gatekeeper/pkg/auth"
)

func TestHashAndComparePassword(t *testing.T) {
	hash, err := auth.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	assert.NotContains(t, hash, "correct horse")

	assert.NoError(t, auth.ComparePassword(hash, "correct horse battery staple"))
	assert.Error(t, auth.ComparePassword(hash, "Correct horse battery staple"))
	assert.Error(t, auth.ComparePassword(hash, ""))
}

func TestHashPassword_Salted(t *testing.T) {
	first, err := auth.HashPassword("hunter2!")
	require.NoError(t, err)
	second, err := auth.HashPassword("hunter2!")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "each hash carries its own salt")
}

func TestComparePassword_RejectsGarbageHash(t *testing.T) {
	assert.Error(t, auth.ComparePassword("not-a-bcrypt-hash", "hunter2!"))
}
