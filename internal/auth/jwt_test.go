package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	token, exp, err := Issue("admin-1", "kospresensi", "secret", time.Hour)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	claims, err := Parse(token, "secret", "kospresensi")
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.AdminID)
	assert.Equal(t, "kospresensi", claims.Issuer)
}

func TestParseRejectsWrongKey(t *testing.T) {
	token, _, err := Issue("admin-1", "kospresensi", "secret", time.Hour)
	require.NoError(t, err)

	_, err = Parse(token, "other-secret", "kospresensi")
	assert.Error(t, err)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	token, _, err := Issue("admin-1", "someone-else", "secret", time.Hour)
	require.NoError(t, err)

	_, err = Parse(token, "secret", "kospresensi")
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	token, _, err := Issue("admin-1", "kospresensi", "secret", -time.Minute)
	require.NoError(t, err)

	_, err = Parse(token, "secret", "kospresensi")
	assert.Error(t, err)
}
