package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestStatic(t *testing.T) {
	t.Parallel()

	tok, err := Static("abc123").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", tok)

	_, err = Static("").Token(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("APEX_TEST_TOKEN", "  tok-1  ")
	p := FromEnv("APEX_TEST_TOKEN")

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	// Rotation is picked up without rebuilding the provider.
	t.Setenv("APEX_TEST_TOKEN", "tok-2")
	tok, err = p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)

	t.Setenv("APEX_TEST_TOKEN", "")
	_, err = p.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestFromTokenSource(t *testing.T) {
	t.Parallel()

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "oauth-tok"})
	tok, err := FromTokenSource(src).Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "oauth-tok", tok)

	empty := oauth2.StaticTokenSource(&oauth2.Token{})
	_, err = FromTokenSource(empty).Token(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}
