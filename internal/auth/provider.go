// Package auth supplies bearer credentials for calls against the APEX.BUILD
// platform API. Providers are consulted fresh on every connection attempt so
// rotated or refreshed tokens are picked up without restarting callers.
package auth

import (
	"context"
	"errors"
	"os"
	"strings"

	"golang.org/x/oauth2"
)

// ErrNoCredential is returned when a provider cannot produce a token.
var ErrNoCredential = errors.New("auth: no credential available")

// TokenProvider yields a current bearer credential. Implementations must be
// safe for concurrent use; callers never cache the result across attempts.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenProviderFunc adapts a plain function to the TokenProvider interface.
type TokenProviderFunc func(ctx context.Context) (string, error)

// Token implements TokenProvider.
func (f TokenProviderFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Static returns a provider that always yields the given token.
func Static(token string) TokenProvider {
	return TokenProviderFunc(func(context.Context) (string, error) {
		if token == "" {
			return "", ErrNoCredential
		}
		return token, nil
	})
}

// FromEnv returns a provider that reads the token from an environment
// variable on every call, so a rotated value is honored mid-process.
func FromEnv(key string) TokenProvider {
	return TokenProviderFunc(func(context.Context) (string, error) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return "", ErrNoCredential
		}
		return v, nil
	})
}

// FromTokenSource adapts an oauth2.TokenSource (integration OAuth flows,
// service accounts) to the TokenProvider interface.
func FromTokenSource(src oauth2.TokenSource) TokenProvider {
	return TokenProviderFunc(func(context.Context) (string, error) {
		tok, err := src.Token()
		if err != nil {
			return "", err
		}
		if tok.AccessToken == "" {
			return "", ErrNoCredential
		}
		return tok.AccessToken, nil
	})
}
