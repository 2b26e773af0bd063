package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsignedJWT builds a syntactically valid JWT with the given exp claim. The
// exchanger never verifies signatures, so "sig" is fine.
func unsignedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	enc := func(v any) string {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(b)
	}
	header := enc(map[string]string{"alg": "HS256", "typ": "JWT"})
	claims := enc(map[string]any{"sub": "user-1", "exp": exp.Unix()})
	return fmt.Sprintf("%s.%s.%s", header, claims, base64.RawURLEncoding.EncodeToString([]byte("sig")))
}

func TestExchangerCachesUntilExpiry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	now := time.Now()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/auth/token", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "api_key", body["grant_type"])
		require.Equal(t, "key-1", body["api_key"])

		json.NewEncoder(w).Encode(map[string]string{
			"access_token": unsignedJWT(t, now.Add(time.Hour)),
		})
	}))
	defer srv.Close()

	e := NewExchanger(srv.URL, "key-1")

	tok1, err := e.Token(context.Background())
	require.NoError(t, err)
	tok2, err := e.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, tok1, tok2)
	assert.Equal(t, int32(1), calls.Load(), "second call must hit the cache")
}

func TestExchangerRefreshesNearExpiry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": unsignedJWT(t, time.Now().Add(time.Duration(n)*time.Hour)),
		})
	}))
	defer srv.Close()

	e := NewExchanger(srv.URL, "key-1")
	_, err := e.Token(context.Background())
	require.NoError(t, err)

	// Jump the clock to within the slack window of the first token's expiry.
	e.now = func() time.Time { return time.Now().Add(time.Hour - 10*time.Second) }

	_, err = e.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExchangerInvalidate(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": unsignedJWT(t, time.Now().Add(time.Hour)),
		})
	}))
	defer srv.Close()

	e := NewExchanger(srv.URL, "key-1")
	_, err := e.Token(context.Background())
	require.NoError(t, err)

	e.Invalidate()

	_, err = e.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExchangerErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing api key", func(t *testing.T) {
		t.Parallel()
		e := NewExchanger("http://127.0.0.1:0", "")
		_, err := e.Token(context.Background())
		assert.ErrorIs(t, err, ErrNoCredential)
	})

	t.Run("server rejects key", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "invalid api key", http.StatusUnauthorized)
		}))
		defer srv.Close()

		e := NewExchanger(srv.URL, "bad-key")
		_, err := e.Token(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})
}
