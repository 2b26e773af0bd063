package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expirySlack is how long before the JWT exp claim a cached token is
// considered stale and re-exchanged.
const expirySlack = 30 * time.Second

// Exchanger trades a long-lived API key for a short-lived platform JWT and
// caches it until shortly before expiry. The platform signs the JWT; the
// client only reads the exp claim, so the parse is deliberately unverified.
type Exchanger struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time

	now func() time.Time
}

// NewExchanger creates an Exchanger against {baseURL}/api/auth/token.
func NewExchanger(baseURL, apiKey string) *Exchanger {
	return &Exchanger{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/auth/token",
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

// Token returns the cached JWT when still fresh, otherwise performs a new
// exchange. Concurrent callers share a single exchange.
func (e *Exchanger) Token(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.token != "" && e.now().Before(e.expires.Add(-expirySlack)) {
		return e.token, nil
	}

	tok, err := e.exchange(ctx)
	if err != nil {
		return "", err
	}

	e.token = tok
	e.expires = jwtExpiry(tok, e.now())
	return tok, nil
}

// Invalidate drops the cached token so the next call performs a fresh
// exchange. Called by API-layer code after a 401.
func (e *Exchanger) Invalidate() {
	e.mu.Lock()
	e.token = ""
	e.expires = time.Time{}
	e.mu.Unlock()
}

func (e *Exchanger) exchange(ctx context.Context) (string, error) {
	if e.apiKey == "" {
		return "", ErrNoCredential
	}

	body, err := json.Marshal(map[string]string{
		"grant_type": "api_key",
		"api_key":    e.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(msg))
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if out.AccessToken == "" {
		return "", ErrNoCredential
	}
	return out.AccessToken, nil
}

// jwtExpiry extracts the exp claim without verifying the signature. Tokens
// that cannot be parsed get a conservative one-minute lifetime.
func jwtExpiry(token string, now time.Time) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return now.Add(time.Minute)
}
