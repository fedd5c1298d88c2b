package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

const (
	tokenPath       = "/auth/service-token"
	tokenSkew       = 30 * time.Second
	tokenFallbackTT = time.Hour
)

// tokenCache holds the current service token. Fetches are serialized so a
// burst of requests after expiry triggers a single login.
type tokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
	fetch     func(ctx context.Context) (string, error)
}

func (c *tokenCache) get(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !force && c.token != "" && now.Before(c.expiresAt.Add(-tokenSkew)) {
		return c.token, nil
	}
	token, err := c.fetch(ctx)
	if err != nil {
		c.token = ""
		c.expiresAt = time.Time{}
		return "", err
	}
	c.token = token
	if exp, ok := jwtExpiry(token); ok {
		c.expiresAt = exp
	} else {
		c.expiresAt = now.Add(tokenFallbackTT)
	}
	return token, nil
}

func (c *tokenCache) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

// jwtExpiry reads the exp claim without verifying the signature; the token is
// only used to decide when to log in again.
func jwtExpiry(token string) (time.Time, bool) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return time.Time{}, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return time.Time{}, false
	}
	var claims struct {
		Exp json.Number `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Exp == "" {
		return time.Time{}, false
	}
	seconds, err := claims.Exp.Float64()
	if err != nil || seconds <= 0 {
		return time.Time{}, false
	}
	return time.Unix(int64(seconds), 0), true
}
