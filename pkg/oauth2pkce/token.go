package oauth2pkce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// defaultExpiresIn is used when a refresh response omits expires_in.
const defaultExpiresIn = 1200 * time.Second

// Token is a cloud-drive access token pair, refreshed in place as it
// expires. Its zero value is not usable; construct via NewToken.
type Token struct {
	mu sync.RWMutex

	config    *oauth2.Config
	current   *oauth2.Token
	expiresIn time.Duration // fallback duration applied on a missing expires_in
}

// NewToken wraps an initial oauth2.Token obtained from the authorization
// code exchange, ready for later refresh.
func NewToken(config *oauth2.Config, initial *oauth2.Token) *Token {
	return &Token{config: config, current: initial, expiresIn: defaultExpiresIn}
}

// Valid returns the current token without checking expiry. Callers that
// need a guaranteed-fresh token should call RefreshIfExpired first.
func (t *Token) Valid() *oauth2.Token {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// RefreshIfExpired returns a token guaranteed not to be expired, renewing
// it via the refresh_token grant if necessary. It uses double-checked
// locking: the expiry check happens first under a read lock (the common
// case, no network call), and only a token found expired is re-checked
// under a write lock before the network refresh — this avoids two
// concurrent callers both issuing a refresh request for the same token.
func (t *Token) RefreshIfExpired(ctx context.Context) (*oauth2.Token, error) {
	t.mu.RLock()
	tok := t.current
	expired := !tok.Valid()
	t.mu.RUnlock()

	if !expired {
		return tok, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Re-check: another goroutine may have refreshed while we waited for
	// the write lock.
	if t.current.Valid() {
		return t.current, nil
	}

	src := t.config.TokenSource(ctx, &oauth2.Token{RefreshToken: t.current.RefreshToken})
	refreshed, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("oauth2pkce: refreshing token: %w", err)
	}
	if refreshed.Expiry.IsZero() {
		refreshed.Expiry = time.Now().Add(t.expiresIn)
	}

	t.current = refreshed
	return t.current, nil
}
