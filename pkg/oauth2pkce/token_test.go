package oauth2pkce

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func tokenTestConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}
}

func TestRefreshIfExpired_SkipsNetworkWhenValid(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"access_token":"fresh","token_type":"Bearer","expires_in":1200}`)
	}))
	defer srv.Close()

	tok := NewToken(tokenTestConfig(srv.URL), &oauth2.Token{
		AccessToken:  "still-valid",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(time.Hour),
	})

	got, err := tok.RefreshIfExpired(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AccessToken != "still-valid" {
		t.Fatalf("expected valid token to be returned unchanged, got %s", got.AccessToken)
	}
	if calls != 0 {
		t.Fatalf("expected no network call for a valid token, got %d", calls)
	}
}

func TestRefreshIfExpired_RefreshesExpiredToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"fresh","token_type":"Bearer","expires_in":1200}`)
	}))
	defer srv.Close()

	tok := NewToken(tokenTestConfig(srv.URL), &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(-time.Hour),
	})

	got, err := tok.RefreshIfExpired(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AccessToken != "fresh" {
		t.Fatalf("expected refreshed token, got %s", got.AccessToken)
	}
}

func TestRefreshIfExpired_DefaultsExpiresInWhenAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"fresh","token_type":"Bearer"}`)
	}))
	defer srv.Close()

	tok := NewToken(tokenTestConfig(srv.URL), &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(-time.Hour),
	})

	before := time.Now()
	got, err := tok.RefreshIfExpired(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Expiry.Before(before.Add(defaultExpiresIn - time.Minute)) {
		t.Fatalf("expected expiry to use default 1200s fallback, got %v", got.Expiry)
	}
}

func TestRefreshIfExpired_ConcurrentCallersRefreshOnce(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		fmt.Fprint(w, `{"access_token":"fresh","token_type":"Bearer","expires_in":1200}`)
	}))
	defer srv.Close()

	tok := NewToken(tokenTestConfig(srv.URL), &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(-time.Hour),
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tok.RefreshIfExpired(t.Context()); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected exactly 1 refresh call from double-checked locking, got %d", calls)
	}
}
