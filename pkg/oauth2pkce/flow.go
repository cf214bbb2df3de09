package oauth2pkce

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

// ackPage is served to the browser on the single captured redirect; it
// mirrors the minimal acknowledgement the original client shows so users
// know to return to the terminal.
const ackPage = `<!DOCTYPE html><html><body><h3>You may now close this window.</h3></body></html>`

// redirectResult carries the outcome of the single captured GET back to
// Authorize.
type redirectResult struct {
	code  string
	state string
	err   error
}

// Authorize runs the full PKCE authorization code flow: it starts a
// single-shot localhost HTTP server to capture the redirect, opens
// (returns, rather than opens — callers are responsible for presenting it
// to the user) the provider's consent URL, waits for the redirect, then
// exchanges the code for a Token. redirectAddr is the "host:port" the
// local listener binds, which must match config.RedirectURL's host/port.
func Authorize(ctx context.Context, config *oauth2.Config, redirectAddr string) (authURL string, wait func(context.Context) (*Token, error), err error) {
	verifier, err := NewVerifier()
	if err != nil {
		return "", nil, err
	}

	state := uuid.NewString()

	listener, err := net.Listen("tcp", redirectAddr)
	if err != nil {
		return "", nil, fmt.Errorf("oauth2pkce: binding redirect listener: %w", err)
	}

	results := make(chan redirectResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if errParam := q.Get("error"); errParam != "" {
			results <- redirectResult{err: fmt.Errorf("oauth2pkce: authorization denied: %s", errParam)}
		} else {
			results <- redirectResult{code: q.Get("code"), state: q.Get("state")}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(ackPage))
	})
	srv := &http.Server{Handler: mux}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("oauth2pkce: redirect server: %w", err)
		}
		return nil
	})

	authURL = config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", verifier.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", verifier.Method),
	)

	wait = func(ctx context.Context) (*Token, error) {
		defer func() {
			_ = srv.Shutdown(context.Background())
			_ = group.Wait()
		}()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-groupCtx.Done():
			return nil, groupCtx.Err()
		case res := <-results:
			if res.err != nil {
				return nil, res.err
			}
			if res.state != state {
				return nil, fmt.Errorf("oauth2pkce: state mismatch in redirect")
			}
			tok, err := config.Exchange(ctx, res.code,
				oauth2.SetAuthURLParam("code_verifier", verifier.Value),
			)
			if err != nil {
				return nil, fmt.Errorf("oauth2pkce: exchanging code: %w", err)
			}
			return NewToken(config, tok), nil
		}
	}

	return authURL, wait, nil
}
