package auth

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc/metadata"

	"github.com/relaycache/relay-go/pkg/middleware"
)

// AuthorizationHeader carries the token
const AuthorizationHeader = "authorization"

// TokenSource supplies the token for a call. Implementations must be safe
// for concurrent use.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token implements TokenSource
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// TokenMiddleware sets the authorization header of every logical call from
// a TokenSource, replacing the token the client was built with. The header
// is set once per call, so retried attempts present the same token.
type TokenMiddleware struct {
	source TokenSource
}

// NewTokenMiddleware creates the middleware
func NewTokenMiddleware(source TokenSource) *TokenMiddleware {
	return &TokenMiddleware{source: source}
}

var _ middleware.Middleware = (*TokenMiddleware)(nil)

// OnNewCall implements middleware.Middleware
func (m *TokenMiddleware) OnNewCall(info middleware.CallInfo) middleware.Handler {
	ctx := info.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return &middleware.Funcs{
		RequestMetadata: func(md metadata.MD) (metadata.MD, error) {
			token, err := m.source.Token(ctx)
			if err != nil {
				return nil, err
			}
			if token == "" {
				return nil, NewAuthError(ErrTokenMissing, "token source returned an empty token")
			}
			if md == nil {
				md = metadata.MD{}
			}
			md.Set(AuthorizationHeader, token)
			return md, nil
		},
	}
}

// RefreshFunc fetches a token and the time it stops being valid
type RefreshFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

// CachingTokenSource reuses a fetched token until shortly before it
// expires. Concurrent callers share one refresh.
type CachingTokenSource struct {
	refresh       RefreshFunc
	refreshBefore time.Duration
	now           func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewCachingTokenSource creates a caching source. refreshBefore is how long
// before expiry the token is fetched again.
func NewCachingTokenSource(refresh RefreshFunc, refreshBefore time.Duration) *CachingTokenSource {
	return &CachingTokenSource{refresh: refresh, refreshBefore: refreshBefore, now: time.Now}
}

// Token implements TokenSource
func (s *CachingTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Add(s.refreshBefore).Before(s.expiresAt) {
		return s.token, nil
	}

	token, expiresAt, err := s.refresh(ctx)
	if err != nil {
		// an unexpired token is still usable
		if s.token != "" && s.now().Before(s.expiresAt) {
			return s.token, nil
		}
		return "", err
	}
	if !s.now().Before(expiresAt) {
		return "", NewAuthError(ErrTokenExpired, "refreshed token is already expired").
			WithDetail("expires_at", expiresAt)
	}

	s.token = token
	s.expiresAt = expiresAt
	return token, nil
}

// Invalidate drops the cached token so the next call refreshes
func (s *CachingTokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
}
