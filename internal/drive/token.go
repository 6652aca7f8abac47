package drive

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/planhub/planhub/internal/core"
)

// TokenSource supplies the bearer token for Drive API calls. Token
// acquisition itself is owned by an external collaborator; this package
// only consumes tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource serves a fixed, externally-managed access token.
type StaticTokenSource struct {
	token string
}

// NewStaticTokenSource wraps the access token supplied via process
// configuration. An empty token is allowed at construction so the hub
// can start without Drive configured; calls then fail unauthenticated.
func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

func (s *StaticTokenSource) Token(ctx context.Context) (string, error) {
	if s.token == "" {
		return "", core.Errorf(core.KindUnauthenticated, "drive access token not configured")
	}
	return s.token, nil
}

// Refresher obtains a fresh token and its expiry from wherever the
// external credential manager keeps it.
type Refresher interface {
	Refresh(ctx context.Context) (token string, expiresAt time.Time, err error)
}

// refreshSkew renews the cached token this long before expiry.
const refreshSkew = time.Minute

// CachingTokenSource caches a refreshable token. Refresh is
// single-flight: concurrent calls that find the cache stale share one
// refresh instead of each triggering their own.
type CachingTokenSource struct {
	refresher Refresher

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	group     singleflight.Group
}

// NewCachingTokenSource wraps a Refresher with caching.
func NewCachingTokenSource(r Refresher) *CachingTokenSource {
	return &CachingTokenSource{refresher: r}
}

func (c *CachingTokenSource) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && time.Now().Before(c.expiresAt.Add(-refreshSkew)) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("refresh", func() (any, error) {
		c.mu.Lock()
		if c.token != "" && time.Now().Before(c.expiresAt.Add(-refreshSkew)) {
			token := c.token
			c.mu.Unlock()
			return token, nil
		}
		c.mu.Unlock()

		token, expiresAt, err := c.refresher.Refresh(ctx)
		if err != nil {
			return "", core.WrapError(core.KindUnauthenticated, "drive credential refresh failed", err)
		}

		c.mu.Lock()
		c.token = token
		c.expiresAt = expiresAt
		c.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
