// Package session tracks the signed-in user by watching the token cookie
// in the attached browser.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/golang-jwt/jwt/v5"

	"github.com/nadileaf/sourcing-agent/internal/types"
)

// CookieSource reads browser cookies scoped to a URL.
type CookieSource interface {
	Cookies(ctx context.Context, url string) ([]*network.Cookie, error)
}

// Manager polls the token cookie and exposes the decoded user. The user
// is nil until a token with all required claims shows up. Only cookies
// set for tokenDomain (or its subdomains) count; an empty domain
// accepts any.
type Manager struct {
	source      CookieSource
	tokenURL    string
	tokenDomain string
	interval    time.Duration

	mu      sync.RWMutex
	current *types.TipUser

	changes chan *types.TipUser
}

func NewManager(source CookieSource, tokenURL, tokenDomain string, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Manager{
		source:      source,
		tokenURL:    tokenURL,
		tokenDomain: tokenDomain,
		interval:    interval,
		changes:     make(chan *types.TipUser, 8),
	}
}

// Run polls until ctx is done. Each poll that observes a different token
// than the previous one publishes the new user on Changes.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.refresh(ctx)
	for {
		select {
		case <-ticker.C:
			m.refresh(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) refresh(ctx context.Context) {
	cookies, err := m.source.Cookies(ctx, m.tokenURL)
	if err != nil {
		slog.Debug("cookie read failed", "error", err)
		return
	}
	var token string
	for _, c := range cookies {
		if c.Name == "token" && domainMatches(c.Domain, m.tokenDomain) {
			token = c.Value
			break
		}
	}

	var user *types.TipUser
	if token != "" {
		user, err = ParseToken(token)
		if err != nil {
			slog.Debug("token cookie not decodable", "error", err)
		}
	}
	m.set(user)
}

func (m *Manager) set(user *types.TipUser) {
	m.mu.Lock()
	prev := m.current
	changed := tokenOf(prev) != tokenOf(user)
	if changed {
		m.current = user
	}
	m.mu.Unlock()

	if changed {
		select {
		case m.changes <- user:
		default:
		}
	}
}

// domainMatches reports whether a cookie domain belongs to want or one
// of its subdomains. Cookie domains may carry a leading dot.
func domainMatches(cookieDomain, want string) bool {
	if want == "" {
		return true
	}
	d := strings.TrimPrefix(cookieDomain, ".")
	return d == want || strings.HasSuffix(d, "."+want)
}

func tokenOf(u *types.TipUser) string {
	if u == nil {
		return ""
	}
	return u.Token
}

// Current returns the last decoded user, nil when signed out.
func (m *Manager) Current() *types.TipUser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Changes delivers the user each time the token changes, including the
// nil user on sign-out.
func (m *Manager) Changes() <-chan *types.TipUser {
	return m.changes
}

// ParseToken decodes the JWT claims without signature verification; the
// token is the backend's own and is only relayed back to it.
func ParseToken(token string) (*types.TipUser, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	user := &types.TipUser{
		Sub:         claimString(claims, "sub"),
		TenantID:    claimString(claims, "tenantId"),
		TenantAlias: claimString(claims, "tenantAlias"),
		UserID:      claimString(claims, "userId"),
		Token:       token,
	}
	if exp, ok := claims["exp"].(float64); ok {
		user.Exp = int64(exp)
	}
	if iat, ok := claims["iat"].(float64); ok {
		user.Iat = int64(iat)
	}
	if !user.Valid() {
		return nil, fmt.Errorf("token missing tenant claims")
	}
	return user, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return s
	}
	return ""
}
