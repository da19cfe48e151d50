package ai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	WebSearchRateLimit   = 5
	WebSearchRateWindow  = time.Minute
	WebSearchHTTPTimeout = 10 * time.Second

	maxFetchedPage = 512 << 10
)

// toolRateLimiter is a sliding-window limiter keyed by session id.
type toolRateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	calls map[string][]time.Time
}

func newToolRateLimiter(limit int, window time.Duration) *toolRateLimiter {
	return &toolRateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		calls:  make(map[string][]time.Time),
	}
}

// Allow records a call for key and reports whether it fits in the window.
func (l *toolRateLimiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.calls[key][:0]
	for _, at := range l.calls[key] {
		if now.Sub(at) < l.window {
			recent = append(recent, at)
		}
	}
	if len(recent) >= l.limit {
		l.calls[key] = recent
		return false
	}
	l.calls[key] = append(recent, now)
	return true
}

type toolSessionKey struct{}

// WithToolSession tags ctx with the session a tool call runs for.
func WithToolSession(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, toolSessionKey{}, sessionID)
}

func ToolSessionFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(toolSessionKey{}).(string)
	return id, ok && id != ""
}

// fetchURL reads at most maxFetchedPage bytes of an http(s) page.
func (w *webSearchTool) fetchURL(ctx context.Context, target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	client := w.httpClient
	if client == nil {
		client = &http.Client{Timeout: WebSearchHTTPTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "memodraft-websearch/1.0")
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: %s", u.Host, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchedPage))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func looksLikeURL(s string) bool {
	s = strings.ToLower(s)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
