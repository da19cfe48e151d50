package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"memodraft/internal/redis"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

const tokenCachePrefix = "memodraft:token:"

// Service issues, validates, and revokes session tokens. Rows live in SQL; when a
// redis client is supplied it caches token -> session id lookups.
type Service struct {
	db             *sql.DB
	cache          *redis.Client
	tokenTTL       time.Duration
	secureCookie   bool
	cookieName     string
	headerName     string
	csrfCookieName string
	csrfHeaderName string
	log            *zap.Logger
	now            func() time.Time
}

// NewService constructs an auth service with the supplied token lifetime.
// cache may be nil.
func NewService(db *sql.DB, cache *redis.Client, ttl time.Duration, log *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		db:             db,
		cache:          cache,
		tokenTTL:       ttl,
		cookieName:     "auth_token",
		headerName:     "Authorization",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
		log:            log.With(zap.String("component", "auth")),
		now:            time.Now,
	}
}

// SetSecureCookie marks issued cookies Secure.
func (s *Service) SetSecureCookie(secure bool) { s.secureCookie = secure }

// IssueToken creates a new token bound to sessionID.
func (s *Service) IssueToken(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", errors.New("session id required")
	}
	token, err := randomHex(32)
	if err != nil {
		return "", err
	}
	now := s.now()
	expires := now.Add(s.tokenTTL)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO session_tokens (token, session_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, sessionID, now.UnixMilli(), expires.UnixMilli(),
	); err != nil {
		return "", fmt.Errorf("insert token: %w", err)
	}
	s.cacheToken(ctx, token, sessionID, s.tokenTTL)
	return token, nil
}

// ValidateToken returns the session id the token is bound to.
func (s *Service) ValidateToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	if s.cache != nil {
		if sessionID, err := s.cache.Get(ctx, tokenCachePrefix+token); err == nil && sessionID != "" {
			return sessionID, nil
		} else if err != nil && !errors.Is(err, redis.ErrCacheMiss) {
			s.log.Warn("token cache read failed", zap.Error(err))
		}
	}

	var (
		sessionID string
		expiresMs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, expires_at FROM session_tokens WHERE token = ?`, token,
	).Scan(&sessionID, &expiresMs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("lookup token: %w", err)
	}
	remaining := time.UnixMilli(expiresMs).Sub(s.now())
	if remaining <= 0 {
		_ = s.RevokeToken(ctx, token)
		return "", ErrTokenExpired
	}
	s.cacheToken(ctx, token, sessionID, remaining)
	return sessionID, nil
}

// RevokeToken deletes a single token.
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_tokens WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	s.uncache(ctx, token)
	return nil
}

// RevokeSessionTokens deletes every token bound to sessionID.
func (s *Service) RevokeSessionTokens(ctx context.Context, sessionID string) error {
	rows, err := s.db.QueryContext(ctx, `SELECT token FROM session_tokens WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("list session tokens: %w", err)
	}
	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			rows.Close()
			return fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, token)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list session tokens: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_tokens WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session tokens: %w", err)
	}
	s.uncache(ctx, tokens...)
	return nil
}

// PurgeExpired removes expired rows and reports how many were deleted.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM session_tokens WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge tokens: %w", err)
	}
	return res.RowsAffected()
}

// SetAuthCookies writes the token cookie and a fresh CSRF cookie.
func (s *Service) SetAuthCookies(c *gin.Context, token string) error {
	csrf, err := randomHex(16)
	if err != nil {
		return err
	}
	maxAge := int(s.tokenTTL / time.Second)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cookieName, token, maxAge, "/", "", s.secureCookie, true)
	c.SetCookie(s.csrfCookieName, csrf, maxAge, "/", "", s.secureCookie, false)
	return nil
}

// ClearAuthCookies expires both cookies.
func (s *Service) ClearAuthCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cookieName, "", -1, "/", "", s.secureCookie, true)
	c.SetCookie(s.csrfCookieName, "", -1, "/", "", s.secureCookie, false)
}

func (s *Service) cacheToken(ctx context.Context, token, sessionID string, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, tokenCachePrefix+token, sessionID, ttl); err != nil {
		s.log.Warn("token cache write failed", zap.Error(err))
	}
}

func (s *Service) uncache(ctx context.Context, tokens ...string) {
	if s.cache == nil || len(tokens) == 0 {
		return
	}
	keys := make([]string, len(tokens))
	for i, t := range tokens {
		keys[i] = tokenCachePrefix + t
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.log.Warn("token cache delete failed", zap.Error(err))
	}
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
