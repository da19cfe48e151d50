package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"memodraft/internal/contextguide"
	"memodraft/internal/models"
	"memodraft/internal/service/ai"
	"memodraft/internal/worker"
)

const (
	DefaultDisplayName     = "Demo User"
	DefaultIdleTTL         = time.Hour
	DefaultCleanupInterval = 10 * time.Minute
)

// AccountFactory creates the account attached to a fresh login.
type AccountFactory func(displayName string) *models.Account

// DefaultAccountFactory puts every login on the Free tier with no usage.
func DefaultAccountFactory(displayName string) *models.Account {
	return &models.Account{DisplayName: displayName, Tier: models.TierFree}
}

// TokenStore binds login tokens to session ids.
type TokenStore interface {
	IssueToken(ctx context.Context, sessionID string) (string, error)
	RevokeSessionTokens(ctx context.Context, sessionID string) error
	PurgeExpired(ctx context.Context) (int64, error)
}

type Options struct {
	Gateway    ai.Gateway
	Dispatcher *worker.Dispatcher
	Tokens     TokenStore
	// Guide is the shared context guide; nil means an empty guide.
	Guide           *contextguide.Guide
	Accounts        AccountFactory
	IdleTTL         time.Duration
	CleanupInterval time.Duration
	Log             *zap.Logger
}

// Service owns every live session. Sessions expire after IdleTTL without a
// lookup; expiry and logout both revoke the session's tokens.
type Service struct {
	gateway    ai.Gateway
	dispatcher *worker.Dispatcher
	tokens     TokenStore
	guide      *contextguide.Guide
	accounts   AccountFactory
	sessions   *cache.Cache
	log        *zap.Logger
}

func NewService(opts Options) (*Service, error) {
	if opts.Gateway == nil {
		return nil, errors.New("assistant: gateway is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("assistant: dispatcher is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("assistant: token store is required")
	}
	if opts.Guide == nil {
		opts.Guide = contextguide.Static("")
	}
	if opts.Accounts == nil {
		opts.Accounts = DefaultAccountFactory
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	s := &Service{
		gateway:    opts.Gateway,
		dispatcher: opts.Dispatcher,
		tokens:     opts.Tokens,
		guide:      opts.Guide,
		accounts:   opts.Accounts,
		sessions:   cache.New(opts.IdleTTL, opts.CleanupInterval),
		log:        opts.Log.With(zap.String("component", "assistant")),
	}
	s.sessions.OnEvicted(s.onEvicted)
	return s, nil
}

// Login starts a new session. provider is only recorded; no real identity
// check takes place.
func (s *Service) Login(ctx context.Context, provider, displayName string) (*Session, string, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = DefaultDisplayName
	}
	account := s.accounts(displayName)
	if account == nil {
		return nil, "", errors.New("assistant: account factory returned nil")
	}

	sess := newSession(uuid.NewString(), account, s)
	token, err := s.tokens.IssueToken(ctx, sess.id)
	if err != nil {
		return nil, "", err
	}
	s.sessions.Set(sess.id, sess, cache.DefaultExpiration)
	s.log.Info("login",
		zap.String("session", sess.id),
		zap.String("provider", provider),
		zap.String("tier", string(account.Tier)))
	return sess, token, nil
}

// Lookup returns a live session and refreshes its idle timer.
func (s *Service) Lookup(id string) (*Session, error) {
	v, ok := s.sessions.Get(id)
	if !ok {
		return nil, ErrAuthRequired
	}
	sess := v.(*Session)
	s.sessions.Set(id, sess, cache.DefaultExpiration)
	return sess, nil
}

// Logout destroys the session and its tokens.
func (s *Service) Logout(ctx context.Context, id string) error {
	v, ok := s.sessions.Get(id)
	if !ok {
		return ErrAuthRequired
	}
	sess := v.(*Session)
	sess.close()
	if n := s.dispatcher.CancelKey(id); n > 0 {
		s.log.Info("dropped queued requests", zap.String("session", id), zap.Int("count", n))
	}
	err := s.tokens.RevokeSessionTokens(ctx, id)
	s.sessions.Delete(id)
	s.log.Info("logout", zap.String("session", id))
	return err
}

// Count reports the number of live sessions.
func (s *Service) Count() int { return s.sessions.ItemCount() }

// onEvicted runs on expiry and on Delete.
func (s *Service) onEvicted(id string, v interface{}) {
	sess, ok := v.(*Session)
	if !ok || !sess.close() {
		return
	}
	s.dispatcher.CancelKey(id)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.tokens.RevokeSessionTokens(ctx, id); err != nil {
		s.log.Warn("revoke tokens of expired session", zap.String("session", id), zap.Error(err))
		return
	}
	s.log.Info("session expired", zap.String("session", id))
}
