package assistant

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const DefaultTokenCleanupInterval = time.Hour

// StartTokenCleaner periodically deletes expired login tokens until ctx ends.
func (s *Service) StartTokenCleaner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTokenCleanupInterval
	}
	go s.cleanupLoop(ctx, interval)
}

func (s *Service) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupExpiredTokens(ctx)
		}
	}
}

func (s *Service) cleanupExpiredTokens(ctx context.Context) {
	n, err := s.tokens.PurgeExpired(ctx)
	if err != nil {
		s.log.Warn("cleanup expired tokens", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("purged expired tokens", zap.Int64("count", n))
	}
}
