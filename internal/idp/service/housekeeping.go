package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/store"
)

// HousekeepingService periodically removes refresh tokens long past their
// expiry and sign-in attempts older than the lockout horizon.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// TokenGrace keeps expired refresh tokens around so a late replay is
	// still recognised as reuse rather than an unknown token.
	TokenGrace time.Duration
	// SignInRetention bounds the sign-in history.
	SignInRetention time.Duration

	Now func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service. If interval is 0
// or negative, defaults to 1 hour.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}

	return &HousekeepingService{
		Store:           store,
		Logger:          logger,
		Interval:        interval,
		TokenGrace:      7 * 24 * time.Hour,
		SignInRetention: 30 * 24 * time.Hour,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup runs one pass. Each deletion is independent; a failure in one
// does not stop the other.
func (s *HousekeepingService) Cleanup(ctx context.Context) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	tokens, err := s.Store.RefreshTokens().DeleteExpired(ctx, now.Add(-s.TokenGrace))
	if err != nil {
		s.Logger.Error("failed to delete expired refresh tokens", "error", err)
	}

	attempts, err := s.Store.SignIns().DeleteBefore(ctx, now.Add(-s.SignInRetention))
	if err != nil {
		s.Logger.Error("failed to delete old sign-in attempts", "error", err)
	}

	s.Logger.Info("housekeeping cleanup completed", "refresh_tokens", tokens, "sign_in_attempts", attempts)
}
