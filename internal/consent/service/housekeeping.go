package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/aussiebroadwan/aisconsent/internal/consent/store"
	"github.com/aussiebroadwan/aisconsent/pkg/clock"
)

// HousekeepingService periodically applies the time-driven status changes
// to consents and authorisations nobody reads: VALID consents past their
// last day expire, consents left unauthorised are rejected and abandoned
// authorisations fail.
type HousekeepingService struct {
	Store    store.Store
	Clock    clock.Clock
	Logger   *slog.Logger
	Interval time.Duration

	// NotConfirmedTTL is how long a consent may wait for authorisation.
	// Zero disables the rejection sweep.
	NotConfirmedTTL time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// SweepResult counts the rows one sweep changed.
type SweepResult struct {
	ExpiredConsents      int
	RejectedConsents     int
	FailedAuthorisations int
}

// NewHousekeepingService creates a housekeeping service. If interval is 0
// or negative, defaults to 1 hour.
func NewHousekeepingService(st store.Store, clk clock.Clock, logger *slog.Logger, interval, notConfirmedTTL time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Store:           st,
		Clock:           clk,
		Logger:          logger,
		Interval:        interval,
		NotConfirmedTTL: notConfirmedTTL,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

// Start runs a sweep immediately and then every Interval until Stop.
func (s *HousekeepingService) Start() {
	ticker := s.Clock.NewTicker(s.Interval)
	go s.run(ticker)
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts the worker down and waits for an in-progress sweep.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run(ticker *clock.Ticker) {
	defer close(s.doneCh)
	defer ticker.Stop()

	s.RunOnce(context.Background())
	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce performs one sweep. Each step is independent; a failing step is
// logged and does not stop the others.
func (s *HousekeepingService) RunOnce(ctx context.Context) SweepResult {
	now := s.Clock.Now()
	var res SweepResult
	var err error

	if res.ExpiredConsents, err = s.Store.Consents().ExpireConsents(ctx, domain.DateOf(now), now); err != nil {
		s.Logger.Error("failed to expire consents", "error", err)
	}

	if s.NotConfirmedTTL > 0 {
		if res.RejectedConsents, err = s.Store.Consents().RejectStaleConsents(ctx, now.Add(-s.NotConfirmedTTL), now); err != nil {
			s.Logger.Error("failed to reject stale consents", "error", err)
		}
	}

	if res.FailedAuthorisations, err = s.Store.Authorisations().FailExpiredAuthorisations(ctx, now); err != nil {
		s.Logger.Error("failed to fail expired authorisations", "error", err)
	}

	s.Logger.Info("housekeeping sweep completed",
		"expired_consents", res.ExpiredConsents,
		"rejected_consents", res.RejectedConsents,
		"failed_authorisations", res.FailedAuthorisations,
	)
	return res
}
