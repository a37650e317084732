// Package poller periodically refreshes today's attendance and, for managers,
// the list of pending OTP challenges. It is the only place timers live.
package poller

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Tiliavir/punch/internal/model"
)

// Refresher refetches today's record.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Staler is implemented by refreshers that know when their data was
// invalidated between ticks.
type Staler interface {
	Stale() bool
}

// OtpLister lists outstanding OTP challenges.
type OtpLister interface {
	FetchPendingOtps(ctx context.Context) ([]model.OtpChallenge, error)
}

// Poller calls its sources every interval until stopped.
type Poller struct {
	interval  time.Duration
	recheck   time.Duration
	refresher Refresher
	otps      OtpLister
	log       *zap.Logger
	failing   atomic.Bool

	// OnRefresh, when set, is called after every refresh.
	OnRefresh func(err error)
	// OnOtps, when set, receives every pending OTP poll result.
	OnOtps func(otps []model.OtpChallenge, err error)
}

// New returns a poller refreshing r every interval. A nil r is allowed when
// only OTPs are polled.
func New(interval time.Duration, r Refresher, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{interval: interval, recheck: defaultRecheck, refresher: r, log: logger}
}

// defaultRecheck is how often a Staler refresher is asked whether it needs a
// refetch before the next tick.
const defaultRecheck = 2 * time.Second

// WithRecheck sets how often a Staler refresher is checked between ticks.
// Zero disables the check.
func (p *Poller) WithRecheck(d time.Duration) *Poller {
	p.recheck = d
	return p
}

// WithOtps makes the poller also list pending OTPs.
func (p *Poller) WithOtps(l OtpLister, fn func([]model.OtpChallenge, error)) *Poller {
	p.otps = l
	p.OnOtps = fn
	return p
}

// Run polls once immediately and then on every tick until ctx is cancelled.
// It returns ctx.Err().
func (p *Poller) Run(ctx context.Context) error {
	p.Tick(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Stale data is refetched early, unless the last refresh failed.
	var recheck <-chan time.Time
	staler, ok := p.refresher.(Staler)
	if ok && p.recheck > 0 && p.recheck < p.interval {
		rt := time.NewTicker(p.recheck)
		defer rt.Stop()
		recheck = rt.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Tick(ctx)
		case <-recheck:
			if !p.failing.Load() && staler.Stale() {
				p.log.Debug("refetching stale record early")
				p.refresh(ctx)
			}
		}
	}
}

// Tick performs one polling round.
func (p *Poller) Tick(ctx context.Context) {
	if p.refresher != nil {
		p.refresh(ctx)
	}
	if p.otps != nil {
		otps, err := p.otps.FetchPendingOtps(ctx)
		if err != nil && ctx.Err() == nil {
			p.log.Warn("listing pending otps failed", zap.Error(err))
		}
		if p.OnOtps != nil {
			p.OnOtps(otps, err)
		}
	}
}

func (p *Poller) refresh(ctx context.Context) {
	err := p.refresher.Refresh(ctx)
	p.failing.Store(err != nil)
	if err != nil && ctx.Err() == nil {
		p.log.Warn("refresh failed", zap.Error(err))
	}
	if p.OnRefresh != nil {
		p.OnRefresh(err)
	}
}

// Start runs the poller in a goroutine. The returned stop function cancels it
// and waits for the current round to finish.
func (p *Poller) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}
