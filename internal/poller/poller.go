// Package poller drives the periodic refresh loops against the vendor
// API. Device telemetry, per-user data, base state and speaker state each
// refresh on their own cadence; a failed refresh is logged and retried on
// the next tick.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trymwestin/eightsleep/internal/core/eight"
)

// Intervals configure the refresh cadences. Zero values fall back to the
// defaults below.
type Intervals struct {
	Device  time.Duration
	User    time.Duration
	Base    time.Duration
	Speaker time.Duration
}

func (iv Intervals) withDefaults() Intervals {
	if iv.Device <= 0 {
		iv.Device = 60 * time.Second
	}
	if iv.User <= 0 {
		iv.User = 30 * time.Second
	}
	if iv.Base <= 0 {
		iv.Base = 60 * time.Second
	}
	if iv.Speaker <= 0 {
		iv.Speaker = 60 * time.Second
	}
	return iv
}

// Poller owns the refresh goroutines for one client.
type Poller struct {
	client    *eight.Client
	intervals Intervals
	log       *slog.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// New creates a poller for the given client.
func New(client *eight.Client, intervals Intervals, log *slog.Logger) *Poller {
	return &Poller{
		client:    client,
		intervals: intervals.withDefaults(),
		log:       log,
	}
}

// Start launches the refresh loops. The base and speaker loops only run
// when the device has the corresponding capability.
func (p *Poller) Start(ctx context.Context) error {
	if p.running.Load() {
		return fmt.Errorf("poller: already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running.Store(true)

	p.launch(ctx, "device", p.intervals.Device, p.client.RefreshTelemetry)
	p.launch(ctx, "user", p.intervals.User, p.client.RefreshUsers)
	if p.client.HasBase() {
		p.launch(ctx, "base", p.intervals.Base, p.client.RefreshBase)
	}
	if p.client.HasSpeaker() {
		p.launch(ctx, "speaker", p.intervals.Speaker, p.client.RefreshSpeaker)
	}
	return nil
}

// Stop cancels the loops and waits for them to exit.
func (p *Poller) Stop(_ context.Context) error {
	if !p.running.Load() {
		return nil
	}
	p.cancel()
	p.wg.Wait()
	p.running.Store(false)
	return nil
}

func (p *Poller) launch(ctx context.Context, name string, interval time.Duration, refresh func(context.Context) error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.log.Debug("refresh loop started", "loop", name, "interval", interval)

		// First refresh runs immediately so state is populated at startup.
		p.runOnce(ctx, name, refresh)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				p.log.Debug("refresh loop stopped", "loop", name)
				return
			case <-ticker.C:
				p.runOnce(ctx, name, refresh)
			}
		}
	}()
}

func (p *Poller) runOnce(ctx context.Context, name string, refresh func(context.Context) error) {
	if err := refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		p.log.Error("refresh failed", "loop", name, "error", err)
	}
}
