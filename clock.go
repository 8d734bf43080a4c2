package main

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clock is the time source of the gate. Sleep must advance Now by at least d.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// TimeWindow holds the three configured instants of a sale.
type TimeWindow struct {
	ReadyAt time.Time
	StartAt time.Time
	EndAt   time.Time
}

// ClockGate gates the run on wall-clock instants by polling a Clock.
type ClockGate struct {
	window   TimeWindow
	interval time.Duration
	clock    Clock
	logger   *zap.Logger

	mu      sync.Mutex
	expired bool
}

func NewClockGate(window TimeWindow, interval time.Duration, clock Clock, logger *zap.Logger) *ClockGate {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &ClockGate{
		window:   window,
		interval: interval,
		clock:    clock,
		logger:   logger,
	}
}

// Ready blocks until the ready instant is reached or passed.
func (g *ClockGate) Ready(ctx context.Context) error {
	g.logger.Info(T("gate_waiting_ready"), zap.String("ready_at", g.window.ReadyAt.Format(SaleTimeLayout)))
	if err := g.waitUntil(ctx, g.window.ReadyAt); err != nil {
		return err
	}
	g.logger.Info(T("gate_ready"))
	return nil
}

// Start blocks until the sale instant is reached or passed.
func (g *ClockGate) Start(ctx context.Context) error {
	if err := g.waitUntil(ctx, g.window.StartAt); err != nil {
		return err
	}
	g.logger.Info(T("gate_started"), zap.String("start_at", g.window.StartAt.Format(SaleTimeLayout)))
	return nil
}

// End reports whether the window is still open. Once it returns false it never returns true again.
func (g *ClockGate) End() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.expired {
		return false
	}
	if g.clock.Now().Before(g.window.EndAt) {
		return true
	}
	g.expired = true
	return false
}

// ForceExpire closes the window early, e.g. after an order went through.
func (g *ClockGate) ForceExpire() {
	g.mu.Lock()
	g.expired = true
	g.mu.Unlock()
}

// Now reads the gate's clock.
func (g *ClockGate) Now() time.Time {
	return g.clock.Now()
}

func (g *ClockGate) Window() TimeWindow {
	return g.window
}

func (g *ClockGate) waitUntil(ctx context.Context, target time.Time) error {
	for {
		if !g.clock.Now().Before(target) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		g.clock.Sleep(g.interval)
	}
}
