package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LoopState is the lifecycle position of an AttackLoop.
type LoopState int

const (
	StateWaitingReady LoopState = iota
	StateWaitingStart
	StateRunning
	StateSucceeded
	StateExpired
	StateCanceled
	// StateLoginFailed ends a run whose login check failed before the window opened.
	StateLoginFailed
)

func (s LoopState) String() string {
	switch s {
	case StateWaitingReady:
		return "WAITING_READY"
	case StateWaitingStart:
		return "WAITING_START"
	case StateRunning:
		return "RUNNING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateExpired:
		return "EXPIRED"
	case StateCanceled:
		return "CANCELED"
	case StateLoginFailed:
		return "LOGIN_FAILED"
	default:
		return fmt.Sprintf("LoopState(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s LoopState) Terminal() bool {
	switch s {
	case StateSucceeded, StateExpired, StateCanceled, StateLoginFailed:
		return true
	}
	return false
}

// Report summarizes one run of the loop.
type Report struct {
	State     LoopState
	Attempts  int
	Result    *OrderResult
	LastError error
	Started   time.Time
	Finished  time.Time
}

// LoopOptions tunes an AttackLoop. The zero value is usable.
type LoopOptions struct {
	// Auth is checked once between Ready and Start. Nil skips the check.
	Auth Authenticator
	// Notifier receives the success message. Nil disables notification.
	Notifier Notifier
	// Account names the buyer in logs and notifications.
	Account func() string

	RefreshPayload   bool
	PrebuildAttempts int
	Clock            Clock
}

// AttackLoop drives the resolve, visit, checkout-page and submit steps inside the sale window.
type AttackLoop struct {
	gate      *ClockGate
	resolver  LinkResolver
	sequencer Sequencer
	placer    OrderPlacer
	target    ProductTarget
	opts      LoopOptions
	logger    *zap.Logger

	mu    sync.Mutex
	state LoopState
}

func NewAttackLoop(gate *ClockGate, resolver LinkResolver, sequencer Sequencer, placer OrderPlacer, target ProductTarget, opts LoopOptions, logger *zap.Logger) *AttackLoop {
	if opts.PrebuildAttempts <= 0 {
		opts.PrebuildAttempts = 3
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Account == nil {
		opts.Account = func() string { return "" }
	}
	return &AttackLoop{
		gate:      gate,
		resolver:  resolver,
		sequencer: sequencer,
		placer:    placer,
		target:    target,
		opts:      opts,
		logger:    logger,
		state:     StateWaitingReady,
	}
}

func (a *AttackLoop) State() LoopState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *AttackLoop) setState(s LoopState) {
	a.mu.Lock()
	prev := a.state
	a.state = s
	a.mu.Unlock()
	if prev != s {
		a.logger.Debug("loop state changed", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// Run blocks until the order goes through, the window closes or ctx is canceled.
// The only returned errors are a failed login check and a canceled wait before the window opened.
func (a *AttackLoop) Run(ctx context.Context) (*Report, error) {
	report := &Report{Started: a.opts.Clock.Now()}
	finish := func(state LoopState) *Report {
		a.setState(state)
		report.State = state
		report.Finished = a.opts.Clock.Now()
		return report
	}

	a.setState(StateWaitingReady)
	if err := a.gate.Ready(ctx); err != nil {
		return finish(StateCanceled), err
	}

	if a.opts.Auth != nil {
		if err := a.opts.Auth.EnsureLoggedIn(ctx); err != nil {
			report.LastError = err
			return finish(StateLoginFailed), err
		}
	}

	a.setState(StateWaitingStart)
	payload := a.prebuild(ctx)

	if err := a.gate.Start(ctx); err != nil {
		return finish(StateCanceled), err
	}

	a.setState(StateRunning)
	for a.gate.End() {
		if ctx.Err() != nil {
			a.logger.Info(T("attack_canceled"), zap.Int("attempts", report.Attempts))
			return finish(StateCanceled), nil
		}

		report.Attempts++
		result, err := a.attempt(ctx, &payload)
		if err == nil {
			err = result.Err()
		}
		if err == nil {
			report.Result = result
			a.gate.ForceExpire()
			a.announce(ctx, result, report.Attempts)
			return finish(StateSucceeded), nil
		}

		report.LastError = err
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			continue
		}
		a.logger.Warn(T("attack_attempt_failed"),
			zap.Int("attempt", report.Attempts),
			zap.String("class", classify(err)),
			zap.Error(err))
	}

	if ctx.Err() != nil {
		return finish(StateCanceled), nil
	}
	a.logger.Warn(T("attack_missed_window"),
		zap.String("end_at", a.gate.Window().EndAt.Format(SaleTimeLayout)),
		zap.Int("attempts", report.Attempts))
	return finish(StateExpired), nil
}

// prebuild prepares the order form before the sale opens. A nil result means it is built inside the loop.
func (a *AttackLoop) prebuild(ctx context.Context) *OrderPayload {
	for i := 1; i <= a.opts.PrebuildAttempts; i++ {
		payload, err := a.placer.Prepare(ctx, a.target)
		if err == nil {
			return payload
		}
		a.logger.Warn(T("payload_prebuild_failed"),
			zap.Int("attempt", i),
			zap.String("class", classify(err)),
			zap.Error(err))
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// attempt runs one pass. payload is shared across passes and rebuilt when missing or when refreshing.
func (a *AttackLoop) attempt(ctx context.Context, payload **OrderPayload) (*OrderResult, error) {
	link, err := a.resolver.Resolve(ctx, a.target.SKUID)
	if err != nil {
		return nil, err
	}
	if err := a.sequencer.VisitLink(ctx, link); err != nil {
		return nil, err
	}
	if err := a.sequencer.OpenCheckoutPage(ctx, a.target); err != nil {
		return nil, err
	}

	if *payload == nil || a.opts.RefreshPayload {
		built, err := a.placer.Prepare(ctx, a.target)
		if err != nil {
			return nil, err
		}
		*payload = built
	}
	return a.placer.Submit(ctx, *payload)
}

func (a *AttackLoop) announce(ctx context.Context, result *OrderResult, attempts int) {
	account := a.opts.Account()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                    ORDER PLACED                           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	a.logger.Info(T("attack_succeeded"),
		zap.String("account", account),
		zap.String("order_id", result.OrderID),
		zap.String("total", result.TotalMoney.StringFixed(2)),
		zap.String("pay_url", result.PayURL),
		zap.Int("attempts", attempts))

	subject := T("notify_success_subject")
	body := fmt.Sprintf(T("notify_success_body"), account, result.OrderID, result.TotalMoney.StringFixed(2), result.PayURL)
	if err := a.opts.Notifier.Notify(ctx, subject, body); err != nil {
		a.logger.Warn(T("notify_failed"), zap.Error(err))
	}
}
