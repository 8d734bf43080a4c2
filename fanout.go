package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkerFactory builds one independent attack loop. Every call must return a loop with its own session.
type WorkerFactory func(workerID string) (*AttackLoop, error)

// Coordinator runs several attack loops against one sale window and stops them all at the first order.
type Coordinator struct {
	gate    *ClockGate
	auth    Authenticator
	workers int
	factory WorkerFactory
	logger  *zap.Logger
	hooks   []func(ctx context.Context)
}

func NewCoordinator(gate *ClockGate, auth Authenticator, workers int, factory WorkerFactory, logger *zap.Logger) *Coordinator {
	if workers <= 0 {
		workers = 1
	}
	return &Coordinator{
		gate:    gate,
		auth:    auth,
		workers: workers,
		factory: factory,
		logger:  logger,
	}
}

// BeforeStart registers work that needs a logged-in session and must finish before workers spawn,
// such as refreshing the server clock or mining tokens. Hooks run in order and report their own failures.
func (c *Coordinator) BeforeStart(hook func(ctx context.Context)) {
	c.hooks = append(c.hooks, hook)
}

type workerReport struct {
	id     string
	report *Report
	err    error
}

// Run returns the winning report, or a merged EXPIRED report when no worker got through.
// A run stopped before any worker started still gets a CANCELED or LOGIN_FAILED report.
func (c *Coordinator) Run(ctx context.Context) (*Report, error) {
	started := c.gate.Now()
	stop := func(state LoopState, err error) (*Report, error) {
		return &Report{State: state, LastError: err, Started: started, Finished: c.gate.Now()}, err
	}

	if err := c.gate.Ready(ctx); err != nil {
		return stop(StateCanceled, err)
	}
	if c.auth != nil {
		if err := c.auth.EnsureLoggedIn(ctx); err != nil {
			return stop(StateLoginFailed, err)
		}
	}
	for _, hook := range c.hooks {
		hook(ctx)
	}
	if err := ctx.Err(); err != nil {
		return stop(StateCanceled, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan workerReport, c.workers)
	spawned := 0
	for i := 0; i < c.workers; i++ {
		id := uuid.NewString()[:8]
		loop, err := c.factory(id)
		if err != nil {
			c.logger.Error(T("fanout_worker_failed"), zap.String("worker", id), zap.Error(err))
			continue
		}
		spawned++
		c.logger.Info(T("fanout_worker_started"), zap.String("worker", id), zap.Int("index", i+1), zap.Int("total", c.workers))

		go func(id string, loop *AttackLoop) {
			report, err := loop.Run(runCtx)
			results <- workerReport{id: id, report: report, err: err}
		}(id, loop)
	}
	if spawned == 0 {
		return nil, fmt.Errorf("no worker could be started")
	}

	merged := &Report{State: StateExpired}
	var winner *Report
	var firstErr error
	for i := 0; i < spawned; i++ {
		r := <-results
		if r.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("worker %s: %w", r.id, r.err)
		}
		if r.report == nil {
			continue
		}
		merged.Attempts += r.report.Attempts
		if merged.Started.IsZero() || r.report.Started.Before(merged.Started) {
			merged.Started = r.report.Started
		}
		if r.report.Finished.After(merged.Finished) {
			merged.Finished = r.report.Finished
		}
		if r.report.LastError != nil {
			merged.LastError = r.report.LastError
		}

		if r.report.State == StateSucceeded && winner == nil {
			winner = r.report
			c.logger.Info(T("fanout_winner"), zap.String("worker", r.id))
			cancel()
		}
	}

	if winner != nil {
		merged.State = StateSucceeded
		merged.Result = winner.Result
		return merged, nil
	}
	if ctx.Err() != nil {
		merged.State = StateCanceled
		return merged, ctx.Err()
	}
	return merged, firstErr
}

// NewSessionWorkerFactory clones base for every worker so cookies set during one checkout never leak into another.
func NewSessionWorkerFactory(config *Config, base *Session, gate *ClockGate, tokens TokenSource, notifier Notifier, clock Clock, logger *zap.Logger) WorkerFactory {
	return func(workerID string) (*AttackLoop, error) {
		session, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("failed to clone session: %w", err)
		}
		log := logger.With(zap.String("worker", workerID))

		resolver := NewPurchaseLinkResolver(session, config.Endpoints, config.LinkRetryBudget(), clock, log)
		sequencer := NewCheckoutSequencer(session, config.Endpoints, config.CheckoutPageTimeout(), log)
		placer := NewOrderSubmitter(session, config.Endpoints, tokens, log)

		return NewAttackLoop(gate, resolver, sequencer, placer, config.Target(), LoopOptions{
			Notifier:         notifier,
			Account:          session.Nickname,
			RefreshPayload:   config.RefreshPayloadPerAttempt,
			PrebuildAttempts: config.PrebuildAttempts,
			Clock:            clock,
		}, log), nil
	}
}
