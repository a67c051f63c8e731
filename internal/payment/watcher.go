// Package payment follows a PIX top-up from creation to resolution.
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aussiebroadwan/busfare/pkg/faresdk"
	"github.com/aussiebroadwan/busfare/pkg/idx"
	"github.com/aussiebroadwan/busfare/pkg/poll"
	"github.com/aussiebroadwan/busfare/pkg/slogx"
)

// Backend is the part of the fare SDK the watcher needs.
type Backend interface {
	CreatePixPayment(ctx context.Context, amountCents int64) (*faresdk.PaymentIntent, error)
	PaymentStatus(ctx context.Context, id faresdk.ID) (faresdk.PaymentStatus, error)
}

// Callbacks receive the resolution of a watch. At most one of them runs per
// watch, on the watch goroutine; none runs once the watch is stopped. Nil
// callbacks are skipped.
type Callbacks struct {
	OnApproved func(faresdk.PaymentIntent)
	// OnFailed receives intents that ended cancelled, expired or failed.
	OnFailed func(faresdk.PaymentIntent)
	// OnTimeout means polling gave up; the intent is still unresolved as far
	// as the client knows.
	OnTimeout func(faresdk.PaymentIntent)
}

type Config struct {
	Poll           poll.Config
	MinAmountCents int64
}

// Watcher runs at most one watch at a time. Starting a watch stops the
// previous one.
type Watcher struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger

	mu     sync.Mutex
	active *Watch
}

func NewWatcher(backend Backend, cfg Config, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinAmountCents <= 0 {
		cfg.MinAmountCents = DefaultMinAmountCents
	}
	if cfg.Poll.Logger == nil {
		cfg.Poll.Logger = logger
	}
	return &Watcher{backend: backend, cfg: cfg, logger: logger}
}

// MinAmountCents is the configured top-up floor.
func (w *Watcher) MinAmountCents() int64 { return w.cfg.MinAmountCents }

const (
	stateRunning int32 = iota
	stateDelivering
	stateStopped
)

// Watch is one polling session for one intent.
type Watch struct {
	ID     idx.ID
	intent faresdk.PaymentIntent

	cancel context.CancelFunc
	state  atomic.Int32
	done   chan struct{}

	mu      sync.Mutex
	outcome poll.Outcome
	status  faresdk.PaymentStatus
}

// Stop ends the watch. No callback starts after Stop returns. It is safe to
// call from inside a callback and more than once.
func (wt *Watch) Stop() {
	wt.state.CompareAndSwap(stateRunning, stateStopped)
	wt.cancel()
}

// Done is closed when the watch goroutine has exited and any callback has
// returned.
func (wt *Watch) Done() <-chan struct{} { return wt.done }

// Result reports how the watch ended and the last status seen. It is only
// meaningful after Done is closed.
func (wt *Watch) Result() (poll.Outcome, faresdk.PaymentStatus) {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	return wt.outcome, wt.status
}

func (wt *Watch) deliver(fn func(faresdk.PaymentIntent), intent faresdk.PaymentIntent) bool {
	if !wt.state.CompareAndSwap(stateRunning, stateDelivering) {
		return false
	}
	defer wt.state.Store(stateStopped)
	if fn != nil {
		fn(intent)
	}
	return true
}

// Watch polls the status of intent until it resolves, the poll ceiling
// passes, ctx ends or Stop is called. Any previous watch is stopped first.
func (w *Watcher) Watch(ctx context.Context, intent faresdk.PaymentIntent, cb Callbacks) *Watch {
	watchCtx, cancel := context.WithCancel(ctx)
	wt := &Watch{
		ID:     idx.New(),
		intent: intent,
		cancel: cancel,
		done:   make(chan struct{}),
		status: intent.Status,
	}

	w.mu.Lock()
	prev := w.active
	w.active = wt
	w.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	watchCtx = slogx.With(slogx.WithContext(watchCtx, w.logger),
		"watch", wt.ID.Short(),
		"payment_id", intent.ID.String(),
	)
	logger := slogx.FromContext(watchCtx)

	cfg := w.cfg.Poll
	cfg.Logger = logger

	go w.run(watchCtx, wt, cfg, cb, logger)
	return wt
}

func (w *Watcher) run(ctx context.Context, wt *Watch, cfg poll.Config, cb Callbacks, logger *slog.Logger) {
	defer close(wt.done)
	defer wt.cancel()
	defer w.release(wt)

	logger.Debug("payment watch started")

	res := poll.Until(ctx, cfg,
		func(ctx context.Context) (faresdk.PaymentStatus, error) {
			return w.backend.PaymentStatus(ctx, wt.intent.ID)
		},
		faresdk.PaymentStatus.Terminal,
	)

	intent := wt.intent
	if res.Value != "" {
		intent.Status = res.Value
	}

	wt.mu.Lock()
	wt.outcome = res.Outcome
	wt.status = intent.Status
	wt.mu.Unlock()

	var fn func(faresdk.PaymentIntent)
	switch res.Outcome {
	case poll.Terminal:
		if intent.Status == faresdk.PaymentApproved {
			fn = cb.OnApproved
		} else {
			fn = cb.OnFailed
		}
	case poll.TimedOut:
		fn = cb.OnTimeout
	case poll.Cancelled:
		logger.Debug("payment watch cancelled", "queries", res.Queries)
		return
	}

	if !wt.deliver(fn, intent) {
		logger.Debug("payment watch stopped before delivery", "outcome", res.Outcome.String())
		return
	}
	logger.Info("payment watch finished",
		"outcome", res.Outcome.String(),
		"status", string(intent.Status),
		"queries", res.Queries,
	)
}

func (w *Watcher) release(wt *Watch) {
	w.mu.Lock()
	if w.active == wt {
		w.active = nil
	}
	w.mu.Unlock()
}

// Stop ends the active watch, if any.
func (w *Watcher) Stop() {
	w.mu.Lock()
	wt := w.active
	w.active = nil
	w.mu.Unlock()
	if wt != nil {
		wt.Stop()
	}
}

// TopUp validates the typed amount, creates a PIX intent for it and starts
// watching it. Validation errors are returned before any network call. Any
// active watch is stopped before the intent is requested.
func (w *Watcher) TopUp(ctx context.Context, amount string, cb Callbacks) (*faresdk.PaymentIntent, *Watch, error) {
	cents, err := ParseAmount(amount)
	if err != nil {
		return nil, nil, err
	}
	if err := CheckMinimum(cents, w.cfg.MinAmountCents); err != nil {
		return nil, nil, err
	}

	w.Stop()

	intent, err := w.backend.CreatePixPayment(ctx, cents)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create payment: %w", err)
	}
	w.logger.Info("payment created",
		"payment_id", intent.ID.String(),
		"amount", FormatCents(cents),
	)

	return intent, w.Watch(ctx, *intent, cb), nil
}
