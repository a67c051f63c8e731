package payment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/busfare/pkg/faresdk"
	"github.com/aussiebroadwan/busfare/pkg/poll"
	"github.com/aussiebroadwan/busfare/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu       sync.Mutex
	statuses []faresdk.PaymentStatus
	errs     []error
	queries  int
	created  []int64
}

func (f *fakeBackend) CreatePixPayment(_ context.Context, cents int64) (*faresdk.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, cents)
	return &faresdk.PaymentIntent{ID: "p1", CopyPaste: "000201...", Status: faresdk.PaymentPending}, nil
}

func (f *fakeBackend) PaymentStatus(context.Context, faresdk.ID) (faresdk.PaymentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.queries
	f.queries++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.statuses) {
		return f.statuses[i], nil
	}
	return faresdk.PaymentPending, nil
}

func (f *fakeBackend) Queries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

func fastConfig() Config {
	return Config{Poll: poll.Config{Interval: 5 * time.Millisecond, Ceiling: time.Second}}
}

type recorder struct {
	mu     sync.Mutex
	events []string
	last   faresdk.PaymentIntent
}

func (r *recorder) add(name string) func(faresdk.PaymentIntent) {
	return func(p faresdk.PaymentIntent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, name)
		r.last = p
	}
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{OnApproved: r.add("approved"), OnFailed: r.add("failed"), OnTimeout: r.add("timeout")}
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func waitDone(t *testing.T, wt *Watch) {
	t.Helper()
	select {
	case <-wt.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not finish")
	}
}

func TestWatchApproved(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{statuses: []faresdk.PaymentStatus{
		faresdk.PaymentPending, faresdk.PaymentPending, faresdk.PaymentApproved,
	}}
	w := NewWatcher(backend, fastConfig(), slogx.Discard())
	rec := &recorder{}

	wt := w.Watch(context.Background(), faresdk.PaymentIntent{ID: "p1", Status: faresdk.PaymentPending}, rec.callbacks())
	waitDone(t, wt)

	require.Equal(t, []string{"approved"}, rec.Events())
	require.Equal(t, faresdk.PaymentApproved, rec.last.Status)
	require.Equal(t, 3, backend.Queries())

	outcome, status := wt.Result()
	require.Equal(t, poll.Terminal, outcome)
	require.Equal(t, faresdk.PaymentApproved, status)
}

func TestWatchFailedStatuses(t *testing.T) {
	t.Parallel()

	for _, st := range []faresdk.PaymentStatus{faresdk.PaymentCancelled, faresdk.PaymentExpired, faresdk.PaymentFailed} {
		backend := &fakeBackend{statuses: []faresdk.PaymentStatus{st}}
		w := NewWatcher(backend, fastConfig(), slogx.Discard())
		rec := &recorder{}

		waitDone(t, w.Watch(context.Background(), faresdk.PaymentIntent{ID: "p1"}, rec.callbacks()))
		require.Equal(t, []string{"failed"}, rec.Events(), st)
		require.Equal(t, st, rec.last.Status)
	}
}

func TestWatchTimesOut(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	cfg := Config{Poll: poll.Config{Interval: 10 * time.Millisecond, Ceiling: 55 * time.Millisecond}}
	w := NewWatcher(backend, cfg, slogx.Discard())
	rec := &recorder{}

	wt := w.Watch(context.Background(), faresdk.PaymentIntent{ID: "p1", Status: faresdk.PaymentPending}, rec.callbacks())
	waitDone(t, wt)

	require.Equal(t, []string{"timeout"}, rec.Events())
	require.Equal(t, faresdk.PaymentPending, rec.last.Status)
	require.LessOrEqual(t, backend.Queries(), 7)
}

func TestWatchRetriesAfterQueryErrors(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		errs:     []error{errors.New("connection reset"), errors.New("502")},
		statuses: []faresdk.PaymentStatus{"", "", faresdk.PaymentApproved},
	}
	w := NewWatcher(backend, fastConfig(), slogx.Discard())
	rec := &recorder{}

	waitDone(t, w.Watch(context.Background(), faresdk.PaymentIntent{ID: "p1"}, rec.callbacks()))
	require.Equal(t, []string{"approved"}, rec.Events())
	require.Equal(t, 3, backend.Queries())
}

func TestStopSuppressesCallbacks(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	w := NewWatcher(backend, fastConfig(), slogx.Discard())
	rec := &recorder{}

	wt := w.Watch(context.Background(), faresdk.PaymentIntent{ID: "p1"}, rec.callbacks())
	w.Stop()
	waitDone(t, wt)
	wt.Stop()

	require.Empty(t, rec.Events())
	outcome, _ := wt.Result()
	require.Equal(t, poll.Cancelled, outcome)
}

func TestContextCancellationSuppressesCallbacks(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	w := NewWatcher(backend, fastConfig(), slogx.Discard())
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	wt := w.Watch(ctx, faresdk.PaymentIntent{ID: "p1"}, rec.callbacks())
	cancel()
	waitDone(t, wt)

	require.Empty(t, rec.Events())
}

func TestNewWatchStopsPrevious(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	w := NewWatcher(backend, fastConfig(), slogx.Discard())
	first, second := &recorder{}, &recorder{}

	wt1 := w.Watch(context.Background(), faresdk.PaymentIntent{ID: "p1"}, first.callbacks())
	wt2 := w.Watch(context.Background(), faresdk.PaymentIntent{ID: "p2"}, second.callbacks())
	waitDone(t, wt1)

	require.Empty(t, first.Events())

	w.Stop()
	waitDone(t, wt2)
	require.Empty(t, second.Events())
}

func TestStopFromCallbackDoesNotDeadlock(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{statuses: []faresdk.PaymentStatus{faresdk.PaymentApproved}}
	w := NewWatcher(backend, fastConfig(), slogx.Discard())

	var calls atomic.Int32
	var wt *Watch
	ready := make(chan struct{})
	wt = w.Watch(context.Background(), faresdk.PaymentIntent{ID: "p1"}, Callbacks{
		OnApproved: func(faresdk.PaymentIntent) {
			<-ready
			calls.Add(1)
			wt.Stop()
			w.Stop()
		},
	})
	close(ready)
	waitDone(t, wt)
	require.Equal(t, int32(1), calls.Load())
}

func TestTopUp(t *testing.T) {
	t.Parallel()

	t.Run("creates and watches", func(t *testing.T) {
		backend := &fakeBackend{statuses: []faresdk.PaymentStatus{faresdk.PaymentApproved}}
		w := NewWatcher(backend, fastConfig(), slogx.Discard())
		rec := &recorder{}

		intent, wt, err := w.TopUp(context.Background(), "10,50", rec.callbacks())
		require.NoError(t, err)
		require.Equal(t, faresdk.ID("p1"), intent.ID)
		waitDone(t, wt)

		require.Equal(t, []int64{1050}, backend.created)
		require.Equal(t, []string{"approved"}, rec.Events())
	})

	t.Run("rejects before any network call", func(t *testing.T) {
		backend := &fakeBackend{}
		w := NewWatcher(backend, fastConfig(), slogx.Discard())

		_, _, err := w.TopUp(context.Background(), "0,99", Callbacks{})
		require.ErrorIs(t, err, ErrAmountTooLow)

		_, _, err = w.TopUp(context.Background(), "dez", Callbacks{})
		require.ErrorIs(t, err, ErrInvalidAmount)

		require.Empty(t, backend.created)
		require.Zero(t, backend.Queries())
	})

	t.Run("configured minimum", func(t *testing.T) {
		backend := &fakeBackend{}
		w := NewWatcher(backend, Config{MinAmountCents: 500}, slogx.Discard())
		require.Equal(t, int64(500), w.MinAmountCents())

		_, _, err := w.TopUp(context.Background(), "4,99", Callbacks{})
		require.ErrorIs(t, err, ErrAmountTooLow)
	})
}

// gatedBackend holds CreatePixPayment until release is closed and lets the
// status of the watched intent be flipped from the test.
type gatedBackend struct {
	entered chan struct{}
	release chan struct{}
	status  atomic.Value
}

func (g *gatedBackend) CreatePixPayment(ctx context.Context, _ int64) (*faresdk.PaymentIntent, error) {
	close(g.entered)
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &faresdk.PaymentIntent{ID: "new", Status: faresdk.PaymentPending}, nil
}

func (g *gatedBackend) PaymentStatus(_ context.Context, id faresdk.ID) (faresdk.PaymentStatus, error) {
	if id == "new" {
		return faresdk.PaymentPending, nil
	}
	return g.status.Load().(faresdk.PaymentStatus), nil
}

func TestTopUpStopsPreviousBeforeCreating(t *testing.T) {
	t.Parallel()

	backend := &gatedBackend{entered: make(chan struct{}), release: make(chan struct{})}
	backend.status.Store(faresdk.PaymentPending)
	w := NewWatcher(backend, fastConfig(), slogx.Discard())

	old := &recorder{}
	oldWatch := w.Watch(context.Background(), faresdk.PaymentIntent{ID: "old"}, old.callbacks())

	type result struct {
		wt  *Watch
		err error
	}
	started := make(chan result, 1)
	go func() {
		_, wt, err := w.TopUp(context.Background(), "5,00", Callbacks{})
		started <- result{wt, err}
	}()

	<-backend.entered
	backend.status.Store(faresdk.PaymentApproved)
	waitDone(t, oldWatch)
	require.Empty(t, old.Events())

	close(backend.release)
	res := <-started
	require.NoError(t, res.err)
	w.Stop()
	waitDone(t, res.wt)
}
