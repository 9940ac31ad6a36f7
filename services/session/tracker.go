// Package session owns the per-user session lifecycle: sign-in, the
// asynchronous profile fetch, and sign-out. Every state change yields a new
// immutable navigation.Session snapshot that is published to subscribers.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/models"
	"github.com/roompe/roompe-api/navigation"
	"github.com/roompe/roompe-api/notify"
	"github.com/roompe/roompe-api/services"
	"github.com/roompe/roompe-api/services/audit"
	"go.uber.org/zap"
)

// DefaultFetchTimeout bounds a single profile fetch.
const DefaultFetchTimeout = 10 * time.Second

// ProfileSource loads the profile of a signed-in user. It must return an
// error satisfying services.IsNotFoundError when the user has no profile.
type ProfileSource interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

// invalidator is implemented by profile sources that cache.
type invalidator interface {
	Invalidate(userID uuid.UUID)
}

// Provider exposes session snapshots to readers such as HTTP handlers.
type Provider interface {
	Snapshot(userID uuid.UUID) navigation.Session
	Subscribe(ctx context.Context, userID uuid.UUID) (<-chan navigation.Session, error)
}

type state struct {
	session    navigation.Session
	seq        uint64
	generation uint64
	cancel     context.CancelFunc
}

// Tracker holds one snapshot per signed-in user. It is safe for concurrent use.
//
// State changes are queued for publication while the tracker lock is held and
// a single dispatcher publishes them, so subscribers observe snapshots in the
// order they were made.
type Tracker struct {
	profiles     ProfileSource
	broker       notify.Broker
	audit        audit.Recorder
	logger       *zap.Logger
	fetchTimeout time.Duration
	origin       string

	mu      sync.Mutex
	states  map[uuid.UUID]*state
	seq     uint64
	pending []notify.Event

	wake           chan struct{}
	stop           chan struct{}
	dispatcherDone chan struct{}
	closeOnce      sync.Once

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// Config configures a Tracker.
type Config struct {
	FetchTimeout time.Duration
}

// NewTracker creates a tracker and starts its dispatcher. A nil recorder
// disables auditing. Call Close to release it.
//
// The tracker also follows the broker's all-users stream, so a snapshot made
// by another instance sharing the broker replaces the local one and drops
// the cached profile.
func NewTracker(profiles ProfileSource, broker notify.Broker, recorder audit.Recorder, logger *zap.Logger, cfg Config) *Tracker {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		profiles:       profiles,
		broker:         broker,
		audit:          recorder,
		logger:         logger,
		fetchTimeout:   cfg.FetchTimeout,
		origin:         uuid.NewString(),
		states:         make(map[uuid.UUID]*state),
		wake:           make(chan struct{}, 1),
		stop:           make(chan struct{}),
		dispatcherDone: make(chan struct{}),
		baseCtx:        ctx,
		baseCancel:     cancel,
	}
	go t.dispatch()

	events, err := broker.SubscribeAll(ctx)
	if err != nil {
		logger.Warn("not following session changes from other instances", zap.Error(err))
		return t
	}
	t.wg.Add(1)
	go t.follow(events)
	return t
}

// SignIn marks the user authenticated with the profile loading, publishes
// that snapshot and starts the profile fetch. Any fetch already in flight for
// the user is superseded.
func (t *Tracker) SignIn(_ context.Context, userID uuid.UUID) navigation.Session {
	s, _ := t.startFetch(userID, true, true)
	return s
}

// Ensure returns the current snapshot of an authenticated user, signing the
// user in first if this process holds no state for them, e.g. after a restart.
func (t *Tracker) Ensure(ctx context.Context, userID uuid.UUID) navigation.Session {
	t.mu.Lock()
	st, ok := t.states[userID]
	if ok {
		s := st.session
		t.mu.Unlock()
		return s
	}
	t.mu.Unlock()
	return t.SignIn(ctx, userID)
}

// Retry re-runs the profile fetch, showing the loading placeholder meanwhile.
// It returns services.ErrUnauthorized if the user is not signed in.
func (t *Tracker) Retry(_ context.Context, userID uuid.UUID) (navigation.Session, error) {
	s, ok := t.startFetch(userID, true, false)
	if !ok {
		return s, services.ErrUnauthorized
	}
	return s, nil
}

// Refresh re-runs the profile fetch while keeping the current snapshot
// visible, so the mounted tree only changes once the new profile arrives.
// It reports whether the user was signed in.
func (t *Tracker) Refresh(_ context.Context, userID uuid.UUID) bool {
	_, ok := t.startFetch(userID, false, false)
	return ok
}

// SignOut cancels any in-flight fetch, drops the user's state and publishes
// the unauthenticated snapshot.
func (t *Tracker) SignOut(_ context.Context, userID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.states[userID]; ok && st.cancel != nil {
		st.cancel()
	}
	delete(t.states, userID)
	t.enqueueLocked(userID, navigation.Unauthenticated())
}

// Snapshot returns the user's current snapshot. Users this process does not
// track are unauthenticated.
func (t *Tracker) Snapshot(userID uuid.UUID) navigation.Session {
	s, _ := t.snapshotSeq(userID)
	return s
}

func (t *Tracker) snapshotSeq(userID uuid.UUID) (navigation.Session, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.states[userID]; ok {
		return st.session, st.seq
	}
	return navigation.Unauthenticated(), t.seq
}

// Subscribe streams the user's snapshots, starting with the current one.
// Events this tracker made before that snapshot are skipped. The channel is
// closed when ctx ends or the broker shuts down.
func (t *Tracker) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan navigation.Session, error) {
	events, err := t.broker.Subscribe(ctx, userID)
	if err != nil {
		return nil, services.WrapExternal("failed to subscribe to session changes", err)
	}

	current, seen := t.snapshotSeq(userID)
	out := make(chan navigation.Session, 1)
	out <- current

	go func() {
		defer close(out)
		for ev := range events {
			if ev.Origin == t.origin && ev.Seq <= seen {
				continue
			}
			select {
			case out <- ev.Session:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// Close cancels in-flight fetches, waits for them, then flushes pending
// publications. The broker is not closed.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() {
		// Cancel under the lock so no fetch can register after Wait starts.
		t.mu.Lock()
		t.baseCancel()
		t.mu.Unlock()
		t.wg.Wait()
		close(t.stop)
		<-t.dispatcherDone
	})
}

// Active returns the number of users with tracked state.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}

// startFetch bumps the user's generation, optionally swaps in the loading
// snapshot, and launches the fetch. create permits starting from no state;
// without it, an untracked user yields (unauthenticated, false).
func (t *Tracker) startFetch(userID uuid.UUID, showLoading, create bool) (navigation.Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.baseCtx.Err() != nil {
		return navigation.Unauthenticated(), false
	}

	st, ok := t.states[userID]
	if !ok {
		if !create {
			return navigation.Unauthenticated(), false
		}
		st = &state{}
		t.states[userID] = st
	}
	if st.cancel != nil {
		st.cancel()
	}
	st.generation++

	fetchCtx, cancel := context.WithTimeout(t.baseCtx, t.fetchTimeout)
	st.cancel = cancel
	if showLoading {
		st.session = navigation.SigningIn()
		st.seq = t.enqueueLocked(userID, st.session)
	}

	t.wg.Add(1)
	go t.fetch(fetchCtx, cancel, userID, st.generation)
	return st.session, true
}

func (t *Tracker) fetch(ctx context.Context, cancel context.CancelFunc, userID uuid.UUID, gen uint64) {
	defer t.wg.Done()
	defer cancel()

	p, err := t.profiles.Get(ctx, userID)

	var next navigation.Session
	switch {
	case err == nil:
		next = navigation.WithProfile(p.ToNavigation())
	case services.IsNotFoundError(err):
		next = navigation.WithProfile(nil)
	default:
		next = navigation.WithProfileError(fetchErrorMessage(err))
	}

	t.mu.Lock()
	st, ok := t.states[userID]
	if !ok || st.generation != gen || t.baseCtx.Err() != nil {
		t.mu.Unlock()
		t.logger.Debug("dropping superseded profile fetch",
			zap.String("user_id", userID.String()),
			zap.Uint64("generation", gen))
		return
	}
	st.session = next
	st.cancel = nil
	st.seq = t.enqueueLocked(userID, next)
	t.mu.Unlock()

	if next.ProfileError != "" {
		t.logger.Warn("profile fetch failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		t.audit.Record(context.Background(), models.AuditActionProfileFetchFailed, &userID,
			map[string]interface{}{"error": next.ProfileError})
	}
}

// follow applies snapshots published by other trackers until the stream
// closes.
func (t *Tracker) follow(events <-chan notify.Event) {
	defer t.wg.Done()
	for ev := range events {
		if ev.Origin == t.origin {
			continue
		}
		t.apply(ev)
	}
}

// apply adopts a foreign snapshot. A signed-out snapshot drops the user's
// state; any other replaces it and supersedes a local fetch in flight. It is
// not republished: local subscribers read the same broker.
func (t *Tracker) apply(ev notify.Event) {
	if inv, ok := t.profiles.(invalidator); ok {
		inv.Invalidate(ev.UserID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.baseCtx.Err() != nil {
		return
	}

	st, ok := t.states[ev.UserID]
	if ok && st.cancel != nil {
		st.cancel()
	}
	if !ev.Session.Authenticated {
		delete(t.states, ev.UserID)
		return
	}
	if !ok {
		st = &state{}
		t.states[ev.UserID] = st
	}
	st.generation++
	st.cancel = nil
	st.session = ev.Session
	st.seq = t.seq

	t.logger.Debug("applied session change from another instance",
		zap.String("user_id", ev.UserID.String()),
		zap.String("origin", ev.Origin))
}

func fetchErrorMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "profile fetch timed out"
	}
	return "profile fetch failed"
}

// enqueueLocked queues s for publication and returns its sequence number.
// t.mu must be held.
func (t *Tracker) enqueueLocked(userID uuid.UUID, s navigation.Session) uint64 {
	t.seq++
	ev := notify.NewEvent(userID, s)
	ev.Origin = t.origin
	ev.Seq = t.seq
	t.pending = append(t.pending, ev)

	select {
	case t.wake <- struct{}{}:
	default:
	}
	return t.seq
}

func (t *Tracker) dispatch() {
	defer close(t.dispatcherDone)

	for {
		select {
		case <-t.wake:
			t.flush()
		case <-t.stop:
			t.flush()
			return
		}
	}
}

func (t *Tracker) flush() {
	t.mu.Lock()
	batch := t.pending
	t.pending = nil
	t.mu.Unlock()

	for _, ev := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := t.broker.Publish(ctx, ev)
		cancel()
		if err != nil {
			t.logger.Warn("failed to publish session change",
				zap.String("user_id", ev.UserID.String()),
				zap.Error(err))
		}
	}
}

var _ Provider = (*Tracker)(nil)
