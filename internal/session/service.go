package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aussiebroadwan/busfare/pkg/cryptox"
	"github.com/aussiebroadwan/busfare/pkg/faresdk"
)

// DefaultLoginPath is where OnUnauthorized navigates when no other login
// entry point is configured.
const DefaultLoginPath = "/login"

// ErrUnknownRole is returned by Login when the backend answers with a
// profile whose role isn't one of the known roles.
var ErrUnknownRole = errors.New("session: profile has no known role")

// Authenticator is the backend call Login depends on.
type Authenticator interface {
	Login(ctx context.Context, creds faresdk.Credentials) (*faresdk.LoginResponse, error)
}

// Reader is the read side every page and the authorizer depend on.
type Reader interface {
	Current() Snapshot
}

// Snapshot is an immutable view of the session at one point in time. The
// zero value is the logged-out session.
type Snapshot struct {
	Token   string
	Role    Role
	Profile faresdk.Profile
}

// Authenticated reports whether the snapshot carries a usable session: a
// token together with a known role.
func (s Snapshot) Authenticated() bool {
	return s.Token != "" && s.Role.Valid()
}

// Service is the single owner of the client session. Writers (Login,
// Logout, OnUnauthorized, Restore) are serialised; readers get snapshots.
type Service struct {
	auth    Authenticator
	storage Storage
	logger  *slog.Logger

	// LoginPath is the entry point OnUnauthorized navigates to.
	LoginPath string

	// Navigate is called by OnUnauthorized after the session is cleared.
	Navigate func(ctx context.Context, path string)

	mu      sync.RWMutex
	current Snapshot

	subsMu   sync.Mutex
	subs     []subscriber
	nextSub  int
	pending  []Snapshot
	draining bool
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

// NewService builds an empty session service. Call Restore to load any
// persisted session.
func NewService(auth Authenticator, storage Storage, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		auth:      auth,
		storage:   storage,
		logger:    logger,
		LoginPath: DefaultLoginPath,
	}
}

// Current returns the session as of now.
func (s *Service) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Token implements faresdk.TokenSource.
func (s *Service) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Token
}

// TokenExpiry reports the exp claim of the current token when it is a JWT
// that carries one. It is for display; nothing is gated on it.
func (s *Service) TokenExpiry() (time.Time, bool) {
	claims, ok := InspectToken(s.Token())
	if !ok || claims.ExpiresAt.IsZero() {
		return time.Time{}, false
	}
	return claims.ExpiresAt, true
}

// Subscribe registers fn to run after every session change, in
// subscription order. Changes are delivered one at a time and in the order
// they were made. A change made while a delivery is under way, including
// one made from inside fn, is delivered by the goroutine already
// delivering, right after it; a snapshot superseded before it reaches a
// subscriber is skipped. The last snapshot each subscriber sees is always
// the current one. The returned func removes the subscription.
func (s *Service) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		s.subs = slices.DeleteFunc(s.subs, func(sub subscriber) bool { return sub.id == id })
		s.subsMu.Unlock()
	}
}

// publish queues snap for delivery. It must be called with s.mu held so the
// queue follows the order of the changes.
func (s *Service) publish(snap Snapshot) {
	s.subsMu.Lock()
	s.pending = append(s.pending, snap)
	s.subsMu.Unlock()
}

// drain delivers queued snapshots unless another goroutine already is.
func (s *Service) drain() {
	s.subsMu.Lock()
	if s.draining {
		s.subsMu.Unlock()
		return
	}
	s.draining = true

	finished := false
	defer func() {
		if !finished {
			s.subsMu.Lock()
			s.draining = false
			s.subsMu.Unlock()
		}
	}()

	for len(s.pending) > 0 {
		snap := s.pending[len(s.pending)-1]
		s.pending = s.pending[:0]
		subs := slices.Clone(s.subs)
		s.subsMu.Unlock()

		for _, sub := range subs {
			sub.fn(snap)
			if s.superseded() {
				break
			}
		}

		s.subsMu.Lock()
	}
	s.draining = false
	finished = true
	s.subsMu.Unlock()
}

func (s *Service) superseded() bool {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return len(s.pending) > 0
}

// Restore loads the persisted session without any network call. A record
// missing either key, or whose profile has no known role, is cleared and
// the session stays empty.
func (s *Service) Restore(ctx context.Context) error {
	s.mu.Lock()

	rec, err := s.storage.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			s.mu.Unlock()
			return fmt.Errorf("failed to load session: %w", err)
		}
		s.logger.Warn("persisted session unreadable, discarding", "error", err)
		rec = Record{}
	}

	snap, reason := snapshotFromRecord(rec)
	if reason != "" {
		if rec.Token != "" || len(rec.Profile) > 0 || err != nil {
			s.logger.Info("discarding persisted session", "reason", reason)
			if cerr := s.storage.Clear(ctx); cerr != nil {
				s.logger.Error("failed to clear persisted session", "error", cerr)
			}
		}
		s.current = Snapshot{}
		s.mu.Unlock()
		return nil
	}

	s.current = snap
	s.publish(snap)
	s.mu.Unlock()

	s.logger.Debug("session restored",
		"role", snap.Role,
		"token_fp", cryptox.Fingerprint(snap.Token),
	)
	s.drain()
	return nil
}

// snapshotFromRecord validates a persisted record. reason is non-empty when
// the record can't become a session.
func snapshotFromRecord(rec Record) (Snapshot, string) {
	if rec.Token == "" || len(rec.Profile) == 0 {
		return Snapshot{}, "incomplete"
	}

	profile, err := faresdk.ParseProfile(rec.Profile)
	if err != nil {
		return Snapshot{}, "malformed profile"
	}

	role, ok := ParseRole(profile.Role)
	if !ok {
		return Snapshot{}, "unknown role"
	}

	return Snapshot{Token: rec.Token, Role: role, Profile: profile}, ""
}

// Login authenticates against the backend and, on success, stores the
// session in memory and in durable storage. On any failure nothing is
// persisted and the current session is left as it was.
func (s *Service) Login(ctx context.Context, creds faresdk.Credentials) (faresdk.Profile, error) {
	resp, err := s.auth.Login(ctx, creds)
	if err != nil {
		return faresdk.Profile{}, err
	}

	role, ok := ParseRole(resp.Profile.Role)
	if !ok {
		return faresdk.Profile{}, fmt.Errorf("%w: %q", ErrUnknownRole, resp.Profile.Role)
	}

	snap := Snapshot{Token: resp.Token, Role: role, Profile: resp.Profile}

	s.mu.Lock()
	if err := s.storage.Save(ctx, Record{Token: resp.Token, Profile: resp.Profile.Raw}); err != nil {
		s.mu.Unlock()
		return faresdk.Profile{}, fmt.Errorf("failed to persist session: %w", err)
	}
	s.current = snap
	s.publish(snap)
	s.mu.Unlock()

	s.logger.Info("logged in",
		"role", role,
		"token_fp", cryptox.Fingerprint(resp.Token),
	)
	s.drain()
	return resp.Profile, nil
}

// Logout clears the session in memory and in storage. It is safe to call
// when nobody is logged in. The in-memory session is cleared even when the
// storage fails; that error is returned.
func (s *Service) Logout(ctx context.Context) error {
	_, err := s.clearIf(ctx, func(Snapshot) bool { return true })
	return err
}

// clearIf empties the session when should reports true for the current
// snapshot. The check and the clear happen under one lock.
func (s *Service) clearIf(ctx context.Context, should func(Snapshot) bool) (bool, error) {
	s.mu.Lock()
	if !should(s.current) {
		s.mu.Unlock()
		return false, nil
	}
	was := s.current.Authenticated()
	s.current = Snapshot{}
	if was {
		s.publish(Snapshot{})
	}
	err := s.storage.Clear(ctx)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("failed to clear persisted session", "error", err)
		err = fmt.Errorf("failed to clear session: %w", err)
	}
	if was {
		s.logger.Info("logged out")
		s.drain()
	}
	return true, err
}

// OnUnauthorized handles a 401 from an authenticated request: the session
// is cleared and the caller is sent to the login entry point. A rejection of
// a token other than the current one (a slow request that outlived a
// re-login) is ignored.
//
// Its signature matches faresdk.Client.OnUnauthorized.
func (s *Service) OnUnauthorized(ctx context.Context, rejectedToken string) {
	cleared, err := s.clearIf(ctx, func(cur Snapshot) bool {
		return rejectedToken == "" || cur.Token == "" || cur.Token == rejectedToken
	})
	if err != nil {
		s.logger.Error("logout after 401 incomplete", "error", err)
	}
	if !cleared {
		s.logger.Debug("ignoring 401 for a superseded token",
			"token_fp", cryptox.Fingerprint(rejectedToken),
		)
		return
	}

	s.logger.Warn("credential rejected by backend, session cleared")
	if s.Navigate != nil {
		s.Navigate(ctx, s.LoginPath)
	}
}
