// Package sync reconciles the local mirror with the remote reader.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	rserrs "github.com/jdholdren/readersync/internal/errors"
	"github.com/jdholdren/readersync/internal/reader"
	"github.com/jdholdren/readersync/logger"
)

// Listings are requested in pages of this many records.
const pageSize = 100

// Store leases. Syncs and pin flushes exclude their own kind only.
const (
	leaseName    = "sync"
	pinLeaseName = "pins"
)

var (
	ErrSyncInProgress  error = rserrs.E(rserrs.KindConflict, "a sync is already running against this store")
	ErrLeaseLost       error = rserrs.E(rserrs.KindConflict, "sync lease was taken over by another holder")
	ErrBatchIncomplete       = errors.New("some subscriptions failed to sync")
)

type (
	Config struct {
		// Only pull unread subscriptions and items during a batch sync.
		UnreadOnly bool
		// Tell the remote everything synced in a batch has been read.
		AutoMarkAllRead bool
		// Keep queued pin mutations the remote refused instead of dropping them.
		StrictPinFlush bool

		LoginID  string
		Password string

		LeaseTTL time.Duration
	}

	// Syncer owns the remote client for its lifetime.
	//
	// Item and subscription syncs are serialized with each other, as are pin
	// flushes: a second call of the same kind while one is running fails with
	// [ErrSyncInProgress]. Pin and Unpin never fail that way; they wait for a
	// running flush in this process and only skip the push when another
	// process is flushing.
	Syncer struct {
		store  reader.Store
		client reader.Client
		conn   reader.Connectivity
		pacer  Pacer
		icons  IconLoader
		cfg    Config

		now    func() time.Time
		syncs  guard
		pins   guard
		holder string
	}

	// guard pairs the in-process semaphore with the store lease of the same name.
	guard struct {
		lease string
		sem   chan struct{}
	}
)

func newGuard(lease string) guard {
	return guard{lease: lease, sem: make(chan struct{}, 1)}
}

// NewSyncer wires the engine. A zero LeaseTTL means 15 minutes.
func NewSyncer(store reader.Store, client reader.Client, conn reader.Connectivity, pacer Pacer, icons IconLoader, cfg Config) *Syncer {
	if cfg.LeaseTTL == 0 {
		cfg.LeaseTTL = 15 * time.Minute
	}

	return &Syncer{
		store:  store,
		client: client,
		conn:   conn,
		pacer:  pacer,
		icons:  icons,
		cfg:    cfg,
		now:    time.Now,
		syncs:  newGuard(leaseName),
		pins:   newGuard(pinLeaseName),
		holder: uuid.NewString(),
	}
}

// Login opens a session with the given credentials. A refused login is false with no error.
func (s *Syncer) Login(ctx context.Context, loginID, password string) (bool, error) {
	return s.client.Login(ctx, loginID, password)
}

// Logout drops the session.
func (s *Syncer) Logout(ctx context.Context) error {
	return s.client.Logout(ctx)
}

// Authenticated reports whether a session is open.
func (s *Syncer) Authenticated() bool {
	return s.client.Authenticated()
}

// LoginID is the account of the open session, or empty.
func (s *Syncer) LoginID() string {
	return s.client.LoginID()
}

// CountUnread is the number of unread items stored across all subscriptions.
func (s *Syncer) CountUnread(ctx context.Context) (int, error) {
	return s.store.CountAllUnreadItems(ctx)
}

// begin takes the in-process guard and the store lease, and tags the context
// for logging. The returned func gives both back.
func (s *Syncer) begin(ctx context.Context, op string, g *guard) (context.Context, func(), error) {
	select {
	case g.sem <- struct{}{}:
	default:
		return ctx, nil, ErrSyncInProgress
	}

	ctx = tagRun(ctx, op)
	release, err := s.lease(ctx, g.lease)
	if err != nil {
		<-g.sem
		return ctx, nil, err
	}

	return ctx, func() {
		release()
		<-g.sem
	}, nil
}

// queue waits for the in-process pin guard without touching the store lease.
func (s *Syncer) queue(ctx context.Context, op string) (context.Context, func(), error) {
	select {
	case s.pins.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx, nil, ctx.Err()
	}

	return tagRun(ctx, op), func() { <-s.pins.sem }, nil
}

func tagRun(ctx context.Context, op string) context.Context {
	return logger.Ctx(ctx, slog.String("run_id", uuid.NewString()), slog.String("op", op))
}

// lease takes the named store lease, failing with [ErrSyncInProgress] when
// another holder has it.
func (s *Syncer) lease(ctx context.Context, name string) (func(), error) {
	ok, err := s.store.AcquireLease(ctx, name, s.holder, s.cfg.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("error acquiring %s lease: %w", name, err)
	}
	if !ok {
		return nil, ErrSyncInProgress
	}

	return func() {
		if err := s.store.ReleaseLease(context.WithoutCancel(ctx), name, s.holder); err != nil {
			slog.WarnContext(ctx, "error releasing lease", "lease", name, "error", err)
		}
	}, nil
}

// renew pushes the expiry of a lease this syncer holds. It fails with
// [ErrLeaseLost] once someone else has taken the lease over.
func (s *Syncer) renew(ctx context.Context, name string) error {
	ok, err := s.store.AcquireLease(ctx, name, s.holder, s.cfg.LeaseTTL)
	if err != nil {
		return fmt.Errorf("error renewing %s lease: %w", name, err)
	}
	if !ok {
		return ErrLeaseLost
	}
	return nil
}

// authenticate logs in with the configured credentials unless a session exists.
func (s *Syncer) authenticate(ctx context.Context) error {
	if s.client.Authenticated() {
		return nil
	}

	ok, err := s.client.Login(ctx, s.cfg.LoginID, s.cfg.Password)
	if err != nil {
		return fmt.Errorf("error logging in: %w", err)
	}
	if !ok {
		return rserrs.E(rserrs.KindAuthRequired, fmt.Sprintf("login refused for %q", s.cfg.LoginID))
	}
	slog.DebugContext(ctx, "logged in", "login_id", s.cfg.LoginID)

	return nil
}

// Sync runs a full batch: the subscription list, then the items of every
// stale subscription.
//
// A failing subscription does not stop the batch; the count still covers the
// others and the error wraps [ErrBatchIncomplete] with the first failure.
// The lease is renewed before every subscription; losing it ends the batch
// with [ErrLeaseLost].
func (s *Syncer) Sync(ctx context.Context) (int, error) {
	ctx, done, err := s.begin(ctx, "sync", &s.syncs)
	if err != nil {
		return 0, err
	}
	defer done()

	if err := s.authenticate(ctx); err != nil {
		return 0, err
	}

	_, ids, err := s.syncSubscriptions(ctx, s.cfg.UnreadOnly)
	if err != nil {
		return 0, err
	}
	if err := s.pacer.Pause(ctx, StepAfterSubscriptions); err != nil {
		slog.InfoContext(ctx, "sync interrupted after subscriptions", "error", err)
		return 0, fmt.Errorf("error pausing after subscriptions: %w", err)
	}
	if err := s.renew(ctx, leaseName); err != nil {
		return 0, err
	}

	stale, err := s.store.StaleSubscriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("error listing stale subscriptions: %w", err)
	}

	var (
		total    int
		failed   int
		firstErr error
	)
	for i, sub := range stale {
		if i > 0 {
			if err := s.pacer.Pause(ctx, StepBetweenSubscriptions); err != nil {
				slog.InfoContext(ctx, "sync interrupted", "remaining", len(stale)-i, "error", err)
				break
			}
			if err := s.renew(ctx, leaseName); err != nil {
				slog.WarnContext(ctx, "sync lease lost", "remaining", len(stale)-i, "error", err)
				return total, err
			}
		}

		n, err := s.syncItems(ctx, sub, s.cfg.UnreadOnly)
		total += n
		if err != nil {
			slog.WarnContext(ctx, "error syncing subscription", "subscription_id", sub.ID, "error", err)
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if s.cfg.AutoMarkAllRead && ctx.Err() == nil {
		s.markAllRead(ctx, ids)
	}

	slog.InfoContext(ctx, "sync finished", "stale", len(stale), "failed", failed, "inserted", total)
	if firstErr != nil {
		return total, fmt.Errorf("%w: %w", ErrBatchIncomplete, firstErr)
	}

	return total, nil
}

func (s *Syncer) markAllRead(ctx context.Context, ids []int64) {
	for _, id := range ids {
		if err := s.client.MarkAllRead(ctx, id); err != nil {
			slog.DebugContext(ctx, "error marking subscription read", "subscription_id", id, "error", err)
		}
	}
}
