package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	rserrs "github.com/jdholdren/readersync/internal/errors"
	"github.com/jdholdren/readersync/internal/reader"
	"github.com/jdholdren/readersync/logger"
)

// SyncSubscriptions pulls the whole subscription list and returns how many
// subscriptions it held.
func (s *Syncer) SyncSubscriptions(ctx context.Context, unreadOnly bool) (int, error) {
	ctx, done, err := s.begin(ctx, "sync_subscriptions", &s.syncs)
	if err != nil {
		return 0, err
	}
	defer done()

	if err := s.authenticate(ctx); err != nil {
		return 0, err
	}

	n, _, err := s.syncSubscriptions(ctx, unreadOnly)
	return n, err
}

func (s *Syncer) syncSubscriptions(ctx context.Context, unreadOnly bool) (int, []int64, error) {
	h := NewSubscriptionSyncHandler(s.store, s.icons)

	total := 0
	for {
		if err := s.client.ListSubscriptions(ctx, unreadOnly, total, pageSize, h); err != nil {
			return total, h.IDs(), fmt.Errorf("error listing subscriptions from %d: %w", total, err)
		}
		total += h.Count()

		// A full page may have more behind it.
		if h.Count() != pageSize {
			break
		}
	}
	slog.DebugContext(ctx, "synced subscriptions", "count", total)

	return total, h.IDs(), nil
}

// SyncItems pulls the new items of one subscription and returns how many were stored.
func (s *Syncer) SyncItems(ctx context.Context, sub reader.Subscription, unreadOnly bool) (int, error) {
	ctx, done, err := s.begin(ctx, "sync_items", &s.syncs)
	if err != nil {
		return 0, err
	}
	defer done()

	if err := s.authenticate(ctx); err != nil {
		return 0, err
	}

	return s.syncItems(ctx, sub, unreadOnly)
}

// SyncItemsByID is [Syncer.SyncItems] for a subscription already stored locally.
func (s *Syncer) SyncItemsByID(ctx context.Context, id int64, unreadOnly bool) (int, error) {
	ctx, done, err := s.begin(ctx, "sync_items", &s.syncs)
	if err != nil {
		return 0, err
	}
	defer done()

	sub, err := s.store.Subscription(ctx, id)
	if errors.Is(err, reader.ErrNotFound) {
		return 0, rserrs.E(rserrs.KindNotFound, fmt.Errorf("subscription %d: %w", id, err))
	}
	if err != nil {
		return 0, fmt.Errorf("error fetching subscription: %w", err)
	}

	if err := s.authenticate(ctx); err != nil {
		return 0, err
	}

	return s.syncItems(ctx, sub, unreadOnly)
}

func (s *Syncer) syncItems(ctx context.Context, sub reader.Subscription, unreadOnly bool) (int, error) {
	ctx = logger.Ctx(ctx, slog.Int64("subscription_id", sub.ID))

	// Taken before fetching so changes made on the remote meanwhile leave the
	// subscription stale for the next run.
	snapshot := sub.ModifiedTime

	h := NewItemSyncHandler(s.store, sub.ID)
	h.SetUnread(true)

	inserted := 0
	err := s.client.ListUnreadItems(ctx, sub.ID, h)
	inserted += h.Inserted()
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return inserted, ctx.Err()
	case rserrs.Is(err, rserrs.KindTransport):
		// The reader fails this call outright when nothing is unread.
		slog.DebugContext(ctx, "no unread items", "error", err)
	default:
		return inserted, fmt.Errorf("error listing unread items: %w", err)
	}

	if inserted == 0 && !unreadOnly {
		h.SetUnread(false)

		offset := 0
		for {
			if err := s.client.ListAllItems(ctx, sub.ID, offset, pageSize, h); err != nil {
				return inserted + h.Inserted(), fmt.Errorf("error listing items from %d: %w", offset, err)
			}
			inserted += h.Inserted()

			if h.Done() || h.Seen() < pageSize {
				break
			}
			offset += h.Seen()
		}
	}

	unread, err := s.store.CountUnreadItems(ctx, sub.ID)
	if err != nil {
		return inserted, fmt.Errorf("error counting unread items: %w", err)
	}
	if err := s.store.MarkItemsSynced(ctx, sub.ID, snapshot, unread); err != nil {
		return inserted, fmt.Errorf("error marking items synced: %w", err)
	}
	slog.DebugContext(ctx, "synced items", "inserted", inserted, "unread", unread)

	return inserted, nil
}
