package sync

import (
	"context"
	"fmt"

	"github.com/jdholdren/readersync/internal/reader"
)

var (
	_ reader.StreamHandler = (*SubscriptionSyncHandler)(nil)
	_ reader.StreamHandler = (*ItemSyncHandler)(nil)
	_ reader.StreamHandler = (*PinListSyncHandler)(nil)
)

// SubscriptionSyncHandler upserts every subscription of a listing page.
type SubscriptionSyncHandler struct {
	store reader.Store
	icons IconLoader
	scan  scanner

	count int
	ids   []int64
}

func NewSubscriptionSyncHandler(store reader.Store, icons IconLoader) *SubscriptionSyncHandler {
	h := &SubscriptionSyncHandler{store: store, icons: icons}
	h.scan.onRecord = h.record
	return h
}

func (h *SubscriptionSyncHandler) Begin(context.Context) error {
	h.count = 0
	h.scan.reset()
	return nil
}

func (h *SubscriptionSyncHandler) Handle(ctx context.Context, ev reader.Event) (bool, error) {
	return h.scan.Handle(ctx, ev)
}

func (h *SubscriptionSyncHandler) End(context.Context) error { return nil }

// Count is the number of subscriptions on the last page.
func (h *SubscriptionSyncHandler) Count() int { return h.count }

// IDs lists every subscription seen since the handler was made, in order.
func (h *SubscriptionSyncHandler) IDs() []int64 { return h.ids }

func (h *SubscriptionSyncHandler) record(ctx context.Context, rec record) (bool, error) {
	sub := reader.Subscription{
		ID:               rec.Int64("subscribe_id"),
		Title:            rec.String("title"),
		Link:             rec.String("link"),
		IconURI:          rec.String("icon"),
		Folder:           rec.String("folder"),
		Rate:             rec.Int("rate"),
		SubscribersCount: rec.Int("subscribers_count"),
		ModifiedTime:     rec.Int64("modified_on"),
	}

	n, err := h.store.UpdateSubscription(ctx, sub)
	if err != nil {
		return false, fmt.Errorf("error updating subscription %d: %w", sub.ID, err)
	}
	if n == 0 {
		// The unread count is only taken from the listing the first time.
		sub.UnreadCount = rec.Int("unread_count")
		if h.icons != nil {
			sub.Icon = h.icons.Load(ctx, sub.IconURI)
		}
		if err := h.store.InsertSubscription(ctx, sub); err != nil {
			return false, fmt.Errorf("error inserting subscription %d: %w", sub.ID, err)
		}
	}

	h.ids = append(h.ids, sub.ID)
	h.count++
	return true, nil
}

// ItemSyncHandler stores the items of one subscription and stops at the
// first item that is already known.
type ItemSyncHandler struct {
	store          reader.Store
	subscriptionID int64
	unread         bool
	scan           scanner

	seen     int
	inserted int
}

func NewItemSyncHandler(store reader.Store, subscriptionID int64) *ItemSyncHandler {
	h := &ItemSyncHandler{store: store, subscriptionID: subscriptionID}
	h.scan.target = "items"
	h.scan.onRecord = h.record
	return h
}

// SetUnread sets the unread flag given to the items inserted from now on.
func (h *ItemSyncHandler) SetUnread(unread bool) { h.unread = unread }

func (h *ItemSyncHandler) Begin(context.Context) error {
	h.seen = 0
	h.inserted = 0
	h.scan.reset()
	return nil
}

func (h *ItemSyncHandler) Handle(ctx context.Context, ev reader.Event) (bool, error) {
	return h.scan.Handle(ctx, ev)
}

func (h *ItemSyncHandler) End(context.Context) error { return nil }

// Seen is the number of item objects read on the last page.
func (h *ItemSyncHandler) Seen() int { return h.seen }

// Inserted is the number of items stored from the last page.
func (h *ItemSyncHandler) Inserted() int { return h.inserted }

// Done reports whether the last page ran into an item already stored.
func (h *ItemSyncHandler) Done() bool { return h.scan.done() }

func (h *ItemSyncHandler) record(ctx context.Context, rec record) (bool, error) {
	h.seen++

	id := rec.Int64("id")
	exists, err := h.store.ItemExists(ctx, h.subscriptionID, id)
	if err != nil {
		return false, fmt.Errorf("error checking item %d: %w", id, err)
	}
	if exists {
		return false, nil
	}

	item := reader.Item{
		ID:             id,
		SubscriptionID: h.subscriptionID,
		Title:          sanitizeTitle(rec.String("title")),
		Body:           sanitizeBody(rec.String("body")),
		Author:         sanitizeTitle(rec.String("author")),
		Link:           rec.String("link"),
		CreatedTime:    rec.Int64("created_on"),
		ModifiedTime:   rec.Int64("modified_on"),
		Unread:         h.unread,
	}
	if err := h.store.InsertItem(ctx, item); err != nil {
		return false, fmt.Errorf("error inserting item %d: %w", id, err)
	}

	h.inserted++
	return true, nil
}

// PinListSyncHandler replaces the local pin mirror with the remote list.
// Queued pin mutations are left alone.
type PinListSyncHandler struct {
	store reader.Store
	scan  scanner

	count int
}

func NewPinListSyncHandler(store reader.Store) *PinListSyncHandler {
	h := &PinListSyncHandler{store: store}
	h.scan.onRecord = h.record
	return h
}

func (h *PinListSyncHandler) Begin(ctx context.Context) error {
	h.count = 0
	h.scan.reset()
	if err := h.store.ClearPinMirror(ctx); err != nil {
		return fmt.Errorf("error clearing pin mirror: %w", err)
	}
	return nil
}

func (h *PinListSyncHandler) Handle(ctx context.Context, ev reader.Event) (bool, error) {
	return h.scan.Handle(ctx, ev)
}

func (h *PinListSyncHandler) End(context.Context) error { return nil }

// Count is the number of pins the remote list held.
func (h *PinListSyncHandler) Count() int { return h.count }

func (h *PinListSyncHandler) record(ctx context.Context, rec record) (bool, error) {
	pin := reader.Pin{
		URI:         rec.String("link"),
		Title:       rec.String("title"),
		Action:      reader.PinActionNone,
		CreatedTime: rec.Int64("created_on"),
	}
	if _, err := h.store.InsertPin(ctx, pin); err != nil {
		return false, fmt.Errorf("error inserting pin: %w", err)
	}

	h.count++
	return true, nil
}
