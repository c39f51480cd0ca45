package reader

import (
	"context"
	"io"
	"time"
)

type (
	// Store is the local mirror of the remote account.
	//
	// Nothing here spans tables in a transaction; every call stands alone.
	Store interface {
		// UpdateSubscription overwrites the remote-owned fields of an existing
		// subscription. The unread count, icon and item watermark are left alone.
		// Returns the number of rows touched.
		UpdateSubscription(ctx context.Context, sub Subscription) (int64, error)
		InsertSubscription(ctx context.Context, sub Subscription) error
		Subscription(ctx context.Context, id int64) (Subscription, error)
		Subscriptions(ctx context.Context) ([]Subscription, error)
		StaleSubscriptions(ctx context.Context) ([]Subscription, error)
		// MarkItemsSynced writes the item watermark and the cached unread count.
		MarkItemsSynced(ctx context.Context, id int64, syncTime int64, unreadCount int) error

		ItemExists(ctx context.Context, subscriptionID, id int64) (bool, error)
		InsertItem(ctx context.Context, item Item) error
		// Items returns the stored items of a subscription, newest first.
		Items(ctx context.Context, subscriptionID int64) ([]Item, error)
		CountUnreadItems(ctx context.Context, subscriptionID int64) (int, error)
		CountAllUnreadItems(ctx context.Context) (int, error)

		InsertPin(ctx context.Context, pin Pin) (int64, error)
		Pins(ctx context.Context) ([]Pin, error)
		// QueuedPins returns outbox rows oldest first.
		QueuedPins(ctx context.Context) ([]Pin, error)
		SetPinAction(ctx context.Context, id int64, action PinAction) error
		DeletePin(ctx context.Context, id int64) error
		DeleteQueuedPins(ctx context.Context, uri string) error
		DeleteMirrorPins(ctx context.Context, uri string) error
		DeletePinsByURI(ctx context.Context, uri string) error
		// ClearPinMirror drops every mirror row, leaving the outbox untouched.
		ClearPinMirror(ctx context.Context) error
		ClearPins(ctx context.Context) error

		// AcquireLease takes the named lease for holder until ttl elapses.
		// Returns false when someone else holds an unexpired lease.
		AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
		ReleaseLease(ctx context.Context, name, holder string) error
	}

	// Client is the remote LDR API.
	//
	// Listing calls push the decoded response through the handler; they return
	// once the stream ends, the handler stops it, or something fails.
	Client interface {
		Login(ctx context.Context, loginID, password string) (bool, error)
		Logout(ctx context.Context) error
		Authenticated() bool
		LoginID() string

		ListSubscriptions(ctx context.Context, unreadOnly bool, offset, limit int, h StreamHandler) error
		ListUnreadItems(ctx context.Context, subscriptionID int64, h StreamHandler) error
		ListAllItems(ctx context.Context, subscriptionID int64, offset, limit int, h StreamHandler) error
		MarkAllRead(ctx context.Context, subscriptionID int64) error

		PinAdd(ctx context.Context, uri, title string) (bool, error)
		PinRemove(ctx context.Context, uri string) (bool, error)
		PinClear(ctx context.Context) (bool, error)
		ListPins(ctx context.Context, h StreamHandler) error

		FetchBytes(ctx context.Context, uri string) (io.ReadCloser, error)
	}

	// Connectivity tells whether the device can currently reach the network.
	Connectivity interface {
		Connected(ctx context.Context) bool
	}
)
