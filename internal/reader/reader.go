// Package reader holds the domain types shared by the sync engine, the
// local store and the LDR client.
package reader

import (
	"errors"
)

var (
	ErrNotFound = errors.New("resource not found")
)

type (
	// Subscription is a feed the account is subscribed to on the remote service.
	//
	// A subscription whose ModifiedTime differs from its ItemSyncTime has remote
	// changes that have not been pulled yet.
	Subscription struct {
		ID               int64  `db:"id"`
		Title            string `db:"title"`
		Link             string `db:"link"`
		IconURI          string `db:"icon_uri"`
		Icon             []byte `db:"icon"`
		Folder           string `db:"folder"`
		Rate             int    `db:"rate"`
		SubscribersCount int    `db:"subscribers_count"`
		UnreadCount      int    `db:"unread_count"`
		ModifiedTime     int64  `db:"modified_time"`
		ItemSyncTime     int64  `db:"item_sync_time"`
	}

	// Item is a single article belonging to a subscription.
	Item struct {
		ID             int64  `db:"id"`
		SubscriptionID int64  `db:"subscription_id"`
		Title          string `db:"title"`
		Body           string `db:"body"`
		Author         string `db:"author"`
		Link           string `db:"link"`
		CreatedTime    int64  `db:"created_time"`
		ModifiedTime   int64  `db:"modified_time"`
		Unread         bool   `db:"unread"`
	}

	// Pin is a row of the pin action queue.
	//
	// Rows with ActionNone mirror the remote pin list, the others are queued
	// mutations that still have to be pushed.
	Pin struct {
		ID          int64     `db:"id"`
		URI         string    `db:"uri"`
		Title       string    `db:"title"`
		Action      PinAction `db:"action"`
		CreatedTime int64     `db:"created_time"`
	}
)

// Stale reports whether the subscription has remote changes not reflected locally.
func (s Subscription) Stale() bool {
	return s.ModifiedTime != s.ItemSyncTime
}

type PinAction int

const (
	PinActionNone PinAction = iota
	PinActionAdd
	PinActionRemove
)

func (a PinAction) String() string {
	switch a {
	case PinActionNone:
		return "none"
	case PinActionAdd:
		return "add"
	case PinActionRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Queued reports whether the row is an outbox row.
func (p Pin) Queued() bool {
	return p.Action > PinActionNone
}
