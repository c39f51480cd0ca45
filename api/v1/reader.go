// Package v1 holds the request and response bodies of the control API.
package v1

import (
	"net/url"
	"time"

	rserrs "github.com/jdholdren/readersync/internal/errors"
)

type StatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	LoginID       string `json:"login_id"`
	Subscriptions int    `json:"subscriptions"`
	Stale         int    `json:"stale"`
	Unread        int    `json:"unread"`
	QueuedPins    int    `json:"queued_pins"`
}

// Page describes which slice of a listing a response holds.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

type Subscription struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Link             string    `json:"link"`
	Folder           string    `json:"folder"`
	Rate             int       `json:"rate"`
	SubscribersCount int       `json:"subscribers_count"`
	UnreadCount      int       `json:"unread_count"`
	Stale            bool      `json:"stale"`
	HasIcon          bool      `json:"has_icon"`
	ModifiedAt       time.Time `json:"modified_at"`
}

type SubscriptionsResponse struct {
	Subscriptions []Subscription `json:"subscriptions"`
	Page          Page           `json:"page"`
}

type Item struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Author    string    `json:"author"`
	Link      string    `json:"link"`
	Unread    bool      `json:"unread"`
	CreatedAt time.Time `json:"created_at"`
}

type ItemsResponse struct {
	Items []Item `json:"items"`
	Page  Page   `json:"page"`
}

const (
	SyncScopeAll           = "all"
	SyncScopeSubscriptions = "subscriptions"
	SyncScopeItems         = "items"
)

type SyncRequest struct {
	// One of all, subscriptions or items. Empty means all.
	Scope          string `json:"scope"`
	SubscriptionID int64  `json:"subscription_id"`
	UnreadOnly     bool   `json:"unread_only"`
}

type SyncResponse struct {
	Count int `json:"count"`
	// Set when a batch finished but some subscriptions failed.
	Incomplete bool   `json:"incomplete"`
	Error      string `json:"error,omitempty"`
}

// Validate checks that the body (minus logic checks) is valid.
func (r SyncRequest) Validate() error {
	var details []rserrs.Detail
	switch r.Scope {
	case "", SyncScopeAll, SyncScopeSubscriptions:
	case SyncScopeItems:
		if r.SubscriptionID <= 0 {
			details = append(details, rserrs.Detail{Field: "subscription_id", Error: "subscription_id is required for the items scope"})
		}
	default:
		details = append(details, rserrs.Detail{Field: "scope", Error: "scope must be all, subscriptions or items"})
	}

	return invalid(details)
}

type Pin struct {
	URI       string    `json:"uri"`
	Title     string    `json:"title"`
	Queued    bool      `json:"queued"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

type PinsResponse struct {
	Pins []Pin `json:"pins"`
}

type PinRequest struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

func (r PinRequest) Validate() error {
	var details []rserrs.Detail
	if d, ok := validURI(r.URI); !ok {
		details = append(details, d)
	}

	return invalid(details)
}

type PinResponse struct {
	// What the reader answered. Always true while offline.
	Success bool `json:"success"`
}

type PinSyncResponse struct {
	Count int `json:"count"`
}

// ValidateURI checks a pin uri passed outside of a body.
func ValidateURI(uri string) error {
	if d, ok := validURI(uri); !ok {
		return invalid([]rserrs.Detail{d})
	}
	return nil
}

func validURI(uri string) (rserrs.Detail, bool) {
	if uri == "" {
		return rserrs.Detail{Field: "uri", Error: "uri is required"}, false
	}
	u, err := url.Parse(uri)
	if err != nil || !u.IsAbs() {
		return rserrs.Detail{Field: "uri", Error: "uri must be an absolute url"}, false
	}
	return rserrs.Detail{}, true
}

func invalid(details []rserrs.Detail) error {
	if len(details) == 0 {
		return nil
	}
	return rserrs.E(rserrs.KindInvalid, "request was invalid", details)
}
