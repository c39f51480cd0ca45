// Package server is the local control API: status, manual syncs and pins.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	v1 "github.com/jdholdren/readersync/api/v1"
	rserrs "github.com/jdholdren/readersync/internal/errors"
	"github.com/jdholdren/readersync/internal/reader"
	"github.com/jdholdren/readersync/internal/serverutil"
	rsync "github.com/jdholdren/readersync/internal/sync"
)

type (
	// Engine is the part of the syncer the API drives.
	Engine interface {
		Sync(ctx context.Context) (int, error)
		SyncSubscriptions(ctx context.Context, unreadOnly bool) (int, error)
		SyncItemsByID(ctx context.Context, id int64, unreadOnly bool) (int, error)
		Pin(ctx context.Context, uri, title string) (bool, error)
		Unpin(ctx context.Context, uri string) (bool, error)
		PinClear(ctx context.Context) (bool, error)
		SyncPins(ctx context.Context) (int, error)
		Authenticated() bool
		LoginID() string
	}

	Server struct {
		*http.Server

		engine Engine
		store  reader.Store
	}
)

func New(port int, engine Engine, store reader.Store) *Server {
	r := serverutil.ErrRouter{Router: mux.NewRouter()}

	s := &Server{
		engine: engine,
		store:  store,
		Server: &http.Server{
			Addr:        fmt.Sprintf(":%d", port),
			ReadTimeout: 5 * time.Second,
			// Syncs run inside the request.
			WriteTimeout: 10 * time.Minute,
			Handler:      handlers.RecoveryHandler()(r),
		},
	}

	r.Use(serverutil.AccessLogMiddleware)
	r.HandleFuncE("/v1/status", s.getStatus).Methods(http.MethodGet)
	r.HandleFuncE("/v1/sync", s.postSync).Methods(http.MethodPost)
	r.HandleFuncE("/v1/subscriptions", s.getSubscriptions).Methods(http.MethodGet)
	r.HandleFuncE("/v1/subscriptions/{id:[0-9]+}/items", s.getItems).Methods(http.MethodGet)
	r.HandleFuncE("/v1/pins", s.getPins).Methods(http.MethodGet)
	r.HandleFuncE("/v1/pins", s.postPin).Methods(http.MethodPost)
	r.HandleFuncE("/v1/pins", s.deletePin).Methods(http.MethodDelete)
	r.HandleFuncE("/v1/pins:sync", s.postPinsSync).Methods(http.MethodPost)
	r.HandleFuncE("/v1/pins:clear", s.postPinsClear).Methods(http.MethodPost)

	slog.Debug("configured control server", "port", port)

	return s
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	subs, err := s.store.Subscriptions(ctx)
	if err != nil {
		return err
	}
	stale, err := s.store.StaleSubscriptions(ctx)
	if err != nil {
		return err
	}
	unread, err := s.store.CountAllUnreadItems(ctx)
	if err != nil {
		return err
	}
	queued, err := s.store.QueuedPins(ctx)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, v1.StatusResponse{
		Authenticated: s.engine.Authenticated(),
		LoginID:       s.engine.LoginID(),
		Subscriptions: len(subs),
		Stale:         len(stale),
		Unread:        unread,
		QueuedPins:    len(queued),
	})
}

func (s *Server) postSync(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	req := v1.SyncRequest{Scope: v1.SyncScopeAll}
	if r.ContentLength != 0 {
		var err error
		if req, err = serverutil.DecodeValid[v1.SyncRequest](r.Body); err != nil {
			return err
		}
	}

	var (
		n   int
		err error
	)
	switch req.Scope {
	case v1.SyncScopeSubscriptions:
		n, err = s.engine.SyncSubscriptions(ctx, req.UnreadOnly)
	case v1.SyncScopeItems:
		n, err = s.engine.SyncItemsByID(ctx, req.SubscriptionID, req.UnreadOnly)
	default:
		n, err = s.engine.Sync(ctx)
	}

	resp := v1.SyncResponse{Count: n}
	if errors.Is(err, rsync.ErrBatchIncomplete) {
		resp.Incomplete = true
		resp.Error = err.Error()
	} else if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) getSubscriptions(w http.ResponseWriter, r *http.Request) error {
	subs, err := s.store.Subscriptions(r.Context())
	if err != nil {
		return err
	}

	limit, offset := parsePaginationParams(r, 50, 500)
	subs, meta := page(subs, limit, offset)

	resp := v1.SubscriptionsResponse{Subscriptions: make([]v1.Subscription, 0, len(subs)), Page: meta}
	for _, sub := range subs {
		resp.Subscriptions = append(resp.Subscriptions, v1.Subscription{
			ID:               sub.ID,
			Title:            sub.Title,
			Link:             sub.Link,
			Folder:           sub.Folder,
			Rate:             sub.Rate,
			SubscribersCount: sub.SubscribersCount,
			UnreadCount:      sub.UnreadCount,
			Stale:            sub.Stale(),
			HasIcon:          len(sub.Icon) > 0,
			ModifiedAt:       time.Unix(sub.ModifiedTime, 0).UTC(),
		})
	}

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) getItems(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return rserrs.E(rserrs.KindInvalid, fmt.Errorf("error parsing subscription id: %w", err))
	}
	if _, err := s.store.Subscription(ctx, id); errors.Is(err, reader.ErrNotFound) {
		return rserrs.E(rserrs.KindNotFound, fmt.Sprintf("subscription %d not found", id))
	} else if err != nil {
		return err
	}

	items, err := s.store.Items(ctx, id)
	if err != nil {
		return err
	}

	limit, offset := parsePaginationParams(r, 50, 500)
	items, meta := page(items, limit, offset)

	resp := v1.ItemsResponse{Items: make([]v1.Item, 0, len(items)), Page: meta}
	for _, item := range items {
		resp.Items = append(resp.Items, v1.Item{
			ID:        item.ID,
			Title:     item.Title,
			Body:      item.Body,
			Author:    item.Author,
			Link:      item.Link,
			Unread:    item.Unread,
			CreatedAt: time.Unix(item.CreatedTime, 0).UTC(),
		})
	}

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) getPins(w http.ResponseWriter, r *http.Request) error {
	pins, err := s.store.Pins(r.Context())
	if err != nil {
		return err
	}

	resp := v1.PinsResponse{Pins: make([]v1.Pin, 0, len(pins))}
	for _, p := range pins {
		resp.Pins = append(resp.Pins, apiPin(p))
	}

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

func apiPin(p reader.Pin) v1.Pin {
	return v1.Pin{
		URI:       p.URI,
		Title:     p.Title,
		Queued:    p.Queued(),
		Action:    p.Action.String(),
		CreatedAt: time.Unix(p.CreatedTime, 0).UTC(),
	}
}

func (s *Server) postPin(w http.ResponseWriter, r *http.Request) error {
	req, err := serverutil.DecodeValid[v1.PinRequest](r.Body)
	if err != nil {
		return err
	}

	ok, err := s.engine.Pin(r.Context(), req.URI, req.Title)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, v1.PinResponse{Success: ok})
}

func (s *Server) deletePin(w http.ResponseWriter, r *http.Request) error {
	uri := r.URL.Query().Get("uri")
	if err := v1.ValidateURI(uri); err != nil {
		return err
	}

	ok, err := s.engine.Unpin(r.Context(), uri)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, v1.PinResponse{Success: ok})
}

func (s *Server) postPinsSync(w http.ResponseWriter, r *http.Request) error {
	n, err := s.engine.SyncPins(r.Context())
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, v1.PinSyncResponse{Count: n})
}

func (s *Server) postPinsClear(w http.ResponseWriter, r *http.Request) error {
	ok, err := s.engine.PinClear(r.Context())
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, v1.PinResponse{Success: ok})
}
