package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jdholdren/readersync/internal/reader"
)

// Pin queues an add for uri and pushes it right away when online.
//
// Offline, or while another process is flushing pins, the call succeeds once
// the mutation is queued. Online the reported flag is the remote's; the queued
// row becomes the mirror row either way. A failed remote call leaves the row
// queued for [Syncer.SyncPins].
func (s *Syncer) Pin(ctx context.Context, uri, title string) (bool, error) {
	ctx, done, err := s.queue(ctx, "pin")
	if err != nil {
		return false, err
	}
	defer done()

	if err := s.store.DeleteQueuedPins(ctx, uri); err != nil {
		return false, err
	}
	id, err := s.store.InsertPin(ctx, reader.Pin{
		URI:         uri,
		Title:       title,
		Action:      reader.PinActionAdd,
		CreatedTime: s.now().Unix(),
	})
	if err != nil {
		return false, err
	}

	if !s.conn.Connected(ctx) {
		slog.InfoContext(ctx, "offline, pin queued", "uri", uri)
		return true, nil
	}
	release, err := s.lease(ctx, pinLeaseName)
	if errors.Is(err, ErrSyncInProgress) {
		slog.InfoContext(ctx, "pins are being flushed elsewhere, pin queued", "uri", uri)
		return true, nil
	}
	if err != nil {
		return false, err
	}
	defer release()

	if err := s.authenticate(ctx); err != nil {
		return false, err
	}

	ok, err := s.client.PinAdd(ctx, uri, title)
	if err != nil {
		return false, fmt.Errorf("error adding pin: %w", err)
	}

	if err := s.store.DeleteMirrorPins(ctx, uri); err != nil {
		return ok, err
	}
	if err := s.store.SetPinAction(ctx, id, reader.PinActionNone); err != nil {
		return ok, err
	}

	return ok, nil
}

// Unpin is the removal counterpart of [Syncer.Pin]. Every local row for uri
// goes away at once.
func (s *Syncer) Unpin(ctx context.Context, uri string) (bool, error) {
	ctx, done, err := s.queue(ctx, "unpin")
	if err != nil {
		return false, err
	}
	defer done()

	if err := s.store.DeletePinsByURI(ctx, uri); err != nil {
		return false, err
	}
	id, err := s.store.InsertPin(ctx, reader.Pin{
		URI:         uri,
		Action:      reader.PinActionRemove,
		CreatedTime: s.now().Unix(),
	})
	if err != nil {
		return false, err
	}

	if !s.conn.Connected(ctx) {
		slog.InfoContext(ctx, "offline, unpin queued", "uri", uri)
		return true, nil
	}
	release, err := s.lease(ctx, pinLeaseName)
	if errors.Is(err, ErrSyncInProgress) {
		slog.InfoContext(ctx, "pins are being flushed elsewhere, unpin queued", "uri", uri)
		return true, nil
	}
	if err != nil {
		return false, err
	}
	defer release()

	if err := s.authenticate(ctx); err != nil {
		return false, err
	}

	ok, err := s.client.PinRemove(ctx, uri)
	if err != nil {
		return false, fmt.Errorf("error removing pin: %w", err)
	}
	if err := s.store.DeletePin(ctx, id); err != nil {
		return ok, err
	}

	return ok, nil
}

// PinClear clears the remote pin list and, if the remote agrees, every local pin row.
func (s *Syncer) PinClear(ctx context.Context) (bool, error) {
	ctx, done, err := s.begin(ctx, "pin_clear", &s.pins)
	if err != nil {
		return false, err
	}
	defer done()

	if err := s.authenticate(ctx); err != nil {
		return false, err
	}

	ok, err := s.client.PinClear(ctx)
	if err != nil {
		return false, fmt.Errorf("error clearing pins: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := s.store.ClearPins(ctx); err != nil {
		return true, err
	}

	return true, nil
}

// SyncPins pushes the queued pin mutations oldest first, then rebuilds the
// local mirror from the remote list. Returns the size of the remote list.
//
// A queued row is dropped once the remote answered, whatever it answered,
// unless strict flushing is on and the remote refused.
func (s *Syncer) SyncPins(ctx context.Context) (int, error) {
	ctx, done, err := s.begin(ctx, "sync_pins", &s.pins)
	if err != nil {
		return 0, err
	}
	defer done()

	if err := s.authenticate(ctx); err != nil {
		return 0, err
	}

	queued, err := s.store.QueuedPins(ctx)
	if err != nil {
		return 0, err
	}
	for _, pin := range queued {
		var ok bool
		switch pin.Action {
		case reader.PinActionAdd:
			ok, err = s.client.PinAdd(ctx, pin.URI, pin.Title)
		default:
			ok, err = s.client.PinRemove(ctx, pin.URI)
		}
		if err != nil {
			return 0, fmt.Errorf("error pushing queued %s of %s: %w", pin.Action, pin.URI, err)
		}

		if !ok && s.cfg.StrictPinFlush {
			slog.WarnContext(ctx, "remote refused queued pin, keeping it", "uri", pin.URI, "action", pin.Action.String())
			continue
		}
		if err := s.store.DeletePin(ctx, pin.ID); err != nil {
			return 0, err
		}
	}

	h := NewPinListSyncHandler(s.store)
	if err := s.client.ListPins(ctx, h); err != nil {
		return 0, fmt.Errorf("error listing pins: %w", err)
	}
	slog.DebugContext(ctx, "synced pins", "flushed", len(queued), "count", h.Count())

	return h.Count(), nil
}
