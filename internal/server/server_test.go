package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/jdholdren/readersync/api/v1"
	rserrs "github.com/jdholdren/readersync/internal/errors"
	"github.com/jdholdren/readersync/internal/reader"
	"github.com/jdholdren/readersync/internal/sqlite"
	rsync "github.com/jdholdren/readersync/internal/sync"
)

type fakeEngine struct {
	syncErr  error
	synced   []string
	pinned   []string
	unpinned []string
}

func (e *fakeEngine) Sync(context.Context) (int, error) {
	e.synced = append(e.synced, "all")
	return 7, e.syncErr
}

func (e *fakeEngine) SyncSubscriptions(_ context.Context, unreadOnly bool) (int, error) {
	e.synced = append(e.synced, fmt.Sprintf("subscriptions unread=%t", unreadOnly))
	return 3, nil
}

func (e *fakeEngine) SyncItemsByID(_ context.Context, id int64, _ bool) (int, error) {
	e.synced = append(e.synced, fmt.Sprintf("items %d", id))
	if id == 404 {
		return 0, rserrs.E(rserrs.KindNotFound, reader.ErrNotFound)
	}
	return 2, nil
}

func (e *fakeEngine) Pin(_ context.Context, uri, _ string) (bool, error) {
	e.pinned = append(e.pinned, uri)
	return true, nil
}

func (e *fakeEngine) Unpin(_ context.Context, uri string) (bool, error) {
	e.unpinned = append(e.unpinned, uri)
	return false, nil
}

func (e *fakeEngine) PinClear(context.Context) (bool, error) { return true, nil }

func (e *fakeEngine) SyncPins(context.Context) (int, error) {
	return 0, rsync.ErrSyncInProgress
}

func (e *fakeEngine) Authenticated() bool { return true }
func (e *fakeEngine) LoginID() string     { return "alice" }

func newTestServer(t *testing.T) (*httptest.Server, *fakeEngine, sqlite.Repo) {
	t.Helper()

	dbx, err := sqlite.Open(filepath.Join(t.TempDir(), "reader.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbx.Close() })

	var (
		repo   = sqlite.New(dbx)
		engine = &fakeEngine{}
		srv    = httptest.NewServer(New(0, engine, repo).Handler)
	)
	t.Cleanup(srv.Close)

	return srv, engine, repo
}

func do(t *testing.T, method, url, body string, into any) int {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if into != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	}
	return resp.StatusCode
}

func TestGetStatus(t *testing.T) {
	var (
		ctx          = context.Background()
		srv, _, repo = newTestServer(t)
	)

	require.NoError(t, repo.InsertSubscription(ctx, reader.Subscription{ID: 1, ModifiedTime: 5}))
	require.NoError(t, repo.InsertSubscription(ctx, reader.Subscription{ID: 2, ModifiedTime: 5, ItemSyncTime: 5}))
	require.NoError(t, repo.InsertItem(ctx, reader.Item{SubscriptionID: 1, ID: 1, Unread: true}))
	_, err := repo.InsertPin(ctx, reader.Pin{URI: "http://a", Action: reader.PinActionAdd})
	require.NoError(t, err)

	var resp v1.StatusResponse
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/v1/status", "", &resp))
	assert.Equal(t, v1.StatusResponse{
		Authenticated: true,
		LoginID:       "alice",
		Subscriptions: 2,
		Stale:         1,
		Unread:        1,
		QueuedPins:    1,
	}, resp)
}

func TestPostSync(t *testing.T) {
	srv, engine, _ := newTestServer(t)

	var resp v1.SyncResponse
	assert.Equal(t, http.StatusOK, do(t, http.MethodPost, srv.URL+"/v1/sync", "", &resp))
	assert.Equal(t, 7, resp.Count)

	assert.Equal(t, http.StatusOK, do(t, http.MethodPost, srv.URL+"/v1/sync", `{"scope":"subscriptions","unread_only":true}`, &resp))
	assert.Equal(t, 3, resp.Count)

	assert.Equal(t, http.StatusOK, do(t, http.MethodPost, srv.URL+"/v1/sync", `{"scope":"items","subscription_id":9}`, &resp))
	assert.Equal(t, 2, resp.Count)

	assert.Equal(t, []string{"all", "subscriptions unread=true", "items 9"}, engine.synced)
}

func TestPostSyncIncomplete(t *testing.T) {
	srv, engine, _ := newTestServer(t)
	engine.syncErr = fmt.Errorf("%w: %w", rsync.ErrBatchIncomplete, rserrs.E(rserrs.KindMalformed, "bad page"))

	var resp v1.SyncResponse
	assert.Equal(t, http.StatusOK, do(t, http.MethodPost, srv.URL+"/v1/sync", "", &resp))
	assert.Equal(t, 7, resp.Count)
	assert.True(t, resp.Incomplete)
	assert.NotEmpty(t, resp.Error)
}

func TestPostSyncErrors(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var rErr rserrs.Error
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, srv.URL+"/v1/sync", `{"scope":"items"}`, &rErr))
	assert.Equal(t, rserrs.KindInvalid, rErr.Kind)
	require.Len(t, rErr.Details, 1)
	assert.Equal(t, "subscription_id", rErr.Details[0].Field)

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, srv.URL+"/v1/sync", `{"scope":`, &rErr))

	assert.Equal(t, http.StatusNotFound, do(t, http.MethodPost, srv.URL+"/v1/sync", `{"scope":"items","subscription_id":404}`, &rErr))
	assert.Equal(t, rserrs.KindNotFound, rErr.Kind)
}

func TestPins(t *testing.T) {
	var (
		ctx               = context.Background()
		srv, engine, repo = newTestServer(t)
	)

	_, err := repo.InsertPin(ctx, reader.Pin{URI: "http://a", Title: "A", CreatedTime: 1700000000})
	require.NoError(t, err)

	var pins v1.PinsResponse
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/v1/pins", "", &pins))
	require.Len(t, pins.Pins, 1)
	assert.Equal(t, "http://a", pins.Pins[0].URI)
	assert.False(t, pins.Pins[0].Queued)
	assert.EqualValues(t, 1700000000, pins.Pins[0].CreatedAt.Unix())

	var resp v1.PinResponse
	assert.Equal(t, http.StatusOK, do(t, http.MethodPost, srv.URL+"/v1/pins", `{"uri":"http://b","title":"B"}`, &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"http://b"}, engine.pinned)

	var rErr rserrs.Error
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, srv.URL+"/v1/pins", `{"uri":"not a url"}`, &rErr))

	assert.Equal(t, http.StatusOK, do(t, http.MethodDelete, srv.URL+"/v1/pins?uri=http%3A%2F%2Fb", "", &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, []string{"http://b"}, engine.unpinned)

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodDelete, srv.URL+"/v1/pins", "", &rErr))

	assert.Equal(t, http.StatusOK, do(t, http.MethodPost, srv.URL+"/v1/pins:clear", "", &resp))
	assert.True(t, resp.Success)
}

func TestPinsSyncConflict(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var rErr rserrs.Error
	assert.Equal(t, http.StatusConflict, do(t, http.MethodPost, srv.URL+"/v1/pins:sync", "", &rErr))
	assert.Equal(t, rserrs.KindConflict, rErr.Kind)
}

func TestListSubscriptionsAndItems(t *testing.T) {
	var (
		ctx          = context.Background()
		srv, _, repo = newTestServer(t)
	)

	for id := int64(1); id <= 3; id++ {
		require.NoError(t, repo.InsertSubscription(ctx, reader.Subscription{ID: id, Title: fmt.Sprintf("Feed %d", id)}))
	}
	for id := int64(1); id <= 5; id++ {
		require.NoError(t, repo.InsertItem(ctx, reader.Item{SubscriptionID: 2, ID: id, Title: fmt.Sprintf("Item %d", id), Unread: id > 3}))
	}

	var subs v1.SubscriptionsResponse
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/v1/subscriptions?limit=2&offset=1", "", &subs))
	assert.Equal(t, v1.Page{Limit: 2, Offset: 1, Total: 3}, subs.Page)
	require.Len(t, subs.Subscriptions, 2)
	assert.EqualValues(t, 2, subs.Subscriptions[0].ID)

	var items v1.ItemsResponse
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/v1/subscriptions/2/items?limit=2", "", &items))
	assert.Equal(t, 5, items.Page.Total)
	require.Len(t, items.Items, 2)
	assert.EqualValues(t, 5, items.Items[0].ID)
	assert.True(t, items.Items[0].Unread)

	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/v1/subscriptions/2/items?offset=10", "", &items))
	assert.Empty(t, items.Items)

	var rErr rserrs.Error
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, srv.URL+"/v1/subscriptions/9/items", "", &rErr))
}
