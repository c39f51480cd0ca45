package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	rserrs "github.com/jdholdren/readersync/internal/errors"
	"github.com/jdholdren/readersync/internal/jsonstream"
	"github.com/jdholdren/readersync/internal/reader"
	"github.com/jdholdren/readersync/internal/sqlite"
)

// fakeClient serves canned JSON bodies through the real stream decoder.
type fakeClient struct {
	loginOK bool
	authed  bool
	logins  int

	subsPages   []string
	subsOffsets []int

	unread      map[int64]string
	unreadHook  func(id int64)
	unreadCalls []int64

	all        map[int64][]string
	allOffsets map[int64][]int

	pins       string
	pinResult  bool
	pinErr     error
	pinAdds    []string
	pinRemoves []string
	pinClears  int

	marked  []int64
	markErr map[int64]error

	icons      map[string][]byte
	iconFetchs int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		loginOK:    true,
		unread:     map[int64]string{},
		all:        map[int64][]string{},
		allOffsets: map[int64][]int{},
		pins:       `[]`,
		pinResult:  true,
		icons:      map[string][]byte{},
		markErr:    map[int64]error{},
	}
}

var _ reader.Client = (*fakeClient)(nil)

func (c *fakeClient) Login(context.Context, string, string) (bool, error) {
	c.logins++
	c.authed = c.loginOK
	return c.loginOK, nil
}

func (c *fakeClient) Logout(context.Context) error {
	c.authed = false
	return nil
}

func (c *fakeClient) Authenticated() bool { return c.authed }
func (c *fakeClient) LoginID() string     { return "alice" }

func (c *fakeClient) ListSubscriptions(ctx context.Context, _ bool, offset, _ int, h reader.StreamHandler) error {
	idx := len(c.subsOffsets)
	c.subsOffsets = append(c.subsOffsets, offset)
	body := `[]`
	if idx < len(c.subsPages) {
		body = c.subsPages[idx]
	}
	return jsonstream.Drive(ctx, strings.NewReader(body), h)
}

func (c *fakeClient) ListUnreadItems(ctx context.Context, id int64, h reader.StreamHandler) error {
	c.unreadCalls = append(c.unreadCalls, id)
	if c.unreadHook != nil {
		c.unreadHook(id)
	}
	body, ok := c.unread[id]
	if !ok {
		return rserrs.E(rserrs.KindTransport, "unexpected status code from /api/unread: 500")
	}
	return jsonstream.Drive(ctx, strings.NewReader(body), h)
}

func (c *fakeClient) ListAllItems(ctx context.Context, id int64, offset, _ int, h reader.StreamHandler) error {
	idx := len(c.allOffsets[id])
	c.allOffsets[id] = append(c.allOffsets[id], offset)
	body := `{"items":[]}`
	if idx < len(c.all[id]) {
		body = c.all[id][idx]
	}
	return jsonstream.Drive(ctx, strings.NewReader(body), h)
}

func (c *fakeClient) MarkAllRead(_ context.Context, id int64) error {
	c.marked = append(c.marked, id)
	return c.markErr[id]
}

func (c *fakeClient) PinAdd(_ context.Context, uri, _ string) (bool, error) {
	c.pinAdds = append(c.pinAdds, uri)
	return c.pinResult, c.pinErr
}

func (c *fakeClient) PinRemove(_ context.Context, uri string) (bool, error) {
	c.pinRemoves = append(c.pinRemoves, uri)
	return c.pinResult, c.pinErr
}

func (c *fakeClient) PinClear(context.Context) (bool, error) {
	c.pinClears++
	return c.pinResult, c.pinErr
}

func (c *fakeClient) ListPins(ctx context.Context, h reader.StreamHandler) error {
	return jsonstream.Drive(ctx, strings.NewReader(c.pins), h)
}

func (c *fakeClient) FetchBytes(_ context.Context, uri string) (io.ReadCloser, error) {
	c.iconFetchs++
	byts, ok := c.icons[uri]
	if !ok {
		return nil, rserrs.E(rserrs.KindTransport, "unexpected status code: 404")
	}
	return io.NopCloser(bytes.NewReader(byts)), nil
}

type fakeConn struct {
	online bool
}

func (c *fakeConn) Connected(context.Context) bool { return c.online }

// fakePacer never sleeps. It fails the pause numbered failAt (1-based) and
// runs hook, if set, on every pause.
type fakePacer struct {
	steps  []Step
	failAt int
	hook   func(step Step)
}

func (p *fakePacer) Pause(ctx context.Context, step Step) error {
	p.steps = append(p.steps, step)
	if p.hook != nil {
		p.hook(step)
	}
	if p.failAt > 0 && len(p.steps) == p.failAt {
		return context.Canceled
	}
	return ctx.Err()
}

type fixture struct {
	store  sqlite.Repo
	client *fakeClient
	conn   *fakeConn
	pacer  *fakePacer
	syncer *Syncer
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()

	dbx, err := sqlite.Open(filepath.Join(t.TempDir(), "reader.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbx.Close() })

	f := fixture{
		store:  sqlite.New(dbx),
		client: newFakeClient(),
		conn:   &fakeConn{online: true},
		pacer:  &fakePacer{},
	}
	f.syncer = NewSyncer(f.store, f.client, f.conn, f.pacer, nil, cfg)
	return f
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()

	byts, err := json.Marshal(v)
	require.NoError(t, err)
	return string(byts)
}

// subsPage lists n subscriptions with ids starting at first.
func subsPage(t *testing.T, first, n int, modified int64) string {
	subs := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		subs = append(subs, map[string]any{
			"subscribe_id":      fmt.Sprint(first + i),
			"title":             fmt.Sprintf("Feed %d", first+i),
			"link":              fmt.Sprintf("https://example.com/%d", first+i),
			"icon":              "",
			"folder":            "",
			"rate":              0,
			"unread_count":      1,
			"subscribers_count": 10,
			"modified_on":       modified,
		})
	}
	return mustJSON(t, subs)
}

// itemsPage is an item listing holding the given ids in order.
func itemsPage(t *testing.T, subID int64, ids ...int64) string {
	items := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		items = append(items, map[string]any{
			"id":          id,
			"title":       fmt.Sprintf("Item %d", id),
			"body":        "<p>body</p>",
			"author":      "someone",
			"link":        fmt.Sprintf("https://example.com/items/%d", id),
			"created_on":  1000 + id,
			"modified_on": 1000 + id,
			"category":    []string{"go", "feeds"},
		})
	}
	return mustJSON(t, map[string]any{
		"subscribe_id": subID,
		"channel":      map[string]any{"title": "Feed", "link": "https://example.com"},
		"items":        items,
	})
}

func idRange(from, n int64) []int64 {
	ids := make([]int64, 0, n)
	for i := int64(0); i < n; i++ {
		ids = append(ids, from-i)
	}
	return ids
}
