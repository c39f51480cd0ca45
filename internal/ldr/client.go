// Package ldr talks to the livedoor Reader JSON API.
package ldr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	rserrs "github.com/jdholdren/readersync/internal/errors"
	"github.com/jdholdren/readersync/internal/jsonstream"
	"github.com/jdholdren/readersync/internal/reader"
)

var _ reader.Client = (*Client)(nil)

type (
	Config struct {
		ReaderURL string
		LoginURL  string
		Timeout   time.Duration
		// How many times a request that failed in transit is tried again.
		Retries   uint64
		RetryBase time.Duration
	}

	// Client is safe for concurrent use, but a listing call holds on to the
	// session it started with even if Login or Logout happens meanwhile.
	Client struct {
		cfg       Config
		transport http.RoundTripper

		mu   sync.RWMutex
		sess *session
	}
)

const (
	DefaultReaderURL = "http://reader.livedoor.com"
	DefaultLoginURL  = "https://member.livedoor.com/login/index"
)

// New makes a client that is not logged in yet. A nil transport means
// [http.DefaultTransport].
func New(cfg Config, transport http.RoundTripper) *Client {
	if cfg.ReaderURL == "" {
		cfg.ReaderURL = DefaultReaderURL
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = DefaultLoginURL
	}
	cfg.ReaderURL = strings.TrimSuffix(cfg.ReaderURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}

	return &Client{
		cfg:       cfg,
		transport: transport,
	}
}

func (c *Client) ListSubscriptions(ctx context.Context, unreadOnly bool, offset, limit int, h reader.StreamHandler) error {
	unread := "0"
	if unreadOnly {
		unread = "1"
	}

	return c.stream(ctx, "/api/subs", url.Values{
		"unread": {unread},
		"offset": {strconv.Itoa(offset)},
		"limit":  {strconv.Itoa(limit)},
	}, h)
}

// ListUnreadItems streams the unread items of a subscription. The reader
// answers with a server error when there is nothing unread.
func (c *Client) ListUnreadItems(ctx context.Context, subscriptionID int64, h reader.StreamHandler) error {
	return c.stream(ctx, "/api/unread", url.Values{
		"subscribe_id": {strconv.FormatInt(subscriptionID, 10)},
	}, h)
}

func (c *Client) ListAllItems(ctx context.Context, subscriptionID int64, offset, limit int, h reader.StreamHandler) error {
	return c.stream(ctx, "/api/all", url.Values{
		"subscribe_id": {strconv.FormatInt(subscriptionID, 10)},
		"offset":       {strconv.Itoa(offset)},
		"limit":        {strconv.Itoa(limit)},
	}, h)
}

func (c *Client) ListPins(ctx context.Context, h reader.StreamHandler) error {
	return c.stream(ctx, "/api/pin/all", url.Values{}, h)
}

func (c *Client) MarkAllRead(ctx context.Context, subscriptionID int64) error {
	_, err := c.call(ctx, "/api/touch_all", url.Values{
		"subscribe_id": {strconv.FormatInt(subscriptionID, 10)},
	})
	return err
}

func (c *Client) PinAdd(ctx context.Context, uri, title string) (bool, error) {
	return c.call(ctx, "/api/pin/add", url.Values{
		"link":  {uri},
		"title": {title},
	})
}

func (c *Client) PinRemove(ctx context.Context, uri string) (bool, error) {
	return c.call(ctx, "/api/pin/remove", url.Values{
		"link": {uri},
	})
}

func (c *Client) PinClear(ctx context.Context) (bool, error) {
	return c.call(ctx, "/api/pin/clear", url.Values{})
}

// FetchBytes downloads an arbitrary resource, such as a feed icon. It works
// without a session.
func (c *Client) FetchBytes(ctx context.Context, uri string) (io.ReadCloser, error) {
	hc := &http.Client{Timeout: c.cfg.Timeout, Transport: c.transport}
	if s := c.session(); s != nil {
		hc = s.http
	}

	resp, err := c.do(ctx, hc, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

// Represents the status body of the mutating endpoints.
type statusResp struct {
	IsSuccess bool `json:"isSuccess"`
	ErrorCode int  `json:"ErrorCode"`
}

// call posts to an endpoint answering with a status body and reports its success flag.
func (c *Client) call(ctx context.Context, path string, form url.Values) (bool, error) {
	resp, err := c.post(ctx, path, form)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	var status statusResp
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, rserrs.E(rserrs.KindMalformed, fmt.Errorf("error decoding %s response: %w", path, err))
	}

	return status.IsSuccess, nil
}

// stream posts to a listing endpoint and drives h over the response body.
func (c *Client) stream(ctx context.Context, path string, form url.Values, h reader.StreamHandler) error {
	resp, err := c.post(ctx, path, form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := jsonstream.Drive(ctx, resp.Body, h); err != nil {
		return fmt.Errorf("error streaming %s: %w", path, err)
	}

	return nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	s, err := c.requireSession()
	if err != nil {
		return nil, err
	}
	form.Set("ApiKey", s.apiKey)

	return c.do(ctx, s.http, http.MethodPost, c.cfg.ReaderURL+path, form)
}

// do sends a request and hands back the response once a 200 arrives. Network
// failures and gateway errors are retried; the body is never read here, so a
// retry can never replay half a stream.
func (c *Client) do(ctx context.Context, hc *http.Client, method, uri string, form url.Values) (*http.Response, error) {
	var resp *http.Response
	backoff := retry.WithMaxRetries(c.cfg.Retries, retry.NewFibonacci(c.cfg.RetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, uri, body)
		if err != nil {
			return rserrs.E(rserrs.KindInvalid, fmt.Errorf("error creating request: %w", err))
		}
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		r, err := hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(rserrs.E(rserrs.KindTransport, fmt.Errorf("error requesting %s: %w", req.URL.Path, err)))
		}

		switch r.StatusCode {
		case http.StatusOK:
			resp = r
			return nil
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			drain(r)
			return retry.RetryableError(statusErr(req, r))
		default:
			drain(r)
			return statusErr(req, r)
		}
	})
	if err != nil {
		var rErr *rserrs.Error
		if !errors.As(err, &rErr) {
			return nil, rserrs.E(rserrs.KindTransport, err)
		}
		return nil, err
	}

	return resp, nil
}

func statusErr(req *http.Request, resp *http.Response) error {
	return rserrs.E(rserrs.KindTransport, fmt.Errorf("unexpected status code from %s: %d", req.URL.Path, resp.StatusCode))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
