package ldr

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	rserrs "github.com/jdholdren/readersync/internal/errors"
)

// The reader hands out its api key as this cookie once the login cookie is set.
const sessionCookie = "reader_sid"

// session is everything that only exists while logged in.
type session struct {
	loginID string
	apiKey  string
	http    *http.Client
}

// Login signs in with the livedoor credentials and opens a new session.
//
// A refused login is reported as false with no error; the previous session,
// if any, is dropped either way.
func (c *Client) Login(ctx context.Context, loginID, password string) (bool, error) {
	c.mu.Lock()
	c.sess = nil
	c.mu.Unlock()

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return false, fmt.Errorf("error creating cookie jar: %s", err)
	}
	hc := &http.Client{
		Timeout:   c.cfg.Timeout,
		Transport: c.transport,
		Jar:       jar,
	}

	form := url.Values{
		"livedoor_id": {loginID},
		"password":    {password},
		".next":       {c.cfg.ReaderURL + "/reader/"},
	}
	resp, err := c.do(ctx, hc, http.MethodPost, c.cfg.LoginURL, form)
	if err != nil {
		return false, fmt.Errorf("error posting login: %w", err)
	}
	drain(resp)

	// Visiting the reader trades the login cookie for the session cookie.
	resp, err = c.do(ctx, hc, http.MethodGet, c.cfg.ReaderURL+"/reader/", nil)
	if err != nil {
		return false, fmt.Errorf("error opening reader: %w", err)
	}
	drain(resp)

	readerURL, err := url.Parse(c.cfg.ReaderURL)
	if err != nil {
		return false, rserrs.E(rserrs.KindInvalid, fmt.Errorf("error parsing reader url: %w", err))
	}
	apiKey := ""
	for _, cookie := range jar.Cookies(readerURL) {
		if cookie.Name == sessionCookie {
			apiKey = cookie.Value
		}
	}
	if strings.TrimSpace(apiKey) == "" {
		return false, nil
	}

	c.mu.Lock()
	c.sess = &session{loginID: loginID, apiKey: apiKey, http: hc}
	c.mu.Unlock()

	return true, nil
}

// Logout forgets the session. The remote is not told.
func (c *Client) Logout(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sess = nil
	return nil
}

func (c *Client) Authenticated() bool {
	return c.session() != nil
}

// LoginID returns the id of the logged in account, or empty.
func (c *Client) LoginID() string {
	if s := c.session(); s != nil {
		return s.loginID
	}
	return ""
}

func (c *Client) session() *session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.sess
}

func (c *Client) requireSession() (*session, error) {
	s := c.session()
	if s == nil {
		return nil, rserrs.E(rserrs.KindAuthRequired, "not logged in")
	}
	return s, nil
}
