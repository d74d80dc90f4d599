package scraper

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"github.com/obsidianstack/siteuptime/reporter/internal/config"
	"github.com/obsidianstack/siteuptime/reporter/internal/metrics"
	"github.com/obsidianstack/siteuptime/reporter/internal/retry"
)

const (
	loginPath      = "/users/login.php"
	listingPath    = "/users/services.php"
	statisticsPath = "/users/statistics.php"
)

// ErrLoginFailed is returned when the dashboard does not hand out a session.
var ErrLoginFailed = errors.New("scraper: login failed")

// StatusError is returned for a response other than 200 OK.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Client is an authenticated dashboard session. It is not safe for
// concurrent use; a run drives it from one goroutine.
type Client struct {
	base     *url.URL
	username string
	password string
	debug    bool
	policy   retry.Policy
	http     *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. A cookie jar is added if hc has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetryPolicy replaces the retry policy derived from max_retries.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// New returns a Client for the dashboard described by site. password is
// passed separately since it never lives in the config file.
func New(site config.SiteConfig, password string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(site.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("scraper: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("scraper: base url %q needs a scheme and host", site.BaseURL)
	}

	c := &Client{
		base:     base,
		username: site.Username,
		password: password,
		debug:    site.Debug,
		policy:   retry.DefaultPolicy(site.MaxRetries),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = buildHTTPClient(site)
	}
	if c.http.Jar == nil {
		jar, err := newJar()
		if err != nil {
			return nil, fmt.Errorf("scraper: cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

func newJar() (http.CookieJar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// userAgentRoundTripper sets the configured User-Agent on every request.
type userAgentRoundTripper struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent != "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs the http.Client for the site's TLS and timeout
// settings. The cookie jar is attached by New.
func buildHTTPClient(site config.SiteConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: site.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	return &http.Client{
		Transport: &userAgentRoundTripper{base: transport, userAgent: site.UserAgent},
		Timeout:   site.RequestTimeout,
	}
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}

// fetch performs one logical request of the given kind, retrying transient
// failures, and returns the parsed HTML document.
func (c *Client) fetch(ctx context.Context, kind string, build func(ctx context.Context) (*http.Request, error)) (*goquery.Document, error) {
	var doc *goquery.Document
	onRetry := func(n int, wait time.Duration, err error) {
		metrics.IncRetry(kind)
		slog.Warn("scraper: request failed, retrying",
			"kind", kind, "retry", n, "retry_in", wait, "err", err)
	}
	err := retry.Do(ctx, c.policy, onRetry, func(ctx context.Context) error {
		req, err := build(ctx)
		if err != nil {
			return retry.Permanent(err)
		}
		start := time.Now()
		d, err := c.roundTrip(req)
		metrics.ObserveRequest(kind, time.Since(start), err)
		if err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Client) roundTrip(req *http.Request) (*goquery.Document, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		serr := &StatusError{Code: resp.StatusCode, URL: req.URL.Path}
		if serr.Temporary() {
			return nil, serr
		}
		return nil, retry.Permanent(serr)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}
