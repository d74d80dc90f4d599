package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/obsidianstack/siteuptime/reporter/internal/metrics"
)

// Login posts the account credentials and keeps the session cookie. It fails
// with ErrLoginFailed when the dashboard answers without setting a cookie.
func (c *Client) Login(ctx context.Context) error {
	if c.username == "" || c.password == "" {
		return fmt.Errorf("%w: username and password are required", ErrLoginFailed)
	}

	form := url.Values{
		"Email":    {c.username},
		"Password": {c.password},
		"Action":   {"Login"},
		"login":    {"Login"},
	}
	target := c.endpoint(loginPath, nil)

	_, err := c.fetch(ctx, metrics.KindLogin, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("scraper: login: %w", err)
	}

	if len(c.http.Jar.Cookies(c.base)) == 0 {
		return fmt.Errorf("%w: no session cookie for %s", ErrLoginFailed, c.username)
	}
	slog.Info("scraper: logged in", "user", c.username, "site", c.base.Host)
	return nil
}
