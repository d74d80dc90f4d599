package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/obsidianstack/siteuptime/pkg/types"
	"github.com/obsidianstack/siteuptime/reporter/internal/config"
	"github.com/obsidianstack/siteuptime/reporter/internal/retry"
)

const sessionCookie = "SITEUPTIME_SESSION"

// listingPage renders a services page linking to the given IDs, each twice as
// the real page does (name link and report icon).
func listingPage(ids ...int) string {
	var b strings.Builder
	b.WriteString("<html><body><table>\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "<tr><td><a href='/users/reports.php?Id=%d'>svc %d</a></td>", id, id)
		fmt.Fprintf(&b, "<td><a href=\"/users/reports.php?Id=%d&amp;Print=1\"><img src='r.gif'></a></td>", id)
		fmt.Fprintf(&b, "<td><a href='/users/edit.php?Id=%d'>edit</a></td></tr>\n", id+1000)
	}
	b.WriteString("</table></body></html>")
	return b.String()
}

// failurePage renders a FailuresHistory page in the dashboard's markup.
func failurePage(name string, rows ...[3]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><body><h2>Failure Log for %s</h2>\n<table>\n", name)
	b.WriteString("<tr><th>Date</th><th>Error</th><th>Response time</th></tr>\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "<tr>\n<td nowrap='nowrap'>%s</td>\n<td nowrap='nowrap'>%s</td>\n<td>%s</td>\n</tr>\n", r[0], r[1], r[2])
	}
	b.WriteString("</table></body></html>")
	return b.String()
}

// fakeSite is a minimal SiteUptime dashboard.
type fakeSite struct {
	mu sync.Mutex

	listing   map[int]string // page number -> HTML; missing pages repeat the last one
	lastPage  int
	services  map[string]string // UserServiceId -> HTML
	failFirst map[string]int    // UserServiceId -> number of 503s before success
	status    map[string]int    // UserServiceId -> fixed status

	pagesHit []string
	queries  []map[string]string
	agents   []string
}

func (f *fakeSite) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/login.php", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse login form: %v", err)
		}
		if r.PostForm.Get("Action") != "Login" || r.PostForm.Get("login") != "Login" {
			t.Errorf("login form missing Action/login: %v", r.PostForm)
		}
		if r.PostForm.Get("Email") == "ops@example.com" && r.PostForm.Get("Password") == "secret" {
			http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "abc123", Path: "/"})
		}
		_, _ = w.Write([]byte("<html><body>Welcome</body></html>"))
	})
	mux.HandleFunc("/users/services.php", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorised(r) {
			http.Error(w, "login required", http.StatusForbidden)
			return
		}
		f.mu.Lock()
		page := r.URL.Query().Get("Page")
		f.pagesHit = append(f.pagesHit, page)
		f.agents = append(f.agents, r.UserAgent())
		var n int
		fmt.Sscanf(page, "%d", &n)
		if n > f.lastPage {
			n = f.lastPage
		}
		body := f.listing[n]
		f.mu.Unlock()
		if r.URL.Query().Get("OrderBy") != "Name" {
			t.Errorf("listing OrderBy = %q", r.URL.Query().Get("OrderBy"))
		}
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/users/statistics.php", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorised(r) {
			http.Error(w, "login required", http.StatusForbidden)
			return
		}
		q := r.URL.Query()
		id := q.Get("UserServiceId")

		f.mu.Lock()
		defer f.mu.Unlock()
		f.queries = append(f.queries, map[string]string{
			"MonthYear": q.Get("MonthYear"), "Day": q.Get("Day"),
			"MonthYear2": q.Get("MonthYear2"), "Day2": q.Get("Day2"),
			"Action": q.Get("Action"), "UserServiceId": id,
		})
		if code, ok := f.status[id]; ok {
			http.Error(w, "nope", code)
			return
		}
		if f.failFirst[id] > 0 {
			f.failFirst[id]--
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(f.services[id]))
	})
	return mux
}

func (f *fakeSite) authorised(r *http.Request) bool {
	c, err := r.Cookie(sessionCookie)
	return err == nil && c.Value == "abc123"
}

func newTestClient(t *testing.T, srv *httptest.Server, password string, debug bool) *Client {
	t.Helper()
	site := config.SiteConfig{
		BaseURL:        srv.URL,
		Username:       "ops@example.com",
		UserAgent:      "siteuptime-test",
		RequestTimeout: 5 * time.Second,
		MaxRetries:     2,
		Debug:          debug,
	}
	c, err := New(site, password, WithRetryPolicy(retry.Policy{Retries: 2, Initial: time.Millisecond, Max: 2 * time.Millisecond}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

var march = types.NewWindow(
	time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
	time.Date(2024, time.March, 7, 0, 0, 0, 0, time.UTC),
)

func TestLogin(t *testing.T) {
	site := &fakeSite{}
	srv := httptest.NewServer(site.handler(t))
	defer srv.Close()

	if err := newTestClient(t, srv, "secret", false).Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	site := &fakeSite{}
	srv := httptest.NewServer(site.handler(t))
	defer srv.Close()

	err := newTestClient(t, srv, "wrong", false).Login(context.Background())
	if !errors.Is(err, ErrLoginFailed) {
		t.Errorf("Login err = %v, want ErrLoginFailed", err)
	}
}

func TestLogin_MissingPassword(t *testing.T) {
	site := &fakeSite{}
	srv := httptest.NewServer(site.handler(t))
	defer srv.Close()

	err := newTestClient(t, srv, "", false).Login(context.Background())
	if !errors.Is(err, ErrLoginFailed) {
		t.Errorf("Login err = %v, want ErrLoginFailed", err)
	}
}

func TestServiceIDs_PaginatesUntilNoNewIDs(t *testing.T) {
	site := &fakeSite{
		listing: map[int]string{
			1: listingPage(30, 10),
			2: listingPage(10, 20),
		},
		lastPage: 2,
	}
	srv := httptest.NewServer(site.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv, "secret", false)
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	ids, err := c.ServiceIDs(context.Background())
	if err != nil {
		t.Fatalf("ServiceIDs: %v", err)
	}

	want := []int{30, 10, 20}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	// Page 3 repeats page 2 and adds nothing, which ends the loop.
	if got := strings.Join(site.pagesHit, ","); got != "1,2,3" {
		t.Errorf("pages fetched = %s, want 1,2,3", got)
	}
	for _, ua := range site.agents {
		if ua != "siteuptime-test" {
			t.Errorf("User-Agent = %q", ua)
		}
	}
}

func TestServiceIDs_DebugStopsAfterFirstPage(t *testing.T) {
	site := &fakeSite{
		listing:  map[int]string{1: listingPage(1, 2), 2: listingPage(3)},
		lastPage: 2,
	}
	srv := httptest.NewServer(site.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv, "secret", true)
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	ids, err := c.ServiceIDs(context.Background())
	if err != nil {
		t.Fatalf("ServiceIDs: %v", err)
	}
	if fmt.Sprint(ids) != "[1 2]" {
		t.Errorf("ids = %v, want [1 2]", ids)
	}
	if len(site.pagesHit) != 1 {
		t.Errorf("pages fetched = %v, want only page 1", site.pagesHit)
	}
}

func TestServiceIDs_WithoutSessionFails(t *testing.T) {
	site := &fakeSite{listing: map[int]string{1: listingPage(1)}, lastPage: 1}
	srv := httptest.NewServer(site.handler(t))
	defer srv.Close()

	_, err := newTestClient(t, srv, "secret", false).ServiceIDs(context.Background())
	var serr *StatusError
	if !errors.As(err, &serr) || serr.Code != http.StatusForbidden {
		t.Fatalf("err = %v, want 403 StatusError", err)
	}
	if !retry.IsPermanent(err) {
		t.Errorf("403 must not be retried: %v", err)
	}
}

func TestFailures_ParsesRowsAndQuery(t *testing.T) {
	site := &fakeSite{
		services: map[string]string{
			"42": failurePage("Main &amp; API",
				[3]string{"03/03/2024 10:02", "Connection timed out", "30.000"},
				[3]string{"05/03/2024 22:40", "HTTP 500", "0.412"},
			),
		},
	}
	srv := httptest.NewServer(site.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv, "secret", false)
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	page, err := c.Failures(context.Background(), 42, march)
	if err != nil {
		t.Fatalf("Failures: %v", err)
	}

	if !page.Found || page.Name != "Main & API" || page.ID != 42 {
		t.Errorf("page = %+v", page)
	}
	want := []Failure{
		{Date: "03/03/2024 10:02", Error: "Connection timed out", ResponseTime: "30.000"},
		{Date: "05/03/2024 22:40", Error: "HTTP 500", ResponseTime: "0.412"},
	}
	if fmt.Sprint(page.Failures) != fmt.Sprint(want) {
		t.Errorf("failures = %+v, want %+v", page.Failures, want)
	}

	q := site.queries[0]
	wantQuery := map[string]string{
		"MonthYear": "2024-3", "Day": "1", "MonthYear2": "2024-3", "Day2": "7",
		"Action": "FailuresHistory", "UserServiceId": "42",
	}
	for k, v := range wantQuery {
		if q[k] != v {
			t.Errorf("query %s = %q, want %q", k, q[k], v)
		}
	}
}

func TestParseFailurePage_NoMarker(t *testing.T) {
	site := &fakeSite{services: map[string]string{"7": "<html><body><p>Please log in</p></body></html>"}}
	srv := httptest.NewServer(site.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv, "secret", false)
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	page, err := c.Failures(context.Background(), 7, march)
	if err != nil {
		t.Fatalf("Failures: %v", err)
	}
	if page.Found {
		t.Errorf("page without marker reported Found: %+v", page)
	}
}

func TestFailures_RetriesTransientStatus(t *testing.T) {
	site := &fakeSite{
		services:  map[string]string{"5": failurePage("flaky", [3]string{"d", "e", "1"})},
		failFirst: map[string]int{"5": 2},
	}
	srv := httptest.NewServer(site.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv, "secret", false)
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	page, err := c.Failures(context.Background(), 5, march)
	if err != nil {
		t.Fatalf("Failures after retries: %v", err)
	}
	if len(page.Failures) != 1 {
		t.Errorf("failures = %+v", page.Failures)
	}
	if len(site.queries) != 3 {
		t.Errorf("requests = %d, want 3", len(site.queries))
	}
}

func TestCollect_EmitsEventsAndSkipsBrokenServices(t *testing.T) {
	site := &fakeSite{
		listing:  map[int]string{1: listingPage(1, 2, 3, 4)},
		lastPage: 1,
		services: map[string]string{
			"1": failurePage("alpha", [3]string{"d1", "timeout", "30"}, [3]string{"d2", "refused", "0"}),
			"2": failurePage("beta"),
			"3": "<html><body>gone</body></html>",
		},
		// 4 keeps failing past the retry budget.
		failFirst: map[string]int{"4": 10},
	}
	srv := httptest.NewServer(site.handler(t))
	defer srv.Close()

	var events []types.Event
	err := newTestClient(t, srv, "secret", false).Collect(context.Background(), march, func(ev types.Event) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	want := []types.Event{
		types.ServiceDiscovered{ID: 1, Name: "alpha"},
		types.FailureObserved{ID: 1, Date: "d1", Error: "timeout", ResponseTime: "30"},
		types.FailureObserved{ID: 1, Date: "d2", Error: "refused", ResponseTime: "0"},
		types.ServiceDiscovered{ID: 2, Name: "beta"},
	}
	if fmt.Sprint(events) != fmt.Sprint(want) {
		t.Errorf("events = %v\nwant     %v", events, want)
	}
}

func TestCollect_LoginFailureIsFatal(t *testing.T) {
	site := &fakeSite{}
	srv := httptest.NewServer(site.handler(t))
	defer srv.Close()

	err := newTestClient(t, srv, "wrong", false).Collect(context.Background(), march, func(types.Event) {
		t.Error("no events expected")
	})
	if !errors.Is(err, ErrLoginFailed) {
		t.Errorf("err = %v, want ErrLoginFailed", err)
	}
}

func TestCollect_Cancelled(t *testing.T) {
	site := &fakeSite{
		listing:  map[int]string{1: listingPage(1, 2)},
		lastPage: 1,
		services: map[string]string{"1": failurePage("a"), "2": failurePage("b")},
	}
	srv := httptest.NewServer(site.handler(t))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	err := newTestClient(t, srv, "secret", false).Collect(ctx, march, func(types.Event) {
		n++
		cancel()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if n != 1 {
		t.Errorf("events = %d, want 1 before cancellation", n)
	}
}

func TestNew_RejectsRelativeBaseURL(t *testing.T) {
	if _, err := New(config.SiteConfig{BaseURL: "siteuptime.com"}, "pw"); err == nil {
		t.Error("expected error for base url without scheme")
	}
}
