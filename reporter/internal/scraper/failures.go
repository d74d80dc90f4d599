package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/obsidianstack/siteuptime/pkg/types"
	"github.com/obsidianstack/siteuptime/reporter/internal/metrics"
)

// failureLogMarker introduces the service name on a failure-history page.
var failureLogMarker = regexp.MustCompile(`(?s)Failure Log for\s+(.+)`)

// Failure is one row of a failure-history table.
type Failure struct {
	Date         string
	Error        string
	ResponseTime string
}

// ServicePage is the parsed failure-history page of one service.
type ServicePage struct {
	ID   int
	Name string
	// Found is false when the page carries no "Failure Log for" marker, e.g.
	// a deleted service or an expired session.
	Found    bool
	Failures []Failure
}

// Failures fetches and parses the failure history of service id over win.
func (c *Client) Failures(ctx context.Context, id int, win types.Window) (*ServicePage, error) {
	target := c.endpoint(statisticsPath, statisticsQuery(id, win))
	doc, err := c.fetch(ctx, metrics.KindFailures, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: failures for service %d: %w", id, err)
	}

	page := parseFailurePage(doc)
	page.ID = id
	return page, nil
}

// statisticsQuery builds the FailuresHistory query for a window. Months and
// days are not zero-padded.
func statisticsQuery(id int, win types.Window) url.Values {
	return url.Values{
		"MonthYear":     {fmt.Sprintf("%d-%d", win.Start.Year(), int(win.Start.Month()))},
		"Day":           {strconv.Itoa(win.Start.Day())},
		"MonthYear2":    {fmt.Sprintf("%d-%d", win.End.Year(), int(win.End.Month()))},
		"Day2":          {strconv.Itoa(win.End.Day())},
		"Action":        {"FailuresHistory"},
		"UserServiceId": {strconv.Itoa(id)},
	}
}

// parseFailurePage reads the service name and the failure rows.
//
// Rows are read as a cell stream: each nowrap cell fills the next of date and
// error, and the cell after those two is the response time whatever its
// attributes. Empty cells are skipped.
func parseFailurePage(doc *goquery.Document) *ServicePage {
	page := &ServicePage{}
	page.Name, page.Found = serviceName(doc)
	if !page.Found {
		return page
	}

	var cells [3]string
	n := 0
	doc.Find("td").Each(func(_ int, s *goquery.Selection) {
		_, nowrap := s.Attr("nowrap")
		if !nowrap && n != 2 {
			return
		}
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		cells[n] = text
		n++
		if n == 3 {
			page.Failures = append(page.Failures, Failure{Date: cells[0], Error: cells[1], ResponseTime: cells[2]})
			n = 0
		}
	})
	return page
}

// serviceName finds the text node carrying the failure-log marker.
func serviceName(doc *goquery.Document) (string, bool) {
	var name string
	found := false
	doc.Find("*").Contents().EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) != "#text" {
			return true
		}
		m := failureLogMarker.FindStringSubmatch(s.Text())
		if m == nil {
			return true
		}
		name = strings.Join(strings.Fields(m[1]), " ")
		found = name != ""
		return !found
	})
	return name, found
}
