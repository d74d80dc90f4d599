package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/obsidianstack/siteuptime/reporter/internal/metrics"
)

// reportLink matches the per-service report link on the listing page.
var reportLink = regexp.MustCompile(`/users/reports\.php\?Id=(\d+)`)

// ServiceIDs returns the IDs of every monitored service in first-seen order.
//
// The listing keeps serving its last page for out-of-range page numbers, so
// paging stops at the first page that contributes no new ID.
func (c *Client) ServiceIDs(ctx context.Context) ([]int, error) {
	var ids []int
	seen := make(map[int]struct{})

	for page := 1; ; page++ {
		slog.Info("scraper: getting service ids", "page", page)

		target := c.endpoint(listingPath, url.Values{
			"OrderBy": {"Name"},
			"Page":    {strconv.Itoa(page)},
		})
		doc, err := c.fetch(ctx, metrics.KindListing, func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		})
		if err != nil {
			return nil, fmt.Errorf("scraper: listing page %d: %w", page, err)
		}

		added := 0
		for _, id := range parseServiceIDs(doc) {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
			added++
		}

		if added == 0 || c.debug {
			break
		}
	}

	slog.Info("scraper: service ids collected", "count", len(ids))
	return ids, nil
}

// parseServiceIDs extracts report-link IDs from a listing page in document
// order. Duplicates are kept; the caller de-duplicates across pages.
func parseServiceIDs(doc *goquery.Document) []int {
	var ids []int
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		m := reportLink.FindStringSubmatch(s.AttrOr("href", ""))
		if m == nil {
			return
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			return
		}
		ids = append(ids, id)
	})
	return ids
}
