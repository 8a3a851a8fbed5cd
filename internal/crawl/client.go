package crawl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/albapepper/courtwatch/internal/slot"
)

const userAgent = "courtwatch/1.0"

// Client fetches per-day availability over HTTP. It implements Fetcher
// against the availability endpoint the booking gateway exposes: a POST of
// (facility, date) form fields answered with a JSON slot list.
//
// One shared limiter paces all requests so the harness's burst concurrency
// never hammers the upstream site.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a crawl client. rps bounds the request rate across all
// concurrent fetches; timeout applies per request.
func NewClient(baseURL string, rps float64, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// FetchDay retrieves the open slots for one facility and date. An empty
// list is a valid answer; any transport or decode problem is an error the
// harness classifies by kind.
func (c *Client) FetchDay(ctx context.Context, facilityID, dateKey string) ([]slot.Slot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("rid", facilityID)
	form.Set("dateVal", dateKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/times", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s %s: status %d", facilityID, dateKey, resp.StatusCode)
	}

	var slots []slot.Slot
	if err := json.NewDecoder(resp.Body).Decode(&slots); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	return slots, nil
}

// FetchFacilities retrieves the facility catalogue for cache refreshes.
func (c *Client) FetchFacilities(ctx context.Context) (map[string]Facility, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/facilities", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch facilities: status %d", resp.StatusCode)
	}

	var out map[string]Facility
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode facilities: %w", err)
	}
	for id, f := range out {
		if f.ID == "" {
			f.ID = id
			out[id] = f
		}
	}
	return out, nil
}
