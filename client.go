package main

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
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultBaseURL = "https://api.cloudflare.com/client/v4/"

	// Cloudflare rejects fractional seconds in since/until.
	apiTimeLayout = "2006-01-02T15:04:05Z"

	firewallPageSize = 50
	maxFirewallPages = 100
)

var dnsDimensions = []string{"queryName", "responseCode", "origin", "tcp", "ipVersion"}

var (
	ErrZoneNotFound = errors.New("zone not found")
	ErrTooManyPages = errors.New("firewall events exceeded page limit")
)

type APIClient struct {
	httpClient *http.Client
	baseURL    string
	authKey    string
	maxPages   int
}

func NewAPIClient(cfg *Config) *APIClient {
	return &APIClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultBaseURL,
		authKey:    cfg.AuthKey,
		maxPages:   maxFirewallPages,
	}
}

// APIError is one entry of the errors array Cloudflare returns alongside
// success=false.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e APIError) String() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// ProviderError is returned when Cloudflare answers with success=false.
type ProviderError struct {
	Errors []APIError
}

func (e *ProviderError) Error() string {
	if len(e.Errors) == 0 {
		return "cloudflare request failed"
	}
	msgs := make([]string, len(e.Errors))
	for i, apiErr := range e.Errors {
		msgs[i] = apiErr.String()
	}
	return "cloudflare request failed: " + strings.Join(msgs, "; ")
}

type apiResponse struct {
	Success bool       `json:"success"`
	Errors  []APIError `json:"errors"`
}

func (r apiResponse) err() error {
	if r.Success {
		return nil
	}
	return &ProviderError{Errors: r.Errors}
}

// get issues an authenticated GET against the v4 API and decodes the JSON
// body into out. Non-2xx statuses are not errors here: Cloudflare reports
// failures in the response envelope.
func (c *APIClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.authKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response (HTTP %d): %w", resp.StatusCode, err)
	}
	return nil
}

// --- zones: name to id lookup ---

type zonesResponse struct {
	apiResponse
	Result []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"result"`
}

func (c *APIClient) ResolveZoneID(ctx context.Context, name string) (string, error) {
	var resp zonesResponse
	if err := c.get(ctx, "zones?name="+url.QueryEscape(name), &resp); err != nil {
		return "", fmt.Errorf("list zones: %w", err)
	}

	if len(resp.Result) == 0 {
		if len(resp.Errors) > 0 {
			return "", &ProviderError{Errors: resp.Errors}
		}
		return "", fmt.Errorf("%w: %s", ErrZoneNotFound, name)
	}
	return resp.Result[0].ID, nil
}

// --- dns_analytics/report: query counts per record ---

type dnsReportResponse struct {
	apiResponse
	Result DNSReport `json:"result"`
}

type DNSReport struct {
	Rows  int            `json:"rows"`
	Data  []DNSReportRow `json:"data"`
	Query struct {
		Dimensions []string `json:"dimensions"`
		Metrics    []string `json:"metrics"`
	} `json:"query"`
}

// DNSReportRow holds label values in the order of the report's dimensions.
// Values are strings, booleans (tcp) or numbers depending on the dimension.
type DNSReportRow struct {
	Dimensions []interface{} `json:"dimensions"`
	Metrics    []float64     `json:"metrics"`
}

func (c *APIClient) FetchDNSReport(ctx context.Context, zoneID string, since, until time.Time) (*DNSReport, error) {
	q := url.Values{}
	q.Set("metrics", "queryCount")
	q.Set("dimensions", strings.Join(dnsDimensions, ","))
	q.Set("since", since.UTC().Format(apiTimeLayout))
	q.Set("until", until.UTC().Format(apiTimeLayout))

	var resp dnsReportResponse
	if err := c.get(ctx, "zones/"+zoneID+"/dns_analytics/report?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("dns analytics report: %w", err)
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

// --- security/events: firewall events, cursor paginated ---

type FirewallEvent struct {
	RayID      string `json:"ray_id"`
	Kind       string `json:"kind"`
	Source     string `json:"source"`
	Action     string `json:"action"`
	RuleID     string `json:"rule_id"`
	IP         string `json:"ip"`
	IPClass    string `json:"ip_class"`
	Country    string `json:"country"`
	Colo       string `json:"colo"`
	Host       string `json:"host"`
	Method     string `json:"method"`
	URI        string `json:"uri"`
	OccurredAt string `json:"occurred_at"`
}

type firewallEventsResponse struct {
	apiResponse
	Result     []FirewallEvent `json:"result"`
	ResultInfo struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
	} `json:"result_info"`
}

// FetchFirewallEvents follows the after cursor until Cloudflare returns an
// empty page or no further cursor, and returns the non-empty pages in order.
func (c *APIClient) FetchFirewallEvents(ctx context.Context, zoneID string, since, until time.Time) ([][]FirewallEvent, error) {
	var pages [][]FirewallEvent
	cursor := ""

	for {
		if len(pages) >= c.maxPages {
			return nil, fmt.Errorf("%w (%d pages)", ErrTooManyPages, c.maxPages)
		}

		q := url.Values{}
		q.Set("kind", "firewall")
		q.Set("per_page", strconv.Itoa(firewallPageSize))
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		q.Set("since", since.UTC().Format(apiTimeLayout))
		q.Set("until", until.UTC().Format(apiTimeLayout))

		var resp firewallEventsResponse
		if err := c.get(ctx, "zones/"+zoneID+"/security/events?"+q.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("security events: %w", err)
		}
		if err := resp.err(); err != nil {
			return nil, err
		}

		if len(resp.Result) == 0 {
			return pages, nil
		}
		pages = append(pages, resp.Result)
		cursor = resp.ResultInfo.Cursors.After

		log.WithFields(log.Fields{
			"zone":   zoneID,
			"events": len(resp.Result),
			"cursor": cursor,
		}).Info("Page finished")

		if cursor == "" {
			return pages, nil
		}
	}
}
