// Package billing reads subscriptions and customers from the payment
// provider's REST API. Only the two listing calls the subscriber sync
// needs are implemented.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// pageLimit is the provider's maximum page size.
const pageLimit = 100

// Subscription is one active subscription row. CustomerID links it to a
// Customer; Status is the provider's lifecycle string ("active",
// "trialing", ...).
type Subscription struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer"`
	Status     string `json:"status"`
}

// Customer is the billing identity a subscription hangs off.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Provider is the slice of the billing API the subscriber sync consumes.
type Provider interface {
	AllActiveSubscriptions(ctx context.Context) ([]Subscription, error)
	AllCustomers(ctx context.Context) ([]Customer, error)
}

// Client talks to the billing REST API with bearer-key auth and
// starting_after cursor pagination.
type Client struct {
	baseURL string
	key     string
	httpc   *http.Client
}

// NewClient returns a Client for the given API base URL and secret key.
// httpc may be nil, in which case a client with a 30s timeout is used.
func NewClient(baseURL, key string, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		httpc:   httpc,
	}
}

// AllActiveSubscriptions pages through every subscription in status
// "active". The provider orders pages by id; order is preserved.
func (c *Client) AllActiveSubscriptions(ctx context.Context) ([]Subscription, error) {
	query := url.Values{"status": {"active"}}
	return listAll[Subscription](ctx, c, "/v1/subscriptions", query, func(s Subscription) string { return s.ID })
}

// AllCustomers pages through every customer.
func (c *Client) AllCustomers(ctx context.Context) ([]Customer, error) {
	return listAll[Customer](ctx, c, "/v1/customers", url.Values{}, func(cu Customer) string { return cu.ID })
}

// page is the provider's list envelope.
type page[T any] struct {
	Data    []T  `json:"data"`
	HasMore bool `json:"has_more"`
}

// listAll drains a cursor-paginated listing endpoint. lastID extracts the
// cursor for the next page from the final item of the current one.
func listAll[T any](ctx context.Context, c *Client, path string, query url.Values, lastID func(T) string) ([]T, error) {
	var out []T
	after := ""
	for {
		q := url.Values{}
		for k, vs := range query {
			q[k] = vs
		}
		q.Set("limit", fmt.Sprint(pageLimit))
		if after != "" {
			q.Set("starting_after", after)
		}
		p, err := getPage[T](ctx, c, path+"?"+q.Encode())
		if err != nil {
			return nil, err
		}
		out = append(out, p.Data...)
		if !p.HasMore || len(p.Data) == 0 {
			return out, nil
		}
		after = lastID(p.Data[len(p.Data)-1])
	}
}

func getPage[T any](ctx context.Context, c *Client, pathAndQuery string) (*page[T], error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathAndQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("billing: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("billing: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("billing: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("billing: %s returned %d: %s", pathAndQuery, resp.StatusCode, truncate(body, 200))
	}
	var p page[T]
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("billing: parse response: %w", err)
	}
	return &p, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
