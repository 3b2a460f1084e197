package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllActiveSubscriptionsPaginates(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/v1/subscriptions", r.URL.Path)
		require.Equal(t, "active", r.URL.Query().Get("status"))
		require.Equal(t, "100", r.URL.Query().Get("limit"))

		after := r.URL.Query().Get("starting_after")
		w.Header().Set("Content-Type", "application/json")
		switch after {
		case "":
			writePage(w, []Subscription{
				{ID: "sub_1", CustomerID: "cus_1", Status: "active"},
				{ID: "sub_2", CustomerID: "cus_2", Status: "active"},
			}, true)
		case "sub_2":
			writePage(w, []Subscription{
				{ID: "sub_3", CustomerID: "cus_3", Status: "active"},
			}, false)
		default:
			t.Fatalf("unexpected cursor %q", after)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_123", srv.Client())
	subs, err := c.AllActiveSubscriptions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk_test_123", gotAuth)
	require.Len(t, subs, 3)
	assert.Equal(t, []string{"sub_1", "sub_2", "sub_3"},
		[]string{subs[0].ID, subs[1].ID, subs[2].ID}, "provider order must be preserved")
}

func TestAllCustomersEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/customers", r.URL.Path)
		writePage(w, []Customer{}, false)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_123", srv.Client())
	customers, err := c.AllCustomers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, customers)
}

func TestListSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_123", srv.Client())
	_, err := c.AllActiveSubscriptions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func writePage[T any](w http.ResponseWriter, data []T, hasMore bool) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data":     data,
		"has_more": hasMore,
	})
}

func TestTruncate(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, truncate(long, 200), 203)
	assert.Equal(t, "short", truncate([]byte("short"), 200))
}
