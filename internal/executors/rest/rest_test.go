package rest_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncline/syncline/internal/executors/rest"
	pkgsync "github.com/syncline/syncline/internal/sync"
)

// recordingSink collects everything upserted.
type recordingSink struct {
	accounts []string
	items    []json.RawMessage
}

func (s *recordingSink) Upsert(_ context.Context, accountID string, items []json.RawMessage) error {
	s.accounts = append(s.accounts, accountID)
	s.items = append(s.items, items...)
	return nil
}

func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func pageBody(t *testing.T, nextToken string, updatedAts ...string) []byte {
	t.Helper()

	items := make([]json.RawMessage, 0, len(updatedAts))
	for i, ts := range updatedAts {
		items = append(items, json.RawMessage(fmt.Sprintf(`{"id":%d,"updated_at":%q}`, i, ts)))
	}
	body, err := json.Marshal(map[string]any{
		"items":           items,
		"next_page_token": nextToken,
	})
	require.NoError(t, err)
	return body
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}

	_, err := rest.New("", "/orders", nil, sink)
	assert.Error(t, err)

	_, err = rest.New("orders", "", nil, sink)
	assert.Error(t, err)

	_, err = rest.New("orders", "/orders", nil, nil)
	assert.Error(t, err)

	e, err := rest.New("orders", "/orders", nil, sink)
	require.NoError(t, err)
	assert.Equal(t, "orders", e.Family())
}

func TestExecutor_FetchPage(t *testing.T) {
	t.Parallel()

	t.Run("sends cursor, token and auth", func(t *testing.T) {
		t.Parallel()

		var gotQuery map[string]string
		var gotAuth string
		server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotQuery = map[string]string{
				"updated_since": r.URL.Query().Get("updated_since"),
				"page_token":    r.URL.Query().Get("page_token"),
				"page_size":     r.URL.Query().Get("page_size"),
			}
			_, _ = w.Write(pageBody(t, "", "2025-03-01T10:00:00Z"))
		}))
		defer server.Close()

		e, err := rest.New("orders", "/v1/orders",
			map[string]rest.Account{"acme": {Endpoint: server.URL, Token: "sekrit"}},
			&recordingSink{},
			rest.WithPageSize(25))
		require.NoError(t, err)

		page, err := e.FetchPage(context.Background(), "acme", "2025-02-28T00:00:00Z", "tok-3")
		require.NoError(t, err)

		assert.Equal(t, "Bearer sekrit", gotAuth)
		assert.Equal(t, "2025-02-28T00:00:00Z", gotQuery["updated_since"])
		assert.Equal(t, "tok-3", gotQuery["page_token"])
		assert.Equal(t, "25", gotQuery["page_size"])
		assert.Len(t, page.Items, 1)
	})

	t.Run("proposes the max updated_at as candidate cursor", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(pageBody(t, "next-tok",
				"2025-03-01T10:00:00Z",
				"2025-03-01T14:00:00Z",
				"2025-03-01T12:00:00Z"))
		}))
		defer server.Close()

		e, err := rest.New("orders", "/v1/orders",
			map[string]rest.Account{"acme": {Endpoint: server.URL}},
			&recordingSink{})
		require.NoError(t, err)

		page, err := e.FetchPage(context.Background(), "acme", "", "")
		require.NoError(t, err)

		assert.Equal(t, "2025-03-01T14:00:00Z", page.CandidateCursor)
		assert.Equal(t, "next-tok", page.NextPageToken)
		assert.Len(t, page.Items, 3)
	})

	t.Run("retries rate limits", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_, _ = w.Write(pageBody(t, "", "2025-03-01T10:00:00Z"))
		}))
		defer server.Close()

		e, err := rest.New("orders", "/v1/orders",
			map[string]rest.Account{"acme": {Endpoint: server.URL}},
			&recordingSink{},
			rest.WithMaxTries(5),
			rest.WithRetryInterval(time.Millisecond))
		require.NoError(t, err)

		page, err := e.FetchPage(context.Background(), "acme", "", "")
		require.NoError(t, err)
		assert.Len(t, page.Items, 1)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		e, err := rest.New("orders", "/v1/orders",
			map[string]rest.Account{"acme": {Endpoint: server.URL}},
			&recordingSink{},
			rest.WithMaxTries(5),
			rest.WithRetryInterval(time.Millisecond))
		require.NoError(t, err)

		_, err = e.FetchPage(context.Background(), "acme", "", "")
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
	})

	t.Run("gives up after max tries on server errors", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		e, err := rest.New("orders", "/v1/orders",
			map[string]rest.Account{"acme": {Endpoint: server.URL}},
			&recordingSink{},
			rest.WithMaxTries(3),
			rest.WithRetryInterval(time.Millisecond))
		require.NoError(t, err)

		_, err = e.FetchPage(context.Background(), "acme", "", "")
		require.Error(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("rejects unknown accounts", func(t *testing.T) {
		t.Parallel()

		e, err := rest.New("orders", "/v1/orders", nil, &recordingSink{})
		require.NoError(t, err)

		_, err = e.FetchPage(context.Background(), "ghost", "", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no endpoint configured")
	})
}

func TestExecutor_LoadCursor(t *testing.T) {
	t.Parallel()

	e, err := rest.New("orders", "/v1/orders", nil, &recordingSink{})
	require.NoError(t, err)

	assert.Empty(t, e.LoadCursor(&pkgsync.SyncState{}))
	assert.Equal(t, "2025-01-01T00:00:00Z", e.LoadCursor(&pkgsync.SyncState{
		CursorValue: "2025-01-01T00:00:00Z",
	}))
}

func TestExecutor_Apply(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	e, err := rest.New("orders", "/v1/orders", nil, sink)
	require.NoError(t, err)

	items := []json.RawMessage{
		json.RawMessage(`{"id":1}`),
		json.RawMessage(`{"id":2}`),
	}
	require.NoError(t, e.Apply(context.Background(), "acme", items))

	assert.Equal(t, []string{"acme"}, sink.accounts)
	assert.Len(t, sink.items, 2)
}
