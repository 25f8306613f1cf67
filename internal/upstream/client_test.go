package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokenSource struct{ tok string }

func (s staticTokenSource) Token(ctx context.Context) (string, error) { return s.tok, nil }

func TestListRecordsDecodesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "app-token", r.Header.Get("X-App-Token"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"records": []map[string]any{
				{"record_id": "rec1", "fields": map[string]any{"name": "widget"}},
			},
			"next_cursor": "cursor-2",
			"total":       100,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tbl1", "app-token", srv.Client(), staticTokenSource{"tok-1"}, nil)

	page, err := c.ListRecords(context.Background(), "", 50)
	require.NoError(t, err)
	assert.Equal(t, "cursor-2", page.NextCursor)
	assert.Equal(t, 100, page.TotalHint)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "rec1", page.Records[0].RecordID)
}

func TestListRecordsClassifiesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unavailable"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tbl1", "app-token", srv.Client(), staticTokenSource{"tok-1"}, nil)

	_, err := c.ListRecords(context.Background(), "", 50)
	require.Error(t, err)

	cls := Classify(err)
	assert.True(t, cls.Retryable)
}

func TestResolveAttachmentsReturnsURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req resolveRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"tok-a", "tok-b"}, req.Tokens)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"urls": map[string]any{
				"tok-a": map[string]any{"url": "https://cdn/a.jpg", "expires_in": 60},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tbl1", "app-token", srv.Client(), staticTokenSource{"tok-1"}, nil)

	resolved, err := c.ResolveAttachments(context.Background(), []string{"tok-a", "tok-b"}, 7)
	require.NoError(t, err)
	require.Contains(t, resolved, "tok-a")
	assert.Equal(t, "https://cdn/a.jpg", resolved["tok-a"].URL)
}

func TestTableRevision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"revision": 42})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tbl1", "app-token", srv.Client(), staticTokenSource{"tok-1"}, nil)

	rev, err := c.TableRevision(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 42, rev)
}

func TestClassifyAuthExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tbl1", "app-token", srv.Client(), staticTokenSource{"tok-1"}, nil)

	_, err := c.TableRevision(context.Background())
	require.Error(t, err)

	cls := Classify(err)
	assert.True(t, cls.AuthExpired)
}

func TestClassifyPermanentUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tbl1", "app-token", srv.Client(), staticTokenSource{"tok-1"}, nil)

	_, err := c.TableRevision(context.Background())
	require.Error(t, err)

	cls := Classify(err)
	assert.True(t, cls.Fatal)
	assert.False(t, cls.Retryable)
}
