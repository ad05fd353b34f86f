package drive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelechi-nwosu/enrichd/internal/core/retry"
	"github.com/kelechi-nwosu/enrichd/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-token", nil)
}

func TestDownloadFile(t *testing.T) {
	var gotAuth, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Write([]byte("file bytes"))
	})

	data, err := c.DownloadFile(context.Background(), "d1", "i1")

	require.NoError(t, err)
	assert.Equal(t, "file bytes", string(data))
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "/drives/d1/items/i1/content", gotPath)
}

func TestUploadFileReturnsWebURL(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		json.NewEncoder(w).Encode(map[string]string{
			"id":     "new-item",
			"webUrl": "https://store.example.com/Enriched/report-enriched.docx",
		})
	})

	url, err := c.UploadFile(context.Background(), "d1", "Enriched", "report-enriched.docx", []byte("bytes"))

	require.NoError(t, err)
	assert.Equal(t, "https://store.example.com/Enriched/report-enriched.docx", url)
}

func TestGetMetadataFlattensFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fields", r.URL.Query().Get("expand"))
		json.NewEncoder(w).Encode(map[string]any{
			"fields": map[string]any{
				"EnrichmentStatus": "Completed",
				"Enriched":         true,
			},
		})
	})

	meta, err := c.GetMetadata(context.Background(), "d1", "i1")

	require.NoError(t, err)
	assert.Equal(t, "Completed", meta["EnrichmentStatus"])
	assert.Equal(t, "true", meta["Enriched"])
}

func TestSetMetadataPatchesFields(t *testing.T) {
	var gotMethod string
	var gotBody map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	})

	err := c.SetMetadata(context.Background(), "d1", "i1", map[string]string{"Enriched": "true"})

	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "true", gotBody["Enriched"])
}

func TestListRecentItemsSortsNewestFirst(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{"id": "older", "name": "a.docx", "lastModifiedDateTime": "2024-04-01T10:00:00Z"},
				{"id": "newer", "name": "b.docx", "lastModifiedDateTime": "2024-04-02T10:00:00Z"},
				{"id": "folder", "name": "sub", "lastModifiedDateTime": "2024-04-03T10:00:00Z", "folder": map[string]any{"childCount": 2}},
			},
		})
	})

	items, err := c.ListRecentItems(context.Background(), "d1", 10)

	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "folder", items[0].ID)
	assert.True(t, items[0].IsFolder)
	assert.Equal(t, "newer", items[1].ID)
	assert.Equal(t, "older", items[2].ID)
}

func TestResolveDriveIDMatchesFolderName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]string{
				{"id": "default-drive", "name": "Documents"},
				{"id": "shared-drive", "name": "Shared Documents"},
			},
		})
	})

	id, err := c.ResolveDriveID(context.Background(), "site1", "Shared Documents")
	require.NoError(t, err)
	assert.Equal(t, "shared-drive", id)

	id, err = c.ResolveDriveID(context.Background(), "site1", "")
	require.NoError(t, err)
	assert.Equal(t, "default-drive", id, "empty folder path takes the first drive")
}

func TestThrottledResponseIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	})

	_, err := c.DownloadFile(context.Background(), "d1", "i1")

	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))
}

func TestServerErrorIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.DownloadFile(context.Background(), "d1", "i1")

	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))
}

func TestClientErrorIsNotTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("itemNotFound"))
	})

	_, err := c.GetItem(context.Background(), "d1", "missing")

	require.Error(t, err)
	assert.False(t, retry.IsTransient(err))
	assert.Contains(t, err.Error(), "404")
}

func TestCreateSubscription(t *testing.T) {
	expires := time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/subscriptions", r.URL.Path)
		var req models.Subscription
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		req.ID = "sub-9"
		json.NewEncoder(w).Encode(req)
	})

	created, err := c.CreateSubscription(context.Background(), &models.Subscription{
		Resource:        "drives/d1/root",
		ChangeType:      "updated",
		NotificationURL: "https://hook.example.com/api/notifications",
		ExpirationTime:  expires,
	})

	require.NoError(t, err)
	assert.Equal(t, "sub-9", created.ID)
	assert.Equal(t, "drives/d1/root", created.Resource)
	assert.True(t, created.ExpirationTime.Equal(expires))
}

func TestDeleteSubscription(t *testing.T) {
	var gotMethod, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.DeleteSubscription(context.Background(), "sub-9"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/subscriptions/sub-9", gotPath)
}
