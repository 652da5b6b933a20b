package binance

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncAPI_DepthSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"lastUpdateId": 160,
			"bids": [["10000.5", "1.0"]],
			"asks": [["10001.0", "2.5"]]
		}`))
	}))
	defer server.Close()

	api := NewSyncAPI(server.URL)
	snapshot, err := api.DepthSnapshot(testSymbol(t), 1000)

	require.NoError(t, err)
	assert.Equal(t, int64(160), snapshot.LastUpdateID)
}

func TestSyncAPI_DepthSnapshotHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	api := NewSyncAPI(server.URL)
	_, err := api.DepthSnapshot(testSymbol(t), 1000)
	assert.Error(t, err)
}

func TestSyncAPI_DepthSnapshotMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{`))
	}))
	defer server.Close()

	api := NewSyncAPI(server.URL)
	_, err := api.DepthSnapshot(testSymbol(t), 1000)
	assert.Error(t, err)
}
