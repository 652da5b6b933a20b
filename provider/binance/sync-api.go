package binance

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/mdstream/binance-bookfeed/domain"
)

const snapshotTimeout = 10 * time.Second

// SyncAPI fetches full depth snapshots from the one-shot REST endpoint.
type SyncAPI struct {
	endpoint string
	client   *http.Client
}

func NewSyncAPI(endpoint string) *SyncAPI {
	return &SyncAPI{
		endpoint: endpoint,
		client:   &http.Client{Timeout: snapshotTimeout},
	}
}

type depthSnapshotResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// DepthSnapshot requests the current book baseline for the symbol.
func (api *SyncAPI) DepthSnapshot(symbol *domain.MarketSymbol, limit int) (*domain.DepthSnapshot, error) {
	url := fmt.Sprintf("%s?symbol=%s&limit=%d", api.endpoint, symbol.Upper(), limit)

	resp, err := api.client.Get(url)
	if err != nil {
		return nil, errors.Wrap(err, "requesting depth snapshot")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("depth snapshot request failed with status %d", resp.StatusCode)
	}

	var payload depthSnapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "decoding depth snapshot")
	}

	return &domain.DepthSnapshot{LastUpdateID: payload.LastUpdateID}, nil
}
