package daemon

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradetools/ttconnect/domain"
	"github.com/tradetools/ttconnect/store"
)

func testMaster() *domain.ParsedInstruments {
	return &domain.ParsedInstruments{
		Indices: []domain.ParsedIndex{
			{Exchange: domain.ExchangeNSE, Symbol: "NIFTY", BrokerSymbol: "NIFTY 50", Segment: "INDICES", Name: "NIFTY 50", BrokerToken: "256265"},
		},
		Equities: []domain.ParsedEquity{
			{Exchange: domain.ExchangeNSE, Symbol: "SBIN", BrokerSymbol: "SBIN", Segment: "NSE", Name: "STATE BANK OF INDIA", LotSize: 1, TickSize: 0.05, BrokerToken: "779521"},
		},
		Options: []domain.ParsedOption{
			{Exchange: domain.ExchangeNFO, Symbol: "NIFTY", BrokerSymbol: "NIFTY26FEB23000CE", Segment: "NFO-OPT", LotSize: 75, TickSize: 0.05, BrokerToken: "1000004", Expiry: domain.NewDate(2026, time.February, 26), UnderlyingExchange: domain.ExchangeNSE, Strike: 23000, OptionType: domain.OptionCE},
		},
	}
}

// newTestDaemon builds a daemon over a fresh store and mounts its router
// on an httptest server.
func newTestDaemon(t *testing.T, fetch store.FetchFunc) (*httptest.Server, *store.Store) {
	t.Helper()

	st, err := store.Open(store.Options{
		Path:     filepath.Join(t.TempDir(), "test_instruments.db"),
		BrokerID: "testbroker",
		OnStale:  domain.OnStaleFail,
		Log:      zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	srv := New(Config{
		Log:      zerolog.Nop(),
		BrokerID: "testbroker",
		Store:    st,
		Fetch:    fetch,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, st
}

func fetchMaster(parsed *domain.ParsedInstruments) store.FetchFunc {
	return func(context.Context) (*domain.ParsedInstruments, error) {
		return parsed, nil
	}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.Unmarshal(body, out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.Unmarshal(body, out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestDaemon(t, fetchMaster(testMaster()))

	var body map[string]any
	status := getJSON(t, ts.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestSystemEndpoint(t *testing.T) {
	ts, st := newTestDaemon(t, fetchMaster(testMaster()))
	require.NoError(t, st.Refresh(context.Background(), fetchMaster(testMaster())))

	var body systemResponse
	status := getJSON(t, ts.URL+"/api/system", &body)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, "testbroker", body.Broker)
	assert.Equal(t, 3, body.Instruments)
	assert.Equal(t, 1, body.Equities)
	assert.Equal(t, 1, body.Options)
	assert.Equal(t, 3, body.BrokerTokens)
	assert.False(t, body.Stale, "a just-refreshed master is fresh")
	assert.NotEmpty(t, body.LastUpdated)
	assert.Greater(t, body.DBSizeBytes, int64(0))
	assert.GreaterOrEqual(t, body.RAMPercent, 0.0)
}

func TestRefreshEndpoint(t *testing.T) {
	ts, st := newTestDaemon(t, fetchMaster(testMaster()))

	var body map[string]any
	status := postJSON(t, ts.URL+"/api/refresh", &body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "refreshed", body["status"])
	assert.Equal(t, float64(3), body["instruments"])

	counts, err := st.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Instruments)
}

func TestRefreshEndpointFetchFailure(t *testing.T) {
	ts, _ := newTestDaemon(t, func(context.Context) (*domain.ParsedInstruments, error) {
		return nil, errors.New("vendor is down")
	})

	var body map[string]any
	status := postJSON(t, ts.URL+"/api/refresh", &body)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, body["error"], "vendor is down")
}

func TestBackupEndpointUnconfigured(t *testing.T) {
	ts, _ := newTestDaemon(t, fetchMaster(testMaster()))

	var body map[string]any
	status := postJSON(t, ts.URL+"/api/backup", &body)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "backups are not configured", body["error"])
}
