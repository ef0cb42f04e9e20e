package maintenance

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradetools/ttconnect/domain"
	"github.com/tradetools/ttconnect/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.Options{
		Path:     filepath.Join(t.TempDir(), "test_instruments.db"),
		BrokerID: "testbroker",
		OnStale:  domain.OnStaleFail,
		Log:      zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testMaster() *domain.ParsedInstruments {
	return &domain.ParsedInstruments{
		Indices: []domain.ParsedIndex{
			{Exchange: domain.ExchangeNSE, Symbol: "NIFTY", BrokerSymbol: "NIFTY 50", Segment: "INDICES", Name: "NIFTY 50", BrokerToken: "256265"},
		},
		Equities: []domain.ParsedEquity{
			{Exchange: domain.ExchangeNSE, Symbol: "SBIN", BrokerSymbol: "SBIN", Segment: "NSE", Name: "STATE BANK OF INDIA", LotSize: 1, TickSize: 0.05, BrokerToken: "779521"},
		},
		Futures: []domain.ParsedFuture{
			{Exchange: domain.ExchangeNFO, Symbol: "NIFTY", BrokerSymbol: "NIFTY26FEBFUT", Segment: "NFO-FUT", LotSize: 75, TickSize: 0.05, BrokerToken: "1000001", Expiry: domain.NewDate(2026, time.February, 26), UnderlyingExchange: domain.ExchangeNSE},
		},
	}
}

type countedJob struct {
	name string
	runs int
	err  error
}

func (j *countedJob) Run(context.Context) error { j.runs++; return j.err }
func (j *countedJob) Name() string              { return j.name }

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a schedule", &countedJob{name: "broken"})
	assert.Error(t, err)
}

func TestAddJobAcceptsCronAndDescriptors(t *testing.T) {
	s := New(zerolog.Nop())
	assert.NoError(t, s.AddJob(DefaultRefreshSchedule, &countedJob{name: "refresh"}))
	assert.NoError(t, s.AddJob(DefaultCheckpointSchedule, &countedJob{name: "checkpoint"}))
	assert.NoError(t, s.AddJob(DefaultBackupSchedule, &countedJob{name: "backup"}))
}

func TestRunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countedJob{name: "adhoc"}

	require.NoError(t, s.RunNow(context.Background(), job))
	assert.Equal(t, 1, job.runs)

	job.err = errors.New("job blew up")
	assert.Error(t, s.RunNow(context.Background(), job))
}

func TestSchedulerStartStop(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("@every 1h", &countedJob{name: "idle"}))
	s.Start()
	s.Stop()
}

func TestRefreshJobRebuildsMaster(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	master := testMaster()
	job := NewRefreshJob(st, func(context.Context) (*domain.ParsedInstruments, error) {
		return master, nil
	}, zerolog.Nop())
	assert.Equal(t, "instrument_refresh", job.Name())

	require.NoError(t, job.Run(ctx))

	counts, err := st.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Instruments)
	assert.Equal(t, 1, counts.Futures)

	// The job refreshes unconditionally, so a second run replaces rather
	// than appends.
	require.NoError(t, job.Run(ctx))
	counts, err = st.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Instruments)
}

func TestRefreshJobPropagatesFetchFailure(t *testing.T) {
	st := openTestStore(t)

	job := NewRefreshJob(st, func(context.Context) (*domain.ParsedInstruments, error) {
		return nil, errors.New("vendor is down")
	}, zerolog.Nop())

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vendor is down")
}

func TestCheckpointJob(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.Refresh(ctx, func(context.Context) (*domain.ParsedInstruments, error) {
		return testMaster(), nil
	}))

	job := NewCheckpointJob(st.DB(), zerolog.Nop())
	assert.Equal(t, "wal_checkpoint", job.Name())
	require.NoError(t, job.Run(ctx))

	stats, err := st.DB().GetStats()
	require.NoError(t, err)
	assert.Zero(t, stats.WALSizeBytes, "a truncating checkpoint empties the WAL")
}
