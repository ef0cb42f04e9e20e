package store

import (
	"context"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradetools/ttconnect/domain"
	"github.com/tradetools/ttconnect/errs"
)

func openResolvedStore(t *testing.T) (*Store, *Resolver) {
	t.Helper()
	st := openTestStore(t, domain.OnStaleFail)
	require.NoError(t, st.Refresh(context.Background(), fetchMaster(testMaster())))
	return st, st.NewResolver()
}

func TestResolveIndex(t *testing.T) {
	_, r := openResolvedStore(t)

	resolved, err := r.Resolve(context.Background(), domain.Index{Exchange: domain.ExchangeNSE, Symbol: "NIFTY"})
	require.NoError(t, err)
	assert.Equal(t, "256265", resolved.Token)
	assert.Equal(t, "NIFTY 50", resolved.BrokerSymbol)
	assert.Equal(t, domain.ExchangeNSE, resolved.Exchange)
}

func TestResolveEquityPerVenue(t *testing.T) {
	_, r := openResolvedStore(t)
	ctx := context.Background()

	nse, err := r.Resolve(ctx, domain.Equity{Exchange: domain.ExchangeNSE, Symbol: "RELIANCE"})
	require.NoError(t, err)
	assert.Equal(t, "738561", nse.Token)
	assert.Equal(t, domain.ExchangeNSE, nse.Exchange)

	bse, err := r.Resolve(ctx, domain.Equity{Exchange: domain.ExchangeBSE, Symbol: "RELIANCE"})
	require.NoError(t, err)
	assert.Equal(t, "1280642", bse.Token)
	assert.Equal(t, domain.ExchangeBSE, bse.Exchange)
}

func TestResolveFutureRoutesToDerivativeVenue(t *testing.T) {
	_, r := openResolvedStore(t)
	expiry := domain.NewDate(2026, time.February, 26)

	// Callers name the future by its underlying's cash venue; resolution
	// yields the listing venue.
	resolved, err := r.Resolve(context.Background(), domain.Future{
		Exchange: domain.ExchangeNSE, Symbol: "NIFTY", Expiry: expiry,
	})
	require.NoError(t, err)
	assert.Equal(t, "1000001", resolved.Token)
	assert.Equal(t, "NIFTY26FEBFUT", resolved.BrokerSymbol)
	assert.Equal(t, domain.ExchangeNFO, resolved.Exchange)
}

func TestResolveOption(t *testing.T) {
	_, r := openResolvedStore(t)
	ctx := context.Background()
	expiry := domain.NewDate(2026, time.February, 26)

	ce, err := r.Resolve(ctx, domain.Option{
		Exchange: domain.ExchangeNSE, Symbol: "NIFTY", Expiry: expiry,
		Strike: 23000, OptionType: domain.OptionCE,
	})
	require.NoError(t, err)
	assert.Equal(t, "1000004", ce.Token)
	assert.Equal(t, domain.ExchangeNFO, ce.Exchange)

	pe, err := r.Resolve(ctx, domain.Option{
		Exchange: domain.ExchangeNSE, Symbol: "NIFTY", Expiry: expiry,
		Strike: 23000, OptionType: domain.OptionPE,
	})
	require.NoError(t, err)
	assert.Equal(t, "1000005", pe.Token)

	bfo, err := r.Resolve(ctx, domain.Option{
		Exchange: domain.ExchangeBSE, Symbol: "SENSEX", Expiry: expiry,
		Strike: 80000, OptionType: domain.OptionCE,
	})
	require.NoError(t, err)
	assert.Equal(t, "1000006", bfo.Token)
	assert.Equal(t, domain.ExchangeBFO, bfo.Exchange)
}

func TestResolveMissReturnsInstrumentNotFound(t *testing.T) {
	_, r := openResolvedStore(t)
	ctx := context.Background()

	_, err := r.Resolve(ctx, domain.Equity{Exchange: domain.ExchangeNSE, Symbol: "NOSUCH"})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindInstrumentNotFound))
	assert.Contains(t, err.Error(), "NOSUCH")

	// A wrong strike is a distinct contract, not a near-match.
	_, err = r.Resolve(ctx, domain.Option{
		Exchange: domain.ExchangeNSE, Symbol: "NIFTY",
		Expiry: domain.NewDate(2026, time.February, 26),
		Strike: 23100, OptionType: domain.OptionCE,
	})
	assert.True(t, errs.IsKind(err, errs.KindInstrumentNotFound))

	// A wrong expiry likewise.
	_, err = r.Resolve(ctx, domain.Future{
		Exchange: domain.ExchangeNSE, Symbol: "NIFTY",
		Expiry: domain.NewDate(2026, time.March, 26),
	})
	assert.True(t, errs.IsKind(err, errs.KindInstrumentNotFound))
}

func TestResolveIndexAndEquityAreDistinctNamespaces(t *testing.T) {
	_, r := openResolvedStore(t)
	ctx := context.Background()

	// NIFTY exists only as an index; asking for the equity must miss.
	_, err := r.Resolve(ctx, domain.Equity{Exchange: domain.ExchangeNSE, Symbol: "NIFTY"})
	assert.True(t, errs.IsKind(err, errs.KindInstrumentNotFound))

	// And the converse.
	_, err = r.Resolve(ctx, domain.Index{Exchange: domain.ExchangeNSE, Symbol: "RELIANCE"})
	assert.True(t, errs.IsKind(err, errs.KindInstrumentNotFound))
}

func TestResolveNormalizesSymbolCase(t *testing.T) {
	_, r := openResolvedStore(t)

	resolved, err := r.Resolve(context.Background(), domain.Equity{Exchange: domain.ExchangeNSE, Symbol: "  reliance "})
	require.NoError(t, err)
	assert.Equal(t, "738561", resolved.Token)
}

func TestResolveMemoizes(t *testing.T) {
	_, r := openResolvedStore(t)
	ctx := context.Background()
	nifty := domain.Index{Exchange: domain.ExchangeNSE, Symbol: "NIFTY"}

	first, err := r.Resolve(ctx, nifty)
	require.NoError(t, err)
	assert.Equal(t, 1, r.CachedCount())

	second, err := r.Resolve(ctx, nifty)
	require.NoError(t, err)
	assert.Same(t, first, second, "repeat lookups of one instrument must hit the memo")
	assert.Equal(t, 1, r.CachedCount())
}

func TestResolveConcurrent(t *testing.T) {
	_, r := openResolvedStore(t)
	ctx := context.Background()
	expiry := domain.NewDate(2026, time.February, 26)

	instruments := []domain.Instrument{
		domain.Index{Exchange: domain.ExchangeNSE, Symbol: "NIFTY"},
		domain.Index{Exchange: domain.ExchangeBSE, Symbol: "SENSEX"},
		domain.Equity{Exchange: domain.ExchangeNSE, Symbol: "RELIANCE"},
		domain.Equity{Exchange: domain.ExchangeNSE, Symbol: "SBIN"},
		domain.Future{Exchange: domain.ExchangeNSE, Symbol: "NIFTY", Expiry: expiry},
		domain.Option{Exchange: domain.ExchangeNSE, Symbol: "NIFTY", Expiry: expiry, Strike: 23000, OptionType: domain.OptionCE},
	}

	var wg conc.WaitGroup
	for i := 0; i < 4; i++ {
		for _, inst := range instruments {
			inst := inst
			wg.Go(func() {
				resolved, err := r.Resolve(ctx, inst)
				assert.NoError(t, err)
				assert.NotEmpty(t, resolved.Token)
			})
		}
	}
	wg.Wait()

	assert.Equal(t, len(instruments), r.CachedCount())
}

func TestResolverIsPerBroker(t *testing.T) {
	st := openTestStore(t, domain.OnStaleFail)
	ctx := context.Background()
	require.NoError(t, st.Refresh(ctx, fetchMaster(testMaster())))

	// Tokens are scoped by broker id; a resolver for another broker sees
	// none of this store's mappings.
	other := &Resolver{
		db:       st.db,
		brokerID: "otherbroker",
		log:      st.log,
		memo:     make(map[domain.Instrument]*ResolvedInstrument),
	}
	_, err := other.Resolve(ctx, domain.Index{Exchange: domain.ExchangeNSE, Symbol: "NIFTY"})
	assert.True(t, errs.IsKind(err, errs.KindInstrumentNotFound))
}
