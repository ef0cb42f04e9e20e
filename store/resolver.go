package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tradetools/ttconnect/domain"
	"github.com/tradetools/ttconnect/errs"
	"github.com/tradetools/ttconnect/internal/database"
)

// ResolvedInstrument is the vendor-facing identity of a canonical
// instrument: the opaque wire token, the vendor's display symbol, and the
// venue orders must be routed to (NFO/BFO for derivatives, NSE/BSE for
// cash).
type ResolvedInstrument struct {
	Token        string
	BrokerSymbol string
	Exchange     domain.Exchange
}

// Resolver translates canonical instruments into vendor tokens, memoizing
// per instance. Resolvers are session-lifetime: a refresh assigns new
// primary keys, so the owning client constructs a fresh resolver after
// every refresh.
type Resolver struct {
	db       *database.DB
	brokerID string
	log      zerolog.Logger

	mu   sync.RWMutex
	memo map[domain.Instrument]*ResolvedInstrument
}

// NewResolver builds a resolver bound to this store's broker.
func (s *Store) NewResolver() *Resolver {
	return &Resolver{
		db:       s.db,
		brokerID: s.brokerID,
		log:      s.log.With().Str("component", "resolver").Logger(),
		memo:     make(map[domain.Instrument]*ResolvedInstrument),
	}
}

const (
	indexQuery = `
		SELECT bt.token, bt.broker_symbol, i.exchange
		FROM instruments i
		JOIN equities e       ON e.instrument_id = i.id
		JOIN broker_tokens bt ON bt.instrument_id = i.id AND bt.broker_id = ?
		WHERE i.exchange = ? AND i.symbol = ? AND i.segment = 'INDICES'`

	equityQuery = `
		SELECT bt.token, bt.broker_symbol, i.exchange
		FROM instruments i
		JOIN equities e       ON e.instrument_id = i.id
		JOIN broker_tokens bt ON bt.instrument_id = i.id AND bt.broker_id = ?
		WHERE i.exchange = ? AND i.symbol = ? AND i.segment != 'INDICES'`

	futureQuery = `
		SELECT bt.token, bt.broker_symbol, i.exchange
		FROM futures f
		JOIN instruments i    ON i.id = f.instrument_id
		JOIN instruments u    ON u.id = f.underlying_id
		JOIN broker_tokens bt ON bt.instrument_id = i.id AND bt.broker_id = ?
		WHERE u.exchange = ? AND u.symbol = ? AND f.expiry = ?`

	optionQuery = `
		SELECT bt.token, bt.broker_symbol, i.exchange
		FROM options o
		JOIN instruments i    ON i.id = o.instrument_id
		JOIN instruments u    ON u.id = o.underlying_id
		JOIN broker_tokens bt ON bt.instrument_id = i.id AND bt.broker_id = ?
		WHERE u.exchange = ? AND u.symbol = ? AND o.expiry = ? AND o.strike = ? AND o.option_type = ?`
)

// Resolve returns the vendor identity for a canonical instrument. A miss
// is an InstrumentNotFound error, never an invented token.
func (r *Resolver) Resolve(ctx context.Context, instrument domain.Instrument) (*ResolvedInstrument, error) {
	if instrument == nil {
		return nil, errs.InstrumentNotFound("nil instrument")
	}

	r.mu.RLock()
	cached, ok := r.memo[instrument]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	resolved, err := r.query(ctx, instrument)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.memo[instrument] = resolved
	r.mu.Unlock()

	r.log.Debug().
		Str("instrument", instrument.Describe()).
		Str("token", resolved.Token).
		Str("exchange", string(resolved.Exchange)).
		Msg("resolved instrument")

	return resolved, nil
}

func (r *Resolver) query(ctx context.Context, instrument domain.Instrument) (*ResolvedInstrument, error) {
	var row *sql.Row
	switch v := instrument.(type) {
	case domain.Index:
		row = r.db.QueryRowContext(ctx, indexQuery, r.brokerID, string(v.Exchange), normalize(v.Symbol))
	case domain.Equity:
		row = r.db.QueryRowContext(ctx, equityQuery, r.brokerID, string(v.Exchange), normalize(v.Symbol))
	case domain.Future:
		row = r.db.QueryRowContext(ctx, futureQuery, r.brokerID, string(v.Exchange), normalize(v.Symbol), v.Expiry.String())
	case domain.Option:
		row = r.db.QueryRowContext(ctx, optionQuery, r.brokerID, string(v.Exchange), normalize(v.Symbol), v.Expiry.String(), v.Strike, string(v.OptionType))
	default:
		return nil, errs.InstrumentNotFound(fmt.Sprintf("unsupported instrument variant %T", instrument))
	}

	resolved := &ResolvedInstrument{}
	var exchange string
	err := row.Scan(&resolved.Token, &resolved.BrokerSymbol, &exchange)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.InstrumentNotFound(
			fmt.Sprintf("no %s listing for %s", r.brokerID, instrument.Describe()))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", instrument.Describe(), err)
	}
	resolved.Exchange = domain.Exchange(exchange)
	return resolved, nil
}

// CachedCount returns the number of memoized resolutions.
func (r *Resolver) CachedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.memo)
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
