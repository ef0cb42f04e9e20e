package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tradetools/ttconnect/domain"
	"github.com/tradetools/ttconnect/internal/database"
)

// underlyingKey addresses an instrument row by cash-market identity.
type underlyingKey struct {
	exchange domain.Exchange
	symbol   string
}

// Refresh fetches the vendor master and rebuilds every data table inside
// one transaction. Insert order is fixed by the foreign keys: indices,
// then equities, then derivatives resolved against the freshly inserted
// underlyings. A crash mid-refresh leaves the previous state intact.
func (s *Store) Refresh(ctx context.Context, fetch FetchFunc) error {
	started := time.Now()

	parsed, err := fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch instrument master: %w", err)
	}

	var skippedFutures, skippedOptions int
	err = database.WithTransactionContext(ctx, s.db.Conn(), func(tx *sql.Tx) error {
		if err := truncateAll(tx); err != nil {
			return err
		}

		lookup, err := s.insertCash(tx, parsed)
		if err != nil {
			return err
		}

		skippedFutures, err = s.insertFutures(tx, parsed.Futures, lookup)
		if err != nil {
			return err
		}
		skippedOptions, err = s.insertOptions(tx, parsed.Options, lookup)
		if err != nil {
			return err
		}

		_, err = tx.Exec(
			`INSERT INTO _meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			metaLastUpdated, today(),
		)
		if err != nil {
			return fmt.Errorf("failed to record last_updated: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Int("indices", len(parsed.Indices)).
		Int("equities", len(parsed.Equities)).
		Int("futures", len(parsed.Futures)-skippedFutures).
		Int("options", len(parsed.Options)-skippedOptions).
		Int("skipped", skippedFutures+skippedOptions).
		Dur("duration_ms", time.Since(started)).
		Msg("instrument master refreshed")

	return nil
}

// truncateAll clears every data table, children before parents.
func truncateAll(tx *sql.Tx) error {
	for _, table := range []string{"broker_tokens", "equities", "futures", "options", "instruments"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}
	return nil
}

// insertCash inserts indices and equities and returns the
// (exchange, symbol) → instrument id lookup the derivative inserts
// resolve against.
func (s *Store) insertCash(tx *sql.Tx, parsed *domain.ParsedInstruments) (map[underlyingKey]int64, error) {
	instStmt, err := tx.Prepare(
		`INSERT INTO instruments (exchange, symbol, segment, name, lot_size, tick_size)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare instrument insert: %w", err)
	}
	defer instStmt.Close()

	eqStmt, err := tx.Prepare(
		`INSERT INTO equities (instrument_id, isin) VALUES (?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare equity insert: %w", err)
	}
	defer eqStmt.Close()

	tokStmt, err := tx.Prepare(
		`INSERT INTO broker_tokens (instrument_id, broker_id, token, broker_symbol)
		 VALUES (?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare broker token insert: %w", err)
	}
	defer tokStmt.Close()

	lookup := make(map[underlyingKey]int64, len(parsed.Indices)+len(parsed.Equities))

	for _, idx := range parsed.Indices {
		res, err := instStmt.Exec(string(idx.Exchange), idx.Symbol, idx.Segment, nullable(idx.Name), idx.LotSize, idx.TickSize)
		if err != nil {
			return nil, fmt.Errorf("failed to insert index %s: %w", idx.Symbol, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read index row id: %w", err)
		}
		// Indices land in the equities sub-table too (isin NULL): both
		// are addressed by cash-market key.
		if _, err := eqStmt.Exec(id, nil); err != nil {
			return nil, fmt.Errorf("failed to insert index equity row: %w", err)
		}
		if _, err := tokStmt.Exec(id, s.brokerID, idx.BrokerToken, idx.BrokerSymbol); err != nil {
			return nil, fmt.Errorf("failed to insert index token: %w", err)
		}
		lookup[underlyingKey{idx.Exchange, idx.Symbol}] = id
	}

	for _, eq := range parsed.Equities {
		res, err := instStmt.Exec(string(eq.Exchange), eq.Symbol, eq.Segment, nullable(eq.Name), eq.LotSize, eq.TickSize)
		if err != nil {
			return nil, fmt.Errorf("failed to insert equity %s: %w", eq.Symbol, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read equity row id: %w", err)
		}
		if _, err := eqStmt.Exec(id, nullable(eq.ISIN)); err != nil {
			return nil, fmt.Errorf("failed to insert equity row: %w", err)
		}
		if _, err := tokStmt.Exec(id, s.brokerID, eq.BrokerToken, eq.BrokerSymbol); err != nil {
			return nil, fmt.Errorf("failed to insert equity token: %w", err)
		}
		lookup[underlyingKey{eq.Exchange, eq.Symbol}] = id
	}

	return lookup, nil
}

// insertFutures inserts futures rows, skipping (and logging) rows whose
// underlying is absent. A lookup miss is a vendor-data inconsistency, not
// a fatal error.
func (s *Store) insertFutures(tx *sql.Tx, futures []domain.ParsedFuture, lookup map[underlyingKey]int64) (int, error) {
	instStmt, err := tx.Prepare(
		`INSERT INTO instruments (exchange, symbol, segment, name, lot_size, tick_size)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare future insert: %w", err)
	}
	defer instStmt.Close()

	futStmt, err := tx.Prepare(
		`INSERT INTO futures (instrument_id, underlying_id, expiry) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare futures row insert: %w", err)
	}
	defer futStmt.Close()

	tokStmt, err := tx.Prepare(
		`INSERT INTO broker_tokens (instrument_id, broker_id, token, broker_symbol)
		 VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare broker token insert: %w", err)
	}
	defer tokStmt.Close()

	skipped := 0
	for _, fut := range futures {
		underlyingID, ok := lookup[underlyingKey{fut.UnderlyingExchange, fut.Symbol}]
		if !ok {
			s.log.Warn().
				Str("exchange", string(fut.UnderlyingExchange)).
				Str("symbol", fut.Symbol).
				Str("broker_symbol", fut.BrokerSymbol).
				Msg("future references unknown underlying, skipping")
			skipped++
			continue
		}

		res, err := instStmt.Exec(string(fut.Exchange), fut.Symbol, fut.Segment, nil, fut.LotSize, fut.TickSize)
		if err != nil {
			return skipped, fmt.Errorf("failed to insert future %s: %w", fut.BrokerSymbol, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return skipped, fmt.Errorf("failed to read future row id: %w", err)
		}
		if _, err := futStmt.Exec(id, underlyingID, fut.Expiry.String()); err != nil {
			return skipped, fmt.Errorf("failed to insert futures row: %w", err)
		}
		if _, err := tokStmt.Exec(id, s.brokerID, fut.BrokerToken, fut.BrokerSymbol); err != nil {
			return skipped, fmt.Errorf("failed to insert future token: %w", err)
		}
	}
	return skipped, nil
}

// insertOptions mirrors insertFutures with strike and option type.
func (s *Store) insertOptions(tx *sql.Tx, options []domain.ParsedOption, lookup map[underlyingKey]int64) (int, error) {
	instStmt, err := tx.Prepare(
		`INSERT INTO instruments (exchange, symbol, segment, name, lot_size, tick_size)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare option insert: %w", err)
	}
	defer instStmt.Close()

	optStmt, err := tx.Prepare(
		`INSERT INTO options (instrument_id, underlying_id, expiry, strike, option_type)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare options row insert: %w", err)
	}
	defer optStmt.Close()

	tokStmt, err := tx.Prepare(
		`INSERT INTO broker_tokens (instrument_id, broker_id, token, broker_symbol)
		 VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare broker token insert: %w", err)
	}
	defer tokStmt.Close()

	skipped := 0
	for _, opt := range options {
		underlyingID, ok := lookup[underlyingKey{opt.UnderlyingExchange, opt.Symbol}]
		if !ok {
			s.log.Warn().
				Str("exchange", string(opt.UnderlyingExchange)).
				Str("symbol", opt.Symbol).
				Str("broker_symbol", opt.BrokerSymbol).
				Msg("option references unknown underlying, skipping")
			skipped++
			continue
		}

		res, err := instStmt.Exec(string(opt.Exchange), opt.Symbol, opt.Segment, nil, opt.LotSize, opt.TickSize)
		if err != nil {
			return skipped, fmt.Errorf("failed to insert option %s: %w", opt.BrokerSymbol, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return skipped, fmt.Errorf("failed to read option row id: %w", err)
		}
		if _, err := optStmt.Exec(id, underlyingID, opt.Expiry.String(), opt.Strike, string(opt.OptionType)); err != nil {
			return skipped, fmt.Errorf("failed to insert options row: %w", err)
		}
		if _, err := tokStmt.Exec(id, s.brokerID, opt.BrokerToken, opt.BrokerSymbol); err != nil {
			return skipped, fmt.Errorf("failed to insert option token: %w", err)
		}
	}
	return skipped, nil
}

// nullable maps "" to NULL for optional TEXT columns.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
