// Package store implements the local instrument master: a relational
// snapshot of one vendor's daily instrument dump, rebuilt atomically when
// stale, and the resolver that translates canonical instruments into the
// vendor's opaque tokens.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tradetools/ttconnect/domain"
	"github.com/tradetools/ttconnect/internal/database"
)

// FetchFunc retrieves and parses a vendor's instrument master.
type FetchFunc func(context.Context) (*domain.ParsedInstruments, error)

// Options configures a Store.
type Options struct {
	// Path is the SQLite file path. Vendor-scoped by convention
	// (cache/{broker_id}_instruments.db): refresh truncates every data
	// table, so vendors must not share a file.
	Path     string
	BrokerID string
	OnStale  domain.OnStale
	Log      zerolog.Logger
}

// Store owns the instrument database for one vendor.
type Store struct {
	db       *database.DB
	brokerID string
	onStale  domain.OnStale
	log      zerolog.Logger
}

// Open opens the store's database and applies the schema idempotently.
func Open(opts Options) (*Store, error) {
	if opts.BrokerID == "" {
		return nil, fmt.Errorf("store: broker id is required")
	}
	if opts.OnStale == "" {
		opts.OnStale = domain.OnStaleFail
	}
	if !opts.OnStale.Valid() {
		return nil, fmt.Errorf("store: invalid on_stale policy %q", opts.OnStale)
	}

	db, err := database.New(database.Config{Path: opts.Path, Name: "instruments"})
	if err != nil {
		return nil, fmt.Errorf("failed to open instrument database: %w", err)
	}

	if _, err := db.Conn().Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply instrument schema: %w", err)
	}

	return &Store{
		db:       db,
		brokerID: opts.BrokerID,
		onStale:  opts.OnStale,
		log:      opts.Log.With().Str("component", "instrument_store").Str("broker", opts.BrokerID).Logger(),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying database handle (maintenance jobs checkpoint
// and back up through it).
func (s *Store) DB() *database.DB {
	return s.db
}

// BrokerID returns the vendor this store is scoped to.
func (s *Store) BrokerID() string {
	return s.brokerID
}

// today returns the current IST date as an ISO string.
func today() string {
	return domain.Today().String()
}

// LastUpdated returns the recorded refresh date, or "" when no refresh
// has ever succeeded.
func (s *Store) LastUpdated(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM _meta WHERE key = ?", metaLastUpdated,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read last_updated: %w", err)
	}
	return value, nil
}

// IsStale reports whether the local master reflects a prior trading day.
func (s *Store) IsStale(ctx context.Context) (bool, error) {
	last, err := s.LastUpdated(ctx)
	if err != nil {
		return false, err
	}
	return last != today(), nil
}

// HasData reports whether any instrument rows exist.
func (s *Store) HasData(ctx context.Context) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM instruments").Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count instruments: %w", err)
	}
	return count > 0, nil
}

// Counts holds per-table row counts.
type Counts struct {
	Instruments  int
	Equities     int
	Futures      int
	Options      int
	BrokerTokens int
}

// Counts returns row counts for every data table.
func (s *Store) Counts(ctx context.Context) (*Counts, error) {
	c := &Counts{}
	rows := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM instruments", &c.Instruments},
		{"SELECT COUNT(*) FROM equities", &c.Equities},
		{"SELECT COUNT(*) FROM futures", &c.Futures},
		{"SELECT COUNT(*) FROM options", &c.Options},
		{"SELECT COUNT(*) FROM broker_tokens", &c.BrokerTokens},
	}
	for _, r := range rows {
		if err := s.db.QueryRowContext(ctx, r.query).Scan(r.dest); err != nil {
			return nil, fmt.Errorf("failed to count rows: %w", err)
		}
	}
	return c, nil
}

// EnsureFresh refreshes the master if it is stale. On refresh failure the
// configured policy applies: FAIL propagates; WARN logs and serves the
// existing data when any exists, else propagates.
func (s *Store) EnsureFresh(ctx context.Context, fetch FetchFunc) error {
	stale, err := s.IsStale(ctx)
	if err != nil {
		return err
	}
	if !stale {
		s.log.Debug().Msg("instrument master is fresh")
		return nil
	}

	if err := s.Refresh(ctx, fetch); err != nil {
		if s.onStale == domain.OnStaleWarn {
			has, hasErr := s.HasData(ctx)
			if hasErr == nil && has {
				s.log.Warn().Err(err).Msg("instrument refresh failed, serving stale data")
				return nil
			}
		}
		return fmt.Errorf("failed to refresh instruments: %w", err)
	}
	return nil
}
