package store

// One logical schema, five tables. Indices and equities both land in the
// equities sub-table (isin NULL for indices) because both are queried by
// cash-market key. Derivative rows reference their underlying instrument
// row; the FK direction dictates both insert and truncate order.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS instruments (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    exchange  TEXT NOT NULL,
    symbol    TEXT NOT NULL,
    segment   TEXT NOT NULL,
    name      TEXT,
    lot_size  INTEGER NOT NULL DEFAULT 1,
    tick_size REAL NOT NULL DEFAULT 0.05
);

CREATE TABLE IF NOT EXISTS equities (
    instrument_id INTEGER NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
    isin          TEXT
);

CREATE TABLE IF NOT EXISTS futures (
    instrument_id INTEGER NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
    underlying_id INTEGER NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
    expiry        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS options (
    instrument_id INTEGER NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
    underlying_id INTEGER NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
    expiry        TEXT NOT NULL,
    strike        REAL NOT NULL,
    option_type   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS broker_tokens (
    instrument_id INTEGER NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
    broker_id     TEXT NOT NULL,
    token         TEXT NOT NULL,
    broker_symbol TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS _meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_instruments_exchange_symbol
    ON instruments(exchange, symbol);
CREATE INDEX IF NOT EXISTS idx_futures_underlying
    ON futures(underlying_id, expiry);
CREATE INDEX IF NOT EXISTS idx_options_underlying
    ON options(underlying_id, expiry, strike, option_type);
`

// metaLastUpdated is the _meta key holding the last successful refresh
// date (ISO, in the exchanges' time zone).
const metaLastUpdated = "last_updated"
