// Package zerodha implements the Zerodha (Kite Connect) adapter: CSV
// instrument master, form-encoded REST, manual token auth.
package zerodha

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tradetools/ttconnect/domain"
)

// indexNames maps canonical index symbols to Zerodha's display names.
// Derivative rows carry only the canonical in their name column, so every
// F&O underlying index must appear here; indices outside the table pass
// through with canonical == display.
var indexNames = map[string]indexListing{
	"NIFTY":      {domain.ExchangeNSE, "NIFTY 50"},
	"BANKNIFTY":  {domain.ExchangeNSE, "NIFTY BANK"},
	"MIDCPNIFTY": {domain.ExchangeNSE, "NIFTY MID SELECT"},
	"FINNIFTY":   {domain.ExchangeNSE, "NIFTY FIN SERVICE"},
	"NIFTY500":   {domain.ExchangeNSE, "NIFTY 500"},
	"SENSEX":     {domain.ExchangeBSE, "SENSEX"},
	"BANKEX":     {domain.ExchangeBSE, "BANKEX"},
	"SENSEX50":   {domain.ExchangeBSE, "SNSX50"},
}

type indexListing struct {
	exchange domain.Exchange
	display  string
}

// displayToCanonical is the reverse of indexNames, built once.
var displayToCanonical = func() map[string]string {
	m := make(map[string]string, len(indexNames))
	for canonical, listing := range indexNames {
		m[listing.display] = canonical
	}
	return m
}()

// ParseInstruments transforms the Kite instrument dump CSV into parsed
// groups. Columns are addressed by header name, not position. Rows that
// match no classification rule (commodity segments, bonds, unknown
// types) are silently dropped.
func ParseInstruments(r io.Reader, log zerolog.Logger) (*domain.ParsedInstruments, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read instrument CSV header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"instrument_token", "tradingsymbol", "name", "expiry", "strike", "lot_size", "instrument_type", "segment", "exchange"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("instrument CSV is missing column %q", required)
		}
	}

	field := func(record []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	parsed := &domain.ParsedInstruments{}
	var malformed int
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read instrument CSV row: %w", err)
		}

		row := csvRow{
			token:          field(record, "instrument_token"),
			tradingsymbol:  field(record, "tradingsymbol"),
			name:           field(record, "name"),
			expiry:         field(record, "expiry"),
			strike:         field(record, "strike"),
			lotSize:        field(record, "lot_size"),
			tickSize:       field(record, "tick_size"),
			instrumentType: field(record, "instrument_type"),
			segment:        field(record, "segment"),
			exchange:       domain.Exchange(field(record, "exchange")),
		}

		if err := classify(parsed, row); err != nil {
			malformed++
			log.Warn().
				Err(err).
				Str("tradingsymbol", row.tradingsymbol).
				Str("exchange", string(row.exchange)).
				Msg("Skipping malformed instrument row")
		}
	}

	if malformed > 0 {
		log.Warn().Int("rows", malformed).Msg("Instrument master contained malformed rows")
	}
	return parsed, nil
}

type csvRow struct {
	token          string
	tradingsymbol  string
	name           string
	expiry         string
	strike         string
	lotSize        string
	tickSize       string
	instrumentType string
	segment        string
	exchange       domain.Exchange
}

func (r csvRow) cash() bool {
	return r.exchange == domain.ExchangeNSE || r.exchange == domain.ExchangeBSE
}

func (r csvRow) derivative() bool {
	return r.exchange == domain.ExchangeNFO || r.exchange == domain.ExchangeBFO
}

// classify appends the row to its parsed group, or drops it. An error
// means the row matched a rule but its fields do not parse; the row is
// dropped either way.
func classify(parsed *domain.ParsedInstruments, row csvRow) error {
	switch {
	case row.cash() && row.segment == "INDICES":
		canonical := row.tradingsymbol
		if mapped, ok := displayToCanonical[row.tradingsymbol]; ok {
			canonical = mapped
		}
		parsed.Indices = append(parsed.Indices, domain.ParsedIndex{
			Exchange:     row.exchange,
			Symbol:       canonical,
			BrokerSymbol: row.tradingsymbol,
			Segment:      "INDICES",
			Name:         row.name,
			LotSize:      parseInt(row.lotSize, 1),
			TickSize:     parseFloat(row.tickSize),
			BrokerToken:  row.token,
		})

	case row.cash() && row.instrumentType == "EQ":
		parsed.Equities = append(parsed.Equities, domain.ParsedEquity{
			Exchange:     row.exchange,
			Symbol:       strings.TrimSuffix(row.tradingsymbol, "-EQ"),
			BrokerSymbol: row.tradingsymbol,
			Segment:      row.segment,
			Name:         row.name,
			LotSize:      parseInt(row.lotSize, 1),
			TickSize:     parseFloat(row.tickSize),
			BrokerToken:  row.token,
		})

	case row.derivative() && row.instrumentType == "FUT":
		expiry, err := domain.ParseDate("2006-01-02", row.expiry)
		if err != nil {
			return fmt.Errorf("bad expiry %q: %w", row.expiry, err)
		}
		parsed.Futures = append(parsed.Futures, domain.ParsedFuture{
			Exchange:           row.exchange,
			Symbol:             row.name,
			BrokerSymbol:       row.tradingsymbol,
			Segment:            row.segment,
			LotSize:            parseInt(row.lotSize, 1),
			TickSize:           parseFloat(row.tickSize),
			BrokerToken:        row.token,
			Expiry:             expiry,
			UnderlyingExchange: domain.UnderlyingExchange(row.exchange),
		})

	case row.derivative() && (row.instrumentType == "CE" || row.instrumentType == "PE"):
		expiry, err := domain.ParseDate("2006-01-02", row.expiry)
		if err != nil {
			return fmt.Errorf("bad expiry %q: %w", row.expiry, err)
		}
		strike := parseFloat(row.strike)
		if strike <= 0 {
			return fmt.Errorf("option with strike %q", row.strike)
		}
		parsed.Options = append(parsed.Options, domain.ParsedOption{
			Exchange:           row.exchange,
			Symbol:             row.name,
			BrokerSymbol:       row.tradingsymbol,
			Segment:            row.segment,
			LotSize:            parseInt(row.lotSize, 1),
			TickSize:           parseFloat(row.tickSize),
			BrokerToken:        row.token,
			Expiry:             expiry,
			Strike:             strike,
			OptionType:         domain.OptionType(row.instrumentType),
			UnderlyingExchange: domain.UnderlyingExchange(row.exchange),
		})
	}
	return nil
}

func parseInt(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
