// Package angelone implements the AngelOne (SmartAPI) adapter: JSON
// instrument master, TOTP-based automatic auth, JSON REST, and binary
// tick streaming over WebSocket.
package angelone

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tradetools/ttconnect/domain"
)

// scripRow is one entry of the OpenAPIScripMaster dump. Every field is a
// string on the wire, including the numerics.
type scripRow struct {
	Token          string `json:"token"`
	Symbol         string `json:"symbol"`
	Name           string `json:"name"`
	Expiry         string `json:"expiry"`
	Strike         string `json:"strike"`
	LotSize        string `json:"lotsize"`
	InstrumentType string `json:"instrumenttype"`
	ExchSeg        string `json:"exch_seg"`
	TickSize       string `json:"tick_size"`
}

// rejectedSuffixes marks non-equity cash listings (bonds, mutual funds,
// SME boards) that share the empty instrumenttype with equities.
var rejectedSuffixes = []string{"-GS", "-MF", "-SG", "-SM", "-IL", "-BL", "-CB", "-TB"}

// ParseInstruments transforms the SmartAPI scrip master JSON array into
// parsed groups. Unclassifiable rows are silently dropped.
func ParseInstruments(data []byte, log zerolog.Logger) (*domain.ParsedInstruments, error) {
	var rows []scripRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode scrip master: %w", err)
	}

	parsed := &domain.ParsedInstruments{}
	var malformed int
	for _, row := range rows {
		if err := classify(parsed, row); err != nil {
			malformed++
			log.Warn().
				Err(err).
				Str("symbol", row.Symbol).
				Str("exch_seg", row.ExchSeg).
				Msg("Skipping malformed scrip row")
		}
	}
	if malformed > 0 {
		log.Warn().Int("rows", malformed).Msg("Scrip master contained malformed rows")
	}
	return parsed, nil
}

func classify(parsed *domain.ParsedInstruments, row scripRow) error {
	exchange := domain.Exchange(strings.TrimSpace(row.ExchSeg))
	cash := exchange == domain.ExchangeNSE || exchange == domain.ExchangeBSE
	derivative := exchange == domain.ExchangeNFO || exchange == domain.ExchangeBFO

	switch {
	case cash && row.InstrumentType == "AMXIDX":
		// Index rows: canonical identity comes from name, the vendor's
		// display symbol from symbol ("Nifty 50").
		parsed.Indices = append(parsed.Indices, domain.ParsedIndex{
			Exchange:     exchange,
			Symbol:       strings.ToUpper(strings.TrimSpace(row.Name)),
			BrokerSymbol: strings.TrimSpace(row.Symbol),
			Segment:      "INDICES",
			Name:         row.Name,
			LotSize:      parseLot(row.LotSize),
			TickSize:     paiseToRupees(row.TickSize),
			BrokerToken:  row.Token,
		})

	case cash && row.InstrumentType == "":
		if hasRejectedSuffix(row.Symbol) {
			return nil
		}
		parsed.Equities = append(parsed.Equities, domain.ParsedEquity{
			Exchange:     exchange,
			Symbol:       strings.TrimSuffix(strings.TrimSpace(row.Symbol), "-EQ"),
			BrokerSymbol: strings.TrimSpace(row.Symbol),
			Segment:      "EQ",
			Name:         row.Name,
			LotSize:      parseLot(row.LotSize),
			TickSize:     paiseToRupees(row.TickSize),
			BrokerToken:  row.Token,
		})

	case derivative && (row.InstrumentType == "FUTIDX" || row.InstrumentType == "FUTSTK"):
		expiry, err := parseExpiry(row.Expiry)
		if err != nil {
			return err
		}
		parsed.Futures = append(parsed.Futures, domain.ParsedFuture{
			Exchange:           exchange,
			Symbol:             strings.ToUpper(strings.TrimSpace(row.Name)),
			BrokerSymbol:       strings.TrimSpace(row.Symbol),
			Segment:            row.InstrumentType,
			LotSize:            parseLot(row.LotSize),
			TickSize:           paiseToRupees(row.TickSize),
			BrokerToken:        row.Token,
			Expiry:             expiry,
			UnderlyingExchange: domain.UnderlyingExchange(exchange),
		})

	case derivative && (row.InstrumentType == "OPTIDX" || row.InstrumentType == "OPTSTK"):
		expiry, err := parseExpiry(row.Expiry)
		if err != nil {
			return err
		}
		strike := paiseToRupees(row.Strike)
		if strike <= 0 {
			return fmt.Errorf("option with strike %q", row.Strike)
		}
		optionType, err := optionTypeOf(row.Symbol)
		if err != nil {
			return err
		}
		parsed.Options = append(parsed.Options, domain.ParsedOption{
			Exchange:           exchange,
			Symbol:             strings.ToUpper(strings.TrimSpace(row.Name)),
			BrokerSymbol:       strings.TrimSpace(row.Symbol),
			Segment:            row.InstrumentType,
			LotSize:            parseLot(row.LotSize),
			TickSize:           paiseToRupees(row.TickSize),
			BrokerToken:        row.Token,
			Expiry:             expiry,
			Strike:             strike,
			OptionType:         optionType,
			UnderlyingExchange: domain.UnderlyingExchange(exchange),
		})
	}
	return nil
}

func hasRejectedSuffix(symbol string) bool {
	for _, suffix := range rejectedSuffixes {
		if strings.HasSuffix(symbol, suffix) {
			return true
		}
	}
	return false
}

// optionTypeOf reads the CE/PE side off the tradingsymbol tail
// ("NIFTY26FEB2623000CE").
func optionTypeOf(symbol string) (domain.OptionType, error) {
	s := strings.TrimSpace(symbol)
	if strings.HasSuffix(s, "CE") {
		return domain.OptionCE, nil
	}
	if strings.HasSuffix(s, "PE") {
		return domain.OptionPE, nil
	}
	return "", fmt.Errorf("option symbol %q has no CE/PE suffix", symbol)
}

var months = map[string]int{
	"JAN": 1, "FEB": 2, "MAR": 3, "APR": 4, "MAY": 5, "JUN": 6,
	"JUL": 7, "AUG": 8, "SEP": 9, "OCT": 10, "NOV": 11, "DEC": 12,
}

// parseExpiry parses the vendor's DDMMMYYYY expiry ("27JUN2028").
func parseExpiry(s string) (domain.Date, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 9 {
		return domain.Date{}, fmt.Errorf("bad expiry %q", s)
	}
	day, err := strconv.Atoi(s[:2])
	if err != nil || day < 1 || day > 31 {
		return domain.Date{}, fmt.Errorf("bad expiry day in %q", s)
	}
	month, ok := months[s[2:5]]
	if !ok {
		return domain.Date{}, fmt.Errorf("bad expiry month in %q", s)
	}
	year, err := strconv.Atoi(s[5:])
	if err != nil {
		return domain.Date{}, fmt.Errorf("bad expiry year in %q", s)
	}
	return domain.NewDate(year, time.Month(month), day), nil
}

// paiseToRupees parses a numeric string and divides by 100 exactly. The
// master stores strike and tick size in paise.
func paiseToRupees(s string) float64 {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return d.Div(decimal.NewFromInt(100)).InexactFloat64()
}

func parseLot(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 1
	}
	return n
}
