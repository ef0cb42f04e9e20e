package angelone

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradetools/ttconnect/domain"
)

const scripMasterJSON = `[
	{"token":"99926000","symbol":"Nifty 50","name":"NIFTY","expiry":"","strike":"-1.000000","lotsize":"1","instrumenttype":"AMXIDX","exch_seg":"NSE","tick_size":"0.000000"},
	{"token":"99919000","symbol":"SENSEX","name":"SENSEX","expiry":"","strike":"-1.000000","lotsize":"1","instrumenttype":"AMXIDX","exch_seg":"BSE","tick_size":"0.000000"},
	{"token":"3045","symbol":"SBIN-EQ","name":"STATE BANK OF INDIA","expiry":"","strike":"-1.000000","lotsize":"1","instrumenttype":"","exch_seg":"NSE","tick_size":"5.000000"},
	{"token":"2885","symbol":"RELIANCE-EQ","name":"RELIANCE INDUSTRIES","expiry":"","strike":"-1.000000","lotsize":"1","instrumenttype":"","exch_seg":"BSE","tick_size":"5.000000"},
	{"token":"800123","symbol":"754GOI2036-GS","name":"GOI LOAN","expiry":"","strike":"-1.000000","lotsize":"100","instrumenttype":"","exch_seg":"NSE","tick_size":"1.000000"},
	{"token":"800124","symbol":"LIQUIDBEES-MF","name":"LIQUID FUND","expiry":"","strike":"-1.000000","lotsize":"1","instrumenttype":"","exch_seg":"NSE","tick_size":"1.000000"},
	{"token":"50958","symbol":"NIFTY26FEB26FUT","name":"NIFTY","expiry":"26FEB2026","strike":"-1.000000","lotsize":"75","instrumenttype":"FUTIDX","exch_seg":"NFO","tick_size":"5.000000"},
	{"token":"51279","symbol":"NIFTY26FEB2623000CE","name":"NIFTY","expiry":"26FEB2026","strike":"2300000.000000","lotsize":"75","instrumenttype":"OPTIDX","exch_seg":"NFO","tick_size":"5.000000"},
	{"token":"51280","symbol":"NIFTY26FEB2623000PE","name":"NIFTY","expiry":"26FEB2026","strike":"2300000.000000","lotsize":"75","instrumenttype":"OPTIDX","exch_seg":"NFO","tick_size":"5.000000"},
	{"token":"51281","symbol":"NIFTY26FEB26BADCE","name":"NIFTY","expiry":"26FEB2026","strike":"0.000000","lotsize":"75","instrumenttype":"OPTIDX","exch_seg":"NFO","tick_size":"5.000000"},
	{"token":"427009","symbol":"GOLD05APR26FUT","name":"GOLD","expiry":"05APR2026","strike":"-1.000000","lotsize":"100","instrumenttype":"FUTCOM","exch_seg":"MCX","tick_size":"100.000000"}
]`

func TestParseInstrumentsGroups(t *testing.T) {
	parsed, err := ParseInstruments([]byte(scripMasterJSON), zerolog.Nop())
	require.NoError(t, err)

	assert.Len(t, parsed.Indices, 2)
	assert.Len(t, parsed.Equities, 2, "bond and fund listings drop on their symbol suffixes")
	assert.Len(t, parsed.Futures, 1, "MCX commodity futures are out of scope")
	assert.Len(t, parsed.Options, 2, "the zero-strike option row drops")
}

func TestParseInstrumentsIndexIdentity(t *testing.T) {
	parsed, err := ParseInstruments([]byte(scripMasterJSON), zerolog.Nop())
	require.NoError(t, err)

	nifty := parsed.Indices[0]
	assert.Equal(t, "NIFTY", nifty.Symbol, "canonical identity comes from the name column, uppercased")
	assert.Equal(t, "Nifty 50", nifty.BrokerSymbol)
	assert.Equal(t, domain.ExchangeNSE, nifty.Exchange)
	assert.Equal(t, "99926000", nifty.BrokerToken)
}

func TestParseInstrumentsEquitySuffix(t *testing.T) {
	parsed, err := ParseInstruments([]byte(scripMasterJSON), zerolog.Nop())
	require.NoError(t, err)

	sbin := parsed.Equities[0]
	assert.Equal(t, "SBIN", sbin.Symbol)
	assert.Equal(t, "SBIN-EQ", sbin.BrokerSymbol)
	assert.Equal(t, 0.05, sbin.TickSize, "tick size converts from paise")
}

func TestParseInstrumentsDerivatives(t *testing.T) {
	parsed, err := ParseInstruments([]byte(scripMasterJSON), zerolog.Nop())
	require.NoError(t, err)

	fut := parsed.Futures[0]
	assert.Equal(t, "NIFTY", fut.Symbol)
	assert.Equal(t, "2026-02-26", fut.Expiry.String(), "DDMMMYYYY expiry parses to ISO")
	assert.Equal(t, domain.ExchangeNSE, fut.UnderlyingExchange)
	assert.Equal(t, 75, fut.LotSize)

	ce := parsed.Options[0]
	assert.Equal(t, 23000.0, ce.Strike, "strike converts from paise")
	assert.Equal(t, domain.OptionCE, ce.OptionType, "the side reads off the symbol tail")
	assert.Equal(t, domain.OptionPE, parsed.Options[1].OptionType)
}

func TestParseInstrumentsBadJSON(t *testing.T) {
	_, err := ParseInstruments([]byte(`{"not":"an array"}`), zerolog.Nop())
	assert.Error(t, err)
}

func TestParseExpiry(t *testing.T) {
	expiry, err := parseExpiry("27jun2028")
	require.NoError(t, err)
	assert.Equal(t, "2028-06-27", expiry.String(), "parsing is case-insensitive")

	for _, bad := range []string{"", "27JUNE2028", "99JUN2028", "27XXX2028", "2026-02-26"} {
		_, err := parseExpiry(bad)
		assert.Error(t, err, "expiry %q must not parse", bad)
	}
}

func TestPaiseToRupees(t *testing.T) {
	assert.Equal(t, 23000.0, paiseToRupees("2300000.000000"))
	assert.Equal(t, 0.05, paiseToRupees("5.000000"), "division is exact, no float drift")
	assert.Equal(t, 0.0, paiseToRupees("garbage"))
}
