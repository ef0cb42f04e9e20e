package domain

// Parsed instrument groups: the uniform output of every vendor's master
// parser, and the input to the store's refresh. The store inserts groups
// in dependency order (indices, equities, then derivatives), so parsers
// only classify; they never need to order rows.

// ParsedIndex is one index row from a vendor master.
type ParsedIndex struct {
	Exchange     Exchange
	Symbol       string // canonical, what users write: "NIFTY", "BANKNIFTY"
	BrokerSymbol string // vendor display symbol: "NIFTY 50", "Nifty Bank"
	Segment      string
	Name         string
	LotSize      int
	TickSize     float64
	BrokerToken  string
}

// ParsedEquity is one cash-equity row from a vendor master.
type ParsedEquity struct {
	Exchange     Exchange
	Symbol       string // canonical, vendor suffixes (e.g. "-EQ") stripped
	BrokerSymbol string
	Segment      string
	Name         string
	ISIN         string
	LotSize      int
	TickSize     float64
	BrokerToken  string
}

// ParsedFuture is one futures row. Exchange is the derivative venue
// (NFO/BFO); UnderlyingExchange is the cash venue the underlying row
// lives on.
type ParsedFuture struct {
	Exchange           Exchange
	Symbol             string // underlying canonical name: "NIFTY", "RELIANCE"
	BrokerSymbol       string // vendor tradingsymbol: "NIFTY26FEBFUT"
	Segment            string
	LotSize            int
	TickSize           float64
	BrokerToken        string
	Expiry             Date
	UnderlyingExchange Exchange
}

// ParsedOption is one options row. Strike is in rupees (vendor paise
// encodings are normalized by the parser).
type ParsedOption struct {
	Exchange           Exchange
	Symbol             string
	BrokerSymbol       string
	Segment            string
	LotSize            int
	TickSize           float64
	BrokerToken        string
	Expiry             Date
	Strike             float64
	OptionType         OptionType
	UnderlyingExchange Exchange
}

// ParsedInstruments is the container for all parsed groups.
type ParsedInstruments struct {
	Indices  []ParsedIndex
	Equities []ParsedEquity
	Futures  []ParsedFuture
	Options  []ParsedOption
}

// Total returns the number of rows across all groups.
func (p *ParsedInstruments) Total() int {
	if p == nil {
		return 0
	}
	return len(p.Indices) + len(p.Equities) + len(p.Futures) + len(p.Options)
}
