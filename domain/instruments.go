// Package domain holds the canonical, broker-agnostic data model: the
// instrument variants users address the market with, the record types
// returned by every adapter, and the enums shared across the library.
//
// Instrument values are small comparable structs. Two instruments are the
// same iff their fields are equal, which makes every variant directly
// usable as a map key (resolver memoization, subscription ledgers).
package domain

import (
	"fmt"
	"time"
)

// Date is a calendar date without a time zone, comparable with ==.
// Expiries are dates, not instants; vendors print them in their own
// formats and the store persists them as ISO strings.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a Date from its parts.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses s with the given time layout into a Date.
func ParseDate(layout, s string) (Date, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// String renders the date as ISO "2006-01-02".
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// IST is the Indian Standard Time zone (+05:30, no DST). Instrument
// staleness and session expiry are defined against it regardless of
// where the process runs.
var IST = time.FixedZone("IST", 5*3600+30*60)

// Today returns the current calendar date in IST.
func Today() Date {
	return DateOf(time.Now().In(IST))
}

// Instrument is the canonical identity of a subscribable or tradeable
// entity. Exactly four variants implement it: Index, Equity, Future and
// Option. For derivatives, Exchange names the UNDERLYING's cash venue
// (NSE/BSE): users key into contracts by what they know; the resolver
// maps to the derivative venue.
type Instrument interface {
	// Venue returns the user-facing exchange keying the instrument.
	Venue() Exchange
	// Tradeable reports whether orders may reference the instrument.
	// Indices are subscribable but never tradeable.
	Tradeable() bool
	// Describe renders a log-friendly identity string.
	Describe() string

	sealed()
}

// Index is a market index (NIFTY, SENSEX, ...). Not tradeable; used as an
// F&O underlying key and for tick subscription.
type Index struct {
	Exchange Exchange
	Symbol   string
}

func (i Index) Venue() Exchange { return i.Exchange }
func (i Index) Tradeable() bool { return false }
func (i Index) Describe() string {
	return fmt.Sprintf("%s:%s INDEX", i.Exchange, i.Symbol)
}
func (Index) sealed() {}

// Equity is a cash-market stock.
type Equity struct {
	Exchange Exchange
	Symbol   string
}

func (e Equity) Venue() Exchange { return e.Exchange }
func (e Equity) Tradeable() bool { return true }
func (e Equity) Describe() string {
	return fmt.Sprintf("%s:%s EQ", e.Exchange, e.Symbol)
}
func (Equity) sealed() {}

// Future is a futures contract, keyed by the underlying's cash venue and
// canonical symbol plus the contract expiry.
type Future struct {
	Exchange Exchange
	Symbol   string
	Expiry   Date
}

func (f Future) Venue() Exchange { return f.Exchange }
func (f Future) Tradeable() bool { return true }
func (f Future) Describe() string {
	return fmt.Sprintf("%s:%s FUT %s", f.Exchange, f.Symbol, f.Expiry)
}
func (Future) sealed() {}

// Option is an options contract, keyed like Future plus strike and side.
type Option struct {
	Exchange   Exchange
	Symbol     string
	Expiry     Date
	Strike     float64
	OptionType OptionType
}

func (o Option) Venue() Exchange { return o.Exchange }
func (o Option) Tradeable() bool { return true }
func (o Option) Describe() string {
	return fmt.Sprintf("%s:%s %g%s %s", o.Exchange, o.Symbol, o.Strike, o.OptionType, o.Expiry)
}
func (Option) sealed() {}

// RoutingVenue returns the exchange an order for the instrument is
// routed to: the derivative venue (NFO/BFO) for futures and options, the
// instrument's own venue otherwise.
func RoutingVenue(instrument Instrument) Exchange {
	switch instrument.(type) {
	case Future, Option:
		if d := DerivativeExchange(instrument.Venue()); d != "" {
			return d
		}
	}
	return instrument.Venue()
}
