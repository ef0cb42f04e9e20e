package stream

import (
	"sync"

	"github.com/tradetools/ttconnect/domain"
)

// Ledger is the token bookkeeping every streaming client keeps: which
// vendor tokens are live, which canonical instrument each belongs to,
// and which venue it is listed on (reconnects rebuild the vendor
// subscribe message from this). Safe for concurrent use; the receive
// loop reads while subscribe/unsubscribe mutate.
type Ledger struct {
	mu          sync.RWMutex
	instruments map[string]domain.Instrument
	venues      map[string]domain.Exchange
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		instruments: make(map[string]domain.Instrument),
		venues:      make(map[string]domain.Exchange),
	}
}

// Add tracks a token. Returns false when the token was already tracked;
// duplicates keep their original mapping.
func (l *Ledger) Add(token string, instrument domain.Instrument, venue domain.Exchange) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.instruments[token]; exists {
		return false
	}
	l.instruments[token] = instrument
	l.venues[token] = venue
	return true
}

// Remove drops every token mapped to one of the given instruments and
// returns the dropped tokens (needed for the vendor unsubscribe
// message).
func (l *Ledger) Remove(instruments []domain.Instrument) []string {
	drop := make(map[domain.Instrument]bool, len(instruments))
	for _, inst := range instruments {
		drop[inst] = true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	var removed []string
	for token, inst := range l.instruments {
		if drop[inst] {
			removed = append(removed, token)
			delete(l.instruments, token)
			delete(l.venues, token)
		}
	}
	return removed
}

// TokensFor returns the tracked tokens belonging to the given
// instruments. Callers that need venue grouping for an unsubscribe
// message fetch tokens (and group them) before removing.
func (l *Ledger) TokensFor(instruments []domain.Instrument) []string {
	want := make(map[domain.Instrument]bool, len(instruments))
	for _, inst := range instruments {
		want[inst] = true
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	var tokens []string
	for token, inst := range l.instruments {
		if want[inst] {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// Instrument returns the canonical instrument for a token. The second
// return is false for tokens the ledger does not track (ticks for those
// are stale leftovers and get dropped).
func (l *Ledger) Instrument(token string) (domain.Instrument, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	inst, ok := l.instruments[token]
	return inst, ok
}

// Tokens returns every tracked token.
func (l *Ledger) Tokens() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tokens := make([]string, 0, len(l.instruments))
	for token := range l.instruments {
		tokens = append(tokens, token)
	}
	return tokens
}

// GroupByVenue buckets the given tokens by listing venue. Unknown tokens
// are skipped.
func (l *Ledger) GroupByVenue(tokens []string) map[domain.Exchange][]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	grouped := make(map[domain.Exchange][]string)
	for _, token := range tokens {
		venue, ok := l.venues[token]
		if !ok {
			continue
		}
		grouped[venue] = append(grouped[venue], token)
	}
	return grouped
}

// Len returns the number of tracked tokens.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.instruments)
}
