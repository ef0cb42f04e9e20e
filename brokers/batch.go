package brokers

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/tradetools/ttconnect/domain"
)

// batchConcurrency bounds fan-out so a large order book does not open a
// connection per row against a rate-limited vendor.
const batchConcurrency = 8

// CancelAll fetches the order book, filters to cancellable states, and
// issues cancels concurrently. Outcomes partition into cancelled and
// failed order ids; one failure never aborts the batch and nothing is
// returned as an error.
func CancelAll(ctx context.Context, adapter Adapter, log zerolog.Logger) (cancelled, failed []string) {
	orders, err := adapter.GetOrders(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch orders for cancel-all")
		return nil, nil
	}

	var pending []string
	for _, order := range orders {
		if order.Status == domain.StatusOpen || order.Status == domain.StatusPending {
			pending = append(pending, order.ID)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	workers := pool.New().WithMaxGoroutines(batchConcurrency)
	for _, orderID := range pending {
		workers.Go(func() {
			err := protect(func() error { return adapter.CancelOrder(ctx, orderID) })

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Err(err).Str("order_id", orderID).Msg("Cancel failed")
				failed = append(failed, orderID)
			} else {
				cancelled = append(cancelled, orderID)
			}
		})
	}
	workers.Wait()

	log.Info().
		Int("cancelled", len(cancelled)).
		Int("failed", len(failed)).
		Msg("Cancel-all complete")
	return cancelled, failed
}

// PositionCloser is what CloseAll needs from an adapter: the vendor's raw
// position rows and a way to place one offsetting market order. Raw rows
// flow straight back into the vendor's ToCloseParams, so nothing here
// interprets their shape beyond quantity and symbol.
type PositionCloser interface {
	RawPositions(ctx context.Context) ([]Payload, error)
	PositionQty(raw Payload) int
	PositionSymbol(raw Payload) string
	PlaceClose(ctx context.Context, raw Payload, qty int, side domain.Side) (string, error)
}

// CloseAll places offsetting market orders for every non-zero position
// concurrently. Successes are placed order ids, failures are the
// position's vendor symbol. Never returns an error.
func CloseAll(ctx context.Context, closer PositionCloser, log zerolog.Logger) (placed, failedSymbols []string) {
	raws, err := closer.RawPositions(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch positions for close-all")
		return nil, nil
	}

	var mu sync.Mutex
	workers := pool.New().WithMaxGoroutines(batchConcurrency)
	for _, raw := range raws {
		qty := closer.PositionQty(raw)
		if qty == 0 {
			continue
		}

		// Long positions sell to flat, shorts buy back.
		closeQty, side := qty, domain.SideSell
		if qty < 0 {
			closeQty, side = -qty, domain.SideBuy
		}

		workers.Go(func() {
			var orderID string
			err := protect(func() error {
				var placeErr error
				orderID, placeErr = closer.PlaceClose(ctx, raw, closeQty, side)
				return placeErr
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				symbol := closer.PositionSymbol(raw)
				log.Warn().Err(err).Str("symbol", symbol).Msg("Close failed")
				failedSymbols = append(failedSymbols, symbol)
			} else {
				placed = append(placed, orderID)
			}
		})
	}
	workers.Wait()

	log.Info().
		Int("placed", len(placed)).
		Int("failed", len(failedSymbols)).
		Msg("Close-all complete")
	return placed, failedSymbols
}

// protect converts a panic inside a batch item into that item's failure.
func protect(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}
