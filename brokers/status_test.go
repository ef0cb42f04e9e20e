package brokers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradetools/ttconnect/domain"
)

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want domain.OrderStatus
	}{
		{"COMPLETE", domain.StatusComplete},
		{"OPEN", domain.StatusOpen},
		{"CANCELLED", domain.StatusCancelled},
		{"REJECTED", domain.StatusRejected},

		// Pre-exchange states fold to PENDING.
		{"TRIGGER PENDING", domain.StatusPending},
		{"PUT ORDER REQ RECEIVED", domain.StatusPending},
		{"VALIDATION PENDING", domain.StatusPending},
		{"AMO REQ RECEIVED", domain.StatusPending},

		// Post-exchange transitions stay OPEN: the original order is
		// still live at the venue while the change settles.
		{"MODIFY PENDING", domain.StatusOpen},
		{"MODIFIED", domain.StatusOpen},
		{"CANCEL PENDING", domain.StatusOpen},

		{"CANCELLED AMO", domain.StatusCancelled},

		// Folding is case- and whitespace-insensitive.
		{"complete", domain.StatusComplete},
		{"  Trigger Pending  ", domain.StatusPending},

		// Unknown vendor statuses are treated as still in flight.
		{"SOME NEW VENDOR STATE", domain.StatusPending},
		{"", domain.StatusPending},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeStatus(tc.raw), "raw status %q", tc.raw)
	}
}
