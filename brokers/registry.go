package brokers

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tradetools/ttconnect/config"
)

// Constructor builds one vendor's adapter from client configuration. The
// adapter validates its own required keys and fails fast on what it is
// missing.
type Constructor func(cfg config.Config, log zerolog.Logger) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register adds a vendor constructor under its broker id. Vendor packages
// call this from init(); importing a vendor package is what makes it
// available. Registering the same id twice panics: that is a wiring bug,
// not a runtime condition.
func Register(brokerID string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()

	id := strings.ToLower(brokerID)
	if _, exists := registry[id]; exists {
		panic(fmt.Sprintf("brokers: %q registered twice", id))
	}
	registry[id] = ctor
}

// New constructs the adapter registered under brokerID.
func New(brokerID string, cfg config.Config, log zerolog.Logger) (Adapter, error) {
	registryMu.RLock()
	ctor, ok := registry[strings.ToLower(brokerID)]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown broker %q, registered: %s",
			brokerID, strings.Join(Registered(), ", "))
	}
	return ctor(cfg, log)
}

// Registered returns the registered broker ids, sorted.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
