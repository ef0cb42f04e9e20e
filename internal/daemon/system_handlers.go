package daemon

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tradetools/ttconnect/internal/reliability"
	"github.com/tradetools/ttconnect/store"
)

// SystemHandlers serves the monitoring and operations endpoints.
type SystemHandlers struct {
	log         zerolog.Logger
	brokerID    string
	startupTime time.Time
	store       *store.Store
	fetch       store.FetchFunc
	backups     *reliability.Backups
}

// NewSystemHandlers creates the handler set.
func NewSystemHandlers(log zerolog.Logger, brokerID string, st *store.Store, fetch store.FetchFunc, backups *reliability.Backups) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		brokerID:    brokerID,
		startupTime: time.Now(),
		store:       st,
		fetch:       fetch,
		backups:     backups,
	}
}

type systemResponse struct {
	Broker        string  `json:"broker"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	RAMPercent    float64 `json:"ram_percent"`
	LastUpdated   string  `json:"last_updated"`
	Stale         bool    `json:"stale"`
	Instruments   int     `json:"instruments"`
	Equities      int     `json:"equities"`
	Futures       int     `json:"futures"`
	Options       int     `json:"options"`
	BrokerTokens  int     `json:"broker_tokens"`
	DBSizeBytes   int64   `json:"db_size_bytes"`
	WALSizeBytes  int64   `json:"wal_size_bytes"`
}

// HandleSystem reports host load and instrument-store freshness.
// GET /api/system
func (h *SystemHandlers) HandleSystem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.store.Counts(ctx)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	lastUpdated, err := h.store.LastUpdated(ctx)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	stale, err := h.store.IsStale(ctx)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	cpuPercent, ramPercent := h.hostLoad()
	resp := systemResponse{
		Broker:        h.brokerID,
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		LastUpdated:   lastUpdated,
		Stale:         stale,
		Instruments:   counts.Instruments,
		Equities:      counts.Equities,
		Futures:       counts.Futures,
		Options:       counts.Options,
		BrokerTokens:  counts.BrokerTokens,
	}
	if stats, err := h.store.DB().GetStats(); err == nil {
		resp.DBSizeBytes = stats.SizeBytes
		resp.WALSizeBytes = stats.WALSizeBytes
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleRefresh force-rebuilds the instrument master.
// POST /api/refresh
func (h *SystemHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	if err := h.store.Refresh(r.Context(), h.fetch); err != nil {
		h.log.Error().Err(err).Msg("Manual refresh failed")
		h.writeError(w, http.StatusBadGateway, err)
		return
	}

	counts, err := h.store.Counts(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.log.Info().Dur("duration_ms", time.Since(startTime)).Msg("Manual refresh completed")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "refreshed",
		"duration_ms": time.Since(startTime).Milliseconds(),
		"instruments": counts.Instruments,
	})
}

// HandleBackup uploads a backup archive on demand.
// POST /api/backup
func (h *SystemHandlers) HandleBackup(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": "backups are not configured",
		})
		return
	}

	startTime := time.Now()
	if err := h.backups.Backup(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Manual backup failed")
		h.writeError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "backed_up",
		"duration_ms": time.Since(startTime).Milliseconds(),
	})
}

// hostLoad samples CPU and memory usage. Failures degrade to zero rather
// than failing the endpoint.
func (h *SystemHandlers) hostLoad() (cpuPercent, ramPercent float64) {
	percents, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to sample CPU usage")
	} else if len(percents) > 0 {
		cpuPercent = percents[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read memory statistics")
		return cpuPercent, 0
	}
	return cpuPercent, memStat.UsedPercent
}

func (h *SystemHandlers) writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
