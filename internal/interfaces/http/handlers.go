package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/cryptoscout/scout/internal/net/circuit"
	"github.com/cryptoscout/scout/internal/net/usage"
	"github.com/cryptoscout/scout/internal/persistence"
	"github.com/cryptoscout/scout/internal/ranking"
	"github.com/cryptoscout/scout/internal/scan"
)

// RankingProvider serves ranked views of the scored asset set.
type RankingProvider interface {
	GetView(ctx context.Context, profile, view string) ([]ranking.RankedAsset, error)
}

// ScanRunner executes one scan cycle on demand.
type ScanRunner func(ctx context.Context) (scan.Summary, error)

// ProviderHealth reports one external provider's breaker and usage
// state.
type ProviderHealth struct {
	Circuit circuit.Snapshot `json:"circuit"`
	Usage   usage.Snapshot   `json:"usage"`
}

// HealthFunc collects per-provider health for the health endpoint.
type HealthFunc func() map[string]ProviderHealth

// Handlers holds the API handler set and its collaborators.
type Handlers struct {
	rankings RankingProvider
	store    persistence.Store
	status   *scan.Status
	runScan  ScanRunner
	health   HealthFunc
	ws       http.Handler

	scanInFlight atomic.Bool
}

func NewHandlers(rankings RankingProvider, store persistence.Store, status *scan.Status,
	runScan ScanRunner, health HealthFunc, ws http.Handler) *Handlers {
	if health == nil {
		health = func() map[string]ProviderHealth { return nil }
	}
	if ws == nil {
		ws = http.NotFoundHandler()
	}
	return &Handlers{
		rankings: rankings,
		store:    store,
		status:   status,
		runScan:  runScan,
		health:   health,
		ws:       ws,
	}
}

type healthResponse struct {
	Status    string                    `json:"status"`
	Scan      scan.StatusSnapshot       `json:"scan"`
	Providers map[string]ProviderHealth `json:"providers,omitempty"`
	Time      time.Time                 `json:"time"`
}

// Health reports degraded (not erroring) when the scan loop is
// failing; consumers never see a 5xx from pipeline faults.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.status.Snapshot()
	status := "ok"
	if snap.FailureCount > 0 {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    status,
		Scan:      snap,
		Providers: h.health(),
		Time:      time.Now().UTC(),
	})
}

// Rankings serves /rankings and /rankings/{view}. Query parameters:
// profile (aggressive|conservative|balanced), limit, and offset.
func (h *Handlers) Rankings(w http.ResponseWriter, r *http.Request) {
	view := mux.Vars(r)["view"]
	if view == "" {
		view = ranking.ViewShortTerm
	}
	profile := ranking.NormalizeProfile(r.URL.Query().Get("profile"))

	ranked, err := h.rankings.GetView(r.Context(), profile, view)
	if err != nil {
		// Serve an empty set rather than surfacing internal faults.
		log.Error().Err(err).Str("view", view).Msg("http: ranking view failed")
		ranked = []ranking.RankedAsset{}
	}
	offset := queryInt(r, "offset", 0)
	if offset >= len(ranked) {
		ranked = []ranking.RankedAsset{}
	} else {
		ranked = ranked[offset:]
	}
	if limit := queryInt(r, "limit", 0); limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profile": profile,
		"view":    view,
		"offset":  offset,
		"count":   len(ranked),
		"assets":  ranked,
	})
}

// Asset serves one asset by symbol.
func (h *Handlers) Asset(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	asset, found, err := h.store.Assets.Get(r.Context(), symbol)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("http: asset lookup failed")
		writeJSON(w, http.StatusOK, map[string]interface{}{"asset": nil})
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "unknown symbol "+symbol)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"asset": asset})
}

// AssetHistory serves recent history snapshots for one symbol.
func (h *Handlers) AssetHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	limit := queryInt(r, "limit", 50)
	rows, err := h.store.History.Recent(r.Context(), symbol, limit)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("http: history lookup failed")
		rows = nil
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":  symbol,
		"count":   len(rows),
		"history": rows,
	})
}

// Alerts serves recent alerts, newest first.
func (h *Handlers) Alerts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	alerts, err := h.store.Alerts.Recent(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("http: alerts lookup failed")
		alerts = nil
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

// MarkAlertRead flags one alert as read.
func (h *Handlers) MarkAlertRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}
	found, err := h.store.Alerts.MarkRead(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Int64("alert_id", id).Msg("http: alert mark-read failed")
		writeError(w, http.StatusInternalServerError, "could not update alert")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "unknown alert id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// TriggerScan starts a scan cycle in the background. A 409 means one
// is already running.
func (h *Handlers) TriggerScan(w http.ResponseWriter, r *http.Request) {
	if h.runScan == nil {
		writeError(w, http.StatusServiceUnavailable, "scanning not configured")
		return
	}
	if !h.scanInFlight.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "scan already in progress")
		return
	}
	go func() {
		defer h.scanInFlight.Store(false)
		if _, err := h.runScan(context.Background()); err != nil {
			log.Error().Err(err).Msg("http: triggered scan failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// NotFound keeps 404s JSON-shaped like everything else.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeError(w, http.StatusNotFound, "not found")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("http: response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
