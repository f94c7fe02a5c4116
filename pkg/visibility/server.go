// Package visibility serves the read-only coordination API: federates,
// observations, beliefs, arbitrations, a correlation-id timeline, and
// aggregate statistics. Grounded on
// original_source/src/federation/visibility_api.py's VisibilityAPI,
// re-hosted on the plain net/http + http.ServeMux style
// pkg/console/server.go uses rather than FastAPI routers.
package visibility

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/slucerodev/admo-core/pkg/clock"
	"github.com/slucerodev/admo-core/pkg/contracts"
	"github.com/slucerodev/admo-core/pkg/store"
)

// Server hosts the read-only visibility endpoints over a fixed set of
// stores. Every method is a pure read; none of them can mutate system
// state.
type Server struct {
	identities   *store.IdentityStore
	observations *store.ObservationStore
	beliefs      *store.BeliefStore
	arbitrations *store.ArbitrationStore
	approvals    *store.ApprovalStore
	clock        clock.Clock
}

// New returns a Server wired to the given stores. arbitrations and
// approvals may be nil, mirroring the source's feature-flagged
// arbitration_service=None constructor path: arbitration and approval
// endpoints then report empty results instead of registering
// separately.
func New(identities *store.IdentityStore, observations *store.ObservationStore, beliefs *store.BeliefStore, arbitrations *store.ArbitrationStore, approvals *store.ApprovalStore, c clock.Clock) *Server {
	return &Server{
		identities: identities, observations: observations, beliefs: beliefs,
		arbitrations: arbitrations, approvals: approvals, clock: c,
	}
}

// Routes registers every visibility endpoint onto mux under
// /api/v2/visibility, the source's router prefix.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v2/visibility/federates", s.handleListFederates)
	mux.HandleFunc("/api/v2/visibility/observations", s.handleListObservations)
	mux.HandleFunc("/api/v2/visibility/beliefs", s.handleListBeliefs)
	mux.HandleFunc("/api/v2/visibility/timeline/", s.handleTimeline)
	mux.HandleFunc("/api/v2/visibility/arbitrations", s.handleListArbitrations)
	mux.HandleFunc("/api/v2/visibility/approvals", s.handleListApprovals)
	mux.HandleFunc("/api/v2/visibility/statistics", s.handleStatistics)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryLimit(r *http.Request, def int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func querySince(r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (s *Server) handleListFederates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	writeJSON(w, http.StatusOK, s.identities.List())
}

func (s *Server) handleListObservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	since, ok := querySince(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid since timestamp")
		return
	}
	q := r.URL.Query()
	filter := store.ObservationFilter{
		FederateID:      q.Get("federate_id"),
		CorrelationID:   q.Get("correlation_id"),
		ObservationType: contracts.ObservationType(q.Get("observation_type")),
		Since:           since,
		Limit:           queryLimit(r, 100),
	}
	writeJSON(w, http.StatusOK, s.observations.List(filter))
}

func (s *Server) handleListBeliefs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	since, ok := querySince(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid since timestamp")
		return
	}
	q := r.URL.Query()
	filter := store.BeliefFilter{
		CorrelationID: q.Get("correlation_id"),
		BeliefType:    contracts.ObservationType(q.Get("belief_type")),
		Since:         since,
		Limit:         queryLimit(r, 100),
	}
	writeJSON(w, http.StatusOK, s.beliefs.List(filter))
}

// timelineEntry is one row of a correlation id's merged
// observation/belief timeline, ordered by when it occurred.
type timelineEntry struct {
	At        time.Time            `json:"at"`
	Kind      string               `json:"kind"`
	Observation *contracts.Observation `json:"observation,omitempty"`
	Belief      *contracts.Belief      `json:"belief,omitempty"`
}

// TimelineInfo is the response body for GET .../timeline/{correlation_id}.
type TimelineInfo struct {
	CorrelationID string          `json:"correlation_id"`
	Entries       []timelineEntry `json:"entries"`
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	correlationID := extractPathSegment(r.URL.Path, "/api/v2/visibility/timeline/")
	if correlationID == "" {
		writeError(w, http.StatusBadRequest, "correlation_id required")
		return
	}

	observations := s.observations.List(store.ObservationFilter{CorrelationID: correlationID})
	beliefs := s.beliefs.List(store.BeliefFilter{CorrelationID: correlationID})

	entries := make([]timelineEntry, 0, len(observations)+len(beliefs))
	for i := range observations {
		entries = append(entries, timelineEntry{At: observations[i].TimestampUTC, Kind: "observation", Observation: &observations[i]})
	}
	for i := range beliefs {
		entries = append(entries, timelineEntry{At: beliefs[i].DerivedAt, Kind: "belief", Belief: &beliefs[i]})
	}
	sortTimeline(entries)

	writeJSON(w, http.StatusOK, TimelineInfo{CorrelationID: correlationID, Entries: entries})
}

func sortTimeline(entries []timelineEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].At.Before(entries[j-1].At); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func (s *Server) handleListArbitrations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	if s.arbitrations == nil {
		writeJSON(w, http.StatusOK, []contracts.Arbitration{})
		return
	}
	q := r.URL.Query()
	filter := store.ArbitrationFilter{
		Status:        contracts.ArbitrationStatus(q.Get("status")),
		ConflictType:  contracts.ConflictType(q.Get("conflict_type")),
		CorrelationID: q.Get("correlation_id"),
		Limit:         queryLimit(r, 100),
	}
	writeJSON(w, http.StatusOK, s.arbitrations.List(filter))
}

// handleListApprovals lists pending/decided approvals, including each
// pending approval's decision token: the only channel an operator has
// for retrieving the token needed to call the approvals decide
// endpoint, since the token is never logged or pushed anywhere else.
func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	if s.approvals == nil {
		writeJSON(w, http.StatusOK, []contracts.Approval{})
		return
	}
	q := r.URL.Query()
	filter := store.ApprovalFilter{
		Status:     contracts.ApprovalStatus(q.Get("status")),
		ActionType: contracts.ActionClass(q.Get("action_type")),
		TenantID:   q.Get("tenant_id"),
		Limit:      queryLimit(r, 100),
	}
	writeJSON(w, http.StatusOK, s.approvals.List(filter))
}

// Statistics summarizes store sizes, the closest read-only analogue to
// the source's combined ingest/belief/store/arbitration statistics
// blob, since those per-service counters don't exist as separate
// services here.
type Statistics struct {
	FederateCount          int       `json:"federate_count"`
	ObservationCount       int       `json:"observation_count"`
	BeliefCount            int       `json:"belief_count"`
	ArbitrationOpenCount   int       `json:"arbitration_open_count"`
	ArbitrationTotalCount  int       `json:"arbitration_total_count"`
	ApprovalPendingCount   int       `json:"approval_pending_count"`
	Timestamp              time.Time `json:"timestamp"`
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	stats := Statistics{
		FederateCount:    len(s.identities.List()),
		ObservationCount: len(s.observations.List(store.ObservationFilter{})),
		BeliefCount:      len(s.beliefs.List(store.BeliefFilter{})),
		Timestamp:        s.clock.Now(),
	}
	if s.arbitrations != nil {
		all := s.arbitrations.List(store.ArbitrationFilter{})
		stats.ArbitrationTotalCount = len(all)
		stats.ArbitrationOpenCount = len(s.arbitrations.List(store.ArbitrationFilter{Status: contracts.ArbitrationOpen}))
	}
	if s.approvals != nil {
		stats.ApprovalPendingCount = len(s.approvals.List(store.ApprovalFilter{Status: contracts.ApprovalPending}))
	}
	writeJSON(w, http.StatusOK, stats)
}

func extractPathSegment(path, prefix string) string {
	if len(path) <= len(prefix) {
		return ""
	}
	return path[len(prefix):]
}
