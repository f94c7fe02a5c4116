// containment_routes.go registers the operator-facing endpoints for
// acting on a pending containment intent: apply it once its approval
// is granted, or revert an already-applied window early.
package main

import (
	"encoding/json"
	"net/http"
)

func (c *cell) registerContainmentRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v2/containment/apply", c.handleContainmentApply)
	mux.HandleFunc("/api/v2/containment/revert", c.handleContainmentRevert)
}

type containmentApplyRequest struct {
	IntentID   string  `json:"intent_id"`
	TrustScore float64 `json:"trust_score"`
	Confidence float64 `json:"confidence"`
}

func (c *cell) handleContainmentApply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req containmentApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IntentID == "" {
		writeError(w, http.StatusBadRequest, "intent_id is required")
		return
	}
	rec, err := c.containment.Apply(req.IntentID, req.TrustScore, req.Confidence)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type containmentRevertRequest struct {
	IntentID string `json:"intent_id"`
	Reason   string `json:"reason"`
}

func (c *cell) handleContainmentRevert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req containmentRevertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IntentID == "" {
		writeError(w, http.StatusBadRequest, "intent_id is required")
		return
	}
	if err := c.containment.Revert(req.IntentID, req.Reason); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reverted"})
}
