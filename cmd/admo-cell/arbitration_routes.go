// arbitration_routes.go registers the operator-facing write endpoints
// that act on a pending arbitration or approval: propose/apply/reject a
// resolution, and decide an approval once its decision token has been
// retrieved from the visibility approvals listing.
package main

import (
	"encoding/json"
	"net/http"

	"github.com/slucerodev/admo-core/pkg/contracts"
)

func (c *cell) registerArbitrationRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v2/arbitration/propose-resolution", c.handleProposeResolution)
	mux.HandleFunc("/api/v2/arbitration/apply-resolution", c.handleApplyResolution)
	mux.HandleFunc("/api/v2/arbitration/reject", c.handleRejectArbitration)
	mux.HandleFunc("/api/v2/approvals/decide", c.handleDecideApproval)
}

type proposeResolutionRequest struct {
	ArbitrationID string         `json:"arbitration_id"`
	Resolution    map[string]any `json:"resolution"`
}

func (c *cell) handleProposeResolution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req proposeResolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ArbitrationID == "" {
		writeError(w, http.StatusBadRequest, "arbitration_id and resolution are required")
		return
	}
	arb, err := c.arbitration.ProposeResolution(req.ArbitrationID, req.Resolution)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, arb)
}

type applyResolutionRequest struct {
	ArbitrationID      string `json:"arbitration_id"`
	ResolverFederateID string `json:"resolver_federate_id"`
}

func (c *cell) handleApplyResolution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req applyResolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ArbitrationID == "" {
		writeError(w, http.StatusBadRequest, "arbitration_id is required")
		return
	}
	arb, err := c.arbitration.ApplyResolution(req.ArbitrationID, req.ResolverFederateID)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, arb)
}

type rejectArbitrationRequest struct {
	ArbitrationID      string `json:"arbitration_id"`
	ResolverFederateID string `json:"resolver_federate_id"`
	Reason             string `json:"reason"`
}

func (c *cell) handleRejectArbitration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req rejectArbitrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ArbitrationID == "" {
		writeError(w, http.StatusBadRequest, "arbitration_id is required")
		return
	}
	arb, err := c.arbitration.Reject(req.ArbitrationID, req.ResolverFederateID, req.Reason)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, arb)
}

type decideApprovalRequest struct {
	DecisionToken string                   `json:"decision_token"`
	Decision      contracts.ApprovalStatus `json:"decision"`
	PrincipalID   string                   `json:"principal_id"`
	Rationale     string                   `json:"rationale"`
}

func (c *cell) handleDecideApproval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req decideApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DecisionToken == "" || req.PrincipalID == "" {
		writeError(w, http.StatusBadRequest, "decision_token and principal_id are required")
		return
	}
	approval, err := c.approval.Decide(req.DecisionToken, req.Decision, req.PrincipalID, req.Rationale)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, approval)
}
