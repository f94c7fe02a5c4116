// routes.go registers the write-side federation endpoints: the
// handshake state machine and observation ingest, in the same
// net/http handler style pkg/console/operator_api.go uses
// (writeJSON/writeError helpers, one handler per verb).
package main

import (
	"encoding/json"
	"net/http"

	"github.com/slucerodev/admo-core/pkg/contracts"
)

func (c *cell) registerFederationRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v2/federation/handshake/start", c.handleHandshakeStart)
	mux.HandleFunc("/api/v2/federation/handshake/message", c.handleHandshakeMessage)
	mux.HandleFunc("/api/v2/federation/observations", c.handleIngestObservation)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type handshakeStartRequest struct {
	FederateID    string `json:"federate_id"`
	CorrelationID string `json:"correlation_id"`
}

func (c *cell) handleHandshakeStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req handshakeStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FederateID == "" || req.CorrelationID == "" {
		writeError(w, http.StatusBadRequest, "federate_id and correlation_id are required")
		return
	}
	sess, err := c.handshake.StartHandshake(req.FederateID, req.CorrelationID)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (c *cell) handleHandshakeMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var env contracts.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid envelope")
		return
	}
	result, err := c.handshake.ProcessMessage(env)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (c *cell) handleIngestObservation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var obs contracts.Observation
	if err := json.NewDecoder(r.Body).Decode(&obs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid observation")
		return
	}
	result, err := c.ingest.Ingest(obs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusAccepted
	if !result.Accepted {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}
