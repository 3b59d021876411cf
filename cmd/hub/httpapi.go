package main

import (
	"encoding/json"
	"net/http"

	"github.com/l1jgo/hub/internal/admission"
	"github.com/l1jgo/hub/internal/model"
	"github.com/l1jgo/hub/internal/session"
	"github.com/l1jgo/hub/internal/verify"
)

// hostAPI exposes the two synchronous boundaries the proxy host
// consults: the admission gate at preconnect, and the verification
// machine's game-connect observation. Packet plumbing itself stays out
// of this module; this is the narrow HTTP seam a host process calls
// into instead. It also exposes a small admin surface cmd/hubctl talks
// to, since the session store only exists in this process's memory.
type hostAPI struct {
	gate    *admission.Gate
	machine *verify.Machine
	store   *session.Store
}

func newHostAPI(gate *admission.Gate, machine *verify.Machine, store *session.Store) *hostAPI {
	return &hostAPI{gate: gate, machine: machine, store: store}
}

func (h *hostAPI) routes(mux *http.ServeMux) {
	mux.HandleFunc("/admission/check", h.handleCheck)
	mux.HandleFunc("/verify/begin", h.handleBegin)
	mux.HandleFunc("/verify/connect", h.handleConnect)
	mux.HandleFunc("/admin/session/expire", h.handleAdminExpire)
}

type checkRequest struct {
	Username string `json:"username"`
	Edition  int    `json:"edition"`
}

func (h *hostAPI) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	verdict := h.gate.Check(r.Context(), req.Username, model.Edition(req.Edition))
	writeJSON(w, verdict)
}

type beginRequest struct {
	ExternalID string `json:"external_id"`
	Username   string `json:"username"`
}

func (h *hostAPI) handleBegin(w http.ResponseWriter, r *http.Request) {
	var req beginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.machine.Begin(r.Context(), model.ExternalIdentity(req.ExternalID), req.Username)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, result)
}

type connectRequest struct {
	Username      string `json:"username"`
	Edition       int    `json:"edition"`
	ChallengeCode string `json:"challenge_code"`
}

func (h *hostAPI) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	verdict := h.machine.ObserveGameConnect(req.Username, model.Edition(req.Edition), req.ChallengeCode)
	writeJSON(w, verdict)
}

type expireRequest struct {
	Username string `json:"username"`
}

type expireResponse struct {
	Expired bool `json:"expired"`
}

// handleAdminExpire force-cancels a player's in-flight verification
// session, for an operator who needs a stuck session cleared without
// waiting for the scheduled sweep.
func (h *hostAPI) handleAdminExpire(w http.ResponseWriter, r *http.Request) {
	var req expireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess, ok := h.store.LookupByUsername(req.Username)
	if !ok {
		writeJSON(w, expireResponse{Expired: false})
		return
	}
	if err := h.machine.Cancel(sess.ExternalID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, expireResponse{Expired: true})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
