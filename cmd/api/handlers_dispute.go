package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"scriptrelay/auth"
)

func (s *Server) handleListDisputes(w http.ResponseWriter, r *http.Request) {
	userID, role := requestIdentity(r)

	items, err := s.disputeService.List(r.Context(), userID, role == auth.RoleAdmin, r.URL.Query().Get("negotiationId"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]disputeResponse, 0, len(items))
	for _, d := range items {
		out = append(out, toDisputeResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleOpenDispute(w http.ResponseWriter, r *http.Request) {
	userID, _ := requestIdentity(r)

	var req struct {
		NegotiationID string `json:"negotiationId"`
		Reason        string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.NegotiationID == "" || strings.TrimSpace(req.Reason) == "" {
		writeErrorMessage(w, http.StatusBadRequest, "negotiationId and reason required")
		return
	}

	rec, err := s.disputeService.Open(r.Context(), userID, req.NegotiationID, req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDisputeResponse(rec))
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	_, role := requestIdentity(r)

	rec, err := s.disputeService.Resolve(r.Context(), role == auth.RoleAdmin, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDisputeResponse(rec))
}
