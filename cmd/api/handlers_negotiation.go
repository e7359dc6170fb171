package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"scriptrelay/auth"
	"scriptrelay/negotiation"
)

func (s *Server) handleCreateNegotiation(w http.ResponseWriter, r *http.Request) {
	userID, role := requestIdentity(r)
	if role == auth.RoleTranscriber {
		writeErrorMessage(w, http.StatusForbidden, "only clients can propose jobs")
		return
	}

	var req struct {
		TranscriberID string  `json:"transcriberId"`
		PriceMinor    int64   `json:"priceMinor"`
		DeadlineHours int     `json:"deadlineHours"`
		Requirement   string  `json:"requirement"`
		Message       *string `json:"message"`
		Attachment    *string `json:"attachment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := s.negotiationService.Propose(r.Context(), negotiation.ProposeParams{
		ClientID:      userID,
		TranscriberID: req.TranscriberID,
		PriceMinor:    req.PriceMinor,
		DeadlineHours: req.DeadlineHours,
		Requirement:   req.Requirement,
		Message:       req.Message,
		Attachment:    req.Attachment,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toNegotiationResponse(created))
}

func (s *Server) handleListNegotiations(w http.ResponseWriter, r *http.Request) {
	userID, _ := requestIdentity(r)

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	items, err := s.negotiationService.ListForUser(r.Context(), userID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]negotiationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, toNegotiationResponse(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": len(out)})
}

func (s *Server) handleNegotiation(w http.ResponseWriter, r *http.Request) {
	userID, role := requestIdentity(r)

	rec, err := s.negotiationService.Get(r.Context(), userID, role == auth.RoleAdmin, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toNegotiationResponse(rec))
}

func (s *Server) handleDeleteNegotiation(w http.ResponseWriter, r *http.Request) {
	userID, role := requestIdentity(r)

	if err := s.negotiationService.Delete(r.Context(), userID, role == auth.RoleAdmin, mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	userID, _ := requestIdentity(r)

	updated, err := s.negotiationService.Accept(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toNegotiationResponse(updated))
}

func (s *Server) handleCounter(w http.ResponseWriter, r *http.Request) {
	userID, _ := requestIdentity(r)

	var req struct {
		PriceMinor    int64   `json:"priceMinor"`
		Message       *string `json:"message"`
		DeadlineHours *int    `json:"deadlineHours"`
		Attachment    *string `json:"attachment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.negotiationService.Counter(r.Context(), negotiation.CounterParams{
		ActorID:       userID,
		NegotiationID: mux.Vars(r)["id"],
		PriceMinor:    req.PriceMinor,
		Message:       req.Message,
		DeadlineHours: req.DeadlineHours,
		Attachment:    req.Attachment,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toNegotiationResponse(updated))
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	userID, _ := requestIdentity(r)

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.negotiationService.Reject(r.Context(), userID, mux.Vars(r)["id"], req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toNegotiationResponse(updated))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	userID, _ := requestIdentity(r)

	updated, err := s.negotiationService.Cancel(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toNegotiationResponse(updated))
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	userID, _ := requestIdentity(r)

	var req struct {
		FeedbackRating  int     `json:"feedbackRating"`
		FeedbackComment *string `json:"feedbackComment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.negotiationService.Complete(r.Context(), negotiation.CompleteParams{
		ClientID:        userID,
		NegotiationID:   mux.Vars(r)["id"],
		FeedbackRating:  req.FeedbackRating,
		FeedbackComment: req.FeedbackComment,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toNegotiationResponse(updated))
}
