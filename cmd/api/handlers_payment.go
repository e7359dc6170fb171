package main

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"scriptrelay/auth"
	"scriptrelay/payment"
)

func (s *Server) handleInitializePayment(w http.ResponseWriter, r *http.Request) {
	userID, _ := requestIdentity(r)

	var req struct {
		NegotiationID string `json:"negotiationId"`
		Email         string `json:"email"`
		AmountMinor   int64  `json:"amountMinor"`
		Currency      string `json:"currency"`
		Method        string `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	handle, err := s.paymentService.Initialize(r.Context(), payment.InitializeParams{
		NegotiationID: req.NegotiationID,
		ActorID:       userID,
		CustomerEmail: req.Email,
		AmountMinor:   req.AmountMinor,
		Currency:      req.Currency,
		Method:        req.Method,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toChargeResponse(handle))
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	userID, role := requestIdentity(r)

	var req struct {
		NegotiationID string `json:"negotiationId"`
		Reference     string `json:"reference"`
		Method        string `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.NegotiationID == "" || req.Reference == "" {
		writeErrorMessage(w, http.StatusBadRequest, "negotiationId and reference required")
		return
	}

	settled, err := s.paymentService.Verify(r.Context(), userID, role == auth.RoleAdmin, req.Method, req.Reference, req.NegotiationID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(settled))
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	userID, role := requestIdentity(r)

	settled, err := s.paymentService.GetByNegotiation(r.Context(), userID, role == auth.RoleAdmin, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(settled))
}

// handlePaystackWebhook settles charges pushed by the provider. The signature
// gate is the only authentication on this route. Replays are harmless: Verify
// converges on the already-settled payment.
func (s *Server) handlePaystackWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if !s.webhook.VerifyWebhookSignature(body, r.Header.Get("X-Paystack-Signature")) {
		writeErrorMessage(w, http.StatusUnauthorized, "bad signature")
		return
	}

	var event struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
			Metadata  struct {
				NegotiationID string `json:"negotiation_id"`
			} `json:"metadata"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "malformed event")
		return
	}

	if event.Event != "charge.success" {
		w.WriteHeader(http.StatusOK)
		return
	}

	negotiationID := event.Data.Metadata.NegotiationID
	if negotiationID == "" {
		parsed, ok := payment.ParseReference(event.Data.Reference)
		if !ok {
			writeErrorMessage(w, http.StatusBadRequest, "reference does not identify a negotiation")
			return
		}
		negotiationID = parsed
	}

	if _, err := s.paymentService.VerifyWebhook(r.Context(), "paystack", event.Data.Reference, negotiationID); err != nil {
		s.logger.Warn("webhook settlement failed",
			"reference", event.Data.Reference,
			"negotiation_id", negotiationID,
			"error", err)
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}
