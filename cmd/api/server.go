package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"scriptrelay/auth"
	"scriptrelay/availability"
	"scriptrelay/directory"
	"scriptrelay/dispute"
	"scriptrelay/negotiation"
	"scriptrelay/notify"
	"scriptrelay/payment"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyRole
)

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(tokenString string) (string, auth.Role, error)
}

type directoryService interface {
	GetProfile(ctx context.Context, userID string) (directory.Profile, error)
	GetEligibility(ctx context.Context, userID string) (directory.Eligibility, error)
	SetAvailable(ctx context.Context, userID string, available bool) error
}

type negotiationService interface {
	Propose(ctx context.Context, params negotiation.ProposeParams) (negotiation.Negotiation, error)
	Accept(ctx context.Context, actorID, negotiationID string) (negotiation.Negotiation, error)
	Counter(ctx context.Context, params negotiation.CounterParams) (negotiation.Negotiation, error)
	Reject(ctx context.Context, actorID, negotiationID, reason string) (negotiation.Negotiation, error)
	Cancel(ctx context.Context, clientID, negotiationID string) (negotiation.Negotiation, error)
	Complete(ctx context.Context, params negotiation.CompleteParams) (negotiation.Negotiation, error)
	Delete(ctx context.Context, actorID string, admin bool, negotiationID string) error
	Get(ctx context.Context, actorID string, admin bool, negotiationID string) (negotiation.Negotiation, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]negotiation.Negotiation, error)
}

type paymentService interface {
	Initialize(ctx context.Context, params payment.InitializeParams) (payment.ChargeHandle, error)
	Verify(ctx context.Context, actorID string, admin bool, method, reference, negotiationID string) (payment.Payment, error)
	VerifyWebhook(ctx context.Context, method, reference, negotiationID string) (payment.Payment, error)
	GetByNegotiation(ctx context.Context, actorID string, admin bool, negotiationID string) (payment.Payment, error)
}

type disputeService interface {
	List(ctx context.Context, userID string, admin bool, negotiationID string) ([]dispute.Record, error)
	Open(ctx context.Context, openerID, negotiationID, reason string) (dispute.Record, error)
	Resolve(ctx context.Context, admin bool, disputeID string) (dispute.Record, error)
}

type webhookVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

// Server wires the HTTP surface over the domain services.
type Server struct {
	logger *slog.Logger

	authService        authService
	directoryService   directoryService
	negotiationService negotiationService
	paymentService     paymentService
	disputeService     disputeService
	hub                *notify.Hub
	webhook            webhookVerifier
	upgrader           websocket.Upgrader
}

func NewServer(logger *slog.Logger, authSvc authService, dirSvc directoryService, negSvc negotiationService, paySvc paymentService, dispSvc disputeService, hub *notify.Hub, webhook webhookVerifier) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:             logger,
		authService:        authSvc,
		directoryService:   dirSvc,
		negotiationService: negSvc,
		paymentService:     paySvc,
		disputeService:     dispSvc,
		hub:                hub,
		webhook:            webhook,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Router assembles all routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/auth/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/webhooks/paystack", s.handlePaystackWebhook).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/users/{id}", s.handleProfile).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/eligibility", s.handleEligibility).Methods(http.MethodGet)
	api.HandleFunc("/me/availability", s.handleSetAvailability).Methods(http.MethodPatch)

	api.HandleFunc("/negotiations", s.handleCreateNegotiation).Methods(http.MethodPost)
	api.HandleFunc("/negotiations", s.handleListNegotiations).Methods(http.MethodGet)
	api.HandleFunc("/negotiations/{id}", s.handleNegotiation).Methods(http.MethodGet)
	api.HandleFunc("/negotiations/{id}", s.handleDeleteNegotiation).Methods(http.MethodDelete)
	api.HandleFunc("/negotiations/{id}/accept", s.handleAccept).Methods(http.MethodPost)
	api.HandleFunc("/negotiations/{id}/counter", s.handleCounter).Methods(http.MethodPost)
	api.HandleFunc("/negotiations/{id}/reject", s.handleReject).Methods(http.MethodPost)
	api.HandleFunc("/negotiations/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	api.HandleFunc("/negotiations/{id}/complete", s.handleComplete).Methods(http.MethodPost)
	api.HandleFunc("/negotiations/{id}/payment", s.handleGetPayment).Methods(http.MethodGet)

	api.HandleFunc("/payments/initialize", s.handleInitializePayment).Methods(http.MethodPost)
	api.HandleFunc("/payments/verify", s.handleVerifyPayment).Methods(http.MethodPost)

	api.HandleFunc("/disputes", s.handleListDisputes).Methods(http.MethodGet)
	api.HandleFunc("/disputes", s.handleOpenDispute).Methods(http.MethodPost)
	api.HandleFunc("/disputes/{id}/resolve", s.handleResolveDispute).Methods(http.MethodPatch)

	r.HandleFunc("/ws", s.handleWebsocket).Methods(http.MethodGet)

	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeErrorMessage(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, role, err := s.authService.VerifyToken(token)
		if err != nil {
			writeErrorMessage(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if ok && token != "" {
		return token, true
	}
	// Websocket clients cannot set headers from browsers; accept a query param.
	if t := r.URL.Query().Get("token"); t != "" {
		return t, true
	}
	return "", false
}

func requestIdentity(r *http.Request) (string, auth.Role) {
	userID, _ := r.Context().Value(ctxKeyUserID).(string)
	role, _ := r.Context().Value(ctxKeyRole).(auth.Role)
	return userID, role
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps domain errors to HTTP statuses. Unrecognised errors become
// opaque 500s so internals never leak to clients.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, negotiation.ErrNotFound),
		errors.Is(err, payment.ErrNotFound),
		errors.Is(err, directory.ErrNotFound),
		errors.Is(err, dispute.ErrNotFound),
		errors.Is(err, availability.ErrUnknownTranscriber):
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, negotiation.ErrUnauthorized),
		errors.Is(err, dispute.ErrForbidden):
		writeErrorMessage(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeErrorMessage(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, negotiation.ErrInvalidState),
		errors.Is(err, negotiation.ErrNotEligible),
		errors.Is(err, negotiation.ErrDuplicatePending),
		errors.Is(err, payment.ErrDuplicateSettlement),
		errors.Is(err, availability.ErrAlreadyAssigned),
		errors.Is(err, auth.ErrDuplicateEmail),
		errors.Is(err, dispute.ErrBadStatus):
		writeErrorMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, negotiation.ErrInvalidInput),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, payment.ErrUnknownProvider):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, payment.ErrAmountMismatch):
		writeErrorMessage(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, payment.ErrPaymentNotSuccessful):
		writeErrorMessage(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, payment.ErrProviderUnavailable):
		writeErrorMessage(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}
