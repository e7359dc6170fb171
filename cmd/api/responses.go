package main

import (
	"time"

	"scriptrelay/auth"
	"scriptrelay/directory"
	"scriptrelay/dispute"
	"scriptrelay/negotiation"
	"scriptrelay/payment"
)

type userResponse struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	FullName      string  `json:"fullName"`
	Role          string  `json:"role"`
	Available     bool    `json:"available"`
	Rating        float64 `json:"rating"`
	CompletedJobs int     `json:"completedJobs"`
	CreatedAt     string  `json:"createdAt"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Email:         u.Email,
		FullName:      u.FullName,
		Role:          string(u.Role),
		Available:     u.Available,
		Rating:        u.Rating,
		CompletedJobs: u.CompletedJobs,
		CreatedAt:     u.CreatedAt.Format(time.RFC3339),
	}
}

type profileResponse struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

func toProfileResponse(p directory.Profile) profileResponse {
	return profileResponse{ID: p.ID, FullName: p.FullName, Email: p.Email}
}

type eligibilityResponse struct {
	Online       bool    `json:"online"`
	Available    bool    `json:"available"`
	Status       string  `json:"status"`
	CurrentJobID *string `json:"currentJobId"`
	Eligible     bool    `json:"eligible"`
}

func toEligibilityResponse(e directory.Eligibility) eligibilityResponse {
	return eligibilityResponse{
		Online:       e.Online,
		Available:    e.Available,
		Status:       e.Status,
		CurrentJobID: e.CurrentJobID,
		Eligible:     e.Eligible(),
	}
}

type negotiationResponse struct {
	ID                 string  `json:"id"`
	ClientID           string  `json:"clientId"`
	TranscriberID      string  `json:"transcriberId"`
	Status             string  `json:"status"`
	Requirement        string  `json:"requirement"`
	PriceMinor         int64   `json:"priceMinor"`
	Currency           string  `json:"currency"`
	DeadlineHours      int     `json:"deadlineHours"`
	DueAt              string  `json:"dueAt"`
	ClientMessage      *string `json:"clientMessage,omitempty"`
	TranscriberMessage *string `json:"transcriberMessage,omitempty"`
	RejectReason       *string `json:"rejectReason,omitempty"`
	RejectedBy         *string `json:"rejectedBy,omitempty"`
	Attachment         *string `json:"attachment,omitempty"`
	FeedbackRating     *int    `json:"feedbackRating,omitempty"`
	FeedbackComment    *string `json:"feedbackComment,omitempty"`
	CompletedAt        *string `json:"completedAt,omitempty"`
	CreatedAt          string  `json:"createdAt"`
	UpdatedAt          string  `json:"updatedAt"`
}

func toNegotiationResponse(n negotiation.Negotiation) negotiationResponse {
	resp := negotiationResponse{
		ID:                 n.ID,
		ClientID:           n.ClientID,
		TranscriberID:      n.TranscriberID,
		Status:             string(n.Status),
		Requirement:        n.Requirement,
		PriceMinor:         n.PriceMinor,
		Currency:           n.Currency,
		DeadlineHours:      n.DeadlineHours,
		DueAt:              n.DueAt.Format(time.RFC3339),
		ClientMessage:      n.ClientMessage,
		TranscriberMessage: n.TranscriberMessage,
		RejectReason:       n.RejectReason,
		RejectedBy:         n.RejectedBy,
		Attachment:         n.Attachment,
		FeedbackRating:     n.FeedbackRating,
		FeedbackComment:    n.FeedbackComment,
		CreatedAt:          n.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          n.UpdatedAt.Format(time.RFC3339),
	}
	if n.CompletedAt != nil {
		formatted := n.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &formatted
	}
	return resp
}

type chargeResponse struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorizationUrl"`
	AccessCode       string `json:"accessCode"`
}

func toChargeResponse(h payment.ChargeHandle) chargeResponse {
	return chargeResponse{
		Reference:        h.Reference,
		AuthorizationURL: h.AuthorizationURL,
		AccessCode:       h.AccessCode,
	}
}

type paymentResponse struct {
	ID                  string  `json:"id"`
	NegotiationID       string  `json:"negotiationId"`
	ChargedAmountMinor  int64   `json:"chargedAmountMinor"`
	ChargedCurrency     string  `json:"chargedCurrency"`
	CreditedAmountMinor int64   `json:"creditedAmountMinor"`
	CreditedCurrency    string  `json:"creditedCurrency"`
	EarningMinor        int64   `json:"earningMinor"`
	FXRate              float64 `json:"fxRate"`
	Provider            string  `json:"provider"`
	ProviderRef         string  `json:"providerRef"`
	PayoutStatus        string  `json:"payoutStatus"`
	PaidAt              string  `json:"paidAt"`
}

func toPaymentResponse(p payment.Payment) paymentResponse {
	return paymentResponse{
		ID:                  p.ID,
		NegotiationID:       p.NegotiationID,
		ChargedAmountMinor:  p.ChargedAmountMinor,
		ChargedCurrency:     p.ChargedCurrency,
		CreditedAmountMinor: p.CreditedAmountMinor,
		CreditedCurrency:    p.CreditedCurrency,
		EarningMinor:        p.EarningMinor,
		FXRate:              p.FXRate,
		Provider:            p.Provider,
		ProviderRef:         p.ProviderRef,
		PayoutStatus:        string(p.PayoutStatus),
		PaidAt:              p.PaidAt.Format(time.RFC3339),
	}
}

type disputeResponse struct {
	ID            string  `json:"id"`
	NegotiationID string  `json:"negotiationId"`
	OpenedBy      string  `json:"openedBy"`
	Reason        string  `json:"reason"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
	ResolvedAt    *string `json:"resolvedAt,omitempty"`
}

func toDisputeResponse(d dispute.Record) disputeResponse {
	resp := disputeResponse{
		ID:            d.ID,
		NegotiationID: d.NegotiationID,
		OpenedBy:      d.OpenedBy,
		Reason:        d.Reason,
		Status:        string(d.Status),
		CreatedAt:     d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     d.UpdatedAt.Format(time.RFC3339),
	}
	if d.ResolvedAt != nil {
		formatted := d.ResolvedAt.Format(time.RFC3339)
		resp.ResolvedAt = &formatted
	}
	return resp
}
