package gateway

import "encoding/json"

// PaymentData is one card charge request.
type PaymentData struct {
	Reference     string
	AmountInCents int64
	Currency      string
	CustomerEmail string
	CardToken     string
	Installments  int
}

// PaymentResponse is the immediate answer to a charge. Status is the
// provider status string (APPROVED, DECLINED, VOIDED, ERROR, PENDING).
type PaymentResponse struct {
	ID            string
	Status        string
	Reference     string
	StatusMessage string
	Raw           json.RawMessage
}

// TransactionStatus is the provider view of an existing transaction.
type TransactionStatus struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	Reference     string          `json:"reference"`
	AmountInCents int64           `json:"amount_in_cents"`
	Currency      string          `json:"currency"`
	StatusMessage string          `json:"status_message,omitempty"`
	Raw           json.RawMessage `json:"-"`
}

type paymentMethod struct {
	Type         string `json:"type"`
	Token        string `json:"token"`
	Installments int    `json:"installments"`
}

type createTransactionRequest struct {
	AcceptanceToken string        `json:"acceptance_token"`
	AmountInCents   int64         `json:"amount_in_cents"`
	Currency        string        `json:"currency"`
	CustomerEmail   string        `json:"customer_email"`
	PaymentMethod   paymentMethod `json:"payment_method"`
	Reference       string        `json:"reference"`
	Signature       string        `json:"signature"`
}

type merchant struct {
	PresignedAcceptance struct {
		AcceptanceToken string `json:"acceptance_token"`
		Permalink       string `json:"permalink"`
	} `json:"presigned_acceptance"`
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error"`
}

type apiError struct {
	Type     string          `json:"type"`
	Reason   string          `json:"reason"`
	Messages json.RawMessage `json:"messages"`
}
