package payments

import (
	"encoding/json"
	"time"
)

type Product struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImageURL    string    `json:"imageUrl"`
	Price       int64     `json:"price"` // whole currency units
	Stock       int       `json:"stock"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (p Product) HasStock(qty int) bool { return p.Stock >= qty }

// AmountInCents is the price snapshot stored on a transaction.
func (p Product) AmountInCents() int64 { return p.Price * 100 }

type Transaction struct {
	ID                    string          `json:"id"`
	Reference             string          `json:"reference"`
	ProductID             string          `json:"productId"`
	AmountInCents         int64           `json:"amountInCents"`
	Currency              string          `json:"currency"`
	CustomerEmail         string          `json:"customerEmail"`
	Installments          int             `json:"installments"`
	Status                Status          `json:"status"`
	ExternalTransactionID string          `json:"externalTransactionId,omitempty"`
	ExternalResponse      json.RawMessage `json:"externalResponse,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// NewTransaction holds the immutable fields of a transaction row. The store
// assigns ID, status PENDING and timestamps.
type NewTransaction struct {
	Reference     string
	ProductID     string
	AmountInCents int64
	Currency      string
	CustomerEmail string
	Installments  int
}

// GatewayRecord is what the provider told us about a transaction.
type GatewayRecord struct {
	ExternalID string
	Response   json.RawMessage
}

// Review is an inconsistency kept for manual follow-up.
type Review struct {
	EventID      string
	Reference    string
	Reason       string
	LocalStatus  Status
	RemoteStatus string
	Payload      json.RawMessage
	CreatedAt    time.Time
}
