package payments

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventTransactionResolved = "TransactionResolved"
	EventInconsistency       = "PaymentInconsistency"
)

// Reasons carried by inconsistency events.
const (
	ReasonLateConflict   = "late_conflict"   // provider disagrees with an already terminal transaction
	ReasonAmountMismatch = "amount_mismatch" // event amount differs from the snapshot
	ReasonExternalID     = "external_id_mismatch"
	ReasonOversold       = "oversold" // approved but stock ran out before the decrement
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // transaction reference
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope stamps a fresh event id and time around payload.
func NewEnvelope(eventType, producer, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

type TransactionResolvedPayload struct {
	TransactionID string `json:"transaction_id"`
	Reference     string `json:"reference"`
	ProductID     string `json:"product_id"`
	Status        Status `json:"status"`
	AmountInCents int64  `json:"amount_in_cents"`
	StockUpdated  bool   `json:"stock_updated"`
	ResolvedBy    string `json:"resolved_by"` // checkout | webhook | sweeper
}

type InconsistencyPayload struct {
	TransactionID string          `json:"transaction_id,omitempty"`
	Reference     string          `json:"reference"`
	Reason        string          `json:"reason"`
	LocalStatus   Status          `json:"local_status,omitempty"`
	RemoteStatus  string          `json:"remote_status,omitempty"`
	Detail        json.RawMessage `json:"detail,omitempty"`
}

// EventSink receives domain events. Emit never blocks on the broker and never
// fails the caller: the events are notifications, the database is the record.
type EventSink interface {
	Emit(ctx context.Context, topic string, ev Envelope)
}

type NopSink struct{}

func (NopSink) Emit(context.Context, string, Envelope) {}
