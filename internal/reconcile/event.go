package reconcile

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
)

const EventTransactionUpdated = "transaction.updated"

// Properties every accepted checksum has to cover.
var requiredProperties = []string{
	"transaction.id",
	"transaction.status",
	"transaction.amount_in_cents",
}

// Event is the provider's webhook envelope.
type Event struct {
	Event       string          `json:"event"`
	Data        json.RawMessage `json:"data"`
	Environment string          `json:"environment"`
	Signature   EventSignature  `json:"signature"`
	Timestamp   int64           `json:"timestamp"`
	SentAt      string          `json:"sent_at"`
}

type EventSignature struct {
	Properties []string `json:"properties"`
	Checksum   string   `json:"checksum"`
}

// EventTransaction is data.transaction of a transaction event.
type EventTransaction struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Reference     string `json:"reference"`
	AmountInCents int64  `json:"amount_in_cents"`
	Currency      string `json:"currency"`
}

func ParseEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", payments.ErrMalformedEvent, err)
	}
	if ev.Event == "" {
		return Event{}, fmt.Errorf("%w: missing event type", payments.ErrMalformedEvent)
	}
	return ev, nil
}

// Transaction decodes data.transaction together with its raw bytes.
func (e Event) Transaction() (EventTransaction, json.RawMessage, error) {
	var data struct {
		Transaction json.RawMessage `json:"transaction"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil || len(data.Transaction) == 0 {
		return EventTransaction{}, nil, fmt.Errorf("%w: missing data.transaction", payments.ErrMalformedEvent)
	}
	var t EventTransaction
	if err := json.Unmarshal(data.Transaction, &t); err != nil {
		return EventTransaction{}, nil, fmt.Errorf("%w: %v", payments.ErrMalformedEvent, err)
	}
	if t.ID == "" || t.Status == "" || t.Reference == "" {
		return EventTransaction{}, nil, fmt.Errorf("%w: transaction without id, status or reference", payments.ErrMalformedEvent)
	}
	return t, data.Transaction, nil
}

// Checksum is the hex SHA-256 over the values of properties (looked up in
// data), then timestamp, then secret.
func Checksum(data json.RawMessage, properties []string, timestamp int64, secret string) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree map[string]any
	if err := dec.Decode(&tree); err != nil {
		return "", fmt.Errorf("%w: %v", payments.ErrMalformedEvent, err)
	}

	var b strings.Builder
	for _, p := range properties {
		v, ok := lookup(tree, p)
		if !ok {
			return "", fmt.Errorf("%w: signed property %q not in data", payments.ErrInvalidSignature, p)
		}
		b.WriteString(v)
	}
	b.WriteString(strconv.FormatInt(timestamp, 10))
	b.WriteString(secret)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:]), nil
}

// Verify authenticates raw data against the provided checksum.
func Verify(ev Event, provided string, timestamp int64, secret string) error {
	if provided == "" {
		return fmt.Errorf("%w: no checksum", payments.ErrInvalidSignature)
	}
	for _, req := range requiredProperties {
		if !contains(ev.Signature.Properties, req) {
			return fmt.Errorf("%w: %s not signed", payments.ErrInvalidSignature, req)
		}
	}
	want, err := Checksum(ev.Data, ev.Signature.Properties, timestamp, secret)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(provided))) != 1 {
		return payments.ErrInvalidSignature
	}
	return nil
}

func lookup(tree map[string]any, path string) (string, bool) {
	var cur any = tree
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		if cur, ok = m[part]; !ok {
			return "", false
		}
	}
	switch v := cur.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	case nil:
		return "", true
	default:
		return "", false
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
