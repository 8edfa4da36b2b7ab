// Package reconcile applies asynchronous provider verdicts to local
// transactions: signed webhook events and the periodic pending sweep.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
	"github.com/ariefcatur/go-realtime-checkout/internal/settle"
)

type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeAlreadyResolved  Outcome = "already_resolved"
	OutcomeStillPending     Outcome = "still_pending"
	OutcomeUnknownReference Outcome = "unknown_reference"
	OutcomeMismatch         Outcome = "mismatch"
	OutcomeOversold         Outcome = "oversold"
	OutcomeIgnored          Outcome = "ignored"
)

type Reconciler struct {
	txs     payments.TransactionStore
	settler *settle.Settler
	secret  string
	log     *zap.Logger
}

func NewReconciler(txs payments.TransactionStore, settler *settle.Settler, eventsSecret string, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{txs: txs, settler: settler, secret: eventsSecret, log: log.Named("reconcile")}
}

// Reconcile authenticates one provider event and applies it. An empty
// signature or zero timestamp falls back to the values in the body.
//
// Only ErrMalformedEvent, ErrInvalidSignature and storage failures are
// returned as errors; every other case is an Outcome.
func (r *Reconciler) Reconcile(ctx context.Context, raw []byte, signature string, timestamp int64) (Outcome, error) {
	ev, err := ParseEvent(raw)
	if err != nil {
		return "", err
	}
	// nothing is read or written for other event types
	if ev.Event != EventTransactionUpdated {
		r.log.Info("ignoring provider event", zap.String("event", ev.Event))
		return OutcomeIgnored, nil
	}

	if signature == "" {
		signature = ev.Signature.Checksum
	}
	if timestamp == 0 {
		timestamp = ev.Timestamp
	}
	if err := Verify(ev, signature, timestamp, r.secret); err != nil {
		r.log.Warn("rejected provider event", zap.String("event", ev.Event), zap.Error(err))
		return "", err
	}

	remote, rawTx, err := ev.Transaction()
	if err != nil {
		return "", err
	}
	log := r.log.With(
		zap.String("reference", remote.Reference),
		zap.String("external_id", remote.ID),
		zap.String("remote_status", remote.Status))

	tx, err := r.txs.FindByReference(ctx, remote.Reference)
	if errors.Is(err, payments.ErrNotFound) {
		log.Warn("provider event for unknown reference")
		return OutcomeUnknownReference, nil
	}
	if err != nil {
		return "", fmt.Errorf("find transaction: %w", err)
	}
	log = log.With(zap.String("transaction_id", tx.ID))

	if reason := mismatch(tx, remote); reason != "" {
		log.Warn("provider event does not match transaction", zap.String("reason", reason))
		r.settler.Inconsistency(ctx, tx, reason, remote.Status, detail(remote))
		return OutcomeMismatch, nil
	}

	record := payments.GatewayRecord{ExternalID: remote.ID, Response: rawTx}
	to, final := payments.StatusFromEvent(remote.Status)
	if !final {
		if tx.Status == payments.StatusPending && tx.ExternalTransactionID == "" {
			if err := r.txs.RecordGatewayResponse(ctx, tx.ID, record); err != nil {
				return "", fmt.Errorf("record gateway response: %w", err)
			}
		}
		log.Debug("provider still processing")
		return OutcomeStillPending, nil
	}

	out, err := r.settler.Resolve(ctx, tx.ID, to, record, settle.SourceWebhook)
	if errors.Is(err, payments.ErrInsufficientStock) {
		return OutcomeOversold, nil
	}
	if err != nil {
		return "", err
	}
	if out.Applied {
		return OutcomeApplied, nil
	}

	if out.Transaction.Status != to {
		log.Warn("provider verdict conflicts with resolved transaction",
			zap.String("local_status", string(out.Transaction.Status)))
		r.settler.Inconsistency(ctx, out.Transaction, payments.ReasonLateConflict, remote.Status, detail(remote))
	}
	return OutcomeAlreadyResolved, nil
}

func mismatch(tx payments.Transaction, remote EventTransaction) string {
	if remote.AmountInCents != tx.AmountInCents {
		return payments.ReasonAmountMismatch
	}
	if tx.ExternalTransactionID != "" && tx.ExternalTransactionID != remote.ID {
		return payments.ReasonExternalID
	}
	return ""
}

func detail(remote EventTransaction) json.RawMessage {
	b, _ := json.Marshal(remote)
	return b
}
