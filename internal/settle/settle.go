// Package settle closes PENDING transactions. It is the only place that
// combines a status transition with a stock decrement: the decrement runs
// exactly when this process's conditional update moved the row to APPROVED.
package settle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
)

// Source names the path that resolved a transaction.
type Source string

const (
	SourceCheckout Source = "checkout"
	SourceWebhook  Source = "webhook"
	SourceSweeper  Source = "sweeper"
)

type Outcome struct {
	Transaction payments.Transaction
	// Applied is true when this call changed the row. When false,
	// Transaction is the already terminal row.
	Applied      bool
	StockUpdated bool
}

type Settler struct {
	txs      payments.TransactionStore
	stock    payments.StockLedger
	events   payments.EventSink
	log      *zap.Logger
	producer string
}

func New(txs payments.TransactionStore, stock payments.StockLedger, events payments.EventSink, log *zap.Logger, producer string) *Settler {
	if events == nil {
		events = payments.NopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Settler{txs: txs, stock: stock, events: events, log: log, producer: producer}
}

// Resolve moves txID from PENDING to `to`. A lost race is not an error.
// If the approval wins but the product ran out of stock, the approved
// transaction is returned together with ErrInsufficientStock.
func (s *Settler) Resolve(ctx context.Context, txID string, to payments.Status, gw payments.GatewayRecord, by Source) (Outcome, error) {
	if !to.Terminal() {
		return Outcome{}, fmt.Errorf("resolve %s to %q: %w", txID, to, payments.ErrInvalidRequest)
	}

	tx, applied, err := s.txs.TransitionIfPending(ctx, txID, to, gw)
	if err != nil {
		return Outcome{}, fmt.Errorf("transition %s: %w", txID, err)
	}
	out := Outcome{Transaction: tx, Applied: applied}
	if !applied {
		s.log.Debug("transition not applied",
			zap.String("transaction_id", txID),
			zap.String("wanted", string(to)),
			zap.String("current", string(tx.Status)),
			zap.String("source", string(by)))
		return out, nil
	}

	if to == payments.StatusApproved {
		err := s.stock.DecrementIfAvailable(ctx, tx.ProductID, 1)
		switch {
		case err == nil:
			out.StockUpdated = true
		case errors.Is(err, payments.ErrInsufficientStock):
			s.log.Error("approved transaction without stock",
				zap.String("transaction_id", tx.ID),
				zap.String("reference", tx.Reference),
				zap.String("product_id", tx.ProductID))
			s.Inconsistency(ctx, tx, payments.ReasonOversold, payments.RemoteApproved, nil)
			s.resolved(ctx, tx, false, by)
			return out, fmt.Errorf("decrement %s: %w", tx.ProductID, err)
		default:
			return out, fmt.Errorf("decrement %s: %w", tx.ProductID, err)
		}
	}

	s.log.Info("transaction resolved",
		zap.String("transaction_id", tx.ID),
		zap.String("reference", tx.Reference),
		zap.String("status", string(tx.Status)),
		zap.Bool("stock_updated", out.StockUpdated),
		zap.String("source", string(by)))
	s.resolved(ctx, tx, out.StockUpdated, by)
	return out, nil
}

// Inconsistency publishes a review event. detail may be nil.
func (s *Settler) Inconsistency(ctx context.Context, tx payments.Transaction, reason, remoteStatus string, detail json.RawMessage) {
	ev, err := payments.NewEnvelope(payments.EventInconsistency, s.producer, tx.Reference, payments.InconsistencyPayload{
		TransactionID: tx.ID,
		Reference:     tx.Reference,
		Reason:        reason,
		LocalStatus:   tx.Status,
		RemoteStatus:  remoteStatus,
		Detail:        detail,
	})
	if err != nil {
		s.log.Error("build inconsistency event", zap.Error(err))
		return
	}
	s.events.Emit(ctx, payments.TopicInconsistency, ev)
}

func (s *Settler) resolved(ctx context.Context, tx payments.Transaction, stockUpdated bool, by Source) {
	ev, err := payments.NewEnvelope(payments.EventTransactionResolved, s.producer, tx.Reference, payments.TransactionResolvedPayload{
		TransactionID: tx.ID,
		Reference:     tx.Reference,
		ProductID:     tx.ProductID,
		Status:        tx.Status,
		AmountInCents: tx.AmountInCents,
		StockUpdated:  stockUpdated,
		ResolvedBy:    string(by),
	})
	if err != nil {
		s.log.Error("build resolved event", zap.Error(err))
		return
	}
	s.events.Emit(ctx, payments.TopicTransactionResolved, ev)
}
