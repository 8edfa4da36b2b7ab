package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/gateway"
	"github.com/ariefcatur/go-realtime-checkout/internal/metrics"
	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
	"github.com/ariefcatur/go-realtime-checkout/internal/settle"
)

// StatusSource polls the provider for a transaction.
type StatusSource interface {
	GetStatus(ctx context.Context, externalID string) (gateway.TransactionStatus, error)
}

type SweeperConfig struct {
	Interval time.Duration
	// PendingTTL is how long a transaction may stay PENDING before it is swept.
	PendingTTL time.Duration
	Batch      int
}

type SweepStats struct {
	Scanned      int
	Resolved     int
	Abandoned    int
	StillPending int
	Failed       int
}

// Sweeper resolves transactions left PENDING, e.g. after a crash between
// the charge and the transition or a webhook that never arrived.
type Sweeper struct {
	txs     payments.TransactionStore
	gw      StatusSource
	settler *settle.Settler
	cfg     SweeperConfig
	log     *zap.Logger
	now     func() time.Time
}

func NewSweeper(txs payments.TransactionStore, gw StatusSource, settler *settle.Settler, cfg SweeperConfig, log *zap.Logger) *Sweeper {
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{txs: txs, gw: gw, settler: settler, cfg: cfg, log: log.Named("sweeper"), now: time.Now}
}

// Run sweeps every Interval until ctx is done. A zero Interval disables it.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		s.log.Info("pending sweeper disabled")
		return nil
	}
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			stats, err := s.SweepOnce(ctx)
			if err != nil {
				s.log.Error("sweep", zap.Error(err))
				continue
			}
			if stats.Scanned > 0 {
				s.log.Info("sweep done",
					zap.Int("scanned", stats.Scanned),
					zap.Int("resolved", stats.Resolved),
					zap.Int("abandoned", stats.Abandoned),
					zap.Int("still_pending", stats.StillPending),
					zap.Int("failed", stats.Failed))
			}
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	stale, err := s.txs.ListPending(ctx, s.now().Add(-s.cfg.PendingTTL), s.cfg.Batch)
	if err != nil {
		return stats, err
	}
	for _, tx := range stale {
		if ctx.Err() != nil {
			return stats, nil
		}
		stats.Scanned++
		result := s.sweep(ctx, tx)
		switch result {
		case "resolved":
			stats.Resolved++
		case "abandoned":
			stats.Abandoned++
		case "still_pending":
			stats.StillPending++
		default:
			stats.Failed++
		}
		metrics.SweptTotal.WithLabelValues(result).Inc()
	}
	return stats, nil
}

func (s *Sweeper) sweep(ctx context.Context, tx payments.Transaction) string {
	log := s.log.With(zap.String("transaction_id", tx.ID), zap.String("reference", tx.Reference))

	// never reached the provider, or the answer was lost with its id
	if tx.ExternalTransactionID == "" {
		b, _ := json.Marshal(map[string]string{"error": "abandoned"})
		if _, err := s.settler.Resolve(ctx, tx.ID, payments.StatusDeclined, payments.GatewayRecord{Response: b}, settle.SourceSweeper); err != nil {
			log.Error("decline abandoned transaction", zap.Error(err))
			return "failed"
		}
		return "abandoned"
	}

	st, err := s.gw.GetStatus(ctx, tx.ExternalTransactionID)
	if err != nil {
		log.Warn("poll provider status", zap.Error(err))
		return "failed"
	}
	to, final := payments.StatusFromEvent(st.Status)
	if !final {
		return "still_pending"
	}
	if st.AmountInCents != 0 && st.AmountInCents != tx.AmountInCents {
		s.settler.Inconsistency(ctx, tx, payments.ReasonAmountMismatch, st.Status, st.Raw)
		return "failed"
	}

	_, err = s.settler.Resolve(ctx, tx.ID, to, payments.GatewayRecord{ExternalID: st.ID, Response: st.Raw}, settle.SourceSweeper)
	if err != nil && !errors.Is(err, payments.ErrInsufficientStock) {
		log.Error("resolve swept transaction", zap.Error(err))
		return "failed"
	}
	return "resolved"
}
