// Package checkout runs the synchronous purchase: open a PENDING
// transaction, charge the card and close the transaction with the
// provider's immediate answer.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/gateway"
	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
	"github.com/ariefcatur/go-realtime-checkout/internal/settle"
)

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=Gateway --dir=. --output=./mocks --outpkg=mocks

// Gateway charges a card.
type Gateway interface {
	CreatePayment(ctx context.Context, in gateway.PaymentData) (gateway.PaymentResponse, error)
}

type ChargeRequest struct {
	ProductID     string
	CustomerEmail string
	CardToken     string
	Installments  int
}

func (r ChargeRequest) Validate() error {
	var problems []string
	if strings.TrimSpace(r.ProductID) == "" {
		problems = append(problems, "productId is required")
	}
	if !govalidator.IsEmail(r.CustomerEmail) {
		problems = append(problems, "customerEmail is invalid")
	}
	if strings.TrimSpace(r.CardToken) == "" {
		problems = append(problems, "cardToken is required")
	}
	if r.Installments < 1 {
		problems = append(problems, "installments must be at least 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", payments.ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return nil
}

// settleTimeout bounds the writes that close a transaction once the
// provider has answered.
const settleTimeout = 5 * time.Second

type Outcome string

const (
	OutcomeApproved Outcome = "APPROVED"
	OutcomeDeclined Outcome = "DECLINED"
)

// Result is the closed transaction. A business decline is a Result with
// OutcomeDeclined and a nil error.
type Result struct {
	Transaction  payments.Transaction
	Outcome      Outcome
	StockUpdated bool
}

type Orchestrator struct {
	catalog  payments.ProductCatalog
	txs      payments.TransactionStore
	gw       Gateway
	settler  *settle.Settler
	refs     payments.ReferenceGenerator
	currency string
	log      *zap.Logger
}

func NewOrchestrator(
	catalog payments.ProductCatalog,
	txs payments.TransactionStore,
	gw Gateway,
	settler *settle.Settler,
	refs payments.ReferenceGenerator,
	currency string,
	log *zap.Logger,
) *Orchestrator {
	if refs == nil {
		refs = payments.UUIDReferences{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		catalog:  catalog,
		txs:      txs,
		gw:       gw,
		settler:  settler,
		refs:     refs,
		currency: currency,
		log:      log.Named("checkout"),
	}
}

// Charge buys one unit of req.ProductID.
//
// Errors: payments.ErrInvalidRequest, payments.ErrNotFound and
// payments.ErrInsufficientStock before any provider call;
// *payments.GatewayError when the provider could not answer, in which case
// the returned Result carries the declined transaction. A won approval that
// finds the shelf empty returns the approved transaction with
// payments.ErrInsufficientStock.
func (o *Orchestrator) Charge(ctx context.Context, req ChargeRequest) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	product, err := o.catalog.FindProduct(ctx, req.ProductID)
	if err != nil {
		return Result{}, fmt.Errorf("load product: %w", err)
	}
	// advisory; the decrement re-checks atomically
	if !product.HasStock(1) {
		return Result{}, fmt.Errorf("product %s: %w", product.ID, payments.ErrInsufficientStock)
	}

	tx, err := o.txs.Create(ctx, payments.NewTransaction{
		Reference:     o.refs.NewReference(),
		ProductID:     product.ID,
		AmountInCents: product.AmountInCents(),
		Currency:      o.currency,
		CustomerEmail: req.CustomerEmail,
		Installments:  req.Installments,
	})
	if err != nil {
		return Result{}, fmt.Errorf("create transaction: %w", err)
	}
	log := o.log.With(zap.String("transaction_id", tx.ID), zap.String("reference", tx.Reference))

	resp, gwErr := o.gw.CreatePayment(ctx, gateway.PaymentData{
		Reference:     tx.Reference,
		AmountInCents: tx.AmountInCents,
		Currency:      tx.Currency,
		CustomerEmail: tx.CustomerEmail,
		CardToken:     req.CardToken,
		Installments:  tx.Installments,
	})
	// the provider has answered; the local writes must finish even if the
	// caller is gone, or the row stays PENDING without its provider id
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if gwErr != nil {
		log.Warn("gateway call failed, declining", zap.Error(gwErr))
		out, err := o.settler.Resolve(settleCtx, tx.ID, payments.StatusDeclined, failureRecord(gwErr), settle.SourceCheckout)
		if err != nil {
			log.Error("decline after gateway failure", zap.Error(err))
			return Result{Transaction: tx, Outcome: OutcomeDeclined}, errors.Join(asGatewayError(gwErr), err)
		}
		if !out.Applied && out.Transaction.Status == payments.StatusApproved {
			// the webhook approved it while we waited
			return o.result(out), nil
		}
		return o.result(out), asGatewayError(gwErr)
	}

	record := payments.GatewayRecord{ExternalID: resp.ID, Response: resp.Raw}
	// store the provider id first so a crash before the transition can be swept
	if err := o.txs.RecordGatewayResponse(settleCtx, tx.ID, record); err != nil {
		log.Warn("record gateway response", zap.Error(err))
	}

	to := payments.StatusFromCharge(resp.Status)
	out, err := o.settler.Resolve(settleCtx, tx.ID, to, record, settle.SourceCheckout)
	if err != nil {
		return o.result(out), err
	}
	if !out.Applied {
		log.Info("transaction already resolved by another path", zap.String("status", string(out.Transaction.Status)))
	}
	return o.result(out), nil
}

func (o *Orchestrator) result(out settle.Outcome) Result {
	r := Result{Transaction: out.Transaction, StockUpdated: out.StockUpdated, Outcome: OutcomeDeclined}
	if out.Transaction.Status == payments.StatusApproved {
		r.Outcome = OutcomeApproved
	}
	return r
}

func failureRecord(err error) payments.GatewayRecord {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return payments.GatewayRecord{Response: b}
}

func asGatewayError(err error) error {
	if payments.IsGatewayError(err) {
		return err
	}
	return &payments.GatewayError{Op: "create_payment", Err: err}
}
