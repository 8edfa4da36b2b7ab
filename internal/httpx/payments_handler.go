package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/checkout"
	"github.com/ariefcatur/go-realtime-checkout/internal/metrics"
	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
	"github.com/ariefcatur/go-realtime-checkout/internal/reconcile"
)

type Checkout interface {
	Charge(ctx context.Context, req checkout.ChargeRequest) (checkout.Result, error)
}

type TransactionFinder interface {
	FindByID(ctx context.Context, id string) (payments.Transaction, error)
}

// TxCache is the read-through cache of GET /payments/{id}.
type TxCache interface {
	Get(ctx context.Context, id string) (payments.Transaction, bool, error)
	Put(ctx context.Context, t payments.Transaction) error
}

type PaymentsHandler struct {
	Checkout     Checkout
	Transactions TransactionFinder
	Catalog      payments.ProductCatalog
	Provider     reconcile.StatusSource
	Cache        TxCache // optional
	Log          *zap.Logger
}

type createPaymentReq struct {
	ProductID     string `json:"productId"`
	CustomerEmail string `json:"customerEmail"`
	CardToken     string `json:"cardToken"`
	Installments  int    `json:"installments"`
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/payments", h.createPayment)
	r.Get("/payments/{id}", h.getPayment)
	r.Get("/payments/{id}/status", h.getProviderStatus)
	r.Get("/products", h.listProducts)
}

func (h *PaymentsHandler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.ChargesTotal.WithLabelValues("invalid").Inc()
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "invalid json"})
		return
	}

	res, err := h.Checkout.Charge(r.Context(), checkout.ChargeRequest{
		ProductID:     req.ProductID,
		CustomerEmail: req.CustomerEmail,
		CardToken:     req.CardToken,
		Installments:  req.Installments,
	})
	switch {
	case err == nil && res.Outcome == checkout.OutcomeApproved:
		metrics.ChargesTotal.WithLabelValues("approved").Inc()
		writeJSON(w, http.StatusCreated, res.Transaction)
	case err == nil:
		metrics.ChargesTotal.WithLabelValues("declined").Inc()
		writeJSON(w, http.StatusPaymentRequired, errorBody{Message: "payment declined", Transaction: &res.Transaction})
	case errors.Is(err, payments.ErrInsufficientStock) && res.Transaction.Status == payments.StatusApproved:
		// charged but the last unit went elsewhere; already queued for review
		metrics.ChargesTotal.WithLabelValues("oversold").Inc()
		h.logger().Warn("approved payment without stock", zap.String("reference", res.Transaction.Reference))
		writeJSON(w, http.StatusCreated, res.Transaction)
	case payments.IsGatewayError(err):
		metrics.ChargesTotal.WithLabelValues("gateway_error").Inc()
		h.logger().Warn("charge failed at provider", zap.Error(err))
		var tx *payments.Transaction
		if res.Transaction.ID != "" {
			tx = &res.Transaction
		}
		writeError(w, err, tx)
	default:
		metrics.ChargesTotal.WithLabelValues(chargeFailure(err)).Inc()
		if statusFor(err) == http.StatusInternalServerError {
			h.logger().Error("charge failed", zap.Error(err))
		}
		writeError(w, err, nil)
	}
}

func chargeFailure(err error) string {
	switch {
	case errors.Is(err, payments.ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, payments.ErrNotFound):
		return "not_found"
	case errors.Is(err, payments.ErrInsufficientStock):
		return "insufficient_stock"
	default:
		return "error"
	}
}

func (h *PaymentsHandler) getPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	if h.Cache != nil {
		tx, ok, err := h.Cache.Get(ctx, id)
		if err != nil {
			h.logger().Warn("transaction cache get", zap.String("id", id), zap.Error(err))
		}
		if ok {
			writeJSON(w, http.StatusOK, tx)
			return
		}
	}

	tx, err := h.Transactions.FindByID(ctx, id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if h.Cache != nil {
		if err := h.Cache.Put(ctx, tx); err != nil {
			h.logger().Warn("transaction cache put", zap.String("id", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *PaymentsHandler) getProviderStatus(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Transactions.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if tx.ExternalTransactionID == "" {
		writeJSON(w, http.StatusConflict, errorBody{Message: "transaction has no provider id yet", Transaction: &tx})
		return
	}
	st, err := h.Provider.GetStatus(r.Context(), tx.ExternalTransactionID)
	if err != nil {
		h.logger().Warn("provider status", zap.String("external_id", tx.ExternalTransactionID), zap.Error(err))
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *PaymentsHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Catalog.ListProducts(r.Context())
	if err != nil {
		h.logger().Error("list products", zap.Error(err))
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *PaymentsHandler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}
