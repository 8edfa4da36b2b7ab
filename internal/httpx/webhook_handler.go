package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/metrics"
	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
	"github.com/ariefcatur/go-realtime-checkout/internal/reconcile"
)

const (
	HeaderEventChecksum  = "X-Event-Checksum"
	HeaderEventTimestamp = "X-Event-Timestamp"

	maxEventBytes = 1 << 20
)

type Reconciler interface {
	Reconcile(ctx context.Context, raw []byte, signature string, timestamp int64) (reconcile.Outcome, error)
}

type WebhookHandler struct {
	Reconciler Reconciler
	Provider   string // the only accepted {provider} path value
	Log        *zap.Logger
}

func (h *WebhookHandler) Register(r chi.Router) {
	r.Post("/webhooks/{provider}/events", h.receive)
}

func (h *WebhookHandler) receive(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "provider") != h.Provider {
		writeJSON(w, http.StatusNotFound, errorBody{Message: "unknown provider"})
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "unreadable body"})
		return
	}

	var ts int64
	if v := r.Header.Get(HeaderEventTimestamp); v != "" {
		ts, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			metrics.WebhookEventsTotal.WithLabelValues("malformed").Inc()
			writeJSON(w, http.StatusBadRequest, errorBody{Message: "invalid timestamp header"})
			return
		}
	}

	outcome, err := h.Reconciler.Reconcile(r.Context(), raw, r.Header.Get(HeaderEventChecksum), ts)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrInvalidSignature):
			metrics.WebhookEventsTotal.WithLabelValues("invalid_signature").Inc()
		case errors.Is(err, payments.ErrMalformedEvent):
			metrics.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		default:
			metrics.WebhookEventsTotal.WithLabelValues("error").Inc()
			h.logger().Error("reconcile provider event", zap.Error(err))
		}
		writeError(w, err, nil)
		return
	}

	metrics.WebhookEventsTotal.WithLabelValues(string(outcome)).Inc()
	writeJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

func (h *WebhookHandler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}
