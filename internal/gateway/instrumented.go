package gateway

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// API is the provider surface used by the rest of the service.
type API interface {
	CreatePayment(ctx context.Context, in PaymentData) (PaymentResponse, error)
	GetStatus(ctx context.Context, externalID string) (TransactionStatus, error)
}

// InstrumentedClient decorates an API with a duration summary labelled by
// instance_name, method and result.
type InstrumentedClient struct {
	name string
	cl   API
	vec  *prometheus.SummaryVec
}

func NewInstrumentedClient(name string, cl API, vec *prometheus.SummaryVec) *InstrumentedClient {
	return &InstrumentedClient{name: name, cl: cl, vec: vec}
}

func (d *InstrumentedClient) CreatePayment(ctx context.Context, in PaymentData) (resp PaymentResponse, err error) {
	since := time.Now()
	defer func() {
		d.vec.WithLabelValues(d.name, "CreatePayment", result(err)).Observe(time.Since(since).Seconds())
	}()
	return d.cl.CreatePayment(ctx, in)
}

func (d *InstrumentedClient) GetStatus(ctx context.Context, externalID string) (st TransactionStatus, err error) {
	since := time.Now()
	defer func() {
		d.vec.WithLabelValues(d.name, "GetStatus", result(err)).Observe(time.Since(since).Seconds())
	}()
	return d.cl.GetStatus(ctx, externalID)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
