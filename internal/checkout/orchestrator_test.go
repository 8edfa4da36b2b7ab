package checkout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/checkout/mocks"
	"github.com/ariefcatur/go-realtime-checkout/internal/gateway"
	"github.com/ariefcatur/go-realtime-checkout/internal/memory"
	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
	"github.com/ariefcatur/go-realtime-checkout/internal/settle"
)

const productID = "p-1"

type fixture struct {
	store   *memory.Store
	events  *memory.Events
	settler *settle.Settler
}

func newFixture(stock int) fixture {
	store := memory.NewStore(payments.Product{ID: productID, SKU: "SKU-1", Price: 100000, Stock: stock})
	events := memory.NewEvents()
	return fixture{
		store:   store,
		events:  events,
		settler: settle.New(store, store, events, zap.NewNop(), "test"),
	}
}

func (f fixture) orchestrator(gw Gateway) *Orchestrator {
	refs := payments.ReferenceFunc(func() string { return "ref-fixed" })
	return NewOrchestrator(f.store, f.store, gw, f.settler, refs, "COP", zap.NewNop())
}

func (f fixture) stock(t *testing.T) int {
	t.Helper()
	p, err := f.store.FindProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

func validRequest() ChargeRequest {
	return ChargeRequest{
		ProductID:     productID,
		CustomerEmail: "buyer@example.com",
		CardToken:     "tok_test_4242",
		Installments:  1,
	}
}

func TestCharge_Approved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(10)
	gw := mocks.NewGateway(t)
	gw.On("CreatePayment", mock.Anything, mock.MatchedBy(func(in gateway.PaymentData) bool {
		return in.Reference == "ref-fixed" &&
			in.AmountInCents == 10_000_000 &&
			in.Currency == "COP" &&
			in.CardToken == "tok_test_4242"
	})).Return(gateway.PaymentResponse{ID: "ext-1", Status: payments.RemoteApproved, Raw: []byte(`{"id":"ext-1"}`)}, nil).Once()

	res, err := f.orchestrator(gw).Charge(ctx, validRequest())
	require.NoError(t, err)
	require.Equal(t, OutcomeApproved, res.Outcome)
	require.True(t, res.StockUpdated)
	require.Equal(t, payments.StatusApproved, res.Transaction.Status)
	require.Equal(t, "ext-1", res.Transaction.ExternalTransactionID)
	require.Equal(t, 9, f.stock(t))

	stored, err := f.store.FindByReference(ctx, "ref-fixed")
	require.NoError(t, err)
	require.Equal(t, payments.StatusApproved, stored.Status)
	require.Len(t, f.events.Topic(payments.TopicTransactionResolved), 1)
}

func TestCharge_BusinessDecline(t *testing.T) {
	for _, remote := range []string{payments.RemoteDeclined, payments.RemoteVoided, payments.RemoteError, payments.RemotePending} {
		t.Run(remote, func(t *testing.T) {
			f := newFixture(10)
			gw := mocks.NewGateway(t)
			gw.On("CreatePayment", mock.Anything, mock.Anything).
				Return(gateway.PaymentResponse{ID: "ext-2", Status: remote}, nil).Once()

			res, err := f.orchestrator(gw).Charge(context.Background(), validRequest())
			require.NoError(t, err)
			require.Equal(t, OutcomeDeclined, res.Outcome)
			require.Equal(t, payments.StatusDeclined, res.Transaction.Status)
			require.False(t, res.StockUpdated)
			require.Equal(t, 10, f.stock(t))
		})
	}
}

func TestCharge_InsufficientStockSkipsGateway(t *testing.T) {
	f := newFixture(0)
	gw := mocks.NewGateway(t)

	_, err := f.orchestrator(gw).Charge(context.Background(), validRequest())
	require.ErrorIs(t, err, payments.ErrInsufficientStock)
	gw.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)

	_, err = f.store.FindByReference(context.Background(), "ref-fixed")
	require.ErrorIs(t, err, payments.ErrNotFound)
}

func TestCharge_ProductNotFound(t *testing.T) {
	f := newFixture(5)
	gw := mocks.NewGateway(t)
	req := validRequest()
	req.ProductID = "missing"

	_, err := f.orchestrator(gw).Charge(context.Background(), req)
	require.ErrorIs(t, err, payments.ErrNotFound)
}

func TestCharge_InvalidRequest(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ChargeRequest)
	}{
		{name: "no product", mutate: func(r *ChargeRequest) { r.ProductID = " " }},
		{name: "bad email", mutate: func(r *ChargeRequest) { r.CustomerEmail = "not-an-email" }},
		{name: "no card token", mutate: func(r *ChargeRequest) { r.CardToken = "" }},
		{name: "zero installments", mutate: func(r *ChargeRequest) { r.Installments = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(5)
			gw := mocks.NewGateway(t)
			req := validRequest()
			tt.mutate(&req)

			_, err := f.orchestrator(gw).Charge(context.Background(), req)
			require.ErrorIs(t, err, payments.ErrInvalidRequest)
		})
	}
}

func TestCharge_GatewayErrorDeclines(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(t *testing.T, ge *payments.GatewayError)
	}{
		{
			name: "timeout",
			err:  &payments.GatewayError{Op: "create_payment", Timeout: true},
			check: func(t *testing.T, ge *payments.GatewayError) {
				require.True(t, ge.Timeout)
			},
		},
		{
			name: "plain error is wrapped",
			err:  errors.New("connection reset"),
			check: func(t *testing.T, ge *payments.GatewayError) {
				require.Equal(t, "create_payment", ge.Op)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(10)
			gw := mocks.NewGateway(t)
			gw.On("CreatePayment", mock.Anything, mock.Anything).Return(gateway.PaymentResponse{}, tt.err).Once()

			res, err := f.orchestrator(gw).Charge(context.Background(), validRequest())
			var ge *payments.GatewayError
			require.True(t, errors.As(err, &ge))
			tt.check(t, ge)

			require.Equal(t, OutcomeDeclined, res.Outcome)
			require.Equal(t, payments.StatusDeclined, res.Transaction.Status)
			require.Equal(t, 10, f.stock(t))
		})
	}
}

type fixedToken struct{}

func (fixedToken) Token(context.Context) (string, error) { return "tok", nil }
func (fixedToken) Invalidate(context.Context) error      { return nil }

func TestCharge_RealClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client, err := gateway.New(gateway.Config{
		BaseURL:      srv.URL,
		PrivateKey:   "prv_test",
		IntegrityKey: "int_test",
		Timeout:      50 * time.Millisecond,
	}, zap.NewNop(), gateway.WithTokenCache(fixedToken{}))
	require.NoError(t, err)

	f := newFixture(10)
	res, err := f.orchestrator(client).Charge(context.Background(), validRequest())
	var ge *payments.GatewayError
	require.True(t, errors.As(err, &ge))
	require.True(t, ge.Timeout)
	require.Equal(t, payments.StatusDeclined, res.Transaction.Status)
	require.Equal(t, 10, f.stock(t))
}

func TestCharge_WebhookWinsDuringGatewayCall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(10)
	gw := mocks.NewGateway(t)
	gw.On("CreatePayment", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			in := args.Get(1).(gateway.PaymentData)
			tx, err := f.store.FindByReference(ctx, in.Reference)
			require.NoError(t, err)
			out, err := f.settler.Resolve(ctx, tx.ID, payments.StatusApproved, payments.GatewayRecord{ExternalID: "ext-1"}, settle.SourceWebhook)
			require.NoError(t, err)
			require.True(t, out.StockUpdated)
		}).
		Return(gateway.PaymentResponse{ID: "ext-1", Status: payments.RemoteApproved}, nil).Once()

	res, err := f.orchestrator(gw).Charge(ctx, validRequest())
	require.NoError(t, err)
	require.Equal(t, OutcomeApproved, res.Outcome)
	require.False(t, res.StockUpdated)
	require.Equal(t, 9, f.stock(t))
}

func TestCharge_GatewayErrorAfterWebhookApproval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(10)
	gw := mocks.NewGateway(t)
	gw.On("CreatePayment", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			tx, err := f.store.FindByReference(ctx, args.Get(1).(gateway.PaymentData).Reference)
			require.NoError(t, err)
			_, err = f.settler.Resolve(ctx, tx.ID, payments.StatusApproved, payments.GatewayRecord{}, settle.SourceWebhook)
			require.NoError(t, err)
		}).
		Return(gateway.PaymentResponse{}, &payments.GatewayError{Op: "create_payment", Timeout: true}).Once()

	res, err := f.orchestrator(gw).Charge(ctx, validRequest())
	require.NoError(t, err)
	require.Equal(t, OutcomeApproved, res.Outcome)
	require.Equal(t, 9, f.stock(t))
}

func TestCharge_OversoldApproval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(1)
	gw := mocks.NewGateway(t)
	gw.On("CreatePayment", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			// another buyer takes the last unit meanwhile
			require.NoError(t, f.store.DecrementIfAvailable(ctx, productID, 1))
		}).
		Return(gateway.PaymentResponse{ID: "ext-1", Status: payments.RemoteApproved}, nil).Once()

	res, err := f.orchestrator(gw).Charge(ctx, validRequest())
	require.ErrorIs(t, err, payments.ErrInsufficientStock)
	require.Equal(t, payments.StatusApproved, res.Transaction.Status)
	require.False(t, res.StockUpdated)
	require.Equal(t, 0, f.stock(t))
	require.Len(t, f.events.Topic(payments.TopicInconsistency), 1)
}

// ctxStore fails like a database driver once the context is done.
type ctxStore struct{ *memory.Store }

func (s ctxStore) RecordGatewayResponse(ctx context.Context, id string, gw payments.GatewayRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.RecordGatewayResponse(ctx, id, gw)
}

func (s ctxStore) TransitionIfPending(ctx context.Context, id string, to payments.Status, gw payments.GatewayRecord) (payments.Transaction, bool, error) {
	if err := ctx.Err(); err != nil {
		return payments.Transaction{}, false, err
	}
	return s.Store.TransitionIfPending(ctx, id, to, gw)
}

func (s ctxStore) DecrementIfAvailable(ctx context.Context, productID string, qty int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.DecrementIfAvailable(ctx, productID, qty)
}

func TestCharge_ApprovalSurvivesCallerCancel(t *testing.T) {
	f := newFixture(10)
	store := ctxStore{f.store}
	settler := settle.New(store, store, f.events, zap.NewNop(), "test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gw := mocks.NewGateway(t)
	gw.On("CreatePayment", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(gateway.PaymentResponse{ID: "ext-1", Status: payments.RemoteApproved}, nil).Once()

	orch := NewOrchestrator(store, store, gw, settler,
		payments.ReferenceFunc(func() string { return "ref-fixed" }), "COP", zap.NewNop())
	res, err := orch.Charge(ctx, validRequest())
	require.NoError(t, err)
	require.Equal(t, OutcomeApproved, res.Outcome)
	require.True(t, res.StockUpdated)

	stored, err := f.store.FindByReference(context.Background(), "ref-fixed")
	require.NoError(t, err)
	require.Equal(t, payments.StatusApproved, stored.Status)
	require.Equal(t, "ext-1", stored.ExternalTransactionID)
	require.Equal(t, 9, f.stock(t))
}

func TestCharge_DeclineSurvivesCallerCancel(t *testing.T) {
	f := newFixture(10)
	store := ctxStore{f.store}
	settler := settle.New(store, store, f.events, zap.NewNop(), "test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gw := mocks.NewGateway(t)
	gw.On("CreatePayment", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(gateway.PaymentResponse{}, &payments.GatewayError{Op: "create_payment", Err: context.Canceled}).Once()

	orch := NewOrchestrator(store, store, gw, settler,
		payments.ReferenceFunc(func() string { return "ref-fixed" }), "COP", zap.NewNop())
	res, err := orch.Charge(ctx, validRequest())
	require.True(t, payments.IsGatewayError(err))
	require.Equal(t, payments.StatusDeclined, res.Transaction.Status)

	stored, err := f.store.FindByReference(context.Background(), "ref-fixed")
	require.NoError(t, err)
	require.Equal(t, payments.StatusDeclined, stored.Status)
}
