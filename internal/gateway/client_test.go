package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
)

func TestIntegritySignature(t *testing.T) {
	got := IntegritySignature("ref-1234", 10_000_000, "COP", "test_integrity_abc")
	require.Equal(t, "e57fad1d65a23b04c887c778fc93e0291c71e146f9ca6cf4869ecd4ca8db338e", got)
}

type fakeProvider struct {
	merchantHits int32
	postHits     int32
	tokens       []string

	// post decides the reply to POST /transactions; hit is 1-based.
	post func(w http.ResponseWriter, r *http.Request, hit int32, body createTransactionRequest)
	get  func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeProvider) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/merchants/pub_test", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.merchantHits, 1)
		tok := "tok-1"
		if int(n) <= len(f.tokens) {
			tok = f.tokens[n-1]
		}
		_, _ = w.Write([]byte(`{"data":{"presigned_acceptance":{"acceptance_token":"` + tok + `"}}}`))
	})
	mux.HandleFunc("/transactions", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer prv_test", r.Header.Get("Authorization"))
		var body createTransactionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.post(w, r, atomic.AddInt32(&f.postHits, 1), body)
	})
	mux.HandleFunc("/transactions/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer prv_test", r.Header.Get("Authorization"))
		f.get(w, r)
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeProvider, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c, err := New(Config{
		BaseURL:      srv.URL + "/",
		PublicKey:    "pub_test",
		PrivateKey:   "prv_test",
		IntegrityKey: "test_integrity_abc",
		Timeout:      timeout,
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func charge() PaymentData {
	return PaymentData{
		Reference:     "ref-1234",
		AmountInCents: 10_000_000,
		Currency:      "COP",
		CustomerEmail: "buyer@example.com",
		CardToken:     "tok_test_4242",
		Installments:  2,
	}
}

func TestClient_CreatePayment(t *testing.T) {
	f := &fakeProvider{
		post: func(w http.ResponseWriter, r *http.Request, hit int32, body createTransactionRequest) {
			require.Equal(t, "tok-1", body.AcceptanceToken)
			require.Equal(t, int64(10_000_000), body.AmountInCents)
			require.Equal(t, "CARD", body.PaymentMethod.Type)
			require.Equal(t, "tok_test_4242", body.PaymentMethod.Token)
			require.Equal(t, 2, body.PaymentMethod.Installments)
			require.Equal(t, "e57fad1d65a23b04c887c778fc93e0291c71e146f9ca6cf4869ecd4ca8db338e", body.Signature)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"data":{"id":"ext-1","status":"APPROVED","reference":"ref-1234","amount_in_cents":10000000}}`))
		},
	}
	c := newTestClient(t, f, time.Second)

	for i := 0; i < 2; i++ {
		resp, err := c.CreatePayment(context.Background(), charge())
		require.NoError(t, err)
		require.Equal(t, "ext-1", resp.ID)
		require.Equal(t, payments.RemoteApproved, resp.Status)
		require.Contains(t, string(resp.Raw), `"ext-1"`)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&f.merchantHits))
}

func TestClient_CreatePayment_DeclineIsNotAnError(t *testing.T) {
	f := &fakeProvider{
		post: func(w http.ResponseWriter, r *http.Request, hit int32, body createTransactionRequest) {
			_, _ = w.Write([]byte(`{"data":{"id":"ext-2","status":"DECLINED","reference":"ref-1234","status_message":"insufficient funds"}}`))
		},
	}
	c := newTestClient(t, f, time.Second)

	resp, err := c.CreatePayment(context.Background(), charge())
	require.NoError(t, err)
	require.Equal(t, payments.RemoteDeclined, resp.Status)
	require.Equal(t, "insufficient funds", resp.StatusMessage)
}

func TestClient_CreatePayment_RefreshesRejectedToken(t *testing.T) {
	f := &fakeProvider{
		tokens: []string{"stale", "fresh"},
		post: func(w http.ResponseWriter, r *http.Request, hit int32, body createTransactionRequest) {
			if hit == 1 {
				require.Equal(t, "stale", body.AcceptanceToken)
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(`{"error":{"type":"INPUT_VALIDATION_ERROR","messages":{"acceptance_token":["invalid"]}}}`))
				return
			}
			require.Equal(t, "fresh", body.AcceptanceToken)
			_, _ = w.Write([]byte(`{"data":{"id":"ext-3","status":"APPROVED"}}`))
		},
	}
	c := newTestClient(t, f, time.Second)

	resp, err := c.CreatePayment(context.Background(), charge())
	require.NoError(t, err)
	require.Equal(t, "ext-3", resp.ID)
	require.Equal(t, int32(2), atomic.LoadInt32(&f.postHits))
	require.Equal(t, int32(2), atomic.LoadInt32(&f.merchantHits))
}

func TestClient_CreatePayment_RetriesOnlyOnce(t *testing.T) {
	f := &fakeProvider{
		post: func(w http.ResponseWriter, r *http.Request, hit int32, body createTransactionRequest) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"type":"INVALID_ACCESS_TOKEN","reason":"acceptance_token expired"}}`))
		},
	}
	c := newTestClient(t, f, time.Second)

	_, err := c.CreatePayment(context.Background(), charge())
	var ge *payments.GatewayError
	require.True(t, errors.As(err, &ge))
	require.Equal(t, http.StatusUnauthorized, ge.StatusCode)
	require.Equal(t, int32(2), atomic.LoadInt32(&f.postHits))
}

func TestClient_CreatePayment_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   int
	}{
		{name: "validation error", status: http.StatusUnprocessableEntity, body: `{"error":{"type":"INPUT_VALIDATION_ERROR","messages":{"customer_email":["invalid"]}}}`, code: 422},
		{name: "server error", status: http.StatusBadGateway, body: `upstream down`, code: 502},
		{name: "malformed json", status: http.StatusOK, body: `{"data":`, code: 200},
		{name: "missing data", status: http.StatusOK, body: `{}`, code: 200},
		{name: "missing id", status: http.StatusOK, body: `{"data":{"status":"APPROVED"}}`, code: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeProvider{
				post: func(w http.ResponseWriter, r *http.Request, hit int32, body createTransactionRequest) {
					w.WriteHeader(tt.status)
					_, _ = w.Write([]byte(tt.body))
				},
			}
			c := newTestClient(t, f, time.Second)

			_, err := c.CreatePayment(context.Background(), charge())
			var ge *payments.GatewayError
			require.True(t, errors.As(err, &ge), "got %v", err)
			require.Equal(t, tt.code, ge.StatusCode)
			require.False(t, ge.Timeout)
			require.Equal(t, int32(1), atomic.LoadInt32(&f.postHits))
		})
	}
}

func TestClient_CreatePayment_Timeout(t *testing.T) {
	f := &fakeProvider{
		post: func(w http.ResponseWriter, r *http.Request, hit int32, body createTransactionRequest) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		},
	}
	c := newTestClient(t, f, 50*time.Millisecond)

	start := time.Now()
	_, err := c.CreatePayment(context.Background(), charge())
	var ge *payments.GatewayError
	require.True(t, errors.As(err, &ge))
	require.True(t, ge.Timeout)
	require.Less(t, time.Since(start), time.Second)
}

func TestClient_GetStatus(t *testing.T) {
	f := &fakeProvider{
		get: func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/transactions/ext-9", r.URL.Path)
			_, _ = w.Write([]byte(`{"data":{"id":"ext-9","status":"VOIDED","reference":"ref-9","amount_in_cents":500,"currency":"COP"}}`))
		},
	}
	c := newTestClient(t, f, time.Second)

	st, err := c.GetStatus(context.Background(), "ext-9")
	require.NoError(t, err)
	require.Equal(t, "ref-9", st.Reference)
	require.Equal(t, payments.RemoteVoided, st.Status)
	require.Equal(t, int64(500), st.AmountInCents)
	require.Equal(t, int32(0), atomic.LoadInt32(&f.merchantHits))
}

func TestClient_GetStatus_NotFound(t *testing.T) {
	f := &fakeProvider{
		get: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"NOT_FOUND_ERROR","reason":"La entidad solicitada no existe"}}`))
		},
	}
	c := newTestClient(t, f, time.Second)

	_, err := c.GetStatus(context.Background(), "ext-missing")
	var ge *payments.GatewayError
	require.True(t, errors.As(err, &ge))
	require.Equal(t, http.StatusNotFound, ge.StatusCode)
	require.Equal(t, "La entidad solicitada no existe", ge.Message)
}

type stubAPI struct{ err error }

func (s stubAPI) CreatePayment(context.Context, PaymentData) (PaymentResponse, error) {
	return PaymentResponse{ID: "x", Status: "APPROVED"}, s.err
}

func (s stubAPI) GetStatus(context.Context, string) (TransactionStatus, error) {
	return TransactionStatus{}, s.err
}

func TestInstrumentedClient(t *testing.T) {
	vec := prometheus.NewSummaryVec(prometheus.SummaryOpts{Name: "test_gateway_duration_seconds"},
		[]string{"instance_name", "method", "result"})

	ok := NewInstrumentedClient("primary", stubAPI{}, vec)
	_, err := ok.CreatePayment(context.Background(), charge())
	require.NoError(t, err)

	bad := NewInstrumentedClient("primary", stubAPI{err: errors.New("boom")}, vec)
	_, err = bad.GetStatus(context.Background(), "x")
	require.Error(t, err)

	require.Equal(t, 2, testutil.CollectAndCount(vec))
}

type mapStore struct {
	mu  sync.Mutex
	val string
}

func (m *mapStore) Get(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.val, nil
}

func (m *mapStore) Set(_ context.Context, v string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.val = v
	return nil
}

func (m *mapStore) Delete(context.Context) error { return m.Set(context.Background(), "") }

func TestAcceptanceTokens_SingleFetchUnderConcurrency(t *testing.T) {
	var fetches int32
	release := make(chan struct{})
	tokens := NewAcceptanceTokens(func(ctx context.Context) (string, error) {
		atomic.AddInt32(&fetches, 1)
		<-release
		return "tok", nil
	}, nil, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := tokens.Token(context.Background())
			require.NoError(t, err)
			require.Equal(t, "tok", tok)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&fetches))
}

func TestAcceptanceTokens_Store(t *testing.T) {
	ctx := context.Background()
	store := &mapStore{val: "shared"}
	var fetches int32
	tokens := NewAcceptanceTokens(func(ctx context.Context) (string, error) {
		atomic.AddInt32(&fetches, 1)
		return "fetched", nil
	}, store, zap.NewNop())

	tok, err := tokens.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "shared", tok)
	require.Equal(t, int32(0), atomic.LoadInt32(&fetches))

	require.NoError(t, tokens.Invalidate(ctx))
	tok, err = tokens.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "fetched", tok)
	require.Equal(t, "fetched", store.val)
}

func TestAcceptanceTokens_FetchError(t *testing.T) {
	boom := errors.New("boom")
	tokens := NewAcceptanceTokens(func(ctx context.Context) (string, error) { return "", boom }, nil, nil)
	_, err := tokens.Token(context.Background())
	require.ErrorIs(t, err, boom)

	empty := NewAcceptanceTokens(func(ctx context.Context) (string, error) { return "", nil }, nil, nil)
	_, err = empty.Token(context.Background())
	require.ErrorIs(t, err, errEmptyToken)
}
