// Package memory implements the payments stores in process memory. Every
// conditional operation runs under the store mutex, which gives it the same
// check-and-set semantics as the SQL statements in package postgres.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
)

type Store struct {
	mu          sync.RWMutex
	products    map[string]payments.Product
	txs         map[string]payments.Transaction
	byReference map[string]string
	reviews     map[string]payments.Review
	now         func() time.Time
}

func NewStore(products ...payments.Product) *Store {
	s := &Store{
		products:    make(map[string]payments.Product),
		txs:         make(map[string]payments.Transaction),
		byReference: make(map[string]string),
		reviews:     make(map[string]payments.Review),
		now:         time.Now,
	}
	for _, p := range products {
		s.PutProduct(p)
	}
	return s
}

// WithClock replaces the time source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) PutProduct(p payments.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	p.UpdatedAt = p.CreatedAt
	s.products[p.ID] = p
}

func (s *Store) FindProduct(ctx context.Context, id string) (payments.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return payments.Product{}, fmt.Errorf("product %s: %w", id, payments.ErrNotFound)
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]payments.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]payments.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (s *Store) DecrementIfAvailable(ctx context.Context, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, payments.ErrNotFound)
	}
	if qty <= 0 || p.Stock < qty {
		return fmt.Errorf("product %s: %w", productID, payments.ErrInsufficientStock)
	}
	p.Stock -= qty
	p.UpdatedAt = s.now()
	s.products[productID] = p
	return nil
}

func (s *Store) Create(ctx context.Context, in payments.NewTransaction) (payments.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byReference[in.Reference]; dup {
		return payments.Transaction{}, fmt.Errorf("reference %s: %w", in.Reference, payments.ErrAlreadyExists)
	}
	if _, ok := s.products[in.ProductID]; !ok {
		return payments.Transaction{}, fmt.Errorf("product %s: %w", in.ProductID, payments.ErrNotFound)
	}
	now := s.now()
	tx := payments.Transaction{
		ID:            uuid.NewString(),
		Reference:     in.Reference,
		ProductID:     in.ProductID,
		AmountInCents: in.AmountInCents,
		Currency:      in.Currency,
		CustomerEmail: in.CustomerEmail,
		Installments:  in.Installments,
		Status:        payments.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.txs[tx.ID] = tx
	s.byReference[tx.Reference] = tx.ID
	return tx, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (payments.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[id]
	if !ok {
		return payments.Transaction{}, fmt.Errorf("transaction %s: %w", id, payments.ErrNotFound)
	}
	return tx, nil
}

func (s *Store) FindByReference(ctx context.Context, reference string) (payments.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byReference[reference]
	if !ok {
		return payments.Transaction{}, fmt.Errorf("reference %s: %w", reference, payments.ErrNotFound)
	}
	return s.txs[id], nil
}

func (s *Store) TransitionIfPending(ctx context.Context, id string, to payments.Status, gw payments.GatewayRecord) (payments.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return payments.Transaction{}, false, fmt.Errorf("transaction %s: %w", id, payments.ErrNotFound)
	}
	if !payments.CanTransition(tx.Status, to) {
		return tx, false, nil
	}
	tx.Status = to
	applyGateway(&tx, gw)
	tx.UpdatedAt = s.now()
	s.txs[id] = tx
	return tx, true, nil
}

func (s *Store) RecordGatewayResponse(ctx context.Context, id string, gw payments.GatewayRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, payments.ErrNotFound)
	}
	if tx.Status != payments.StatusPending {
		return nil
	}
	applyGateway(&tx, gw)
	tx.UpdatedAt = s.now()
	s.txs[id] = tx
	return nil
}

func (s *Store) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]payments.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []payments.Transaction
	for _, tx := range s.txs {
		if tx.Status == payments.StatusPending && tx.CreatedAt.Before(createdBefore) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SaveReview(ctx context.Context, r payments.Review) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.reviews[r.EventID]; dup {
		return false, nil
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	s.reviews[r.EventID] = r
	return true, nil
}

func (s *Store) Reviews() []payments.Review {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]payments.Review, 0, len(s.reviews))
	for _, r := range s.reviews {
		out = append(out, r)
	}
	return out
}

func applyGateway(tx *payments.Transaction, gw payments.GatewayRecord) {
	if gw.ExternalID != "" {
		tx.ExternalTransactionID = gw.ExternalID
	}
	if len(gw.Response) > 0 {
		tx.ExternalResponse = append([]byte(nil), gw.Response...)
	}
}
