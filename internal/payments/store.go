package payments

import (
	"context"
	"time"
)

// TransactionStore persists transactions. Status changes only go through
// TransitionIfPending.
type TransactionStore interface {
	// Create inserts a PENDING transaction. A duplicate reference yields ErrAlreadyExists.
	Create(ctx context.Context, in NewTransaction) (Transaction, error)
	// FindByID and FindByReference return ErrNotFound for unknown keys.
	FindByID(ctx context.Context, id string) (Transaction, error)
	FindByReference(ctx context.Context, reference string) (Transaction, error)
	// TransitionIfPending atomically moves a PENDING row to `to` and stores gw.
	// applied reports whether this call changed the row; when false the
	// returned transaction is the current (already terminal) one.
	TransitionIfPending(ctx context.Context, id string, to Status, gw GatewayRecord) (tx Transaction, applied bool, err error)
	// RecordGatewayResponse stores the provider id/payload on a PENDING row without touching its status.
	RecordGatewayResponse(ctx context.Context, id string, gw GatewayRecord) error
	// ListPending returns PENDING transactions created before the cutoff, oldest first.
	ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]Transaction, error)
}

// StockLedger owns the stock counter of the catalog.
type StockLedger interface {
	// DecrementIfAvailable removes qty units only if that many are available,
	// otherwise it fails with ErrInsufficientStock and changes nothing.
	DecrementIfAvailable(ctx context.Context, productID string, qty int) error
}

type ProductCatalog interface {
	FindProduct(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
}

type ReviewStore interface {
	// SaveReview is idempotent on EventID; inserted is false for a repeat.
	SaveReview(ctx context.Context, r Review) (inserted bool, err error)
}
