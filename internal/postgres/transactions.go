package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const txColumns = `id, reference, product_id, amount_in_cents, currency, customer_email, installments,
	status, COALESCE(external_transaction_id, ''), external_response, created_at, updated_at`

// TransactionRepo implements payments.TransactionStore.
type TransactionRepo struct{ DB *pgxpool.Pool }

func scanTransaction(row pgx.Row) (payments.Transaction, error) {
	var (
		t      payments.Transaction
		status string
		resp   []byte
	)
	err := row.Scan(&t.ID, &t.Reference, &t.ProductID, &t.AmountInCents, &t.Currency, &t.CustomerEmail,
		&t.Installments, &status, &t.ExternalTransactionID, &resp, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return payments.Transaction{}, err
	}
	t.Status = payments.Status(status)
	t.ExternalResponse = resp
	return t, nil
}

func (r *TransactionRepo) Create(ctx context.Context, in payments.NewTransaction) (payments.Transaction, error) {
	if !isUUID(in.ProductID) {
		return payments.Transaction{}, fmt.Errorf("product %q: %w", in.ProductID, payments.ErrNotFound)
	}
	row := r.DB.QueryRow(ctx, `
		INSERT INTO transactions (id, reference, product_id, amount_in_cents, currency, customer_email, installments, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING')
		RETURNING `+txColumns,
		uuid.NewString(), in.Reference, in.ProductID, in.AmountInCents, in.Currency, in.CustomerEmail, in.Installments)
	t, err := scanTransaction(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				return payments.Transaction{}, fmt.Errorf("reference %s: %w", in.Reference, payments.ErrAlreadyExists)
			case pgForeignKeyViolation:
				return payments.Transaction{}, fmt.Errorf("product %s: %w", in.ProductID, payments.ErrNotFound)
			}
		}
		return payments.Transaction{}, err
	}
	return t, nil
}

func (r *TransactionRepo) FindByID(ctx context.Context, id string) (payments.Transaction, error) {
	if !isUUID(id) {
		return payments.Transaction{}, fmt.Errorf("transaction %q: %w", id, payments.ErrNotFound)
	}
	t, err := scanTransaction(r.DB.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return payments.Transaction{}, fmt.Errorf("transaction %s: %w", id, payments.ErrNotFound)
	}
	return t, err
}

func (r *TransactionRepo) FindByReference(ctx context.Context, reference string) (payments.Transaction, error) {
	t, err := scanTransaction(r.DB.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE reference=$1`, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return payments.Transaction{}, fmt.Errorf("reference %s: %w", reference, payments.ErrNotFound)
	}
	return t, err
}

// TransitionIfPending is a single conditional UPDATE; of two racing callers
// exactly one gets a row back.
func (r *TransactionRepo) TransitionIfPending(ctx context.Context, id string, to payments.Status, gw payments.GatewayRecord) (payments.Transaction, bool, error) {
	if !payments.CanTransition(payments.StatusPending, to) {
		return payments.Transaction{}, false, fmt.Errorf("transition to %q: %w", to, payments.ErrInvalidRequest)
	}
	if !isUUID(id) {
		return payments.Transaction{}, false, fmt.Errorf("transaction %q: %w", id, payments.ErrNotFound)
	}
	t, err := scanTransaction(r.DB.QueryRow(ctx, `
		UPDATE transactions
		   SET status = $2,
		       external_transaction_id = COALESCE(NULLIF($3, ''), external_transaction_id),
		       external_response = COALESCE($4::jsonb, external_response),
		       updated_at = now()
		 WHERE id = $1 AND status = 'PENDING'
		RETURNING `+txColumns,
		id, string(to), gw.ExternalID, responseParam(gw)))
	if err == nil {
		return t, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return payments.Transaction{}, false, err
	}

	// not applied: missing, or someone else resolved it first
	cur, err := r.FindByID(ctx, id)
	if err != nil {
		return payments.Transaction{}, false, err
	}
	return cur, false, nil
}

func (r *TransactionRepo) RecordGatewayResponse(ctx context.Context, id string, gw payments.GatewayRecord) error {
	if !isUUID(id) {
		return fmt.Errorf("transaction %q: %w", id, payments.ErrNotFound)
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE transactions
		   SET external_transaction_id = COALESCE(NULLIF($2, ''), external_transaction_id),
		       external_response = COALESCE($3::jsonb, external_response),
		       updated_at = now()
		 WHERE id = $1 AND status = 'PENDING'`,
		id, gw.ExternalID, responseParam(gw))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := r.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id=$1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("transaction %s: %w", id, payments.ErrNotFound)
		}
	}
	return nil
}

func (r *TransactionRepo) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]payments.Transaction, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+txColumns+`
		  FROM transactions
		 WHERE status = 'PENDING' AND created_at < $1
		 ORDER BY created_at
		 LIMIT $2`, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payments.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func responseParam(gw payments.GatewayRecord) any {
	if len(gw.Response) == 0 {
		return nil
	}
	return string(gw.Response)
}
