package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
)

// isUUID guards uuid columns: Postgres rejects other text with 22P02
// instead of finding no row.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

const productColumns = `id, sku, name, description, image_url, price, stock, created_at, updated_at`

// ProductRepo implements payments.ProductCatalog and payments.StockLedger.
type ProductRepo struct{ DB *pgxpool.Pool }

func scanProduct(row pgx.Row) (payments.Product, error) {
	var p payments.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.ImageURL, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *ProductRepo) FindProduct(ctx context.Context, id string) (payments.Product, error) {
	if !isUUID(id) {
		return payments.Product{}, fmt.Errorf("product %q: %w", id, payments.ErrNotFound)
	}
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return payments.Product{}, fmt.Errorf("product %s: %w", id, payments.ErrNotFound)
	}
	return p, err
}

func (r *ProductRepo) ListProducts(ctx context.Context) ([]payments.Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payments.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DecrementIfAvailable never drives stock below zero: the WHERE clause and
// the column CHECK both refuse it.
func (r *ProductRepo) DecrementIfAvailable(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("decrement %d: %w", qty, payments.ErrInvalidRequest)
	}
	if !isUUID(productID) {
		return fmt.Errorf("product %q: %w", productID, payments.ErrNotFound)
	}
	ct, err := r.DB.Exec(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1 AND stock >= $2`,
		productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id=$1)`, productID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("product %s: %w", productID, payments.ErrNotFound)
	}
	return fmt.Errorf("product %s: %w", productID, payments.ErrInsufficientStock)
}
