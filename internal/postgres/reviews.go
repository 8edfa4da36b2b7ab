package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
)

// ReviewRepo implements payments.ReviewStore.
type ReviewRepo struct{ DB *pgxpool.Pool }

func (r *ReviewRepo) SaveReview(ctx context.Context, rv payments.Review) (bool, error) {
	var payload any
	if len(rv.Payload) > 0 {
		payload = string(rv.Payload)
	}
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO payment_reviews (event_id, reference, reason, local_status, remote_status, payload)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		ON CONFLICT (event_id) DO NOTHING`,
		rv.EventID, rv.Reference, rv.Reason, string(rv.LocalStatus), rv.RemoteStatus, payload)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
