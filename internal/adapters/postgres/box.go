package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/savebox/box-orders/internal/domain"
)

const boxColumns = `
	id, store_id, category_id, business_name, store_address, store_city,
	title, description, original_price, discounted_price, image_url,
	pickup_start_time, pickup_end_time, sale_start_time, sale_end_time,
	status, reserved_by, reserved_at, reservation_expires_at, created_at, updated_at`

func scanBox(row pgx.Row) (*domain.SurpriseBox, error) {
	var b domain.SurpriseBox
	err := row.Scan(
		&b.ID, &b.StoreID, &b.CategoryID, &b.BusinessName, &b.StoreAddress, &b.StoreCity,
		&b.Title, &b.Description, &b.OriginalPrice, &b.DiscountedPrice, &b.ImageURL,
		&b.PickupStart, &b.PickupEnd, &b.SaleStart, &b.SaleEnd,
		&b.Status, &b.ReservedBy, &b.ReservedAt, &b.ReservationExpiresAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrBoxNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repository) GetBox(ctx context.Context, boxID int64) (*domain.SurpriseBox, error) {
	return scanBox(r.pool.QueryRow(ctx, `SELECT`+boxColumns+` FROM surprise_box WHERE id = $1`, boxID))
}

// GetBoxForUpdate loads the box row with a write lock so a concurrent
// release or expiry sweep cannot interleave with order creation.
func (r *Repository) GetBoxForUpdate(ctx context.Context, tx pgx.Tx, boxID int64) (*domain.SurpriseBox, error) {
	return scanBox(tx.QueryRow(ctx, `SELECT`+boxColumns+` FROM surprise_box WHERE id = $1 FOR UPDATE`, boxID))
}

// TryReserve is the single-winner conditional update: the box row flips
// active→reserved only if it is currently available and inside its sale
// window. A lapsed reservation held by anyone is reclaimed inline, so a
// stale holder never blocks the next customer between sweeps.
func (r *Repository) TryReserve(ctx context.Context, boxID, customerID int64, ttl time.Duration, now time.Time) (time.Time, error) {
	expiresAt := now.Add(ttl)
	result, err := r.pool.Exec(ctx, `
		UPDATE surprise_box
		SET status = 'reserved', reserved_by = $2, reserved_at = $3,
			reservation_expires_at = $4, updated_at = $3
		WHERE id = $1
			AND sale_start_time <= $3 AND sale_end_time > $3
			AND (status = 'active'
				OR (status = 'reserved' AND reservation_expires_at <= $3))
	`, boxID, customerID, now, expiresAt)
	if err != nil {
		return time.Time{}, mapTxError(err)
	}
	if result.RowsAffected() == 1 {
		return expiresAt, nil
	}
	return time.Time{}, r.classifyReserveDenial(ctx, boxID, now)
}

// The follow-up read only picks the denial reason; the conditional update
// above is the authoritative arbiter.
func (r *Repository) classifyReserveDenial(ctx context.Context, boxID int64, now time.Time) error {
	box, err := r.GetBox(ctx, boxID)
	if err != nil {
		return err
	}
	if box.Status == domain.BoxReserved && !box.IsReservationExpired(now) {
		return domain.ErrAlreadyReserved
	}
	return domain.ErrBoxNotAvailable
}

// Release idempotently returns a reserved box to active. A box that was
// already sold, released, or withdrawn is left untouched.
func (r *Repository) Release(ctx context.Context, boxID int64, now time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE surprise_box
		SET status = 'active', reserved_by = NULL, reserved_at = NULL,
			reservation_expires_at = NULL, updated_at = $2
		WHERE id = $1 AND status = 'reserved'
	`, boxID, now)
	if err != nil {
		return false, mapTxError(err)
	}
	return result.RowsAffected() == 1, nil
}

// MarkSold flips reserved→sold for the reserving customer inside the order
// creation transaction. The caller holds the row lock, so zero rows here
// means the precondition checks raced with nothing and simply failed.
func (r *Repository) MarkSold(ctx context.Context, tx pgx.Tx, boxID, customerID int64, now time.Time) error {
	result, err := tx.Exec(ctx, `
		UPDATE surprise_box
		SET status = 'sold', reserved_by = NULL, reserved_at = NULL,
			reservation_expires_at = NULL, updated_at = $3
		WHERE id = $1 AND status = 'reserved' AND reserved_by = $2
			AND reservation_expires_at > $3
	`, boxID, customerID, now)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrReservationExpired
	}
	return nil
}

// EnsureSold re-asserts sold on the box during order completion. The box
// usually already is, so zero affected rows is a no-op.
func (r *Repository) EnsureSold(ctx context.Context, tx pgx.Tx, boxID int64, now time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE surprise_box
		SET status = 'sold', reserved_by = NULL, reserved_at = NULL,
			reservation_expires_at = NULL, updated_at = $2
		WHERE id = $1 AND status = 'reserved'
	`, boxID, now)
	return err
}

// GetExpiredBoxIDs lists reserved boxes whose TTL lapsed, for the sweep.
func (r *Repository) GetExpiredBoxIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM surprise_box
		WHERE status = 'reserved' AND reservation_expires_at <= $1
		ORDER BY reservation_expires_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertBox persists a new box with its denormalized merchandising fields.
// The template-instantiation job is the production caller; tests use it to
// seed fixtures.
func (r *Repository) InsertBox(ctx context.Context, box *domain.SurpriseBox) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO surprise_box (
			store_id, category_id, business_name, store_address, store_city,
			title, description, original_price, discounted_price, image_url,
			pickup_start_time, pickup_end_time, sale_start_time, sale_end_time, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at
	`,
		box.StoreID, box.CategoryID, box.BusinessName, box.StoreAddress, box.StoreCity,
		box.Title, box.Description, box.OriginalPrice, box.DiscountedPrice, box.ImageURL,
		box.PickupStart, box.PickupEnd, box.SaleStart, box.SaleEnd, box.Status,
	).Scan(&box.ID, &box.CreatedAt, &box.UpdatedAt)
}

// ApplyBoxEvent performs a transition-table-guarded status change for the
// out-of-band lifecycle moves (activate, withdraw, lapse). Reserve, release
// and sell have dedicated methods because they also touch reservation
// fields.
func (r *Repository) ApplyBoxEvent(ctx context.Context, boxID int64, event domain.BoxEvent, now time.Time) (domain.BoxStatus, error) {
	var from []string
	var to domain.BoxStatus
	for _, s := range []domain.BoxStatus{domain.BoxDraft, domain.BoxActive, domain.BoxReserved} {
		if next, ok := domain.BoxTransition(s, event); ok {
			from = append(from, string(s))
			to = next
		}
	}
	if len(from) == 0 {
		return "", domain.ErrBoxNotAvailable
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE surprise_box
		SET status = $2, reserved_by = NULL, reserved_at = NULL,
			reservation_expires_at = NULL, updated_at = $3
		WHERE id = $1 AND status = ANY($4)
	`, boxID, to, now, from)
	if err != nil {
		return "", err
	}
	if result.RowsAffected() == 0 {
		if _, err := r.GetBox(ctx, boxID); err != nil {
			return "", err
		}
		return "", domain.ErrBoxNotAvailable
	}
	return to, nil
}
