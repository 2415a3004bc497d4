package postgres

import "context"

// The partial index on reserved boxes keeps the expiry sweep cheap; the
// unique index on pickup_code backs collision-retried code generation.
const schema = `
CREATE TABLE IF NOT EXISTS surprise_box (
	id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
	store_id BIGINT NOT NULL,
	category_id BIGINT NOT NULL,
	business_name TEXT NOT NULL DEFAULT '',
	store_address TEXT NOT NULL DEFAULT '',
	store_city TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	original_price BIGINT NOT NULL,
	discounted_price BIGINT NOT NULL,
	image_url TEXT NOT NULL DEFAULT '',
	pickup_start_time TIMESTAMPTZ NOT NULL,
	pickup_end_time TIMESTAMPTZ NOT NULL,
	sale_start_time TIMESTAMPTZ NOT NULL,
	sale_end_time TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL DEFAULT 'draft'
		CHECK (status IN ('draft', 'active', 'reserved', 'sold', 'expired', 'cancelled')),
	reserved_by BIGINT,
	reserved_at TIMESTAMPTZ,
	reservation_expires_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK ((status = 'reserved') = (reserved_by IS NOT NULL AND reservation_expires_at IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_surprise_box_reservation_expiry
	ON surprise_box (reservation_expires_at) WHERE status = 'reserved';
CREATE INDEX IF NOT EXISTS idx_surprise_box_store_status
	ON surprise_box (store_id, status);

CREATE TABLE IF NOT EXISTS orders (
	id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
	customer_id BIGINT NOT NULL,
	surprise_box_id BIGINT NOT NULL REFERENCES surprise_box (id),
	store_id BIGINT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending'
		CHECK (status IN ('pending', 'paid', 'ready_for_pickup', 'in_delivery', 'completed', 'cancelled', 'refunded')),
	payment_type TEXT NOT NULL CHECK (payment_type IN ('app', 'cash')),
	fulfillment_type TEXT NOT NULL CHECK (fulfillment_type IN ('pickup', 'delivery')),
	payment_method TEXT NOT NULL
		CHECK (payment_method IN ('card', 'digital_wallet', 'cash', 'app')),
	amount BIGINT NOT NULL,
	delivery_address TEXT NOT NULL DEFAULT '',
	pickup_code TEXT NOT NULL UNIQUE,
	order_date TIMESTAMPTZ NOT NULL DEFAULT now(),
	pickuped_at TIMESTAMPTZ,
	cancelled_by TEXT CHECK (cancelled_by IN ('customer', 'store')),
	cancelled_at TIMESTAMPTZ,
	refund_amount BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders (customer_id);
CREATE INDEX IF NOT EXISTS idx_orders_store ON orders (store_id);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id BIGINT NOT NULL,
	event_type TEXT NOT NULL,
	payload_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outbox_new ON outbox (created_at) WHERE status = 'NEW';
`

func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}
