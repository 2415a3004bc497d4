package postgres_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/savebox/box-orders/internal/adapters/postgres"
	"github.com/savebox/box-orders/internal/domain"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"
)

func startRepository(t *testing.T) *postgres.Repository {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "savebox",
				"POSTGRES_PASSWORD": "savebox",
				"POSTGRES_DB":       "savebox",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatal(err)
	}

	dsn := fmt.Sprintf("postgres://savebox:savebox@%s:%s/savebox?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	repo := postgres.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return repo
}

func seedActiveBox(t *testing.T, repo *postgres.Repository, storeID int64, now time.Time) int64 {
	t.Helper()
	box := &domain.SurpriseBox{
		StoreID:         storeID,
		CategoryID:      1,
		BusinessName:    "Corner Bakery",
		StoreAddress:    "12 Mill Lane",
		StoreCity:       "Rotterdam",
		Title:           "Evening surprise box",
		OriginalPrice:   1500,
		DiscountedPrice: 599,
		PickupStart:     now.Add(2 * time.Hour),
		PickupEnd:       now.Add(4 * time.Hour),
		SaleStart:       now.Add(-time.Hour),
		SaleEnd:         now.Add(6 * time.Hour),
		Status:          domain.BoxActive,
	}
	if err := repo.InsertBox(context.Background(), box); err != nil {
		t.Fatal(err)
	}
	return box.ID
}

func TestTryReserve_SingleWinner(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()
	now := time.Now()
	boxID := seedActiveBox(t, repo, 3, now)

	const customers = 16
	var wins, conflicts atomic.Int64

	var g errgroup.Group
	for i := 0; i < customers; i++ {
		customerID := int64(100 + i)
		g.Go(func() error {
			_, err := repo.TryReserve(ctx, boxID, customerID, 5*time.Minute, now)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, domain.ErrAlreadyReserved), errors.Is(err, domain.ErrBoxNotAvailable):
				conflicts.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if wins.Load() != 1 {
		t.Fatalf("got %d winners, want exactly 1", wins.Load())
	}
	if conflicts.Load() != customers-1 {
		t.Fatalf("got %d conflicts, want %d", conflicts.Load(), customers-1)
	}

	box, err := repo.GetBox(ctx, boxID)
	if err != nil {
		t.Fatal(err)
	}
	if box.Status != domain.BoxReserved || box.ReservedBy == nil {
		t.Fatalf("box should be reserved with a holder, got %s", box.Status)
	}
}

func TestTryReserve_ReclaimsLapsedReservation(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()
	t0 := time.Now()
	boxID := seedActiveBox(t, repo, 3, t0)

	expiresAt, err := repo.TryReserve(ctx, boxID, 7, 5*time.Minute, t0)
	if err != nil {
		t.Fatal(err)
	}
	if !expiresAt.Equal(t0.Add(5 * time.Minute)) {
		t.Fatalf("expiry = %v, want %v", expiresAt, t0.Add(5*time.Minute))
	}

	// Before the TTL lapses the holder keeps the box.
	if _, err := repo.TryReserve(ctx, boxID, 8, 5*time.Minute, t0.Add(4*time.Minute)); !errors.Is(err, domain.ErrAlreadyReserved) {
		t.Fatalf("expected ErrAlreadyReserved before expiry, got %v", err)
	}

	// After the TTL the stale hold is reclaimed inline, no sweep needed.
	later := t0.Add(5*time.Minute + time.Second)
	if _, err := repo.TryReserve(ctx, boxID, 8, 5*time.Minute, later); err != nil {
		t.Fatalf("expected lapsed reservation to be reclaimable, got %v", err)
	}

	box, err := repo.GetBox(ctx, boxID)
	if err != nil {
		t.Fatal(err)
	}
	if box.ReservedBy == nil || *box.ReservedBy != 8 {
		t.Fatalf("box should now be held by customer 8, got %v", box.ReservedBy)
	}
}

func TestTryReserve_OutsideSaleWindow(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()
	now := time.Now()
	boxID := seedActiveBox(t, repo, 3, now)

	beforeStart := now.Add(-2 * time.Hour)
	if _, err := repo.TryReserve(ctx, boxID, 7, 5*time.Minute, beforeStart); !errors.Is(err, domain.ErrBoxNotAvailable) {
		t.Fatalf("expected ErrBoxNotAvailable before sale start, got %v", err)
	}

	afterEnd := now.Add(7 * time.Hour)
	if _, err := repo.TryReserve(ctx, boxID, 7, 5*time.Minute, afterEnd); !errors.Is(err, domain.ErrBoxNotAvailable) {
		t.Fatalf("expected ErrBoxNotAvailable after sale end, got %v", err)
	}
}

func TestTryReserve_MissingBox(t *testing.T) {
	repo := startRepository(t)

	if _, err := repo.TryReserve(context.Background(), 999999, 7, 5*time.Minute, time.Now()); !errors.Is(err, domain.ErrBoxNotFound) {
		t.Fatalf("expected ErrBoxNotFound, got %v", err)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()
	now := time.Now()
	boxID := seedActiveBox(t, repo, 3, now)

	if _, err := repo.TryReserve(ctx, boxID, 7, 5*time.Minute, now); err != nil {
		t.Fatal(err)
	}

	released, err := repo.Release(ctx, boxID, now.Add(6*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if !released {
		t.Fatal("first release should report true")
	}

	released, err = repo.Release(ctx, boxID, now.Add(6*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if released {
		t.Fatal("second release should be a no-op")
	}

	box, err := repo.GetBox(ctx, boxID)
	if err != nil {
		t.Fatal(err)
	}
	if box.Status != domain.BoxActive || box.ReservedBy != nil {
		t.Fatalf("box should be active with reservation fields cleared, got %s", box.Status)
	}
}

func TestMarkSold(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()
	now := time.Now()
	boxID := seedActiveBox(t, repo, 3, now)

	if _, err := repo.TryReserve(ctx, boxID, 7, 5*time.Minute, now); err != nil {
		t.Fatal(err)
	}

	// After the TTL the flip must fail, the hold is gone.
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.MarkSold(ctx, tx, boxID, 7, now.Add(6*time.Minute))
	})
	if !errors.Is(err, domain.ErrReservationExpired) {
		t.Fatalf("expected ErrReservationExpired after TTL, got %v", err)
	}

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.MarkSold(ctx, tx, boxID, 7, now.Add(time.Minute))
	})
	if err != nil {
		t.Fatal(err)
	}

	box, err := repo.GetBox(ctx, boxID)
	if err != nil {
		t.Fatal(err)
	}
	if box.Status != domain.BoxSold || box.ReservedBy != nil || box.ReservationExpiresAt != nil {
		t.Fatalf("box should be sold with reservation fields cleared, got %+v", box)
	}
}

func TestGetExpiredBoxIDs(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()
	now := time.Now()

	lapsed := seedActiveBox(t, repo, 3, now)
	held := seedActiveBox(t, repo, 3, now)

	if _, err := repo.TryReserve(ctx, lapsed, 7, 5*time.Minute, now); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.TryReserve(ctx, held, 8, 15*time.Minute, now); err != nil {
		t.Fatal(err)
	}

	ids, err := repo.GetExpiredBoxIDs(ctx, now.Add(6*time.Minute), 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != lapsed {
		t.Fatalf("expected only the lapsed box %d, got %v", lapsed, ids)
	}
}

func TestCompleteOrder_SecondCallFinalized(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()
	now := time.Now()
	boxID := seedActiveBox(t, repo, 3, now)

	order := &domain.Order{
		CustomerID:      7,
		BoxID:           boxID,
		StoreID:         3,
		Status:          domain.OrderPaid,
		PaymentType:     domain.PaymentTypeApp,
		FulfillmentType: domain.FulfillmentPickup,
		PaymentMethod:   domain.PaymentMethodCard,
		Amount:          599,
		PickupCode:      "ABC234",
		OrderDate:       now,
	}
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.InsertOrder(ctx, tx, order)
	})
	if err != nil {
		t.Fatal(err)
	}

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.CompleteOrder(ctx, tx, order.ID, now)
	})
	if err != nil {
		t.Fatal(err)
	}

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.CompleteOrder(ctx, tx, order.ID, now)
	})
	if !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized on second completion, got %v", err)
	}

	fetched, err := repo.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Status != domain.OrderCompleted || fetched.PickupedAt == nil {
		t.Fatalf("order should be completed with pickup timestamp, got %+v", fetched)
	}
}

func TestInsertOrder_PickupCodeCollision(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()
	now := time.Now()
	first := seedActiveBox(t, repo, 3, now)
	second := seedActiveBox(t, repo, 3, now)

	base := domain.Order{
		CustomerID:      7,
		StoreID:         3,
		Status:          domain.OrderPaid,
		PaymentType:     domain.PaymentTypeApp,
		FulfillmentType: domain.FulfillmentPickup,
		PaymentMethod:   domain.PaymentMethodCard,
		Amount:          599,
		PickupCode:      "XYZ789",
		OrderDate:       now,
	}

	a := base
	a.BoxID = first
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.InsertOrder(ctx, tx, &a)
	})
	if err != nil {
		t.Fatal(err)
	}

	b := base
	b.BoxID = second
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.InsertOrder(ctx, tx, &b)
	})
	if !postgres.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation on duplicate pickup code, got %v", err)
	}
}

func TestCancelOrder(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()
	now := time.Now()
	boxID := seedActiveBox(t, repo, 3, now)

	order := &domain.Order{
		CustomerID:      7,
		BoxID:           boxID,
		StoreID:         3,
		Status:          domain.OrderPaid,
		PaymentType:     domain.PaymentTypeApp,
		FulfillmentType: domain.FulfillmentPickup,
		PaymentMethod:   domain.PaymentMethodCard,
		Amount:          599,
		PickupCode:      "QRS567",
		OrderDate:       now,
	}
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.InsertOrder(ctx, tx, order)
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := repo.CancelOrder(ctx, order.ID, domain.CancelledByCustomer, 599, now); err != nil {
		t.Fatal(err)
	}

	fetched, err := repo.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Status != domain.OrderCancelled || fetched.CancelledBy == nil ||
		*fetched.CancelledBy != domain.CancelledByCustomer || fetched.RefundAmount != 599 {
		t.Fatalf("cancellation not recorded: %+v", fetched)
	}

	// A cancelled order cannot be cancelled or completed again.
	if err := repo.CancelOrder(ctx, order.ID, domain.CancelledByStore, 0, now); !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized on second cancel, got %v", err)
	}
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.CompleteOrder(ctx, tx, order.ID, now)
	})
	if !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized completing a cancelled order, got %v", err)
	}
}

func TestOutboxRoundTrip(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()

	rec := postgres.OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "order",
		AggregateID:   1,
		EventType:     "order.created",
		Payload:       []byte(`{"order_id":1}`),
		DedupeKey:     uuid.New().String(),
	}
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.InsertOutbox(ctx, tx, rec)
	})
	if err != nil {
		t.Fatal(err)
	}

	records, err := repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != rec.ID || records[0].EventType != "order.created" {
		t.Fatalf("unexpected unpublished records: %+v", records)
	}

	if err := repo.MarkPublished(ctx, rec.ID, time.Now()); err != nil {
		t.Fatal(err)
	}
	records, err = repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("published record should not be returned again, got %+v", records)
	}
}

func TestApplyBoxEvent(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()
	now := time.Now()
	boxID := seedActiveBox(t, repo, 3, now)

	status, err := repo.ApplyBoxEvent(ctx, boxID, domain.BoxEventWithdraw, now)
	if err != nil {
		t.Fatal(err)
	}
	if status != domain.BoxCancelled {
		t.Fatalf("withdraw should cancel the box, got %s", status)
	}

	// Terminal boxes accept no further events.
	if _, err := repo.ApplyBoxEvent(ctx, boxID, domain.BoxEventActivate, now); !errors.Is(err, domain.ErrBoxNotAvailable) {
		t.Fatalf("expected ErrBoxNotAvailable on cancelled box, got %v", err)
	}
}
