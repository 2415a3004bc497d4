package fulfillment

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	mongoadapter "github.com/savebox/box-orders/internal/adapters/mongo"
	"github.com/savebox/box-orders/internal/adapters/postgres"
	redisadapter "github.com/savebox/box-orders/internal/adapters/redis"
	"github.com/savebox/box-orders/internal/domain"
	"github.com/savebox/box-orders/internal/observability"
)

const pickupCodeAttempts = 5

// Service converts an active reservation into an order and later completes
// the order against a pickup code. Both operations are single transactions:
// order creation and the box's reserved→sold flip either both commit or
// neither does.
type Service struct {
	repo   *postgres.Repository
	cache  *redisadapter.Cache
	audit  *mongoadapter.AuditLogger
	logger observability.Logger
	now    func() time.Time
}

func NewService(repo *postgres.Repository, cache *redisadapter.Cache, audit *mongoadapter.AuditLogger, logger observability.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// CreateOrderInput carries already-validated payment details: the payment
// gateway round-trip happens before this call, never inside the
// transaction.
type CreateOrderInput struct {
	BoxID           int64
	CustomerID      int64
	StoreID         int64
	PaymentType     domain.PaymentType
	FulfillmentType domain.FulfillmentType
	PaymentMethod   domain.PaymentMethod
	Amount          int64
	DeliveryAddress string
}

func (in CreateOrderInput) validate() error {
	if in.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if in.FulfillmentType == domain.FulfillmentDelivery && in.DeliveryAddress == "" {
		return domain.ErrDeliveryAddressRequired
	}
	return nil
}

// CreateOrder runs the atomic sale. Inside one transaction: lock the box
// row, verify it is reserved by this customer, unexpired, and from this
// store; insert the order with a collision-retried pickup code; flip the
// box to sold; queue the outbox event. Input validation happens before the
// transaction opens so a bad request never takes the row lock.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	order, err := s.createOrderTx(ctx, in)
	if errors.Is(err, domain.ErrSerializationFailure) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(25+rand.Intn(50)) * time.Millisecond):
		}
		order, err = s.createOrderTx(ctx, in)
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.ReleaseBoxLock(ctx, in.BoxID); err != nil {
			s.logger.Warn("failed to release box lock", err)
		}
	}
	s.logger.WithFields(map[string]interface{}{
		"order_id": order.ID,
		"box_id":   order.BoxID,
	}).Info("order created")
	if s.audit != nil {
		s.audit.LogOrderCreated(ctx, order)
	}
	return order, nil
}

func (s *Service) createOrderTx(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	now := s.now()
	order := &domain.Order{
		CustomerID:      in.CustomerID,
		BoxID:           in.BoxID,
		StoreID:         in.StoreID,
		Status:          domain.InitialOrderStatus(in.PaymentType),
		PaymentType:     in.PaymentType,
		FulfillmentType: in.FulfillmentType,
		PaymentMethod:   in.PaymentMethod,
		Amount:          in.Amount,
		DeliveryAddress: in.DeliveryAddress,
		OrderDate:       now,
	}

	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		box, err := s.repo.GetBoxForUpdate(ctx, tx, in.BoxID)
		if err != nil {
			return err
		}
		if box.Status != domain.BoxReserved || box.ReservedBy == nil || *box.ReservedBy != in.CustomerID {
			return domain.ErrNotReservedByCustomer
		}
		if box.IsReservationExpired(now) {
			return domain.ErrReservationExpired
		}
		if box.StoreID != in.StoreID {
			return domain.ErrStoreMismatch
		}

		if err := s.insertWithPickupCode(ctx, tx, order); err != nil {
			return err
		}
		if err := s.repo.MarkSold(ctx, tx, in.BoxID, in.CustomerID, now); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"order_id": order.ID,
			"box_id":   order.BoxID,
			"store_id": order.StoreID,
		})
		return s.repo.InsertOutbox(ctx, tx, postgres.OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     "order.created",
			Payload:       payload,
			DedupeKey:     uuid.New().String(),
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Each insert attempt runs in a savepoint: a unique violation aborts only
// the savepoint, not the surrounding transaction, so the next code can be
// tried without losing the row lock.
func (s *Service) insertWithPickupCode(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	for attempt := 0; attempt < pickupCodeAttempts; attempt++ {
		code, err := domain.NewPickupCode()
		if err != nil {
			return err
		}
		order.PickupCode = code

		sp, err := tx.Begin(ctx)
		if err != nil {
			return err
		}
		if err := s.repo.InsertOrder(ctx, sp, order); err != nil {
			sp.Rollback(ctx)
			if postgres.IsUniqueViolation(err) {
				observability.PickupCodeRetries.Inc()
				continue
			}
			return err
		}
		return sp.Commit(ctx)
	}
	return domain.ErrPickupCodeExhausted
}

// CompleteOrder is the employee-side scan. Retrying after a timeout is
// safe: the second call finds the order terminal and gets
// ErrAlreadyFinalized instead of double effects.
func (s *Service) CompleteOrder(ctx context.Context, orderID int64, pickupCode string, storeID int64) error {
	now := s.now()
	var completed *domain.Order
	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		order, err := s.repo.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.PickupCode != pickupCode {
			s.logger.WithFields(map[string]interface{}{
				"order_id": orderID,
				"store_id": storeID,
			}).Warn("invalid pickup code attempt")
			return domain.ErrInvalidPickupCode
		}
		if order.StoreID != storeID {
			return domain.ErrStoreMismatch
		}
		if _, ok := domain.OrderTransition(order.Status, domain.OrderEventComplete); !ok {
			return domain.ErrAlreadyFinalized
		}

		if err := s.repo.CompleteOrder(ctx, tx, orderID, now); err != nil {
			return err
		}
		// The box went sold at order creation; this re-set is an idempotent
		// no-op unless some path left it reserved.
		if err := s.repo.EnsureSold(ctx, tx, order.BoxID, now); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"order_id": orderID,
			"store_id": storeID,
		})
		if err := s.repo.InsertOutbox(ctx, tx, postgres.OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "order",
			AggregateID:   orderID,
			EventType:     "order.completed",
			Payload:       payload,
			DedupeKey:     uuid.New().String(),
		}); err != nil {
			return err
		}
		completed = order
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.WithField("order_id", orderID).Info("order completed")
	if s.audit != nil {
		s.audit.LogOrderCompleted(ctx, completed)
	}
	return nil
}

// FindOrderByPickupCode is the employee lookup before scanning. A code that
// exists but belongs to another store is a mismatch, not a not-found.
func (s *Service) FindOrderByPickupCode(ctx context.Context, pickupCode string, storeID int64) (*domain.Order, error) {
	order, err := s.repo.FindOrderByPickupCode(ctx, pickupCode)
	if err != nil {
		return nil, err
	}
	if order.StoreID != storeID {
		return nil, domain.ErrStoreMismatch
	}
	return order, nil
}

// GetOrder is the customer-side read.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}
