package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/savebox/box-orders/internal/domain"
	"github.com/savebox/box-orders/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditLogger keeps an append-only trail of reservation and fulfillment
// events, separate from the transactional store. Writes are best-effort:
// an audit failure is logged but never fails the business operation.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID         uuid.UUID `bson:"_id"`
	Action     string    `bson:"action"`
	CustomerID int64     `bson:"customer_id"`
	Timestamp  time.Time `bson:"timestamp"`
	Data       bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, customerID int64, data map[string]interface{}) {
	log := AuditLog{
		ID:         uuid.New(),
		Action:     action,
		CustomerID: customerID,
		Timestamp:  time.Now(),
		Data:       bson.M(data),
	}
	if _, err := a.coll.InsertOne(ctx, log); err != nil {
		a.logger.Error("failed to insert audit log", err)
	}
}

func (a *AuditLogger) LogReservation(ctx context.Context, boxID, customerID int64, expiresAt time.Time) {
	a.LogEvent(ctx, "box.reserved", customerID, map[string]interface{}{
		"box_id":     boxID,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
}

func (a *AuditLogger) LogOrderCreated(ctx context.Context, order *domain.Order) {
	a.LogEvent(ctx, "order.created", order.CustomerID, map[string]interface{}{
		"order_id": order.ID,
		"box_id":   order.BoxID,
		"store_id": order.StoreID,
		"status":   string(order.Status),
		"amount":   order.Amount,
	})
}

func (a *AuditLogger) LogOrderCompleted(ctx context.Context, order *domain.Order) {
	a.LogEvent(ctx, "order.completed", order.CustomerID, map[string]interface{}{
		"order_id": order.ID,
		"box_id":   order.BoxID,
		"store_id": order.StoreID,
	})
}
