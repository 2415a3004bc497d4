package domain

import "time"

type OrderStatus string

const (
	OrderPending        OrderStatus = "pending"
	OrderPaid           OrderStatus = "paid"
	OrderReadyForPickup OrderStatus = "ready_for_pickup"
	OrderInDelivery     OrderStatus = "in_delivery"
	OrderCompleted      OrderStatus = "completed"
	OrderCancelled      OrderStatus = "cancelled"
	OrderRefunded       OrderStatus = "refunded"
)

type PaymentType string

const (
	PaymentTypeApp  PaymentType = "app"
	PaymentTypeCash PaymentType = "cash"
)

type FulfillmentType string

const (
	FulfillmentPickup   FulfillmentType = "pickup"
	FulfillmentDelivery FulfillmentType = "delivery"
)

type PaymentMethod string

const (
	PaymentMethodCard          PaymentMethod = "card"
	PaymentMethodDigitalWallet PaymentMethod = "digital_wallet"
	PaymentMethodCash          PaymentMethod = "cash"
	PaymentMethodApp           PaymentMethod = "app"
)

type CancellerType string

const (
	CancelledByCustomer CancellerType = "customer"
	CancelledByStore    CancellerType = "store"
)

type Order struct {
	ID         int64
	CustomerID int64
	BoxID      int64
	StoreID    int64

	Status          OrderStatus
	PaymentType     PaymentType
	FulfillmentType FulfillmentType
	PaymentMethod   PaymentMethod
	Amount          int64 // minor currency units
	DeliveryAddress string

	PickupCode string
	OrderDate  time.Time
	PickupedAt *time.Time

	CancelledBy  *CancellerType
	CancelledAt  *time.Time
	RefundAmount int64
}

type OrderEvent string

const (
	OrderEventPay      OrderEvent = "pay"
	OrderEventReady    OrderEvent = "ready"
	OrderEventDispatch OrderEvent = "dispatch"
	OrderEventComplete OrderEvent = "complete"
	OrderEventCancel   OrderEvent = "cancel"
	OrderEventRefund   OrderEvent = "refund"
)

// Completion is legal from any non-terminal status: a cash order is picked
// up straight from pending, an app order from paid.
var orderTransitions = map[OrderStatus]map[OrderEvent]OrderStatus{
	OrderPending: {
		OrderEventPay:      OrderPaid,
		OrderEventComplete: OrderCompleted,
		OrderEventCancel:   OrderCancelled,
		OrderEventRefund:   OrderRefunded,
	},
	OrderPaid: {
		OrderEventReady:    OrderReadyForPickup,
		OrderEventComplete: OrderCompleted,
		OrderEventCancel:   OrderCancelled,
		OrderEventRefund:   OrderRefunded,
	},
	OrderReadyForPickup: {
		OrderEventDispatch: OrderInDelivery,
		OrderEventComplete: OrderCompleted,
		OrderEventCancel:   OrderCancelled,
		OrderEventRefund:   OrderRefunded,
	},
	OrderInDelivery: {
		OrderEventComplete: OrderCompleted,
		OrderEventCancel:   OrderCancelled,
		OrderEventRefund:   OrderRefunded,
	},
}

func OrderTransition(from OrderStatus, event OrderEvent) (OrderStatus, bool) {
	to, ok := orderTransitions[from][event]
	return to, ok
}

func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled || s == OrderRefunded
}

// InitialOrderStatus is the status a fresh order is created in: cash orders
// stay pending until pickup, in-app payments are settled before the order
// call reaches us.
func InitialOrderStatus(pt PaymentType) OrderStatus {
	if pt == PaymentTypeApp {
		return OrderPaid
	}
	return OrderPending
}
