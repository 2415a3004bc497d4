package domain

import "testing"

func TestOrderTransition(t *testing.T) {
	cases := []struct {
		from  OrderStatus
		event OrderEvent
		to    OrderStatus
		ok    bool
	}{
		{OrderPending, OrderEventPay, OrderPaid, true},
		{OrderPending, OrderEventComplete, OrderCompleted, true},
		{OrderPaid, OrderEventReady, OrderReadyForPickup, true},
		{OrderPaid, OrderEventComplete, OrderCompleted, true},
		{OrderReadyForPickup, OrderEventDispatch, OrderInDelivery, true},
		{OrderInDelivery, OrderEventComplete, OrderCompleted, true},
		{OrderPaid, OrderEventCancel, OrderCancelled, true},
		{OrderPaid, OrderEventRefund, OrderRefunded, true},
		{OrderPending, OrderEventReady, "", false},
		{OrderPending, OrderEventDispatch, "", false},
		{OrderCompleted, OrderEventComplete, "", false},
		{OrderCancelled, OrderEventPay, "", false},
		{OrderRefunded, OrderEventComplete, "", false},
	}
	for _, c := range cases {
		to, ok := OrderTransition(c.from, c.event)
		if ok != c.ok {
			t.Errorf("OrderTransition(%s, %s): ok = %v, want %v", c.from, c.event, ok, c.ok)
		}
		if ok && to != c.to {
			t.Errorf("OrderTransition(%s, %s) = %s, want %s", c.from, c.event, to, c.to)
		}
	}
}

func TestOrderTransition_CompleteFromEveryNonTerminal(t *testing.T) {
	for _, from := range []OrderStatus{OrderPending, OrderPaid, OrderReadyForPickup, OrderInDelivery} {
		to, ok := OrderTransition(from, OrderEventComplete)
		if !ok || to != OrderCompleted {
			t.Errorf("complete from %s: got (%s, %v), want (%s, true)", from, to, ok, OrderCompleted)
		}
	}
	for _, from := range []OrderStatus{OrderCompleted, OrderCancelled, OrderRefunded} {
		if _, ok := OrderTransition(from, OrderEventComplete); ok {
			t.Errorf("complete from terminal %s should be illegal", from)
		}
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	for _, s := range []OrderStatus{OrderCompleted, OrderCancelled, OrderRefunded} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []OrderStatus{OrderPending, OrderPaid, OrderReadyForPickup, OrderInDelivery} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestInitialOrderStatus(t *testing.T) {
	if got := InitialOrderStatus(PaymentTypeApp); got != OrderPaid {
		t.Errorf("app payment: got %s, want %s", got, OrderPaid)
	}
	if got := InitialOrderStatus(PaymentTypeCash); got != OrderPending {
		t.Errorf("cash payment: got %s, want %s", got, OrderPending)
	}
}
