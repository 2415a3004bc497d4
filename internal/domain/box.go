package domain

import "time"

type BoxStatus string

const (
	BoxDraft     BoxStatus = "draft"
	BoxActive    BoxStatus = "active"
	BoxReserved  BoxStatus = "reserved"
	BoxSold      BoxStatus = "sold"
	BoxExpired   BoxStatus = "expired"
	BoxCancelled BoxStatus = "cancelled"
)

// SurpriseBox is one perishable offer, purchasable by at most one customer.
// Store name/address/city are denormalized at creation time for the read
// path and are never live-synced afterwards.
type SurpriseBox struct {
	ID         int64
	StoreID    int64
	CategoryID int64

	BusinessName string
	StoreAddress string
	StoreCity    string

	Title           string
	Description     string
	OriginalPrice   int64 // minor currency units
	DiscountedPrice int64
	ImageURL        string

	PickupStart time.Time
	PickupEnd   time.Time
	SaleStart   time.Time
	SaleEnd     time.Time

	Status               BoxStatus
	ReservedBy           *int64
	ReservedAt           *time.Time
	ReservationExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

type BoxEvent string

const (
	BoxEventActivate BoxEvent = "activate"
	BoxEventReserve  BoxEvent = "reserve"
	BoxEventRelease  BoxEvent = "release"
	BoxEventSell     BoxEvent = "sell"
	BoxEventWithdraw BoxEvent = "withdraw"
	BoxEventLapse    BoxEvent = "lapse"
)

var boxTransitions = map[BoxStatus]map[BoxEvent]BoxStatus{
	BoxDraft: {
		BoxEventActivate: BoxActive,
		BoxEventWithdraw: BoxCancelled,
	},
	BoxActive: {
		BoxEventReserve:  BoxReserved,
		BoxEventWithdraw: BoxCancelled,
		BoxEventLapse:    BoxExpired,
	},
	BoxReserved: {
		BoxEventRelease:  BoxActive,
		BoxEventSell:     BoxSold,
		BoxEventWithdraw: BoxCancelled,
		BoxEventLapse:    BoxExpired,
	},
}

// BoxTransition returns the status a box moves to for the given event, or
// false when the transition is illegal. Terminal statuses have no outgoing
// transitions.
func BoxTransition(from BoxStatus, event BoxEvent) (BoxStatus, bool) {
	to, ok := boxTransitions[from][event]
	return to, ok
}

func (s BoxStatus) Terminal() bool {
	return s == BoxSold || s == BoxExpired || s == BoxCancelled
}

// IsReservationExpired reports whether the box holds a reservation whose
// TTL has lapsed at the given instant.
func (b *SurpriseBox) IsReservationExpired(now time.Time) bool {
	return b.Status == BoxReserved &&
		b.ReservationExpiresAt != nil &&
		b.ReservationExpiresAt.Before(now)
}

// SaleWindowOpen reports whether the sale window covers the given instant.
func (b *SurpriseBox) SaleWindowOpen(now time.Time) bool {
	return !now.Before(b.SaleStart) && now.Before(b.SaleEnd)
}
