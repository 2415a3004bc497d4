package domain

import "time"

// ReservationPolicy caps how long a customer may hold a box before the
// reservation lapses. The ceiling is a business constant, not an invariant:
// deployments may lower it via config but the default is 15 minutes.
type ReservationPolicy struct {
	DefaultTTL time.Duration
	MaxTTL     time.Duration
}

func DefaultReservationPolicy() ReservationPolicy {
	return ReservationPolicy{
		DefaultTTL: 5 * time.Minute,
		MaxTTL:     15 * time.Minute,
	}
}

// ResolveTTL validates the requested reservation length in minutes.
// Zero means "use the default"; anything negative or above the ceiling is
// rejected before any transaction opens.
func (p ReservationPolicy) ResolveTTL(minutes int) (time.Duration, error) {
	if minutes == 0 {
		return p.DefaultTTL, nil
	}
	if minutes < 0 {
		return 0, ErrInvalidTTL
	}
	ttl := time.Duration(minutes) * time.Minute
	if ttl > p.MaxTTL {
		return 0, ErrInvalidTTL
	}
	return ttl, nil
}
