package reservation

import (
	"context"
	"testing"

	"github.com/savebox/box-orders/internal/domain"
	"github.com/stretchr/testify/assert"
)

// TTL validation fails before the fast-path lock or the database are
// consulted.
func TestReserveBox_RejectsBadTTL(t *testing.T) {
	svc := NewService(nil, nil, nil, domain.DefaultReservationPolicy(), nil)

	for _, minutes := range []int{-1, 16, 1440} {
		_, err := svc.ReserveBox(context.Background(), 42, 7, minutes)
		assert.ErrorIs(t, err, domain.ErrInvalidTTL, "ttl %d minutes", minutes)
	}
}
