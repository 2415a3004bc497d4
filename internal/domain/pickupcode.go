package domain

import "crypto/rand"

// Pickup codes are short enough to read over a counter. 0/O and 1/I are
// excluded to avoid misreads; 6 chars over a 32-rune alphabet still gives
// over a billion combinations, collisions are handled by regeneration
// against the unique constraint.
const (
	pickupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	PickupCodeLength   = 6
)

func NewPickupCode() (string, error) {
	buf := make([]byte, PickupCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = pickupCodeAlphabet[int(b)%len(pickupCodeAlphabet)]
	}
	return string(buf), nil
}
