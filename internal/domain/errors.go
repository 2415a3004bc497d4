package domain

import "errors"

var (
	// Reservation denials.
	ErrBoxNotFound     = errors.New("box not found")
	ErrBoxNotAvailable = errors.New("box not available")
	ErrAlreadyReserved = errors.New("box already reserved")
	ErrInvalidTTL      = errors.New("invalid reservation ttl")

	// Order creation rejections.
	ErrNotReservedByCustomer   = errors.New("box not reserved by customer")
	ErrReservationExpired      = errors.New("reservation expired")
	ErrStoreMismatch           = errors.New("order does not belong to this store")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrDeliveryAddressRequired = errors.New("delivery address is required")
	ErrPickupCodeExhausted     = errors.New("could not generate unique pickup code")

	// Order completion rejections.
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidPickupCode = errors.New("invalid pickup code")
	ErrAlreadyFinalized  = errors.New("order already finalized")

	// Infrastructure.
	ErrSerializationFailure = errors.New("serialization failure")
)
