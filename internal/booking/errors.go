package booking

import "errors"

var (
	ErrShopNotFound       = errors.New("shop not found")
	ErrStaffNotFound      = errors.New("staff not found")
	ErrServiceNotFound    = errors.New("service not found")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrSettlementNotFound = errors.New("settlement not found")
	ErrOverrideNotFound   = errors.New("staff service override not found")

	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidStatus = errors.New("invalid status")
	ErrTooSoon       = errors.New("booking date is earlier than the channel allows")

	ErrSlotUnavailable       = errors.New("slot unavailable")
	ErrCannotCancelCompleted = errors.New("cannot cancel a completed booking")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrCannotSettleCancelled = errors.New("cannot settle a cancelled booking")

	// ErrSystemBusy is transient: the serialization lock was not acquired and
	// nothing was written. Callers should retry with backoff.
	ErrSystemBusy = errors.New("system busy, retry shortly")

	// ErrUniqueViolation is returned by repositories when a storage uniqueness
	// constraint rejects a write.
	ErrUniqueViolation = errors.New("unique constraint violation")
)
