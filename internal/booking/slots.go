package booking

import "time"

// ResolveDuration prefers a staff override over the service default.
func ResolveDuration(svc *ServiceDefinition, ov *StaffServiceOverride) int {
	if ov != nil && ov.DurationMinutes != nil && *ov.DurationMinutes > 0 {
		return *ov.DurationMinutes
	}
	return svc.DurationMinutes
}

// ResolvePrice prefers a staff override over the service base price.
func ResolvePrice(svc *ServiceDefinition, ov *StaffServiceOverride) int64 {
	if ov != nil && ov.Price != nil {
		return *ov.Price
	}
	return svc.BasePrice
}

// BlockCount is how many grid blocks a duration covers, rounded up, at least one.
// The grid is only used to enumerate slots; conflicts are checked on exact minutes.
func BlockCount(durationMinutes, blockMinutes int) int {
	if blockMinutes <= 0 || durationMinutes <= 0 {
		return 1
	}
	return max((durationMinutes+blockMinutes-1)/blockMinutes, 1)
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
