package booking

import (
	"slices"
	"strings"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusUnknown   Status = "unknown"
)

// CanonicalStatuses are the only values written to storage.
var CanonicalStatuses = []Status{StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled}

var statusSynonyms = map[string]Status{
	"scheduled": StatusScheduled,
	"schedule":  StatusScheduled,
	"booked":    StatusScheduled,
	"pending":   StatusScheduled,
	"reserved":  StatusScheduled,
	"new":       StatusScheduled,

	"confirmed": StatusConfirmed,
	"confirm":   StatusConfirmed,
	"accepted":  StatusConfirmed,

	"completed": StatusCompleted,
	"complete":  StatusCompleted,
	"done":      StatusCompleted,
	"finished":  StatusCompleted,

	"cancelled":            StatusCancelled,
	"canceled":             StatusCancelled,
	"cancel":               StatusCancelled,
	"cancellation":         StatusCancelled,
	"cancelled_by_user":    StatusCancelled,
	"cancelled_by_company": StatusCancelled,
}

// CanonicalStatus maps any historical spelling onto the closed status enum.
// Anything unrecognised becomes StatusUnknown and must be rejected by callers.
func CanonicalStatus(raw string) Status {
	if s, ok := statusSynonyms[normalizeWord(raw)]; ok {
		return s
	}
	return StatusUnknown
}

// Canonical is CanonicalStatus applied to a stored value.
func (s Status) Canonical() Status {
	return CanonicalStatus(string(s))
}

// Occupies reports whether a booking in this status reserves its interval.
func (s Status) Occupies() bool {
	c := s.Canonical()
	return c != StatusCancelled && c != StatusUnknown
}

func (s Status) String() string { return string(s) }

// Spellings lists every normalized stored value that canonicalizes to s.
func Spellings(s Status) []string {
	var out []string
	for word, st := range statusSynonyms {
		if st == s {
			out = append(out, word)
		}
	}
	slices.Sort(out)
	return out
}

func normalizeWord(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
