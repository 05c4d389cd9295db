package booking

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListBookingsQueryStatusMatchesLegacySpellings(t *testing.T) {
	staffID := uuid.New()
	status := StatusScheduled

	query, args, err := listBookingsQuery(ListFilter{StaffID: &staffID, Status: &status, Limit: 20})
	require.NoError(t, err)

	assert.Contains(t, query, "staff_id = $1")
	assert.Contains(t, query, statusWordExpr+" IN ($2,$3,$4,$5,$6,$7)")
	assert.Contains(t, query, "ORDER BY start_at ASC, id ASC")

	require.Len(t, args, 7)
	assert.Equal(t, staffID, args[0])
	assert.Contains(t, args, "booked")
	assert.Contains(t, args, "scheduled")
}

func TestListBookingsQueryWithoutFilters(t *testing.T) {
	query, args, err := listBookingsQuery(ListFilter{})
	require.NoError(t, err)
	assert.NotContains(t, query, "WHERE")
	assert.Empty(t, args)
}
