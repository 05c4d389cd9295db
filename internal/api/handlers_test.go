package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/staff-booking-engine/internal/booking"
	"github.com/hackgods/staff-booking-engine/internal/booking/memstore"
	"github.com/hackgods/staff-booking-engine/internal/config"
	"github.com/hackgods/staff-booking-engine/internal/lock"
	"github.com/hackgods/staff-booking-engine/internal/metrics"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type testServer struct {
	handler http.Handler
	store   *memstore.Store
	shopID  uuid.UUID
	staffID uuid.UUID
	svcID   uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.Defaults()
	require.NoError(t, cfg.Validate())

	store := memstore.New()
	ts := &testServer{store: store, shopID: uuid.New(), staffID: uuid.New(), svcID: uuid.New()}
	store.AddShop(booking.Shop{ID: ts.shopID, Name: "Downtown", Active: true})
	store.AddStaff(booking.Staff{ID: ts.staffID, ShopID: ts.shopID, Name: "Aki", Active: true})
	store.AddService(booking.ServiceDefinition{ID: ts.svcID, ShopID: ts.shopID, Name: "Cut", DurationMinutes: 30, BasePrice: 5000, Active: true})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "booking")
	svc := booking.NewService(store, lock.NewLocal(), cfg,
		booking.WithClock(fixedClock{time.Date(2026, 4, 20, 9, 0, 0, 0, time.UTC)}),
		booking.WithMetrics(m),
	)

	ts.handler = NewRouter(RouterConfig{
		Service:        svc,
		DB:             fakePinger{},
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Env:            "test",
		Version:        "dev",
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) createBody(start any) map[string]any {
	return map[string]any{
		"staff_id":      ts.staffID.String(),
		"service_id":    ts.svcID.String(),
		"shop_id":       ts.shopID.String(),
		"start":         start,
		"customer_name": "Jane Doe",
		"source":        "staff",
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestCreateAndFetchBooking(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/bookings", ts.createBody("2026-05-01T14:00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[BookingResponse](t, rec)
	assert.Equal(t, "scheduled", created.Status)
	assert.Equal(t, time.Date(2026, 5, 1, 14, 0, 0, 0, time.UTC), created.StartAt)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = ts.do(t, http.MethodGet, "/bookings/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decode[BookingResponse](t, rec).ID)

	rec = ts.do(t, http.MethodGet, "/bookings?staff_id="+ts.staffID.String()+"&date=2026-05-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListBookingsResponse](t, rec)
	assert.Len(t, list.Bookings, 1)
}

func TestCreateBookingAcceptsEpochMillis(t *testing.T) {
	ts := newTestServer(t)

	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	rec := ts.do(t, http.MethodPost, "/bookings", ts.createBody(start.UnixMilli()))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, start, decode[BookingResponse](t, rec).StartAt)
}

func TestCreateBookingErrors(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/bookings", ts.createBody("2026-05-01T14:00")).Code)

	tests := []struct {
		name     string
		mutate   func(b map[string]any)
		wantCode int
		wantErr  string
	}{
		{"overlap", func(b map[string]any) { b["start"] = "2026-05-01T14:15" }, http.StatusConflict, "slot_unavailable"},
		{"bad start", func(b map[string]any) { b["start"] = "soon" }, http.StatusBadRequest, "invalid_input"},
		{"bad staff id", func(b map[string]any) { b["staff_id"] = "nope" }, http.StatusBadRequest, "invalid_staff_id"},
		{"unknown staff", func(b map[string]any) { b["staff_id"] = uuid.NewString() }, http.StatusNotFound, "staff_not_found"},
		{"bad source", func(b map[string]any) { b["source"] = "fax" }, http.StatusBadRequest, "invalid_source"},
		{"customer too soon", func(b map[string]any) {
			b["source"] = "customer"
			b["start"] = "2026-04-20T15:00"
		}, http.StatusBadRequest, "too_soon"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := ts.createBody("2026-05-01T16:00")
			tc.mutate(body)
			rec := ts.do(t, http.MethodPost, "/bookings", body)
			assert.Equal(t, tc.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tc.wantErr, decode[ErrorResponse](t, rec).Error)
		})
	}

	rec := ts.do(t, http.MethodGet, "/bookings/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLifecycleEndpoints(t *testing.T) {
	ts := newTestServer(t)

	created := decode[BookingResponse](t, ts.do(t, http.MethodPost, "/bookings", ts.createBody("2026-05-01T14:00")))
	base := "/bookings/" + created.ID.String()

	rec := ts.do(t, http.MethodPost, base+"/status", StatusRequest{Status: "Accepted"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[StatusResponse](t, rec)
	assert.True(t, st.Changed)
	assert.Equal(t, "confirmed", st.Booking.Status)

	rec = ts.do(t, http.MethodPost, base+"/status", StatusRequest{Status: "archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/settle", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	settled := decode[SettleResponse](t, rec)
	assert.False(t, settled.AlreadySettled)
	assert.Equal(t, int64(500), settled.Settlement.PlatformFeeAmount)
	assert.Equal(t, int64(4500), settled.Settlement.ShopAmount)
	assert.Equal(t, "completed", settled.Booking.Status)

	rec = ts.do(t, http.MethodPost, base+"/settle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[SettleResponse](t, rec).AlreadySettled)

	rec = ts.do(t, http.MethodPost, base+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "cannot_cancel_completed", decode[ErrorResponse](t, rec).Error)
}

func TestCancelEndpointFreesSlot(t *testing.T) {
	ts := newTestServer(t)

	created := decode[BookingResponse](t, ts.do(t, http.MethodPost, "/bookings", ts.createBody("2026-05-01T14:00")))

	rec := ts.do(t, http.MethodPost, "/bookings/"+created.ID.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[StatusResponse](t, rec).Booking.OccupiesSlot)

	rec = ts.do(t, http.MethodPost, "/bookings/"+created.ID.String()+"/settle", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/bookings", ts.createBody("2026-05-01T14:00"))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestAvailabilityEndpoint(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/bookings", ts.createBody("2026-05-01T14:00")).Code)

	rec := ts.do(t, http.MethodGet, "/staff/"+ts.staffID.String()+"/availability?date=2026-05-01&service_id="+ts.svcID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[AvailabilityResponse](t, rec)
	assert.Equal(t, "UTC", resp.Timezone)

	got := make(map[string]bool)
	for _, s := range resp.Slots {
		got[s.Label] = s.Available
	}
	assert.False(t, got["14:00"])
	assert.True(t, got["14:30"])

	rec = ts.do(t, http.MethodGet, "/staff/"+ts.staffID.String()+"/availability", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/staff/"+ts.staffID.String()+"/availability?date=May-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/bookings", ts.createBody("2026-05-01T14:00"))
	ts.do(t, http.MethodPost, "/bookings", ts.createBody("2026-05-01T14:00"))

	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `booking_create_total{outcome="created"} 1`)
	assert.Contains(t, body, `booking_create_total{outcome="conflict"} 1`)
	assert.Contains(t, body, "booking_http_requests_total")
	assert.NotContains(t, body, "booking_booking_")
}

func TestHealth(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	serve := func(h *HealthHandler) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		return rec
	}

	rec := serve(NewHealthHandler(fakePinger{}, rdb, "test", "dev"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[ReadinessResponse](t, rec).Status)

	rec = serve(NewHealthHandler(fakePinger{err: errors.New("down")}, rdb, "test", "dev"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	mr.Close()
	rec = serve(NewHealthHandler(fakePinger{}, rdb, "test", "dev"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", decode[ReadinessResponse](t, rec).Status)

	live := httptest.NewRecorder()
	NewHealthHandler(nil, nil, "test", "dev").Liveness(live, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, live.Code)
}
