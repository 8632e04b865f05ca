package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"booking/internal/api"
	"booking/internal/booking"
	"booking/internal/clock"
	"booking/internal/models"
	"booking/internal/storage"
	"booking/internal/storage/stubs"
)

var testNow = time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)

// newTestAPI runs the real API on the in-memory store with the demo catalog
func newTestAPI(t *testing.T) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := stubs.NewMockDB()
	_, err := storage.SeedDemoData(context.Background(), db)
	require.NoError(t, err)

	svc := booking.NewService(db, clock.NewFixed(testNow), nil, zap.NewNop())
	srv := api.NewServer(svc, map[string]models.UserRef{"k": {ID: 7, Login: "alice"}}, zap.NewNop(), noop.NewMeterProvider().Meter("test"), tracenoop.NewTracerProvider().Tracer("test"))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return New(ts.URL, "k", WithHTTPClient(ts.Client()))
}

func tomorrowAt(hour int) time.Time {
	return clock.StartOfDay(testNow).AddDate(0, 0, 1).Add(time.Duration(hour) * time.Hour)
}

func TestResources_FetchAll(t *testing.T) {
	c := newTestAPI(t)
	ctx := context.Background()

	resources, err := c.Resources().FetchAll(ctx, models.PageRequest{Size: 4})
	require.NoError(t, err)
	assert.Len(t, resources, 4)

	state := c.Resources().State()
	assert.False(t, state.Loading)
	assert.Empty(t, state.ErrorMessage)
	assert.Equal(t, int64(len(storage.DemoResources)), state.TotalItems)
	assert.Len(t, state.Entities, 4)
}

func TestResources_Search(t *testing.T) {
	c := newTestAPI(t)

	rooms, err := c.SearchResources(context.Background(), models.ResourceFilter{Type: models.ResourceTypeMeetingRoom}, models.PageRequest{})
	require.NoError(t, err)
	assert.Len(t, rooms, 2)
	assert.Equal(t, int64(2), c.Resources().State().TotalItems)
}

func TestResources_FetchNotFound(t *testing.T) {
	c := newTestAPI(t)

	_, err := c.Resources().Fetch(context.Background(), 999)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	state := c.Resources().State()
	assert.False(t, state.Loading)
	assert.NotEmpty(t, state.ErrorMessage)
}

func TestReservations_CreateAndList(t *testing.T) {
	c := newTestAPI(t)
	ctx := context.Background()
	store := c.Reservations()

	created, err := store.Create(ctx, models.Reservation{
		ReservationDate: tomorrowAt(10),
		StartTime:       tomorrowAt(10),
		EndTime:         tomorrowAt(12),
		ReservationID:   "RES-1",
		Resource:        models.ResourceRef{ID: 3},
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, int64(7), created.User.ID)

	state := store.State()
	assert.True(t, state.UpdateSuccess)
	assert.False(t, state.Updating)
	assert.Equal(t, created.ID, state.Entity.ID)

	all, err := store.FetchAll(ctx, models.PageRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, int64(1), store.State().TotalItems)

	byResource, err := c.ReservationsByResource(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, byResource, 1)

	active, err := c.ActiveReservations(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestReservations_RuleViolation(t *testing.T) {
	c := newTestAPI(t)
	ctx := context.Background()
	store := c.Reservations()

	_, err := store.Create(ctx, models.Reservation{
		ReservationDate: tomorrowAt(10),
		StartTime:       tomorrowAt(10),
		EndTime:         tomorrowAt(10).Add(30 * time.Minute),
		ReservationID:   "RES-short",
		Resource:        models.ResourceRef{ID: 3},
	})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "businessrule", apiErr.Key)
	assert.Equal(t, "Minimum reservation duration is 1 hour", apiErr.Message)

	state := store.State()
	assert.False(t, state.UpdateSuccess)
	assert.False(t, state.Updating)
	assert.Contains(t, state.ErrorMessage, "Minimum reservation duration")
}

func TestReservations_UpdatePatchDelete(t *testing.T) {
	c := newTestAPI(t)
	ctx := context.Background()
	store := c.Reservations()

	created, err := store.Create(ctx, models.Reservation{
		ReservationDate: tomorrowAt(10),
		StartTime:       tomorrowAt(10),
		EndTime:         tomorrowAt(12),
		ReservationID:   "RES-2",
		Resource:        models.ResourceRef{ID: 3},
	})
	require.NoError(t, err)

	created.EndTime = tomorrowAt(13)
	updated, err := store.Update(ctx, created.ID, created)
	require.NoError(t, err)
	assert.True(t, tomorrowAt(13).Equal(updated.EndTime))

	patched, err := store.PartialUpdate(ctx, created.ID, map[string]any{"reservationId": "RES-2b"})
	require.NoError(t, err)
	assert.Equal(t, "RES-2b", patched.ReservationID)

	require.NoError(t, store.Delete(ctx, created.ID))
	assert.True(t, store.State().UpdateSuccess)
	assert.Zero(t, store.State().Entity.ID)

	store.Reset()
	assert.Equal(t, State[models.Reservation]{}, store.State())
}

func TestAvailabilityAndCalendar(t *testing.T) {
	c := newTestAPI(t)
	ctx := context.Background()

	_, err := c.Reservations().Create(ctx, models.Reservation{
		ReservationDate: tomorrowAt(10),
		StartTime:       tomorrowAt(10),
		EndTime:         tomorrowAt(12),
		ReservationID:   "RES-3",
		Resource:        models.ResourceRef{ID: 3},
	})
	require.NoError(t, err)

	available, err := c.Availability(ctx, 3, tomorrowAt(11), tomorrowAt(13))
	require.NoError(t, err)
	assert.False(t, available)

	available, err = c.Availability(ctx, 3, tomorrowAt(12), tomorrowAt(13))
	require.NoError(t, err)
	assert.True(t, available)

	view, err := c.Calendar(ctx, 3, tomorrowAt(0), "day")
	require.NoError(t, err)
	require.Len(t, view.Days, 1)
	assert.Len(t, view.Days[0].Slots[2].Events, 1)
}

func TestLoadingFlag(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("X-Total-Count", "0")
		w.Write([]byte("[]"))
	}))
	defer ts.Close()

	c := New(ts.URL, "", WithHTTPClient(ts.Client()))
	done := make(chan error)
	go func() {
		_, err := c.Resources().FetchAll(context.Background(), models.PageRequest{})
		done <- err
	}()

	assert.Eventually(t, func() bool { return c.Resources().State().Loading }, time.Second, 5*time.Millisecond)
	close(release)
	require.NoError(t, <-done)
	assert.False(t, c.Resources().State().Loading)
}

func TestDecodeError_PlainBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := New(ts.URL, "", WithHTTPClient(ts.Client()))
	_, err := c.Resources().Fetch(context.Background(), 1)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "Bad Gateway", apiErr.Message)
}
