package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
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

	"booking/internal/booking"
	"booking/internal/clock"
	"booking/internal/models"
	"booking/internal/storage/stubs"
)

const testKey = "test-key"

var testNow = time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)

type testServer struct {
	handler http.Handler
	svc     *booking.Service
	clock   *clock.Fixed
	room    models.Resource
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := stubs.NewMockDB()
	clk := clock.NewFixed(testNow)
	svc := booking.NewService(db, clk, nil, zap.NewNop())
	keys := map[string]models.UserRef{
		testKey:     {ID: 1, Login: "alice"},
		"other-key": {ID: 2, Login: "bob"},
	}
	srv := NewServer(svc, keys, zap.NewNop(), noop.NewMeterProvider().Meter("test"), tracenoop.NewTracerProvider().Tracer("test"))

	room, err := svc.CreateResource(context.Background(), models.Resource{Title: "Study Room 1", Keywords: "quiet", ResourceType: models.ResourceTypeMeetingRoom})
	require.NoError(t, err)

	return &testServer{handler: srv.Handler(), svc: svc, clock: clk, room: room}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return ts.doAs(t, testKey, method, path, body)
}

func (ts *testServer) doAs(t *testing.T, key, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts *testServer) reservationBody(days int, startHour, hours int) models.Reservation {
	start := clock.StartOfDay(testNow).AddDate(0, 0, days).Add(time.Duration(startHour) * time.Hour)
	return models.Reservation{
		ReservationDate: start,
		StartTime:       start,
		EndTime:         start.Add(time.Duration(hours) * time.Hour),
		ReservationID:   fmt.Sprintf("RES-%d-%d", days, startHour),
		Resource:        models.ResourceRef{ID: ts.room.ID},
	}
}

func TestHealth_NoAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.doAs(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.doAs(t, "", http.MethodGet, "/api/resources", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")

	rec = ts.doAs(t, "wrong", http.MethodGet, "/api/resources", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, keyUnauthorized, decode[errorResponse](t, rec).Key)
}

func TestRequestID_Propagated(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(headerRequestID, "abc-123")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(headerRequestID))
}

func TestResources_CRUD(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/resources", models.Resource{Title: "Laptop Cart", ResourceType: models.ResourceTypeEquipment})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.Resource](t, rec)
	assert.Equal(t, fmt.Sprintf("/api/resources/%d", created.ID), rec.Header().Get("Location"))

	rec = ts.do(t, http.MethodPost, "/api/resources", models.Resource{ID: 5, Title: "x", ResourceType: models.ResourceTypeBook})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, keyIDExists, decode[errorResponse](t, rec).Key)

	rec = ts.do(t, http.MethodPost, "/api/resources", models.Resource{Title: "Lamp", ResourceType: "FURNITURE"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, keyBusinessRule, decode[errorResponse](t, rec).Key)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/resources/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Laptop Cart", decode[models.Resource](t, rec).Title)

	created.Keywords = "laptops"
	rec = ts.do(t, http.MethodPut, fmt.Sprintf("/api/resources/%d", created.ID), created)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPut, fmt.Sprintf("/api/resources/%d", created.ID+1), created)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, keyIDInvalid, decode[errorResponse](t, rec).Key)

	rec = ts.do(t, http.MethodPatch, fmt.Sprintf("/api/resources/%d", created.ID), map[string]string{"author": "IT desk"})
	require.Equal(t, http.StatusOK, rec.Code)
	patched := decode[models.Resource](t, rec)
	assert.Equal(t, "IT desk", patched.Author)
	assert.Equal(t, "laptops", patched.Keywords)

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/resources/%d", created.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/resources/%d", created.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/resources/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, keyIDInvalid, decode[errorResponse](t, rec).Key)
}

func TestResources_ListAndSearch(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	for _, title := range []string{"Room B", "Room C"} {
		_, err := ts.svc.CreateResource(ctx, models.Resource{Title: title, ResourceType: models.ResourceTypeMeetingRoom})
		require.NoError(t, err)
	}
	_, err := ts.svc.CreateResource(ctx, models.Resource{Title: "Go book", Author: "Kernighan", ResourceType: models.ResourceTypeBook})
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/api/resources?size=2&sort=title,desc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4", rec.Header().Get("X-Total-Count"))
	page := decode[[]models.Resource](t, rec)
	require.Len(t, page, 2)
	assert.Equal(t, "Study Room 1", page[0].Title)

	rec = ts.do(t, http.MethodGet, "/api/resources?type=meeting_room", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("X-Total-Count"))

	rec = ts.do(t, http.MethodGet, "/api/resources?author=kernighan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Resource](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/api/resources?title=nothing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/resources?type=SPACESHIP", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/resources?sort=author", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/resources?page=2305843009213693952&size=4", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, keyBadRequest, decode[errorResponse](t, rec).Key)

	rec = ts.do(t, http.MethodGet, "/api/reservations?page=2305843009213693952", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReservations_Create(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/reservations", ts.reservationBody(1, 10, 2))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode[models.Reservation](t, rec)
	assert.NotZero(t, created.ID)
	assert.Equal(t, models.UserRef{ID: 1, Login: "alice"}, created.User)
	assert.Equal(t, "Study Room 1", created.Resource.Title)
	assert.Equal(t, fmt.Sprintf("/api/reservations/%d", created.ID), rec.Header().Get("Location"))

	rec = ts.do(t, http.MethodGet, "/api/reservations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Total-Count"))
}

func TestReservations_RuleViolations(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/reservations", ts.reservationBody(1, 10, 2))
	require.Equal(t, http.StatusCreated, rec.Code)

	clash := ts.reservationBody(1, 11, 2)
	rec = ts.doAs(t, "other-key", http.MethodPost, "/api/reservations", clash)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorResponse](t, rec)
	assert.Equal(t, keyBusinessRule, body.Key)
	assert.Equal(t, "Selected time slot overlaps with an existing reservation", body.Error)

	tooLong := ts.reservationBody(2, 8, 9)
	rec = ts.do(t, http.MethodPost, "/api/reservations", tooLong)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Maximum reservation duration is 8 hours", decode[errorResponse](t, rec).Error)

	pastDate := ts.reservationBody(4, 10, 1)
	pastDate.ReservationDate = pastDate.ReservationDate.AddDate(-30, 0, 0)
	rec = ts.do(t, http.MethodPost, "/api/reservations", pastDate)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Cannot book for past dates", decode[errorResponse](t, rec).Error)

	withID := ts.reservationBody(3, 10, 1)
	withID.ID = 99
	rec = ts.do(t, http.MethodPost, "/api/reservations", withID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, keyIDExists, decode[errorResponse](t, rec).Key)

	rec = ts.do(t, http.MethodPost, "/api/reservations", "not an object")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReservations_UpdatePatchDelete(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/reservations", ts.reservationBody(1, 10, 2))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[models.Reservation](t, rec)
	path := fmt.Sprintf("/api/reservations/%d", created.ID)

	created.EndTime = created.EndTime.Add(time.Hour)
	rec = ts.do(t, http.MethodPut, path, created)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, created.EndTime.Equal(decode[models.Reservation](t, rec).EndTime))

	created.ID = 0
	rec = ts.do(t, http.MethodPut, path, created)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, keyIDNull, decode[errorResponse](t, rec).Key)

	shortEnd := created.StartTime.Add(30 * time.Minute)
	rec = ts.do(t, http.MethodPatch, path, map[string]any{"endTime": shortEnd})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Minimum reservation duration is 1 hour", decode[errorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodPatch, path, map[string]any{"reservationId": "RES-renamed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RES-renamed", decode[models.Reservation](t, rec).ReservationID)

	rec = ts.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReservations_Queries(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/reservations", ts.reservationBody(1, 10, 2))
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/reservations", ts.reservationBody(2, 14, 1))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/reservations/resource/%d", ts.room.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	byResource := decode[[]models.Reservation](t, rec)
	require.Len(t, byResource, 2)
	assert.True(t, byResource[0].StartTime.Before(byResource[1].StartTime))

	rec = ts.do(t, http.MethodGet, "/api/reservations/user/1/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Reservation](t, rec), 2)

	rec = ts.do(t, http.MethodGet, "/api/reservations/user/2/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())

	day := clock.StartOfDay(testNow).AddDate(0, 0, 1)
	availability := func(startHour, endHour int) string {
		return fmt.Sprintf("/api/reservations/availability/%d?startTime=%s&endTime=%s", ts.room.ID,
			day.Add(time.Duration(startHour)*time.Hour).Format(time.RFC3339),
			day.Add(time.Duration(endHour)*time.Hour).Format(time.RFC3339))
	}

	rec = ts.do(t, http.MethodGet, availability(11, 13), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "false", rec.Body.String())

	rec = ts.do(t, http.MethodGet, availability(12, 13), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Body.String())

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/reservations/availability/%d?startTime=soon", ts.room.ID), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResourceCalendar(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/reservations", ts.reservationBody(1, 10, 2))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/resources/%d/calendar?date=2024-06-11", ts.room.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	week := decode[calendarResponse](t, rec)
	assert.Equal(t, "week", week.View)
	require.Len(t, week.Days, 7)
	assert.Equal(t, "2024-06-09", week.Days[0].Date)
	// Tuesday 10:00 slot
	assert.Len(t, week.Days[2].Slots[2].Events, 1)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/resources/%d/calendar?date=2024-06-11&view=day", ts.room.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	day := decode[calendarResponse](t, rec)
	require.Len(t, day.Days, 1)
	assert.Equal(t, "2024-06-11", day.Days[0].Date)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/resources/%d/calendar?view=month", ts.room.ID), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/resources/999/calendar", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
