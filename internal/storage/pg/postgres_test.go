package pg

import (
	"context"
	"testing"
	"time"

	"booking/internal/models"
	"booking/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	postgresTC "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// setupTestDB starts a disposable PostgreSQL and applies the embedded migrations
func setupTestDB(t *testing.T) (*PostgresDB, func()) {
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}
	ctx := context.Background()

	container, err := postgresTC.Run(ctx,
		"postgres:16-alpine",
		postgresTC.WithDatabase("booking"),
		postgresTC.WithUsername("booking"),
		postgresTC.WithPassword("booking"),
		postgresTC.BasicWaitStrategies(),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := NewPostgresDB(ctx, dsn)
	require.NoError(t, err, "Failed to connect to PostgreSQL")
	require.NoError(t, db.Initialize(ctx), "Failed to run migrations")

	cleanup := func() {
		db.Close()
		container.Terminate(ctx)
	}
	return db, cleanup
}

func TestPostgresDB_ResourceLifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	created, err := db.CreateResource(ctx, models.Resource{
		Title:        "Laptop Cart",
		Keywords:     "laptops",
		ResourceType: models.ResourceTypeEquipment,
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	created.Keywords = "laptops, charging"
	_, err = db.UpdateResource(ctx, created)
	require.NoError(t, err)

	got, err := db.GetResource(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "laptops, charging", got.Keywords)

	_, err = db.UpdateResource(ctx, models.Resource{ID: 999, Title: "x", ResourceType: models.ResourceTypeBook})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, db.DeleteResource(ctx, created.ID))
	_, err = db.GetResource(ctx, created.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPostgresDB_ListResources(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	_, err := storage.SeedDemoData(ctx, db)
	require.NoError(t, err)

	// a second seed is a no-op
	n, err := storage.SeedDemoData(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, n)

	books, total, err := db.ListResources(ctx, models.ResourceFilter{Type: models.ResourceTypeBook}, models.PageRequest{SortField: models.SortTitle, SortDesc: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, books, 2)
	assert.Equal(t, "The Go Programming Language", books[0].Title)

	byAuthor, _, err := db.ListResources(ctx, models.ResourceFilter{Author: "kleppmann"}, models.PageRequest{})
	require.NoError(t, err)
	require.Len(t, byAuthor, 1)
	assert.Equal(t, "Designing Data-Intensive Applications", byAuthor[0].Title)

	// wildcards in the search term are matched literally
	none, total, err := db.ListResources(ctx, models.ResourceFilter{Title: "%"}, models.PageRequest{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, none)
}

func TestPostgresDB_Reservations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	room, err := db.CreateResource(ctx, models.Resource{Title: "Room A", ResourceType: models.ResourceTypeMeetingRoom})
	require.NoError(t, err)

	base := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)
	reservation := models.Reservation{
		ReservationDate: base,
		StartTime:       base,
		EndTime:         base.Add(2 * time.Hour),
		ReservationID:   "RES-1",
		User:            models.UserRef{ID: 7, Login: "alice"},
		Resource:        models.ResourceRef{ID: room.ID},
	}

	created, err := db.CreateReservation(ctx, reservation)
	require.NoError(t, err)
	assert.Equal(t, "Room A", created.Resource.Title)
	assert.True(t, base.Equal(created.StartTime))

	t.Run("duplicate reservation id", func(t *testing.T) {
		dup := reservation
		dup.StartTime = base.Add(3 * time.Hour)
		dup.EndTime = base.Add(4 * time.Hour)
		_, err := db.CreateReservation(ctx, dup)
		assert.ErrorIs(t, err, storage.ErrDuplicateReservationID)
	})

	t.Run("exclusion constraint rejects overlap", func(t *testing.T) {
		clash := reservation
		clash.ReservationID = "RES-2"
		clash.StartTime = base.Add(time.Hour)
		clash.EndTime = base.Add(3 * time.Hour)
		_, err := db.CreateReservation(ctx, clash)
		assert.ErrorIs(t, err, storage.ErrOverlap)
	})

	t.Run("adjacent slot is accepted", func(t *testing.T) {
		next := reservation
		next.ReservationID = "RES-3"
		next.StartTime = base.Add(2 * time.Hour)
		next.EndTime = base.Add(3 * time.Hour)
		_, err := db.CreateReservation(ctx, next)
		require.NoError(t, err)
	})

	t.Run("unknown resource", func(t *testing.T) {
		orphan := reservation
		orphan.ReservationID = "RES-4"
		orphan.Resource.ID = 999
		_, err := db.CreateReservation(ctx, orphan)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	overlapping, err := db.FindOverlappingReservations(ctx, room.ID, base.Add(90*time.Minute), base.Add(150*time.Minute))
	require.NoError(t, err)
	assert.Len(t, overlapping, 2)

	active, err := db.ListActiveReservationsByUser(ctx, 7, base.Add(150*time.Minute))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "RES-3", active[0].ReservationID)

	count, err := db.CountActiveReservationsByUser(ctx, 7, base)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	page, total, err := db.ListReservations(ctx, models.PageRequest{SortField: models.SortStartTime, SortDesc: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, page, 2)
	assert.Equal(t, "RES-3", page[0].ReservationID)

	// deleting the resource cascades to its reservations
	require.NoError(t, db.DeleteResource(ctx, room.ID))
	byResource, err := db.ListReservationsByResource(ctx, room.ID)
	require.NoError(t, err)
	assert.Empty(t, byResource)
}
