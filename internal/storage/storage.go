package storage

import (
	"context"
	"errors"
	"time"

	"booking/internal/models"
)

var (
	// ErrNotFound is returned when a resource or reservation does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicateReservationID is returned when the caller-supplied reservation id is already taken
	ErrDuplicateReservationID = errors.New("reservation id already exists")

	// ErrOverlap is returned by backends that enforce non-overlapping reservations themselves
	ErrOverlap = errors.New("reservation overlaps an existing reservation")
)

// Storage defines the interface for data storage operations
type Storage interface {
	// Resource operations
	CreateResource(ctx context.Context, resource models.Resource) (models.Resource, error)
	UpdateResource(ctx context.Context, resource models.Resource) (models.Resource, error)
	GetResource(ctx context.Context, id int64) (models.Resource, error)
	DeleteResource(ctx context.Context, id int64) error

	// ListResources returns one page of resources matching the filter and the total match count
	ListResources(ctx context.Context, filter models.ResourceFilter, page models.PageRequest) ([]models.Resource, int64, error)

	// Reservation operations
	CreateReservation(ctx context.Context, reservation models.Reservation) (models.Reservation, error)
	UpdateReservation(ctx context.Context, reservation models.Reservation) (models.Reservation, error)
	GetReservation(ctx context.Context, id int64) (models.Reservation, error)
	DeleteReservation(ctx context.Context, id int64) error
	ListReservations(ctx context.Context, page models.PageRequest) ([]models.Reservation, int64, error)

	// ListReservationsByResource returns all reservations of a resource ordered by start time
	ListReservationsByResource(ctx context.Context, resourceID int64) ([]models.Reservation, error)

	// ListActiveReservationsByUser returns reservations of the user ending after now, ordered by start time
	ListActiveReservationsByUser(ctx context.Context, userID int64, now time.Time) ([]models.Reservation, error)

	// CountActiveReservationsByUser counts reservations of the user ending after now
	CountActiveReservationsByUser(ctx context.Context, userID int64, now time.Time) (int64, error)

	// FindOverlappingReservations returns reservations of the resource intersecting [start, end)
	FindOverlappingReservations(ctx context.Context, resourceID int64, start, end time.Time) ([]models.Reservation, error)

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}
