package stubs

import (
	"context"
	"sort"
	"sync"
	"time"

	"booking/internal/models"
	"booking/internal/storage"
)

// MockDB is an in-memory implementation of the Storage interface for testing
// and for running without a database
type MockDB struct {
	mu           sync.RWMutex
	resources    map[int64]models.Resource
	reservations map[int64]models.Reservation
	nextResource int64
	nextReserv   int64
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		resources:    make(map[int64]models.Resource),
		reservations: make(map[int64]models.Reservation),
	}
}

// Initialize is a no-op; the mock starts empty
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// CreateResource stores a new resource and assigns its id
func (m *MockDB) CreateResource(ctx context.Context, resource models.Resource) (models.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextResource++
	resource.ID = m.nextResource
	m.resources[resource.ID] = resource
	return resource, nil
}

// UpdateResource replaces an existing resource
func (m *MockDB) UpdateResource(ctx context.Context, resource models.Resource) (models.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.resources[resource.ID]; !ok {
		return models.Resource{}, storage.ErrNotFound
	}
	m.resources[resource.ID] = resource
	return resource, nil
}

// GetResource returns a resource by id
func (m *MockDB) GetResource(ctx context.Context, id int64) (models.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	resource, ok := m.resources[id]
	if !ok {
		return models.Resource{}, storage.ErrNotFound
	}
	return resource, nil
}

// DeleteResource removes a resource
func (m *MockDB) DeleteResource(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.resources[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.resources, id)
	return nil
}

// ListResources returns a filtered, sorted page of resources
func (m *MockDB) ListResources(ctx context.Context, filter models.ResourceFilter, page models.PageRequest) ([]models.Resource, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []models.Resource
	for _, r := range m.resources {
		if filter.Matches(r) {
			matched = append(matched, r)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if page.SortDesc {
			a, b = b, a
		}
		switch page.SortField {
		case models.SortTitle:
			if a.Title != b.Title {
				return a.Title < b.Title
			}
		case models.SortResourceType:
			if a.ResourceType != b.ResourceType {
				return a.ResourceType < b.ResourceType
			}
		}
		return a.ID < b.ID
	})

	return paginate(matched, page), int64(len(matched)), nil
}

// CreateReservation stores a new reservation and assigns its id
func (m *MockDB) CreateReservation(ctx context.Context, reservation models.Reservation) (models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.reservations {
		if existing.ReservationID == reservation.ReservationID {
			return models.Reservation{}, storage.ErrDuplicateReservationID
		}
	}

	m.nextReserv++
	reservation.ID = m.nextReserv
	m.reservations[reservation.ID] = reservation
	return m.withTitle(reservation), nil
}

// UpdateReservation replaces an existing reservation
func (m *MockDB) UpdateReservation(ctx context.Context, reservation models.Reservation) (models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reservations[reservation.ID]; !ok {
		return models.Reservation{}, storage.ErrNotFound
	}
	for _, existing := range m.reservations {
		if existing.ID != reservation.ID && existing.ReservationID == reservation.ReservationID {
			return models.Reservation{}, storage.ErrDuplicateReservationID
		}
	}

	m.reservations[reservation.ID] = reservation
	return m.withTitle(reservation), nil
}

// GetReservation returns a reservation by id
func (m *MockDB) GetReservation(ctx context.Context, id int64) (models.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reservation, ok := m.reservations[id]
	if !ok {
		return models.Reservation{}, storage.ErrNotFound
	}
	return m.withTitle(reservation), nil
}

// DeleteReservation removes a reservation
func (m *MockDB) DeleteReservation(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reservations[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.reservations, id)
	return nil
}

// ListReservations returns a sorted page of all reservations
func (m *MockDB) ListReservations(ctx context.Context, page models.PageRequest) ([]models.Reservation, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.filterReservations(func(models.Reservation) bool { return true })
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if page.SortDesc {
			a, b = b, a
		}
		switch page.SortField {
		case models.SortStartTime:
			if !a.StartTime.Equal(b.StartTime) {
				return a.StartTime.Before(b.StartTime)
			}
		case models.SortReservationDate:
			if !a.ReservationDate.Equal(b.ReservationDate) {
				return a.ReservationDate.Before(b.ReservationDate)
			}
		}
		return a.ID < b.ID
	})

	return paginate(all, page), int64(len(all)), nil
}

// ListReservationsByResource returns reservations of a resource ordered by start time
func (m *MockDB) ListReservationsByResource(ctx context.Context, resourceID int64) ([]models.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := m.filterReservations(func(r models.Reservation) bool {
		return r.Resource.ID == resourceID
	})
	sortByStart(result)
	return result, nil
}

// ListActiveReservationsByUser returns the user's reservations ending after now
func (m *MockDB) ListActiveReservationsByUser(ctx context.Context, userID int64, now time.Time) ([]models.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := m.filterReservations(func(r models.Reservation) bool {
		return r.User.ID == userID && r.ActiveAt(now)
	})
	sortByStart(result)
	return result, nil
}

// CountActiveReservationsByUser counts the user's reservations ending after now
func (m *MockDB) CountActiveReservationsByUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	active, err := m.ListActiveReservationsByUser(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	return int64(len(active)), nil
}

// FindOverlappingReservations returns reservations of the resource intersecting [start, end)
func (m *MockDB) FindOverlappingReservations(ctx context.Context, resourceID int64, start, end time.Time) ([]models.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := m.filterReservations(func(r models.Reservation) bool {
		return r.Resource.ID == resourceID && r.Overlaps(start, end)
	})
	sortByStart(result)
	return result, nil
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}

// filterReservations must be called with the lock held
func (m *MockDB) filterReservations(keep func(models.Reservation) bool) []models.Reservation {
	var result []models.Reservation
	for _, r := range m.reservations {
		if keep(r) {
			result = append(result, m.withTitle(r))
		}
	}
	return result
}

// withTitle must be called with the lock held
func (m *MockDB) withTitle(r models.Reservation) models.Reservation {
	if resource, ok := m.resources[r.Resource.ID]; ok {
		r.Resource.Title = resource.Title
	}
	return r
}

func sortByStart(reservations []models.Reservation) {
	sort.Slice(reservations, func(i, j int) bool {
		if !reservations[i].StartTime.Equal(reservations[j].StartTime) {
			return reservations[i].StartTime.Before(reservations[j].StartTime)
		}
		return reservations[i].ID < reservations[j].ID
	})
}

func paginate[T any](items []T, page models.PageRequest) []T {
	page = page.Normalize()
	start := page.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + page.Size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
