// Package booking enforces the reservation rules on top of a storage backend.
//
// Every reservation write passes through checkRules, in this order:
// time constraints, the per-user limit (creates only), overlap with other
// reservations of the same resource, and the advance booking window. The
// first violation is returned as a *RuleError.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"booking/internal/clock"
	"booking/internal/models"
	"booking/internal/notify"
	"booking/internal/storage"
)

const (
	MaxActivePerUser = 5
	MaxAdvanceDays   = 30
	MinLeadTime      = time.Hour
	MinDuration      = time.Hour
	MaxDuration      = 8 * time.Hour

	// NotifyTimeout bounds a single reservation notification
	NotifyTimeout = 10 * time.Second

	maxTextLength = 255
)

// Service implements reservation and resource operations
type Service struct {
	store    storage.Storage
	clock    clock.Clock
	notifier notify.Notifier
	logger   *zap.Logger
	locks    *keyedLocks
}

// NewService creates a booking service. A nil notifier disables notifications.
func NewService(store storage.Storage, clk clock.Clock, notifier notify.Notifier, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		store:    store,
		clock:    clk,
		notifier: notifier,
		logger:   logger,
		locks:    newKeyedLocks(),
	}
}

// ReservationPatch carries the fields of a partial update; nil means unchanged
type ReservationPatch struct {
	ReservationDate *time.Time          `json:"reservationDate"`
	StartTime       *time.Time          `json:"startTime"`
	EndTime         *time.Time          `json:"endTime"`
	ReservationID   *string             `json:"reservationId"`
	User            *models.UserRef     `json:"user"`
	Resource        *models.ResourceRef `json:"resource"`
}

// ResourcePatch carries the fields of a partial resource update
type ResourcePatch struct {
	Title        *string              `json:"title"`
	Author       *string              `json:"author"`
	Keywords     *string              `json:"keywords"`
	ResourceType *models.ResourceType `json:"resourceType"`
}

func lockKeys(r models.Reservation) []string {
	return []string{
		fmt.Sprintf("resource:%d", r.Resource.ID),
		fmt.Sprintf("user:%d", r.User.ID),
	}
}

// CreateReservation checks every rule and stores the reservation. The
// notification is sent after the locks are released.
func (s *Service) CreateReservation(ctx context.Context, reservation models.Reservation) (models.Reservation, error) {
	reservation.ID = 0
	created, err := s.createLocked(ctx, reservation)
	if err != nil {
		return models.Reservation{}, err
	}

	s.logger.Info("Reservation created",
		zap.Int64("id", created.ID),
		zap.String("reservation_id", created.ReservationID),
		zap.Int64("resource_id", created.Resource.ID),
		zap.Int64("user_id", created.User.ID))

	notifyCtx, cancel := context.WithTimeout(ctx, NotifyTimeout)
	defer cancel()
	if err := s.notifier.ReservationCreated(notifyCtx, created); err != nil {
		s.logger.Warn("Reservation notification failed", zap.Int64("id", created.ID), zap.Error(err))
	}
	return created, nil
}

func (s *Service) createLocked(ctx context.Context, reservation models.Reservation) (models.Reservation, error) {
	unlock := s.locks.Lock(lockKeys(reservation)...)
	defer unlock()

	if err := s.checkReferences(ctx, reservation); err != nil {
		return models.Reservation{}, err
	}
	if err := s.checkRules(ctx, reservation, true); err != nil {
		s.logger.Info("Reservation rejected",
			zap.Int64("resource_id", reservation.Resource.ID),
			zap.Int64("user_id", reservation.User.ID),
			zap.String("reason", RuleReason(err)))
		return models.Reservation{}, err
	}

	created, err := s.store.CreateReservation(ctx, reservation)
	if err != nil {
		return models.Reservation{}, translate(err)
	}
	return created, nil
}

// UpdateReservation replaces an existing reservation after re-checking the rules
func (s *Service) UpdateReservation(ctx context.Context, reservation models.Reservation) (models.Reservation, error) {
	existing, err := s.store.GetReservation(ctx, reservation.ID)
	if err != nil {
		return models.Reservation{}, err
	}
	return s.update(ctx, existing, reservation)
}

// PartialUpdateReservation merges the patch into the stored reservation and
// re-checks the rules on the merged result
func (s *Service) PartialUpdateReservation(ctx context.Context, id int64, patch ReservationPatch) (models.Reservation, error) {
	existing, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return models.Reservation{}, err
	}

	merged := existing
	if patch.ReservationDate != nil {
		merged.ReservationDate = *patch.ReservationDate
	}
	if patch.StartTime != nil {
		merged.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		merged.EndTime = *patch.EndTime
	}
	if patch.ReservationID != nil {
		merged.ReservationID = *patch.ReservationID
	}
	if patch.User != nil {
		merged.User = *patch.User
	}
	if patch.Resource != nil {
		merged.Resource = *patch.Resource
	}
	return s.update(ctx, existing, merged)
}

func (s *Service) update(ctx context.Context, existing, reservation models.Reservation) (models.Reservation, error) {
	keys := append(lockKeys(existing), lockKeys(reservation)...)
	unlock := s.locks.Lock(keys...)
	defer unlock()

	if err := s.checkReferences(ctx, reservation); err != nil {
		return models.Reservation{}, err
	}
	if err := s.checkRules(ctx, reservation, false); err != nil {
		s.logger.Info("Reservation update rejected",
			zap.Int64("id", reservation.ID),
			zap.String("reason", RuleReason(err)))
		return models.Reservation{}, err
	}

	updated, err := s.store.UpdateReservation(ctx, reservation)
	if err != nil {
		return models.Reservation{}, translate(err)
	}
	s.logger.Info("Reservation updated", zap.Int64("id", updated.ID))
	return updated, nil
}

// GetReservation returns one reservation
func (s *Service) GetReservation(ctx context.Context, id int64) (models.Reservation, error) {
	return s.store.GetReservation(ctx, id)
}

// ListReservations returns a page of reservations and the total count
func (s *Service) ListReservations(ctx context.Context, page models.PageRequest) ([]models.Reservation, int64, error) {
	return s.store.ListReservations(ctx, page)
}

// DeleteReservation removes a reservation
func (s *Service) DeleteReservation(ctx context.Context, id int64) error {
	if err := s.store.DeleteReservation(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Reservation deleted", zap.Int64("id", id))
	return nil
}

// ReservationsByResource lists the reservations of one resource by start time
func (s *Service) ReservationsByResource(ctx context.Context, resourceID int64) ([]models.Reservation, error) {
	return s.store.ListReservationsByResource(ctx, resourceID)
}

// ActiveReservationsByUser lists the user's reservations that have not ended yet
func (s *Service) ActiveReservationsByUser(ctx context.Context, userID int64) ([]models.Reservation, error) {
	return s.store.ListActiveReservationsByUser(ctx, userID, s.clock.Now())
}

// IsResourceAvailable reports whether no reservation of the resource intersects [start, end)
func (s *Service) IsResourceAvailable(ctx context.Context, resourceID int64, start, end time.Time) (bool, error) {
	if start.IsZero() || end.IsZero() {
		return false, ErrTimesRequired
	}
	if !end.After(start) {
		return false, ErrEndBeforeStart
	}
	overlapping, err := s.store.FindOverlappingReservations(ctx, resourceID, start, end)
	if err != nil {
		return false, fmt.Errorf("failed to check availability: %w", err)
	}
	return len(overlapping) == 0, nil
}

// checkReferences verifies the fields every stored reservation needs. It
// runs under the resource lock so a concurrent DeleteResource cannot orphan
// the reservation.
func (s *Service) checkReferences(ctx context.Context, r models.Reservation) error {
	if r.ReservationID == "" {
		return ErrReservationIDRequired
	}
	if r.User.ID <= 0 {
		return ErrUserRequired
	}
	if r.Resource.ID <= 0 {
		return ErrResourceRequired
	}
	if _, err := s.store.GetResource(ctx, r.Resource.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrResourceMissing
		}
		return fmt.Errorf("failed to load resource: %w", err)
	}
	return nil
}

func (s *Service) checkRules(ctx context.Context, r models.Reservation, isNew bool) error {
	if err := checkTimes(r); err != nil {
		return err
	}

	now := s.clock.Now()

	if isNew {
		active, err := s.store.CountActiveReservationsByUser(ctx, r.User.ID, now)
		if err != nil {
			return fmt.Errorf("failed to count active reservations: %w", err)
		}
		if active >= MaxActivePerUser {
			return ErrUserLimitReached
		}
	}

	overlapping, err := s.store.FindOverlappingReservations(ctx, r.Resource.ID, r.StartTime, r.EndTime)
	if err != nil {
		return fmt.Errorf("failed to check overlapping reservations: %w", err)
	}
	for _, other := range overlapping {
		if isNew || other.ID != r.ID {
			return ErrOverlap
		}
	}

	return checkAdvanceWindow(r, now)
}

func checkTimes(r models.Reservation) error {
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return ErrTimesRequired
	}
	if r.ReservationDate.IsZero() {
		return ErrDateRequired
	}
	if !r.EndTime.After(r.StartTime) {
		return ErrEndBeforeStart
	}
	switch d := r.Duration(); {
	case d < MinDuration:
		return ErrTooShort
	case d > MaxDuration:
		return ErrTooLong
	}
	return nil
}

// checkAdvanceWindow compares calendar days in UTC for the date bounds and
// exact instants for the lead time. The upper bound applies to both the
// reservation date and the start time.
func checkAdvanceWindow(r models.Reservation, now time.Time) error {
	today := clock.StartOfDay(now.UTC())
	last := today.AddDate(0, 0, MaxAdvanceDays)

	if clock.StartOfDay(r.ReservationDate.UTC()).Before(today) {
		return ErrPastDate
	}
	for _, t := range []time.Time{r.ReservationDate, r.StartTime} {
		if clock.StartOfDay(t.UTC()).After(last) {
			return ErrTooFarAhead
		}
	}
	if r.StartTime.Sub(now) < MinLeadTime {
		return ErrTooSoon
	}
	return nil
}

// translate maps storage conflicts to rule violations
func translate(err error) error {
	switch {
	case errors.Is(err, storage.ErrDuplicateReservationID):
		return ErrDuplicateReservation
	case errors.Is(err, storage.ErrOverlap):
		return ErrOverlap
	}
	return err
}
