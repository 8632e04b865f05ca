// Package form drives a reservation form from raw input to a created
// reservation: validate, submit once, confirm, then navigate away.
package form

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"booking/internal/clock"
	"booking/internal/models"
	"booking/internal/validation"
)

const (
	DashboardPath            = "/library/dashboard"
	DefaultConfirmationDelay = 2 * time.Second
	GeneralError             = "Failed to create reservation. Please try again."
)

var (
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	ErrSubmitFailed       = errors.New("reservation submission failed")
)

// Phase is the position of a form in its submission cycle
type Phase int

const (
	Idle Phase = iota
	Validating
	Submitting
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Creator stores a reservation. *client.EntityStore[models.Reservation] is one.
type Creator interface {
	Create(ctx context.Context, reservation models.Reservation) (models.Reservation, error)
}

// Navigator moves the user to another page
type Navigator func(path string)

// Fields are the raw values entered by the user
type Fields struct {
	ResourceID int64
	Date       string
	StartTime  string
	EndTime    string
}

// Form holds the state of one reservation form
type Form struct {
	creator  Creator
	account  models.UserRef
	clock    clock.Clock
	loc      *time.Location
	navigate Navigator
	delay    time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	phase   Phase
	errors  validation.Errors
	created *models.Reservation
	timer   *time.Timer
	// gen identifies the pending navigation; Close bumps it
	gen uint64
}

// Option configures a Form
type Option func(*Form)

func WithClock(c clock.Clock) Option { return func(f *Form) { f.clock = c } }

// WithLocation sets the zone the entered date and times are read in
func WithLocation(loc *time.Location) Option { return func(f *Form) { f.loc = loc } }

func WithNavigator(n Navigator) Option { return func(f *Form) { f.navigate = n } }

func WithConfirmationDelay(d time.Duration) Option { return func(f *Form) { f.delay = d } }

func WithLogger(l *zap.Logger) Option { return func(f *Form) { f.logger = l } }

// New creates an idle form submitting as account
func New(creator Creator, account models.UserRef, opts ...Option) *Form {
	f := &Form{
		creator:  creator,
		account:  account,
		clock:    clock.System{},
		loc:      time.Local,
		navigate: func(string) {},
		delay:    DefaultConfirmationDelay,
		logger:   zap.NewNop(),
		errors:   validation.Errors{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Submit validates the fields and, when they are valid, creates the
// reservation. Invalid input is returned as validation.Errors.
func (f *Form) Submit(ctx context.Context, fields Fields) (models.Reservation, error) {
	f.mu.Lock()
	if f.phase == Validating || f.phase == Submitting || f.phase == Succeeded {
		f.mu.Unlock()
		return models.Reservation{}, ErrSubmissionInFlight
	}
	f.phase = Validating
	f.created = nil

	now := f.clock.Now().In(f.loc)
	errs := validation.Validate(validation.Input{
		ResourceID:      fields.ResourceID,
		ReservationDate: fields.Date,
		StartTime:       fields.StartTime,
		EndTime:         fields.EndTime,
	}, now)
	if !errs.Valid() {
		f.errors = errs
		f.phase = Idle
		f.mu.Unlock()
		return models.Reservation{}, errs
	}

	reservation, err := f.compose(fields, now)
	if err != nil {
		f.errors = validation.Errors{validation.FieldGeneral: GeneralError}
		f.phase = Failed
		f.mu.Unlock()
		return models.Reservation{}, fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}

	f.errors = validation.Errors{}
	f.phase = Submitting
	f.mu.Unlock()

	created, err := f.creator.Create(ctx, reservation)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err != nil {
		f.logger.Warn("Reservation submission failed", zap.String("reservation_id", reservation.ReservationID), zap.Error(err))
		f.errors = validation.Errors{validation.FieldGeneral: GeneralError}
		f.phase = Failed
		return models.Reservation{}, fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}

	f.logger.Info("Reservation submitted", zap.Int64("id", created.ID), zap.String("reservation_id", created.ReservationID))
	f.phase = Succeeded
	f.created = &created
	f.gen++
	gen := f.gen
	f.timer = time.AfterFunc(f.delay, func() { f.finish(gen) })
	return created, nil
}

// finish runs after the confirmation delay unless Close came first
func (f *Form) finish(gen uint64) {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return
	}
	f.phase = Idle
	f.timer = nil
	navigate := f.navigate
	f.mu.Unlock()

	navigate(DashboardPath)
}

func (f *Form) compose(fields Fields, now time.Time) (models.Reservation, error) {
	start, err := validation.Combine(fields.Date, fields.StartTime, f.loc)
	if err != nil {
		return models.Reservation{}, err
	}
	end, err := validation.Combine(fields.Date, fields.EndTime, f.loc)
	if err != nil {
		return models.Reservation{}, err
	}
	return models.Reservation{
		ReservationDate: start,
		StartTime:       start,
		EndTime:         end,
		ReservationID:   fmt.Sprintf("RES-%d", now.UnixMilli()),
		User:            f.account,
		Resource:        models.ResourceRef{ID: fields.ResourceID},
	}, nil
}

// Phase returns the current phase
func (f *Form) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

// Errors returns a copy of the current field errors
func (f *Form) Errors() validation.Errors {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(validation.Errors, len(f.errors))
	for k, v := range f.errors {
		out[k] = v
	}
	return out
}

// Created returns the reservation confirmed by the last successful submit
func (f *Form) Created() (models.Reservation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.created == nil {
		return models.Reservation{}, false
	}
	return *f.created, true
}

// ClearFieldError drops the error of one field, as when the user edits it
func (f *Form) ClearFieldError(field string) {
	f.mu.Lock()
	delete(f.errors, field)
	f.mu.Unlock()
}

// Close cancels a pending navigation and returns the form to Idle
func (f *Form) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelPending()
}

func (f *Form) cancelPending() {
	f.gen++
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	if f.phase == Succeeded {
		f.phase = Idle
	}
}
