// Package validation checks proposed reservation form fields before they are
// submitted. It has no side effects; callers pass the current time.
package validation

import (
	"fmt"
	"time"

	"booking/internal/clock"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	MaxAdvanceDays = 30
	MinDuration    = time.Hour
	MaxDuration    = 8 * time.Hour
)

// Field names used as keys in Errors
const (
	FieldResourceID      = "resourceId"
	FieldReservationDate = "reservationDate"
	FieldStartTime       = "startTime"
	FieldEndTime         = "endTime"
	FieldGeneral         = "general"
)

// Input holds the raw form values. Date and times are wall-clock values in the
// location of the "now" passed to Validate.
type Input struct {
	ResourceID      int64
	ReservationDate string
	StartTime       string
	EndTime         string
}

// Errors maps a field name to a human readable message
type Errors map[string]string

// Valid reports whether no field has an error
func (e Errors) Valid() bool {
	return len(e) == 0
}

// Has reports whether the field has an error
func (e Errors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

func (e Errors) Error() string {
	return fmt.Sprintf("%d invalid field(s)", len(e))
}

// Validate checks every rule independently and returns all failures
func Validate(in Input, now time.Time) Errors {
	errs := Errors{}

	if in.ResourceID <= 0 {
		errs[FieldResourceID] = "Please select a resource"
	}

	validateDate(errs, in.ReservationDate, now)

	start, startOK := parseTime(errs, FieldStartTime, in.StartTime, "start time")
	end, endOK := parseTime(errs, FieldEndTime, in.EndTime, "end time")

	if startOK && endOK {
		switch d := end.Sub(start); {
		case d <= 0:
			errs[FieldEndTime] = "End time must be after start time"
		case d < MinDuration:
			errs[FieldEndTime] = "Minimum reservation duration is 1 hour"
		case d > MaxDuration:
			errs[FieldEndTime] = "Maximum reservation duration is 8 hours"
		}
	}

	return errs
}

func validateDate(errs Errors, value string, now time.Time) {
	if value == "" {
		errs[FieldReservationDate] = "Please select a date"
		return
	}

	date, err := time.ParseInLocation(DateLayout, value, now.Location())
	if err != nil {
		errs[FieldReservationDate] = "Please enter a valid date"
		return
	}

	today := clock.StartOfDay(now)
	switch {
	case date.Before(today):
		errs[FieldReservationDate] = "Cannot book for past dates"
	case date.After(today.AddDate(0, 0, MaxAdvanceDays)):
		errs[FieldReservationDate] = "Cannot book more than 30 days in advance"
	}
}

func parseTime(errs Errors, field, value, label string) (time.Time, bool) {
	if value == "" {
		errs[field] = "Please select " + label
		return time.Time{}, false
	}
	t, err := time.Parse(TimeLayout, value)
	if err != nil {
		errs[field] = "Please enter a valid " + label
		return time.Time{}, false
	}
	return t, true
}

// Combine joins a form date and wall-clock time into an instant in loc
func Combine(date, clockTime string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clockTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s %s: %w", date, clockTime, err)
	}
	return t, nil
}

// TimeOptions returns the selectable times from 08:00 to 20:30 in 30 minute steps
func TimeOptions() []string {
	var options []string
	for hour := 8; hour <= 20; hour++ {
		for minute := 0; minute < 60; minute += 30 {
			options = append(options, fmt.Sprintf("%02d:%02d", hour, minute))
		}
	}
	return options
}
