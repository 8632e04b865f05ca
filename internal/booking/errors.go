package booking

import "errors"

// RuleError is a booking rule violation. Its message is meant for end users.
type RuleError struct {
	// Reason is a short machine-readable label used in metrics
	Reason  string
	Message string
}

func (e *RuleError) Error() string {
	return e.Message
}

func newRule(reason, message string) *RuleError {
	return &RuleError{Reason: reason, Message: message}
}

var (
	ErrTimesRequired    = newRule("times_required", "Start time and end time must be provided")
	ErrDateRequired     = newRule("date_required", "Reservation date is required")
	ErrEndBeforeStart   = newRule("end_before_start", "End time must be after start time")
	ErrTooShort         = newRule("too_short", "Minimum reservation duration is 1 hour")
	ErrTooLong          = newRule("too_long", "Maximum reservation duration is 8 hours")
	ErrUserLimitReached = newRule("user_limit", "Maximum reservation limit of 5 active reservations reached")
	ErrOverlap          = newRule("overlap", "Selected time slot overlaps with an existing reservation")
	ErrTooFarAhead      = newRule("too_far_ahead", "Reservations cannot be made more than 30 days in advance")
	ErrTooSoon          = newRule("too_soon", "Reservations must be made at least 1 hour in advance")
	ErrPastDate         = newRule("past_date", "Cannot book for past dates")

	ErrResourceRequired      = newRule("resource_required", "A resource must be selected")
	ErrResourceMissing       = newRule("resource_missing", "The selected resource does not exist")
	ErrUserRequired          = newRule("user_required", "A reservation must belong to a user")
	ErrReservationIDRequired = newRule("reservation_id_required", "Reservation id is required")
	ErrDuplicateReservation  = newRule("duplicate_reservation_id", "Reservation id already exists")

	ErrTitleRequired       = newRule("title_required", "Title is required")
	ErrFieldTooLong        = newRule("field_too_long", "Title, author and keywords are limited to 255 characters")
	ErrInvalidResourceType = newRule("invalid_resource_type", "Resource type must be one of BOOK, MEETING_ROOM, EQUIPMENT")
)

// IsRuleViolation reports whether err is, or wraps, a RuleError
func IsRuleViolation(err error) bool {
	var rule *RuleError
	return errors.As(err, &rule)
}

// RuleReason returns the reason label of a rule violation, or "" for other errors
func RuleReason(err error) string {
	var rule *RuleError
	if errors.As(err, &rule) {
		return rule.Reason
	}
	return ""
}
