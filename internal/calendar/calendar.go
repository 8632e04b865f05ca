// Package calendar lays reservations out on an hourly availability grid.
package calendar

import (
	"fmt"
	"time"

	"booking/internal/clock"
	"booking/internal/models"
)

const (
	FirstSlotHour = 8
	LastSlotHour  = 20
)

// Event is a reservation as shown on the calendar
type Event struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	ResourceID    int64     `json:"resourceId"`
	ResourceTitle string    `json:"resourceTitle"`
	User          string    `json:"user"`
}

// Slot holds the events starting within one hour
type Slot struct {
	Time   string  `json:"time"`
	Events []Event `json:"events"`
}

// DayView is one calendar column
type DayView struct {
	Date    string `json:"date"`
	Weekday string `json:"weekday"`
	Slots   []Slot `json:"slots"`
}

// WeekDays returns the seven days of the Sunday-started week containing date
func WeekDays(date time.Time) []time.Time {
	start := clock.StartOfDay(date).AddDate(0, 0, -int(date.Weekday()))
	days := make([]time.Time, 7)
	for i := range days {
		days[i] = start.AddDate(0, 0, i)
	}
	return days
}

// TimeSlots returns the slot labels, "08:00" through "20:00"
func TimeSlots() []string {
	slots := make([]string, 0, LastSlotHour-FirstSlotHour+1)
	for hour := FirstSlotHour; hour <= LastSlotHour; hour++ {
		slots = append(slots, fmt.Sprintf("%02d:00", hour))
	}
	return slots
}

// EventsForDate returns events whose reservation date falls on the calendar
// day of date, in date's location. A zero resourceID keeps every resource.
func EventsForDate(reservations []models.Reservation, date time.Time, resourceID int64) []Event {
	loc := date.Location()
	y, m, d := date.Date()

	var events []Event
	for _, r := range reservations {
		if r.ReservationDate.IsZero() {
			continue
		}
		ry, rm, rd := r.ReservationDate.In(loc).Date()
		if ry != y || rm != m || rd != d {
			continue
		}
		if resourceID != 0 && r.Resource.ID != resourceID {
			continue
		}
		events = append(events, toEvent(r, loc))
	}
	return events
}

func toEvent(r models.Reservation, loc *time.Location) Event {
	title := r.Resource.Title
	if title == "" {
		title = "Unknown Resource"
	}
	user := r.User.Login
	if user == "" {
		user = "Unknown User"
	}
	return Event{
		ID:            r.ID,
		Title:         title,
		Start:         r.StartTime.In(loc),
		End:           r.EndTime.In(loc),
		ResourceID:    r.Resource.ID,
		ResourceTitle: title,
		User:          user,
	}
}

// Day buckets the events of one date by their start hour. Events starting
// outside the slot range are left out.
func Day(reservations []models.Reservation, date time.Time, resourceID int64) DayView {
	events := EventsForDate(reservations, date, resourceID)

	view := DayView{
		Date:    date.Format("2006-01-02"),
		Weekday: date.Weekday().String()[:3],
	}
	for i, label := range TimeSlots() {
		hour := FirstSlotHour + i
		slot := Slot{Time: label, Events: []Event{}}
		for _, e := range events {
			if e.Start.Hour() == hour {
				slot.Events = append(slot.Events, e)
			}
		}
		view.Slots = append(view.Slots, slot)
	}
	return view
}

// Week returns the seven day views of the week containing date
func Week(reservations []models.Reservation, date time.Time, resourceID int64) []DayView {
	days := WeekDays(date)
	views := make([]DayView, len(days))
	for i, d := range days {
		views[i] = Day(reservations, d, resourceID)
	}
	return views
}
