package models

import (
	"fmt"
	"strings"
	"time"
)

// ResourceType is the kind of bookable asset
type ResourceType string

const (
	ResourceTypeBook        ResourceType = "BOOK"
	ResourceTypeMeetingRoom ResourceType = "MEETING_ROOM"
	ResourceTypeEquipment   ResourceType = "EQUIPMENT"
)

// ResourceTypes lists every known resource type in display order
var ResourceTypes = []ResourceType{ResourceTypeBook, ResourceTypeMeetingRoom, ResourceTypeEquipment}

// Valid reports whether t is one of the known resource types
func (t ResourceType) Valid() bool {
	for _, known := range ResourceTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Label returns a human readable name, e.g. "MEETING ROOM"
func (t ResourceType) Label() string {
	return strings.ReplaceAll(string(t), "_", " ")
}

// ParseResourceType converts a string to a ResourceType, ignoring case
func ParseResourceType(s string) (ResourceType, error) {
	t := ResourceType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown resource type %q", s)
	}
	return t, nil
}

// Resource represents a bookable library asset
type Resource struct {
	ID           int64        `json:"id,omitempty"`
	Title        string       `json:"title"`
	Author       string       `json:"author,omitempty"`
	Keywords     string       `json:"keywords,omitempty"`
	ResourceType ResourceType `json:"resourceType"`
}

// UserRef references the owner of a reservation
type UserRef struct {
	ID    int64  `json:"id"`
	Login string `json:"login,omitempty"`
}

// ResourceRef references the reserved resource
type ResourceRef struct {
	ID    int64  `json:"id"`
	Title string `json:"title,omitempty"`
}

// Reservation represents a time-bounded claim by a user on a resource
type Reservation struct {
	ID              int64       `json:"id,omitempty"`
	ReservationDate time.Time   `json:"reservationDate"`
	StartTime       time.Time   `json:"startTime"`
	EndTime         time.Time   `json:"endTime"`
	ReservationID   string      `json:"reservationId"`
	User            UserRef     `json:"user"`
	Resource        ResourceRef `json:"resource"`
}

// Duration returns the reserved time span
func (r Reservation) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Overlaps reports whether the reservation intersects [start, end)
func (r Reservation) Overlaps(start, end time.Time) bool {
	return r.StartTime.Before(end) && r.EndTime.After(start)
}

// ActiveAt reports whether the reservation has not ended yet at the given instant
func (r Reservation) ActiveAt(now time.Time) bool {
	return r.EndTime.After(now)
}

// ResourceFilter holds optional search criteria for resources.
// Text fields match case-insensitive substrings, Type matches exactly.
type ResourceFilter struct {
	Title    string
	Author   string
	Keywords string
	Type     ResourceType
}

// Matches reports whether the resource satisfies every set criterion
func (f ResourceFilter) Matches(r Resource) bool {
	if f.Title != "" && !containsFold(r.Title, f.Title) {
		return false
	}
	if f.Author != "" && !containsFold(r.Author, f.Author) {
		return false
	}
	if f.Keywords != "" && !containsFold(r.Keywords, f.Keywords) {
		return false
	}
	if f.Type != "" && r.ResourceType != f.Type {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
