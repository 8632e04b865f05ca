package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	// MaxPage keeps Page*Size within int32 on every platform
	MaxPage = math.MaxInt32 / MaxPageSize
)

// PageRequest describes which slice of a collection to return
type PageRequest struct {
	Page int
	Size int
	// SortField is empty for the default (id ascending)
	SortField string
	SortDesc  bool
}

// Offset returns the number of items to skip
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// Normalize fills defaults and clamps out-of-range values
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// SortParam renders the sort in "field,asc" form, or "" when unset
func (p PageRequest) SortParam() string {
	if p.SortField == "" {
		return ""
	}
	dir := "asc"
	if p.SortDesc {
		dir = "desc"
	}
	return p.SortField + "," + dir
}

// ParsePageRequest builds a PageRequest from raw query values.
// allowedSort lists the sortable fields; an unknown field is an error.
func ParsePageRequest(page, size, sort string, allowedSort ...string) (PageRequest, error) {
	var req PageRequest
	var err error

	if page != "" {
		if req.Page, err = strconv.Atoi(page); err != nil {
			return req, fmt.Errorf("invalid page: %w", err)
		}
		if req.Page > MaxPage {
			return req, fmt.Errorf("invalid page: must not exceed %d", MaxPage)
		}
	}
	if size != "" {
		if req.Size, err = strconv.Atoi(size); err != nil {
			return req, fmt.Errorf("invalid size: %w", err)
		}
	}

	if sort != "" {
		field, dir, _ := strings.Cut(sort, ",")
		known := false
		for _, f := range allowedSort {
			if f == field {
				known = true
				break
			}
		}
		if !known {
			return req, fmt.Errorf("unsupported sort field %q", field)
		}
		req.SortField = field
		switch strings.ToLower(dir) {
		case "", "asc":
		case "desc":
			req.SortDesc = true
		default:
			return req, fmt.Errorf("invalid sort direction %q", dir)
		}
	}

	return req.Normalize(), nil
}

// Sortable fields
const (
	SortID              = "id"
	SortTitle           = "title"
	SortResourceType    = "resourceType"
	SortStartTime       = "startTime"
	SortReservationDate = "reservationDate"
)

// ResourceSortFields lists fields resources may be ordered by
var ResourceSortFields = []string{SortID, SortTitle, SortResourceType}

// ReservationSortFields lists fields reservations may be ordered by
var ReservationSortFields = []string{SortID, SortStartTime, SortReservationDate}
