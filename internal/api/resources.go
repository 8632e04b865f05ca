package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"booking/internal/booking"
	"booking/internal/calendar"
	"booking/internal/models"
)

func setTotalCount(c *gin.Context, total int64) {
	c.Header("X-Total-Count", strconv.FormatInt(total, 10))
}

func parsePage(c *gin.Context, allowedSort ...string) (models.PageRequest, bool) {
	page, err := models.ParsePageRequest(c.Query("page"), c.Query("size"), c.Query("sort"), allowedSort...)
	if err != nil {
		badRequest(c, keyBadRequest, err.Error())
		return page, false
	}
	return page, true
}

// GET /api/resources?title=&author=&keywords=&type=&page=&size=&sort=
func (s *Server) listResources(c *gin.Context) {
	ctx := c.Request.Context()
	s.metrics.operation(ctx, "list_resources")

	page, ok := parsePage(c, models.ResourceSortFields...)
	if !ok {
		return
	}

	filter := models.ResourceFilter{
		Title:    c.Query("title"),
		Author:   c.Query("author"),
		Keywords: c.Query("keywords"),
	}
	if t := c.Query("type"); t != "" {
		rt, err := models.ParseResourceType(t)
		if err != nil {
			badRequest(c, keyBadRequest, err.Error())
			return
		}
		filter.Type = rt
	}

	resources, total, err := s.svc.ListResources(ctx, filter, page)
	if err != nil {
		s.fail(c, err)
		return
	}
	if resources == nil {
		resources = []models.Resource{}
	}
	setTotalCount(c, total)
	c.JSON(http.StatusOK, resources)
}

// GET /api/resources/:id
func (s *Server) getResource(c *gin.Context) {
	ctx := c.Request.Context()
	s.metrics.operation(ctx, "get_resource")

	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resource, err := s.svc.GetResource(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resource)
}

// POST /api/resources
func (s *Server) createResource(c *gin.Context) {
	ctx := c.Request.Context()
	s.metrics.operation(ctx, "create_resource")

	var req models.Resource
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, keyBadRequest, err.Error())
		return
	}
	if req.ID != 0 {
		badRequest(c, keyIDExists, "A new resource cannot already have an ID")
		return
	}

	created, err := s.svc.CreateResource(ctx, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/api/resources/%d", created.ID))
	c.JSON(http.StatusCreated, created)
}

// PUT /api/resources/:id
func (s *Server) updateResource(c *gin.Context) {
	ctx := c.Request.Context()
	s.metrics.operation(ctx, "update_resource")

	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.Resource
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, keyBadRequest, err.Error())
		return
	}
	if !matchBodyID(c, id, req.ID) {
		return
	}

	updated, err := s.svc.UpdateResource(ctx, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// PATCH /api/resources/:id
func (s *Server) patchResource(c *gin.Context) {
	ctx := c.Request.Context()
	s.metrics.operation(ctx, "patch_resource")

	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var patch booking.ResourcePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, keyBadRequest, err.Error())
		return
	}

	updated, err := s.svc.PartialUpdateResource(ctx, id, patch)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DELETE /api/resources/:id
func (s *Server) deleteResource(c *gin.Context) {
	ctx := c.Request.Context()
	s.metrics.operation(ctx, "delete_resource")

	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.svc.DeleteResource(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type calendarResponse struct {
	ResourceID int64              `json:"resourceId"`
	View       string             `json:"view"`
	Days       []calendar.DayView `json:"days"`
}

// GET /api/resources/:id/calendar?date=2006-01-02&view=week|day&tz=Europe/Berlin
func (s *Server) resourceCalendar(c *gin.Context) {
	ctx := c.Request.Context()
	s.metrics.operation(ctx, "resource_calendar")

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	loc := time.UTC
	if tz := c.Query("tz"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			badRequest(c, keyBadRequest, fmt.Sprintf("unknown time zone %q", tz))
			return
		}
		loc = l
	}

	date := time.Now().In(loc)
	if d := c.Query("date"); d != "" {
		parsed, err := time.ParseInLocation("2006-01-02", d, loc)
		if err != nil {
			badRequest(c, keyBadRequest, "date must be formatted as YYYY-MM-DD")
			return
		}
		date = parsed
	}

	view := c.DefaultQuery("view", "week")
	if view != "week" && view != "day" {
		badRequest(c, keyBadRequest, "view must be week or day")
		return
	}

	if _, err := s.svc.GetResource(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	reservations, err := s.svc.ReservationsByResource(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := calendarResponse{ResourceID: id, View: view}
	if view == "day" {
		resp.Days = []calendar.DayView{calendar.Day(reservations, date, id)}
	} else {
		resp.Days = calendar.Week(reservations, date, id)
	}
	c.JSON(http.StatusOK, resp)
}

// matchBodyID checks that a PUT body carries the id from the path
func matchBodyID(c *gin.Context, pathID, bodyID int64) bool {
	if bodyID == 0 {
		badRequest(c, keyIDNull, "Invalid id")
		return false
	}
	if bodyID != pathID {
		badRequest(c, keyIDInvalid, "Invalid ID")
		return false
	}
	return true
}
