package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"booking/internal/booking"
	"booking/internal/models"
)

// GET /api/reservations?page=&size=&sort=
func (s *Server) listReservations(c *gin.Context) {
	ctx := c.Request.Context()
	s.metrics.operation(ctx, "list_reservations")

	page, ok := parsePage(c, models.ReservationSortFields...)
	if !ok {
		return
	}
	reservations, total, err := s.svc.ListReservations(ctx, page)
	if err != nil {
		s.fail(c, err)
		return
	}
	setTotalCount(c, total)
	c.JSON(http.StatusOK, orEmpty(reservations))
}

// GET /api/reservations/:id
func (s *Server) getReservation(c *gin.Context) {
	ctx := c.Request.Context()
	s.metrics.operation(ctx, "get_reservation")

	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	reservation, err := s.svc.GetReservation(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reservation)
}

// POST /api/reservations
// The authenticated user becomes the owner when the body names none.
func (s *Server) createReservation(c *gin.Context) {
	ctx := c.Request.Context()
	s.metrics.operation(ctx, "create_reservation")

	var req models.Reservation
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, keyBadRequest, err.Error())
		return
	}
	if req.ID != 0 {
		badRequest(c, keyIDExists, "A new reservation cannot already have an ID")
		return
	}
	if req.User.ID == 0 {
		if user, ok := currentUser(c); ok {
			req.User = user
		}
	}

	created, err := s.svc.CreateReservation(ctx, req)
	if err != nil {
		s.rejectOrFail(c, err)
		return
	}
	s.metrics.created(ctx)
	c.Header("Location", fmt.Sprintf("/api/reservations/%d", created.ID))
	c.JSON(http.StatusCreated, created)
}

// PUT /api/reservations/:id
func (s *Server) updateReservation(c *gin.Context) {
	ctx := c.Request.Context()
	s.metrics.operation(ctx, "update_reservation")

	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.Reservation
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, keyBadRequest, err.Error())
		return
	}
	if !matchBodyID(c, id, req.ID) {
		return
	}

	updated, err := s.svc.UpdateReservation(ctx, req)
	if err != nil {
		s.rejectOrFail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// PATCH /api/reservations/:id
func (s *Server) patchReservation(c *gin.Context) {
	ctx := c.Request.Context()
	s.metrics.operation(ctx, "patch_reservation")

	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var patch booking.ReservationPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, keyBadRequest, err.Error())
		return
	}

	updated, err := s.svc.PartialUpdateReservation(ctx, id, patch)
	if err != nil {
		s.rejectOrFail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DELETE /api/reservations/:id
func (s *Server) deleteReservation(c *gin.Context) {
	ctx := c.Request.Context()
	s.metrics.operation(ctx, "delete_reservation")

	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.svc.DeleteReservation(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/reservations/resource/:resourceId
func (s *Server) reservationsByResource(c *gin.Context) {
	ctx := c.Request.Context()
	s.metrics.operation(ctx, "reservations_by_resource")

	id, ok := pathID(c, "resourceId")
	if !ok {
		return
	}
	reservations, err := s.svc.ReservationsByResource(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orEmpty(reservations))
}

// GET /api/reservations/user/:userId/active
func (s *Server) activeReservationsByUser(c *gin.Context) {
	ctx := c.Request.Context()
	s.metrics.operation(ctx, "active_reservations_by_user")

	id, ok := pathID(c, "userId")
	if !ok {
		return
	}
	reservations, err := s.svc.ActiveReservationsByUser(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orEmpty(reservations))
}

// GET /api/reservations/availability/:resourceId?startTime=RFC3339&endTime=RFC3339
func (s *Server) availability(c *gin.Context) {
	ctx := c.Request.Context()
	s.metrics.operation(ctx, "availability")

	id, ok := pathID(c, "resourceId")
	if !ok {
		return
	}
	start, err := time.Parse(time.RFC3339, c.Query("startTime"))
	if err != nil {
		badRequest(c, keyBadRequest, "startTime must be an RFC 3339 timestamp")
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("endTime"))
	if err != nil {
		badRequest(c, keyBadRequest, "endTime must be an RFC 3339 timestamp")
		return
	}

	available, err := s.svc.IsResourceAvailable(ctx, id, start, end)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, available)
}

// rejectOrFail counts rule violations before mapping the error
func (s *Server) rejectOrFail(c *gin.Context, err error) {
	if reason := booking.RuleReason(err); reason != "" {
		s.metrics.rejected(c.Request.Context(), reason)
	}
	s.fail(c, err)
}

func orEmpty(reservations []models.Reservation) []models.Reservation {
	if reservations == nil {
		return []models.Reservation{}
	}
	return reservations
}
