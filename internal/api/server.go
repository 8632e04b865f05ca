// Package api exposes the booking service over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"booking/internal/booking"
	"booking/internal/models"
)

// Server wires the HTTP routes to the booking service
type Server struct {
	engine  *gin.Engine
	svc     *booking.Service
	logger  *zap.Logger
	metrics *metrics
}

// NewServer builds the gin engine. apiKeys maps bearer tokens to users.
func NewServer(svc *booking.Service, apiKeys map[string]models.UserRef, logger *zap.Logger, meter metric.Meter, tracer trace.Tracer) *Server {
	s := &Server{
		engine:  gin.New(),
		svc:     svc,
		logger:  logger,
		metrics: newMetrics(meter, logger),
	}

	s.engine.Use(recovery(logger), requestID(), tracing(tracer), requestLogger(logger))
	s.engine.GET("/health", s.health)

	api := s.engine.Group("/api", authenticate(apiKeys))

	resources := api.Group("/resources")
	resources.GET("", s.listResources)
	resources.POST("", s.createResource)
	resources.GET("/:id", s.getResource)
	resources.PUT("/:id", s.updateResource)
	resources.PATCH("/:id", s.patchResource)
	resources.DELETE("/:id", s.deleteResource)
	resources.GET("/:id/calendar", s.resourceCalendar)

	reservations := api.Group("/reservations")
	reservations.GET("", s.listReservations)
	reservations.POST("", s.createReservation)
	reservations.GET("/:id", s.getReservation)
	reservations.PUT("/:id", s.updateReservation)
	reservations.PATCH("/:id", s.patchReservation)
	reservations.DELETE("/:id", s.deleteReservation)
	reservations.GET("/resource/:resourceId", s.reservationsByResource)
	reservations.GET("/user/:userId/active", s.activeReservationsByUser)
	reservations.GET("/availability/:resourceId", s.availability)

	return s
}

// Handler returns the http.Handler serving every route
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
