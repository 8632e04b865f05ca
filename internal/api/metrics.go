package api

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

type metrics struct {
	reservationsCreated  metric.Int64Counter
	reservationsRejected metric.Int64Counter
	operations           metric.Int64Counter
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *metrics {
	m := &metrics{}
	var err error

	m.reservationsCreated, err = meter.Int64Counter(
		"booking_reservations_created_total",
		metric.WithDescription("Total number of reservations created"),
		metric.WithUnit("{reservations}"),
	)
	if err != nil {
		logger.Error("Failed to create reservations created metric", zap.Error(err))
	}

	m.reservationsRejected, err = meter.Int64Counter(
		"booking_reservations_rejected_total",
		metric.WithDescription("Total number of reservation writes rejected by a booking rule"),
		metric.WithUnit("{reservations}"),
	)
	if err != nil {
		logger.Error("Failed to create reservations rejected metric", zap.Error(err))
	}

	m.operations, err = meter.Int64Counter(
		"booking_api_operations_total",
		metric.WithDescription("Total number of API operations"),
		metric.WithUnit("{operations}"),
	)
	if err != nil {
		logger.Error("Failed to create operations metric", zap.Error(err))
	}

	return m
}

func (m *metrics) operation(ctx context.Context, name string) {
	if m.operations != nil {
		m.operations.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", name)))
	}
}

func (m *metrics) created(ctx context.Context) {
	if m.reservationsCreated != nil {
		m.reservationsCreated.Add(ctx, 1)
	}
}

func (m *metrics) rejected(ctx context.Context, reason string) {
	if m.reservationsRejected != nil {
		m.reservationsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}
