package contact

import (
	"log/slog"
	"time"

	"reconcile/internal/contact/handler"
	"reconcile/internal/contact/service"
	"reconcile/internal/platform/metrics"
)

// Service exposes identity reconciliation.
type Service = service.Service

// Handler wires HTTP endpoints to the contact service.
type Handler = handler.Handler

// NewService constructs the contact service over a store and its transaction boundary.
func NewService(store service.Store, tx service.ContactStoreTx, opts ...service.Option) *Service {
	return service.New(store, tx, opts...)
}

// NewHandler constructs the HTTP handler for identify and contact lookup routes.
func NewHandler(s *Service, logger *slog.Logger, m *metrics.Metrics, timeout time.Duration) *Handler {
	return handler.New(s, logger, m, timeout)
}
