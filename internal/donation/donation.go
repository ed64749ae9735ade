package donation

import (
	"log/slog"

	"aidledger/internal/donation/handler"
	"aidledger/internal/donation/ledger"
	"aidledger/internal/donation/service"
	"aidledger/internal/donation/store"
	"aidledger/internal/platform/middleware"
)

// Service is the donation transition engine.
type Service = service.Service

// Handler wires HTTP endpoints to the donation service.
type Handler = handler.Handler

// NewService constructs the transition engine with required dependencies.
func NewService(donations store.Store, l ledger.Ledger, opts ...service.Option) *Service {
	return service.New(donations, l, opts...)
}

// NewHandler constructs an HTTP handler for the donation routes.
func NewHandler(s *Service, trail handler.AuditReader, validator middleware.TokenValidator, logger *slog.Logger) *Handler {
	return handler.New(s, trail, validator, logger)
}
