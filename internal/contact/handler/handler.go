package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"reconcile/internal/contact/models"
	"reconcile/internal/contact/service"
	"reconcile/internal/platform/metrics"
	"reconcile/internal/platform/middleware"
	dErrors "reconcile/pkg/domain-errors"
	"reconcile/pkg/platform/httputil"
	"reconcile/pkg/platform/middleware/metadata"
	"reconcile/pkg/platform/middleware/requesttime"
)

// Service defines the contact operations exposed over HTTP.
type Service interface {
	Identify(ctx context.Context, req models.IdentifyRequest) (*service.IdentifyResult, error)
	Lookup(ctx context.Context, contactID int64) (*models.Identity, error)
	Ready(ctx context.Context) error
}

// IdentifyResponse wraps the consolidated identity.
type IdentifyResponse struct {
	Contact *models.Identity `json:"contact"`
}

// Handler serves the identify and contact lookup endpoints.
type Handler struct {
	logger  *slog.Logger
	contact Service
	metrics *metrics.Metrics
	timeout time.Duration
}

// New creates a contact Handler. A zero timeout uses 30s.
func New(contact Service, logger *slog.Logger, metrics *metrics.Metrics, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{
		logger:  logger,
		contact: contact,
		metrics: metrics,
		timeout: timeout,
	}
}

// Register registers the contact routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	contactRouter := chi.NewRouter()
	contactRouter.Use(middleware.Recovery(h.logger, h.metrics))
	contactRouter.Use(middleware.RequestID)
	contactRouter.Use(metadata.ClientMetadata)
	contactRouter.Use(requesttime.Middleware)
	contactRouter.Use(middleware.Logger(h.logger))
	contactRouter.Use(middleware.Timeout(h.timeout))
	contactRouter.Use(middleware.ContentTypeJSON)
	contactRouter.Use(middleware.LatencyMiddleware(h.metrics))
	contactRouter.Post("/identify", h.handleIdentify)
	contactRouter.Post("/api/identify", h.handleIdentify)
	contactRouter.Get("/contacts/{id}", h.handleGetContact)

	r.Mount("/", contactRouter)
}

// RegisterProbes mounts liveness and readiness outside the request logger.
func (h *Handler) RegisterProbes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/readyz", h.handleReady)
}

func (h *Handler) handleIdentify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.IdentifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.contact.Identify(ctx, *req)
	if err != nil {
		h.writeServiceError(ctx, w, err, "identify failed", requestID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, IdentifyResponse{Contact: result.Identity})
}

func (h *Handler) handleGetContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.logger.WarnContext(ctx, "invalid contact id",
			"request_id", requestID,
			"id", chi.URLParam(r, "id"),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "contact id must be a positive integer"))
		return
	}

	identity, err := h.contact.Lookup(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, err, "contact lookup failed", requestID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, IdentifyResponse{Contact: identity})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := h.contact.Ready(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "readiness check failed", "error", err)
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, msg, requestID string) {
	if dErrors.CodeOf(err).IsClientError() {
		h.logger.WarnContext(ctx, msg,
			"request_id", requestID,
			"error", err.Error(),
		)
	} else {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestID,
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
