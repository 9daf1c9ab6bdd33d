// Package api provides HTTP handlers for the charges API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artpar/charges/internal/core/domain"
	"github.com/artpar/charges/internal/core/localtime"
	apimw "github.com/artpar/charges/internal/shell/api/middleware"
	"github.com/artpar/charges/internal/shell/store"
)

// maxCommandBytes bounds the size of a command document.
const maxCommandBytes = 4 << 20

// Pinger is implemented by stores that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// =============================================================================
// Handler
// =============================================================================

// Config holds optional handler settings.
type Config struct {
	// Metrics serves /metrics. Default: promhttp.Handler().
	Metrics http.Handler

	Participant apimw.ParticipantConfig
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	store  store.Store
	clock  localtime.Clock
	config Config
	logger *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, clock localtime.Clock, cfg Config, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	if clock == nil {
		clock = localtime.SystemClock{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = promhttp.Handler()
	}
	if cfg.Participant.Logger == nil {
		cfg.Participant.Logger = l
	}
	return &Handler{
		store:  s,
		clock:  clock,
		config: cfg,
		logger: l.With("component", "api"),
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)

	r.Handle("/metrics", h.config.Metrics)

	r.Group(func(r chi.Router) {
		r.Use(h.jsonContentType)

		// Health endpoints
		r.Get("/health", h.handleHealth)
		r.Get("/ready", h.handleReady)

		// API v1 routes
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(apimw.Participant(h.config.Participant))

			r.Post("/charges/commands", h.handleSubmitChargeCommand)
			r.Post("/chargelinks/commands", h.handleSubmitChargeLinksCommand)
			r.Get("/commands/{id}", h.handleGetCommand)

			r.Route("/charges/{owner}/{type}/{chargeID}", func(r chi.Router) {
				r.Get("/", h.handleGetCharge)
				r.Get("/links", h.handleListChargeLinks)
			})
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok"}

	if p, ok := h.store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			checks["database"] = "failed"
			h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
				Status: "not_ready",
				Checks: checks,
			})
			return
		}
	}

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Command Handlers
// =============================================================================

func (h *Handler) handleSubmitChargeCommand(w http.ResponseWriter, r *http.Request) {
	var cmd domain.ChargeCommand
	if !h.decodeCommand(w, r, &cmd) {
		return
	}
	if err := cmd.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "invalid_command")
		return
	}
	h.enqueue(w, r, store.CommandKindCharge, cmd.Document, cmd)
}

func (h *Handler) handleSubmitChargeLinksCommand(w http.ResponseWriter, r *http.Request) {
	var cmd domain.ChargeLinksCommand
	if !h.decodeCommand(w, r, &cmd) {
		return
	}
	if err := cmd.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "invalid_command")
		return
	}
	h.enqueue(w, r, store.CommandKindChargeLink, cmd.Document, cmd)
}

func (h *Handler) decodeCommand(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxCommandBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return false
	}
	return true
}

// enqueue stores the command in the inbox. Receiving is the moment the
// command's receive time is fixed.
func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, kind store.CommandKind, doc domain.Document, cmd any) {
	if participant := apimw.ParticipantFromContext(r.Context()); participant != "" && participant != doc.SenderID {
		h.writeError(w, http.StatusForbidden, "document sender does not match the authenticated participant", "forbidden")
		return
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to encode command", "internal_error")
		return
	}

	inbox := &store.InboxCommand{
		ID:         uuid.New().String(),
		Kind:       kind,
		DocumentID: doc.ID,
		Payload:    payload,
		ReceivedAt: h.clock.Now().UTC(),
	}
	if err := h.store.EnqueueCommand(r.Context(), inbox); err != nil {
		h.logger.Error("failed to enqueue command", "document_id", doc.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to store command", "internal_error")
		return
	}

	h.logger.Info("command received",
		"command_id", inbox.ID,
		"document_id", doc.ID,
		"kind", kind,
		"sender", doc.SenderID,
	)
	h.writeJSON(w, http.StatusAccepted, CommandAcceptedResponse{
		CommandID:  inbox.ID,
		DocumentID: doc.ID,
		Status:     string(store.CommandPending),
		ReceivedAt: inbox.ReceivedAt,
	})
}

func (h *Handler) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cmd, err := h.store.GetCommand(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "command not found", "command_not_found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to get command", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, CommandStatusResponse{
		CommandID:   cmd.ID,
		Kind:        string(cmd.Kind),
		DocumentID:  cmd.DocumentID,
		Status:      string(cmd.Status),
		Error:       cmd.Error,
		Attempts:    cmd.Attempts,
		ReceivedAt:  cmd.ReceivedAt,
		ProcessedAt: cmd.ProcessedAt,
	})
}

// =============================================================================
// Charge Handlers
// =============================================================================

func (h *Handler) chargeFromPath(w http.ResponseWriter, r *http.Request) (*domain.Charge, bool) {
	key := domain.BusinessKey{
		ChargeID: chi.URLParam(r, "chargeID"),
		OwnerID:  chi.URLParam(r, "owner"),
		Type:     domain.ChargeType(chi.URLParam(r, "type")),
	}
	if !key.Type.IsKnown() {
		h.writeError(w, http.StatusBadRequest, "unknown charge type", "validation_error")
		return nil, false
	}

	charge, err := h.store.GetChargeByKey(r.Context(), key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "charge not found", "charge_not_found")
			return nil, false
		}
		h.logger.Error("failed to get charge", "key", key.String(), "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get charge", "internal_error")
		return nil, false
	}
	return charge, true
}

func (h *Handler) handleGetCharge(w http.ResponseWriter, r *http.Request) {
	charge, ok := h.chargeFromPath(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, chargeToResponse(charge))
}

func (h *Handler) handleListChargeLinks(w http.ResponseWriter, r *http.Request) {
	charge, ok := h.chargeFromPath(w, r)
	if !ok {
		return
	}

	opts := store.DefaultListOptions()
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		opts.Limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		opts.Offset = v
	}
	opts = opts.Normalize()

	links, err := h.store.ListChargeLinks(r.Context(), charge.ID, opts)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list charge links", "internal_error")
		return
	}

	resp := ChargeLinksResponse{
		Links:  make([]ChargeLinkResponse, 0, len(links)),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	for _, l := range links {
		resp.Links = append(resp.Links, ChargeLinkResponse{
			ID:              l.ID,
			MeteringPointID: l.MeteringPointID,
			Factor:          l.Factor,
			StartDateTime:   l.StartDateTime,
			EndDateTime:     optionalEnd(l.EndDateTime),
			OperationID:     l.OperationID,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func chargeToResponse(c *domain.Charge) ChargeResponse {
	resp := ChargeResponse{
		ID:                   c.ID,
		ChargeID:             c.SenderProvidedChargeID,
		OwnerID:              c.OwnerID,
		Type:                 string(c.Type),
		Resolution:           string(c.Resolution),
		TaxIndicator:         c.TaxIndicator,
		TransparentInvoicing: c.TransparentInvoicing,
		Version:              c.Version(),
		Periods:              make([]PeriodResponse, 0),
		Points:               make([]PointResponse, 0),
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
	for _, p := range c.Periods() {
		resp.Periods = append(resp.Periods, PeriodResponse{
			Name:                 p.Name,
			Description:          p.Description,
			VatClassification:    string(p.VatClassification),
			TransparentInvoicing: p.TransparentInvoicing,
			StartDateTime:        p.StartDateTime,
			EndDateTime:          optionalEnd(p.EndDateTime),
			IsStop:               p.IsStop,
			ReceivedAt:           p.ReceivedAt,
		})
	}
	for _, p := range c.Points() {
		resp.Points = append(resp.Points, PointResponse{
			Position: p.Position,
			Price:    p.Price.String(),
			Time:     p.Time,
		})
	}
	return resp
}

func optionalEnd(t time.Time) *time.Time {
	if domain.IsEndOfTime(t) {
		return nil
	}
	return &t
}
