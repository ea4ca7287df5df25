// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DragosDreptate/the-playground-sub002/internal/model"
	"github.com/DragosDreptate/the-playground-sub002/internal/notify"
	"github.com/DragosDreptate/the-playground-sub002/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler holds the HTTP handlers for the registration API.
type Handler struct {
	moments       *service.MomentService
	registrations *service.RegistrationService
	memberships   *service.MembershipService
	sink          notify.Sink
	validate      *validator.Validate
}

// New constructs a Handler.
func New(
	moments *service.MomentService,
	registrations *service.RegistrationService,
	memberships *service.MembershipService,
	sink notify.Sink,
) *Handler {
	return &Handler{
		moments:       moments,
		registrations: registrations,
		memberships:   memberships,
		sink:          sink,
		validate:      validator.New(),
	}
}

// Routes mounts all authenticated API routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/circles", func(r chi.Router) {
		r.Post("/", h.CreateCircle)
		r.Post("/{id}/leave", h.LeaveCircle)
	})
	r.Route("/moments", func(r chi.Router) {
		r.Post("/", h.CreateMoment)
		r.Get("/", h.ListMoments)
		r.Get("/{id}", h.GetMoment)
		r.Post("/{id}/registrations", h.JoinMoment)
		r.Get("/{id}/registrations", h.ListRegistrations)
	})
	r.Delete("/registrations/{id}", h.CancelRegistration)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps the domain error taxonomy to HTTP statuses. Errors
// outside the taxonomy are infrastructure failures and come back as 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrMomentNotFound):
		writeError(w, http.StatusNotFound, "moment not found")
	case errors.Is(err, service.ErrRegistrationNotFound):
		writeError(w, http.StatusNotFound, "registration not found")
	case errors.Is(err, service.ErrNotOpenForRegistration):
		writeError(w, http.StatusConflict, "moment is not open for registration")
	case errors.Is(err, service.ErrAlreadyStarted):
		writeError(w, http.StatusConflict, "moment has already started")
	case errors.Is(err, service.ErrPaidNotSupported):
		writeError(w, http.StatusBadRequest, "paid moments are not supported")
	case errors.Is(err, service.ErrAlreadyRegistered):
		writeError(w, http.StatusConflict, "you are already registered for this moment")
	case errors.Is(err, service.ErrNotRegistrationOwner):
		writeError(w, http.StatusForbidden, "you may only cancel your own registration")
	case errors.Is(err, service.ErrAlreadyCheckedIn):
		writeError(w, http.StatusConflict, "checked-in registrations cannot be cancelled")
	case errors.Is(err, service.ErrNotMember):
		writeError(w, http.StatusNotFound, "you are not a member of this circle")
	case errors.Is(err, service.ErrNotHost):
		writeError(w, http.StatusForbidden, "only the circle host may do this")
	case errors.Is(err, service.ErrCannotLeaveAsHost):
		writeError(w, http.StatusConflict, "hosts cannot leave their own circle")
	default:
		writeError(w, http.StatusInternalServerError, "something went wrong, please retry")
	}
}

// CreateCircle handles POST /circles
func (h *Handler) CreateCircle(w http.ResponseWriter, r *http.Request) {
	var req model.CreateCircleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	circle, err := h.memberships.CreateCircle(r.Context(), userID(r), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, circle)
}

// LeaveCircle handles POST /circles/{id}/leave
// Cancels the caller's future registrations in the circle, promotes
// waitlisted users per freed slot, and removes the membership.
func (h *Handler) LeaveCircle(w http.ResponseWriter, r *http.Request) {
	result, err := h.memberships.LeaveCircle(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CreateMoment handles POST /moments
func (h *Handler) CreateMoment(w http.ResponseWriter, r *http.Request) {
	var req model.CreateMomentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	moment, err := h.moments.Create(r.Context(), userID(r), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotMember), errors.Is(err, service.ErrNotHost):
			writeServiceError(w, err)
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, moment)
}

// ListMoments handles GET /moments
func (h *Handler) ListMoments(w http.ResponseWriter, r *http.Request) {
	moments, err := h.moments.ListUpcoming(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list moments")
		return
	}
	if moments == nil {
		moments = []model.Moment{}
	}
	writeJSON(w, http.StatusOK, moments)
}

// GetMoment handles GET /moments/{id}
func (h *Handler) GetMoment(w http.ResponseWriter, r *http.Request) {
	moment, err := h.moments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, moment)
}

// JoinMoment handles POST /moments/{id}/registrations
// Admits the caller as REGISTERED, or WAITLISTED when the moment is full.
func (h *Handler) JoinMoment(w http.ResponseWriter, r *http.Request) {
	reg, err := h.registrations.JoinMoment(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if reg.Status == model.RegistrationWaitlisted {
		h.sink.Waitlisted(r.Context(), reg)
	} else {
		h.sink.RegistrationConfirmed(r.Context(), reg)
	}
	writeJSON(w, http.StatusCreated, reg)
}

// CancelRegistration handles DELETE /registrations/{id}
// Cancels the caller's registration and reports the promotion it triggered,
// if any. The promoted user gets a notification here, not in the core.
func (h *Handler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	result, err := h.registrations.CancelRegistration(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if result.Promoted != nil {
		h.sink.PromotedFromWaitlist(r.Context(), result.Promoted)
	}
	writeJSON(w, http.StatusOK, result)
}

// ListRegistrations handles GET /moments/{id}/registrations
// Returns the roster; host only.
func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.moments.Roster(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
