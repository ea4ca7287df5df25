package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DragosDreptate/the-playground-sub002/internal/handler"
	"github.com/DragosDreptate/the-playground-sub002/internal/model"
	"github.com/DragosDreptate/the-playground-sub002/internal/repository"
	"github.com/DragosDreptate/the-playground-sub002/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// recordingSink captures notifications for assertions.
type recordingSink struct {
	mu       sync.Mutex
	promoted []string
}

func (s *recordingSink) RegistrationConfirmed(ctx context.Context, reg *model.Registration) {}
func (s *recordingSink) Waitlisted(ctx context.Context, reg *model.Registration)            {}
func (s *recordingSink) PromotedFromWaitlist(ctx context.Context, reg *model.Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promoted = append(s.promoted, reg.ID)
}

type api struct {
	store  *repository.Memory
	router *chi.Mux
	sink   *recordingSink
}

func newAPI(t *testing.T) *api {
	t.Helper()
	store := repository.NewMemory()
	regs := service.NewRegistrationService(store)
	memberships := service.NewMembershipService(store, store, regs)
	moments := service.NewMomentService(store, store)
	sink := &recordingSink{}
	h := handler.New(moments, regs, memberships, sink)

	r := chi.NewRouter()
	r.Get("/health", handler.HealthCheck)
	r.Group(func(r chi.Router) {
		r.Use(handler.Authenticate)
		h.Routes(r)
	})
	return &api{store: store, router: r, sink: sink}
}

func (a *api) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *api) seedMoment(t *testing.T, circleID string, capacity *int) string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.store.CreateCircle(ctx, &model.Circle{ID: circleID, Name: circleID, CreatedAt: time.Now().UTC()}))
	now := time.Now().UTC()
	m := &model.Moment{
		ID:        uuid.New().String(),
		CircleID:  circleID,
		Title:     "pickup game",
		StartsAt:  now.Add(24 * time.Hour),
		EndsAt:    now.Add(26 * time.Hour),
		Capacity:  capacity,
		Status:    model.MomentPublished,
		CreatedAt: now,
	}
	require.NoError(t, a.store.CreateMoment(ctx, m))
	return m.ID
}

func intptr(n int) *int { return &n }

func TestJoinMoment_RequiresIdentity(t *testing.T) {
	a := newAPI(t)
	momentID := a.seedMoment(t, "c1", nil)

	rec := a.do(t, http.MethodPost, "/moments/"+momentID+"/registrations", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJoinMoment_Created(t *testing.T) {
	a := newAPI(t)
	momentID := a.seedMoment(t, "c1", intptr(2))

	rec := a.do(t, http.MethodPost, "/moments/"+momentID+"/registrations", "alice", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var reg model.Registration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	require.Equal(t, model.RegistrationRegistered, reg.Status)
	require.Equal(t, "alice", reg.UserID)
}

func TestJoinMoment_FullMomentWaitlists(t *testing.T) {
	a := newAPI(t)
	momentID := a.seedMoment(t, "c1", intptr(1))

	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/moments/"+momentID+"/registrations", "alice", nil).Code)

	rec := a.do(t, http.MethodPost, "/moments/"+momentID+"/registrations", "bob", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var reg model.Registration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	require.Equal(t, model.RegistrationWaitlisted, reg.Status)
}

func TestJoinMoment_ErrorMapping(t *testing.T) {
	a := newAPI(t)
	ctx := context.Background()
	require.NoError(t, a.store.CreateCircle(ctx, &model.Circle{ID: "c1", Name: "c1", CreatedAt: time.Now().UTC()}))
	now := time.Now().UTC()
	paid := &model.Moment{
		ID: uuid.New().String(), CircleID: "c1", Title: "tournament",
		StartsAt: now.Add(24 * time.Hour), EndsAt: now.Add(26 * time.Hour),
		PriceCents: 500, Status: model.MomentPublished, CreatedAt: now,
	}
	require.NoError(t, a.store.CreateMoment(ctx, paid))

	require.Equal(t, http.StatusNotFound,
		a.do(t, http.MethodPost, "/moments/nope/registrations", "alice", nil).Code)
	require.Equal(t, http.StatusBadRequest,
		a.do(t, http.MethodPost, "/moments/"+paid.ID+"/registrations", "alice", nil).Code)

	free := a.seedMoment(t, "c2", nil)
	require.Equal(t, http.StatusCreated,
		a.do(t, http.MethodPost, "/moments/"+free+"/registrations", "alice", nil).Code)
	require.Equal(t, http.StatusConflict,
		a.do(t, http.MethodPost, "/moments/"+free+"/registrations", "alice", nil).Code)
}

func TestCancelRegistration_ReportsPromotion(t *testing.T) {
	a := newAPI(t)
	momentID := a.seedMoment(t, "c1", intptr(1))

	var alice model.Registration
	rec := a.do(t, http.MethodPost, "/moments/"+momentID+"/registrations", "alice", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alice))
	var bob model.Registration
	rec = a.do(t, http.MethodPost, "/moments/"+momentID+"/registrations", "bob", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bob))

	rec = a.do(t, http.MethodDelete, "/registrations/"+alice.ID, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result service.CancelResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, model.RegistrationCancelled, result.Registration.Status)
	require.NotNil(t, result.Promoted)
	require.Equal(t, bob.ID, result.Promoted.ID)

	// The promoted user gets notified from the handler.
	require.Equal(t, []string{bob.ID}, a.sink.promoted)
}

func TestCancelRegistration_ForeignRegistrationForbidden(t *testing.T) {
	a := newAPI(t)
	momentID := a.seedMoment(t, "c1", nil)

	var alice model.Registration
	rec := a.do(t, http.MethodPost, "/moments/"+momentID+"/registrations", "alice", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alice))

	require.Equal(t, http.StatusForbidden,
		a.do(t, http.MethodDelete, "/registrations/"+alice.ID, "mallory", nil).Code)
}

func TestCancelRegistration_CheckedInConflict(t *testing.T) {
	a := newAPI(t)
	momentID := a.seedMoment(t, "c1", nil)

	reg, err := a.store.CreateRegistration(context.Background(), momentID, "alice", model.RegistrationCheckedIn)
	require.NoError(t, err)

	require.Equal(t, http.StatusConflict,
		a.do(t, http.MethodDelete, "/registrations/"+reg.ID, "alice", nil).Code)
}

func TestLeaveCircle_ReturnsCascadeCounts(t *testing.T) {
	a := newAPI(t)
	momentID := a.seedMoment(t, "c1", intptr(1))

	a.do(t, http.MethodPost, "/moments/"+momentID+"/registrations", "alice", nil)
	a.do(t, http.MethodPost, "/moments/"+momentID+"/registrations", "bob", nil)

	rec := a.do(t, http.MethodPost, "/circles/c1/leave", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result service.LeaveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, 1, result.CancelledRegistrations)
	require.Equal(t, 1, result.PromotedRegistrations)
}

func TestLeaveCircle_HostConflict(t *testing.T) {
	a := newAPI(t)
	ctx := context.Background()
	require.NoError(t, a.store.CreateCircle(ctx, &model.Circle{ID: "c1", Name: "c1", CreatedAt: time.Now().UTC()}))
	require.NoError(t, a.store.AddMembership(ctx, "c1", "hank", model.RoleHost))

	require.Equal(t, http.StatusConflict,
		a.do(t, http.MethodPost, "/circles/c1/leave", "hank", nil).Code)
}

func TestCreateMoment_ValidatesPayload(t *testing.T) {
	a := newAPI(t)
	ctx := context.Background()
	require.NoError(t, a.store.CreateCircle(ctx, &model.Circle{ID: "c1", Name: "c1", CreatedAt: time.Now().UTC()}))
	require.NoError(t, a.store.AddMembership(ctx, "c1", "hank", model.RoleHost))

	// Missing title fails validation before reaching the service.
	now := time.Now().UTC()
	rec := a.do(t, http.MethodPost, "/moments", "hank", model.CreateMomentRequest{
		CircleID: "c1",
		StartsAt: now.Add(24 * time.Hour),
		EndsAt:   now.Add(26 * time.Hour),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/moments", "hank", model.CreateMomentRequest{
		CircleID: "c1",
		Title:    "friday football",
		StartsAt: now.Add(24 * time.Hour),
		EndsAt:   now.Add(26 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateCircle_Created(t *testing.T) {
	a := newAPI(t)

	rec := a.do(t, http.MethodPost, "/circles", "hank", model.CreateCircleRequest{Name: "sunday league"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var circle model.Circle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &circle))
	require.NotEmpty(t, circle.ID)
}

func TestHealthCheck(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
