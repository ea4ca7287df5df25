package service

import (
	"context"
	"fmt"
	"time"

	"github.com/DragosDreptate/the-playground-sub002/internal/model"

	"github.com/google/uuid"
)

// MomentService covers the host-facing moment surface: scheduling, listing,
// and the registration roster.
type MomentService struct {
	gw  Gateway
	cat Catalog
}

// NewMomentService constructs a MomentService.
func NewMomentService(gw Gateway, cat Catalog) *MomentService {
	return &MomentService{gw: gw, cat: cat}
}

// Create schedules a new moment. Only the circle's host may schedule.
func (s *MomentService) Create(ctx context.Context, callerID string, req model.CreateMomentRequest) (*model.Moment, error) {
	membership, err := s.gw.FindMembership(ctx, req.CircleID, callerID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, ErrNotMember
	}
	if membership.Role != model.RoleHost {
		return nil, ErrNotHost
	}

	now := time.Now().UTC()
	if !req.StartsAt.After(now) {
		return nil, fmt.Errorf("starts_at must be in the future")
	}
	if !req.EndsAt.After(req.StartsAt) {
		return nil, fmt.Errorf("ends_at must be after starts_at")
	}

	moment := &model.Moment{
		ID:         uuid.New().String(),
		CircleID:   req.CircleID,
		Title:      req.Title,
		StartsAt:   req.StartsAt.UTC(),
		EndsAt:     req.EndsAt.UTC(),
		Capacity:   req.Capacity,
		PriceCents: req.PriceCents,
		Status:     model.MomentPublished,
		CreatedAt:  now,
	}
	if err := s.cat.CreateMoment(ctx, moment); err != nil {
		return nil, fmt.Errorf("create moment: %w", err)
	}
	return moment, nil
}

// Get returns a single moment by ID.
func (s *MomentService) Get(ctx context.Context, id string) (*model.Moment, error) {
	return s.gw.FindMomentByID(ctx, id)
}

// ListUpcoming returns published moments that have not started yet.
func (s *MomentService) ListUpcoming(ctx context.Context) ([]model.Moment, error) {
	return s.cat.ListUpcomingMoments(ctx, time.Now().UTC())
}

// Roster returns the moment's registrations in join order. Only the circle's
// host may view it.
func (s *MomentService) Roster(ctx context.Context, momentID, callerID string) ([]model.Registration, error) {
	moment, err := s.gw.FindMomentByID(ctx, momentID)
	if err != nil {
		return nil, err
	}
	membership, err := s.gw.FindMembership(ctx, moment.CircleID, callerID)
	if err != nil {
		return nil, err
	}
	if membership == nil || membership.Role != model.RoleHost {
		return nil, ErrNotHost
	}
	return s.cat.ListRegistrationsByMoment(ctx, momentID)
}
