package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DragosDreptate/the-playground-sub002/internal/model"

	"github.com/google/uuid"
)

// MembershipService handles circle membership: creating circles and the
// cascade that runs when a player leaves.
type MembershipService struct {
	gw            Gateway
	cat           Catalog
	registrations *RegistrationService
}

// NewMembershipService constructs a MembershipService.
func NewMembershipService(gw Gateway, cat Catalog, registrations *RegistrationService) *MembershipService {
	return &MembershipService{gw: gw, cat: cat, registrations: registrations}
}

// CreateCircle creates a circle with the caller as its HOST.
func (s *MembershipService) CreateCircle(ctx context.Context, callerID string, req model.CreateCircleRequest) (*model.Circle, error) {
	circle := &model.Circle{
		ID:        uuid.New().String(),
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.cat.CreateCircle(ctx, circle); err != nil {
		return nil, fmt.Errorf("create circle: %w", err)
	}
	if err := s.gw.AddMembership(ctx, circle.ID, callerID, model.RoleHost); err != nil {
		return nil, fmt.Errorf("add host membership: %w", err)
	}
	return circle, nil
}

// LeaveResult aggregates the cascade counts across every moment touched by a
// leave. The counts feed UX messaging only.
type LeaveResult struct {
	CancelledRegistrations int `json:"cancelled_registrations"`
	PromotedRegistrations  int `json:"promoted_registrations"`
}

// LeaveCircle removes the caller's membership and cancels every future
// active registration they hold on the circle's moments, promoting the next
// waitlisted registrant per freed slot. Promotions never cross moments.
//
// The cascade is at-least-once across moments: a failure part-way through
// propagates without rolling back moments already processed. Removing a
// follow that doesn't exist is the one condition deliberately swallowed.
func (s *MembershipService) LeaveCircle(ctx context.Context, circleID, userID string) (*LeaveResult, error) {
	membership, err := s.gw.FindMembership(ctx, circleID, userID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, ErrNotMember
	}
	if membership.Role == model.RoleHost {
		return nil, ErrCannotLeaveAsHost
	}

	regs, err := s.gw.FindFutureActiveByUserAndCircle(ctx, userID, circleID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list future registrations: %w", err)
	}

	var result LeaveResult
	for _, reg := range regs {
		res, err := s.registrations.CancelRegistration(ctx, reg.ID, userID)
		if err != nil {
			// A row cancelled concurrently since the listing is fine to skip;
			// anything else aborts so the caller knows the cascade is
			// incomplete.
			if errors.Is(err, ErrRegistrationNotFound) {
				continue
			}
			return nil, fmt.Errorf("cancel registration %s: %w", reg.ID, err)
		}
		result.CancelledRegistrations++
		if res.Promoted != nil {
			result.PromotedRegistrations++
		}
	}

	if err := s.gw.RemoveMembership(ctx, circleID, userID); err != nil {
		return nil, fmt.Errorf("remove membership: %w", err)
	}
	if err := s.gw.UnfollowCircle(ctx, userID, circleID); err != nil && !errors.Is(err, ErrNotFollowing) {
		return nil, fmt.Errorf("unfollow circle: %w", err)
	}
	return &result, nil
}
