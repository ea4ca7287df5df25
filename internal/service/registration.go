// Package service implements the registration and waitlist lifecycle: how a
// user joins a capacity-limited moment, how cancellations free capacity, and
// how the waitlist promotes the next registrant. It depends only on the
// Gateway and Catalog ports, never on a concrete store.
package service

import (
	"context"
	"time"

	"github.com/DragosDreptate/the-playground-sub002/internal/model"
)

// RegistrationService owns the state machine for a single registration:
// join, cancel, and waitlist promotion.
type RegistrationService struct {
	gw Gateway
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(gw Gateway) *RegistrationService {
	return &RegistrationService{gw: gw}
}

// JoinMoment registers userID for the moment. When the moment is at capacity
// the registration is admitted as WAITLISTED instead of REGISTERED; a nil
// capacity admits everyone. A previously cancelled row for the same pair is
// reactivated in place rather than duplicated.
//
// On success a PLAYER membership in the moment's circle is created for the
// user unless one already exists; an existing HOST row is never downgraded.
func (s *RegistrationService) JoinMoment(ctx context.Context, momentID, userID string) (*model.Registration, error) {
	moment, err := s.gw.FindMomentByID(ctx, momentID)
	if err != nil {
		return nil, err
	}
	if moment.Status != model.MomentPublished {
		return nil, ErrNotOpenForRegistration
	}
	if moment.HasStarted(time.Now().UTC()) {
		return nil, ErrAlreadyStarted
	}
	if !moment.IsFree() {
		return nil, ErrPaidNotSupported
	}

	// The duplicate check, capacity count, admission write, and membership
	// upsert must commit as one unit: splitting them would either let two
	// joins racing for the last slot both be admitted as REGISTERED, or
	// strand a committed registration without its membership when the
	// upsert fails.
	var reg *model.Registration
	err = s.gw.WithMomentLock(ctx, momentID, func(tx Gateway) error {
		existing, err := tx.FindRegistrationByMomentAndUser(ctx, momentID, userID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Active() {
			return ErrAlreadyRegistered
		}

		status := model.RegistrationRegistered
		if moment.Capacity != nil {
			registered, err := tx.CountRegistrationsByStatus(ctx, momentID, model.RegistrationRegistered)
			if err != nil {
				return err
			}
			if registered >= *moment.Capacity {
				status = model.RegistrationWaitlisted
			}
		}

		if existing != nil {
			reg, err = tx.ReactivateRegistration(ctx, existing.ID, status)
		} else {
			reg, err = tx.CreateRegistration(ctx, momentID, userID, status)
		}
		if err != nil {
			return err
		}
		return ensurePlayerMembership(ctx, tx, moment.CircleID, userID)
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func ensurePlayerMembership(ctx context.Context, gw Gateway, circleID, userID string) error {
	membership, err := gw.FindMembership(ctx, circleID, userID)
	if err != nil {
		return err
	}
	if membership != nil {
		return nil
	}
	return gw.AddMembership(ctx, circleID, userID, model.RolePlayer)
}

// CancelResult reports a cancellation and the waitlist promotion it may have
// triggered. Promoted is nil when no slot was freed or the waitlist was
// empty; the caller is responsible for notifying the promoted user.
type CancelResult struct {
	Registration *model.Registration `json:"registration"`
	Promoted     *model.Registration `json:"promoted_registration"`
}

// CancelRegistration cancels the caller's own registration. If the cancelled
// row held a REGISTERED slot, the earliest waitlisted registration on the
// same moment is promoted to REGISTERED — exactly one promotion per freed
// slot. Cancelling a WAITLISTED row never promotes anyone.
func (s *RegistrationService) CancelRegistration(ctx context.Context, registrationID, callerID string) (*CancelResult, error) {
	reg, err := s.gw.FindRegistrationByID(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if !reg.Active() {
		return nil, ErrRegistrationNotFound
	}
	if reg.UserID != callerID {
		return nil, ErrNotRegistrationOwner
	}
	if reg.Status == model.RegistrationCheckedIn {
		return nil, ErrAlreadyCheckedIn
	}

	var result CancelResult
	err = s.gw.WithMomentLock(ctx, reg.MomentID, func(tx Gateway) error {
		// Re-read under the lock: a concurrent cancel may have won the race.
		current, err := tx.FindRegistrationByID(ctx, registrationID)
		if err != nil {
			return err
		}
		if !current.Active() {
			return ErrRegistrationNotFound
		}
		// CHECKED_IN is terminal.
		if current.Status == model.RegistrationCheckedIn {
			return ErrAlreadyCheckedIn
		}

		// Whether a capacity slot is freed is decided by the status before
		// the transition.
		freesSlot := current.Status == model.RegistrationRegistered

		now := time.Now().UTC()
		cancelled, err := tx.UpdateRegistrationStatus(ctx, current.ID, model.RegistrationCancelled, &now)
		if err != nil {
			return err
		}
		result.Registration = cancelled

		if !freesSlot {
			return nil
		}
		next, err := tx.FindFirstWaitlisted(ctx, current.MomentID)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		promoted, err := tx.UpdateRegistrationStatus(ctx, next.ID, model.RegistrationRegistered, nil)
		if err != nil {
			return err
		}
		result.Promoted = promoted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
