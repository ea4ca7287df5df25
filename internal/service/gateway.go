package service

import (
	"context"
	"time"

	"github.com/DragosDreptate/the-playground-sub002/internal/model"
)

// Gateway is the persistence port the registration core depends on. It is
// implemented by the pgx-backed store in internal/repository and by an
// in-memory store for tests.
//
// Concurrency contract: WithMomentLock runs fn while holding an exclusive
// lock scoped to the given moment, and commits fn's writes atomically. Every
// capacity read that feeds an admission decision, and every cancel+promote
// pair, must happen inside such a critical section — two concurrent joins
// against the last free slot must serialise, and a freed slot must promote
// exactly one waitlisted registrant.
type Gateway interface {
	// FindMomentByID returns the moment or ErrMomentNotFound.
	FindMomentByID(ctx context.Context, id string) (*model.Moment, error)

	// FindMembership returns the membership row, or (nil, nil) when the user
	// holds none.
	FindMembership(ctx context.Context, circleID, userID string) (*model.CircleMembership, error)

	// AddMembership inserts a membership row. Inserting an already-existing
	// (circle, user) pair is a no-op and never changes the stored role.
	AddMembership(ctx context.Context, circleID, userID string, role model.MembershipRole) error

	// RemoveMembership deletes the membership row if present.
	RemoveMembership(ctx context.Context, circleID, userID string) error

	// UnfollowCircle removes the follow relationship, returning
	// ErrNotFollowing when none exists.
	UnfollowCircle(ctx context.Context, userID, circleID string) error

	// CreateRegistration inserts a new registration with the given status,
	// stamping RegisteredAt.
	CreateRegistration(ctx context.Context, momentID, userID string, status model.RegistrationStatus) (*model.Registration, error)

	// FindRegistrationByID returns the registration or ErrRegistrationNotFound.
	FindRegistrationByID(ctx context.Context, id string) (*model.Registration, error)

	// FindRegistrationByMomentAndUser returns the single row for the pair, in
	// any status, or (nil, nil) when the user never registered.
	FindRegistrationByMomentAndUser(ctx context.Context, momentID, userID string) (*model.Registration, error)

	// CountRegistrationsByStatus counts the moment's registrations in the
	// given status.
	CountRegistrationsByStatus(ctx context.Context, momentID string, status model.RegistrationStatus) (int, error)

	// UpdateRegistrationStatus sets the status and cancellation timestamp
	// (nil clears it) and returns the updated row, or
	// ErrRegistrationNotFound.
	UpdateRegistrationStatus(ctx context.Context, id string, status model.RegistrationStatus, cancelledAt *time.Time) (*model.Registration, error)

	// ReactivateRegistration returns a cancelled row to the given active
	// status, clearing the cancellation stamp and re-stamping RegisteredAt,
	// so a re-join queues behind users already waitlisted.
	ReactivateRegistration(ctx context.Context, id string, status model.RegistrationStatus) (*model.Registration, error)

	// FindFirstWaitlisted returns the earliest waitlisted registration for
	// the moment, ordered by RegisteredAt then ID, or (nil, nil) when the
	// waitlist is empty.
	FindFirstWaitlisted(ctx context.Context, momentID string) (*model.Registration, error)

	// FindFutureActiveByUserAndCircle returns the user's REGISTERED and
	// WAITLISTED rows on moments of the circle starting after now.
	FindFutureActiveByUserAndCircle(ctx context.Context, userID, circleID string, now time.Time) ([]model.Registration, error)

	// WithMomentLock acquires an exclusive lock on the moment, runs fn
	// against a transactional view of the gateway, and commits on nil. It
	// returns ErrMomentNotFound when the moment does not exist.
	WithMomentLock(ctx context.Context, momentID string, fn func(Gateway) error) error
}

// Catalog covers the supporting persistence surface outside the registration
// core: circle and moment records and the host-facing queries.
type Catalog interface {
	// CreateCircle persists a new circle.
	CreateCircle(ctx context.Context, circle *model.Circle) error

	// CreateMoment persists a new moment.
	CreateMoment(ctx context.Context, moment *model.Moment) error

	// ListUpcomingMoments returns published moments starting after now,
	// soonest first.
	ListUpcomingMoments(ctx context.Context, now time.Time) ([]model.Moment, error)

	// ListRegistrationsByMoment returns the moment's registrations in join
	// order.
	ListRegistrationsByMoment(ctx context.Context, momentID string) ([]model.Registration, error)

	// MarkPastMoments flips published moments whose end time has passed to
	// PAST and reports how many rows changed. Called by a periodic job.
	MarkPastMoments(ctx context.Context, now time.Time) (int, error)
}
