// Package model defines the core domain types for the community events
// platform: circles, moments, registrations, and memberships.
package model

import "time"

// MomentStatus is the lifecycle state of a moment.
type MomentStatus string

const (
	MomentPublished MomentStatus = "PUBLISHED"
	MomentCancelled MomentStatus = "CANCELLED"
	MomentPast      MomentStatus = "PAST"
)

// Moment is a scheduled, capacity-bounded event owned by a circle.
type Moment struct {
	ID         string       `json:"id"`
	CircleID   string       `json:"circle_id"`
	Title      string       `json:"title"`
	StartsAt   time.Time    `json:"starts_at"`
	EndsAt     time.Time    `json:"ends_at"`
	Capacity   *int         `json:"capacity"` // nil means unlimited
	PriceCents int          `json:"price_cents"`
	Status     MomentStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
}

// IsFree returns true when no payment is required to join.
func (m *Moment) IsFree() bool {
	return m.PriceCents == 0
}

// HasStarted returns true when the moment's start time is not in the future.
func (m *Moment) HasStarted(now time.Time) bool {
	return !m.StartsAt.After(now)
}

// Circle is a community that owns moments and has hosts and players.
type Circle struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// RegistrationStatus is the lifecycle state of a registration.
type RegistrationStatus string

const (
	RegistrationRegistered RegistrationStatus = "REGISTERED"
	RegistrationWaitlisted RegistrationStatus = "WAITLISTED"
	RegistrationCancelled  RegistrationStatus = "CANCELLED"
	RegistrationCheckedIn  RegistrationStatus = "CHECKED_IN"
)

// Registration is a user's claim on a moment slot. There is at most one row
// per (moment, user) pair; a cancelled row is reactivated on re-join rather
// than duplicated.
type Registration struct {
	ID           string             `json:"id"`
	MomentID     string             `json:"moment_id"`
	UserID       string             `json:"user_id"`
	Status       RegistrationStatus `json:"status"`
	RegisteredAt time.Time          `json:"registered_at"`
	CancelledAt  *time.Time         `json:"cancelled_at,omitempty"`
	CheckedInAt  *time.Time         `json:"checked_in_at,omitempty"`
}

// Active returns true unless the registration has been cancelled.
func (r *Registration) Active() bool {
	return r.Status != RegistrationCancelled
}

// MembershipRole distinguishes circle hosts from regular players.
type MembershipRole string

const (
	RoleHost   MembershipRole = "HOST"
	RolePlayer MembershipRole = "PLAYER"
)

// CircleMembership links a user to a circle with a role.
type CircleMembership struct {
	CircleID  string         `json:"circle_id"`
	UserID    string         `json:"user_id"`
	Role      MembershipRole `json:"role"`
	CreatedAt time.Time      `json:"created_at"`
}

// CreateCircleRequest is the payload for creating a circle.
type CreateCircleRequest struct {
	Name string `json:"name" validate:"required,min=2,max=120"`
}

// CreateMomentRequest is the payload for scheduling a new moment.
type CreateMomentRequest struct {
	CircleID   string    `json:"circle_id" validate:"required"`
	Title      string    `json:"title" validate:"required,max=200"`
	StartsAt   time.Time `json:"starts_at" validate:"required"`
	EndsAt     time.Time `json:"ends_at" validate:"required"`
	Capacity   *int      `json:"capacity" validate:"omitempty,gt=0"`
	PriceCents int       `json:"price_cents" validate:"gte=0"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
