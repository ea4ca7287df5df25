package service

import "errors"

// Domain errors returned by the registration and membership services. Each is
// individually matchable with errors.Is so handlers can map them to the right
// HTTP status. Anything else coming out of a service call is an
// infrastructure failure and should be treated as retryable, not as a
// business-rule violation.
var (
	// ErrMomentNotFound is returned when the requested moment does not exist.
	ErrMomentNotFound = errors.New("moment not found")

	// ErrRegistrationNotFound is returned when the requested registration
	// does not exist or has already been cancelled.
	ErrRegistrationNotFound = errors.New("registration not found")

	// ErrNotOpenForRegistration is returned for moments that are cancelled
	// or already in the past.
	ErrNotOpenForRegistration = errors.New("moment is not open for registration")

	// ErrAlreadyStarted is returned when the moment's start time has passed.
	ErrAlreadyStarted = errors.New("moment has already started")

	// ErrPaidNotSupported is returned for moments with a non-zero price.
	ErrPaidNotSupported = errors.New("paid moments are not supported")

	// ErrAlreadyRegistered is returned when the caller already holds an
	// active registration for the moment.
	ErrAlreadyRegistered = errors.New("already registered for this moment")

	// ErrNotRegistrationOwner is returned when a caller tries to cancel a
	// registration that belongs to another user.
	ErrNotRegistrationOwner = errors.New("registration belongs to another user")

	// ErrAlreadyCheckedIn is returned when a caller tries to cancel a
	// registration that has been checked in. CHECKED_IN is terminal.
	ErrAlreadyCheckedIn = errors.New("registration is already checked in")

	// ErrNotMember is returned when the caller holds no membership in the
	// circle.
	ErrNotMember = errors.New("not a member of this circle")

	// ErrNotHost is returned when an operation requires the HOST role.
	ErrNotHost = errors.New("only the circle host may do this")

	// ErrCannotLeaveAsHost is returned when a host tries to leave their own
	// circle. Hosts must transfer ownership or delete the circle instead.
	ErrCannotLeaveAsHost = errors.New("hosts cannot leave their own circle")

	// ErrNotFollowing is returned by the gateway when there is no follow
	// relationship to remove. The leave cascade treats it as a no-op.
	ErrNotFollowing = errors.New("not following this circle")
)
