// Package notify defines the fire-and-forget notification sink invoked by
// the HTTP layer after registration changes. The registration core never
// calls it; handlers decide, based on the returned records, who to notify.
package notify

import (
	"context"

	"github.com/DragosDreptate/the-playground-sub002/internal/model"

	"github.com/rs/zerolog"
)

// Sink receives registration lifecycle notifications. Implementations must
// be best-effort: they never block the request and never return errors.
type Sink interface {
	RegistrationConfirmed(ctx context.Context, reg *model.Registration)
	Waitlisted(ctx context.Context, reg *model.Registration)
	PromotedFromWaitlist(ctx context.Context, reg *model.Registration)
}

// LogSink writes notifications to the structured log. It stands in for the
// mail delivery pipeline, which hangs off the same interface.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) event(name string, reg *model.Registration) {
	s.log.Info().
		Str("notification", name).
		Str("registration_id", reg.ID).
		Str("moment_id", reg.MomentID).
		Str("user_id", reg.UserID).
		Msg("notification dispatched")
}

func (s *LogSink) RegistrationConfirmed(ctx context.Context, reg *model.Registration) {
	s.event("registration_confirmed", reg)
}

func (s *LogSink) Waitlisted(ctx context.Context, reg *model.Registration) {
	s.event("waitlisted", reg)
}

func (s *LogSink) PromotedFromWaitlist(ctx context.Context, reg *model.Registration) {
	s.event("promoted_from_waitlist", reg)
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) RegistrationConfirmed(ctx context.Context, reg *model.Registration) {}
func (Nop) Waitlisted(ctx context.Context, reg *model.Registration)            {}
func (Nop) PromotedFromWaitlist(ctx context.Context, reg *model.Registration)  {}
