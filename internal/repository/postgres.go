// Package repository implements the persistence ports against PostgreSQL
// using pgx directly (no ORM), plus an in-memory store for tests and local
// development.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DragosDreptate/the-playground-sub002/internal/model"
	"github.com/DragosDreptate/the-playground-sub002/internal/service"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so the
// same query methods serve both the pool-backed store and its transactional
// view inside WithMomentLock.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements service.Gateway and service.Catalog on a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool // nil inside a WithMomentLock transaction
	q    querier
}

// NewPostgres constructs a Postgres store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, q: pool}
}

var _ service.Gateway = (*Postgres)(nil)
var _ service.Catalog = (*Postgres)(nil)

// WithMomentLock serialises concurrent registration work on one moment.
//
// It opens a transaction and takes a row-level exclusive lock on the moment
// with SELECT ... FOR UPDATE. Any concurrent WithMomentLock on the same
// moment blocks until this transaction commits or rolls back, so the
// capacity count, the admission write, and the cancel+promote pair each see
// and produce a consistent view. Reads of the same snapshot without the lock
// are what would otherwise let two joins share the last free slot.
func (p *Postgres) WithMomentLock(ctx context.Context, momentID string, fn func(service.Gateway) error) error {
	if p.pool == nil {
		return fmt.Errorf("moment lock is not reentrant")
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var locked string
	err = tx.QueryRow(ctx, `SELECT id FROM moments WHERE id = $1 FOR UPDATE`, momentID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return service.ErrMomentNotFound
		}
		return fmt.Errorf("lock moment row: %w", err)
	}

	if err := fn(&Postgres{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const momentColumns = `id, circle_id, title, starts_at, ends_at, capacity, price_cents, status, created_at`

func scanMoment(row pgx.Row) (*model.Moment, error) {
	var m model.Moment
	err := row.Scan(&m.ID, &m.CircleID, &m.Title, &m.StartsAt, &m.EndsAt, &m.Capacity, &m.PriceCents, &m.Status, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindMomentByID returns a single moment or service.ErrMomentNotFound.
func (p *Postgres) FindMomentByID(ctx context.Context, id string) (*model.Moment, error) {
	m, err := scanMoment(p.q.QueryRow(ctx,
		`SELECT `+momentColumns+` FROM moments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrMomentNotFound
		}
		return nil, fmt.Errorf("get moment: %w", err)
	}
	return m, nil
}

// FindMembership returns the membership row or (nil, nil) when absent.
func (p *Postgres) FindMembership(ctx context.Context, circleID, userID string) (*model.CircleMembership, error) {
	var m model.CircleMembership
	err := p.q.QueryRow(ctx,
		`SELECT circle_id, user_id, role, created_at
		 FROM circle_memberships WHERE circle_id = $1 AND user_id = $2`,
		circleID, userID,
	).Scan(&m.CircleID, &m.UserID, &m.Role, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return &m, nil
}

// AddMembership inserts a membership row. An existing (circle, user) pair is
// left untouched, so a join never downgrades a HOST.
func (p *Postgres) AddMembership(ctx context.Context, circleID, userID string, role model.MembershipRole) error {
	_, err := p.q.Exec(ctx,
		`INSERT INTO circle_memberships (circle_id, user_id, role, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (circle_id, user_id) DO NOTHING`,
		circleID, userID, role, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// RemoveMembership deletes the membership row if present.
func (p *Postgres) RemoveMembership(ctx context.Context, circleID, userID string) error {
	_, err := p.q.Exec(ctx,
		`DELETE FROM circle_memberships WHERE circle_id = $1 AND user_id = $2`,
		circleID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return nil
}

// UnfollowCircle removes a follow, reporting service.ErrNotFollowing when
// there was nothing to remove.
func (p *Postgres) UnfollowCircle(ctx context.Context, userID, circleID string) error {
	tag, err := p.q.Exec(ctx,
		`DELETE FROM circle_follows WHERE user_id = $1 AND circle_id = $2`,
		userID, circleID,
	)
	if err != nil {
		return fmt.Errorf("delete follow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrNotFollowing
	}
	return nil
}

const registrationColumns = `id, moment_id, user_id, status, registered_at, cancelled_at, checked_in_at`

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var r model.Registration
	err := row.Scan(&r.ID, &r.MomentID, &r.UserID, &r.Status, &r.RegisteredAt, &r.CancelledAt, &r.CheckedInAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRegistration inserts a new registration row.
func (p *Postgres) CreateRegistration(ctx context.Context, momentID, userID string, status model.RegistrationStatus) (*model.Registration, error) {
	reg := &model.Registration{
		ID:           uuid.New().String(),
		MomentID:     momentID,
		UserID:       userID,
		Status:       status,
		RegisteredAt: time.Now().UTC(),
	}
	_, err := p.q.Exec(ctx,
		`INSERT INTO registrations (id, moment_id, user_id, status, registered_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		reg.ID, reg.MomentID, reg.UserID, reg.Status, reg.RegisteredAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert registration: %w", err)
	}
	return reg, nil
}

// FindRegistrationByID returns a registration or service.ErrRegistrationNotFound.
func (p *Postgres) FindRegistrationByID(ctx context.Context, id string) (*model.Registration, error) {
	reg, err := scanRegistration(p.q.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

// FindRegistrationByMomentAndUser returns the pair's row in any status, or
// (nil, nil) when the user never registered.
func (p *Postgres) FindRegistrationByMomentAndUser(ctx context.Context, momentID, userID string) (*model.Registration, error) {
	reg, err := scanRegistration(p.q.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE moment_id = $1 AND user_id = $2`,
		momentID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get registration by pair: %w", err)
	}
	return reg, nil
}

// CountRegistrationsByStatus counts the moment's rows in the given status.
func (p *Postgres) CountRegistrationsByStatus(ctx context.Context, momentID string, status model.RegistrationStatus) (int, error) {
	var n int
	err := p.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE moment_id = $1 AND status = $2`,
		momentID, status,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

// UpdateRegistrationStatus sets the status and cancellation timestamp and
// returns the updated row.
func (p *Postgres) UpdateRegistrationStatus(ctx context.Context, id string, status model.RegistrationStatus, cancelledAt *time.Time) (*model.Registration, error) {
	reg, err := scanRegistration(p.q.QueryRow(ctx,
		`UPDATE registrations SET status = $2, cancelled_at = $3
		 WHERE id = $1
		 RETURNING `+registrationColumns,
		id, status, cancelledAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("update registration: %w", err)
	}
	return reg, nil
}

// ReactivateRegistration returns a cancelled row to the given active status,
// re-stamping registered_at so waitlist order reflects the re-join time.
func (p *Postgres) ReactivateRegistration(ctx context.Context, id string, status model.RegistrationStatus) (*model.Registration, error) {
	reg, err := scanRegistration(p.q.QueryRow(ctx,
		`UPDATE registrations SET status = $2, registered_at = $3, cancelled_at = NULL
		 WHERE id = $1
		 RETURNING `+registrationColumns,
		id, status, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("reactivate registration: %w", err)
	}
	return reg, nil
}

// FindFirstWaitlisted returns the earliest waitlisted row for the moment.
// The id tie-break makes promotion order deterministic when two users joined
// the waitlist in the same instant.
func (p *Postgres) FindFirstWaitlisted(ctx context.Context, momentID string) (*model.Registration, error) {
	reg, err := scanRegistration(p.q.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE moment_id = $1 AND status = $2
		 ORDER BY registered_at ASC, id ASC
		 LIMIT 1`,
		momentID, model.RegistrationWaitlisted))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find first waitlisted: %w", err)
	}
	return reg, nil
}

// FindFutureActiveByUserAndCircle returns the user's active rows on the
// circle's future moments.
func (p *Postgres) FindFutureActiveByUserAndCircle(ctx context.Context, userID, circleID string, now time.Time) ([]model.Registration, error) {
	rows, err := p.q.Query(ctx,
		`SELECT r.id, r.moment_id, r.user_id, r.status, r.registered_at, r.cancelled_at, r.checked_in_at
		 FROM registrations r
		 JOIN moments m ON m.id = r.moment_id
		 WHERE r.user_id = $1 AND m.circle_id = $2
		   AND r.status IN ($3, $4)
		   AND m.starts_at > $5
		 ORDER BY m.starts_at ASC`,
		userID, circleID, model.RegistrationRegistered, model.RegistrationWaitlisted, now,
	)
	if err != nil {
		return nil, fmt.Errorf("list future registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		var r model.Registration
		if err := rows.Scan(&r.ID, &r.MomentID, &r.UserID, &r.Status, &r.RegisteredAt, &r.CancelledAt, &r.CheckedInAt); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, r)
	}
	return regs, rows.Err()
}

// CreateCircle persists a new circle.
func (p *Postgres) CreateCircle(ctx context.Context, circle *model.Circle) error {
	_, err := p.q.Exec(ctx,
		`INSERT INTO circles (id, name, created_at) VALUES ($1, $2, $3)`,
		circle.ID, circle.Name, circle.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert circle: %w", err)
	}
	return nil
}

// CreateMoment persists a new moment.
func (p *Postgres) CreateMoment(ctx context.Context, moment *model.Moment) error {
	_, err := p.q.Exec(ctx,
		`INSERT INTO moments (`+momentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		moment.ID, moment.CircleID, moment.Title, moment.StartsAt, moment.EndsAt,
		moment.Capacity, moment.PriceCents, moment.Status, moment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert moment: %w", err)
	}
	return nil
}

// ListUpcomingMoments returns published moments starting after now.
func (p *Postgres) ListUpcomingMoments(ctx context.Context, now time.Time) ([]model.Moment, error) {
	rows, err := p.q.Query(ctx,
		`SELECT `+momentColumns+` FROM moments
		 WHERE status = $1 AND starts_at > $2
		 ORDER BY starts_at ASC`,
		model.MomentPublished, now,
	)
	if err != nil {
		return nil, fmt.Errorf("list moments: %w", err)
	}
	defer rows.Close()

	var moments []model.Moment
	for rows.Next() {
		var m model.Moment
		if err := rows.Scan(&m.ID, &m.CircleID, &m.Title, &m.StartsAt, &m.EndsAt, &m.Capacity, &m.PriceCents, &m.Status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan moment: %w", err)
		}
		moments = append(moments, m)
	}
	return moments, rows.Err()
}

// ListRegistrationsByMoment returns the moment's registrations in join order.
func (p *Postgres) ListRegistrationsByMoment(ctx context.Context, momentID string) ([]model.Registration, error) {
	rows, err := p.q.Query(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE moment_id = $1
		 ORDER BY registered_at ASC, id ASC`,
		momentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		var r model.Registration
		if err := rows.Scan(&r.ID, &r.MomentID, &r.UserID, &r.Status, &r.RegisteredAt, &r.CancelledAt, &r.CheckedInAt); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, r)
	}
	return regs, rows.Err()
}

// MarkPastMoments flips published moments whose end time has passed to PAST.
func (p *Postgres) MarkPastMoments(ctx context.Context, now time.Time) (int, error) {
	tag, err := p.q.Exec(ctx,
		`UPDATE moments SET status = $1 WHERE status = $2 AND ends_at < $3`,
		model.MomentPast, model.MomentPublished, now,
	)
	if err != nil {
		return 0, fmt.Errorf("mark past moments: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
