package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DragosDreptate/the-playground-sub002/internal/model"
	"github.com/DragosDreptate/the-playground-sub002/internal/service"

	"github.com/google/uuid"
)

// Memory implements service.Gateway and service.Catalog on plain maps. It
// backs the service and handler tests and is handy for running the server
// without a database.
//
// WithMomentLock uses a per-moment mutex, which gives the same serialisation
// guarantee as the Postgres row lock, and rolls back the moment's
// registrations and the circle's memberships when the critical section
// fails — the only state the engine writes under the lock.
type Memory struct {
	mu          sync.Mutex
	momentLocks map[string]*sync.Mutex

	circles       map[string]model.Circle
	moments       map[string]model.Moment
	registrations map[string]model.Registration
	regIDs        []string // insertion order, tie-break for equal timestamps
	memberships   map[string]model.CircleMembership
	follows       map[string]bool
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		momentLocks:   make(map[string]*sync.Mutex),
		circles:       make(map[string]model.Circle),
		moments:       make(map[string]model.Moment),
		registrations: make(map[string]model.Registration),
		memberships:   make(map[string]model.CircleMembership),
		follows:       make(map[string]bool),
	}
}

var _ service.Gateway = (*Memory)(nil)
var _ service.Catalog = (*Memory)(nil)

func pairKey(a, b string) string { return a + "\x00" + b }

// WithMomentLock serialises critical sections per moment with a dedicated
// mutex, mirroring the Postgres row lock. A failed fn restores the moment's
// registrations and the owning circle's memberships to their state at entry,
// so a partial admission never commits.
func (m *Memory) WithMomentLock(ctx context.Context, momentID string, fn func(service.Gateway) error) error {
	m.mu.Lock()
	moment, ok := m.moments[momentID]
	if !ok {
		m.mu.Unlock()
		return service.ErrMomentNotFound
	}
	lock, ok := m.momentLocks[momentID]
	if !ok {
		lock = &sync.Mutex{}
		m.momentLocks[momentID] = lock
	}
	circleID := moment.CircleID
	m.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	snap := m.snapshotMoment(momentID, circleID)
	if err := fn(m); err != nil {
		m.restoreMoment(momentID, circleID, snap)
		return err
	}
	return nil
}

// momentSnapshot captures the lock-scoped state: the moment's registrations
// (with their order) and the circle's memberships.
type momentSnapshot struct {
	regs        map[string]model.Registration
	order       []string
	memberships map[string]model.CircleMembership
}

func (m *Memory) snapshotMoment(momentID, circleID string) momentSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := momentSnapshot{
		regs:        make(map[string]model.Registration),
		memberships: make(map[string]model.CircleMembership),
	}
	for _, id := range m.regIDs {
		if reg := m.registrations[id]; reg.MomentID == momentID {
			snap.regs[id] = reg
			snap.order = append(snap.order, id)
		}
	}
	for key, membership := range m.memberships {
		if membership.CircleID == circleID {
			snap.memberships[key] = membership
		}
	}
	return snap
}

func (m *Memory) restoreMoment(momentID, circleID string, snap momentSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, reg := range m.registrations {
		if reg.MomentID == momentID {
			delete(m.registrations, id)
		}
	}
	for id, reg := range snap.regs {
		m.registrations[id] = reg
	}
	// Rebuild the order slice: drop ids created in the failed section, keep
	// other moments' entries, re-append this moment's in snapshot order.
	// Cross-moment interleaving is irrelevant; the tie-break only compares
	// rows of one moment.
	rebuilt := m.regIDs[:0]
	for _, id := range m.regIDs {
		reg, ok := m.registrations[id]
		if !ok || reg.MomentID == momentID {
			continue
		}
		rebuilt = append(rebuilt, id)
	}
	m.regIDs = append(rebuilt, snap.order...)

	for key, membership := range m.memberships {
		if membership.CircleID == circleID {
			delete(m.memberships, key)
		}
	}
	for key, membership := range snap.memberships {
		m.memberships[key] = membership
	}
}

// FindMomentByID returns a copy of the moment or service.ErrMomentNotFound.
func (m *Memory) FindMomentByID(ctx context.Context, id string) (*model.Moment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	moment, ok := m.moments[id]
	if !ok {
		return nil, service.ErrMomentNotFound
	}
	return &moment, nil
}

// FindMembership returns the membership row or (nil, nil) when absent.
func (m *Memory) FindMembership(ctx context.Context, circleID, userID string) (*model.CircleMembership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	membership, ok := m.memberships[pairKey(circleID, userID)]
	if !ok {
		return nil, nil
	}
	return &membership, nil
}

// AddMembership inserts a membership row, leaving an existing pair untouched.
func (m *Memory) AddMembership(ctx context.Context, circleID, userID string, role model.MembershipRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(circleID, userID)
	if _, ok := m.memberships[key]; ok {
		return nil
	}
	m.memberships[key] = model.CircleMembership{
		CircleID:  circleID,
		UserID:    userID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

// RemoveMembership deletes the membership row if present.
func (m *Memory) RemoveMembership(ctx context.Context, circleID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.memberships, pairKey(circleID, userID))
	return nil
}

// FollowCircle records a follow relationship. Not part of the gateway port;
// it exists so tests and dev setups can seed follows.
func (m *Memory) FollowCircle(ctx context.Context, userID, circleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.follows[pairKey(userID, circleID)] = true
	return nil
}

// UnfollowCircle removes a follow, reporting service.ErrNotFollowing when
// there was nothing to remove.
func (m *Memory) UnfollowCircle(ctx context.Context, userID, circleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(userID, circleID)
	if !m.follows[key] {
		return service.ErrNotFollowing
	}
	delete(m.follows, key)
	return nil
}

// CreateRegistration inserts a new registration row.
func (m *Memory) CreateRegistration(ctx context.Context, momentID, userID string, status model.RegistrationStatus) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg := model.Registration{
		ID:           uuid.New().String(),
		MomentID:     momentID,
		UserID:       userID,
		Status:       status,
		RegisteredAt: time.Now().UTC(),
	}
	m.registrations[reg.ID] = reg
	m.regIDs = append(m.regIDs, reg.ID)
	return &reg, nil
}

// FindRegistrationByID returns the registration or service.ErrRegistrationNotFound.
func (m *Memory) FindRegistrationByID(ctx context.Context, id string) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.registrations[id]
	if !ok {
		return nil, service.ErrRegistrationNotFound
	}
	return &reg, nil
}

// FindRegistrationByMomentAndUser returns the pair's row in any status, or
// (nil, nil) when the user never registered.
func (m *Memory) FindRegistrationByMomentAndUser(ctx context.Context, momentID, userID string) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.regIDs {
		reg := m.registrations[id]
		if reg.MomentID == momentID && reg.UserID == userID {
			return &reg, nil
		}
	}
	return nil, nil
}

// CountRegistrationsByStatus counts the moment's rows in the given status.
func (m *Memory) CountRegistrationsByStatus(ctx context.Context, momentID string, status model.RegistrationStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, reg := range m.registrations {
		if reg.MomentID == momentID && reg.Status == status {
			n++
		}
	}
	return n, nil
}

// UpdateRegistrationStatus sets the status and cancellation timestamp and
// returns the updated row.
func (m *Memory) UpdateRegistrationStatus(ctx context.Context, id string, status model.RegistrationStatus, cancelledAt *time.Time) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.registrations[id]
	if !ok {
		return nil, service.ErrRegistrationNotFound
	}
	reg.Status = status
	reg.CancelledAt = cancelledAt
	m.registrations[id] = reg
	return &reg, nil
}

// ReactivateRegistration returns a cancelled row to the given active status,
// re-stamping RegisteredAt. The row also moves to the back of the order
// slice so an equal-timestamp tie still reflects re-join order.
func (m *Memory) ReactivateRegistration(ctx context.Context, id string, status model.RegistrationStatus) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.registrations[id]
	if !ok {
		return nil, service.ErrRegistrationNotFound
	}
	reg.Status = status
	reg.CancelledAt = nil
	reg.RegisteredAt = time.Now().UTC()
	m.registrations[id] = reg
	for i, rid := range m.regIDs {
		if rid == id {
			m.regIDs = append(m.regIDs[:i], m.regIDs[i+1:]...)
			break
		}
	}
	m.regIDs = append(m.regIDs, id)
	return &reg, nil
}

// FindFirstWaitlisted returns the earliest waitlisted row for the moment.
// Insertion order stands in for the id tie-break on equal timestamps.
func (m *Memory) FindFirstWaitlisted(ctx context.Context, momentID string) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *model.Registration
	for _, id := range m.regIDs {
		reg := m.registrations[id]
		if reg.MomentID != momentID || reg.Status != model.RegistrationWaitlisted {
			continue
		}
		if best == nil || reg.RegisteredAt.Before(best.RegisteredAt) {
			r := reg
			best = &r
		}
	}
	return best, nil
}

// FindFutureActiveByUserAndCircle returns the user's active rows on the
// circle's future moments.
func (m *Memory) FindFutureActiveByUserAndCircle(ctx context.Context, userID, circleID string, now time.Time) ([]model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var regs []model.Registration
	for _, id := range m.regIDs {
		reg := m.registrations[id]
		if reg.UserID != userID || reg.Status == model.RegistrationCancelled || reg.Status == model.RegistrationCheckedIn {
			continue
		}
		moment, ok := m.moments[reg.MomentID]
		if !ok || moment.CircleID != circleID || !moment.StartsAt.After(now) {
			continue
		}
		regs = append(regs, reg)
	}
	return regs, nil
}

// CreateCircle persists a new circle.
func (m *Memory) CreateCircle(ctx context.Context, circle *model.Circle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.circles[circle.ID] = *circle
	return nil
}

// CreateMoment persists a new moment.
func (m *Memory) CreateMoment(ctx context.Context, moment *model.Moment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moments[moment.ID] = *moment
	return nil
}

// ListUpcomingMoments returns published moments starting after now.
func (m *Memory) ListUpcomingMoments(ctx context.Context, now time.Time) ([]model.Moment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var moments []model.Moment
	for _, moment := range m.moments {
		if moment.Status == model.MomentPublished && moment.StartsAt.After(now) {
			moments = append(moments, moment)
		}
	}
	sort.Slice(moments, func(i, j int) bool { return moments[i].StartsAt.Before(moments[j].StartsAt) })
	return moments, nil
}

// ListRegistrationsByMoment returns the moment's registrations in join order.
func (m *Memory) ListRegistrationsByMoment(ctx context.Context, momentID string) ([]model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var regs []model.Registration
	for _, id := range m.regIDs {
		reg := m.registrations[id]
		if reg.MomentID == momentID {
			regs = append(regs, reg)
		}
	}
	return regs, nil
}

// MarkPastMoments flips published moments whose end time has passed to PAST.
func (m *Memory) MarkPastMoments(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, moment := range m.moments {
		if moment.Status == model.MomentPublished && moment.EndsAt.Before(now) {
			moment.Status = model.MomentPast
			m.moments[id] = moment
			n++
		}
	}
	return n, nil
}
