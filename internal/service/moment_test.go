package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/DragosDreptate/the-playground-sub002/internal/model"
	"github.com/DragosDreptate/the-playground-sub002/internal/service"

	"github.com/stretchr/testify/require"
)

func validMomentRequest(circleID string) model.CreateMomentRequest {
	now := time.Now().UTC()
	return model.CreateMomentRequest{
		CircleID: circleID,
		Title:    "friday football",
		StartsAt: now.Add(48 * time.Hour),
		EndsAt:   now.Add(50 * time.Hour),
		Capacity: intptr(10),
	}
}

func TestCreateMoment_HostOnly(t *testing.T) {
	f := newFixture(t)
	f.seedCircle(t, "c1")
	require.NoError(t, f.store.AddMembership(context.Background(), "c1", "hank", model.RoleHost))
	require.NoError(t, f.store.AddMembership(context.Background(), "c1", "paula", model.RolePlayer))

	moment, err := f.moments.Create(context.Background(), "hank", validMomentRequest("c1"))
	require.NoError(t, err)
	require.Equal(t, model.MomentPublished, moment.Status)

	_, err = f.moments.Create(context.Background(), "paula", validMomentRequest("c1"))
	require.ErrorIs(t, err, service.ErrNotHost)

	_, err = f.moments.Create(context.Background(), "stranger", validMomentRequest("c1"))
	require.ErrorIs(t, err, service.ErrNotMember)
}

func TestCreateMoment_RejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	f.seedCircle(t, "c1")
	require.NoError(t, f.store.AddMembership(context.Background(), "c1", "hank", model.RoleHost))

	past := validMomentRequest("c1")
	past.StartsAt = time.Now().UTC().Add(-time.Hour)
	_, err := f.moments.Create(context.Background(), "hank", past)
	require.Error(t, err)

	inverted := validMomentRequest("c1")
	inverted.EndsAt = inverted.StartsAt.Add(-time.Minute)
	_, err = f.moments.Create(context.Background(), "hank", inverted)
	require.Error(t, err)
}

func TestListUpcoming_SkipsUnjoinableMoments(t *testing.T) {
	f := newFixture(t)
	f.seedCircle(t, "c1")
	upcoming := f.seedMoment(t, "c1", nil, nil)
	f.seedMoment(t, "c1", nil, func(m *model.Moment) { m.Status = model.MomentCancelled })
	f.seedMoment(t, "c1", nil, func(m *model.Moment) {
		m.StartsAt = time.Now().UTC().Add(-2 * time.Hour)
	})

	moments, err := f.moments.ListUpcoming(context.Background())
	require.NoError(t, err)
	require.Len(t, moments, 1)
	require.Equal(t, upcoming, moments[0].ID)
}

func TestRoster_HostOnly(t *testing.T) {
	f := newFixture(t)
	f.seedCircle(t, "c1")
	momentID := f.seedMoment(t, "c1", nil, nil)
	require.NoError(t, f.store.AddMembership(context.Background(), "c1", "hank", model.RoleHost))

	_, err := f.registrations.JoinMoment(context.Background(), momentID, "alice")
	require.NoError(t, err)
	_, err = f.registrations.JoinMoment(context.Background(), momentID, "bob")
	require.NoError(t, err)

	regs, err := f.moments.Roster(context.Background(), momentID, "hank")
	require.NoError(t, err)
	require.Len(t, regs, 2)
	require.Equal(t, "alice", regs[0].UserID, "roster keeps join order")

	_, err = f.moments.Roster(context.Background(), momentID, "alice")
	require.ErrorIs(t, err, service.ErrNotHost)
}
