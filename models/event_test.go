package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventHeaderStatus(t *testing.T) {
	require := require.New(t)

	now := time.Unix(10_000, 0)
	h := EventHeader{StartTime: now.Unix() + 60, EndTime: now.Unix() + 3600}

	// Classification is pure: the same header reclassifies as the clock
	// moves, with no new ledger read.
	require.Equal(StatusUpcoming, h.Status(now))
	require.Equal(StatusOngoing, h.Status(now.Add(61*time.Second)))
	require.True(h.IsOngoing(now.Add(61 * time.Second)))
	require.Equal(StatusEnded, h.Status(now.Add(2*time.Hour)))

	// Window boundaries are inclusive.
	require.Equal(StatusOngoing, h.Status(time.Unix(h.StartTime, 0)))
	require.Equal(StatusOngoing, h.Status(time.Unix(h.EndTime, 0)))
}

func TestBucketEvents(t *testing.T) {
	require := require.New(t)

	now := time.Unix(50_000, 0)
	events := []IndexedEvent{
		{EventHeader: EventHeader{ID: 1, StartTime: now.Unix() - 10, EndTime: now.Unix() + 10}},
		{EventHeader: EventHeader{ID: 2, StartTime: now.Unix() + 100, EndTime: now.Unix() + 200}},
		{EventHeader: EventHeader{ID: 3, StartTime: now.Unix() - 200, EndTime: now.Unix() - 100}},
		{EventHeader: EventHeader{ID: 4, StartTime: now.Unix(), EndTime: now.Unix() + 5}},
	}

	b := BucketEvents(events, now)
	require.Len(b.Ongoing, 2)
	require.Len(b.Upcoming, 1)
	require.Len(b.Ended, 1)
	require.Equal(int64(1), b.Ongoing[0].ID)
	require.Equal(int64(4), b.Ongoing[1].ID)
	require.Equal(int64(2), b.Upcoming[0].ID)
	require.Equal(int64(3), b.Ended[0].ID)
}

func TestDeriveClaimState(t *testing.T) {
	require := require.New(t)

	require.True(DeriveClaimState(1, true, false).Claimed)
	require.False(DeriveClaimState(1, true, true).Claimed)
	require.False(DeriveClaimState(1, false, false).Claimed)
	require.False(DeriveClaimState(1, false, true).Claimed)
}
