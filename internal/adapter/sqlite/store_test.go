package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/locate-annotation-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deviceID = "0b8a7c1e-4d2f-4e6a-9b3c-5d7e9f1a2b3c"

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "annotations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testKey() domain.TableKey {
	return domain.TableKey{Preset: "distance", Precision: 3, BucketMinutes: 5, DeviceID: deviceID}
}

func testTable() []domain.EnrichedPoint {
	ts := time.Date(2024, time.March, 2, 14, 30, 0, 0, time.UTC)
	acc := 12.5
	return []domain.EnrichedPoint{
		{
			Point: domain.Point{
				ID: deviceID, Timestamp: ts, Latitude: 40.7128, Longitude: -74.006,
				SupplyID: "101", HorizontalAccuracy: &acc, IPAddress: "10.0.0.1",
				CreatedAt: ts.Add(time.Minute), DuplicateCount: 2,
			},
			Segment: 0,
			Label:   domain.LabelGood,
		},
		{
			Point: domain.Point{
				ID: deviceID, Timestamp: ts.Add(90 * time.Minute), Latitude: 41.8781, Longitude: -87.6298,
				SupplyID: "102",
			},
			HasPrev: true, MinutesSincePrev: 90, KmSincePrev: 1144.3,
			TimeJump: true, DistanceJump: true, SpeedFlag: true,
			Segment: 1,
			Label:   domain.LabelBad,
		},
		{
			Point: domain.Point{
				ID: deviceID, Timestamp: ts.Add(95 * time.Minute), Latitude: 41.8782, Longitude: -87.6299,
				SupplyID: "103",
			},
			HasPrev: true, MinutesSincePrev: 5, KmSincePrev: 0.014,
			ConflictFlag: true, SupplierFlag: true,
			Segment: 1,
		},
	}
}

func TestStore_TableRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTable(ctx, testKey(), testTable()))

	got, err := s.LoadTable(ctx, testKey())
	require.NoError(t, err)
	assert.Equal(t, testTable(), got)
}

func TestStore_UnsetLabelStaysUnset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTable(ctx, testKey(), testTable()))

	got, err := s.LoadTable(ctx, testKey())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, domain.LabelGood, got[0].Label)
	assert.Equal(t, domain.LabelBad, got[1].Label)
	assert.Equal(t, domain.LabelUnset, got[2].Label)
	assert.Nil(t, got[1].HorizontalAccuracy)
	assert.True(t, got[1].CreatedAt.IsZero())
}

func TestStore_SaveReplacesTable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTable(ctx, testKey(), testTable()))
	require.NoError(t, s.SaveTable(ctx, testKey(), testTable()[:1]))

	got, err := s.LoadTable(ctx, testKey())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_TablesAreKeyedByParameters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTable(ctx, testKey(), testTable()))

	other := testKey()
	other.Preset = "dwell"
	_, err := s.LoadTable(ctx, other)
	require.ErrorIs(t, err, domain.ErrNotFound)

	other = testKey()
	other.BucketMinutes = 10
	_, err = s.LoadTable(ctx, other)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_LoadMissingTable(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LoadTable(context.Background(), testKey())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_Sessions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	completed := time.Date(2024, time.March, 2, 15, 0, 0, 0, time.UTC)
	recs := []domain.SessionRecord{
		{DeviceID: deviceID, UserID: "ana", ElapsedSeconds: 312.5, LocateCount: 40, CompletedAt: completed},
		{DeviceID: deviceID, UserID: "bo", ElapsedSeconds: 60, LocateCount: 3, CompletedAt: completed.Add(time.Hour)},
	}
	for _, r := range recs {
		require.NoError(t, s.RecordSession(ctx, r))
	}

	got, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, recs, got)
}

func TestStore_ListSessionsEmpty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_Ping(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Ping(context.Background()))

	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}
