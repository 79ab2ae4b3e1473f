package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "tours.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord() entities.TourRecord {
	return entities.TourRecord{
		DeviceID:       "trk-logger",
		Start:          time.Date(2023, 8, 25, 7, 45, 4, 0, time.UTC),
		Duration:       time.Hour,
		DistanceMeters: 25000,
		Title:          "commute",
		SourceFile:     "/tmp/log.trk",
	}
}

func TestGivenSameRecordTwiceThenOneTourIsStored(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.Upsert(ctx, testRecord())
	require.NoError(t, err)
	second, err := s.Upsert(ctx, testRecord())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGivenChangedRecordThenValuesAreReplacedAndIDKept(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Upsert(ctx, testRecord())
	require.NoError(t, err)
	require.NoError(t, s.AssignTourType(ctx, id, "bike"))

	changed := testRecord()
	changed.DistanceMeters = 26000
	again, err := s.Upsert(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	stored, err := s.Get(ctx, changed.Key())
	require.NoError(t, err)
	assert.Equal(t, 26000.0, stored.Record.DistanceMeters)
	assert.Equal(t, entities.TourTypeID("bike"), stored.Record.TourTypeID)
	assert.Equal(t, Fingerprint(changed), stored.Fingerprint)
	assert.Equal(t, changed.Start, stored.Record.Start)
	assert.Equal(t, time.Hour, stored.Record.Duration)
}

func TestGivenDifferentStartThenTwoTours(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	other := testRecord()
	other.Start = other.Start.Add(time.Minute)
	_, err := s.Upsert(ctx, testRecord())
	require.NoError(t, err)
	_, err = s.Upsert(ctx, other)
	require.NoError(t, err)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestGivenUnknownIDOrKeyThenNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.AssignTourType(ctx, "missing", "run")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.Get(ctx, "nobody_0")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestHasReportsStoredKeys(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	has, err := s.Has(ctx, testRecord().Key())
	require.NoError(t, err)
	assert.False(t, has)

	_, err = s.Upsert(ctx, testRecord())
	require.NoError(t, err)
	has, err = s.Has(ctx, testRecord().Key())
	require.NoError(t, err)
	assert.True(t, has)
}

func TestFingerprintDependsOnContent(t *testing.T) {
	a := testRecord()
	b := testRecord()
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	b.SourceFile = "/elsewhere.trk"
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	b.Title = "evening"
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
	assert.Len(t, Fingerprint(a), 64)
}

func TestMigrateSkipsAppliedVersions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	calls := 0
	steps := []Migration{{
		Version:     3,
		Description: "noop",
		Up: func(tx *sql.Tx) error {
			calls++
			return nil
		},
	}}
	require.NoError(t, s.Migrate(ctx, steps))
	require.NoError(t, s.Migrate(ctx, steps))
	assert.Equal(t, 1, calls)
}

func TestMigrateFailureRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Migrate(ctx, []Migration{{
		Version:     4,
		Description: "broken",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec("CREATE TABLE half_done (id INTEGER)"); err != nil {
				return err
			}
			return errors.New("boom")
		},
	}})
	require.Error(t, err)

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name = 'half_done'").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestReopenKeepsTours(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tours.db")
	ctx := context.Background()

	s, err := Open(ctx, path, nil)
	require.NoError(t, err)
	id, err := s.Upsert(ctx, testRecord())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()
	stored, err := s.Get(ctx, testRecord().Key())
	require.NoError(t, err)
	assert.Equal(t, id, stored.ID)
}
