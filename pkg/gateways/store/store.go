// Package store persists imported tours in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("tour not found")

// StoredTour is a persisted tour with its store metadata.
type StoredTour struct {
	ID          entities.TourID
	Record      entities.TourRecord
	Fingerprint string
}

type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	log *logrus.Entry
}

// Open opens or creates the database at path and brings its schema up to date.
func Open(ctx context.Context, path string, log *logrus.Entry) (*SQLiteStore, error) {
	if log == nil {
		log = logging.Discard()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %q", path)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping sqlite %q", path)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "exec %q", p)
		}
	}

	s := &SQLiteStore{db: db, log: log}
	if err := s.Migrate(ctx, migrations()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert stores record under its natural key. A record seen before keeps its
// id and tour type; its measured values are replaced.
func (s *SQLiteStore) Upsert(ctx context.Context, record entities.TourRecord) (entities.TourID, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tours (id, natural_key, device_id, start_unix, duration_s, distance_m, title, source_file, tour_type_id, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(natural_key) DO UPDATE SET
			duration_s  = excluded.duration_s,
			distance_m  = excluded.distance_m,
			title       = excluded.title,
			source_file = excluded.source_file,
			fingerprint = excluded.fingerprint,
			updated_at  = CURRENT_TIMESTAMP
		RETURNING id`,
		uuid.NewString(),
		record.Key(),
		record.DeviceID,
		record.Start.Unix(),
		int64(record.Duration/time.Second),
		record.DistanceMeters,
		record.Title,
		record.SourceFile,
		string(record.TourTypeID),
		Fingerprint(record),
	).Scan(&id)
	if err != nil {
		return "", errors.Wrapf(err, "upsert tour %s", record.Key())
	}
	return entities.TourID(id), nil
}

// AssignTourType sets the tour type of a persisted tour.
func (s *SQLiteStore) AssignTourType(ctx context.Context, id entities.TourID, tourType entities.TourTypeID) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE tours SET tour_type_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		string(tourType), string(id),
	)
	if err != nil {
		return errors.Wrapf(err, "assign tour type to %s", id)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tours").Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count tours")
	}
	return count, nil
}

// Has reports whether a tour is stored under naturalKey.
func (s *SQLiteStore) Has(ctx context.Context, naturalKey string) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM tours WHERE natural_key = ?", naturalKey).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "look up tour %s", naturalKey)
	}
	return true, nil
}

// Get returns the tour stored under a natural key.
func (s *SQLiteStore) Get(ctx context.Context, naturalKey string) (StoredTour, error) {
	var (
		tour      StoredTour
		id        string
		startUnix int64
		duration  int64
		tourType  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, device_id, start_unix, duration_s, distance_m, title, source_file, tour_type_id, fingerprint
		FROM tours WHERE natural_key = ?`, naturalKey,
	).Scan(&id, &tour.Record.DeviceID, &startUnix, &duration, &tour.Record.DistanceMeters,
		&tour.Record.Title, &tour.Record.SourceFile, &tourType, &tour.Fingerprint)
	if err == sql.ErrNoRows {
		return StoredTour{}, errors.Wrapf(ErrNotFound, "key %s", naturalKey)
	}
	if err != nil {
		return StoredTour{}, errors.Wrapf(err, "get tour %s", naturalKey)
	}
	tour.ID = entities.TourID(id)
	tour.Record.Start = time.Unix(startUnix, 0).UTC()
	tour.Record.Duration = time.Duration(duration) * time.Second
	tour.Record.TourTypeID = entities.TourTypeID(tourType)
	return tour, nil
}

// Fingerprint hashes the measured content of a record.
func Fingerprint(record entities.TourRecord) string {
	h := blake3.New()
	h.WriteString(record.Key())
	h.WriteString("\x00")
	h.WriteString(strconv.FormatInt(int64(record.Duration/time.Second), 10))
	h.WriteString("\x00")
	h.WriteString(strconv.FormatFloat(record.DistanceMeters, 'g', -1, 64))
	h.WriteString("\x00")
	h.WriteString(record.Title)
	return hex.EncodeToString(h.Sum(nil))
}

func (s *SQLiteStore) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rollback failed: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}
