package tourimport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/device"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/device/csvtour"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/device/trklog"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/gateways/serial"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var firstStart = time.Date(2023, 8, 25, 7, 0, 0, 0, time.UTC)

type csvRow struct {
	start    time.Time
	seconds  int
	distance int
}

func csvContent(rows ...csvRow) string {
	var b strings.Builder
	b.WriteString("#tourimport-csv v1\nstart,duration_s,distance_m,title\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%s,%d,%d,tour\n", r.start.Format(time.RFC3339), r.seconds, r.distance)
	}
	return b.String()
}

func writeFile(t *testing.T, folder, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(folder, 0750))
	path := filepath.Join(folder, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

// memoryStore upserts by natural key like the SQLite store.
type memoryStore struct {
	mu      sync.Mutex
	ids     map[string]entities.TourID
	tours   map[entities.TourID]entities.TourRecord
	upserts int
	lookups int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{ids: map[string]entities.TourID{}, tours: map[entities.TourID]entities.TourRecord{}}
}

func (m *memoryStore) Upsert(ctx context.Context, record entities.TourRecord) (entities.TourID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	id, ok := m.ids[record.Key()]
	if !ok {
		id = entities.TourID(fmt.Sprintf("tour-%d", len(m.ids)+1))
		m.ids[record.Key()] = id
	} else {
		record.TourTypeID = m.tours[id].TourTypeID
	}
	m.tours[id] = record
	return id, nil
}

func (m *memoryStore) Has(ctx context.Context, naturalKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	_, ok := m.ids[naturalKey]
	return ok, nil
}

func (m *memoryStore) AssignTourType(ctx context.Context, id entities.TourID, tourType entities.TourTypeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tour := m.tours[id]
	tour.TourTypeID = tourType
	m.tours[id] = tour
	return nil
}

func (m *memoryStore) byKey(key string) (entities.TourRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.ids[key]
	return m.tours[id], ok
}

func (m *memoryStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ids)
}

type storeMock struct {
	mock.Mock
}

func (s *storeMock) Upsert(ctx context.Context, record entities.TourRecord) (entities.TourID, error) {
	args := s.Called(ctx, record)
	return args.Get(0).(entities.TourID), args.Error(1)
}

func (s *storeMock) Has(ctx context.Context, naturalKey string) (bool, error) {
	args := s.Called(ctx, naturalKey)
	return args.Bool(0), args.Error(1)
}

func (s *storeMock) AssignTourType(ctx context.Context, id entities.TourID, tourType entities.TourTypeID) error {
	args := s.Called(ctx, id, tourType)
	return args.Error(0)
}

type recordingObserver struct {
	mu      sync.Mutex
	states  []string
	results []entities.FileResult
	onFile  func(entities.FileResult)
}

func (o *recordingObserver) StateChanged(state string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func (o *recordingObserver) FileProcessed(result entities.FileResult) {
	o.mu.Lock()
	o.results = append(o.results, result)
	o.mu.Unlock()
	if o.onFile != nil {
		o.onFile(result)
	}
}

// devicePort serves data, then blocks until released and reports idle.
type devicePort struct {
	mu          sync.Mutex
	data        []byte
	blocked     chan struct{}
	blockedOnce sync.Once
	release     chan struct{}
	closed      bool
}

func newDevicePort(data []byte, blocking bool) *devicePort {
	port := &devicePort{data: data, blocked: make(chan struct{}), release: make(chan struct{})}
	if !blocking {
		close(port.release)
	}
	return port
}

func (d *devicePort) Read(p []byte) (int, error) {
	d.mu.Lock()
	if len(d.data) > 0 {
		n := copy(p, d.data)
		d.data = d.data[n:]
		d.mu.Unlock()
		return n, nil
	}
	d.mu.Unlock()
	d.blockedOnce.Do(func() { close(d.blocked) })
	<-d.release
	return 0, nil
}

func (d *devicePort) Write(p []byte) (int, error)          { return len(p), nil }
func (d *devicePort) SetReadTimeout(t time.Duration) error { return nil }

func (d *devicePort) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func transportFor(port serial.Port) *serial.Transport {
	return serial.NewTransportWithOpener(func(entities.SerialParameters) (serial.Port, error) {
		return port, nil
	}, nil)
}

func testRegistry() *device.Registry {
	return device.NewRegistry(device.StaticSource{csvtour.NewDriver(), trklog.NewDriver()}, nil)
}

type fixture struct {
	root        string
	source      string
	destination string
	backup      string
	store       *memoryStore
	configs     *entities.ConfigurationList
	observer    *recordingObserver
	guard       *Guard
	alloc       entities.IDAllocator
}

func newFixture(t *testing.T) *fixture {
	root := t.TempDir()
	return &fixture{
		root:        root,
		source:      filepath.Join(root, "device"),
		destination: filepath.Join(root, "tours"),
		backup:      filepath.Join(root, "backup"),
		store:       newMemoryStore(),
		configs:     entities.NewConfigurationList(),
		observer:    &recordingObserver{},
		guard:       NewGuard(),
		alloc:       entities.NewSequentialAllocator(0),
	}
}

func (f *fixture) options() Options {
	return Options{
		Registry:       testRegistry(),
		Store:          f.store,
		Configurations: f.configs,
		Observer:       f.observer,
		Guard:          f.guard,
		IdleTimeout:    50 * time.Millisecond,
		TempDir:        f.root,
	}
}

func (f *fixture) pipeline(t *testing.T, opts Options) *Pipeline {
	t.Helper()
	p, err := NewPipeline(opts)
	require.NoError(t, err)
	return p
}

func (f *fixture) config() *entities.ImportConfiguration {
	config := entities.NewImportConfiguration(f.alloc)
	config.Name = "watched"
	config.DeviceFolder = f.source
	config.DestinationFolder = f.destination
	f.configs.Add(config)
	return config
}
