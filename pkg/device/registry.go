package device

import (
	"sync"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CategoryTourImport is the extension category enumerated for tour importers.
const CategoryTourImport = "tourimport.device"

// Source enumerates drivers registered for an extension category.
type Source interface {
	Enumerate(category string) ([]Driver, error)
}

// Registry caches the driver catalog for the life of the process.
// The catalog is built on first use; Refresh drops it.
type Registry struct {
	mu       sync.Mutex
	source   Source
	category string
	drivers  []Driver
	loaded   bool
	log      *logrus.Entry
}

func NewRegistry(source Source, log *logrus.Entry) *Registry {
	if log == nil {
		log = logging.Discard()
	}
	return &Registry{source: source, category: CategoryTourImport, log: log}
}

// ListFileImportDevices returns every driver able to decode files, in
// discovery order. Direct-read drivers decode their own downloads and are
// included.
func (r *Registry) ListFileImportDevices() []Driver {
	drivers := r.snapshot()
	result := make([]Driver, 0, len(drivers))
	for _, d := range drivers {
		if d.Descriptor().FileExtension != "" {
			result = append(result, d)
		}
	}
	return result
}

// ListDirectReadDevices returns the drivers that can be downloaded from directly.
func (r *Registry) ListDirectReadDevices() []*DirectReadDriver {
	drivers := r.snapshot()
	result := make([]*DirectReadDriver, 0, len(drivers))
	for _, d := range drivers {
		if direct, ok := AsDirectRead(d); ok {
			result = append(result, direct)
		}
	}
	return result
}

// Find returns the driver with the given device id.
func (r *Registry) Find(deviceID string) (Driver, bool) {
	for _, d := range r.snapshot() {
		if d.Descriptor().ID == deviceID {
			return d, true
		}
	}
	return nil, false
}

// DriverForFile returns the first file-import driver whose extension matches
// fileName and whose reader validates it.
func (r *Registry) DriverForFile(fileName string) (Driver, bool) {
	for _, d := range r.ListFileImportDevices() {
		if d.Descriptor().MatchesFile(fileName) && d.Reader().Validate(fileName) {
			return d, true
		}
	}
	return nil, false
}

// Refresh invalidates the cache; the next listing enumerates the source again.
func (r *Registry) Refresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers = nil
	r.loaded = false
}

func (r *Registry) snapshot() []Driver {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		drivers, err := r.enumerate()
		if err != nil {
			r.log.WithError(err).Warn("device source unavailable")
			return nil
		}
		r.drivers = drivers
		r.loaded = true
		r.log.WithField("count", len(drivers)).Debug("device catalog loaded")
	}
	return append([]Driver(nil), r.drivers...)
}

func (r *Registry) enumerate() (drivers []Driver, err error) {
	if r.source == nil {
		return nil, errors.New("no device source")
	}
	defer func() {
		if p := recover(); p != nil {
			drivers, err = nil, errors.Errorf("device source panicked: %v", p)
		}
	}()
	return r.source.Enumerate(r.category)
}
