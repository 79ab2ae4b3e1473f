package entities

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/zeebo/blake3"
)

// IDAllocator hands out creation ids for configurations.
type IDAllocator interface {
	Next() int64
	// Observe makes sure id is never handed out again.
	Observe(id int64)
}

// SequentialAllocator issues increasing ids starting after its seed.
type SequentialAllocator struct {
	last atomic.Int64
}

func NewSequentialAllocator(seed int64) *SequentialAllocator {
	a := &SequentialAllocator{}
	a.last.Store(seed)
	return a
}

func (a *SequentialAllocator) Next() int64 {
	return a.last.Add(1)
}

func (a *SequentialAllocator) Observe(id int64) {
	for {
		current := a.last.Load()
		if id <= current || a.last.CompareAndSwap(current, id) {
			return
		}
	}
}

type ClassificationMode string

const (
	ClassificationNotUsed       ClassificationMode = "notUsed"
	ClassificationOneTypeForAll ClassificationMode = "oneTypeForAll"
	ClassificationBySpeed       ClassificationMode = "bySpeed"
)

// SpeedVertex is one breakpoint of the speed classification table.
// AverageSpeed is in km/h and is the inclusive lower bound of its segment.
type SpeedVertex struct {
	AverageSpeed float64    `yaml:"avgSpeed"`
	TourTypeID   TourTypeID `yaml:"tourTypeId"`
}

const (
	tourTypeImageSize    = 16
	tourTypeImageSpacing = 2
)

// ImportConfiguration is a user defined import settings bundle.
//
// Identity is the creation id alone: two configurations with equal settings
// are still different entities. The speed table is kept sorted by threshold
// on every mutation; use the setters to change it.
type ImportConfiguration struct {
	createID int64

	Name                         string
	BackupFolder                 string
	DeviceFolder                 string
	DestinationFolder            string
	DeviceFileGlob               string
	IsCreateBackup               bool
	IsTurnOffWatchingAfterImport bool
	CollisionPolicy              CollisionPolicy

	mode          ClassificationMode
	oneTourType   TourTypeID
	speedVertices []SpeedVertex

	imageHash  uint64
	imageWidth int
}

// NewImportConfiguration creates an empty configuration with a fresh id.
func NewImportConfiguration(alloc IDAllocator) *ImportConfiguration {
	c := &ImportConfiguration{
		createID:        alloc.Next(),
		DeviceFileGlob:  "*",
		CollisionPolicy: PolicyRenameWithSuffix,
		mode:            ClassificationNotUsed,
	}
	c.updateImage()
	return c
}

func (c *ImportConfiguration) CreateID() int64 {
	return c.createID
}

// Equal compares creation ids only.
func (c *ImportConfiguration) Equal(other *ImportConfiguration) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.createID == other.createID
}

// Clone returns a copy with a new creation id. Scalars are copied by value,
// the speed table is copied element by element.
func (c *ImportConfiguration) Clone(alloc IDAllocator) *ImportConfiguration {
	clone := &ImportConfiguration{
		createID:                     alloc.Next(),
		Name:                         c.Name,
		BackupFolder:                 c.BackupFolder,
		DeviceFolder:                 c.DeviceFolder,
		DestinationFolder:            c.DestinationFolder,
		DeviceFileGlob:               c.DeviceFileGlob,
		IsCreateBackup:               c.IsCreateBackup,
		IsTurnOffWatchingAfterImport: c.IsTurnOffWatchingAfterImport,
		CollisionPolicy:              c.CollisionPolicy,
		mode:                         c.mode,
		oneTourType:                  c.oneTourType,
		speedVertices:                append([]SpeedVertex(nil), c.speedVertices...),
		imageHash:                    c.imageHash,
		imageWidth:                   c.imageWidth,
	}
	return clone
}

func (c *ImportConfiguration) Mode() ClassificationMode {
	return c.mode
}

func (c *ImportConfiguration) OneTourType() TourTypeID {
	return c.oneTourType
}

func (c *ImportConfiguration) SetOneTourType(id TourTypeID) {
	c.oneTourType = id
	c.updateImage()
}

// SetMode changes the classification mode and refreshes the display image.
func (c *ImportConfiguration) SetMode(mode ClassificationMode) {
	c.mode = mode
	c.updateImage()
}

// SpeedVertices returns a copy of the sorted speed table.
func (c *ImportConfiguration) SpeedVertices() []SpeedVertex {
	return append([]SpeedVertex(nil), c.speedVertices...)
}

// SetSpeedVertices replaces the table; the input is copied and sorted.
func (c *ImportConfiguration) SetSpeedVertices(vertices []SpeedVertex) {
	c.speedVertices = append([]SpeedVertex(nil), vertices...)
	c.sortVertices()
}

func (c *ImportConfiguration) AddSpeedVertex(vertex SpeedVertex) {
	c.speedVertices = append(c.speedVertices, vertex)
	c.sortVertices()
}

// UpdateSpeedVertex replaces the vertex at index and re-sorts. It reports
// false when index is out of range.
func (c *ImportConfiguration) UpdateSpeedVertex(index int, vertex SpeedVertex) bool {
	if index < 0 || index >= len(c.speedVertices) {
		return false
	}
	c.speedVertices[index] = vertex
	c.sortVertices()
	return true
}

func (c *ImportConfiguration) RemoveSpeedVertex(index int) bool {
	if index < 0 || index >= len(c.speedVertices) {
		return false
	}
	c.speedVertices = append(c.speedVertices[:index], c.speedVertices[index+1:]...)
	c.updateImage()
	return true
}

func (c *ImportConfiguration) sortVertices() {
	sort.SliceStable(c.speedVertices, func(i, j int) bool {
		return c.speedVertices[i].AverageSpeed < c.speedVertices[j].AverageSpeed
	})
	c.updateImage()
}

// ImageHash identifies the rendered tour type strip for this configuration.
func (c *ImportConfiguration) ImageHash() uint64 {
	return c.imageHash
}

// ImageWidth is the width in pixels of the rendered tour type strip.
func (c *ImportConfiguration) ImageWidth() int {
	return c.imageWidth
}

func (c *ImportConfiguration) updateImage() {
	hasher := blake3.New()
	hasher.Write([]byte(c.mode))
	hasher.Write([]byte{0})

	icons := 0
	switch c.mode {
	case ClassificationOneTypeForAll:
		hasher.Write([]byte(c.oneTourType))
		icons = 1
	case ClassificationBySpeed:
		var buf [8]byte
		for _, vertex := range c.speedVertices {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(vertex.AverageSpeed))
			hasher.Write(buf[:])
			hasher.Write([]byte(vertex.TourTypeID))
			hasher.Write([]byte{0})
		}
		icons = len(c.speedVertices)
	}

	sum := hasher.Sum(nil)
	c.imageHash = binary.LittleEndian.Uint64(sum[:8])
	if icons == 0 {
		c.imageWidth = 0
		return
	}
	c.imageWidth = icons*tourTypeImageSize + (icons-1)*tourTypeImageSpacing
}

// ConfigurationList holds the active configurations in user order.
type ConfigurationList struct {
	mu      sync.RWMutex
	configs []*ImportConfiguration
}

func NewConfigurationList(configs ...*ImportConfiguration) *ConfigurationList {
	return &ConfigurationList{configs: append([]*ImportConfiguration(nil), configs...)}
}

func (l *ConfigurationList) Add(config *ImportConfiguration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs = append(l.configs, config)
}

// Remove drops the configuration with the same creation id.
func (l *ConfigurationList) Remove(config *ImportConfiguration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, c := range l.configs {
		if c.Equal(config) {
			l.configs = append(l.configs[:i], l.configs[i+1:]...)
			return true
		}
	}
	return false
}

// Duplicate clones config, names the copy and appends it.
func (l *ConfigurationList) Duplicate(config *ImportConfiguration, alloc IDAllocator) *ImportConfiguration {
	clone := config.Clone(alloc)
	clone.Name = config.Name + " (copy)"
	l.Add(clone)
	return clone
}

func (l *ConfigurationList) All() []*ImportConfiguration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*ImportConfiguration(nil), l.configs...)
}

func (l *ConfigurationList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.configs)
}

// ForDestination returns the first configuration importing into folder.
func (l *ConfigurationList) ForDestination(folder string) *ImportConfiguration {
	return l.find(folder, func(c *ImportConfiguration) string { return c.DestinationFolder })
}

// ForDeviceFolder returns the first configuration watching folder.
func (l *ConfigurationList) ForDeviceFolder(folder string) *ImportConfiguration {
	return l.find(folder, func(c *ImportConfiguration) string { return c.DeviceFolder })
}

func (l *ConfigurationList) find(folder string, field func(*ImportConfiguration) string) *ImportConfiguration {
	if folder == "" {
		return nil
	}
	folder = filepath.Clean(folder)
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, c := range l.configs {
		if value := field(c); value != "" && filepath.Clean(value) == folder {
			return c
		}
	}
	return nil
}

// ImportConfigurationDocument is the persisted form of a configuration.
type ImportConfigurationDocument struct {
	CreateID                     int64              `yaml:"createId"`
	Name                         string             `yaml:"name"`
	BackupFolder                 string             `yaml:"backupFolder,omitempty"`
	DeviceFolder                 string             `yaml:"deviceFolder"`
	DestinationFolder            string             `yaml:"destinationFolder,omitempty"`
	DeviceFileGlob               string             `yaml:"deviceFileGlob"`
	IsCreateBackup               bool               `yaml:"isCreateBackup"`
	IsTurnOffWatchingAfterImport bool               `yaml:"isTurnOffWatchingAfterImport"`
	CollisionPolicy              CollisionPolicy    `yaml:"collisionPolicy,omitempty"`
	Mode                         ClassificationMode `yaml:"tourTypeConfig"`
	OneTourType                  TourTypeID         `yaml:"oneTourType,omitempty"`
	SpeedVertices                []SpeedVertex      `yaml:"speedVertices,omitempty"`
}

func (c *ImportConfiguration) Document() ImportConfigurationDocument {
	return ImportConfigurationDocument{
		CreateID:                     c.createID,
		Name:                         c.Name,
		BackupFolder:                 c.BackupFolder,
		DeviceFolder:                 c.DeviceFolder,
		DestinationFolder:            c.DestinationFolder,
		DeviceFileGlob:               c.DeviceFileGlob,
		IsCreateBackup:               c.IsCreateBackup,
		IsTurnOffWatchingAfterImport: c.IsTurnOffWatchingAfterImport,
		CollisionPolicy:              c.CollisionPolicy,
		Mode:                         c.mode,
		OneTourType:                  c.oneTourType,
		SpeedVertices:                c.SpeedVertices(),
	}
}

// FromDocument restores a configuration. A persisted id is kept and reported
// to alloc so later ids never collide with it; a missing id gets a fresh one.
func FromDocument(doc ImportConfigurationDocument, alloc IDAllocator) *ImportConfiguration {
	id := doc.CreateID
	if id > 0 {
		alloc.Observe(id)
	} else {
		id = alloc.Next()
	}
	c := &ImportConfiguration{
		createID:                     id,
		Name:                         doc.Name,
		BackupFolder:                 doc.BackupFolder,
		DeviceFolder:                 doc.DeviceFolder,
		DestinationFolder:            doc.DestinationFolder,
		DeviceFileGlob:               doc.DeviceFileGlob,
		IsCreateBackup:               doc.IsCreateBackup,
		IsTurnOffWatchingAfterImport: doc.IsTurnOffWatchingAfterImport,
		CollisionPolicy:              doc.CollisionPolicy,
		mode:                         doc.Mode,
		oneTourType:                  doc.OneTourType,
	}
	if c.CollisionPolicy == "" {
		c.CollisionPolicy = PolicyRenameWithSuffix
	}
	if c.mode == "" {
		c.mode = ClassificationNotUsed
	}
	if c.DeviceFileGlob == "" {
		c.DeviceFileGlob = "*"
	}
	c.SetSpeedVertices(doc.SpeedVertices)
	return c
}
