package device

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// StaticSource serves a fixed driver list for any category.
type StaticSource []Driver

func (s StaticSource) Enumerate(category string) ([]Driver, error) {
	return append([]Driver(nil), s...), nil
}

// Sources enumerates several sources in order. When two sources declare the
// same device id the earlier one wins. A failing source is logged and skipped;
// the result is an error only when every source fails.
type Sources struct {
	sources []Source
	log     *logrus.Entry
}

func NewSources(log *logrus.Entry, sources ...Source) *Sources {
	if log == nil {
		log = logging.Discard()
	}
	return &Sources{sources: sources, log: log}
}

func (s *Sources) Enumerate(category string) ([]Driver, error) {
	var (
		drivers  []Driver
		firstErr error
		failed   int
	)
	seen := make(map[string]bool)
	for _, source := range s.sources {
		found, err := source.Enumerate(category)
		if err != nil {
			s.log.WithError(err).Warn("skipping device source")
			if firstErr == nil {
				firstErr = err
			}
			failed++
			continue
		}
		for _, d := range found {
			id := d.Descriptor().ID
			if seen[id] {
				continue
			}
			seen[id] = true
			drivers = append(drivers, d)
		}
	}
	if failed > 0 && failed == len(s.sources) {
		return nil, firstErr
	}
	return drivers, nil
}

// Family builds a driver of one device family from a manifest descriptor.
type Family interface {
	Name() string
	NewDriver(descriptor entities.DeviceDescriptor) Driver
}

// Manifest is one driver description file.
type Manifest struct {
	Descriptor entities.DeviceDescriptor `yaml:"device"`
	Family     string                    `yaml:"family"`
	Category   string                    `yaml:"category"`
}

// ManifestSource loads every *.yaml/*.yml manifest from a directory and
// binds it to a known family. A missing directory yields no drivers. Broken
// manifests, unknown families and repeated ids are logged and skipped.
type ManifestSource struct {
	dir      string
	families map[string]Family
	log      *logrus.Entry
}

func NewManifestSource(dir string, log *logrus.Entry, families ...Family) *ManifestSource {
	if log == nil {
		log = logging.Discard()
	}
	byName := make(map[string]Family, len(families))
	for _, f := range families {
		byName[f.Name()] = f
	}
	return &ManifestSource{dir: dir, families: byName, log: log}
}

func (s *ManifestSource) Enumerate(category string) ([]Driver, error) {
	if _, err := os.Stat(s.dir); os.IsNotExist(err) {
		return nil, nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read driver directory %s", s.dir)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if !entry.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	drivers := make([]Driver, 0, len(names))
	seen := make(map[string]bool)
	for _, name := range names {
		log := s.log.WithField("manifest", name)
		manifest, err := s.loadManifest(filepath.Join(s.dir, name))
		if err != nil {
			log.WithError(err).Warn("skipping driver manifest")
			continue
		}
		if manifest.Category != "" && manifest.Category != category {
			continue
		}
		if seen[manifest.Descriptor.ID] {
			log.Warnf("skipping driver %q, declared twice", manifest.Descriptor.ID)
			continue
		}
		family, ok := s.families[manifest.Family]
		if !ok {
			log.Warnf("skipping driver %q, unknown family %q", manifest.Descriptor.ID, manifest.Family)
			continue
		}
		seen[manifest.Descriptor.ID] = true
		drivers = append(drivers, family.NewDriver(manifest.Descriptor))
	}
	return drivers, nil
}

func (s *ManifestSource) loadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, errors.Wrap(err, "read driver manifest")
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, errors.Wrapf(err, "parse driver manifest %s", path)
	}
	if manifest.Descriptor.ID == "" {
		return Manifest{}, errors.Errorf("driver manifest %s must have a device id", path)
	}
	return manifest, nil
}
