package entities

import (
	"os"
	"path/filepath"
	"time"
)

// OSFile is a file candidate for import.
//
// Two OSFiles are the same file when their names match, whatever folder they
// live in. Deduplication across source folders relies on this, so a file
// named like one already queued from another folder is dropped.
type OSFile struct {
	Path               string
	Name               string
	Size               int64
	ModTime            time.Time
	IsBackupImportFile bool
}

// NewOSFile stats path and fills in name, size and modification time.
func NewOSFile(path string) (OSFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return OSFile{}, err
	}
	return OSFile{
		Path:    path,
		Name:    filepath.Base(path),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Key is the identity used for equality and hashing: the file name.
func (f OSFile) Key() string {
	return f.Name
}

func (f OSFile) Equal(other OSFile) bool {
	return f.Name == other.Name
}

// Folder returns the directory holding the file.
func (f OSFile) Folder() string {
	return filepath.Dir(f.Path)
}

// OSFileSet keeps the first file seen for every name.
type OSFileSet struct {
	order []OSFile
	index map[string]int
}

func NewOSFileSet() *OSFileSet {
	return &OSFileSet{index: make(map[string]int)}
}

// Add inserts f and reports false when a file with the same name is already present.
func (s *OSFileSet) Add(f OSFile) bool {
	if _, ok := s.index[f.Key()]; ok {
		return false
	}
	s.index[f.Key()] = len(s.order)
	s.order = append(s.order, f)
	return true
}

func (s *OSFileSet) Contains(f OSFile) bool {
	_, ok := s.index[f.Key()]
	return ok
}

func (s *OSFileSet) Len() int {
	return len(s.order)
}

// Files returns the files in insertion order.
func (s *OSFileSet) Files() []OSFile {
	files := make([]OSFile, len(s.order))
	copy(files, s.order)
	return files
}
