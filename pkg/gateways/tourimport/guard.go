package tourimport

import (
	"path/filepath"
	"sync"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
	"github.com/pkg/errors"
)

// Guard allows at most one run per destination folder. Pipelines built without
// an explicit guard share DefaultGuard.
type Guard struct {
	mu      sync.Mutex
	running map[string]struct{}
}

var DefaultGuard = NewGuard()

func NewGuard() *Guard {
	return &Guard{running: make(map[string]struct{})}
}

// acquire marks folder busy, or fails with entities.ErrImportAlreadyRunning.
// The returned function releases it.
func (g *Guard) acquire(folder string) (func(), error) {
	key := filepath.Clean(folder)
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.running[key]; busy {
		return nil, errors.Wrapf(entities.ErrImportAlreadyRunning, "destination %s", key)
	}
	g.running[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.running, key)
			g.mu.Unlock()
		})
	}, nil
}

// Running reports whether an import into folder is in progress.
func (g *Guard) Running(folder string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.running[filepath.Clean(folder)]
	return busy
}
