package serial

import (
	"io"
	"sync"
	"time"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
)

// fakePort hands out queued chunks, then reports idle (or EOF).
type fakePort struct {
	mu       sync.Mutex
	chunks   [][]byte
	eof      bool
	readErr  error
	timeouts []time.Duration
	written  []byte
	closes   int
}

func newFakePort(chunks ...string) *fakePort {
	port := &fakePort{}
	for _, c := range chunks {
		port.chunks = append(port.chunks, []byte(c))
	}
	return port
}

func (f *fakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.chunks) == 0 {
		if f.readErr != nil {
			return 0, f.readErr
		}
		if f.eof {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := copy(p, f.chunks[0])
	if n < len(f.chunks[0]) {
		f.chunks[0] = f.chunks[0][n:]
	} else {
		f.chunks = f.chunks[1:]
	}
	return n, nil
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakePort) SetReadTimeout(t time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeouts = append(f.timeouts, t)
	return nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func openerFor(port Port) Opener {
	return func(entities.SerialParameters) (Port, error) {
		return port, nil
	}
}

// trkProtocol expects "TRK".
type trkProtocol struct{}

func (trkProtocol) StartSequenceSize() int { return 3 }

func (trkProtocol) CheckStartSequence(i int, b byte) bool {
	return i >= 0 && i < 3 && "TRK"[i] == b
}
