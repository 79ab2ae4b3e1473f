package serial

import (
	"context"
	"io"
	"iter"
	"sync"
	"time"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/device"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrNoData reports a device that stayed silent for the whole idle timeout.
var ErrNoData = errors.New("device sent no data")

// Session is one open port. It is used by a single goroutine.
type Session struct {
	port           Port
	params         entities.SerialParameters
	startScanLimit int
	pending        []byte
	closeOnce      sync.Once
	closeErr       error
	log            *logrus.Entry
}

func (s *Session) Parameters() entities.SerialParameters {
	return s.params
}

// Recognize reads until the protocol's start sequence has been seen. The
// matched sequence and anything received after it are handed out first by
// ReadUntilIdle. A device that sends nothing yields ErrNoData. Silence after
// unmatched bytes, too many unmatched bytes or the end of the stream fail with
// entities.ErrUnrecognizedDevice.
func (s *Session) Recognize(ctx context.Context, protocol device.SerialProtocol, timeout time.Duration) error {
	size := protocol.StartSequenceSize()
	if size <= 0 {
		return nil
	}
	if err := s.port.SetReadTimeout(idleTimeout(timeout)); err != nil {
		return errors.Wrap(err, "set read timeout")
	}

	seq := make([]byte, 0, size)
	scanned := 0
	buf := make([]byte, readBufferSize)
	for scanned < s.startScanLimit {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.port.Read(buf)
		if n == 0 {
			if err != nil && err != io.EOF {
				return errors.Wrap(err, "read start sequence")
			}
			if scanned == 0 {
				return ErrNoData
			}
			return errors.Wrapf(entities.ErrUnrecognizedDevice, "no start sequence after %d bytes", scanned)
		}
		for i := 0; i < n; i++ {
			scanned++
			b := buf[i]
			switch {
			case protocol.CheckStartSequence(len(seq), b):
				seq = append(seq, b)
			case protocol.CheckStartSequence(0, b):
				seq = append(seq[:0], b)
			default:
				seq = seq[:0]
			}
			if len(seq) == size {
				s.pending = append(seq, buf[i+1:n]...)
				s.log.Debugf("start sequence recognized after %d bytes", scanned)
				return nil
			}
		}
	}
	return errors.Wrapf(entities.ErrUnrecognizedDevice, "no start sequence in first %d bytes", s.startScanLimit)
}

// ReadUntilIdle yields the received data chunk by chunk. The sequence ends when
// nothing arrives within timeout, the device closes the stream, or ctx is
// done. A non-positive timeout is replaced by DefaultIdleTimeout.
func (s *Session) ReadUntilIdle(ctx context.Context, timeout time.Duration) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if len(s.pending) > 0 {
			chunk := s.pending
			s.pending = nil
			if !yield(chunk, nil) {
				return
			}
		}
		if err := s.port.SetReadTimeout(idleTimeout(timeout)); err != nil {
			yield(nil, errors.Wrap(err, "set read timeout"))
			return
		}
		for {
			if ctx.Err() != nil {
				return
			}
			buf := make([]byte, readBufferSize)
			n, err := s.port.Read(buf)
			if n > 0 && !yield(buf[:n], nil) {
				return
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, errors.Wrap(err, "read"))
				return
			}
			if n == 0 {
				return
			}
		}
	}
}

// DrainTo copies everything ReadUntilIdle yields into w.
func (s *Session) DrainTo(ctx context.Context, w io.Writer, timeout time.Duration) (int64, error) {
	var total int64
	for chunk, err := range s.ReadUntilIdle(ctx, timeout) {
		if err != nil {
			return total, err
		}
		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *Session) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// Close releases the port. It may be called any number of times and on a nil
// session.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closeErr = s.port.Close()
		s.log.Debug("closed")
	})
	return s.closeErr
}

func idleTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultIdleTimeout
	}
	return timeout
}
