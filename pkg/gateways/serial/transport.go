package serial

import (
	"time"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bugserial "go.bug.st/serial"
)

const (
	DefaultIdleTimeout = 2 * time.Second
	// DefaultStartScanLimit bounds how many bytes are inspected while
	// looking for a driver's start sequence.
	DefaultStartScanLimit = 4096
	readBufferSize        = 1024
)

// Port is the part of an open serial port a session needs.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Opener opens a port with the given parameters.
type Opener func(params entities.SerialParameters) (Port, error)

type Transport struct {
	open           Opener
	startScanLimit int
	log            *logrus.Entry
}

func NewTransport(log *logrus.Entry) *Transport {
	return NewTransportWithOpener(OpenSystemPort, log)
}

func NewTransportWithOpener(open Opener, log *logrus.Entry) *Transport {
	if log == nil {
		log = logging.Discard()
	}
	return &Transport{open: open, startScanLimit: DefaultStartScanLimit, log: log}
}

// Open starts a session on params.PortName. Any failure to obtain the port
// is reported as entities.ErrPortUnavailable.
func (t *Transport) Open(params entities.SerialParameters) (*Session, error) {
	if params.PortName == "" {
		return nil, errors.Wrap(entities.ErrPortUnavailable, "no port name")
	}
	port, err := t.open(params)
	if err != nil {
		t.log.WithField("port", params.PortName).Errorf("open failed: %v", err)
		return nil, errors.Wrapf(entities.ErrPortUnavailable, "%s: %v", params.PortName, err)
	}
	t.log.WithField("port", params.PortName).Debugf("opened at %d baud", params.BaudRate)
	return &Session{
		port:           port,
		params:         params,
		startScanLimit: t.startScanLimit,
		log:            t.log.WithField("port", params.PortName),
	}, nil
}

// OpenSystemPort opens an operating system port through go.bug.st/serial.
func OpenSystemPort(params entities.SerialParameters) (Port, error) {
	mode, err := ModeFor(params)
	if err != nil {
		return nil, err
	}
	port, err := bugserial.Open(params.PortName, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// ModeFor translates SerialParameters into a port mode. Data bits default to
// 8. RTS/CTS flow control asserts RTS and DTR when the port opens; XON/XOFF
// is not available from the port driver and is rejected.
func ModeFor(params entities.SerialParameters) (*bugserial.Mode, error) {
	mode := &bugserial.Mode{
		BaudRate: params.BaudRate,
		DataBits: params.DataBits,
	}
	if mode.BaudRate <= 0 {
		return nil, errors.Errorf("invalid baud rate %d", params.BaudRate)
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	if mode.DataBits < 5 || mode.DataBits > 8 {
		return nil, errors.Errorf("invalid data bits %d", params.DataBits)
	}

	switch params.Parity {
	case entities.ParityNone, "":
		mode.Parity = bugserial.NoParity
	case entities.ParityOdd:
		mode.Parity = bugserial.OddParity
	case entities.ParityEven:
		mode.Parity = bugserial.EvenParity
	case entities.ParityMark:
		mode.Parity = bugserial.MarkParity
	case entities.ParitySpace:
		mode.Parity = bugserial.SpaceParity
	default:
		return nil, errors.Errorf("unknown parity %q", params.Parity)
	}

	switch params.StopBits {
	case entities.StopBitsOne, "":
		mode.StopBits = bugserial.OneStopBit
	case entities.StopBitsOneAndHalf:
		mode.StopBits = bugserial.OnePointFiveStopBits
	case entities.StopBitsTwo:
		mode.StopBits = bugserial.TwoStopBits
	default:
		return nil, errors.Errorf("unknown stop bits %q", params.StopBits)
	}

	for _, flow := range []entities.FlowControl{params.FlowControlIn, params.FlowControlOut} {
		switch flow {
		case entities.FlowControlNone, "":
		case entities.FlowControlRTSCTS:
			mode.InitialStatusBits = &bugserial.ModemOutputBits{RTS: true, DTR: true}
		default:
			return nil, errors.Errorf("flow control %q is not supported", flow)
		}
	}
	return mode, nil
}
