package entities

import "strings"

// DeviceDescriptor identifies a device driver and what it can do.
type DeviceDescriptor struct {
	ID                string `yaml:"id"`
	VisibleName       string `yaml:"name"`
	FileExtension     string `yaml:"extension"`
	CanReadFromDevice bool   `yaml:"-"`
}

// MatchesFile reports whether fileName carries the descriptor's extension.
// A descriptor without extension matches nothing. The comparison ignores case
// and a trailing ".zst" compression suffix.
func (d DeviceDescriptor) MatchesFile(fileName string) bool {
	if d.FileExtension == "" {
		return false
	}
	name := strings.ToLower(fileName)
	name = strings.TrimSuffix(name, ".zst")
	ext := strings.ToLower(strings.TrimPrefix(d.FileExtension, "*"))
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.HasSuffix(name, ext)
}

type Parity string

const (
	ParityNone  Parity = "none"
	ParityOdd   Parity = "odd"
	ParityEven  Parity = "even"
	ParityMark  Parity = "mark"
	ParitySpace Parity = "space"
)

type StopBits string

const (
	StopBitsOne        StopBits = "1"
	StopBitsOneAndHalf StopBits = "1.5"
	StopBitsTwo        StopBits = "2"
)

type FlowControl string

const (
	FlowControlNone    FlowControl = "none"
	FlowControlRTSCTS  FlowControl = "rtscts"
	FlowControlXONXOFF FlowControl = "xonxoff"
)

// SerialParameters configures one transport session.
type SerialParameters struct {
	PortName       string      `yaml:"port"`
	BaudRate       int         `yaml:"baudRate"`
	FlowControlIn  FlowControl `yaml:"flowControlIn"`
	FlowControlOut FlowControl `yaml:"flowControlOut"`
	DataBits       int         `yaml:"dataBits"`
	StopBits       StopBits    `yaml:"stopBits"`
	Parity         Parity      `yaml:"parity"`
}

// DefaultSerialParameters returns 9600 8N1 without flow control.
func DefaultSerialParameters(portName string) SerialParameters {
	return SerialParameters{
		PortName:       portName,
		BaudRate:       9600,
		FlowControlIn:  FlowControlNone,
		FlowControlOut: FlowControlNone,
		DataBits:       8,
		StopBits:       StopBitsOne,
		Parity:         ParityNone,
	}
}
