package device

import "github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"

// RawDataReader is implemented per device family.
type RawDataReader interface {
	// Validate is a cheap structural check such as a magic header.
	Validate(fileName string) bool
	// Decode turns the file into tour records keyed by natural key. It only
	// reads the file so it may be retried. Errors wrap entities.ErrCorruptData
	// or entities.ErrUnsupportedVariant.
	Decode(fileName string, deviceData entities.DeviceData) (map[string]entities.TourRecord, error)
}

// SerialProtocol recognizes a device family from the first bytes it sends.
type SerialProtocol interface {
	StartSequenceSize() int
	CheckStartSequence(byteIndex int, b byte) bool
}

// Driver is either a *FileImportDriver or a *DirectReadDriver.
type Driver interface {
	Descriptor() entities.DeviceDescriptor
	Reader() RawDataReader
	sealed()
}

type FileImportDriver struct {
	descriptor entities.DeviceDescriptor
	reader     RawDataReader
}

func NewFileImportDriver(descriptor entities.DeviceDescriptor, reader RawDataReader) *FileImportDriver {
	descriptor.CanReadFromDevice = false
	return &FileImportDriver{descriptor: descriptor, reader: reader}
}

func (d *FileImportDriver) Descriptor() entities.DeviceDescriptor { return d.descriptor }
func (d *FileImportDriver) Reader() RawDataReader                 { return d.reader }
func (d *FileImportDriver) sealed()                               {}

type DirectReadDriver struct {
	descriptor entities.DeviceDescriptor
	reader     RawDataReader
	protocol   SerialProtocol
	defaults   entities.SerialParameters
}

func NewDirectReadDriver(descriptor entities.DeviceDescriptor, reader RawDataReader, protocol SerialProtocol, defaults entities.SerialParameters) *DirectReadDriver {
	descriptor.CanReadFromDevice = true
	return &DirectReadDriver{
		descriptor: descriptor,
		reader:     reader,
		protocol:   protocol,
		defaults:   defaults,
	}
}

func (d *DirectReadDriver) Descriptor() entities.DeviceDescriptor { return d.descriptor }
func (d *DirectReadDriver) Reader() RawDataReader                 { return d.reader }
func (d *DirectReadDriver) Protocol() SerialProtocol              { return d.protocol }
func (d *DirectReadDriver) sealed()                               {}

// DefaultParameters returns the driver's serial settings for portName.
func (d *DirectReadDriver) DefaultParameters(portName string) entities.SerialParameters {
	params := d.defaults
	params.PortName = portName
	return params
}

// AsDirectRead is the capability query for direct download.
func AsDirectRead(d Driver) (*DirectReadDriver, bool) {
	switch driver := d.(type) {
	case *DirectReadDriver:
		return driver, true
	case *FileImportDriver:
		return nil, false
	default:
		return nil, false
	}
}
