package device

import (
	"strings"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
	"github.com/stretchr/testify/mock"
)

type readerMock struct {
	mock.Mock
}

func (r *readerMock) Validate(fileName string) bool {
	args := r.Called(fileName)
	return args.Bool(0)
}

func (r *readerMock) Decode(fileName string, deviceData entities.DeviceData) (map[string]entities.TourRecord, error) {
	args := r.Called(fileName, deviceData)
	records, _ := args.Get(0).(map[string]entities.TourRecord)
	return records, args.Error(1)
}

type sourceMock struct {
	mock.Mock
}

func (s *sourceMock) Enumerate(category string) ([]Driver, error) {
	args := s.Called(category)
	drivers, _ := args.Get(0).([]Driver)
	return drivers, args.Error(1)
}

type prefixProtocol string

func (p prefixProtocol) StartSequenceSize() int { return len(p) }

func (p prefixProtocol) CheckStartSequence(byteIndex int, b byte) bool {
	return byteIndex < len(p) && p[byteIndex] == b
}

type testFamily struct {
	name   string
	direct bool
}

func (f testFamily) Name() string { return f.name }

func (f testFamily) NewDriver(descriptor entities.DeviceDescriptor) Driver {
	reader := &readerMock{}
	if f.direct {
		return NewDirectReadDriver(descriptor, reader, prefixProtocol(strings.ToUpper(f.name)), entities.DefaultSerialParameters(""))
	}
	return NewFileImportDriver(descriptor, reader)
}
