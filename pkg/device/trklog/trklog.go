// Package trklog reads the binary logs that TRK loggers send over their
// serial link or leave on their storage.
//
// Layout: the bytes "TRK", one version byte, then the payload. Version 1
// stores fixed 12 byte little-endian records (start unix seconds, duration
// seconds, distance meters, all uint32). Version 2 stores one CBOR document.
package trklog

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/device"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
	"github.com/pkg/errors"
)

const (
	FamilyName = "trklog"
	Extension  = "trk"

	VersionFixed byte = 1
	VersionCBOR  byte = 2

	recordSize = 12
	headerSize = 4
)

var magic = []byte("TRK")

type cborLog struct {
	Device string     `cbor:"device"`
	Tours  []cborTour `cbor:"tours"`
}

type cborTour struct {
	Start    int64   `cbor:"start"`
	Duration uint32  `cbor:"duration"`
	Distance float64 `cbor:"distance"`
	Title    string  `cbor:"title,omitempty"`
}

// Reader decodes trklog files for one device id.
type Reader struct {
	DeviceID string
}

func (r Reader) Validate(fileName string) bool {
	head, err := device.PeekContent(fileName, headerSize)
	if err != nil || len(head) < headerSize {
		return false
	}
	return bytes.Equal(head[:len(magic)], magic)
}

func (r Reader) Decode(fileName string, deviceData entities.DeviceData) (map[string]entities.TourRecord, error) {
	content, err := device.ReadContent(fileName)
	if err != nil {
		return nil, errors.Wrapf(entities.ErrCorruptData, "read %s: %v", fileName, err)
	}
	if len(content) < headerSize || !bytes.Equal(content[:len(magic)], magic) {
		return nil, errors.Wrapf(entities.ErrCorruptData, "%s: missing TRK header", fileName)
	}

	deviceID := r.DeviceID
	if deviceData.DeviceID != "" {
		deviceID = deviceData.DeviceID
	}

	var tours []entities.TourRecord
	payload := content[headerSize:]
	switch version := content[len(magic)]; version {
	case VersionFixed:
		tours, err = decodeFixed(payload)
	case VersionCBOR:
		tours, deviceID, err = decodeCBOR(payload, deviceID)
	default:
		return nil, errors.Wrapf(entities.ErrUnsupportedVariant, "%s: trklog version %d", fileName, version)
	}
	if err != nil {
		return nil, errors.Wrap(err, fileName)
	}

	records := make(map[string]entities.TourRecord, len(tours))
	for _, tour := range tours {
		tour.DeviceID = deviceID
		tour.SourceFile = fileName
		records[tour.Key()] = tour
	}
	return records, nil
}

func decodeFixed(payload []byte) ([]entities.TourRecord, error) {
	if len(payload)%recordSize != 0 {
		return nil, errors.Wrapf(entities.ErrCorruptData, "payload of %d bytes is not a multiple of %d", len(payload), recordSize)
	}
	tours := make([]entities.TourRecord, 0, len(payload)/recordSize)
	for offset := 0; offset < len(payload); offset += recordSize {
		record := payload[offset : offset+recordSize]
		tours = append(tours, entities.TourRecord{
			Start:          time.Unix(int64(binary.LittleEndian.Uint32(record[0:4])), 0).UTC(),
			Duration:       time.Duration(binary.LittleEndian.Uint32(record[4:8])) * time.Second,
			DistanceMeters: float64(binary.LittleEndian.Uint32(record[8:12])),
		})
	}
	return tours, nil
}

func decodeCBOR(payload []byte, deviceID string) ([]entities.TourRecord, string, error) {
	var log cborLog
	if err := cbor.Unmarshal(payload, &log); err != nil {
		return nil, "", errors.Wrapf(entities.ErrCorruptData, "cbor payload: %v", err)
	}
	if log.Device != "" {
		deviceID = log.Device
	}
	tours := make([]entities.TourRecord, 0, len(log.Tours))
	for _, t := range log.Tours {
		if math.IsNaN(t.Distance) || math.IsInf(t.Distance, 0) || t.Distance < 0 {
			return nil, "", errors.Wrapf(entities.ErrCorruptData, "invalid distance %v at %d", t.Distance, t.Start)
		}
		tours = append(tours, entities.TourRecord{
			Start:          time.Unix(t.Start, 0).UTC(),
			Duration:       time.Duration(t.Duration) * time.Second,
			DistanceMeters: t.Distance,
			Title:          t.Title,
		})
	}
	return tours, deviceID, nil
}

// EncodeFixed writes tours in the version 1 layout.
func EncodeFixed(tours []entities.TourRecord) []byte {
	buf := make([]byte, 0, headerSize+len(tours)*recordSize)
	buf = append(buf, magic...)
	buf = append(buf, VersionFixed)
	var record [recordSize]byte
	for _, t := range tours {
		binary.LittleEndian.PutUint32(record[0:4], uint32(t.Start.Unix()))
		binary.LittleEndian.PutUint32(record[4:8], uint32(t.Duration/time.Second))
		binary.LittleEndian.PutUint32(record[8:12], uint32(t.DistanceMeters))
		buf = append(buf, record[:]...)
	}
	return buf
}

// EncodeCBOR writes tours in the version 2 layout.
func EncodeCBOR(deviceID string, tours []entities.TourRecord) ([]byte, error) {
	log := cborLog{Device: deviceID}
	for _, t := range tours {
		log.Tours = append(log.Tours, cborTour{
			Start:    t.Start.Unix(),
			Duration: uint32(t.Duration / time.Second),
			Distance: t.DistanceMeters,
			Title:    t.Title,
		})
	}
	payload, err := cbor.Marshal(log)
	if err != nil {
		return nil, err
	}
	return append(append(append([]byte(nil), magic...), VersionCBOR), payload...), nil
}

// Protocol recognizes a TRK logger by the magic it sends first.
type Protocol struct{}

func (Protocol) StartSequenceSize() int { return len(magic) }

func (Protocol) CheckStartSequence(byteIndex int, b byte) bool {
	return byteIndex >= 0 && byteIndex < len(magic) && magic[byteIndex] == b
}

// SerialDefaults are the logger's factory link settings.
func SerialDefaults() entities.SerialParameters {
	params := entities.DefaultSerialParameters("")
	params.BaudRate = 57600
	return params
}

// Family builds direct-read drivers for trklog manifests.
type Family struct{}

func (Family) Name() string { return FamilyName }

func (Family) NewDriver(descriptor entities.DeviceDescriptor) device.Driver {
	if descriptor.FileExtension == "" {
		descriptor.FileExtension = Extension
	}
	return device.NewDirectReadDriver(descriptor, Reader{DeviceID: descriptor.ID}, Protocol{}, SerialDefaults())
}

// NewDriver returns the built-in TRK logger driver.
func NewDriver() *device.DirectReadDriver {
	driver, _ := device.AsDirectRead(Family{}.NewDriver(entities.DeviceDescriptor{
		ID:          "trk-logger",
		VisibleName: "TRK logger",
	}))
	return driver
}
