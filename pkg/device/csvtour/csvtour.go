// Package csvtour reads tours exported as text files.
//
// A file starts with the signature line "#tourimport-csv v<N>". Further "#"
// lines are directives ("#charset windows-1252", "#device <id>"). The first
// other line is the column header, followed by one tour per row:
// start (RFC 3339), duration in seconds, distance in meters, title.
package csvtour

import (
	"bytes"
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/device"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const (
	FamilyName      = "csvtour"
	signaturePrefix = "#tourimport-csv v"
	supportedFormat = 1
	columns         = 4
)

var header = []string{"start", "duration_s", "distance_m", "title"}

// Reader decodes csvtour files. Records without a "#device" directive are
// attributed to DeviceID.
type Reader struct {
	DeviceID string
}

func (r Reader) Validate(fileName string) bool {
	head, err := device.PeekContent(fileName, len(signaturePrefix)+1)
	if err != nil {
		return false
	}
	return bytes.HasPrefix(head, []byte(signaturePrefix))
}

func (r Reader) Decode(fileName string, deviceData entities.DeviceData) (map[string]entities.TourRecord, error) {
	content, err := device.ReadContent(fileName)
	if err != nil {
		return nil, errors.Wrapf(entities.ErrCorruptData, "read %s: %v", fileName, err)
	}

	lines := strings.SplitN(string(content), "\n", 2)
	version, err := parseSignature(strings.TrimRight(lines[0], "\r"))
	if err != nil {
		return nil, errors.Wrap(err, fileName)
	}
	if version != supportedFormat {
		return nil, errors.Wrapf(entities.ErrUnsupportedVariant, "%s: csv format v%d", fileName, version)
	}
	body := ""
	if len(lines) == 2 {
		body = lines[1]
	}

	deviceID := r.DeviceID
	if deviceData.DeviceID != "" {
		deviceID = deviceData.DeviceID
	}
	body, deviceID, err = applyDirectives(body, deviceID)
	if err != nil {
		return nil, errors.Wrap(err, fileName)
	}

	rows, err := readRows(body)
	if err != nil {
		return nil, errors.Wrapf(entities.ErrCorruptData, "%s: %v", fileName, err)
	}

	records := make(map[string]entities.TourRecord, len(rows))
	for i, row := range rows {
		record, err := parseRow(row)
		if err != nil {
			return nil, errors.Wrapf(entities.ErrCorruptData, "%s row %d: %v", fileName, i+2, err)
		}
		record.DeviceID = deviceID
		record.SourceFile = fileName
		records[record.Key()] = record
	}
	return records, nil
}

func parseSignature(line string) (int, error) {
	if !strings.HasPrefix(line, signaturePrefix) {
		return 0, errors.Wrap(entities.ErrCorruptData, "missing csv signature")
	}
	version, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, signaturePrefix)))
	if err != nil {
		return 0, errors.Wrap(entities.ErrCorruptData, "invalid csv format version")
	}
	return version, nil
}

// applyDirectives consumes leading "#" lines and returns the remaining body
// decoded to UTF-8.
func applyDirectives(body, deviceID string) (string, string, error) {
	charset := ""
	for strings.HasPrefix(body, "#") {
		line := body
		rest := ""
		if i := strings.IndexByte(body, '\n'); i >= 0 {
			line, rest = body[:i], body[i+1:]
		}
		fields := strings.Fields(strings.TrimPrefix(strings.TrimRight(line, "\r"), "#"))
		if len(fields) == 2 {
			switch fields[0] {
			case "charset":
				charset = strings.ToLower(fields[1])
			case "device":
				deviceID = fields[1]
			}
		}
		body = rest
	}

	switch charset {
	case "", "utf-8", "utf8":
		return body, deviceID, nil
	case "windows-1252", "cp1252":
		decoded, _, err := transform.String(charmap.Windows1252.NewDecoder(), body)
		if err != nil {
			return "", "", errors.Wrap(entities.ErrCorruptData, err.Error())
		}
		return decoded, deviceID, nil
	default:
		return "", "", errors.Wrapf(entities.ErrUnsupportedVariant, "charset %s", charset)
	}
}

func readRows(body string) ([][]string, error) {
	reader := csv.NewReader(strings.NewReader(body))
	reader.FieldsPerRecord = columns
	reader.TrimLeadingSpace = true

	first, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for i, name := range header {
		if !strings.EqualFold(strings.TrimSpace(first[i]), name) {
			return nil, errors.Errorf("unexpected column %q, want %q", first[i], name)
		}
	}
	return reader.ReadAll()
}

func parseRow(row []string) (entities.TourRecord, error) {
	start, err := time.Parse(time.RFC3339, row[0])
	if err != nil {
		return entities.TourRecord{}, err
	}
	seconds, err := strconv.ParseFloat(row[1], 64)
	if err != nil || !finite(seconds) || seconds < 0 {
		return entities.TourRecord{}, errors.Errorf("invalid duration %q", row[1])
	}
	distance, err := strconv.ParseFloat(row[2], 64)
	if err != nil || !finite(distance) || distance < 0 {
		return entities.TourRecord{}, errors.Errorf("invalid distance %q", row[2])
	}
	return entities.TourRecord{
		Start:          start.UTC(),
		Duration:       time.Duration(seconds * float64(time.Second)),
		DistanceMeters: distance,
		Title:          row[3],
	}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Family builds file-import drivers for csvtour manifests.
type Family struct{}

func (Family) Name() string { return FamilyName }

func (Family) NewDriver(descriptor entities.DeviceDescriptor) device.Driver {
	if descriptor.FileExtension == "" {
		descriptor.FileExtension = "csv"
	}
	return device.NewFileImportDriver(descriptor, Reader{DeviceID: descriptor.ID})
}

// NewDriver returns the built-in csv export driver.
func NewDriver() device.Driver {
	return Family{}.NewDriver(entities.DeviceDescriptor{
		ID:            "csv-export",
		VisibleName:   "Tour CSV export",
		FileExtension: "csv",
	})
}
