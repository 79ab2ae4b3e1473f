package csvtour

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/device"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validFile = "#tourimport-csv v1\n" +
	"start,duration_s,distance_m,title\n" +
	"2023-08-25T07:45:04Z,3600,25000,Morning ride\n" +
	"2023-08-26T18:00:00Z,1800,5000,\"Run, easy\"\n"

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0600))
	return path
}

func TestValidate(t *testing.T) {
	reader := Reader{DeviceID: "csv"}
	assert.True(t, reader.Validate(writeFile(t, "ok.csv", []byte(validFile))))
	assert.True(t, reader.Validate(writeFile(t, "v9.csv", []byte("#tourimport-csv v9\n"))))
	assert.False(t, reader.Validate(writeFile(t, "plain.csv", []byte("a,b,c\n"))))
	assert.False(t, reader.Validate(filepath.Join(t.TempDir(), "missing.csv")))
}

func TestDecodeValidFile(t *testing.T) {
	path := writeFile(t, "ok.csv", []byte(validFile))
	records, err := Reader{DeviceID: "csv"}.Decode(path, entities.DeviceData{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	start := time.Date(2023, 8, 25, 7, 45, 4, 0, time.UTC)
	ride, ok := records["csv_"+strconv.FormatInt(start.Unix(), 10)]
	require.True(t, ok)
	assert.Equal(t, "Morning ride", ride.Title)
	assert.Equal(t, time.Hour, ride.Duration)
	assert.InDelta(t, 25.0, ride.AverageSpeedKmh(), 1e-9)
	assert.Equal(t, path, ride.SourceFile)
}

func TestDecodeIsPure(t *testing.T) {
	path := writeFile(t, "ok.csv", []byte(validFile))
	reader := Reader{DeviceID: "csv"}
	first, err := reader.Decode(path, entities.DeviceData{})
	require.NoError(t, err)
	second, err := reader.Decode(path, entities.DeviceData{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDecodeDirectives(t *testing.T) {
	// "Caf\xe9" is "Café" in windows-1252.
	content := []byte("#tourimport-csv v1\n#charset windows-1252\n#device edge-500\n" +
		"start,duration_s,distance_m,title\n" +
		"2023-08-25T07:45:04Z,600,1000,Caf\xe9 loop\n")
	records, err := Reader{DeviceID: "csv"}.Decode(writeFile(t, "cp.csv", content), entities.DeviceData{DeviceID: "ignored"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	for key, record := range records {
		assert.Equal(t, "edge-500", record.DeviceID)
		assert.Equal(t, "edge-500_1692949504", key)
		assert.Equal(t, "Café loop", record.Title)
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    error
	}{
		{"no signature", "start,duration_s\n", entities.ErrCorruptData},
		{"bad version", "#tourimport-csv vX\n", entities.ErrCorruptData},
		{"newer format", "#tourimport-csv v2\nstart,duration_s,distance_m,title\n", entities.ErrUnsupportedVariant},
		{"unknown charset", "#tourimport-csv v1\n#charset ebcdic\nstart,duration_s,distance_m,title\n", entities.ErrUnsupportedVariant},
		{"wrong header", "#tourimport-csv v1\nwhen,how_long,how_far,name\n", entities.ErrCorruptData},
		{"short row", "#tourimport-csv v1\nstart,duration_s,distance_m,title\n2023-08-25T07:45:04Z,60\n", entities.ErrCorruptData},
		{"bad time", "#tourimport-csv v1\nstart,duration_s,distance_m,title\nyesterday,60,100,x\n", entities.ErrCorruptData},
		{"negative distance", "#tourimport-csv v1\nstart,duration_s,distance_m,title\n2023-08-25T07:45:04Z,60,-1,x\n", entities.ErrCorruptData},
		{"NaN distance", "#tourimport-csv v1\nstart,duration_s,distance_m,title\n2023-08-25T07:45:04Z,3600,NaN,x\n", entities.ErrCorruptData},
		{"infinite distance", "#tourimport-csv v1\nstart,duration_s,distance_m,title\n2023-08-25T07:45:04Z,3600,+Inf,x\n", entities.ErrCorruptData},
		{"NaN duration", "#tourimport-csv v1\nstart,duration_s,distance_m,title\n2023-08-25T07:45:04Z,NaN,100,x\n", entities.ErrCorruptData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Reader{DeviceID: "csv"}.Decode(writeFile(t, "bad.csv", []byte(tc.content)), entities.DeviceData{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestDecodeHeaderOnlyYieldsNoRecords(t *testing.T) {
	records, err := Reader{}.Decode(writeFile(t, "empty.csv", []byte("#tourimport-csv v1\nstart,duration_s,distance_m,title\n")), entities.DeviceData{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFamilyBuildsFileImportDriver(t *testing.T) {
	driver := Family{}.NewDriver(entities.DeviceDescriptor{ID: "export"})
	_, direct := device.AsDirectRead(driver)
	assert.False(t, direct)
	assert.Equal(t, "csv", driver.Descriptor().FileExtension)
	assert.Equal(t, "csv-export", NewDriver().Descriptor().ID)
}
