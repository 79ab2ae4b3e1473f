package tourimport

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/device/csvtour"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/device/trklog"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/gateways/serial"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var deviceTours = []entities.TourRecord{
	{Start: firstStart, Duration: time.Hour, DistanceMeters: 25000},
	{Start: firstStart.Add(24 * time.Hour), Duration: 30 * time.Minute, DistanceMeters: 5000},
}

func deviceParams() entities.SerialParameters {
	return trklog.NewDriver().DefaultParameters("ttyTEST0")
}

func waitFor[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case value := <-ch:
		return value
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for the device")
	}
	var zero T
	return zero
}

func devicePipeline(t *testing.T, f *fixture, port serial.Port) *Pipeline {
	opts := f.options()
	opts.Transport = transportFor(port)
	return f.pipeline(t, opts)
}

func TestGivenDirectReadDeviceThenDownloadIsImported(t *testing.T) {
	f := newFixture(t)
	config := f.config()
	config.SetMode(entities.ClassificationOneTypeForAll)
	config.SetOneTourType("bike")
	port := newDevicePort(append([]byte("noise"), trklog.EncodeFixed(deviceTours)...), false)
	p := devicePipeline(t, f, port)
	p.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }

	summary, err := p.ImportFromDevice(context.Background(), trklog.NewDriver(), deviceParams(), f.destination)
	require.NoError(t, err)
	assert.Equal(t, "trk-logger", summary.DeviceID)
	assert.Equal(t, 1, summary.ImportedCount)
	assert.Equal(t, 2, summary.PersistedTours)
	assert.Equal(t, 2, summary.ClassifiedTours)
	assert.FileExists(t, f.destination+"/trk-logger_20240501-100000.trk")
	assert.True(t, port.closed)

	record, ok := f.store.byKey(entities.TourRecord{DeviceID: "trk-logger", Start: firstStart}.Key())
	require.True(t, ok)
	assert.Equal(t, entities.TourTypeID("bike"), record.TourTypeID)
	assert.Equal(t, []string{
		entities.StateDeviceSelected,
		entities.StateAcquiring,
		entities.StateDecoding,
		entities.StateResolving,
		entities.StatePersisting,
		entities.StateClassifying,
		entities.StateDone,
		entities.StateIdle,
	}, f.observer.states)

	leftovers, err := os.ReadDir(f.root)
	require.NoError(t, err)
	for _, entry := range leftovers {
		assert.NotContains(t, entry.Name(), "tourimport-")
	}
}

func TestGivenFileOnlyDeviceThenUnsupportedOperation(t *testing.T) {
	f := newFixture(t)
	p := devicePipeline(t, f, newDevicePort(nil, false))

	_, err := p.ImportFromDevice(context.Background(), csvtour.NewDriver(), entities.DefaultSerialParameters("COM1"), f.destination)
	assert.True(t, errors.Is(err, entities.ErrUnsupportedOperation))
	assert.False(t, f.guard.Running(f.destination))
	assert.Empty(t, f.observer.states)
}

func TestGivenMissingPortThenRunAbortsWithPortUnavailable(t *testing.T) {
	f := newFixture(t)
	opts := f.options()
	opts.Transport = serial.NewTransportWithOpener(func(entities.SerialParameters) (serial.Port, error) {
		return nil, errors.New("no such file or directory")
	}, nil)
	p := f.pipeline(t, opts)

	_, err := p.ImportFromDevice(context.Background(), trklog.NewDriver(), deviceParams(), f.destination)
	assert.True(t, errors.Is(err, entities.ErrPortUnavailable))
	assert.False(t, f.guard.Running(f.destination))
	assert.Equal(t, entities.StateIdle, f.observer.states[len(f.observer.states)-1])
}

func TestGivenForeignDeviceThenUnrecognizedDevice(t *testing.T) {
	f := newFixture(t)
	p := devicePipeline(t, f, newDevicePort([]byte("$GPGGA,123519,4807.038,N"), false))

	_, err := p.ImportFromDevice(context.Background(), trklog.NewDriver(), deviceParams(), f.destination)
	assert.True(t, errors.Is(err, entities.ErrUnrecognizedDevice))
	assert.Equal(t, 0, f.store.len())
}

func TestGivenSilentDeviceThenEmptyResult(t *testing.T) {
	f := newFixture(t)
	p := devicePipeline(t, f, newDevicePort(nil, false))

	summary, err := p.ImportFromDevice(context.Background(), trklog.NewDriver(), deviceParams(), f.destination)
	require.NoError(t, err)
	assert.Empty(t, summary.Files)
	assert.False(t, summary.Cancelled)
	assert.NoDirExists(t, f.destination)
}

func TestGivenCancelDuringDownloadThenEmptyResult(t *testing.T) {
	f := newFixture(t)
	port := newDevicePort(trklog.EncodeFixed(deviceTours), true)
	p := devicePipeline(t, f, port)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		select {
		case <-port.blocked:
		case <-time.After(5 * time.Second):
		}
		cancel()
		close(port.release)
	}()
	summary, err := p.ImportFromDevice(ctx, trklog.NewDriver(), deviceParams(), f.destination)
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
	assert.Empty(t, summary.Files)
	assert.Equal(t, 0, f.store.len())
}

func TestGivenRunningImportThenSecondStartIsRejected(t *testing.T) {
	f := newFixture(t)
	port := newDevicePort(trklog.EncodeFixed(deviceTours), true)
	p := devicePipeline(t, f, port)
	other := devicePipeline(t, f, newDevicePort(trklog.EncodeFixed(deviceTours), false))

	type result struct {
		summary entities.RunSummary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		summary, err := p.ImportFromDevice(context.Background(), trklog.NewDriver(), deviceParams(), f.destination)
		done <- result{summary, err}
	}()
	waitFor(t, port.blocked)
	require.True(t, f.guard.Running(f.destination))

	_, err := other.ImportFromDevice(context.Background(), trklog.NewDriver(), deviceParams(), f.destination+"/")
	assert.True(t, errors.Is(err, entities.ErrImportAlreadyRunning))
	path := writeFile(t, f.source, "a.csv", csvContent(csvRow{firstStart, 3600, 10000}))
	_, err = other.ImportFromFiles(context.Background(), []string{path}, f.destination)
	assert.True(t, errors.Is(err, entities.ErrImportAlreadyRunning))

	close(port.release)
	first := waitFor(t, done)
	require.NoError(t, first.err)
	assert.Equal(t, 1, first.summary.ImportedCount)
	assert.Equal(t, 2, f.store.len())
	assert.False(t, f.guard.Running(f.destination))
}
