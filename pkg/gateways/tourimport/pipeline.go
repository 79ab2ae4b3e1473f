// Package tourimport runs tour imports from devices and files into the store.
package tourimport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/device"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/gateways/collision"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/gateways/network"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/gateways/serial"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Store is the persistence sink. Upsert must be idempotent by the record's
// natural key. Has confirms duplicate filter hits before a record is skipped.
type Store interface {
	Upsert(ctx context.Context, record entities.TourRecord) (entities.TourID, error)
	Has(ctx context.Context, naturalKey string) (bool, error)
	AssignTourType(ctx context.Context, id entities.TourID, tourType entities.TourTypeID) error
}

// Observer follows a run's progress.
type Observer interface {
	StateChanged(state string)
	FileProcessed(result entities.FileResult)
}

type collisionResolver interface {
	Resolve(incoming entities.OSFile, destinationFolder string, policy collision.Policy) (entities.CollisionRecord, error)
}

type Options struct {
	Registry       *device.Registry
	Transport      *serial.Transport
	Store          Store
	Notifier       network.Notifier
	Configurations *entities.ConfigurationList
	Observer       Observer
	// Guard defaults to DefaultGuard.
	Guard *Guard
	// Metrics defaults to unregistered counters.
	Metrics *Metrics
	// IdleTimeout ends a device download; serial.DefaultIdleTimeout when zero.
	IdleTimeout time.Duration
	// TempDir holds device downloads until they are resolved; os.TempDir when empty.
	TempDir string
	Log     *logrus.Entry
}

type Pipeline struct {
	registry    *device.Registry
	transport   *serial.Transport
	resolver    collisionResolver
	store       Store
	notifier    network.Notifier
	configs     *entities.ConfigurationList
	observer    Observer
	guard       *Guard
	metrics     *Metrics
	filter      *duplicateFilter
	idleTimeout time.Duration
	tempDir     string
	now         func() time.Time
	chain       stateHandler
	log         *logrus.Entry
}

func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, errors.New("tour import pipeline needs a store")
	}
	log := opts.Log
	if log == nil {
		log = logging.Discard()
	}
	filter, err := newDuplicateFilterFromEnvironment()
	if err != nil {
		return nil, errors.Wrap(err, "duplication filter settings")
	}

	p := &Pipeline{
		registry:    opts.Registry,
		transport:   opts.Transport,
		resolver:    collision.NewResolver(log.WithField("Context", "collision")),
		store:       opts.Store,
		notifier:    opts.Notifier,
		configs:     opts.Configurations,
		observer:    opts.Observer,
		guard:       opts.Guard,
		metrics:     opts.Metrics,
		filter:      filter,
		idleTimeout: opts.IdleTimeout,
		tempDir:     opts.TempDir,
		now:         time.Now,
		log:         log,
	}
	if p.registry == nil {
		p.registry = device.NewRegistry(device.StaticSource(nil), log)
	}
	if p.transport == nil {
		p.transport = serial.NewTransport(log)
	}
	if p.configs == nil {
		p.configs = entities.NewConfigurationList()
	}
	if p.guard == nil {
		p.guard = DefaultGuard
	}
	if p.metrics == nil {
		p.metrics = NewMetrics(nil)
	}
	if p.idleTimeout <= 0 {
		p.idleTimeout = serial.DefaultIdleTimeout
	}
	p.chain = newFileStateChain(p)
	return p, nil
}

// ImportFromDevice downloads from a direct-read device over the serial port in
// params and imports what it sent into destinationFolder. Opening the port and
// recognizing the device are single attempts; their failures end the run with
// an error. A silent device or a cancelled download ends with an empty summary.
func (p *Pipeline) ImportFromDevice(ctx context.Context, driver device.Driver, params entities.SerialParameters, destinationFolder string) (entities.RunSummary, error) {
	summary := entities.RunSummary{DestinationFolder: destinationFolder}
	direct, ok := device.AsDirectRead(driver)
	if !ok {
		p.metrics.run(runResultRejected)
		return summary, errors.Wrapf(entities.ErrUnsupportedOperation, "%s cannot be read directly", describe(driver))
	}
	descriptor := direct.Descriptor()
	summary.DeviceID = descriptor.ID
	log := p.log.WithFields(logrus.Fields{"device": descriptor.ID, "folder": destinationFolder})

	release, err := p.guard.acquire(destinationFolder)
	if err != nil {
		p.metrics.run(runResultRejected)
		return summary, err
	}
	defer release()
	defer p.setState(entities.StateIdle)

	p.setState(entities.StateDeviceSelected)
	p.setState(entities.StateAcquiring)
	transferTime := p.now()
	file, workDir, err := p.download(ctx, direct, params, transferTime, log)
	if workDir != "" {
		defer os.RemoveAll(workDir)
	}
	if err != nil {
		log.Errorf("device download failed: %v", err)
		p.metrics.run(runResultFailed)
		return summary, err
	}
	if file == nil {
		summary.Cancelled = ctx.Err() != nil
		p.finishRun(summary, log)
		return summary, nil
	}

	deviceData := entities.DeviceData{DeviceID: descriptor.ID, TransferTime: transferTime}
	p.processFiles(ctx, []entities.OSFile{*file}, direct, deviceData, destinationFolder, p.configs.ForDestination(destinationFolder), &summary, log)
	p.finishRun(summary, log)
	return summary, nil
}

// download drains the session into one file inside a fresh work directory. A
// nil file without error means nothing was received or ctx was cancelled.
func (p *Pipeline) download(ctx context.Context, driver *device.DirectReadDriver, params entities.SerialParameters, transferTime time.Time, log *logrus.Entry) (*entities.OSFile, string, error) {
	session, err := p.transport.Open(params)
	if err != nil {
		return nil, "", err
	}
	defer session.Close()

	if err := session.Recognize(ctx, driver.Protocol(), p.idleTimeout); err != nil {
		if ctx.Err() != nil || errors.Is(err, serial.ErrNoData) {
			log.Infof("nothing to import: %v", err)
			return nil, "", nil
		}
		return nil, "", err
	}

	workDir, err := os.MkdirTemp(p.tempDir, "tourimport-")
	if err != nil {
		return nil, "", errors.Wrap(err, "create download directory")
	}
	path := filepath.Join(workDir, downloadName(driver.Descriptor(), transferTime))
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return nil, workDir, errors.Wrap(err, "create download file")
	}
	n, err := session.DrainTo(ctx, out, p.idleTimeout)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, workDir, errors.Wrap(err, "download")
	}
	if ctx.Err() != nil {
		log.Info("download cancelled")
		return nil, workDir, nil
	}
	if n == 0 {
		log.Info("device sent no data")
		return nil, workDir, nil
	}
	log.Infof("received %d bytes", n)

	file, err := entities.NewOSFile(path)
	if err != nil {
		return nil, workDir, err
	}
	return &file, workDir, nil
}

// ImportFromFiles imports the given files into destinationFolder. Files are
// deduplicated by name; the first occurrence wins.
func (p *Pipeline) ImportFromFiles(ctx context.Context, files []string, destinationFolder string) (entities.RunSummary, error) {
	return p.importFiles(ctx, files, destinationFolder, p.configs.ForDestination(destinationFolder))
}

func (p *Pipeline) importFiles(ctx context.Context, files []string, destinationFolder string, config *entities.ImportConfiguration) (entities.RunSummary, error) {
	summary := entities.RunSummary{DestinationFolder: destinationFolder}
	log := p.log.WithField("folder", destinationFolder)

	release, err := p.guard.acquire(destinationFolder)
	if err != nil {
		p.metrics.run(runResultRejected)
		return summary, err
	}
	defer release()
	defer p.setState(entities.StateIdle)

	p.setState(entities.StateAcquiring)
	set := entities.NewOSFileSet()
	for _, path := range files {
		file, err := entities.NewOSFile(path)
		if err != nil {
			p.record(&summary, entities.FileResult{File: path, Outcome: entities.OutcomeFailed, ErrorMsg: err.Error()}, log)
			continue
		}
		if !set.Add(file) {
			p.record(&summary, entities.FileResult{File: path, Outcome: entities.OutcomeDuplicateName}, log)
		}
	}

	p.processFiles(ctx, set.Files(), nil, entities.DeviceData{TransferTime: p.now()}, destinationFolder, config, &summary, log)
	p.finishRun(summary, log)
	return summary, nil
}

// HandleFolderEvent imports the files of a watched device folder using the
// configuration watching it. It reports whether watching should stop.
func (p *Pipeline) HandleFolderEvent(ctx context.Context, deviceFolder string) (bool, entities.RunSummary, error) {
	config := p.configs.ForDeviceFolder(deviceFolder)
	if config == nil {
		return false, entities.RunSummary{}, errors.Errorf("no import configuration watches %s", deviceFolder)
	}
	if config.DestinationFolder == "" {
		return false, entities.RunSummary{}, errors.Errorf("configuration %q has no destination folder", config.Name)
	}

	files, err := matchingFiles(deviceFolder, config.DeviceFileGlob)
	if err != nil {
		return false, entities.RunSummary{}, err
	}
	summary, err := p.importFiles(ctx, files, config.DestinationFolder, config)
	if err != nil {
		return false, summary, err
	}
	return config.IsTurnOffWatchingAfterImport, summary, nil
}

func (p *Pipeline) processFiles(ctx context.Context, files []entities.OSFile, driver device.Driver, deviceData entities.DeviceData, destinationFolder string, config *entities.ImportConfiguration, summary *entities.RunSummary, log *logrus.Entry) {
	for _, file := range files {
		if ctx.Err() != nil {
			summary.Cancelled = true
			log.Info("import cancelled")
			return
		}
		job := &fileJob{
			ctx:         ctx,
			state:       entities.StateDecoding,
			file:        file,
			driver:      driver,
			deviceData:  deviceData,
			config:      config,
			destination: destinationFolder,
			summary:     summary,
			log:         log.WithField("file", file.Name),
		}
		for job.state != entities.StateDone {
			p.setState(job.state)
			p.chain.execute(job)
		}

		result := entities.FileResult{File: file.Path, Outcome: job.outcome, Tours: len(job.persisted)}
		if job.err != nil {
			result.ErrorMsg = job.err.Error()
		}
		p.record(summary, result, job.log)
	}
}

func (p *Pipeline) record(summary *entities.RunSummary, result entities.FileResult, log *logrus.Entry) {
	summary.Record(result)
	p.metrics.file(result.Outcome)
	if p.observer != nil {
		p.observer.FileProcessed(result)
	}
	if result.Outcome == entities.OutcomeImported {
		log.Infof("imported %d tours from %s", result.Tours, result.File)
	} else {
		log.Warnf("%s: %s %s", result.File, result.Outcome, result.ErrorMsg)
	}
}

func (p *Pipeline) finishRun(summary entities.RunSummary, log *logrus.Entry) {
	p.setState(entities.StateDone)
	result := runResultCompleted
	if summary.Cancelled {
		result = runResultCancelled
	} else if len(summary.Files) == 0 && summary.DeviceID != "" {
		result = runResultNothingRead
	}
	p.metrics.run(result)

	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(summary); err != nil {
		log.Warnf("notify run summary: %v", err)
	}
}

func (p *Pipeline) setState(state string) {
	p.log.WithField("state", state).Debug("state changed")
	if p.observer != nil {
		p.observer.StateChanged(state)
	}
}

func matchingFiles(folder, glob string) ([]string, error) {
	if glob == "" {
		glob = "*"
	}
	matches, err := filepath.Glob(filepath.Join(folder, glob))
	if err != nil {
		return nil, errors.Wrapf(err, "file glob %q", glob)
	}
	files := matches[:0]
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, match)
	}
	sort.Strings(files)
	return files, nil
}

func downloadName(descriptor entities.DeviceDescriptor, transferTime time.Time) string {
	ext := strings.TrimLeft(descriptor.FileExtension, "*.")
	if ext == "" {
		ext = "raw"
	}
	return fmt.Sprintf("%s_%s.%s", descriptor.ID, transferTime.UTC().Format("20060102-150405"), ext)
}

func describe(driver device.Driver) string {
	if driver == nil {
		return "no device"
	}
	return driver.Descriptor().ID
}
