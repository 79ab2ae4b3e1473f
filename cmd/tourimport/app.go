package main

import (
	"context"
	"io"
	"net/http"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/device"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/device/csvtour"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/device/trklog"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/gateways/network"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/gateways/serial"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/gateways/store"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/gateways/tourimport"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/logging"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/utils"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type app struct {
	settings settings
	out      io.Writer
	logs     *logging.Logrus
	log      *logrus.Entry
	alloc    *entities.SequentialAllocator
	registry *device.Registry
	configs  *entities.ConfigurationList
	metrics  *prometheus.Registry
}

func newApp(s settings, out, logOutput io.Writer) (*app, error) {
	logs := logging.NewLogrus(s.LogLevel, logOutput)
	alloc := entities.NewSequentialAllocator(0)
	configs, err := utils.LoadImportConfigurations(s.ConfigsPath, alloc)
	if err != nil {
		return nil, err
	}
	return &app{
		settings: s,
		out:      out,
		logs:     logs,
		log:      logs.Get("Main"),
		alloc:    alloc,
		registry: device.NewRegistry(driverSource(s.DriversPath, logs), logs.Get("Registry")),
		configs:  configs,
		metrics:  prometheus.NewRegistry(),
	}, nil
}

// driverSource lists manifest drivers first so a manifest can replace a
// built-in driver of the same id.
func driverSource(manifestDir string, logs *logging.Logrus) device.Source {
	return device.NewSources(logs.Get("Drivers"),
		device.NewManifestSource(manifestDir, logs.Get("Manifests"), csvtour.Family{}, trklog.Family{}),
		device.StaticSource{csvtour.NewDriver(), trklog.NewDriver()},
	)
}

func (a *app) saveConfigurations() error {
	return utils.SaveImportConfigurations(a.settings.ConfigsPath, a.configs)
}

// pipeline opens the store and, when configured, the broker connection. The
// returned function releases both.
func (a *app) pipeline(ctx context.Context) (*tourimport.Pipeline, func(), error) {
	tours, err := store.Open(ctx, a.settings.StorePath, a.logs.Get("Store"))
	if err != nil {
		return nil, nil, err
	}
	closers := []func(){func() { _ = tours.Close() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var notifier network.Notifier
	if a.settings.AMQPURL != "" {
		broker := network.NewAMQP(a.settings.AMQPURL, a.logs.Get("AMQP"))
		if err := broker.Start(ctx); err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, broker.Stop)
		notifier = network.NewRunSummaryPublisher(broker)
	}

	p, err := tourimport.NewPipeline(tourimport.Options{
		Registry:       a.registry,
		Transport:      serial.NewTransport(a.logs.Get("Serial")),
		Store:          tours,
		Notifier:       notifier,
		Configurations: a.configs,
		Observer:       progressObserver{log: a.logs.Get("Progress")},
		Metrics:        tourimport.NewMetrics(a.metrics),
		IdleTimeout:    a.settings.IdleTimeout,
		TempDir:        a.settings.TempDir,
		Log:            a.logs.Get("Pipeline"),
	})
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return p, closeAll, nil
}

// serveMetrics exposes the registry until ctx is done. It does nothing without
// a metrics address.
func (a *app) serveMetrics(ctx context.Context) {
	if a.settings.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: a.settings.MetricsAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Errorf("metrics server: %v", err)
		}
	}()
}

// progressObserver logs state transitions and file outcomes.
type progressObserver struct {
	log *logrus.Entry
}

func (o progressObserver) StateChanged(state string) {
	o.log.WithField("state", state).Debug("state changed")
}

func (o progressObserver) FileProcessed(result entities.FileResult) {
	entry := o.log.WithFields(logrus.Fields{"file": result.File, "outcome": result.Outcome, "tours": result.Tours})
	if result.ErrorMsg != "" {
		entry.Warn(result.ErrorMsg)
		return
	}
	entry.Info("file processed")
}
