package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/device"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/gateways/network"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/gateways/serial"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"devices":       {"list known devices", runDevices},
		"ports":         {"list serial ports", runPorts},
		"import-files":  {"--dest DIR FILE... import tour files", runImportFiles},
		"import-device": {"--device ID --port NAME --dest DIR download and import", runImportDevice},
		"watch-trigger": {"FOLDER import what a watched device folder holds", runWatchTrigger},
		"configs":       {"list|add|remove import configurations", runConfigs},
		"listen":        {"import on folder events from the broker", runListen},
	}
}

func commandNames() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func commandFlags(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: tourimport %s %s\n", name, commands[name].usage)
		flags.PrintDefaults()
	}
	return flags
}

func (a *app) printJSON(value any) error {
	encoder := json.NewEncoder(a.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func runDevices(ctx context.Context, a *app, args []string) error {
	for _, d := range a.registry.ListFileImportDevices() {
		descriptor := d.Descriptor()
		kind := "file"
		if descriptor.CanReadFromDevice {
			kind = "direct"
		}
		fmt.Fprintf(a.out, "%-16s %-6s *.%-5s %s\n", descriptor.ID, kind, strings.TrimLeft(descriptor.FileExtension, "*."), descriptor.VisibleName)
	}
	return nil
}

func runPorts(ctx context.Context, a *app, args []string) error {
	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(a.out, "no serial ports, direct device import is unavailable")
		return nil
	}
	for _, port := range ports {
		fmt.Fprintln(a.out, port)
	}
	return nil
}

func runImportFiles(ctx context.Context, a *app, args []string) error {
	flags := commandFlags("import-files")
	dest := flags.String("dest", "", "destination folder")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *dest == "" || flags.NArg() == 0 {
		return errors.New("import-files needs --dest and at least one file")
	}

	p, closeAll, err := a.pipeline(ctx)
	if err != nil {
		return err
	}
	defer closeAll()
	summary, err := p.ImportFromFiles(ctx, flags.Args(), *dest)
	if err != nil {
		return err
	}
	return a.printJSON(summary)
}

func runImportDevice(ctx context.Context, a *app, args []string) error {
	flags := commandFlags("import-device")
	deviceID := flags.String("device", "", "direct-read device id")
	port := flags.String("port", "", "serial port name")
	dest := flags.String("dest", "", "destination folder")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *deviceID == "" || *dest == "" {
		return errors.New("import-device needs --device and --dest")
	}
	driver, ok := a.registry.Find(*deviceID)
	if !ok {
		return errors.Errorf("unknown device %q", *deviceID)
	}
	direct, ok := device.AsDirectRead(driver)
	if !ok {
		return errors.Wrapf(entities.ErrUnsupportedOperation, "%s cannot be read directly", *deviceID)
	}
	if *port == "" {
		ports, err := serial.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) != 1 {
			return errors.Errorf("--port is required, found %d serial ports", len(ports))
		}
		*port = ports[0]
	}
	params := direct.DefaultParameters(*port)
	if a.settings.BaudRate > 0 {
		params.BaudRate = a.settings.BaudRate
	}

	p, closeAll, err := a.pipeline(ctx)
	if err != nil {
		return err
	}
	defer closeAll()
	summary, err := p.ImportFromDevice(ctx, direct, params, *dest)
	if err != nil {
		return err
	}
	return a.printJSON(summary)
}

func runWatchTrigger(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("watch-trigger needs exactly one device folder")
	}
	p, closeAll, err := a.pipeline(ctx)
	if err != nil {
		return err
	}
	defer closeAll()
	turnOff, summary, err := p.HandleFolderEvent(ctx, args[0])
	if err != nil {
		return err
	}
	return a.printJSON(struct {
		TurnOffWatching bool                `json:"turnOffWatching"`
		Summary         entities.RunSummary `json:"summary"`
	}{turnOff, summary})
}

// runListen imports every folder event received from the broker until ctx is
// done. A configuration asking to stop watching after an import is removed
// from the saved list.
func runListen(ctx context.Context, a *app, args []string) error {
	if a.settings.AMQPURL == "" {
		return errors.New("listen needs amqp.url")
	}
	p, closeAll, err := a.pipeline(ctx)
	if err != nil {
		return err
	}
	defer closeAll()
	a.serveMetrics(ctx)

	broker := network.NewAMQP(a.settings.AMQPURL, a.logs.Get("Listener"))
	if err := broker.Start(ctx); err != nil {
		return err
	}
	defer broker.Stop()
	events := make(chan network.InMsg)
	if err := network.NewMsgSubscriber(broker).SubscribeToFolderEvents(events); err != nil {
		return err
	}
	a.log.Info("waiting for folder events")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-events:
			event, err := network.DecodeFolderEvent(msg)
			if err != nil {
				a.log.Warnf("dropping message: %v", err)
				continue
			}
			turnOff, summary, err := p.HandleFolderEvent(ctx, event.DeviceFolder)
			if err != nil {
				a.log.Errorf("import of %s failed: %v", event.DeviceFolder, err)
				continue
			}
			a.log.Infof("imported %d files from %s", summary.ImportedCount, event.DeviceFolder)
			if turnOff {
				if err := a.stopWatching(event.DeviceFolder); err != nil {
					a.log.Errorf("stop watching %s: %v", event.DeviceFolder, err)
				}
			}
		}
	}
}

func (a *app) stopWatching(deviceFolder string) error {
	config := a.configs.ForDeviceFolder(deviceFolder)
	if config == nil || !a.configs.Remove(config) {
		return nil
	}
	return a.saveConfigurations()
}

func runConfigs(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 || args[0] == "list" {
		return a.printJSON(documents(a.configs))
	}
	switch args[0] {
	case "add":
		config, err := configFromFlags(args[1:], a.alloc)
		if err != nil {
			return err
		}
		a.configs.Add(config)
	case "remove":
		if len(args) != 2 {
			return errors.New("configs remove needs a configuration name")
		}
		if !a.removeConfiguration(args[1]) {
			return errors.Errorf("no configuration named %q", args[1])
		}
	default:
		return errors.Errorf("unknown configs action %q", args[0])
	}
	return a.saveConfigurations()
}

func (a *app) removeConfiguration(name string) bool {
	for _, config := range a.configs.All() {
		if config.Name == name {
			return a.configs.Remove(config)
		}
	}
	return false
}

func documents(list *entities.ConfigurationList) []entities.ImportConfigurationDocument {
	docs := make([]entities.ImportConfigurationDocument, 0, list.Len())
	for _, config := range list.All() {
		docs = append(docs, config.Document())
	}
	return docs
}

func configFromFlags(args []string, alloc entities.IDAllocator) (*entities.ImportConfiguration, error) {
	config := entities.NewImportConfiguration(alloc)
	flags := commandFlags("configs")
	flags.StringVar(&config.Name, "name", "", "configuration name")
	flags.StringVar(&config.DeviceFolder, "device-folder", "", "watched device folder")
	flags.StringVar(&config.DestinationFolder, "dest", "", "destination folder")
	flags.StringVar(&config.DeviceFileGlob, "glob", config.DeviceFileGlob, "device file pattern")
	flags.StringVar(&config.BackupFolder, "backup", "", "backup folder; enables backups")
	flags.BoolVar(&config.IsTurnOffWatchingAfterImport, "once", false, "stop watching after one import")
	policy := flags.String("collision", string(config.CollisionPolicy), "overwrite, renameWithSuffix, skip or moveToBackupFirst")
	oneType := flags.String("type", "", "tour type for every tour")
	speeds := flags.StringSlice("speed", nil, "speed threshold as KMH=TYPE, repeatable")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if config.Name == "" {
		return nil, errors.New("configs add needs --name")
	}

	config.IsCreateBackup = config.BackupFolder != ""
	switch p := entities.CollisionPolicy(*policy); p {
	case entities.PolicyOverwrite, entities.PolicyRenameWithSuffix, entities.PolicySkip, entities.PolicyMoveToBackupFirst:
		config.CollisionPolicy = p
	default:
		return nil, errors.Errorf("unknown collision policy %q", *policy)
	}
	switch {
	case *oneType != "" && len(*speeds) > 0:
		return nil, errors.New("--type and --speed are exclusive")
	case *oneType != "":
		config.SetMode(entities.ClassificationOneTypeForAll)
		config.SetOneTourType(entities.TourTypeID(*oneType))
	case len(*speeds) > 0:
		vertices, err := parseSpeedVertices(*speeds)
		if err != nil {
			return nil, err
		}
		config.SetMode(entities.ClassificationBySpeed)
		config.SetSpeedVertices(vertices)
	}
	return config, nil
}

func parseSpeedVertices(values []string) ([]entities.SpeedVertex, error) {
	vertices := make([]entities.SpeedVertex, 0, len(values))
	for _, value := range values {
		speed, tourType, ok := strings.Cut(value, "=")
		if !ok || tourType == "" {
			return nil, errors.Errorf("speed %q is not KMH=TYPE", value)
		}
		kmh, err := strconv.ParseFloat(speed, 64)
		if err != nil || kmh < 0 {
			return nil, errors.Errorf("speed %q is not KMH=TYPE", value)
		}
		vertices = append(vertices, entities.SpeedVertex{AverageSpeed: kmh, TourTypeID: entities.TourTypeID(tourType)})
	}
	return vertices, nil
}
