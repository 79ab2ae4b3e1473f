package main

import (
	"strings"
	"time"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/gateways/serial"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "TOURIMPORT"

// settings are the process wide options. Precedence is flag, then
// TOURIMPORT_* environment variable, then the optional settings file.
type settings struct {
	LogLevel    string
	StorePath   string
	ConfigsPath string
	DriversPath string
	AMQPURL     string
	MetricsAddr string
	IdleTimeout time.Duration
	BaudRate    int
	TempDir     string
}

func globalFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("tourimport", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.String("config", "", "YAML settings file")
	flags.String("log.level", "info", "log level (debug, info, warn, error)")
	flags.String("store.path", "tours.db", "SQLite tour database")
	flags.String("configs.path", "import-configurations.yaml", "import configuration list")
	flags.String("drivers.path", "drivers", "directory of device driver manifests")
	flags.String("amqp.url", "", "broker receiving run summaries; empty disables notification")
	flags.String("metrics.addr", "", "address serving /metrics while listening")
	flags.Duration("serial.idle-timeout", serial.DefaultIdleTimeout, "silence that ends a device download")
	flags.Int("serial.baud-rate", 0, "baud rate overriding the device default")
	flags.String("temp.dir", "", "directory for device downloads")
	return flags
}

// loadSettings parses the global flags in args and returns the settings and
// the remaining arguments, the first of which names the command.
func loadSettings(args []string) (settings, []string, error) {
	flags := globalFlags()
	if err := flags.Parse(args); err != nil {
		return settings{}, nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return settings{}, nil, errors.Wrap(err, "bind flags")
	}
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return settings{}, nil, errors.Wrapf(err, "read settings file %s", path)
		}
	}

	s := settings{
		LogLevel:    v.GetString("log.level"),
		StorePath:   v.GetString("store.path"),
		ConfigsPath: v.GetString("configs.path"),
		DriversPath: v.GetString("drivers.path"),
		AMQPURL:     v.GetString("amqp.url"),
		MetricsAddr: v.GetString("metrics.addr"),
		IdleTimeout: v.GetDuration("serial.idle-timeout"),
		BaudRate:    v.GetInt("serial.baud-rate"),
		TempDir:     v.GetString("temp.dir"),
	}
	if s.BaudRate < 0 {
		return settings{}, nil, errors.Errorf("invalid baud rate %d", s.BaudRate)
	}
	return s, flags.Args(), nil
}
