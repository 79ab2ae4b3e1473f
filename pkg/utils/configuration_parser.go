package utils

import (
	"os"
	"path/filepath"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// ImportConfigurationsFile is the on-disk layout of the configuration list.
type ImportConfigurationsFile struct {
	Configurations []entities.ImportConfigurationDocument `yaml:"configurations"`
}

type config interface {
	ImportConfigurationsFile | map[string]entities.SerialParameters
}

func readTextFile(filepathName string) ([]byte, error) {
	fileContent, err := os.ReadFile(filepath.Clean(filepathName))
	return fileContent, err
}

func ConfigurationParser[T config](filepathName string, configEntity T) (T, error) {
	fileContent, err := readTextFile(filepath.Clean(filepathName))
	if err != nil {
		return configEntity, err
	}

	err = yaml.Unmarshal(fileContent, &configEntity)
	return configEntity, err
}

// ConfigurationWriter writes configEntity as YAML, replacing the file atomically.
func ConfigurationWriter[T config](filepathName string, configEntity T) error {
	data, err := yaml.Marshal(&configEntity)
	if err != nil {
		return errors.Wrap(err, "marshal configuration")
	}

	path := filepath.Clean(filepathName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, path), "replace %s", path)
}

// LoadImportConfigurations restores the configuration list. A missing file is
// an empty list. Persisted creation ids are kept unless two entries share one,
// in which case the later entry gets a fresh id.
func LoadImportConfigurations(filepathName string, alloc entities.IDAllocator) (*entities.ConfigurationList, error) {
	file, err := ConfigurationParser(filepathName, ImportConfigurationsFile{})
	if err != nil {
		if os.IsNotExist(err) {
			return entities.NewConfigurationList(), nil
		}
		return nil, errors.Wrapf(err, "load import configurations from %s", filepathName)
	}

	list := entities.NewConfigurationList()
	seen := make(map[int64]bool)
	for _, doc := range file.Configurations {
		if seen[doc.CreateID] {
			doc.CreateID = 0
		}
		config := entities.FromDocument(doc, alloc)
		seen[config.CreateID()] = true
		list.Add(config)
	}
	return list, nil
}

func SaveImportConfigurations(filepathName string, list *entities.ConfigurationList) error {
	file := ImportConfigurationsFile{}
	for _, config := range list.All() {
		file.Configurations = append(file.Configurations, config.Document())
	}
	return ConfigurationWriter(filepathName, file)
}

// GetValueFromEnvironmentVariable returns the variable's value or defaultValue when unset.
func GetValueFromEnvironmentVariable(variableName, defaultValue string) string {
	value := os.Getenv(variableName)
	if value != "" {
		return value
	}
	return defaultValue
}
