package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const settingsFileName = ".mimasprog.yaml"

// settings are the values remembered between runs.
type settings struct {
	Port   string `yaml:"port"`
	File   string `yaml:"file"`
	Verify bool   `yaml:"verify"`
}

func defaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return settingsFileName
	}
	return filepath.Join(home, settingsFileName)
}

// loadSettings reads the settings file. A missing file yields empty settings.
func loadSettings(path string) (settings, error) {
	var s settings
	f, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, errors.Wrap(err, "failed to read settings")
	}
	if err := yaml.Unmarshal(f, &s); err != nil {
		return s, errors.Wrapf(err, "failed to parse settings file %v", path)
	}
	return s, nil
}

func saveSettings(path string, s settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "failed to write settings")
}
