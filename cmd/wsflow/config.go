package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sonirico/wsflow"
	"github.com/sonirico/wsflow/transcription"
)

type LogSettings struct {
	Level string `yaml:"level"`
}

// AppConfig is the layout of the --config file.
type AppConfig struct {
	Log           LogSettings          `yaml:"log"`
	WebSocket     wsflow.Config        `yaml:"websocket"`
	Speech        wsflow.Config        `yaml:"speech"`
	Transcription transcription.Config `yaml:"transcription"`
}

func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Log:           LogSettings{Level: logrus.InfoLevel.String()},
		WebSocket:     wsflow.DefaultConfig(),
		Transcription: transcription.DefaultConfig(),
	}
}

// readYamlConfigFile overlays the file at filename on top of the defaults. An empty filename
// yields the defaults.
func readYamlConfigFile(filename string) (*AppConfig, error) {
	appCnf := defaultAppConfig()
	if filename == "" {
		return appCnf, nil
	}

	yamlFile, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read config")
	}

	if err := yaml.Unmarshal(yamlFile, appCnf); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %s", filename)
	}

	appCnf.WebSocket = appCnf.WebSocket.WithDefaults()
	appCnf.Transcription = appCnf.Transcription.WithDefaults()

	if err := appCnf.Transcription.Validate(); err != nil {
		return nil, err
	}

	return appCnf, nil
}

func newLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return logger, nil
}
