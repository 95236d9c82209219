package transcription

import (
	"time"

	"github.com/pkg/errors"
)

type Config struct {
	// MaxRecording bounds a continuous recording session.
	MaxRecording time.Duration `yaml:"max_recording"`
	// Tick is the countdown resolution of continuous mode.
	Tick time.Duration `yaml:"tick"`
	// ChunkSize is the number of audio bytes per streamed frame.
	ChunkSize int `yaml:"chunk_size"`
}

func DefaultConfig() Config {
	return Config{
		MaxRecording: 3 * time.Minute,
		Tick:         time.Second,
		ChunkSize:    4096,
	}
}

func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.MaxRecording <= 0 {
		c.MaxRecording = d.MaxRecording
	}
	if c.Tick <= 0 {
		c.Tick = d.Tick
	}
	if c.ChunkSize < 256 {
		c.ChunkSize = d.ChunkSize
	}
	return c
}

func (c Config) Validate() error {
	if c.Tick > c.MaxRecording {
		return errors.Errorf("tick %s is longer than max_recording %s", c.Tick, c.MaxRecording)
	}
	return nil
}
