package dds

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config configures a Core (spec.md §4.1, §6). Fields mirror the original's
// DDSCore::initialize parameters plus the logging knobs every process in
// this module's family carries.
type Config struct {
	// Logging configures the zap logger built by InitLogging.
	Logging LoggingConfig `yaml:"logging"`
	// SegmentName is the POSIX shared-memory object name, e.g. "/mbdds_shm"
	// (spec.md §6's default segment name, renamed from the original's
	// "/MB_DDF_SHM").
	SegmentName string `yaml:"segment_name"`
	// SegmentSize is the fixed size of the backing shared-memory segment.
	// Must be at least 1 MiB (spec.md §4.1 step 2 / wire.MinSegmentSize).
	SegmentSize datasize.ByteSize `yaml:"segment_size"`
	// DefaultRingSize is the ring arena size used when Core.Publisher or
	// Core.Subscriber implicitly registers a topic that doesn't exist yet
	// (mirrors DDSCore::create_or_get_topic_buffer's 1 MiB default).
	DefaultRingSize datasize.ByteSize `yaml:"default_ring_size"`
	// ChecksumsEnabled controls whether published messages carry a CRC-32
	// over their payload (internal/ring.Options.ChecksumsEnabled).
	ChecksumsEnabled bool `yaml:"checksums_enabled"`
}

// LoggingConfig is the configuration for the logging subsystem, a direct
// structural port of common/go/logging.Config.
type LoggingConfig struct {
	Level zapcore.Level `yaml:"level"`
}

// DefaultConfig returns the module's default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging:          LoggingConfig{Level: zapcore.InfoLevel},
		SegmentName:      "/mbdds_shm",
		SegmentSize:      128 * datasize.MB,
		DefaultRingSize:  1 * datasize.MB,
		ChecksumsEnabled: true,
	}
}

// LoadConfig loads configuration from path, overlaying it on DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to deserialize config: %w", err)
	}

	return cfg, nil
}
