// Package config loads dctgate settings from YAML or TOML files.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"example.com/dctgate/internal/common"
	"example.com/dctgate/internal/dct2000"
)

type CodecConfig struct {
	MaxRecordSize int    `yaml:"maxRecordSize" toml:"maxRecordSize"`
	MaxLineLength int    `yaml:"maxLineLength" toml:"maxLineLength"`
	TimeZone      string `yaml:"timeZone" toml:"timeZone"`
}

type ExportConfig struct {
	// SnapLen caps captured bytes per packet in pcap output.
	SnapLen int `yaml:"snapLen" toml:"snapLen"`
	// Encapsulation, if set, restricts pcap export to one kind.
	Encapsulation string `yaml:"encapsulation" toml:"encapsulation"`
}

type Config struct {
	Port         int              `yaml:"port" toml:"port"`
	StorageDir   string           `yaml:"storageDir" toml:"storageDir"`
	MaxUploadMB  int              `yaml:"maxUploadMB" toml:"maxUploadMB"`
	Concurrency  int              `yaml:"concurrency" toml:"concurrency"`
	ReadTimeout  string           `yaml:"readTimeout" toml:"readTimeout"`
	WriteTimeout string           `yaml:"writeTimeout" toml:"writeTimeout"`
	Logs         common.LogConfig `yaml:"logs" toml:"logs"`
	Codec        CodecConfig      `yaml:"codec" toml:"codec"`
	Export       ExportConfig     `yaml:"export" toml:"export"`
}

const (
	DefaultPort        = 8080
	DefaultMaxUploadMB = 512
	DefaultSnapLen     = 262144
)

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

// Load decodes the file at path, choosing the format by extension
// (.toml, otherwise YAML), then applies defaults and resolves relative
// paths against the file's directory.
func Load(path string) (Config, error) {
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	default:
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}

	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" || filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Clean(filepath.Join(baseDir, p))
	}
	if cfg.StorageDir != "" {
		cfg.StorageDir = resolvePath(cfg.StorageDir)
	}
	if cfg.Logs.Directory != "" {
		cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = filepath.Join(".", "data")
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = DefaultMaxUploadMB
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.ReadTimeout == "" {
		cfg.ReadTimeout = "60s"
	}
	if cfg.WriteTimeout == "" {
		cfg.WriteTimeout = "60s"
	}
	if cfg.Logs.Level == "" {
		cfg.Logs.Level = "info"
	}
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(cfg.StorageDir, "logs")
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
	if cfg.Codec.MaxRecordSize <= 0 || cfg.Codec.MaxRecordSize > dct2000.MaxRecordSize {
		cfg.Codec.MaxRecordSize = dct2000.MaxRecordSize
	}
	if cfg.Codec.MaxLineLength <= 0 {
		cfg.Codec.MaxLineLength = dct2000.MaxLineLength
	}
	if cfg.Export.SnapLen <= 0 {
		cfg.Export.SnapLen = DefaultSnapLen
	}
}

// Validate checks values that defaults cannot repair.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if _, err := c.Timeouts(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Export.Encapsulation != "" {
		if _, ok := dct2000.ParseEncapsulation(c.Export.Encapsulation); !ok {
			return fmt.Errorf("unknown export encapsulation %q", c.Export.Encapsulation)
		}
	}
	return nil
}

// Timeouts returns the parsed HTTP read and write timeouts.
func (c Config) Timeouts() ([2]time.Duration, error) {
	var out [2]time.Duration
	for i, s := range []string{c.ReadTimeout, c.WriteTimeout} {
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil {
			return out, fmt.Errorf("parse timeout %q: %w", s, err)
		}
		out[i] = d
	}
	return out, nil
}

// Location returns the zone used for trace creation times.
func (c Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Codec.TimeZone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", tz, err)
	}
	return loc, nil
}

// ReaderOptions translates codec settings into reader options.
func (c Config) ReaderOptions() ([]dct2000.Option, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	return []dct2000.Option{
		dct2000.WithLocation(loc),
		dct2000.WithMaxLineLength(c.Codec.MaxLineLength),
		dct2000.WithMaxRecordSize(c.Codec.MaxRecordSize),
	}, nil
}
