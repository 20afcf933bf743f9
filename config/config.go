// Package config resolves the Environment shared by the byte sources and
// the commands: service addresses, the cache root and the log level.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment holds the resolved settings.
type Environment struct {
	GDSHost     string        `yaml:"gds_host"`
	GDSPort     int           `yaml:"gds_port"`
	CacheDir    string        `yaml:"cache_dir"`
	S3Bucket    string        `yaml:"s3_bucket"`
	S3Region    string        `yaml:"s3_region"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	LogLevel    string        `yaml:"log_level"`
}

// Defaults returns the settings used when neither the file nor the
// environment sets a value.
func Defaults() Environment {
	cache := ".metio_cache"
	if home, err := os.UserHomeDir(); err == nil {
		cache = filepath.Join(home, ".metio", "cache")
	}
	return Environment{
		GDSPort:     8080,
		CacheDir:    cache,
		S3Region:    "us-east-1",
		HTTPTimeout: 120 * time.Second,
		LogLevel:    "info",
	}
}

// File returns the configuration file path: $METIO_CONFIG, else
// ~/.config_met_io.yaml.
func File() string {
	if p := os.Getenv("METIO_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config_met_io.yaml")
}

// Load reads the configuration file, if present, then applies METIO_*
// environment overrides on top of the defaults. A missing default file
// is not an error; a missing $METIO_CONFIG file is.
func Load() (*Environment, error) {
	env := Defaults()

	if name := File(); name != "" {
		data, err := os.ReadFile(name)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &env); err != nil {
				return nil, errors.Wrapf(err, "parse %s", name)
			}
			logrus.Debugf("Loaded config %s", name)
		case os.IsNotExist(err) && os.Getenv("METIO_CONFIG") == "":
		default:
			return nil, errors.Wrap(err, "config")
		}
	}

	if err := env.override(); err != nil {
		return nil, err
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *Environment) override() error {
	str := map[string]*string{
		"METIO_GDS_HOST":  &e.GDSHost,
		"METIO_CACHE_DIR": &e.CacheDir,
		"METIO_S3_BUCKET": &e.S3Bucket,
		"METIO_S3_REGION": &e.S3Region,
		"METIO_LOG_LEVEL": &e.LogLevel,
	}
	for k, p := range str {
		if v, ok := os.LookupEnv(k); ok {
			*p = v
		}
	}
	if v := os.Getenv("METIO_GDS_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Errorf("invalid METIO_GDS_PORT %q", v)
		}
		e.GDSPort = n
	}
	if v := os.Getenv("METIO_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Errorf("invalid METIO_HTTP_TIMEOUT %q", v)
		}
		e.HTTPTimeout = d
	}
	return nil
}

// Validate checks the resolved settings.
func (e *Environment) Validate() error {
	if e.GDSPort <= 0 || e.GDSPort > 65535 {
		return errors.Errorf("gds port %d out of range", e.GDSPort)
	}
	if e.HTTPTimeout <= 0 {
		return errors.Errorf("http timeout must be positive, got %s", e.HTTPTimeout)
	}
	if e.CacheDir == "" {
		return errors.New("cache dir is required")
	}
	if _, err := logrus.ParseLevel(e.LogLevel); err != nil {
		return errors.Wrap(err, "log level")
	}
	return nil
}

// Level returns the logrus level of LogLevel.
func (e *Environment) Level() logrus.Level {
	l, err := logrus.ParseLevel(e.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return l
}

// HasGDS reports whether a GDS service is configured.
func (e *Environment) HasGDS() bool { return e.GDSHost != "" }
