package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hupe1980/graphstore"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// PropertyConfig is one column of the loaded table.
type PropertyConfig struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`
}

// Config is the loader configuration. Every key can be overridden by a
// GSLOAD_ environment variable, e.g. GSLOAD_TABLE_NAME.
type Config struct {
	Dir               string `mapstructure:"dir"`
	NodeGroupSizeLog2 uint8  `mapstructure:"node_group_size_log2"`
	LogLevel          string `mapstructure:"log_level"`

	Table struct {
		Name       string           `mapstructure:"name"`
		PrimaryKey string           `mapstructure:"primary_key"`
		Properties []PropertyConfig `mapstructure:"properties"`
	} `mapstructure:"table"`

	CSV struct {
		Files     []string `mapstructure:"files"`
		Header    bool     `mapstructure:"header"`
		Delimiter string   `mapstructure:"delimiter"`
		Null      string   `mapstructure:"null"`
	} `mapstructure:"csv"`

	IndexWorkers int `mapstructure:"index_workers"`

	Archive ArchiveConfig `mapstructure:"archive"`
}

// ArchiveConfig selects where the loaded database is archived. Backend is
// "local" (Dir), "minio" or "s3" (Bucket and Prefix).
type ArchiveConfig struct {
	Backend     string `mapstructure:"backend"`
	Dir         string `mapstructure:"dir"`
	Compression string `mapstructure:"compression"`
	Keep        int    `mapstructure:"keep"`

	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Secure    bool   `mapstructure:"secure"`
	PartSize  int64  `mapstructure:"part_size"`
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("gsload", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "path of the YAML config file")
	fs.StringP("dir", "d", "", "database directory")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.StringSlice("file", nil, "CSV file to load (repeatable)")
	fs.String("archive-dir", "", "archive the database into this directory after loading")
	fs.String("archive-backend", "", "archive backend (local, minio, s3)")
	fs.String("archive-bucket", "", "bucket of the minio and s3 archive backends")
	return fs
}

// LoadConfig reads the config file named by the --config flag and applies
// environment variables and flags on top of it.
func LoadConfig(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetDefault("dir", "./data")
	v.SetDefault("node_group_size_log2", 17)
	v.SetDefault("log_level", "info")
	v.SetDefault("csv.header", true)
	v.SetDefault("csv.delimiter", ",")
	v.SetDefault("csv.null", "")
	v.SetDefault("index_workers", 0)
	v.SetDefault("archive.backend", "local")
	v.SetDefault("archive.compression", "lz4")
	v.SetDefault("archive.secure", true)
	v.SetDefault("archive.keep", 0)

	v.SetEnvPrefix("GSLOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	binds := map[string]string{
		"dir":             "dir",
		"log_level":       "log-level",
		"csv.files":       "file",
		"archive.dir":     "archive-dir",
		"archive.backend": "archive-backend",
		"archive.bucket":  "archive-bucket",
	}
	for key, flag := range binds {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, err
		}
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Table.Name == "" {
		errs = append(errs, errors.New("table.name is required"))
	}
	if len(c.Table.Properties) == 0 {
		errs = append(errs, errors.New("table.properties is required"))
	}
	if c.Table.PrimaryKey == "" {
		errs = append(errs, errors.New("table.primary_key is required"))
	}
	if len(c.CSV.Files) == 0 {
		errs = append(errs, errors.New("at least one CSV file is required"))
	}
	if len([]rune(c.CSV.Delimiter)) != 1 {
		errs = append(errs, fmt.Errorf("csv.delimiter must be one character, got %q", c.CSV.Delimiter))
	}
	if _, err := c.level(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Archive.validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Enabled reports whether an archive target is configured.
func (a *ArchiveConfig) Enabled() bool {
	if a.Backend == "local" {
		return a.Dir != ""
	}
	return true
}

func (a *ArchiveConfig) validate() error {
	switch a.Backend {
	case "local":
		return nil
	case "minio":
		if a.Endpoint == "" {
			return errors.New("archive.endpoint is required for the minio backend")
		}
	case "s3":
	default:
		return fmt.Errorf("archive.backend must be local, minio or s3, got %q", a.Backend)
	}
	if a.Bucket == "" {
		return fmt.Errorf("archive.bucket is required for the %s backend", a.Backend)
	}
	if a.PartSize < 0 {
		return errors.New("archive.part_size must not be negative")
	}
	return nil
}

func (c *Config) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Properties converts the configured columns.
func (c *Config) Properties() ([]graphstore.Property, error) {
	props := make([]graphstore.Property, len(c.Table.Properties))
	for i, p := range c.Table.Properties {
		t, err := graphstore.ParseDataType(p.Type)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", p.Name, err)
		}
		props[i] = graphstore.Property{Name: p.Name, Type: t}
	}
	return props, nil
}
