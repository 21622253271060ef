// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

// Package config loads the session manager configuration from embedded defaults, an optional
// YAML file and command line flags, in ascending precedence.
package config

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/modhost/modhost/internal/host"
	"github.com/modhost/modhost/internal/inject"
	mos "github.com/modhost/modhost/internal/os"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	FileName = "modhost.yaml"

	portableDataDirName = "data"
	defaultConfigPath   = "embed/modhost.yaml"

	DataDirFlagName  = "data-dir"
	DataDirFlagUsage = "Directory holding profile, logs and engine state"

	PortableFlagName  = "portable"
	PortableFlagUsage = "Run as portable installation, keeping all data next to the executable"

	UpdateUrlFlagName  = "update-url"
	UpdateUrlFlagUsage = "URL of the update service"

	EngineDllFlagName  = "engine-dll"
	EngineDllFlagUsage = "Path to the engine DLL injected into new processes"
)

// keys overwritten by the flags of the same name
var flagKeys = map[string]string{
	DataDirFlagName:   "dataDir",
	PortableFlagName:  "portable",
	UpdateUrlFlagName: "update.url",
	EngineDllFlagName: "engine.dll",
}

//go:embed embed/modhost.yaml
var embeddedFiles embed.FS

type Config struct {
	DataDir   string          `mapstructure:"dataDir" yaml:"dataDir"`
	Portable  bool            `mapstructure:"portable" yaml:"portable"`
	Update    UpdateConfig    `mapstructure:"update" yaml:"update"`
	Injection InjectionConfig `mapstructure:"injection" yaml:"injection"`
	Engine    EngineConfig    `mapstructure:"engine" yaml:"engine"`
}

type UpdateConfig struct {
	URL             string        `mapstructure:"url" yaml:"url"`
	Interval        time.Duration `mapstructure:"interval" yaml:"interval"`
	MaxResponseSize string        `mapstructure:"maxResponseSize" yaml:"maxResponseSize"`
}

type InjectionConfig struct {
	Include            string `mapstructure:"include" yaml:"include"`
	Exclude            string `mapstructure:"exclude" yaml:"exclude"`
	ThreadAttachExempt string `mapstructure:"threadAttachExempt" yaml:"threadAttachExempt"`
	IncludeCritical    bool   `mapstructure:"includeCritical" yaml:"includeCritical"`
}

type EngineConfig struct {
	Dll string `mapstructure:"dll" yaml:"dll"`
}

type loader struct {
	config     *viper.Viper
	exeDir     func() (string, error)
	defaultDir func() string
}

// AddFlags registers the flags overwriting configuration values.
func AddFlags(flags *pflag.FlagSet) {
	flags.String(DataDirFlagName, "", DataDirFlagUsage)
	flags.Bool(PortableFlagName, false, PortableFlagUsage)
	flags.String(UpdateUrlFlagName, "", UpdateUrlFlagUsage)
	flags.String(EngineDllFlagName, "", EngineDllFlagUsage)
}

// Load reads the configuration. An empty path means the config file next to the executable, if existing.
// Flags are only applied when set explicitly; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	l := &loader{
		config:     viper.New(),
		exeDir:     mos.ExecutableDir,
		defaultDir: host.DefaultDataDir,
	}
	return l.load(path, flags)
}

// LoadFromDir reads the config file placed in dir, if existing, and resolves relative paths against dir
// instead of the executable's directory.
func LoadFromDir(dir string) (*Config, error) {
	l := &loader{
		config:     viper.New(),
		exeDir:     func() (string, error) { return dir, nil },
		defaultDir: host.DefaultDataDir,
	}
	return l.load("", nil)
}

func (l *loader) load(path string, flags *pflag.FlagSet) (*Config, error) {
	l.config.SetConfigType("yaml")

	if err := l.loadDefaults(); err != nil {
		return nil, err
	}

	exeDir, err := l.exeDir()
	if err != nil {
		return nil, err
	}

	if path == "" {
		if candidate := filepath.Join(exeDir, FileName); mos.PathExists(candidate) {
			path = candidate
		}
	}

	if path != "" {
		if err := l.loadUserConfig(path); err != nil {
			return nil, err
		}
	}

	if err := l.bindFlags(flags); err != nil {
		return nil, err
	}

	var config Config
	if err := l.config.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("could not convert config: %w", err)
	}

	if err := config.resolveDataDir(exeDir, l.defaultDir); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (l *loader) loadDefaults() error {
	slog.Debug("Loading embedded config file", "path", defaultConfigPath)

	content, err := embeddedFiles.ReadFile(defaultConfigPath)
	if err != nil {
		return fmt.Errorf("could not read embedded config: %w", err)
	}
	if err := l.config.ReadConfig(bytes.NewReader(content)); err != nil {
		return fmt.Errorf("could not parse embedded config: %w", err)
	}
	return nil
}

func (l *loader) loadUserConfig(path string) error {
	slog.Debug("Loading user-provided config file", "path", path)

	l.config.SetConfigFile(path)
	if err := l.config.MergeInConfig(); err != nil {
		return fmt.Errorf("could not load config file '%s': %w", path, err)
	}
	return nil
}

func (l *loader) bindFlags(flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for flagName, key := range flagKeys {
		flag := flags.Lookup(flagName)
		if flag == nil {
			continue
		}
		if err := l.config.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("could not bind flag '%s': %w", flagName, err)
		}
	}
	return nil
}

func (c *Config) resolveDataDir(exeDir string, defaultDir func() string) error {
	switch {
	case c.DataDir != "":
		dir, err := host.ResolveTildePrefix(c.DataDir)
		if err != nil {
			return err
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(exeDir, dir)
		}
		c.DataDir = dir
	case c.Portable:
		c.DataDir = filepath.Join(exeDir, portableDataDirName)
	default:
		c.DataDir = defaultDir()
	}

	if c.Engine.Dll != "" && !filepath.IsAbs(c.Engine.Dll) {
		c.Engine.Dll = filepath.Join(exeDir, c.Engine.Dll)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Update.URL != "" {
		if parsed, err := url.Parse(c.Update.URL); err != nil || !strings.HasPrefix(parsed.Scheme, "http") || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("update url '%s' must be an absolute http(s) URL", c.Update.URL))
		}
	}
	if c.Update.Interval < 0 {
		errs = append(errs, fmt.Errorf("update interval '%s' must not be negative", c.Update.Interval))
	}
	if _, err := c.Update.MaxResponseBytes(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// MaxResponseBytes returns the response body limit, zero meaning the update client's default.
func (u UpdateConfig) MaxResponseBytes() (int64, error) {
	if strings.TrimSpace(u.MaxResponseSize) == "" {
		return 0, nil
	}
	size, err := ParseByteSize(u.MaxResponseSize)
	if err != nil {
		return 0, fmt.Errorf("invalid update max response size: %w", err)
	}
	return int64(size), nil
}

func (i InjectionConfig) Policy() inject.Policy {
	return inject.Policy{
		Include:            i.Include,
		Exclude:            i.Exclude,
		ThreadAttachExempt: i.ThreadAttachExempt,
		IncludeCritical:    i.IncludeCritical,
	}
}
