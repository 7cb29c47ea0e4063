// Package conf loads worker configuration from YAML files and environment
// variables via Viper.
package conf

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Settings is the root configuration for the offline worker.
type Settings struct {
	Listen   string           `mapstructure:"listen"`
	LogLevel string           `mapstructure:"log_level"`
	Upstream string           `mapstructure:"upstream"`
	Cache    CacheSettings    `mapstructure:"cache"`
	Shell    ShellSettings    `mapstructure:"shell"`
	Entity   EntitySettings   `mapstructure:"entity"`
	Database DatabaseSettings `mapstructure:"database"`
	Fetch    FetchSettings    `mapstructure:"fetch"`
}

// CacheSettings controls partition naming. ShellVersion changes on every
// deploy; EntityVersion has its own longer-lived scheme so entity partitions
// survive shell upgrades.
type CacheSettings struct {
	Prefix        string `mapstructure:"prefix"`
	ShellVersion  string `mapstructure:"shell_version"`
	EntityVersion string `mapstructure:"entity_version"`
}

// ShellSettings lists the shell assets cached at install time. Boot is the
// minimal subset (root document plus entry script) whose caching failure is
// fatal; everything else is best effort.
type ShellSettings struct {
	Assets []string `mapstructure:"assets"`
	Boot   []string `mapstructure:"boot"`
}

// FallbackDoc returns the cached document served when an offline navigation
// has no exact match: the first boot entry, "/" when the boot set is empty.
func (s ShellSettings) FallbackDoc() string {
	if len(s.Boot) > 0 {
		return s.Boot[0]
	}
	return "/"
}

// EntitySettings holds the route templates for one entity's fixed resource
// set. Both templates take the entity ID as their single %s argument.
type EntitySettings struct {
	DocRoute  string `mapstructure:"doc_route"`
	DataRoute string `mapstructure:"data_route"`
}

// DocURL returns the document route path for an entity.
func (e EntitySettings) DocURL(entityID string) string {
	return fmt.Sprintf(e.DocRoute, entityID)
}

// DataURL returns the data endpoint path for an entity.
func (e EntitySettings) DataURL(entityID string) string {
	return fmt.Sprintf(e.DataRoute, entityID)
}

// DatabaseSettings selects the cache store backend.
type DatabaseSettings struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "mysql"
	Path   string `mapstructure:"path"`   // sqlite file path
	DSN    string `mapstructure:"dsn"`    // mysql DSN
}

// FetchSettings tunes outbound network fetches.
type FetchSettings struct {
	Timeout Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8970")
	v.SetDefault("log_level", "info")
	v.SetDefault("cache.prefix", "cityshelf")
	v.SetDefault("cache.entity_version", "v1")
	v.SetDefault("shell.assets", []string{"/", "/manifest.webmanifest"})
	v.SetDefault("shell.boot", []string{"/"})
	v.SetDefault("entity.doc_route", "/guide/%s")
	v.SetDefault("entity.data_route", "/api/guides/%s")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "offsync.db")
	v.SetDefault("fetch.timeout", "30s")
}

// Load reads settings from the given config file (optional; pass "" to use
// defaults and environment only). Environment variables use the OFFSYNC_
// prefix with underscores, e.g. OFFSYNC_CACHE_SHELL_VERSION.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("offsync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var settings Settings
	err := v.Unmarshal(&settings, func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = DurationDecodeHook()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Validate checks the settings for values the worker cannot run without.
func (s *Settings) Validate() error {
	if s.Upstream == "" {
		return fmt.Errorf("upstream origin is required")
	}
	u, err := url.Parse(s.Upstream)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("upstream %q is not an absolute URL", s.Upstream)
	}
	if s.Cache.ShellVersion == "" {
		return fmt.Errorf("cache.shell_version is required")
	}
	if s.Cache.Prefix == "" {
		return fmt.Errorf("cache.prefix is required")
	}
	if !strings.Contains(s.Entity.DocRoute, "%s") || !strings.Contains(s.Entity.DataRoute, "%s") {
		return fmt.Errorf("entity route templates must contain a %%s placeholder")
	}
	return nil
}
