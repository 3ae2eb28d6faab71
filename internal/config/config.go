package config

import (
	"net"
	"strconv"
	"time"

	"sitemap-watch/pkg/logger"
	"sitemap-watch/pkg/notifier"
	"sitemap-watch/pkg/storage"
)

type Config struct {
	Server   ServerConfig          `mapstructure:"server"`
	Monitor  MonitorConfig         `mapstructure:"monitor"`
	Storage  storage.StorageConfig `mapstructure:"storage"`
	Notifier notifier.Config       `mapstructure:"notifier"`
	Logger   logger.Config         `mapstructure:"logger"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type MonitorConfig struct {
	SitesFile             string        `mapstructure:"sites_file"`
	Interval              time.Duration `mapstructure:"interval"`
	RunOnStart            bool          `mapstructure:"run_on_start"`
	Workers               int           `mapstructure:"workers"`
	SiteTimeout           time.Duration `mapstructure:"site_timeout"`
	FetchTimeout          time.Duration `mapstructure:"fetch_timeout"`
	MaxDepth              int           `mapstructure:"max_depth"`
	SubSitemapConcurrency int           `mapstructure:"sub_sitemap_concurrency"`
	ExcludePaths          []string      `mapstructure:"exclude_paths"`
	ExcludeExtensions     []string      `mapstructure:"exclude_extensions"`
}

// Address is the listen address for the HTTP API.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type Manager interface {
	Load(configPath string) (*Config, error)
	Reload() error
	GetConfig() *Config
}
