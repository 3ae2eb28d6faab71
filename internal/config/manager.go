package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"sitemap-watch/pkg/storage"
)

// envBindings maps config keys to the unprefixed variable names used by CI
// workflows and the deployment environment.
var envBindings = map[string]string{
	"notifier.webhook_url":    "FEISHU_WEBHOOK_URL",
	"storage.kv.account_id":   "CLOUDFLARE_ACCOUNT_ID",
	"storage.kv.api_token":    "CLOUDFLARE_API_TOKEN",
	"storage.kv.namespace_id": "CLOUDFLARE_KV_NAMESPACE_ID",
}

type manager struct {
	mu         sync.RWMutex
	config     *Config
	viper      *viper.Viper
	configPath string
}

func NewManager() Manager {
	return &manager{
		viper: viper.New(),
	}
}

// Load reads defaults, then the optional config file, then the environment.
// An empty configPath means environment and defaults only.
func (m *manager) Load(configPath string) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.setupViper(configPath); err != nil {
		return nil, fmt.Errorf("failed to setup viper: %w", err)
	}

	config, err := m.read()
	if err != nil {
		return nil, err
	}

	m.configPath = configPath
	m.config = config
	return config, nil
}

func (m *manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config == nil {
		return fmt.Errorf("config not loaded")
	}

	config, err := m.read()
	if err != nil {
		return err
	}

	m.config = config
	return nil
}

func (m *manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

func (m *manager) read() (*Config, error) {
	if m.viper.ConfigFileUsed() != "" {
		if err := m.viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := m.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveBackend(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

func (m *manager) setupViper(configPath string) error {
	setDefaults(m.viper)

	if configPath != "" {
		m.viper.SetConfigFile(configPath)
	}

	m.viper.SetEnvPrefix("SITEMAP")
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.viper.AutomaticEnv()

	for key, env := range envBindings {
		if err := m.viper.BindEnv(key, "SITEMAP_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("monitor.sites_file", "data/sites.json")
	v.SetDefault("monitor.interval", time.Hour)
	v.SetDefault("monitor.run_on_start", true)
	v.SetDefault("monitor.workers", 8)
	v.SetDefault("monitor.site_timeout", 2*time.Minute)
	v.SetDefault("monitor.fetch_timeout", 30*time.Second)
	v.SetDefault("monitor.max_depth", 5)
	v.SetDefault("monitor.sub_sitemap_concurrency", 2)
	v.SetDefault("monitor.exclude_paths", []string{})
	v.SetDefault("monitor.exclude_extensions", []string{})

	v.SetDefault("storage.backend", "")
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.sqlite_path", "")
	v.SetDefault("storage.retention_days", 7)
	v.SetDefault("storage.kv.account_id", "")
	v.SetDefault("storage.kv.api_token", "")
	v.SetDefault("storage.kv.namespace_id", "")
	v.SetDefault("storage.kv.base_url", storage.DefaultKVBaseURL)
	v.SetDefault("storage.kv.timeout", 15*time.Second)

	v.SetDefault("notifier.webhook_url", "")
	v.SetDefault("notifier.timeout", 10*time.Second)
	v.SetDefault("notifier.max_keywords", 10)
	v.SetDefault("notifier.time_zone", "UTC")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.time_format", "")
}

// resolveBackend picks KV when no backend is named but KV credentials are
// present, and the file store otherwise.
func resolveBackend(config *Config) {
	if config.Storage.Backend != "" {
		config.Storage.Backend = strings.ToLower(strings.TrimSpace(config.Storage.Backend))
		return
	}
	kv := config.Storage.KV
	if kv.AccountID != "" && kv.APIToken != "" && kv.NamespaceID != "" {
		config.Storage.Backend = storage.BackendKV
		return
	}
	config.Storage.Backend = storage.BackendFile
}

func validateConfig(config *Config) error {
	var errs []error

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d", config.Server.Port))
	}
	if config.Monitor.SitesFile == "" {
		errs = append(errs, fmt.Errorf("monitor.sites_file cannot be empty"))
	}
	if config.Monitor.Workers <= 0 || config.Monitor.Workers > 50 {
		errs = append(errs, fmt.Errorf("monitor.workers must be between 1 and 50, got: %d", config.Monitor.Workers))
	}
	if config.Monitor.Interval < time.Minute {
		errs = append(errs, fmt.Errorf("monitor.interval must be at least 1m, got: %s", config.Monitor.Interval))
	}
	if config.Monitor.MaxDepth <= 0 {
		errs = append(errs, fmt.Errorf("monitor.max_depth must be positive"))
	}
	if config.Storage.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("storage.retention_days cannot be negative"))
	}

	switch config.Storage.Backend {
	case storage.BackendFile, storage.BackendSQLite, storage.BackendMemory:
	case storage.BackendKV:
		kv := config.Storage.KV
		if kv.AccountID == "" || kv.APIToken == "" || kv.NamespaceID == "" {
			errs = append(errs, fmt.Errorf("kv backend requires account_id, api_token and namespace_id"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", config.Storage.Backend))
	}

	if config.Storage.DataDir == "" {
		errs = append(errs, fmt.Errorf("data_dir cannot be empty"))
	}

	return errors.Join(errs...)
}
