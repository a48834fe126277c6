// Package config handles configuration loading, validation, and persistence
// for the WrecksShop backend.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 8080
	DefaultRCONPort   = 27020
)

// Config is the root configuration structure for WrecksShop.
type Config struct {
	mu   sync.RWMutex
	path string

	ShopData        ShopData        `json:"shop_data"`
	ApplicationData ApplicationData `json:"application_data"`
}

// ShopData contains the game-facing configuration: RCON servers, shop
// catalog, point economy settings.
type ShopData struct {
	// Paths
	DatabasePath string `json:"database_path"`
	CatalogPath  string `json:"catalog_path"`

	// RCON servers
	Servers []ServerEntry `json:"rcon_servers"`

	// RCON policy
	RCONTimeoutSec    int `json:"rcon_timeout_sec"`
	RCONRetryAttempts int `json:"rcon_retry_attempts"`
	RCONRetryDelayMS  int `json:"rcon_retry_delay_ms"`

	// API
	APIPort int `json:"api_port"`

	// Point economy
	RewardPoints      int `json:"reward_points"`
	MaxTransferPoints int `json:"max_points_per_transfer"`

	// Discounts maps a Discord role name to a percentage off (0-100).
	// The largest discount a buyer qualifies for wins.
	Discounts map[string]float64 `json:"discounts,omitempty"`
}

// ServerEntry describes one Ark server reachable over RCON.
// The password may be left empty in config.json and supplied via the
// RCON_PASSWORD environment variable instead.
type ServerEntry struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	Map      string `json:"map"`
}

// Addr returns the host:port key for this server.
func (s ServerEntry) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ApplicationData contains backend application configuration.
type ApplicationData struct {
	Timers   TimerConfig    `json:"timers"`
	Discord  DiscordConfig  `json:"discord"`
	Tip4Serv Tip4ServConfig `json:"tip4serv"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Security SecurityConfig `json:"security"`
	Logging  LoggingConfig  `json:"logging"`
}

// TimerConfig holds background task interval settings.
type TimerConfig struct {
	RedeliverySweepInterval int `json:"redelivery_sweep_interval_sec"`
	RewardInterval          int `json:"reward_interval_sec"`
	ServerPollInterval      int `json:"server_poll_interval_sec"`
}

// DiscordConfig holds Discord notification settings.
type DiscordConfig struct {
	OwnerID        string `json:"owner_id"`
	WebhookURL     string `json:"webhook_url"`
	NotifyOnAuth   bool   `json:"notify_on_auth_failure"`
	NotifyOnQueued bool   `json:"notify_on_queued_delivery"`
	NotifyOnCredit bool   `json:"notify_on_large_credit"`
	LargeCreditMin int    `json:"large_credit_min_points"`
}

// Tip4ServConfig holds webhook top-up settings.
type Tip4ServConfig struct {
	Enabled bool   `json:"enabled"`
	Secret  string `json:"secret"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	CAFile    string `json:"ca_file"`
	ClientID  string `json:"client_id"`
}

// SecurityConfig holds API security settings.
type SecurityConfig struct {
	APIToken       string   `json:"api_token"`
	TLSEnabled     bool     `json:"tls_enabled"`
	TLSCertFile    string   `json:"tls_cert_file"`
	TLSKeyFile     string   `json:"tls_key_file"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	AuthDisabled   bool     `json:"auth_disabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ShopData: ShopData{
			DatabasePath:      "data/shop.db",
			CatalogPath:       "config/shop_items.json",
			RCONTimeoutSec:    10,
			RCONRetryAttempts: 3,
			RCONRetryDelayMS:  1000,
			APIPort:           DefaultAPIPort,
			RewardPoints:      10,
			MaxTransferPoints: 10000,
		},
		ApplicationData: ApplicationData{
			Timers: TimerConfig{
				RedeliverySweepInterval: 300,
				RewardInterval:          1800,
				ServerPollInterval:      300,
			},
			Discord: DiscordConfig{
				NotifyOnAuth:   true,
				NotifyOnQueued: true,
				NotifyOnCredit: false,
				LargeCreditMin: 1000,
			},
			MQTT: MQTTConfig{
				Enabled: false,
				Port:    8883,
				UseTLS:  true,
			},
			Security: SecurityConfig{
				RateLimitRPS: 100,
				AuthDisabled: false,
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxSizeMB:  10,
				MaxBackups: 5,
			},
		},
	}
}

// Load reads configuration from a JSON file, creating a default one when
// missing. Environment overrides are applied after the file is parsed.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save config to persist any new default fields added in code updates.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides pulls secrets from the environment so they never need
// to live in config.json. The .env file is loaded by main before this runs.
func (c *Config) applyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("WRECKSSHOP_API_TOKEN"); v != "" {
		c.ApplicationData.Security.APIToken = v
	}
	if v := os.Getenv("TIP4SERV_SECRET"); v != "" {
		c.ApplicationData.Tip4Serv.Secret = v
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		c.ApplicationData.Discord.WebhookURL = v
	}
	if v := os.Getenv("RCON_PASSWORD"); v != "" {
		for i := range c.ShopData.Servers {
			if c.ShopData.Servers[i].Password == "" {
				c.ShopData.Servers[i].Password = v
			}
		}
	}
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetShopData returns a copy of the shop data configuration.
func (c *Config) GetShopData() ShopData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ShopData
}

// SetShopData updates the shop data configuration.
func (c *Config) SetShopData(data ShopData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ShopData = data
}

// GetApplicationData returns a copy of the application data configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// SetApplicationData updates the application data configuration.
func (c *Config) SetApplicationData(data ApplicationData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ApplicationData = data
}

// FindServer returns the server entry with the given name.
func (c *Config) FindServer(name string) (ServerEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.ShopData.Servers {
		if s.Name == name {
			return s, true
		}
	}
	return ServerEntry{}, false
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// IsFirstRun returns true if the configuration needs initial setup.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ShopData.Servers) == 0
}
