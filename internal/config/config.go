package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config is the persistent application configuration
type Config struct {
	// Backend services
	Services ServiceConfig `json:"services"`

	// Session identity
	Identity IdentityConfig `json:"identity"`

	// Feed behavior
	Feed FeedConfig `json:"feed"`

	// UI Preferences
	UI UIConfig `json:"ui"`
}

// ServiceConfig holds the backend endpoints
type ServiceConfig struct {
	FeedCacheURL  string `json:"feed_cache_url"`
	SettlementURL string `json:"settlement_url"`
	SettlementJWT string `json:"settlement_jwt,omitempty"`
}

// IdentityConfig holds the session identity used for personalization
// and stake signing
type IdentityConfig struct {
	Principal     string `json:"principal,omitempty"`
	SigningKeyHex string `json:"signing_key_hex,omitempty"` // hex ed25519 private key
}

// FeedConfig holds feed pipeline settings
type FeedConfig struct {
	NSFWAllowed    bool `json:"nsfw_allowed"`
	MaxQueue       int  `json:"max_queue"`       // hard cap on queued posts
	FetchThreshold int  `json:"fetch_threshold"` // items-from-tail that triggers a fetch
}

// UIConfig holds UI preferences
type UIConfig struct {
	Theme        string `json:"theme"`
	ShowDebug    bool   `json:"show_debug"`    // live event overlay
	AutoplayNext bool   `json:"autoplay_next"` // advance on video end
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Services: ServiceConfig{
			FeedCacheURL:  "https://feed-cache.reelfeed.dev",
			SettlementURL: "https://settle.reelfeed.dev",
		},
		Feed: FeedConfig{
			NSFWAllowed:    false,
			MaxQueue:       200,
			FetchThreshold: 20,
		},
		UI: UIConfig{
			Theme:        "dark",
			ShowDebug:    false,
			AutoplayNext: true,
		},
	}
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".reelfeed", "config.json")
}

// Load reads config from disk, or returns defaults
func Load() (*Config, error) {
	path := ConfigPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			cfg.AutoPopulateFromEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), nil
	}

	cfg.AutoPopulateFromEnv()
	return &cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	path := ConfigPath()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600) // Restrictive permissions for keys
}

// AutoPopulateFromEnv fills in endpoints and credentials from
// environment variables. Environment always wins over the file.
func (c *Config) AutoPopulateFromEnv() {
	if v := os.Getenv("REELFEED_FEED_URL"); v != "" {
		c.Services.FeedCacheURL = v
	}
	if v := os.Getenv("REELFEED_SETTLE_URL"); v != "" {
		c.Services.SettlementURL = v
	}
	if v := os.Getenv("REELFEED_SETTLE_JWT"); v != "" {
		c.Services.SettlementJWT = v
	}
	if v := os.Getenv("REELFEED_PRINCIPAL"); v != "" {
		c.Identity.Principal = v
	}
	if v := os.Getenv("REELFEED_SIGNING_KEY"); v != "" {
		c.Identity.SigningKeyHex = v
	}
}
