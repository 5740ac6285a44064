package config

import (
	"encoding/json"
	"os"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Cache    CacheConfig    `json:"cache"`
	Quotes   QuotesConfig   `json:"quotes"`
	RPC      RPCConfig      `json:"rpc"`
	Feed     FeedConfig     `json:"feed"`
	Engine   EngineConfig   `json:"engine"`
	Wallet   WalletConfig   `json:"wallet"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port int `json:"port"`
}

// DatabaseConfig represents PostgreSQL configuration. An empty Host selects
// the in-memory order store.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// CacheConfig represents Redis configuration for the shared pair-quote
// cache tier. An empty Addr disables the tier.
type CacheConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	Database int    `json:"database"`
}

// QuotesConfig represents the aggregation API configuration
type QuotesConfig struct {
	BaseURL       string           `json:"base_url"`
	SlippageBps   int              `json:"slippage_bps"`
	TokenDecimals map[string]int32 `json:"token_decimals"`
}

// RPCConfig represents the chain RPC endpoint used to submit transactions
type RPCConfig struct {
	URL string `json:"url"`
}

// FeedConfig represents price feed configuration. An empty PushURL selects
// polling only.
type FeedConfig struct {
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
	PushURL             string `json:"push_url"`
}

// EngineConfig represents order engine timing configuration
type EngineConfig struct {
	ScanIntervalSeconds   int `json:"scan_interval_seconds"`
	ExecuteTimeoutSeconds int `json:"execute_timeout_seconds"`
	StuckThresholdMinutes int `json:"stuck_threshold_minutes"`
}

// WalletConfig represents the local signing wallet configuration
type WalletConfig struct {
	KeypairFile string `json:"keypair_file"`
}

// Load loads configuration from file, with .env and environment overrides
// for endpoints and secrets
func Load() (*Config, error) {
	// A missing .env file is fine; env vars may come from the process.
	_ = godotenv.Load()

	configFile := "configs/config.json"
	if envFile := os.Getenv("CONFIG_FILE"); envFile != "" {
		configFile = envFile
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	config.Database.Password = getEnv("DB_PASSWORD", config.Database.Password)
	config.Cache.Password = getEnv("REDIS_PASSWORD", config.Cache.Password)
	config.Quotes.BaseURL = getEnv("QUOTE_API_URL", config.Quotes.BaseURL)
	config.RPC.URL = getEnv("RPC_URL", config.RPC.URL)
	config.Wallet.KeypairFile = getEnv("WALLET_KEYPAIR_FILE", config.Wallet.KeypairFile)

	return &config, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
