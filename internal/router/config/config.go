package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config - структура для хранения конфигураций приложения
type Config struct {
	ServerAddress  string        `mapstructure:"SERVER_ADDRESS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	PostgresConn   string        `mapstructure:"POSTGRES_CONN"`
	PostgresUser   string        `mapstructure:"POSTGRES_USERNAME"`
	PostgresPass   string        `mapstructure:"POSTGRES_PASSWORD"`
	PostgresHost   string        `mapstructure:"POSTGRES_HOST"`
	PostgresPort   string        `mapstructure:"POSTGRES_PORT"`
	PostgresDB     string        `mapstructure:"POSTGRES_DATABASE"`
	MigrationURL   string        `mapstructure:"MIGRATION_URL"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	EscrowRPCURL          string        `mapstructure:"ESCROW_RPC_URL"`
	EscrowContractAddress string        `mapstructure:"ESCROW_CONTRACT_ADDRESS"`
	EscrowPrivateKey      string        `mapstructure:"ESCROW_PRIVATE_KEY"`
	EscrowChainID         int64         `mapstructure:"ESCROW_CHAIN_ID"`
	EscrowTokenDecimals   uint8         `mapstructure:"ESCROW_TOKEN_DECIMALS"`
	EscrowConfirmTimeout  time.Duration `mapstructure:"ESCROW_CONFIRM_TIMEOUT"`
	EscrowPollInterval    time.Duration `mapstructure:"ESCROW_POLL_INTERVAL"`
	EscrowPlaceBid        bool          `mapstructure:"ESCROW_PLACE_BID"`

	RedisURL          string        `mapstructure:"REDIS_URL"`
	NotifyChannel     string        `mapstructure:"NOTIFY_CHANNEL"`
	IdentityHashKey   string        `mapstructure:"IDENTITY_HASH_KEY"`
	IdentityCacheSize int           `mapstructure:"IDENTITY_CACHE_SIZE"`
	IdentityCacheTTL  time.Duration `mapstructure:"IDENTITY_CACHE_TTL"`
}

// LoadConfig загружает конфигурацию из файла; переменные окружения имеют приоритет.
func LoadConfig(path string) (cfg Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("REQUEST_TIMEOUT", "3m")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
	viper.SetDefault("NOTIFY_CHANNEL", "bounty.notifications")
	viper.SetDefault("IDENTITY_HASH_KEY", "bounty:identities")
	viper.SetDefault("IDENTITY_CACHE_SIZE", 1024)
	viper.SetDefault("IDENTITY_CACHE_TTL", "10m")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}
	err = viper.Unmarshal(&cfg)
	return
}
