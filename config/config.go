// Package config loads the tradingbot configuration from an INI file with
// section.key layout, with environment variable overrides on top.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Log     LogConfig
	DB      DBConfig
	Bus     BusConfig
	API     APIConfig
	Symbols SymbolsConfig
	Broker  BrokerConfig
	Sell    SellConfig
	Buy     BuyConfig
	Orders  OrdersConfig
	Run     RunConfig
}

// LogConfig holds logging configuration. Level keeps the numeric scale
// of the config file: 0/10/20/30/40/50.
type LogConfig struct {
	Path  string
	Level int
}

// DBConfig holds database configuration. Driver is either "postgres"
// or "sqlite"; for sqlite, Database is the file path.
type DBConfig struct {
	Driver   string
	Username string
	Password string
	Host     string
	Database string
}

// BusConfig holds the Redis endpoint backing the message bus.
type BusConfig struct {
	Host     string
	Port     string
	Password string
}

// APIConfig holds the market data stream configuration.
type APIConfig struct {
	URL     string
	Token   string
	Buffer  int // transactions buffered before a database.save is emitted
	Respawn int // seconds to wait before redialing a dead stream
}

// SymbolsConfig describes where subscription symbols are discovered:
// every file under Path matching Mask is a JSON object with a "symbol" field.
type SymbolsConfig struct {
	Path string
	Mask string
}

// BrokerConfig holds the fulfilment engine parameters.
type BrokerConfig struct {
	Budget     float64   // seed amount when the budget table is empty
	Commission Threshold // fixed amount or "x%" of transaction value
	Reserve    float64   // budget floor no order may breach
}

// SellConfig holds the profit evaluator parameters.
type SellConfig struct {
	Cooldown int64 // seconds a position must be held before selling
	Margin   Threshold
}

// BuyConfig holds the trend evaluator parameters.
type BuyConfig struct {
	Trend Threshold
}

// OrdersConfig holds the fulfilment window parameters, in seconds.
type OrdersConfig struct {
	Lookahead  int64
	Lookbehind int64
}

// RunConfig holds process management configuration.
type RunConfig struct {
	Path string // pidfile directory
}

// Load reads the configuration file at path (INI format). An empty path
// falls back to config.ini in the working directory. Environment
// variables prefixed TRADINGBOT_ override file values (section.key maps
// to TRADINGBOT_SECTION_KEY); a .env file is loaded first if present.
func Load(path string) (*Config, error) {
	// Load .env file if it exists, for secrets like db password and api token
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("ini")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TRADINGBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return &Config{
		Log: LogConfig{
			Path:  v.GetString("log.path"),
			Level: v.GetInt("log.level"),
		},
		DB: DBConfig{
			Driver:   v.GetString("db.driver"),
			Username: v.GetString("db.username"),
			Password: v.GetString("db.password"),
			Host:     v.GetString("db.host"),
			Database: v.GetString("db.database"),
		},
		Bus: BusConfig{
			Host:     v.GetString("bus.host"),
			Port:     v.GetString("bus.port"),
			Password: v.GetString("bus.password"),
		},
		API: APIConfig{
			URL:     v.GetString("api.url"),
			Token:   v.GetString("api.token"),
			Buffer:  v.GetInt("api.buffer"),
			Respawn: v.GetInt("api.respawn"),
		},
		Symbols: SymbolsConfig{
			Path: v.GetString("symbols.path"),
			Mask: v.GetString("symbols.mask"),
		},
		Broker: BrokerConfig{
			Budget:     v.GetFloat64("broker.budget"),
			Commission: ParseThreshold(v.GetString("broker.commission")),
			Reserve:    v.GetFloat64("broker.reserve"),
		},
		Sell: SellConfig{
			Cooldown: v.GetInt64("sell.cooldown"),
			Margin:   ParseThreshold(v.GetString("sell.margin")),
		},
		Buy: BuyConfig{
			Trend: ParseThreshold(v.GetString("buy.trend")),
		},
		Orders: OrdersConfig{
			Lookahead:  v.GetInt64("orders.lookahead"),
			Lookbehind: v.GetInt64("orders.lookbehind"),
		},
		Run: RunConfig{
			Path: v.GetString("run.path"),
		},
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.path", "log")
	v.SetDefault("log.level", 20)

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.username", "tradingbot")
	v.SetDefault("db.password", "")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.database", "tradingbot")

	v.SetDefault("bus.host", "localhost")
	v.SetDefault("bus.port", "6379")
	v.SetDefault("bus.password", "")

	v.SetDefault("api.url", "wss://ws.finnhub.io")
	v.SetDefault("api.token", "")
	v.SetDefault("api.buffer", 100)
	v.SetDefault("api.respawn", 5)

	v.SetDefault("symbols.path", "symbols")
	v.SetDefault("symbols.mask", "*.json")

	v.SetDefault("broker.budget", 10000.0)
	v.SetDefault("broker.commission", "0.0")
	v.SetDefault("broker.reserve", 0.0)

	v.SetDefault("sell.cooldown", 3600)
	v.SetDefault("sell.margin", "1%")

	v.SetDefault("buy.trend", "1%")

	v.SetDefault("orders.lookahead", 900)
	v.SetDefault("orders.lookbehind", 3600)

	v.SetDefault("run.path", "run")
}
