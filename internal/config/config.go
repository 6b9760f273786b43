package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel string

	DatabaseURL string

	BaseRPCURL  string
	WorldRPCURL string
	EthRPCURL   string

	AuctionContract  string
	CastsContract    string
	TogetherContract string

	AuctionStartBlock  uint64
	TogetherStartBlock uint64

	Interval     time.Duration
	InitialChunk uint64
	MinChunk     uint64
	MaxChunk     uint64
	HeadRefresh  int

	ServerPort     int
	AllowedOrigins []string

	RPCProxyPerMinute int

	SignerKey     string
	MatchInterval time.Duration
	PendingExpiry time.Duration

	RedisAddr string
}

// Load merges .env, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	// A .env in the working directory seeds the environment before viper
	// reads it. Missing file is fine.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CASTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("base-rpc-url", "https://mainnet.base.org")
	v.SetDefault("eth-rpc-url", "https://eth.llamarpc.com")
	v.SetDefault("auction-contract", "0x1108F177596f7A2a913ABf6C208FACEf152C3d8c")
	v.SetDefault("casts-contract", "0xc011Ec7Ca575D4f0a2eDA595107aB104c7Af7A09")
	v.SetDefault("auction-start-block", uint64(33200642))
	v.SetDefault("together-start-block", uint64(1))
	v.SetDefault("interval", 30*time.Second)
	v.SetDefault("initial-chunk", uint64(500))
	v.SetDefault("min-chunk", uint64(125))
	v.SetDefault("max-chunk", uint64(4000))
	v.SetDefault("head-refresh", 10)
	v.SetDefault("port", 3000)
	v.SetDefault("rpc-per-minute", 300)
	v.SetDefault("match-interval", 5*time.Second)
	v.SetDefault("pending-expiry", 10*time.Minute)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("castwatch")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		LogLevel:           v.GetString("log-level"),
		DatabaseURL:        v.GetString("db-url"),
		BaseRPCURL:         v.GetString("base-rpc-url"),
		WorldRPCURL:        v.GetString("world-rpc-url"),
		EthRPCURL:          v.GetString("eth-rpc-url"),
		AuctionContract:    v.GetString("auction-contract"),
		CastsContract:      v.GetString("casts-contract"),
		TogetherContract:   v.GetString("together-contract"),
		AuctionStartBlock:  v.GetUint64("auction-start-block"),
		TogetherStartBlock: v.GetUint64("together-start-block"),
		Interval:           v.GetDuration("interval"),
		InitialChunk:       v.GetUint64("initial-chunk"),
		MinChunk:           v.GetUint64("min-chunk"),
		MaxChunk:           v.GetUint64("max-chunk"),
		HeadRefresh:        v.GetInt("head-refresh"),
		ServerPort:         v.GetInt("port"),
		AllowedOrigins:     getStringSlice(v, "allowed-origins"),
		RPCProxyPerMinute:  v.GetInt("rpc-per-minute"),
		SignerKey:          v.GetString("signer-key"),
		MatchInterval:      v.GetDuration("match-interval"),
		PendingExpiry:      v.GetDuration("pending-expiry"),
		RedisAddr:          v.GetString("redis-addr"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// TogetherEnabled reports whether the together side is configured at all.
func (c Config) TogetherEnabled() bool {
	return c.TogetherContract != ""
}

func (c Config) validate() error {
	for name, addr := range map[string]string{
		"auction-contract":  c.AuctionContract,
		"casts-contract":    c.CastsContract,
		"together-contract": c.TogetherContract,
	} {
		if addr == "" {
			continue
		}
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid address for %s: %s", name, addr)
		}
	}

	if c.MinChunk == 0 {
		return fmt.Errorf("min-chunk must be positive")
	}
	if c.MinChunk > c.MaxChunk {
		return fmt.Errorf("min-chunk %d exceeds max-chunk %d", c.MinChunk, c.MaxChunk)
	}
	if c.InitialChunk < c.MinChunk || c.InitialChunk > c.MaxChunk {
		return fmt.Errorf("initial-chunk %d outside [%d, %d]", c.InitialChunk, c.MinChunk, c.MaxChunk)
	}
	if c.HeadRefresh < 1 {
		return fmt.Errorf("head-refresh must be at least 1")
	}
	if c.AuctionStartBlock == 0 {
		return fmt.Errorf("auction-start-block must be positive")
	}
	if c.TogetherEnabled() {
		if c.WorldRPCURL == "" {
			return fmt.Errorf("world-rpc-url required when together-contract is set")
		}
		if c.TogetherStartBlock == 0 {
			return fmt.Errorf("together-start-block must be positive")
		}
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
