package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Navigation NavigationConfig `mapstructure:"navigation"`
	Terrain    TerrainConfig    `mapstructure:"terrain"`
	Maps       MapsConfig       `mapstructure:"maps"`
	Security   SecurityConfig   `mapstructure:"security"`
}

type ServerConfig struct {
	Port  int  `mapstructure:"port"`
	Debug bool `mapstructure:"debug"`
	// AdminKeyHash is the bcrypt hash of the key that may mint API tokens.
	AdminKeyHash string `mapstructure:"admin_key_hash"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type NavigationConfig struct {
	BaseSpeed    float64 `mapstructure:"base_speed"`    // cells per second on cost-1 terrain
	CostScale    float64 `mapstructure:"cost_scale"`    // float cost -> integer grid weight
	FallbackCost float64 `mapstructure:"fallback_cost"` // used when the oracle answers nonsense
	PatrolTickMs int     `mapstructure:"patrol_tick_ms"`
}

type TerrainKind struct {
	Name              string  `mapstructure:"name"`
	Glyph             string  `mapstructure:"glyph"`
	BaseCost          float64 `mapstructure:"base_cost"`
	CostWithGoat      float64 `mapstructure:"cost_with_goat"`
	CostWithBoat      float64 `mapstructure:"cost_with_boat"`
	BlocksWithoutGoat bool    `mapstructure:"blocks_without_goat"`
	BlocksWithoutBoat bool    `mapstructure:"blocks_without_boat"`
	AlwaysBlocked     bool    `mapstructure:"always_blocked"`
	Mineable          bool    `mapstructure:"mineable"`
}

// TerrainConfig overrides the built-in terrain table when Kinds is non-empty.
type TerrainConfig struct {
	Floor string        `mapstructure:"floor"`
	Kinds []TerrainKind `mapstructure:"kinds"`
}

type MapsConfig struct {
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AdminIPs restricts token minting and /api/admin; empty allows any address.
	AdminIPs []string `mapstructure:"admin_ips"`
	// AllowedOrigins lists accepted WebSocket origins; empty accepts any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from the given YAML file path. Keys the file leaves out
// take their defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: %s not found (start from config.example.yaml): %w", path, err)
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	if c.Security.JWTSecret == "" {
		return errors.New("config: security.jwt_secret is required")
	}
	if c.Navigation.BaseSpeed <= 0 {
		return fmt.Errorf("config: navigation.base_speed must be positive, got %v", c.Navigation.BaseSpeed)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/tilewalk.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("navigation.base_speed", 2.0)
	v.SetDefault("navigation.cost_scale", 10.0)
	v.SetDefault("navigation.fallback_cost", 1.0)
	v.SetDefault("navigation.patrol_tick_ms", 100)
	v.SetDefault("terrain.floor", "grass")
	v.SetDefault("maps.dir", "./maps")
	v.SetDefault("maps.watch", true)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
}
