package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

var ErrConfigPathIsEmpty = errors.New("config path is empty")

type Config struct {
	App        `yaml:"app"`
	Logger     `yaml:"log"`
	Storage    `yaml:"storage"`
	Database   `yaml:"database"`
	Redis      `yaml:"redis"`
	HTTPServer `yaml:"http_server"`
	Payment    `yaml:"payment"`
	Admin      `yaml:"admin"`
	Wall       `yaml:"wall"`
	Retention  `yaml:"retention"`
	RateLimit  `yaml:"rate_limit"`
}

type App struct {
	ServiceName string `yaml:"service_name" env-default:"paidwall"`
	Version     string `yaml:"version" env-default:"0.1.0"`
}

type Logger struct {
	Level      string   `yaml:"level" env-default:"info"`
	FormatJSON bool     `yaml:"format_json"`
	Rotation   Rotation `yaml:"rotation"`
}

type Rotation struct {
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Storage selects the persistence backend. The choice is made once at
// startup; everything above the repository sees the same contract.
type Storage struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"pebble"`
	Pebble Pebble `yaml:"pebble"`
}

type Pebble struct {
	Path string `yaml:"path" env:"PEBBLE_PATH" env-default:"./wall.db"`
}

type Database struct {
	Host      string    `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port      uint16    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User      string    `yaml:"user" env:"DB_USER"`
	Password  string    `yaml:"password" env:"DB_PASSWORD"`
	Name      string    `yaml:"name" env:"DB_NAME"`
	SSLMode   string    `yaml:"ssl_mode" env-default:"disable"`
	MaxConns  int32     `yaml:"max_conns" env-default:"10"`
	MinConns  int32     `yaml:"min_conns" env-default:"1"`
	Migration Migration `yaml:"migration"`
}

type Migration struct {
	Path      string `yaml:"path" env-default:"./migrations"`
	AutoApply bool   `yaml:"auto_apply"`
}

type Redis struct {
	Enable   bool   `yaml:"enable"`
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     uint16 `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"`
}

type HTTPServer struct {
	Host     string  `yaml:"host" env-default:"0.0.0.0"`
	Port     uint16  `yaml:"port" env:"PORT" env-default:"4021"`
	BasePath string  `yaml:"base_path" env-default:"/"`
	Timeout  Timeout `yaml:"timeout"`
	CORS     CORS    `yaml:"cors"`
}

type Timeout struct {
	Request time.Duration `yaml:"request" env-default:"30s"`
	Read    time.Duration `yaml:"read" env-default:"10s"`
	Write   time.Duration `yaml:"write" env-default:"30s"`
	Idle    time.Duration `yaml:"idle" env-default:"60s"`
}

type CORS struct {
	Enabled          bool          `yaml:"enabled"`
	AllowAllOrigins  bool          `yaml:"allow_all_origins"`
	AllowOrigins     []string      `yaml:"allow_origins"`
	AllowMethods     []string      `yaml:"allow_methods"`
	AllowHeaders     []string      `yaml:"allow_headers"`
	ExposeHeaders    []string      `yaml:"expose_headers"`
	AllowCredentials bool          `yaml:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age"`
}

// Payment configures the x402 paywall in front of the finalize route.
type Payment struct {
	Enabled           bool   `yaml:"enabled" env-default:"true"`
	PayTo             string `yaml:"pay_to" env:"SELLER_ADDRESS"`
	Price             string `yaml:"price" env:"MESSAGE_PRICE" env-default:"1000"`
	PriceLabel        string `yaml:"price_label" env-default:"$0.001 USDC"`
	Network           string `yaml:"network" env:"NETWORK" env-default:"base-sepolia"`
	Asset             string `yaml:"asset" env:"ASSET_ADDRESS"`
	FacilitatorURL    string `yaml:"facilitator_url" env:"FACILITATOR_URL"`
	MaxTimeoutSeconds int    `yaml:"max_timeout_seconds" env-default:"60"`
}

type Admin struct {
	Secret string `yaml:"secret" env:"ADMIN_SECRET"`
}

type Wall struct {
	MaxBodyLen    int    `yaml:"max_body_len" env-default:"1024"`
	MaxAuthorLen  int    `yaml:"max_author_len" env-default:"100"`
	DefaultAuthor string `yaml:"default_author" env-default:"anon"`
}

// Retention sweeps abandoned pending messages. Disabled by default: an
// unconsumed pending row is harmless, just unhygienic.
type Retention struct {
	Enabled bool          `yaml:"enabled"`
	Cron    string        `yaml:"cron" env-default:"0 2 * * *"`
	TTL     time.Duration `yaml:"ttl" env-default:"24h"`
}

type RateLimit struct {
	Enabled   bool `yaml:"enabled"`
	PerMinute int  `yaml:"per_minute" env-default:"10"`
}

func MustLoadConfig() *Config {
	cfg, err := LoadConfig()
	if err != nil {
		panic(err)
	}

	return cfg
}

func LoadConfig() (*Config, error) {
	path := fetchConfigPath()
	if path == "" {
		return nil, ErrConfigPathIsEmpty
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	var config Config

	if err := cleanenv.ReadConfig(path, &config); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return &config, nil
}

func MustPrintConfig(cfg *Config) {
	if err := PrintConfig(cfg); err != nil {
		panic(err)
	}
}

func PrintConfig(cfg *Config) error {
	redacted := *cfg
	redacted.Admin.Secret = "***"
	redacted.Database.Password = "***"
	redacted.Redis.Password = "***"

	data, err := yaml.Marshal(redacted)
	if err != nil {
		return err
	}

	println(string(data))

	return nil
}

func fetchConfigPath() string {
	var result string

	flag.StringVar(&result, "config", "", "Path to config file")
	flag.Parse()

	if result == "" {
		result = os.Getenv("CONFIG_PATH")
	}

	return result
}
