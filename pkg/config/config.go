package config

import (
	"fmt"
	"os"
	"time"

	"github.com/busspass/busspass/pkg/util"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type FirebaseConfig struct {
	DatabaseURL string `yaml:"database_url" validate:"omitempty,url"`
	// ServiceAccount is the base64 encoded service account JSON
	ServiceAccount string        `yaml:"service_account"`
	PollInterval   time.Duration `yaml:"poll_interval" validate:"gte=0"`
}

type RedisConfig struct {
	Address   string `yaml:"address" validate:"required"`
	Password  string `yaml:"password"`
	Database  int    `yaml:"database" validate:"gte=0"`
	KeyPrefix string `yaml:"key_prefix" validate:"required"`
}

type MongoDBConfig struct {
	Connection string `yaml:"connection" validate:"required"`
	Database   string `yaml:"database" validate:"required"`
}

type LiveConfig struct {
	Path      string  `yaml:"path" validate:"required"`
	CenterLat float64 `yaml:"center_lat" validate:"gte=-90,lte=90"`
	CenterLng float64 `yaml:"center_lng" validate:"gte=-180,lte=180"`
	Zoom      int     `yaml:"zoom" validate:"gte=1,lte=22"`
	IconURL   string  `yaml:"icon_url" validate:"omitempty,url"`
	IconSize  int     `yaml:"icon_size" validate:"gt=0"`
}

type APIConfig struct {
	Listen string `yaml:"listen" validate:"required"`
}

type StatsConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"gte=0"`
}

type RoutesConfig struct {
	// HelperFilter is an expr expression deciding whether a stop is shown
	HelperFilter string `yaml:"helper_filter" validate:"required"`
}

type NotifyConfig struct {
	Queue     string        `yaml:"queue" validate:"required"`
	Topic     string        `yaml:"topic" validate:"required"`
	Consumers int           `yaml:"consumers" validate:"gt=0"`
	BatchSize int           `yaml:"batch_size" validate:"gt=0"`
	Timeout   time.Duration `yaml:"timeout" validate:"gt=0"`
}

type AuthConfig struct {
	// AdminEmail is the only account allowed to sign in
	AdminEmail string `yaml:"admin_email" validate:"required,email"`
	// Secret signs admin tokens. A random one is made at startup when empty.
	Secret   string        `yaml:"secret" validate:"omitempty,min=16"`
	Issuer   string        `yaml:"issuer" validate:"required"`
	Audience string        `yaml:"audience" validate:"required"`
	TokenTTL time.Duration `yaml:"token_ttl" validate:"gt=0"`
}

type Config struct {
	Firebase FirebaseConfig `yaml:"firebase"`
	Redis    RedisConfig    `yaml:"redis"`
	MongoDB  MongoDBConfig  `yaml:"mongodb"`
	Live     LiveConfig     `yaml:"live"`
	API      APIConfig      `yaml:"api"`
	Stats    StatsConfig    `yaml:"stats"`
	Routes   RoutesConfig   `yaml:"routes"`
	Notify   NotifyConfig   `yaml:"notify"`
	Auth     AuthConfig     `yaml:"auth"`
}

const DefaultHelperFilter = `!(lower(name) contains "helper" || type == "Support")`

func Default() *Config {
	return &Config{
		Firebase: FirebaseConfig{
			PollInterval: time.Second,
		},
		Redis: RedisConfig{
			Address:   "localhost:6379",
			KeyPrefix: "busspass",
		},
		MongoDB: MongoDBConfig{
			Connection: "mongodb://localhost:27017/",
			Database:   "busspass",
		},
		Live: LiveConfig{
			Path:      "Bus locations",
			CenterLat: 22.5726,
			CenterLng: 88.3639,
			Zoom:      12,
			IconURL:   "https://cdn-icons-png.flaticon.com/512/684/684908.png",
			IconSize:  40,
		},
		API: APIConfig{
			Listen: ":8080",
		},
		Stats: StatsConfig{
			CacheTTL: 30 * time.Second,
		},
		Routes: RoutesConfig{
			HelperFilter: DefaultHelperFilter,
		},
		Notify: NotifyConfig{
			Queue:     "notify-queue",
			Topic:     "emergency",
			Consumers: 2,
			BatchSize: 20,
			Timeout:   2 * time.Second,
		},
		Auth: AuthConfig{
			AdminEmail: "admin@busspass.com",
			Issuer:     "busspass",
			Audience:   "busspass-admin",
			TokenTTL:   12 * time.Hour,
		},
	}
}

// Load builds the configuration from the defaults, the optional YAML file at
// path and then BUSSPASS_* environment variables, in that order.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := config.applyEnvironment(util.GetEnvironmentVariables()); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

func (c *Config) applyEnvironment(env map[string]string) error {
	util.OverrideString(env, "BUSSPASS_FIREBASE_DATABASE_URL", &c.Firebase.DatabaseURL)
	util.OverrideString(env, "BUSSPASS_FIREBASE_SERVICE_ACCOUNT", &c.Firebase.ServiceAccount)
	if err := util.OverrideDuration(env, "BUSSPASS_FIREBASE_POLL_INTERVAL", &c.Firebase.PollInterval); err != nil {
		return fmt.Errorf("BUSSPASS_FIREBASE_POLL_INTERVAL: %w", err)
	}

	util.OverrideString(env, "BUSSPASS_REDIS_ADDRESS", &c.Redis.Address)
	util.OverrideString(env, "BUSSPASS_REDIS_PASSWORD", &c.Redis.Password)
	util.OverrideString(env, "BUSSPASS_REDIS_KEY_PREFIX", &c.Redis.KeyPrefix)
	if err := util.OverrideInt(env, "BUSSPASS_REDIS_DATABASE", &c.Redis.Database); err != nil {
		return fmt.Errorf("BUSSPASS_REDIS_DATABASE: %w", err)
	}

	util.OverrideString(env, "BUSSPASS_MONGODB_CONNECTION", &c.MongoDB.Connection)
	util.OverrideString(env, "BUSSPASS_MONGODB_DATABASE", &c.MongoDB.Database)

	util.OverrideString(env, "BUSSPASS_LIVE_PATH", &c.Live.Path)
	util.OverrideString(env, "BUSSPASS_API_LISTEN", &c.API.Listen)

	if err := util.OverrideDuration(env, "BUSSPASS_STATS_CACHE_TTL", &c.Stats.CacheTTL); err != nil {
		return fmt.Errorf("BUSSPASS_STATS_CACHE_TTL: %w", err)
	}

	util.OverrideString(env, "BUSSPASS_ROUTES_HELPER_FILTER", &c.Routes.HelperFilter)
	util.OverrideString(env, "BUSSPASS_NOTIFY_TOPIC", &c.Notify.Topic)

	util.OverrideString(env, "BUSSPASS_AUTH_ADMIN_EMAIL", &c.Auth.AdminEmail)
	util.OverrideString(env, "BUSSPASS_AUTH_SECRET", &c.Auth.Secret)
	if err := util.OverrideDuration(env, "BUSSPASS_AUTH_TOKEN_TTL", &c.Auth.TokenTTL); err != nil {
		return fmt.Errorf("BUSSPASS_AUTH_TOKEN_TTL: %w", err)
	}

	return nil
}
