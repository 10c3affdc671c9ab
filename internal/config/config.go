package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port               int      `mapstructure:"port"`
		CorsAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
		CorsAllowedMethods []string `mapstructure:"cors_allowed_methods"`
		CorsAllowedHeaders []string `mapstructure:"cors_allowed_headers"`
	} `mapstructure:"server"`

	Database struct {
		Driver     string `mapstructure:"driver"` // postgres or sqlite
		Host       string `mapstructure:"host"`
		Port       int    `mapstructure:"port"`
		User       string `mapstructure:"user"`
		Password   string `mapstructure:"password"`
		Name       string `mapstructure:"name"`
		SSLMode    string `mapstructure:"sslmode"`
		MaxConns   int32  `mapstructure:"max_conns"`
		SQLitePath string `mapstructure:"sqlite_path"`
	} `mapstructure:"database"`

	JWT struct {
		Secret          string `mapstructure:"secret"`
		ExpirationHours int    `mapstructure:"expiration_hours"`
		Issuer          string `mapstructure:"issuer"`
	} `mapstructure:"jwt"`

	Redis struct {
		Addr     string        `mapstructure:"addr"`
		Password string        `mapstructure:"password"`
		DB       int           `mapstructure:"db"`
		StateTTL time.Duration `mapstructure:"state_ttl"`
	} `mapstructure:"redis"`

	Transition struct {
		Timeout            time.Duration `mapstructure:"timeout"`
		MinRejectionReason int           `mapstructure:"min_rejection_reason"`
	} `mapstructure:"transition"`

	Notifications struct {
		Channel         string        `mapstructure:"channel"` // log, sms, whatsapp, kafka
		WorkerEnabled   bool          `mapstructure:"worker_enabled"`
		Interval        time.Duration `mapstructure:"interval"`
		BatchSize       int           `mapstructure:"batch_size"`
		MaxAttempts     int           `mapstructure:"max_attempts"`
		Concurrency     int           `mapstructure:"concurrency"`
		DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
		Lease           time.Duration `mapstructure:"lease"`
		BackoffBase     time.Duration `mapstructure:"backoff_base"`
		BackoffMax      time.Duration `mapstructure:"backoff_max"`
	} `mapstructure:"notifications"`

	SMS struct {
		APIKey   string `mapstructure:"api_key"`
		SenderID string `mapstructure:"sender_id"`
		Route    string `mapstructure:"route"`
		BaseURL  string `mapstructure:"base_url"`
	} `mapstructure:"sms"`

	WhatsApp struct {
		Provider string `mapstructure:"provider"` // aisensy or interakt
		APIKey   string `mapstructure:"api_key"`
		BaseURL  string `mapstructure:"base_url"`
	} `mapstructure:"whatsapp"`

	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`

	R2 R2Config `mapstructure:"r2"`

	Timezone string `mapstructure:"timezone"`
}

// Load reads configs/config.yaml (optional), .env (optional) and the environment.
func Load() *Config {
	cfg, err := load("configs/config.yaml")
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	return cfg
}

func load(path string) (*Config, error) {
	// Load .env file if exists (ignore error in production)
	godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		log.Printf("[Config] No config file found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	applyEnvOverrides(&cfg)

	if cfg.JWT.Secret == "" || cfg.JWT.Secret == "${JWT_SECRET}" {
		cfg.JWT.Secret = os.Getenv("JWT_SECRET")
		if cfg.JWT.Secret == "" && cfg.R2.Enabled() {
			log.Printf("[Config] JWT_SECRET not set, fetching from R2...")
			cfg.JWT.Secret = FetchSecretFromR2(cfg.R2, cfg.R2.JWTSecretKey)
		}
		if cfg.JWT.Secret == "" {
			return nil, fmt.Errorf("JWT_SECRET not found in environment or R2")
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Authorization", "Content-Type"})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "storage_db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.sqlite_path", "storage.db")

	v.SetDefault("jwt.expiration_hours", 24)
	v.SetDefault("jwt.issuer", "storage-backend")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.state_ttl", 30*time.Second)

	v.SetDefault("transition.timeout", 5*time.Second)
	v.SetDefault("transition.min_rejection_reason", 10)

	v.SetDefault("notifications.channel", "log")
	v.SetDefault("notifications.worker_enabled", true)
	v.SetDefault("notifications.interval", 30*time.Second)
	v.SetDefault("notifications.batch_size", 50)
	v.SetDefault("notifications.max_attempts", 5)
	v.SetDefault("notifications.concurrency", 4)
	v.SetDefault("notifications.dispatch_timeout", 10*time.Second)
	v.SetDefault("notifications.lease", 2*time.Minute)
	v.SetDefault("notifications.backoff_base", 30*time.Second)
	v.SetDefault("notifications.backoff_max", 30*time.Minute)

	v.SetDefault("sms.route", "q")
	v.SetDefault("whatsapp.provider", "aisensy")
	v.SetDefault("kafka.topic", "storage.notifications")

	v.SetDefault("r2.region", "auto")
	v.SetDefault("r2.jwt_secret_key", "config/jwt_secret.txt")

	v.SetDefault("timezone", "UTC")
}

// applyEnvOverrides maps the flat env names used in deployments onto the config
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil && n > 0 {
			cfg.Database.Port = n
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.Database.User = user
	}
	if pass := os.Getenv("DB_PASSWORD"); pass != "" {
		cfg.Database.Password = pass
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Database.Name = name
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		cfg.Database.Driver = driver
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		cfg.Redis.Password = pass
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}

	if key := os.Getenv("FAST2SMS_API_KEY"); key != "" {
		cfg.SMS.APIKey = key
	}
	if key := os.Getenv("WHATSAPP_API_KEY"); key != "" {
		cfg.WhatsApp.APIKey = key
	}

	if key := os.Getenv("R2_ACCESS_KEY_ID"); key != "" {
		cfg.R2.AccessKeyID = key
	}
	if secret := os.Getenv("R2_SECRET_ACCESS_KEY"); secret != "" {
		cfg.R2.SecretAccessKey = secret
	}
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}

	switch c.Notifications.Channel {
	case "log", "sms", "whatsapp", "kafka":
	default:
		return fmt.Errorf("unsupported notifications.channel %q", c.Notifications.Channel)
	}
	if c.Notifications.Channel == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("notifications.channel is kafka but no kafka.brokers configured")
	}

	if c.Notifications.BatchSize <= 0 || c.Notifications.MaxAttempts <= 0 {
		return fmt.Errorf("notifications.batch_size and notifications.max_attempts must be positive")
	}
	return nil
}

// PostgresDSN builds the pgx connection string
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
