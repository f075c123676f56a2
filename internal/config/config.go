package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
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

	Data struct {
		Dir     string `mapstructure:"dir"`
		MaxUndo int    `mapstructure:"max_undo"`
	} `mapstructure:"data"`

	Billing struct {
		DefaultRate float64 `mapstructure:"default_rate"`
	} `mapstructure:"billing"`

	Delivery struct {
		Provider       string        `mapstructure:"provider"`
		APIKey         string        `mapstructure:"api_key"`
		PhoneNumberID  string        `mapstructure:"phone_number_id"`
		Template       string        `mapstructure:"template"`
		SMSFallback    bool          `mapstructure:"sms_fallback"`
		Fast2SMSAPIKey string        `mapstructure:"fast2sms_api_key"`
		SendDelay      time.Duration `mapstructure:"send_delay"`
		FailureDelay   time.Duration `mapstructure:"failure_delay"`
	} `mapstructure:"delivery"`

	NetCheck struct {
		Address string        `mapstructure:"address"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"netcheck"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Backup struct {
		Enabled   bool          `mapstructure:"enabled"`
		Endpoint  string        `mapstructure:"endpoint"`
		Region    string        `mapstructure:"region"`
		Bucket    string        `mapstructure:"bucket"`
		AccessKey string        `mapstructure:"access_key"`
		SecretKey string        `mapstructure:"secret_key"`
		Prefix    string        `mapstructure:"prefix"`
		Interval  time.Duration `mapstructure:"interval"`
	} `mapstructure:"backup"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// Load reads configs/config.yaml (optional), .env and the environment.
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(configPath())

	// Auto bind environment variables
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional
	configFileMissing := false
	if err := v.ReadInConfig(); err != nil {
		configFileMissing = true
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal: %w", err)
	}

	applyEnvOverrides(&cfg)

	if cfg.Data.MaxUndo <= 0 {
		cfg.Data.MaxUndo = 10
	}
	if configFileMissing && cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	return &cfg, nil
}

func configPath() string {
	if p := os.Getenv("DAIRY_CONFIG"); p != "" {
		return p
	}
	return filepath.Join("configs", "config.yaml")
}

// setDefaults makes the binary work without a config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Content-Type"})
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.max_undo", 10)
	v.SetDefault("billing.default_rate", 50.0)
	v.SetDefault("delivery.provider", "mock")
	v.SetDefault("delivery.sms_fallback", false)
	v.SetDefault("delivery.send_delay", 5*time.Second)
	v.SetDefault("delivery.failure_delay", 2*time.Second)
	v.SetDefault("netcheck.address", "8.8.8.8:53")
	v.SetDefault("netcheck.timeout", 2*time.Second)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.region", "auto")
	v.SetDefault("backup.prefix", "dairy-backups")
	v.SetDefault("backup.interval", 24*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func applyEnvOverrides(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil && n > 0 {
			cfg.Server.Port = n
		}
	}
	if dir := os.Getenv("DAIRY_DATA_DIR"); dir != "" {
		cfg.Data.Dir = dir
	}

	// Provider secrets never live in the yaml file
	if key := os.Getenv("WHATSAPP_API_KEY"); key != "" {
		cfg.Delivery.APIKey = key
	}
	if id := os.Getenv("WHATSAPP_PHONE_NUMBER_ID"); id != "" {
		cfg.Delivery.PhoneNumberID = id
	}
	if key := os.Getenv("FAST2SMS_API_KEY"); key != "" {
		cfg.Delivery.Fast2SMSAPIKey = key
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		cfg.Redis.Password = pass
	}

	if key := os.Getenv("BACKUP_ACCESS_KEY"); key != "" {
		cfg.Backup.AccessKey = key
	}
	if secret := os.Getenv("BACKUP_SECRET_KEY"); secret != "" {
		cfg.Backup.SecretKey = secret
	}
	if endpoint := os.Getenv("BACKUP_ENDPOINT"); endpoint != "" {
		cfg.Backup.Endpoint = endpoint
	}
	if bucket := os.Getenv("BACKUP_BUCKET"); bucket != "" {
		cfg.Backup.Bucket = bucket
	}
}

// CustomersDir is where the active and deleted rosters live.
func (c *Config) CustomersDir() string { return filepath.Join(c.Data.Dir, "Customers") }

// MonthlyDir holds one ledger workbook per month.
func (c *Config) MonthlyDir() string { return filepath.Join(c.Data.Dir, "Monthly") }

// StatusDir holds the per-month sent/unsent workbooks.
func (c *Config) StatusDir() string { return filepath.Join(c.Data.Dir, "Status") }

// ProfilePath is the business profile settings file.
func (c *Config) ProfilePath() string { return filepath.Join(c.Data.Dir, "profile.yaml") }
