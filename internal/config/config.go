// Package config assembles the service configuration from defaults, an
// optional JSON file, the environment (and a .env file) and command line
// flags, in increasing order of priority.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	RunAddr                   string        `env:"SERVER_ADDRESS" json:"server_address" validate:"hostname_port"`
	LogLevel                  string        `env:"LOG_LEVEL" json:"log_level" validate:"loglevel"`
	DBFileName                string        `env:"FILE_STORAGE_PATH" json:"file_storage_path" validate:"filepath"`
	DatabaseDSN               string        `env:"DATABASE_DSN" json:"database_dsn"`
	DBConnectionTimeout       time.Duration `env:"DB_CONNECTION_TIMEOUT" json:"db_connection_timeout" validate:"gt=0"`
	MigrationsDir             string        `env:"MIGRATIONS_DIR" json:"migrations_dir"`
	AuthTokenSigningSecretKey string        `env:"AUTH_TOKEN_SIGNING_SECRET_KEY" json:"auth_token_signing_secret_key" validate:"omitempty,base64url"`
	AuthTokenTTL              time.Duration `env:"AUTH_TOKEN_TTL" json:"auth_token_ttl" validate:"gt=0"`
	UploadsDir                string        `env:"UPLOADS_DIR" json:"uploads_dir" validate:"required"`
	MaxUploadSize             int64         `env:"MAX_UPLOAD_SIZE" json:"max_upload_size" validate:"gt=0"`
	DefaultUserImage          string        `env:"DEFAULT_USER_IMAGE" json:"default_user_image"`
	GeocoderURL               string        `env:"GEOCODER_URL" json:"geocoder_url" validate:"url"`
	GeocoderUserAgent         string        `env:"GEOCODER_USER_AGENT" json:"geocoder_user_agent" validate:"required"`
	GeocoderTimeout           time.Duration `env:"GEOCODER_TIMEOUT" json:"geocoder_timeout" validate:"gt=0"`
	GeocoderRetryCount        int           `env:"GEOCODER_RETRY_COUNT" json:"geocoder_retry_count" validate:"gte=0,lte=10"`
	GeocoderRetryWait         time.Duration `env:"GEOCODER_RETRY_WAIT" json:"geocoder_retry_wait"`
	GeocoderRetryMaxWait      time.Duration `env:"GEOCODER_RETRY_MAX_WAIT" json:"geocoder_retry_max_wait" validate:"gtefield=GeocoderRetryWait"`
	GeocoderCacheTTL          time.Duration `env:"GEOCODER_CACHE_TTL" json:"geocoder_cache_ttl"`
	RedisAddr                 string        `env:"REDIS_ADDR" json:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPassword             string        `env:"REDIS_PASSWORD" json:"redis_password"`
	RedisDB                   int           `env:"REDIS_DB" json:"redis_db" validate:"gte=0"`
	TrustedSubnet             string        `env:"TRUSTED_SUBNET" json:"trusted_subnet" validate:"omitempty,cidr"`
	TrustedProxies            []string      `env:"TRUSTED_PROXIES" envSeparator:"," json:"trusted_proxies" validate:"dive,cidr"`
	LoginRateLimit            float64       `env:"LOGIN_RATE_LIMIT" json:"login_rate_limit" validate:"gte=0"`
	LoginRateBurst            int           `env:"LOGIN_RATE_BURST" json:"login_rate_burst" validate:"gte=1"`
	ChannelCapacity           int           `env:"CHANNEL_CAPACITY" json:"channel_capacity" validate:"gte=1"`
	DelayBetweenQueueFetches  time.Duration `env:"DELAY_BETWEEN_QUEUE_FETCHES" json:"delay_between_queue_fetches" validate:"gt=0"`

	// EphemeralSigningKey is set when no signing secret was configured and a
	// random one was generated for the lifetime of the process.
	EphemeralSigningKey bool `env:"-" json:"-"`
}

var defaultConfig = Config{
	RunAddr:                  ":5000",
	LogLevel:                 "info",
	DBFileName:               "",
	DatabaseDSN:              "",
	DBConnectionTimeout:      10 * time.Second,
	MigrationsDir:            "cmd/placeshare/migrations",
	AuthTokenTTL:             time.Hour,
	UploadsDir:               "uploads/images",
	MaxUploadSize:            500000,
	DefaultUserImage:         "uploads/images/default-user.png",
	GeocoderURL:              "https://nominatim.openstreetmap.org",
	GeocoderUserAgent:        "placeshare/1.0",
	GeocoderTimeout:          5 * time.Second,
	GeocoderRetryCount:       2,
	GeocoderRetryWait:        200 * time.Millisecond,
	GeocoderRetryMaxWait:     2 * time.Second,
	GeocoderCacheTTL:         24 * time.Hour,
	LoginRateLimit:           1,
	LoginRateBurst:           5,
	ChannelCapacity:          100,
	DelayBetweenQueueFetches: 2 * time.Second,
}

// SigningKey decodes the token signing secret.
func (c *Config) SigningKey() ([]byte, error) {
	return base64.URLEncoding.DecodeString(c.AuthTokenSigningSecretKey)
}

func applyDefaults(values *Config, defaults Config) {
	*values = defaults
}

func validateFilePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()

	allowedLogLevels := map[string]bool{
		"debug":   true,
		"info":    true,
		"warning": true,
		"error":   true,
		"fatal":   true,
	}

	return allowedLogLevels[value]
}

func (c *Config) validate() error {
	validate := validator.New()

	err := validate.RegisterValidation("loglevel", validateLogLevel)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("filepath", validateFilePath)
	if err != nil {
		return err
	}

	return validate.Struct(c)
}

func (c *Config) loadJSON(fileName string) error {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return fmt.Errorf("in internal/config/config.go/loadJSON(): error while `os.ReadFile()` calling: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("in internal/config/config.go/loadJSON(): error while `json.Unmarshal()` calling: %w", err)
	}

	return nil
}

func (c *Config) ensureSigningKey() error {
	if c.AuthTokenSigningSecretKey != "" {
		return nil
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	c.AuthTokenSigningSecretKey = base64.URLEncoding.EncodeToString(key)
	c.EphemeralSigningKey = true

	return nil
}

type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
}

func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// New builds the configuration. Priority: flags > environment > JSON file > defaults.
// The JSON file is taken from the -c flag or the CONFIG variable.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Unable to load .env file: %v", err)
	}

	values := &Config{}
	applyDefaults(values, defaultConfig)

	flagValues := *values
	configFileName := ""
	flags := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flags.StringVar(&configFileName, "c", "", "JSON config file name")
	flags.StringVar(&flagValues.RunAddr, "a", flagValues.RunAddr, "address and port to run server")
	flags.StringVar(&flagValues.LogLevel, "l", flagValues.LogLevel, "logger level")
	flags.StringVar(&flagValues.DBFileName, "f", flagValues.DBFileName, "JSON file name with database")
	flags.StringVar(&flagValues.DatabaseDSN, "d", flagValues.DatabaseDSN, "A string with the database connection details")
	flags.StringVar(&flagValues.UploadsDir, "u", flagValues.UploadsDir, "directory for uploaded images")
	flags.StringVar(&flagValues.TrustedSubnet, "t", flagValues.TrustedSubnet, "trusted subnet in CIDR notation")
	if !options.disableFlagsParsing {
		if err := flags.Parse(os.Args[1:]); err != nil {
			return nil, err
		}
	}

	if configFileName == "" {
		configFileName = os.Getenv("CONFIG")
	}
	if configFileName != "" {
		if err := values.loadJSON(configFileName); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(values); err != nil {
		return nil, err
	}

	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "a":
			values.RunAddr = flagValues.RunAddr
		case "l":
			values.LogLevel = flagValues.LogLevel
		case "f":
			values.DBFileName = flagValues.DBFileName
		case "d":
			values.DatabaseDSN = flagValues.DatabaseDSN
		case "u":
			values.UploadsDir = flagValues.UploadsDir
		case "t":
			values.TrustedSubnet = flagValues.TrustedSubnet
		}
	})

	if err := values.validate(); err != nil {
		return nil, err
	}

	if err := values.ensureSigningKey(); err != nil {
		return nil, err
	}

	return values, nil
}
