package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the realizer.
type Config struct {
	GRPCPort  int
	HTTPPort  int
	LogLevel  string
	LogFormat string

	DB        DatabaseConfig
	Kafka     KafkaConfig
	Redis     RedisConfig
	Telemetry TelemetryConfig
	Sweep     SweepConfig
	JWT       JWTConfig
	TLS       TLSConfig

	// MetadataCacheTTL bounds how long book and group metadata is reused.
	MetadataCacheTTL time.Duration
	// BaseCurrency picks the base book of collections without an exc_base book.
	BaseCurrency string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// KafkaConfig holds Kafka connection settings.
type KafkaConfig struct {
	Brokers       []string
	ClientID      string
	ConsumerGroup string
	SASLEnabled   bool
	SASLMechanism string
	SASLUsername  string
	SASLPassword  string
	TLS           bool
}

// RedisConfig holds the position lock store. An empty Addr selects in-process
// locks.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TelemetryConfig holds tracing settings.
type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string
	Insecure     bool
}

// SweepConfig schedules periodic calculation. An empty Schedule disables it.
type SweepConfig struct {
	Schedule   string
	StockBooks []string
	AutoMtM    bool
}

// JWTConfig selects how bearer tokens are validated: a public key when set,
// the shared secret otherwise.
type JWTConfig struct {
	Secret        string
	PublicKeyFile string
	Issuer        string
}

// TLSConfig enables TLS on the gRPC listener when both files are set.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// Load reads configuration from environment variables with defaults. Values
// from a .env file (or ENV_FILE) fill in variables that are not already set.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	return Config{
		GRPCPort:  getEnvInt("GRPC_PORT", 9090),
		HTTPPort:  getEnvInt("HTTP_PORT", 8080),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		DB: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "realizer"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "realizer"),
			SSLMode:  getEnv("DB_SSLMODE", "require"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 1)),
		},
		Kafka: KafkaConfig{
			Brokers:       getEnvList("KAFKA_BROKERS", "localhost:9092"),
			ClientID:      getEnv("KAFKA_CLIENT_ID", "realizer"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "realizer"),
			SASLEnabled:   getEnvBool("KAFKA_SASL_ENABLED", false),
			SASLMechanism: getEnv("KAFKA_SASL_MECHANISM", ""),
			SASLUsername:  getEnv("KAFKA_SASL_USERNAME", ""),
			SASLPassword:  getEnv("KAFKA_SASL_PASSWORD", ""),
			TLS:           getEnvBool("KAFKA_TLS", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  getEnv("SERVICE_NAME", "realizer"),
			OTLPEndpoint: getEnv("OTLP_ENDPOINT", "localhost:4317"),
			Insecure:     getEnvBool("OTLP_INSECURE", true),
		},
		Sweep: SweepConfig{
			Schedule:   getEnv("SWEEP_SCHEDULE", ""),
			StockBooks: getEnvList("SWEEP_STOCK_BOOKS", ""),
			AutoMtM:    getEnvBool("SWEEP_AUTO_MTM", false),
		},
		JWT: JWTConfig{
			Secret:        getEnv("JWT_SECRET", ""),
			PublicKeyFile: getEnv("JWT_PUBLIC_KEY_FILE", ""),
			Issuer:        getEnv("JWT_ISSUER", "bib-gateway"),
		},
		TLS: TLSConfig{
			CertFile: getEnv("TLS_CERT_FILE", ""),
			KeyFile:  getEnv("TLS_KEY_FILE", ""),
		},
		MetadataCacheTTL: getEnvDuration("METADATA_CACHE_TTL", time.Minute),
		BaseCurrency:     getEnv("BASE_CURRENCY", "USD"),
	}, nil
}

// Validate checks required configuration values.
func (c Config) Validate() error {
	var errs []error
	if c.DB.Password == "" {
		errs = append(errs, errors.New("DB_PASSWORD is required"))
	}
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required"))
	}
	if c.JWT.Secret == "" && c.JWT.PublicKeyFile == "" {
		errs = append(errs, errors.New("JWT_SECRET or JWT_PUBLIC_KEY_FILE is required"))
	}
	if c.Sweep.Schedule != "" && len(c.Sweep.StockBooks) == 0 {
		errs = append(errs, errors.New("SWEEP_STOCK_BOOKS is required when SWEEP_SCHEDULE is set"))
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together"))
	}
	return errors.Join(errs...)
}

func loadEnvFile() error {
	path := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && os.Getenv("ENV_FILE") == "" {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key, defaultVal string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultVal), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
