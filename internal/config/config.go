package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentProduction  Environment = "production"
	EnvironmentTest        Environment = "test"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Stripe    StripeConfig
	Email     EmailConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
	OpenFGA   OpenFGAConfig
	Auth      AuthConfig
	Tour      TourConfig
	Booking   BookingConfig
	AMQP      AMQPConfig
	Daemon    DaemonConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Environment  Environment
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	URL      string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type RedisConfig struct {
	URL string
}

type StorageConfig struct {
	Type      string
	LocalPath string
	S3Bucket  string
	S3Region  string
}

type TelemetryConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	ExporterURL    string
	SamplingRatio  float64
}

type OpenFGAConfig struct {
	Enabled  bool
	APIHost  string
	APIToken string
	StoreID  string
	ModelID  string
}

type AuthConfig struct {
	JWTSecret         string
	JWTExpiration     time.Duration
	SessionExpiration time.Duration
	MaxLoginAttempts  int
	MaxIntakeAttempts int
	AttemptWindow     time.Duration
}

type TourConfig struct {
	Name              string
	StartDate         time.Time
	EndDate           time.Time
	EarlyBirdDeadline time.Time
	EarlyBirdFeeCents int64
	StandardFeeCents  int64
}

// Nights is the number of hotel nights covered by the tour dates.
func (t TourConfig) Nights() int {
	return int(t.EndDate.Sub(t.StartDate).Hours() / 24)
}

// DateRange formats the tour dates as "March 15-25, 2025".
func (t TourConfig) DateRange() string {
	switch {
	case t.StartDate.Year() != t.EndDate.Year():
		return t.StartDate.Format("January 2, 2006") + " - " + t.EndDate.Format("January 2, 2006")
	case t.StartDate.Month() != t.EndDate.Month():
		return t.StartDate.Format("January 2") + " - " + t.EndDate.Format("January 2, 2006")
	default:
		return t.StartDate.Format("January 2") + "-" + t.EndDate.Format("2, 2006")
	}
}

type BookingConfig struct {
	DecrementInventory bool
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

type DaemonConfig struct {
	PendingTTL            time.Duration
	WebhookEventRetention time.Duration
	Interval              time.Duration
}

// NewConfig loads a .env file when one exists and then reads the environment.
func NewConfig() Config {
	_ = godotenv.Load()

	cfg := Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnv("SERVER_PORT", "3001"),
			BaseURL:      strings.TrimSuffix(getEnv("NEXT_PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			Environment:  Environment(getEnv("SERVER_ENVIRONMENT", string(EnvironmentDevelopment))),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "holylandtour"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			URL:      getEnv("DATABASE_URL", ""),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Email: EmailConfig{
			Host:     getEnv("EMAIL_SERVER_HOST", ""),
			Port:     getEnvInt("EMAIL_SERVER_PORT", 587),
			User:     getEnv("EMAIL_SERVER_USER", ""),
			Password: getEnv("EMAIL_SERVER_PASSWORD", ""),
			From:     getEnv("EMAIL_FROM", "Holy Land Tour <info@holylandtour.com>"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Storage: StorageConfig{
			Type:      getEnv("STORAGE_TYPE", "local"),
			LocalPath: getEnv("STORAGE_LOCAL_PATH", "./exports"),
			S3Bucket:  getEnv("STORAGE_S3_BUCKET", ""),
			S3Region:  getEnv("STORAGE_S3_REGION", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:        getEnvBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "holylandtour"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    getEnv("SERVER_ENVIRONMENT", string(EnvironmentDevelopment)),
			ExporterURL:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			SamplingRatio:  getEnvFloat("OTEL_SAMPLING_RATIO", 1.0),
		},
		OpenFGA: OpenFGAConfig{
			Enabled:  getEnvBool("OPENFGA_ENABLED", false),
			APIHost:  getEnv("OPENFGA_API_URL", "http://localhost:8080"),
			APIToken: getEnv("OPENFGA_API_TOKEN", ""),
			StoreID:  getEnv("OPENFGA_STORE_ID", ""),
			ModelID:  getEnv("OPENFGA_AUTHORIZATION_MODEL_ID", ""),
		},
		Auth: AuthConfig{
			JWTSecret:         getEnv("AUTH_JWT_SECRET", ""),
			JWTExpiration:     getEnvDuration("AUTH_JWT_EXPIRATION", 12*time.Hour),
			SessionExpiration: getEnvDuration("AUTH_SESSION_EXPIRATION", 24*time.Hour),
			MaxLoginAttempts:  getEnvInt("AUTH_MAX_LOGIN_ATTEMPTS", 5),
			MaxIntakeAttempts: getEnvInt("INTAKE_MAX_ATTEMPTS", 10),
			AttemptWindow:     getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		},
		Tour: TourConfig{
			Name:              getEnv("TOUR_NAME", "Holy Land Tour"),
			StartDate:         getEnvDate("TOUR_START_DATE", time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)),
			EndDate:           getEnvDate("TOUR_END_DATE", time.Date(2025, time.March, 25, 0, 0, 0, 0, time.UTC)),
			EarlyBirdDeadline: getEnvDate("TOUR_EARLY_BIRD_DEADLINE", time.Date(2025, time.February, 15, 0, 0, 0, 0, time.UTC)),
			EarlyBirdFeeCents: int64(getEnvInt("TOUR_EARLY_BIRD_FEE_CENTS", 450000)),
			StandardFeeCents:  int64(getEnvInt("TOUR_STANDARD_FEE_CENTS", 500000)),
		},
		Booking: BookingConfig{
			DecrementInventory: getEnvBool("BOOKING_DECREMENT_INVENTORY", false),
		},
		AMQP: AMQPConfig{
			URL:      getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "holylandtour.events"),
		},
		Daemon: DaemonConfig{
			PendingTTL:            getEnvDuration("PENDING_TTL", 48*time.Hour),
			WebhookEventRetention: getEnvDuration("WEBHOOK_EVENT_RETENTION", 30*24*time.Hour),
			Interval:              getEnvDuration("DAEMON_INTERVAL", 10*time.Minute),
		},
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = cfg.Database.ConnString()
	}

	return cfg
}

// ConnString builds a postgres URL from the discrete connection settings.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var missing []string
	if c.Stripe.SecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.Stripe.WebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "AUTH_JWT_SECRET")
	}
	if c.Storage.Type == "s3" && (c.Storage.S3Bucket == "" || c.Storage.S3Region == "") {
		missing = append(missing, "STORAGE_S3_BUCKET", "STORAGE_S3_REGION")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}

func getEnvDate(key string, defaultValue time.Time) time.Time {
	if value, exists := os.LookupEnv(key); exists {
		if dateValue, err := time.Parse(time.DateOnly, value); err == nil {
			return dateValue
		}
	}
	return defaultValue
}
