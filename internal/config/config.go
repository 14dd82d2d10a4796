package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string   `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
	ClinicTimezone string   `mapstructure:"CLINIC_TIMEZONE"`

	// Messaging
	SMSGatewayURL string        `mapstructure:"SMS_GATEWAY_URL"`
	SMSAPIKey     string        `mapstructure:"SMS_API_KEY"`
	SMSSenderID   string        `mapstructure:"SMS_SENDER_ID"`
	SMSTimeout    time.Duration `mapstructure:"SMS_TIMEOUT"`
	EmailQueueURL string        `mapstructure:"EMAIL_QUEUE_URL"`

	// AWS
	AWSRegion      string `mapstructure:"AWS_REGION"`
	AWSEndpointURL string `mapstructure:"AWS_ENDPOINT_URL"`
	ReportBucket   string `mapstructure:"REPORT_BUCKET"`

	// Events
	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string   `mapstructure:"KAFKA_TOPIC"`

	// Reminders
	ReminderPolicy           string        `mapstructure:"REMINDER_POLICY"`
	ReminderDispatchInterval time.Duration `mapstructure:"REMINDER_DISPATCH_INTERVAL"`
	ReminderBatchSize        int           `mapstructure:"REMINDER_BATCH_SIZE"`
	ReminderDispatchWorkers  int           `mapstructure:"REMINDER_DISPATCH_WORKERS"`
	ReminderClaimLease       time.Duration `mapstructure:"REMINDER_CLAIM_LEASE"`
	ReminderStaleAttempt     time.Duration `mapstructure:"REMINDER_STALE_ATTEMPT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("CLINIC_TIMEZONE", "UTC")
	v.SetDefault("SMS_TIMEOUT", "10s")
	v.SetDefault("KAFKA_TOPIC", "clinicflow.events")
	v.SetDefault("REMINDER_POLICY", "email:24h,sms:2h")
	v.SetDefault("REMINDER_DISPATCH_INTERVAL", "1m")
	v.SetDefault("REMINDER_BATCH_SIZE", 200)
	v.SetDefault("REMINDER_DISPATCH_WORKERS", 1)
	v.SetDefault("REMINDER_CLAIM_LEASE", "5m")
	v.SetDefault("REMINDER_STALE_ATTEMPT", "1h")

	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
		"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "CLINIC_TIMEZONE",
		"SMS_GATEWAY_URL", "SMS_API_KEY", "SMS_SENDER_ID", "SMS_TIMEOUT", "EMAIL_QUEUE_URL",
		"AWS_REGION", "AWS_ENDPOINT_URL", "REPORT_BUCKET",
		"KAFKA_BROKERS", "KAFKA_TOPIC",
		"REMINDER_POLICY", "REMINDER_DISPATCH_INTERVAL", "REMINDER_BATCH_SIZE",
		"REMINDER_DISPATCH_WORKERS", "REMINDER_CLAIM_LEASE", "REMINDER_STALE_ATTEMPT",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Warn().Msg("running in DEVELOPMENT mode (ENV=development); dev auth grants admin to unauthenticated requests")
	}

	return cfg, nil
}

// splitList normalises comma-separated env values. Viper hands back a single
// element slice for "a,b" when the value comes from the environment.
func splitList(current []string, raw string) []string {
	if len(current) > 1 {
		return current
	}
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves CLINIC_TIMEZONE. Appointment dates and times are wall-clock
// values in this zone.
func (c *Config) Location() (*time.Location, error) {
	if c.ClinicTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run. Outside development
// either an issuer or a signing key must be configured so bearer tokens are
// actually verified.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.ReminderBatchSize <= 0 {
		return fmt.Errorf("REMINDER_BATCH_SIZE must be positive, got %d", c.ReminderBatchSize)
	}
	if c.ReminderDispatchWorkers <= 0 {
		return fmt.Errorf("REMINDER_DISPATCH_WORKERS must be positive, got %d", c.ReminderDispatchWorkers)
	}
	if c.ReminderDispatchInterval < 0 {
		return fmt.Errorf("REMINDER_DISPATCH_INTERVAL must not be negative")
	}
	if c.ReminderStaleAttempt <= c.SMSTimeout {
		return fmt.Errorf("REMINDER_STALE_ATTEMPT (%s) must exceed SMS_TIMEOUT (%s)", c.ReminderStaleAttempt, c.SMSTimeout)
	}
	if c.ReportBucket != "" && c.AWSRegion == "" {
		return fmt.Errorf("AWS_REGION is required when REPORT_BUCKET is set")
	}
	if c.EmailQueueURL != "" && c.AWSRegion == "" {
		return fmt.Errorf("AWS_REGION is required when EMAIL_QUEUE_URL is set")
	}
	return nil
}
