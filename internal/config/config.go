package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClientConfig is the public app bootstrap block served to web and mobile
// clients. All six fields are required; Load fails listing every missing one.
type ClientConfig struct {
	APIKey            string `mapstructure:"HC_API_KEY" json:"apiKey"`
	AuthDomain        string `mapstructure:"HC_AUTH_DOMAIN" json:"authDomain"`
	ProjectID         string `mapstructure:"HC_PROJECT_ID" json:"projectId"`
	StorageBucket     string `mapstructure:"HC_STORAGE_BUCKET" json:"storageBucket"`
	MessagingSenderID string `mapstructure:"HC_MESSAGING_SENDER_ID" json:"messagingSenderId"`
	AppID             string `mapstructure:"HC_APP_ID" json:"appId"`
}

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"ENV"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	AccessTokenTTL  time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS    float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `mapstructure:"RATE_LIMIT_BURST"`
	ReminderCron    string        `mapstructure:"REMINDER_CRON"`
	ReminderLead    time.Duration `mapstructure:"REMINDER_LEAD_TIME"`

	Client ClientConfig `mapstructure:",squash"`
}

// clientVars lists the required client bootstrap variables in the order they
// are reported when missing.
var clientVars = []string{
	"HC_API_KEY",
	"HC_AUTH_DOMAIN",
	"HC_PROJECT_ID",
	"HC_STORAGE_BUCKET",
	"HC_MESSAGING_SENDER_ID",
	"HC_APP_ID",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("REFRESH_TOKEN_TTL", "720h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REMINDER_CRON", "* * * * *")
	v.SetDefault("REMINDER_LEAD_TIME", "24h")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("ACCESS_TOKEN_TTL")
	v.BindEnv("REFRESH_TOKEN_TTL")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("REMINDER_CRON")
	v.BindEnv("REMINDER_LEAD_TIME")
	for _, name := range clientVars {
		v.BindEnv(name)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if missing := cfg.missingClientVars(); len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: A built-in JWT secret is used when JWT_SECRET is unset.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// missingClientVars returns the names of required client bootstrap variables
// that are unset, in declaration order.
func (c *Config) missingClientVars() []string {
	values := map[string]string{
		"HC_API_KEY":             c.Client.APIKey,
		"HC_AUTH_DOMAIN":         c.Client.AuthDomain,
		"HC_PROJECT_ID":          c.Client.ProjectID,
		"HC_STORAGE_BUCKET":      c.Client.StorageBucket,
		"HC_MESSAGING_SENDER_ID": c.Client.MessagingSenderID,
		"HC_APP_ID":              c.Client.AppID,
	}
	var missing []string
	for _, name := range clientVars {
		if values[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT_SECRET must be provided so that session tokens cannot be forged.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be positive, got %s", c.AccessTokenTTL)
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL (%s) must exceed ACCESS_TOKEN_TTL (%s)", c.RefreshTokenTTL, c.AccessTokenTTL)
	}
	if c.ReminderLead <= 0 {
		return fmt.Errorf("REMINDER_LEAD_TIME must be positive, got %s", c.ReminderLead)
	}
	return nil
}

// ResolvedJWTSecret returns the signing secret, substituting a fixed
// development key when none is configured in development mode.
func (c *Config) ResolvedJWTSecret() string {
	if c.JWTSecret != "" {
		return c.JWTSecret
	}
	if c.IsDev() {
		return "holisticonnect-dev-secret"
	}
	return ""
}
