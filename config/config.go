package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"maplemail/models"
)

var envLoaded bool

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

// IMAPConfig points at the bounce mailbox. Leaving Host empty disables
// the bounce watcher.
type IMAPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	Mailbox  string `json:"mailbox"`
}

type Config struct {
	Environment string `json:"environment"`
	ServerPort  string `json:"server_port"`

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	SMTP  SMTPConfig  `json:"smtp"`
	IMAP  IMAPConfig  `json:"imap"`
	Redis RedisConfig `json:"redis"`

	// Dispatch schedule. DispatchHour is the local hour of the daily
	// scheduled run; Timezone fixes the "day" boundary for day-offset
	// computation.
	Timezone     string `json:"timezone"`
	DispatchHour int    `json:"dispatch_hour"`

	SentryDSN       string `json:"-"`
	JWTSecret       string `json:"-"`
	AdminAPIKeyHash string `json:"-"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

// LoadConfig reads configuration from the environment and validates the
// parts the dispatcher cannot run without. The returned struct is
// injected into components at construction; nothing reads env vars at
// dispatch time.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "5000"),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "maplemail"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("SMTP_FROM_EMAIL", ""),
			FromName:  getEnv("SMTP_FROM_NAME", "Maple Finds"),
		},
		IMAP: IMAPConfig{
			Host:     getEnv("IMAP_HOST", ""),
			Port:     getEnvAsInt("IMAP_PORT", 993),
			Username: getEnv("IMAP_USERNAME", ""),
			Password: getEnv("IMAP_PASSWORD", ""),
			Mailbox:  getEnv("IMAP_MAILBOX", "INBOX"),
		},
		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "false") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		Timezone:     getEnv("DISPATCH_TIMEZONE", "America/Toronto"),
		DispatchHour: getEnvAsInt("DISPATCH_HOUR", 9),

		SentryDSN:       getEnv("SENTRY_DSN", ""),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		AdminAPIKeyHash: getEnv("ADMIN_API_KEY_HASH", ""),
	}

	// Validate required configurations
	if cfg.DBPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.DispatchHour < 0 || cfg.DispatchHour > 23 {
		return nil, fmt.Errorf("DISPATCH_HOUR must be between 0 and 23")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_TIMEZONE %q: %w", cfg.Timezone, err)
	}
	if cfg.Environment == "production" {
		if cfg.SMTP.Host == "" || cfg.SMTP.FromEmail == "" {
			return nil, fmt.Errorf("SMTP_HOST and SMTP_FROM_EMAIL are required in production")
		}
		if cfg.AdminAPIKeyHash == "" {
			return nil, fmt.Errorf("ADMIN_API_KEY_HASH is required in production")
		}
	}

	logConfig(cfg)
	return cfg, nil
}

// Location resolves the configured dispatch time zone. LoadConfig has
// already verified it parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ConnectDB opens the postgres connection and runs migrations.
func ConnectDB(cfg *Config) (*gorm.DB, error) {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBName,
		cfg.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("Successfully connected to the database")
	log.Println("Starting database migration...")
	if err := models.Migrate(db); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("Database migration completed")
	return db, nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig(cfg *Config) {
	log.Println("Loaded configuration:")
	log.Printf("Environment: %s", cfg.Environment)
	log.Printf("Server Port: %s", cfg.ServerPort)
	log.Printf("Database: %s@%s:%s/%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName)
	log.Printf("Dispatch: daily at %02d:00 %s, retries every 4h", cfg.DispatchHour, cfg.Timezone)
	log.Printf("SMTP(%t) IMAP(%t) Redis(%t) Sentry(%t)",
		cfg.SMTP.Host != "",
		cfg.IMAP.Host != "",
		cfg.Redis.Enabled,
		cfg.SentryDSN != "")
}
