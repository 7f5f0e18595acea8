package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env             string
	HTTPPort        string
	DBDriver        string
	DatabaseURL     string
	SessionDBPath   string
	StoreTimeout    time.Duration
	RedisAddr       string
	QueueBackend    string
	QueueKey        string
	JWTIssuer       string
	JWTSigningKey   string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	RateLimitPerMin int
	RollbarToken    string

	Department string
	Year       string
	Division   string
	// WeeklyClasses maps subject code to scheduled classes per week.
	WeeklyClasses map[string]int

	Email  Email
	Sheets Sheets
}

// Email configures the attendance notifier.
type Email struct {
	Enabled        bool
	SendOnPresent  bool
	SendOnAbsent   bool
	From           string
	Transport      string // smtp | sendgrid | log
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SendgridAPIKey string
	Timeout        time.Duration
}

// Sheets configures the external mirror.
type Sheets struct {
	Enabled         bool
	CredentialsFile string
	SpreadsheetID   string
	SyncInterval    time.Duration
	SyncWindowDays  int
	PublishTimeout  time.Duration
}

// Load returns application config populated from environment variables with sensible defaults.
// A .env file in the working directory (or DOTENV_PATH) is applied first when present.
func Load() App {
	loadDotEnv(getEnv("DOTENV_PATH", ".env"))

	return App{
		Env:             getEnv("APP_ENV", "dev"),
		HTTPPort:        getEnv("HTTP_PORT", "8081"),
		DBDriver:        getEnv("DB_DRIVER", "sqlite3"),
		DatabaseURL:     getEnv("DATABASE_URL", "db/attendance.db"),
		SessionDBPath:   getEnv("SESSION_DB_PATH", "db/sessions.db"),
		StoreTimeout:    durationEnv("STORE_TIMEOUT", 5*time.Second),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		QueueBackend:    getEnv("QUEUE_BACKEND", "memory"),
		QueueKey:        getEnv("QUEUE_KEY", "attendance:jobs"),
		JWTIssuer:       getEnv("JWT_ISSUER", "attendance-ledger"),
		JWTSigningKey:   getEnv("JWT_SIGNING_KEY", "dev-signing-secret-change"),
		AccessTTL:       durationEnv("ACCESS_TTL", 15*time.Minute),
		RefreshTTL:      durationEnv("REFRESH_TTL", 24*time.Hour),
		RateLimitPerMin: intEnv("RATE_LIMIT_PER_MIN", 120),
		RollbarToken:    getEnv("ROLLBAR_TOKEN", ""),

		Department:    getEnv("DEPARTMENT", "ENTC"),
		Year:          getEnv("YEAR", "B.Tech"),
		Division:      getEnv("DIVISION", "B"),
		WeeklyClasses: weeklyEnv("SUBJECT_WEEKLY_CLASSES"),

		Email: Email{
			Enabled:        boolEnv("EMAIL_ENABLED", false),
			SendOnPresent:  boolEnv("EMAIL_SEND_ON_PRESENT", true),
			SendOnAbsent:   boolEnv("EMAIL_SEND_ON_ABSENT", true),
			From:           getEnv("EMAIL_FROM", "attendance@example.com"),
			Transport:      getEnv("EMAIL_TRANSPORT", "smtp"),
			SMTPHost:       getEnv("SMTP_SERVER", "smtp.resend.com"),
			SMTPPort:       intEnv("SMTP_PORT", 465),
			SMTPUsername:   getEnv("SMTP_USERNAME", ""),
			SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
			SendgridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			Timeout:        durationEnv("NOTIFY_TIMEOUT", 10*time.Second),
		},
		Sheets: Sheets{
			Enabled:         boolEnv("GOOGLE_SHEETS_ENABLED", false),
			CredentialsFile: getEnv("GOOGLE_SHEETS_CREDENTIALS_FILE", "google_credentials.json"),
			SpreadsheetID:   getEnv("GOOGLE_SHEETS_SPREADSHEET_ID", ""),
			SyncInterval:    durationEnv("SYNC_INTERVAL", 15*time.Minute),
			SyncWindowDays:  intEnv("SYNC_WINDOW_DAYS", 30),
			PublishTimeout:  durationEnv("PUBLISH_TIMEOUT", 30*time.Second),
		},
	}
}

// Production reports whether the app runs in a production environment.
func (a App) Production() bool {
	return a.Env == "production" || a.Env == "prod"
}

// MirrorKey names the destination table for a subject code.
func (a App) MirrorKey(subjectCode string) string {
	return fmt.Sprintf("%s_%s_%s%s", subjectCode, a.Department, a.Year, a.Division)
}

func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("config: stat %s: %v", path, err)
		}
		return
	}
	if err := godotenv.Load(path); err != nil {
		log.Printf("config: load %s: %v", path, err)
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}

// weeklyEnv parses "FOC=3,ME=4" into a code -> count map.
func weeklyEnv(key string) map[string]int {
	out := map[string]int{}
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, count, ok := strings.Cut(pair, "=")
		if !ok {
			log.Printf("invalid weekly class entry %q in %s", pair, key)
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(count))
		if err != nil || n < 0 {
			log.Printf("invalid weekly class count %q in %s", pair, key)
			continue
		}
		out[strings.TrimSpace(code)] = n
	}
	return out
}
