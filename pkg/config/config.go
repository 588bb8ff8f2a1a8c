package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // SCHOOL_TIMEZONE must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Policy holds the tunable matching, digest and retry thresholds. It can be overlaid
// from a YAML file (POLICY_FILE) after the environment is read.
type Policy struct {
	MatchSameDay        bool          `yaml:"match_same_day"`
	MatchTimeTolerance  time.Duration `yaml:"match_time_tolerance"`
	MatchTitleThreshold float64       `yaml:"match_title_threshold"`

	DigestDays  int      `yaml:"digest_days"`
	SkipMarkers []string `yaml:"skip_markers"`
	MaxBodyLen  int      `yaml:"extract_max_body"`

	OracleTimeout        time.Duration `yaml:"oracle_timeout"`
	CalendarTimeout      time.Duration `yaml:"calendar_timeout"`
	CalendarRetries      int           `yaml:"calendar_retry_attempts"`
	CalendarRetryBackoff time.Duration `yaml:"calendar_retry_backoff"`
}

type Config struct {
	LogLevel  string
	LogFormat string
	Timezone  *time.Location

	// Email source
	EmailSource     string // "imap" or "gmail"
	GmailAddress    string
	GmailPassword   string
	IMAPAddr        string
	IMAPMailbox     string
	SchoolEmailFrom string
	InitialLookback time.Duration

	// Google APIs
	GoogleCalendarID      string
	GoogleTokenFile       string
	GoogleCredentialsFile string
	SignupSheetID         string
	SignupSheetRange      string
	EmailListFile         string

	// Oracle
	AIProvider    string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	GeminiAPIKey  string
	GeminiModel   string
	OllamaBaseURL string
	OllamaModel   string

	// Watermark and run history
	WatermarkStore string // "file", "sqlite" or "postgres"
	WatermarkFile  string
	SQLitePath     string
	DatabaseURL    string

	// Digest delivery
	SMTPHost            string
	SMTPPort            int
	DigestFrom          string
	FirebaseCredentials string
	FCMDigestTopic      string

	// Serve mode
	Port               string
	APIJWTSecret       string
	FetchInterval      time.Duration
	DigestWeekday      time.Weekday
	DigestHour         int
	PubSubProjectID    string
	PubSubTopic        string
	PubSubSubscription string

	PolicyFile string
	Policy     Policy
}

// Load reads .env (when present) and the environment, then the optional policy file
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	tzName := getEnv("SCHOOL_TIMEZONE", "America/Los_Angeles")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid SCHOOL_TIMEZONE %q: %w", tzName, err)
	}

	weekday, err := parseWeekday(getEnv("DIGEST_WEEKDAY", "sunday"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
		Timezone:  loc,

		EmailSource:     strings.ToLower(getEnv("EMAIL_SOURCE", "imap")),
		GmailAddress:    getEnv("GMAIL_ADDRESS", ""),
		GmailPassword:   getEnv("GMAIL_APP_PASSWORD", ""),
		IMAPAddr:        getEnv("IMAP_ADDR", "imap.gmail.com:993"),
		IMAPMailbox:     getEnv("IMAP_MAILBOX", "INBOX"),
		SchoolEmailFrom: getEnv("SCHOOL_EMAIL_FROM", ""),
		InitialLookback: getDuration("INITIAL_LOOKBACK", 30*24*time.Hour),

		GoogleCalendarID:      getEnv("GOOGLE_CALENDAR_ID", "primary"),
		GoogleTokenFile:       getEnv("GOOGLE_TOKEN_FILE", "token.json"),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
		SignupSheetID:         getEnv("SIGNUP_SHEET_ID", ""),
		SignupSheetRange:      getEnv("SIGNUP_SHEET_RANGE", "B2:B"),
		EmailListFile:         getEnv("EMAIL_LIST_FILE", "email_list.txt"),

		AIProvider:    strings.ToLower(getEnv("AI_PROVIDER", "auto")),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", ""),
		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llama3"),

		WatermarkStore: strings.ToLower(getEnv("WATERMARK_STORE", "file")),
		WatermarkFile:  getEnv("WATERMARK_FILE", ".last_run"),
		SQLitePath:     getEnv("SQLITE_PATH", "schoolcal.db"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		SMTPHost:            getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:            getInt("SMTP_PORT", 465),
		DigestFrom:          getEnv("DIGEST_FROM", ""),
		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),
		FCMDigestTopic:      getEnv("FCM_DIGEST_TOPIC", "school-digest"),

		Port:               getEnv("PORT", "8080"),
		APIJWTSecret:       getEnv("API_JWT_SECRET", ""),
		FetchInterval:      getDuration("FETCH_INTERVAL", time.Hour),
		DigestWeekday:      weekday,
		DigestHour:         getInt("DIGEST_HOUR", 18),
		PubSubProjectID:    getEnv("PUBSUB_PROJECT_ID", ""),
		PubSubTopic:        getEnv("PUBSUB_TOPIC", "gmail-updates"),
		PubSubSubscription: getEnv("PUBSUB_SUBSCRIPTION", ""),

		PolicyFile: getEnv("POLICY_FILE", ""),
		Policy: Policy{
			MatchSameDay:         getBool("MATCH_SAME_DAY", true),
			MatchTimeTolerance:   getDuration("MATCH_TIME_TOLERANCE", 0),
			MatchTitleThreshold:  getFloat("MATCH_TITLE_THRESHOLD", 0.6),
			DigestDays:           getInt("DIGEST_DAYS", 7),
			SkipMarkers:          splitList(getEnv("SKIP_MARKERS", "you signed up for")),
			MaxBodyLen:           getInt("EXTRACT_MAX_BODY", 6000),
			OracleTimeout:        getDuration("ORACLE_TIMEOUT", 60*time.Second),
			CalendarTimeout:      getDuration("CALENDAR_TIMEOUT", 30*time.Second),
			CalendarRetries:      getInt("CALENDAR_RETRY_ATTEMPTS", 3),
			CalendarRetryBackoff: getDuration("CALENDAR_RETRY_BACKOFF", 500*time.Millisecond),
		},
	}

	if cfg.DigestFrom == "" {
		cfg.DigestFrom = cfg.GmailAddress
	}

	if cfg.PolicyFile != "" {
		if err := cfg.Policy.LoadFile(cfg.PolicyFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML policy file on p. Keys absent from the file keep their value.
func (p *Policy) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	return nil
}

// Validate checks the thresholds are usable
func (p *Policy) Validate() error {
	var errs []error
	if p.MatchTitleThreshold <= 0 || p.MatchTitleThreshold > 1 {
		errs = append(errs, fmt.Errorf("match_title_threshold must be in (0, 1], got %v", p.MatchTitleThreshold))
	}
	if p.MatchTimeTolerance < 0 {
		errs = append(errs, fmt.Errorf("match_time_tolerance must not be negative"))
	}
	if !p.MatchSameDay && p.MatchTimeTolerance == 0 {
		errs = append(errs, fmt.Errorf("match_time_tolerance is required when match_same_day is off"))
	}
	if p.DigestDays <= 0 {
		errs = append(errs, fmt.Errorf("digest_days must be positive"))
	}
	if p.CalendarRetries < 1 {
		errs = append(errs, fmt.Errorf("calendar_retry_attempts must be at least 1"))
	}
	if p.OracleTimeout <= 0 || p.CalendarTimeout <= 0 {
		errs = append(errs, fmt.Errorf("oracle_timeout and calendar_timeout must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateFetch reports the settings a fetch run cannot do without
func (c *Config) ValidateFetch() error {
	var missing []string
	switch c.EmailSource {
	case "imap":
		if c.GmailAddress == "" {
			missing = append(missing, "GMAIL_ADDRESS")
		}
		if c.GmailPassword == "" {
			missing = append(missing, "GMAIL_APP_PASSWORD")
		}
	case "gmail":
	default:
		return fmt.Errorf("unknown EMAIL_SOURCE %q", c.EmailSource)
	}
	if c.SchoolEmailFrom == "" {
		missing = append(missing, "SCHOOL_EMAIL_FROM")
	}
	missing = append(missing, c.missingOracle()...)
	return missingError(missing)
}

// ValidateDigest reports the settings a digest run cannot do without
func (c *Config) ValidateDigest(dryRun bool) error {
	missing := c.missingOracle()
	if !dryRun {
		if c.GmailAddress == "" {
			missing = append(missing, "GMAIL_ADDRESS")
		}
		if c.GmailPassword == "" {
			missing = append(missing, "GMAIL_APP_PASSWORD")
		}
	}
	return missingError(missing)
}

// ValidateServe reports the settings serve mode cannot do without
func (c *Config) ValidateServe() error {
	if err := c.ValidateFetch(); err != nil {
		return err
	}
	if c.APIJWTSecret == "" {
		return missingError([]string{"API_JWT_SECRET"})
	}
	return nil
}

func (c *Config) missingOracle() []string {
	switch c.AIProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return []string{"OPENAI_API_KEY"}
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return []string{"GEMINI_API_KEY"}
		}
	}
	return nil
}

func missingError(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if key == name || key == name[:3] {
			return d, nil
		}
	}
	if n, err := strconv.Atoi(key); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	return 0, fmt.Errorf("invalid DIGEST_WEEKDAY %q", s)
}
