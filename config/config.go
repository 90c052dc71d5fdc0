package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mohammad-safakhou/adaptwatch/internal/failure"
	"github.com/spf13/viper"
)

// Config holds all configuration for the agent
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Search    SearchConfig    `mapstructure:"search"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Reviewer  ReviewerConfig  `mapstructure:"reviewer"`
	Inbox     InboxConfig     `mapstructure:"inbox"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	LogLevel  string        `mapstructure:"log_level"`
	LogFormat string        `mapstructure:"log_format"` // json or console
	DataDir   string        `mapstructure:"data_dir"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

func (g GeneralConfig) Normalize() GeneralConfig {
	g.LogLevel = strings.ToLower(strings.TrimSpace(g.LogLevel))
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	g.LogFormat = strings.ToLower(strings.TrimSpace(g.LogFormat))
	if g.LogFormat == "" {
		g.LogFormat = "json"
	}
	if strings.TrimSpace(g.DataDir) == "" {
		g.DataDir = "data"
	}
	if g.Timeout <= 0 {
		g.Timeout = 30 * time.Minute
	}
	return g
}

func (g GeneralConfig) Validate() error {
	switch g.LogFormat {
	case "json", "console":
	default:
		return &failure.ConfigurationError{Field: "general.log_format", Reason: fmt.Sprintf("must be json or console, got %q", g.LogFormat)}
	}
	return nil
}

// SearchConfig selects and authenticates the search provider
type SearchConfig struct {
	Provider     string        `mapstructure:"provider"` // google, serper, brave, rss
	Query        string        `mapstructure:"query"`
	NumResults   int           `mapstructure:"num_results"`
	Sites        []string      `mapstructure:"sites"`
	RecencyDays  int           `mapstructure:"recency_days"`
	GoogleAPIKey string        `mapstructure:"google_api_key"`
	GoogleCSEID  string        `mapstructure:"google_cse_id"`
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	RSSFeeds     []string      `mapstructure:"rss_feeds"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PageDelay    time.Duration `mapstructure:"page_delay"`
}

func (s SearchConfig) Normalize() SearchConfig {
	s.Provider = strings.ToLower(strings.TrimSpace(s.Provider))
	if s.Provider == "" {
		s.Provider = "google"
	}
	s.Query = strings.TrimSpace(s.Query)
	if s.NumResults <= 0 {
		s.NumResults = 10
	}
	s.Sites = sanitizeDomainList(s.Sites)
	s.RSSFeeds = trimList(s.RSSFeeds)
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	return s
}

// Validate checks that the selected provider has its credentials.
func (s SearchConfig) Validate() error {
	if s.Query == "" {
		return failure.Missing("search.query")
	}
	switch s.Provider {
	case "google":
		if strings.TrimSpace(s.GoogleAPIKey) == "" {
			return failure.Missing("search.google_api_key (GOOGLE_CSE_API_KEY)")
		}
		if strings.TrimSpace(s.GoogleCSEID) == "" {
			return failure.Missing("search.google_cse_id (GOOGLE_CSE_ID)")
		}
	case "serper":
		if strings.TrimSpace(s.SerperAPIKey) == "" {
			return failure.Missing("search.serper_api_key (SERPER_API_KEY)")
		}
	case "brave":
		if strings.TrimSpace(s.BraveAPIKey) == "" {
			return failure.Missing("search.brave_api_key (BRAVE_API_KEY)")
		}
	case "rss":
		if len(s.RSSFeeds) == 0 {
			return failure.Missing("search.rss_feeds")
		}
	default:
		return &failure.ConfigurationError{Field: "search.provider", Reason: fmt.Sprintf("unsupported provider %q", s.Provider)}
	}
	if s.RecencyDays < 0 {
		return &failure.ConfigurationError{Field: "search.recency_days", Reason: "cannot be negative"}
	}
	return nil
}

// FetchConfig controls candidate document downloads
type FetchConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxBytes  int64         `mapstructure:"max_bytes"`
	UserAgent string        `mapstructure:"user_agent"`
	MinYear   int           `mapstructure:"min_year"`  // 0 disables the year filter
	MinPages  int           `mapstructure:"min_pages"` // 0 disables the length filter
}

func (f FetchConfig) Normalize() FetchConfig {
	if f.Timeout <= 0 {
		f.Timeout = 30 * time.Second
	}
	if f.MaxBytes <= 0 {
		f.MaxBytes = 25 << 20
	}
	if strings.TrimSpace(f.UserAgent) == "" {
		f.UserAgent = "adaptwatch/1.0 (+report discovery)"
	}
	return f
}

func (f FetchConfig) Validate() error {
	if f.MinYear < 0 {
		return &failure.ConfigurationError{Field: "fetch.min_year", Reason: "cannot be negative"}
	}
	if f.MinYear > 0 && !f.Enabled {
		return &failure.ConfigurationError{Field: "fetch.min_year", Reason: "requires fetch.enabled"}
	}
	if f.MinPages < 0 {
		return &failure.ConfigurationError{Field: "fetch.min_pages", Reason: "cannot be negative"}
	}
	if f.MinPages > 0 && !f.Enabled {
		return &failure.ConfigurationError{Field: "fetch.min_pages", Reason: "requires fetch.enabled"}
	}
	return nil
}

// SMTPConfig contains outbound mail relay settings
type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	StartTLS bool          `mapstructure:"starttls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (s SMTPConfig) Normalize() SMTPConfig {
	if s.Port <= 0 {
		s.Port = 587
	}
	if strings.TrimSpace(s.From) == "" {
		s.From = s.Username
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	return s
}

func (s SMTPConfig) Validate() error {
	if strings.TrimSpace(s.Host) == "" {
		return failure.Missing("smtp.host (SMTP_SERVER)")
	}
	if strings.TrimSpace(s.Username) == "" {
		return failure.Missing("smtp.username (SMTP_USERNAME)")
	}
	if s.Password == "" {
		return failure.Missing("smtp.password (SMTP_PASSWORD)")
	}
	return nil
}

// ReviewerConfig names the human who approves candidates
type ReviewerConfig struct {
	Email         string `mapstructure:"email"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

func (r ReviewerConfig) Validate() error {
	email := strings.TrimSpace(r.Email)
	if email == "" {
		return failure.Missing("reviewer.email (REVIEWER_EMAIL)")
	}
	if !strings.Contains(email, "@") {
		return &failure.ConfigurationError{Field: "reviewer.email", Reason: fmt.Sprintf("%q is not an address", email)}
	}
	return nil
}

// InboxConfig points at the Maildir that receives reviewer replies
type InboxConfig struct {
	Dir string `mapstructure:"dir"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Backend   string         `mapstructure:"backend"` // file or redis
	LabelsDir string         `mapstructure:"labels_dir"`
	Redis     RedisConfig    `mapstructure:"redis"`
	Postgres  PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Prefix   string        `mapstructure:"prefix"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return failure.Missing("storage.redis.host")
	}
	if strings.TrimSpace(r.Port) == "" {
		return failure.Missing("storage.redis.port")
	}
	return nil
}

// PostgresConfig configures the optional label mirror
type PostgresConfig struct {
	URL           string `mapstructure:"url"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// Enabled reports whether a mirror DSN was configured.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.URL) != ""
}

func (s StorageConfig) Normalize(dataDir string) StorageConfig {
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	if s.Backend == "" {
		s.Backend = "file"
	}
	if strings.TrimSpace(s.LabelsDir) == "" {
		s.LabelsDir = filepath.Join(dataDir, "labels")
	}
	if s.Redis.Timeout <= 0 {
		s.Redis.Timeout = 5 * time.Second
	}
	if s.Redis.Prefix == "" {
		s.Redis.Prefix = "adaptwatch:"
	}
	if strings.TrimSpace(s.Postgres.MigrationsDir) == "" {
		s.Postgres.MigrationsDir = "migrations"
	}
	return s
}

func (s StorageConfig) Validate() error {
	switch s.Backend {
	case "file":
		return nil
	case "redis":
		return s.Redis.Validate()
	default:
		return &failure.ConfigurationError{Field: "storage.backend", Reason: fmt.Sprintf("must be file or redis, got %q", s.Backend)}
	}
}

// ScheduleConfig controls the long-running scheduler
type ScheduleConfig struct {
	Cron       string        `mapstructure:"cron"`
	RunOnStart bool          `mapstructure:"run_on_start"`
	Tick       time.Duration `mapstructure:"tick"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
}

func (s ScheduleConfig) Normalize() ScheduleConfig {
	if strings.TrimSpace(s.Cron) == "" {
		s.Cron = "0 6 * * 1"
	}
	if s.Tick <= 0 {
		s.Tick = time.Minute
	}
	if s.LockTTL <= 0 {
		s.LockTTL = time.Hour
	}
	return s
}

// TelemetryConfig contains batch metrics settings
type TelemetryConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

func (t TelemetryConfig) Normalize() TelemetryConfig {
	if strings.TrimSpace(t.Job) == "" {
		t.Job = "adaptwatch"
	}
	return t
}

// envBindings lists every key so env-only runs unmarshal fully, plus the
// variable names used by existing deployments.
var envBindings = map[string][]string{
	"general.log_level":               nil,
	"general.log_format":              nil,
	"general.data_dir":                nil,
	"general.timeout":                 nil,
	"search.provider":                 nil,
	"search.query":                    nil,
	"search.num_results":              nil,
	"search.sites":                    nil,
	"search.recency_days":             nil,
	"search.google_api_key":           {"GOOGLE_CSE_API_KEY"},
	"search.google_cse_id":            {"GOOGLE_CSE_ID"},
	"search.serper_api_key":           {"SERPER_API_KEY"},
	"search.brave_api_key":            {"BRAVE_API_KEY"},
	"search.rss_feeds":                nil,
	"search.timeout":                  nil,
	"search.page_delay":               nil,
	"fetch.enabled":                   nil,
	"fetch.timeout":                   nil,
	"fetch.max_bytes":                 nil,
	"fetch.user_agent":                nil,
	"fetch.min_year":                  {"MIN_YEAR"},
	"fetch.min_pages":                 {"MIN_PAGES"},
	"smtp.host":                       {"SMTP_SERVER"},
	"smtp.port":                       {"SMTP_PORT"},
	"smtp.username":                   {"SMTP_USERNAME"},
	"smtp.password":                   {"SMTP_PASSWORD"},
	"smtp.from":                       nil,
	"smtp.starttls":                   nil,
	"smtp.timeout":                    nil,
	"reviewer.email":                  {"REVIEWER_EMAIL"},
	"reviewer.subject_prefix":         nil,
	"inbox.dir":                       nil,
	"storage.backend":                 nil,
	"storage.labels_dir":              nil,
	"storage.redis.host":              {"REDIS_HOST"},
	"storage.redis.port":              {"REDIS_PORT"},
	"storage.redis.password":          {"REDIS_PASSWORD"},
	"storage.redis.db":                nil,
	"storage.redis.timeout":           nil,
	"storage.redis.prefix":            nil,
	"storage.postgres.url":            {"DATABASE_URL"},
	"storage.postgres.migrations_dir": nil,
	"schedule.cron":                   nil,
	"schedule.run_on_start":           nil,
	"schedule.tick":                   nil,
	"schedule.lock_ttl":               nil,
	"telemetry.pushgateway_url":       {"PUSHGATEWAY_URL"},
	"telemetry.job":                   nil,
}

// LoadConfig loads config from file and environment. An absent config file
// is fine; the agent usually runs from cron with env-only settings.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.log_format", "json")
	v.SetDefault("general.data_dir", "data")
	v.SetDefault("search.provider", "google")
	v.SetDefault("search.query", `"climate adaptation" insurance report`)
	v.SetDefault("search.num_results", 10)
	v.SetDefault("search.page_delay", time.Second)
	v.SetDefault("fetch.enabled", true)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.starttls", true)
	v.SetDefault("reviewer.subject_prefix", "[Climate Agent]")
	v.SetDefault("storage.backend", "file")
	v.SetDefault("schedule.cron", "0 6 * * 1")

	if path == "" {
		v.AddConfigPath("./config") // path to look for the config file in
		v.AddConfigPath(".")        // optionally look for config in the working directory
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)                                // bin/
			v.AddConfigPath(filepath.Join(exeDir, "..", "config")) // repo root/config
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("ADAPTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // read in environment variables that match (ADAPTWATCH_*)
	for key, names := range envBindings {
		args := append([]string{key, "ADAPTWATCH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, &failure.ConfigurationError{Field: "config file", Reason: err.Error()}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &failure.ConfigurationError{Field: "config file", Reason: err.Error()}
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize applies defaults to every section.
func (c *Config) Normalize() {
	c.General = c.General.Normalize()
	c.Search = c.Search.Normalize()
	c.Fetch = c.Fetch.Normalize()
	c.SMTP = c.SMTP.Normalize()
	if strings.TrimSpace(c.Inbox.Dir) == "" {
		c.Inbox.Dir = filepath.Join(c.General.DataDir, "inbox")
	}
	c.Storage = c.Storage.Normalize(c.General.DataDir)
	c.Schedule = c.Schedule.Normalize()
	c.Telemetry = c.Telemetry.Normalize()
}

// Validate checks the settings every command needs. Credentials for the
// outer services are checked by ValidateDiscovery and ValidateReplies so
// that offline commands such as "labels stats" work without them.
func (c *Config) Validate() error {
	if err := c.General.Validate(); err != nil {
		return err
	}
	if err := c.Fetch.Validate(); err != nil {
		return err
	}
	return c.Storage.Validate()
}

// ValidateDiscovery checks everything a discovery pass needs: search
// credentials, the SMTP relay and the reviewer address.
func (c *Config) ValidateDiscovery() error {
	if err := c.Search.Validate(); err != nil {
		return err
	}
	if err := c.SMTP.Validate(); err != nil {
		return err
	}
	return c.Reviewer.Validate()
}

// ValidateReplies checks the settings the reply pass needs.
func (c *Config) ValidateReplies() error {
	if strings.TrimSpace(c.Inbox.Dir) == "" {
		return failure.Missing("inbox.dir")
	}
	return nil
}
