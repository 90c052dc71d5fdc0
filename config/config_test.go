package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mohammad-safakhou/adaptwatch/internal/failure"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `{"general": {"data_dir": "/var/lib/adaptwatch"}}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Search.Provider != "google" || cfg.Search.NumResults != 10 {
		t.Fatalf("unexpected search defaults: %+v", cfg.Search)
	}
	if cfg.Storage.Backend != "file" || cfg.Storage.LabelsDir != "/var/lib/adaptwatch/labels" {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Inbox.Dir != "/var/lib/adaptwatch/inbox" {
		t.Fatalf("unexpected inbox dir %q", cfg.Inbox.Dir)
	}
	if cfg.Schedule.Cron != "0 6 * * 1" || cfg.Schedule.Tick != time.Minute {
		t.Fatalf("unexpected schedule defaults: %+v", cfg.Schedule)
	}
	if cfg.SMTP.Port != 587 || !cfg.SMTP.StartTLS {
		t.Fatalf("unexpected smtp defaults: %+v", cfg.SMTP)
	}
}

func TestLoadConfigEnvAliases(t *testing.T) {
	t.Setenv("GOOGLE_CSE_API_KEY", "gkey")
	t.Setenv("GOOGLE_CSE_ID", "gcx")
	t.Setenv("SMTP_SERVER", "smtp.example.org")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_USERNAME", "agent@example.org")
	t.Setenv("SMTP_PASSWORD", "pw")
	t.Setenv("REVIEWER_EMAIL", "reviewer@example.org")
	t.Setenv("ADAPTWATCH_SEARCH_RECENCY_DAYS", "30")

	cfg, err := LoadConfig(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.ValidateDiscovery(); err != nil {
		t.Fatalf("discovery config: %v", err)
	}
	if cfg.SMTP.Port != 2525 || cfg.SMTP.From != "agent@example.org" {
		t.Fatalf("unexpected smtp config: %+v", cfg.SMTP)
	}
	if cfg.Search.GoogleAPIKey != "gkey" || cfg.Search.RecencyDays != 30 {
		t.Fatalf("unexpected search config: %+v", cfg.Search)
	}
}

func TestValidateDiscoveryMissingCredentials(t *testing.T) {
	cases := []struct {
		name  string
		cfg   Config
		field string
	}{
		{
			name:  "google key",
			cfg:   Config{Search: SearchConfig{Provider: "google", Query: "q"}},
			field: "search.google_api_key (GOOGLE_CSE_API_KEY)",
		},
		{
			name:  "serper key",
			cfg:   Config{Search: SearchConfig{Provider: "serper", Query: "q"}},
			field: "search.serper_api_key (SERPER_API_KEY)",
		},
		{
			name: "smtp host",
			cfg: Config{
				Search: SearchConfig{Provider: "brave", Query: "q", BraveAPIKey: "b"},
			},
			field: "smtp.host (SMTP_SERVER)",
		},
		{
			name: "reviewer",
			cfg: Config{
				Search: SearchConfig{Provider: "rss", Query: "q", RSSFeeds: []string{"https://a.org/feed"}},
				SMTP:   SMTPConfig{Host: "h", Username: "u", Password: "p"},
			},
			field: "reviewer.email (REVIEWER_EMAIL)",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.ValidateDiscovery()
			ce, ok := err.(*failure.ConfigurationError)
			if !ok {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if ce.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, ce.Field)
			}
			if failure.ExitCode(err) != failure.ExitConfig {
				t.Fatalf("expected config exit code")
			}
		})
	}
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{"storage": {"backend": "s3"}}`))
	if !failure.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if !failure.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestFetchFilters(t *testing.T) {
	t.Setenv("MIN_PAGES", "10")
	t.Setenv("MIN_YEAR", "2020")
	cfg, err := LoadConfig(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Fetch.MinPages != 10 || cfg.Fetch.MinYear != 2020 {
		t.Fatalf("unexpected fetch config: %+v", cfg.Fetch)
	}

	cases := []struct {
		name  string
		cfg   FetchConfig
		field string
	}{
		{"negative pages", FetchConfig{Enabled: true, MinPages: -1}, "fetch.min_pages"},
		{"pages without fetch", FetchConfig{MinPages: 5}, "fetch.min_pages"},
		{"year without fetch", FetchConfig{MinYear: 2020}, "fetch.min_year"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ce, ok := tc.cfg.Validate().(*failure.ConfigurationError)
			if !ok || ce.Field != tc.field {
				t.Fatalf("expected ConfigurationError on %q, got %v", tc.field, tc.cfg.Validate())
			}
		})
	}
}
