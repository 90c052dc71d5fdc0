package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/adaptwatch/internal/failure"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	body := fmt.Sprintf(`{"general": {"data_dir": %q, "log_format": "console", "log_level": "error"}}`, dir)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := rootCMD()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLabelsStatsEmptyStore(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "labels", "stats", "-c", writeConfig(t, dir))
	if err != nil {
		t.Fatalf("labels stats: %v", err)
	}
	for _, want := range []string{"partitions", "APPROVE", "total", "training needs at least 10"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDiscoverWithoutCredentialsIsConfigError(t *testing.T) {
	for _, name := range []string{"GOOGLE_CSE_API_KEY", "GOOGLE_CSE_ID", "ADAPTWATCH_SEARCH_GOOGLE_API_KEY"} {
		t.Setenv(name, "")
	}
	dir := t.TempDir()
	_, err := execute(t, "discover", "-c", writeConfig(t, dir))
	if failure.ExitCode(err) != failure.ExitConfig {
		t.Fatalf("expected exit %d, got %d (%v)", failure.ExitConfig, failure.ExitCode(err), err)
	}
}

func TestMigrateWithoutDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ADAPTWATCH_STORAGE_POSTGRES_URL", "")
	dir := t.TempDir()
	_, err := execute(t, "migrate", "-c", writeConfig(t, dir))
	if !failure.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
