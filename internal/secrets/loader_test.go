package secrets

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	got, err := Load(Source{Name: "api key", File: path, Value: "inline"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != "from-file" {
		t.Fatalf("Load = %q, want trimmed file content", got)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APPLYPILOT_TEST_KEY", "from-env")

	got, err := Load(Source{Name: "api key", Env: "APPLYPILOT_TEST_KEY", Value: "inline"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != "from-env" {
		t.Fatalf("Load = %q, want env value", got)
	}
}

func TestLoadInlineFallback(t *testing.T) {
	got, err := Load(Source{Name: "api key", Env: "APPLYPILOT_UNSET_KEY", Value: " inline "})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != "inline" {
		t.Fatalf("Load = %q, want inline value", got)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(Source{Name: "api key"}); err == nil {
		t.Fatal("want error for empty source")
	}
	if _, err := Load(Source{Name: "api key", File: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Fatal("want error for missing file")
	}
}
