package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnv_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("REASONLOOP_TEST_KEY=from-file\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("REASONLOOP_TEST_KEY") })

	if got := LoadEnv(path); got != path {
		t.Errorf("LoadEnv returned %q, want %q", got, path)
	}
	if got := os.Getenv("REASONLOOP_TEST_KEY"); got != "from-file" {
		t.Errorf("REASONLOOP_TEST_KEY = %q, want from-file", got)
	}
}

func TestLoadEnv_ExplicitPathMissing(t *testing.T) {
	if got := LoadEnv(filepath.Join(t.TempDir(), "absent.env")); got != "" {
		t.Errorf("LoadEnv returned %q for a missing file", got)
	}
}

func TestLoadEnv_DoesNotOverrideExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("REASONLOOP_TEST_KEEP=file\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("REASONLOOP_TEST_KEEP", "process")

	LoadEnv(path)
	if got := os.Getenv("REASONLOOP_TEST_KEEP"); got != "process" {
		t.Errorf("existing variable overwritten: %q", got)
	}
}

func TestLoadEnv_FindsWorkingDirFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, EnvFileName), []byte("REASONLOOP_TEST_CWD=yes\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Chdir(dir)
	t.Cleanup(func() { os.Unsetenv("REASONLOOP_TEST_CWD") })

	got := LoadEnv()
	if filepath.Base(got) != EnvFileName {
		t.Fatalf("LoadEnv returned %q, want a %s path", got, EnvFileName)
	}
	if v := os.Getenv("REASONLOOP_TEST_CWD"); v != "yes" {
		t.Errorf("REASONLOOP_TEST_CWD = %q, want yes", v)
	}
}

func TestSearchDirs_IncludesWorkingDir(t *testing.T) {
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for _, d := range searchDirs() {
		if d == filepath.Clean(cwd) {
			return
		}
	}
	t.Errorf("search dirs %v missing %s", searchDirs(), cwd)
}

func TestFindIn_FirstMatchWins(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	want := filepath.Join(second, DefaultSettingsPath)
	if err := os.WriteFile(want, []byte("limits: {}\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	// A directory with the same name is not a match.
	if err := os.Mkdir(filepath.Join(first, DefaultSettingsPath), 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, ok := findIn([]string{first, second}, DefaultSettingsPath)
	if !ok || got != want {
		t.Errorf("findIn = %q, %v; want %q", got, ok, want)
	}
	if _, ok := findIn([]string{first}, "missing.yaml"); ok {
		t.Error("findIn reported a missing file")
	}
}
