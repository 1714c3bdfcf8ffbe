package confloader

import (
	"os"
	"path/filepath"
	"testing"
)

type testConfig struct {
	Seed      int64  `koanf:"seed"`
	RunMode   string `koanf:"run_mode"`
	Particles int64  `koanf:"particles"`
	Batches   int    `koanf:"batches"`
	Output    struct {
		Dir string `koanf:"dir"`
	} `koanf:"output"`
}

func TestNewLoader(t *testing.T) {
	l := NewLoader()
	if l == nil {
		t.Fatal("NewLoader() returned nil")
	}
	if l.envPrefix != DefaultEnvPrefix {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, DefaultEnvPrefix)
	}
}

func TestNewLoader_WithOptions(t *testing.T) {
	l := NewLoader(
		WithEnvPrefix("TEST_"),
		WithConfigFile("/path/to/run.yaml"),
	)

	if l.envPrefix != "TEST_" {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, "TEST_")
	}
	if l.filePath != "/path/to/run.yaml" {
		t.Errorf("filePath = %q, want %q", l.filePath, "/path/to/run.yaml")
	}
}

func TestLoader_LoadFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "run.yaml")
	content := `
seed: 42
run_mode: "eigenvalue"
particles: 10000
batches: 100
output:
  dir: "/var/lib/openmc"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	l := NewLoader()
	if err := l.LoadFile(configPath); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if mode := l.GetString("run_mode"); mode != "eigenvalue" {
		t.Errorf("run_mode = %q, want %q", mode, "eigenvalue")
	}
	if n := l.GetInt("batches"); n != 100 {
		t.Errorf("batches = %d, want 100", n)
	}
}

func TestLoader_LoadFile_NotFound(t *testing.T) {
	l := NewLoader()
	if err := l.LoadFile("/nonexistent/run.yaml"); err == nil {
		t.Error("LoadFile() should return error for nonexistent file")
	}
}

func TestLoader_LoadFile_Empty(t *testing.T) {
	l := NewLoader()
	if err := l.LoadFile(""); err != nil {
		t.Errorf("LoadFile(\"\") should not error, got: %v", err)
	}
}

func TestLoader_LoadEnv(t *testing.T) {
	t.Setenv("OPENMC_RUN_MODE", "eigenvalue")
	t.Setenv("OPENMC_BATCHES", "250")

	l := NewLoader()
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}

	if mode := l.GetString("run.mode"); mode != "eigenvalue" {
		t.Errorf("run.mode = %q, want %q", mode, "eigenvalue")
	}
}

func TestLoader_LoadEnv_CustomPrefix(t *testing.T) {
	t.Setenv("MYAPP_SEED", "7")

	l := NewLoader(WithEnvPrefix("MYAPP_"))
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}

	if seed := l.GetInt("seed"); seed != 7 {
		t.Errorf("seed = %d, want 7", seed)
	}
}

func TestLoader_LoadMap(t *testing.T) {
	l := NewLoader()

	data := map[string]any{
		"output.dir": "/tmp/run",
		"debug":      true,
	}
	if err := l.LoadMap(data); err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}

	if dir := l.GetString("output.dir"); dir != "/tmp/run" {
		t.Errorf("output.dir = %q, want %q", dir, "/tmp/run")
	}
	if !l.GetBool("debug") {
		t.Error("debug should be true")
	}
}

func TestLoader_Load_Priority(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "run.yaml")
	content := `
run_mode: "fixed source"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	// Environment overrides the file.
	t.Setenv("OPENMC_RUN_MODE", "eigenvalue")

	l := NewLoader(WithConfigFile(configPath))

	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RunMode != "eigenvalue" {
		t.Errorf("RunMode = %q, want %q (env should override file)", cfg.RunMode, "eigenvalue")
	}
}

func TestLoader_Unmarshal(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "run.yaml")
	content := `
seed: 1
run_mode: "fixed source"
particles: 5000
batches: 20
output:
  dir: "/tmp/out"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	l := NewLoader(WithConfigFile(configPath))

	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Particles != 5000 {
		t.Errorf("Particles = %d, want 5000", cfg.Particles)
	}
	if cfg.Output.Dir != "/tmp/out" {
		t.Errorf("Output.Dir = %q, want %q", cfg.Output.Dir, "/tmp/out")
	}
	if !l.IsLoaded() {
		t.Error("IsLoaded() should be true after Load()")
	}
}

func TestLoader_KeysAndAll(t *testing.T) {
	l := NewLoader()
	l.LoadMap(map[string]any{
		"key1": "value1",
		"key2": "value2",
	})

	if len(l.All()) < 2 {
		t.Errorf("All() returned %d keys, want at least 2", len(l.All()))
	}
	if len(l.Keys()) < 2 {
		t.Errorf("Keys() returned %d keys, want at least 2", len(l.Keys()))
	}
}
