package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Database: DatabaseConfig{
			Driver: DriverRedis,
			Addrs:  []string{"localhost:6379"},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingRedisAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = []string{}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing redis addrs")
	}

	expected := `database.addrs is required for driver "redis"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_BoltNeedsPathOnly(t *testing.T) {
	cfg := validConfig()
	cfg.Database = DatabaseConfig{Driver: DriverBolt, BoltPath: "/tmp/docdex.db"}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.Database.BoltPath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing bolt path")
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "valkey"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}

	expected := `database.driver must be "redis" or "bolt", got "valkey"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_PageSizes(t *testing.T) {
	cfg := validConfig()
	cfg.Search.DefaultPageSize = 200
	cfg.Search.MaxPageSize = 100

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when default page size exceeds max")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 10 {
		t.Errorf("expected WriteTimeoutSec=10, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Database.Driver != DriverRedis {
		t.Errorf("expected Driver=%q, got %q", DriverRedis, cfg.Database.Driver)
	}
	if cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Database.ReadinessTimeout)
	}
	if cfg.Database.BoltPath != "" {
		t.Errorf("expected empty BoltPath for redis driver, got %q", cfg.Database.BoltPath)
	}
	if cfg.Search.DefaultPageSize != 10 {
		t.Errorf("expected DefaultPageSize=10, got %d", cfg.Search.DefaultPageSize)
	}
	if cfg.Search.MaxPageSize != 100 {
		t.Errorf("expected MaxPageSize=100, got %d", cfg.Search.MaxPageSize)
	}
	if cfg.Search.RefreshTimeoutSec != 5 {
		t.Errorf("expected RefreshTimeoutSec=5, got %d", cfg.Search.RefreshTimeoutSec)
	}
	if cfg.Storage.KeyPrefix != "docdex:" {
		t.Errorf("expected KeyPrefix='docdex:', got %q", cfg.Storage.KeyPrefix)
	}
}

func TestApplyDefaults_BoltPath(t *testing.T) {
	cfg := Config{Database: DatabaseConfig{Driver: DriverBolt}}
	cfg.ApplyDefaults()

	if cfg.Database.BoltPath != "docdex.db" {
		t.Errorf("expected BoltPath='docdex.db', got %q", cfg.Database.BoltPath)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:     HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database: DatabaseConfig{Driver: DriverBolt, BoltPath: "data.db", ReadinessTimeout: 15},
		Search:   SearchConfig{DefaultPageSize: 50, MaxPageSize: 500, RefreshTimeoutSec: 1},
		Storage:  StorageConfig{KeyPrefix: "custom:"},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Database.BoltPath != "data.db" {
		t.Errorf("expected BoltPath='data.db', got %q", cfg.Database.BoltPath)
	}
	if cfg.Search.DefaultPageSize != 50 {
		t.Errorf("expected DefaultPageSize=50, got %d", cfg.Search.DefaultPageSize)
	}
	if cfg.Storage.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Storage.KeyPrefix)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("DOCDEX_TEST_ADDR", "redis:6379")

	tests := []struct {
		input    string
		expected string
	}{
		{"addr: ${DOCDEX_TEST_ADDR}", "addr: redis:6379"},
		{"addr: ${DOCDEX_TEST_MISSING:-localhost:6379}", "addr: localhost:6379"},
		{"addr: ${DOCDEX_TEST_ADDR:-localhost:6379}", "addr: redis:6379"},
		{"addr: ${DOCDEX_TEST_MISSING}", "addr: "},
	}

	for _, tc := range tests {
		got := string(expandEnvVars([]byte(tc.input)))
		if got != tc.expected {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestLoad_FromConfigDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "config"), 0o750); err != nil {
		t.Fatal(err)
	}
	yaml := `
http:
  port: 9090
database:
  driver: bolt
  bolt_path: ${DOCDEX_TEST_BOLT:-/tmp/test.db}
storage:
  key_prefix: "t:"
logging:
  level: debug
`
	if err := os.WriteFile(filepath.Join(dir, "config", "unittest.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := Load("unittest")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Database.Driver != DriverBolt || cfg.Database.BoltPath != "/tmp/test.db" {
		t.Errorf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.Storage.KeyPrefix != "t:" {
		t.Errorf("expected key prefix 't:', got %q", cfg.Storage.KeyPrefix)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level debug, got %q", cfg.Logging.Level)
	}
	if cfg.Search.MaxPageSize != 100 {
		t.Errorf("expected defaults applied, got MaxPageSize=%d", cfg.Search.MaxPageSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())

	if _, err := Load("does-not-exist"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate_Kinds(t *testing.T) {
	tests := []struct {
		name    string
		kind    KindConfig
		wantErr bool
	}{
		{"valid", KindConfig{Name: "Person", Index: "crm", Type: "people", Properties: []PropertyConfig{
			{Name: "id", PrimaryKey: true},
			{Name: "age", Indexed: "numeric"},
		}}, false},
		{"missing index", KindConfig{Name: "Person", Type: "people"}, true},
		{"unnamed property", KindConfig{Name: "Person", Index: "crm", Type: "people", Properties: []PropertyConfig{
			{Indexed: "tag"},
		}}, true},
		{"bad indexed", KindConfig{Name: "Person", Index: "crm", Type: "people", Properties: []PropertyConfig{
			{Name: "loc", Indexed: "geo"},
		}}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Kinds = []KindConfig{tc.kind}
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
