package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/frontiertower/guest-portal/internal/settings"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("addr = %s", cfg.Server.Addr())
	}
	if cfg.Controller.Timeout != 10*time.Second {
		t.Errorf("controller timeout = %v", cfg.Controller.Timeout)
	}
	if cfg.Settings.Backend != "sqlite" || cfg.Guests.SweepInterval != time.Minute {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_EnvironmentFallbacks(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("UNIFI_API_KEY", "k1")
	t.Setenv("UNIFI_CONTROLLER_URL", "https://unifi.local")
	t.Setenv("OPENNDS_PRIVATE_KEY", "pem")
	t.Setenv("PORTAL_CONTROLLER_SITE", "tower")
	t.Setenv("PORTAL_SERVER_PORT", "9090")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}

	defaults := cfg.SettingDefaults()
	want := map[string]string{
		settings.KeyAPIKey:         "k1",
		settings.KeyControllerURL:  "https://unifi.local",
		settings.KeyOpenNDSPrivKey: "pem",
		settings.KeySite:           "tower",
		settings.KeyUsername:       "",
	}
	for k, v := range want {
		if defaults[k] != v {
			t.Errorf("default %s = %q, want %q", k, defaults[k], v)
		}
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portal.yaml")
	yaml := `
server:
  port: 8443
controller:
  api_type: legacy
  username: admin
  timeout: 3s
settings:
  backend: memory
`
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("UNIFI_USERNAME", "env-admin")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8443 || cfg.Controller.Timeout != 3*time.Second || cfg.Settings.Backend != "memory" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Controller.APIType != "legacy" {
		t.Errorf("api type = %q", cfg.Controller.APIType)
	}
	if cfg.Controller.Username != "env-admin" {
		t.Errorf("environment should override the file, username = %q", cfg.Controller.Username)
	}
}

func TestLoad_Invalid(t *testing.T) {
	chdir(t, t.TempDir())

	t.Setenv("PORTAL_SETTINGS_BACKEND", "redis")
	if _, err := Load(""); err == nil {
		t.Error("redis backend without a url must fail")
	}

	t.Setenv("PORTAL_SETTINGS_BACKEND", "etcd")
	if _, err := Load(""); err == nil {
		t.Error("unknown backend must fail")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("an explicit missing file must fail")
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains: it changes
// the working directory and restores it when the test finishes.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}
