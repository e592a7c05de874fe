package controller

import (
	"context"
	"errors"
	"testing"

	"github.com/frontiertower/guest-portal/internal/settings"
)

func TestLoadSettings_InfersAPIType(t *testing.T) {
	tests := []struct {
		name     string
		stored   map[string]string
		defaults map[string]string
		want     APIType
	}{
		{
			name:     "api key in environment",
			defaults: map[string]string{settings.KeyAPIKey: "k1", settings.KeyUsername: "admin"},
			want:     APITypeModern,
		},
		{
			name:     "username in environment",
			defaults: map[string]string{settings.KeyUsername: "admin"},
			want:     APITypeLegacy,
		},
		{
			name: "nothing in environment",
			want: APITypeNone,
		},
		{
			name:     "stored credentials do not drive inference",
			stored:   map[string]string{settings.KeyAPIKey: "k1"},
			defaults: map[string]string{settings.KeyUsername: "admin"},
			want:     APITypeLegacy,
		},
		{
			name:     "explicit type wins",
			stored:   map[string]string{settings.KeyAPIType: "legacy"},
			defaults: map[string]string{settings.KeyAPIKey: "k1"},
			want:     APITypeLegacy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := settings.NewResolver(settings.NewMemoryStore(tt.stored), tt.defaults)

			s, err := LoadSettings(context.Background(), src)
			if err != nil {
				t.Fatalf("LoadSettings: %v", err)
			}
			if s.APIType != tt.want {
				t.Errorf("APIType = %q, want %q", s.APIType, tt.want)
			}
		})
	}
}

func TestLoadSettings_StoreOverridesEnvironment(t *testing.T) {
	src := settings.NewResolver(
		settings.NewMemoryStore(map[string]string{
			settings.KeyControllerURL: "https://unifi.example:8443",
			settings.KeyUsername:      "  ",
		}),
		map[string]string{
			settings.KeyControllerURL: "https://fallback.example",
			settings.KeyUsername:      "env-admin",
			settings.KeySite:          "tower",
		},
	)

	s, err := LoadSettings(context.Background(), src)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.ControllerURL != "https://unifi.example:8443" {
		t.Errorf("ControllerURL = %q", s.ControllerURL)
	}
	if s.Username != "env-admin" {
		t.Errorf("blank stored value should fall back, Username = %q", s.Username)
	}
	if s.SiteID != "tower" {
		t.Errorf("SiteID = %q, want tower", s.SiteID)
	}
}

func TestLoadSettings_DefaultSite(t *testing.T) {
	s, err := LoadSettings(context.Background(), settings.NewResolver(nil, nil))
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.SiteID != "default" {
		t.Errorf("SiteID = %q, want default", s.SiteID)
	}
}

type failingStore struct {
	settings.Store
}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("database is locked")
}

func TestLoadSettings_StoreError(t *testing.T) {
	_, err := LoadSettings(context.Background(), settings.NewResolver(failingStore{}, nil))
	if err == nil {
		t.Fatal("expected an error")
	}
	if KindOf(err) != "" {
		t.Errorf("store errors are not classified, got kind %q", KindOf(err))
	}
}

func TestSettingsMode(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		want     Mode
		wantKind Kind
	}{
		{
			name:     "no url",
			settings: Settings{APIType: APITypeModern, APIKey: "k1"},
			want:     MockMode{},
		},
		{
			name:     "none",
			settings: Settings{APIType: APITypeNone, ControllerURL: "https://c"},
			want:     MockMode{},
		},
		{
			name:     "modern",
			settings: Settings{APIType: APITypeModern, ControllerURL: "https://c", APIKey: "k1", SiteID: "default"},
			want:     ModernMode{BaseURL: "https://c", SiteID: "default", APIKey: "k1"},
		},
		{
			name:     "legacy",
			settings: Settings{APIType: APITypeLegacy, ControllerURL: "https://c", Username: "u", Password: "p", SiteID: "s"},
			want:     LegacyMode{BaseURL: "https://c", SiteID: "s", Username: "u", Password: "p"},
		},
		{
			name:     "opennds with key",
			settings: Settings{APIType: APITypeOpenNDS, ControllerURL: "10.0.0.1", Username: "root", PrivateKey: "pem"},
			want:     OpenNDSMode{Address: "10.0.0.1", Username: "root", PrivateKey: "pem"},
		},
		{
			name:     "legacy missing username",
			settings: Settings{APIType: APITypeLegacy, ControllerURL: "https://c", Password: "p"},
			wantKind: KindMisconfigured,
		},
		{
			name:     "unknown",
			settings: Settings{APIType: "omada", ControllerURL: "https://c"},
			wantKind: KindMisconfigured,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.settings.Mode()
			if tt.wantKind != "" {
				assertKind(t, err, tt.wantKind)
				return
			}
			if err != nil {
				t.Fatalf("Mode: %v", err)
			}
			if got != tt.want {
				t.Errorf("Mode = %#v, want %#v", got, tt.want)
			}
		})
	}
}
