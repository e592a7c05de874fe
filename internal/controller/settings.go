package controller

import (
	"context"
	"fmt"

	"github.com/frontiertower/guest-portal/internal/settings"
)

// APIType selects the controller API generation.
type APIType string

const (
	// APITypeModern is the token-authenticated integration API.
	APITypeModern APIType = "modern"
	// APITypeLegacy is the cookie-session controller API.
	APITypeLegacy APIType = "legacy"
	// APITypeOpenNDS drives an OpenWrt router running OpenNDS over SSH.
	APITypeOpenNDS APIType = "opennds"
	// APITypeNone disables the controller; guests get mock access.
	APITypeNone APIType = "none"
)

const defaultSiteID = "default"

// SettingsSource resolves individual setting keys. *settings.Resolver implements it.
type SettingsSource interface {
	Resolve(ctx context.Context, key string) (string, error)
	Default(key string) string
}

// Settings is the effective controller configuration for one authorization.
type Settings struct {
	APIType       APIType
	ControllerURL string
	APIKey        string
	Username      string
	Password      string
	PrivateKey    string
	SiteID        string
}

// LoadSettings resolves every controller setting once. An unset API type is inferred
// from the environment defaults: an API key means modern, a username means legacy.
func LoadSettings(ctx context.Context, src SettingsSource) (Settings, error) {
	var s Settings

	fields := []struct {
		key string
		dst *string
	}{
		{settings.KeyControllerURL, &s.ControllerURL},
		{settings.KeyAPIKey, &s.APIKey},
		{settings.KeyUsername, &s.Username},
		{settings.KeyPassword, &s.Password},
		{settings.KeyOpenNDSPrivKey, &s.PrivateKey},
		{settings.KeySite, &s.SiteID},
	}
	for _, f := range fields {
		v, err := src.Resolve(ctx, f.key)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to resolve %s: %w", f.key, err)
		}
		*f.dst = v
	}

	apiType, err := src.Resolve(ctx, settings.KeyAPIType)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to resolve %s: %w", settings.KeyAPIType, err)
	}
	s.APIType = APIType(apiType)
	if s.APIType == "" {
		switch {
		case src.Default(settings.KeyAPIKey) != "":
			s.APIType = APITypeModern
		case src.Default(settings.KeyUsername) != "":
			s.APIType = APITypeLegacy
		default:
			s.APIType = APITypeNone
		}
	}

	if s.SiteID == "" {
		s.SiteID = defaultSiteID
	}

	return s, nil
}

// Mode is the controller variant selected by Settings. Each variant carries exactly
// the fields its flow needs.
type Mode interface {
	Name() string
	isMode()
}

// MockMode grants access without contacting any controller.
type MockMode struct{}

// ModernMode talks to the token-authenticated API.
type ModernMode struct {
	BaseURL string
	SiteID  string
	APIKey  string
}

// LegacyMode talks to the cookie-session API.
type LegacyMode struct {
	BaseURL  string
	SiteID   string
	Username string
	Password string
}

// OpenNDSMode runs ndsctl on a router over SSH.
type OpenNDSMode struct {
	Address    string
	Username   string
	Password   string
	PrivateKey string
}

func (MockMode) Name() string    { return "mock" }
func (ModernMode) Name() string  { return string(APITypeModern) }
func (LegacyMode) Name() string  { return string(APITypeLegacy) }
func (OpenNDSMode) Name() string { return string(APITypeOpenNDS) }

func (MockMode) isMode()    {}
func (ModernMode) isMode()  {}
func (LegacyMode) isMode()  {}
func (OpenNDSMode) isMode() {}

// Mode picks the controller variant. A missing controller URL or API type "none"
// always means mock mode.
func (s Settings) Mode() (Mode, error) {
	if s.ControllerURL == "" || s.APIType == APITypeNone {
		return MockMode{}, nil
	}

	switch s.APIType {
	case APITypeModern:
		if s.APIKey == "" {
			return nil, newError(KindMisconfigured, "modern controller API requires an API key", nil)
		}
		return ModernMode{BaseURL: s.ControllerURL, SiteID: s.SiteID, APIKey: s.APIKey}, nil

	case APITypeLegacy:
		if s.Username == "" || s.Password == "" {
			return nil, newError(KindMisconfigured, "legacy controller API requires a username and password", nil)
		}
		return LegacyMode{BaseURL: s.ControllerURL, SiteID: s.SiteID, Username: s.Username, Password: s.Password}, nil

	case APITypeOpenNDS:
		if s.Username == "" || (s.Password == "" && s.PrivateKey == "") {
			return nil, newError(KindMisconfigured, "OpenNDS router requires a username and a password or private key", nil)
		}
		return OpenNDSMode{Address: s.ControllerURL, Username: s.Username, Password: s.Password, PrivateKey: s.PrivateKey}, nil
	}

	return nil, newError(KindMisconfigured, fmt.Sprintf("unsupported controller API type %q", s.APIType), nil)
}
