// Package controller authorizes captive-portal guests on the building's network controller.
package controller

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// GuestAccessMinutes is the access window granted to every authorized guest.
	GuestAccessMinutes = 1440

	guestAccessDuration = GuestAccessMinutes * time.Minute
	defaultTimeout      = 10 * time.Second
)

// Request is one captive-portal authorization attempt.
type Request struct {
	AcceptTou       string
	AccessPointMAC  string
	MAC             string
	Email           string
	Browser         string
	OperatingSystem string
	IPAddress       string
}

// Validate checks the request before any controller is contacted.
func (r Request) Validate() error {
	if r.AcceptTou != "true" {
		return newError(KindInvalidRequest, "terms of use must be accepted", nil)
	}
	if strings.TrimSpace(r.MAC) == "" {
		return newError(KindInvalidRequest, "macAddress is required", nil)
	}
	if strings.TrimSpace(r.AccessPointMAC) == "" {
		return newError(KindInvalidRequest, "accessPointMacAddress is required", nil)
	}
	return nil
}

// Result describes the access granted to a device.
type Result struct {
	MACAddress  string    `json:"macAddress"`
	MinutesLeft int       `json:"minutesLeft"`
	SecondsLeft int       `json:"secondsLeft"`
	ExpireOn    time.Time `json:"expireOn"`
	LastLogin   time.Time `json:"lastLogin"`
	Valid       bool      `json:"valid"`

	// Mode names the controller variant that granted access.
	Mode string `json:"-"`
}

// Mock reports whether access was granted without a controller.
func (r *Result) Mock() bool {
	return r.Mode == MockMode{}.Name()
}

// Config holds optional bridge dependencies.
type Config struct {
	// Timeout bounds every controller call. Defaults to 10s.
	Timeout time.Duration
	Logger  *zap.Logger
	// Now is the clock used for result timestamps.
	Now func() time.Time
}

// Bridge negotiates guest access with whichever controller the settings select.
// It holds no per-call state and is safe for concurrent use.
type Bridge struct {
	settings SettingsSource
	client   *http.Client
	logger   *zap.Logger
	now      func() time.Time
	timeout  time.Duration

	openNDS func(OpenNDSMode) (*OpenNDSClient, error)
}

// NewBridge creates a bridge reading its configuration from src on every call.
func NewBridge(src SettingsSource, cfg Config) *Bridge {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	b := &Bridge{
		settings: src,
		client:   newControllerClient(cfg.Timeout),
		logger:   cfg.Logger,
		now:      cfg.Now,
		timeout:  cfg.Timeout,
	}
	b.openNDS = func(m OpenNDSMode) (*OpenNDSClient, error) {
		return NewOpenNDSClient(m, b.timeout, b.logger.Named("opennds"))
	}
	return b
}

// Authorize grants network access to the device in req. Every failure is an *Error;
// a returned Result is always valid.
func (b *Bridge) Authorize(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	mode, err := b.resolveMode(ctx)
	if err != nil {
		return nil, err
	}

	b.logger.Debug("authorizing guest",
		zap.String("mode", mode.Name()),
		zap.String("mac", req.MAC),
		zap.String("ap_mac", req.AccessPointMAC),
	)

	switch m := mode.(type) {
	case MockMode:
		b.logger.Info("no controller configured, granting mock access", zap.String("mac", req.MAC))
	case ModernMode:
		err = b.authorizeModern(ctx, m, req)
	case LegacyMode:
		err = b.authorizeLegacy(ctx, m, req)
	case OpenNDSMode:
		err = b.authorizeOpenNDS(ctx, m, req)
	}
	if err != nil {
		return nil, err
	}

	return b.grant(req.MAC, mode), nil
}

// TestConnection checks that the configured controller accepts our credentials without
// authorizing anyone. It returns the selected mode even when the check fails.
func (b *Bridge) TestConnection(ctx context.Context) (Mode, error) {
	mode, err := b.resolveMode(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	switch m := mode.(type) {
	case ModernMode:
		err = b.probeModern(ctx, m)
	case LegacyMode:
		_, err = b.legacyLogin(ctx, m)
	case OpenNDSMode:
		var client *OpenNDSClient
		client, err = b.openNDS(m)
		if err == nil {
			err = client.TestConnection(ctx)
		}
	}
	return mode, err
}

func (b *Bridge) resolveMode(ctx context.Context) (Mode, error) {
	s, err := LoadSettings(ctx, b.settings)
	if err != nil {
		return nil, err
	}
	return s.Mode()
}

func (b *Bridge) grant(mac string, mode Mode) *Result {
	now := b.now().UTC()
	return &Result{
		MACAddress:  mac,
		MinutesLeft: GuestAccessMinutes,
		SecondsLeft: 59,
		ExpireOn:    now.Add(guestAccessDuration),
		LastLogin:   now,
		Valid:       true,
		Mode:        mode.Name(),
	}
}
