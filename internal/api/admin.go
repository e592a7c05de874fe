package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/frontiertower/guest-portal/internal/auth"
	"github.com/frontiertower/guest-portal/internal/controller"
	"github.com/frontiertower/guest-portal/internal/db"
	"github.com/frontiertower/guest-portal/internal/guest"
	"github.com/frontiertower/guest-portal/internal/settings"
)

const adminSubject = "admin"

// LoginRequest represents an admin login.
type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// AdminLogin exchanges the admin password for a bearer token.
func (h *Handler) AdminLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !auth.CheckPassword(h.adminPassword, req.Password) {
		h.logger.Warn("admin login failed", zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, expiresAt, err := h.jwt.GenerateToken(adminSubject, h.tokenTTL)
	if err != nil {
		h.logger.Error("failed to issue admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

// settingView is one row of the settings listing.
type settingView struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Source string `json:"source"` // store, environment or unset
	Secret bool   `json:"secret"`
}

// GetSettings lists every known setting with its effective value. Secrets are masked.
func (h *Handler) GetSettings(c *gin.Context) {
	stored, err := h.store.All(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list settings"})
		return
	}

	views := make([]settingView, 0, len(settings.Known))
	for _, key := range settings.Known {
		v := settingView{Key: key, Source: "unset", Secret: settings.IsSecret(key)}
		if value := stored[key]; value != "" {
			v.Value, v.Source = value, "store"
		} else if value := h.resolver.Default(key); value != "" {
			v.Value, v.Source = value, "environment"
		}
		if v.Secret {
			v.Value = settings.Mask(v.Value)
		}
		views = append(views, v)
	}

	c.JSON(http.StatusOK, gin.H{"settings": views})
}

// UpdateSettings saves a {key: value} map. An empty value removes the stored value so
// the environment default applies again.
//
// Keys are written one at a time in settings.Known order. The update is not atomic:
// if the store fails partway, the keys before the failing one stay written.
func (h *Handler) UpdateSettings(c *gin.Context) {
	var updates map[string]string
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no settings given"})
		return
	}

	for key, value := range updates {
		if err := validateSetting(key, value); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ctx := c.Request.Context()
	for _, key := range settings.Known {
		value, ok := updates[key]
		if !ok {
			continue
		}

		var err error
		if value == "" {
			err = h.store.Delete(ctx, key)
		} else {
			err = h.store.Set(ctx, key, value)
		}
		if err != nil {
			h.logger.Error("failed to save setting", zap.String("key", key), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
			return
		}
		h.logger.Info("setting updated", zap.String("key", key), zap.Bool("cleared", value == ""))
	}

	h.GetSettings(c)
}

func validateSetting(key, value string) error {
	if !settings.IsKnown(key) {
		return fmt.Errorf("unknown setting %q", key)
	}
	if key == settings.KeyAPIType && value != "" {
		switch controller.APIType(value) {
		case controller.APITypeModern, controller.APITypeLegacy, controller.APITypeOpenNDS, controller.APITypeNone:
		default:
			return fmt.Errorf("unsupported %s %q", key, value)
		}
	}
	return nil
}

// ListGuests returns recorded guests, optionally filtered by ?status=active|expired.
func (h *Handler) ListGuests(c *gin.Context) {
	guests, err := h.guests.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		if errors.Is(err, guest.ErrInvalidStatus) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to list guests", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list guests"})
		return
	}

	result := make([]gin.H, 0, len(guests))
	for _, g := range guests {
		result = append(result, guestJSON(g))
	}

	c.JSON(http.StatusOK, gin.H{
		"guests": result,
		"count":  len(result),
	})
}

func guestJSON(g *db.Guest) gin.H {
	return gin.H{
		"id":               g.ID,
		"email":            g.Email,
		"mac_address":      g.MACAddress,
		"ap_mac":           g.AccessPointMAC,
		"ip_address":       g.IPAddress,
		"browser":          g.Browser,
		"operating_system": g.OperatingSystem,
		"mode":             g.Mode,
		"authorized_at":    g.AuthorizedAt.UTC().Format(time.RFC3339),
		"expires_at":       g.ExpiresAt.UTC().Format(time.RFC3339),
		"status":           g.Status,
	}
}

// GetStats returns guest counters.
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.guests.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to read stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// TestController checks the configured controller credentials without authorizing anyone.
func (h *Handler) TestController(c *gin.Context) {
	mode, err := h.authorizer.TestConnection(c.Request.Context())

	resp := gin.H{"ok": err == nil}
	if mode != nil {
		resp["mode"] = mode.Name()
	}
	if err != nil {
		h.logger.Warn("controller connection test failed", zap.Error(err))
		resp["error"] = err.Error()
		if kind := controller.KindOf(err); kind != "" {
			resp["kind"] = string(kind)
		}
	}

	c.JSON(http.StatusOK, resp)
}
