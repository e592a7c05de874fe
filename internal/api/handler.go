package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/frontiertower/guest-portal/internal/auth"
	"github.com/frontiertower/guest-portal/internal/controller"
	"github.com/frontiertower/guest-portal/internal/guest"
	"github.com/frontiertower/guest-portal/internal/settings"
)

const defaultTokenTTL = 12 * time.Hour

// Authorizer grants guests network access. *controller.Bridge implements it.
type Authorizer interface {
	Authorize(ctx context.Context, req controller.Request) (*controller.Result, error)
	TestConnection(ctx context.Context) (controller.Mode, error)
}

// HandlerConfig holds the handler's dependencies. Guests and JWT may be nil, which
// disables bookkeeping and the admin API respectively.
type HandlerConfig struct {
	Authorizer    Authorizer
	Guests        *guest.Manager
	Store         settings.Store
	Resolver      *settings.Resolver
	JWT           *auth.JWTService
	AdminPassword string
	TokenTTL      time.Duration
	Logger        *zap.Logger
}

// Handler contains all HTTP handlers for the API.
type Handler struct {
	authorizer    Authorizer
	guests        *guest.Manager
	store         settings.Store
	resolver      *settings.Resolver
	jwt           *auth.JWTService
	adminPassword string
	tokenTTL      time.Duration
	logger        *zap.Logger
	startedAt     time.Time
}

// NewHandler creates a new API handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}

	return &Handler{
		authorizer:    cfg.Authorizer,
		guests:        cfg.Guests,
		store:         cfg.Store,
		resolver:      cfg.Resolver,
		jwt:           cfg.JWT,
		adminPassword: cfg.AdminPassword,
		tokenTTL:      cfg.TokenTTL,
		logger:        cfg.Logger,
		startedAt:     time.Now(),
	}
}

// HealthCheck returns the service health status.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// AuthorizeGuestRequest is the captive portal's registration form.
type AuthorizeGuestRequest struct {
	AcceptTou             string `json:"acceptTou" binding:"required"`
	AccessPointMacAddress string `json:"accessPointMacAddress" binding:"required"`
	MacAddress            string `json:"macAddress" binding:"required"`
	Email                 string `json:"email"`
	Browser               string `json:"browser"`
	OperatingSystem       string `json:"operatingSystem"`
	IPAddress             string `json:"ipAddress"`
}

// envelope is the response shape the captive portal frontend expects.
type envelope struct {
	Response    int                `json:"response"`
	Description string             `json:"description"`
	Payload     *controller.Result `json:"payload,omitempty"`
	Message     string             `json:"message,omitempty"`
}

// AuthorizeGuest lets a registered device onto the guest network.
func (h *Handler) AuthorizeGuest(c *gin.Context) {
	var body AuthorizeGuestRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.logger.Debug("invalid authorize request", zap.Error(err))
		c.JSON(http.StatusBadRequest, envelope{
			Response:    http.StatusBadRequest,
			Description: "Bad Request",
			Message:     err.Error(),
		})
		return
	}

	req := controller.Request{
		AcceptTou:       body.AcceptTou,
		AccessPointMAC:  body.AccessPointMacAddress,
		MAC:             body.MacAddress,
		Email:           body.Email,
		Browser:         body.Browser,
		OperatingSystem: body.OperatingSystem,
		IPAddress:       body.IPAddress,
	}
	if req.IPAddress == "" {
		req.IPAddress = c.ClientIP()
	}

	res, err := h.authorizer.Authorize(c.Request.Context(), req)
	if err != nil {
		h.writeAuthorizeError(c, req, err)
		return
	}

	if h.guests != nil {
		if _, err := h.guests.Record(c.Request.Context(), req, res); err != nil {
			h.logger.Error("failed to record guest", zap.String("mac", req.MAC), zap.Error(err))
		}
	}

	description := "200 OK"
	if res.Mock() {
		description = "200 OK (Mock Mode)"
	}
	c.JSON(http.StatusOK, envelope{
		Response:    http.StatusOK,
		Description: description,
		Payload:     res,
	})
}

func (h *Handler) writeAuthorizeError(c *gin.Context, req controller.Request, err error) {
	fields := []zap.Field{
		zap.String("mac", req.MAC),
		zap.String("ap_mac", req.AccessPointMAC),
		zap.Error(err),
	}

	var cerr *controller.Error
	if !errors.As(err, &cerr) {
		h.logger.Error("guest authorization failed", fields...)
		c.JSON(http.StatusInternalServerError, envelope{
			Response:    http.StatusInternalServerError,
			Description: "Internal Server Error",
			Message:     "internal error",
		})
		return
	}

	fields = append(fields, zap.String("kind", string(cerr.Kind)))

	switch cerr.Kind {
	case controller.KindInvalidRequest:
		h.logger.Info("guest authorization rejected", fields...)
		c.JSON(http.StatusBadRequest, envelope{
			Response:    http.StatusBadRequest,
			Description: "Bad Request",
			Message:     cerr.Message,
		})
	case controller.KindClientNotFound:
		h.logger.Warn("guest not connected", fields...)
		c.JSON(http.StatusNotFound, envelope{
			Response:    http.StatusNotFound,
			Description: "Client not found",
			Message:     "Client not connected to network",
		})
	default:
		h.logger.Error("guest authorization failed", fields...)
		c.JSON(http.StatusInternalServerError, envelope{
			Response:    http.StatusInternalServerError,
			Description: "Internal Server Error",
			Message:     cerr.Error(),
		})
	}
}
