package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

const authorizeGuestAction = "AUTHORIZE_GUEST_ACCESS"

type modernClient struct {
	ID         string `json:"id"`
	MACAddress string `json:"macAddress"`
}

type modernClientPage struct {
	Data []modernClient `json:"data"`
}

type modernAction struct {
	Action           string `json:"action"`
	TimeLimitMinutes int    `json:"timeLimitMinutes"`
}

func modernHeader(m ModernMode) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+m.APIKey)
	return h
}

func (b *Bridge) authorizeModern(ctx context.Context, m ModernMode, req Request) error {
	mac := UpperMAC(req.MAC)
	header := modernHeader(m)

	query := url.Values{}
	query.Set("filter", fmt.Sprintf("macAddress.eq('%s')", mac))
	lookupURL := joinURL(m.BaseURL, fmt.Sprintf("/v1/sites/%s/clients?%s", url.PathEscape(m.SiteID), query.Encode()))

	resp, err := b.do(ctx, http.MethodGet, lookupURL, nil, header)
	if err != nil {
		return newError(KindControllerUnavailable, "client lookup failed", err)
	}
	if !resp.ok() {
		return newError(KindControllerUnavailable, fmt.Sprintf("client lookup returned HTTP %d", resp.status), nil)
	}

	clients, err := decodeModernClients(resp.body)
	if err != nil {
		return newError(KindControllerUnavailable, "failed to decode client lookup", err)
	}
	if len(clients) == 0 {
		return newError(KindClientNotFound, "client not connected to network", nil)
	}

	clientID := clients[0].ID
	b.logger.Debug("controller client found", zap.String("mac", mac), zap.String("client_id", clientID))

	actionURL := joinURL(m.BaseURL, fmt.Sprintf("/v1/sites/%s/clients/%s/actions",
		url.PathEscape(m.SiteID), url.PathEscape(clientID)))

	resp, err = b.do(ctx, http.MethodPost, actionURL, modernAction{
		Action:           authorizeGuestAction,
		TimeLimitMinutes: GuestAccessMinutes,
	}, header)
	if err != nil {
		return transportError(KindAuthorizationFailed, "authorize action failed", err)
	}
	if !resp.ok() {
		return newError(KindAuthorizationFailed, fmt.Sprintf("authorize action returned HTTP %d", resp.status), nil)
	}

	b.logger.Info("guest authorized via modern API", zap.String("mac", mac), zap.String("client_id", clientID))
	return nil
}

// probeModern lists the configured site's clients to verify the API key.
func (b *Bridge) probeModern(ctx context.Context, m ModernMode) error {
	probeURL := joinURL(m.BaseURL, fmt.Sprintf("/v1/sites/%s/clients?limit=1", url.PathEscape(m.SiteID)))

	resp, err := b.do(ctx, http.MethodGet, probeURL, nil, modernHeader(m))
	if err != nil {
		return newError(KindControllerUnavailable, "controller unreachable", err)
	}
	if resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden {
		return newError(KindAuthenticationFailed, fmt.Sprintf("API key rejected with HTTP %d", resp.status), nil)
	}
	if !resp.ok() {
		return newError(KindControllerUnavailable, fmt.Sprintf("controller returned HTTP %d", resp.status), nil)
	}
	return nil
}

// decodeModernClients accepts both the paged {"data": [...]} envelope and a bare array.
func decodeModernClients(body []byte) ([]modernClient, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var clients []modernClient
		if err := json.Unmarshal(trimmed, &clients); err != nil {
			return nil, err
		}
		return clients, nil
	}

	var page modernClientPage
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}
