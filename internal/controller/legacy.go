package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const csrfCookie = "csrf_token="

// legacyLogins are tried in order: classic controllers first, then UniFi OS consoles.
var legacyLogins = []struct {
	path     string
	remember bool
}{
	{path: "/api/login"},
	{path: "/api/auth/login", remember: true},
}

// legacyCommandPaths are tried in order with the site id substituted.
var legacyCommandPaths = []string{
	"/api/s/%s/cmd/stamgr",
	"/proxy/network/api/s/%s/cmd/stamgr",
}

type legacyCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember,omitempty"`
}

type legacyCommand struct {
	Cmd     string `json:"cmd"`
	MAC     string `json:"mac"`
	Minutes int    `json:"minutes"`
	APMAC   string `json:"ap_mac,omitempty"`
}

type legacyReply struct {
	Meta struct {
		RC  string `json:"rc"`
		Msg string `json:"msg"`
	} `json:"meta"`
}

// legacySession is the authentication captured from a successful login.
type legacySession struct {
	cookie    string
	csrfToken string
}

func (s *legacySession) header() http.Header {
	h := http.Header{}
	if s.cookie != "" {
		h.Set("Cookie", s.cookie)
	}
	if s.csrfToken != "" {
		h.Set("X-CSRF-Token", s.csrfToken)
	}
	return h
}

func (b *Bridge) authorizeLegacy(ctx context.Context, m LegacyMode, req Request) error {
	sess, err := b.legacyLogin(ctx, m)
	if err != nil {
		return err
	}

	cmd := legacyCommand{
		Cmd:     "authorize-guest",
		MAC:     LowerMAC(req.MAC),
		Minutes: GuestAccessMinutes,
	}
	if ap := strings.TrimSpace(req.AccessPointMAC); ap != "" && ap != "unknown" {
		cmd.APMAC = req.AccessPointMAC
	}

	var (
		lastMsg  string
		lastErr  error
		timedOut bool
	)
	for _, path := range legacyCommandPaths {
		cmdURL := joinURL(m.BaseURL, fmt.Sprintf(path, url.PathEscape(m.SiteID)))

		resp, err := b.do(ctx, http.MethodPost, cmdURL, cmd, sess.header())
		if err != nil {
			lastMsg, lastErr, timedOut = err.Error(), err, isTimeout(err)
			b.logger.Debug("authorize command failed", zap.String("url", cmdURL), zap.Error(err))
			continue
		}
		timedOut = false

		var reply legacyReply
		if err := json.Unmarshal(resp.body, &reply); err != nil {
			b.logger.Debug("unparseable authorize reply", zap.String("url", cmdURL), zap.Int("status", resp.status))
			continue
		}
		if reply.Meta.RC == "ok" {
			b.logger.Info("guest authorized via legacy API", zap.String("mac", cmd.MAC), zap.String("url", cmdURL))
			return nil
		}
		if reply.Meta.Msg != "" {
			lastMsg = reply.Meta.Msg
		}
		b.logger.Debug("authorize command rejected",
			zap.String("url", cmdURL),
			zap.Int("status", resp.status),
			zap.String("rc", reply.Meta.RC),
			zap.String("msg", reply.Meta.Msg),
		)
	}

	if timedOut {
		return newError(KindControllerUnavailable, "authorize command timed out", lastErr)
	}
	if lastMsg == "" {
		lastMsg = "controller rejected guest authorization"
	}
	return newError(KindAuthorizationFailed, lastMsg, nil)
}

// legacyLogin opens a controller session, trying each login endpoint in turn.
// Credentials are only blamed when some endpoint actually answered.
func (b *Bridge) legacyLogin(ctx context.Context, m LegacyMode) (*legacySession, error) {
	var (
		lastErr  error
		answered bool
	)
	for _, login := range legacyLogins {
		loginURL := joinURL(m.BaseURL, login.path)

		resp, err := b.do(ctx, http.MethodPost, loginURL, legacyCredentials{
			Username: m.Username,
			Password: m.Password,
			Remember: login.remember,
		}, nil)
		if err != nil {
			lastErr = err
			b.logger.Debug("controller login failed", zap.String("url", loginURL), zap.Error(err))
			continue
		}
		if !resp.ok() {
			answered = true
			lastErr = fmt.Errorf("%s returned HTTP %d", login.path, resp.status)
			b.logger.Debug("controller login rejected", zap.String("url", loginURL), zap.Int("status", resp.status))
			continue
		}

		return sessionFromResponse(resp), nil
	}

	if isTimeout(lastErr) {
		return nil, newError(KindControllerUnavailable, "controller login timed out", lastErr)
	}
	if !answered {
		return nil, newError(KindControllerUnavailable, "controller unreachable", lastErr)
	}
	return nil, newError(KindAuthenticationFailed, "controller login failed", lastErr)
}

// sessionFromResponse joins every Set-Cookie into one Cookie header value and
// extracts the CSRF token some controller generations require.
func sessionFromResponse(resp *response) *legacySession {
	raw := resp.header.Values("Set-Cookie")

	sess := &legacySession{}
	pairs := make([]string, 0, len(raw))
	for _, c := range raw {
		pair, _, _ := strings.Cut(c, ";")
		if pair = strings.TrimSpace(pair); pair != "" {
			pairs = append(pairs, pair)
		}

		if sess.csrfToken == "" {
			if i := strings.Index(c, csrfCookie); i >= 0 {
				token, _, _ := strings.Cut(c[i+len(csrfCookie):], ";")
				sess.csrfToken = strings.TrimSpace(token)
			}
		}
	}
	sess.cookie = strings.Join(pairs, "; ")

	if sess.csrfToken == "" {
		sess.csrfToken = resp.header.Get("X-CSRF-Token")
	}
	return sess
}
