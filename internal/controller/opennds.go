package controller

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

const defaultSSHPort = "22"

// OpenNDSClient authorizes guests on an OpenWrt router running OpenNDS by invoking ndsctl over SSH.
type OpenNDSClient struct {
	address   string
	sshConfig *ssh.ClientConfig
	logger    *zap.Logger

	// run executes one shell command on the router. Replaced in tests.
	run func(ctx context.Context, cmd string) (string, error)
}

// NewOpenNDSClient creates a client for the router in m.
func NewOpenNDSClient(m OpenNDSMode, timeout time.Duration, logger *zap.Logger) (*OpenNDSClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var authMethods []ssh.AuthMethod
	if m.Password != "" {
		authMethods = append(authMethods, ssh.Password(m.Password))
	}
	if m.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(m.PrivateKey))
		if err != nil {
			return nil, newError(KindMisconfigured, "failed to parse OpenNDS private key", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	if len(authMethods) == 0 {
		return nil, newError(KindMisconfigured, "no SSH authentication method configured", nil)
	}

	c := &OpenNDSClient{
		address: sshAddress(m.Address),
		sshConfig: &ssh.ClientConfig{
			User:            m.Username,
			Auth:            authMethods,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // routers regenerate host keys on reflash
			Timeout:         timeout,
		},
		logger: logger,
	}
	c.run = c.runSSHCommand
	return c, nil
}

// AuthorizeMAC lets the device through the captive portal for the given duration.
func (c *OpenNDSClient) AuthorizeMAC(ctx context.Context, macAddress string, duration time.Duration) error {
	mac := LowerMAC(macAddress)
	cmd := fmt.Sprintf("ndsctl auth %s %d", mac, int(duration.Seconds()))

	output, err := c.run(ctx, cmd)
	if err != nil {
		return newError(KindControllerUnavailable, "failed to run ndsctl", err)
	}

	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "already authenticated"):
		c.logger.Info("MAC already authorized", zap.String("mac", mac))
		return nil
	case strings.Contains(lower, "not found"):
		return newError(KindClientNotFound, "client not connected to network", nil)
	case strings.Contains(lower, "authenticated"):
		c.logger.Info("MAC authorized", zap.String("mac", mac))
		return nil
	}

	return newError(KindAuthorizationFailed, "unexpected ndsctl output: "+strings.TrimSpace(output), nil)
}

// TestConnection verifies that OpenNDS is running on the router.
func (c *OpenNDSClient) TestConnection(ctx context.Context) error {
	output, err := c.run(ctx, "ndsctl status")
	if err != nil {
		return newError(KindControllerUnavailable, "connection test failed", err)
	}
	if strings.Contains(output, "openNDS") || strings.Contains(output, "Version") {
		return nil
	}
	return newError(KindControllerUnavailable, "OpenNDS does not appear to be running", nil)
}

func (c *OpenNDSClient) runSSHCommand(ctx context.Context, cmd string) (string, error) {
	dialer := net.Dialer{Timeout: c.sshConfig.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return "", fmt.Errorf("SSH connection failed: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, c.address, c.sshConfig)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("SSH handshake failed: %w", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	output, err := session.CombinedOutput(cmd)
	if err != nil {
		// ndsctl exits non-zero for "not found" but still explains itself.
		if len(output) > 0 {
			return string(output), nil
		}
		return "", fmt.Errorf("command failed: %w", err)
	}

	return string(output), nil
}

func (b *Bridge) authorizeOpenNDS(ctx context.Context, m OpenNDSMode, req Request) error {
	client, err := b.openNDS(m)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	return client.AuthorizeMAC(ctx, req.MAC, guestAccessDuration)
}

// sshAddress accepts host, host:port or an ssh:// URL.
func sshAddress(addr string) string {
	addr = strings.TrimPrefix(strings.TrimSpace(addr), "ssh://")
	addr = strings.TrimRight(addr, "/")
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, defaultSSHPort)
}
