package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	apperrors "giteakit/internal/errors"

	"go.uber.org/zap"
)

// OnlineFunc reports whether the host has a usable network interface.
type OnlineFunc func() bool

// InterfacesUp reports whether any non-loopback interface is up. It
// errs on the side of online when interfaces cannot be listed.
func InterfacesUp() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return true
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			return true
		}
	}
	return false
}

// CheckIfServerOnline classifies why serverURL cannot be used: no local
// network (ErrNetworkDisconnected) or a server that does not answer the
// version endpoint with 200 (ErrServerUnreachable). A nil error means the
// server looks healthy.
func (c *Client) CheckIfServerOnline(ctx context.Context, serverURL string) error {
	if !c.online() {
		return apperrors.ErrNetworkDisconnected
	}

	target := strings.TrimRight(serverURL, "/") + "/" + APIPath + "/version"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return apperrors.ErrServerUnreachable
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isNetworkError(err) {
			return apperrors.ErrServerUnreachable
		}
		return fmt.Errorf("probing %s: %w", serverURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("version probe failed",
			zap.String("server", serverURL),
			zap.Int("status", resp.StatusCode))
		return apperrors.ErrServerUnreachable
	}
	return nil
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
