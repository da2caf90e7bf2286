// Package sdnotify implements the systemd readiness protocol for services
// started with Type=notify.
package sdnotify

import (
	"fmt"
	"net"
	"os"
)

// Notify sends state (for example "READY=1" or "STOPPING=1") to the socket
// named by NOTIFY_SOCKET.
func Notify(state string) error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr) //nolint:gosec,noctx // G704: addr is from NOTIFY_SOCKET set by systemd not user input, no context support in net package for unixgram sockets
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte(state)); err != nil {
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	return nil
}

// Ready reports successful startup.
func Ready() error { return Notify("READY=1") }

// Stopping reports that shutdown has begun.
func Stopping() error { return Notify("STOPPING=1") }
