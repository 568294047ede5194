package netutil

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
)

// Listen binds preferred, or with autoFallback the first free candidate.
// The listener is returned bound so the address cannot be taken between
// selection and serve.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("preferred bind address in use: %s: %w", preferred, err)
		}
		slog.Warn("controller bind address busy, trying candidates", "preferred", preferred, "error", err)
	}

	for _, addr := range candidates {
		if addr == preferred {
			continue
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			slog.Debug("controller bind candidate busy", "addr", addr, "error", err)
			continue
		}
		return ln, nil
	}

	return nil, errors.New("no available controller bind addresses")
}
