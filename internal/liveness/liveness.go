// Package liveness tracks whether outbound connectivity currently exists.
package liveness

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"teslabox/internal/config"
	"teslabox/internal/logging"
)

// Oracle reports whether an upload attempt can reach the network.
type Oracle interface {
	IsAlive() bool
}

// Monitor probes a target on an interval and caches the latest result.
type Monitor struct {
	target   string
	interval time.Duration
	timeout  time.Duration
	client   *http.Client
	dialer   *net.Dialer
	logger   *slog.Logger

	alive atomic.Bool
}

// NewMonitor builds a Monitor from cfg.Liveness. It reports down until the
// first probe completes.
func NewMonitor(cfg *config.Config, logger *slog.Logger) *Monitor {
	timeout := time.Duration(cfg.Liveness.Timeout) * time.Second
	return &Monitor{
		target:   strings.TrimSpace(cfg.Liveness.Target),
		interval: time.Duration(cfg.Liveness.Interval) * time.Second,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
		dialer:   &net.Dialer{Timeout: timeout},
		logger:   logging.NewComponentLogger(logger, "liveness"),
	}
}

// IsAlive returns the most recent probe result.
func (m *Monitor) IsAlive() bool {
	return m.alive.Load()
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check performs one probe, stores and returns its result.
func (m *Monitor) Check(ctx context.Context) bool {
	err := m.probe(ctx)
	alive := err == nil
	if previous := m.alive.Swap(alive); previous != alive {
		if alive {
			m.logger.Info("connectivity restored", logging.String("target", m.target))
		} else if ctx.Err() == nil {
			logging.WarnWithContext(m.logger, "connectivity lost", "liveness_down",
				logging.String("target", m.target),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the vehicle network or hotspot"),
				logging.String(logging.FieldImpact, "uploads wait until connectivity returns"),
			)
		}
	}
	return alive
}

func (m *Monitor) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if strings.HasPrefix(m.target, "http://") || strings.HasPrefix(m.target, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.target, nil)
		if err != nil {
			return fmt.Errorf("build probe request: %w", err)
		}
		resp, err := m.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("probe returned %d", resp.StatusCode)
		}
		return nil
	}

	conn, err := m.dialer.DialContext(ctx, "tcp", m.target)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Static is an Oracle with a fixed answer, used when probing is not wanted.
type Static bool

// IsAlive returns the fixed answer.
func (s Static) IsAlive() bool { return bool(s) }
