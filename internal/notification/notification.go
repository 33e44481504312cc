// Package notification handles sending notifications to external services.
package notification

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/containrrr/shoutrrr"

	"github.com/zorak1103/tcfleet/internal/config"
	"github.com/zorak1103/tcfleet/internal/manifest"
)

// Notifier handles sending notifications via Shoutrrr
type Notifier struct {
	enabled     bool
	shoutrrrURL string
	send        func(url, message string) error
}

// NewNotifier initializes a Shoutrrr-based notification client from config.
func NewNotifier(cfg *config.Config) (*Notifier, error) {
	if !cfg.Notification.Enabled {
		return &Notifier{enabled: false}, nil
	}

	url := strings.TrimSpace(cfg.Notification.ShoutrrURL)
	if url == "" {
		return &Notifier{enabled: false}, fmt.Errorf("notification enabled but shoutrrr_url not configured: provide URL in format 'service://credentials' (e.g., slack://token@channel, discord://token@webhookid)")
	}

	return &Notifier{
		enabled:     true,
		shoutrrrURL: url,
		send:        shoutrrr.Send,
	}, nil
}

// SendFleetUp announces a started fleet with its connection table.
func (n *Notifier) SendFleetUp(m *manifest.Manifest, elapsed time.Duration) error {
	if !n.enabled {
		return nil // Notifications disabled
	}

	var sb strings.Builder
	sb.WriteString("🐳 tcfleet: fleet up\n")
	sb.WriteString(fmt.Sprintf("📅 Time: %s\n", time.Now().Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("📦 Containers: %d (ready in %s)\n", len(m.Services), elapsed.Round(time.Millisecond)))
	sb.WriteString("\n")

	for _, key := range m.Keys() {
		svc := m.Services[key]
		sb.WriteString(fmt.Sprintf("• %s: %s @ %s%s\n", key, svc.Name, svc.IP, formatPorts(svc.Ports)))
	}

	return n.deliver(sb.String(), len(m.Services))
}

// SendFleetFailure reports a fleet that could not be brought up.
func (n *Notifier) SendFleetFailure(launchErr error, total int) error {
	if !n.enabled {
		return nil // Notifications disabled
	}

	var sb strings.Builder
	sb.WriteString("🐳 tcfleet: fleet launch failed\n")
	sb.WriteString(fmt.Sprintf("📅 Time: %s\n", time.Now().Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("📦 Containers: %d\n", total))
	sb.WriteString("⚠️  ")
	if launchErr != nil {
		sb.WriteString(launchErr.Error())
	} else {
		sb.WriteString("unknown error")
	}
	sb.WriteString("\n")

	return n.deliver(sb.String(), total)
}

func (n *Notifier) deliver(message string, containerCount int) error {
	if err := n.send(n.shoutrrrURL, message); err != nil {
		// Extract service type from URL (e.g., "slack://..." -> "slack")
		serviceType := "unknown"
		if idx := strings.Index(n.shoutrrrURL, "://"); idx > 0 {
			serviceType = n.shoutrrrURL[:idx]
		}
		return fmt.Errorf("notification failed to send via %s (containers: %d): %w", serviceType, containerCount, err)
	}
	return nil
}

// IsEnabled reports whether notifications are configured and active.
func (n *Notifier) IsEnabled() bool {
	return n.enabled
}

func formatPorts(ports map[int]int) string {
	if len(ports) == 0 {
		return ""
	}
	keys := make([]int, 0, len(ports))
	for p := range ports {
		keys = append(keys, p)
	}
	sort.Ints(keys)

	parts := make([]string, 0, len(keys))
	for _, p := range keys {
		parts = append(parts, fmt.Sprintf("%d->%d", p, ports[p]))
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
