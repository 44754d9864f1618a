// Package discovery finds an MQTT broker on the local network through
// mDNS/DNS-SD (_mqtt._tcp).
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	Service = "_mqtt._tcp"
	Domain  = "local."
)

var ErrNoBroker = errors.New("discovery: no broker found")

// Broker is a discovered broker endpoint.
type Broker struct {
	Instance string
	Host     string
	Port     int
}

// FindBroker browses for up to timeout and returns the first usable
// announcement.
func FindBroker(ctx context.Context, timeout time.Duration, logger *slog.Logger) (Broker, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return Broker{}, fmt.Errorf("failed to initialize resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return Broker{}, fmt.Errorf("browse %s: %w", Service, err)
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return Broker{}, ErrNoBroker
			}
			b, usable := fromEntry(entry)
			if !usable {
				logger.Debug("skipping broker announcement", "instance", entry.Instance)
				continue
			}
			logger.Info("broker discovered", "instance", b.Instance, "host", b.Host, "port", b.Port)
			return b, nil
		case <-ctx.Done():
			return Broker{}, ErrNoBroker
		}
	}
}

// fromEntry prefers an IPv4 address, then IPv6, then the advertised host
// name.
func fromEntry(e *zeroconf.ServiceEntry) (Broker, bool) {
	if e == nil || e.Port <= 0 {
		return Broker{}, false
	}
	b := Broker{Instance: e.Instance, Port: e.Port}
	switch {
	case len(e.AddrIPv4) > 0:
		b.Host = e.AddrIPv4[0].String()
	case len(e.AddrIPv6) > 0:
		b.Host = e.AddrIPv6[0].String()
	case e.HostName != "":
		b.Host = strings.TrimSuffix(e.HostName, ".")
	default:
		return Broker{}, false
	}
	return b, true
}
