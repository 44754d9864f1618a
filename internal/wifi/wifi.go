// Package wifi associates the board with the configured access point via
// NetworkManager on the system D-Bus.
package wifi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/wilot/weather-station/internal/config"
)

const (
	nmDest  = "org.freedesktop.NetworkManager"
	nmPath  = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmIface = "org.freedesktop.NetworkManager"

	deviceStateProp = "org.freedesktop.NetworkManager.Device.State"

	// NM_DEVICE_STATE_ACTIVATED
	deviceActivated uint32 = 100
)

// Associator implements link.Endpoint. With no SSID configured it reports
// connected and never touches the bus, leaving networking to the OS.
type Associator struct {
	ssid       string
	passphrase string
	iface      string
	logger     *slog.Logger

	object func(dbus.ObjectPath) dbus.BusObject
	closer func() error

	mu      sync.Mutex
	device  dbus.ObjectPath
	profile dbus.ObjectPath
}

// New connects to the system bus unless the SSID is empty.
func New(cfg config.Config, logger *slog.Logger) (*Associator, error) {
	a := &Associator{
		ssid:       cfg.WiFiSSID,
		passphrase: cfg.WiFiPassphrase,
		iface:      cfg.WiFiInterface,
		logger:     logger.With("ssid", cfg.WiFiSSID, "iface", cfg.WiFiInterface),
	}
	if a.Unmanaged() {
		return a, nil
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	a.object = func(p dbus.ObjectPath) dbus.BusObject { return conn.Object(nmDest, p) }
	a.closer = conn.Close
	return a, nil
}

// Unmanaged reports whether association is left to the operating system.
func (a *Associator) Unmanaged() bool { return a.ssid == "" }

// Dial asks NetworkManager to activate the access point. It returns once
// the request is accepted; association progress is seen via Connected.
func (a *Associator) Dial(ctx context.Context) error {
	if a.Unmanaged() {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device == "" {
		var dev dbus.ObjectPath
		err := a.object(nmPath).CallWithContext(ctx, nmIface+".GetDeviceByIpIface", 0, a.iface).Store(&dev)
		if err != nil {
			return fmt.Errorf("find device %s: %w", a.iface, err)
		}
		a.device = dev
	}

	nm := a.object(nmPath)
	if a.profile != "" {
		var active dbus.ObjectPath
		err := nm.CallWithContext(ctx, nmIface+".ActivateConnection", 0,
			a.profile, a.device, dbus.ObjectPath("/")).Store(&active)
		if err != nil {
			return fmt.Errorf("activate %s: %w", a.ssid, err)
		}
		a.logger.Info("wifi activation requested", "active", active)
		return nil
	}

	var profile, active dbus.ObjectPath
	err := nm.CallWithContext(ctx, nmIface+".AddAndActivateConnection", 0,
		a.settings(), a.device, dbus.ObjectPath("/")).Store(&profile, &active)
	if err != nil {
		return fmt.Errorf("add and activate %s: %w", a.ssid, err)
	}
	a.profile = profile
	a.logger.Info("wifi association requested", "profile", profile, "active", active)
	return nil
}

// Connected reports whether the wireless device is activated.
func (a *Associator) Connected() bool {
	if a.Unmanaged() {
		return true
	}

	a.mu.Lock()
	dev := a.device
	a.mu.Unlock()
	if dev == "" {
		return false
	}

	v, err := a.object(dev).GetProperty(deviceStateProp)
	if err != nil {
		a.logger.Debug("wifi state query failed", "error", err)
		return false
	}
	state, ok := v.Value().(uint32)
	return ok && state == deviceActivated
}

func (a *Associator) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer()
}

func (a *Associator) settings() map[string]map[string]dbus.Variant {
	s := map[string]map[string]dbus.Variant{
		"connection": {
			"id":   dbus.MakeVariant(a.ssid),
			"type": dbus.MakeVariant("802-11-wireless"),
		},
		"802-11-wireless": {
			"ssid": dbus.MakeVariant([]byte(a.ssid)),
			"mode": dbus.MakeVariant("infrastructure"),
		},
	}
	if a.passphrase != "" {
		s["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(a.passphrase),
		}
	}
	return s
}
