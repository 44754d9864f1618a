package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/wilot/weather-station/internal/record"
)

// MinNTPResyncInterval is the shortest allowed NTP resync interval.
const MinNTPResyncInterval = 5 * time.Minute

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	WiFiSSID           string
	WiFiPassphrase     string
	WiFiInterface      string
	WiFiPollInterval   time.Duration
	WiFiAttemptTimeout time.Duration

	NTPServer         string
	NTPResyncInterval time.Duration
	TimeZone          *time.Location

	MQTTBroker         string
	MQTTPort           int
	MQTTClientID       string
	MQTTTopic          string
	MQTTDiscover       bool
	MQTTConnectTimeout time.Duration

	BootstrapTimeout time.Duration
	SamplePeriod     time.Duration
	RecordLayout     record.Layout

	I2CBus            string
	BME280Address     uint16
	BME280Driver      string
	CCS811Address     uint16
	HumidityDriver    string
	HumidityIIODevice string
	StatusLEDPin      string

	HTTPAddr       string
	SQLitePath     string
	SQLiteDSN      string
	IngestTopic    string
	IngestClientID string
}

// BrokerAddr returns the broker as host:port.
func (c Config) BrokerAddr() string {
	return fmt.Sprintf("%s:%d", c.MQTTBroker, c.MQTTPort)
}

// LoadFromEnv reads the configuration from the environment. When CONFIG_FILE
// names a YAML file, its keys (the same names as the environment variables)
// fill in anything the environment leaves unset.
func LoadFromEnv() (Config, error) {
	src, err := newSource(strings.TrimSpace(os.Getenv("CONFIG_FILE")))
	if err != nil {
		return Config{}, err
	}

	appEnv := src.get("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(src.get("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	wifiPoll, err := src.positiveDuration("WIFI_POLL_INTERVAL", "200ms")
	if err != nil {
		return Config{}, err
	}

	wifiAttempt, err := src.positiveDuration("WIFI_ATTEMPT_TIMEOUT", "30s")
	if err != nil {
		return Config{}, err
	}

	ntpResync, err := src.positiveDuration("NTP_RESYNC_INTERVAL", "5m")
	if err != nil {
		return Config{}, err
	}
	if ntpResync < MinNTPResyncInterval {
		return Config{}, fmt.Errorf("NTP_RESYNC_INTERVAL must be at least %v, got %v", MinNTPResyncInterval, ntpResync)
	}

	tzName := src.get("TIME_ZONE", "Europe/London")
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return Config{}, fmt.Errorf("invalid TIME_ZONE %q: %w", tzName, err)
	}

	mqttPortStr := src.get("MQTT_PORT", "1883")
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("MQTT_PORT out of range: %d", mqttPort)
	}

	mqttDiscoverStr := src.get("MQTT_DISCOVER", "false")
	mqttDiscover, err := strconv.ParseBool(mqttDiscoverStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_DISCOVER %q: %w", mqttDiscoverStr, err)
	}

	mqttConnectTimeout, err := src.positiveDuration("MQTT_CONNECT_TIMEOUT", "5s")
	if err != nil {
		return Config{}, err
	}

	// Zero means bootstrap waits until the context is cancelled.
	bootstrapTimeoutStr := src.get("BOOTSTRAP_TIMEOUT", "0s")
	bootstrapTimeout, err := time.ParseDuration(bootstrapTimeoutStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid BOOTSTRAP_TIMEOUT %q: %w", bootstrapTimeoutStr, err)
	}
	if bootstrapTimeout < 0 {
		return Config{}, fmt.Errorf("BOOTSTRAP_TIMEOUT must not be negative, got %v", bootstrapTimeout)
	}

	samplePeriod, err := src.positiveDuration("SAMPLE_PERIOD", "10s")
	if err != nil {
		return Config{}, err
	}

	layout, err := record.ParseLayout(src.get("RECORD_LAYOUT", "full"))
	if err != nil {
		return Config{}, err
	}

	bme280Address, err := src.address("BME280_ADDRESS", "0x76")
	if err != nil {
		return Config{}, err
	}
	bme280Driver := strings.ToLower(src.get("BME280_DRIVER", "periph"))
	switch bme280Driver {
	case "periph", "tinygo":
	default:
		return Config{}, fmt.Errorf("invalid BME280_DRIVER %q (allowed: periph, tinygo)", bme280Driver)
	}

	ccs811Address, err := src.address("CCS811_ADDRESS", "0x5A")
	if err != nil {
		return Config{}, err
	}

	humidityDriver := strings.ToLower(src.get("HUMIDITY_DRIVER", "iio"))
	switch humidityDriver {
	case "iio", "shtc3", "none":
	default:
		return Config{}, fmt.Errorf("invalid HUMIDITY_DRIVER %q (allowed: iio, shtc3, none)", humidityDriver)
	}

	mqttTopic := src.get("MQTT_TOPIC", "weather/test")

	return Config{
		AppEnv:   appEnv,
		LogLevel: level,

		WiFiSSID:           src.get("WIFI_SSID", ""),
		WiFiPassphrase:     src.get("WIFI_PASSPHRASE", ""),
		WiFiInterface:      src.get("WIFI_INTERFACE", "wlan0"),
		WiFiPollInterval:   wifiPoll,
		WiFiAttemptTimeout: wifiAttempt,

		NTPServer:         src.get("NTP_SERVER", "uk.pool.ntp.org"),
		NTPResyncInterval: ntpResync,
		TimeZone:          tz,

		MQTTBroker:         src.get("MQTT_BROKER", "192.168.1.126"),
		MQTTPort:           mqttPort,
		MQTTClientID:       src.get("MQTT_CLIENT_ID", "WeatherStation"),
		MQTTTopic:          mqttTopic,
		MQTTDiscover:       mqttDiscover,
		MQTTConnectTimeout: mqttConnectTimeout,

		BootstrapTimeout: bootstrapTimeout,
		SamplePeriod:     samplePeriod,
		RecordLayout:     layout,

		I2CBus:            src.get("I2C_BUS", ""),
		BME280Address:     bme280Address,
		BME280Driver:      bme280Driver,
		CCS811Address:     ccs811Address,
		HumidityDriver:    humidityDriver,
		HumidityIIODevice: src.get("HUMIDITY_IIO_DEVICE", "/sys/bus/iio/devices/iio:device0"),
		StatusLEDPin:      src.get("STATUS_LED_PIN", ""),

		HTTPAddr:       src.get("HTTP_ADDR", ":8080"),
		SQLitePath:     src.get("SQLITE_PATH", "data/weather.db"),
		SQLiteDSN:      src.get("SQLITE_DSN", ""),
		IngestTopic:    src.get("INGEST_TOPIC", mqttTopic),
		IngestClientID: src.get("INGEST_CLIENT_ID", "RpiServer"),
	}, nil
}

// source looks keys up in the environment first, then in the optional file.
type source struct {
	file map[string]string
}

func newSource(path string) (source, error) {
	if path == "" {
		return source{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return source{}, fmt.Errorf("read CONFIG_FILE %q: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return source{}, fmt.Errorf("parse CONFIG_FILE %q: %w", path, err)
	}
	file := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		file[strings.ToUpper(strings.TrimSpace(k))] = fmt.Sprint(v)
	}
	return source{file: file}, nil
}

func (s source) get(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	if v := strings.TrimSpace(s.file[key]); v != "" {
		return v
	}
	return def
}

func (s source) positiveDuration(key, def string) (time.Duration, error) {
	str := s.get(key, def)
	d, err := time.ParseDuration(str)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, str, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func (s source) address(key, def string) (uint16, error) {
	str := s.get(key, def)
	v, err := strconv.ParseUint(str, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, str, err)
	}
	if v > 0x7F {
		return 0, fmt.Errorf("%s out of 7-bit I2C range: 0x%X", key, v)
	}
	return uint16(v), nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
