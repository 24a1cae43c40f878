package device

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names for the printer connection.
const (
	envHost           = "BAMBU_PRINTER_HOST"
	envPort           = "BAMBU_PRINTER_PORT"
	envSerial         = "BAMBU_PRINTER_SERIAL"
	envAccessCode     = "BAMBU_PRINTER_ACCESS_CODE"
	envInsecureTLS    = "BAMBU_PRINTER_INSECURE_TLS"
	envConnectTimeout = "BAMBU_PRINTER_CONNECT_TIMEOUT"
)

// Connection defaults for the printer's LAN MQTT broker.
const (
	DefaultPort           = 8883
	DefaultUsername       = "bblp"
	DefaultConnectTimeout = 10 * time.Second
	DefaultPublishTimeout = 5 * time.Second
)

// Config holds the printer connection settings.
type Config struct {
	// Host is the printer's LAN address.
	Host string

	// Port is the MQTT over TLS port.
	Port int

	// Serial is the printer serial number, used in topic names.
	Serial string

	// AccessCode is the LAN access code shown on the printer screen.
	AccessCode string

	// InsecureSkipVerify disables certificate verification. Printers ship a
	// self-signed certificate, so it defaults to true.
	InsecureSkipVerify bool

	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// LoadConfig reads the printer connection from environment variables,
// applying defaults for values not set.
func LoadConfig() Config {
	cfg := Config{
		Port:               DefaultPort,
		InsecureSkipVerify: true,
		ConnectTimeout:     DefaultConnectTimeout,
		PublishTimeout:     DefaultPublishTimeout,
	}

	if v := os.Getenv(envHost); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv(envPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Port = port
		}
	}
	if v := os.Getenv(envSerial); v != "" {
		cfg.Serial = v
	}
	if v := os.Getenv(envAccessCode); v != "" {
		cfg.AccessCode = v
	}
	if v := os.Getenv(envInsecureTLS); v != "" {
		cfg.InsecureSkipVerify = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv(envConnectTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ConnectTimeout = d
		}
	}

	return cfg
}

// Validate reports missing connection settings.
func (c Config) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, fmt.Errorf("%s is required", envHost))
	}
	if c.Serial == "" {
		errs = append(errs, fmt.Errorf("%s is required", envSerial))
	}
	if c.AccessCode == "" {
		errs = append(errs, fmt.Errorf("%s is required", envAccessCode))
	}
	return errors.Join(errs...)
}

// BrokerURL is the paho broker address for the printer.
func (c Config) BrokerURL() string {
	return "ssl://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ReportTopic is where the printer publishes status reports.
func (c Config) ReportTopic() string {
	return fmt.Sprintf("device/%s/report", c.Serial)
}

// RequestTopic is where commands are published.
func (c Config) RequestTopic() string {
	return fmt.Sprintf("device/%s/request", c.Serial)
}
