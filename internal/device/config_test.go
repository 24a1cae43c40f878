package device

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{
		envHost, envPort, envSerial, envAccessCode, envInsecureTLS, envConnectTimeout,
	} {
		t.Setenv(env, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg := LoadConfig()

	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if !cfg.InsecureSkipVerify {
		t.Error("InsecureSkipVerify should default to true")
	}
	if cfg.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v, want %v", cfg.ConnectTimeout, DefaultConnectTimeout)
	}
	if cfg.PublishTimeout != DefaultPublishTimeout {
		t.Errorf("PublishTimeout = %v, want %v", cfg.PublishTimeout, DefaultPublishTimeout)
	}
	if cfg.Host != "" {
		t.Errorf("Host = %q, want empty", cfg.Host)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should fail without host, serial and access code")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(envHost, "192.168.1.50")
	t.Setenv(envPort, "1883")
	t.Setenv(envSerial, "01S00C123456789")
	t.Setenv(envAccessCode, "12345678")
	t.Setenv(envInsecureTLS, "false")
	t.Setenv(envConnectTimeout, "3s")

	cfg := LoadConfig()

	if cfg.Host != "192.168.1.50" {
		t.Errorf("Host = %q, want 192.168.1.50", cfg.Host)
	}
	if cfg.Port != 1883 {
		t.Errorf("Port = %d, want 1883", cfg.Port)
	}
	if cfg.Serial != "01S00C123456789" {
		t.Errorf("Serial = %q, want 01S00C123456789", cfg.Serial)
	}
	if cfg.AccessCode != "12345678" {
		t.Errorf("AccessCode = %q, want 12345678", cfg.AccessCode)
	}
	if cfg.InsecureSkipVerify {
		t.Error("InsecureSkipVerify should be false")
	}
	if cfg.ConnectTimeout != 3*time.Second {
		t.Errorf("ConnectTimeout = %v, want 3s", cfg.ConnectTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadConfigIgnoresInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv(envPort, "not-a-port")
	t.Setenv(envConnectTimeout, "-1s")

	cfg := LoadConfig()

	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want default %d", cfg.Port, DefaultPort)
	}
	if cfg.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v, want default", cfg.ConnectTimeout)
	}
}

func TestTopicsAndBrokerURL(t *testing.T) {
	cfg := Config{Host: "printer.lan", Port: 8883, Serial: "ABC123"}

	if got := cfg.BrokerURL(); got != "ssl://printer.lan:8883" {
		t.Errorf("BrokerURL = %q", got)
	}
	if got := cfg.ReportTopic(); got != "device/ABC123/report" {
		t.Errorf("ReportTopic = %q", got)
	}
	if got := cfg.RequestTopic(); got != "device/ABC123/request" {
		t.Errorf("RequestTopic = %q", got)
	}
}
