package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envPollInterval    = "HS_POLL_INTERVAL"
	envDebounceWindow  = "HS_DEBOUNCE_WINDOW"
	envGraceTicks      = "HS_GRACE_TICKS"
	envAxisMap         = "HS_AXIS_MAP"
	envModbusEndpoint  = "HS_MODBUS_ENDPOINT"
	envModbusUnitID    = "HS_MODBUS_UNIT_ID"
	envModbusTimeout   = "HS_MODBUS_TIMEOUT"
	envStatePath       = "HS_STATE_PATH"
	envStateBackend    = "HS_STATE_BACKEND"
	envSlackWebhookURL = "HS_SLACK_WEBHOOK_URL"
	envWebhookURL      = "HS_WEBHOOK_URL"
	envWebhookTemplate = "HS_WEBHOOK_TEMPLATE"
	envNATSURL         = "HS_NATS_URL"
	envNATSSubject     = "HS_NATS_SUBJECT"
	envMQTTBroker      = "HS_MQTT_BROKER"
	envMQTTTopic       = "HS_MQTT_TOPIC"
	envDryRun          = "HS_DRY_RUN"
	envMachineName     = "HS_MACHINE_NAME"
	envHealthPort      = "HS_HEALTH_PORT"
	envMetricsPort     = "HS_METRICS_PORT"
	envAPIPort         = "HS_API_PORT"
	envLogLevel        = "HS_LOG_LEVEL"
)

const (
	defaultPollInterval   = 10 * time.Millisecond
	defaultDebounceWindow = 3
	defaultGraceTicks     = 50
	defaultModbusUnitID   = 1
	defaultModbusTimeout  = 500 * time.Millisecond
	defaultNATSSubject    = "hlfb.transitions"
	defaultMQTTTopic      = "hlfb/transitions"
	defaultMachineName    = "default"
	defaultHealthPort     = 8080
	defaultMetricsPort    = 9090
	defaultAPIPort        = 8081
	defaultLogLevel       = "info"
)

// State backends accepted by HS_STATE_BACKEND.
const (
	StateBackendFile   = "file"
	StateBackendBadger = "badger"
)

// Config describes runtime configuration loaded from the environment.
type Config struct {
	PollInterval    time.Duration
	DebounceWindow  int
	GraceTicks      int
	AxisMapPath     string
	ModbusEndpoint  string
	ModbusUnitID    uint8
	ModbusTimeout   time.Duration
	StatePath       string
	StateBackend    string
	SlackWebhookURL string
	WebhookURL      string
	WebhookTemplate string
	NATSURL         string
	NATSSubject     string
	MQTTBroker      string
	MQTTTopic       string
	DryRun          bool
	MachineName     string
	HealthPort      int
	MetricsPort     int
	APIPort         int
	LogLevel        string
}

// Load reads configuration from environment variables and a local .env file if present.
// Existing environment variables take precedence over values in .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		PollInterval:   defaultPollInterval,
		DebounceWindow: defaultDebounceWindow,
		GraceTicks:     defaultGraceTicks,
		ModbusUnitID:   defaultModbusUnitID,
		ModbusTimeout:  defaultModbusTimeout,
		NATSSubject:    defaultNATSSubject,
		MQTTTopic:      defaultMQTTTopic,
		StateBackend:   StateBackendFile,
		MachineName:    defaultMachineName,
		HealthPort:     defaultHealthPort,
		MetricsPort:    defaultMetricsPort,
		APIPort:        defaultAPIPort,
		LogLevel:       defaultLogLevel,
	}

	var err error
	if cfg.PollInterval, err = durationVar(envPollInterval, cfg.PollInterval); err != nil {
		return Config{}, err
	}
	if cfg.ModbusTimeout, err = durationVar(envModbusTimeout, cfg.ModbusTimeout); err != nil {
		return Config{}, err
	}
	if cfg.DebounceWindow, err = positiveIntVar(envDebounceWindow, cfg.DebounceWindow); err != nil {
		return Config{}, err
	}
	if cfg.GraceTicks, err = positiveIntVar(envGraceTicks, cfg.GraceTicks); err != nil {
		return Config{}, err
	}
	if cfg.HealthPort, err = portVar(envHealthPort, cfg.HealthPort); err != nil {
		return Config{}, err
	}
	if cfg.MetricsPort, err = portVar(envMetricsPort, cfg.MetricsPort); err != nil {
		return Config{}, err
	}
	if cfg.APIPort, err = portVar(envAPIPort, cfg.APIPort); err != nil {
		return Config{}, err
	}

	if value, ok := lookupTrimmed(envModbusUnitID); ok {
		unitID, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envModbusUnitID, err)
		}
		if unitID < 0 || unitID > 247 {
			return Config{}, fmt.Errorf("%s must be between 0 and 247", envModbusUnitID)
		}
		cfg.ModbusUnitID = uint8(unitID)
	}

	if value, ok := lookupTrimmed(envDryRun); ok && value != "" {
		dryRun, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envDryRun, err)
		}
		cfg.DryRun = dryRun
	}

	stringVar(envAxisMap, &cfg.AxisMapPath)
	stringVar(envModbusEndpoint, &cfg.ModbusEndpoint)
	stringVar(envStatePath, &cfg.StatePath)
	stringVar(envStateBackend, &cfg.StateBackend)
	stringVar(envSlackWebhookURL, &cfg.SlackWebhookURL)
	stringVar(envWebhookURL, &cfg.WebhookURL)
	stringVar(envWebhookTemplate, &cfg.WebhookTemplate)
	stringVar(envNATSURL, &cfg.NATSURL)
	stringVar(envNATSSubject, &cfg.NATSSubject)
	stringVar(envMQTTBroker, &cfg.MQTTBroker)
	stringVar(envMQTTTopic, &cfg.MQTTTopic)
	stringVar(envMachineName, &cfg.MachineName)
	stringVar(envLogLevel, &cfg.LogLevel)

	if cfg.ModbusEndpoint != "" {
		if _, _, err := net.SplitHostPort(cfg.ModbusEndpoint); err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envModbusEndpoint, err)
		}
	}

	cfg.StateBackend = strings.ToLower(cfg.StateBackend)
	if cfg.StateBackend != StateBackendFile && cfg.StateBackend != StateBackendBadger {
		return Config{}, fmt.Errorf("%s must be %q or %q", envStateBackend, StateBackendFile, StateBackendBadger)
	}

	if cfg.SlackWebhookURL != "" {
		if err := validateHTTPURL(cfg.SlackWebhookURL, envSlackWebhookURL); err != nil {
			return Config{}, err
		}
	}

	if cfg.WebhookURL != "" {
		if err := validateHTTPURL(cfg.WebhookURL, envWebhookURL); err != nil {
			return Config{}, err
		}
	}

	if cfg.NATSURL != "" {
		if err := validateURL(cfg.NATSURL, envNATSURL); err != nil {
			return Config{}, err
		}
		if cfg.NATSSubject == "" {
			return Config{}, fmt.Errorf("%s is required when %s is set", envNATSSubject, envNATSURL)
		}
	}

	if cfg.MQTTBroker != "" {
		if err := validateURL(cfg.MQTTBroker, envMQTTBroker); err != nil {
			return Config{}, err
		}
		if cfg.MQTTTopic == "" {
			return Config{}, fmt.Errorf("%s is required when %s is set", envMQTTTopic, envMQTTBroker)
		}
	}

	if cfg.MachineName == "" {
		return Config{}, errors.New("HS_MACHINE_NAME cannot be empty")
	}

	return cfg, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func stringVar(key string, target *string) {
	if value, ok := lookupTrimmed(key); ok {
		*target = value
	}
}

func durationVar(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := lookupTrimmed(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero", key)
	}
	return parsed, nil
}

func positiveIntVar(key string, fallback int) (int, error) {
	value, ok := lookupTrimmed(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed < 1 {
		return 0, fmt.Errorf("%s must be at least 1", key)
	}
	return parsed, nil
}

func portVar(key string, fallback int) (int, error) {
	value, ok := lookupTrimmed(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed < 0 || parsed > 65535 {
		return 0, fmt.Errorf("%s must be between 0 and 65535", key)
	}
	return parsed, nil
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include scheme and host", name)
	}
	return nil
}

func validateHTTPURL(value, name string) error {
	if err := validateURL(value, name); err != nil {
		return err
	}
	parsed, _ := url.Parse(value)
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid %s: scheme must be http or https", name)
	}
	return nil
}
