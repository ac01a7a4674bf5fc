package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic hub runtime.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Hass      HassConfig      `yaml:"hass"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RestMode controls when service calls may use the REST API instead of the socket.
type RestMode string

const (
	// RestAllow sends via REST only while the socket is not connected.
	RestAllow RestMode = "allow"
	// RestPrefer always sends via REST.
	RestPrefer RestMode = "prefer"
	// RestDeny never sends via REST.
	RestDeny RestMode = "deny"
)

// Valid reports whether m is a recognised mode.
func (m RestMode) Valid() bool {
	switch m {
	case RestAllow, RestPrefer, RestDeny:
		return true
	}
	return false
}

// HassConfig contains hub connection and runtime behaviour settings.
type HassConfig struct {
	// BaseURL is the hub's HTTP root, e.g. "http://homeassistant.local:8123".
	BaseURL string `yaml:"base_url"`

	// WebSocketURL overrides the socket endpoint. Derived from BaseURL when empty.
	WebSocketURL string `yaml:"websocket_url"`

	// Token is the long-lived access token sent in the socket handshake
	// and as the REST bearer token.
	Token string `yaml:"token"`

	// AutoScanCallProxy loads the service catalog during bootstrap.
	AutoScanCallProxy bool `yaml:"auto_scan_call_proxy"`

	// AutoConnectSocket connects the socket and loads entities on startup.
	AutoConnectSocket bool `yaml:"auto_connect_socket"`

	// CallProxyAllowRest is one of allow, prefer, deny.
	CallProxyAllowRest RestMode `yaml:"call_proxy_allow_rest"`

	// EventDebounceMS is the registry-update debounce window in milliseconds.
	EventDebounceMS int `yaml:"event_debounce_ms"`

	// RetryInterval is the delay between bootstrap fetch attempts in milliseconds.
	// Zero is valid.
	RetryInterval int `yaml:"retry_interval"`

	// MockSocket disables the real socket connection. Test use only.
	MockSocket bool `yaml:"mock_socket"`

	// RequestTimeout bounds each socket request/REST call (seconds).
	RequestTimeout int `yaml:"request_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains local gateway HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains local WebSocket relay settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// EntityStates exports every entity state change as an entity_state
	// point. Off by default; service_call points are always written.
	EntityStates bool `yaml:"entity_states"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_HASS_TOKEN, GRAYLOGIC_HASS_EVENT_DEBOUNCE_MS
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Hass: HassConfig{
			BaseURL:            "http://localhost:8123",
			AutoScanCallProxy:  true,
			AutoConnectSocket:  true,
			CallProxyAllowRest: RestAllow,
			EventDebounceMS:    50,
			RetryInterval:      5000,
			RequestTimeout:     30,
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-hass.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-hass",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Hass
	if v := os.Getenv("GRAYLOGIC_HASS_BASE_URL"); v != "" {
		cfg.Hass.BaseURL = v
	}
	if v := os.Getenv("GRAYLOGIC_HASS_WEBSOCKET_URL"); v != "" {
		cfg.Hass.WebSocketURL = v
	}
	if v := os.Getenv("GRAYLOGIC_HASS_TOKEN"); v != "" {
		cfg.Hass.Token = v
	}
	if v := os.Getenv("GRAYLOGIC_HASS_CALL_PROXY_ALLOW_REST"); v != "" {
		cfg.Hass.CallProxyAllowRest = RestMode(strings.ToLower(v))
	}

	bools := map[string]*bool{
		"GRAYLOGIC_HASS_AUTO_SCAN_CALL_PROXY": &cfg.Hass.AutoScanCallProxy,
		"GRAYLOGIC_HASS_AUTO_CONNECT_SOCKET":  &cfg.Hass.AutoConnectSocket,
		"GRAYLOGIC_HASS_MOCK_SOCKET":          &cfg.Hass.MockSocket,
	}
	for key, dst := range bools {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
	}

	ints := map[string]*int{
		"GRAYLOGIC_HASS_EVENT_DEBOUNCE_MS": &cfg.Hass.EventDebounceMS,
		"GRAYLOGIC_HASS_RETRY_INTERVAL":    &cfg.Hass.RetryInterval,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if !c.Hass.MockSocket && c.Hass.BaseURL == "" {
		errs = append(errs, "hass.base_url is required unless hass.mock_socket is set")
	}
	if !c.Hass.CallProxyAllowRest.Valid() {
		errs = append(errs, fmt.Sprintf("hass.call_proxy_allow_rest must be allow, prefer or deny (got %q)", c.Hass.CallProxyAllowRest))
	}
	if c.Hass.EventDebounceMS < 0 {
		errs = append(errs, "hass.event_debounce_ms must not be negative")
	}
	if c.Hass.RetryInterval < 0 {
		errs = append(errs, "hass.retry_interval must not be negative")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DebounceInterval returns the registry-update debounce window.
func (h HassConfig) DebounceInterval() time.Duration {
	return time.Duration(h.EventDebounceMS) * time.Millisecond
}

// RetryDelay returns the delay between bootstrap fetch attempts.
func (h HassConfig) RetryDelay() time.Duration {
	return time.Duration(h.RetryInterval) * time.Millisecond
}

// RequestTimeoutDuration returns the per-request timeout for hub calls.
func (h HassConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(h.RequestTimeout) * time.Second
}

// SocketURL returns the socket endpoint, deriving it from BaseURL when unset.
//
// http → ws and https → wss; the path is /api/websocket.
func (h HassConfig) SocketURL() string {
	if h.WebSocketURL != "" {
		return h.WebSocketURL
	}
	base := strings.TrimRight(h.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/websocket"
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
