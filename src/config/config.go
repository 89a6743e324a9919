package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"smartguard-relay/src/helpers"
	"smartguard-relay/src/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	MediumBandRelative = "relative"
	MediumBandFixed    = "fixed"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// Default returns the configuration used when no file and no environment is given.
func Default() *Config {
	return &Config{MConfig: &models.MConfig{
		Name:     "smartguard-relay",
		Host:     "0.0.0.0",
		Port:     8080,
		LogLevel: "INFO",
		GrpcHost: "0.0.0.0",
		GrpcPort: 50051,
		MQTT: models.MMQTTConfig{
			Broker:         "tcp://broker.hivemq.com:1883",
			ClientID:       "smartguard-relay",
			Topic:          "smartguard/sensors",
			QoS:            0,
			KeepAlive:      60 * time.Second,
			ConnectTimeout: 10 * time.Second,
			ReconnectMin:   time.Second,
			ReconnectMax:   30 * time.Second,
		},
		FanOut: models.MFanOutConfig{
			QueueCapacity: 32,
			WriteTimeout:  2 * time.Second,
			PingPeriod:    54 * time.Second,
			PongWait:      60 * time.Second,
		},
		Risk: models.MRiskConfig{
			Thresholds:     models.DefaultThresholds(),
			MediumBandMode: MediumBandRelative,
		},
	}}
}

// -----------------------------------------------------------------------------

// NewConfig builds the configuration in three layers: defaults, the YAML file at
// configPath (skipped when empty), then environment variables (a .env file in the
// working directory is loaded first if present).
func NewConfig(configPath string) (*Config, error) {
	config := Default()

	// 1. YAML file
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, config.MConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
		}
	}

	// 2. Environment
	_ = godotenv.Load()
	config.applyEnv()

	// 3. Validate the merged configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

func (c *Config) applyEnv() {
	c.Host = getEnv("RELAY_HOST", c.Host)
	c.Port = getEnvInt("RELAY_PORT", c.Port)
	c.LogLevel = getEnv("RELAY_LOG_LEVEL", c.LogLevel)
	c.GrpcPort = getEnvInt("RELAY_GRPC_PORT", c.GrpcPort)

	c.MQTT.Broker = getEnv("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.Topic = getEnv("MQTT_TOPIC", c.MQTT.Topic)
	c.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.Username = getEnv("MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getEnv("MQTT_PASSWORD", c.MQTT.Password)

	t := &c.Risk.Thresholds
	t.WindSpeed = getEnvFloat("WIND_SPEED_THRESHOLD", t.WindSpeed)
	t.Stability = getEnvFloat("STABILITY_THRESHOLD", t.Stability)
	t.Load = getEnvFloat("LOAD_THRESHOLD", t.Load)
	t.SwingSpeed = getEnvFloat("SWING_SPEED_THRESHOLD", t.SwingSpeed)
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return helpers.NewConfigurationError("application name cannot be empty")
	}

	// Port 0 binds an ephemeral port
	if c.Port < 0 || c.Port > 65535 {
		return helpers.NewConfigurationError("invalid server port number: %d", c.Port)
	}
	if c.GrpcPort > 65535 {
		return helpers.NewConfigurationError("invalid grpc port number: %d", c.GrpcPort)
	}

	// MQTT
	if c.MQTT.Broker == "" {
		return helpers.NewConfigurationError("mqtt broker cannot be empty")
	}
	if c.MQTT.Topic == "" {
		return helpers.NewConfigurationError("mqtt topic cannot be empty")
	}
	if c.MQTT.QoS > 2 {
		return helpers.NewConfigurationError("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.MQTT.ReconnectMin <= 0 {
		return helpers.NewConfigurationError("mqtt reconnect_min must be greater than 0")
	}
	if c.MQTT.ReconnectMax < c.MQTT.ReconnectMin {
		return helpers.NewConfigurationError("mqtt reconnect_max (%s) must be >= reconnect_min (%s)", c.MQTT.ReconnectMax, c.MQTT.ReconnectMin)
	}

	// Fan-out
	if c.FanOut.QueueCapacity <= 0 {
		return helpers.NewConfigurationError("fanout queue_capacity must be greater than 0")
	}
	if c.FanOut.WriteTimeout <= 0 {
		return helpers.NewConfigurationError("fanout write_timeout must be greater than 0")
	}
	if c.FanOut.PingPeriod <= 0 || c.FanOut.PongWait <= c.FanOut.PingPeriod {
		return helpers.NewConfigurationError("fanout pong_wait (%s) must exceed ping_period (%s)", c.FanOut.PongWait, c.FanOut.PingPeriod)
	}

	// Risk
	switch c.Risk.MediumBandMode {
	case MediumBandRelative, MediumBandFixed:
	default:
		return helpers.NewConfigurationError("unknown medium_band_mode %q", c.Risk.MediumBandMode)
	}
	return ValidateThresholds(c.Risk.Thresholds)
}

// -----------------------------------------------------------------------------

// ValidateThresholds rejects values that cannot be compared meaningfully.
func ValidateThresholds(t models.MThresholds) error {
	fields := []struct {
		name  string
		value float64
	}{
		{"windSpeedThreshold", t.WindSpeed},
		{"stabilityThreshold", t.Stability},
		{"loadThreshold", t.Load},
		{"swingSpeedThreshold", t.SwingSpeed},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return helpers.NewConfigurationError("%s must be a finite number", f.name)
		}
		if f.value < 0 {
			return helpers.NewConfigurationError("%s cannot be negative, got %v", f.name, f.value)
		}
	}
	if t.Stability > 100 {
		return helpers.NewConfigurationError("stabilityThreshold must be <= 100, got %v", t.Stability)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Environment helpers
// -----------------------------------------------------------------------------

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to parse %s as int, using default: %v\n", key, err)
		return defaultValue
	}
	return intValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to parse %s as float, using default: %v\n", key, err)
		return defaultValue
	}
	return floatValue
}
