package models

import "time"

// MConfig Structure
type MConfig struct {
	Name     string        `yaml:"name"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	LogLevel string        `yaml:"log_level"`
	GrpcHost string        `yaml:"grpc_host"`
	GrpcPort int           `yaml:"grpc_port"` // negative disables the control service
	MQTT     MMQTTConfig   `yaml:"mqtt"`
	FanOut   MFanOutConfig `yaml:"fanout"`
	Risk     MRiskConfig   `yaml:"risk"`
}

type MMQTTConfig struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	Topic          string        `yaml:"topic"`
	QoS            byte          `yaml:"qos"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReconnectMin   time.Duration `yaml:"reconnect_min"`
	ReconnectMax   time.Duration `yaml:"reconnect_max"`
}

type MFanOutConfig struct {
	QueueCapacity int           `yaml:"queue_capacity"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	PingPeriod    time.Duration `yaml:"ping_period"`
	PongWait      time.Duration `yaml:"pong_wait"`
}

type MRiskConfig struct {
	Thresholds     MThresholds `yaml:"thresholds"`
	MediumBandMode string      `yaml:"medium_band_mode"` // "relative" or "fixed"
}
