// Package config loads the gateway's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/salio-edge/gateway/internal/serialmux"
)

// DefaultConfigPath is where the gateway looks for its config when -config
// is not given.
const DefaultConfigPath = "config/gateway.yaml"

// Device transports.
const (
	TransportSerial    = "serial"
	TransportUDP       = "udp"
	TransportSimulated = "simulated"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Lidar      LidarConfig      `yaml:"lidar"`
	RFID       RFIDConfig       `yaml:"rfid"`
	Session    SessionConfig    `yaml:"session"`
	Broadcast  BroadcastConfig  `yaml:"broadcast"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Simulation SimulationConfig `yaml:"simulation"`
}

type ServerConfig struct {
	Listen         string   `yaml:"listen"`
	APIEndpoint    string   `yaml:"api_endpoint"`
	EnableCORS     bool     `yaml:"enable_cors"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	// File additionally receives every log line. Empty logs to stderr only.
	File string `yaml:"file"`
}

type LidarConfig struct {
	Transport string `yaml:"transport"`
	// Port is the serial device path.
	Port string `yaml:"port"`
	// Address is the UDP listen address.
	Address               string `yaml:"address"`
	ReadBuffer            int    `yaml:"read_buffer"`
	ScanCommand           string `yaml:"scan_command"`
	StopCommand           string `yaml:"stop_command"`
	serialmux.PortOptions `yaml:",inline"`
}

type RFIDConfig struct {
	Transport             string        `yaml:"transport"`
	Device                string        `yaml:"device"`
	Debounce              time.Duration `yaml:"debounce"`
	serialmux.PortOptions `yaml:",inline"`
}

type SessionConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	IntakeBuffer   int           `yaml:"intake_buffer"`
}

type BroadcastConfig struct {
	SubscriberBuffer int `yaml:"subscriber_buffer"`
	MaxSubscribers   int `yaml:"max_subscribers"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `yaml:"ping_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// SimulationConfig paces the simulated devices used in dev mode.
type SimulationConfig struct {
	FrameInterval time.Duration `yaml:"frame_interval"`
	TagInterval   time.Duration `yaml:"tag_interval"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:      ":5000",
			APIEndpoint: "/api",
			EnableCORS:  true,
		},
		Log: LogConfig{File: "logs/salio.log"},
		Lidar: LidarConfig{
			Transport:   TransportSerial,
			Port:        "/dev/lidar",
			Address:     ":2368",
			ScanCommand: "SCAN",
			StopCommand: "STOP",
		},
		RFID: RFIDConfig{
			Transport: TransportSerial,
			Device:    "/dev/rfid",
			PortOptions: serialmux.PortOptions{
				BaudRate: 9600,
			},
		},
		Session: SessionConfig{
			ConnectTimeout: 5 * time.Second,
			IntakeBuffer:   256,
		},
		Broadcast: BroadcastConfig{
			SubscriberBuffer: 64,
		},
		WebSocket: WebSocketConfig{
			PingInterval: 30 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Simulation: SimulationConfig{
			FrameInterval: 100 * time.Millisecond,
			TagInterval:   3 * time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result. Keys missing from the file keep their default values. A missing
// file returns the defaults together with an error wrapping
// os.ErrNotExist, so callers can warn and carry on.
func Load(path string) (*Config, error) {
	cfg := Default()

	cleanPath := filepath.Clean(path)
	switch ext := filepath.Ext(cleanPath); ext {
	case ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("config file %s: %w", cleanPath, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// UseSimulatedDevices switches both devices to the simulated transport.
func (c *Config) UseSimulatedDevices() {
	c.Lidar.Transport = TransportSimulated
	c.RFID.Transport = TransportSimulated
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Listen) == "" {
		return errors.New("server.listen must not be empty")
	}
	if !strings.HasPrefix(c.Server.APIEndpoint, "/") {
		return fmt.Errorf("server.api_endpoint must start with '/', got %q", c.Server.APIEndpoint)
	}

	switch c.Lidar.Transport {
	case TransportSerial:
		if c.Lidar.Port == "" {
			return errors.New("lidar.port is required for the serial transport")
		}
		if _, err := c.Lidar.PortOptions.Normalize(); err != nil {
			return fmt.Errorf("lidar: %w", err)
		}
	case TransportUDP:
		if c.Lidar.Address == "" {
			return errors.New("lidar.address is required for the udp transport")
		}
		if c.Lidar.ReadBuffer < 0 {
			return fmt.Errorf("lidar.read_buffer must be non-negative, got %d", c.Lidar.ReadBuffer)
		}
	case TransportSimulated:
	default:
		return fmt.Errorf("lidar.transport must be serial, udp or simulated, got %q", c.Lidar.Transport)
	}

	switch c.RFID.Transport {
	case TransportSerial:
		if c.RFID.Device == "" {
			return errors.New("rfid.device is required for the serial transport")
		}
		if _, err := c.RFID.PortOptions.Normalize(); err != nil {
			return fmt.Errorf("rfid: %w", err)
		}
	case TransportSimulated:
	default:
		return fmt.Errorf("rfid.transport must be serial or simulated, got %q", c.RFID.Transport)
	}
	if c.RFID.Debounce < 0 {
		return fmt.Errorf("rfid.debounce must be non-negative, got %s", c.RFID.Debounce)
	}

	if c.Session.ConnectTimeout <= 0 {
		return fmt.Errorf("session.connect_timeout must be positive, got %s", c.Session.ConnectTimeout)
	}
	if c.Session.IntakeBuffer <= 0 {
		return fmt.Errorf("session.intake_buffer must be positive, got %d", c.Session.IntakeBuffer)
	}
	if c.Broadcast.SubscriberBuffer <= 0 {
		return fmt.Errorf("broadcast.subscriber_buffer must be positive, got %d", c.Broadcast.SubscriberBuffer)
	}
	if c.Broadcast.MaxSubscribers < 0 {
		return fmt.Errorf("broadcast.max_subscribers must be non-negative, got %d", c.Broadcast.MaxSubscribers)
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return errors.New("websocket.ping_interval and websocket.write_timeout must be positive")
	}
	if c.Simulation.FrameInterval <= 0 || c.Simulation.TagInterval <= 0 {
		return errors.New("simulation intervals must be positive")
	}
	return nil
}
