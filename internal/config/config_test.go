package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salio-edge/gateway/internal/serialmux"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	cfg, err := Load("testdata/gateway.yaml")
	require.NoError(t, err)

	want := Default()
	want.Server = ServerConfig{
		Listen:         "127.0.0.1:8080",
		APIEndpoint:    "/v1",
		EnableCORS:     false,
		AllowedOrigins: []string{"http://kiosk.local"},
	}
	want.Log.File = ""
	want.Lidar.Transport = TransportUDP
	want.Lidar.ReadBuffer = 4194304
	want.RFID.Device = "/dev/ttyACM0"
	want.RFID.PortOptions = serialmux.PortOptions{BaudRate: 115200, Parity: "even"}
	want.RFID.Debounce = 750 * time.Millisecond
	want.Session.ConnectTimeout = 2 * time.Second
	want.Broadcast.MaxSubscribers = 16
	want.WebSocket.PingInterval = 15 * time.Second

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}

	tests := map[string]string{
		"wrong extension": write("gateway.json", "{}"),
		"bad yaml":        write("bad.yaml", "server: [unterminated"),
		"invalid value":   write("invalid.yaml", "lidar:\n  transport: can-bus\n"),
	}
	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(path)
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Server.Listen = " " }},
		{"relative endpoint", func(c *Config) { c.Server.APIEndpoint = "api" }},
		{"unknown lidar transport", func(c *Config) { c.Lidar.Transport = "can" }},
		{"serial lidar without port", func(c *Config) { c.Lidar.Port = "" }},
		{"bad lidar parity", func(c *Config) { c.Lidar.Parity = "mark" }},
		{"udp lidar without address", func(c *Config) { c.Lidar.Transport = TransportUDP; c.Lidar.Address = "" }},
		{"negative read buffer", func(c *Config) { c.Lidar.Transport = TransportUDP; c.Lidar.ReadBuffer = -1 }},
		{"udp rfid", func(c *Config) { c.RFID.Transport = TransportUDP }},
		{"serial rfid without device", func(c *Config) { c.RFID.Device = "" }},
		{"bad rfid data bits", func(c *Config) { c.RFID.DataBits = 9 }},
		{"negative debounce", func(c *Config) { c.RFID.Debounce = -time.Second }},
		{"zero connect timeout", func(c *Config) { c.Session.ConnectTimeout = 0 }},
		{"zero intake", func(c *Config) { c.Session.IntakeBuffer = 0 }},
		{"zero subscriber buffer", func(c *Config) { c.Broadcast.SubscriberBuffer = 0 }},
		{"negative max subscribers", func(c *Config) { c.Broadcast.MaxSubscribers = -1 }},
		{"zero ping", func(c *Config) { c.WebSocket.PingInterval = 0 }},
		{"zero frame interval", func(c *Config) { c.Simulation.FrameInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestUseSimulatedDevices(t *testing.T) {
	cfg := Default()
	cfg.Lidar.Port = ""
	cfg.RFID.Device = ""
	cfg.UseSimulatedDevices()

	assert.Equal(t, TransportSimulated, cfg.Lidar.Transport)
	assert.Equal(t, TransportSimulated, cfg.RFID.Transport)
	assert.NoError(t, cfg.Validate(), "simulated devices need no paths")
}

func TestLoad_ExampleFileMatchesDefaults(t *testing.T) {
	cfg, err := Load("../../config/gateway.example.yaml")
	require.NoError(t, err)

	want := Default()
	assert.Equal(t, want.Server.Listen, cfg.Server.Listen)
	assert.Equal(t, want.Lidar.Port, cfg.Lidar.Port)
	assert.Equal(t, want.RFID.BaudRate, cfg.RFID.BaudRate)
	assert.Equal(t, want.Session, cfg.Session)
	assert.Equal(t, want.Broadcast, cfg.Broadcast)
	assert.Equal(t, want.WebSocket, cfg.WebSocket)
	assert.Equal(t, want.Simulation, cfg.Simulation)
}
