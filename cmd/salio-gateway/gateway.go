package main

import (
	"fmt"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/salio-edge/gateway/internal/api"
	"github.com/salio-edge/gateway/internal/broadcast"
	"github.com/salio-edge/gateway/internal/config"
	"github.com/salio-edge/gateway/internal/device"
	"github.com/salio-edge/gateway/internal/device/rangefinder"
	"github.com/salio-edge/gateway/internal/device/simulated"
	"github.com/salio-edge/gateway/internal/device/tagreader"
	"github.com/salio-edge/gateway/internal/health"
	"github.com/salio-edge/gateway/internal/serialmux"
	"github.com/salio-edge/gateway/internal/session"
	"github.com/salio-edge/gateway/internal/timeutil"
	"github.com/salio-edge/gateway/internal/ws"
)

// gateway is the assembled process: devices, session, broadcaster and the
// HTTP handler tree.
type gateway struct {
	manager     *session.Manager
	broadcaster *broadcast.Broadcaster
	handler     http.Handler
}

// deviceSet carries the adapters chosen for the configured transports plus
// the serial links that get debug routes.
type deviceSet struct {
	lidar     device.Adapter
	lidarPath string
	rfid      device.Adapter
	rfidPath  string
	links     []*device.SerialLink
}

// buildDevices picks adapters by transport. open overrides how serial ports
// are opened; nil uses real hardware.
func buildDevices(cfg *config.Config, open serialmux.OpenFunc, clock timeutil.Clock) (deviceSet, error) {
	var ds deviceSet

	switch cfg.Lidar.Transport {
	case config.TransportSerial:
		s := rangefinder.NewSerial(rangefinder.SerialConfig{
			Port:        cfg.Lidar.Port,
			Options:     cfg.Lidar.PortOptions,
			ScanCommand: cfg.Lidar.ScanCommand,
			StopCommand: cfg.Lidar.StopCommand,
		}, open, clock)
		ds.lidar, ds.lidarPath = s, cfg.Lidar.Port
		ds.links = append(ds.links, s.Link())
	case config.TransportUDP:
		ds.lidar = rangefinder.NewUDP(rangefinder.UDPConfig{
			Address:    cfg.Lidar.Address,
			ReadBuffer: cfg.Lidar.ReadBuffer,
		}, nil, clock)
		ds.lidarPath = "udp://" + cfg.Lidar.Address
	case config.TransportSimulated:
		ds.lidar = simulated.NewRangefinder(cfg.Simulation.FrameInterval, clock)
		ds.lidarPath = "simulated"
	default:
		return ds, fmt.Errorf("unknown lidar transport %q", cfg.Lidar.Transport)
	}

	switch cfg.RFID.Transport {
	case config.TransportSerial:
		r := tagreader.New(tagreader.Config{
			Device:   cfg.RFID.Device,
			Options:  cfg.RFID.PortOptions,
			Debounce: cfg.RFID.Debounce,
		}, open, clock)
		ds.rfid, ds.rfidPath = r, cfg.RFID.Device
		ds.links = append(ds.links, r.Link())
	case config.TransportSimulated:
		ds.rfid = simulated.NewTagReader(cfg.Simulation.TagInterval, clock)
		ds.rfidPath = "simulated"
	default:
		return ds, fmt.Errorf("unknown rfid transport %q", cfg.RFID.Transport)
	}

	return ds, nil
}

func newGateway(cfg *config.Config, open serialmux.OpenFunc) (*gateway, error) {
	clock := timeutil.RealClock{}

	ds, err := buildDevices(cfg, open, clock)
	if err != nil {
		return nil, err
	}

	b := broadcast.New(broadcast.Config{
		BufferSize:     cfg.Broadcast.SubscriberBuffer,
		MaxSubscribers: cfg.Broadcast.MaxSubscribers,
	})
	m := session.NewManager(session.Config{
		ConnectTimeout: cfg.Session.ConnectTimeout,
		IntakeBuffer:   cfg.Session.IntakeBuffer,
		Clock:          clock,
	},
		session.NewDeviceHandle(device.Rangefinder, ds.lidarPath, ds.lidar),
		session.NewDeviceHandle(device.TagReader, ds.rfidPath, ds.rfid),
		b)

	mux := http.NewServeMux()
	apiServer := api.NewServer(m, health.NewChecker(health.DefaultProbes(), clock), cfg.Server.APIEndpoint)
	apiServer.Register(mux)

	origins := cfg.Server.AllowedOrigins
	ws.NewServer(b, ws.Options{
		PingInterval:   cfg.WebSocket.PingInterval,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		AllowAnyOrigin: cfg.Server.EnableCORS && len(origins) == 0,
		AllowedOrigins: origins,
	}).Register(mux, apiServer.Endpoint())

	m.AttachAdminRoutes(mux)
	for _, link := range ds.links {
		serialmux.AttachAdminRoutes(mux, link.Name(), link)
	}
	debug := tsweb.Debugger(mux)
	debug.KVFunc("Broadcast", func() any {
		st := b.Stats()
		return fmt.Sprintf("%d subscribers, %d published, %d dropped", st.Subscribers, st.Published, st.Dropped)
	})

	var h http.Handler = mux
	if cfg.Server.EnableCORS {
		h = api.CORSMiddleware(origins)(h)
	}
	h = api.LoggingMiddleware(api.RecoverMiddleware(h))

	return &gateway{manager: m, broadcaster: b, handler: h}, nil
}
