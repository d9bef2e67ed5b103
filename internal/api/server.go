// Package api is the synchronous control surface: status, connect,
// disconnect and start-scan over JSON, plus version and health.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/salio-edge/gateway/internal/health"
	"github.com/salio-edge/gateway/internal/httputil"
	"github.com/salio-edge/gateway/internal/session"
	"github.com/salio-edge/gateway/internal/version"
)

// DefaultEndpoint is the route prefix used when none is configured.
const DefaultEndpoint = "/api"

// Controller is the session surface the handlers drive.
type Controller interface {
	Status() session.State
	Connect(ctx context.Context) (session.ConnectResult, error)
	Disconnect() error
	StartScan() error
}

// HealthReporter produces the body of the health endpoint.
type HealthReporter interface {
	Report(ctx context.Context) health.Report
}

type Server struct {
	ctl      Controller
	health   HealthReporter
	endpoint string
}

// NewServer builds the control surface. endpoint is the route prefix, e.g.
// "/api"; health may be nil to disable the health route.
func NewServer(ctl Controller, hr HealthReporter, endpoint string) *Server {
	endpoint = "/" + strings.Trim(endpoint, "/")
	if endpoint == "/" {
		endpoint = DefaultEndpoint
	}
	return &Server{ctl: ctl, health: hr, endpoint: endpoint}
}

// Endpoint returns the normalised route prefix.
func (s *Server) Endpoint() string { return s.endpoint }

// ServeMux returns a mux with the control routes registered.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// Register adds the control routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc(s.endpoint+"/status", s.showStatus)
	mux.HandleFunc(s.endpoint+"/connect", s.connect)
	mux.HandleFunc(s.endpoint+"/disconnect", s.disconnect)
	mux.HandleFunc(s.endpoint+"/escaneo", s.startScan)
	mux.HandleFunc(s.endpoint+"/scan", s.startScan)
	mux.HandleFunc(s.endpoint+"/version", s.showVersion)
	if s.health != nil {
		mux.HandleFunc(s.endpoint+"/health", s.showHealth)
	}
}

type successResponse struct {
	Success bool `json:"success"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.ctl.Status())
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	// a client hanging up must not abandon a half-finished device connect
	res, err := s.ctl.Connect(context.WithoutCancel(r.Context()))
	if err != nil {
		internalFault(w, "connect", err)
		return
	}
	httputil.WriteJSONOK(w, res)
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	if err := s.ctl.Disconnect(); err != nil {
		internalFault(w, "disconnect", err)
		return
	}
	httputil.WriteJSONOK(w, successResponse{Success: true})
}

func (s *Server) startScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	err := s.ctl.StartScan()
	switch {
	case errors.Is(err, session.ErrNotConnected):
		httputil.BadRequest(w, "not connected")
	case err != nil:
		internalFault(w, "start scan", err)
	default:
		httputil.WriteJSONOK(w, successResponse{Success: true})
	}
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, version.Current())
}

func (s *Server) showHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.health.Report(r.Context()))
}
