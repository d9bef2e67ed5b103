package session

import (
	"fmt"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/salio-edge/gateway/internal/httputil"
)

// AttachAdminRoutes adds session state to the /debug/ index and exposes it
// as JSON at /debug/session.
func (m *Manager) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Lidar", func() any {
		return fmt.Sprintf("%s (connected: %v)", m.lidar.path, m.snapshot().LidarConnected)
	})
	debug.KVFunc("RFID", func() any {
		return fmt.Sprintf("%s (connected: %v)", m.rfid.path, m.snapshot().RfidConnected)
	})
	debug.KVFunc("Tags since connect", func() any { return m.snapshot().TagCount })
	debug.KVFunc("Session counters", func() any { return fmt.Sprintf("%+v", m.Counters()) })

	debug.HandleFunc("session", "Session state and counters as JSON", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, struct {
			State    State    `json:"state"`
			Counters Counters `json:"counters"`
		}{m.snapshot(), m.Counters()})
	})
}
