package session

import (
	"encoding/json"
	"time"

	"github.com/salio-edge/gateway/internal/timeutil"
)

// State is the process-wide SystemState snapshot. Running is always
// LidarConnected || RfidConnected.
type State struct {
	Running        bool
	LidarConnected bool
	RfidConnected  bool
	TagCount       uint64
	LastUpdated    time.Time
}

type stateJSON struct {
	Running        bool    `json:"running"`
	LidarConnected bool    `json:"lidarConnected"`
	RfidConnected  bool    `json:"rfidConnected"`
	TagCount       uint64  `json:"tagCount"`
	LastUpdated    float64 `json:"lastUpdated"`
}

// MarshalJSON renders LastUpdated as fractional Unix seconds.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{
		Running:        s.Running,
		LidarConnected: s.LidarConnected,
		RfidConnected:  s.RfidConnected,
		TagCount:       s.TagCount,
		LastUpdated:    timeutil.UnixSeconds(s.LastUpdated),
	})
}

// ConnectResult reports the outcome of Connect per device. Success is true
// when at least one device connected.
type ConnectResult struct {
	Success bool `json:"success"`
	Lidar   bool `json:"lidar"`
	Rfid    bool `json:"rfid"`
}

// Counters are cumulative activity totals for the debug page.
type Counters struct {
	Readings   uint64 `json:"readings"`
	Frames     uint64 `json:"frames"`
	Detections uint64 `json:"detections"`
	Scans      uint64 `json:"scans"`
	Connects   uint64 `json:"connects"`
}
