// Package event defines the transient events pushed to subscribers and their
// wire rendering. Events are produced once, fanned out, then discarded.
package event

import (
	"encoding/json"
	"time"

	"github.com/salio-edge/gateway/internal/timeutil"
)

// Type names an event on the wire.
type Type string

const (
	ScanStarted   Type = "scan_started"
	LidarData     Type = "lidar_data"
	RfidDetection Type = "rfid_detection"
)

// Event is a tagged variant: TagID is set only for RfidDetection and Points
// only for LidarData.
type Event struct {
	Type      Type
	Timestamp time.Time
	TagID     string
	// Points is the rangefinder frame exactly as the adapter produced it.
	Points any
}

func NewScanStarted(at time.Time) Event {
	return Event{Type: ScanStarted, Timestamp: at}
}

func NewLidarFrame(at time.Time, points any) Event {
	return Event{Type: LidarData, Timestamp: at, Points: points}
}

func NewRfidDetection(at time.Time, tagID string) Event {
	return Event{Type: RfidDetection, Timestamp: at, TagID: tagID}
}

type scanStartedPayload struct {
	Timestamp float64 `json:"timestamp"`
}

type lidarDataPayload struct {
	Timestamp float64 `json:"timestamp"`
	Points    any     `json:"points"`
}

type rfidDetectionPayload struct {
	TagID     string  `json:"tagId"`
	Timestamp float64 `json:"timestamp"`
}

// Payload returns the JSON body for the event, with the timestamp rendered as
// fractional Unix seconds.
func (e Event) Payload() any {
	ts := timeutil.UnixSeconds(e.Timestamp)
	switch e.Type {
	case LidarData:
		return lidarDataPayload{Timestamp: ts, Points: e.Points}
	case RfidDetection:
		return rfidDetectionPayload{TagID: e.TagID, Timestamp: ts}
	default:
		return scanStartedPayload{Timestamp: ts}
	}
}

// Envelope is the frame written to WebSocket subscribers.
type Envelope struct {
	Type    Type `json:"type"`
	Payload any  `json:"payload"`
}

// MarshalJSON renders the event inside its Envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(Envelope{Type: e.Type, Payload: e.Payload()})
}
