// Package rangefinder implements device adapters for a 2D scanning
// rangefinder, over a serial line protocol or UDP datagrams.
package rangefinder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrEmptyFrame = errors.New("empty frame")

// Point is one polar sample of a scan. Angle is in degrees, Distance in
// millimetres.
type Point struct {
	Angle    float64 `json:"angle"`
	Distance float64 `json:"distance"`
	Quality  int     `json:"quality"`
}

// ParseFrame decodes one serial line of the form
// "angle,distance[,quality];angle,distance[,quality];...". Empty segments are
// ignored; a line with no samples is ErrEmptyFrame. NaN and infinite values
// are rejected since they cannot be rendered as JSON.
func ParseFrame(line string) ([]Point, error) {
	segments := strings.Split(strings.TrimSpace(line), ";")
	points := make([]Point, 0, len(segments))

	for i, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		fields := strings.Split(seg, ",")
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("sample %d: expected angle,distance[,quality], got %q", i, seg)
		}

		angle, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("sample %d angle: %w", i, err)
		}
		dist, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("sample %d distance: %w", i, err)
		}
		if !finite(angle) || !finite(dist) {
			return nil, fmt.Errorf("sample %d: non-finite value in %q", i, seg)
		}
		var quality int
		if len(fields) == 3 {
			quality, err = strconv.Atoi(strings.TrimSpace(fields[2]))
			if err != nil {
				return nil, fmt.Errorf("sample %d quality: %w", i, err)
			}
		}
		points = append(points, Point{Angle: angle, Distance: dist, Quality: quality})
	}

	if len(points) == 0 {
		return nil, ErrEmptyFrame
	}
	return points, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// recordSize is the length of one sample in a UDP datagram: angle in
// hundredths of a degree (uint16 LE), distance in mm (uint16 LE), quality
// (uint8).
const recordSize = 5

// DecodeDatagram decodes a UDP payload made of fixed-size sample records.
func DecodeDatagram(b []byte) ([]Point, error) {
	if len(b) == 0 {
		return nil, ErrEmptyFrame
	}
	if len(b)%recordSize != 0 {
		return nil, fmt.Errorf("datagram length %d is not a multiple of %d", len(b), recordSize)
	}

	points := make([]Point, 0, len(b)/recordSize)
	for off := 0; off < len(b); off += recordSize {
		rec := b[off : off+recordSize]
		points = append(points, Point{
			Angle:    float64(binary.LittleEndian.Uint16(rec[0:2])) / 100,
			Distance: float64(binary.LittleEndian.Uint16(rec[2:4])),
			Quality:  int(rec[4]),
		})
	}
	return points, nil
}

// EncodeDatagram is the inverse of DecodeDatagram. Angles are rounded to the
// nearest hundredth of a degree.
func EncodeDatagram(points []Point) []byte {
	b := make([]byte, 0, len(points)*recordSize)
	for _, p := range points {
		b = binary.LittleEndian.AppendUint16(b, uint16(p.Angle*100+0.5))
		b = binary.LittleEndian.AppendUint16(b, uint16(p.Distance))
		b = append(b, uint8(p.Quality))
	}
	return b
}
