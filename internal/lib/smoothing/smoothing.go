// Package smoothing conditions raw GPS fixes into stable positions,
// headings, and speeds.
package smoothing

import (
	"math"
	"time"

	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
)

// Alpha is the low-pass weight given to each new sample.
const Alpha = 0.3

// minSpeedKMH is the jitter floor; anything slower reads as stationary.
const minSpeedKMH = 3.0

// Fix is one raw position report from the feed. Heading and speed are
// optional because many devices omit or zero them while stationary.
type Fix struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lng"`
	Heading   *float64  `json:"heading,omitempty"`
	SpeedMS   *float64  `json:"speed,omitempty"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	At        time.Time `json:"at"`
}

// Motion is a conditioned position the session can consume directly.
type Motion struct {
	Position geo.Point `json:"position"`
	Heading  float64   `json:"heading"`
	SpeedKMH float64   `json:"speed_kmh"`
}

// Filter is a per-session exponential low-pass over raw fixes. The zero
// value is ready to use; the first sample seeds the filter unchanged. Not
// safe for concurrent use; the owning session serializes access.
type Filter struct {
	seeded bool
	lat    float64
	lng    float64
	lastAt time.Time
}

// Reset clears all state so a new session starts from its first raw fix.
func (f *Filter) Reset() {
	*f = Filter{}
}

// Smooth folds a raw coordinate into the filter and returns the smoothed
// position. Each axis moves Alpha of the way toward the new sample.
func (f *Filter) Smooth(lat, lng float64) geo.Point {
	if !f.seeded {
		f.seeded = true
		f.lat = lat
		f.lng = lng
		return geo.Point{Latitude: lat, Longitude: lng}
	}

	f.lat += Alpha * (lat - f.lat)
	f.lng += Alpha * (lng - f.lng)
	return geo.Point{Latitude: f.lat, Longitude: f.lng}
}

// Estimate smooths the fix and derives heading and speed. The device
// heading wins when it is present and numeric, otherwise the bearing from
// the previous smoothed position stands in. Device speed (m/s, converted
// to km/h) wins when it reads at least 1 km/h, otherwise speed falls back
// to distance over elapsed time. Results below 3 km/h clamp to zero so a
// parked vehicle does not creep from GPS jitter.
func (f *Filter) Estimate(fix Fix) Motion {
	prev := geo.Point{Latitude: f.lat, Longitude: f.lng}
	prevAt := f.lastAt
	seeded := f.seeded

	pos := f.Smooth(fix.Latitude, fix.Longitude)
	f.lastAt = fix.At

	m := Motion{Position: pos}

	switch {
	case fix.Heading != nil && !math.IsNaN(*fix.Heading):
		m.Heading = math.Mod(math.Mod(*fix.Heading, 360)+360, 360)
	case seeded:
		m.Heading = geo.Bearing(prev, pos)
	}

	if fix.SpeedMS != nil && *fix.SpeedMS*3.6 >= 1 {
		m.SpeedKMH = *fix.SpeedMS * 3.6
	} else if seeded && fix.At.After(prevAt) {
		elapsed := fix.At.Sub(prevAt).Seconds()
		m.SpeedKMH = geo.Haversine(prev, pos) / elapsed * 3.6
	}

	if m.SpeedKMH < minSpeedKMH {
		m.SpeedKMH = 0
	}
	return m
}
