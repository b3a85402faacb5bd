// Package telemetry holds the camera and sky readings shared between worker
// roles. Every cell sits behind a single mutex so a reader never observes a
// half-applied multi-field update from the capture role.
package telemetry

import "sync"

// Values is one consistent view of every register.
type Values struct {
	Latitude   float64
	Longitude  float64
	RA         float64
	Dec        float64
	Exposure   float64
	Gain       int
	Bin        int
	SensorTemp float64
	Night      int // 1 at night, 0 by day, -1 before the first capture
	MoonMode   int
}

// Registers are the shared cells.
type Registers struct {
	mu     sync.Mutex
	values Values
}

// New seeds the registers. Unknown readings start at -1 and binning at 1.
func New(latitude, longitude float64) *Registers {
	return &Registers{values: Values{
		Latitude:  latitude,
		Longitude: longitude,
		Exposure:  -1.0,
		Gain:      -1,
		Bin:       1,
		Night:     -1,
		MoonMode:  -1,
	}}
}

// Snapshot copies every register under the lock.
func (r *Registers) Snapshot() Values {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values
}

// Update applies fn to the registers atomically.
func (r *Registers) Update(fn func(*Values)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.values)
}

func (r *Registers) Exposure() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values.Exposure
}

func (r *Registers) SetExposure(v float64) {
	r.Update(func(values *Values) { values.Exposure = v })
}

// SetLocation replaces the site coordinates, used after a config reload.
func (r *Registers) SetLocation(latitude, longitude float64) {
	r.Update(func(values *Values) {
		values.Latitude = latitude
		values.Longitude = longitude
	})
}
