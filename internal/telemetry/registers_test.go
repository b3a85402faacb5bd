package telemetry_test

import (
	"sync"
	"testing"

	"allsky/internal/telemetry"
)

func TestNewSeedsUnknownReadings(t *testing.T) {
	regs := telemetry.New(40.5, -105.1)
	got := regs.Snapshot()
	want := telemetry.Values{
		Latitude:  40.5,
		Longitude: -105.1,
		Exposure:  -1.0,
		Gain:      -1,
		Bin:       1,
		Night:     -1,
		MoonMode:  -1,
	}
	if got != want {
		t.Fatalf("Snapshot() = %+v, want %+v", got, want)
	}
}

func TestUpdateIsAtomicAcrossFields(t *testing.T) {
	regs := telemetry.New(0, 0)

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			regs.Update(func(v *telemetry.Values) {
				v.Exposure = float64(n)
				v.Gain = n
			})
		}(i)
	}
	for i := 0; i < 200; i++ {
		snap := regs.Snapshot()
		if snap.Gain != -1 && float64(snap.Gain) != snap.Exposure {
			t.Fatalf("torn read: exposure=%v gain=%d", snap.Exposure, snap.Gain)
		}
	}
	wg.Wait()
}

func TestSetters(t *testing.T) {
	regs := telemetry.New(0, 0)
	regs.SetExposure(15)
	regs.SetLocation(10, 20)

	if regs.Exposure() != 15 {
		t.Fatalf("unexpected registers: %+v", regs.Snapshot())
	}
	if snap := regs.Snapshot(); snap.Latitude != 10 || snap.Longitude != 20 {
		t.Fatalf("location not updated: %+v", snap)
	}
}
