package astro

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// fakeEphemeris returns canned longitudes and houses.
type fakeEphemeris struct {
	longitudes map[Body]float64
	table      HouseTable
	houseErr   error
	calls      int
}

func (f *fakeEphemeris) Longitude(_ context.Context, _ time.Time, body Body) (float64, error) {
	l, ok := f.longitudes[body]
	if !ok {
		return 0, errors.New("unknown body")
	}
	return l, nil
}

func (f *fakeEphemeris) Houses(_ context.Context, _ time.Time, _, _ float64, _ HouseSystem) (HouseTable, error) {
	f.calls++
	return f.table, f.houseErr
}

func sampleLongitudes() map[Body]float64 {
	return map[Body]float64{
		Sun:       5,      // house 1 across the seam
		Moon:      355,    // house 1 before the seam
		Mercury:   20,     // exactly on the house 2 cusp
		Venus:     47,     // Taurus 18, house 2
		Mars:      -10,    // normalised to 350, start of house 1
		Jupiter:   185,    // house 7
		Saturn:    319.99, // end of house 11
		Uranus:    320,    // house 12
		Neptune:   90,     // house 4
		Pluto:     200,    // house 8
		NorthNode: 725,    // normalised to 5
	}
}

func TestAssemble(t *testing.T) {
	table := HouseTable{Cusps: wrapCusps, Ascendant: 350}

	got, err := Assemble(sampleLongitudes(), table)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	type row struct {
		Body   Body
		Sign   Sign
		Degree int
		House  int
	}
	var rows []row
	for _, p := range got {
		rows = append(rows, row{p.Body, p.Sign, p.Degree, p.House})
	}

	want := []row{
		{Ascendant, Pisces, 21, 1},
		{Sun, Aries, 6, 1},
		{Moon, Pisces, 26, 1},
		{Mercury, Aries, 21, 2},
		{Venus, Taurus, 18, 2},
		{Mars, Pisces, 21, 1},
		{Jupiter, Libra, 6, 7},
		{Saturn, Aquarius, 20, 11},
		{Uranus, Aquarius, 21, 12},
		{Neptune, Cancer, 1, 4},
		{Pluto, Libra, 21, 8},
		{NorthNode, Aries, 6, 1},
	}

	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("Assemble() mismatch (-want +got):\n%s", diff)
	}
}

func TestAssemble_OrderMatchesChartOrder(t *testing.T) {
	got, err := Assemble(sampleLongitudes(), HouseTable{Cusps: wrapCusps, Ascendant: 350})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	var bodies []Body
	for _, p := range got {
		bodies = append(bodies, p.Body)
	}
	if diff := cmp.Diff(ChartOrder(), bodies); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

// The Ascendant reports house 1 even when its longitude sits elsewhere in
// the cusp table.
func TestAssemble_AscendantAlwaysHouseOne(t *testing.T) {
	for _, asc := range []float64{0, 19.99, 20, 185, 349.99} {
		got, err := Assemble(sampleLongitudes(), HouseTable{Cusps: wrapCusps, Ascendant: asc})
		if err != nil {
			t.Fatalf("Assemble() error = %v", err)
		}
		if got[0].Body != Ascendant || got[0].House != 1 {
			t.Errorf("ascendant %v: got %s in house %d, want Ascendant in house 1", asc, got[0].Body, got[0].House)
		}
	}
}

func TestAssemble_MissingBody(t *testing.T) {
	longitudes := sampleLongitudes()
	delete(longitudes, Pluto)

	if _, err := Assemble(longitudes, HouseTable{Cusps: wrapCusps}); err == nil {
		t.Error("Assemble() expected error for missing Pluto")
	}
}

func TestAssemble_MalformedCusps(t *testing.T) {
	bad := wrapCusps
	bad[3] = bad[2]

	_, err := Assemble(sampleLongitudes(), HouseTable{Cusps: bad})
	if !errors.Is(err, ErrMalformedCuspTable) {
		t.Errorf("Assemble() error = %v, want ErrMalformedCuspTable", err)
	}
}

func TestComputeChart(t *testing.T) {
	eph := &fakeEphemeris{
		longitudes: sampleLongitudes(),
		table:      HouseTable{Cusps: wrapCusps, Ascendant: 350, Midheaven: 260},
	}
	moment := time.Date(1990, time.May, 15, 10, 30, 0, 0, time.UTC)

	got, table, err := ComputeChart(context.Background(), eph, moment, 32.08, 34.78, HouseSystemPlacidus)
	if err != nil {
		t.Fatalf("ComputeChart() error = %v", err)
	}
	if table != eph.table {
		t.Errorf("ComputeChart() table = %+v, want %+v", table, eph.table)
	}

	want, err := Assemble(sampleLongitudes(), eph.table)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("ComputeChart() mismatch (-want +got):\n%s", diff)
	}

	// Recompute on every call rather than caching the table.
	if _, _, err := ComputeChart(context.Background(), eph, moment, 32.08, 34.78, HouseSystemPlacidus); err != nil {
		t.Fatalf("ComputeChart() second call error = %v", err)
	}
	if eph.calls != 2 {
		t.Errorf("Houses called %d times, want 2", eph.calls)
	}
}

func TestComputeChart_HouseError(t *testing.T) {
	eph := &fakeEphemeris{longitudes: sampleLongitudes(), houseErr: errors.New("boom")}

	if _, _, err := ComputeChart(context.Background(), eph, time.Now(), 0, 0, HouseSystemEqual); err == nil {
		t.Error("ComputeChart() expected error")
	}
}
