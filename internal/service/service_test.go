package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/zapponejosh/natal-api/internal/astro"
	"github.com/zapponejosh/natal-api/internal/calendar"
	"github.com/zapponejosh/natal-api/internal/content"
	"github.com/zapponejosh/natal-api/internal/database"
	"github.com/zapponejosh/natal-api/internal/geocode"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// Fakes
// =============================================================================

// fakeEphemeris returns longitudes keyed by birth year and equal houses
// starting at 0° Aries, so house n matches sign n-1.
type fakeEphemeris struct {
	mu         sync.Mutex
	byYear     map[int]map[astro.Body]float64
	failYear   int
	houseCalls int
}

func (f *fakeEphemeris) Longitude(_ context.Context, moment time.Time, body astro.Body) (float64, error) {
	if moment.Year() == f.failYear {
		return 0, errors.New("ephemeris out of range")
	}
	if lon, ok := f.byYear[moment.Year()][body]; ok {
		return lon, nil
	}
	return 200, nil
}

func (f *fakeEphemeris) Houses(_ context.Context, _ time.Time, _, _ float64, _ astro.HouseSystem) (astro.HouseTable, error) {
	f.mu.Lock()
	f.houseCalls++
	f.mu.Unlock()

	var cusps astro.Cusps
	for i := range cusps {
		cusps[i] = float64(i * 30)
	}
	return astro.HouseTable{Cusps: cusps, Ascendant: 0, Midheaven: 270}, nil
}

type fakeGeocoder struct {
	mu      sync.Mutex
	places  map[string]geocode.Location
	err     error
	queries []string
}

func (f *fakeGeocoder) Geocode(_ context.Context, query string) (geocode.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, query)
	if f.err != nil {
		return geocode.Location{}, f.err
	}
	loc, ok := f.places[query]
	if !ok {
		return geocode.Location{}, geocode.ErrNotFound
	}
	return loc, nil
}

type countingRecorder struct {
	mu       sync.Mutex
	computed int
	failed   int
	matched  []int
}

func (r *countingRecorder) ChartComputed(string, string) {
	r.mu.Lock()
	r.computed++
	r.mu.Unlock()
}

func (r *countingRecorder) ChartFailed(string) {
	r.mu.Lock()
	r.failed++
	r.mu.Unlock()
}

func (r *countingRecorder) ResearchMatched(n int) {
	r.mu.Lock()
	r.matched = append(r.matched, n)
	r.mu.Unlock()
}

// =============================================================================
// Helpers
// =============================================================================

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func testStore(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:            ":memory:",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	}, quietLogger())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if _, err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fixture struct {
	store    *database.DB
	eph      *fakeEphemeris
	geo      *fakeGeocoder
	recorder *countingRecorder
	charts   *ChartService
	profiles *ProfileService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store: testStore(t),
		eph: &fakeEphemeris{byYear: map[int]map[astro.Body]float64{
			1990: {astro.Sun: 45.5, astro.Moon: 100},
			1985: {astro.Sun: 300, astro.Moon: 45.2, astro.Venus: 45.9},
			1970: {astro.Sun: 46.0},
		}},
		geo: &fakeGeocoder{places: map[string]geocode.Location{
			"Tel Aviv": {Latitude: 32.0853, Longitude: 34.7818},
			"Haifa":    {Latitude: 32.794, Longitude: 34.9896},
		}},
		recorder: &countingRecorder{},
	}

	idx := content.New(content.Data{
		Signs: map[content.SignKey]string{
			{Body: astro.Sun, Sign: astro.Taurus}: "Sun in Taurus",
		},
		Degrees: map[astro.DegreeRef]content.DegreeContent{
			{Sign: astro.Taurus, Degree: 16}: {Sentence: "A steady hand."},
		},
	}, content.Options{})

	deps := Deps{
		Ephemeris: f.eph,
		Geocoder:  f.geo,
		Store:     f.store,
		Content:   idx,
		Logger:    quietLogger(),
		Recorder:  f.recorder,
	}
	f.charts = NewChartService(ChartConfig{ResearchConcurrency: 3}, deps)
	f.profiles = NewProfileService(deps)
	return f
}

func input(name, city, date string) BirthInput {
	return BirthInput{
		Name:      name,
		City:      city,
		BirthDate: date,
		BirthTime: "10:30",
		Timezone:  "UTC",
	}
}

func ptr(f float64) *float64 { return &f }

// =============================================================================
// ChartService
// =============================================================================

func TestPreview(t *testing.T) {
	f := newFixture(t)

	chart, err := f.charts.Preview(context.Background(), input("Dana", "Tel Aviv", "1990-05-15"))
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}

	if chart.ProfileID != nil {
		t.Errorf("ProfileID = %v, want nil", *chart.ProfileID)
	}
	if chart.Latitude != 32.0853 || chart.Longitude != 34.7818 {
		t.Errorf("coordinates = %v,%v, want Tel Aviv", chart.Latitude, chart.Longitude)
	}
	if chart.HouseSystem != astro.HouseSystemPlacidus {
		t.Errorf("HouseSystem = %q, want placidus", chart.HouseSystem)
	}
	wantMoment := time.Date(1990, time.May, 15, 10, 30, 0, 0, time.UTC)
	if !chart.Moment.Equal(wantMoment) {
		t.Errorf("Moment = %v, want %v", chart.Moment, wantMoment)
	}
	if len(chart.Placements) != len(astro.ChartOrder()) {
		t.Fatalf("got %d placements, want %d", len(chart.Placements), len(astro.ChartOrder()))
	}

	sun := chart.Placements[1]
	if sun.Body != astro.Sun || sun.Sign != astro.Taurus || sun.Degree != 16 || sun.House != 2 {
		t.Errorf("Sun = %s %s %d house %d, want Sun Taurus 16 house 2", sun.Body, sun.Sign, sun.Degree, sun.House)
	}
	if sun.SignText != "Sun in Taurus" {
		t.Errorf("Sun SignText = %q", sun.SignText)
	}
	if sun.DegreeText.Sentence != "A steady hand." {
		t.Errorf("Sun degree sentence = %q", sun.DegreeText.Sentence)
	}
	if f.recorder.computed != 1 {
		t.Errorf("ChartComputed called %d times, want 1", f.recorder.computed)
	}
}

func TestPreview_ExplicitCoordinatesSkipGeocoding(t *testing.T) {
	f := newFixture(t)

	in := input("Dana", "Nowhere", "1990-05-15")
	in.Latitude, in.Longitude = ptr(10), ptr(20)
	in.HouseSystem = astro.HouseSystemEqual

	chart, err := f.charts.Preview(context.Background(), in)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if len(f.geo.queries) != 0 {
		t.Errorf("geocoder called with %v, want no calls", f.geo.queries)
	}
	if chart.Latitude != 10 || chart.Longitude != 20 {
		t.Errorf("coordinates = %v,%v, want 10,20", chart.Latitude, chart.Longitude)
	}
	if chart.HouseSystem != astro.HouseSystemEqual {
		t.Errorf("HouseSystem = %q, want equal", chart.HouseSystem)
	}
}

func TestPreview_Errors(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*BirthInput)
		wantErr error
	}{
		{
			name:    "unknown city",
			modify:  func(in *BirthInput) { in.City = "Atlantis" },
			wantErr: geocode.ErrNotFound,
		},
		{
			name:    "bad date",
			modify:  func(in *BirthInput) { in.BirthDate = "1990-02-30" },
			wantErr: calendar.ErrMalformedDateTime,
		},
		{
			name:    "bad zone",
			modify:  func(in *BirthInput) { in.Timezone = "Mars/Olympus" },
			wantErr: calendar.ErrMalformedDateTime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := input("Dana", "Tel Aviv", "1990-05-15")
			tt.modify(&in)

			_, err := f.charts.Preview(context.Background(), in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Preview() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPreview_UnknownHouseSystem(t *testing.T) {
	f := newFixture(t)
	in := input("Dana", "Tel Aviv", "1990-05-15")
	in.HouseSystem = "koch"

	if _, err := f.charts.Preview(context.Background(), in); !errors.Is(err, astro.ErrUnknownHouseSystem) {
		t.Errorf("Preview() error = %v, want ErrUnknownHouseSystem", err)
	}
}

func TestProfileChart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.profiles.Create(ctx, input("Dana", "Tel Aviv", "1990-05-15"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	f.geo.queries = nil

	chart, err := f.charts.ProfileChart(ctx, p.ID, "")
	if err != nil {
		t.Fatalf("ProfileChart() error = %v", err)
	}
	if len(f.geo.queries) != 0 {
		t.Errorf("ProfileChart geocoded %v, want stored coordinates", f.geo.queries)
	}
	if chart.ProfileID == nil || *chart.ProfileID != p.ID {
		t.Errorf("ProfileID = %v, want %d", chart.ProfileID, p.ID)
	}
	if chart.Name != "Dana" || chart.Timezone != "UTC" {
		t.Errorf("chart header = %q/%q", chart.Name, chart.Timezone)
	}

	preview, err := f.charts.Preview(ctx, input("Dana", "Tel Aviv", "1990-05-15"))
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if diff := cmp.Diff(preview.Placements, chart.Placements); diff != "" {
		t.Errorf("stored chart differs from preview (-preview +stored):\n%s", diff)
	}
}

func TestProfileChart_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.charts.ProfileChart(context.Background(), 999, "")
	if !database.IsNotFound(err) {
		t.Errorf("ProfileChart() error = %v, want not found", err)
	}
}

func TestDegreeData(t *testing.T) {
	f := newFixture(t)

	got, err := f.charts.DegreeData("taurus", 30)
	if err != nil {
		t.Fatalf("DegreeData() error = %v", err)
	}
	if got.Next != (astro.DegreeRef{Sign: astro.Gemini, Degree: 1}) {
		t.Errorf("Next = %+v, want Gemini 1", got.Next)
	}

	for _, bad := range []struct {
		sign   string
		degree int
	}{{"Taurus", 0}, {"Taurus", 31}, {"Ophiuchus", 5}} {
		if _, err := f.charts.DegreeData(bad.sign, bad.degree); !errors.Is(err, content.ErrInvalidDegree) {
			t.Errorf("DegreeData(%q, %d) error = %v, want ErrInvalidDegree", bad.sign, bad.degree, err)
		}
	}
}

// =============================================================================
// Research
// =============================================================================

func TestResearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dana, err := f.profiles.Create(ctx, input("Dana", "Tel Aviv", "1990-05-15"))
	if err != nil {
		t.Fatalf("Create(Dana) error = %v", err)
	}
	avi, err := f.profiles.Create(ctx, input("Avi", "Haifa", "1985-01-02"))
	if err != nil {
		t.Fatalf("Create(Avi) error = %v", err)
	}
	if _, err := f.profiles.Create(ctx, input("Noa", "Haifa", "1970-07-07")); err != nil {
		t.Fatalf("Create(Noa) error = %v", err)
	}

	got, err := f.charts.Research(ctx, "TAURUS", 16)
	if err != nil {
		t.Fatalf("Research() error = %v", err)
	}

	want := []ResearchMatch{
		{ProfileID: avi.ID, Name: "Avi", City: "Haifa", BirthDate: "1985-01-02", BirthTime: "10:30", Planet: astro.Moon, House: 2},
		{ProfileID: avi.ID, Name: "Avi", City: "Haifa", BirthDate: "1985-01-02", BirthTime: "10:30", Planet: astro.Venus, House: 2},
		{ProfileID: dana.ID, Name: "Dana", City: "Tel Aviv", BirthDate: "1990-05-15", BirthTime: "10:30", Planet: astro.Sun, House: 2},
	}
	if diff := cmp.Diff(want, got.Matches); diff != "" {
		t.Errorf("Research() matches mismatch (-want +got):\n%s", diff)
	}

	if got.Scanned != 3 || got.Skipped != 0 {
		t.Errorf("Scanned/Skipped = %d/%d, want 3/0", got.Scanned, got.Skipped)
	}
	if got.Sign != astro.Taurus || got.Degree != 16 {
		t.Errorf("degree = %s %d, want Taurus 16", got.Sign, got.Degree)
	}
	if got.Content.Sentence != "A steady hand." {
		t.Errorf("Content.Sentence = %q", got.Content.Sentence)
	}
	if got.Prev != (astro.DegreeRef{Sign: astro.Taurus, Degree: 15}) {
		t.Errorf("Prev = %+v, want Taurus 15", got.Prev)
	}

	// Houses only for the two profiles with a match.
	if f.eph.houseCalls != 2 {
		t.Errorf("Houses called %d times, want 2", f.eph.houseCalls)
	}
	if diff := cmp.Diff([]int{3}, f.recorder.matched); diff != "" {
		t.Errorf("ResearchMatched mismatch (-want +got):\n%s", diff)
	}
}

func TestResearch_SkipsFailingProfiles(t *testing.T) {
	f := newFixture(t)
	f.eph.failYear = 1970
	ctx := context.Background()

	if _, err := f.profiles.Create(ctx, input("Dana", "Tel Aviv", "1990-05-15")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := f.profiles.Create(ctx, input("Noa", "Haifa", "1970-07-07")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := f.charts.Research(ctx, "Taurus", 16)
	if err != nil {
		t.Fatalf("Research() error = %v", err)
	}
	if got.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", got.Skipped)
	}
	if len(got.Matches) != 1 || got.Matches[0].Name != "Dana" {
		t.Errorf("Matches = %+v, want only Dana", got.Matches)
	}
}

func TestResearch_NoProfiles(t *testing.T) {
	f := newFixture(t)

	got, err := f.charts.Research(context.Background(), "Pisces", 30)
	if err != nil {
		t.Fatalf("Research() error = %v", err)
	}
	if got.Matches == nil || len(got.Matches) != 0 {
		t.Errorf("Matches = %#v, want empty non-nil slice", got.Matches)
	}
	if got.Next != (astro.DegreeRef{Sign: astro.Aries, Degree: 1}) {
		t.Errorf("Next = %+v, want Aries 1", got.Next)
	}
}

func TestResearch_InvalidDegree(t *testing.T) {
	f := newFixture(t)

	if _, err := f.charts.Research(context.Background(), "Leo", 0); !errors.Is(err, content.ErrInvalidDegree) {
		t.Errorf("Research() error = %v, want ErrInvalidDegree", err)
	}
}

func TestResearch_Canceled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := f.profiles.Create(ctx, input("Dana", "Tel Aviv", "1990-05-15")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	cancel()

	if _, err := f.charts.Research(ctx, "Taurus", 16); err == nil {
		t.Error("Research() expected error for canceled context")
	}
}

// =============================================================================
// ProfileService
// =============================================================================

func TestCreateProfile_Geocodes(t *testing.T) {
	f := newFixture(t)

	in := input("Dana", "Tel Aviv", "15/05/1990")
	in.DateFormat = calendar.DateFormatDayMonthYear

	p, err := f.profiles.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if diff := cmp.Diff([]string{"Tel Aviv"}, f.geo.queries); diff != "" {
		t.Errorf("geocoder queries mismatch (-want +got):\n%s", diff)
	}
	if p.Latitude != 32.0853 || p.Longitude != 34.7818 {
		t.Errorf("coordinates = %v,%v", p.Latitude, p.Longitude)
	}
	if p.BirthDate != "1990-05-15" || p.DateFormat != calendar.DateFormatISO {
		t.Errorf("stored date = %q (%s), want ISO", p.BirthDate, p.DateFormat)
	}
}

func TestCreateProfile_UnknownCityStoresNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.profiles.Create(ctx, input("Dana", "Atlantis", "1990-05-15"))
	if !errors.Is(err, geocode.ErrNotFound) {
		t.Fatalf("Create() error = %v, want ErrNotFound", err)
	}

	n, err := f.store.CountProfiles(ctx)
	if err != nil {
		t.Fatalf("CountProfiles() error = %v", err)
	}
	if n != 0 {
		t.Errorf("CountProfiles() = %d, want 0", n)
	}
}

func TestUpdateProfile(t *testing.T) {
	tests := []struct {
		name        string
		city        string
		coords      *geocode.Location
		geoErr      error
		wantQueries []string
		wantLat     float64
		wantErr     error
	}{
		{
			name:    "same city keeps coordinates",
			city:    "tel aviv ",
			wantLat: 32.0853,
		},
		{
			name:        "new city is geocoded",
			city:        "Haifa",
			wantQueries: []string{"Haifa"},
			wantLat:     32.794,
		},
		{
			name:    "explicit coordinates win",
			city:    "Haifa",
			coords:  &geocode.Location{Latitude: 1, Longitude: 2},
			wantLat: 1,
		},
		{
			name:        "failed lookup aborts",
			city:        "Atlantis",
			wantQueries: []string{"Atlantis"},
			wantErr:     geocode.ErrNotFound,
		},
		{
			name:        "geocoder down aborts",
			city:        "Haifa",
			geoErr:      geocode.ErrUnavailable,
			wantQueries: []string{"Haifa"},
			wantErr:     geocode.ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			created, err := f.profiles.Create(ctx, input("Dana", "Tel Aviv", "1990-05-15"))
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			f.geo.queries = nil
			f.geo.err = tt.geoErr

			in := input("Dana Levi", tt.city, "1990-05-16")
			if tt.coords != nil {
				in.Latitude, in.Longitude = ptr(tt.coords.Latitude), ptr(tt.coords.Longitude)
			}

			updated, err := f.profiles.Update(ctx, created.ID, in)
			if diff := cmp.Diff(tt.wantQueries, f.geo.queries); diff != "" {
				t.Errorf("geocoder queries mismatch (-want +got):\n%s", diff)
			}

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Update() error = %v, want %v", err, tt.wantErr)
				}
				stored, err := f.store.GetProfile(ctx, created.ID)
				if err != nil {
					t.Fatalf("GetProfile() error = %v", err)
				}
				if stored.Name != "Dana" || stored.City != "Tel Aviv" {
					t.Errorf("failed update changed row: %+v", stored)
				}
				return
			}

			if err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			if updated.Latitude != tt.wantLat {
				t.Errorf("Latitude = %v, want %v", updated.Latitude, tt.wantLat)
			}
			if updated.Name != "Dana Levi" || updated.BirthDate != "1990-05-16" {
				t.Errorf("updated = %+v", updated)
			}
		})
	}
}

func TestUpdateProfile_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.profiles.Update(context.Background(), 42, input("Dana", "Tel Aviv", "1990-05-15"))
	if !database.IsNotFound(err) {
		t.Errorf("Update() error = %v, want not found", err)
	}
}

func TestListAndDeleteProfiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.profiles.Create(ctx, input("Dana", "Tel Aviv", "1990-05-15"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	list, err := f.profiles.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List() returned %d profiles, want 1", len(list))
	}

	if err := f.profiles.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.profiles.Get(ctx, p.ID); !database.IsNotFound(err) {
		t.Errorf("Get() after delete error = %v, want not found", err)
	}
	if err := f.profiles.Delete(ctx, p.ID); !database.IsNotFound(err) {
		t.Errorf("second Delete() error = %v, want not found", err)
	}
}
