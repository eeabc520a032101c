package service

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/UnknownOlympus/compass/internal/geocoding"
	"github.com/UnknownOlympus/compass/internal/locator"
	"github.com/UnknownOlympus/compass/internal/mapview"
	"github.com/UnknownOlympus/compass/internal/metrics"
	"github.com/UnknownOlympus/compass/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Geocode(ctx context.Context, text string) (*models.GeocodeResult, error) {
	args := m.Called(ctx, text)
	result, _ := args.Get(0).(*models.GeocodeResult)
	return result, args.Error(1)
}

func (m *mockProvider) Reverse(ctx context.Context, coords models.Coordinates) (string, error) {
	args := m.Called(ctx, coords)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) SearchPlaces(ctx context.Context, query geocoding.PlacesQuery) ([]models.Place, error) {
	args := m.Called(ctx, query)
	places, _ := args.Get(0).([]models.Place)
	return places, args.Error(1)
}

type stubIPLocator struct {
	coords *models.Coordinates
	err    error
}

func (s stubIPLocator) Locate(context.Context, string) (*models.Coordinates, error) {
	return s.coords, s.err
}

var sanFrancisco = models.Coordinates{Latitude: 37.8, Longitude: -122.4}

func forCategory(c models.Category) interface{} {
	return mock.MatchedBy(func(q geocoding.PlacesQuery) bool { return q.Category == c })
}

func samplePlaces(names ...string) []models.Place {
	out := make([]models.Place, 0, len(names))
	for i, name := range names {
		out = append(out, models.Place{
			Name:        name,
			Address:     name + " street",
			Coordinates: models.Coordinates{Latitude: 37.8 + float64(i)/1000, Longitude: -122.4},
		})
	}
	return out
}

type fixture struct {
	provider *mockProvider
	metrics  *metrics.Metrics
	backend  *Backend
}

func newFixture(t *testing.T, ip stubIPLocator) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	provider := &mockProvider{}
	appMetrics := metrics.NewMetrics(prometheus.NewRegistry())

	return &fixture{
		provider: provider,
		metrics:  appMetrics,
		backend: &Backend{
			Provider:     provider,
			ProviderName: "mock",
			Resolver:     locator.NewResolver(ip, 0, logger),
			Metrics:      appMetrics,
			Log:          logger,
			Tiles:        mapview.SatelliteLayer,
		},
	}
}

// readySession bootstraps a session at sanFrancisco with one ATM plotted.
func (f *fixture) readySession(t *testing.T) *Session {
	t.Helper()

	f.provider.On("Reverse", mock.Anything, sanFrancisco).Return("Pier 39, San Francisco", nil).Once()
	f.provider.On("SearchPlaces", mock.Anything, forCategory(models.DefaultCategory)).Return(samplePlaces("Chase"), nil).Once()

	session := NewSession(f.backend)
	require.NoError(t, session.Bootstrap(t.Context(), models.DeviceReport{Coordinates: &sanFrancisco}, ""))
	require.Equal(t, StateReady, session.Snapshot().State)

	return session
}

func TestBootstrap(t *testing.T) {
	t.Run("device location plots three ATMs", func(t *testing.T) {
		f := newFixture(t, stubIPLocator{err: assert.AnError})
		f.provider.On("Reverse", mock.Anything, sanFrancisco).Return("Pier 39, San Francisco", nil).Once()
		f.provider.On("SearchPlaces", mock.Anything, geocoding.PlacesQuery{
			Category: "service.financial.atm",
			Center:   sanFrancisco,
			Radius:   5000,
			Limit:    10,
		}).Return(samplePlaces("A", "B", "C"), nil).Once()

		session := NewSession(f.backend)
		assert.Equal(t, StateLoading, session.Snapshot().State)

		err := session.Bootstrap(t.Context(), models.DeviceReport{Coordinates: &sanFrancisco}, "")

		require.NoError(t, err)
		snap := session.Snapshot()
		assert.Equal(t, StateReady, snap.State)
		assert.False(t, snap.Spinner)
		assert.Empty(t, snap.Notices)
		assert.Len(t, snap.Map.Markers, 3)
		assert.Equal(t, "<strong>A</strong><br>A street", snap.Map.Markers[0].Label)
		assert.Equal(t, mapview.View{Center: sanFrancisco, Zoom: mapview.FocusZoom}, snap.Map.View)
		require.NotNil(t, snap.Map.UserMarker)
		assert.Equal(t, "<strong>Your Location</strong><br>Pier 39, San Francisco", snap.Map.UserMarker.Label)
		require.NotNil(t, snap.Location)
		assert.Equal(t, models.SourceDevice, snap.Location.Source)
		assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.PlacesFetches.WithLabelValues("success")), 0)
		f.provider.AssertExpectations(t)
	})

	t.Run("denied geolocation falls back to IP", func(t *testing.T) {
		ipCoords := models.Coordinates{Latitude: 37.386, Longitude: -122.0838}
		f := newFixture(t, stubIPLocator{coords: &ipCoords})
		f.provider.On("Reverse", mock.Anything, ipCoords).Return("Mountain View", nil).Once()
		f.provider.On("SearchPlaces", mock.Anything, forCategory(models.DefaultCategory)).Return(samplePlaces("A"), nil).Once()

		session := NewSession(f.backend)
		err := session.Bootstrap(t.Context(), models.DeviceReport{Error: "User denied Geolocation"}, "8.8.8.8")

		require.NoError(t, err)
		snap := session.Snapshot()
		assert.Equal(t, models.SourceIP, snap.Location.Source)
		assert.Equal(t, ipCoords, snap.Location.Coordinates)
		assert.Equal(t, ipCoords, snap.Map.View.Center)
		assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.LocationResolutions.WithLabelValues("ip")), 0)
	})

	t.Run("reverse geocode failure uses generic label", func(t *testing.T) {
		f := newFixture(t, stubIPLocator{})
		f.provider.On("Reverse", mock.Anything, sanFrancisco).Return("", assert.AnError).Once()
		f.provider.On("SearchPlaces", mock.Anything, forCategory(models.DefaultCategory)).Return(samplePlaces("A"), nil).Once()

		session := NewSession(f.backend)
		err := session.Bootstrap(t.Context(), models.DeviceReport{Coordinates: &sanFrancisco}, "")

		require.NoError(t, err)
		snap := session.Snapshot()
		assert.Equal(t, StateReady, snap.State)
		assert.Equal(t, "<strong>Your Location</strong><br>Your approximate location", snap.Map.UserMarker.Label)
	})

	t.Run("unresolvable location stays in locating state", func(t *testing.T) {
		f := newFixture(t, stubIPLocator{err: assert.AnError})

		session := NewSession(f.backend)
		err := session.Bootstrap(t.Context(), models.DeviceReport{Error: "denied"}, "")

		require.ErrorIs(t, err, ErrLocationUnavailable)
		require.ErrorIs(t, err, assert.AnError)
		snap := session.Snapshot()
		assert.Equal(t, StateLocatingUser, snap.State)
		assert.False(t, snap.Spinner)
		assert.Equal(t, []string{NoticeLocationFailed}, snap.Notices)
		assert.NotEmpty(t, snap.LastError)
		assert.Nil(t, snap.Map.UserMarker)
		f.provider.AssertNotCalled(t, "SearchPlaces", mock.Anything, mock.Anything)
	})

	t.Run("second bootstrap is rejected", func(t *testing.T) {
		f := newFixture(t, stubIPLocator{})
		session := f.readySession(t)

		err := session.Bootstrap(t.Context(), models.DeviceReport{Coordinates: &sanFrancisco}, "")

		require.ErrorIs(t, err, ErrAlreadyStarted)
	})
}

func TestSelectCategory(t *testing.T) {
	t.Run("switching category replaces markers", func(t *testing.T) {
		f := newFixture(t, stubIPLocator{})
		session := f.readySession(t)
		require.Len(t, session.Snapshot().Map.Markers, 1)

		f.provider.On("SearchPlaces", mock.Anything, geocoding.PlacesQuery{
			Category: "catering.cafe",
			Center:   sanFrancisco,
			Radius:   geocoding.DefaultRadius,
			Limit:    geocoding.DefaultLimit,
		}).Return(samplePlaces("Blue Bottle", "Philz"), nil).Once()

		require.NoError(t, session.SelectCategory(t.Context(), "catering.cafe"))

		snap := session.Snapshot()
		assert.Equal(t, models.Category("catering.cafe"), snap.Category)
		require.Len(t, snap.Map.Markers, 2)
		assert.Contains(t, snap.Map.Markers[0].Label, "Blue Bottle")
		assert.Contains(t, snap.Map.Markers[1].Label, "Philz")
		assert.NotNil(t, snap.Map.UserMarker)
		f.provider.AssertExpectations(t)
	})

	t.Run("zero results show a notice once", func(t *testing.T) {
		f := newFixture(t, stubIPLocator{})
		session := f.readySession(t)
		f.provider.On("SearchPlaces", mock.Anything, forCategory("parking")).Return([]models.Place{}, nil).Once()

		require.NoError(t, session.SelectCategory(t.Context(), "parking"))

		snap := session.Snapshot()
		assert.Empty(t, snap.Map.Markers)
		assert.Equal(t, []string{NoticeNoPlaces}, snap.Notices)
		assert.False(t, snap.Spinner)
	})

	t.Run("fetch failure leaves the layer empty", func(t *testing.T) {
		f := newFixture(t, stubIPLocator{})
		session := f.readySession(t)
		f.provider.On("SearchPlaces", mock.Anything, forCategory("catering.cafe")).Return(nil, assert.AnError).Once()

		require.NoError(t, session.SelectCategory(t.Context(), "catering.cafe"))

		snap := session.Snapshot()
		assert.Empty(t, snap.Map.Markers)
		assert.Equal(t, []string{NoticePlacesFailed}, snap.Notices)
		assert.False(t, snap.Spinner)
		assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.PlacesFetches.WithLabelValues("failure")), 0)
		assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.APIErrors.WithLabelValues("mock", "places")), 0)
	})

	t.Run("empty category", func(t *testing.T) {
		f := newFixture(t, stubIPLocator{})
		session := f.readySession(t)

		require.ErrorIs(t, session.SelectCategory(t.Context(), "  "), geocoding.ErrEmptyCategory)
	})

	t.Run("not ready", func(t *testing.T) {
		f := newFixture(t, stubIPLocator{})
		session := NewSession(f.backend)

		require.ErrorIs(t, session.SelectCategory(t.Context(), "catering.cafe"), ErrNotReady)
	})

	t.Run("stale response does not overwrite newer markers", func(t *testing.T) {
		f := newFixture(t, stubIPLocator{})
		session := f.readySession(t)

		started := make(chan struct{})
		release := make(chan struct{})
		f.provider.On("SearchPlaces", mock.Anything, forCategory("catering.cafe")).
			Run(func(mock.Arguments) {
				close(started)
				<-release
			}).
			Return(samplePlaces("Slow Cafe"), nil).Once()
		f.provider.On("SearchPlaces", mock.Anything, forCategory("healthcare.pharmacy")).
			Return(samplePlaces("Walgreens", "CVS"), nil).Once()

		done := make(chan error, 1)
		go func() { done <- session.SelectCategory(t.Context(), "catering.cafe") }()

		<-started
		require.NoError(t, session.SelectCategory(t.Context(), "healthcare.pharmacy"))
		close(release)
		require.NoError(t, <-done)

		snap := session.Snapshot()
		require.Len(t, snap.Map.Markers, 2)
		assert.Contains(t, snap.Map.Markers[0].Label, "Walgreens")
		assert.Contains(t, snap.Map.Markers[1].Label, "CVS")
		assert.Equal(t, models.Category("healthcare.pharmacy"), snap.Category)
		assert.False(t, snap.Spinner)
		assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.StaleResponses), 0)
	})
}

func TestSearch(t *testing.T) {
	bridge := models.Coordinates{Latitude: 37.819, Longitude: -122.478}

	t.Run("found location moves the map", func(t *testing.T) {
		f := newFixture(t, stubIPLocator{})
		session := f.readySession(t)
		f.provider.On("Geocode", mock.Anything, "Golden Gate Bridge").
			Return(&models.GeocodeResult{Coordinates: bridge, Formatted: "Golden Gate Bridge, SF"}, nil).Once()
		f.provider.On("SearchPlaces", mock.Anything, mock.MatchedBy(func(q geocoding.PlacesQuery) bool {
			return q.Center == bridge
		})).Return(samplePlaces("Vista ATM"), nil).Once()

		require.NoError(t, session.Search(t.Context(), " Golden Gate Bridge "))

		snap := session.Snapshot()
		assert.Equal(t, bridge, snap.Map.View.Center)
		require.Len(t, snap.Map.Markers, 2)
		assert.Equal(t, models.MarkerPlace, snap.Map.Markers[0].Kind)
		assert.Equal(t, models.MarkerSearch, snap.Map.Markers[1].Kind)
		assert.Equal(t, "Golden Gate Bridge, SF", snap.Map.Markers[1].Label)
	})

	t.Run("not found adds a notice", func(t *testing.T) {
		f := newFixture(t, stubIPLocator{})
		session := f.readySession(t)
		f.provider.On("Geocode", mock.Anything, "Atlantis").Return(nil, geocoding.ErrEmptyResponse).Once()

		require.NoError(t, session.Search(t.Context(), "Atlantis"))

		snap := session.Snapshot()
		assert.Equal(t, []string{NoticeLocationNotFound}, snap.Notices)
		assert.Equal(t, sanFrancisco, snap.Map.View.Center)
		assert.Len(t, snap.Map.Markers, 1)
	})

	t.Run("provider error", func(t *testing.T) {
		f := newFixture(t, stubIPLocator{})
		session := f.readySession(t)
		f.provider.On("Geocode", mock.Anything, "Paris").Return(nil, assert.AnError).Once()

		err := session.Search(t.Context(), "Paris")

		require.ErrorIs(t, err, assert.AnError)
		snap := session.Snapshot()
		assert.Equal(t, []string{NoticeSearchFailed}, snap.Notices)
		assert.False(t, snap.Spinner)
	})

	t.Run("blank query", func(t *testing.T) {
		f := newFixture(t, stubIPLocator{})
		session := f.readySession(t)

		require.ErrorIs(t, session.Search(t.Context(), "   "), geocoding.ErrEmptyQuery)
	})
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t, stubIPLocator{})
	session := f.readySession(t)
	f.provider.On("SearchPlaces", mock.Anything, forCategory("parking")).Return(samplePlaces("Lot 1"), nil).Once()

	updates, cancel := session.Subscribe()
	defer cancel()

	require.NoError(t, session.SelectCategory(t.Context(), "parking"))

	var last Snapshot
	for len(updates) > 0 {
		last = <-updates
	}
	assert.Equal(t, models.Category("parking"), last.Category)
	assert.False(t, last.Spinner)
	assert.Len(t, last.Map.Markers, 1)

	cancel()
	_, open := <-updates
	assert.False(t, open)
}

func TestMarkerLabel(t *testing.T) {
	assert.Equal(t, "<strong>Tom &amp; Jerry</strong><br>&lt;b&gt;", markerLabel("Tom & Jerry", "<b>"))
	assert.Equal(t, "Plain", markerLabel("Plain", ""))
}

func TestSpinner(t *testing.T) {
	t.Run("stays on until bootstrap finishes", func(t *testing.T) {
		f := newFixture(t, stubIPLocator{})
		f.provider.On("Reverse", mock.Anything, sanFrancisco).Return("Pier 39", nil).Once()
		f.provider.On("SearchPlaces", mock.Anything, forCategory(models.DefaultCategory)).
			Return(samplePlaces("Chase"), nil).Once()

		session := NewSession(f.backend)
		updates, cancel := session.Subscribe()
		defer cancel()

		require.NoError(t, session.Bootstrap(t.Context(), models.DeviceReport{Coordinates: &sanFrancisco}, ""))

		var seen []Snapshot
		for len(updates) > 0 {
			seen = append(seen, <-updates)
		}
		require.NotEmpty(t, seen)
		for _, snap := range seen[:len(seen)-1] {
			assert.True(t, snap.Spinner, "spinner hidden while %s", snap.State)
			assert.NotEqual(t, StateReady, snap.State)
		}
		last := seen[len(seen)-1]
		assert.Equal(t, StateReady, last.State)
		assert.False(t, last.Spinner)
	})

	t.Run("panicking places provider during bootstrap", func(t *testing.T) {
		f := newFixture(t, stubIPLocator{})
		f.provider.On("Reverse", mock.Anything, sanFrancisco).Return("Pier 39", nil).Once()
		f.provider.On("SearchPlaces", mock.Anything, mock.Anything).
			Panic("not a string, but a float64: 42").Once()

		session := NewSession(f.backend)
		err := session.Bootstrap(t.Context(), models.DeviceReport{Coordinates: &sanFrancisco}, "")

		require.NoError(t, err)
		snap := session.Snapshot()
		assert.Equal(t, StateReady, snap.State)
		assert.False(t, snap.Spinner)
		assert.Empty(t, snap.Map.Markers)
		assert.Equal(t, []string{NoticePlacesFailed}, snap.Notices)
		assert.Contains(t, snap.LastError, "panicked")
	})

	t.Run("panicking places provider on category switch", func(t *testing.T) {
		f := newFixture(t, stubIPLocator{})
		session := f.readySession(t)
		f.provider.On("SearchPlaces", mock.Anything, forCategory("catering.cafe")).
			Panic("boom").Once()

		require.NoError(t, session.SelectCategory(t.Context(), "catering.cafe"))

		snap := session.Snapshot()
		assert.False(t, snap.Spinner)
		assert.Empty(t, snap.Map.Markers)
		assert.Equal(t, []string{NoticePlacesFailed}, snap.Notices)
		assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.PlacesFetches.WithLabelValues("failure")), 0)
	})

	t.Run("hidden after a failed search", func(t *testing.T) {
		f := newFixture(t, stubIPLocator{})
		session := f.readySession(t)
		f.provider.On("Geocode", mock.Anything, "Paris").Return(nil, assert.AnError).Once()

		require.Error(t, session.Search(t.Context(), "Paris"))

		assert.False(t, session.Snapshot().Spinner)
	})
}
