package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/UnknownOlympus/compass/internal/geocoding"
	"github.com/UnknownOlympus/compass/internal/locator"
	"github.com/UnknownOlympus/compass/internal/mapview"
	"github.com/UnknownOlympus/compass/internal/metrics"
	"github.com/UnknownOlympus/compass/internal/models"
	"github.com/google/uuid"
)

// State is the bootstrap stage of a session.
type State string

const (
	StateLoading      State = "loading"
	StateLocatingUser State = "locating_user"
	StateReady        State = "ready"
)

// User-facing notices.
const (
	NoticeNoPlaces         = "No places found for this category in your area."
	NoticePlacesFailed     = "Something went wrong while loading places."
	NoticeLocationFailed   = "Unable to determine your location."
	NoticeLocationNotFound = "Location not found!"
	NoticeSearchFailed     = "Something went wrong while searching for that location."
)

const (
	userMarkerTitle  = "Your Location"
	maxNotices       = 20
	subscriberBuffer = 8
)

var (
	ErrNotReady            = errors.New("session is not ready")
	ErrAlreadyStarted      = errors.New("session already bootstrapped")
	ErrLocationUnavailable = errors.New("unable to determine user location")
	ErrSessionNotFound     = errors.New("session not found")
)

// LocationResolver produces the user's position.
type LocationResolver interface {
	Resolve(ctx context.Context, device models.DeviceReport, clientIP string) locator.Resolution
}

// Backend bundles the collaborators shared by every session.
type Backend struct {
	Provider        geocoding.Provider
	ProviderName    string // Name of the provider for metrics labeling
	Resolver        LocationResolver
	Metrics         *metrics.Metrics
	Log             *slog.Logger
	Tiles           mapview.TileLayer
	DefaultCategory models.Category
}

// Location is the resolved user position.
type Location struct {
	Source      models.LocationSource `json:"source"`
	Coordinates models.Coordinates    `json:"coordinates"`
	Address     string                `json:"address"`
}

// Snapshot is what clients render.
type Snapshot struct {
	ID        uuid.UUID        `json:"id"`
	State     State            `json:"state"`
	Category  models.Category  `json:"category"`
	Spinner   bool             `json:"spinner"`
	Location  *Location        `json:"location,omitempty"`
	Map       mapview.Snapshot `json:"map"`
	Notices   []string         `json:"notices"`
	LastError string           `json:"last_error,omitempty"`
}

// Session is the state of one map page: the map, the active category, the spinner and
// the notices shown to the user.
type Session struct {
	id      uuid.UUID
	backend *Backend
	view    *mapview.Map

	mu          sync.Mutex
	state       State
	category    models.Category
	busy        int    // outstanding network calls; the spinner is visible while > 0
	generation  uint64 // incremented by every places fetch
	location    *Location
	notices     []string
	lastErr     error
	lastSeen    time.Time
	subscribers map[chan Snapshot]struct{}
}

// NewSession initializes the map synchronously and leaves the session in StateLoading.
func NewSession(backend *Backend) *Session {
	category := backend.DefaultCategory
	if category == "" {
		category = models.DefaultCategory
	}

	return &Session{
		id:          uuid.New(),
		backend:     backend,
		view:        mapview.New(backend.Tiles),
		state:       StateLoading,
		category:    category,
		notices:     []string{},
		lastSeen:    time.Now(),
		subscribers: make(map[chan Snapshot]struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Bootstrap locates the user, centers the map on them, labels their marker with the
// reverse geocoded address and plots places of the active category.
//
// A failed resolution leaves the session in StateLocatingUser with a notice.
// A failed reverse geocode is not fatal: the marker gets a generic label.
func (s *Session) Bootstrap(ctx context.Context, device models.DeviceReport, clientIP string) error {
	s.mu.Lock()
	if s.state != StateLoading {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateLocatingUser
	s.busy++
	s.touch()
	s.mu.Unlock()
	s.publish()
	defer s.release()

	res := s.backend.Resolver.Resolve(ctx, device, clientIP)
	s.backend.Metrics.LocationResolutions.WithLabelValues(string(res.Source)).Inc()

	if res.Source == models.SourceFailed {
		err := fmt.Errorf("%w: %w", ErrLocationUnavailable, res.Err)
		s.mu.Lock()
		s.lastErr = err
		s.addNotice(NoticeLocationFailed)
		s.mu.Unlock()

		return err
	}

	coords := res.Coordinates
	s.backend.Log.InfoContext(ctx, "User located", "session", s.id, "source", res.Source)
	s.view.SetView(coords, mapview.FocusZoom)

	address, err := s.reverse(ctx, coords)
	if err != nil {
		s.backend.Log.WarnContext(ctx, "Reverse geocoding failed, using generic label", "session", s.id, "error", err)
		address = models.ApproximateLabel
	}
	s.view.SetUserMarker(coords, markerLabel(userMarkerTitle, address))

	s.mu.Lock()
	s.location = &Location{Source: res.Source, Coordinates: coords, Address: address}
	s.mu.Unlock()

	s.fetchAndPlot(ctx, coords)

	s.mu.Lock()
	s.state = StateReady
	s.mu.Unlock()

	return nil
}

// SelectCategory switches the active category and refreshes places around the map center.
func (s *Session) SelectCategory(ctx context.Context, category models.Category) error {
	category = models.Category(strings.TrimSpace(string(category)))
	if category == "" {
		return geocoding.ErrEmptyCategory
	}

	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return ErrNotReady
	}
	s.category = category
	s.touch()
	s.mu.Unlock()

	s.fetchAndPlot(ctx, s.view.Center())

	return nil
}

// Search geocodes query, moves the map there and plots places around it. The match gets
// a search marker in the marker layer. A query without a match only adds a notice.
func (s *Session) Search(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return geocoding.ErrEmptyQuery
	}

	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return ErrNotReady
	}
	s.busy++
	s.touch()
	s.mu.Unlock()
	s.publish()
	defer s.release()

	start := time.Now()
	result, err := s.backend.Provider.Geocode(ctx, query)
	s.observe("geocode", start, err)

	switch {
	case errors.Is(err, geocoding.ErrEmptyResponse) || (err == nil && result == nil):
		s.mu.Lock()
		s.addNotice(NoticeLocationNotFound)
		s.mu.Unlock()
		return nil
	case err != nil:
		s.mu.Lock()
		s.addNotice(NoticeSearchFailed)
		s.lastErr = err
		s.mu.Unlock()
		return fmt.Errorf("failed to search location: %w", err)
	}

	s.view.SetView(result.Coordinates, mapview.FocusZoom)
	gen := s.fetchAndPlot(ctx, result.Coordinates)

	s.mu.Lock()
	if gen == s.generation {
		s.view.AddMarker(result.Coordinates, markerLabel(result.Formatted, ""), models.MarkerSearch)
	}
	s.mu.Unlock()

	return nil
}

// fetchAndPlot clears the marker layer and plots the places of the active category around
// center. Only the latest fetch may touch the layer: a response that arrives after a newer
// fetch has started is dropped. It returns the generation of this fetch.
func (s *Session) fetchAndPlot(ctx context.Context, center models.Coordinates) uint64 {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	query := geocoding.PlacesQuery{
		Category: s.category,
		Center:   center,
		Radius:   geocoding.DefaultRadius,
		Limit:    geocoding.DefaultLimit,
	}
	s.view.ClearMarkers()
	s.busy++
	s.mu.Unlock()
	s.publish()
	defer s.release()

	start := time.Now()
	places, err := s.searchPlaces(ctx, query)
	s.observe("places", start, err)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.backend.Metrics.StaleResponses.Inc()
		s.backend.Log.DebugContext(ctx, "Dropping stale places response",
			"session", s.id, "generation", gen, "current", s.generation)
		return gen
	}

	switch {
	case err != nil:
		s.backend.Log.ErrorContext(ctx, "Failed to fetch places",
			"session", s.id, "category", query.Category, "error", err)
		s.backend.Metrics.PlacesFetches.WithLabelValues("failure").Inc()
		s.lastErr = err
		s.addNotice(NoticePlacesFailed)
	case len(places) == 0:
		s.backend.Metrics.PlacesFetches.WithLabelValues("empty").Inc()
		s.addNotice(NoticeNoPlaces)
	default:
		s.backend.Metrics.PlacesFetches.WithLabelValues("success").Inc()
		for _, place := range places {
			s.view.AddMarker(place.Coordinates, markerLabel(place.Name, place.Address), models.MarkerPlace)
		}
		s.backend.Log.DebugContext(ctx, "Places plotted",
			"session", s.id, "category", query.Category, "count", len(places))
	}

	return gen
}

// searchPlaces reports a panicking provider as an error.
func (s *Session) searchPlaces(ctx context.Context, query geocoding.PlacesQuery) (places []models.Place, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("places provider panicked: %v", r)
		}
	}()

	return s.backend.Provider.SearchPlaces(ctx, query)
}

func (s *Session) reverse(ctx context.Context, coords models.Coordinates) (string, error) {
	start := time.Now()
	address, err := s.backend.Provider.Reverse(ctx, coords)
	s.observe("reverse", start, err)

	return address, err
}

func (s *Session) observe(operation string, start time.Time, err error) {
	s.backend.Metrics.RequestSeconds.WithLabelValues(s.backend.ProviderName, operation).
		Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, geocoding.ErrEmptyResponse) {
		s.backend.Metrics.APIErrors.WithLabelValues(s.backend.ProviderName, operation).Inc()
	}
}

// Snapshot copies the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:       s.id,
		State:    s.state,
		Category: s.category,
		Spinner:  s.busy > 0,
		Map:      s.view.Snapshot(),
		Notices:  make([]string, len(s.notices)),
	}
	copy(snap.Notices, s.notices)
	if s.location != nil {
		location := *s.location
		snap.Location = &location
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}

	return snap
}

// Subscribe returns a channel receiving a snapshot after every change and a function
// that cancels the subscription. Slow subscribers miss intermediate snapshots.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subscriberBuffer)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.subscribers[ch]; ok {
				delete(s.subscribers, ch)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
}

// LastSeen reports when the session was last used.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastSeen
}

func (s *Session) publish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.subscribers) == 0 {
		return
	}

	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}

// close drops every subscriber.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// addNotice expects s.mu to be held.
func (s *Session) addNotice(msg string) {
	s.notices = append(s.notices, msg)
	if len(s.notices) > maxNotices {
		s.notices = s.notices[len(s.notices)-maxNotices:]
	}
}

// release hides the spinner for one finished operation and publishes the result.
func (s *Session) release() {
	s.mu.Lock()
	s.busy--
	s.mu.Unlock()
	s.publish()
}

// touch expects s.mu to be held.
func (s *Session) touch() {
	s.lastSeen = time.Now()
}

func markerLabel(title, body string) string {
	if body == "" {
		return html.EscapeString(title)
	}

	return fmt.Sprintf("<strong>%s</strong><br>%s", html.EscapeString(title), html.EscapeString(body))
}
