package livemap

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/rs/zerolog/log"
)

// FocusZoom is the zoom level used when a marker is clicked.
const FocusZoom = 16

var (
	ErrUnknownMarker = errors.New("no marker for bus")
	ErrFallbackMode  = errors.New("live map is in fallback mode")
	ErrNotReady      = errors.New("live map is not ready")
)

type SelectedBus struct {
	Key           string          `json:"key" groups:"basic,detailed"`
	RouteID       string          `json:"route_id" groups:"basic,detailed"`
	BusInstanceID string          `json:"bus_instance_id" groups:"basic,detailed"`
	Record        TelemetryRecord `json:"record" groups:"basic,detailed"`
}

// MarkerView describes one drawn marker and the record behind it.
type MarkerView struct {
	Key           string          `json:"key" groups:"basic,detailed"`
	RouteID       string          `json:"route_id" groups:"basic,detailed"`
	BusInstanceID string          `json:"bus_instance_id" groups:"basic,detailed"`
	Position      Position        `json:"position" groups:"basic,detailed"`
	Speed         float64         `json:"speed_kmph" groups:"basic,detailed"`
	Record        TelemetryRecord `json:"record" groups:"detailed"`
}

type PassResult struct {
	Created int
	Moved   int
	Removed int
	Invalid int

	// Gated is set when the pass touched no markers because the gate was not
	// ready yet.
	Gated bool
	// Fallback is set when only the coordinate text was updated.
	Fallback bool
}

type trackedMarker struct {
	handle        Marker
	routeID       string
	busInstanceID string
}

// Reconciler keeps one marker per bus with valid coordinates in the latest
// snapshot. The marker map is only ever replaced at the end of Apply.
//
// Reconciler is not safe for concurrent use.
type Reconciler struct {
	gate     *Gate
	provider Provider
	icon     Icon

	markers  map[string]*trackedMarker
	latest   Snapshot
	selected *SelectedBus

	coordinateText string

	clickHandler func(key string)
}

func NewReconciler(gate *Gate, provider Provider, icon Icon) *Reconciler {
	r := &Reconciler{
		gate:           gate,
		provider:       provider,
		icon:           icon,
		markers:        map[string]*trackedMarker{},
		coordinateText: NotAvailableText,
	}
	r.clickHandler = func(key string) {
		if err := r.Click(key); err != nil {
			log.Error().Err(err).Str("bus", key).Msg("Failed to focus bus")
		}
	}

	return r
}

// SetClickHandler replaces what runs when the provider reports a marker click.
// The session uses it to take its lock before calling Click.
func (r *Reconciler) SetClickHandler(handler func(key string)) {
	r.clickHandler = handler
}

// Apply runs one reconciliation pass for snapshot.
func (r *Reconciler) Apply(snapshot Snapshot) (PassResult, error) {
	r.latest = snapshot

	if r.gate.Fallback() {
		r.Abandon()
		r.coordinateText = FallbackText(snapshot)

		return PassResult{Fallback: true}, nil
	}

	if !r.gate.CanReconcile() {
		return PassResult{Gated: true}, nil
	}

	if snapshot.Empty() {
		return r.clear()
	}

	result := PassResult{}
	working := maps.Clone(r.markers)
	seen := map[string]struct{}{}

	var passErr error

	snapshot.Each(func(routeID string, busInstanceID string, record TelemetryRecord) bool {
		key := BusKey(routeID, busInstanceID)

		position, ok := record.Position()
		if !ok {
			log.Warn().
				Str("bus", key).
				Str("latitude", record.Latitude.String()).
				Str("longitude", record.Longitude.String()).
				Msg("Invalid coordinates for bus")
			result.Invalid++
			return true
		}

		seen[key] = struct{}{}

		if existing, exists := working[key]; exists {
			if err := r.provider.MoveMarker(existing.handle, position); err != nil {
				passErr = fmt.Errorf("move marker %s: %w", key, err)
				return false
			}

			existing.routeID = routeID
			existing.busInstanceID = busInstanceID
			result.Moved++
			return true
		}

		handle, err := r.provider.CreateMarker(position, r.icon, markerTitle(routeID, busInstanceID))
		if err != nil {
			passErr = fmt.Errorf("create marker %s: %w", key, err)
			return false
		}

		r.provider.OnMarkerClick(handle, func() {
			r.clickHandler(key)
		})

		working[key] = &trackedMarker{
			handle:        handle,
			routeID:       routeID,
			busInstanceID: busInstanceID,
		}
		result.Created++

		return true
	})

	if passErr != nil {
		r.markers = working
		r.refreshSelection()
		return result, passErr
	}

	for _, key := range slices.Sorted(maps.Keys(working)) {
		if _, ok := seen[key]; ok {
			continue
		}

		if err := r.provider.RemoveMarker(working[key].handle); err != nil {
			r.markers = working
			r.refreshSelection()
			return result, fmt.Errorf("remove marker %s: %w", key, err)
		}

		delete(working, key)
		result.Removed++
	}

	r.markers = working
	r.refreshSelection()

	return result, nil
}

func (r *Reconciler) clear() (PassResult, error) {
	result := PassResult{}

	for _, key := range slices.Sorted(maps.Keys(r.markers)) {
		if err := r.provider.RemoveMarker(r.markers[key].handle); err != nil {
			r.refreshSelection()
			return result, fmt.Errorf("remove marker %s: %w", key, err)
		}

		delete(r.markers, key)
		result.Removed++
	}

	r.selected = nil

	return result, nil
}

// refreshSelection drops the selection when its marker has gone and otherwise
// swaps in the record from the latest snapshot.
func (r *Reconciler) refreshSelection() {
	if r.selected == nil {
		return
	}

	marker, ok := r.markers[r.selected.Key]
	if !ok {
		r.selected = nil
		return
	}

	if record, ok := r.latest.Lookup(marker.routeID, marker.busInstanceID); ok {
		r.selected.RouteID = marker.routeID
		r.selected.BusInstanceID = marker.busInstanceID
		r.selected.Record = record
	}
}

// Click selects the bus behind key and centres the map on it.
func (r *Reconciler) Click(key string) error {
	if r.gate.Fallback() {
		return ErrFallbackMode
	}

	marker, ok := r.markers[key]
	if !ok {
		return fmt.Errorf("%w %s", ErrUnknownMarker, key)
	}

	record, ok := r.latest.Lookup(marker.routeID, marker.busInstanceID)
	if !ok {
		return fmt.Errorf("%w %s", ErrUnknownMarker, key)
	}

	position, ok := record.Position()
	if !ok {
		return fmt.Errorf("%w %s", ErrUnknownMarker, key)
	}

	r.selected = &SelectedBus{
		Key:           key,
		RouteID:       marker.routeID,
		BusInstanceID: marker.busInstanceID,
		Record:        record,
	}

	return r.provider.Focus(position, FocusZoom)
}

// ClearSelection forgets the selected bus without touching the map.
func (r *Reconciler) ClearSelection() {
	r.selected = nil
}

// ShowAll fits the viewport around every marker.
func (r *Reconciler) ShowAll() error {
	if r.gate.Fallback() {
		return ErrFallbackMode
	}
	if !r.gate.CanReconcile() {
		return ErrNotReady
	}
	if len(r.markers) == 0 {
		return nil
	}

	handles := []Marker{}
	for _, key := range slices.Sorted(maps.Keys(r.markers)) {
		handles = append(handles, r.markers[key].handle)
	}

	return r.provider.FitViewport(handles)
}

// Abandon forgets every marker handle without calling the provider. It is
// used when the provider has failed and must not be called again.
func (r *Reconciler) Abandon() {
	if len(r.markers) > 0 {
		log.Warn().Int("markers", len(r.markers)).Msg("Abandoning markers after map provider failure")
	}

	r.markers = map[string]*trackedMarker{}
	r.selected = nil
	r.coordinateText = FallbackText(r.latest)
}

// Keys is the sorted set of bus keys that currently have a marker.
func (r *Reconciler) Keys() []string {
	return slices.Sorted(maps.Keys(r.markers))
}

// Markers describes every marker in key order.
func (r *Reconciler) Markers() []MarkerView {
	views := []MarkerView{}

	for _, key := range r.Keys() {
		marker := r.markers[key]

		record, ok := r.latest.Lookup(marker.routeID, marker.busInstanceID)
		if !ok {
			continue
		}
		position, _ := record.Position()

		views = append(views, MarkerView{
			Key:           key,
			RouteID:       marker.routeID,
			BusInstanceID: marker.busInstanceID,
			Position:      position,
			Speed:         record.Speed(),
			Record:        record,
		})
	}

	return views
}

func (r *Reconciler) Len() int {
	return len(r.markers)
}

func (r *Reconciler) Selected() (SelectedBus, bool) {
	if r.selected == nil {
		return SelectedBus{}, false
	}

	return *r.selected, true
}

// CoordinateText is the plain text position shown instead of the map.
func (r *Reconciler) CoordinateText() string {
	return r.coordinateText
}

func (r *Reconciler) Latest() Snapshot {
	return r.latest
}

func markerTitle(routeID string, busInstanceID string) string {
	return fmt.Sprintf("Route: %s, ID: %s", routeID, busInstanceID)
}
