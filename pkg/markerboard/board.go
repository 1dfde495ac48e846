package markerboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/busspass/busspass/pkg/livemap"
	"github.com/busspass/busspass/pkg/redis_client"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var ErrUnknownMarker = errors.New("unknown marker")

type EventType string

const (
	EventCreated  EventType = "created"
	EventMoved    EventType = "moved"
	EventRemoved  EventType = "removed"
	EventViewport EventType = "viewport"
)

type MarkerState struct {
	ID    string       `json:"id"`
	Title string       `json:"title"`
	Lat   float64      `json:"lat"`
	Lng   float64      `json:"lng"`
	Icon  livemap.Icon `json:"icon"`
}

type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

type Viewport struct {
	Center *livemap.Position `json:"center,omitempty"`
	Zoom   int               `json:"zoom,omitempty"`
	Bounds *Bounds           `json:"bounds,omitempty"`
}

type Event struct {
	Type     EventType    `json:"type"`
	Marker   *MarkerState `json:"marker,omitempty"`
	Viewport *Viewport    `json:"viewport,omitempty"`
}

var _ livemap.Provider = (*Board)(nil)

type marker struct {
	id string
}

func (m marker) ID() string {
	return m.id
}

// Board is a map provider that keeps markers and the viewport in Redis for
// browser clients to draw. Clients publish clicked marker ids on the clicks
// channel.
type Board struct {
	client *redis.Client
	prefix string

	mutex   sync.Mutex
	nextID  uint64
	markers map[string]*MarkerState
	clicks  map[string]func()

	authCallbacks []func(string)
	authFailed    bool
}

func New(client *redis.Client, prefix string) *Board {
	return &Board{
		client:  client,
		prefix:  prefix,
		markers: map[string]*MarkerState{},
		clicks:  map[string]func(){},
	}
}

func (b *Board) MarkersKey() string {
	return redis_client.Key(b.prefix, "markers")
}

func (b *Board) ViewportKey() string {
	return redis_client.Key(b.prefix, "viewport")
}

func (b *Board) EventsChannel() string {
	return redis_client.Key(b.prefix, "markers", "events")
}

func (b *Board) ClicksChannel() string {
	return redis_client.Key(b.prefix, "markers", "clicks")
}

// Init clears markers left behind by an earlier run and centres the map.
func (b *Board) Init(ctx context.Context, options livemap.MapOptions) error {
	if err := b.check(b.client.Ping(ctx).Err()); err != nil {
		return fmt.Errorf("marker board unavailable: %w", err)
	}

	if err := b.check(b.client.Del(ctx, b.MarkersKey()).Err()); err != nil {
		return err
	}

	center := options.Center

	return b.setViewport(ctx, Viewport{Center: &center, Zoom: options.Zoom})
}

func (b *Board) CreateMarker(position livemap.Position, icon livemap.Icon, title string) (livemap.Marker, error) {
	b.mutex.Lock()
	b.nextID++
	state := &MarkerState{
		ID:    fmt.Sprintf("marker-%d", b.nextID),
		Title: title,
		Lat:   position.Lat,
		Lng:   position.Lng,
		Icon:  icon,
	}
	b.mutex.Unlock()

	if err := b.store(state, EventCreated); err != nil {
		return nil, err
	}

	b.mutex.Lock()
	b.markers[state.ID] = state
	b.mutex.Unlock()

	return marker{id: state.ID}, nil
}

func (b *Board) MoveMarker(m livemap.Marker, position livemap.Position) error {
	b.mutex.Lock()
	current, ok := b.markers[m.ID()]
	if !ok {
		b.mutex.Unlock()
		return fmt.Errorf("%w %s", ErrUnknownMarker, m.ID())
	}
	moved := *current
	moved.Lat = position.Lat
	moved.Lng = position.Lng
	b.mutex.Unlock()

	if err := b.store(&moved, EventMoved); err != nil {
		return err
	}

	b.mutex.Lock()
	b.markers[moved.ID] = &moved
	b.mutex.Unlock()

	return nil
}

func (b *Board) RemoveMarker(m livemap.Marker) error {
	ctx := context.Background()

	b.mutex.Lock()
	state, ok := b.markers[m.ID()]
	b.mutex.Unlock()

	if !ok {
		return fmt.Errorf("%w %s", ErrUnknownMarker, m.ID())
	}

	if err := b.check(b.client.HDel(ctx, b.MarkersKey(), state.ID).Err()); err != nil {
		return err
	}

	b.mutex.Lock()
	delete(b.markers, state.ID)
	delete(b.clicks, state.ID)
	b.mutex.Unlock()

	return b.publish(ctx, Event{Type: EventRemoved, Marker: state})
}

func (b *Board) OnMarkerClick(m livemap.Marker, callback func()) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.clicks[m.ID()] = callback
}

func (b *Board) FitViewport(markers []livemap.Marker) error {
	if len(markers) == 0 {
		return nil
	}

	b.mutex.Lock()
	var bounds *Bounds
	for _, m := range markers {
		state, ok := b.markers[m.ID()]
		if !ok {
			continue
		}

		if bounds == nil {
			bounds = &Bounds{South: state.Lat, North: state.Lat, West: state.Lng, East: state.Lng}
			continue
		}

		bounds.South = min(bounds.South, state.Lat)
		bounds.North = max(bounds.North, state.Lat)
		bounds.West = min(bounds.West, state.Lng)
		bounds.East = max(bounds.East, state.Lng)
	}
	b.mutex.Unlock()

	if bounds == nil {
		return nil
	}

	return b.setViewport(context.Background(), Viewport{Bounds: bounds})
}

func (b *Board) Focus(position livemap.Position, zoom int) error {
	return b.setViewport(context.Background(), Viewport{Center: &position, Zoom: zoom})
}

func (b *Board) OnAuthFailure(callback func(reason string)) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.authCallbacks = append(b.authCallbacks, callback)
}

// Click runs the click callback registered for the marker id.
func (b *Board) Click(id string) error {
	b.mutex.Lock()
	callback, ok := b.clicks[id]
	b.mutex.Unlock()

	if !ok {
		return fmt.Errorf("%w %s", ErrUnknownMarker, id)
	}

	callback()

	return nil
}

// ListenClicks forwards marker ids published by browser clients to Click
// until ctx is done.
func (b *Board) ListenClicks(ctx context.Context) error {
	subscription := b.client.Subscribe(ctx, b.ClicksChannel())
	defer subscription.Close()

	if _, err := subscription.Receive(ctx); err != nil {
		return b.check(err)
	}

	messages := subscription.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-messages:
			if !ok {
				return nil
			}

			if err := b.Click(strings.TrimSpace(message.Payload)); err != nil {
				log.Warn().Err(err).Msg("Ignoring click for unknown marker")
			}
		}
	}
}

// Markers reads the marker states currently stored in Redis.
func (b *Board) Markers(ctx context.Context) ([]MarkerState, error) {
	values, err := b.client.HGetAll(ctx, b.MarkersKey()).Result()
	if err != nil {
		return nil, b.check(err)
	}

	states := []MarkerState{}
	for _, value := range values {
		var state MarkerState
		if err := json.Unmarshal([]byte(value), &state); err != nil {
			return nil, err
		}
		states = append(states, state)
	}

	return states, nil
}

func (b *Board) Viewport(ctx context.Context) (Viewport, error) {
	var viewport Viewport

	value, err := b.client.Get(ctx, b.ViewportKey()).Bytes()
	if err != nil {
		return viewport, b.check(err)
	}

	err = json.Unmarshal(value, &viewport)
	return viewport, err
}

func (b *Board) store(state *MarkerState, eventType EventType) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	encoded, err := json.Marshal(state)
	if err != nil {
		return err
	}

	if err := b.check(b.client.HSet(ctx, b.MarkersKey(), state.ID, encoded).Err()); err != nil {
		return err
	}

	return b.publish(ctx, Event{Type: eventType, Marker: state})
}

func (b *Board) setViewport(ctx context.Context, viewport Viewport) error {
	encoded, err := json.Marshal(viewport)
	if err != nil {
		return err
	}

	if err := b.check(b.client.Set(ctx, b.ViewportKey(), encoded, 0).Err()); err != nil {
		return err
	}

	return b.publish(ctx, Event{Type: EventViewport, Viewport: &viewport})
}

func (b *Board) publish(ctx context.Context, event Event) error {
	encoded, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return b.check(b.client.Publish(ctx, b.EventsChannel(), encoded).Err())
}

// check reports Redis credential errors to the auth failure callbacks once.
// The callbacks run on their own goroutine so callers holding locks are safe.
func (b *Board) check(err error) error {
	if err == nil || !isAuthError(err) {
		return err
	}

	b.mutex.Lock()
	if b.authFailed {
		b.mutex.Unlock()
		return err
	}
	b.authFailed = true
	callbacks := append([]func(string){}, b.authCallbacks...)
	b.mutex.Unlock()

	log.Error().Err(err).Msg("Marker board rejected credentials")

	reason := err.Error()
	go func() {
		for _, callback := range callbacks {
			callback(reason)
		}
	}()

	return err
}

func isAuthError(err error) bool {
	message := err.Error()

	return strings.HasPrefix(message, "NOAUTH") || strings.HasPrefix(message, "WRONGPASS")
}
