package livemap

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type fakeMarker struct {
	id       string
	position Position
	title    string
}

func (m *fakeMarker) ID() string {
	return m.id
}

// fakeProvider records every call so tests can count operations.
type fakeProvider struct {
	mutex sync.Mutex

	initErr    error
	failCreate int
	failMove   bool

	nextID  int
	markers map[string]*fakeMarker
	clicks  map[string]func()
	auth    []func(string)

	created int
	moved   int
	removed int
	calls   int

	fitted    []string
	focused   *Position
	focusZoom int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		markers: map[string]*fakeMarker{},
		clicks:  map[string]func(){},
	}
}

func (p *fakeProvider) Init(_ context.Context, _ MapOptions) error {
	return p.initErr
}

func (p *fakeProvider) CreateMarker(position Position, _ Icon, title string) (Marker, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.calls++
	if p.failCreate > 0 && p.created+1 >= p.failCreate {
		return nil, errors.New("marker quota exceeded")
	}

	p.nextID++
	marker := &fakeMarker{id: fmt.Sprintf("m%d", p.nextID), position: position, title: title}
	p.markers[marker.id] = marker
	p.created++

	return marker, nil
}

func (p *fakeProvider) MoveMarker(marker Marker, position Position) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.calls++
	if p.failMove {
		return errors.New("map went away")
	}

	p.markers[marker.ID()].position = position
	p.moved++

	return nil
}

func (p *fakeProvider) RemoveMarker(marker Marker) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.calls++
	delete(p.markers, marker.ID())
	delete(p.clicks, marker.ID())
	p.removed++

	return nil
}

func (p *fakeProvider) OnMarkerClick(marker Marker, callback func()) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.clicks[marker.ID()] = callback
}

func (p *fakeProvider) FitViewport(markers []Marker) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.calls++
	p.fitted = []string{}
	for _, marker := range markers {
		p.fitted = append(p.fitted, marker.ID())
	}

	return nil
}

func (p *fakeProvider) Focus(position Position, zoom int) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.calls++
	p.focused = &position
	p.focusZoom = zoom

	return nil
}

func (p *fakeProvider) OnAuthFailure(callback func(reason string)) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.auth = append(p.auth, callback)
}

func (p *fakeProvider) failAuth(reason string) {
	p.mutex.Lock()
	callbacks := append([]func(string){}, p.auth...)
	p.mutex.Unlock()

	for _, callback := range callbacks {
		callback(reason)
	}
}

// click simulates a user clicking the marker drawn at position.
func (p *fakeProvider) click(position Position) bool {
	p.mutex.Lock()
	var callback func()
	for id, marker := range p.markers {
		if marker.position == position {
			callback = p.clicks[id]
		}
	}
	p.mutex.Unlock()

	if callback == nil {
		return false
	}

	callback()
	return true
}

func (p *fakeProvider) positions() map[string]Position {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	positions := map[string]Position{}
	for _, marker := range p.markers {
		positions[marker.title] = marker.position
	}

	return positions
}

func (p *fakeProvider) callCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.calls
}
