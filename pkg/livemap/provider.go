package livemap

import "context"

// Marker is an opaque handle to one drawn marker. Only the provider that
// created it knows what is behind it.
type Marker interface {
	ID() string
}

type Icon struct {
	URL     string `json:"url" yaml:"url"`
	Width   int    `json:"width" yaml:"width"`
	Height  int    `json:"height" yaml:"height"`
	AnchorX int    `json:"anchor_x" yaml:"anchor_x"`
	AnchorY int    `json:"anchor_y" yaml:"anchor_y"`
}

var DefaultBusIcon = Icon{
	URL:     "https://cdn-icons-png.flaticon.com/512/684/684908.png",
	Width:   40,
	Height:  40,
	AnchorX: 20,
	AnchorY: 20,
}

type MapOptions struct {
	Center Position
	Zoom   int
	Icon   Icon
}

var DefaultMapOptions = MapOptions{
	Center: Position{Lat: 22.5726, Lng: 88.3639},
	Zoom:   12,
	Icon:   DefaultBusIcon,
}

// Provider draws markers on a map. Implementations must never invoke click or
// authentication failure callbacks synchronously from inside one of these
// methods, the session holds its lock while calling them.
type Provider interface {
	// Init prepares the map and the marker icon. An error here sends the
	// session into fallback mode.
	Init(ctx context.Context, options MapOptions) error

	CreateMarker(position Position, icon Icon, title string) (Marker, error)
	MoveMarker(marker Marker, position Position) error
	RemoveMarker(marker Marker) error
	OnMarkerClick(marker Marker, callback func())

	FitViewport(markers []Marker) error
	Focus(position Position, zoom int) error

	// OnAuthFailure registers a process wide callback for credential
	// failures detected by the provider at any time.
	OnAuthFailure(callback func(reason string))
}
