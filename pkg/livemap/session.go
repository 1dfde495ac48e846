package livemap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/busspass/busspass/pkg/metrics"
	"github.com/busspass/busspass/pkg/rtdb"
	"github.com/rs/zerolog/log"
)

const DefaultPath = "Bus locations"

type ConnectionStatus string

const (
	ConnectionConnecting   ConnectionStatus = "Connecting..."
	ConnectionConnected    ConnectionStatus = "Connected"
	ConnectionDisconnected ConnectionStatus = "Disconnected"
)

var (
	ErrAlreadyStarted = errors.New("live session already started")
	ErrNoTree         = errors.New("live session has no realtime tree")
)

// SnapshotObserver receives every decoded snapshot after it was reconciled.
type SnapshotObserver interface {
	ObserveSnapshot(snapshot Snapshot, receivedAt time.Time)
}

type SnapshotObserverFunc func(snapshot Snapshot, receivedAt time.Time)

func (f SnapshotObserverFunc) ObserveSnapshot(snapshot Snapshot, receivedAt time.Time) {
	f(snapshot, receivedAt)
}

type SessionConfig struct {
	Path       string
	MapOptions MapOptions
}

type Status struct {
	Mode           string           `json:"mode"`
	Connection     ConnectionStatus `json:"connection"`
	Banner         string           `json:"banner,omitempty"`
	Paused         bool             `json:"paused"`
	CoordinateText string           `json:"coordinate_text"`
	Markers        int              `json:"markers"`
	Selected       *SelectedBus     `json:"selected,omitempty"`
	LastUpdate     *time.Time       `json:"last_update,omitempty"`
}

// Session ties the telemetry subscription, the gate and the reconciler
// together. Every change to reconciler state happens under one mutex so
// snapshots, clicks, pause/resume and gate transitions never interleave.
type Session struct {
	tree     rtdb.Tree
	provider Provider
	config   SessionConfig

	mutex      sync.Mutex
	gate       *Gate
	reconciler *Reconciler
	observers  []SnapshotObserver

	started    bool
	paused     bool
	generation uint64
	token      rtdb.Token
	subscribed bool

	connectionToken rtdb.Token
	connection      ConnectionStatus

	sourceError string
	lastUpdate  time.Time
}

func NewSession(tree rtdb.Tree, provider Provider, config SessionConfig) *Session {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.MapOptions.Zoom == 0 {
		config.MapOptions = DefaultMapOptions
	}

	gate := NewGate()

	s := &Session{
		tree:       tree,
		provider:   provider,
		config:     config,
		gate:       gate,
		reconciler: NewReconciler(gate, provider, config.MapOptions.Icon),
		connection: ConnectionConnecting,
	}

	s.reconciler.SetClickHandler(func(key string) {
		if err := s.Click(key); err != nil {
			log.Error().Err(err).Str("bus", key).Msg("Failed to focus bus")
		}
	})
	gate.OnChange(s.onGateChange)

	return s
}

func (s *Session) AddObserver(observer SnapshotObserver) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.observers = append(s.observers, observer)
}

// Start initialises the map provider and subscribes to the telemetry path.
// A provider failure does not fail Start, the session carries on in
// fallback mode.
func (s *Session) Start(ctx context.Context) error {
	if s.tree == nil {
		return ErrNoTree
	}

	s.mutex.Lock()
	if s.started {
		s.mutex.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true

	s.provider.OnAuthFailure(s.handleAuthFailure)

	if err := s.provider.Init(ctx, s.config.MapOptions); err != nil {
		log.Error().Err(err).Msg("Map provider failed to initialise")
		s.gate.EnterFallback(fmt.Sprintf("Map failed to load: %s. Switching to coordinates display.", err))
	} else {
		s.gate.MarkProviderReady()
	}

	s.gate.MarkSourceReady()
	s.mutex.Unlock()

	connectionToken := s.tree.WatchConnection(s.handleConnection)

	s.mutex.Lock()
	s.connectionToken = connectionToken
	s.mutex.Unlock()

	log.Info().Str("path", s.config.Path).Str("mode", s.Mode().String()).Msg("Live map session started")

	return s.Resume()
}

// Stop detaches from the tree. Markers are left as they are.
func (s *Session) Stop() {
	s.Pause()

	s.mutex.Lock()
	connectionToken := s.connectionToken
	s.connectionToken = 0
	s.mutex.Unlock()

	if connectionToken != 0 {
		s.tree.Unsubscribe(connectionToken)
	}
}

// Pause detaches the telemetry subscription. Snapshots still in flight for the
// old subscription are dropped.
func (s *Session) Pause() {
	s.mutex.Lock()
	s.paused = true
	s.generation++
	token, subscribed := s.token, s.subscribed
	s.subscribed = false
	s.mutex.Unlock()

	if subscribed {
		s.tree.Unsubscribe(token)
		log.Info().Str("path", s.config.Path).Msg("Paused live updates")
	}
}

// Resume replaces any existing subscription with a fresh one. The first value
// it delivers is reconciled as a full resync.
func (s *Session) Resume() error {
	if s.tree == nil {
		return ErrNoTree
	}

	s.mutex.Lock()
	s.paused = false
	s.sourceError = ""
	s.generation++
	generation := s.generation
	previous, subscribed := s.token, s.subscribed
	s.subscribed = false
	s.mutex.Unlock()

	if subscribed {
		s.tree.Unsubscribe(previous)
	}

	token, err := s.tree.Subscribe(s.config.Path,
		func(value rtdb.Value) { s.handleValue(generation, value) },
		func(err error) { s.handleError(generation, err) },
	)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err != nil {
		if generation == s.generation {
			s.sourceError = fmt.Sprintf("Error fetching bus data: %s", err)
		}
		return fmt.Errorf("subscribe to %s: %w", s.config.Path, err)
	}

	if generation != s.generation {
		// Paused, resumed again or failed while subscribing
		s.tree.Unsubscribe(token)
		return nil
	}

	s.token = token
	s.subscribed = true

	return nil
}

func (s *Session) handleValue(generation uint64, value rtdb.Value) {
	snapshot, err := DecodeSnapshot(value)
	if err != nil {
		log.Warn().Err(err).Str("path", s.config.Path).Msg("Treating malformed bus locations as empty")
	}

	receivedAt := time.Now()

	s.mutex.Lock()
	if generation != s.generation {
		s.mutex.Unlock()
		return
	}

	metrics.SnapshotsReceived.Inc()
	s.lastUpdate = receivedAt
	s.reconcile(snapshot)

	observers := append([]SnapshotObserver{}, s.observers...)
	s.mutex.Unlock()

	for _, observer := range observers {
		observer.ObserveSnapshot(snapshot, receivedAt)
	}
}

func (s *Session) handleError(generation uint64, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if generation != s.generation {
		return
	}

	log.Error().Err(err).Str("path", s.config.Path).Msg("Bus location subscription failed")

	s.sourceError = fmt.Sprintf("Error fetching bus data: %s", err)
	s.generation++
	s.subscribed = false
}

func (s *Session) handleConnection(connected bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	status := ConnectionDisconnected
	if connected {
		status = ConnectionConnected
	}

	if status != s.connection {
		log.Info().Str("status", string(status)).Msg("Realtime database connection changed")
	}
	s.connection = status
}

func (s *Session) handleAuthFailure(reason string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.gate.EnterFallback(fmt.Sprintf("Map authentication failed: %s. Switching to coordinates display.", reason))
}

// onGateChange runs with the session lock held.
func (s *Session) onGateChange(from Mode, to Mode) {
	log.Info().Str("from", from.String()).Str("to", to.String()).Msg("Live map mode changed")

	switch to {
	case ModeReady:
		s.reconcile(s.reconciler.Latest())
	case ModeFallback:
		log.Warn().Str("cause", s.gate.Cause()).Msg("Live map switched to coordinate display")
		metrics.FallbackMode.Set(1)
		s.reconcile(s.reconciler.Latest())
	}
}

func (s *Session) reconcile(snapshot Snapshot) {
	start := time.Now()
	result, err := s.reconciler.Apply(snapshot)
	metrics.ObserveReconcileLatency(start)

	metrics.MarkerOperations.WithLabelValues("create").Add(float64(result.Created))
	metrics.MarkerOperations.WithLabelValues("move").Add(float64(result.Moved))
	metrics.MarkerOperations.WithLabelValues("remove").Add(float64(result.Removed))
	metrics.InvalidRecords.Add(float64(result.Invalid))
	metrics.LiveMarkers.Set(float64(s.reconciler.Len()))

	switch {
	case err != nil:
		metrics.ReconcilePasses.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("Map provider failed during reconciliation")
	case result.Fallback:
		metrics.ReconcilePasses.WithLabelValues("fallback").Inc()
	case result.Gated:
		metrics.ReconcilePasses.WithLabelValues("gated").Inc()
	default:
		metrics.ReconcilePasses.WithLabelValues("applied").Inc()
		log.Debug().
			Int("created", result.Created).
			Int("moved", result.Moved).
			Int("removed", result.Removed).
			Int("invalid", result.Invalid).
			Msg("Reconciled bus markers")
	}
}

func (s *Session) Click(key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.reconciler.Click(key)
}

func (s *Session) ShowAll() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.reconciler.ShowAll()
}

func (s *Session) ClearSelection() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.reconciler.ClearSelection()
}

func (s *Session) Mode() Mode {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.gate.Mode()
}

func (s *Session) Markers() []MarkerView {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.reconciler.Markers()
}

func (s *Session) Marker(key string) (MarkerView, bool) {
	for _, marker := range s.Markers() {
		if marker.Key == key {
			return marker, true
		}
	}

	return MarkerView{}, false
}

func (s *Session) Selected() (SelectedBus, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.reconciler.Selected()
}

// Snapshot is the latest snapshot received, whether or not it was drawn.
func (s *Session) Snapshot() Snapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.reconciler.Latest()
}

func (s *Session) Status() Status {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	status := Status{
		Mode:           s.gate.Mode().String(),
		Connection:     s.connection,
		Paused:         s.paused,
		CoordinateText: s.reconciler.CoordinateText(),
		Markers:        s.reconciler.Len(),
	}

	switch {
	case s.sourceError != "":
		status.Banner = s.sourceError
	case s.gate.Fallback():
		status.Banner = s.gate.Cause()
	}

	if selected, ok := s.reconciler.Selected(); ok {
		status.Selected = &selected
	}

	if !s.lastUpdate.IsZero() {
		lastUpdate := s.lastUpdate
		status.LastUpdate = &lastUpdate
	}

	return status
}
