package livemap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/busspass/busspass/pkg/rtdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bus(lat string, lng string) map[string]any {
	return map[string]any{"latitude": lat, "longitude": lng}
}

func startSession(t *testing.T, provider *fakeProvider) (*Session, *rtdb.MemoryTree) {
	tree := rtdb.NewMemoryTree()
	session := NewSession(tree, provider, SessionConfig{})

	require.NoError(t, session.Start(context.Background()))
	t.Cleanup(session.Stop)

	return session, tree
}

func TestSessionReconcilesTreeUpdates(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider()
	session, tree := startSession(t, provider)

	assert.Equal(t, ModeReady, session.Mode())
	assert.Equal(t, 1, tree.Subscribers(DefaultPath))

	require.NoError(t, tree.Set(ctx, "Bus locations/R1/B1", bus("22.57", "88.36")))
	assert.Equal(t, []string{"R1-B1"}, keys(session.Markers()))

	require.NoError(t, tree.Set(ctx, "Bus locations/R1/B1/latitude", "22.58"))
	assert.Equal(t, Position{Lat: 22.58, Lng: 88.36}, session.Markers()[0].Position)
	assert.Equal(t, 1, provider.created)

	require.NoError(t, tree.Delete(ctx, "Bus locations"))
	assert.Empty(t, session.Markers())

	status := session.Status()
	assert.Equal(t, "ready", status.Mode)
	assert.Equal(t, ConnectionConnected, status.Connection)
	assert.Empty(t, status.Banner)
	assert.NotNil(t, status.LastUpdate)
}

func TestSessionAppliesExistingValueOnStart(t *testing.T) {
	tree := rtdb.NewMemoryTree()
	require.NoError(t, tree.Load([]byte(`{"Bus locations": {"R1": {"B1": {"latitude": "1", "longitude": "2"}}}}`)))

	provider := newFakeProvider()
	session := NewSession(tree, provider, SessionConfig{})
	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()

	assert.Equal(t, []string{"R1-B1"}, keys(session.Markers()))
	assert.ErrorIs(t, session.Start(context.Background()), ErrAlreadyStarted)
}

func TestSessionWithoutTree(t *testing.T) {
	session := NewSession(nil, newFakeProvider(), SessionConfig{})

	assert.ErrorIs(t, session.Start(context.Background()), ErrNoTree)
	assert.ErrorIs(t, session.Resume(), ErrNoTree)
	assert.Equal(t, ModeWaiting, session.Mode())
	session.Stop()
}

func TestSessionNumericRouteAndBusIDs(t *testing.T) {
	tree := rtdb.NewMemoryTree()
	require.NoError(t, tree.Load([]byte(`{"Bus locations": {
		"1": {"0": {"latitude": "22.57", "longitude": "88.36"}, "1": {"latitude": "22.58", "longitude": "88.37"}},
		"2": {"0": {"latitude": "22.59", "longitude": "88.38"}}
	}}`)))

	var raw rtdb.Value
	require.NoError(t, tree.Get(context.Background(), DefaultPath, &raw))
	require.Equal(t, byte('['), raw[0])

	provider := newFakeProvider()
	session := NewSession(tree, provider, SessionConfig{})
	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()

	assert.Equal(t, []string{"1-0", "1-1", "2-0"}, keys(session.Markers()))
	assert.Equal(t, 3, provider.created)
	assert.Equal(t, ModeReady, session.Mode())

	require.NoError(t, tree.Delete(context.Background(), "Bus locations/1/1"))
	assert.Equal(t, []string{"1-0", "2-0"}, keys(session.Markers()))
}

func TestSessionPauseResume(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider()
	session, tree := startSession(t, provider)

	require.NoError(t, tree.Set(ctx, "Bus locations/R1/B1", bus("1", "1")))

	session.Pause()
	assert.Equal(t, 0, tree.Subscribers(DefaultPath))
	assert.True(t, session.Status().Paused)

	require.NoError(t, tree.Set(ctx, "Bus locations/R1/B2", bus("2", "2")))
	assert.Equal(t, []string{"R1-B1"}, keys(session.Markers()))

	require.NoError(t, session.Resume())
	require.NoError(t, session.Resume())

	assert.Equal(t, 1, tree.Subscribers(DefaultPath))
	assert.False(t, session.Status().Paused)
	assert.Equal(t, []string{"R1-B1", "R1-B2"}, keys(session.Markers()))
	assert.Equal(t, 2, provider.created)
}

func TestSessionDropsStaleGeneration(t *testing.T) {
	provider := newFakeProvider()
	session, _ := startSession(t, provider)

	session.mutex.Lock()
	stale := session.generation - 1
	session.mutex.Unlock()

	session.handleValue(stale, rtdb.Value(`{"R1": {"B1": {"latitude": "1", "longitude": "2"}}}`))

	assert.Empty(t, session.Markers())
	assert.Equal(t, 0, provider.created)
}

func TestSessionProviderInitFailure(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider()
	provider.initErr = errors.New("invalid key")

	session, tree := startSession(t, provider)

	require.NoError(t, tree.Set(ctx, "Bus locations/R1/B1", bus("22.5726", "88.3639")))

	status := session.Status()
	assert.Equal(t, "fallback", status.Mode)
	assert.Equal(t, "Map failed to load: invalid key. Switching to coordinates display.", status.Banner)
	assert.Equal(t, "Lat: 22.572600, Lng: 88.363900", status.CoordinateText)
	assert.Equal(t, 0, provider.callCount())

	require.NoError(t, tree.Delete(ctx, "Bus locations/R1"))
	assert.Equal(t, NotAvailableText, session.Status().CoordinateText)
}

func TestSessionAuthFailureForcesFallback(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider()
	session, tree := startSession(t, provider)

	require.NoError(t, tree.Set(ctx, "Bus locations/R1/B1", bus("1", "2")))
	require.NoError(t, session.Click("R1-B1"))

	calls := provider.callCount()
	provider.failAuth("RefererNotAllowedMapError")

	status := session.Status()
	assert.Equal(t, "fallback", status.Mode)
	assert.Contains(t, status.Banner, "RefererNotAllowedMapError")
	assert.Nil(t, status.Selected)
	assert.Equal(t, 0, status.Markers)

	require.NoError(t, tree.Set(ctx, "Bus locations/R1/B2", bus("3", "4")))

	assert.Equal(t, calls, provider.callCount())
	assert.Equal(t, "Lat: 1.000000, Lng: 2.000000", session.Status().CoordinateText)
}

func TestSessionSourceErrorStopsUpdates(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider()
	session, tree := startSession(t, provider)

	tree.Fail(DefaultPath, errors.New("permission denied"))

	assert.Equal(t, "Error fetching bus data: permission denied", session.Status().Banner)
	assert.Equal(t, 0, tree.Subscribers(DefaultPath))

	require.NoError(t, tree.Set(ctx, "Bus locations/R1/B1", bus("1", "2")))
	assert.Empty(t, session.Markers())

	require.NoError(t, session.Resume())
	assert.Empty(t, session.Status().Banner)
	assert.Len(t, session.Markers(), 1)
}

func TestSessionConnectionStatus(t *testing.T) {
	provider := newFakeProvider()
	session, tree := startSession(t, provider)

	tree.SetConnected(false)
	assert.Equal(t, ConnectionDisconnected, session.Status().Connection)

	tree.SetConnected(true)
	assert.Equal(t, ConnectionConnected, session.Status().Connection)
}

func TestSessionObservers(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider()

	tree := rtdb.NewMemoryTree()
	session := NewSession(tree, provider, SessionConfig{})

	var mutex sync.Mutex
	received := []Snapshot{}
	session.AddObserver(SnapshotObserverFunc(func(snapshot Snapshot, _ time.Time) {
		mutex.Lock()
		defer mutex.Unlock()
		received = append(received, snapshot)
	}))

	require.NoError(t, session.Start(ctx))
	defer session.Stop()

	require.NoError(t, tree.Set(ctx, "Bus locations/R1/B1", bus("1", "2")))

	mutex.Lock()
	defer mutex.Unlock()

	require.Len(t, received, 2)
	assert.True(t, received[0].Empty())
	assert.Equal(t, Text("1"), received[1]["R1"]["B1"].Latitude)
}

func TestSessionClickThroughProvider(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider()
	session, tree := startSession(t, provider)

	require.NoError(t, tree.Set(ctx, "Bus locations/R1/B1", map[string]any{
		"latitude":        "22.57",
		"longitude":       "88.36",
		"conductor name":  "Asha",
		"conductor phone": "9000000000",
	}))

	require.True(t, provider.click(Position{Lat: 22.57, Lng: 88.36}))

	selected, ok := session.Selected()
	require.True(t, ok)
	assert.Equal(t, Text("Asha"), selected.Record.ConductorName)

	require.NoError(t, session.ShowAll())
	assert.Len(t, provider.fitted, 1)

	session.ClearSelection()
	_, ok = session.Selected()
	assert.False(t, ok)
}

func keys(markers []MarkerView) []string {
	keys := []string{}
	for _, marker := range markers {
		keys = append(keys, marker.Key)
	}

	return keys
}
