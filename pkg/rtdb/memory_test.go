package rtdb

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stop struct {
	Name string `json:"name"`
	Lat  string `json:"lat"`
}

func TestMemoryTreeGetSet(t *testing.T) {
	ctx := context.Background()
	tree := NewMemoryTree()

	require.NoError(t, tree.Set(ctx, "/all_routes/12A", []stop{{Name: "Esplanade", Lat: "22.56"}, {Name: "Howrah", Lat: "22.58"}}))

	var stops []stop
	require.NoError(t, tree.Get(ctx, "all_routes/12A", &stops))
	assert.Equal(t, []stop{{Name: "Esplanade", Lat: "22.56"}, {Name: "Howrah", Lat: "22.58"}}, stops)

	var name string
	require.NoError(t, tree.Get(ctx, "all_routes/12A/1/name", &name))
	assert.Equal(t, "Howrah", name)

	var missing map[string]any
	require.NoError(t, tree.Get(ctx, "nothing/here", &missing))
	assert.Nil(t, missing)
}

func TestMemoryTreeDeletePrunesParents(t *testing.T) {
	ctx := context.Background()
	tree := NewMemoryTree()

	require.NoError(t, tree.Set(ctx, "emergency/a/title", "Breakdown"))
	require.NoError(t, tree.Delete(ctx, "emergency/a/title"))

	var root map[string]any
	require.NoError(t, tree.Get(ctx, "", &root))
	assert.Nil(t, root)
}

func TestMemoryTreeUpdate(t *testing.T) {
	ctx := context.Background()
	tree := NewMemoryTree()

	require.NoError(t, tree.Set(ctx, "emergency/a", map[string]any{"title": "Breakdown", "status": "pending"}))
	require.NoError(t, tree.Update(ctx, "emergency/a", map[string]any{"status": "approved", "meta/by": "admin"}))

	var report map[string]any
	require.NoError(t, tree.Get(ctx, "emergency/a", &report))
	assert.Equal(t, map[string]any{
		"title":  "Breakdown",
		"status": "approved",
		"meta":   map[string]any{"by": "admin"},
	}, report)
}

func TestMemoryTreePush(t *testing.T) {
	ctx := context.Background()
	tree := NewMemoryTree()

	first, err := tree.Push(ctx, "emergency", map[string]any{"title": "one"})
	require.NoError(t, err)
	second, err := tree.Push(ctx, "emergency", map[string]any{"title": "two"})
	require.NoError(t, err)

	assert.Less(t, first, second)

	var reports map[string]map[string]string
	require.NoError(t, tree.Get(ctx, "emergency", &reports))
	assert.Equal(t, "two", reports[second]["title"])
}

func TestMemoryTreeSubscribe(t *testing.T) {
	ctx := context.Background()
	tree := NewMemoryTree()

	require.NoError(t, tree.Set(ctx, "Bus locations/R1/B1/latitude", "1"))

	values := []string{}
	token, err := tree.Subscribe("Bus locations", func(value Value) {
		values = append(values, string(value))
	}, func(err error) {
		t.Fatalf("unexpected error %v", err)
	})
	require.NoError(t, err)

	require.NoError(t, tree.Set(ctx, "Bus locations/R1/B1/latitude", "2"))
	require.NoError(t, tree.Set(ctx, "Conductor/c1", "Ravi"))
	require.NoError(t, tree.Set(ctx, "", nil))

	tree.Unsubscribe(token)
	require.NoError(t, tree.Set(ctx, "Bus locations/R1/B1/latitude", "3"))

	assert.Equal(t, []string{
		`{"R1":{"B1":{"latitude":"1"}}}`,
		`{"R1":{"B1":{"latitude":"2"}}}`,
		`null`,
	}, values)
}

func TestMemoryTreeFailAndConnection(t *testing.T) {
	tree := NewMemoryTree()

	var failure error
	_, err := tree.Subscribe("Bus locations", func(Value) {}, func(err error) { failure = err })
	require.NoError(t, err)

	states := []bool{}
	tree.WatchConnection(func(connected bool) { states = append(states, connected) })

	tree.SetConnected(false)
	tree.SetConnected(false)
	tree.SetConnected(true)

	tree.Fail("Bus locations", errors.New("permission denied"))

	assert.EqualError(t, failure, "permission denied")
	assert.Equal(t, 0, tree.Subscribers("Bus locations"))
	assert.Equal(t, []bool{true, false, true}, states)
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "all_routes/12A/0", JoinPath("/all_routes/", "12A", "0"))
	assert.Equal(t, "a/b", JoinPath("a//b"))
}

func TestChildrenOfIndexedNodes(t *testing.T) {
	ctx := context.Background()
	tree := NewMemoryTree()

	require.NoError(t, tree.Set(ctx, "all_routes/1", []stop{{Name: "Esplanade"}}))
	require.NoError(t, tree.Set(ctx, "all_routes/2", []stop{{Name: "Howrah"}}))

	var raw Value
	require.NoError(t, tree.Get(ctx, "all_routes", &raw))
	assert.Equal(t, byte('['), raw[0])

	children, err := Children(raw)
	require.NoError(t, err)
	assert.Len(t, children, 2)
	assert.JSONEq(t, `[{"name":"Esplanade","lat":""}]`, string(children["1"]))
	assert.JSONEq(t, `[{"name":"Howrah","lat":""}]`, string(children["2"]))

	children, err = Children(Value(`{"a":{"x":1},"b":null}`))
	require.NoError(t, err)
	assert.Len(t, children, 1)
	assert.Contains(t, children, "a")

	children, err = Children(Value(`null`))
	require.NoError(t, err)
	assert.Nil(t, children)

	_, err = Children(Value(`"text"`))
	assert.ErrorIs(t, err, ErrNotContainer)
}

func TestCompareKeys(t *testing.T) {
	keys := []string{"b", "10", "2", "a"}
	slices.SortFunc(keys, CompareKeys)
	assert.Equal(t, []string{"2", "10", "a", "b"}, keys)
}
