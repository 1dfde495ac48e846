package stats

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/busspass/busspass/pkg/rtdb"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const document = `{
	"all_routes": {
		"12A": [{"name": "Esplanade", "lat": "22.56", "lng": "88.35", "ishelper": "false"}],
		"7": [{"name": "Sealdah", "lat": "22.56", "lng": "88.37", "ishelper": "false"}]
	},
	"Conductor": {
		"c1": {"name": "Ravi", "bus": "12A"},
		"c2": {"name": "Asha", "bus": "7"}
	},
	"Traveler": {
		"t1": {"name": "Mina", "walletBalance": 120}
	},
	"Bookings": {
		"t1": {"b1": {"routeNumber": "12A"}, "b2": {"routeNumber": "7"}},
		"t2": {"b3": {"routeNumber": "7"}}
	}
}`

func loadTree(t *testing.T) *rtdb.MemoryTree {
	tree := rtdb.NewMemoryTree()
	require.NoError(t, tree.Load([]byte(document)))

	return tree
}

func TestCompute(t *testing.T) {
	dashboard := NewDashboard(loadTree(t))

	stats, err := dashboard.Compute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, &DashboardStats{
		TotalRoutes:       2,
		Conductors:        2,
		Travellers:        1,
		Bookings:          3,
		BookingsForOthers: 0,
	}, stats)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	dashboard := NewDashboard(loadTree(t))

	conductors, err := dashboard.List(ctx, ListingConductors)
	require.NoError(t, err)
	require.Len(t, conductors, 2)
	assert.Equal(t, "Ravi", conductors[0].(map[string]any)["name"])

	bookings, err := dashboard.List(ctx, ListingBookings)
	require.NoError(t, err)
	assert.Len(t, bookings, 3)

	others, err := dashboard.List(ctx, ListingBookingsForOthers)
	require.NoError(t, err)
	assert.Empty(t, others)

	_, err = dashboard.List(ctx, Listing("buses"))
	assert.ErrorIs(t, err, ErrUnknownListing)
}

func TestStatsCached(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	tree := loadTree(t)
	dashboard := NewDashboard(tree).WithCache(client, "busspass", time.Minute)

	stats, err := dashboard.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Conductors)
	assert.True(t, server.Exists("busspass:stats:dashboard"))

	require.NoError(t, tree.Set(ctx, "Conductor/c3", map[string]any{"name": "Dev"}))

	stats, err = dashboard.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Conductors)

	server.FastForward(2 * time.Minute)

	stats, err = dashboard.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Conductors)
}
