package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/busspass/busspass/pkg/busroutes"
	"github.com/busspass/busspass/pkg/rtdb"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

const (
	ConductorsPath        = "Conductor"
	TravellersPath        = "Traveler"
	BookingsPath          = "Bookings"
	BookingsForOthersPath = "Booking_for_others"
)

var ErrUnknownListing = errors.New("unknown listing")

type DashboardStats struct {
	TotalRoutes       int `json:"totalRoutes"`
	Conductors        int `json:"conductors"`
	Travellers        int `json:"travellers"`
	Bookings          int `json:"bookings"`
	BookingsForOthers int `json:"bookingsForOthers"`
}

// Listing names one of the record collections shown behind a dashboard card.
type Listing string

const (
	ListingConductors        Listing = "conductors"
	ListingTravellers        Listing = "travellers"
	ListingBookings          Listing = "bookings"
	ListingBookingsForOthers Listing = "bookings_for_others"
)

type Dashboard struct {
	Tree rtdb.Tree

	cache    *cache.Cache[string]
	cacheKey string
}

func NewDashboard(tree rtdb.Tree) *Dashboard {
	return &Dashboard{Tree: tree}
}

// WithCache keeps computed stats in Redis for ttl.
func (d *Dashboard) WithCache(client *redis.Client, keyPrefix string, ttl time.Duration) *Dashboard {
	redisStore := redisstore.NewRedis(client, store.WithExpiration(ttl))

	d.cache = cache.New[string](redisStore)
	d.cacheKey = fmt.Sprintf("%s:stats:dashboard", keyPrefix)

	return d
}

func (d *Dashboard) Stats(ctx context.Context) (*DashboardStats, error) {
	if d.cache != nil {
		cached, err := d.cache.Get(ctx, d.cacheKey)
		if err == nil {
			var stats DashboardStats
			if err := json.Unmarshal([]byte(cached), &stats); err == nil {
				return &stats, nil
			}
		}
	}

	stats, err := d.Compute(ctx)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		encoded, _ := json.Marshal(stats)
		if err := d.cache.Set(ctx, d.cacheKey, string(encoded)); err != nil {
			log.Warn().Err(err).Msg("Failed to cache dashboard stats")
		}
	}

	return stats, nil
}

// Compute reads every counted subtree concurrently.
func (d *Dashboard) Compute(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{}

	counts := []struct {
		path   string
		depth  int
		target *int
	}{
		{busroutes.RoutesPath, 1, &stats.TotalRoutes},
		{ConductorsPath, 1, &stats.Conductors},
		{TravellersPath, 1, &stats.Travellers},
		{BookingsPath, 2, &stats.Bookings},
		{BookingsForOthersPath, 2, &stats.BookingsForOthers},
	}

	p := pool.New().WithContext(ctx).WithCancelOnError()
	for _, count := range counts {
		p.Go(func(ctx context.Context) error {
			records, err := d.records(ctx, count.path, count.depth)
			if err != nil {
				return err
			}

			*count.target = len(records)
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	return stats, nil
}

func (d *Dashboard) List(ctx context.Context, listing Listing) ([]any, error) {
	switch listing {
	case ListingConductors:
		return d.records(ctx, ConductorsPath, 1)
	case ListingTravellers:
		return d.records(ctx, TravellersPath, 1)
	case ListingBookings:
		return d.records(ctx, BookingsPath, 2)
	case ListingBookingsForOthers:
		return d.records(ctx, BookingsForOthersPath, 2)
	default:
		return nil, ErrUnknownListing
	}
}

// records flattens the subtree at path depth levels down. Bookings are kept
// per user so they sit two levels below their root.
func (d *Dashboard) records(ctx context.Context, path string, depth int) ([]any, error) {
	var root any
	if err := d.Tree.Get(ctx, path, &root); err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}

	level := []any{root}
	for range depth {
		next := []any{}
		for _, node := range level {
			next = append(next, children(node)...)
		}
		level = next
	}

	return level, nil
}

func children(node any) []any {
	switch node := node.(type) {
	case map[string]any:
		result := []any{}
		for _, key := range slices.Sorted(maps.Keys(node)) {
			if node[key] != nil {
				result = append(result, node[key])
			}
		}
		return result
	case []any:
		result := []any{}
		for _, child := range node {
			if child != nil {
				result = append(result, child)
			}
		}
		return result
	default:
		return nil
	}
}
