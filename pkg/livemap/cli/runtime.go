package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/busspass/busspass/pkg/archiver"
	"github.com/busspass/busspass/pkg/config"
	"github.com/busspass/busspass/pkg/database"
	"github.com/busspass/busspass/pkg/livemap"
	"github.com/busspass/busspass/pkg/markerboard"
	"github.com/busspass/busspass/pkg/rtdb"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// TreeOptions selects where the realtime tree comes from.
type TreeOptions struct {
	// Memory uses an in-process tree instead of Firebase
	Memory bool
	// Seed is a JSON document loaded into the in-process tree
	Seed string
}

func OpenTree(ctx context.Context, appConfig *config.Config, options TreeOptions) (rtdb.Tree, error) {
	if options.Memory {
		tree := rtdb.NewMemoryTree()

		if options.Seed != "" {
			document, err := os.ReadFile(options.Seed)
			if err != nil {
				return nil, err
			}
			if err := tree.Load(document); err != nil {
				return nil, err
			}
		}

		log.Info().Str("seed", options.Seed).Msg("Using in-memory realtime tree")

		return tree, nil
	}

	app, err := rtdb.NewFirebaseApp(ctx, rtdb.FirebaseConfig{
		DatabaseURL:    appConfig.Firebase.DatabaseURL,
		ServiceAccount: appConfig.Firebase.ServiceAccount,
		PollInterval:   appConfig.Firebase.PollInterval,
	})
	if err != nil {
		return nil, err
	}

	return rtdb.NewFirebaseTree(ctx, app, appConfig.Firebase.PollInterval)
}

func MapOptions(live config.LiveConfig) livemap.MapOptions {
	return livemap.MapOptions{
		Center: livemap.Position{Lat: live.CenterLat, Lng: live.CenterLng},
		Zoom:   live.Zoom,
		Icon: livemap.Icon{
			URL:     live.IconURL,
			Width:   live.IconSize,
			Height:  live.IconSize,
			AnchorX: live.IconSize / 2,
			AnchorY: live.IconSize / 2,
		},
	}
}

// Runtime is a running live map: the session drawing onto the Redis marker
// board, the click listener and optionally the position archiver.
type Runtime struct {
	Session  *livemap.Session
	Board    *markerboard.Board
	Archiver *archiver.Archiver

	cancel context.CancelFunc
	wg     conc.WaitGroup
}

func Start(ctx context.Context, appConfig *config.Config, tree rtdb.Tree, client *redis.Client, archive bool) (*Runtime, error) {
	runCtx, cancel := context.WithCancel(ctx)

	runtime := &Runtime{
		Board:  markerboard.New(client, appConfig.Redis.KeyPrefix),
		cancel: cancel,
	}

	runtime.Session = livemap.NewSession(tree, runtime.Board, livemap.SessionConfig{
		Path:       appConfig.Live.Path,
		MapOptions: MapOptions(appConfig.Live),
	})

	if archive {
		if err := database.Connect(appConfig.MongoDB); err != nil {
			cancel()
			return nil, fmt.Errorf("connect archive database: %w", err)
		}

		runtime.Archiver = archiver.New(database.GetCollection(database.BusPositionsCollection))
		runtime.Session.AddObserver(runtime.Archiver)

		runtime.wg.Go(func() {
			runtime.Archiver.Run(runCtx)
		})
	}

	if err := runtime.Session.Start(runCtx); err != nil {
		runtime.Stop()
		return nil, err
	}

	runtime.wg.Go(func() {
		if err := runtime.Board.ListenClicks(runCtx); err != nil {
			log.Error().Err(err).Msg("Marker click listener stopped")
		}
	})

	return runtime, nil
}

func (r *Runtime) Stop() {
	if r.Session != nil {
		r.Session.Stop()
	}

	r.cancel()
	r.wg.Wait()

	if r.Archiver != nil {
		database.Disconnect()
	}
}
