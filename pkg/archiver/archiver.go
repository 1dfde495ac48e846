package archiver

import (
	"context"
	"time"

	"github.com/busspass/busspass/pkg/livemap"
	"github.com/busspass/busspass/pkg/metrics"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Location struct {
	Type        string
	Coordinates []float64
}

// BusPosition is the last known position of one bus instance.
type BusPosition struct {
	BusKey        string
	RouteID       string
	BusInstanceID string

	Location  Location
	SpeedKmph float64
	Direction string

	ConductorName  string
	ConductorPhone string

	ReportedTimestamp string
	ReportedDate      string

	ModificationDateTime time.Time
}

type BulkWriter interface {
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
}

type pendingSnapshot struct {
	snapshot   livemap.Snapshot
	receivedAt time.Time
}

// Archiver upserts the last known position of every bus into MongoDB. Only
// the newest snapshot waiting to be written is kept.
type Archiver struct {
	Collection BulkWriter

	pending chan pendingSnapshot
}

func New(collection BulkWriter) *Archiver {
	return &Archiver{
		Collection: collection,
		pending:    make(chan pendingSnapshot, 1),
	}
}

func (a *Archiver) ObserveSnapshot(snapshot livemap.Snapshot, receivedAt time.Time) {
	item := pendingSnapshot{snapshot: snapshot, receivedAt: receivedAt}

	for {
		select {
		case a.pending <- item:
			return
		default:
		}

		select {
		case <-a.pending:
		default:
		}
	}
}

// Run writes queued snapshots until ctx is done.
func (a *Archiver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-a.pending:
			if _, err := a.Archive(ctx, item.snapshot, item.receivedAt); err != nil {
				log.Error().Err(err).Msg("Failed to archive bus positions")
			}
		}
	}
}

// Archive writes every bus with valid coordinates in snapshot and returns how
// many were written.
func (a *Archiver) Archive(ctx context.Context, snapshot livemap.Snapshot, receivedAt time.Time) (int, error) {
	p := pool.NewWithResults[mongo.WriteModel]()

	snapshot.Each(func(routeID string, busInstanceID string, record livemap.TelemetryRecord) bool {
		p.Go(func() mongo.WriteModel {
			return positionUpdate(routeID, busInstanceID, record, receivedAt)
		})
		return true
	})

	operations := []mongo.WriteModel{}
	for _, operation := range p.Wait() {
		if operation != nil {
			operations = append(operations, operation)
		}
	}

	if len(operations) == 0 {
		return 0, nil
	}

	startTime := time.Now()

	_, err := a.Collection.BulkWrite(ctx, operations, &options.BulkWriteOptions{})
	if err != nil {
		return 0, err
	}

	metrics.ArchivedPositions.Add(float64(len(operations)))

	log.Debug().
		Int("length", len(operations)).
		Str("bulkwrite", time.Since(startTime).String()).
		Msg("Archived bus positions")

	return len(operations), nil
}

func positionUpdate(routeID string, busInstanceID string, record livemap.TelemetryRecord, receivedAt time.Time) mongo.WriteModel {
	position, ok := record.Position()
	if !ok {
		return nil
	}

	busKey := livemap.BusKey(routeID, busInstanceID)

	busPosition := BusPosition{
		BusKey:        busKey,
		RouteID:       routeID,
		BusInstanceID: busInstanceID,
		Location: Location{
			Type:        "Point",
			Coordinates: []float64{position.Lng, position.Lat},
		},
		SpeedKmph:            record.Speed(),
		Direction:            record.Direction.String(),
		ConductorName:        record.ConductorName.String(),
		ConductorPhone:       record.ConductorPhone.String(),
		ReportedTimestamp:    record.Timestamp.String(),
		ReportedDate:         record.Date.String(),
		ModificationDateTime: receivedAt,
	}

	bsonRep, _ := bson.Marshal(bson.M{"$set": busPosition})
	updateModel := mongo.NewUpdateOneModel()
	updateModel.SetFilter(bson.M{"buskey": busKey})
	updateModel.SetUpdate(bsonRep)
	updateModel.SetUpsert(true)

	return updateModel
}
