package livemap

import (
	"strconv"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// VehiclePositions renders the buses with valid coordinates as a GTFS-realtime
// full dataset feed.
func VehiclePositions(snapshot Snapshot, now time.Time) *gtfs.FeedMessage {
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
		Entity: []*gtfs.FeedEntity{},
	}

	snapshot.Each(func(routeID string, busInstanceID string, record TelemetryRecord) bool {
		position, ok := record.Position()
		if !ok {
			return true
		}

		key := BusKey(routeID, busInstanceID)

		vehicle := &gtfs.VehiclePosition{
			Trip: &gtfs.TripDescriptor{
				RouteId: proto.String(routeID),
			},
			Vehicle: &gtfs.VehicleDescriptor{
				Id:    proto.String(key),
				Label: proto.String(busInstanceID),
			},
			Position: &gtfs.Position{
				Latitude:  proto.Float32(float32(position.Lat)),
				Longitude: proto.Float32(float32(position.Lng)),
				// Speed is metres per second in the feed
				Speed: proto.Float32(float32(record.Speed() / 3.6)),
			},
		}

		if bearing, ok := ParseCoordinate(record.Direction); ok {
			vehicle.Position.Bearing = proto.Float32(float32(bearing))
		}

		if timestamp, ok := recordTimestamp(record); ok {
			vehicle.Timestamp = proto.Uint64(timestamp)
		}

		feed.Entity = append(feed.Entity, &gtfs.FeedEntity{
			Id:      proto.String(key),
			Vehicle: vehicle,
		})

		return true
	})

	return feed
}

// recordTimestamp reads the server timestamp as unix seconds. The publisher
// writes milliseconds.
func recordTimestamp(record TelemetryRecord) (uint64, bool) {
	timestamp, err := strconv.ParseInt(record.Timestamp.String(), 10, 64)
	if err != nil || timestamp <= 0 {
		return 0, false
	}

	if timestamp > 1e12 {
		timestamp /= 1000
	}

	return uint64(timestamp), true
}
