package livemap

import (
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func TestVehiclePositions(t *testing.T) {
	now := time.Unix(1718000100, 0)

	feed := VehiclePositions(Snapshot{
		"12A": {
			"bus1": {Latitude: "22.5", Longitude: "88.25", SpeedKmph: "36", Direction: "90", Timestamp: "1718000000000"},
			"bus2": {Latitude: "bad", Longitude: "88.25"},
		},
	}, now)

	assert.Equal(t, "2.0", feed.GetHeader().GetGtfsRealtimeVersion())
	assert.Equal(t, gtfs.FeedHeader_FULL_DATASET, feed.GetHeader().GetIncrementality())
	assert.Equal(t, uint64(1718000100), feed.GetHeader().GetTimestamp())

	require.Len(t, feed.GetEntity(), 1)

	entity := feed.GetEntity()[0]
	assert.Equal(t, "12A-bus1", entity.GetId())
	assert.Equal(t, "12A", entity.GetVehicle().GetTrip().GetRouteId())
	assert.Equal(t, "bus1", entity.GetVehicle().GetVehicle().GetLabel())
	assert.Equal(t, float32(22.5), entity.GetVehicle().GetPosition().GetLatitude())
	assert.Equal(t, float32(88.25), entity.GetVehicle().GetPosition().GetLongitude())
	assert.Equal(t, float32(10), entity.GetVehicle().GetPosition().GetSpeed())
	assert.Equal(t, float32(90), entity.GetVehicle().GetPosition().GetBearing())
	assert.Equal(t, uint64(1718000000), entity.GetVehicle().GetTimestamp())

	encoded, err := proto.Marshal(feed)
	require.NoError(t, err)

	decoded := &gtfs.FeedMessage{}
	require.NoError(t, proto.Unmarshal(encoded, decoded))
	assert.Len(t, decoded.GetEntity(), 1)
}

func TestVehiclePositionsEmpty(t *testing.T) {
	feed := VehiclePositions(nil, time.Now())

	assert.Empty(t, feed.GetEntity())
	assert.NotNil(t, feed.GetHeader())
}
