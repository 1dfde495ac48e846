package livemap

import (
	"encoding/json"
	"errors"
	"maps"
	"slices"

	"github.com/busspass/busspass/pkg/rtdb"
	"github.com/rs/zerolog/log"
)

var ErrMalformedSnapshot = errors.New("bus locations value is not an object")

// Snapshot is the complete Bus locations tree at one point in time. A nil or
// empty Snapshot means no bus is reporting.
type Snapshot map[string]map[string]TelemetryRecord

// DecodeSnapshot turns a raw tree value into a Snapshot. Routes and bus
// instances with numeric IDs may arrive as arrays, their IDs are the indexes.
// Routes and records that are not objects are dropped one by one so a single
// bad entry never loses the rest of the update. A root that is neither an
// object nor an array decodes to the empty snapshot together with
// ErrMalformedSnapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	routes, err := rtdb.Children(data)
	if err != nil {
		return nil, ErrMalformedSnapshot
	}
	if routes == nil {
		return nil, nil
	}

	snapshot := Snapshot{}

	for routeID, rawRoute := range routes {
		instances, err := rtdb.Children(rawRoute)
		if err != nil || instances == nil {
			log.Warn().Str("route", routeID).Msg("Unexpected data under route, expected an object of bus instances")
			continue
		}

		records := map[string]TelemetryRecord{}
		for busInstanceID, rawRecord := range instances {
			var record TelemetryRecord
			if err := json.Unmarshal(rawRecord, &record); err != nil {
				log.Warn().Err(err).Str("bus", BusKey(routeID, busInstanceID)).Msg("Skipping unreadable telemetry record")
				continue
			}

			records[busInstanceID] = record
		}

		snapshot[routeID] = records
	}

	return snapshot, nil
}

func (s Snapshot) Empty() bool {
	for _, instances := range s {
		if len(instances) > 0 {
			return false
		}
	}

	return true
}

// Each visits every record ordered by route then bus instance until fn
// returns false.
func (s Snapshot) Each(fn func(routeID string, busInstanceID string, record TelemetryRecord) bool) {
	routeIDs := slices.Sorted(maps.Keys(s))

	for _, routeID := range routeIDs {
		instances := s[routeID]

		busInstanceIDs := slices.Sorted(maps.Keys(instances))

		for _, busInstanceID := range busInstanceIDs {
			if !fn(routeID, busInstanceID, instances[busInstanceID]) {
				return
			}
		}
	}
}

func (s Snapshot) Lookup(routeID string, busInstanceID string) (TelemetryRecord, bool) {
	instances, ok := s[routeID]
	if !ok {
		return TelemetryRecord{}, false
	}

	record, ok := instances[busInstanceID]
	return record, ok
}

// LiveKeys is the set of bus keys that have valid coordinates, i.e. the
// marker set a completed reconciliation must end with.
func (s Snapshot) LiveKeys() map[string]struct{} {
	keys := map[string]struct{}{}

	s.Each(func(routeID string, busInstanceID string, record TelemetryRecord) bool {
		if _, ok := record.Position(); ok {
			keys[BusKey(routeID, busInstanceID)] = struct{}{}
		}
		return true
	})

	return keys
}

// FallbackText is the coordinate line shown when no map can be drawn.
func FallbackText(s Snapshot) string {
	text := NotAvailableText

	s.Each(func(_ string, _ string, record TelemetryRecord) bool {
		if position, ok := record.Position(); ok {
			text = position.String()
			return false
		}
		return true
	})

	return text
}

const NotAvailableText = "Lat: N/A, Lng: N/A"
