package livemap

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Text is a telemetry field the publisher writes as free text. Some devices
// write numbers instead of strings so both are accepted and kept verbatim.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))

	if trimmed == "" || trimmed == "null" {
		*t = ""
		return nil
	}

	switch trimmed[0] {
	case '"':
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*t = Text(value)
	case '{', '[':
		// Nested values carry no usable telemetry
		*t = ""
	default:
		*t = Text(trimmed)
	}

	return nil
}

func (t Text) String() string {
	return string(t)
}

type Position struct {
	Lat float64 `json:"lat" groups:"basic,detailed"`
	Lng float64 `json:"lng" groups:"basic,detailed"`
}

func (p Position) String() string {
	return fmt.Sprintf("Lat: %.6f, Lng: %.6f", p.Lat, p.Lng)
}

// TelemetryRecord is the latest report of one bus instance as written by the
// conductor app under Bus locations/<route>/<bus instance>.
type TelemetryRecord struct {
	Latitude       Text `json:"latitude" groups:"basic,detailed"`
	Longitude      Text `json:"longitude" groups:"basic,detailed"`
	Direction      Text `json:"direction,omitempty" groups:"basic,detailed"`
	SpeedKmph      Text `json:"speed_kmph,omitempty" groups:"basic,detailed"`
	Date           Text `json:"date,omitempty" groups:"basic,detailed"`
	Timestamp      Text `json:"timestamp,omitempty" groups:"basic,detailed"`
	ConductorName  Text `json:"conductor name,omitempty" groups:"detailed"`
	ConductorPhone Text `json:"conductor phone,omitempty" groups:"detailed"`
}

// Position returns the parsed coordinates and false when either of them is
// missing or not a finite decimal number.
func (r TelemetryRecord) Position() (Position, bool) {
	lat, ok := ParseCoordinate(r.Latitude)
	if !ok {
		return Position{}, false
	}

	lng, ok := ParseCoordinate(r.Longitude)
	if !ok {
		return Position{}, false
	}

	return Position{Lat: lat, Lng: lng}, true
}

// Speed is the reported speed in km/h, zero when missing, invalid or negative.
func (r TelemetryRecord) Speed() float64 {
	speed, ok := ParseCoordinate(r.SpeedKmph)
	if !ok || speed < 0 {
		return 0
	}

	return speed
}

var numberPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ParseCoordinate reads the leading decimal number of value, so units or
// hemisphere letters after it are ignored. Text that does not start with a
// finite number is not a coordinate.
func ParseCoordinate(value Text) (float64, bool) {
	text := numberPrefix.FindString(strings.TrimSpace(string(value)))
	if text == "" {
		return 0, false
	}

	number, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(number) || math.IsInf(number, 0) {
		return 0, false
	}

	return number, true
}

// BusKey names the marker of one bus instance.
func BusKey(routeID string, busInstanceID string) string {
	return routeID + "-" + busInstanceID
}
