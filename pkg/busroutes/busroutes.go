package busroutes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/busspass/busspass/pkg/rtdb"
	"github.com/busspass/busspass/pkg/util"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"
)

const RoutesPath = "all_routes"

var (
	ErrRouteExists   = errors.New("bus number already exists, update its stops instead")
	ErrRouteNotFound = errors.New("route not found")
	ErrStopNotFound  = errors.New("stop not found")
	ErrInvalidStop   = errors.New("every stop needs a name, lat and lng")
	ErrMissingBusNo  = errors.New("bus number is required")
)

type Stop struct {
	Name     string `json:"name"`
	Lat      string `json:"lat"`
	Lng      string `json:"lng"`
	IsHelper string `json:"ishelper"`
	Type     string `json:"type,omitempty"`
}

func (s Stop) Valid() bool {
	return strings.TrimSpace(s.Name) != "" && strings.TrimSpace(s.Lat) != "" && strings.TrimSpace(s.Lng) != ""
}

func (s *Stop) normalise() {
	if s.IsHelper != "true" {
		s.IsHelper = "false"
	}
}

type Route struct {
	BusNo     string `json:"bus_no"`
	Stops     []Stop `json:"stops"`
	StopNames string `json:"stop_names"`
}

type Manager struct {
	Tree rtdb.Tree

	filter *vm.Program
}

// NewManager compiles filter, an expression over a stop that is true when the
// stop should be shown to users.
func NewManager(tree rtdb.Tree, filter string) (*Manager, error) {
	program, err := expr.Compile(filter, expr.Env(stopEnv(Stop{})), expr.DisableBuiltin("type"), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile helper filter: %w", err)
	}

	return &Manager{
		Tree:   tree,
		filter: program,
	}, nil
}

func stopEnv(stop Stop) map[string]any {
	return map[string]any{
		"name":     stop.Name,
		"type":     stop.Type,
		"lat":      stop.Lat,
		"lng":      stop.Lng,
		"ishelper": stop.IsHelper == "true",
	}
}

func (m *Manager) Visible(stop Stop) bool {
	output, err := expr.Run(m.filter, stopEnv(stop))
	if err != nil {
		log.Warn().Err(err).Str("stop", stop.Name).Msg("Helper filter failed, showing stop")
		return true
	}

	return output.(bool)
}

// VisibleStopNames lists the names of the visible stops in route order,
// each name once.
func (m *Manager) VisibleStopNames(stops []Stop) []string {
	visible := slices.Clone(stops)
	util.InPlaceFilter(&visible, m.Visible)

	names := []string{}
	for _, stop := range visible {
		names = append(names, stop.Name)
	}

	return util.RemoveDuplicateStrings(names, nil)
}

func (m *Manager) List(ctx context.Context) ([]Route, error) {
	var value rtdb.Value
	if err := m.Tree.Get(ctx, RoutesPath, &value); err != nil {
		return nil, fmt.Errorf("get routes: %w", err)
	}

	raw, err := rtdb.Children(value)
	if err != nil {
		return nil, fmt.Errorf("get routes: %w", err)
	}

	routes := []Route{}
	for _, busNo := range slices.SortedFunc(maps.Keys(raw), rtdb.CompareKeys) {
		stops, err := decodeStops(raw[busNo])
		if err != nil {
			log.Warn().Err(err).Str("bus", busNo).Msg("Skipping unreadable route")
			continue
		}

		routes = append(routes, m.route(busNo, stops))
	}

	return routes, nil
}

func (m *Manager) Get(ctx context.Context, busNo string) (*Route, error) {
	stops, err := m.stops(ctx, busNo)
	if err != nil {
		return nil, err
	}
	if stops == nil {
		return nil, ErrRouteNotFound
	}

	route := m.route(busNo, stops)
	return &route, nil
}

func (m *Manager) route(busNo string, stops []Stop) Route {
	return Route{
		BusNo:     busNo,
		Stops:     stops,
		StopNames: strings.Join(m.VisibleStopNames(stops), ", "),
	}
}

func (m *Manager) AddRoute(ctx context.Context, busNo string, stops []Stop) error {
	busNo = strings.TrimSpace(busNo)
	if busNo == "" || strings.Contains(busNo, "/") {
		return ErrMissingBusNo
	}
	if len(stops) == 0 {
		return ErrInvalidStop
	}

	for i := range stops {
		if !stops[i].Valid() {
			return ErrInvalidStop
		}
		stops[i].normalise()
	}

	existing, err := m.stops(ctx, busNo)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrRouteExists
	}

	return m.write(ctx, busNo, stops)
}

func (m *Manager) AddStop(ctx context.Context, busNo string, stop Stop) error {
	if !stop.Valid() {
		return ErrInvalidStop
	}
	stop.normalise()

	stops, err := m.stops(ctx, busNo)
	if err != nil {
		return err
	}
	if stops == nil {
		return ErrRouteNotFound
	}

	return m.write(ctx, busNo, append(stops, stop))
}

// PatchStop copies the non-empty fields of patch onto the stop at index.
func (m *Manager) PatchStop(ctx context.Context, busNo string, index int, patch Stop) error {
	stops, err := m.stops(ctx, busNo)
	if err != nil {
		return err
	}
	if stops == nil {
		return ErrRouteNotFound
	}
	if index < 0 || index >= len(stops) {
		return ErrStopNotFound
	}

	if err := copier.CopyWithOption(&stops[index], &patch, copier.Option{IgnoreEmpty: true}); err != nil {
		return fmt.Errorf("patch stop: %w", err)
	}
	stops[index].normalise()

	return m.write(ctx, busNo, stops)
}

func (m *Manager) DeleteStop(ctx context.Context, busNo string, index int) error {
	stops, err := m.stops(ctx, busNo)
	if err != nil {
		return err
	}
	if stops == nil {
		return ErrRouteNotFound
	}
	if index < 0 || index >= len(stops) {
		return ErrStopNotFound
	}

	return m.write(ctx, busNo, slices.Delete(stops, index, index+1))
}

func (m *Manager) DeleteRoute(ctx context.Context, busNo string) error {
	stops, err := m.stops(ctx, busNo)
	if err != nil {
		return err
	}
	if stops == nil {
		return ErrRouteNotFound
	}

	return m.Tree.Delete(ctx, rtdb.JoinPath(RoutesPath, busNo))
}

// write replaces the whole stop list. An empty list removes the route node.
func (m *Manager) write(ctx context.Context, busNo string, stops []Stop) error {
	path := rtdb.JoinPath(RoutesPath, busNo)

	var err error
	if len(stops) == 0 {
		err = m.Tree.Set(ctx, path, nil)
	} else {
		err = m.Tree.Set(ctx, path, stops)
	}
	if err != nil {
		return fmt.Errorf("write route %s: %w", busNo, err)
	}

	log.Debug().Str("bus", busNo).Int("stops", len(stops)).Msg("Route updated")

	return nil
}

// stops returns nil when the route does not exist.
func (m *Manager) stops(ctx context.Context, busNo string) ([]Stop, error) {
	var raw json.RawMessage
	if err := m.Tree.Get(ctx, rtdb.JoinPath(RoutesPath, busNo), &raw); err != nil {
		return nil, fmt.Errorf("get route %s: %w", busNo, err)
	}

	return decodeStops(raw)
}

// decodeStops reads a stop list stored either as an array or, when the tree
// has holes in it, as an object keyed by index.
func decodeStops(raw json.RawMessage) ([]Stop, error) {
	indexed, err := rtdb.Children(raw)
	if err != nil {
		return nil, err
	}
	if indexed == nil {
		return nil, nil
	}

	result := []Stop{}
	for _, key := range slices.SortedFunc(maps.Keys(indexed), rtdb.CompareKeys) {
		var stop Stop
		if err := json.Unmarshal(indexed[key], &stop); err != nil {
			return nil, err
		}

		result = append(result, stop)
	}

	return result, nil
}
