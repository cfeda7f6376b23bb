package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lane shift policies a scenario may select
const (
	ShiftGoalSide = "goal_side"
	ShiftLeft     = "left"
	ShiftRight    = "right"
)

// Range is an inclusive [Min, Max] interval sampled uniformly
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Population describes a group of vehicles spawned at start
type Population struct {
	Kind         Kind  `json:"kind" yaml:"kind"`
	Count        int   `json:"count" yaml:"count"`
	Lanes        []int `json:"lanes" yaml:"lanes"`
	StartMin     int   `json:"start_min" yaml:"start_min"`
	StartMax     int   `json:"start_max" yaml:"start_max"`
	Goal         int   `json:"goal" yaml:"goal"`
	Speed        Range `json:"speed" yaml:"speed"`
	MaxSpeed     Range `json:"max_speed" yaml:"max_speed"`
	Acceleration Range `json:"acceleration" yaml:"acceleration"`
	Deceleration Range `json:"deceleration" yaml:"deceleration"`
}

// Scenario is the resolved description of one simulation run
type Scenario struct {
	Name           string       `json:"name" yaml:"name"`
	Description    string       `json:"description" yaml:"description"`
	Lanes          int          `json:"lanes" yaml:"lanes"`
	Length         int          `json:"length" yaml:"length"`
	Iterations     uint64       `json:"iterations" yaml:"iterations"`
	Workers        int          `json:"workers" yaml:"workers"`
	Sequential     bool         `json:"sequential" yaml:"sequential"`
	CellSize       float64      `json:"cell_size" yaml:"cell_size"`
	TickSeconds    float64      `json:"tick_seconds" yaml:"tick_seconds"`
	LaneShift      string       `json:"lane_shift" yaml:"lane_shift"`
	TerminalEvents []EventType  `json:"terminal_events" yaml:"terminal_events"`
	StopWhenEmpty  bool         `json:"stop_when_empty" yaml:"stop_when_empty"`
	Seed           uint64       `json:"seed" yaml:"seed"`
	Populations    []Population `json:"populations" yaml:"populations"`
}

// Unit returns the scenario's kinematics, falling back to DefaultUnit
func (s *Scenario) Unit() Unit {
	u := DefaultUnit
	if s.CellSize > 0 {
		u.CellSize = s.CellSize
	}
	if s.TickSeconds > 0 {
		u.TickSeconds = s.TickSeconds
	}
	return u
}

// Shift returns the lane shift policy selected by the scenario
func (s *Scenario) Shift() LaneShift {
	switch s.LaneShift {
	case ShiftLeft:
		return FixedShift(1)
	case ShiftRight:
		return FixedShift(-1)
	default:
		return GoalSideShift
	}
}

// VehicleCount returns the number of vehicles the scenario spawns
func (s *Scenario) VehicleCount() int {
	n := 0
	for _, p := range s.Populations {
		n += p.Count
	}
	return n
}

// ValidateScenario validates a scenario for consistency and capacity
func ValidateScenario(s *Scenario) error {
	if s == nil {
		return fmt.Errorf("%w: scenario is nil", ErrInvalidScenario)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScenario)
	}
	if s.Lanes < MinLanes || s.Lanes > MaxLanes {
		return fmt.Errorf("%w: lanes must be between %d and %d, got %d", ErrInvalidScenario, MinLanes, MaxLanes, s.Lanes)
	}
	if s.Length < MinLength || s.Length > MaxLength {
		return fmt.Errorf("%w: length must be between %d and %d, got %d", ErrInvalidScenario, MinLength, MaxLength, s.Length)
	}
	if s.Iterations == 0 {
		return fmt.Errorf("%w: iterations must be positive", ErrInvalidScenario)
	}
	if s.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidScenario, s.Workers)
	}
	if s.CellSize < 0 || s.TickSeconds < 0 {
		return fmt.Errorf("%w: cell_size and tick_seconds must not be negative", ErrInvalidScenario)
	}

	switch s.LaneShift {
	case "", ShiftGoalSide, ShiftLeft, ShiftRight:
	default:
		return fmt.Errorf("%w: unknown lane_shift %q", ErrInvalidScenario, s.LaneShift)
	}

	for _, t := range s.TerminalEvents {
		if !knownEvent(t) {
			return fmt.Errorf("%w: unknown terminal event %q", ErrInvalidScenario, t)
		}
	}

	if len(s.Populations) == 0 {
		return fmt.Errorf("%w: at least one population is required", ErrInvalidScenario)
	}

	// Vehicles per lane span, used for the capacity check
	capacity := make(map[int]int)
	for i, p := range s.Populations {
		if err := validatePopulation(s, p); err != nil {
			return fmt.Errorf("%w: population %d: %v", ErrInvalidScenario, i+1, err)
		}
		span := (p.StartMax - p.StartMin + 1) * len(populationLanes(s, p))
		capacity[i] = span
	}

	// Overlapping spans share cells, so compare against the whole grid too
	if s.VehicleCount() > s.Lanes*s.Length {
		return fmt.Errorf("%w: %d vehicles do not fit on %d cells", ErrInvalidScenario, s.VehicleCount(), s.Lanes*s.Length)
	}
	for i, p := range s.Populations {
		if p.Count > capacity[i] {
			return fmt.Errorf("%w: population %d: %d vehicles do not fit in %d start cells", ErrInvalidScenario, i+1, p.Count, capacity[i])
		}
	}

	return nil
}

func validatePopulation(s *Scenario, p Population) error {
	if p.Kind != UserVehicle && p.Kind != AutonomousVehicle {
		return fmt.Errorf("unknown kind %q", p.Kind)
	}
	if p.Count < 0 {
		return fmt.Errorf("count must not be negative, got %d", p.Count)
	}
	for _, lane := range p.Lanes {
		if lane < 0 || lane >= s.Lanes {
			return fmt.Errorf("lane %d outside [0, %d)", lane, s.Lanes)
		}
	}
	if p.StartMin < 0 || p.StartMax >= s.Length || p.StartMin > p.StartMax {
		return fmt.Errorf("start range [%d, %d] outside [0, %d)", p.StartMin, p.StartMax, s.Length)
	}
	if p.Goal < 0 || p.Goal >= s.Length {
		return fmt.Errorf("goal %d outside [0, %d)", p.Goal, s.Length)
	}
	if p.Goal >= p.StartMin && p.Goal <= p.StartMax {
		return fmt.Errorf("goal %d inside start range [%d, %d]", p.Goal, p.StartMin, p.StartMax)
	}

	ranges := []struct {
		name string
		r    Range
		min  float64
	}{
		{"max_speed", p.MaxSpeed, MinMaxSpeed},
		{"acceleration", p.Acceleration, MinAcceleration},
		{"deceleration", p.Deceleration, MinDeceleration},
		{"speed", p.Speed, 0},
	}
	for _, rc := range ranges {
		if rc.r.Min > rc.r.Max {
			return fmt.Errorf("%s range min %.2f above max %.2f", rc.name, rc.r.Min, rc.r.Max)
		}
		if rc.r.Min < rc.min {
			return fmt.Errorf("%s must be at least %.0f, got %.2f", rc.name, rc.min, rc.r.Min)
		}
	}
	if p.Deceleration.Min < p.Acceleration.Max {
		return fmt.Errorf("deceleration min %.2f below acceleration max %.2f", p.Deceleration.Min, p.Acceleration.Max)
	}
	if p.Speed.Max > p.MaxSpeed.Min {
		return fmt.Errorf("speed max %.2f above max_speed min %.2f", p.Speed.Max, p.MaxSpeed.Min)
	}
	return nil
}

// populationLanes returns the lanes a population spawns on; empty means all
func populationLanes(s *Scenario, p Population) []int {
	if len(p.Lanes) > 0 {
		return p.Lanes
	}
	lanes := make([]int, s.Lanes)
	for i := range lanes {
		lanes[i] = i
	}
	return lanes
}

func knownEvent(t EventType) bool {
	for _, k := range KnownEventTypes {
		if k == t {
			return true
		}
	}
	return false
}

// DecodeScenario parses scenario data. format is "json" or "yaml".
func DecodeScenario(data []byte, format string) (*Scenario, error) {
	var s Scenario
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to parse yaml scenario: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to parse json scenario: %w", err)
		}
	}
	return &s, nil
}

// FormatOf returns the scenario format implied by a file name
func FormatOf(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// LoadScenario loads and validates a scenario file (.json, .yaml or .yml)
func LoadScenario(filename string) (*Scenario, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	s, err := DecodeScenario(data, FormatOf(filename))
	if err != nil {
		return nil, err
	}

	if err := ValidateScenario(s); err != nil {
		return nil, err
	}
	return s, nil
}

// DefaultScenario is a two-lane road with traffic in both directions and a
// single user vehicle whose collision ends the run. Traffic toward x=0 uses
// lane 0 and overtakes on lane 1; traffic away from x=0 the other way round.
func DefaultScenario() *Scenario {
	return &Scenario{
		Name:           "default",
		Description:    "Two-lane road, traffic in both directions",
		Lanes:          2,
		Length:         200,
		Iterations:     300,
		Workers:        4,
		CellSize:       DefaultUnit.CellSize,
		TickSeconds:    DefaultUnit.TickSeconds,
		LaneShift:      ShiftGoalSide,
		TerminalEvents: []EventType{EventUserCollision},
		StopWhenEmpty:  true,
		Seed:           1,
		Populations: []Population{
			{
				Kind:         UserVehicle,
				Count:        1,
				Lanes:        []int{1},
				StartMin:     0,
				StartMax:     9,
				Goal:         199,
				Speed:        Range{Min: 40, Max: 60},
				MaxSpeed:     Range{Min: 150, Max: 150},
				Acceleration: Range{Min: 5, Max: 5},
				Deceleration: Range{Min: 10, Max: 10},
			},
			{
				Kind:         AutonomousVehicle,
				Count:        12,
				Lanes:        []int{1},
				StartMin:     10,
				StartMax:     120,
				Goal:         199,
				Speed:        Range{Min: 30, Max: 80},
				MaxSpeed:     Range{Min: 120, Max: 160},
				Acceleration: Range{Min: 2, Max: 6},
				Deceleration: Range{Min: 6, Max: 12},
			},
			{
				Kind:         AutonomousVehicle,
				Count:        12,
				Lanes:        []int{0},
				StartMin:     80,
				StartMax:     199,
				Goal:         0,
				Speed:        Range{Min: 30, Max: 80},
				MaxSpeed:     Range{Min: 120, Max: 160},
				Acceleration: Range{Min: 2, Max: 6},
				Deceleration: Range{Min: 6, Max: 12},
			},
		},
	}
}
