package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wricardo/traffic-sim/game/engine"
	"github.com/wricardo/traffic-sim/game/service"
	"gopkg.in/yaml.v3"
)

var (
	ErrScenarioNotFound = errors.New("scenario not found")
	ErrInvalidScenario  = errors.New("invalid scenario")
)

// extensions are tried in order when a scenario name has none
var extensions = []string{".json", ".yaml", ".yml"}

// Manager handles scenario loading and caching
type Manager struct {
	scenarioDir     string
	defaultScenario *engine.Scenario
	scenarios       map[string]*engine.Scenario
	mu              sync.RWMutex
}

var _ service.ScenarioManager = (*Manager)(nil)

// NewManager creates a new scenario manager
func NewManager(scenarioDir string) (*Manager, error) {
	// Ensure scenario directory exists
	if _, err := os.Stat(scenarioDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("scenario directory does not exist: %s", scenarioDir)
	}

	m := &Manager{
		scenarioDir: scenarioDir,
		scenarios:   make(map[string]*engine.Scenario),
	}

	if err := m.loadDefaultScenario(); err != nil {
		return nil, fmt.Errorf("failed to load default scenario: %w", err)
	}

	return m, nil
}

// scenarioID strips a known extension from a name
func scenarioID(name string) string {
	for _, ext := range extensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

// resolve finds the file backing a scenario name
func (m *Manager) resolve(name string) (string, error) {
	if ext := filepath.Ext(name); ext != "" && scenarioID(name) != name {
		path := filepath.Join(m.scenarioDir, name)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return "", ErrScenarioNotFound
			}
			return "", err
		}
		return path, nil
	}
	for _, ext := range extensions {
		path := filepath.Join(m.scenarioDir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", ErrScenarioNotFound
}

// LoadScenario loads a scenario by name. The name may carry a .json, .yaml
// or .yml extension; without one the extensions are tried in that order.
func (m *Manager) LoadScenario(name string) (*engine.Scenario, error) {
	id := scenarioID(name)

	m.mu.RLock()
	// Check cache first
	if scenario, exists := m.scenarios[id]; exists {
		m.mu.RUnlock()
		return scenario, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if scenario, exists := m.scenarios[id]; exists {
		return scenario, nil
	}

	path, err := m.resolve(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := engine.DecodeScenario(data, engine.FormatOf(path))
	if err != nil {
		return nil, err
	}

	if err := engine.ValidateScenario(scenario); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}

	m.scenarios[id] = scenario
	return scenario, nil
}

// ReloadScenario drops a cached scenario and loads it again from disk
func (m *Manager) ReloadScenario(name string) error {
	m.mu.Lock()
	delete(m.scenarios, scenarioID(name))
	m.mu.Unlock()

	_, err := m.LoadScenario(name)
	return err
}

// ValidateScenario checks a scenario without saving it
func (m *Manager) ValidateScenario(scenario *engine.Scenario) error {
	if err := engine.ValidateScenario(scenario); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	return nil
}

// ListScenarios returns information about all available scenarios, sorted by
// scenario id. Files that fail to load are skipped.
func (m *Manager) ListScenarios() ([]*service.ScenarioInfo, error) {
	entries, err := os.ReadDir(m.scenarioDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}

	var scenarios []*service.ScenarioInfo
	seen := make(map[string]bool)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id := scenarioID(entry.Name())
		if id == entry.Name() || seen[id] {
			continue
		}

		scenario, err := m.LoadScenario(entry.Name())
		if err != nil {
			// Skip invalid scenarios
			continue
		}
		seen[id] = true

		scenarios = append(scenarios, &service.ScenarioInfo{
			Filename:    entry.Name(),
			ScenarioID:  id, // This is the identifier to use for session creation
			Name:        scenario.Name,
			Description: scenario.Description,
			Lanes:       scenario.Lanes,
			Length:      scenario.Length,
			Iterations:  scenario.Iterations,
			Vehicles:    scenario.VehicleCount(),
		})
	}

	sort.Slice(scenarios, func(i, j int) bool {
		return scenarios[i].ScenarioID < scenarios[j].ScenarioID
	})
	return scenarios, nil
}

// GetDefault returns the default scenario
func (m *Manager) GetDefault() *engine.Scenario {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultScenario
}

// SetDefault sets the default scenario by name
func (m *Manager) SetDefault(name string) error {
	scenario, err := m.LoadScenario(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultScenario = scenario
	return nil
}

// RefreshCache drops all cached scenarios and reloads the default from disk
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.scenarios = make(map[string]*engine.Scenario)
	m.mu.Unlock()

	return m.loadDefaultScenario()
}

// loadDefaultScenario picks classic, then the first listed scenario, then
// the built-in engine default
func (m *Manager) loadDefaultScenario() error {
	scenario, err := m.LoadScenario("classic")
	if err != nil {
		scenarios, listErr := m.ListScenarios()
		if listErr != nil || len(scenarios) == 0 {
			scenario = engine.DefaultScenario()
		} else if scenario, err = m.LoadScenario(scenarios[0].Filename); err != nil {
			scenario = engine.DefaultScenario()
		}
	}

	m.mu.Lock()
	m.defaultScenario = scenario
	m.mu.Unlock()
	return nil
}

// SaveScenario validates a scenario and writes it to disk. The format follows
// the extension of name; a name without one is saved as JSON.
func (m *Manager) SaveScenario(name string, scenario *engine.Scenario) error {
	if err := m.ValidateScenario(scenario); err != nil {
		return err
	}

	filename := name
	if scenarioID(name) == name {
		filename = name + ".json"
	}
	if strings.ContainsAny(scenarioID(name), `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: name %q must not contain a path", ErrInvalidScenario, name)
	}

	var data []byte
	var err error
	if engine.FormatOf(filename) == "yaml" {
		data, err = yaml.Marshal(scenario)
	} else {
		data, err = json.MarshalIndent(scenario, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal scenario: %w", err)
	}

	if err := os.WriteFile(filepath.Join(m.scenarioDir, filename), data, 0644); err != nil {
		return fmt.Errorf("failed to write scenario file: %w", err)
	}

	m.mu.Lock()
	m.scenarios[scenarioID(name)] = scenario
	m.mu.Unlock()

	return nil
}
