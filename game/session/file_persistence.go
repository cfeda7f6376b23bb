package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wricardo/traffic-sim/game/engine"
	"github.com/wricardo/traffic-sim/game/service"
)

// FilePersistence implements SessionPersistence using file system storage
type FilePersistence struct {
	sessionsDir     string
	scenarioManager service.ScenarioManager
}

// NewFilePersistence creates a new file-based session persistence layer
func NewFilePersistence(sessionsDir string, scenarioManager service.ScenarioManager) (*FilePersistence, error) {
	// Create sessions directory if it doesn't exist
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	return &FilePersistence{
		sessionsDir:     sessionsDir,
		scenarioManager: scenarioManager,
	}, nil
}

// Save persists a session to a JSON file
func (fp *FilePersistence) Save(session *service.Session) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}

	data := PersistedSessionData{
		ID:             session.ID,
		ScenarioID:     fp.getScenarioIDFromName(session.Scenario.Name),
		Scenario:       session.Scenario,
		CreatedAt:      session.CreatedAt,
		LastAccessedAt: session.LastAccessedAt,
		State:          session.Simulation.Snapshot(),
	}
	if session.History != nil {
		data.Events = session.History.Events()
	}

	// Marshal to JSON with indentation for readability
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}

	// Write atomically via rename
	filePath := fp.getFilePath(session.ID)
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write session file: %w", err)
	}

	return nil
}

// Load retrieves a session from a JSON file
func (fp *FilePersistence) Load(id string) (*service.Session, error) {
	filePath := fp.getFilePath(id)

	// Check if file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, ErrSessionNotFound
	}

	jsonData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var data PersistedSessionData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}

	scenario, err := fp.loadScenario(&data)
	if err != nil {
		return nil, err
	}

	sim, err := buildSimulation(scenario, &data.State)
	if err != nil {
		return nil, fmt.Errorf("failed to restore simulation: %w", err)
	}

	session := &service.Session{
		ID:             data.ID,
		Simulation:     sim,
		Scenario:       scenario,
		History:        service.NewEventLog(data.Events...),
		CreatedAt:      data.CreatedAt,
		LastAccessedAt: data.LastAccessedAt,
	}

	return session, nil
}

// loadScenario prefers the scenario manager and falls back to the embedded
// copy when the scenario is gone or no longer matches the saved grid
func (fp *FilePersistence) loadScenario(data *PersistedSessionData) (*engine.Scenario, error) {
	if data.ScenarioID != "" && fp.scenarioManager != nil {
		scenario, err := fp.scenarioManager.LoadScenario(data.ScenarioID)
		if err == nil && scenario.Lanes == data.State.Lanes && scenario.Length == data.State.Length {
			return scenario, nil
		}
		if data.Scenario == nil {
			if err == nil {
				err = fmt.Errorf("scenario grid changed to %dx%d", scenario.Lanes, scenario.Length)
			}
			return nil, fmt.Errorf("failed to load scenario '%s': %w", data.ScenarioID, err)
		}
	}
	if data.Scenario == nil {
		return nil, fmt.Errorf("session %s has no scenario", data.ID)
	}
	return data.Scenario, nil
}

// Delete removes a session file
func (fp *FilePersistence) Delete(id string) error {
	filePath := fp.getFilePath(id)

	if !fp.Exists(id) {
		return ErrSessionNotFound
	}

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to remove session file: %w", err)
	}

	return nil
}

// ListAll returns all persisted session IDs
func (fp *FilePersistence) ListAll() ([]string, error) {
	entries, err := os.ReadDir(fp.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var sessionIDs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if strings.HasSuffix(name, ".json") {
			sessionIDs = append(sessionIDs, strings.TrimSuffix(name, ".json"))
		}
	}

	return sessionIDs, nil
}

// Exists checks if a session file exists
func (fp *FilePersistence) Exists(id string) bool {
	_, err := os.Stat(fp.getFilePath(id))
	return err == nil
}

// getFilePath returns the full file path for a session ID
func (fp *FilePersistence) getFilePath(id string) string {
	return filepath.Join(fp.sessionsDir, fmt.Sprintf("%s.json", id))
}

// getScenarioIDFromName returns the scenario ID (filename without extension)
// for a display name. Unknown names are assumed to be IDs already.
func (fp *FilePersistence) getScenarioIDFromName(displayName string) string {
	if fp.scenarioManager == nil {
		return displayName
	}
	scenarios, err := fp.scenarioManager.ListScenarios()
	if err != nil {
		return displayName
	}

	for _, info := range scenarios {
		if info.Name == displayName {
			return info.ScenarioID
		}
	}
	return displayName
}
