package session

import (
	"time"

	"github.com/wricardo/traffic-sim/game/engine"
	"github.com/wricardo/traffic-sim/game/service"
)

// SessionPersistence defines the interface for persisting sessions
type SessionPersistence interface {
	// Save persists a session to storage
	Save(session *service.Session) error

	// Load retrieves a session from storage by ID
	Load(id string) (*service.Session, error)

	// Delete removes a session from storage
	Delete(id string) error

	// ListAll returns all persisted session IDs
	ListAll() ([]string, error)

	// Exists checks if a session exists in storage
	Exists(id string) bool
}

// PersistedSessionData represents the JSON structure for persisted sessions.
// The scenario is embedded so a session survives the removal of its file.
type PersistedSessionData struct {
	ID             string           `json:"id"`
	ScenarioID     string           `json:"scenario_id"`
	Scenario       *engine.Scenario `json:"scenario"`
	CreatedAt      time.Time        `json:"created_at"`
	LastAccessedAt time.Time        `json:"last_accessed_at"`
	State          engine.State     `json:"state"`
	Events         []engine.Event   `json:"events,omitempty"`
}
