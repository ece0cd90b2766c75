package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// ErrNoToken is returned when the state carries no join token.
var ErrNoToken = errors.New("node state has no token")

// NodeState is the persisted state of a mesh node.
type NodeState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// UUID is the device UUID used to join.
	UUID string `json:"uuid"`

	// Token is the join token as 16 hex digits. Empty until JoinComplete.
	Token string `json:"token,omitempty"`

	// JoinedAt is when the join completed.
	JoinedAt time.Time `json:"joined_at,omitempty"`

	// Elements holds the model configuration received on the last attach.
	Elements []ElementState `json:"elements,omitempty"`
}

// ElementState is the configuration of one element.
type ElementState struct {
	Index  uint8        `json:"index"`
	Models []ModelState `json:"models,omitempty"`
}

// ModelState is the configuration of one model.
type ModelState struct {
	ID     uint16 `json:"id"`
	Vendor uint16 `json:"vendor"`

	Bindings      []uint16 `json:"bindings,omitempty"`
	Subscriptions []string `json:"subscriptions,omitempty"`

	// PublicationPeriod in milliseconds.
	PublicationPeriod uint32 `json:"pub_period_ms,omitempty"`
}

// SetToken stores the token in its hex form.
func (s *NodeState) SetToken(token uint64) {
	s.Token = fmt.Sprintf("%016x", token)
}

// TokenValue parses the stored token.
func (s *NodeState) TokenValue() (uint64, error) {
	if s.Token == "" {
		return 0, ErrNoToken
	}
	v, err := strconv.ParseUint(s.Token, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token %q: %w", s.Token, err)
	}
	return v, nil
}

// NodeStateStore manages the node state file.
type NodeStateStore struct {
	mu   sync.Mutex
	path string
}

// NewNodeStateStore returns a store backed by the JSON file at path.
func NewNodeStateStore(path string) *NodeStateStore {
	return &NodeStateStore{path: path}
}

// Path returns the state file path.
func (s *NodeStateStore) Path() string {
	return s.path
}

// Save writes the state, creating parent directories as needed.
func (s *NodeStateStore) Save(state *NodeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	state.SavedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Atomic replace.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the state. It returns nil, nil when no state was saved yet.
func (s *NodeStateStore) Load() (*NodeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &NodeState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if state.Version > StateVersion {
		return nil, fmt.Errorf("state file version %d is newer than supported %d", state.Version, StateVersion)
	}
	return state, nil
}

// Clear removes the state file. A missing file is not an error.
func (s *NodeStateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
