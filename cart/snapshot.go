package cart

import (
	"encoding/json"
	"fmt"
	"time"
)

// snapshotVersion is bumped when the snapshot envelope changes shape.
// Decoding rejects versions it does not understand rather than guessing.
const snapshotVersion = 1

// State is the full engine state as persisted: the keyed cart collection
// plus the process-wide current-user pointer. It is written as one JSON
// blob under the configured storage key after every command and read back
// at startup.
type State struct {
	Version     int             `json:"version"`
	Carts       map[string]Cart `json:"carts"`
	CurrentUser *User           `json:"current_user,omitempty"`
	SavedAt     time.Time       `json:"saved_at"`
}

// EncodeState serializes engine state into a snapshot payload, stamping
// the envelope version and write time.
func EncodeState(state State) ([]byte, error) {
	state.Version = snapshotVersion
	state.SavedAt = time.Now().UTC()
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal state snapshot: %w", err)
	}
	return data, nil
}

// DecodeState deserializes a snapshot payload back into engine state.
func DecodeState(data []byte) (State, error) {
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("unmarshal state snapshot: %w", err)
	}
	if state.Version != snapshotVersion {
		return State{}, fmt.Errorf("unsupported snapshot version %d: %w", state.Version, ErrInvalidConfiguration)
	}
	if state.Carts == nil {
		state.Carts = make(map[string]Cart)
	}
	return state, nil
}
