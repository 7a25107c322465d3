// ABOUTME: Panel view state types and partial transition requests
// ABOUTME: PanelState is the (open, mode) pair plus the focused assistant ids

package viewstate

import (
	"encoding/json"
	"fmt"
)

// Mode selects which side panel is displayed.
type Mode string

const (
	ModeConversation Mode = "conversation"
	ModeAssistant    Mode = "assistant"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeConversation || m == ModeAssistant
}

// UnmarshalText rejects unknown modes so persisted state cannot smuggle them in.
func (m *Mode) UnmarshalText(text []byte) error {
	v := Mode(text)
	if !v.Valid() {
		return fmt.Errorf("unknown panel mode %q", string(text))
	}
	*m = v
	return nil
}

// PanelState is the current side-panel view.
// Empty assistant ids mean no assistant has been selected.
type PanelState struct {
	Open                     bool   `json:"open"`
	Mode                     Mode   `json:"mode"`
	SelectedAssistantID      string `json:"selected_assistant_id,omitempty"`
	SelectedAssistantStateID string `json:"selected_assistant_state_id,omitempty"`
}

// DefaultState is a closed panel in conversation mode.
func DefaultState() PanelState {
	return PanelState{Mode: ModeConversation}
}

// Transition is a partial update. Nil fields keep the current value.
type Transition struct {
	Open                     *bool
	Mode                     *Mode
	SelectedAssistantID      *string
	SelectedAssistantStateID *string
}

// Apply returns s with every non-nil field of t written over it.
func (t Transition) Apply(s PanelState) PanelState {
	if t.Open != nil {
		s.Open = *t.Open
	}
	if t.Mode != nil {
		s.Mode = *t.Mode
	}
	if t.SelectedAssistantID != nil {
		s.SelectedAssistantID = *t.SelectedAssistantID
	}
	if t.SelectedAssistantStateID != nil {
		s.SelectedAssistantStateID = *t.SelectedAssistantStateID
	}
	return s
}

// IsEmpty reports whether t changes nothing.
func (t Transition) IsEmpty() bool {
	return t.Open == nil && t.Mode == nil && t.SelectedAssistantID == nil && t.SelectedAssistantStateID == nil
}

// MarshalJSON writes only the fields the transition sets, e.g. {"open":false}.
func (t Transition) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 4)
	if t.Open != nil {
		out["open"] = *t.Open
	}
	if t.Mode != nil {
		out["mode"] = *t.Mode
	}
	if t.SelectedAssistantID != nil {
		out["selected_assistant_id"] = *t.SelectedAssistantID
	}
	if t.SelectedAssistantStateID != nil {
		out["selected_assistant_state_id"] = *t.SelectedAssistantStateID
	}
	return json.Marshal(out)
}

// OpenPanel requests an open panel in the given mode, leaving selections alone.
func OpenPanel(mode Mode) Transition {
	return Transition{Open: ptr(true), Mode: ptr(mode)}
}

// ClosePanel requests a closed panel and keeps everything else.
func ClosePanel() Transition {
	return Transition{Open: ptr(false)}
}

// FocusAssistant opens the assistant panel on a specific assistant state.
func FocusAssistant(assistantID, stateID string) Transition {
	return Transition{
		Open:                     ptr(true),
		Mode:                     ptr(ModeAssistant),
		SelectedAssistantID:      ptr(assistantID),
		SelectedAssistantStateID: ptr(stateID),
	}
}

func ptr[T any](v T) *T {
	return &v
}
