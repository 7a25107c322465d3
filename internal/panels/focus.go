// ABOUTME: Focus event payload decoding for assistant.state.focus
// ABOUTME: Malformed or incomplete payloads are reported as *ParseError

package panels

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FocusEventName is the stream event that asks the UI to show an assistant state.
const FocusEventName = "assistant.state.focus"

// ErrMissingField is wrapped by ParseError when a required payload field is empty.
var ErrMissingField = errors.New("missing required field")

// FocusEventPayload is the JSON body of a focus event.
type FocusEventPayload struct {
	AssistantID string `json:"assistant_id"`
	StateID     string `json:"state_id"`
}

// ParseError reports a focus event whose data could not be decoded.
type ParseError struct {
	Data string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s payload: %v", FocusEventName, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseFocusEvent decodes data into a FocusEventPayload.
// Both assistant_id and state_id must be present and non-empty.
func ParseFocusEvent(data string) (FocusEventPayload, error) {
	var p FocusEventPayload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return FocusEventPayload{}, &ParseError{Data: data, Err: err}
	}
	if p.AssistantID == "" {
		return FocusEventPayload{}, &ParseError{Data: data, Err: fmt.Errorf("%w: assistant_id", ErrMissingField)}
	}
	if p.StateID == "" {
		return FocusEventPayload{}, &ParseError{Data: data, Err: fmt.Errorf("%w: state_id", ErrMissingField)}
	}
	return p, nil
}
