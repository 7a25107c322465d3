// ABOUTME: Persisted panel state per frontend client
// ABOUTME: Lets the terminal frontend reopen on the panel it last showed

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/2389/coven-workbench/internal/viewstate"
)

// SavePanelState upserts the panel state for clientID
func (s *SQLiteStore) SavePanelState(ctx context.Context, clientID string, state viewstate.PanelState) error {
	if clientID == "" {
		return errors.New("client_id required")
	}
	if !state.Mode.Valid() {
		return fmt.Errorf("invalid panel mode %q", state.Mode)
	}

	query := `
		INSERT INTO panel_states (client_id, open, mode, selected_assistant_id, selected_assistant_state_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			open = excluded.open,
			mode = excluded.mode,
			selected_assistant_id = excluded.selected_assistant_id,
			selected_assistant_state_id = excluded.selected_assistant_state_id,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		clientID,
		state.Open,
		string(state.Mode),
		state.SelectedAssistantID,
		state.SelectedAssistantStateID,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving panel state: %w", err)
	}
	return nil
}

// GetPanelState retrieves the last saved panel state for clientID
func (s *SQLiteStore) GetPanelState(ctx context.Context, clientID string) (viewstate.PanelState, error) {
	query := `
		SELECT open, mode, selected_assistant_id, selected_assistant_state_id
		FROM panel_states
		WHERE client_id = ?
	`

	var state viewstate.PanelState
	var mode string
	err := s.db.QueryRowContext(ctx, query, clientID).Scan(
		&state.Open,
		&mode,
		&state.SelectedAssistantID,
		&state.SelectedAssistantStateID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return viewstate.PanelState{}, ErrPanelStateNotFound
	}
	if err != nil {
		return viewstate.PanelState{}, fmt.Errorf("querying panel state: %w", err)
	}
	if err := state.Mode.UnmarshalText([]byte(mode)); err != nil {
		return viewstate.PanelState{}, err
	}
	return state, nil
}
