package protocol

import (
	"encoding/json"
	"fmt"
)

// CommandType is the wire discriminator for client → server commands.
type CommandType string

const (
	CmdVideo           CommandType = "video"
	CmdStartEvaluation CommandType = "start_evaluation"
	CmdStopEvaluation  CommandType = "stop_evaluation"
	CmdActionSelect    CommandType = "action_select"
	CmdActionStop      CommandType = "action_stop"
	CmdGetActions      CommandType = "get_actions"
	CmdSettingsChange  CommandType = "settings_change"
)

// Command is a client → server message. Commands are built fresh per user
// intent and never mutated after encoding.
type Command interface {
	commandType() CommandType
}

// VideoFrame carries one base64-encoded JPEG frame upstream.
type VideoFrame struct {
	Data             string
	SelectedActionID string
}

// StartEvaluation asks the backend to begin evaluating the given exercise.
type StartEvaluation struct {
	ActionID string
}

// StopEvaluation asks the backend to stop the running evaluation.
type StopEvaluation struct{}

// SelectAction announces the currently selected exercise to the backend.
type SelectAction struct {
	ActionID string
}

// StopAction is the legacy stop message the backend still honors.
type StopAction struct{}

// GetActions requests the full exercise catalog over the connection.
type GetActions struct{}

// SettingsChange pushes evaluator tuning parameters to the backend.
type SettingsChange struct {
	Settings Settings
}

// Settings are the evaluator parameters the backend accepts.
type Settings struct {
	Confidence float64 `json:"confidence"`
	ImageSize  int     `json:"imageSize"`
	LineWidth  int     `json:"lineWidth"`
}

func (VideoFrame) commandType() CommandType      { return CmdVideo }
func (StartEvaluation) commandType() CommandType { return CmdStartEvaluation }
func (StopEvaluation) commandType() CommandType  { return CmdStopEvaluation }
func (SelectAction) commandType() CommandType    { return CmdActionSelect }
func (StopAction) commandType() CommandType      { return CmdActionStop }
func (GetActions) commandType() CommandType      { return CmdGetActions }
func (SettingsChange) commandType() CommandType  { return CmdSettingsChange }

// commandWire is the superset of all outbound wire fields. omitempty keeps
// each encoded command down to exactly the fields its type defines.
type commandWire struct {
	Type             CommandType `json:"type"`
	Data             string      `json:"data,omitempty"`
	SelectedActionID string      `json:"selected_action_id,omitempty"`
	ActionID         string      `json:"action_id,omitempty"`
	Settings         *Settings   `json:"settings,omitempty"`
}

// Encode serializes a command to its wire form: one JSON object with a
// "type" discriminator plus the command's own fields.
func Encode(cmd Command) ([]byte, error) {
	w := commandWire{Type: cmd.commandType()}

	switch c := cmd.(type) {
	case VideoFrame:
		w.Data = c.Data
		w.SelectedActionID = c.SelectedActionID
	case StartEvaluation:
		w.ActionID = c.ActionID
	case SelectAction:
		w.ActionID = c.ActionID
	case SettingsChange:
		s := c.Settings
		w.Settings = &s
	case StopEvaluation, StopAction, GetActions:
		// type field only
	default:
		return nil, fmt.Errorf("unknown command %T", cmd)
	}

	return json.Marshal(w)
}

// DecodeCommand parses command wire text back into its typed form. Used to
// interpret the backend's echo of a sent command.
func DecodeCommand(data []byte) (Command, error) {
	var w commandWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}

	switch w.Type {
	case CmdVideo:
		return VideoFrame{Data: w.Data, SelectedActionID: w.SelectedActionID}, nil
	case CmdStartEvaluation:
		return StartEvaluation{ActionID: w.ActionID}, nil
	case CmdStopEvaluation:
		return StopEvaluation{}, nil
	case CmdActionSelect:
		return SelectAction{ActionID: w.ActionID}, nil
	case CmdActionStop:
		return StopAction{}, nil
	case CmdGetActions:
		return GetActions{}, nil
	case CmdSettingsChange:
		var s Settings
		if w.Settings != nil {
			s = *w.Settings
		}
		return SettingsChange{Settings: s}, nil
	default:
		return nil, fmt.Errorf("unknown command type %q", w.Type)
	}
}
