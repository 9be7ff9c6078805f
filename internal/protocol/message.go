package protocol

import "encoding/json"

// MessageType is the wire discriminator for server → client messages.
type MessageType string

const (
	MsgProcessedFrame    MessageType = "processed_frame"
	MsgResult            MessageType = "result"
	MsgActionsList       MessageType = "actions_list"
	MsgActionSelected    MessageType = "action_selected"
	MsgActionStopped     MessageType = "action_stopped"
	MsgEvaluationStarted MessageType = "evaluation_started"
	MsgWarning           MessageType = "warning"
	MsgError             MessageType = "error"
)

// Message is one classified inbound frame. The set is closed: anything the
// client does not recognize decodes as Unknown so a single malformed or
// unexpected frame can never take down the message pipeline.
type Message interface {
	message()
}

// ProcessedFrame is one backend-rendered image (base64 JPEG). The payload
// stays opaque here; decoding is the renderer's job.
type ProcessedFrame struct {
	Data string
}

// StageNone is the placeholder stage displayed while no evaluation is
// running. Every reset path uses it so the read sides never disagree.
const StageNone = "-"

// Result is one repetition-counting update.
type Result struct {
	Count int
	Stage string // "up", "down", or a transitional label
	Angle float64
}

// ActionsList is a full catalog refresh.
type ActionsList struct {
	Actions []Exercise
}

// ActionSelected acknowledges an action_select command.
type ActionSelected struct {
	ActionName string
}

// ActionStopped acknowledges a stop.
type ActionStopped struct{}

// EvaluationStarted acknowledges a start_evaluation command.
type EvaluationStarted struct {
	ActionName string
}

// Warning is a non-fatal notice from the backend.
type Warning struct {
	Message string
}

// ServerError is an error report from the backend. It is informational;
// the connection stays up.
type ServerError struct {
	Message string
}

// Unknown preserves frames the client cannot classify.
type Unknown struct {
	Raw []byte
}

func (ProcessedFrame) message()    {}
func (Result) message()            {}
func (ActionsList) message()       {}
func (ActionSelected) message()    {}
func (ActionStopped) message()     {}
func (EvaluationStarted) message() {}
func (Warning) message()           {}
func (ServerError) message()       {}
func (Unknown) message()           {}

// Decode classifies a raw inbound frame. It is total: malformed JSON, a
// missing type field, an unrecognized type, or a payload that does not fit
// its declared type all yield Unknown. Extra fields are ignored.
func Decode(data []byte) Message {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Unknown{Raw: data}
	}

	switch head.Type {
	case MsgProcessedFrame:
		var w struct {
			Data string `json:"data"`
		}
		if err := json.Unmarshal(data, &w); err != nil {
			return Unknown{Raw: data}
		}
		return ProcessedFrame{Data: w.Data}

	case MsgResult:
		var w struct {
			Count int     `json:"count"`
			Stage string  `json:"stage"`
			Angle float64 `json:"angle"`
		}
		if err := json.Unmarshal(data, &w); err != nil {
			return Unknown{Raw: data}
		}
		return Result{Count: w.Count, Stage: w.Stage, Angle: w.Angle}

	case MsgActionsList:
		var w struct {
			Actions []Exercise `json:"actions"`
		}
		if err := json.Unmarshal(data, &w); err != nil {
			return Unknown{Raw: data}
		}
		return ActionsList{Actions: w.Actions}

	case MsgActionSelected:
		var w struct {
			ActionName string `json:"action_name"`
		}
		if err := json.Unmarshal(data, &w); err != nil {
			return Unknown{Raw: data}
		}
		return ActionSelected{ActionName: w.ActionName}

	case MsgActionStopped:
		return ActionStopped{}

	case MsgEvaluationStarted:
		var w struct {
			ActionName string `json:"action_name"`
		}
		if err := json.Unmarshal(data, &w); err != nil {
			return Unknown{Raw: data}
		}
		return EvaluationStarted{ActionName: w.ActionName}

	case MsgWarning:
		var w struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &w); err != nil {
			return Unknown{Raw: data}
		}
		return Warning{Message: w.Message}

	case MsgError:
		var w struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &w); err != nil {
			return Unknown{Raw: data}
		}
		return ServerError{Message: w.Message}

	default:
		return Unknown{Raw: data}
	}
}
