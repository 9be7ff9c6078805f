package protocol

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestEncodeWireShapes(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want map[string]any
	}{
		{
			name: "video",
			cmd:  VideoFrame{Data: "abc123", SelectedActionID: "squat"},
			want: map[string]any{"type": "video", "data": "abc123", "selected_action_id": "squat"},
		},
		{
			name: "video without selection",
			cmd:  VideoFrame{Data: "abc123"},
			want: map[string]any{"type": "video", "data": "abc123"},
		},
		{
			name: "start evaluation",
			cmd:  StartEvaluation{ActionID: "squat"},
			want: map[string]any{"type": "start_evaluation", "action_id": "squat"},
		},
		{
			name: "stop evaluation",
			cmd:  StopEvaluation{},
			want: map[string]any{"type": "stop_evaluation"},
		},
		{
			name: "action select",
			cmd:  SelectAction{ActionID: "arm_lift"},
			want: map[string]any{"type": "action_select", "action_id": "arm_lift"},
		},
		{
			name: "action stop",
			cmd:  StopAction{},
			want: map[string]any{"type": "action_stop"},
		},
		{
			name: "get actions",
			cmd:  GetActions{},
			want: map[string]any{"type": "get_actions"},
		},
		{
			name: "settings change",
			cmd:  SettingsChange{Settings: Settings{Confidence: 0.5, ImageSize: 640, LineWidth: 3}},
			want: map[string]any{
				"type": "settings_change",
				"settings": map[string]any{
					"confidence": 0.5, "imageSize": float64(640), "lineWidth": float64(3),
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.cmd)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			var got map[string]any
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("encoded command is not valid JSON: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Encode(%T) = %v, want %v", tt.cmd, got, tt.want)
			}
		})
	}
}

// TestCommandRoundTrip verifies that decoding the wire form of every
// command recovers the same discriminant and data.
func TestCommandRoundTrip(t *testing.T) {
	cmds := []Command{
		VideoFrame{Data: "ZnJhbWU=", SelectedActionID: "squat"},
		StartEvaluation{ActionID: "squat"},
		StopEvaluation{},
		SelectAction{ActionID: "bicep_curl"},
		StopAction{},
		GetActions{},
		SettingsChange{Settings: Settings{Confidence: 0.8, ImageSize: 320, LineWidth: 2}},
	}

	for _, cmd := range cmds {
		data, err := Encode(cmd)
		if err != nil {
			t.Fatalf("Encode(%T): %v", cmd, err)
		}
		got, err := DecodeCommand(data)
		if err != nil {
			t.Fatalf("DecodeCommand(%s): %v", data, err)
		}
		if !reflect.DeepEqual(got, cmd) {
			t.Errorf("round trip of %T: got %#v, want %#v", cmd, got, cmd)
		}
	}
}

func TestDecodeCommandRejectsUnknown(t *testing.T) {
	if _, err := DecodeCommand([]byte(`{"type":"dance"}`)); err == nil {
		t.Error("expected error for unknown command type")
	}
	if _, err := DecodeCommand([]byte(`nope`)); err == nil {
		t.Error("expected error for malformed input")
	}
}
