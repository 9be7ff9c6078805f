package protocol

import (
	"encoding/json"
	"fmt"
)

// Exercise is one repetition-counting definition from the backend catalog.
type Exercise struct {
	ID        string
	Name      string
	UpAngle   float64
	DownAngle float64
	Keypoints []int
	IsDefault bool
}

// exerciseWire accepts both field-name generations the backend has used:
// the current snake_case set (up_angle/down_angle/kpts) and the older
// camelCase set (upAngle/downAngle/keypoints). Pointers distinguish
// "absent" from zero so the older names only apply as fallback.
type exerciseWire struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	UpAngle   *float64 `json:"up_angle"`
	DownAngle *float64 `json:"down_angle"`
	Kpts      []int    `json:"kpts"`
	IsDefault bool     `json:"is_default"`

	AltUpAngle   *float64 `json:"upAngle"`
	AltDownAngle *float64 `json:"downAngle"`
	AltKeypoints []int    `json:"keypoints"`
}

// UnmarshalJSON normalizes both wire variants into the canonical struct,
// so nothing downstream ever branches on field naming.
func (e *Exercise) UnmarshalJSON(data []byte) error {
	var w exerciseWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	e.ID = w.ID
	e.Name = w.Name
	e.IsDefault = w.IsDefault

	switch {
	case w.UpAngle != nil:
		e.UpAngle = *w.UpAngle
	case w.AltUpAngle != nil:
		e.UpAngle = *w.AltUpAngle
	}
	switch {
	case w.DownAngle != nil:
		e.DownAngle = *w.DownAngle
	case w.AltDownAngle != nil:
		e.DownAngle = *w.AltDownAngle
	}
	if w.Kpts != nil {
		e.Keypoints = w.Kpts
	} else {
		e.Keypoints = w.AltKeypoints
	}

	return nil
}

// MarshalJSON always writes the canonical snake_case shape.
func (e Exercise) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        string  `json:"id,omitempty"`
		Name      string  `json:"name"`
		UpAngle   float64 `json:"up_angle"`
		DownAngle float64 `json:"down_angle"`
		Kpts      []int   `json:"kpts"`
		IsDefault bool    `json:"is_default"`
	}{
		ID:        e.ID,
		Name:      e.Name,
		UpAngle:   e.UpAngle,
		DownAngle: e.DownAngle,
		Kpts:      e.Keypoints,
		IsDefault: e.IsDefault,
	})
}

// Validate checks the fields a user-supplied exercise must carry before it
// is submitted to the backend.
func (e Exercise) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("exercise name is required")
	}
	if n := len(e.Keypoints); n < 1 || n > 3 {
		return fmt.Errorf("exercise needs 1-3 keypoints, got %d", n)
	}
	if e.UpAngle <= e.DownAngle {
		return fmt.Errorf("up_angle (%.1f) must be greater than down_angle (%.1f)", e.UpAngle, e.DownAngle)
	}
	return nil
}
