package xapi

import (
	"encoding/json"
	"time"
)

// Score is the outcome of a graded activity. Scaled is always within [-1, 1].
type Score struct {
	Raw *float64
	Min *float64
	Max *float64

	scaled *float64
}

// NewScore returns a score with raw, min and max set. Scaled is derived as
// (raw-min)/(max-min) when min != max and left unset otherwise.
func NewScore(raw, min, max float64) Score {
	s := Score{Raw: &raw, Min: &min, Max: &max}
	if min != max {
		v := clampScaled((raw - min) / (max - min))
		s.scaled = &v
	}
	return s
}

// ScaledScore returns a score with only the scaled value set.
func ScaledScore(v float64) Score {
	return Score{}.WithScaled(v)
}

// Scaled returns the scaled value and whether it is set.
func (s Score) Scaled() (float64, bool) {
	if s.scaled == nil {
		return 0, false
	}
	return *s.scaled, true
}

// WithScaled returns a copy with scaled set to v clamped to [-1, 1].
func (s Score) WithScaled(v float64) Score {
	out := s.clone()
	c := clampScaled(v)
	out.scaled = &c
	return out
}

// WithoutScaled returns a copy with no scaled value.
func (s Score) WithoutScaled() Score {
	out := s.clone()
	out.scaled = nil
	return out
}

func (s Score) clone() Score {
	return Score{Raw: copyFloat(s.Raw), Min: copyFloat(s.Min), Max: copyFloat(s.Max), scaled: copyFloat(s.scaled)}
}

func clampScaled(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

type scoreJSON struct {
	Scaled *float64 `json:"scaled,omitempty"`
	Raw    *float64 `json:"raw,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
}

func (s Score) MarshalJSON() ([]byte, error) {
	return json.Marshal(scoreJSON{Scaled: s.scaled, Raw: s.Raw, Min: s.Min, Max: s.Max})
}

func (s *Score) UnmarshalJSON(data []byte) error {
	var in scoreJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = Score{Raw: in.Raw, Min: in.Min, Max: in.Max}
	if in.Scaled != nil {
		v := clampScaled(*in.Scaled)
		s.scaled = &v
	}
	return nil
}

// Result holds the measured outcome of a statement.
type Result struct {
	Success    *bool
	Completion *bool
	Response   string
	Score      *Score
	Extensions map[string]any

	duration *time.Duration
}

// Duration returns the result duration and whether it is set.
func (r Result) Duration() (time.Duration, bool) {
	if r.duration == nil {
		return 0, false
	}
	return *r.duration, true
}

// WithDuration returns a copy with the duration set.
func (r Result) WithDuration(d time.Duration) Result {
	out := r.clone()
	out.duration = &d
	return out
}

// WithSuccess returns a copy with success set.
func (r Result) WithSuccess(v bool) Result {
	out := r.clone()
	out.Success = &v
	return out
}

// WithCompletion returns a copy with completion set.
func (r Result) WithCompletion(v bool) Result {
	out := r.clone()
	out.Completion = &v
	return out
}

// WithScore returns a copy with the score set.
func (r Result) WithScore(s Score) Result {
	out := r.clone()
	c := s.clone()
	out.Score = &c
	return out
}

// WithExtension returns a copy with the extension key set.
func (r Result) WithExtension(key string, value any) Result {
	out := r.clone()
	if out.Extensions == nil {
		out.Extensions = map[string]any{}
	}
	out.Extensions[key] = value
	return out
}

func (r Result) clone() Result {
	out := r
	if r.Success != nil {
		v := *r.Success
		out.Success = &v
	}
	if r.Completion != nil {
		v := *r.Completion
		out.Completion = &v
	}
	if r.duration != nil {
		d := *r.duration
		out.duration = &d
	}
	if r.Score != nil {
		s := r.Score.clone()
		out.Score = &s
	}
	out.Extensions = cloneExtensions(r.Extensions)
	return out
}

func cloneExtensions(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type resultJSON struct {
	Score      *Score         `json:"score,omitempty"`
	Success    *bool          `json:"success,omitempty"`
	Completion *bool          `json:"completion,omitempty"`
	Response   string         `json:"response,omitempty"`
	Duration   string         `json:"duration,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Score:      r.Score,
		Success:    r.Success,
		Completion: r.Completion,
		Response:   r.Response,
		Extensions: r.Extensions,
	}
	if r.duration != nil {
		out.Duration = FormatDuration(*r.duration)
	}
	return json.Marshal(out)
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Result{
		Score:      in.Score,
		Success:    in.Success,
		Completion: in.Completion,
		Response:   in.Response,
		Extensions: cloneExtensions(in.Extensions),
	}
	if in.Duration != "" {
		d, err := ParseDuration(in.Duration)
		if err != nil {
			return err
		}
		r.duration = &d
	}
	return nil
}

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool { return &v }

// FloatPtr returns a pointer to v.
func FloatPtr(v float64) *float64 { return &v }
