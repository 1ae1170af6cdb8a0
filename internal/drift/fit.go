package drift

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/chimechallenge/chime6-synchronisation/internal/sox"
)

// ErrMalformedFit is returned for clock-drift fits that cannot be applied.
var ErrMalformedFit = errors.New("malformed clock drift fit")

// Fit is a clock-drift correction for one device: either a LinearFit or a
// PiecewiseFit.
type Fit interface {
	fit()
}

// LinearFit corrects a whole recording with a single speed factor. A
// positive Padding prepends that many samples of silence, a negative one
// trims that many leading samples.
type LinearFit struct {
	Speed   float64 `json:"speed"`
	Padding int     `json:"padding"`
}

func (LinearFit) fit() {}

// Validate checks that the fit describes a usable speed change.
func (f LinearFit) Validate() error {
	if !(f.Speed > 0) || math.IsInf(f.Speed, 0) {
		return fmt.Errorf("%w: speed %v", ErrMalformedFit, f.Speed)
	}
	return nil
}

// Effects returns the sox effect chain for the fit. sox applies the speed
// change before the pad or trim; with speeds this close to 1 and paddings
// this short the order makes no practical difference, and existing corpora
// were produced with exactly this chain.
func (f LinearFit) Effects() []sox.Effect {
	if f.Padding > 0 {
		return []sox.Effect{sox.Speed(f.Speed), sox.Pad(f.Padding)}
	}
	return []sox.Effect{sox.Speed(f.Speed), sox.Trim(-f.Padding)}
}

// PiecewiseFit splits a recording into len(Speed) segments. Padding[i] is
// the input sample at which segment i starts, except for segment 0 where it
// is a pad (positive) or trim (negative) instruction like LinearFit.Padding.
// A negative Speed[i] marks a span to discard rather than resample.
type PiecewiseFit struct {
	Speed   []float64 `json:"speed"`
	Padding []int     `json:"padding"`
}

func (PiecewiseFit) fit() {}

// Validate checks the structural invariants of the fit.
func (f PiecewiseFit) Validate() error {
	if len(f.Speed) == 0 {
		return fmt.Errorf("%w: no segments", ErrMalformedFit)
	}
	if len(f.Speed) != len(f.Padding) {
		return fmt.Errorf("%w: %d speeds but %d paddings", ErrMalformedFit, len(f.Speed), len(f.Padding))
	}
	for i, s := range f.Speed {
		if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: segment %d has speed %v", ErrMalformedFit, i, s)
		}
	}
	for i := 1; i < len(f.Padding); i++ {
		if f.Padding[i] < 0 {
			return fmt.Errorf("%w: segment %d starts at negative sample %d", ErrMalformedFit, i, f.Padding[i])
		}
		if i > 1 && f.Padding[i] < f.Padding[i-1] {
			return fmt.Errorf("%w: segment %d starts before segment %d", ErrMalformedFit, i, i-1)
		}
	}
	return nil
}

// DeviceFit carries a Fit through JSON. A fit whose speed is a JSON array
// decodes to a PiecewiseFit, anything else to a LinearFit.
type DeviceFit struct {
	Fit
}

func (d *DeviceFit) UnmarshalJSON(data []byte) error {
	var raw struct {
		Speed   json.RawMessage `json:"speed"`
		Padding json.RawMessage `json:"padding"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode fit: %w", err)
	}
	if len(raw.Speed) == 0 || len(raw.Padding) == 0 {
		return fmt.Errorf("%w: speed and padding are required", ErrMalformedFit)
	}

	if bytes.HasPrefix(bytes.TrimSpace(raw.Speed), []byte("[")) {
		var f PiecewiseFit
		var padding []float64
		if err := json.Unmarshal(raw.Speed, &f.Speed); err != nil {
			return fmt.Errorf("failed to decode piecewise speed: %w", err)
		}
		if err := json.Unmarshal(raw.Padding, &padding); err != nil {
			return fmt.Errorf("failed to decode piecewise padding: %w", err)
		}
		for _, p := range padding {
			n, err := toSamples(p)
			if err != nil {
				return err
			}
			f.Padding = append(f.Padding, n)
		}
		d.Fit = f
		return nil
	}

	var f LinearFit
	var padding float64
	if err := json.Unmarshal(raw.Speed, &f.Speed); err != nil {
		return fmt.Errorf("failed to decode speed: %w", err)
	}
	if err := json.Unmarshal(raw.Padding, &padding); err != nil {
		return fmt.Errorf("failed to decode padding: %w", err)
	}
	n, err := toSamples(padding)
	if err != nil {
		return err
	}
	f.Padding = n
	d.Fit = f
	return nil
}

func (d DeviceFit) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Fit)
}

func toSamples(v float64) (int, error) {
	if v != math.Trunc(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: padding %v is not a whole number of samples", ErrMalformedFit, v)
	}
	return int(v), nil
}
