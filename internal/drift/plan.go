package drift

import (
	"fmt"
	"math"

	"github.com/chimechallenge/chime6-synchronisation/internal/sox"
)

// Segment is one span of the input that is resampled into the output.
type Segment struct {
	Index  int     // position in the fit
	Start  int     // first input sample
	Length int     // number of input samples
	Speed  float64 // speed factor, always positive
	Lead   int     // pad (>0) or trim (<0) applied after the speed change; segment 0 only
	Whole  bool    // the segment is the entire input
}

// Effects returns the sox effect chain that renders the segment.
func (s Segment) Effects() []sox.Effect {
	if s.Whole {
		return LinearFit{Speed: s.Speed, Padding: s.Lead}.Effects()
	}
	fx := []sox.Effect{sox.Window(s.Start, s.Length)}
	if s.Index == 0 {
		return append(fx, LinearFit{Speed: s.Speed, Padding: s.Lead}.Effects()...)
	}
	return append(fx, sox.Speed(s.Speed))
}

// PlanPiecewise turns a piecewise fit into the ordered list of segments to
// resample from an input of numSamples samples.
//
// Segment 0 always starts at the first input sample. Every later segment
// starts at its Padding entry plus the carry left by discarded segments
// before it. A segment with negative speed produces no output and adds
// round(length/|speed|) samples to the carry; a resampled segment clears
// it. The last segment runs to the end of the input. The pad or trim of
// segment 0 needs segment 0 to produce output.
func PlanPiecewise(numSamples int, f PiecewiseFit) ([]Segment, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	n := len(f.Speed)
	var plan []Segment
	carry := 0
	for i := 0; i < n; i++ {
		start := 0
		if i > 0 {
			start = f.Padding[i] + carry
		}
		if start > numSamples {
			return nil, fmt.Errorf("%w: segment %d starts at sample %d beyond end of signal %d",
				ErrMalformedFit, i, start, numSamples)
		}
		end := numSamples
		if i < n-1 {
			end = min(f.Padding[i+1], numSamples)
		}
		length := end - start
		if length < 0 {
			return nil, fmt.Errorf("%w: segment %d spans %d..%d", ErrMalformedFit, i, start, end)
		}

		speed := f.Speed[i]
		if i == 0 && f.Padding[0] != 0 && (length == 0 || speed < 0) {
			return nil, fmt.Errorf("%w: segment 0 emits no samples to carry its lead of %d",
				ErrMalformedFit, f.Padding[0])
		}
		if speed < 0 {
			carry += int(math.Round(float64(length) / -speed))
			continue
		}
		carry = 0
		if length == 0 {
			continue
		}

		seg := Segment{
			Index:  i,
			Start:  start,
			Length: length,
			Speed:  speed,
			Whole:  i == 0 && n == 1,
		}
		if i == 0 {
			seg.Lead = f.Padding[0]
		}
		plan = append(plan, seg)
	}
	return plan, nil
}
