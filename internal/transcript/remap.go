package transcript

import (
	"fmt"

	"github.com/chimechallenge/chime6-synchronisation/internal/audio"
	"github.com/chimechallenge/chime6-synchronisation/internal/drift"
)

// Format selects how corrected timestamps are written.
type Format string

const (
	// Consolidated writes a single time per utterance boundary.
	Consolidated Format = "consolidated"
	// Legacy keeps per-device maps and writes the corrected time into every entry.
	Legacy Format = "legacy"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case Consolidated, Legacy:
		return f, nil
	}
	return "", fmt.Errorf("unknown transcript format %q (want %q or %q)", s, Consolidated, Legacy)
}

// Shift is the affine time map t/Speed + Offset of a linear clock-drift fit.
type Shift struct {
	Speed  float64
	Offset float64 // seconds
}

// ShiftFromFit converts a linear fit, whose padding is in samples, to a Shift.
func ShiftFromFit(f drift.LinearFit) Shift {
	return Shift{Speed: f.Speed, Offset: float64(f.Padding) / audio.SampleRate}
}

// Apply maps a device time onto the common timeline.
func (s Shift) Apply(t float64) float64 {
	return t/s.Speed + s.Offset
}

// Invert maps a common-timeline time back onto the device timeline.
func (s Shift) Invert(t float64) float64 {
	return (t - s.Offset) * s.Speed
}

// Remap returns a copy of tr with the times of every utterance whose speaker
// has a shift mapped onto the common timeline. Utterances without a speaker
// are redaction placeholders whose device is unknown; they are dropped.
// Utterances of other speakers are kept unchanged.
func Remap(tr Transcript, shifts map[string]Shift, format Format) (Transcript, error) {
	out := make(Transcript, 0, len(tr))
	for i, u := range tr {
		if !u.HasSpeaker {
			continue
		}
		shift, ok := shifts[u.Speaker]
		if !ok {
			out = append(out, u)
			continue
		}
		start, err := retime(u.StartTime, u.Speaker, shift, format)
		if err != nil {
			return nil, fmt.Errorf("utterance %d start_time: %w", i, err)
		}
		end, err := retime(u.EndTime, u.Speaker, shift, format)
		if err != nil {
			return nil, fmt.Errorf("utterance %d end_time: %w", i, err)
		}
		u.StartTime, u.EndTime = start, end
		out = append(out, u)
	}
	return out, nil
}

func retime(ts Timestamp, speaker string, shift Shift, format Format) (Timestamp, error) {
	src := ts.Value
	if ts.IsLegacy() {
		var ok bool
		if src, ok = ts.Devices[OriginalKey]; !ok {
			if src, ok = ts.Devices[speaker]; !ok {
				return Timestamp{}, fmt.Errorf("no %q or %q entry in per-device times", OriginalKey, speaker)
			}
		}
	}

	t := shift.Apply(src)
	if format == Legacy && ts.IsLegacy() {
		devices := make(map[string]float64, len(ts.Devices))
		for device := range ts.Devices {
			devices[device] = t
		}
		return Timestamp{Value: t, Devices: devices, order: ts.order}, nil
	}
	return Scalar(t), nil
}
