// Package transcript reads, writes and re-times CHiME transcripts.
package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OriginalKey is the per-device timestamp entry holding the reference time.
const OriginalKey = "original"

// Timestamp is either a single time (consolidated transcripts) or one time
// per recording device (legacy transcripts). Times are in seconds.
type Timestamp struct {
	Value   float64
	Devices map[string]float64 // nil for a single time

	order []string // device keys as read
}

// Scalar returns a single-valued timestamp.
func Scalar(t float64) Timestamp {
	return Timestamp{Value: t}
}

// IsLegacy reports whether the timestamp holds per-device times.
func (t Timestamp) IsLegacy() bool {
	return t.Devices != nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("{")) {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to decode timestamp: %w", err)
		}
		order, err := objectKeys(data)
		if err != nil {
			return fmt.Errorf("failed to decode timestamp: %w", err)
		}
		t.Value, t.order = 0, order
		t.Devices = make(map[string]float64, len(raw))
		for device, v := range raw {
			secs, err := decodeTime(v)
			if err != nil {
				return fmt.Errorf("device %s: %w", device, err)
			}
			t.Devices[device] = secs
		}
		return nil
	}
	secs, err := decodeTime(data)
	if err != nil {
		return err
	}
	t.Value, t.Devices, t.order = secs, nil, nil
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.IsLegacy() {
		s, err := FormatTime(t.Value)
		if err != nil {
			return nil, err
		}
		return json.Marshal(s)
	}
	out := make(map[string]any, len(t.Devices))
	for device, v := range t.Devices {
		s, err := FormatTime(v)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", device, err)
		}
		out[device] = s
	}
	return encodeObject(t.order, out)
}

// decodeTime accepts either HH:MM:SS.ff text or a number of seconds.
func decodeTime(data []byte) (float64, error) {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return ParseTime(text)
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return 0, fmt.Errorf("invalid transcript time %s", data)
	}
	return secs, nil
}

// Utterance is one transcript entry. Fields other than the speaker and the
// times are kept verbatim in Extra, and fields are written back in the order
// they were read.
type Utterance struct {
	Speaker    string
	HasSpeaker bool // false for redaction placeholders
	StartTime  Timestamp
	EndTime    Timestamp
	Extra      map[string]json.RawMessage

	order []string
}

var defaultFieldOrder = []string{"speaker", "start_time", "end_time"}

// Transcript is the ordered list of utterances of one session.
type Transcript []Utterance

func (u *Utterance) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("failed to decode utterance: %w", err)
	}

	order, err := objectKeys(data)
	if err != nil {
		return fmt.Errorf("failed to decode utterance: %w", err)
	}

	*u = Utterance{order: order}
	if raw, ok := fields["speaker"]; ok {
		u.HasSpeaker = true
		if string(raw) != "null" {
			if err := json.Unmarshal(raw, &u.Speaker); err != nil {
				return fmt.Errorf("failed to decode speaker: %w", err)
			}
		}
		delete(fields, "speaker")
	}
	for key, ts := range map[string]*Timestamp{"start_time": &u.StartTime, "end_time": &u.EndTime} {
		raw, ok := fields[key]
		if !ok {
			return fmt.Errorf("utterance is missing %s", key)
		}
		if err := json.Unmarshal(raw, ts); err != nil {
			return fmt.Errorf("failed to decode %s: %w", key, err)
		}
		delete(fields, key)
	}
	if len(fields) > 0 {
		u.Extra = fields
	}
	return nil
}

func (u Utterance) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Extra)+3)
	for k, v := range u.Extra {
		out[k] = v
	}
	if u.HasSpeaker {
		out["speaker"] = u.Speaker
	}
	out["start_time"] = u.StartTime
	out["end_time"] = u.EndTime
	order := u.order
	if order == nil {
		order = defaultFieldOrder
	}
	return encodeObject(order, out)
}
